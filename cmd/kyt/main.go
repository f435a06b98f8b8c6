// Command kyt is a composition-root demo harness for the KYT engine: it
// is not the production surface (that would be an HTTP API, out of
// scope per spec.md's Non-goals) but a CLI for running one analysis,
// listing supported chains, and checking provider health, in the style
// of the teacher's cmd/arcsign entrypoint.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/kyt/internal/cache"
	"github.com/yourusername/kyt/internal/chain"
	"github.com/yourusername/kyt/internal/config"
	"github.com/yourusername/kyt/internal/kyt"
	"github.com/yourusername/kyt/internal/logging"
	"github.com/yourusername/kyt/internal/provider"
)

var (
	configPath string
	envPath    string
	passphrase string
)

func main() {
	root := &cobra.Command{
		Use:   "kyt",
		Short: "Know-Your-Transaction blockchain compliance engine",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "kyt.yaml", "path to config file")
	root.PersistentFlags().StringVar(&envPath, "env", ".env", "path to .env overlay")
	root.PersistentFlags().StringVar(&passphrase, "passphrase", os.Getenv("KYT_PASSPHRASE"), "passphrase for decrypting provider secrets")

	root.AddCommand(analyzeCmd(), chainsCmd(), healthCmd())

	if err := root.Execute(); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

func analyzeCmd() *cobra.Command {
	var depth int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "analyze <chain> <tx_id>",
		Short: "Trace a transaction's upstream origins and score its risk",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, log, err := buildEngine()
			if err != nil {
				return err
			}
			defer log.Sync()

			report, err := engine.Analyze(cmd.Context(), args[0], args[1], depth)
			if err != nil {
				if report == nil {
					return err
				}
				color.Yellow("warning: %v", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			printReport(report)
			return nil
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "trace depth (0 uses the configured max)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the report as JSON")
	return cmd
}

func chainsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List supported chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := chain.NewRegistry()
			for _, spec := range registry.List() {
				fmt.Printf("%-14s %-10s %-8s %s\n", spec.ID, spec.Family, spec.NativeSymbol, spec.DisplayName)
			}
			return nil
		},
	}
}

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Report provider health",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, log, err := buildEngine()
			if err != nil {
				return err
			}
			defer log.Sync()

			for name, h := range engine.Health(cmd.Context()) {
				fmt.Printf("%-20s circuit=%-10s requests=%d\n", name, h.CircuitState, h.RequestCount)
			}
			return nil
		},
	}
}

func buildEngine() (*kyt.Engine, *zap.Logger, error) {
	cfg, err := config.Load(configPath, envPath)
	if err != nil {
		return nil, nil, err
	}

	log, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		return nil, nil, err
	}

	registry := chain.NewRegistry()
	providers := provider.NewRegistry()

	for _, pspec := range cfg.Providers {
		apiKey, err := pspec.ResolveAPIKey(passphrase)
		if err != nil {
			return nil, nil, err
		}

		hp := provider.NewHTTPProvider(provider.HTTPProviderConfig{
			Name: pspec.Name, BaseURL: pspec.BaseURL, APIKey: apiKey,
			RequestsPerSecond: pspec.RequestsPerSecond,
			MaxRetries:        pspec.MaxRetries,
			RetryBaseDelay:    pspec.RetryBaseDelay,
			RetryMaxDelay:     pspec.RetryMaxDelay,
			CircuitThreshold:  pspec.CircuitThreshold,
			CircuitCooldown:   pspec.CircuitCooldown,
			RequestTimeout:    pspec.RequestTimeout,
			Logger:            log,
		}, registry)

		for _, chainID := range pspec.Chains {
			providers.Register(chainID, hp)
		}
	}

	store, err := buildCacheStore(cfg.Cache)
	if err != nil {
		return nil, nil, err
	}

	engine := kyt.NewEngine(registry, providers, store, kyt.Config{
		MaxDepth: cfg.MaxDepth, FetchParallelism: cfg.FetchParallelism, ContributionK: cfg.ContributionK,
		MaxAddressesVisited: cfg.MaxAddressesVisited, MaxAPICalls: cfg.MaxAPICalls,
	}, log)

	return engine, log, nil
}

func buildCacheStore(spec config.CacheSpec) (cache.Store, error) {
	switch spec.Backend {
	case "mongo":
		return nil, fmt.Errorf("mongo cache backend requires a live *mongo.Collection; wire it in your own main before using this command")
	default:
		size := spec.LRUSize
		if size <= 0 {
			size = 10000
		}
		ttl := spec.TTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		return cache.NewLRUStore(size, ttl)
	}
}

func printReport(report *kyt.RiskReport) {
	levelColor := color.New(color.FgGreen)
	switch report.RiskScore.Level {
	case "LOW":
		levelColor = color.New(color.FgCyan)
	case "MEDIUM":
		levelColor = color.New(color.FgYellow)
	case "HIGH", "CRITICAL":
		levelColor = color.New(color.FgRed, color.Bold)
	}

	fmt.Printf("chain=%s tx=%s depth=%d\n", report.Chain, report.TxID, report.Depth)
	fmt.Printf("score=%d level=", report.RiskScore.Score)
	levelColor.Println(report.RiskScore.Level)
	fmt.Printf("api_calls_used=%d transactions_traced=%d\n", report.APICallsUsed, report.TransactionsTraced)

	for _, reason := range report.RiskScore.Reasons {
		fmt.Println(" -", reason)
	}
	if len(report.Degraded) > 0 {
		color.Yellow("degraded coverage (%d branches):", len(report.Degraded))
		for _, d := range report.Degraded {
			fmt.Println("  !", d)
		}
	}
}
