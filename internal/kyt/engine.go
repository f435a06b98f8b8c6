// Package kyt is the composition root: it wires chain registry, cached
// provider access, and the BFS tracer into the single Analyze operation
// spec.md §4 describes, and turns the result into a risk report.
package kyt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/kyt/internal/cache"
	"github.com/yourusername/kyt/internal/chain"
	"github.com/yourusername/kyt/internal/provider"
	"github.com/yourusername/kyt/internal/risk"
	"github.com/yourusername/kyt/internal/trace"
)

// Config bounds one Engine's behavior (spec.md §6's configuration
// table, the parts not specific to a single provider connection).
type Config struct {
	MaxDepth            int
	FetchParallelism    int
	ContributionK       float64
	MaxAddressesVisited int // 0 disables the bound
	MaxAPICalls         int // 0 disables the bound
}

// Engine ties the chain registry, provider fan-out, persistent cache,
// and tracer together behind one Analyze call. Logging is threaded in
// explicitly at construction rather than read off a package-level
// global, following the teacher's explicit-dependency style throughout
// src/chainadapter.
type Engine struct {
	registry *chain.Registry
	fetcher  trace.Fetcher
	store    cache.Store
	cfg      Config
	log      *zap.Logger
}

// NewEngine wires the composition root. fetcher is typically a
// *provider.Registry; store is the shared persistent cache tier.
func NewEngine(registry *chain.Registry, fetcher trace.Fetcher, store cache.Store, cfg Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{registry: registry, fetcher: fetcher, store: store, cfg: cfg, log: log}
}

// reportCacheKey is the report-level cache key of spec.md §4.4 step 1 /
// §2 ("the final report is written back to the Cache").
func reportCacheKey(chainID, txID string, depth int) string {
	return fmt.Sprintf("report:%s:%s:%d", chainID, txID, depth)
}

// Analyze runs the bounded upstream trace for (chainID, txID) to depth
// layers and scores the result (spec.md §4). depth <= 0 uses the
// engine's configured MaxDepth. The returned report is non-nil whenever
// err is nil or err is *Error{Kind: ErrPartialDegradation} — a
// degradation is reported via both the error and RiskReport.Degraded so
// a caller that only checks err != nil still sees a usable score.
func (e *Engine) Analyze(ctx context.Context, chainID, txID string, depth int) (*RiskReport, error) {
	log := e.log.With(zap.String("chain", chainID), zap.String("tx_id", txID))

	spec, err := e.registry.Get(chainID)
	if err != nil {
		return nil, newError(ErrChainUnsupported, err.Error(), err)
	}

	txID = strings.TrimSpace(txID)
	if txID == "" {
		return nil, newError(ErrInvalidInput, "tx_id must not be empty", nil)
	}

	if depth <= 0 {
		depth = e.cfg.MaxDepth
	}
	if depth <= 0 || depth > e.cfg.MaxDepth {
		return nil, newError(ErrInvalidInput, "depth out of configured bounds", nil)
	}

	tiered := cache.NewTiered(e.store)

	cacheKey := reportCacheKey(spec.ID, txID, depth)
	if raw, ok, cerr := tiered.Get(ctx, cacheKey); cerr == nil && ok {
		report, derr := decodeReport(raw)
		if derr == nil {
			log.Debug("report cache hit", zap.String("key", cacheKey))
			if len(report.Degraded) > 0 {
				return &report, newError(ErrPartialDegradation, "some branches of the trace could not be fetched", nil)
			}
			return &report, nil
		}
		log.Warn("report cache hit but payload was undecodable, re-tracing", zap.Error(derr))
	}

	tracer := trace.NewTracer(e.fetcher, tiered, e.log)

	result, err := tracer.Trace(ctx, spec.ID, txID, trace.Options{
		Depth:               depth,
		FetchParallelism:    e.cfg.FetchParallelism,
		ContributionK:       e.cfg.ContributionK,
		MaxAddressesVisited: e.cfg.MaxAddressesVisited,
		MaxAPICalls:         e.cfg.MaxAPICalls,
	})
	if err != nil {
		log.Warn("trace failed", zap.Error(err))
		return nil, classifyTraceError(err)
	}

	k := e.cfg.ContributionK
	if k <= 0 {
		k = risk.DefaultContributionK
	}
	scored := risk.Score(result.Flagged, result.UnflaggedCount, result.CircularPaths, k)

	// Recovered non-root failures are listed in reasons as well as in
	// Degraded, so the reasons say what specifically degraded.
	reasons := scored.Reasons
	for _, note := range result.Degraded {
		reasons = append(reasons, "degraded: "+note)
	}

	report := &RiskReport{
		Chain: spec.ID, TxID: txID, Depth: depth,
		RiskScore: RiskScore{
			Score:   scored.Score,
			Level:   scored.Level,
			Reasons: reasons,
		},
		FlaggedEntities:    result.Flagged,
		NodesVisited:       result.NodesVisited,
		TerminalNodes:      result.TerminalNodes,
		CircularPaths:      result.CircularPaths,
		MaxDepthReached:    result.MaxDepthReached,
		APICallsUsed:       result.APICallsUsed,
		TransactionsTraced: result.TransactionsTraced,
		Degraded:           result.Degraded,
		GeneratedAt:        time.Now().UTC(),
	}

	// Caching rules (spec.md §7): cache on success or partial
	// degradation only. ProviderDown/RateLimited/other hard failures
	// must never be cached — classifyTraceError already returned above
	// for those, so reaching here means the trace itself succeeded.
	if raw, merr := json.Marshal(report); merr == nil {
		if perr := tiered.Put(ctx, cacheKey, raw, time.Now()); perr != nil {
			log.Warn("report cache put failed", zap.String("key", cacheKey), zap.Error(perr))
		}
	} else {
		log.Warn("report cache encode failed", zap.Error(merr))
	}

	if len(result.Degraded) > 0 {
		log.Warn("analysis completed with degraded coverage", zap.Int("degraded_count", len(result.Degraded)))
		return report, newError(ErrPartialDegradation, "some branches of the trace could not be fetched", nil)
	}

	return report, nil
}

func decodeReport(raw []byte) (RiskReport, error) {
	var report RiskReport
	err := json.Unmarshal(raw, &report)
	return report, err
}

// ListChains exposes the static chain registry, sorted by chain id.
func (e *Engine) ListChains() []chain.Spec {
	return e.registry.List()
}

// Health reports every provider's health, keyed by provider name, for
// the CLI's `health` command.
func (e *Engine) Health(ctx context.Context) map[string]provider.Health {
	type healther interface {
		Health(ctx context.Context) map[string]provider.Health
	}
	if h, ok := e.fetcher.(healther); ok {
		return h.Health(ctx)
	}
	return nil
}

func classifyTraceError(err error) *Error {
	var perr *provider.Error
	if asProviderError(err, &perr) {
		switch perr.Kind {
		case provider.ErrTxNotFound:
			return newError(ErrTxNotFound, "transaction not found", err)
		case provider.ErrRateLimited:
			return newError(ErrRateLimited, "provider rate limited the request", err)
		case provider.ErrProviderDown:
			return newError(ErrProviderDown, "provider unavailable", err)
		}
	}
	return newError(ErrInternal, "trace failed", err)
}

func asProviderError(err error, target **provider.Error) bool {
	for err != nil {
		if perr, ok := err.(*provider.Error); ok {
			*target = perr
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
