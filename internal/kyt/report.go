package kyt

import (
	"time"

	"github.com/yourusername/kyt/internal/risk"
)

// RiskScore is the scored verdict, nested under risk_score in the
// serialized report (spec.md §6 "Report serialization":
// risk_score:{score, level, reasons[]}). Field renames here are breaking
// for any consumer of the JSON contract, so this shape, once shipped,
// only grows new sibling fields — it does not get flattened or renamed.
type RiskScore struct {
	Score   int        `json:"score"`
	Level   risk.Level `json:"level"`
	Reasons []string   `json:"reasons"`
}

// RiskReport is the engine's output for one analysis (spec.md §6). Field
// names are chosen to serialize stably to JSON for the CLI's --json flag
// and any future HTTP surface.
type RiskReport struct {
	Chain string `json:"chain"`
	TxID  string `json:"tx_id"`
	Depth int    `json:"depth"`

	RiskScore RiskScore `json:"risk_score"`

	FlaggedEntities []risk.FlaggedEntity `json:"flagged_entities"`

	NodesVisited       int      `json:"nodes_visited"`
	TerminalNodes      int      `json:"terminal_nodes"`
	CircularPaths      int      `json:"circular_paths"`
	MaxDepthReached    int      `json:"max_depth_reached"`
	APICallsUsed       int      `json:"api_calls_used"`
	TransactionsTraced int      `json:"transactions_traced"`
	Degraded           []string `json:"degraded,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}
