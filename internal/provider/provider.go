// Package provider talks to the external blockchain data service: it
// paces requests, retries transient failures, breaks the circuit on
// persistent failure, and normalizes chain-family-specific responses into
// the engine's chain-agnostic TxRecord / AddressMeta shapes (spec.md §4.2).
package provider

import (
	"context"
	"fmt"

	"github.com/yourusername/kyt/internal/chain"
	"github.com/yourusername/kyt/internal/risk"
)

// ErrorKind classifies a provider failure for the Tracer and caller.
type ErrorKind string

const (
	ErrTxNotFound  ErrorKind = "TX_NOT_FOUND"
	ErrRateLimited ErrorKind = "RATE_LIMITED"
	ErrProviderDown ErrorKind = "PROVIDER_DOWN"
	ErrDecode      ErrorKind = "DECODE_ERROR"
)

// Error is the classified error every BlockchainProvider method returns on
// failure (mirrors the teacher's ChainError in src/chainadapter/error.go,
// narrowed to the four kinds spec.md §4.2 names).
type Error struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Provider, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Provider, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind ErrorKind, provider, message string, cause error) *Error {
	return &Error{Kind: kind, Provider: provider, Message: message, Cause: cause}
}

// InternalTransfer is a nested value movement inside an ACCOUNT-family
// transaction (spec.md §4.2 normalization).
type InternalTransfer struct {
	From  string
	To    string
	Value float64
}

// UTXOEntry is one input or output of a UTXO-family transaction.
type UTXOEntry struct {
	Address string // empty for an unattributable input (coinbase)
	Value   float64
}

// TxRecord is the chain-agnostic normalized transaction (spec.md §3).
type TxRecord struct {
	ID     string
	Chain  string
	Family chain.Family

	// ACCOUNT family
	From     string
	To       string
	Value    float64
	Internal []InternalTransfer

	// UTXO family
	Inputs        []UTXOEntry
	Outputs       []UTXOEntry
	CoinbaseValue float64
}

// SourceAddresses returns the addresses a BFS should enqueue next, paired
// with the value each contributes, per the normalization rules of
// spec.md §4.2: for ACCOUNT, {from} ∪ {internal[i].from}; for UTXO, the
// distinct addressed inputs.
func (r TxRecord) SourceAddresses() map[string]float64 {
	out := make(map[string]float64)
	switch r.Family {
	case chain.FamilyAccount:
		if r.From != "" {
			out[r.From] += r.Value
		}
		for _, it := range r.Internal {
			if it.From == "" {
				continue
			}
			out[it.From] += it.Value
		}
	case chain.FamilyUTXO:
		for _, in := range r.Inputs {
			if in.Address == "" {
				continue // coinbase, counted separately
			}
			out[in.Address] += in.Value
		}
	}
	return out
}

// AddressMeta is the chain-agnostic normalized address metadata (spec.md §3).
type AddressMeta struct {
	Address   string
	Chain     string
	Tags      []risk.Tag
	Balance   float64
	TxCount   int
	FirstSeen int64 // unix seconds, 0 if unknown
	LastSeen  int64
	Label     string

	// FundingTx is the transaction that most recently funded this
	// address, the edge the Tracer follows to continue the BFS one
	// layer further upstream (spec.md §4.4). Empty when the provider
	// has no earlier inbound activity to report (a terminal node).
	FundingTx string
}

// Health is the result of BlockchainProvider.Health — it never fails.
type Health struct {
	CircuitState string
	RequestCount int64
	LatestBlock  *uint64
}

// BlockchainProvider abstracts blockchain data access from a single
// upstream service (spec.md §4.2). Implementations MUST be safe for
// concurrent use, respect ctx cancellation, and be idempotent (safe to
// retry at a higher layer).
type BlockchainProvider interface {
	Name() string
	GetTransaction(ctx context.Context, chainID, txID string) (TxRecord, error)
	GetAddressMeta(ctx context.Context, chainID, address string) (AddressMeta, error)
	Health(ctx context.Context) Health
}
