// Package chain holds the frozen table mapping supported chain identifiers
// to their family, display metadata, and provider path fragment.
package chain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Family distinguishes the two transaction shapes the tracer understands.
type Family string

const (
	FamilyAccount Family = "ACCOUNT" // Ethereum-style: single from->to, optional internal transfers
	FamilyUTXO    Family = "UTXO"    // Bitcoin-style: inputs[]/outputs[]
)

// Spec is the static, process-wide description of one supported chain.
type Spec struct {
	ID           string // canonical identifier, e.g. "ethereum"
	Family       Family
	DisplayName  string
	NativeSymbol string
	Decimals     int
	APIPath      string // provider path fragment, e.g. "eth/mainnet"
}

// ErrUnsupported is returned by Registry.Get for an unknown chain id.
type ErrUnsupported struct {
	ChainID   string
	Supported []string
}

func (e *ErrUnsupported) Error() string {
	return fmt.Sprintf("chain %q is not supported (supported: %s)", e.ChainID, strings.Join(e.Supported, ", "))
}

// Registry is a frozen, read-only table of ChainSpecs built once at
// process start. It is safe for concurrent use because nothing mutates
// it after NewRegistry returns.
type Registry struct {
	specs map[string]Spec
	order []string // insertion order, for deterministic ListIDs
}

// NewRegistry builds the default registry of supported chains. Additional
// chains are configuration, not core design (spec.md §4.1), but the set
// below covers both chain families end to end.
func NewRegistry() *Registry {
	r := &Registry{specs: make(map[string]Spec)}

	r.add(Spec{ID: "ethereum", Family: FamilyAccount, DisplayName: "Ethereum", NativeSymbol: "ETH", Decimals: 18, APIPath: "eth/mainnet"})
	r.add(Spec{ID: "polygon", Family: FamilyAccount, DisplayName: "Polygon", NativeSymbol: "MATIC", Decimals: 18, APIPath: "polygon/mainnet"})
	r.add(Spec{ID: "bsc", Family: FamilyAccount, DisplayName: "BNB Smart Chain", NativeSymbol: "BNB", Decimals: 18, APIPath: "bsc/mainnet"})
	r.add(Spec{ID: "arbitrum", Family: FamilyAccount, DisplayName: "Arbitrum One", NativeSymbol: "ETH", Decimals: 18, APIPath: "arbitrum/mainnet"})
	r.add(Spec{ID: "bitcoin", Family: FamilyUTXO, DisplayName: "Bitcoin", NativeSymbol: "BTC", Decimals: 8, APIPath: "btc/mainnet"})
	r.add(Spec{ID: "litecoin", Family: FamilyUTXO, DisplayName: "Litecoin", NativeSymbol: "LTC", Decimals: 8, APIPath: "ltc/mainnet"})
	r.add(Spec{ID: "bitcoincash", Family: FamilyUTXO, DisplayName: "Bitcoin Cash", NativeSymbol: "BCH", Decimals: 8, APIPath: "bch/mainnet"})

	return r
}

func (r *Registry) add(s Spec) {
	r.specs[s.ID] = s
	r.order = append(r.order, s.ID)
}

// Get returns the ChainSpec for id, or ErrUnsupported with the full
// supported list so the caller can reject at the edge (spec.md §4.1).
func (r *Registry) Get(id string) (Spec, error) {
	s, ok := r.specs[id]
	if !ok {
		return Spec{}, &ErrUnsupported{ChainID: id, Supported: r.ListIDs()}
	}
	return s, nil
}

// ListIDs returns supported chain ids in stable registration order.
func (r *Registry) ListIDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// List returns the full ChainSpec table sorted by id, for list_chains().
func (r *Registry) List() []Spec {
	out := make([]Spec, 0, len(r.specs))
	for _, id := range r.order {
		out = append(out, r.specs[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ValidateAddress applies family-appropriate, chain-agnostic syntax
// validation. It never calls out to the network; it only rejects
// addresses that are structurally impossible so the Tracer doesn't
// waste an API call on garbage input.
func (s Spec) ValidateAddress(address string) error {
	switch s.Family {
	case FamilyAccount:
		if !ethcommon.IsHexAddress(address) {
			return fmt.Errorf("invalid %s address: %q", s.DisplayName, address)
		}
	case FamilyUTXO:
		params := &chaincfg.MainNetParams
		if _, err := btcutil.DecodeAddress(address, params); err != nil {
			return fmt.Errorf("invalid %s address: %q: %w", s.DisplayName, address, err)
		}
	default:
		return fmt.Errorf("unknown chain family %q", s.Family)
	}
	return nil
}
