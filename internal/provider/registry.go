package provider

import (
	"context"
	"fmt"
)

// Registry holds an ordered list of providers per chain and serves the
// first healthy one, falling back to the next on failure (SPEC_FULL.md
// §3 "multi-provider fan-out with fallback"). Adapted from the teacher's
// ProviderRegistry (src/chainadapter/provider/registry.go), which caches
// single providers by provider-chain-network key; this version keeps the
// registration/lookup shape but replaces single-instance caching with an
// ordered fallback chain, since spec.md has exactly one provider kind
// (the upstream blockchain data API) but may have several configured
// instances of it (e.g. primary + backup API keys).
type Registry struct {
	byChain map[string][]BlockchainProvider
}

// NewRegistry builds an empty fan-out registry.
func NewRegistry() *Registry {
	return &Registry{byChain: make(map[string][]BlockchainProvider)}
}

// Register appends p to the fallback chain for chainID, in priority
// order: the first Register call for a chain is tried first.
func (r *Registry) Register(chainID string, p BlockchainProvider) {
	r.byChain[chainID] = append(r.byChain[chainID], p)
}

// Providers returns the fallback chain configured for chainID.
func (r *Registry) Providers(chainID string) []BlockchainProvider {
	return r.byChain[chainID]
}

// ErrNoProvider is returned when a chain has no registered provider.
type ErrNoProvider struct{ ChainID string }

func (e *ErrNoProvider) Error() string {
	return fmt.Sprintf("no provider configured for chain %q", e.ChainID)
}

// GetTransaction tries each provider registered for chainID in order,
// falling through to the next on ErrProviderDown or ErrRateLimited (the
// upstream is unavailable) and returning immediately on ErrTxNotFound or
// ErrDecode (a definitive answer, not a fallback trigger).
func (r *Registry) GetTransaction(ctx context.Context, chainID, txID string) (TxRecord, error) {
	providers := r.byChain[chainID]
	if len(providers) == 0 {
		return TxRecord{}, &ErrNoProvider{ChainID: chainID}
	}

	var lastErr error
	for _, p := range providers {
		rec, err := p.GetTransaction(ctx, chainID, txID)
		if err == nil {
			return rec, nil
		}
		lastErr = err
		if !shouldFallback(err) {
			return TxRecord{}, err
		}
	}
	return TxRecord{}, lastErr
}

// GetAddressMeta mirrors GetTransaction's fallback policy.
func (r *Registry) GetAddressMeta(ctx context.Context, chainID, address string) (AddressMeta, error) {
	providers := r.byChain[chainID]
	if len(providers) == 0 {
		return AddressMeta{}, &ErrNoProvider{ChainID: chainID}
	}

	var lastErr error
	for _, p := range providers {
		meta, err := p.GetAddressMeta(ctx, chainID, address)
		if err == nil {
			return meta, nil
		}
		lastErr = err
		if !shouldFallback(err) {
			return AddressMeta{}, err
		}
	}
	return AddressMeta{}, lastErr
}

// Health returns the health of every provider registered across all
// chains, keyed by provider name, for the composition root's health()
// surface (SPEC_FULL.md §3).
func (r *Registry) Health(ctx context.Context) map[string]Health {
	out := make(map[string]Health)
	for _, providers := range r.byChain {
		for _, p := range providers {
			out[p.Name()] = p.Health(ctx)
		}
	}
	return out
}

func shouldFallback(err error) bool {
	var perr *Error
	if ok := asError(err, &perr); ok {
		return perr.Kind == ErrProviderDown || perr.Kind == ErrRateLimited
	}
	// Unclassified errors (context cancellation, ErrNoProvider) are not
	// retried against a different provider.
	return false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if perr, ok := err.(*Error); ok {
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
