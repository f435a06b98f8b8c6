package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/kyt/internal/chain"
	"github.com/yourusername/kyt/internal/provider"
	"github.com/yourusername/kyt/internal/risk"
)

// fakeFetcher serves canned TxRecord/AddressMeta from maps, letting each
// test build a small deterministic transaction graph.
type fakeFetcher struct {
	txs   map[string]provider.TxRecord
	metas map[string]provider.AddressMeta
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{txs: map[string]provider.TxRecord{}, metas: map[string]provider.AddressMeta{}}
}

func (f *fakeFetcher) GetTransaction(ctx context.Context, chainID, txID string) (provider.TxRecord, error) {
	rec, ok := f.txs[txID]
	if !ok {
		return provider.TxRecord{}, &provider.Error{Kind: provider.ErrTxNotFound}
	}
	return rec, nil
}

func (f *fakeFetcher) GetAddressMeta(ctx context.Context, chainID, address string) (provider.AddressMeta, error) {
	meta, ok := f.metas[address]
	if !ok {
		return provider.AddressMeta{Address: address}, nil
	}
	return meta, nil
}

func TestTracer_TerminalNodeAtDepthOne(t *testing.T) {
	f := newFakeFetcher()
	f.txs["root"] = provider.TxRecord{ID: "root", Family: chain.FamilyAccount, From: "a1", Value: 1}
	f.metas["a1"] = provider.AddressMeta{Address: "a1"} // no tags, no funding tx

	tr := NewTracer(f, nil, nil)
	res, err := tr.Trace(context.Background(), "ethereum", "root", Options{Depth: 3, FetchParallelism: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, res.NodesVisited)
	assert.Equal(t, 1, res.UnflaggedCount)
	assert.Empty(t, res.Flagged)
}

func TestTracer_FlagsMixerAtDistanceOne(t *testing.T) {
	f := newFakeFetcher()
	f.txs["root"] = provider.TxRecord{ID: "root", Family: chain.FamilyAccount, From: "mixer1", Value: 1}
	f.metas["mixer1"] = provider.AddressMeta{Address: "mixer1", Tags: []risk.Tag{risk.TagMixer}}

	tr := NewTracer(f, nil, nil)
	res, err := tr.Trace(context.Background(), "ethereum", "root", Options{Depth: 3, FetchParallelism: 2})
	require.NoError(t, err)
	require.Len(t, res.Flagged, 1)
	assert.Equal(t, risk.TagMixer, res.Flagged[0].Tag)
	assert.Equal(t, 1, res.Flagged[0].Distance)
}

func TestTracer_FollowsFundingChainToDepth(t *testing.T) {
	f := newFakeFetcher()
	f.txs["root"] = provider.TxRecord{ID: "root", Family: chain.FamilyAccount, From: "a1", Value: 1}
	f.metas["a1"] = provider.AddressMeta{Address: "a1", FundingTx: "parent"}
	f.txs["parent"] = provider.TxRecord{ID: "parent", Family: chain.FamilyAccount, From: "mixer1", Value: 1}
	f.metas["mixer1"] = provider.AddressMeta{Address: "mixer1", Tags: []risk.Tag{risk.TagMixer}}

	tr := NewTracer(f, nil, nil)
	res, err := tr.Trace(context.Background(), "ethereum", "root", Options{Depth: 3, FetchParallelism: 2})
	require.NoError(t, err)
	require.Len(t, res.Flagged, 1)
	assert.Equal(t, 2, res.Flagged[0].Distance)
}

func TestTracer_DepthBoundStopsExpansion(t *testing.T) {
	f := newFakeFetcher()
	f.txs["root"] = provider.TxRecord{ID: "root", Family: chain.FamilyAccount, From: "a1", Value: 1}
	f.metas["a1"] = provider.AddressMeta{Address: "a1", FundingTx: "parent"}
	f.txs["parent"] = provider.TxRecord{ID: "parent", Family: chain.FamilyAccount, From: "mixer1", Value: 1}
	f.metas["mixer1"] = provider.AddressMeta{Address: "mixer1", Tags: []risk.Tag{risk.TagMixer}}

	tr := NewTracer(f, nil, nil)
	res, err := tr.Trace(context.Background(), "ethereum", "root", Options{Depth: 1, FetchParallelism: 2})
	require.NoError(t, err)
	assert.Empty(t, res.Flagged, "mixer is at distance 2, beyond depth 1")
	assert.Equal(t, 1, res.MaxDepthReached)
}

func TestTracer_CircularFundingDetected(t *testing.T) {
	f := newFakeFetcher()
	f.txs["root"] = provider.TxRecord{ID: "root", Family: chain.FamilyAccount, From: "a1", Value: 1}
	f.metas["a1"] = provider.AddressMeta{Address: "a1", FundingTx: "root"} // cycles back to root tx

	tr := NewTracer(f, nil, nil)
	res, err := tr.Trace(context.Background(), "ethereum", "root", Options{Depth: 5, FetchParallelism: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, res.CircularPaths)
}

func TestTracer_MergesContributionOnDiamondRevisit(t *testing.T) {
	// root is funded by a1 and a2, which both in turn are funded by the
	// same mixer1 address at distance 2 — a diamond. The second arrival
	// at mixer1 must merge into the first rather than drop or duplicate.
	f := newFakeFetcher()
	f.txs["root"] = provider.TxRecord{
		Family: chain.FamilyAccount,
		Internal: []provider.InternalTransfer{
			{From: "a1", Value: 1},
			{From: "a2", Value: 2},
		},
	}
	f.metas["a1"] = provider.AddressMeta{Address: "a1", FundingTx: "fund1"}
	f.metas["a2"] = provider.AddressMeta{Address: "a2", FundingTx: "fund2"}
	f.txs["fund1"] = provider.TxRecord{ID: "fund1", Family: chain.FamilyAccount, From: "mixer1", Value: 5}
	f.txs["fund2"] = provider.TxRecord{ID: "fund2", Family: chain.FamilyAccount, From: "mixer1", Value: 7}
	f.metas["mixer1"] = provider.AddressMeta{Address: "mixer1", Tags: []risk.Tag{risk.TagMixer}}

	tr := NewTracer(f, nil, nil)
	res, err := tr.Trace(context.Background(), "ethereum", "root", Options{Depth: 3, FetchParallelism: 2})
	require.NoError(t, err)

	require.Len(t, res.Flagged, 1, "mixer1 must appear exactly once despite two arrivals")
	assert.Equal(t, float64(12), res.Flagged[0].Contribution, "contributions from both branches must be summed")
	assert.Equal(t, 1, res.CircularPaths)
}

func TestTracer_PicksSingleBestTagWhenAddressCarriesMultiple(t *testing.T) {
	f := newFakeFetcher()
	f.txs["root"] = provider.TxRecord{ID: "root", Family: chain.FamilyAccount, From: "a1", Value: 1}
	f.metas["a1"] = provider.AddressMeta{
		Address: "a1",
		Tags:    []risk.Tag{risk.TagGambling, risk.TagSanctioned, risk.TagMixer},
	}

	tr := NewTracer(f, nil, nil)
	res, err := tr.Trace(context.Background(), "ethereum", "root", Options{Depth: 3, FetchParallelism: 2})
	require.NoError(t, err)

	require.Len(t, res.Flagged, 1, "only one FlaggedEntity per address, even with multiple definitive tags")
	assert.Equal(t, risk.TagMixer, res.Flagged[0].Tag, "MIXER and SANCTIONED tie at weight 1.0; MIXER wins alphabetically")
}

func TestTracer_DegradesOnUnreachableFundingTx(t *testing.T) {
	f := newFakeFetcher()
	f.txs["root"] = provider.TxRecord{ID: "root", Family: chain.FamilyAccount, From: "a1", Value: 1}
	f.metas["a1"] = provider.AddressMeta{Address: "a1", FundingTx: "missing"}

	tr := NewTracer(f, nil, nil)
	res, err := tr.Trace(context.Background(), "ethereum", "root", Options{Depth: 3, FetchParallelism: 2})
	require.NoError(t, err)
	require.Len(t, res.Degraded, 1)
	assert.Equal(t, 1, res.TerminalNodes)
}
