// Package trace implements the bounded breadth-first upstream trace of
// spec.md §4.4: starting from one transaction, follow each funding
// source back through prior transactions, one layer per hop, until
// depth is exhausted, a terminal node is hit, a cycle closes, or a
// resource budget (max_addresses_visited / max_api_calls) is spent.
//
// Concurrency within a layer is bounded by fetch_parallelism and built
// on golang.org/x/sync's errgroup+semaphore, the way the rest of the
// retrieved corpus composes bounded worker pools; the teacher itself has
// no analogous fan-out (its RPC calls are single-shot), so this package
// leans on the wider example pack rather than the teacher for that part.
package trace

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/yourusername/kyt/internal/cache"
	"github.com/yourusername/kyt/internal/provider"
	"github.com/yourusername/kyt/internal/risk"
)

// Fetcher is the subset of functionality the Tracer needs from the
// provider layer, satisfied by *provider.Registry or a single
// provider.BlockchainProvider directly.
type Fetcher interface {
	GetTransaction(ctx context.Context, chainID, txID string) (provider.TxRecord, error)
	GetAddressMeta(ctx context.Context, chainID, address string) (provider.AddressMeta, error)
}

// Options configures one Trace call (spec.md §4.4 and §6's
// configuration table).
type Options struct {
	Depth               int
	FetchParallelism    int
	ContributionK       float64
	MaxAddressesVisited int // 0 disables the bound
	MaxAPICalls         int // 0 disables the bound
}

// visitedAddress records the shallowest distance an address was reached
// at and its accumulated contribution, used both for the report and for
// merge-on-revisit (spec.md §4.4 step 5.b.i).
type visitedAddress struct {
	Distance     int
	Contribution float64
	flaggedAt    int // index into Result.Flagged, -1 if not flagged
}

// Result is everything the risk scorer and report builder need out of a
// trace.
type Result struct {
	Flagged         []risk.FlaggedEntity
	UnflaggedCount  int
	CircularPaths   int
	NodesVisited    int
	TerminalNodes   int
	Degraded        []string // human-readable notes on recovered provider failures
	MaxDepthReached int
	APICallsUsed    int
	TransactionsTraced int
}

// Tracer runs the bounded BFS described above.
type Tracer struct {
	fetcher  Fetcher
	cache    *cache.Tiered
	log      *zap.Logger
	apiCalls atomic.Int64
}

// NewTracer builds a Tracer over fetcher, memoizing/persisting fetched
// payloads through c, and logging suspension points (provider calls,
// cache calls) and recovered degradations through log. log may be nil.
func NewTracer(fetcher Fetcher, c *cache.Tiered, log *zap.Logger) *Tracer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracer{fetcher: fetcher, cache: c, log: log}
}

// frontierNode is one address waiting to be expanded into its funding
// transaction at the next BFS layer.
type frontierNode struct {
	Address      string
	Distance     int
	Contribution float64
}

// Trace runs the bounded upstream trace from (chainID, txID) to
// opts.Depth layers, visiting addresses in deterministic order within
// each layer and bounding concurrent provider calls to
// opts.FetchParallelism (spec.md §4.4).
func (t *Tracer) Trace(ctx context.Context, chainID, txID string, opts Options) (Result, error) {
	result := Result{}
	visited := make(map[string]*visitedAddress)
	visitedTx := map[string]bool{txID: true}

	rootRec, err := t.fetchTx(ctx, chainID, txID)
	if err != nil {
		return result, err
	}

	frontier := sourcesToFrontier(rootRec.SourceAddresses(), 1)

	for layer := 1; layer <= opts.Depth && len(frontier) > 0; layer++ {
		if opts.MaxAddressesVisited > 0 && len(visited) >= opts.MaxAddressesVisited {
			t.log.Debug("stopping trace: max_addresses_visited reached", zap.Int("visited", len(visited)))
			break
		}
		if opts.MaxAPICalls > 0 && int(t.apiCalls.Load()) >= opts.MaxAPICalls {
			t.log.Debug("stopping trace: max_api_calls reached", zap.Int64("api_calls_used", t.apiCalls.Load()))
			break
		}

		result.MaxDepthReached = layer

		// Deterministic ordering before expansion (spec.md §4.4
		// "addresses within a layer are processed in a fixed order").
		sort.Slice(frontier, func(i, j int) bool { return frontier[i].Address < frontier[j].Address })

		metas, degraded, err := t.fetchMetasBounded(ctx, chainID, frontier, opts.FetchParallelism)
		if err != nil {
			return result, err
		}
		result.Degraded = append(result.Degraded, degraded...)

		var nextFrontier []frontierNode
		for i, node := range frontier {
			if existing, already := visited[node.Address]; already {
				// Merge, don't re-expand (spec.md §4.4 step 5.b.i,
				// §9's resolved sum-on-merge ambiguity).
				existing.Contribution += node.Contribution
				if existing.flaggedAt >= 0 {
					result.Flagged[existing.flaggedAt].Contribution = existing.Contribution
				}
				result.CircularPaths++
				continue
			}

			entry := &visitedAddress{Distance: node.Distance, Contribution: node.Contribution, flaggedAt: -1}
			visited[node.Address] = entry
			result.NodesVisited++

			meta := metas[i]
			tag, flagged := risk.BestDefinitive(meta.Tags)
			if flagged {
				entry.flaggedAt = len(result.Flagged)
				result.Flagged = append(result.Flagged, risk.FlaggedEntity{
					Address:      node.Address,
					Tag:          tag,
					Distance:     node.Distance,
					Contribution: node.Contribution,
					Label:        meta.Label,
				})
			} else {
				result.UnflaggedCount++
			}

			// A node carrying a definitive tag is terminal: the BFS does
			// not expand past it (spec.md §3 invariants).
			if flagged {
				result.TerminalNodes++
				continue
			}

			if meta.FundingTx == "" {
				result.TerminalNodes++
				continue
			}
			if visitedTx[meta.FundingTx] {
				result.CircularPaths++
				continue
			}
			visitedTx[meta.FundingTx] = true

			rec, err := t.fetchTx(ctx, chainID, meta.FundingTx)
			if err != nil {
				// A single unreachable funding tx degrades that branch
				// rather than failing the whole trace (spec.md §4.4
				// "partial degradation").
				note := "funding tx " + meta.FundingTx + " unreachable: " + err.Error()
				result.Degraded = append(result.Degraded, note)
				t.log.Warn("degraded: funding tx unreachable", zap.String("tx_id", meta.FundingTx), zap.Error(err))
				result.TerminalNodes++
				continue
			}

			for addr, contribution := range rec.SourceAddresses() {
				nextFrontier = append(nextFrontier, frontierNode{
					Address:      addr,
					Distance:     node.Distance + 1,
					Contribution: contribution,
				})
			}
		}

		frontier = nextFrontier
	}

	// Anything still on the frontier when depth/budget is exhausted
	// counts as terminal by truncation, not by the chain actually ending.
	result.TerminalNodes += len(frontier)
	result.APICallsUsed = int(t.apiCalls.Load())
	result.TransactionsTraced = len(visitedTx)

	return result, nil
}

func sourcesToFrontier(sources map[string]float64, distance int) []frontierNode {
	out := make([]frontierNode, 0, len(sources))
	for addr, contribution := range sources {
		if addr == "" {
			continue
		}
		out = append(out, frontierNode{Address: addr, Distance: distance, Contribution: contribution})
	}
	return out
}

func (t *Tracer) fetchTx(ctx context.Context, chainID, txID string) (provider.TxRecord, error) {
	key := "tx:" + chainID + ":" + txID
	if t.cache != nil {
		if raw, ok, _ := t.cache.Get(ctx, key); ok {
			t.log.Debug("cache hit", zap.String("key", key))
			return decodeTx(raw)
		}
	}

	t.log.Debug("provider call: get_transaction", zap.String("chain", chainID), zap.String("tx_id", txID))
	t.apiCalls.Add(1)
	rec, err := t.fetcher.GetTransaction(ctx, chainID, txID)
	if err != nil {
		return provider.TxRecord{}, err
	}

	if t.cache != nil {
		if err := t.cache.Put(ctx, key, encodeTx(rec), time.Now()); err != nil {
			t.log.Warn("cache put failed", zap.String("key", key), zap.Error(err))
		}
	}
	return rec, nil
}

func (t *Tracer) fetchMeta(ctx context.Context, chainID, address string) (provider.AddressMeta, error) {
	key := "addr:" + chainID + ":" + address
	if t.cache != nil {
		if raw, ok, _ := t.cache.Get(ctx, key); ok {
			t.log.Debug("cache hit", zap.String("key", key))
			return decodeMeta(raw)
		}
	}

	t.log.Debug("provider call: get_address_meta", zap.String("chain", chainID), zap.String("address", address))
	t.apiCalls.Add(1)
	meta, err := t.fetcher.GetAddressMeta(ctx, chainID, address)
	if err != nil {
		return provider.AddressMeta{}, err
	}

	if t.cache != nil {
		if err := t.cache.Put(ctx, key, encodeMeta(meta), time.Now()); err != nil {
			t.log.Warn("cache put failed", zap.String("key", key), zap.Error(err))
		}
	}
	return meta, nil
}

// fetchMetasBounded fetches AddressMeta for every node in frontier,
// bounding in-flight calls to parallelism (spec.md §4.4
// "fetch_parallelism"), recovering individual failures into the
// degraded-notes list rather than aborting the whole layer (spec.md §4.4
// "partial degradation": the engine proceeds with what it could fetch
// and records what it could not).
func (t *Tracer) fetchMetasBounded(ctx context.Context, chainID string, frontier []frontierNode, parallelism int) ([]provider.AddressMeta, []string, error) {
	if parallelism <= 0 {
		parallelism = 1
	}

	metas := make([]provider.AddressMeta, len(frontier))

	var mu sync.Mutex
	var degradedNotes []string
	var degradedErr error // aggregated via multierr, for one combined log line

	sem := semaphore.NewWeighted(int64(parallelism))
	g, gctx := errgroup.WithContext(ctx)

	for i, node := range frontier {
		i, node := i, node
		if err := sem.Acquire(gctx, 1); err != nil {
			return nil, nil, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			meta, err := t.fetchMeta(gctx, chainID, node.Address)
			if err != nil {
				note := "address " + node.Address + " unreachable: " + err.Error()
				mu.Lock()
				degradedNotes = append(degradedNotes, note)
				degradedErr = multierr.Append(degradedErr, err)
				mu.Unlock()
				t.log.Warn("degraded: address unreachable", zap.String("address", node.Address), zap.Error(err))
				metas[i] = provider.AddressMeta{Address: node.Address}
				return nil
			}
			metas[i] = meta
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if degradedErr != nil {
		t.log.Debug("layer completed with degraded branches", zap.Int("count", len(multierr.Errors(degradedErr))))
	}

	return metas, degradedNotes, nil
}
