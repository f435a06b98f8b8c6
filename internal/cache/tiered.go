package cache

import (
	"context"
	"time"
)

// Tiered composes the in-process Memo with a persistent Store, giving
// the Tracer the two-tier lookup path of spec.md §4.3: check memo, then
// persistent, populating the memo on a persistent hit and both tiers on
// a Put after a fresh fetch.
// One Tiered is built per analysis run since Memo is scoped that way;
// Store is shared across runs.
type Tiered struct {
	memo  *Memo
	store Store
}

// NewTiered builds a per-analysis cache in front of the shared
// persistent store.
func NewTiered(store Store) *Tiered {
	return &Tiered{memo: NewMemo(), store: store}
}

// Get checks the memo first, then the persistent store, populating the
// memo on a persistent hit so later lookups in the same run skip the
// store entirely.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, ok := t.memo.Get(key); ok {
		return v, true, nil
	}

	entry, ok, err := t.store.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	t.memo.Put(key, entry.Value)
	return entry.Value, true, nil
}

// Put writes through both tiers (spec.md §4.3 "writes populate both
// tiers"). writtenAt is supplied by the caller rather than computed here,
// so Tiered itself never reads the clock, keeping BFS timing
// deterministic in tests.
func (t *Tiered) Put(ctx context.Context, key string, value []byte, writtenAt time.Time) error {
	t.memo.Put(key, value)
	return t.store.Put(ctx, key, Entry{Value: value, WrittenAt: writtenAt})
}
