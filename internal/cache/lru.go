package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUStore is a bounded in-memory persistent tier, for deployments
// without an external cache backend (spec.md §4.3 "persistent backend
// ... MAY be in-process, bounded by size"). Grounded on the teacher's
// MemoryTxStore (src/chainadapter/storage/memory.go), replacing its
// unbounded map with hashicorp/golang-lru so the tier actually bounds
// memory the way spec.md requires.
type LRUStore struct {
	cache *lru.Cache[string, Entry]
	ttl   time.Duration // 0 disables TTL eviction
}

// NewLRUStore builds a store capped at size entries, additionally
// expiring entries older than ttl on read (ttl <= 0 disables expiry).
func NewLRUStore(size int, ttl time.Duration) (*LRUStore, error) {
	c, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, err
	}
	return &LRUStore{cache: c, ttl: ttl}, nil
}

func (s *LRUStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	entry, ok := s.cache.Get(key)
	if !ok {
		return Entry{}, false, nil
	}
	if s.ttl > 0 && time.Since(entry.WrittenAt) > s.ttl {
		s.cache.Remove(key)
		return Entry{}, false, nil
	}
	return entry, true, nil
}

func (s *LRUStore) Put(ctx context.Context, key string, entry Entry) error {
	s.cache.Add(key, entry)
	return nil
}

func (s *LRUStore) Ping(ctx context.Context) error { return nil }

func (s *LRUStore) Close() error { return nil }
