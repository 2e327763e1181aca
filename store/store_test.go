package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftkit/syncache/logger"
	"github.com/draftkit/syncache/policy"
)

func newTestStore(t *testing.T, policies ...policy.Policy) *Store {
	t.Helper()
	table, err := policy.NewTable(policies...)
	require.NoError(t, err)
	s := New(context.Background(), table,
		WithSweepInterval(time.Minute),
		WithLogger(logger.NewTestLogger()),
	)
	t.Cleanup(s.Close)
	return s
}

func TestGetPut(t *testing.T) {
	s := newTestStore(t, policy.Policy{Prefix: "item", TTL: time.Minute, MaxSize: 10})

	_, ok := s.Get("item:1")
	assert.False(t, ok)

	s.Put("item:1", "A", 0)
	entry, ok := s.Get("item:1")
	assert.True(t, ok)
	assert.Equal(t, "A", entry.Value)
	assert.Equal(t, time.Minute, entry.TTL)
	assert.Equal(t, int64(2), entry.AccessCount) // 1 from Put, 1 from Get

	// overwrite resets bookkeeping
	s.Put("item:1", "B", 0)
	entry, ok = s.Get("item:1")
	assert.True(t, ok)
	assert.Equal(t, "B", entry.Value)
	assert.Equal(t, int64(2), entry.AccessCount)
}

func TestLazyExpiry(t *testing.T) {
	s := newTestStore(t, policy.Policy{Prefix: "item", TTL: time.Minute, MaxSize: 10})

	s.Put("item:1", "A", 10*time.Millisecond)
	_, ok := s.Get("item:1")
	assert.True(t, ok)

	time.Sleep(11 * time.Millisecond)
	_, ok = s.Get("item:1")
	assert.False(t, ok)
	// the stale entry was physically removed, not just hidden
	assert.Equal(t, 0, s.Len())
}

func TestLRUBound(t *testing.T) {
	s := newTestStore(t, policy.Policy{Prefix: "item", TTL: time.Second, MaxSize: 2})

	assert.Empty(t, s.Put("item:1", "A", 0))
	assert.Empty(t, s.Put("item:2", "B", 0))
	evicted := s.Put("item:3", "C", 0)
	assert.Equal(t, []string{"item:1"}, evicted)

	_, ok := s.Get("item:1")
	assert.False(t, ok)
	entry, ok := s.Get("item:2")
	assert.True(t, ok)
	assert.Equal(t, "B", entry.Value)
	entry, ok = s.Get("item:3")
	assert.True(t, ok)
	assert.Equal(t, "C", entry.Value)
}

func TestLRUEvictsLeastRecentlyTouched(t *testing.T) {
	s := newTestStore(t, policy.Policy{Prefix: "item", TTL: time.Minute, MaxSize: 2})

	s.Put("item:1", "A", 0)
	s.Put("item:2", "B", 0)
	// touching item:1 makes item:2 the eviction candidate
	_, ok := s.Get("item:1")
	require.True(t, ok)

	evicted := s.Put("item:3", "C", 0)
	assert.Equal(t, []string{"item:2"}, evicted)
	_, ok = s.Get("item:1")
	assert.True(t, ok)
}

func TestEvictionIsPerNamespace(t *testing.T) {
	s := newTestStore(t,
		policy.Policy{Prefix: "item", TTL: time.Minute, MaxSize: 1},
		policy.Policy{Prefix: "other", TTL: time.Minute, MaxSize: 10},
	)

	s.Put("item:1", "A", 0)
	s.Put("other:1", "X", 0)
	evicted := s.Put("item:2", "B", 0)
	assert.Equal(t, []string{"item:1"}, evicted)

	// the other namespace is untouched
	_, ok := s.Get("other:1")
	assert.True(t, ok)
}

func TestPeekDoesNotTouch(t *testing.T) {
	s := newTestStore(t, policy.Policy{Prefix: "item", TTL: time.Minute, MaxSize: 2})

	s.Put("item:1", "A", 0)
	s.Put("item:2", "B", 0)

	// Peek must not promote item:1, so it is still evicted first
	entry, ok := s.Peek("item:1")
	require.True(t, ok)
	assert.Equal(t, int64(1), entry.AccessCount)

	evicted := s.Put("item:3", "C", 0)
	assert.Equal(t, []string{"item:1"}, evicted)
}

func TestRestorePreservesEntry(t *testing.T) {
	s := newTestStore(t, policy.Policy{Prefix: "item", TTL: time.Minute, MaxSize: 10})

	s.Put("item:1", "A", 0)
	for i := 0; i < 3; i++ {
		s.Get("item:1")
	}
	snapshot, ok := s.Peek("item:1")
	require.True(t, ok)

	s.Put("item:1", "speculative", time.Second)
	s.Restore("item:1", snapshot)

	entry, ok := s.Peek("item:1")
	require.True(t, ok)
	assert.Equal(t, snapshot, entry)
}

func TestDeleteNamespace(t *testing.T) {
	s := newTestStore(t, policy.Policy{Prefix: "item", TTL: time.Minute, MaxSize: 10})

	s.Put("item:1", "A", 0)
	s.Put("item:2", "B", 0)
	s.Put("other:1", "X", 0)

	removed := s.DeleteNamespace("item")
	assert.ElementsMatch(t, []string{"item:1", "item:2"}, removed)
	assert.Equal(t, 1, s.Len())

	assert.Nil(t, s.DeleteNamespace("missing"))
}

func TestSweepExpired(t *testing.T) {
	s := newTestStore(t, policy.Policy{Prefix: "item", TTL: time.Minute, MaxSize: 10})

	s.Put("item:1", "A", 5*time.Millisecond)
	s.Put("item:2", "B", time.Minute)
	time.Sleep(6 * time.Millisecond)

	removed := s.SweepExpired()
	assert.Equal(t, []string{"item:1"}, removed)
	assert.Equal(t, 1, s.Len())
}

func TestBackgroundSweep(t *testing.T) {
	table, err := policy.NewTable(policy.Policy{Prefix: "item", TTL: time.Minute, MaxSize: 10})
	require.NoError(t, err)

	var mu sync.Mutex
	var expired []string
	s := New(context.Background(), table,
		WithSweepInterval(20*time.Millisecond),
		WithLogger(logger.NewTestLogger()),
		WithOnExpire(func(keys ...string) {
			mu.Lock()
			expired = append(expired, keys...)
			mu.Unlock()
		}),
	)
	defer s.Close()

	s.Put("item:1", "A", 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, s.Len())
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, expired, "item:1")
}

func TestCounters(t *testing.T) {
	s := newTestStore(t, policy.Policy{Prefix: "item", TTL: time.Minute, MaxSize: 1})

	s.Put("item:1", "A", 0)
	s.Get("item:1")
	s.Get("item:missing")
	s.Put("item:2", "B", 0) // evicts item:1

	hits, misses, evictions, _ := s.Counters()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
	assert.Equal(t, uint64(1), evictions)
}

func TestEntriesSkipsStale(t *testing.T) {
	s := newTestStore(t, policy.Policy{Prefix: "item", TTL: time.Minute, MaxSize: 10})

	s.Put("item:1", "A", 5*time.Millisecond)
	s.Put("item:2", "B", time.Minute)
	time.Sleep(6 * time.Millisecond)

	entries := s.Entries()
	assert.Len(t, entries, 1)
	assert.Contains(t, entries, "item:2")
}
