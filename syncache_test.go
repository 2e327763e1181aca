package syncache

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftkit/syncache/logger"
	"github.com/draftkit/syncache/persist"
	"github.com/draftkit/syncache/policy"
)

func newEngine(t *testing.T, policies []policy.Policy, opts ...Option) *Engine {
	t.Helper()
	table, err := policy.NewTable(policies...)
	require.NoError(t, err)
	e := New(context.Background(), table, append([]Option{WithLogger(logger.NewTestLogger())}, opts...)...)
	t.Cleanup(func() { e.Close() })
	return e
}

func staticLoader(val any) Loader {
	return func(ctx context.Context) (any, error) { return val, nil }
}

func forbiddenLoader(t *testing.T) Loader {
	return func(ctx context.Context) (any, error) {
		t.Error("loader must not run")
		return nil, nil
	}
}

func TestNewPanicsWithoutTable(t *testing.T) {
	assert.Panics(t, func() { New(context.Background(), nil) })
}

func TestInvalidate(t *testing.T) {
	e := newEngine(t, []policy.Policy{{Prefix: "item", TTL: time.Minute, MaxSize: 10}})
	ctx := context.Background()

	_, err := e.Read(ctx, "item:1", staticLoader("A"))
	require.NoError(t, err)
	_, err = e.Read(ctx, "item:2", staticLoader("B"))
	require.NoError(t, err)

	e.Invalidate(ctx, "item:1", "item:missing")

	_, ok := e.store.Peek("item:1")
	assert.False(t, ok)
	_, ok = e.store.Peek("item:2")
	assert.True(t, ok)
}

func TestInvalidateDropsInFlightRead(t *testing.T) {
	e := newEngine(t, []policy.Policy{{Prefix: "item", TTL: time.Minute, MaxSize: 10}})
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := e.Read(ctx, "item:1", func(ctx context.Context) (any, error) {
			calls.Add(1)
			close(started)
			<-release
			return "stale", nil
		})
		assert.NoError(t, err)
	}()

	<-started
	e.Invalidate(ctx, "item:1")

	// a read issued after the invalidation loads fresh data instead of
	// joining the flight that started before it
	val, err := e.Read(ctx, "item:1", func(ctx context.Context) (any, error) {
		calls.Add(1)
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", val)
	assert.Equal(t, int32(2), calls.Load())

	close(release)
	wg.Wait()
}

func TestInvalidatePrefixLeavesOtherNamespacesWarm(t *testing.T) {
	e := newEngine(t, []policy.Policy{
		{Prefix: "item", TTL: time.Minute, MaxSize: 10},
		{Prefix: "other", TTL: time.Minute, MaxSize: 10},
	})
	ctx := context.Background()

	_, err := e.Read(ctx, "item:1", staticLoader("A"))
	require.NoError(t, err)
	_, err = e.Read(ctx, "other:1", staticLoader("X"))
	require.NoError(t, err)

	e.InvalidatePrefix(ctx, "item")

	_, ok := e.store.Peek("item:1")
	assert.False(t, ok)
	_, ok = e.store.Peek("other:1")
	assert.True(t, ok)
}

func TestDurableEntriesSurviveRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "snapshot.db")
	policies := []policy.Policy{{Prefix: "book", TTL: time.Hour, MaxSize: 10, Durable: true}}
	ctx := context.Background()

	blobs, err := persist.NewSQLite(dbPath)
	require.NoError(t, err)
	e := newEngine(t, policies, WithBlobStore(blobs))
	_, err = e.Read(ctx, "book:1", staticLoader(map[string]any{"title": "old"}))
	require.NoError(t, err)
	require.NoError(t, e.Close())

	blobs, err = persist.NewSQLite(dbPath)
	require.NoError(t, err)
	e2 := newEngine(t, policies, WithBlobStore(blobs))

	val, err := e2.Read(ctx, "book:1", forbiddenLoader(t))
	require.NoError(t, err)
	m, ok := val.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "old", m["title"])
}

func TestInvalidateRemovesDurableBlob(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "snapshot.db")
	policies := []policy.Policy{{Prefix: "book", TTL: time.Hour, MaxSize: 10, Durable: true}}
	ctx := context.Background()

	blobs, err := persist.NewSQLite(dbPath)
	require.NoError(t, err)
	e := newEngine(t, policies, WithBlobStore(blobs))
	_, err = e.Read(ctx, "book:1", staticLoader("A"))
	require.NoError(t, err)
	e.Invalidate(ctx, "book:1")
	require.NoError(t, e.Close())

	blobs, err = persist.NewSQLite(dbPath)
	require.NoError(t, err)
	e2 := newEngine(t, policies, WithBlobStore(blobs))

	var calls int
	_, err = e2.Read(ctx, "book:1", func(ctx context.Context) (any, error) {
		calls++
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestCloseIsIdempotent(t *testing.T) {
	e := newEngine(t, []policy.Policy{{Prefix: "item", TTL: time.Minute}})
	assert.NoError(t, e.Close())
	assert.NoError(t, e.Close())
}
