package syncache

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"

	"github.com/draftkit/syncache/coalesce"
)

// Loader produces a value from the remote data service. The context it
// receives carries the engine's call timeout.
type Loader func(ctx context.Context) (any, error)

type readConfig struct {
	skipCache   bool
	ttlOverride time.Duration
}

// ReadOption configures a single Read call.
type ReadOption func(*readConfig)

// SkipCache forces the loader to run even when a live entry exists. The
// loaded value still replaces the cached one.
func SkipCache() ReadOption {
	return func(c *readConfig) { c.skipCache = true }
}

// WithTTL overrides the namespace TTL for the value written by this Read.
func WithTTL(d time.Duration) ReadOption {
	return func(c *readConfig) { c.ttlOverride = d }
}

// Read returns the cached value for key, or loads it. Concurrent Reads of
// the same missing key are coalesced: the loader runs exactly once and
// every caller receives the same result or the same error. A successful
// load is written back through the namespace policy before any caller
// resumes; a failed load writes nothing. When coalesced callers pass
// diverging options, the options of the caller whose loader executes govern
// the shared write-back; the joiners' options are not applied.
func (e *Engine) Read(ctx context.Context, key string, loader Loader, opts ...ReadOption) (any, error) {
	var cfg readConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.skipCache {
		if entry, ok := e.store.Get(key); ok {
			return cloneValue(entry.Value), nil
		}
	}
	val, _, err := e.calls.Invoke(ctx, key, func(cctx context.Context) (any, error) {
		loaded, err := loader(cctx)
		if err != nil {
			return nil, err
		}
		if cctx.Err() != nil {
			// the call already timed out; a late result must not be
			// cached behind the failure the callers were handed
			return nil, cctx.Err()
		}
		// write-back happens inside the coalesced execution so that N
		// joined readers produce exactly one Put
		e.writeBack(cctx, key, loaded, cfg.ttlOverride)
		return loaded, nil
	})
	if err != nil {
		return nil, &RemoteCallError{Key: key, Err: err}
	}
	return cloneValue(val), nil
}

// Read is the generic variant of Engine.Read. Values that round-tripped
// through the blob store decode as generic msgpack shapes; this converts
// them back to T the same way they were persisted.
func Read[T any](ctx context.Context, e *Engine, key string, loader func(ctx context.Context) (T, error), opts ...ReadOption) (T, error) {
	val, err := e.Read(ctx, key, func(cctx context.Context) (any, error) {
		return loader(cctx)
	}, opts...)
	if err != nil {
		var zero T
		return zero, err
	}
	return convert[T](val)
}

func convert[T any](val any) (T, error) {
	if typed, ok := val.(T); ok {
		return typed, nil
	}
	var result T
	data, err := msgpack.Marshal(val)
	if err == nil {
		if err = msgpack.Unmarshal(data, &result); err == nil {
			return result, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("syncache: cannot convert value of type %T to %T: %w", val, zero, err)
}

// KeyValue is one BatchGet result.
type KeyValue struct {
	Key   string
	Value any
	Found bool
}

// BatchGet looks up each key locally, in order. No loaders run; absent or
// stale keys report Found=false.
func (e *Engine) BatchGet(keys ...string) []KeyValue {
	out := make([]KeyValue, len(keys))
	for i, key := range keys {
		out[i] = KeyValue{Key: key}
		if entry, ok := e.store.Get(key); ok {
			out[i].Value = cloneValue(entry.Value)
			out[i].Found = true
		}
	}
	return out
}

// PreloadTask names a key to warm, the loader that produces it, and its
// priority. Higher priorities start first.
type PreloadTask struct {
	Key      string
	Loader   Loader
	Priority int
}

const preloadParallelism = 4

// Preload warms the cache with the given tasks in descending priority
// order. Each task's failure is logged and skipped; it never aborts its
// siblings. Loads go through Read, so they coalesce with concurrent
// readers and respect namespace TTLs.
func (e *Engine) Preload(ctx context.Context, tasks ...PreloadTask) {
	ordered := make([]PreloadTask, len(tasks))
	copy(ordered, tasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})
	var g errgroup.Group
	g.SetLimit(preloadParallelism)
	for _, task := range ordered {
		task := task
		g.Go(func() error {
			if _, err := e.Read(ctx, task.Key, task.Loader); err != nil {
				e.log.Warn("preload of %s failed: %s", task.Key, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Call performs an ad-hoc coalesced remote call outside the cache tables.
// Concurrent calls with the same name and logically identical parameters
// (regardless of map ordering) share one execution. Nothing is cached;
// callers wanting caching should use Read.
func (e *Engine) Call(ctx context.Context, name string, params map[string]any, op Loader) (any, error) {
	sig := coalesce.Signature(name, params)
	val, _, err := e.calls.Invoke(ctx, sig, coalesce.Operation(op))
	if err != nil {
		return nil, &RemoteCallError{Key: sig, Err: err}
	}
	return val, nil
}
