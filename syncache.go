package syncache

import (
	"context"
	"sync"
	"time"

	"github.com/draftkit/syncache/coalesce"
	"github.com/draftkit/syncache/logger"
	"github.com/draftkit/syncache/persist"
	"github.com/draftkit/syncache/policy"
	"github.com/draftkit/syncache/store"
)

// DefaultCallTimeout bounds every loader and remote mutation unless
// overridden with WithCallTimeout.
const DefaultCallTimeout = 5 * time.Second

// DefaultSpeculativeTTL bounds how long an unconfirmed optimistic value can
// be mistaken for a confirmed one if the process dies mid-mutation.
const DefaultSpeculativeTTL = 5 * time.Second

type config struct {
	log            logger.Logger
	callTimeout    time.Duration
	speculativeTTL time.Duration
	sweepInterval  time.Duration
	blobs          persist.BlobStore
}

// Option configures an Engine.
type Option func(*config)

// WithLogger sets the logger. Defaults to a console logger at the level
// named by the SYNCACHE_LOG_LEVEL environment variable.
func WithLogger(l logger.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithCallTimeout bounds every loader and remote mutation. Defaults to
// DefaultCallTimeout (5 seconds).
func WithCallTimeout(d time.Duration) Option {
	return func(c *config) { c.callTimeout = d }
}

// WithSpeculativeTTL sets the TTL of optimistic values written by Mutate
// before the remote call confirms. Defaults to DefaultSpeculativeTTL
// (5 seconds).
func WithSpeculativeTTL(d time.Duration) Option {
	return func(c *config) { c.speculativeTTL = d }
}

// WithSweepInterval sets the interval for background expired entry cleanup.
// Defaults to 1 minute.
func WithSweepInterval(d time.Duration) Option {
	return func(c *config) { c.sweepInterval = d }
}

// WithBlobStore enables persistence of durable namespaces through the given
// store. Entries are loaded once at construction and written through on
// every confirmed mutation; all persistence failures are logged and
// swallowed.
func WithBlobStore(bs persist.BlobStore) Option {
	return func(c *config) { c.blobs = bs }
}

// Engine is the synchronization layer combining cache lookup, coalesced
// remote invocation, optimistic mutation and invalidation cascades. All
// consumers share one explicitly constructed Engine; no other component
// writes to the underlying tables.
type Engine struct {
	ctx     context.Context
	cancel  context.CancelFunc
	table   *policy.Table
	store   *store.Store
	calls   *coalesce.Group
	adapter *persist.Adapter
	log     logger.Logger
	specTTL time.Duration
	timeout time.Duration
	once    sync.Once
}

// New returns an Engine governed by the given policy table. If a blob store
// is configured, previously persisted entries are loaded before New returns
// (already-stale entries are discarded). Panics if table is nil; policy
// validation itself happens in policy.NewTable.
func New(parent context.Context, table *policy.Table, opts ...Option) *Engine {
	if table == nil {
		panic("syncache: New requires a policy table")
	}
	cfg := config{
		callTimeout:    DefaultCallTimeout,
		speculativeTTL: DefaultSpeculativeTTL,
		sweepInterval:  time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.NewConsole(logger.GetLevelFromEnv())
	}
	ctx, cancel := context.WithCancel(parent)
	e := &Engine{
		ctx:     ctx,
		cancel:  cancel,
		table:   table,
		calls:   coalesce.NewGroup(cfg.callTimeout),
		log:     cfg.log,
		specTTL: cfg.speculativeTTL,
		timeout: cfg.callTimeout,
	}
	if cfg.blobs != nil {
		e.adapter = persist.NewAdapter(cfg.blobs, cfg.log)
	}
	e.store = store.New(ctx, table,
		store.WithSweepInterval(cfg.sweepInterval),
		store.WithLogger(cfg.log),
		store.WithOnExpire(func(keys ...string) {
			e.removeDurable(ctx, keys...)
		}),
	)
	if e.adapter != nil {
		for _, ke := range e.adapter.LoadAll(ctx) {
			e.store.Restore(ke.Key, ke.Entry)
		}
	}
	return e
}

// writeBack stores a confirmed value through the policy table and persists
// it when the namespace is durable. ttl <= 0 means the namespace TTL. The
// value is cloned on the way in so the loader or mutation that produced it
// cannot reach cache storage through a retained reference.
func (e *Engine) writeBack(ctx context.Context, key string, value any, ttl time.Duration) {
	pol, _ := e.table.Resolve(key)
	if ttl <= 0 {
		ttl = pol.TTL
	}
	evicted := e.store.Put(key, cloneValue(value), ttl)
	if e.adapter == nil {
		return
	}
	if pol.Durable {
		if entry, ok := e.store.Peek(key); ok {
			e.adapter.Save(ctx, key, entry)
		}
	}
	e.removeDurable(ctx, evicted...)
}

// removeDurable drops persisted blobs for any of the given keys that live
// in a durable namespace.
func (e *Engine) removeDurable(ctx context.Context, keys ...string) {
	if e.adapter == nil {
		return
	}
	for _, key := range keys {
		if pol, _ := e.table.Resolve(key); pol.Durable {
			e.adapter.Remove(ctx, key)
		}
	}
}

// Invalidate removes the given keys from the cache (and from the blob store
// for durable namespaces). Any in-flight coalesced read of an invalidated
// key is forgotten as well, so a read issued after Invalidate loads fresh
// data rather than joining a flight started before it.
func (e *Engine) Invalidate(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if e.store.Delete(key) {
			e.removeDurable(ctx, key)
		}
		e.calls.Forget(key)
	}
}

// InvalidatePrefix removes every entry in the given namespace. Unlike a
// full-cache clear, entries in unrelated namespaces stay warm.
func (e *Engine) InvalidatePrefix(ctx context.Context, ns string) {
	removed := e.store.DeleteNamespace(ns)
	if len(removed) > 0 {
		e.log.Debug("invalidated %d entries in namespace %s", len(removed), ns)
		e.removeDurable(ctx, removed...)
	}
}

// Close stops background work and snapshots every durable entry to the blob
// store. Safe to call more than once.
func (e *Engine) Close() error {
	var err error
	e.once.Do(func() {
		e.store.Close()
		if e.adapter != nil {
			durable := make(map[string]store.Entry)
			for key, entry := range e.store.Entries() {
				if pol, _ := e.table.Resolve(key); pol.Durable {
					durable[key] = entry
				}
			}
			// final unconditional snapshot to catch any incremental
			// saves that raced shutdown
			e.adapter.SaveAll(context.WithoutCancel(e.ctx), durable)
			err = e.adapter.Close()
		}
		e.cancel()
	})
	return err
}
