package store

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/draftkit/syncache/logger"
	"github.com/draftkit/syncache/policy"
)

// Entry is a single cached value with its expiry and access bookkeeping.
// The Value is stored as-is and shared by reference within this package;
// the engine copies values at its public boundary, so no caller ever holds
// a reference into internal storage.
type Entry struct {
	Value          any
	CreatedAt      time.Time
	TTL            time.Duration
	AccessCount    int64
	LastAccessedAt time.Time
}

// Expired reports whether the entry's TTL has elapsed at the given instant.
func (e Entry) Expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

type record struct {
	entry     Entry
	namespace string
	// position in the namespace recency list; never nil while the record
	// is present in the table
	elem      *list.Element
}

// Store is the in-memory entry table combined with per-namespace LRU
// bookkeeping. Every entry in the table holds exactly one position in its
// namespace's recency list (least recently used at the front), and eviction
// happens synchronously inside Put so a namespace is never observably over
// its configured max size.
type Store struct {
	ctx      context.Context
	cancel   context.CancelFunc
	table    *policy.Table
	log      logger.Logger
	wg       sync.WaitGroup
	once     sync.Once
	onExpire func(keys ...string)

	mu      sync.Mutex
	entries map[string]*record
	recency map[string]*list.List

	hits        uint64
	misses      uint64
	evictions   uint64
	expirations uint64
}

type config struct {
	sweepInterval time.Duration
	log           logger.Logger
	onExpire      func(keys ...string)
}

// Option configures a Store.
type Option func(*config)

// WithSweepInterval sets the interval for background expired entry cleanup.
// Defaults to 1 minute.
func WithSweepInterval(d time.Duration) Option {
	return func(c *config) { c.sweepInterval = d }
}

// WithLogger sets the logger used for eviction and sweep diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithOnExpire registers a callback invoked with the keys removed by lazy
// expiry or the background sweep. It runs outside the store lock.
func WithOnExpire(fn func(keys ...string)) Option {
	return func(c *config) { c.onExpire = fn }
}

// New returns a Store governed by the given policy table. A background
// goroutine sweeps expired entries until Close is called or the parent
// context is cancelled.
func New(parent context.Context, table *policy.Table, opts ...Option) *Store {
	cfg := config{
		sweepInterval: time.Minute,
		log:           logger.NewConsole(logger.GetLevelFromEnv()),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Store{
		ctx:      ctx,
		cancel:   cancel,
		table:    table,
		log:      cfg.log.WithPrefix("[store]"),
		onExpire: cfg.onExpire,
		entries:  make(map[string]*record),
		recency:  make(map[string]*list.List),
	}
	s.wg.Add(1)
	go s.run(cfg.sweepInterval)
	return s
}

// Get returns the live entry for key, updating its recency position and
// access count. A stale entry is deleted as a side effect and reported as
// absent, so callers never observe a value past its TTL.
func (s *Store) Get(key string) (Entry, bool) {
	now := time.Now()
	s.mu.Lock()
	rec, ok := s.entries[key]
	if !ok {
		s.misses++
		s.mu.Unlock()
		return Entry{}, false
	}
	if rec.entry.Expired(now) {
		s.removeLocked(key, rec)
		s.misses++
		s.expirations++
		s.mu.Unlock()
		if s.onExpire != nil {
			s.onExpire(key)
		}
		return Entry{}, false
	}
	rec.entry.AccessCount++
	rec.entry.LastAccessedAt = now
	s.recency[rec.namespace].MoveToBack(rec.elem)
	s.hits++
	entry := rec.entry
	s.mu.Unlock()
	return entry, true
}

// Peek returns the live entry for key without touching its recency position
// or access count. Stale entries are still removed and reported as absent.
func (s *Store) Peek(key string) (Entry, bool) {
	s.mu.Lock()
	rec, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return Entry{}, false
	}
	if rec.entry.Expired(time.Now()) {
		s.removeLocked(key, rec)
		s.expirations++
		s.mu.Unlock()
		if s.onExpire != nil {
			s.onExpire(key)
		}
		return Entry{}, false
	}
	entry := rec.entry
	s.mu.Unlock()
	return entry, true
}

// Put stores value under key with the given TTL, overwriting any existing
// entry and resetting its bookkeeping. If the write pushes the namespace
// over its configured max size, least recently used entries are evicted
// before Put returns; the evicted keys are returned to the caller.
func (s *Store) Put(key string, value any, ttl time.Duration) []string {
	now := time.Now()
	pol, ns := s.table.Resolve(key)
	if ttl <= 0 {
		ttl = pol.TTL
	}
	s.mu.Lock()
	s.putLocked(key, ns, Entry{
		Value:          value,
		CreatedAt:      now,
		TTL:            ttl,
		AccessCount:    1,
		LastAccessedAt: now,
	})
	evicted := s.evictLocked(ns, pol.MaxSize)
	s.mu.Unlock()
	for _, k := range evicted {
		s.log.Debug("evicted %s (namespace %s over %d entries)", k, ns, pol.MaxSize)
	}
	return evicted
}

// Restore reinstalls an entry exactly as given, preserving its creation
// time, TTL and access statistics. Used to roll a key back to its
// pre-mutation state and to load persisted entries at startup.
func (s *Store) Restore(key string, entry Entry) []string {
	pol, ns := s.table.Resolve(key)
	s.mu.Lock()
	s.putLocked(key, ns, entry)
	evicted := s.evictLocked(ns, pol.MaxSize)
	s.mu.Unlock()
	return evicted
}

func (s *Store) putLocked(key, ns string, entry Entry) {
	if rec, ok := s.entries[key]; ok {
		rec.entry = entry
		s.recency[rec.namespace].MoveToBack(rec.elem)
		return
	}
	lru := s.recency[ns]
	if lru == nil {
		lru = list.New()
		s.recency[ns] = lru
	}
	s.entries[key] = &record{
		entry:     entry,
		namespace: ns,
		elem:      lru.PushBack(key),
	}
}

// evictLocked trims the namespace to maxSize entries, least recently used
// first. Same-tick writes evict in insertion order because the list is
// append-only at the back.
func (s *Store) evictLocked(ns string, maxSize int) []string {
	lru := s.recency[ns]
	if lru == nil || maxSize <= 0 {
		return nil
	}
	var evicted []string
	for lru.Len() > maxSize {
		front := lru.Front()
		key := front.Value.(string)
		s.removeLocked(key, s.entries[key])
		s.evictions++
		evicted = append(evicted, key)
	}
	return evicted
}

func (s *Store) removeLocked(key string, rec *record) {
	s.recency[rec.namespace].Remove(rec.elem)
	if s.recency[rec.namespace].Len() == 0 {
		delete(s.recency, rec.namespace)
	}
	delete(s.entries, key)
}

// Delete removes key from the store, reporting whether it was present.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	rec, ok := s.entries[key]
	if ok {
		s.removeLocked(key, rec)
	}
	s.mu.Unlock()
	return ok
}

// DeleteNamespace removes every entry in the given namespace and returns
// the removed keys.
func (s *Store) DeleteNamespace(ns string) []string {
	s.mu.Lock()
	lru := s.recency[ns]
	if lru == nil {
		s.mu.Unlock()
		return nil
	}
	keys := make([]string, 0, lru.Len())
	for elem := lru.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(string))
	}
	for _, key := range keys {
		s.removeLocked(key, s.entries[key])
	}
	s.mu.Unlock()
	return keys
}

// SweepExpired removes every stale entry and returns the removed keys.
func (s *Store) SweepExpired() []string {
	now := time.Now()
	s.mu.Lock()
	var removed []string
	for key, rec := range s.entries {
		if rec.entry.Expired(now) {
			s.removeLocked(key, rec)
			s.expirations++
			removed = append(removed, key)
		}
	}
	s.mu.Unlock()
	return removed
}

// Len returns the number of entries in the table, including any stale
// entries not yet swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Entries returns a snapshot of all live entries.
func (s *Store) Entries() map[string]Entry {
	now := time.Now()
	s.mu.Lock()
	out := make(map[string]Entry, len(s.entries))
	for key, rec := range s.entries {
		if !rec.entry.Expired(now) {
			out[key] = rec.entry
		}
	}
	s.mu.Unlock()
	return out
}

// Counters returns the lifetime hit, miss, eviction and expiration counts.
func (s *Store) Counters() (hits, misses, evictions, expirations uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits, s.misses, s.evictions, s.expirations
}

func (s *Store) run(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			removed := s.SweepExpired()
			if len(removed) > 0 {
				s.log.Trace("swept %d expired entries", len(removed))
				if s.onExpire != nil {
					s.onExpire(removed...)
				}
			}
		}
	}
}

// Close stops the background sweeper. The entry table remains readable.
func (s *Store) Close() {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
}
