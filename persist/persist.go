package persist

import (
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/draftkit/syncache/logger"
	"github.com/draftkit/syncache/store"
)

// BlobStore is the durable key-value storage the adapter writes through to.
// Implementations provide no transactional guarantees; the in-memory cache
// remains the source of truth for a process's lifetime.
type BlobStore interface {
	// ReadAll returns every stored blob keyed by cache key.
	ReadAll(ctx context.Context) (map[string][]byte, error)
	// Write stores a blob under key, replacing any previous blob.
	Write(ctx context.Context, key string, blob []byte) error
	// Delete removes the blob for key. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, key string) error
	// Close releases the underlying storage.
	Close() error
}

// record is the msgpack wire form of a persisted entry.
type record struct {
	Value          any   `msgpack:"v"`
	CreatedAt      int64 `msgpack:"c"`
	TTL            int64 `msgpack:"t"`
	AccessCount    int64 `msgpack:"a"`
	LastAccessedAt int64 `msgpack:"l"`
}

// KeyedEntry pairs a cache key with its decoded entry.
type KeyedEntry struct {
	Key   string
	Entry store.Entry
}

// Adapter snapshots durable cache entries to a BlobStore. Every method is
// best-effort: failures are logged and swallowed so persistence can never
// fail the in-memory operation that triggered it.
type Adapter struct {
	blobs BlobStore
	log   logger.Logger
}

// NewAdapter returns an Adapter writing through to the given store.
func NewAdapter(blobs BlobStore, log logger.Logger) *Adapter {
	return &Adapter{blobs: blobs, log: log.WithPrefix("[persist]")}
}

// LoadAll reads every persisted entry, discarding blobs that fail to decode
// and entries already past their TTL.
func (a *Adapter) LoadAll(ctx context.Context) []KeyedEntry {
	blobs, err := a.blobs.ReadAll(ctx)
	if err != nil {
		a.log.Warn("load failed: %s", err)
		return nil
	}
	now := time.Now()
	out := make([]KeyedEntry, 0, len(blobs))
	for key, blob := range blobs {
		var rec record
		if err := msgpack.Unmarshal(blob, &rec); err != nil {
			a.log.Warn("discarding undecodable entry %s: %s", key, err)
			continue
		}
		entry := store.Entry{
			Value:          rec.Value,
			CreatedAt:      time.Unix(0, rec.CreatedAt),
			TTL:            time.Duration(rec.TTL),
			AccessCount:    rec.AccessCount,
			LastAccessedAt: time.Unix(0, rec.LastAccessedAt),
		}
		if entry.Expired(now) {
			continue
		}
		out = append(out, KeyedEntry{Key: key, Entry: entry})
	}
	return out
}

// Save writes one entry through to the blob store.
func (a *Adapter) Save(ctx context.Context, key string, entry store.Entry) {
	blob, err := msgpack.Marshal(record{
		Value:          entry.Value,
		CreatedAt:      entry.CreatedAt.UnixNano(),
		TTL:            int64(entry.TTL),
		AccessCount:    entry.AccessCount,
		LastAccessedAt: entry.LastAccessedAt.UnixNano(),
	})
	if err != nil {
		a.log.Warn("cannot encode %s: %s", key, err)
		return
	}
	if err := a.blobs.Write(ctx, key, blob); err != nil {
		a.log.Warn("write failed for %s: %s", key, err)
	}
}

// SaveAll writes every given entry, typically at graceful shutdown to catch
// any incremental saves that were reordered or dropped.
func (a *Adapter) SaveAll(ctx context.Context, entries map[string]store.Entry) {
	for key, entry := range entries {
		a.Save(ctx, key, entry)
	}
}

// Remove deletes the persisted blob for key.
func (a *Adapter) Remove(ctx context.Context, key string) {
	if err := a.blobs.Delete(ctx, key); err != nil {
		a.log.Warn("delete failed for %s: %s", key, err)
	}
}

// Close closes the underlying blob store.
func (a *Adapter) Close() error {
	return a.blobs.Close()
}
