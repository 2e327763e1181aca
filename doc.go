// Package syncache is a client-side cache and remote-call synchronization
// engine. It sits between application logic and a remote data service,
// providing memory-resident caching with TTL expiry and per-namespace LRU
// eviction, deduplication of concurrent identical calls, optimistic local
// mutation with rollback, and invalidation cascades across related
// namespaces.
//
// # Engine
//
// An [Engine] is constructed explicitly and shared by reference; there is no
// package-level singleton. All cache state is owned by the Engine and
// mutated only through its methods.
//
//	table, err := policy.NewTable(
//	    policy.Policy{Prefix: "book", TTL: 10 * time.Minute, MaxSize: 50, Durable: true},
//	    policy.Policy{Prefix: "chapter", TTL: 5 * time.Minute, Invalidates: []string{"book"}},
//	)
//	if err != nil {
//	    return err
//	}
//	engine := syncache.New(ctx, table)
//	defer engine.Close()
//
// Policy tables can also be loaded from YAML with [policy.LoadFile].
//
// # Reading
//
// [Engine.Read] is a read-through lookup: a live cached entry is returned
// immediately; on a miss the loader runs through the call coalescer, so any
// number of concurrent reads of the same missing key share one loader
// execution and one write-back.
//
//	val, err := engine.Read(ctx, "book:42", func(ctx context.Context) (any, error) {
//	    return client.FetchBook(ctx, 42)
//	})
//
// The generic [Read] adds type safety in the style of a typed cache-aside
// helper, converting values that round-tripped through the blob store back
// to their concrete type.
//
// # Mutating
//
// [Engine.Mutate] writes a speculative patched value immediately (bounded by
// a short TTL), runs the remote mutation, then either overwrites with the
// confirmed result and cascades invalidation to dependent namespaces, or
// rolls the entry back to its exact pre-mutation state. Readers overlapping
// a mutation see either the old or the speculative value, never a torn one.
//
// # Namespaces
//
// Every key belongs to one namespace — the configured prefix that matches
// it, or the segment before the first ":" for unmatched keys, which receive
// a built-in default policy (5 minute TTL, 100 entries, not durable). A
// namespace's MaxSize is enforced synchronously at write time: a Put that
// overflows the namespace evicts its least recently used entries before
// returning.
//
// # Durability
//
// Namespaces marked Durable are written through to a [persist.BlobStore]
// ([persist.NewSQLite] or [persist.NewRedis]) on every confirmed write and
// reloaded at construction. Persistence is best-effort: failures are logged
// and never surface to the operation that triggered them, and entries that
// expired while the process was down are discarded at load.
//
// # Errors
//
// The only error crossing the public surface is [RemoteCallError], wrapping
// loader and mutation failures including timeouts. Policy misconfiguration
// fails at construction; internal bookkeeping does not produce runtime
// error paths.
package syncache
