package syncache

import (
	"context"
)

// Patch computes the speculative value shown to readers while the remote
// mutation is in flight. It must not modify current in place; return a new
// value so concurrent readers never observe a half-applied patch.
type Patch func(current any) any

// Mutation performs the remote write and returns the confirmed value. The
// context it receives carries the engine's call timeout.
type Mutation func(ctx context.Context) (any, error)

// MergePatch returns a Patch that shallow-merges fields over a
// map[string]any value, copying the map first. A non-map current value is
// replaced by a copy of fields.
func MergePatch(fields map[string]any) Patch {
	return func(current any) any {
		out := make(map[string]any, len(fields))
		if m, ok := current.(map[string]any); ok {
			out = make(map[string]any, len(m)+len(fields))
			for k, v := range m {
				out[k] = v
			}
		}
		for k, v := range fields {
			out[k] = v
		}
		return out
	}
}

// Mutate applies an optimistic local mutation and confirms it remotely.
//
// If key is cached, the patched value is written immediately with a short
// TTL so concurrent readers see the optimistic state while the mutation is
// in flight. On success the confirmed value overwrites the speculative one
// with the namespace's normal TTL, and every namespace the key's namespace
// declares as dependent is invalidated. On failure the pre-mutation entry
// is restored verbatim (or the key deleted if nothing was cached before)
// and the error is returned; a speculative value never outlives a failed
// mutation.
//
// Mutations are not coalesced — each is a distinct write. Retry policy
// belongs to the caller.
func (e *Engine) Mutate(ctx context.Context, key string, patch Patch, mutation Mutation) (any, error) {
	prior, existed := e.store.Peek(key)
	if existed && patch != nil {
		// the speculative value itself is never persisted, but a write
		// can still evict durable neighbors over capacity
		evicted := e.store.Put(key, patch(prior.Value), e.specTTL)
		e.removeDurable(ctx, evicted...)
	}

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	confirmed, err := runBounded(cctx, mutation)
	cancel()
	if err != nil {
		if existed {
			e.store.Restore(key, prior)
		} else {
			e.store.Delete(key)
		}
		return nil, &RemoteCallError{Key: key, Err: err}
	}

	e.writeBack(ctx, key, confirmed, 0)

	pol, _ := e.table.Resolve(key)
	for _, ns := range pol.Invalidates {
		e.InvalidatePrefix(ctx, ns)
	}
	return cloneValue(confirmed), nil
}

// runBounded enforces the timeout even against mutations that ignore their
// context; a timed-out mutation rolls back like any other failure and its
// late result is discarded.
func runBounded(ctx context.Context, mutation Mutation) (any, error) {
	type outcome struct {
		val any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		val, err := mutation(ctx)
		done <- outcome{val, err}
	}()
	select {
	case out := <-done:
		return out.val, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Mutate is the generic variant of Engine.Mutate.
func Mutate[T any](ctx context.Context, e *Engine, key string, patch Patch, mutation func(ctx context.Context) (T, error)) (T, error) {
	val, err := e.Mutate(ctx, key, patch, func(cctx context.Context) (any, error) {
		return mutation(cctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return convert[T](val)
}
