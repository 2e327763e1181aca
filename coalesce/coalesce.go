package coalesce

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds a remote call when the Group is constructed with a
// non-positive timeout.
const DefaultTimeout = 5 * time.Second

// Operation performs the underlying remote call. The context it receives
// carries the group's call timeout and is detached from any single caller's
// cancellation.
type Operation func(ctx context.Context) (any, error)

// Group deduplicates concurrent identical calls. At most one execution of an
// Operation is in flight per signature; every concurrent caller with the
// same signature receives the same result or the same error. The pending
// entry is removed the moment the execution resolves, before any waiter
// resumes, so an identical call issued immediately afterwards starts fresh.
type Group struct {
	sf      singleflight.Group
	timeout time.Duration
}

// NewGroup returns a Group whose calls are bounded by the given timeout.
func NewGroup(timeout time.Duration) *Group {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Group{timeout: timeout}
}

// Invoke executes op under the given signature, joining an in-flight
// execution if one exists. The returned shared flag reports whether the
// result was shared with other callers.
//
// The execution context is detached from the initiating caller so that one
// caller's cancellation does not fail the joiners; the group timeout is the
// only bound. A caller whose own ctx ends while waiting detaches with
// ctx.Err() and leaves the execution (and its other waiters) undisturbed.
func (g *Group) Invoke(ctx context.Context, signature string, op Operation) (any, bool, error) {
	ch := g.sf.DoChan(signature, func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()
		return g.run(cctx, op)
	})
	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// run enforces the timeout even against operations that ignore their
// context, so a wedged call cannot hold the pending entry forever.
func (g *Group) run(ctx context.Context, op Operation) (any, error) {
	type outcome struct {
		val any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		val, err := op(ctx)
		done <- outcome{val, err}
	}()
	select {
	case out := <-done:
		return out.val, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Forget drops the pending entry for signature, if any. A subsequent Invoke
// with the same signature will execute its operation rather than join.
func (g *Group) Forget(signature string) {
	g.sf.Forget(signature)
}
