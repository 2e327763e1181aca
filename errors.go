package syncache

import "fmt"

// RemoteCallError wraps the failure of a loader or remote mutation,
// including timeouts (errors.Is(err, context.DeadlineExceeded) reports
// whether the call timed out). It is the only error kind that crosses the
// Engine's public surface; cache bookkeeping never fails.
type RemoteCallError struct {
	// Key is the cache key or call signature the failed call was issued
	// for.
	Key string
	Err error
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("syncache: remote call for %q failed: %v", e.Key, e.Err)
}

func (e *RemoteCallError) Unwrap() error {
	return e.Err
}
