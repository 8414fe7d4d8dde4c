// Package lifetime implements the scope tree that owns reused instances.
//
// A scope stores at most one instance per item id, creates it exactly once
// under contention and disposes everything it owns in reverse creation
// order. Children are disposed before their parent's own instances.
package lifetime

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrScopeDisposed is returned by operations on a disposed scope.
var ErrScopeDisposed = errors.New("scope has been disposed")

// Disposable is implemented by instances that release resources on Close.
type Disposable interface {
	Close() error
}

// ContextDisposable is implemented by instances whose Close takes a context.
type ContextDisposable interface {
	Close(ctx context.Context) error
}

// IsDisposable reports whether v implements one of the disposal interfaces.
func IsDisposable(v any) bool {
	switch v.(type) {
	case Disposable, ContextDisposable:
		return true
	}
	return false
}

func dispose(ctx context.Context, v any) error {
	switch d := v.(type) {
	case Disposable:
		return d.Close()
	case ContextDisposable:
		return d.Close(ctx)
	}
	return nil
}

// Statistics tracks scope tree metrics for one root.
type Statistics struct {
	TotalScopes       atomic.Int64
	ActiveScopes      atomic.Int64
	CreatedInstances  atomic.Int64
	DisposedInstances atomic.Int64
	DisposalFailures  atomic.Int64
}

// Snapshot is a point-in-time copy of Statistics.
type Snapshot struct {
	TotalScopes       int64
	ActiveScopes      int64
	CreatedInstances  int64
	DisposedInstances int64
	DisposalFailures  int64
}

// Snapshot copies the current counters.
func (s *Statistics) Snapshot() Snapshot {
	return Snapshot{
		TotalScopes:       s.TotalScopes.Load(),
		ActiveScopes:      s.ActiveScopes.Load(),
		CreatedInstances:  s.CreatedInstances.Load(),
		DisposedInstances: s.DisposedInstances.Load(),
		DisposalFailures:  s.DisposalFailures.Load(),
	}
}
