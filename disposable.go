package graft

import (
	"github.com/junioryono/graft/internal/lifetime"
	"github.com/junioryono/graft/internal/reflection"
)

// Disposable is implemented by services that release resources when their
// scope is disposed. Scopes dispose instances in reverse creation order.
//
// Example:
//
//	type DatabaseConnection struct {
//	    conn *sql.DB
//	}
//
//	func (dc *DatabaseConnection) Close() error {
//	    return dc.conn.Close()
//	}
type Disposable = lifetime.Disposable

// DisposableWithContext allows disposal with context for graceful shutdown.
// The context is the one the scope was opened with, detached from its
// cancellation.
//
// Example:
//
//	func (dc *DatabaseConnection) Close(ctx context.Context) error {
//	    done := make(chan error, 1)
//	    go func() {
//	        done <- dc.conn.Close()
//	    }()
//
//	    select {
//	    case err := <-done:
//	        return err
//	    case <-ctx.Done():
//	        return ctx.Err()
//	    }
//	}
type DisposableWithContext = lifetime.ContextDisposable

// In marks a struct as a parameter object. Each exported field becomes a
// dependency; fields understand the tags `key:"..."`, `optional:"true"`
// and `inject:"-"`.
//
//	type ServiceParams struct {
//	    graft.In
//
//	    DB     *sql.DB
//	    Cache  Cache  `key:"redis"`
//	    Logger Logger `optional:"true"`
//	}
type In = reflection.In
