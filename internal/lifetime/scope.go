package lifetime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrRecursiveCreation is returned when an item is requested again while the
// same call chain is still creating it.
var ErrRecursiveCreation = errors.New("item requested while it is being created")

// Scope is a node of the scope tree.
type Scope struct {
	id     string
	name   any
	ctx    context.Context
	parent *Scope
	stats  *Statistics
	stop   func() bool

	mu          sync.Mutex
	items       map[uint64]*item
	children    []*Scope
	disposables []any

	disposed atomic.Bool

	// onDisposeError is only set on the root.
	onDisposeError atomic.Pointer[func(*Scope, error)]
}

type item struct {
	mu    sync.Mutex
	done  bool
	value any
}

// Creating is the chain of items a single resolution is currently creating.
// A nil *Creating is an empty chain.
type Creating struct {
	parent *Creating
	it     *item
}

func (c *Creating) has(it *item) bool {
	for ; c != nil; c = c.parent {
		if c.it == it {
			return true
		}
	}
	return false
}

// NewRoot creates the root of a scope tree.
func NewRoot(name any) *Scope {
	stats := &Statistics{}
	stats.TotalScopes.Add(1)
	stats.ActiveScopes.Add(1)

	return &Scope{
		id:    uuid.NewString(),
		name:  name,
		ctx:   context.Background(),
		stats: stats,
		items: make(map[uint64]*item),
	}
}

// OpenChild opens a child scope. When ctx is cancellable the child disposes
// itself once ctx is done.
func (s *Scope) OpenChild(name any, ctx context.Context) (*Scope, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	child := &Scope{
		id:     uuid.NewString(),
		name:   name,
		ctx:    ctx,
		parent: s,
		stats:  s.stats,
		items:  make(map[uint64]*item),
	}

	s.mu.Lock()
	if s.disposed.Load() {
		s.mu.Unlock()
		return nil, ErrScopeDisposed
	}
	s.children = append(s.children, child)
	s.mu.Unlock()

	s.stats.TotalScopes.Add(1)
	s.stats.ActiveScopes.Add(1)

	if ctx.Done() != nil {
		child.stop = context.AfterFunc(ctx, func() {
			if err := child.Dispose(); err != nil {
				child.reportDisposeError(err)
			}
		})
	}

	return child, nil
}

// OnDisposeError sets the function receiving the errors of disposals that
// context cancellation starts, for the whole tree.
func (s *Scope) OnDisposeError(fn func(*Scope, error)) {
	s.Root().onDisposeError.Store(&fn)
}

func (s *Scope) reportDisposeError(err error) {
	if fn := s.Root().onDisposeError.Load(); fn != nil && *fn != nil {
		(*fn)(s, err)
	}
}

// ID returns the scope's unique id.
func (s *Scope) ID() string { return s.id }

// Name returns the scope name, nil when unnamed.
func (s *Scope) Name() any { return s.name }

// Parent returns the parent scope, nil for the root.
func (s *Scope) Parent() *Scope { return s.parent }

// Context returns the context the scope was opened with.
func (s *Scope) Context() context.Context { return s.ctx }

// IsDisposed reports whether Dispose has been called.
func (s *Scope) IsDisposed() bool { return s.disposed.Load() }

// Statistics returns the counters shared by the whole tree.
func (s *Scope) Statistics() *Statistics { return s.stats }

// Root returns the root of the tree.
func (s *Scope) Root() *Scope {
	r := s
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// FindNamed returns the nearest scope (starting at s) whose name equals
// name, or the farthest one when outermost is set.
func (s *Scope) FindNamed(name any, outermost bool) *Scope {
	return s.Find(func(n any) bool { return n == name }, outermost)
}

// Find is FindNamed with a predicate over scope names. Unnamed scopes are
// skipped.
func (s *Scope) Find(match func(name any) bool, outermost bool) *Scope {
	var found *Scope
	for cur := s; cur != nil; cur = cur.parent {
		if cur.name != nil && match(cur.name) {
			found = cur
			if !outermost {
				return found
			}
		}
	}
	return found
}

// Get returns the instance stored for id, if it has been created.
func (s *Scope) Get(id uint64) (any, bool) {
	s.mu.Lock()
	it := s.items[id]
	s.mu.Unlock()

	if it == nil {
		return nil, false
	}

	it.mu.Lock()
	defer it.mu.Unlock()
	return it.value, it.done
}

// GetOrCreate returns the instance stored for id, calling create exactly once
// across concurrent callers. A failed create leaves the item empty so a later
// call can retry. Created disposables are tracked unless track is false.
func (s *Scope) GetOrCreate(id uint64, creating *Creating, track bool, create func(*Creating) (any, error)) (any, error) {
	s.mu.Lock()
	if s.disposed.Load() {
		s.mu.Unlock()
		return nil, ErrScopeDisposed
	}
	it := s.items[id]
	if it == nil {
		it = &item{}
		s.items[id] = it
	}
	s.mu.Unlock()

	if !it.mu.TryLock() {
		if creating.has(it) {
			return nil, ErrRecursiveCreation
		}
		it.mu.Lock()
	}
	defer it.mu.Unlock()

	if it.done {
		return it.value, nil
	}

	v, err := create(&Creating{parent: creating, it: it})
	if err != nil {
		return nil, err
	}

	it.value = v
	it.done = true
	s.stats.CreatedInstances.Add(1)

	if track {
		if err := s.Track(v); err != nil {
			return nil, err
		}
	}

	return v, nil
}

// Track registers v for disposal with the scope if it is disposable.
func (s *Scope) Track(v any) error {
	if !IsDisposable(v) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed.Load() {
		return ErrScopeDisposed
	}
	s.disposables = append(s.disposables, v)
	return nil
}

// Dispose disposes open children, then owned instances in reverse creation
// order. It is idempotent; the joined disposal errors are returned once.
func (s *Scope) Dispose() error {
	s.mu.Lock()
	if !s.disposed.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return nil
	}
	children := s.children
	disposables := s.disposables
	s.children = nil
	s.disposables = nil
	s.items = nil
	s.mu.Unlock()

	if s.stop != nil {
		s.stop()
	}

	var errs []error
	for i := len(children) - 1; i >= 0; i-- {
		if err := children[i].Dispose(); err != nil {
			errs = append(errs, err)
		}
	}

	ctx := context.WithoutCancel(s.ctx)
	for i := len(disposables) - 1; i >= 0; i-- {
		if err := dispose(ctx, disposables[i]); err != nil {
			s.stats.DisposalFailures.Add(1)
			errs = append(errs, err)
			continue
		}
		s.stats.DisposedInstances.Add(1)
	}

	if s.parent != nil {
		s.parent.detach(s)
	}
	s.stats.ActiveScopes.Add(-1)

	return errors.Join(errs...)
}

func (s *Scope) detach(child *Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i:i], s.children[i+1:]...)
			return
		}
	}
}
