package graft

import (
	"fmt"
	"iter"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/junioryono/graft/internal/lifetime"
	"github.com/junioryono/graft/internal/reflection"
)

// core is the state shared by a container and all of its scope views.
type core struct {
	snap     atomic.Pointer[snapshot]
	rules    Rules
	logger   *slog.Logger
	analyzer *reflection.Analyzer

	root          *lifetime.Scope
	rootContainer *Container
	disposed      atomic.Bool

	// derived holds item ids of decorated results, dynamic the factories
	// created by unknown service resolvers.
	derived sync.Map
	dynamic sync.Map

	resolutions atomic.Int64
	failures    atomic.Int64
	compiled    atomic.Int64
}

// Container holds registrations and resolves services. A Container value
// is bound to one scope: New returns the root view, OpenScope returns views
// of child scopes. All views share registrations and rules.
//
// Container is safe for concurrent use. Registration publishes a new
// registry snapshot; resolutions in flight keep the snapshot they started
// with.
type Container struct {
	core  *core
	scope *lifetime.Scope
}

// New creates a container with DefaultRules adjusted by opts.
//
//	c := graft.New(graft.WithLogger(slog.Default()))
//	defer c.Close()
func New(opts ...Option) *Container {
	rules := DefaultRules()
	for _, opt := range opts {
		if opt != nil {
			opt(&rules)
		}
	}
	return newContainer(rules, emptySnapshot(), reflection.New())
}

func newContainer(rules Rules, snap *snapshot, analyzer *reflection.Analyzer) *Container {
	co := &core{
		rules:    rules,
		logger:   rules.logger(),
		analyzer: analyzer,
		root:     lifetime.NewRoot(nil),
	}
	co.snap.Store(snap)
	co.root.OnDisposeError(func(s *lifetime.Scope, err error) {
		co.logger.Warn("scope disposal failed", slog.String("scope", s.ID()), slog.String("reason", "context done"), slog.Any("error", err))
	})
	co.rootContainer = &Container{core: co, scope: co.root}
	return co.rootContainer
}

// With derives a new container from c's registrations with its rules
// adjusted by opts. The new container has its own singletons; plans are
// compiled anew.
func (c *Container) With(opts ...Option) *Container {
	rules := c.core.rules
	for _, opt := range opts {
		if opt != nil {
			opt(&rules)
		}
	}

	cur := c.core.snap.Load()
	snap := &snapshot{
		version:    cur.version + 1,
		services:   cur.services,
		decorators: cur.decorators,
		wrappers:   cur.wrappers,
		plans:      newPlanCache(),
	}
	return newContainer(rules, snap, c.core.analyzer)
}

// Rules returns the container's rules.
func (c *Container) Rules() Rules { return c.core.rules }

func (c *Container) view(s *lifetime.Scope) *Container {
	if s == c.core.root {
		return c.core.rootContainer
	}
	return &Container{core: c.core, scope: s}
}

// Resolve returns an instance of serviceType.
//
//	v, err := c.Resolve(graft.TypeOf[*UserService]())
//	v, err := c.Resolve(cacheType, graft.WithKey("redis"))
func (c *Container) Resolve(serviceType *Type, opts ...ResolveOption) (any, error) {
	o := newResolveOptions(opts)
	start := time.Now()
	v, err := c.resolve(serviceType, &o, nil)
	c.core.observe(serviceType, o.key, time.Since(start), err)
	return v, err
}

func (c *Container) resolve(serviceType *Type, o *resolveOptions, creating *lifetime.Creating) (any, error) {
	if c.core.disposed.Load() {
		return nil, &Error{Code: ContainerIsDisposed, ServiceType: serviceType}
	}
	if c.scope.IsDisposed() {
		return nil, &Error{Code: ScopeIsDisposed, ServiceType: serviceType}
	}
	if serviceType == nil {
		return nil, &Error{Code: InvalidRuntimeArguments, Message: "service type cannot be nil"}
	}
	if o.key != nil && !reflect.TypeOf(o.key).Comparable() {
		return nil, &Error{Code: InvalidRuntimeArguments, ServiceType: serviceType, Message: fmt.Sprintf("service key of type %T is not comparable", o.key)}
	}

	argTypes, err := argTypesOf(serviceType, o.args)
	if err != nil {
		return nil, err
	}

	p, err := c.core.plan(serviceType, o, argTypes)
	if err != nil {
		return nil, err
	}
	return p.run(c, o.args, creating)
}

// resolveCall runs the plan of a service resolved by a ResolveCallNode.
func (c *Container) resolveCall(serviceType *Type, key any, required *Type, creating *lifetime.Creating) (any, error) {
	o := resolveOptions{key: key, requiredType: required, resolveCall: true}
	return c.resolve(serviceType, &o, creating)
}

func argTypesOf(serviceType *Type, args []any) ([]*Type, error) {
	if len(args) == 0 {
		return nil, nil
	}
	types := make([]*Type, len(args))
	for i, a := range args {
		if a == nil {
			return nil, &Error{Code: InvalidRuntimeArguments, ServiceType: serviceType, Message: fmt.Sprintf("argument %d is nil", i)}
		}
		types[i] = TypeFor(reflect.TypeOf(a))
	}
	return types, nil
}

// plan returns the compiled plan for a request shape, building it on the
// first request against the current snapshot.
func (co *core) plan(serviceType *Type, o *resolveOptions, argTypes []*Type) (*compiledPlan, error) {
	snap := co.snap.Load()
	k := newPlanKey(serviceType, o, argTypes)
	if p, ok := snap.plans.get(k); ok {
		return p, nil
	}

	b := newBuilder(co, snap)
	p, err := b.buildRoot(serviceType, o, argTypes)
	if err != nil {
		if !o.returnDefault || !IsNotFound(err) {
			return nil, err
		}
		p, b.state = &DefaultNode{ServiceType: serviceType}, nil
	}

	cp := &compiledPlan{plan: p, create: compile(p), state: b.state, argTypes: argTypes}
	co.compiled.Add(1)
	co.logger.Debug("compiled plan",
		slog.String("service", serviceType.String()),
		slog.Any("key", o.key),
		slog.Int("requests", b.size),
		slog.Uint64("version", snap.version))
	if o.validate {
		return cp, nil
	}
	return snap.plans.put(k, cp), nil
}

func (co *core) observe(serviceType *Type, key any, d time.Duration, err error) {
	if err != nil {
		co.failures.Add(1)
		if co.rules.OnError != nil {
			co.rules.OnError(serviceType, key, err)
		}
		return
	}
	co.resolutions.Add(1)
	if co.rules.OnResolved != nil {
		co.rules.OnResolved(serviceType, key, d)
	}
}

// ResolveMany enumerates all registrations of serviceType, in registration
// order. With LazyEnumeration, the default, each iteration sees the
// registrations current at that time and resolves items one by one.
//
//	for v, err := range c.ResolveMany(graft.TypeOf[Plugin]()) {
//	    ...
//	}
func (c *Container) ResolveMany(serviceType *Type, opts ...ResolveOption) iter.Seq2[any, error] {
	o := newResolveOptions(opts)
	if c.IsDisposed() {
		return func(yield func(any, error) bool) {
			yield(nil, &Error{Code: ContainerIsDisposed, ServiceType: serviceType})
		}
	}
	return c.manySeq(serviceType, o.requiredType, o.key, o.behavior)
}

// PlanOf returns the plan Resolve executes for serviceType and opts.
func (c *Container) PlanOf(serviceType *Type, opts ...ResolveOption) (Plan, error) {
	if serviceType == nil {
		return nil, &Error{Code: InvalidRuntimeArguments, Message: "service type cannot be nil"}
	}
	o := newResolveOptions(opts)
	argTypes, err := argTypesOf(serviceType, o.args)
	if err != nil {
		return nil, err
	}
	p, err := c.core.plan(serviceType, &o, argTypes)
	if err != nil {
		return nil, err
	}
	return p.plan, nil
}

// Validate builds the plan of every closed registration without creating
// anything and returns the failures. Open generics are validated once
// closed, services in a resolution scope only through their consumers.
func (c *Container) Validate() []error {
	var errs []error
	for _, f := range c.Factories() {
		if f.IsOpenGeneric() || f.reuse.Kind() == ResolutionScopeKind {
			continue
		}
		o := resolveOptions{key: f.key, pin: &pin{t: f.serviceType, f: f}, validate: true}
		if _, err := c.core.plan(f.serviceType, &o, nil); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		c.core.logger.Debug("validation failed", slog.Int("errors", len(errs)))
	}
	return errs
}

// Dispose disposes the scope c is bound to. Disposing the root disposes the
// whole container: every open scope, then the singletons, in reverse
// creation order. Further use fails with ContainerIsDisposed.
func (c *Container) Dispose() error {
	if !c.IsRoot() {
		err := c.scope.Dispose()
		if err != nil {
			c.core.logger.Warn("scope disposal failed", slog.String("scope", c.scope.ID()), slog.Any("error", err))
		}
		return newDisposalError("scope", err)
	}

	if !c.core.disposed.CompareAndSwap(false, true) {
		return nil
	}
	err := c.core.root.Dispose()
	if err != nil {
		c.core.logger.Warn("container disposal failed", slog.Any("error", err))
	}
	return newDisposalError("container", err)
}

// Close implements io.Closer by calling Dispose.
func (c *Container) Close() error {
	return c.Dispose()
}
