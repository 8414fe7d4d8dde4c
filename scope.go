package graft

import (
	"context"
	"fmt"
	"reflect"

	"github.com/junioryono/graft/internal/lifetime"
)

// OpenScope opens a child scope of c and returns the container view bound
// to it. Scoped services resolved from the view live until the scope is
// disposed.
//
// In web applications a scope is typically opened per request:
//
//	scope, err := c.OpenScope(graft.WithScopeName("request"), graft.WithScopeContext(r.Context()))
//	if err != nil {
//	    return err
//	}
//	defer scope.Close()
//
//	svc, err := graft.Resolve[*RequestService](scope)
func (c *Container) OpenScope(opts ...ScopeOption) (*Container, error) {
	if c.core.disposed.Load() {
		return nil, &Error{Code: ContainerIsDisposed}
	}

	o := scopeOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.name != nil && !reflect.TypeOf(o.name).Comparable() {
		return nil, &Error{Code: InvalidRuntimeArguments, Message: fmt.Sprintf("scope name of type %T is not comparable", o.name)}
	}
	if o.ctx == nil {
		o.ctx = c.scope.Context()
	}

	child, err := c.scope.OpenChild(o.name, o.ctx)
	if err != nil {
		return nil, &Error{Code: ScopeIsDisposed, Cause: err}
	}

	c.core.logger.Debug("opened scope", "scope", child.ID(), "parent", c.scope.ID(), "name", o.name)
	return c.view(child), nil
}

// ID returns the id of the scope c is bound to.
func (c *Container) ID() string { return c.scope.ID() }

// Name returns the scope name given with WithScopeName, nil for unnamed
// scopes and the root.
func (c *Container) Name() any { return c.scope.Name() }

// IsRoot reports whether c is bound to the container's root scope.
func (c *Container) IsRoot() bool { return c.scope == c.core.root }

// Parent returns the view of the parent scope, nil for the root.
func (c *Container) Parent() *Container {
	if c.scope.Parent() == nil {
		return nil
	}
	return c.view(c.scope.Parent())
}

// Root returns the view of the root scope.
func (c *Container) Root() *Container { return c.core.rootContainer }

// IsDisposed reports whether the scope or the whole container is disposed.
func (c *Container) IsDisposed() bool {
	return c.core.disposed.Load() || c.scope.IsDisposed()
}

// Context returns the scope's context carrying c as its resolver, see
// ResolverFrom.
func (c *Container) Context() context.Context {
	return WithResolver(c.scope.Context(), c)
}

// scopeFor returns the scope a reuse stores its instances in, together with
// the container view instances are created through.
func (c *Container) scopeFor(serviceType *Type, reuse Reuse) (*lifetime.Scope, *Container, error) {
	switch r := reuse.(type) {
	case singletonReuse:
		return c.core.root, c.core.rootContainer, nil

	case scopedReuse:
		if c.IsRoot() {
			return nil, nil, &Error{Code: NoCurrentScope, ServiceType: serviceType, Message: "open a scope to resolve scoped services"}
		}
		return c.scope, c, nil

	case scopedOrSingletonReuse:
		return c.scope, c, nil

	case scopedToNameReuse:
		return c.named(serviceType, reuse, c.scope.FindNamed(r.name, false))

	case scopedToServiceReuse:
		return c.named(serviceType, reuse, c.scope.FindNamed(r.name, false))

	case resolutionScopeReuse:
		s := c.scope.Find(func(name any) bool {
			n, ok := name.(ResolutionScopeName)
			return ok && matchesResolutionScope(n.ServiceType, n.Key, r)
		}, r.outermost)
		if s == nil {
			return nil, nil, &Error{Code: NoMatchedResolutionScope, ServiceType: serviceType, Message: "no open resolution scope matches " + r.String()}
		}
		return s, c.view(s), nil
	}

	return nil, nil, &Error{Code: InvalidRegistration, ServiceType: serviceType, Message: "unsupported reuse " + reuse.String()}
}

func (c *Container) named(serviceType *Type, reuse Reuse, s *lifetime.Scope) (*lifetime.Scope, *Container, error) {
	if s == nil {
		return nil, nil, &Error{Code: NoMatchedScopeFound, ServiceType: serviceType, Message: "no open scope for " + reuse.String()}
	}
	return s, c.view(s), nil
}

// resolverContextKey is the key for storing the current resolver in context.
type resolverContextKey struct{}

// WithResolver returns a context carrying r.
func WithResolver(ctx context.Context, r Resolver) context.Context {
	return context.WithValue(ctx, resolverContextKey{}, r)
}

// ResolverFrom gets the resolver stored with WithResolver.
func ResolverFrom(ctx context.Context) (Resolver, error) {
	r, ok := ctx.Value(resolverContextKey{}).(Resolver)
	if !ok || r == nil {
		return nil, ErrResolverNotInContext
	}
	if c, ok := r.(*Container); ok && c.IsDisposed() {
		return nil, ErrScopeDisposed
	}
	return r, nil
}
