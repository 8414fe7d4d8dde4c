package graft

import (
	"context"

	"github.com/junioryono/graft/internal/registry"
)

// IfAlreadyRegistered decides what a registration does when the service
// type already has registrations.
type IfAlreadyRegistered = registry.Policy

const (
	// AppendNonKeyed adds another default registration and rejects an
	// existing key.
	AppendNonKeyed = registry.AppendNonKeyed

	// Throw rejects any existing default or key.
	Throw = registry.Throw

	// Keep ignores the new registration.
	Keep = registry.Keep

	// Replace swaps the existing registration in place, keeping its order.
	Replace = registry.Replace

	// AppendNewImplementation adds the registration unless the same
	// implementation is registered already.
	AppendNewImplementation = registry.AppendNewImplementation
)

// RegisterOption configures a registration.
type RegisterOption interface {
	applyRegister(*registerOptions)
}

type registerOptions struct {
	reuse  Reuse
	key    any
	policy *IfAlreadyRegistered
	setup  Setup
}

type registerOptionFunc func(*registerOptions)

func (f registerOptionFunc) applyRegister(opts *registerOptions) {
	f(opts)
}

// WithReuse sets the reuse of the registration.
func WithReuse(reuse Reuse) RegisterOption {
	return registerOptionFunc(func(opts *registerOptions) {
		opts.reuse = reuse
	})
}

// WithServiceKey registers the service under key. Keys must be comparable.
func WithServiceKey(key any) RegisterOption {
	return registerOptionFunc(func(opts *registerOptions) {
		opts.key = key
	})
}

// WithIfAlreadyRegistered sets the duplicate policy of the registration.
func WithIfAlreadyRegistered(p IfAlreadyRegistered) RegisterOption {
	return registerOptionFunc(func(opts *registerOptions) {
		opts.policy = &p
	})
}

// WithSetup replaces the whole setup of the registration.
func WithSetup(setup Setup) RegisterOption {
	return registerOptionFunc(func(opts *registerOptions) {
		opts.setup = setup
	})
}

// WithCondition restricts the registration to requests matching cond.
func WithCondition(cond func(*Request) bool) RegisterOption {
	return registerOptionFunc(func(opts *registerOptions) {
		opts.setup.Condition = cond
	})
}

// WithOrder sets the decorator order.
func WithOrder(order int) RegisterOption {
	return registerOptionFunc(func(opts *registerOptions) {
		opts.setup.Order = order
	})
}

// WithMetadata attaches metadata exposed by Meta[T].
func WithMetadata(metadata any) RegisterOption {
	return registerOptionFunc(func(opts *registerOptions) {
		opts.setup.Metadata = metadata
	})
}

// AsDecorator registers a decorator of the service type. The implementation
// receives the decorated instance through its parameter of the service type.
func AsDecorator() RegisterOption {
	return registerOptionFunc(func(opts *registerOptions) {
		opts.setup.Kind = DecoratorSetup
	})
}

// AsWrapper registers an open generic wrapper whose type argument at
// argIndex names the wrapped service.
func AsWrapper(argIndex int) RegisterOption {
	return registerOptionFunc(func(opts *registerOptions) {
		opts.setup.Kind = WrapperSetup
		opts.setup.WrappedArgIndex = argIndex
	})
}

// OpenResolutionScope opens a resolution scope around each construction of
// the service.
func OpenResolutionScope() RegisterOption {
	return registerOptionFunc(func(opts *registerOptions) {
		opts.setup.OpenResolutionScope = true
	})
}

// AsResolutionCall resolves the service through a separate plan instead of
// inlining it into its consumers.
func AsResolutionCall() RegisterOption {
	return registerOptionFunc(func(opts *registerOptions) {
		opts.setup.AsResolutionCall = true
	})
}

// PreventDisposal keeps scopes from disposing the service's instances.
func PreventDisposal() RegisterOption {
	return registerOptionFunc(func(opts *registerOptions) {
		opts.setup.PreventDisposal = true
	})
}

// UseDecorateeReuse stores decorated results with the decorated service's
// reuse.
func UseDecorateeReuse() RegisterOption {
	return registerOptionFunc(func(opts *registerOptions) {
		opts.setup.UseDecorateeReuse = true
	})
}

// ResolveOption configures a resolution.
type ResolveOption interface {
	applyResolve(*resolveOptions)
}

type resolveOptions struct {
	key           any
	requiredType  *Type
	returnDefault bool
	args          []any
	behavior      ManyBehavior

	// pin and resolveCall are set internally for collection items and
	// resolution calls.
	pin         *pin
	resolveCall bool
	validate    bool
}

type resolveOptionFunc func(*resolveOptions)

func (f resolveOptionFunc) applyResolve(opts *resolveOptions) {
	f(opts)
}

func newResolveOptions(opts []ResolveOption) resolveOptions {
	var o resolveOptions
	for _, opt := range opts {
		if opt != nil {
			opt.applyResolve(&o)
		}
	}
	return o
}

// WithKey resolves the registration made under key.
func WithKey(key any) ResolveOption {
	return resolveOptionFunc(func(opts *resolveOptions) {
		opts.key = key
	})
}

// WithRequiredType resolves registrations of t and returns them as the
// requested service type. For wrappers t applies to the wrapped service.
func WithRequiredType(t *Type) ResolveOption {
	return resolveOptionFunc(func(opts *resolveOptions) {
		opts.requiredType = t
	})
}

// IfUnresolvedReturnDefault returns nil instead of a not found error.
func IfUnresolvedReturnDefault() ResolveOption {
	return resolveOptionFunc(func(opts *resolveOptions) {
		opts.returnDefault = true
	})
}

// WithArgs supplies runtime arguments. Dependencies whose type matches an
// argument are satisfied by it instead of being resolved.
func WithArgs(args ...any) ResolveOption {
	return resolveOptionFunc(func(opts *resolveOptions) {
		opts.args = args
	})
}

// ManyBehavior controls ResolveMany.
type ManyBehavior int

const (
	// LazyEnumeration resolves each item while iterating and sees
	// registrations made after ResolveMany was called.
	LazyEnumeration ManyBehavior = iota

	// FixedArray resolves all items before the first one is yielded.
	FixedArray
)

// WithBehavior sets the ResolveMany behavior.
func WithBehavior(b ManyBehavior) ResolveOption {
	return resolveOptionFunc(func(opts *resolveOptions) {
		opts.behavior = b
	})
}

// UnregisterOption selects the registrations Unregister removes. Without
// options the default registrations are removed.
type UnregisterOption func(*unregisterOptions)

type unregisterOptions struct {
	key   any
	all   bool
	where func(*Factory) bool
}

// UnregisterKey removes the registration made under key.
func UnregisterKey(key any) UnregisterOption {
	return func(opts *unregisterOptions) {
		opts.key = key
	}
}

// UnregisterAll removes default and keyed registrations.
func UnregisterAll() UnregisterOption {
	return func(opts *unregisterOptions) {
		opts.all = true
	}
}

// UnregisterWhere additionally requires pred to hold.
func UnregisterWhere(pred func(*Factory) bool) UnregisterOption {
	return func(opts *unregisterOptions) {
		opts.where = pred
	}
}

// ScopeOption configures OpenScope.
type ScopeOption func(*scopeOptions)

type scopeOptions struct {
	name any
	ctx  context.Context
}

// WithScopeName names the scope for ScopedTo reuse. Names must be comparable.
func WithScopeName(name any) ScopeOption {
	return func(opts *scopeOptions) {
		opts.name = name
	}
}

// WithScopeContext binds the scope to ctx; the scope is disposed once ctx is
// done.
func WithScopeContext(ctx context.Context) ScopeOption {
	return func(opts *scopeOptions) {
		opts.ctx = ctx
	}
}
