package graft

import (
	"log/slog"
	"time"
)

// DefaultMaxObjectGraphSize bounds the number of requests a single plan may
// expand into.
const DefaultMaxObjectGraphSize = 4096

// UnknownServiceResolver supplies an implementation for a service that has
// no registration. It returns nil to decline.
type UnknownServiceResolver func(r *Request) Implementation

// FactorySelector picks one of several default factories matching a
// request. Returning nil keeps the ExpectedSingleDefaultFactory failure.
type FactorySelector func(r *Request, factories []*Factory) *Factory

// Rules configure resolution. They are fixed for the lifetime of a
// container; use With to derive a container with different rules.
type Rules struct {
	// DefaultReuse applies to registrations without WithReuse.
	DefaultReuse Reuse

	// DefaultIfAlreadyRegistered applies to registrations without
	// WithIfAlreadyRegistered.
	DefaultIfAlreadyRegistered IfAlreadyRegistered

	// ConstructorSelector picks among several constructors of a Ctor
	// implementation unless the implementation selects itself.
	ConstructorSelector ConstructorSelector

	// FactorySelector resolves ambiguity between default registrations.
	FactorySelector FactorySelector

	// UnknownServiceResolvers are consulted in order after registrations,
	// wrappers and fallbacks failed.
	UnknownServiceResolvers []UnknownServiceResolver

	// Fallbacks are resolvers asked for services this container lacks.
	Fallbacks []Resolver

	// ThrowIfDependencyHasShorterReuseLifespan rejects captive dependencies.
	ThrowIfDependencyHasShorterReuseLifespan bool

	// VariantGenericTypesInResolvedCollection includes variance compatible
	// registrations in collections.
	VariantGenericTypesInResolvedCollection bool

	// TrackDisposableTransients lets the current scope dispose transient
	// instances that implement Close.
	TrackDisposableTransients bool

	// MaxObjectGraphSize bounds plan size. Zero means
	// DefaultMaxObjectGraphSize.
	MaxObjectGraphSize int

	Logger *slog.Logger

	// OnResolved is called after each successful top-level resolution.
	OnResolved func(serviceType *Type, key any, d time.Duration)

	// OnError is called after each failed top-level resolution.
	OnError func(serviceType *Type, key any, err error)
}

// DefaultRules returns the rules New starts from.
func DefaultRules() Rules {
	return Rules{
		DefaultReuse:                             Transient,
		DefaultIfAlreadyRegistered:               AppendNonKeyed,
		ConstructorSelector:                      SelectSingleConstructor,
		ThrowIfDependencyHasShorterReuseLifespan: true,
		VariantGenericTypesInResolvedCollection:  true,
		TrackDisposableTransients:                true,
		MaxObjectGraphSize:                       DefaultMaxObjectGraphSize,
		Logger:                                   slog.New(slog.DiscardHandler),
	}
}

func (r Rules) maxGraphSize() int {
	if r.MaxObjectGraphSize <= 0 {
		return DefaultMaxObjectGraphSize
	}
	return r.MaxObjectGraphSize
}

func (r Rules) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

// Option configures the rules of a container.
type Option func(*Rules)

// WithRules replaces the rules wholesale.
func WithRules(rules Rules) Option {
	return func(r *Rules) {
		*r = rules
	}
}

// WithDefaultReuse sets the reuse of registrations without WithReuse.
func WithDefaultReuse(reuse Reuse) Option {
	return func(r *Rules) {
		r.DefaultReuse = reuse
	}
}

// WithDefaultIfAlreadyRegistered sets the default duplicate policy.
func WithDefaultIfAlreadyRegistered(p IfAlreadyRegistered) Option {
	return func(r *Rules) {
		r.DefaultIfAlreadyRegistered = p
	}
}

// WithConstructorSelector sets the container-wide constructor selection.
func WithConstructorSelector(sel ConstructorSelector) Option {
	return func(r *Rules) {
		r.ConstructorSelector = sel
	}
}

// WithFactorySelector sets the default factory selector.
func WithFactorySelector(sel FactorySelector) Option {
	return func(r *Rules) {
		r.FactorySelector = sel
	}
}

// WithUnknownServiceResolvers appends unknown service resolvers.
func WithUnknownServiceResolvers(resolvers ...UnknownServiceResolver) Option {
	return func(r *Rules) {
		r.UnknownServiceResolvers = append(append([]UnknownServiceResolver(nil), r.UnknownServiceResolvers...), resolvers...)
	}
}

// WithFallbacks appends fallback resolvers.
func WithFallbacks(fallbacks ...Resolver) Option {
	return func(r *Rules) {
		r.Fallbacks = append(append([]Resolver(nil), r.Fallbacks...), fallbacks...)
	}
}

// WithoutLifespanCheck allows dependencies with shorter reuse lifespans.
func WithoutLifespanCheck() Option {
	return func(r *Rules) {
		r.ThrowIfDependencyHasShorterReuseLifespan = false
	}
}

// WithoutVariantCollections restricts collections to exact and open
// generic registrations.
func WithoutVariantCollections() Option {
	return func(r *Rules) {
		r.VariantGenericTypesInResolvedCollection = false
	}
}

// WithoutDisposableTransientTracking leaves disposal of transients to the
// caller.
func WithoutDisposableTransientTracking() Option {
	return func(r *Rules) {
		r.TrackDisposableTransients = false
	}
}

// WithMaxObjectGraphSize bounds plan size.
func WithMaxObjectGraphSize(n int) Option {
	return func(r *Rules) {
		r.MaxObjectGraphSize = n
	}
}

// WithLogger sets the logger. Registry swaps and plan compilation log at
// debug level, disposal failures at warn level.
func WithLogger(l *slog.Logger) Option {
	return func(r *Rules) {
		r.Logger = l
	}
}

// WithOnResolved sets the resolution callback.
func WithOnResolved(fn func(serviceType *Type, key any, d time.Duration)) Option {
	return func(r *Rules) {
		r.OnResolved = fn
	}
}

// WithOnError sets the resolution error callback.
func WithOnError(fn func(serviceType *Type, key any, err error)) Option {
	return func(r *Rules) {
		r.OnError = fn
	}
}
