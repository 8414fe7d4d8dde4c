package graft

import "fmt"

// SetupKind distinguishes plain services from decorators and wrappers.
type SetupKind int

const (
	// ServiceSetup is an ordinary registration.
	ServiceSetup SetupKind = iota

	// DecoratorSetup wraps already resolved instances of its service type.
	DecoratorSetup

	// WrapperSetup marks an open generic whose argument names the wrapped
	// service, in the manner of the built-in Lazy or Func wrappers.
	WrapperSetup
)

func (k SetupKind) String() string {
	switch k {
	case ServiceSetup:
		return "Service"
	case DecoratorSetup:
		return "Decorator"
	case WrapperSetup:
		return "Wrapper"
	default:
		return fmt.Sprintf("SetupKind(%d)", int(k))
	}
}

// Setup carries per-registration metadata consumed by the resolution
// algorithm.
type Setup struct {
	Kind SetupKind

	// Condition filters the registration per request. Nil matches always.
	Condition func(*Request) bool

	// Order sorts decorators; lower values are applied closer to the service.
	Order int

	// Metadata is exposed through the Meta wrapper.
	Metadata any

	// OpenResolutionScope opens a scope named ResolutionScopeName around the
	// construction of the service.
	OpenResolutionScope bool

	// AsResolutionCall compiles the service as a separate plan invoked at
	// runtime instead of inlining it into its consumers.
	AsResolutionCall bool

	// PreventDisposal stops the owning scope from disposing instances.
	PreventDisposal bool

	// UseDecorateeReuse stores the decorated result with the decorated
	// service's reuse instead of the decorator's.
	UseDecorateeReuse bool

	// WrappedArgIndex is the generic argument that names the wrapped service
	// of a WrapperSetup registration.
	WrappedArgIndex int
}

func (s Setup) matches(r *Request) bool {
	return s.Condition == nil || s.Condition(r)
}
