package graft

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies an Error.
type ErrorCode int

const (
	// UnableToResolveUnknownService means no registration, wrapper, fallback
	// or unknown-service resolver could provide the service.
	UnableToResolveUnknownService ErrorCode = iota + 1

	// ExpectedSingleDefaultFactory means several default registrations match
	// and no factory selector chose one.
	ExpectedSingleDefaultFactory

	// RecursiveDependencyDetected means a service depends on itself without
	// a deferred wrapper in between.
	RecursiveDependencyDetected

	// DependencyHasShorterReuseLifespan means a dependency would be captured
	// by a consumer that outlives it.
	DependencyHasShorterReuseLifespan

	// UnableToSelectConstructor means the constructor selection policy did
	// not apply to the registered candidates.
	UnableToSelectConstructor

	// NoMatchingConstructor means no candidate constructor was fully resolvable.
	NoMatchingConstructor

	// ServiceIsNotAssignableFromOpenGenericRequiredServiceType means an open
	// generic required type could not be closed for the requested service.
	ServiceIsNotAssignableFromOpenGenericRequiredServiceType

	// NoMatchedGenericParamConstraints means open generic candidates exist
	// but none satisfies its parameter constraints.
	NoMatchedGenericParamConstraints

	// ServiceIsNotAssignableFromRequiredServiceType means the required
	// service type cannot stand in for the requested one.
	ServiceIsNotAssignableFromRequiredServiceType

	// UnableToRegisterDuplicateDefault is raised by IfAlreadyRegistered Throw.
	UnableToRegisterDuplicateDefault

	// UnableToRegisterDuplicateKey is raised for a second registration under
	// an existing key.
	UnableToRegisterDuplicateKey

	// ImplementationNotAssignableToServiceType means the implementation
	// cannot produce values of the service type.
	ImplementationNotAssignableToServiceType

	// InvalidRegistration covers malformed registration input.
	InvalidRegistration

	// NoCurrentScope means a scoped service was resolved without an open scope.
	NoCurrentScope

	// NoMatchedScopeFound means no open scope carries the required name.
	NoMatchedScopeFound

	// NoMatchedResolutionScope means no ancestor in the dependency graph
	// matches an InResolutionScope reuse.
	NoMatchedResolutionScope

	// ScopeIsDisposed means the scope was used after Dispose.
	ScopeIsDisposed

	// ContainerIsDisposed means the container was used after Dispose.
	ContainerIsDisposed

	// MaxObjectGraphSizeExceeded means the dependency graph grew past
	// Rules.MaxObjectGraphSize.
	MaxObjectGraphSizeExceeded

	// InvalidRuntimeArguments means a plan expected runtime arguments that
	// were not supplied or have the wrong type.
	InvalidRuntimeArguments
)

var codeNames = map[ErrorCode]string{
	UnableToResolveUnknownService:                            "UnableToResolveUnknownService",
	ExpectedSingleDefaultFactory:                             "ExpectedSingleDefaultFactory",
	RecursiveDependencyDetected:                              "RecursiveDependencyDetected",
	DependencyHasShorterReuseLifespan:                        "DependencyHasShorterReuseLifespan",
	UnableToSelectConstructor:                                "UnableToSelectConstructor",
	NoMatchingConstructor:                                    "NoMatchingConstructor",
	ServiceIsNotAssignableFromOpenGenericRequiredServiceType: "ServiceIsNotAssignableFromOpenGenericRequiredServiceType",
	NoMatchedGenericParamConstraints:                         "NoMatchedGenericParamConstraints",
	ServiceIsNotAssignableFromRequiredServiceType:            "ServiceIsNotAssignableFromRequiredServiceType",
	UnableToRegisterDuplicateDefault:                         "UnableToRegisterDuplicateDefault",
	UnableToRegisterDuplicateKey:                             "UnableToRegisterDuplicateKey",
	ImplementationNotAssignableToServiceType:                 "ImplementationNotAssignableToServiceType",
	InvalidRegistration:                                      "InvalidRegistration",
	NoCurrentScope:                                           "NoCurrentScope",
	NoMatchedScopeFound:                                      "NoMatchedScopeFound",
	NoMatchedResolutionScope:                                 "NoMatchedResolutionScope",
	ScopeIsDisposed:                                          "ScopeIsDisposed",
	ContainerIsDisposed:                                      "ContainerIsDisposed",
	MaxObjectGraphSizeExceeded:                               "MaxObjectGraphSizeExceeded",
	InvalidRuntimeArguments:                                  "InvalidRuntimeArguments",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// NotFound reports whether the code belongs to the "not found" class that
// IfUnresolvedReturnDefault suppresses.
func (c ErrorCode) NotFound() bool {
	return c == UnableToResolveUnknownService || c == NoMatchedGenericParamConstraints
}

// Sentinel errors for errors.Is. They match any *Error with the same code.
var (
	ErrUnknownService        = &Error{Code: UnableToResolveUnknownService}
	ErrExpectedSingleDefault = &Error{Code: ExpectedSingleDefaultFactory}
	ErrRecursiveDependency   = &Error{Code: RecursiveDependencyDetected}
	ErrShorterReuseLifespan  = &Error{Code: DependencyHasShorterReuseLifespan}
	ErrNoCurrentScope        = &Error{Code: NoCurrentScope}
	ErrScopeDisposed         = &Error{Code: ScopeIsDisposed}
	ErrContainerDisposed     = &Error{Code: ContainerIsDisposed}
)

// ErrResolverNotInContext is returned by ResolverFrom for contexts without
// a resolver.
var ErrResolverNotInContext = errors.New("resolver not found in context")

var _ error = (*Error)(nil)
var _ error = DisposalError{}
var _ error = ModuleError{}

// Error is the single error type raised by registration and resolution.
type Error struct {
	Code        ErrorCode
	ServiceType *Type
	ServiceKey  any
	Message     string

	// Chain renders the request path that led to the failure, outermost first.
	Chain string

	Cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code.String())

	if e.ServiceType != nil {
		b.WriteString(": ")
		b.WriteString(e.ServiceType.String())
		if e.ServiceKey != nil {
			fmt.Fprintf(&b, " (key: %v)", e.ServiceKey)
		}
	}

	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}

	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}

	if e.Chain != "" {
		b.WriteString("\n  in ")
		b.WriteString(e.Chain)
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors with the same code. A target carrying a service type
// also requires the same service type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Code != e.Code {
		return false
	}
	return t.ServiceType == nil || t.ServiceType == e.ServiceType
}

// HasCode reports whether err wraps an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// IsNotFound reports whether err means a service could not be found.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code.NotFound()
}

// DisposalError aggregates disposal errors.
type DisposalError struct {
	Context string // "container", "scope"
	Errors  []error
}

func (e DisposalError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("%s disposal failed: %v", e.Context, e.Errors[0])
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s disposal failed with %d errors:", e.Context, len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("\n  %d. %v", i+1, err))
	}
	return sb.String()
}

func (e DisposalError) Unwrap() []error {
	return e.Errors
}

// ModuleError is returned when a module fails to apply.
type ModuleError struct {
	Module string
	Cause  error
}

func (e ModuleError) Error() string {
	return fmt.Sprintf("module %q: %v", e.Module, e.Cause)
}

func (e ModuleError) Unwrap() error {
	return e.Cause
}

// newDisposalError flattens a joined error into a DisposalError.
func newDisposalError(context string, err error) error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return DisposalError{Context: context, Errors: joined.Unwrap()}
	}
	return DisposalError{Context: context, Errors: []error{err}}
}

// lifespanMessage explains a DependencyHasShorterReuseLifespan failure.
func lifespanMessage(consumer *Request, dep *Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s) cannot depend on %s (%s)",
		consumer.ServiceType(), consumer.Reuse(), dep.ServiceType(), dep.Reuse())

	b.WriteString("\n\nTo resolve this:\n")
	fmt.Fprintf(&b, "  • Give %s a reuse that lives no longer than %s\n", consumer.ServiceType(), dep.Reuse())
	fmt.Fprintf(&b, "  • Give %s a longer-lived reuse\n", dep.ServiceType())
	fmt.Fprintf(&b, "  • Depend on Func[T] or Lazy[T] to resolve %s lazily\n", dep.ServiceType())

	return b.String()
}
