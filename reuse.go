package graft

import (
	"encoding/json"
	"fmt"
)

// ReuseKind identifies the sharing policy of a Reuse.
type ReuseKind int

const (
	// TransientKind creates a new instance for every request.
	TransientKind ReuseKind = iota

	// SingletonKind creates one instance for the container and stores it in
	// the container's root scope.
	SingletonKind

	// ScopedKind stores one instance per current scope.
	ScopedKind

	// ScopedToNameKind stores one instance in the nearest scope with a given name.
	ScopedToNameKind

	// ScopedToServiceKind stores one instance in the resolution scope opened
	// for a given service.
	ScopedToServiceKind

	// ResolutionScopeKind binds to the resolution scope of a matching
	// ancestor in the dependency graph.
	ResolutionScopeKind

	// ScopedOrSingletonKind uses the current scope when one is open and the
	// root scope otherwise.
	ScopedOrSingletonKind
)

// Relative lifespans used to reject shorter-lived dependencies.
const (
	SingletonLifespan = 1000
	ScopedLifespan    = 100
)

// String returns the string representation of the ReuseKind.
func (k ReuseKind) String() string {
	switch k {
	case TransientKind:
		return "Transient"
	case SingletonKind:
		return "Singleton"
	case ScopedKind:
		return "Scoped"
	case ScopedToNameKind:
		return "ScopedTo"
	case ScopedToServiceKind:
		return "ScopedToService"
	case ResolutionScopeKind:
		return "InResolutionScope"
	case ScopedOrSingletonKind:
		return "ScopedOrSingleton"
	default:
		return fmt.Sprintf("Unknown(%d)", int(k))
	}
}

// IsValid checks if the reuse kind is valid.
func (k ReuseKind) IsValid() bool {
	return k >= TransientKind && k <= ScopedOrSingletonKind
}

// MarshalText implements encoding.TextMarshaler.
func (k ReuseKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ReuseKind) UnmarshalText(text []byte) error {
	for candidate := TransientKind; candidate <= ScopedOrSingletonKind; candidate++ {
		if candidate.String() == string(text) {
			*k = candidate
			return nil
		}
	}

	switch string(text) {
	case "transient":
		*k = TransientKind
	case "singleton":
		*k = SingletonKind
	case "scoped":
		*k = ScopedKind
	default:
		return &Error{Code: InvalidRegistration, Message: fmt.Sprintf("invalid reuse kind %q", text)}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (k ReuseKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (k *ReuseKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	return k.UnmarshalText([]byte(s))
}

// Reuse decides where, if anywhere, a created instance is stored.
type Reuse interface {
	Kind() ReuseKind

	// Lifespan orders reuses by how long their instances live. A dependency
	// may not have a shorter lifespan than its consumer. Zero disables the
	// check for the dependency.
	Lifespan() int

	String() string
}

type transientReuse struct{}

func (transientReuse) Kind() ReuseKind { return TransientKind }
func (transientReuse) Lifespan() int   { return 0 }
func (transientReuse) String() string  { return "Transient" }

type singletonReuse struct{}

func (singletonReuse) Kind() ReuseKind { return SingletonKind }
func (singletonReuse) Lifespan() int   { return SingletonLifespan }
func (singletonReuse) String() string  { return "Singleton" }

type scopedReuse struct{}

func (scopedReuse) Kind() ReuseKind { return ScopedKind }
func (scopedReuse) Lifespan() int   { return ScopedLifespan }
func (scopedReuse) String() string  { return "Scoped" }

type scopedOrSingletonReuse struct{}

func (scopedOrSingletonReuse) Kind() ReuseKind { return ScopedOrSingletonKind }
func (scopedOrSingletonReuse) Lifespan() int   { return ScopedLifespan }
func (scopedOrSingletonReuse) String() string  { return "ScopedOrSingleton" }

type scopedToNameReuse struct {
	name any
}

func (scopedToNameReuse) Kind() ReuseKind  { return ScopedToNameKind }
func (scopedToNameReuse) Lifespan() int    { return ScopedLifespan }
func (r scopedToNameReuse) String() string { return fmt.Sprintf("ScopedTo(%v)", r.name) }

type scopedToServiceReuse struct {
	name ResolutionScopeName
}

func (scopedToServiceReuse) Kind() ReuseKind  { return ScopedToServiceKind }
func (scopedToServiceReuse) Lifespan() int    { return ScopedLifespan }
func (r scopedToServiceReuse) String() string { return "ScopedToService(" + r.name.String() + ")" }

type resolutionScopeReuse struct {
	serviceType *Type
	key         any
	outermost   bool
}

func (resolutionScopeReuse) Kind() ReuseKind { return ResolutionScopeKind }
func (resolutionScopeReuse) Lifespan() int   { return 0 }

func (r resolutionScopeReuse) String() string {
	s := "InResolutionScope(" + r.serviceType.String()
	if r.key != nil {
		s += fmt.Sprintf(", %v", r.key)
	}
	if r.outermost {
		s += ", outermost"
	}
	return s + ")"
}

var (
	// Transient creates a new instance on every resolution.
	Transient Reuse = transientReuse{}

	// Singleton shares one instance per container.
	Singleton Reuse = singletonReuse{}

	// Scoped shares one instance per open scope. Resolving a scoped service
	// with no open scope fails with NoCurrentScope.
	Scoped Reuse = scopedReuse{}

	// ScopedOrSingleton shares one instance per open scope, or per container
	// when no scope is open.
	ScopedOrSingleton Reuse = scopedOrSingletonReuse{}
)

// ScopedTo shares one instance in the nearest open scope named name.
func ScopedTo(name any) Reuse {
	return scopedToNameReuse{name: name}
}

// ScopedToService shares one instance in the resolution scope opened for
// the given service, see OpenResolutionScope.
func ScopedToService(serviceType *Type, key any) Reuse {
	return scopedToServiceReuse{name: ResolutionScopeName{ServiceType: serviceType, Key: key}}
}

// InResolutionScope shares one instance per resolution of the nearest
// ancestor in the dependency graph that is assignable to serviceType (and
// registered with key, when key is not nil). With outermost set the
// farthest matching ancestor is used. The matched ancestor opens a
// resolution scope automatically.
func InResolutionScope(serviceType *Type, key any, outermost bool) Reuse {
	return resolutionScopeReuse{serviceType: serviceType, key: key, outermost: outermost}
}

// ResolutionScopeName names the scope opened around the construction of a
// service registered with OpenResolutionScope.
type ResolutionScopeName struct {
	ServiceType *Type
	Key         any
}

func (n ResolutionScopeName) String() string {
	if n.Key != nil {
		return fmt.Sprintf("%s{%v}", n.ServiceType, n.Key)
	}
	return n.ServiceType.String()
}

func isTransient(r Reuse) bool {
	return r == nil || r.Kind() == TransientKind
}
