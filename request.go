package graft

import (
	"fmt"
	"strings"
)

type requestFlags uint16

const (
	// flagDeferred marks Func, Func1, Lazy and Many wrappers and resolution
	// calls. Cycle and lifespan checks stop at deferred requests.
	flagDeferred requestFlags = 1 << iota
	flagWrapper
	flagOptional
	flagCollectionItem
	flagOpensResolutionScope
	flagResolveCallRoot
	flagWrappedService
	flagValidating
)

// Request is a node of the dependency tree built while compiling a plan.
// Conditions and selectors receive requests; they are read-only outside the
// builder and must not be retained.
type Request struct {
	serviceType  *Type
	requiredType *Type
	key          any
	parent       *Request
	factory      *Factory
	reuse        Reuse
	depth        int
	flags        requestFlags

	// pinned forces the factory of the innermost service, used for
	// collection items.
	pinned *pin

	// inner is the factory selected for the service inside a wrapper.
	inner *Factory

	// wrapped is the wrapped service of a user wrapper.
	wrapped *Type

	// args holds the runtime arguments available to the subtree.
	args *argFrame
}

// validating reports whether r belongs to a plan built by Validate.
func (r *Request) validating() bool {
	root := r
	for root.parent != nil {
		root = root.parent
	}
	return root.flags&flagValidating != 0
}

// pin fixes the factory used for requests of type t.
type pin struct {
	t *Type
	f *Factory
}

type argFrame struct {
	types []*Type
	used  []bool
}

func newArgFrame(types []*Type) *argFrame {
	return &argFrame{types: types, used: make([]bool, len(types))}
}

// ServiceType returns the requested service type.
func (r *Request) ServiceType() *Type { return r.serviceType }

// RequiredType returns the required service type override, nil if none.
func (r *Request) RequiredType() *Type { return r.requiredType }

// Key returns the requested service key.
func (r *Request) Key() any { return r.key }

// Parent returns the consumer of this request, nil at the root.
func (r *Request) Parent() *Request { return r.parent }

// Factory returns the selected factory, nil until one is selected.
func (r *Request) Factory() *Factory { return r.factory }

// Reuse returns the reuse of the selected factory.
func (r *Request) Reuse() Reuse {
	if r.reuse == nil {
		return Transient
	}
	return r.reuse
}

// Depth returns the distance from the root request.
func (r *Request) Depth() int { return r.depth }

// IsWrapped reports whether the request is the service of a wrapper such as
// Lazy or a collection.
func (r *Request) IsWrapped() bool {
	return r.parent != nil && r.parent.flags&flagWrapper != 0
}

// IsDeferred reports whether the request sits behind Func, Lazy or Many.
func (r *Request) IsDeferred() bool { return r.flags&flagDeferred != 0 }

// IsCollectionItem reports whether the request builds an item of a collection.
func (r *Request) IsCollectionItem() bool { return r.flags&flagCollectionItem != 0 }

// lookupType is the type registrations are searched for. Built-in wrappers
// pass the required type on to the wrapped service.
func (r *Request) lookupType() *Type {
	if r.requiredType == nil || r.passesRequiredType() {
		return r.serviceType
	}
	return r.requiredType
}

func (r *Request) passesRequiredType() bool {
	t := r.serviceType
	if !t.IsGeneric() || !isBuiltinWrapper(t.Def()) {
		return false
	}
	return r.requiredType.Def() != t.Def()
}

func (r *Request) push(serviceType *Type, key any) *Request {
	return &Request{
		serviceType: serviceType,
		key:         key,
		parent:      r,
		depth:       r.depth + 1,
		args:        r.args,
	}
}

// pushWrapped creates the request for the service inside a wrapper. Pins,
// required types and deferral travel down to the wrapped service.
func (r *Request) pushWrapped(serviceType *Type, key any, deferred bool) *Request {
	child := r.push(serviceType, key)
	child.requiredType = r.requiredType
	child.pinned = r.pinned
	child.flags = r.flags&(flagCollectionItem|flagOptional) | flagWrappedService
	if deferred {
		child.flags |= flagDeferred
	}
	return child
}

// String renders the request chain from the root.
func (r *Request) String() string {
	var parts []string
	for cur := r; cur != nil; cur = cur.parent {
		parts = append(parts, cur.describe())
	}

	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteString(parts[i])
		if i > 0 {
			b.WriteString(" -> ")
		}
	}
	return b.String()
}

func (r *Request) describe() string {
	s := r.serviceType.String()
	if r.requiredType != nil && r.requiredType != r.serviceType {
		s += " as " + r.requiredType.String()
	}
	if r.key != nil {
		s += fmt.Sprintf(" {%v}", r.key)
	}
	if r.reuse != nil && !isTransient(r.reuse) {
		s += " " + r.reuse.String()
	}
	return s
}

// matchArg returns the index of the unused runtime argument assignable to
// t, or -1.
func (r *Request) matchArg(t *Type) int {
	frame := r.args
	if frame == nil {
		return -1
	}
	for i, at := range frame.types {
		if !frame.used[i] && (at == t || AssignableTo(at, t)) {
			frame.used[i] = true
			return i
		}
	}
	return -1
}
