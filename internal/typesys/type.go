// Package typesys models service types as explicit descriptors.
//
// A descriptor is either plain (optionally backed by a Go type), a closed
// generic (a definition applied to arguments), an open generic (a definition
// applied to arguments that still contain placeholders) or a placeholder.
// Descriptors are canonical: the same definition applied to the same
// arguments always yields the same *Type, so identity is pointer identity.
package typesys

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
)

// Variance describes how a generic parameter relates assignability of
// closed types to assignability of their arguments.
type Variance int

const (
	// Invariant requires identical arguments.
	Invariant Variance = iota

	// Covariant (out) accepts a narrower argument: G[Derived] -> G[Base].
	Covariant

	// Contravariant (in) accepts a wider argument: G[Base] -> G[Derived].
	Contravariant
)

func (v Variance) String() string {
	switch v {
	case Invariant:
		return "invariant"
	case Covariant:
		return "out"
	case Contravariant:
		return "in"
	default:
		return fmt.Sprintf("Variance(%d)", int(v))
	}
}

// Param declares a generic parameter.
type Param struct {
	Name     string
	Variance Variance

	// Constraints lists types every argument must be assignable to.
	Constraints []*Type

	// Check is an optional predicate evaluated after Constraints.
	Check func(arg *Type) bool
}

// Satisfied reports whether arg meets the parameter's constraints.
func (p Param) Satisfied(arg *Type) bool {
	for _, c := range p.Constraints {
		if !AssignableTo(arg, c) {
			return false
		}
	}
	if p.Check != nil && !p.Check(arg) {
		return false
	}
	return true
}

var nextID atomic.Uint64

// Type is a service type descriptor.
type Type struct {
	id   uint64
	name string

	def  *Def
	args []*Type
	open bool

	// placeholder index, -1 when the type is not a placeholder
	index int
	owner *Def

	bases  []*Type
	goType atomic.Value // reflect.Type
}

func newType(name string) *Type {
	return &Type{id: nextID.Add(1), name: name, index: -1}
}

// New creates a plain nominal descriptor. Bases declare is-a relationships
// used by assignability checks.
func New(name string, bases ...*Type) *Type {
	t := newType(name)
	t.bases = append([]*Type(nil), bases...)
	return t
}

// ID returns the descriptor's unique id.
func (t *Type) ID() uint64 { return t.id }

// Name returns the unqualified name (the definition name for generics).
func (t *Type) Name() string { return t.name }

// Def returns the generic definition, or nil for non-generic types.
func (t *Type) Def() *Def { return t.def }

// Args returns the generic arguments.
func (t *Type) Args() []*Type { return t.args }

// Arg returns the i-th generic argument.
func (t *Type) Arg(i int) *Type { return t.args[i] }

// Bases returns the declared base types.
func (t *Type) Bases() []*Type { return t.bases }

// IsGeneric reports whether t is a definition applied to arguments.
func (t *Type) IsGeneric() bool { return t.def != nil }

// IsOpen reports whether t still contains placeholders.
func (t *Type) IsOpen() bool { return t.open || t.index >= 0 }

// IsPlaceholder reports whether t is a generic parameter placeholder.
func (t *Type) IsPlaceholder() bool { return t.index >= 0 }

// Index returns the placeholder position, -1 for other types.
func (t *Type) Index() int { return t.index }

// GoType returns the backing Go type, or nil for purely nominal descriptors.
func (t *Type) GoType() reflect.Type {
	if t == nil {
		return nil
	}
	rt, _ := t.goType.Load().(reflect.Type)
	return rt
}

// attach sets the backing Go type once. It reports false when a different
// Go type is already attached.
func (t *Type) attach(rt reflect.Type) bool {
	if t.goType.CompareAndSwap(nil, rt) {
		return true
	}
	return t.GoType() == rt
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	if t.def == nil {
		return t.name
	}
	var b strings.Builder
	b.WriteString(t.name)
	b.WriteByte('[')
	for i, a := range t.args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.String())
	}
	b.WriteByte(']')
	return b.String()
}

// Def is an open generic definition.
type Def struct {
	id     uint64
	name   string
	params []Param

	placeholders []*Type
	openType     *Type

	mu     sync.Mutex
	closed map[string]*Type
}

// NewDef creates a generic definition with the given parameters.
func NewDef(name string, params ...Param) *Def {
	if len(params) == 0 {
		panic(fmt.Sprintf("typesys: generic definition %s needs at least one parameter", name))
	}

	d := &Def{
		id:     nextID.Add(1),
		name:   name,
		params: append([]Param(nil), params...),
		closed: make(map[string]*Type),
	}

	d.placeholders = make([]*Type, len(params))
	for i, p := range params {
		ph := newType(p.Name)
		if ph.name == "" {
			ph.name = fmt.Sprintf("T%d", i)
		}
		ph.index = i
		ph.owner = d
		d.placeholders[i] = ph
	}
	d.openType = d.Of(d.placeholders...)

	return d
}

// Name returns the definition name.
func (d *Def) Name() string { return d.name }

// Arity returns the number of generic parameters.
func (d *Def) Arity() int { return len(d.params) }

// Params returns the declared parameters.
func (d *Def) Params() []Param { return d.params }

// Placeholder returns the placeholder standing for the i-th parameter.
func (d *Def) Placeholder(i int) *Type { return d.placeholders[i] }

// Placeholders returns all parameter placeholders in order.
func (d *Def) Placeholders() []*Type { return d.placeholders }

// Open returns the definition applied to its own placeholders.
func (d *Def) Open() *Type { return d.openType }

func (d *Def) String() string { return d.name }

// Of applies the definition to args. The result is canonical.
func (d *Def) Of(args ...*Type) *Type {
	if len(args) != len(d.params) {
		panic(fmt.Sprintf("typesys: %s expects %d type arguments, got %d", d.name, len(d.params), len(args)))
	}

	var key strings.Builder
	open := false
	for i, a := range args {
		if a == nil {
			panic(fmt.Sprintf("typesys: nil type argument %d for %s", i, d.name))
		}
		if a.IsOpen() {
			open = true
		}
		fmt.Fprintf(&key, "%d,", a.id)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.closed[key.String()]; ok {
		return t
	}

	t := newType(d.name)
	t.def = d
	t.args = append([]*Type(nil), args...)
	t.open = open
	d.closed[key.String()] = t

	return t
}
