package graft

import (
	"reflect"

	"github.com/junioryono/graft/internal/typesys"
)

// Type describes a service or implementation type. Descriptors are
// canonical, so two descriptors are the same type exactly when they are the
// same pointer.
type Type = typesys.Type

// GenericDef is an open generic definition. Apply it with Of.
type GenericDef = typesys.Def

// TypeParam declares a parameter of a GenericDef.
type TypeParam = typesys.Param

// Variance annotates a generic parameter.
type Variance = typesys.Variance

const (
	Invariant     = typesys.Invariant
	Covariant     = typesys.Covariant
	Contravariant = typesys.Contravariant
)

// TypeOf returns the descriptor for the Go type T.
//
// The built-in wrappers (Func, Func1, Lazy, Keyed, Meta, Many) and slices map
// to closed generics of the corresponding wrapper definitions, so
// TypeOf[Lazy[*DB]]() is LazyOf(TypeOf[*DB]()).
func TypeOf[T any]() *Type {
	return TypeFor(reflect.TypeFor[T]())
}

// TypeFor returns the descriptor for rt.
func TypeFor(rt reflect.Type) *Type {
	if rt == nil {
		return nil
	}
	if t, ok := typesys.Lookup(rt); ok {
		return t
	}

	if def, args, ok := wrapperShape(rt); ok {
		targs := make([]*Type, len(args))
		for i, a := range args {
			targs[i] = TypeFor(a)
		}
		t, _ := typesys.Attach(rt, def.Of(targs...))
		return t
	}

	return typesys.ForGo(rt)
}

// NewType creates a nominal descriptor that is not tied to a Go type. The
// new type is assignable to each of bases.
func NewType(name string, bases ...*Type) *Type {
	return typesys.New(name, bases...)
}

// Generic creates an open generic definition.
//
//	Handler := graft.Generic("Handler", graft.InParam("E"))
//	moveHandler := Handler.Of(move)
func Generic(name string, params ...TypeParam) *GenericDef {
	return typesys.NewDef(name, params...)
}

// Param declares an invariant generic parameter. Arguments must be
// assignable to every constraint.
func Param(name string, constraints ...*Type) TypeParam {
	return TypeParam{Name: name, Variance: Invariant, Constraints: constraints}
}

// InParam declares a contravariant generic parameter.
func InParam(name string, constraints ...*Type) TypeParam {
	return TypeParam{Name: name, Variance: Contravariant, Constraints: constraints}
}

// OutParam declares a covariant generic parameter.
func OutParam(name string, constraints ...*Type) TypeParam {
	return TypeParam{Name: name, Variance: Covariant, Constraints: constraints}
}

// Bind associates the Go type T with a descriptor, typically a closed
// generic, so that TypeOf[T]() returns it. Bind must run before the first
// TypeOf[T]() call.
//
//	var Repo = graft.Generic("Repo", graft.Param("T"))
//	graft.Bind[*SQLRepo[User]](Repo.Of(graft.TypeOf[User]()))
func Bind[T any](t *Type) (*Type, error) {
	rt := reflect.TypeFor[T]()
	bound, err := typesys.Attach(rt, t)
	if err != nil {
		return bound, &Error{Code: InvalidRegistration, ServiceType: t, Message: "cannot bind Go type " + typesys.FormatGoType(rt), Cause: err}
	}
	return bound, nil
}

// AssignableTo reports whether a value of src can be used where dst is
// expected, honouring Go assignability, embedding, declared bases and
// generic variance.
func AssignableTo(src, dst *Type) bool {
	return typesys.AssignableTo(src, dst)
}
