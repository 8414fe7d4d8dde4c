package graft

import (
	"fmt"
	"iter"
	"reflect"
	"sync"

	"github.com/junioryono/graft/internal/typesys"
)

// Built-in wrapper definitions. A wrapper's argument names the wrapped
// service; wrappers nest, so []Lazy[Keyed[T]] is a valid dependency.
var (
	funcDef  = typesys.NewDef("Func", typesys.Param{Name: "T", Variance: typesys.Covariant})
	func1Def = typesys.NewDef("Func1",
		typesys.Param{Name: "A", Variance: typesys.Contravariant},
		typesys.Param{Name: "T", Variance: typesys.Covariant})
	lazyDef  = typesys.NewDef("Lazy", typesys.Param{Name: "T", Variance: typesys.Covariant})
	sliceDef = typesys.NewDef("Slice", typesys.Param{Name: "T", Variance: typesys.Covariant})
	manyDef  = typesys.NewDef("Many", typesys.Param{Name: "T", Variance: typesys.Covariant})
	keyedDef = typesys.NewDef("Keyed", typesys.Param{Name: "T", Variance: typesys.Covariant})
	metaDef  = typesys.NewDef("Meta", typesys.Param{Name: "T", Variance: typesys.Covariant})
)

// FuncOf returns the descriptor of Func[t].
func FuncOf(t *Type) *Type { return funcDef.Of(t) }

// Func1Of returns the descriptor of Func1[arg, t].
func Func1Of(arg, t *Type) *Type { return func1Def.Of(arg, t) }

// LazyOf returns the descriptor of Lazy[t].
func LazyOf(t *Type) *Type { return lazyDef.Of(t) }

// SliceOf returns the descriptor of the collection []t.
func SliceOf(t *Type) *Type { return sliceDef.Of(t) }

// ManyOf returns the descriptor of Many[t].
func ManyOf(t *Type) *Type { return manyDef.Of(t) }

// KeyedOf returns the descriptor of Keyed[t].
func KeyedOf(t *Type) *Type { return keyedDef.Of(t) }

// MetaOf returns the descriptor of Meta[t].
func MetaOf(t *Type) *Type { return metaDef.Of(t) }

// Func resolves its service on every call.
type Func[T any] func() (T, error)

// Func1 resolves its service on every call, supplying a as a runtime
// argument to the dependency that takes an A.
type Func1[A, T any] func(a A) (T, error)

// Lazy resolves its service on the first call to Value and remembers the
// result.
type Lazy[T any] struct {
	s *lazyState
}

type lazyState struct {
	once  sync.Once
	get   func() (any, error)
	value any
	err   error
}

func (s *lazyState) load() (any, error) {
	s.once.Do(func() {
		s.value, s.err = s.get()
	})
	return s.value, s.err
}

// Value returns the service, resolving it on first use. A failed resolution
// is remembered.
func (l Lazy[T]) Value() (T, error) {
	if l.s == nil {
		var zero T
		return zero, fmt.Errorf("lazy %s was not created by a container", typesys.FormatGoType(reflect.TypeFor[T]()))
	}
	v, err := l.s.load()
	if err != nil {
		var zero T
		return zero, err
	}
	return cast[T](v)
}

// Keyed pairs a service with the key it was registered under. Default
// registrations have a nil key.
type Keyed[T any] struct {
	Key   any
	Value T
}

// Meta pairs a service with the metadata given with WithMetadata.
type Meta[T any] struct {
	Value    T
	Metadata any
}

// Many is a dynamic collection: every iteration enumerates the
// registrations current at that time and resolves items one by one.
type Many[T any] struct {
	seq iter.Seq2[any, error]
}

// All yields each item, or an error for items that fail to resolve.
func (m Many[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		if m.seq == nil {
			return
		}
		for v, err := range m.seq {
			var item T
			if err == nil {
				item, err = cast[T](v)
			}
			if !yield(item, err) {
				return
			}
		}
	}
}

// Collect resolves every item, stopping at the first error.
func (m Many[T]) Collect() ([]T, error) {
	var out []T
	for v, err := range m.All() {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

func cast[T any](v any) (T, error) {
	if v == nil {
		var zero T
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, &Error{
			Code:    InvalidRuntimeArguments,
			Message: fmt.Sprintf("%T is not assignable to %s", v, typesys.FormatGoType(reflect.TypeFor[T]())),
		}
	}
	return t, nil
}

// wrapperParts carries what a plan computed for a wrapper value.
type wrapperParts struct {
	call     func(args []any) (any, error)
	key      any
	value    any
	metadata any
	seq      iter.Seq2[any, error]
}

// wrapperType is implemented by the zero values of the built-in wrapper
// types.
type wrapperType interface {
	wrapperDef() *typesys.Def
	wrapperArgs() []reflect.Type
	build(p wrapperParts) (any, error)
}

var wrapperTypeIface = reflect.TypeFor[wrapperType]()

func (Func[T]) wrapperDef() *typesys.Def      { return funcDef }
func (Func[T]) wrapperArgs() []reflect.Type { return []reflect.Type{reflect.TypeFor[T]()} }

func (Func[T]) build(p wrapperParts) (any, error) {
	return Func[T](func() (T, error) {
		v, err := p.call(nil)
		if err != nil {
			var zero T
			return zero, err
		}
		return cast[T](v)
	}), nil
}

func (Func1[A, T]) wrapperDef() *typesys.Def { return func1Def }

func (Func1[A, T]) wrapperArgs() []reflect.Type {
	return []reflect.Type{reflect.TypeFor[A](), reflect.TypeFor[T]()}
}

func (Func1[A, T]) build(p wrapperParts) (any, error) {
	return Func1[A, T](func(a A) (T, error) {
		v, err := p.call([]any{a})
		if err != nil {
			var zero T
			return zero, err
		}
		return cast[T](v)
	}), nil
}

func (Lazy[T]) wrapperDef() *typesys.Def      { return lazyDef }
func (Lazy[T]) wrapperArgs() []reflect.Type { return []reflect.Type{reflect.TypeFor[T]()} }

func (Lazy[T]) build(p wrapperParts) (any, error) {
	return Lazy[T]{s: &lazyState{get: func() (any, error) { return p.call(nil) }}}, nil
}

func (Keyed[T]) wrapperDef() *typesys.Def      { return keyedDef }
func (Keyed[T]) wrapperArgs() []reflect.Type { return []reflect.Type{reflect.TypeFor[T]()} }

func (Keyed[T]) build(p wrapperParts) (any, error) {
	v, err := cast[T](p.value)
	if err != nil {
		return nil, err
	}
	return Keyed[T]{Key: p.key, Value: v}, nil
}

func (Meta[T]) wrapperDef() *typesys.Def      { return metaDef }
func (Meta[T]) wrapperArgs() []reflect.Type { return []reflect.Type{reflect.TypeFor[T]()} }

func (Meta[T]) build(p wrapperParts) (any, error) {
	v, err := cast[T](p.value)
	if err != nil {
		return nil, err
	}
	return Meta[T]{Value: v, Metadata: p.metadata}, nil
}

func (Many[T]) wrapperDef() *typesys.Def      { return manyDef }
func (Many[T]) wrapperArgs() []reflect.Type { return []reflect.Type{reflect.TypeFor[T]()} }

func (Many[T]) build(p wrapperParts) (any, error) {
	return Many[T]{seq: p.seq}, nil
}

// wrapperShape recognises Go types that map to built-in wrapper
// definitions. Slices map to the collection definition.
func wrapperShape(rt reflect.Type) (*typesys.Def, []reflect.Type, bool) {
	if rt.Kind() == reflect.Slice && rt.Name() == "" {
		return sliceDef, []reflect.Type{rt.Elem()}, true
	}
	if rt.Name() == "" || !rt.Implements(wrapperTypeIface) {
		return nil, nil, false
	}
	w := reflect.Zero(rt).Interface().(wrapperType)
	return w.wrapperDef(), w.wrapperArgs(), true
}

// goWrapper returns the zero value used to build a wrapper of t. Wrappers
// of nominal services fall back to their any instantiation.
func goWrapper(t *Type) (wrapperType, error) {
	if rt := t.GoType(); rt != nil {
		if w, ok := reflect.Zero(rt).Interface().(wrapperType); ok {
			return w, nil
		}
	}
	switch t.Def() {
	case funcDef:
		return Func[any](nil), nil
	case func1Def:
		return Func1[any, any](nil), nil
	case lazyDef:
		return Lazy[any]{}, nil
	case keyedDef:
		return Keyed[any]{}, nil
	case metaDef:
		return Meta[any]{}, nil
	case manyDef:
		return Many[any]{}, nil
	}
	return nil, fmt.Errorf("%s is not a wrapper", t)
}

// sliceGoType returns the Go slice type a collection of t is built as.
func sliceGoType(t *Type) reflect.Type {
	if rt := t.GoType(); rt != nil && rt.Kind() == reflect.Slice {
		return rt
	}
	return reflect.TypeFor[[]any]()
}

func isBuiltinWrapper(def *typesys.Def) bool {
	switch def {
	case funcDef, func1Def, lazyDef, sliceDef, manyDef, keyedDef, metaDef:
		return true
	}
	return false
}

// isDeferredWrapper reports whether the wrapper resolves its service after
// the consumer is created.
func isDeferredWrapper(def *typesys.Def) bool {
	switch def {
	case funcDef, func1Def, lazyDef, manyDef:
		return true
	}
	return false
}

// wrappedArg returns the argument naming the wrapped service.
func wrappedArg(t *Type) *Type {
	if t.Def() == func1Def {
		return t.Arg(1)
	}
	return t.Arg(0)
}
