package graft

import (
	"fmt"
	"iter"
	"reflect"

	"github.com/junioryono/graft/internal/typesys"
)

// Resolver resolves services. *Container implements it; delegates receive
// the Resolver of the scope they are resolved from, and constructors can
// depend on Resolver directly.
type Resolver interface {
	Resolve(serviceType *Type, opts ...ResolveOption) (any, error)
	ResolveMany(serviceType *Type, opts ...ResolveOption) iter.Seq2[any, error]
	IsRegistered(serviceType *Type, opts ...ResolveOption) bool
	OpenScope(opts ...ScopeOption) (*Container, error)
}

var (
	_ Resolver = (*Container)(nil)

	resolverType = TypeOf[Resolver]()
)

// Resolve resolves the service T.
//
//	svc, err := graft.Resolve[*UserService](c)
//	cache, err := graft.Resolve[Cache](c, graft.WithKey("redis"))
func Resolve[T any](r Resolver, opts ...ResolveOption) (T, error) {
	var zero T
	if r == nil {
		return zero, &Error{Code: InvalidRuntimeArguments, ServiceType: TypeOf[T](), Message: "resolver cannot be nil"}
	}
	v, err := r.Resolve(TypeOf[T](), opts...)
	if err != nil {
		return zero, err
	}
	return cast[T](v)
}

// MustResolve resolves T or panics. Use it where a failure is a programming
// error, such as application startup.
func MustResolve[T any](r Resolver, opts ...ResolveOption) T {
	v, err := Resolve[T](r, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve %s: %v", typesys.FormatGoType(reflect.TypeFor[T]()), err))
	}
	return v
}

// ResolveAs resolves serviceType and returns it as T, for services
// described by nominal types.
func ResolveAs[T any](r Resolver, serviceType *Type, opts ...ResolveOption) (T, error) {
	var zero T
	if r == nil {
		return zero, &Error{Code: InvalidRuntimeArguments, ServiceType: serviceType, Message: "resolver cannot be nil"}
	}
	v, err := r.Resolve(serviceType, opts...)
	if err != nil {
		return zero, err
	}
	return cast[T](v)
}

// ResolveMany resolves every registration of T, in registration order.
func ResolveMany[T any](r Resolver, opts ...ResolveOption) ([]T, error) {
	if r == nil {
		return nil, &Error{Code: InvalidRuntimeArguments, ServiceType: TypeOf[T](), Message: "resolver cannot be nil"}
	}
	var out []T
	for v, err := range r.ResolveMany(TypeOf[T](), opts...) {
		if err != nil {
			return nil, err
		}
		item, err := cast[T](v)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// Register registers impl as the implementation of T.
//
//	graft.Register[Cache](c, graft.Ctor(NewRedisCache), graft.WithReuse(graft.Singleton))
func Register[T any](c *Container, impl Implementation, opts ...RegisterOption) error {
	return c.Register(TypeOf[T](), impl, opts...)
}

// RegisterCtor registers constructor fn under its result type.
//
//	graft.RegisterCtor(c, NewUserService, graft.WithReuse(graft.Scoped))
func RegisterCtor(c *Container, fn any, opts ...RegisterOption) error {
	impl := Ctor(fn)
	if err := impl.prepare(c.core.analyzer); err != nil {
		return &Error{Code: InvalidRegistration, Message: "constructor", Cause: err}
	}
	return c.Register(impl.ImplementationType(), impl, opts...)
}

// RegisterDelegate registers fn as the implementation of T.
func RegisterDelegate[T any](c *Container, fn func(Resolver) (T, error), opts ...RegisterOption) error {
	return c.Register(TypeOf[T](), DelegateOf(fn), opts...)
}

// RegisterInstance registers v as the instance of T.
func RegisterInstance[T any](c *Container, v T, opts ...RegisterOption) error {
	return c.RegisterInstance(TypeOf[T](), v, opts...)
}

// RegisterDecorator registers fn as a decorator of T. fn takes the
// decorated T as one of its parameters.
//
//	graft.RegisterDecorator[Cache](c, func(inner Cache, m *Metrics) Cache {
//	    return &instrumentedCache{inner: inner, metrics: m}
//	})
func RegisterDecorator[T any](c *Container, fn any, opts ...RegisterOption) error {
	return c.Register(TypeOf[T](), Ctor(fn), append(opts, AsDecorator())...)
}
