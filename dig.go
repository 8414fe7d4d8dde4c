package graft

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/dig"
)

// DigFallback resolves services missing from the container through dc.
// Service keys map to dig names, so only string keys are forwarded.
// Values come from dig's own cache; the container stores them with the
// default reuse.
//
//	dc := dig.New()
//	_ = dc.Provide(NewLegacyClient)
//	c := graft.New(graft.DigFallback(dc))
func DigFallback(dc *dig.Container) Option {
	b := &digBridge{dc: dc}
	return WithUnknownServiceResolvers(b.resolver)
}

// digBridge serialises access to the dig container and remembers which
// services dig could supply.
type digBridge struct {
	mu    sync.Mutex
	dc    *dig.Container
	known sync.Map // digKey -> struct{}
}

type digKey struct {
	t    reflect.Type
	name string
}

func (b *digBridge) resolver(r *Request) Implementation {
	t := r.lookupType()
	rt := t.GoType()
	if rt == nil || b.dc == nil {
		return nil
	}

	key, name := r.Key(), ""
	if key != nil {
		s, ok := key.(string)
		if !ok {
			return nil
		}
		name = s
	}

	if !b.provides(digKey{t: rt, name: name}, r.validating()) {
		return nil
	}

	return &DelegateImpl{
		implType: t,
		fn: func(Resolver) (any, error) {
			v, err := b.extract(rt, name)
			if err != nil {
				return nil, &Error{Code: UnableToResolveUnknownService, ServiceType: t, ServiceKey: key, Message: "dig", Cause: err}
			}
			return v, nil
		},
	}
}

// provides reports whether dig supplies k. dig has no lookup API, so the
// answer comes from a successful extraction. Validation never extracts: it
// assumes a service not seen yet is provided.
func (b *digBridge) provides(k digKey, validating bool) bool {
	if _, ok := b.known.Load(k); ok || validating {
		return true
	}
	if _, err := b.extract(k.t, k.name); err != nil {
		return false
	}
	b.known.Store(k, struct{}{})
	return true
}

// extract invokes a function taking rt, or an In struct naming it, and
// captures the argument dig passes in.
func (b *digBridge) extract(rt reflect.Type, name string) (any, error) {
	param := rt
	if name != "" {
		param = reflect.StructOf([]reflect.StructField{
			{
				Name:      "In",
				Type:      reflect.TypeFor[dig.In](),
				Anonymous: true,
			},
			{
				Name: "Service",
				Type: rt,
				Tag:  reflect.StructTag(fmt.Sprintf(`name:"%s"`, name)),
			},
		})
	}

	var result any
	fnType := reflect.FuncOf([]reflect.Type{param}, nil, false)
	fn := reflect.MakeFunc(fnType, func(args []reflect.Value) []reflect.Value {
		v := args[0]
		if name != "" {
			v = v.FieldByName("Service")
		}
		result = v.Interface()
		return nil
	})

	b.mu.Lock()
	err := b.dc.Invoke(fn.Interface())
	b.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return result, nil
}
