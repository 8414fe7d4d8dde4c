package graft

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/junioryono/graft/internal/typesys"
)

var factoryIDs atomic.Uint64

// Factory is a stored registration. Factories are immutable once stored.
type Factory struct {
	id          uint64
	seq         uint64
	serviceType *Type
	key         any
	impl        Implementation
	reuse       Reuse
	setup       Setup

	// closed caches the factories produced from an open generic factory,
	// keyed by closed service type id.
	closed *sync.Map

	// open is the factory an instance was closed from.
	open *Factory
}

// ID returns the factory id. Reused instances are stored per factory id.
func (f *Factory) ID() uint64 { return f.id }

// ServiceType returns the type the factory is registered under.
func (f *Factory) ServiceType() *Type { return f.serviceType }

// Key returns the service key, nil for default registrations.
func (f *Factory) Key() any { return f.key }

// Implementation returns the implementation descriptor.
func (f *Factory) Implementation() Implementation { return f.impl }

// Reuse returns the factory's reuse.
func (f *Factory) Reuse() Reuse { return f.reuse }

// Setup returns the factory's setup.
func (f *Factory) Setup() Setup { return f.setup }

// Order returns the registration order. Replacing a registration keeps the
// order of the replaced one.
func (f *Factory) Order() uint64 { return f.seq }

// IsOpenGeneric reports whether the factory serves a family of closed types.
func (f *Factory) IsOpenGeneric() bool {
	_, ok := f.impl.(*OpenImpl)
	return ok
}

func (f *Factory) String() string {
	s := fmt.Sprintf("#%d %s", f.id, f.serviceType)
	if f.key != nil {
		s += fmt.Sprintf(" {%v}", f.key)
	}
	return s + " <- " + f.impl.describe()
}

// sameImplementation compares implementations for AppendNewImplementation.
func sameImplementation(a, b *Factory) bool {
	ai, bi := a.impl.ImplementationType(), b.impl.ImplementationType()
	if ai != nil || bi != nil {
		return ai == bi
	}
	return a.impl == b.impl
}

type closeResult int

const (
	closeNoMatch closeResult = iota
	closeConstraints
	closeOK
)

// closeFor derives the closed factory serving serviceType from an open
// generic factory. Closed factories are cached per service type so reused
// instances keep a stable id.
func (f *Factory) closeFor(serviceType *Type) (*Factory, closeResult, error) {
	open := f.impl.(*OpenImpl)

	if cached, ok := f.closed.Load(serviceType.ID()); ok {
		if cf, ok := cached.(*Factory); ok {
			return cf, closeOK, nil
		}
		return nil, cached.(closeResult), nil
	}

	template := open.template
	if template == nil {
		template = f.serviceType
	}

	binding := make([]*Type, open.def.Arity())
	if !typesys.Unify(template, serviceType, binding) {
		f.closed.Store(serviceType.ID(), closeNoMatch)
		return nil, closeNoMatch, nil
	}
	for i, p := range open.def.Params() {
		if binding[i] == nil || !p.Satisfied(binding[i]) {
			f.closed.Store(serviceType.ID(), closeConstraints)
			return nil, closeConstraints, nil
		}
	}

	impl, err := open.build(binding)
	if err != nil {
		return nil, closeNoMatch, err
	}
	if impl == nil {
		f.closed.Store(serviceType.ID(), closeConstraints)
		return nil, closeConstraints, nil
	}
	if _, nested := impl.(*OpenImpl); nested {
		return nil, closeNoMatch, fmt.Errorf("open generic builder for %s returned another open generic", serviceType)
	}
	if err := impl.prepare(open.analyzer); err != nil {
		return nil, closeNoMatch, err
	}

	closed := &Factory{
		id:          factoryIDs.Add(1),
		seq:         f.seq,
		serviceType: serviceType,
		key:         f.key,
		impl:        impl,
		reuse:       f.reuse,
		setup:       f.setup,
		open:        f,
	}

	actual, _ := f.closed.LoadOrStore(serviceType.ID(), closed)
	if cf, ok := actual.(*Factory); ok {
		return cf, closeOK, nil
	}
	return closed, closeOK, nil
}

// checkAssignable verifies that the implementation can produce values of
// the service type. A nominal service type accepts any Go implementation and
// interface results are only known once created.
func checkAssignable(serviceType *Type, impl Implementation) error {
	if _, ok := impl.(*OpenImpl); ok {
		return nil
	}

	implType := impl.ImplementationType()
	if implType == nil || implType == serviceType {
		return nil
	}

	st, it := serviceType.GoType(), implType.GoType()
	if st == nil && it != nil {
		return nil
	}
	if it != nil && it.Kind() == reflect.Interface {
		return nil
	}
	if !AssignableTo(implType, serviceType) {
		return fmt.Errorf("%s is not assignable to %s", implType, serviceType)
	}
	return nil
}
