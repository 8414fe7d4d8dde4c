package graft

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"

	"github.com/junioryono/graft/internal/registry"
)

// snapshot is an immutable registry version. Registration publishes a new
// snapshot; readers keep using the one they loaded.
type snapshot struct {
	version    uint64
	services   registry.Table[*Factory]
	decorators registry.Table[*Factory]
	wrappers   registry.Table[*Factory]
	plans      *planCache
}

type registryItem = registry.KeyedItem[*Factory]

func emptySnapshot() *snapshot {
	return &snapshot{
		services:   registry.NewTable[*Factory](),
		decorators: registry.NewTable[*Factory](),
		wrappers:   registry.NewTable[*Factory](),
		plans:      newPlanCache(),
	}
}

func (s *snapshot) table(kind SetupKind) registry.Table[*Factory] {
	switch kind {
	case DecoratorSetup:
		return s.decorators
	case WrapperSetup:
		return s.wrappers
	default:
		return s.services
	}
}

func (s *snapshot) with(kind SetupKind, t registry.Table[*Factory]) *snapshot {
	next := &snapshot{
		version:    s.version + 1,
		services:   s.services,
		decorators: s.decorators,
		wrappers:   s.wrappers,
		plans:      newPlanCache(),
	}
	switch kind {
	case DecoratorSetup:
		next.decorators = t
	case WrapperSetup:
		next.wrappers = t
	default:
		next.services = t
	}
	return next
}

// factories returns the factories registered for t under key. A nil key
// returns the defaults.
func (s *snapshot) factories(kind SetupKind, t *Type, key any) []*Factory {
	entry := s.table(kind).Get(t)
	if entry == nil {
		return nil
	}
	if key == nil {
		return entry.Defaults()
	}
	if f, ok := entry.Find(key); ok {
		return []*Factory{f}
	}
	return nil
}

var registryHooks = registry.Hooks[*Factory]{
	SameImplementation: sameImplementation,
	Inherit: func(prev, next *Factory) *Factory {
		inherited := *next
		inherited.seq = prev.seq
		return &inherited
	},
}

// Register adds a registration of serviceType.
//
//	err := c.Register(graft.TypeOf[Cache](), graft.Ctor(NewRedisCache),
//	    graft.WithReuse(graft.Singleton))
func (c *Container) Register(serviceType *Type, impl Implementation, opts ...RegisterOption) error {
	f, policy, err := c.newFactory(serviceType, impl, opts)
	if err != nil {
		return err
	}
	return c.store(f, policy)
}

// RegisterMany registers each implementation under every service type it is
// assignable to. With no service types an implementation is registered
// under its own type and its declared bases. The registrations of one
// implementation share reused instances.
func (c *Container) RegisterMany(impls []Implementation, serviceTypes []*Type, opts ...RegisterOption) error {
	for _, impl := range impls {
		if impl == nil {
			return &Error{Code: InvalidRegistration, Message: "implementation cannot be nil"}
		}
		if err := impl.prepare(c.core.analyzer); err != nil {
			return &Error{Code: InvalidRegistration, Message: impl.describe(), Cause: err}
		}

		implType := impl.ImplementationType()
		targets := serviceTypes
		if len(targets) == 0 {
			if implType == nil {
				return &Error{Code: InvalidRegistration, Message: "implementation type is unknown, service types are required"}
			}
			targets = append([]*Type{implType}, implType.Bases()...)
		}

		var id uint64
		registered := 0
		for _, st := range targets {
			if implType != nil && implType.GoType() != nil && st.GoType() != nil && !AssignableTo(implType, st) {
				continue
			}
			f, policy, err := c.newFactory(st, impl, opts)
			if err != nil {
				return err
			}
			if id == 0 {
				id = f.id
			}
			f.id = id
			if err := c.store(f, policy); err != nil {
				return err
			}
			registered++
		}
		if registered == 0 {
			return &Error{
				Code:        ImplementationNotAssignableToServiceType,
				ServiceType: implType,
				Message:     "implementation is not assignable to any of the service types",
			}
		}
	}
	return nil
}

// RegisterDelegate registers fn as the implementation of serviceType.
func (c *Container) RegisterDelegate(serviceType *Type, fn func(Resolver) (any, error), opts ...RegisterOption) error {
	d := Delegate(fn)
	d.implType = serviceType
	return c.Register(serviceType, d, opts...)
}

// RegisterInstance registers v as the instance of serviceType. Instances are
// singletons unless WithReuse says otherwise; they are disposed with the
// container unless PreventDisposal is given.
func (c *Container) RegisterInstance(serviceType *Type, v any, opts ...RegisterOption) error {
	return c.Register(serviceType, Instance(v), append([]RegisterOption{WithReuse(Singleton)}, opts...)...)
}

func (c *Container) newFactory(serviceType *Type, impl Implementation, opts []RegisterOption) (*Factory, IfAlreadyRegistered, error) {
	if c.core.disposed.Load() {
		return nil, 0, &Error{Code: ContainerIsDisposed}
	}
	if serviceType == nil {
		return nil, 0, &Error{Code: InvalidRegistration, Message: "service type cannot be nil"}
	}
	if impl == nil {
		return nil, 0, &Error{Code: InvalidRegistration, ServiceType: serviceType, Message: "implementation cannot be nil"}
	}

	o := registerOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt.applyRegister(&o)
		}
	}

	rules := c.core.rules
	policy := rules.DefaultIfAlreadyRegistered
	if o.policy != nil {
		policy = *o.policy
	}
	reuse := o.reuse
	if reuse == nil {
		reuse = rules.DefaultReuse
	}
	if reuse == nil {
		reuse = Transient
	}
	if !reuse.Kind().IsValid() {
		return nil, 0, &Error{Code: InvalidRegistration, ServiceType: serviceType, Message: "invalid reuse " + reuse.String()}
	}

	if o.key != nil && !reflect.TypeOf(o.key).Comparable() {
		return nil, 0, &Error{Code: InvalidRegistration, ServiceType: serviceType, Message: fmt.Sprintf("service key of type %T is not comparable", o.key)}
	}

	if err := impl.prepare(c.core.analyzer); err != nil {
		return nil, 0, &Error{Code: InvalidRegistration, ServiceType: serviceType, Message: impl.describe(), Cause: err}
	}

	_, open := impl.(*OpenImpl)
	switch {
	case open && !serviceType.IsOpen():
		return nil, 0, &Error{Code: InvalidRegistration, ServiceType: serviceType, Message: "open generic implementation needs an open service type"}
	case !open && serviceType.IsOpen():
		return nil, 0, &Error{Code: InvalidRegistration, ServiceType: serviceType, Message: "open service type needs an open generic implementation"}
	case open:
		oi := impl.(*OpenImpl)
		if oi.template == nil && oi.def != serviceType.Def() {
			return nil, 0, &Error{Code: InvalidRegistration, ServiceType: serviceType, Message: "open generic implementation of another definition needs Implements"}
		}
	}

	if err := checkAssignable(serviceType, impl); err != nil {
		return nil, 0, &Error{Code: ImplementationNotAssignableToServiceType, ServiceType: serviceType, Cause: err}
	}

	switch o.setup.Kind {
	case DecoratorSetup:
		if err := checkDecorator(serviceType, impl); err != nil {
			return nil, 0, &Error{Code: InvalidRegistration, ServiceType: serviceType, Message: "invalid decorator", Cause: err}
		}
	case WrapperSetup:
		if !open {
			return nil, 0, &Error{Code: InvalidRegistration, ServiceType: serviceType, Message: "wrappers must be open generics"}
		}
		if idx := o.setup.WrappedArgIndex; idx < 0 || idx >= serviceType.Def().Arity() {
			return nil, 0, &Error{Code: InvalidRegistration, ServiceType: serviceType, Message: fmt.Sprintf("wrapped argument index %d out of range", idx)}
		}
	}

	id := factoryIDs.Add(1)
	f := &Factory{
		id:          id,
		seq:         id,
		serviceType: serviceType,
		key:         o.key,
		impl:        impl,
		reuse:       reuse,
		setup:       o.setup,
	}
	if open {
		f.closed = &sync.Map{}
	}
	return f, policy, nil
}

// store publishes a snapshot containing f, retrying on concurrent swaps.
func (c *Container) store(f *Factory, policy IfAlreadyRegistered) error {
	for {
		cur := c.core.snap.Load()
		table, changed, err := cur.table(f.setup.Kind).Add(f.serviceType, f.key, f, policy, registryHooks)
		if err != nil {
			code := InvalidRegistration
			switch {
			case errors.Is(err, registry.ErrDuplicateDefault):
				code = UnableToRegisterDuplicateDefault
			case errors.Is(err, registry.ErrDuplicateKey):
				code = UnableToRegisterDuplicateKey
			}
			return &Error{Code: code, ServiceType: f.serviceType, ServiceKey: f.key, Cause: err}
		}
		if !changed {
			return nil
		}

		next := cur.with(f.setup.Kind, table)
		if c.core.snap.CompareAndSwap(cur, next) {
			c.core.logger.Debug("registered service",
				slog.String("service", f.serviceType.String()),
				slog.Any("key", f.key),
				slog.String("reuse", f.reuse.String()),
				slog.String("kind", f.setup.Kind.String()),
				slog.Uint64("version", next.version))
			return nil
		}
	}
}

// Unregister removes registrations of serviceType and reports whether any
// was removed. Decorators and wrappers registered under serviceType are
// removed as well.
func (c *Container) Unregister(serviceType *Type, opts ...UnregisterOption) bool {
	if serviceType == nil || c.core.disposed.Load() {
		return false
	}

	o := unregisterOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	match := func(key any, f *Factory) bool {
		if !o.all && key != o.key {
			return false
		}
		return o.where == nil || o.where(f)
	}

	for {
		cur := c.core.snap.Load()
		next := cur
		removed := 0
		for _, kind := range []SetupKind{ServiceSetup, DecoratorSetup, WrapperSetup} {
			table, n := next.table(kind).Remove(serviceType, match)
			if n > 0 {
				next = next.with(kind, table)
				removed += n
			}
		}
		if removed == 0 {
			return false
		}
		next.version = cur.version + 1
		if c.core.snap.CompareAndSwap(cur, next) {
			c.core.logger.Debug("unregistered service",
				slog.String("service", serviceType.String()),
				slog.Int("removed", removed),
				slog.Uint64("version", next.version))
			return true
		}
	}
}

// IsRegistered reports whether serviceType has a registration under the
// key given with WithKey, directly or through an open generic.
func (c *Container) IsRegistered(serviceType *Type, opts ...ResolveOption) bool {
	if serviceType == nil {
		return false
	}
	o := newResolveOptions(opts)
	snap := c.core.snap.Load()

	if len(snap.factories(ServiceSetup, serviceType, o.key)) > 0 {
		return true
	}
	if !serviceType.IsGeneric() || serviceType.IsOpen() {
		return false
	}
	for _, f := range snap.factories(ServiceSetup, serviceType.Def().Open(), o.key) {
		if _, res, _ := f.closeFor(serviceType); res == closeOK {
			return true
		}
	}
	return false
}

// Factories returns the service registrations in registration order.
func (c *Container) Factories() []*Factory {
	snap := c.core.snap.Load()
	var out []*Factory
	for _, entry := range snap.services.All() {
		out = append(out, entry.Defaults()...)
		for _, k := range entry.Keyed() {
			out = append(out, k.Item)
		}
	}
	slices.SortStableFunc(out, func(a, b *Factory) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return out
}
