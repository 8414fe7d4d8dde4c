package graft

import (
	"fmt"
	"reflect"

	"github.com/junioryono/graft/internal/reflection"
)

// Implementation describes how a registration produces instances. The
// variants are CtorImpl, MethodImpl, DelegateImpl, InstanceImpl,
// ForwardImpl and OpenImpl.
type Implementation interface {
	// ImplementationType returns the type of produced values, nil if unknown.
	ImplementationType() *Type

	prepare(a *reflection.Analyzer) error
	describe() string
}

// CtorImpl builds instances by calling one of several constructor functions.
// Each function returns the instance, optionally followed by an error, and
// declares its dependencies as parameters (or as fields of a struct that
// embeds In).
type CtorImpl struct {
	fns        []any
	candidates []*reflection.ConstructorInfo
	selector   *ConstructorSelector
}

// Ctor describes an implementation built by one of fns. With more than one
// candidate a ConstructorSelector picks the one to call.
func Ctor(fns ...any) *CtorImpl {
	return &CtorImpl{fns: fns}
}

// Select overrides the container's constructor selection policy.
func (c *CtorImpl) Select(sel ConstructorSelector) *CtorImpl {
	c.selector = &sel
	return c
}

func (c *CtorImpl) prepare(a *reflection.Analyzer) error {
	if c.candidates != nil {
		return nil
	}
	if len(c.fns) == 0 {
		return fmt.Errorf("no constructor given")
	}

	candidates := make([]*reflection.ConstructorInfo, 0, len(c.fns))
	var result reflect.Type
	for _, fn := range c.fns {
		info, err := a.Analyze(fn)
		if err != nil {
			return err
		}
		if result != nil && info.Result != result {
			return fmt.Errorf("constructors return different types: %s and %s", result, info.Result)
		}
		result = info.Result
		candidates = append(candidates, info)
	}
	c.candidates = candidates
	return nil
}

// ImplementationType implements Implementation.
func (c *CtorImpl) ImplementationType() *Type {
	if len(c.candidates) == 0 {
		return nil
	}
	return TypeFor(c.candidates[0].Result)
}

func (c *CtorImpl) describe() string {
	if len(c.candidates) == 1 {
		return c.candidates[0].Type.String()
	}
	return fmt.Sprintf("%d constructors of %s", len(c.fns), c.ImplementationType())
}

// MethodImpl builds instances by calling fn with a resolved receiver as the
// first argument, the equivalent of a factory method on another service.
type MethodImpl struct {
	receiver    *Type
	receiverKey any
	fn          any
	info        *reflection.ConstructorInfo
}

// Method describes an implementation produced by fn(receiver, deps...).
//
//	graft.Method(graft.TypeOf[*ConnFactory](), (*ConnFactory).Open)
func Method(receiver *Type, fn any) *MethodImpl {
	return &MethodImpl{receiver: receiver, fn: fn}
}

// WithReceiverKey resolves the receiver under key.
func (m *MethodImpl) WithReceiverKey(key any) *MethodImpl {
	m.receiverKey = key
	return m
}

func (m *MethodImpl) prepare(a *reflection.Analyzer) error {
	if m.info != nil {
		return nil
	}
	if m.receiver == nil {
		return fmt.Errorf("method receiver type cannot be nil")
	}
	info, err := a.Analyze(m.fn)
	if err != nil {
		return err
	}
	if info.IsParamObject || len(info.Parameters) == 0 {
		return fmt.Errorf("method %s must take the receiver as its first parameter", info.Type)
	}
	m.info = info
	return nil
}

// ImplementationType implements Implementation.
func (m *MethodImpl) ImplementationType() *Type {
	if m.info == nil {
		return nil
	}
	return TypeFor(m.info.Result)
}

func (m *MethodImpl) describe() string {
	return fmt.Sprintf("method %s on %s", m.info.Type, m.receiver)
}

// DelegateImpl builds instances with a function of the current resolver.
type DelegateImpl struct {
	fn       func(Resolver) (any, error)
	implType *Type
	info     *reflection.ConstructorInfo
}

// Delegate describes an implementation produced by fn. The resolver passed
// to fn is the scope the service is resolved from.
func Delegate(fn func(Resolver) (any, error)) *DelegateImpl {
	return &DelegateImpl{fn: fn}
}

// DelegateOf is Delegate with a typed result.
func DelegateOf[T any](fn func(Resolver) (T, error)) *DelegateImpl {
	if fn == nil {
		return &DelegateImpl{implType: TypeOf[T]()}
	}
	return &DelegateImpl{
		fn:       func(r Resolver) (any, error) { return fn(r) },
		implType: TypeOf[T](),
	}
}

func (d *DelegateImpl) prepare(a *reflection.Analyzer) error {
	if d.info != nil {
		return nil
	}
	if d.fn == nil {
		return fmt.Errorf("delegate cannot be nil")
	}
	info, err := a.Analyze(d.fn)
	if err != nil {
		return err
	}
	d.info = info
	return nil
}

// ImplementationType implements Implementation.
func (d *DelegateImpl) ImplementationType() *Type { return d.implType }

func (d *DelegateImpl) describe() string {
	if d.implType != nil {
		return "delegate of " + d.implType.String()
	}
	return "delegate"
}

// InstanceImpl provides a pre-built value.
type InstanceImpl struct {
	value any
}

// Instance describes an implementation that always provides v.
func Instance(v any) *InstanceImpl {
	return &InstanceImpl{value: v}
}

func (i *InstanceImpl) prepare(*reflection.Analyzer) error { return nil }

// ImplementationType implements Implementation.
func (i *InstanceImpl) ImplementationType() *Type {
	if i.value == nil {
		return nil
	}
	return TypeFor(reflect.TypeOf(i.value))
}

func (i *InstanceImpl) describe() string {
	return fmt.Sprintf("instance of %T", i.value)
}

// ForwardImpl resolves another registration.
type ForwardImpl struct {
	serviceType *Type
	key         any
}

// Forward describes an implementation that resolves serviceType under key.
func Forward(serviceType *Type, key any) *ForwardImpl {
	return &ForwardImpl{serviceType: serviceType, key: key}
}

func (f *ForwardImpl) prepare(*reflection.Analyzer) error {
	if f.serviceType == nil {
		return fmt.Errorf("forward target cannot be nil")
	}
	return nil
}

// ImplementationType implements Implementation.
func (f *ForwardImpl) ImplementationType() *Type { return f.serviceType }

func (f *ForwardImpl) describe() string {
	if f.key != nil {
		return fmt.Sprintf("forward to %s (key: %v)", f.serviceType, f.key)
	}
	return "forward to " + f.serviceType.String()
}

// OpenImpl is an open generic implementation. Go cannot instantiate generic
// code at runtime, so build maps type arguments to a closed Implementation.
type OpenImpl struct {
	def      *GenericDef
	template *Type
	build    func(args []*Type) (Implementation, error)
	analyzer *reflection.Analyzer
}

// OpenCtor describes an open generic implementation with parameters def.
// Registered under an open service type, it serves every closed type that
// unifies with the template and whose arguments satisfy def's constraints.
// The template defaults to the service definition applied to def's
// placeholders.
//
//	graft.OpenCtor(repoImpl, func(args []*graft.Type) (graft.Implementation, error) {
//	    switch args[0] {
//	    case userType:
//	        return graft.Ctor(NewRepo[User]), nil
//	    }
//	    return nil, fmt.Errorf("unsupported entity %s", args[0])
//	})
func OpenCtor(def *GenericDef, build func(args []*Type) (Implementation, error)) *OpenImpl {
	return &OpenImpl{def: def, build: build}
}

// Implements sets the service shape the implementation provides, written
// in terms of def's placeholders.
func (o *OpenImpl) Implements(template *Type) *OpenImpl {
	o.template = template
	return o
}

func (o *OpenImpl) prepare(a *reflection.Analyzer) error {
	if o.def == nil || o.build == nil {
		return fmt.Errorf("open generic implementation needs a definition and a builder")
	}
	o.analyzer = a
	return nil
}

// ImplementationType implements Implementation.
func (o *OpenImpl) ImplementationType() *Type { return o.def.Open() }

func (o *OpenImpl) describe() string {
	return "open generic " + o.def.Open().String()
}

// ConstructorSelector chooses among the constructors of a CtorImpl.
type ConstructorSelector struct {
	mode  selectorMode
	index int
}

type selectorMode int

const (
	selectSingle selectorMode = iota
	selectMostResolvable
	selectAt
)

var (
	// SelectSingleConstructor requires exactly one candidate.
	SelectSingleConstructor = ConstructorSelector{mode: selectSingle}

	// SelectMostResolvableConstructor picks the candidate with the most
	// parameters whose dependencies all resolve.
	SelectMostResolvableConstructor = ConstructorSelector{mode: selectMostResolvable}
)

// SelectConstructorAt picks the candidate at index i.
func SelectConstructorAt(i int) ConstructorSelector {
	return ConstructorSelector{mode: selectAt, index: i}
}

func (s ConstructorSelector) String() string {
	switch s.mode {
	case selectMostResolvable:
		return "MostResolvable"
	case selectAt:
		return fmt.Sprintf("At(%d)", s.index)
	default:
		return "Single"
	}
}
