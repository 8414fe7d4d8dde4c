package graft

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/junioryono/graft/internal/lifetime"
	"github.com/junioryono/graft/internal/reflection"
)

// maxRequestDepth bounds the dependency chain independently of the graph
// size rule.
const maxRequestDepth = 256

// builder expands a request into a plan against one registry snapshot.
type builder struct {
	core  *core
	snap  *snapshot
	rules *Rules
	state []any
	size  int
}

func newBuilder(co *core, snap *snapshot) *builder {
	return &builder{core: co, snap: snap, rules: &co.rules}
}

func (b *builder) addState(v any) int {
	b.state = append(b.state, v)
	return len(b.state) - 1
}

// buildRoot builds the plan for a top-level resolution.
func (b *builder) buildRoot(serviceType *Type, o *resolveOptions, argTypes []*Type) (Plan, error) {
	r := &Request{
		serviceType:  serviceType,
		requiredType: o.requiredType,
		key:          o.key,
		pinned:       o.pin,
	}
	if o.resolveCall {
		r.flags |= flagResolveCallRoot
	}
	if o.returnDefault {
		r.flags |= flagOptional
	}
	if o.validate {
		r.flags |= flagValidating
	}
	if len(argTypes) > 0 {
		r.args = newArgFrame(argTypes)
	}
	return b.build(r)
}

// build resolves r in order: runtime arguments, registrations (exact, then
// open generic), wrappers, fallbacks and unknown service resolvers.
func (b *builder) build(r *Request) (Plan, error) {
	b.size++
	if b.size > b.rules.maxGraphSize() || r.depth > maxRequestDepth {
		return nil, &Error{
			Code:        MaxObjectGraphSizeExceeded,
			ServiceType: r.serviceType,
			ServiceKey:  r.key,
			Message:     fmt.Sprintf("more than %d requests or depth above %d", b.rules.maxGraphSize(), maxRequestDepth),
			Chain:       r.String(),
		}
	}

	if r.key == nil && r.pinned == nil && r.parent != nil {
		if i := r.matchArg(r.serviceType); i >= 0 {
			return &ArgNode{ServiceType: r.serviceType, Index: i}, nil
		}
	}

	if r.serviceType == resolverType {
		return &ResolverNode{}, nil
	}

	if err := b.checkRequiredType(r); err != nil {
		return nil, err
	}

	f, err := b.selectFactory(r)
	if err != nil {
		return nil, err
	}
	if f != nil {
		return b.buildFactory(r, f)
	}

	t := r.serviceType
	if t.IsGeneric() && !t.IsOpen() {
		if isBuiltinWrapper(t.Def()) {
			return b.buildWrapper(r)
		}
		if p, ok, err := b.buildUserWrapper(r); ok || err != nil {
			return p, err
		}
	}

	lookup := r.lookupType()
	for _, fb := range b.rules.Fallbacks {
		if fb != nil && fb.IsRegistered(lookup, WithKey(r.key)) {
			return &FallbackNode{ServiceType: lookup, Key: r.key, Slot: b.addState(fb)}, nil
		}
	}

	for i, resolve := range b.rules.UnknownServiceResolvers {
		impl := resolve(r)
		if impl == nil {
			continue
		}
		f, err := b.core.dynamicFactory(i, r, impl)
		if err != nil {
			return nil, err
		}
		return b.buildFactory(r, f)
	}

	if r.flags&flagOptional != 0 {
		return &DefaultNode{ServiceType: r.serviceType}, nil
	}
	return nil, &Error{
		Code:        UnableToResolveUnknownService,
		ServiceType: lookup,
		ServiceKey:  r.key,
		Chain:       r.String(),
	}
}

// checkRequiredType closes an open required type with the arguments of the
// service type and checks that it can stand in for the service type.
func (b *builder) checkRequiredType(r *Request) error {
	req := r.requiredType
	if req == nil || req == r.serviceType || r.passesRequiredType() {
		return nil
	}

	if req.IsOpen() {
		t := r.serviceType
		if !req.IsGeneric() || !t.IsGeneric() || t.IsOpen() || req.Def().Arity() != t.Def().Arity() {
			return &Error{
				Code:        ServiceIsNotAssignableFromOpenGenericRequiredServiceType,
				ServiceType: t,
				Message:     "required type " + req.String(),
				Chain:       r.String(),
			}
		}
		req = req.Def().Of(t.Args()...)
		r.requiredType = req
	}

	if req.GoType() == nil && r.serviceType.GoType() != nil {
		return nil
	}
	if !AssignableTo(req, r.serviceType) {
		return &Error{
			Code:        ServiceIsNotAssignableFromRequiredServiceType,
			ServiceType: r.serviceType,
			Message:     "required type " + req.String(),
			Chain:       r.String(),
		}
	}
	return nil
}

// selectFactory finds the registration answering r: a pinned factory, an
// exact registration or a closed open generic one.
func (b *builder) selectFactory(r *Request) (*Factory, error) {
	t := r.lookupType()
	if r.pinned != nil && r.pinned.t == t {
		return r.pinned.f, nil
	}

	if f, err := b.pick(r, b.matching(r, b.snap.factories(ServiceSetup, t, r.key))); f != nil || err != nil {
		return f, err
	}

	if !t.IsGeneric() || t.IsOpen() {
		return nil, nil
	}

	var closed []*Factory
	constrained := false
	for _, of := range b.snap.factories(ServiceSetup, t.Def().Open(), r.key) {
		cf, res, err := of.closeFor(t)
		if err != nil {
			return nil, &Error{Code: InvalidRegistration, ServiceType: t, ServiceKey: r.key, Message: of.String(), Cause: err, Chain: r.String()}
		}
		switch res {
		case closeOK:
			closed = append(closed, cf)
		case closeConstraints:
			constrained = true
		}
	}

	f, err := b.pick(r, b.matching(r, closed))
	if f == nil && err == nil && len(closed) == 0 && constrained {
		if r.flags&flagOptional != 0 {
			return nil, nil
		}
		return nil, &Error{
			Code:        NoMatchedGenericParamConstraints,
			ServiceType: t,
			ServiceKey:  r.key,
			Chain:       r.String(),
		}
	}
	return f, err
}

func (b *builder) matching(r *Request, fs []*Factory) []*Factory {
	var out []*Factory
	for _, f := range fs {
		if f.setup.matches(r) {
			out = append(out, f)
		}
	}
	return out
}

// pick applies the single default rule and the factory selector.
func (b *builder) pick(r *Request, fs []*Factory) (*Factory, error) {
	switch len(fs) {
	case 0:
		return nil, nil
	case 1:
		return fs[0], nil
	}

	if sel := b.rules.FactorySelector; sel != nil {
		if f := sel(r, fs); f != nil {
			return f, nil
		}
	}
	return nil, &Error{
		Code:        ExpectedSingleDefaultFactory,
		ServiceType: r.lookupType(),
		ServiceKey:  r.key,
		Message:     fmt.Sprintf("%d default registrations match", len(fs)),
		Chain:       r.String(),
	}
}

// buildFactory builds the plan of f for r, wrapped with reuse, resolution
// scope, disposal tracking and decorators.
func (b *builder) buildFactory(r *Request, f *Factory) (Plan, error) {
	r.factory = f
	r.reuse = f.reuse
	for cur := r; cur.flags&flagWrappedService != 0 && cur.parent != nil; cur = cur.parent {
		cur.parent.inner = f
	}

	if p, err := b.checkCycle(r); p != nil || err != nil {
		return p, err
	}
	if err := b.checkLifespan(r); err != nil {
		return nil, err
	}

	if f.setup.AsResolutionCall && r.parent != nil && r.pinned == nil {
		return &ResolveCallNode{ServiceType: r.serviceType, Key: r.key, RequiredType: r.requiredType}, nil
	}

	if f.reuse.Kind() == ResolutionScopeKind {
		if err := b.bindResolutionScope(r); err != nil {
			return nil, err
		}
	}

	p, err := b.buildImpl(r, f)
	if err != nil {
		return nil, err
	}

	if f.setup.OpenResolutionScope || r.flags&flagOpensResolutionScope != 0 {
		p = &ResolutionScopeNode{Name: ResolutionScopeName{ServiceType: r.serviceType, Key: r.key}, Inner: p}
	}

	switch {
	case !isTransient(f.reuse):
		p = &ScopedNode{
			ServiceType: r.serviceType,
			ID:          f.id,
			Reuse:       f.reuse,
			Track:       !f.setup.PreventDisposal,
			Inner:       p,
		}
	case b.rules.TrackDisposableTransients && !f.setup.PreventDisposal && mayBeDisposable(f.impl):
		p = &TrackNode{Inner: p}
	}

	return b.decorate(r, f, p)
}

func (b *builder) buildImpl(r *Request, f *Factory) (Plan, error) {
	switch impl := f.impl.(type) {
	case *CtorImpl:
		info, args, err := b.selectConstructor(r, impl)
		if err != nil {
			return nil, err
		}
		return &NewNode{ServiceType: r.serviceType, Ctor: info, Args: args}, nil

	case *MethodImpl:
		recv, err := b.build(r.push(impl.receiver, impl.receiverKey))
		if err != nil {
			return nil, err
		}
		args, err := b.buildParams(r, impl.info.Parameters[1:])
		if err != nil {
			return nil, err
		}
		return &CallNode{ServiceType: r.serviceType, Method: impl.info, Name: impl.info.Type.String(), Receiver: recv, Args: args}, nil

	case *DelegateImpl:
		args, err := b.buildParams(r, impl.info.Parameters)
		if err != nil {
			return nil, err
		}
		return &CallNode{ServiceType: r.serviceType, Method: impl.info, Name: "delegate", Args: args}, nil

	case *InstanceImpl:
		return &InstanceNode{ServiceType: r.serviceType, Slot: b.addState(impl.value)}, nil

	case *ForwardImpl:
		return b.build(r.push(impl.serviceType, impl.key))
	}

	return nil, &Error{Code: InvalidRegistration, ServiceType: r.serviceType, Message: "unsupported implementation " + f.impl.describe(), Chain: r.String()}
}

// buildParams resolves constructor parameters as dependencies of r.
func (b *builder) buildParams(r *Request, params []reflection.ParameterInfo) ([]Plan, error) {
	return b.buildArgs(r, params, -1, nil)
}

// buildArgs is buildParams with the parameter at inject satisfied by plan.
func (b *builder) buildArgs(r *Request, params []reflection.ParameterInfo, inject int, plan Plan) ([]Plan, error) {
	args := make([]Plan, len(params))
	for i, p := range params {
		if i == inject {
			args[i] = plan
			continue
		}
		pt := TypeFor(p.Type)

		var dep *Request
		if r.wrapped != nil && pt == r.wrapped {
			dep = r.pushWrapped(pt, r.key, false)
		} else {
			dep = r.push(pt, p.Key)
		}
		if p.Optional {
			dep.flags |= flagOptional
		}

		a, err := b.build(dep)
		if err != nil {
			return nil, err
		}
		args[i] = a
	}
	return args, nil
}

// selectConstructor applies the constructor selection policy.
func (b *builder) selectConstructor(r *Request, c *CtorImpl) (*reflection.ConstructorInfo, []Plan, error) {
	sel := b.rules.ConstructorSelector
	if c.selector != nil {
		sel = *c.selector
	}

	switch sel.mode {
	case selectAt:
		if sel.index < 0 || sel.index >= len(c.candidates) {
			return nil, nil, &Error{
				Code:        UnableToSelectConstructor,
				ServiceType: r.serviceType,
				Message:     fmt.Sprintf("constructor %d of %d", sel.index, len(c.candidates)),
				Chain:       r.String(),
			}
		}
		info := c.candidates[sel.index]
		args, err := b.buildParams(r, info.Parameters)
		return info, args, err

	case selectMostResolvable:
		order := make([]*reflection.ConstructorInfo, len(c.candidates))
		copy(order, c.candidates)
		sortByParamsDesc(order)

		var last error
		for _, info := range order {
			size, state := b.size, len(b.state)
			args, err := b.buildParams(r, info.Parameters)
			if err == nil {
				return info, args, nil
			}
			if !IsNotFound(err) {
				return nil, nil, err
			}
			b.size, b.state = size, b.state[:state]
			last = err
		}
		return nil, nil, &Error{
			Code:        NoMatchingConstructor,
			ServiceType: r.serviceType,
			Message:     fmt.Sprintf("none of %d constructors is resolvable", len(c.candidates)),
			Cause:       last,
			Chain:       r.String(),
		}

	default:
		if len(c.candidates) != 1 {
			return nil, nil, &Error{
				Code:        UnableToSelectConstructor,
				ServiceType: r.serviceType,
				Message:     fmt.Sprintf("%d constructors and no selector", len(c.candidates)),
				Chain:       r.String(),
			}
		}
		info := c.candidates[0]
		args, err := b.buildParams(r, info.Parameters)
		return info, args, err
	}
}

func sortByParamsDesc(infos []*reflection.ConstructorInfo) {
	for i := 1; i < len(infos); i++ {
		for j := i; j > 0 && len(infos[j].Parameters) > len(infos[j-1].Parameters); j-- {
			infos[j], infos[j-1] = infos[j-1], infos[j]
		}
	}
}

// checkCycle looks for r's (type, key, factory) among its ancestors. Behind
// a deferred wrapper the repeat becomes a runtime resolution call.
func (b *builder) checkCycle(r *Request) (Plan, error) {
	deferred := r.flags&flagDeferred != 0
	for anc := r.parent; anc != nil; anc = anc.parent {
		if anc.factory != nil && anc.factory.id == r.factory.id && anc.serviceType == r.serviceType && anc.key == r.key {
			if deferred {
				return &ResolveCallNode{ServiceType: r.serviceType, Key: r.key, RequiredType: r.requiredType}, nil
			}
			return nil, &Error{
				Code:        RecursiveDependencyDetected,
				ServiceType: r.serviceType,
				ServiceKey:  r.key,
				Chain:       r.String(),
			}
		}
		if anc.flags&flagDeferred != 0 {
			deferred = true
		}
		if anc.flags&flagResolveCallRoot != 0 {
			break
		}
	}
	return nil, nil
}

// checkLifespan rejects r when an ancestor, up to the nearest deferred
// wrapper, outlives it.
func (b *builder) checkLifespan(r *Request) error {
	if !b.rules.ThrowIfDependencyHasShorterReuseLifespan || r.flags&flagDeferred != 0 {
		return nil
	}
	lifespan := r.Reuse().Lifespan()
	if lifespan == 0 {
		return nil
	}

	for anc := r.parent; anc != nil; anc = anc.parent {
		if anc.reuse != nil && anc.reuse.Lifespan() > lifespan {
			return &Error{
				Code:        DependencyHasShorterReuseLifespan,
				ServiceType: r.serviceType,
				ServiceKey:  r.key,
				Message:     lifespanMessage(anc, r),
				Chain:       r.String(),
			}
		}
		if anc.flags&(flagDeferred|flagResolveCallRoot) != 0 {
			break
		}
	}
	return nil
}

// bindResolutionScope flags the ancestor whose resolution scope r is reused
// in. Plans built for resolution calls cannot see their consumers, so the
// scope is then only looked up at runtime.
func (b *builder) bindResolutionScope(r *Request) error {
	rs := r.reuse.(resolutionScopeReuse)

	var found *Request
	crossed := false
	for anc := r.parent; anc != nil; anc = anc.parent {
		if anc.factory != nil && matchesResolutionScope(anc.serviceType, anc.key, rs) {
			found = anc
			if !rs.outermost {
				break
			}
		}
		if anc.flags&flagResolveCallRoot != 0 {
			crossed = true
			break
		}
	}

	if found != nil {
		found.flags |= flagOpensResolutionScope
		return nil
	}
	if crossed {
		return nil
	}
	return &Error{
		Code:        NoMatchedResolutionScope,
		ServiceType: r.serviceType,
		ServiceKey:  r.key,
		Message:     "no consumer matches " + rs.String(),
		Chain:       r.String(),
	}
}

func matchesResolutionScope(serviceType *Type, key any, rs resolutionScopeReuse) bool {
	return AssignableTo(serviceType, rs.serviceType) && (rs.key == nil || rs.key == key)
}

// buildUserWrapper resolves r through a registered open generic wrapper.
func (b *builder) buildUserWrapper(r *Request) (Plan, bool, error) {
	t := r.serviceType
	for _, wf := range b.snap.factories(WrapperSetup, t.Def().Open(), nil) {
		cf, res, err := wf.closeFor(t)
		if err != nil {
			return nil, true, &Error{Code: InvalidRegistration, ServiceType: t, Message: wf.String(), Cause: err, Chain: r.String()}
		}
		if res != closeOK || !cf.setup.matches(r) {
			continue
		}
		r.flags |= flagWrapper
		r.wrapped = t.Arg(cf.setup.WrappedArgIndex)
		p, err := b.buildFactory(r, cf)
		return p, true, err
	}
	return nil, false, nil
}

// mayBeDisposable reports whether instances produced by impl could need
// disposal.
func mayBeDisposable(impl Implementation) bool {
	switch impl.(type) {
	case *InstanceImpl, *ForwardImpl:
		return false
	}
	t := impl.ImplementationType()
	if t == nil || t.GoType() == nil {
		return true
	}
	rt := t.GoType()
	if rt.Kind() == reflect.Interface {
		return true
	}
	return rt.Implements(disposableType) || rt.Implements(contextDisposableType)
}

var (
	disposableType        = reflect.TypeFor[lifetime.Disposable]()
	contextDisposableType = reflect.TypeFor[lifetime.ContextDisposable]()
)

type dynamicKey struct {
	resolver    int
	serviceType uint64
	key         any
}

// dynamicFactory turns an implementation supplied by an unknown service
// resolver into a factory. Factories are cached so reused instances keep
// their identity across plans.
func (co *core) dynamicFactory(resolver int, r *Request, impl Implementation) (*Factory, error) {
	t := r.lookupType()
	k := dynamicKey{resolver: resolver, serviceType: t.ID(), key: r.key}
	if f, ok := co.dynamic.Load(k); ok {
		return f.(*Factory), nil
	}

	if err := impl.prepare(co.analyzer); err != nil {
		return nil, &Error{Code: InvalidRegistration, ServiceType: t, Message: impl.describe(), Cause: err, Chain: r.String()}
	}
	if err := checkAssignable(t, impl); err != nil {
		return nil, &Error{Code: ImplementationNotAssignableToServiceType, ServiceType: t, Cause: err, Chain: r.String()}
	}

	reuse := co.rules.DefaultReuse
	if reuse == nil {
		reuse = Transient
	}
	id := factoryIDs.Add(1)
	f := &Factory{id: id, seq: id, serviceType: t, key: r.key, impl: impl, reuse: reuse}
	if _, open := impl.(*OpenImpl); open {
		f.closed = &sync.Map{}
	}
	if r.validating() {
		return f, nil
	}

	actual, _ := co.dynamic.LoadOrStore(k, f)
	return actual.(*Factory), nil
}
