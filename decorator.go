package graft

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"

	"github.com/junioryono/graft/internal/reflection"
)

// checkDecorator validates a decorator registration: the implementation
// must take the decorated instance as one of its parameters.
func checkDecorator(serviceType *Type, impl Implementation) error {
	switch impl := impl.(type) {
	case *OpenImpl:
		return nil
	case *CtorImpl:
		for _, info := range impl.candidates {
			if decorateeIndex(info.Parameters, serviceType) < 0 {
				return fmt.Errorf("constructor %s has no parameter of type %s", info.Type, serviceType)
			}
		}
		return nil
	case *MethodImpl:
		if decorateeIndex(impl.info.Parameters[1:], serviceType) < 0 {
			return fmt.Errorf("method %s has no parameter of type %s", impl.info.Type, serviceType)
		}
		return nil
	}
	return fmt.Errorf("%s cannot decorate", impl.describe())
}

// decorateeIndex returns the parameter receiving the decorated instance.
// Nominal service types are passed as any.
func decorateeIndex(params []reflection.ParameterInfo, serviceType *Type) int {
	for i, p := range params {
		if TypeFor(p.Type) == serviceType {
			return i
		}
	}
	if serviceType.GoType() == nil {
		for i, p := range params {
			if p.Type == anyType {
				return i
			}
		}
	}
	return -1
}

var anyType = reflect.TypeFor[any]()

// decorators returns the decorators applying to f for r, innermost first.
func (b *builder) decorators(r *Request, f *Factory) ([]*Factory, error) {
	t := f.serviceType
	var ds []*Factory
	add := func(fs []*Factory) {
		for _, d := range fs {
			if d.setup.matches(r) {
				ds = append(ds, d)
			}
		}
	}

	add(b.snap.factories(DecoratorSetup, t, nil))
	if r.key != nil {
		add(b.snap.factories(DecoratorSetup, t, r.key))
	}

	if t.IsGeneric() && !t.IsOpen() {
		open := t.Def().Open()
		candidates := b.snap.factories(DecoratorSetup, open, nil)
		if r.key != nil {
			candidates = append(slices.Clip(candidates), b.snap.factories(DecoratorSetup, open, r.key)...)
		}
		for _, od := range candidates {
			cd, res, err := od.closeFor(t)
			if err != nil {
				return nil, &Error{Code: InvalidRegistration, ServiceType: t, Message: od.String(), Cause: err, Chain: r.String()}
			}
			if res == closeOK {
				if err := checkDecorator(t, cd.impl); err != nil {
					return nil, &Error{Code: InvalidRegistration, ServiceType: t, Message: "invalid decorator " + cd.String(), Cause: err, Chain: r.String()}
				}
				add([]*Factory{cd})
			}
		}
	}

	slices.SortStableFunc(ds, func(a, b *Factory) int {
		if c := cmp.Compare(a.setup.Order, b.setup.Order); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	return ds, nil
}

// decorate wraps p, the plan of f, with the decorators of its service.
// Decorators with the lowest order are applied first.
func (b *builder) decorate(r *Request, f *Factory, p Plan) (Plan, error) {
	if f.setup.Kind == DecoratorSetup {
		return p, nil
	}
	ds, err := b.decorators(r, f)
	if err != nil || len(ds) == 0 {
		return p, err
	}

	id := f.id
	for _, d := range ds {
		reuse := d.reuse
		if d.setup.UseDecorateeReuse {
			reuse = f.reuse
		}

		dr := &Request{
			serviceType:  r.serviceType,
			requiredType: r.requiredType,
			key:          r.key,
			parent:       r.parent,
			factory:      d,
			reuse:        reuse,
			depth:        r.depth,
			flags:        r.flags &^ (flagOpensResolutionScope | flagWrapper),
			args:         r.args,
		}
		if _, err := b.checkCycle(dr); err != nil {
			return nil, err
		}
		if err := b.checkLifespan(dr); err != nil {
			return nil, err
		}
		if err := b.checkDecoratee(dr, p); err != nil {
			return nil, err
		}

		var next Plan
		switch impl := d.impl.(type) {
		case *CtorImpl:
			var info *reflection.ConstructorInfo
			var args []Plan
			info, args, err = b.decoratorCtor(dr, impl, f.serviceType, p)
			if err != nil {
				return nil, err
			}
			next = &NewNode{ServiceType: r.serviceType, Ctor: info, Args: args}
		case *MethodImpl:
			recv, err := b.build(dr.push(impl.receiver, impl.receiverKey))
			if err != nil {
				return nil, err
			}
			params := impl.info.Parameters[1:]
			args, err := b.buildArgs(dr, params, decorateeIndex(params, f.serviceType), p)
			if err != nil {
				return nil, err
			}
			next = &CallNode{ServiceType: r.serviceType, Method: impl.info, Name: impl.info.Type.String(), Receiver: recv, Args: args}
		default:
			return nil, &Error{Code: InvalidRegistration, ServiceType: r.serviceType, Message: d.impl.describe() + " cannot decorate", Chain: r.String()}
		}

		id = b.core.derivedID(id, d.id)
		if !isTransient(reuse) {
			next = &ScopedNode{
				ServiceType: r.serviceType,
				ID:          id,
				Reuse:       reuse,
				Track:       !d.setup.PreventDisposal,
				Inner:       next,
			}
		}
		p = next
	}
	return p, nil
}

// checkDecoratee rejects a decorator that outlives what the decorated plan
// p holds directly.
func (b *builder) checkDecoratee(dr *Request, p Plan) error {
	if !b.rules.ThrowIfDependencyHasShorterReuseLifespan {
		return nil
	}
	held := capturedReuse(p)
	if held == nil || held.Lifespan() >= dr.Reuse().Lifespan() {
		return nil
	}
	decoratee := &Request{serviceType: dr.serviceType, key: dr.key, reuse: held}
	return &Error{
		Code:        DependencyHasShorterReuseLifespan,
		ServiceType: dr.serviceType,
		ServiceKey:  dr.key,
		Message:     lifespanMessage(dr, decoratee),
		Chain:       dr.String(),
	}
}

// capturedReuse returns the shortest-lived reuse p embeds without a
// deferred wrapper in between, or nil when it embeds none.
func capturedReuse(p Plan) Reuse {
	var held Reuse
	var walk func(Plan)
	walk = func(p Plan) {
		switch n := p.(type) {
		case *ScopedNode:
			if l := n.Reuse.Lifespan(); l > 0 && (held == nil || l < held.Lifespan()) {
				held = n.Reuse
			}
		case *NewNode:
			for _, a := range n.Args {
				walk(a)
			}
		case *CallNode:
			walk(n.Receiver)
			for _, a := range n.Args {
				walk(a)
			}
		case *CollectionNode:
			for _, item := range n.Items {
				walk(item)
			}
		case *ResolutionScopeNode:
			walk(n.Inner)
		case *TrackNode:
			walk(n.Inner)
		case *KeyedNode:
			walk(n.Inner)
		case *MetaNode:
			walk(n.Inner)
		}
	}
	walk(p)
	return held
}

// decoratorCtor selects the decorator constructor, injecting the decorated
// plan. Multiple candidates follow the constructor selector.
func (b *builder) decoratorCtor(dr *Request, c *CtorImpl, serviceType *Type, inner Plan) (*reflection.ConstructorInfo, []Plan, error) {
	sel := b.rules.ConstructorSelector
	if c.selector != nil {
		sel = *c.selector
	}

	candidates := c.candidates
	switch sel.mode {
	case selectAt:
		if sel.index < 0 || sel.index >= len(candidates) {
			return nil, nil, &Error{Code: UnableToSelectConstructor, ServiceType: serviceType, Message: fmt.Sprintf("decorator constructor %d of %d", sel.index, len(candidates)), Chain: dr.String()}
		}
		candidates = candidates[sel.index : sel.index+1]
	case selectSingle:
		if len(candidates) != 1 {
			return nil, nil, &Error{Code: UnableToSelectConstructor, ServiceType: serviceType, Message: fmt.Sprintf("decorator has %d constructors and no selector", len(candidates)), Chain: dr.String()}
		}
	default:
		candidates = slices.Clone(candidates)
		sortByParamsDesc(candidates)
	}

	var last error
	for _, info := range candidates {
		size, state := b.size, len(b.state)
		args, err := b.buildArgs(dr, info.Parameters, decorateeIndex(info.Parameters, serviceType), inner)
		if err == nil {
			return info, args, nil
		}
		if sel.mode != selectMostResolvable || !IsNotFound(err) {
			return nil, nil, err
		}
		b.size, b.state = size, b.state[:state]
		last = err
	}
	return nil, nil, &Error{Code: NoMatchingConstructor, ServiceType: serviceType, Cause: last, Chain: dr.String()}
}

type derivedKey struct {
	base, decorator uint64
}

// derivedID returns a stable item id for a decorated result so that reused
// decorated instances do not collide with the undecorated ones.
func (co *core) derivedID(base, decorator uint64) uint64 {
	k := derivedKey{base: base, decorator: decorator}
	if id, ok := co.derived.Load(k); ok {
		return id.(uint64)
	}
	id, _ := co.derived.LoadOrStore(k, factoryIDs.Add(1))
	return id.(uint64)
}
