package graft

import (
	"cmp"
	"iter"
	"slices"
)

// buildWrapper builds the built-in wrapper requested by r around the
// wrapped service.
func (b *builder) buildWrapper(r *Request) (Plan, error) {
	t := r.serviceType
	r.flags |= flagWrapper

	switch t.Def() {
	case sliceDef:
		return b.buildCollection(r)

	case manyDef:
		var required *Type
		if r.requiredType != nil && r.passesRequiredType() {
			required = r.requiredType
		}
		return &ManyNode{ServiceType: t, Item: t.Arg(0), RequiredType: required, Key: r.key}, nil

	case funcDef:
		inner, err := b.build(r.pushWrapped(t.Arg(0), r.key, true))
		if err != nil {
			return nil, err
		}
		return &FuncNode{ServiceType: t, Inner: inner}, nil

	case func1Def:
		dep := r.pushWrapped(t.Arg(1), r.key, true)
		dep.args = newArgFrame([]*Type{t.Arg(0)})
		inner, err := b.build(dep)
		if err != nil {
			return nil, err
		}
		return &FuncNode{ServiceType: t, ArgTypes: []*Type{t.Arg(0)}, Inner: inner}, nil

	case lazyDef:
		inner, err := b.build(r.pushWrapped(t.Arg(0), r.key, true))
		if err != nil {
			return nil, err
		}
		return &LazyNode{ServiceType: t, Inner: inner}, nil

	case keyedDef:
		inner, err := b.build(r.pushWrapped(t.Arg(0), r.key, false))
		if err != nil {
			return nil, err
		}
		key := r.key
		if r.inner != nil {
			key = r.inner.key
		}
		return &KeyedNode{ServiceType: t, Key: key, KeySlot: b.addState(key), Inner: inner}, nil

	case metaDef:
		inner, err := b.build(r.pushWrapped(t.Arg(0), r.key, false))
		if err != nil {
			return nil, err
		}
		var metadata any
		if r.inner != nil {
			metadata = r.inner.setup.Metadata
		}
		return &MetaNode{ServiceType: t, MetaSlot: b.addState(metadata), Inner: inner}, nil
	}

	return nil, &Error{Code: UnableToResolveUnknownService, ServiceType: t, Message: "unknown wrapper", Chain: r.String()}
}

// buildCollection builds one item per matching registration, in
// registration order.
func (b *builder) buildCollection(r *Request) (Plan, error) {
	t := r.serviceType
	elem := t.Arg(0)

	pins, err := b.collectionFactories(r, elem)
	if err != nil {
		return nil, err
	}

	items := make([]Plan, 0, len(pins))
	for _, p := range pins {
		key := r.key
		if p != nil {
			key = p.f.key
		}
		dep := r.pushWrapped(elem, key, false)
		dep.flags |= flagCollectionItem
		dep.flags &^= flagOptional
		if p != nil {
			dep.pinned = p
		}

		item, err := b.build(dep)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return &CollectionNode{ServiceType: t, Items: items}, nil
}

// collectionFactories returns the registrations serving items of elem.
// Wrappers are unwrapped to the innermost service; nested collections
// yield a single unpinned item.
func (b *builder) collectionFactories(r *Request, elem *Type) ([]*pin, error) {
	target, nested := b.innermost(elem)
	if nested {
		return []*pin{nil}, nil
	}
	if r.requiredType != nil && r.passesRequiredType() {
		target = r.requiredType
	}

	var fs []*Factory
	seen := make(map[uint64]bool)
	add := func(f *Factory) {
		if seen[f.id] || (r.key != nil && f.key != r.key) {
			return
		}
		itemReq := r.push(target, f.key)
		itemReq.factory = f
		itemReq.flags |= flagCollectionItem
		if !f.setup.matches(itemReq) {
			return
		}
		seen[f.id] = true
		fs = append(fs, f)
	}
	addEntry := func(t *Type) {
		entry := b.snap.services.Get(t)
		if entry == nil {
			return
		}
		for _, f := range entry.Defaults() {
			add(f)
		}
		for _, k := range entry.Keyed() {
			add(k.Item)
		}
	}

	addEntry(target)

	if target.IsGeneric() && !target.IsOpen() {
		if entry := b.snap.services.Get(target.Def().Open()); entry != nil {
			open := append(entry.Defaults(), keyedItems(entry.Keyed())...)
			for _, of := range open {
				cf, res, err := of.closeFor(target)
				if err != nil {
					return nil, &Error{Code: InvalidRegistration, ServiceType: target, Message: of.String(), Cause: err, Chain: r.String()}
				}
				if res == closeOK {
					add(cf)
				}
			}
		}

		if b.rules.VariantGenericTypesInResolvedCollection {
			for st := range b.snap.services.All() {
				if st == target || !st.IsGeneric() || st.IsOpen() || st.Def() != target.Def() {
					continue
				}
				if !AssignableTo(st, target) || !goAssignable(st, target) {
					continue
				}
				addEntry(st)
			}
		}
	}

	slices.SortStableFunc(fs, func(a, b *Factory) int {
		return cmp.Compare(a.seq, b.seq)
	})

	pins := make([]*pin, len(fs))
	for i, f := range fs {
		pins[i] = &pin{t: target, f: f}
	}
	return pins, nil
}

// innermost unwraps built-in and registered wrappers down to the wrapped
// service. nested reports a collection inside the wrappers.
func (b *builder) innermost(t *Type) (inner *Type, nested bool) {
	for t.IsGeneric() && !t.IsOpen() {
		def := t.Def()
		switch {
		case def == sliceDef || def == manyDef:
			return t, true
		case isBuiltinWrapper(def):
			t = wrappedArg(t)
			continue
		}

		wfs := b.snap.factories(WrapperSetup, def.Open(), nil)
		if len(wfs) == 0 {
			break
		}
		t = t.Arg(wfs[0].setup.WrappedArgIndex)
	}
	return t, false
}

func keyedItems(items []registryItem) []*Factory {
	out := make([]*Factory, len(items))
	for i, k := range items {
		out[i] = k.Item
	}
	return out
}

// goAssignable reports whether values of src can be stored in a Go slice of
// dst. Types without Go representation always fit.
func goAssignable(src, dst *Type) bool {
	st, dt := src.GoType(), dst.GoType()
	if st == nil || dt == nil {
		return true
	}
	return st.AssignableTo(dt)
}

// manySeq enumerates the items of a Many at iteration time against the
// registry snapshot current at that time.
func (c *Container) manySeq(item, required *Type, key any, behavior ManyBehavior) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		snap := c.core.snap.Load()
		sliceReq := &Request{serviceType: SliceOf(item), requiredType: required, key: key}
		if required != nil && !sliceReq.passesRequiredType() {
			sliceReq.requiredType = nil
		}

		pins, err := newBuilder(c.core, snap).collectionFactories(sliceReq, item)
		if err != nil {
			yield(nil, err)
			return
		}

		resolveItem := func(p *pin) (any, error) {
			o := resolveOptions{key: key, requiredType: sliceReq.requiredType}
			if p != nil {
				o.key = p.f.key
				o.pin = p
			}
			return c.resolve(item, &o, nil)
		}

		if behavior == FixedArray {
			values := make([]any, len(pins))
			for i, p := range pins {
				v, err := resolveItem(p)
				if err != nil {
					yield(nil, err)
					return
				}
				values[i] = v
			}
			for _, v := range values {
				if !yield(v, nil) {
					return
				}
			}
			return
		}

		for _, p := range pins {
			if !yield(resolveItem(p)) {
				return
			}
		}
	}
}
