package graft

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/junioryono/graft/internal/lifetime"
	"github.com/junioryono/graft/internal/reflection"
)

// createFunc is a compiled plan node.
type createFunc func(rc *runContext) (any, error)

// runContext is the per-resolution input of a compiled plan.
type runContext struct {
	c        *Container
	state    []any
	args     []any
	creating *lifetime.Creating
}

// compiledPlan is a plan together with its create function and the runtime
// state table its InstanceNode, KeyedNode, MetaNode and FallbackNode slots
// index into.
type compiledPlan struct {
	plan     Plan
	create   createFunc
	state    []any
	argTypes []*Type
}

func (p *compiledPlan) run(c *Container, args []any, creating *lifetime.Creating) (any, error) {
	if len(args) != len(p.argTypes) {
		return nil, &Error{
			Code:        InvalidRuntimeArguments,
			ServiceType: p.plan.Type(),
			Message:     fmt.Sprintf("plan expects %d arguments, got %d", len(p.argTypes), len(args)),
		}
	}
	return p.create(&runContext{c: c, state: p.state, args: args, creating: creating})
}

// compile turns a plan into nested closures. Wrapper Go types are looked up
// once here rather than per resolution.
func compile(p Plan) createFunc {
	switch n := p.(type) {
	case *NewNode:
		args := compileAll(n.Args)
		return func(rc *runContext) (any, error) {
			vals, err := evalAll(rc, args)
			if err != nil {
				return nil, err
			}
			return n.Ctor.Call(vals)
		}

	case *CallNode:
		args := compileAll(n.Args)
		var recv createFunc
		if n.Receiver != nil {
			recv = compile(n.Receiver)
		}
		return func(rc *runContext) (any, error) {
			vals := make([]any, 0, len(args)+1)
			if recv != nil {
				v, err := recv(rc)
				if err != nil {
					return nil, err
				}
				vals = append(vals, v)
			}
			rest, err := evalAll(rc, args)
			if err != nil {
				return nil, err
			}
			return n.Method.Call(append(vals, rest...))
		}

	case *InstanceNode:
		return func(rc *runContext) (any, error) {
			return rc.state[n.Slot], nil
		}

	case *ResolveCallNode:
		return func(rc *runContext) (any, error) {
			return rc.c.resolveCall(n.ServiceType, n.Key, n.RequiredType, rc.creating)
		}

	case *ScopedNode:
		return compileScoped(n)

	case *ResolutionScopeNode:
		inner := compile(n.Inner)
		return func(rc *runContext) (any, error) {
			child, err := rc.c.scope.OpenChild(n.Name, rc.c.scope.Context())
			if err != nil {
				return nil, scopeDisposedError(n.Type())
			}
			sub := *rc
			sub.c = rc.c.view(child)
			return inner(&sub)
		}

	case *ArgNode:
		return func(rc *runContext) (any, error) {
			if n.Index >= len(rc.args) {
				return nil, &Error{
					Code:        InvalidRuntimeArguments,
					ServiceType: n.ServiceType,
					Message:     fmt.Sprintf("argument %d was not supplied", n.Index),
				}
			}
			return rc.args[n.Index], nil
		}

	case *DefaultNode:
		return func(*runContext) (any, error) {
			return nil, nil
		}

	case *ResolverNode:
		return func(rc *runContext) (any, error) {
			return rc.c, nil
		}

	case *TrackNode:
		inner := compile(n.Inner)
		return func(rc *runContext) (any, error) {
			v, err := inner(rc)
			if err != nil {
				return nil, err
			}
			if err := rc.c.scope.Track(v); err != nil {
				return nil, scopeDisposedError(n.Type())
			}
			return v, nil
		}

	case *FuncNode:
		inner := compile(n.Inner)
		w, err := goWrapper(n.ServiceType)
		if err != nil {
			return failed(err)
		}
		withArgs := len(n.ArgTypes) > 0
		return func(rc *runContext) (any, error) {
			captured := *rc
			return w.build(wrapperParts{call: func(args []any) (any, error) {
				sub := captured
				if withArgs {
					sub.args = args
				}
				return inner(&sub)
			}})
		}

	case *LazyNode:
		inner := compile(n.Inner)
		w, err := goWrapper(n.ServiceType)
		if err != nil {
			return failed(err)
		}
		return func(rc *runContext) (any, error) {
			captured := *rc
			return w.build(wrapperParts{call: func([]any) (any, error) {
				return inner(&captured)
			}})
		}

	case *CollectionNode:
		items := compileAll(n.Items)
		st := sliceGoType(n.ServiceType)
		return func(rc *runContext) (any, error) {
			out := reflect.MakeSlice(st, 0, len(items))
			for _, item := range items {
				v, err := item(rc)
				if err != nil {
					return nil, err
				}
				rv, err := reflection.ValueOf(v, st.Elem())
				if err != nil {
					return nil, &Error{Code: ImplementationNotAssignableToServiceType, ServiceType: n.ServiceType, Cause: err}
				}
				out = reflect.Append(out, rv)
			}
			return out.Interface(), nil
		}

	case *ManyNode:
		w, err := goWrapper(n.ServiceType)
		if err != nil {
			return failed(err)
		}
		return func(rc *runContext) (any, error) {
			return w.build(wrapperParts{seq: rc.c.manySeq(n.Item, n.RequiredType, n.Key, LazyEnumeration)})
		}

	case *KeyedNode:
		inner := compile(n.Inner)
		w, err := goWrapper(n.ServiceType)
		if err != nil {
			return failed(err)
		}
		return func(rc *runContext) (any, error) {
			v, err := inner(rc)
			if err != nil {
				return nil, err
			}
			return w.build(wrapperParts{key: rc.state[n.KeySlot], value: v})
		}

	case *MetaNode:
		inner := compile(n.Inner)
		w, err := goWrapper(n.ServiceType)
		if err != nil {
			return failed(err)
		}
		return func(rc *runContext) (any, error) {
			v, err := inner(rc)
			if err != nil {
				return nil, err
			}
			return w.build(wrapperParts{value: v, metadata: rc.state[n.MetaSlot]})
		}

	case *FallbackNode:
		return func(rc *runContext) (any, error) {
			fb := rc.state[n.Slot].(Resolver)
			return fb.Resolve(n.ServiceType, WithKey(n.Key))
		}
	}

	return failed(fmt.Errorf("cannot compile %T", p))
}

// compileScoped stores the inner result in the scope selected by the reuse.
// Errors from the inner plan pass through unchanged.
func compileScoped(n *ScopedNode) createFunc {
	inner := compile(n.Inner)
	return func(rc *runContext) (any, error) {
		s, view, err := rc.c.scopeFor(n.ServiceType, n.Reuse)
		if err != nil {
			return nil, err
		}

		var innerErr error
		v, err := s.GetOrCreate(n.ID, rc.creating, n.Track, func(creating *lifetime.Creating) (any, error) {
			sub := *rc
			sub.c = view
			sub.creating = creating
			v, err := inner(&sub)
			innerErr = err
			return v, err
		})
		if err == nil || err == innerErr {
			return v, err
		}

		switch {
		case errors.Is(err, lifetime.ErrRecursiveCreation):
			return nil, &Error{
				Code:        RecursiveDependencyDetected,
				ServiceType: n.ServiceType,
				Message:     n.Reuse.String() + " instance requested while it is being created",
			}
		case errors.Is(err, lifetime.ErrScopeDisposed):
			return nil, scopeDisposedError(n.ServiceType)
		}
		return nil, err
	}
}

func compileAll(plans []Plan) []createFunc {
	out := make([]createFunc, len(plans))
	for i, p := range plans {
		out[i] = compile(p)
	}
	return out
}

func evalAll(rc *runContext, fns []createFunc) ([]any, error) {
	vals := make([]any, len(fns))
	for i, fn := range fns {
		v, err := fn(rc)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func failed(err error) createFunc {
	return func(*runContext) (any, error) {
		return nil, err
	}
}

func scopeDisposedError(t *Type) error {
	return &Error{Code: ScopeIsDisposed, ServiceType: t}
}
