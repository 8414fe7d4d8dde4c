// Package graft provides a dependency injection container that compiles
// each resolution into a cached creation plan.
//
// # Overview
//
// graft resolves object graphs from explicit registrations. The library
// provides:
//   - Reuse policies: Transient, Singleton, Scoped, ScopedTo(name),
//     ScopedToService, InResolutionScope and ScopedOrSingleton
//   - Keyed registrations, conditions and duplicate policies
//   - Decorators applied in a defined order
//   - Open generic registrations with variance and constraints
//   - Wrappers: Func, Func1, Lazy, collections ([]T and Many), Keyed and Meta
//   - Plans compiled once per registry version and request shape
//   - Lock-free reads: registration publishes an immutable snapshot
//
// # Basic Usage
//
// Create a container, register services and resolve:
//
//	c := graft.New()
//	defer c.Close()
//
//	_ = graft.Register[Logger](c, graft.Ctor(NewLogger), graft.WithReuse(graft.Singleton))
//	_ = graft.Register[*UserService](c, graft.Ctor(NewUserService))
//
//	svc, err := graft.Resolve[*UserService](c)
//
// # Types
//
// Services are described by *Type values. TypeOf[T]() describes a Go type;
// NewType creates nominal types that exist only for the container, and
// Generic declares open generic definitions:
//
//	var Handler = graft.Generic("Handler", graft.InParam("E"))
//
//	_ = c.Register(Handler.Open(), graft.OpenCtor(Handler, buildHandler))
//	h, err := c.Resolve(Handler.Of(graft.TypeOf[UserCreated]()))
//
// Go struct embedding reads as "is-a": a struct embedding Move is
// assignable to Move, so a contravariant Handler[Move] serves
// Handler[MoveAbroad].
//
// # Scopes
//
// OpenScope returns a container view bound to a child scope. Scoped
// services live until the scope is disposed; disposal runs in reverse
// creation order and disposes open child scopes first.
//
//	scope, err := c.OpenScope(graft.WithScopeContext(ctx))
//	if err != nil {
//	    return err
//	}
//	defer scope.Close()
//
// # Plans
//
// The first resolution of a request shape builds a Plan, a tree of
// construction steps, and compiles it. Later resolutions run the compiled
// plan directly. Any registry change invalidates every plan. PlanOf exposes
// the plan for diagnostics:
//
//	p, _ := c.PlanOf(graft.TypeOf[*UserService]())
//	fmt.Println(p)
//
// # Errors
//
// Registration and resolution fail with *Error. Match codes with HasCode or
// errors.Is against the Err* sentinels:
//
//	if errors.Is(err, graft.ErrUnknownService) {
//	    ...
//	}
package graft
