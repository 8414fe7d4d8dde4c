package graft_test

import (
	"sync/atomic"

	"github.com/junioryono/graft"
)

// ============================================================================
// Shared Test Types
// ============================================================================

// TService is a basic service for testing.
type TService struct {
	ID    string
	Value int
}

func NewTService() *TService { return &TService{ID: "svc"} }

// TDependency is a basic dependency for testing.
type TDependency struct {
	Name string
}

func NewTDependency() *TDependency { return &TDependency{Name: "dep"} }

// TServiceWithDeps demonstrates dependency injection.
type TServiceWithDeps struct {
	Svc *TService
	Dep *TDependency
}

func NewTServiceWithDeps(svc *TService, dep *TDependency) *TServiceWithDeps {
	return &TServiceWithDeps{Svc: svc, Dep: dep}
}

// TCounter counts constructor calls.
type TCounter struct {
	calls atomic.Int64
}

func (c *TCounter) Calls() int64 { return c.calls.Load() }

// TCounted is created by a counting constructor.
type TCounted struct {
	N int64
}

func (c *TCounter) NewTCounted() *TCounted {
	return &TCounted{N: c.calls.Add(1)}
}

// Cycles without deferral.
type TCircularA struct{ B *TCircularB }
type TCircularB struct{ A *TCircularA }

func NewTCircularA(b *TCircularB) *TCircularA { return &TCircularA{B: b} }
func NewTCircularB(a *TCircularA) *TCircularB { return &TCircularB{A: a} }

// Cycles broken by Lazy and Func.
type TLazyA struct{ B *TLazyB }
type TLazyB struct{ A graft.Lazy[*TLazyA] }

func NewTLazyA(b *TLazyB) *TLazyA            { return &TLazyA{B: b} }
func NewTLazyB(a graft.Lazy[*TLazyA]) *TLazyB { return &TLazyB{A: a} }

type TFuncA struct{ B *TFuncB }
type TFuncB struct{ A graft.Func[*TFuncA] }

func NewTFuncA(b *TFuncB) *TFuncA            { return &TFuncA{B: b} }
func NewTFuncB(a graft.Func[*TFuncA]) *TFuncB { return &TFuncB{A: a} }

// Domain events for variance tests. MoveAbroad embeds Move, so it is a Move.
type Move struct{ To string }
type MoveAbroad struct {
	Move
	Country string
}

// Greeter takes a runtime argument.
type Greeter struct {
	Name string
	Dep  *TDependency
}

func NewGreeter(name string, dep *TDependency) *Greeter {
	return &Greeter{Name: name, Dep: dep}
}

// Plugin is implemented by several services.
type Plugin interface {
	Name() string
}

type namedPlugin string

func (p namedPlugin) Name() string { return string(p) }

func pluginCtor(name string) func() Plugin {
	return func() Plugin { return namedPlugin(name) }
}

func pluginNames(ps []Plugin) []string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name()
	}
	return names
}
