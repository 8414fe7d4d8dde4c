package graft

import (
	"fmt"
	"strings"

	"github.com/junioryono/graft/internal/reflection"
)

// Plan is the creation plan for one service: a tree of construction steps
// compiled once and executed on every resolution. Plans print
// deterministically, so two plans with equal strings are structurally
// identical.
type Plan interface {
	// Type returns the type of the produced value.
	Type() *Type

	String() string
	write(w *planWriter)
}

// NewNode calls a constructor with the values of Args.
type NewNode struct {
	ServiceType *Type
	Ctor        *reflection.ConstructorInfo
	Args        []Plan
}

// CallNode calls a method or delegate. Receiver, when present, is passed as
// the first argument.
type CallNode struct {
	ServiceType *Type
	Method      *reflection.ConstructorInfo
	Name        string
	Receiver    Plan
	Args        []Plan
}

// InstanceNode provides a value held in the plan's runtime state.
type InstanceNode struct {
	ServiceType *Type
	Slot        int
}

// ResolveCallNode resolves its service through a separate plan at runtime.
// It breaks cycles behind deferred wrappers.
type ResolveCallNode struct {
	ServiceType  *Type
	Key          any
	RequiredType *Type
}

// ScopedNode stores the result of Inner in the scope chosen by Reuse.
type ScopedNode struct {
	ServiceType *Type
	ID          uint64
	Reuse       Reuse
	Track       bool
	Inner       Plan
}

// ResolutionScopeNode opens a scope named Name around Inner.
type ResolutionScopeNode struct {
	Name  ResolutionScopeName
	Inner Plan
}

// ArgNode provides runtime argument Index.
type ArgNode struct {
	ServiceType *Type
	Index       int
}

// DefaultNode provides nil.
type DefaultNode struct {
	ServiceType *Type
}

// ResolverNode provides the resolver of the current scope.
type ResolverNode struct{}

// TrackNode registers the result of Inner for disposal with the current scope.
type TrackNode struct {
	Inner Plan
}

// FuncNode builds a Func or Func1 whose calls run Inner.
type FuncNode struct {
	ServiceType *Type
	ArgTypes    []*Type
	Inner       Plan
}

// LazyNode builds a Lazy that runs Inner on first use.
type LazyNode struct {
	ServiceType *Type
	Inner       Plan
}

// CollectionNode builds a slice from Items.
type CollectionNode struct {
	ServiceType *Type
	Items       []Plan
}

// ManyNode builds a Many enumerating Item registrations at runtime.
type ManyNode struct {
	ServiceType  *Type
	Item         *Type
	RequiredType *Type
	Key          any
}

// KeyedNode pairs Inner with the key in state slot KeySlot.
type KeyedNode struct {
	ServiceType *Type
	Key         any
	KeySlot     int
	Inner       Plan
}

// MetaNode pairs Inner with the metadata in state slot MetaSlot.
type MetaNode struct {
	ServiceType *Type
	MetaSlot    int
	Inner       Plan
}

// FallbackNode resolves the service from the fallback resolver in state
// slot Slot.
type FallbackNode struct {
	ServiceType *Type
	Key         any
	Slot        int
}

func (n *NewNode) Type() *Type             { return n.ServiceType }
func (n *CallNode) Type() *Type            { return n.ServiceType }
func (n *InstanceNode) Type() *Type        { return n.ServiceType }
func (n *ResolveCallNode) Type() *Type     { return n.ServiceType }
func (n *ScopedNode) Type() *Type          { return n.ServiceType }
func (n *ResolutionScopeNode) Type() *Type { return n.Inner.Type() }
func (n *ArgNode) Type() *Type             { return n.ServiceType }
func (n *DefaultNode) Type() *Type         { return n.ServiceType }
func (n *ResolverNode) Type() *Type        { return resolverType }
func (n *TrackNode) Type() *Type           { return n.Inner.Type() }
func (n *FuncNode) Type() *Type            { return n.ServiceType }
func (n *LazyNode) Type() *Type            { return n.ServiceType }
func (n *CollectionNode) Type() *Type      { return n.ServiceType }
func (n *ManyNode) Type() *Type            { return n.ServiceType }
func (n *KeyedNode) Type() *Type           { return n.ServiceType }
func (n *MetaNode) Type() *Type            { return n.ServiceType }
func (n *FallbackNode) Type() *Type        { return n.ServiceType }

func (n *NewNode) String() string             { return formatPlan(n) }
func (n *CallNode) String() string            { return formatPlan(n) }
func (n *InstanceNode) String() string        { return formatPlan(n) }
func (n *ResolveCallNode) String() string     { return formatPlan(n) }
func (n *ScopedNode) String() string          { return formatPlan(n) }
func (n *ResolutionScopeNode) String() string { return formatPlan(n) }
func (n *ArgNode) String() string             { return formatPlan(n) }
func (n *DefaultNode) String() string         { return formatPlan(n) }
func (n *ResolverNode) String() string        { return formatPlan(n) }
func (n *TrackNode) String() string           { return formatPlan(n) }
func (n *FuncNode) String() string            { return formatPlan(n) }
func (n *LazyNode) String() string            { return formatPlan(n) }
func (n *CollectionNode) String() string      { return formatPlan(n) }
func (n *ManyNode) String() string            { return formatPlan(n) }
func (n *KeyedNode) String() string           { return formatPlan(n) }
func (n *MetaNode) String() string            { return formatPlan(n) }
func (n *FallbackNode) String() string        { return formatPlan(n) }

// planWriter renders plans as indented trees.
type planWriter struct {
	b     strings.Builder
	depth int
}

func formatPlan(p Plan) string {
	w := &planWriter{}
	p.write(w)
	return strings.TrimSuffix(w.b.String(), "\n")
}

func (w *planWriter) line(format string, args ...any) {
	w.b.WriteString(strings.Repeat("  ", w.depth))
	fmt.Fprintf(&w.b, format, args...)
	w.b.WriteByte('\n')
}

func (w *planWriter) children(plans ...Plan) {
	w.depth++
	for _, p := range plans {
		if p != nil {
			p.write(w)
		}
	}
	w.depth--
}

func keySuffix(key any) string {
	if key == nil {
		return ""
	}
	return fmt.Sprintf(" {%v}", key)
}

func (n *NewNode) write(w *planWriter) {
	w.line("New %s %s", n.ServiceType, n.Ctor.Type)
	w.children(n.Args...)
}

func (n *CallNode) write(w *planWriter) {
	w.line("Call %s %s", n.ServiceType, n.Name)
	if n.Receiver != nil {
		w.children(n.Receiver)
	}
	w.children(n.Args...)
}

func (n *InstanceNode) write(w *planWriter) {
	w.line("Instance %s state[%d]", n.ServiceType, n.Slot)
}

func (n *ResolveCallNode) write(w *planWriter) {
	s := "ResolveCall " + n.ServiceType.String() + keySuffix(n.Key)
	if n.RequiredType != nil {
		s += " as " + n.RequiredType.String()
	}
	w.line("%s", s)
}

func (n *ScopedNode) write(w *planWriter) {
	tracked := ""
	if !n.Track {
		tracked = " untracked"
	}
	w.line("Scoped %s %s #%d%s", n.ServiceType, n.Reuse, n.ID, tracked)
	w.children(n.Inner)
}

func (n *ResolutionScopeNode) write(w *planWriter) {
	w.line("ResolutionScope %s", n.Name)
	w.children(n.Inner)
}

func (n *ArgNode) write(w *planWriter) {
	w.line("Arg %s args[%d]", n.ServiceType, n.Index)
}

func (n *DefaultNode) write(w *planWriter) {
	w.line("Default %s", n.ServiceType)
}

func (n *ResolverNode) write(w *planWriter) {
	w.line("Resolver")
}

func (n *TrackNode) write(w *planWriter) {
	w.line("Track")
	w.children(n.Inner)
}

func (n *FuncNode) write(w *planWriter) {
	w.line("Func %s", n.ServiceType)
	w.children(n.Inner)
}

func (n *LazyNode) write(w *planWriter) {
	w.line("Lazy %s", n.ServiceType)
	w.children(n.Inner)
}

func (n *CollectionNode) write(w *planWriter) {
	w.line("Collection %s (%d)", n.ServiceType, len(n.Items))
	w.children(n.Items...)
}

func (n *ManyNode) write(w *planWriter) {
	s := "Many " + n.Item.String() + keySuffix(n.Key)
	if n.RequiredType != nil {
		s += " as " + n.RequiredType.String()
	}
	w.line("%s", s)
}

func (n *KeyedNode) write(w *planWriter) {
	w.line("Keyed %s key=%v", n.ServiceType, n.Key)
	w.children(n.Inner)
}

func (n *MetaNode) write(w *planWriter) {
	w.line("Meta %s state[%d]", n.ServiceType, n.MetaSlot)
	w.children(n.Inner)
}

func (n *FallbackNode) write(w *planWriter) {
	w.line("Fallback %s%s state[%d]", n.ServiceType, keySuffix(n.Key), n.Slot)
}
