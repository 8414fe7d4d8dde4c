package graft

import (
	"fmt"
	"io"

	"github.com/junioryono/graft/internal/graph"
)

// WriteGraph writes the dependency graph of serviceTypes to w in Graphviz
// DOT format. The graph is read from the creation plans, so it shows what
// resolution constructs, decorators and collection items included.
func (c *Container) WriteGraph(w io.Writer, serviceTypes ...*Type) error {
	g, err := c.dependencyGraph(serviceTypes)
	if err != nil {
		return err
	}
	return graph.WriteDOT(w, g)
}

// CreationOrder returns the services needed by serviceTypes, each listed
// after all of its dependencies.
func (c *Container) CreationOrder(serviceTypes ...*Type) ([]string, error) {
	g, err := c.dependencyGraph(serviceTypes)
	if err != nil {
		return nil, err
	}
	ids, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}
	labels := make([]string, len(ids))
	for i, id := range ids {
		n, _ := g.Node(id)
		labels[i] = n.Label
	}
	return labels, nil
}

func (c *Container) dependencyGraph(serviceTypes []*Type) (*graph.Graph, error) {
	g := graph.New()
	for _, t := range serviceTypes {
		p, err := c.PlanOf(t)
		if err != nil {
			return nil, err
		}
		addToGraph(g, p, vertex{})
	}
	return g, nil
}

// vertex carries what wrapper nodes pass down to the node they wrap.
type vertex struct {
	parent string
	reuse  string
	tag    string // distinguishes registrations sharing a constructor
}

// addToGraph adds the vertex p produces and an edge from its parent to it.
// Wrapper nodes are transparent.
func addToGraph(g *graph.Graph, p Plan, v vertex) {
	var (
		id, label string
		children  []Plan
	)

	switch n := p.(type) {
	case *ScopedNode:
		v.reuse = n.Reuse.String()
		v.tag = fmt.Sprintf("#%d", n.ID)
		addToGraph(g, n.Inner, v)
		return
	case *TrackNode:
		addToGraph(g, n.Inner, v)
		return
	case *ResolutionScopeNode:
		addToGraph(g, n.Inner, v)
		return
	case *FuncNode:
		addToGraph(g, n.Inner, v)
		return
	case *LazyNode:
		addToGraph(g, n.Inner, v)
		return
	case *KeyedNode:
		addToGraph(g, n.Inner, v)
		return
	case *MetaNode:
		addToGraph(g, n.Inner, v)
		return
	case *ResolverNode:
		return

	case *NewNode:
		id = fmt.Sprintf("new %s %x%s", n.ServiceType, n.Ctor.Value.Pointer(), v.tag)
		label = n.ServiceType.String()
		children = n.Args
		if v.reuse == "" {
			v.reuse = Transient.String()
		}
	case *CallNode:
		id = fmt.Sprintf("call %s %s%s", n.ServiceType, n.Name, v.tag)
		label = n.ServiceType.String()
		if n.Receiver != nil {
			children = append(children, n.Receiver)
		}
		children = append(children, n.Args...)
	case *InstanceNode:
		id = fmt.Sprintf("instance %s %d", n.ServiceType, n.Slot)
		label = n.ServiceType.String()
	case *ResolveCallNode:
		id = "resolve " + n.ServiceType.String() + keySuffix(n.Key)
		label = n.ServiceType.String() + keySuffix(n.Key)
	case *ArgNode:
		id = fmt.Sprintf("arg %s %d", n.ServiceType, n.Index)
		label = n.ServiceType.String() + " argument"
	case *DefaultNode:
		id = "default " + n.ServiceType.String()
		label = n.ServiceType.String() + " default"
	case *CollectionNode:
		id = "collection " + n.ServiceType.String() + v.tag
		label = n.ServiceType.String()
		g.AddNode(id, label, v.reuse)
		if v.parent != "" {
			g.AddEdge(v.parent, id)
		}
		for i, item := range n.Items {
			addToGraph(g, item, vertex{parent: id, tag: fmt.Sprintf("@%d", i)})
		}
		return
	case *ManyNode:
		id = "many " + n.ServiceType.String() + keySuffix(n.Key)
		label = n.ServiceType.String() + keySuffix(n.Key)
	case *FallbackNode:
		id = "fallback " + n.ServiceType.String() + keySuffix(n.Key)
		label = n.ServiceType.String() + keySuffix(n.Key) + " fallback"
	default:
		return
	}

	g.AddNode(id, label, v.reuse)
	if v.parent != "" {
		g.AddEdge(v.parent, id)
	}
	for _, child := range children {
		if child != nil {
			addToGraph(g, child, vertex{parent: id})
		}
	}
}
