// Package graph holds the directed service graph used for visualization and
// creation ordering. An edge runs from a service to each of its dependencies.
package graph

import (
	"slices"
	"sync"
)

// Node is a service in the graph.
type Node struct {
	ID    string
	Label string // defaults to ID
	Reuse string

	Dependencies []string // services this node depends on
	Dependents   []string // services that depend on this node
}

// Graph is safe for concurrent use.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string // insertion order
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// AddNode adds the node id. Adding an existing id fills in whatever label
// and reuse it did not have yet.
func (g *Graph) AddNode(id, label, reuse string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.node(id)
	if n.Label == "" {
		n.Label = label
	}
	if n.Reuse == "" {
		n.Reuse = reuse
	}
}

// AddEdge records that from depends on to, adding both nodes when missing.
// Repeated edges are ignored.
func (g *Graph) AddEdge(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	f, t := g.node(from), g.node(to)
	if slices.Contains(f.Dependencies, to) {
		return
	}
	f.Dependencies = append(f.Dependencies, to)
	t.Dependents = append(t.Dependents, from)
}

func (g *Graph) node(id string) *Node {
	n, ok := g.nodes[id]
	if !ok {
		n = &Node{ID: id}
		g.nodes[id] = n
		g.order = append(g.order, id)
	}
	return n
}

func (n *Node) label() string {
	if n.Label == "" {
		return n.ID
	}
	return n.Label
}

// Node returns a copy of the node id.
func (g *Graph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	cp := *n
	cp.Label = n.label()
	cp.Dependencies = slices.Clone(n.Dependencies)
	cp.Dependents = slices.Clone(n.Dependents)
	return cp, true
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Roots returns the nodes nothing depends on, in insertion order.
func (g *Graph) Roots() []string {
	return g.filter(func(n *Node) bool { return len(n.Dependents) == 0 })
}

// Leaves returns the nodes without dependencies, in insertion order.
func (g *Graph) Leaves() []string {
	return g.filter(func(n *Node) bool { return len(n.Dependencies) == 0 })
}

func (g *Graph) filter(keep func(*Node) bool) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ids []string
	for _, id := range g.order {
		if keep(g.nodes[id]) {
			ids = append(ids, id)
		}
	}
	return ids
}

// TopologicalSort orders the nodes so that every node follows all of its
// dependencies. Ties keep insertion order.
func (g *Graph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	pending := make(map[string]int, len(g.nodes))
	var queue []string
	for _, id := range g.order {
		pending[id] = len(g.nodes[id].Dependencies)
		if pending[id] == 0 {
			queue = append(queue, id)
		}
	}

	sorted := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)

		for _, d := range g.nodes[id].Dependents {
			pending[d]--
			if pending[d] == 0 {
				queue = append(queue, d)
			}
		}
	}

	if len(sorted) != len(g.nodes) {
		return nil, g.findCycle()
	}
	return sorted, nil
}

// DetectCycles returns a CircularDependencyError for the first cycle found.
func (g *Graph) DetectCycles() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.findCycle()
}

func (g *Graph) findCycle() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(g.nodes))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			start := slices.Index(path, id)
			return CircularDependencyError{Path: slices.Clone(path[start:])}
		}

		state[id] = visiting
		path = append(path, id)
		for _, dep := range g.nodes[id].Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[id] = done
		return nil
	}

	for _, id := range g.order {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// Depths returns, for every node, the length of its longest dependency
// chain. Leaves have depth 0.
func (g *Graph) Depths() (map[string]int, error) {
	sorted, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	depths := make(map[string]int, len(sorted))
	for _, id := range sorted {
		d := 0
		for _, dep := range g.nodes[id].Dependencies {
			d = max(d, depths[dep]+1)
		}
		depths[id] = d
	}
	return depths, nil
}
