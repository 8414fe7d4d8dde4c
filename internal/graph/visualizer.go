package graph

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// WriteDOT writes g in Graphviz DOT format. Nodes are filled by reuse.
func WriteDOT(w io.Writer, g *Graph) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph dependencies {")
	fmt.Fprintln(bw, "  rankdir=LR;")
	fmt.Fprintln(bw, "  node [shape=box, style=filled];")

	ids := make(map[string]string, len(g.order))
	for i, id := range g.order {
		ids[id] = fmt.Sprintf("n%d", i)
		n := g.nodes[id]
		fmt.Fprintf(bw, "  %s [label=%q, fillcolor=%q];\n", ids[id], nodeLabel(n), reuseColor(n.Reuse))
	}
	for _, id := range g.order {
		for _, dep := range g.nodes[id].Dependencies {
			fmt.Fprintf(bw, "  %s -> %s;\n", ids[id], ids[dep])
		}
	}

	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

// WriteText writes g as an indented list: each node followed by its direct
// dependencies.
func WriteText(w io.Writer, g *Graph) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	bw := bufio.NewWriter(w)
	for _, id := range g.order {
		n := g.nodes[id]
		fmt.Fprintln(bw, nodeLabel(n))
		for _, dep := range n.Dependencies {
			fmt.Fprintf(bw, "  -> %s\n", g.nodes[dep].label())
		}
	}
	return bw.Flush()
}

func nodeLabel(n *Node) string {
	if n.Reuse == "" {
		return n.label()
	}
	return n.label() + " (" + n.Reuse + ")"
}

func reuseColor(reuse string) string {
	switch {
	case reuse == "Singleton":
		return "lightblue"
	case strings.HasPrefix(reuse, "Scoped"), strings.HasPrefix(reuse, "InResolutionScope"):
		return "lightgreen"
	case reuse == "Transient":
		return "lightyellow"
	default:
		return "white"
	}
}
