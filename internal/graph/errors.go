package graph

import "strings"

// CircularDependencyError reports a cycle. Path lists the node ids of the
// cycle in dependency order; the last one depends on the first.
type CircularDependencyError struct {
	Path []string
}

func (e CircularDependencyError) Error() string {
	if len(e.Path) == 0 {
		return "circular dependency"
	}
	return "circular dependency: " + strings.Join(e.Path, " -> ") + " -> " + e.Path[0]
}
