package graph

import (
	"fmt"
	"strings"

	"github.com/pcranston/floe/pkg/models"
)

// Cycle is an ordered list of task ids forming a dependency loop.
// The first id is repeated conceptually at the end but not stored:
// [A B C] means A -> B -> C -> A.
type Cycle []string

// String renders the cycle as "A -> B -> C -> A".
func (c Cycle) String() string {
	if len(c) == 0 {
		return ""
	}
	return strings.Join(c, " -> ") + " -> " + c[0]
}

// CycleDetectedError carries the offending cycle paths. It is raised as a
// pre-flight validation result before scheduling, never during execution.
type CycleDetectedError struct {
	Cycles []Cycle
}

func (e *CycleDetectedError) Error() string {
	paths := make([]string, len(e.Cycles))
	for i, c := range e.Cycles {
		paths[i] = c.String()
	}
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(paths, "; "))
}

// FindCycles returns every cycle in the subgraph formed by edges of the
// given kind, using a depth-first three-color marking scheme. A back-edge
// to a gray node yields a cycle, reconstructed by walking the active
// recursion path. The result is empty if and only if that subgraph is
// acyclic. O(V+E) per run; incremental edits just rerun it.
func FindCycles(g *Graph, kind models.EdgeKind) []Cycle {
	const (
		white = 0 // unvisited
		gray  = 1 // on the active path
		black = 2 // fully explored
	)

	colors := make(map[string]int, g.Size())
	var cycles []Cycle
	var path []string

	var visit func(id string)
	visit = func(id string) {
		colors[id] = gray
		path = append(path, id)

		for _, e := range g.Edges(id, kind) {
			switch colors[e.To] {
			case gray:
				// Back-edge: the cycle is the path suffix starting
				// at the gray target.
				for i, pid := range path {
					if pid == e.To {
						cycle := make(Cycle, len(path)-i)
						copy(cycle, path[i:])
						cycles = append(cycles, cycle)
						break
					}
				}
			case white:
				visit(e.To)
			}
		}

		path = path[:len(path)-1]
		colors[id] = black
	}

	for _, id := range g.Nodes() {
		if colors[id] == white {
			visit(id)
		}
	}
	return cycles
}
