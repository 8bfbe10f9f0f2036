// Package graph provides the dependency graph used for task scheduling.
package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pcranston/floe/pkg/models"
)

// InvalidEdgeError indicates an edge that references a nonexistent task
// or forms a self-loop.
type InvalidEdgeError struct {
	From string
	To   string
	// Reason is "unknown_from", "unknown_to", or "self_loop".
	Reason string
}

func (e *InvalidEdgeError) Error() string {
	switch e.Reason {
	case "self_loop":
		return fmt.Sprintf("invalid edge %s -> %s: self-loop", e.From, e.To)
	case "unknown_from":
		return fmt.Sprintf("invalid edge %s -> %s: unknown task %s", e.From, e.To, e.From)
	default:
		return fmt.Sprintf("invalid edge %s -> %s: unknown task %s", e.From, e.To, e.To)
	}
}

// edge is a directed dependency: from depends on to.
type edge struct {
	to   string
	kind models.EdgeKind
}

// Builder maintains the mutable adjacency structure for task dependencies.
// It validates edge endpoints but does not itself detect cycles; callers
// run FindCycles on a snapshot before scheduling.
type Builder struct {
	mu sync.RWMutex
	// nodes is the set of known task ids.
	nodes map[string]bool
	// edges maps task id to its outgoing dependency edges.
	edges map[string][]edge
	// dangling holds edge declarations whose target does not exist,
	// recorded by Build for diagnostics.
	dangling []Dangling
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		nodes: make(map[string]bool),
		edges: make(map[string][]edge),
	}
}

// AddNode registers a task id as a graph node.
func (b *Builder) AddNode(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodes[id] = true
}

// AddEdge records that from depends on to with the given kind.
// Both endpoints must already be registered nodes; self-loops are rejected.
// Re-adding an existing edge is a no-op, except that a mandatory
// declaration upgrades an existing soft edge. Kind disagreements resolve
// to mandatory, keeping the gating behavior; an edge never downgrades.
func (b *Builder) AddEdge(from, to string, kind models.EdgeKind) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if from == to {
		return &InvalidEdgeError{From: from, To: to, Reason: "self_loop"}
	}
	if !b.nodes[from] {
		return &InvalidEdgeError{From: from, To: to, Reason: "unknown_from"}
	}
	if !b.nodes[to] {
		return &InvalidEdgeError{From: from, To: to, Reason: "unknown_to"}
	}

	for i, e := range b.edges[from] {
		if e.to == to {
			if e.kind == models.EdgeSoft && kind == models.EdgeMandatory {
				b.edges[from][i].kind = models.EdgeMandatory
			}
			return nil
		}
	}
	b.edges[from] = append(b.edges[from], edge{to: to, kind: kind})
	return nil
}

// RemoveEdge deletes the edge from -> to if present. Removing a missing
// edge is a no-op.
func (b *Builder) RemoveEdge(from, to string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	edges := b.edges[from]
	for i, e := range edges {
		if e.to == to {
			b.edges[from] = append(edges[:i], edges[i+1:]...)
			return
		}
	}
}

// Build populates the builder from a slice of tasks, registering every
// task as a node and declaring its DependsOn edges. Edges referencing
// unknown tasks are skipped here and surfaced via Snapshot().Dangling;
// they are diagnostics, not build failures.
func (b *Builder) Build(tasks []*models.Task) {
	for _, t := range tasks {
		b.AddNode(t.ID)
	}
	for _, t := range tasks {
		for _, e := range t.DependsOn {
			// Ignore the error: unknown endpoints become dangling
			// references on the snapshot.
			_ = b.AddEdge(t.ID, e.TaskID, e.Kind)
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dangling = collectDangling(tasks, b.nodes)
}

// Snapshot returns an immutable copy of the current graph. All analysis
// components (cycle detection, conflict analysis, scheduling) operate on
// snapshots, never on the live builder.
func (b *Builder) Snapshot() *Graph {
	b.mu.RLock()
	defer b.mu.RUnlock()

	g := &Graph{
		nodes:    make([]string, 0, len(b.nodes)),
		edges:    make(map[string][]Edge, len(b.edges)),
		dangling: append([]Dangling(nil), b.dangling...),
	}
	for id := range b.nodes {
		g.nodes = append(g.nodes, id)
	}
	sort.Strings(g.nodes)
	for from, edges := range b.edges {
		out := make([]Edge, 0, len(edges))
		for _, e := range edges {
			out = append(out, Edge{From: from, To: e.to, Kind: e.kind})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].To < out[j].To })
		g.edges[from] = out
	}
	return g
}

// Dangling is an edge declaration whose target task does not exist.
// These are surfaced, never silently dropped.
type Dangling struct {
	From string
	To   string
	Kind models.EdgeKind
}

func collectDangling(tasks []*models.Task, nodes map[string]bool) []Dangling {
	var out []Dangling
	for _, t := range tasks {
		for _, e := range t.DependsOn {
			if !nodes[e.TaskID] {
				out = append(out, Dangling{From: t.ID, To: e.TaskID, Kind: e.Kind})
			}
		}
	}
	return out
}

// Edge is a directed dependency in a snapshot: From depends on To.
type Edge struct {
	From string
	To   string
	Kind models.EdgeKind
}

// Graph is an immutable snapshot of the dependency graph.
type Graph struct {
	nodes    []string
	edges    map[string][]Edge
	dangling []Dangling
}

// Nodes returns all task ids in the graph, sorted ascending.
func (g *Graph) Nodes() []string {
	return g.nodes
}

// Has reports whether the graph contains the given task id.
func (g *Graph) Has(id string) bool {
	i := sort.SearchStrings(g.nodes, id)
	return i < len(g.nodes) && g.nodes[i] == id
}

// Edges returns the outgoing dependency edges of a task, optionally
// filtered by kind. An empty kind matches every edge.
func (g *Graph) Edges(from string, kind models.EdgeKind) []Edge {
	if kind == "" {
		return g.edges[from]
	}
	var out []Edge
	for _, e := range g.edges[from] {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Dependents returns the ids of tasks that declare an edge to the given
// task, optionally filtered by kind.
func (g *Graph) Dependents(to string, kind models.EdgeKind) []string {
	var out []string
	for _, from := range g.nodes {
		for _, e := range g.edges[from] {
			if e.To == to && (kind == "" || e.Kind == kind) {
				out = append(out, from)
				break
			}
		}
	}
	return out
}

// Dangling returns edge declarations whose target task does not exist.
func (g *Graph) Dangling() []Dangling {
	return g.dangling
}

// Size returns the number of nodes in the graph.
func (g *Graph) Size() int {
	return len(g.nodes)
}
