// Package schedule computes parallel-safe execution waves from a
// validated dependency graph.
package schedule

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pcranston/floe/internal/graph"
	"github.com/pcranston/floe/pkg/models"
)

// UnresolvedDependencyError lists tasks that can never be placed in any
// wave because of a dangling or cyclic mandatory dependency. It is a
// diagnostic: scheduling of the rest of the graph still succeeds.
type UnresolvedDependencyError struct {
	TaskIDs []string
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("unresolved dependencies for tasks: %s", strings.Join(e.TaskIDs, ", "))
}

// Result is the output of a scheduling pass.
type Result struct {
	// Waves are the ordered execution batches. Every non-done,
	// non-unresolved task appears in exactly one wave, and every
	// mandatory dependency sits in a strictly earlier wave.
	Waves []models.Wave
	// Unresolved lists tasks that can never become ready, sorted
	// ascending. They are excluded from all waves.
	Unresolved []string
}

// Schedule computes waves with a Kahn's algorithm variant. Wave 1 is
// every non-done task whose mandatory dependencies are all done; each
// following wave is recomputed as if the prior waves had completed.
// Soft edges never gate. Within a wave, order is priority descending,
// then task id ascending; the ordering affects dispatch order only,
// never membership.
func Schedule(g *graph.Graph, tasks []*models.Task) Result {
	byID := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	// placed maps task id to its wave index; done tasks count as
	// already placed before wave 0.
	placed := make(map[string]int)
	var pending []*models.Task
	for _, t := range tasks {
		if t.Status == models.TaskStatusDone || t.Archived {
			placed[t.ID] = -1
			continue
		}
		pending = append(pending, t)
	}

	var waves []models.Wave
	for len(pending) > 0 {
		var members []*models.Task
		var rest []*models.Task
		for _, t := range pending {
			if ready(t, g, byID, placed) {
				members = append(members, t)
			} else {
				rest = append(rest, t)
			}
		}
		if len(members) == 0 {
			// Nothing left can become ready: dangling references or
			// a mandatory cycle. The remainder is unresolved.
			break
		}

		Order(members)
		wave := models.Wave{Index: len(waves)}
		for _, t := range members {
			wave.TaskIDs = append(wave.TaskIDs, t.ID)
			placed[t.ID] = wave.Index
		}
		waves = append(waves, wave)
		pending = rest
	}

	var unresolved []string
	for _, t := range pending {
		unresolved = append(unresolved, t.ID)
	}
	sort.Strings(unresolved)

	return Result{Waves: waves, Unresolved: unresolved}
}

// ready reports whether every mandatory dependency of t exists and is
// either done or placed in an earlier wave.
func ready(t *models.Task, g *graph.Graph, byID map[string]*models.Task, placed map[string]int) bool {
	for _, e := range g.Edges(t.ID, models.EdgeMandatory) {
		if _, known := byID[e.To]; !known {
			return false
		}
		if _, ok := placed[e.To]; !ok {
			return false
		}
	}
	// Mandatory edges dropped from the graph as dangling still gate:
	// a task referencing a nonexistent dependency can never run.
	for _, e := range t.DependsOn {
		if e.Kind == models.EdgeMandatory && !g.Has(e.TaskID) {
			return false
		}
	}
	return true
}

// Order sorts tasks in dispatch order: priority descending, then id
// ascending. The id tie-break keeps the order deterministic for tasks
// of equal priority.
func Order(tasks []*models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		ri, rj := tasks[i].Priority.Rank(), tasks[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return tasks[i].ID < tasks[j].ID
	})
}
