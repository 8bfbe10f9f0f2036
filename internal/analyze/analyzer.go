// Package analyze inspects a task graph for priority, status, and
// assignment inconsistencies. It only produces findings; nothing here
// mutates tasks or the graph.
package analyze

import (
	"fmt"
	"sort"

	"github.com/pcranston/floe/internal/graph"
	"github.com/pcranston/floe/pkg/models"
)

// DefaultOwnerOverloadThreshold is the in_progress count per owner above
// which an owner_overload finding fires.
const DefaultOwnerOverloadThreshold = 3

// Options configures the analyzer rules.
type Options struct {
	// OwnerOverloadThreshold overrides the default in_progress limit per
	// owner. Zero means DefaultOwnerOverloadThreshold.
	OwnerOverloadThreshold int
}

// Analyze evaluates every rule against the graph and tasks. Rules are
// independent: one task may trigger several findings. Output order is
// deterministic (by task id, then category).
func Analyze(g *graph.Graph, tasks []*models.Task, opts Options) []models.Finding {
	threshold := opts.OwnerOverloadThreshold
	if threshold <= 0 {
		threshold = DefaultOwnerOverloadThreshold
	}

	byID := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	var findings []models.Finding
	for _, t := range tasks {
		findings = append(findings, priorityInversions(g, t, byID)...)
		findings = append(findings, statusInconsistencies(g, t, byID)...)
		if f := orphanTask(g, t); f != nil {
			findings = append(findings, *f)
		}
	}
	findings = append(findings, ownerOverloads(tasks, threshold)...)

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].TaskID != findings[j].TaskID {
			return findings[i].TaskID < findings[j].TaskID
		}
		return findings[i].Category < findings[j].Category
	})
	return findings
}

// priorityInversions flags high-priority tasks gated on low-priority ones.
func priorityInversions(g *graph.Graph, t *models.Task, byID map[string]*models.Task) []models.Finding {
	if t.Priority != models.PriorityHigh {
		return nil
	}
	var findings []models.Finding
	for _, e := range g.Edges(t.ID, models.EdgeMandatory) {
		dep, ok := byID[e.To]
		if !ok || dep.Priority != models.PriorityLow {
			continue
		}
		findings = append(findings, models.Finding{
			Severity: models.SeverityWarning,
			Category: models.FindingPriorityInversion,
			TaskID:   t.ID,
			Related:  []string{dep.ID},
			Message: fmt.Sprintf("high-priority task %s has a mandatory dependency on low-priority task %s",
				t.ID, dep.ID),
			Remediation: fmt.Sprintf("raise priority of %s to match %s", dep.ID, t.ID),
		})
	}
	return findings
}

// statusInconsistencies flags done tasks with non-done mandatory deps.
func statusInconsistencies(g *graph.Graph, t *models.Task, byID map[string]*models.Task) []models.Finding {
	if t.Status != models.TaskStatusDone {
		return nil
	}
	var findings []models.Finding
	for _, e := range g.Edges(t.ID, models.EdgeMandatory) {
		dep, ok := byID[e.To]
		if !ok || dep.Status == models.TaskStatusDone {
			continue
		}
		findings = append(findings, models.Finding{
			Severity: models.SeverityWarning,
			Category: models.FindingStatusInconsistency,
			TaskID:   t.ID,
			Related:  []string{dep.ID},
			Message: fmt.Sprintf("task %s is done but mandatory dependency %s is %s",
				t.ID, dep.ID, dep.Status),
		})
	}
	return findings
}

// orphanTask flags tasks with no edges in either direction and no owner.
// Informational only; orphans schedule normally.
func orphanTask(g *graph.Graph, t *models.Task) *models.Finding {
	if t.Owner != "" {
		return nil
	}
	if len(g.Edges(t.ID, "")) > 0 || len(g.Dependents(t.ID, "")) > 0 {
		return nil
	}
	return &models.Finding{
		Severity: models.SeverityInfo,
		Category: models.FindingOrphanTask,
		TaskID:   t.ID,
		Message:  fmt.Sprintf("task %s has no dependencies, no dependents, and no owner", t.ID),
	}
}

// ownerOverloads flags owners with more than threshold tasks in_progress.
func ownerOverloads(tasks []*models.Task, threshold int) []models.Finding {
	counts := make(map[string][]string)
	for _, t := range tasks {
		if t.Owner != "" && t.Status == models.TaskStatusInProgress {
			counts[t.Owner] = append(counts[t.Owner], t.ID)
		}
	}

	owners := make([]string, 0, len(counts))
	for owner := range counts {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	var findings []models.Finding
	for _, owner := range owners {
		ids := counts[owner]
		if len(ids) <= threshold {
			continue
		}
		sort.Strings(ids)
		findings = append(findings, models.Finding{
			Severity: models.SeverityInfo,
			Category: models.FindingOwnerOverload,
			Related:  append([]string{owner}, ids...),
			Message: fmt.Sprintf("owner %s has %d tasks in progress (threshold %d)",
				owner, len(ids), threshold),
		})
	}
	return findings
}
