// Package reconcile merges the three stores of truth: the task store,
// the plan document, and the external tracker. A reconcile pass produces
// a Patch describing writes; applying the patch is a separate step.
package reconcile

import (
	"sort"
	"time"

	"github.com/pcranston/floe/internal/plandoc"
	"github.com/pcranston/floe/internal/tracker"
	"github.com/pcranston/floe/pkg/models"
)

// TaskView is one store's picture of a single task.
type TaskView struct {
	ID        string
	Title     string
	Status    models.TaskStatus
	Priority  models.Priority
	Owner     string
	Edges     []models.Edge
	Checklist map[string]bool
	// Ref is the tracker-side ref, when the source knows it.
	Ref string
	// UpdatedAt is when this store last modified the task; zero if the
	// store does not track edit times.
	UpdatedAt time.Time
	// Version is the task store's optimistic-concurrency counter; zero
	// for the other stores.
	Version int64
	// HasOwner reports whether the source store models ownership at
	// all. Stores without the concept never contest the field.
	HasOwner bool
}

// View is one store's picture of the whole task set.
type View struct {
	Source models.StoreName
	Tasks  map[string]*TaskView
}

// IDs returns the task ids in the view, sorted ascending.
func (v *View) IDs() []string {
	ids := make([]string, 0, len(v.Tasks))
	for id := range v.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FromTasks builds the task store view.
func FromTasks(tasks []*models.Task) *View {
	v := &View{Source: models.StoreTask, Tasks: make(map[string]*TaskView)}
	for _, t := range tasks {
		if t.Archived {
			continue
		}
		v.Tasks[t.ID] = &TaskView{
			ID:        t.ID,
			Title:     t.Title,
			Status:    t.Status,
			Priority:  t.Priority,
			Owner:     t.Owner,
			Edges:     append([]models.Edge(nil), t.DependsOn...),
			Checklist: copyChecklist(t.Checklist),
			Ref:       t.ExternalRef,
			UpdatedAt: t.UpdatedAt,
			Version:   t.Version,
			HasOwner:  true,
		}
	}
	return v
}

// FromPlan builds the plan document view.
func FromPlan(doc *plandoc.Document) *View {
	v := &View{Source: models.StorePlan, Tasks: make(map[string]*TaskView)}
	for i := range doc.Tasks {
		e := &doc.Tasks[i]
		updated := e.UpdatedAt
		if updated.IsZero() {
			updated = doc.UpdatedAt
		}
		v.Tasks[e.ID] = &TaskView{
			ID:        e.ID,
			Title:     e.Title,
			Status:    models.TaskStatus(e.Status),
			Priority:  models.Priority(e.Priority),
			Owner:     e.Owner,
			Edges:     e.Edges(),
			Checklist: copyChecklist(e.Checklist),
			UpdatedAt: updated,
			HasOwner:  true,
		}
	}
	return v
}

// FromIssues builds the tracker view. Issues without a task id are
// mirrored under their ref so reconciliation can create the task.
func FromIssues(issues []tracker.Issue) *View {
	v := &View{Source: models.StoreTracker, Tasks: make(map[string]*TaskView)}
	for _, issue := range issues {
		id := issue.TaskID
		if id == "" {
			id = issue.Ref
		}
		v.Tasks[id] = &TaskView{
			ID:        id,
			Title:     issue.Title,
			Status:    models.TaskStatus(issue.Status),
			Priority:  models.Priority(issue.Priority()),
			Checklist: copyChecklist(issue.Checklist),
			Ref:       issue.Ref,
			UpdatedAt: issue.UpdatedAt,
		}
	}
	return v
}

func copyChecklist(m map[string]bool) map[string]bool {
	if m == nil {
		return nil
	}
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
