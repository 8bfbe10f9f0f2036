package reconcile

import (
	"sort"

	"github.com/pcranston/floe/pkg/models"
)

// emitOps appends the writes needed to bring every store in line with
// the merged picture of one task.
func emitOps(patch *models.Patch, m merged, in Inputs) {
	for _, v := range []*View{in.TaskStore, in.PlanDoc, in.Tracker} {
		if v == nil {
			continue
		}
		if !m.presentIn[v.Source] {
			patch.Ops = append(patch.Ops, models.PatchOp{
				Store:  v.Source,
				Kind:   models.PatchCreateTask,
				TaskID: m.ID,
				Task:   m.toTask(),
				Reason: "missing_in_store",
			})
			continue
		}
		emitDiff(patch, v.Source, v.Tasks[m.ID], m)
	}
}

// emitDiff appends field-level writes for a store that already has the task.
func emitDiff(patch *models.Patch, store models.StoreName, tv *TaskView, m merged) {
	set := func(field, value, reason string) {
		patch.Ops = append(patch.Ops, models.PatchOp{
			Store:  store,
			Kind:   models.PatchSetField,
			TaskID: m.ID,
			Field:  field,
			Value:  value,
			Reason: reason,
		})
	}

	if tv.Title != m.Title && m.Title != "" {
		set("title", m.Title, "contested_field")
	}
	if tv.Status != m.Status {
		reason := "status_merge"
		if m.Status == models.TaskStatusDone {
			reason = "done_wins"
		} else if m.Reopened != nil {
			reason = "reopen:" + m.Reopened.Reason
		}
		set("status", string(m.Status), reason)
	}
	if tv.Priority != m.Priority && m.Priority != "" {
		set("priority", string(m.Priority), "contested_field")
	}
	// Owner and dependency edges exist only in stores that model them.
	if store != models.StoreTracker {
		if tv.HasOwner && tv.Owner != m.Owner && m.Owner != "" {
			set("owner", m.Owner, "contested_field")
		}
		for _, e := range m.Edges {
			if !hasEdge(tv.Edges, e) {
				edge := e
				patch.Ops = append(patch.Ops, models.PatchOp{
					Store:  store,
					Kind:   models.PatchAddEdge,
					TaskID: m.ID,
					Edge:   &edge,
					Reason: "edge_union",
				})
			}
		}
	}
	if store == models.StoreTask && m.Ref != "" && tv.Ref == "" {
		set("external_ref", m.Ref, "tracker_link")
	}

	// Checklist merges by OR: emit only upgrades to true.
	items := make([]string, 0, len(m.Checklist))
	for item := range m.Checklist {
		items = append(items, item)
	}
	sort.Strings(items)
	for _, item := range items {
		if m.Checklist[item] && !tv.Checklist[item] {
			patch.Ops = append(patch.Ops, models.PatchOp{
				Store:  store,
				Kind:   models.PatchSetChecklist,
				TaskID: m.ID,
				Field:  item,
				Value:  "true",
				Reason: "checklist_or",
			})
		}
	}
}

// hasEdge reports whether edges contains e with the same target and kind.
func hasEdge(edges []models.Edge, e models.Edge) bool {
	for _, have := range edges {
		if have.TaskID == e.TaskID && have.Kind == e.Kind {
			return true
		}
	}
	return false
}

// toTask converts the merged view into a full task for create ops.
func (m merged) toTask() *models.Task {
	t := &models.Task{
		ID:          m.ID,
		Title:       m.Title,
		Status:      m.Status,
		Priority:    m.Priority,
		Owner:       m.Owner,
		ExternalRef: m.Ref,
		Criticality: models.CriticalityOptional,
		DependsOn:   append([]models.Edge(nil), m.Edges...),
		Checklist:   copyChecklist(m.Checklist),
	}
	return t
}
