package reconcile

import (
	"fmt"
	"time"

	"github.com/pcranston/floe/internal/plandoc"
	"github.com/pcranston/floe/internal/store"
	"github.com/pcranston/floe/internal/tracker"
	"github.com/pcranston/floe/pkg/models"
)

// Applier writes a Patch to the three stores and advances the per-task
// sync watermarks.
type Applier struct {
	Store    store.TaskStore
	PlanPath string
	Tracker  tracker.Tracker
	// MaxAttempts bounds the CAS retry loop per task store write.
	MaxAttempts int
	// Reopens carries the instructions that accompanied the merge, so
	// explicit done-reversions land in the override audit trail.
	Reopens []Reopen
}

// Apply writes every op in the patch, store by store, then records the
// new watermarks. Plan document writes are batched into a single save.
func (a *Applier) Apply(patch *models.Patch) error {
	if patch.Empty() {
		return nil
	}

	if err := a.applyTaskStore(patch.OpsFor(models.StoreTask)); err != nil {
		return err
	}
	if err := a.applyPlan(patch.OpsFor(models.StorePlan)); err != nil {
		return err
	}
	if err := a.applyTracker(patch.OpsFor(models.StoreTracker)); err != nil {
		return err
	}
	return a.advanceWatermarks(patch)
}

func (a *Applier) applyTaskStore(ops []models.PatchOp) error {
	reopens := make(map[string]Reopen, len(a.Reopens))
	for _, r := range a.Reopens {
		reopens[r.TaskID] = r
	}

	for _, op := range ops {
		switch op.Kind {
		case models.PatchCreateTask:
			t := op.Task.Clone()
			if err := a.Store.CreateTask(t); err != nil {
				return fmt.Errorf("apply create %s: %w", op.TaskID, err)
			}
		case models.PatchSetField, models.PatchSetChecklist, models.PatchAddEdge, models.PatchRemoveEdge:
			op := op
			_, err := a.Store.MutateTask(op.TaskID, a.MaxAttempts, func(t *models.Task) error {
				return applyToTask(t, op)
			})
			if err != nil {
				return fmt.Errorf("apply %s to %s: %w", op.Kind, op.TaskID, err)
			}
			// An explicit reopen is recorded in the audit trail; plain
			// merges never move a task out of done.
			if op.Kind == models.PatchSetField && op.Field == "status" {
				if r, ok := reopens[op.TaskID]; ok && models.TaskStatus(op.Value) != models.TaskStatusDone {
					err := a.Store.RecordStatusOverride(op.TaskID, models.TaskStatusDone,
						models.TaskStatus(op.Value), r.Reason)
					if err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// applyToTask applies a single field-level op to a task in memory.
func applyToTask(t *models.Task, op models.PatchOp) error {
	switch op.Kind {
	case models.PatchSetField:
		switch op.Field {
		case "title":
			t.Title = op.Value
		case "status":
			t.Status = models.TaskStatus(op.Value)
		case "priority":
			t.Priority = models.Priority(op.Value)
		case "owner":
			t.Owner = op.Value
		case "external_ref":
			t.ExternalRef = op.Value
		default:
			return fmt.Errorf("unknown field %q", op.Field)
		}
	case models.PatchSetChecklist:
		if t.Checklist == nil {
			t.Checklist = make(map[string]bool)
		}
		t.Checklist[op.Field] = op.Value == "true"
	case models.PatchAddEdge:
		for i, e := range t.DependsOn {
			if e.TaskID == op.Edge.TaskID {
				t.DependsOn[i].Kind = op.Edge.Kind
				return nil
			}
		}
		t.DependsOn = append(t.DependsOn, *op.Edge)
	case models.PatchRemoveEdge:
		for i, e := range t.DependsOn {
			if e.TaskID == op.Edge.TaskID {
				t.DependsOn = append(t.DependsOn[:i], t.DependsOn[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

func (a *Applier) applyPlan(ops []models.PatchOp) error {
	if len(ops) == 0 {
		return nil
	}

	doc, err := plandoc.Load(a.PlanPath)
	if err != nil {
		return err
	}

	for _, op := range ops {
		entry := doc.Find(op.TaskID)
		if entry == nil {
			if op.Kind != models.PatchCreateTask {
				return fmt.Errorf("apply %s: task %s not in plan document", op.Kind, op.TaskID)
			}
			doc.Tasks = append(doc.Tasks, planEntry(op.Task))
			continue
		}
		applyToEntry(entry, op)
	}

	doc.UpdatedAt = time.Now()
	return plandoc.Save(a.PlanPath, doc)
}

func planEntry(t *models.Task) plandoc.Entry {
	e := plandoc.Entry{
		ID:        t.ID,
		Title:     t.Title,
		Status:    string(t.Status),
		Priority:  string(t.Priority),
		Owner:     t.Owner,
		Checklist: t.Checklist,
	}
	e.SetEdges(t.DependsOn)
	return e
}

func applyToEntry(e *plandoc.Entry, op models.PatchOp) {
	switch op.Kind {
	case models.PatchSetField:
		switch op.Field {
		case "title":
			e.Title = op.Value
		case "status":
			e.Status = op.Value
		case "priority":
			e.Priority = op.Value
		case "owner":
			e.Owner = op.Value
		}
	case models.PatchSetChecklist:
		if e.Checklist == nil {
			e.Checklist = make(map[string]bool)
		}
		e.Checklist[op.Field] = op.Value == "true"
	case models.PatchAddEdge:
		edges := e.Edges()
		for i := range edges {
			if edges[i].TaskID == op.Edge.TaskID {
				edges[i].Kind = op.Edge.Kind
				e.SetEdges(edges)
				return
			}
		}
		e.SetEdges(append(edges, *op.Edge))
	case models.PatchRemoveEdge:
		edges := e.Edges()
		for i := range edges {
			if edges[i].TaskID == op.Edge.TaskID {
				e.SetEdges(append(edges[:i], edges[i+1:]...))
				return
			}
		}
	}
}

func (a *Applier) applyTracker(ops []models.PatchOp) error {
	for _, op := range ops {
		switch op.Kind {
		case models.PatchCreateTask:
			labels := []string{"priority:" + string(op.Task.Priority)}
			ref, err := a.Tracker.Create(op.Task.Title, op.TaskID, labels)
			if err != nil {
				return fmt.Errorf("create tracker issue for %s: %w", op.TaskID, err)
			}
			// Link the new issue back onto the stored task.
			_, err = a.Store.MutateTask(op.TaskID, a.MaxAttempts, func(t *models.Task) error {
				t.ExternalRef = ref
				return nil
			})
			if err != nil {
				return err
			}
			// New issues open as todo; carry over any merged state the
			// create call could not express.
			var fields tracker.Fields
			if op.Task.Status != models.TaskStatusTodo {
				status := string(op.Task.Status)
				fields.Status = &status
			}
			for item, done := range op.Task.Checklist {
				if !done {
					continue
				}
				if fields.Checklist == nil {
					fields.Checklist = make(map[string]bool)
				}
				fields.Checklist[item] = true
			}
			if fields.Status != nil || fields.Checklist != nil {
				if err := a.Tracker.Edit(ref, fields); err != nil {
					return fmt.Errorf("init tracker issue for %s: %w", op.TaskID, err)
				}
			}
		case models.PatchSetField:
			ref, err := a.refFor(op.TaskID)
			if err != nil {
				return err
			}
			var fields tracker.Fields
			switch op.Field {
			case "title":
				fields.Title = &op.Value
			case "status":
				fields.Status = &op.Value
			case "priority":
				fields.Priority = &op.Value
			default:
				continue
			}
			if err := a.Tracker.Edit(ref, fields); err != nil {
				return fmt.Errorf("edit tracker issue for %s: %w", op.TaskID, err)
			}
		case models.PatchSetChecklist:
			ref, err := a.refFor(op.TaskID)
			if err != nil {
				return err
			}
			fields := tracker.Fields{Checklist: map[string]bool{op.Field: op.Value == "true"}}
			if err := a.Tracker.Edit(ref, fields); err != nil {
				return fmt.Errorf("edit tracker issue for %s: %w", op.TaskID, err)
			}
		}
	}
	return nil
}

// refFor resolves a task's tracker ref from the task store.
func (a *Applier) refFor(taskID string) (string, error) {
	t, err := a.Store.GetTask(taskID)
	if err != nil {
		return "", err
	}
	if t == nil || t.ExternalRef == "" {
		return "", fmt.Errorf("task %s has no tracker ref", taskID)
	}
	return t.ExternalRef, nil
}

// advanceWatermarks records the post-apply versions so the next
// reconcile treats the applied state as the merge baseline.
func (a *Applier) advanceWatermarks(patch *models.Patch) error {
	touched := make(map[string]bool)
	for _, op := range patch.Ops {
		touched[op.TaskID] = true
	}

	doc, err := plandoc.Load(a.PlanPath)
	if err != nil {
		return err
	}
	issues, err := a.Tracker.List()
	if err != nil {
		return err
	}
	issueTimes := make(map[string]time.Time, len(issues))
	for _, issue := range issues {
		id := issue.TaskID
		if id == "" {
			id = issue.Ref
		}
		issueTimes[id] = issue.UpdatedAt
	}

	now := time.Now()
	for taskID := range touched {
		t, err := a.Store.GetTask(taskID)
		if err != nil {
			return err
		}
		rec := &models.SyncRecord{TaskID: taskID, LastMergedAt: now}
		if t != nil {
			rec.TaskStoreVersion = t.Version
		}
		if entry := doc.Find(taskID); entry != nil {
			rec.PlanDocVersion = entry.UpdatedAt
			if rec.PlanDocVersion.IsZero() {
				rec.PlanDocVersion = doc.UpdatedAt
			}
		}
		if ts, ok := issueTimes[taskID]; ok {
			rec.ExternalVersion = ts
		}
		if err := a.Store.UpsertSyncRecord(rec); err != nil {
			return err
		}
	}
	return nil
}
