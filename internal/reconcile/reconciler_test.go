package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/pcranston/floe/pkg/models"
)

var (
	t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
	t2 = t0.Add(2 * time.Hour)
)

func viewOf(source models.StoreName, tasks ...*TaskView) *View {
	v := &View{Source: source, Tasks: make(map[string]*TaskView)}
	for _, t := range tasks {
		t.HasOwner = source != models.StoreTracker
		v.Tasks[t.ID] = t
	}
	return v
}

func record(taskID string, storeVersion int64, planAt, trackerAt time.Time) *models.SyncRecord {
	return &models.SyncRecord{
		TaskID:           taskID,
		TaskStoreVersion: storeVersion,
		PlanDocVersion:   planAt,
		ExternalVersion:  trackerAt,
		LastMergedAt:     planAt,
	}
}

func statusOps(p *models.Patch, store models.StoreName) []models.PatchOp {
	var out []models.PatchOp
	for _, op := range p.OpsFor(store) {
		if op.Kind == models.PatchSetField && op.Field == "status" {
			out = append(out, op)
		}
	}
	return out
}

func TestDoneWinsAcrossViews(t *testing.T) {
	in := Inputs{
		TaskStore: viewOf(models.StoreTask,
			&TaskView{ID: "a", Title: "A", Status: models.TaskStatusInProgress, Priority: models.PriorityMedium, Version: 1, UpdatedAt: t1}),
		PlanDoc: viewOf(models.StorePlan,
			&TaskView{ID: "a", Title: "A", Status: models.TaskStatusDone, Priority: models.PriorityMedium, UpdatedAt: t0}),
		Tracker: viewOf(models.StoreTracker,
			&TaskView{ID: "a", Title: "A", Status: models.TaskStatusTodo, Priority: models.PriorityMedium, Ref: "ISS-1", UpdatedAt: t2}),
		Records: map[string]*models.SyncRecord{"a": record("a", 1, t0, t0)},
	}

	patch, err := Reconcile(in)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	// The store and tracker both move to done; the plan stays put.
	for _, storeName := range []models.StoreName{models.StoreTask, models.StoreTracker} {
		ops := statusOps(patch, storeName)
		if len(ops) != 1 || ops[0].Value != "done" {
			t.Errorf("%s: expected one status->done op, got %+v", storeName, ops)
		}
		if ops[0].Reason != "done_wins" {
			t.Errorf("%s: expected done_wins reason, got %q", storeName, ops[0].Reason)
		}
	}
	if len(statusOps(patch, models.StorePlan)) != 0 {
		t.Error("plan already reports done; no op expected")
	}
}

func TestDoneNeverRevertedWithoutReopen(t *testing.T) {
	// Tracker reports done from a past merge; plan was edited afterwards
	// back to in_progress. Monotonicity holds: merged status stays done.
	in := Inputs{
		TaskStore: viewOf(models.StoreTask,
			&TaskView{ID: "a", Title: "A", Status: models.TaskStatusDone, Priority: models.PriorityMedium, Version: 2, UpdatedAt: t1}),
		PlanDoc: viewOf(models.StorePlan,
			&TaskView{ID: "a", Title: "A", Status: models.TaskStatusInProgress, Priority: models.PriorityMedium, UpdatedAt: t2}),
		Tracker: viewOf(models.StoreTracker,
			&TaskView{ID: "a", Title: "A", Status: models.TaskStatusDone, Priority: models.PriorityMedium, Ref: "ISS-1", UpdatedAt: t1}),
		Records: map[string]*models.SyncRecord{"a": record("a", 2, t1, t1)},
	}

	patch, err := Reconcile(in)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	ops := statusOps(patch, models.StorePlan)
	if len(ops) != 1 || ops[0].Value != "done" {
		t.Errorf("expected plan corrected back to done, got %+v", ops)
	}
	if len(statusOps(patch, models.StoreTask)) != 0 {
		t.Error("store is already done; merged status must not move")
	}
}

func TestReopenInstruction(t *testing.T) {
	in := Inputs{
		TaskStore: viewOf(models.StoreTask,
			&TaskView{ID: "a", Title: "A", Status: models.TaskStatusDone, Priority: models.PriorityMedium, Version: 2, UpdatedAt: t1}),
		PlanDoc: viewOf(models.StorePlan,
			&TaskView{ID: "a", Title: "A", Status: models.TaskStatusDone, Priority: models.PriorityMedium, UpdatedAt: t1}),
		Tracker: viewOf(models.StoreTracker,
			&TaskView{ID: "a", Title: "A", Status: models.TaskStatusDone, Priority: models.PriorityMedium, Ref: "ISS-1", UpdatedAt: t1}),
		Records: map[string]*models.SyncRecord{"a": record("a", 2, t1, t1)},
		Reopen:  []Reopen{{TaskID: "a", Reason: "acceptance review failed"}},
	}

	patch, err := Reconcile(in)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	for _, storeName := range []models.StoreName{models.StoreTask, models.StorePlan, models.StoreTracker} {
		ops := statusOps(patch, storeName)
		if len(ops) != 1 || ops[0].Value != "todo" {
			t.Errorf("%s: expected status->todo, got %+v", storeName, ops)
		}
	}
}

func TestPlanAuthoritativeOnTitle(t *testing.T) {
	in := Inputs{
		TaskStore: viewOf(models.StoreTask,
			&TaskView{ID: "a", Title: "Old", Status: models.TaskStatusTodo, Priority: models.PriorityMedium, Version: 1, UpdatedAt: t0}),
		PlanDoc: viewOf(models.StorePlan,
			&TaskView{ID: "a", Title: "Plan title", Status: models.TaskStatusTodo, Priority: models.PriorityMedium, UpdatedAt: t1}),
		Tracker: viewOf(models.StoreTracker,
			&TaskView{ID: "a", Title: "Old", Status: models.TaskStatusTodo, Priority: models.PriorityMedium, Ref: "ISS-1", UpdatedAt: t0}),
		Records: map[string]*models.SyncRecord{"a": record("a", 1, t0, t0)},
	}

	patch, err := Reconcile(in)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	found := false
	for _, op := range patch.OpsFor(models.StoreTask) {
		if op.Field == "title" && op.Value == "Plan title" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected store title updated from plan, got %+v", patch.Ops)
	}
}

func TestTrackerWinsWhenModifiedMoreRecently(t *testing.T) {
	// Both plan and tracker changed since last merge; tracker is newer.
	in := Inputs{
		TaskStore: viewOf(models.StoreTask,
			&TaskView{ID: "a", Title: "Old", Status: models.TaskStatusTodo, Priority: models.PriorityMedium, Version: 1, UpdatedAt: t0}),
		PlanDoc: viewOf(models.StorePlan,
			&TaskView{ID: "a", Title: "Plan edit", Status: models.TaskStatusTodo, Priority: models.PriorityMedium, UpdatedAt: t1}),
		Tracker: viewOf(models.StoreTracker,
			&TaskView{ID: "a", Title: "Tracker edit", Status: models.TaskStatusTodo, Priority: models.PriorityMedium, Ref: "ISS-1", UpdatedAt: t2}),
		Records: map[string]*models.SyncRecord{"a": record("a", 1, t0, t0)},
	}

	patch, err := Reconcile(in)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	for _, op := range patch.OpsFor(models.StoreTask) {
		if op.Field == "title" && op.Value != "Tracker edit" {
			t.Errorf("expected tracker title to win, got %q", op.Value)
		}
	}
	found := false
	for _, op := range patch.OpsFor(models.StorePlan) {
		if op.Field == "title" && op.Value == "Tracker edit" {
			found = true
		}
	}
	if !found {
		t.Error("expected plan corrected to tracker title")
	}
}

func TestSyncConflictOnSimultaneousEdits(t *testing.T) {
	// Store and tracker both manually edited at the same instant with
	// different titles, plan unchanged: no rule applies.
	in := Inputs{
		TaskStore: viewOf(models.StoreTask,
			&TaskView{ID: "a", Title: "Store edit", Status: models.TaskStatusTodo, Priority: models.PriorityMedium, Version: 3, UpdatedAt: t2}),
		PlanDoc: viewOf(models.StorePlan,
			&TaskView{ID: "a", Title: "Base", Status: models.TaskStatusTodo, Priority: models.PriorityMedium, UpdatedAt: t0}),
		Tracker: viewOf(models.StoreTracker,
			&TaskView{ID: "a", Title: "Tracker edit", Status: models.TaskStatusTodo, Priority: models.PriorityMedium, Ref: "ISS-1", UpdatedAt: t2}),
		Records: map[string]*models.SyncRecord{"a": record("a", 1, t0, t0)},
	}

	_, err := Reconcile(in)
	var conflict *SyncConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected SyncConflictError, got %v", err)
	}
	if len(conflict.Conflicts) != 1 || conflict.Conflicts[0].Field != "title" {
		t.Errorf("unexpected conflicts: %+v", conflict.Conflicts)
	}
}

func TestEdgeUnionIsConservative(t *testing.T) {
	// The plan dropped the edge a->b but the store still has it: kept.
	in := Inputs{
		TaskStore: viewOf(models.StoreTask,
			&TaskView{ID: "a", Title: "A", Status: models.TaskStatusTodo, Priority: models.PriorityMedium, Version: 1, UpdatedAt: t0,
				Edges: []models.Edge{{TaskID: "b", Kind: models.EdgeMandatory}}},
			&TaskView{ID: "b", Title: "B", Status: models.TaskStatusTodo, Priority: models.PriorityMedium, Version: 1, UpdatedAt: t0}),
		PlanDoc: viewOf(models.StorePlan,
			&TaskView{ID: "a", Title: "A", Status: models.TaskStatusTodo, Priority: models.PriorityMedium, UpdatedAt: t1,
				Edges: []models.Edge{{TaskID: "c", Kind: models.EdgeSoft}}},
			&TaskView{ID: "b", Title: "B", Status: models.TaskStatusTodo, Priority: models.PriorityMedium, UpdatedAt: t1},
			&TaskView{ID: "c", Title: "C", Status: models.TaskStatusTodo, Priority: models.PriorityMedium, UpdatedAt: t1}),
		Records: map[string]*models.SyncRecord{
			"a": record("a", 1, t0, t0),
			"b": record("b", 1, t0, t0),
		},
	}

	patch, err := Reconcile(in)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	// Store gains the plan's new soft edge; plan regains the dropped one.
	var storeAdds, planAdds []models.Edge
	for _, op := range patch.OpsFor(models.StoreTask) {
		if op.Kind == models.PatchAddEdge && op.TaskID == "a" {
			storeAdds = append(storeAdds, *op.Edge)
		}
	}
	for _, op := range patch.OpsFor(models.StorePlan) {
		if op.Kind == models.PatchAddEdge && op.TaskID == "a" {
			planAdds = append(planAdds, *op.Edge)
		}
	}
	if len(storeAdds) != 1 || storeAdds[0].TaskID != "c" {
		t.Errorf("expected store to gain edge a->c, got %v", storeAdds)
	}
	if len(planAdds) != 1 || planAdds[0].TaskID != "b" {
		t.Errorf("expected plan to regain edge a->b, got %v", planAdds)
	}
}

func TestChecklistMergesByOr(t *testing.T) {
	in := Inputs{
		TaskStore: viewOf(models.StoreTask,
			&TaskView{ID: "a", Title: "A", Status: models.TaskStatusTodo, Priority: models.PriorityMedium, Version: 1, UpdatedAt: t0,
				Checklist: map[string]bool{"draft": true, "review": false}}),
		PlanDoc: viewOf(models.StorePlan,
			&TaskView{ID: "a", Title: "A", Status: models.TaskStatusTodo, Priority: models.PriorityMedium, UpdatedAt: t0,
				Checklist: map[string]bool{"review": true}}),
		Tracker: viewOf(models.StoreTracker,
			&TaskView{ID: "a", Title: "A", Status: models.TaskStatusTodo, Priority: models.PriorityMedium, Ref: "ISS-1", UpdatedAt: t0}),
		Records: map[string]*models.SyncRecord{"a": record("a", 1, t0, t0)},
	}

	patch, err := Reconcile(in)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	wantTrue := func(storeName models.StoreName, item string) {
		for _, op := range patch.OpsFor(storeName) {
			if op.Kind == models.PatchSetChecklist && op.Field == item && op.Value == "true" {
				return
			}
		}
		t.Errorf("%s: expected checklist %s upgraded to true", storeName, item)
	}
	wantTrue(models.StoreTask, "review")
	wantTrue(models.StorePlan, "draft")
}

func TestCreateMissingTask(t *testing.T) {
	// A task added only to the plan is created in the store and tracker.
	in := Inputs{
		TaskStore: viewOf(models.StoreTask),
		PlanDoc: viewOf(models.StorePlan,
			&TaskView{ID: "new", Title: "Fresh", Status: models.TaskStatusTodo, Priority: models.PriorityHigh, UpdatedAt: t1}),
		Tracker: viewOf(models.StoreTracker),
		Records: map[string]*models.SyncRecord{},
	}

	patch, err := Reconcile(in)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	for _, storeName := range []models.StoreName{models.StoreTask, models.StoreTracker} {
		created := false
		for _, op := range patch.OpsFor(storeName) {
			if op.Kind == models.PatchCreateTask && op.TaskID == "new" {
				created = true
				if op.Task.Priority != models.PriorityHigh {
					t.Errorf("%s: create lost priority: %+v", storeName, op.Task)
				}
			}
		}
		if !created {
			t.Errorf("%s: expected create op for new task", storeName)
		}
	}
}
