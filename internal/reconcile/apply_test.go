package reconcile

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pcranston/floe/internal/plandoc"
	"github.com/pcranston/floe/internal/store"
	"github.com/pcranston/floe/internal/tracker"
	"github.com/pcranston/floe/pkg/models"
)

// reconcileLive builds views from live stores and runs a merge pass.
func reconcileLive(t *testing.T, st store.TaskStore, tr tracker.Tracker, planPath string, reopens []Reopen) (*models.Patch, error) {
	t.Helper()

	tasks, err := st.ListTasks()
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	doc, err := plandoc.Load(planPath)
	if err != nil {
		t.Fatalf("load plan: %v", err)
	}
	issues, err := tr.List()
	if err != nil {
		t.Fatalf("list issues: %v", err)
	}
	records, err := st.ListSyncRecords()
	if err != nil {
		t.Fatalf("list sync records: %v", err)
	}

	return Reconcile(Inputs{
		TaskStore: FromTasks(tasks),
		PlanDoc:   FromPlan(doc),
		Tracker:   FromIssues(issues),
		Records:   records,
		Reopen:    reopens,
	})
}

func TestApplyThenReconcileIsEmpty(t *testing.T) {
	st := store.NewMemory()
	tr := tracker.NewMemory()
	planPath := filepath.Join(t.TempDir(), "plan.yaml")

	// Store knows a and b; the plan knows a (marked done) and a new
	// task c; the tracker is empty.
	mustCreate(t, st, &models.Task{
		ID: "a", Title: "Ship importer", Status: models.TaskStatusInProgress,
		Priority: models.PriorityHigh,
		DependsOn: []models.Edge{{TaskID: "b", Kind: models.EdgeMandatory}},
		Checklist: map[string]bool{"draft": true},
	})
	mustCreate(t, st, &models.Task{
		ID: "b", Title: "Schema migration", Status: models.TaskStatusInProgress,
		Priority: models.PriorityMedium,
	})

	doc := &plandoc.Document{
		UpdatedAt: time.Now(),
		Tasks: []plandoc.Entry{
			{ID: "a", Title: "Ship importer", Status: "done", Priority: "high"},
			{ID: "c", Title: "Write release notes", Status: "todo", Priority: "low"},
		},
	}
	if err := plandoc.Save(planPath, doc); err != nil {
		t.Fatalf("save plan: %v", err)
	}

	patch, err := reconcileLive(t, st, tr, planPath, nil)
	if err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	if patch.Empty() {
		t.Fatal("expected a non-empty first patch")
	}

	applier := &Applier{Store: st, PlanPath: planPath, Tracker: tr}
	if err := applier.Apply(patch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// All three stores converged.
	a, err := st.GetTask("a")
	if err != nil || a == nil {
		t.Fatalf("get a: %v", err)
	}
	if a.Status != models.TaskStatusDone {
		t.Errorf("a: expected done from plan, got %s", a.Status)
	}
	if a.ExternalRef == "" {
		t.Error("a: expected tracker ref linked after create")
	}
	c, err := st.GetTask("c")
	if err != nil || c == nil {
		t.Fatalf("get c: %v", err)
	}
	if c.Priority != models.PriorityLow {
		t.Errorf("c: expected low priority from plan, got %s", c.Priority)
	}

	after, err := plandoc.Load(planPath)
	if err != nil {
		t.Fatalf("reload plan: %v", err)
	}
	entry := after.Find("b")
	if entry == nil {
		t.Fatal("expected store task b created in plan")
	}
	aEntry := after.Find("a")
	if aEntry == nil || len(aEntry.Edges()) != 1 || aEntry.Edges()[0].TaskID != "b" {
		t.Errorf("expected plan to gain edge a->b, got %+v", aEntry)
	}

	issues, err := tr.List()
	if err != nil {
		t.Fatalf("list issues: %v", err)
	}
	if len(issues) != 3 {
		t.Fatalf("expected 3 tracker issues, got %d", len(issues))
	}
	for _, issue := range issues {
		if issue.TaskID == "a" && issue.Status != "done" {
			t.Errorf("issue for a: expected done, got %s", issue.Status)
		}
	}

	// Idempotence: a second pass over the applied state is a no-op.
	second, err := reconcileLive(t, st, tr, planPath, nil)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if !second.Empty() {
		t.Errorf("expected empty second patch, got %d ops: %+v", len(second.Ops), second.Ops)
	}
}

func TestApplyReopenRecordsOverride(t *testing.T) {
	st := store.NewMemory()
	tr := tracker.NewMemory()
	planPath := filepath.Join(t.TempDir(), "plan.yaml")

	mustCreate(t, st, &models.Task{
		ID: "a", Title: "Ship importer", Status: models.TaskStatusDone,
		Priority: models.PriorityMedium,
	})
	doc := &plandoc.Document{
		UpdatedAt: time.Now(),
		Tasks: []plandoc.Entry{
			{ID: "a", Title: "Ship importer", Status: "done", Priority: "medium"},
		},
	}
	if err := plandoc.Save(planPath, doc); err != nil {
		t.Fatalf("save plan: %v", err)
	}

	// Settle the baseline first so only the reopen moves anything.
	patch, err := reconcileLive(t, st, tr, planPath, nil)
	if err != nil {
		t.Fatalf("baseline reconcile: %v", err)
	}
	applier := &Applier{Store: st, PlanPath: planPath, Tracker: tr}
	if err := applier.Apply(patch); err != nil {
		t.Fatalf("baseline apply: %v", err)
	}

	reopens := []Reopen{{TaskID: "a", Reason: "regression found"}}
	patch, err = reconcileLive(t, st, tr, planPath, reopens)
	if err != nil {
		t.Fatalf("reopen reconcile: %v", err)
	}
	applier.Reopens = reopens
	if err := applier.Apply(patch); err != nil {
		t.Fatalf("reopen apply: %v", err)
	}

	a, err := st.GetTask("a")
	if err != nil || a == nil {
		t.Fatalf("get a: %v", err)
	}
	if a.Status != models.TaskStatusTodo {
		t.Errorf("expected a reopened to todo, got %s", a.Status)
	}

	overrides := st.Overrides()
	if len(overrides) != 1 {
		t.Fatalf("expected 1 recorded override, got %d", len(overrides))
	}
	if overrides[0].TaskID != "a" || overrides[0].Reason != "regression found" {
		t.Errorf("unexpected override: %+v", overrides[0])
	}
}

func mustCreate(t *testing.T, st store.TaskStore, task *models.Task) {
	t.Helper()
	if err := st.CreateTask(task); err != nil {
		t.Fatalf("create %s: %v", task.ID, err)
	}
}
