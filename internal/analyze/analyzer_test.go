package analyze

import (
	"testing"

	"github.com/pcranston/floe/internal/graph"
	"github.com/pcranston/floe/pkg/models"
)

func snapshot(t *testing.T, tasks []*models.Task) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder()
	b.Build(tasks)
	return b.Snapshot()
}

func TestPriorityInversion(t *testing.T) {
	// X (high) has a mandatory dependency on Y (low).
	tasks := []*models.Task{
		{ID: "X", Priority: models.PriorityHigh, Status: models.TaskStatusTodo,
			DependsOn: []models.Edge{{TaskID: "Y", Kind: models.EdgeMandatory}}},
		{ID: "Y", Priority: models.PriorityLow, Status: models.TaskStatusTodo, Owner: "sam"},
	}

	findings := Analyze(snapshot(t, tasks), tasks, Options{})
	if len(findings) != 1 {
		t.Fatalf("expected exactly 1 finding, got %d: %+v", len(findings), findings)
	}
	f := findings[0]
	if f.Category != models.FindingPriorityInversion {
		t.Errorf("expected priority_inversion, got %s", f.Category)
	}
	if f.Severity != models.SeverityWarning {
		t.Errorf("expected warning severity, got %s", f.Severity)
	}
	if f.TaskID != "X" || len(f.Related) != 1 || f.Related[0] != "Y" {
		t.Errorf("finding should reference X and Y: %+v", f)
	}
	if f.Remediation == "" {
		t.Error("expected a remediation suggesting Y's priority be raised")
	}
}

func TestPriorityInversionSoftEdgeDoesNotFire(t *testing.T) {
	tasks := []*models.Task{
		{ID: "X", Priority: models.PriorityHigh, Status: models.TaskStatusTodo, Owner: "a",
			DependsOn: []models.Edge{{TaskID: "Y", Kind: models.EdgeSoft}}},
		{ID: "Y", Priority: models.PriorityLow, Status: models.TaskStatusTodo, Owner: "b"},
	}

	for _, f := range Analyze(snapshot(t, tasks), tasks, Options{}) {
		if f.Category == models.FindingPriorityInversion {
			t.Errorf("soft edge should not trigger priority inversion: %+v", f)
		}
	}
}

func TestStatusInconsistency(t *testing.T) {
	tasks := []*models.Task{
		{ID: "a", Priority: models.PriorityMedium, Status: models.TaskStatusDone, Owner: "p",
			DependsOn: []models.Edge{{TaskID: "b", Kind: models.EdgeMandatory}}},
		{ID: "b", Priority: models.PriorityMedium, Status: models.TaskStatusInProgress, Owner: "p"},
	}

	findings := Analyze(snapshot(t, tasks), tasks, Options{})
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %+v", findings)
	}
	if findings[0].Category != models.FindingStatusInconsistency {
		t.Errorf("expected status_inconsistency, got %s", findings[0].Category)
	}
	if findings[0].Severity != models.SeverityWarning {
		t.Errorf("expected warning, got %s", findings[0].Severity)
	}
}

func TestOrphanTask(t *testing.T) {
	tasks := []*models.Task{
		{ID: "lonely", Priority: models.PriorityMedium, Status: models.TaskStatusTodo},
		{ID: "owned", Priority: models.PriorityMedium, Status: models.TaskStatusTodo, Owner: "sam"},
	}

	findings := Analyze(snapshot(t, tasks), tasks, Options{})
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %+v", findings)
	}
	f := findings[0]
	if f.Category != models.FindingOrphanTask || f.TaskID != "lonely" {
		t.Errorf("expected orphan_task for lonely, got %+v", f)
	}
	if f.Severity != models.SeverityInfo {
		t.Errorf("orphan findings are informational, got %s", f.Severity)
	}
}

func TestOwnerOverload(t *testing.T) {
	var tasks []*models.Task
	for _, id := range []string{"t1", "t2", "t3", "t4"} {
		tasks = append(tasks, &models.Task{
			ID: id, Owner: "busy", Priority: models.PriorityMedium,
			Status: models.TaskStatusInProgress,
		})
	}

	findings := Analyze(snapshot(t, tasks), tasks, Options{})
	var overload *models.Finding
	for i := range findings {
		if findings[i].Category == models.FindingOwnerOverload {
			overload = &findings[i]
		}
	}
	if overload == nil {
		t.Fatalf("expected owner_overload finding, got %+v", findings)
	}
	if overload.Related[0] != "busy" {
		t.Errorf("expected owner busy in related, got %v", overload.Related)
	}

	// Raising the threshold silences the rule.
	for _, f := range Analyze(snapshot(t, tasks), tasks, Options{OwnerOverloadThreshold: 4}) {
		if f.Category == models.FindingOwnerOverload {
			t.Error("threshold 4 should allow 4 in-progress tasks")
		}
	}
}

func TestMultipleRulesOnOneTask(t *testing.T) {
	// One task can trigger several independent findings.
	tasks := []*models.Task{
		{ID: "X", Priority: models.PriorityHigh, Status: models.TaskStatusDone, Owner: "a",
			DependsOn: []models.Edge{{TaskID: "Y", Kind: models.EdgeMandatory}}},
		{ID: "Y", Priority: models.PriorityLow, Status: models.TaskStatusTodo, Owner: "b"},
	}

	findings := Analyze(snapshot(t, tasks), tasks, Options{})
	seen := map[models.FindingCategory]bool{}
	for _, f := range findings {
		if f.TaskID == "X" {
			seen[f.Category] = true
		}
	}
	if !seen[models.FindingPriorityInversion] || !seen[models.FindingStatusInconsistency] {
		t.Errorf("expected both inversion and inconsistency on X, got %+v", findings)
	}
}
