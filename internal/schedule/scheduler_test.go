package schedule

import (
	"reflect"
	"testing"

	"github.com/pcranston/floe/internal/graph"
	"github.com/pcranston/floe/pkg/models"
)

func snapshot(tasks []*models.Task) *graph.Graph {
	b := graph.NewBuilder()
	b.Build(tasks)
	return b.Snapshot()
}

func task(id string, prio models.Priority, status models.TaskStatus, deps ...models.Edge) *models.Task {
	return &models.Task{ID: id, Priority: prio, Status: status, DependsOn: deps}
}

func mandatory(id string) models.Edge { return models.Edge{TaskID: id, Kind: models.EdgeMandatory} }
func soft(id string) models.Edge      { return models.Edge{TaskID: id, Kind: models.EdgeSoft} }

func waveIDs(r Result) [][]string {
	var out [][]string
	for _, w := range r.Waves {
		out = append(out, w.TaskIDs)
	}
	return out
}

func TestScheduleDiamond(t *testing.T) {
	// A; B, C depend on A; D depends on B and C -> [[A], [B C], [D]].
	tasks := []*models.Task{
		task("A", models.PriorityMedium, models.TaskStatusTodo),
		task("B", models.PriorityMedium, models.TaskStatusTodo, mandatory("A")),
		task("C", models.PriorityMedium, models.TaskStatusTodo, mandatory("A")),
		task("D", models.PriorityMedium, models.TaskStatusTodo, mandatory("B"), mandatory("C")),
	}

	r := Schedule(snapshot(tasks), tasks)
	want := [][]string{{"A"}, {"B", "C"}, {"D"}}
	if !reflect.DeepEqual(waveIDs(r), want) {
		t.Errorf("expected waves %v, got %v", want, waveIDs(r))
	}
	if len(r.Unresolved) != 0 {
		t.Errorf("expected no unresolved tasks, got %v", r.Unresolved)
	}
}

func TestScheduleCompletenessAndOrdering(t *testing.T) {
	tasks := []*models.Task{
		task("a", models.PriorityLow, models.TaskStatusTodo),
		task("b", models.PriorityHigh, models.TaskStatusTodo, mandatory("a")),
		task("c", models.PriorityMedium, models.TaskStatusTodo, mandatory("a")),
		task("d", models.PriorityLow, models.TaskStatusTodo, mandatory("b")),
		task("e", models.PriorityHigh, models.TaskStatusDone),
		task("f", models.PriorityMedium, models.TaskStatusTodo, mandatory("e")),
	}
	g := snapshot(tasks)
	r := Schedule(g, tasks)

	// Union of waves equals every non-done task, each exactly once.
	seen := map[string]int{}
	for _, w := range r.Waves {
		for _, id := range w.TaskIDs {
			seen[id]++
		}
	}
	for _, t2 := range tasks {
		if t2.Status == models.TaskStatusDone {
			if seen[t2.ID] != 0 {
				t.Errorf("done task %s appeared in a wave", t2.ID)
			}
			continue
		}
		if seen[t2.ID] != 1 {
			t.Errorf("task %s appeared %d times in waves", t2.ID, seen[t2.ID])
		}
	}

	// Every mandatory dependency sits in a strictly earlier wave.
	index := map[string]int{}
	for _, w := range r.Waves {
		for _, id := range w.TaskIDs {
			index[id] = w.Index
		}
	}
	for _, t2 := range tasks {
		for _, dep := range t2.DependsOnIDs(models.EdgeMandatory) {
			di, ok := index[dep]
			if !ok {
				continue // dep was already done
			}
			if di >= index[t2.ID] {
				t.Errorf("task %s (wave %d) depends on %s (wave %d)", t2.ID, index[t2.ID], dep, di)
			}
		}
	}
}

func TestScheduleDoneDependenciesSeedWaveOne(t *testing.T) {
	tasks := []*models.Task{
		task("a", models.PriorityMedium, models.TaskStatusDone),
		task("b", models.PriorityMedium, models.TaskStatusTodo, mandatory("a")),
	}

	r := Schedule(snapshot(tasks), tasks)
	if len(r.Waves) != 1 || !r.Waves[0].Contains("b") {
		t.Errorf("b should schedule in wave 0, got %v", waveIDs(r))
	}
}

func TestScheduleIntraWaveOrder(t *testing.T) {
	// Same wave: priority descending, then id ascending.
	tasks := []*models.Task{
		task("z", models.PriorityHigh, models.TaskStatusTodo),
		task("m", models.PriorityLow, models.TaskStatusTodo),
		task("b", models.PriorityMedium, models.TaskStatusTodo),
		task("a", models.PriorityMedium, models.TaskStatusTodo),
	}

	r := Schedule(snapshot(tasks), tasks)
	want := []string{"z", "a", "b", "m"}
	if !reflect.DeepEqual(r.Waves[0].TaskIDs, want) {
		t.Errorf("expected order %v, got %v", want, r.Waves[0].TaskIDs)
	}
}

func TestScheduleSoftEdgesDoNotGate(t *testing.T) {
	// b soft-depends on a: both land in wave 0.
	tasks := []*models.Task{
		task("a", models.PriorityMedium, models.TaskStatusTodo),
		task("b", models.PriorityMedium, models.TaskStatusTodo, soft("a")),
	}

	r := Schedule(snapshot(tasks), tasks)
	if len(r.Waves) != 1 || len(r.Waves[0].TaskIDs) != 2 {
		t.Errorf("soft edge should not gate, got waves %v", waveIDs(r))
	}
}

func TestScheduleCycleGoesUnresolved(t *testing.T) {
	tasks := []*models.Task{
		task("a", models.PriorityMedium, models.TaskStatusTodo, mandatory("b")),
		task("b", models.PriorityMedium, models.TaskStatusTodo, mandatory("a")),
		task("free", models.PriorityMedium, models.TaskStatusTodo),
	}

	r := Schedule(snapshot(tasks), tasks)
	if !reflect.DeepEqual(r.Unresolved, []string{"a", "b"}) {
		t.Errorf("expected unresolved [a b], got %v", r.Unresolved)
	}
	if len(r.Waves) != 1 || !r.Waves[0].Contains("free") {
		t.Errorf("rest of the graph should still schedule, got %v", waveIDs(r))
	}
}

func TestScheduleDanglingMandatoryGoesUnresolved(t *testing.T) {
	tasks := []*models.Task{
		task("a", models.PriorityMedium, models.TaskStatusTodo, mandatory("missing")),
		task("b", models.PriorityMedium, models.TaskStatusTodo),
		// Transitively stuck behind the dangling reference.
		task("c", models.PriorityMedium, models.TaskStatusTodo, mandatory("a")),
	}

	r := Schedule(snapshot(tasks), tasks)
	if !reflect.DeepEqual(r.Unresolved, []string{"a", "c"}) {
		t.Errorf("expected unresolved [a c], got %v", r.Unresolved)
	}
}

func TestScheduleDanglingSoftDoesNotBlock(t *testing.T) {
	tasks := []*models.Task{
		task("a", models.PriorityMedium, models.TaskStatusTodo, soft("missing")),
	}

	r := Schedule(snapshot(tasks), tasks)
	if len(r.Unresolved) != 0 {
		t.Errorf("soft dangling reference should not block, got %v", r.Unresolved)
	}
	if len(r.Waves) != 1 {
		t.Errorf("expected a to schedule, got %v", waveIDs(r))
	}
}

func TestScheduleArchivedExcluded(t *testing.T) {
	tasks := []*models.Task{
		task("a", models.PriorityMedium, models.TaskStatusTodo),
		{ID: "gone", Priority: models.PriorityMedium, Status: models.TaskStatusBlocked, Archived: true},
	}

	r := Schedule(snapshot(tasks), tasks)
	if len(r.Waves) != 1 || r.Waves[0].Contains("gone") {
		t.Errorf("archived tasks must not schedule, got %v", waveIDs(r))
	}
}
