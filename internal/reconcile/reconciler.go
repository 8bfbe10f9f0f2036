package reconcile

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pcranston/floe/pkg/models"
)

// Reopen is an explicitly authored instruction to revert a done task.
// Without one, reconciliation never moves a task out of done.
type Reopen struct {
	TaskID string
	// To is the status to reopen into; defaults to todo.
	To models.TaskStatus
	// Reason is recorded in the status override audit trail.
	Reason string
}

// Conflict is one contested field with no applicable merge rule.
type Conflict struct {
	TaskID string
	Field  string
	// Values maps store name to the value it insists on.
	Values map[models.StoreName]string
}

// SyncConflictError is raised when stores disagree on a contested field
// with no timestamp order to break the tie. It requires explicit manual
// resolution.
type SyncConflictError struct {
	Conflicts []Conflict
}

func (e *SyncConflictError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = fmt.Sprintf("%s.%s", c.TaskID, c.Field)
	}
	return fmt.Sprintf("sync conflict on contested fields: %s", strings.Join(parts, ", "))
}

// Inputs are the three store views plus merge bookkeeping.
type Inputs struct {
	TaskStore *View
	PlanDoc   *View
	Tracker   *View
	// Records are the per-task watermarks from the last successful merge.
	Records map[string]*models.SyncRecord
	// Reopen lists explicit done-reversion instructions.
	Reopen []Reopen
}

// record returns the watermark record for a task, or a zero record.
func (in Inputs) record(taskID string) models.SyncRecord {
	if r, ok := in.Records[taskID]; ok && r != nil {
		return *r
	}
	return models.SyncRecord{TaskID: taskID}
}

// merged is the resolved picture of one task after the merge rules run.
type merged struct {
	TaskView
	// Reopened is set when an explicit reopen instruction applied.
	Reopened *Reopen
	// presentIn lists the stores that already know the task.
	presentIn map[models.StoreName]bool
}

// heldView pairs a task view with its source store.
type heldView struct {
	view  *TaskView
	store models.StoreName
}

// Reconcile three-way merges the inputs into a Patch. The patch is a
// description of writes; nothing is applied here. Reconcile is
// idempotent: run against its own applied output with no intervening
// external change, it produces an empty patch.
func Reconcile(in Inputs) (*models.Patch, error) {
	reopens := make(map[string]Reopen, len(in.Reopen))
	for _, r := range in.Reopen {
		if r.To == "" {
			r.To = models.TaskStatusTodo
		}
		reopens[r.TaskID] = r
	}

	union := unionIDs(in.TaskStore, in.PlanDoc, in.Tracker)

	patch := &models.Patch{ComputedAt: time.Now()}
	var conflicts []Conflict
	for _, id := range union {
		m, cs := mergeTask(id, in, reopens)
		conflicts = append(conflicts, cs...)
		if len(cs) > 0 {
			continue
		}
		emitOps(patch, m, in)
	}

	if len(conflicts) > 0 {
		return nil, &SyncConflictError{Conflicts: conflicts}
	}
	return patch, nil
}

func unionIDs(views ...*View) []string {
	seen := make(map[string]bool)
	for _, v := range views {
		if v == nil {
			continue
		}
		for id := range v.Tasks {
			seen[id] = true
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// candidate is one store's claim on a contested field.
type candidate struct {
	store     models.StoreName
	value     string
	updatedAt time.Time
}

// mergeTask resolves every field of one task.
func mergeTask(id string, in Inputs, reopens map[string]Reopen) (merged, []Conflict) {
	rec := in.record(id)
	m := merged{presentIn: make(map[models.StoreName]bool)}
	m.ID = id

	var views []heldView
	for _, v := range []*View{in.TaskStore, in.PlanDoc, in.Tracker} {
		if v == nil {
			continue
		}
		if tv, ok := v.Tasks[id]; ok {
			views = append(views, heldView{view: tv, store: v.Source})
			m.presentIn[v.Source] = true
		}
	}

	var conflicts []Conflict

	// Contested scalar fields: plan document is authoritative unless
	// another store was modified more recently than the last merge;
	// among changed stores, last write wins by timestamp, and an exact
	// tie between different values is a conflict.
	resolve := func(field string, get func(*TaskView) (string, bool)) string {
		var cands []candidate
		var base string
		// The task store's copy is the base when nothing changed;
		// otherwise the first store that carries the field.
		for _, h := range views {
			value, carries := get(h.view)
			if !carries || value == "" {
				continue
			}
			if base == "" || h.store == models.StoreTask {
				base = value
			}
			if changedSince(h, rec) {
				cands = append(cands, candidate{store: h.store, value: value, updatedAt: h.view.UpdatedAt})
			}
		}

		value, conflict := pickCandidate(cands, base)
		if conflict != nil {
			conflict.TaskID = id
			conflict.Field = field
			conflicts = append(conflicts, *conflict)
		}
		return value
	}

	m.Title = resolve("title", func(v *TaskView) (string, bool) { return v.Title, true })
	m.Priority = models.Priority(resolve("priority", func(v *TaskView) (string, bool) {
		return string(v.Priority), true
	}))
	m.Owner = resolve("owner", func(v *TaskView) (string, bool) { return v.Owner, v.HasOwner })
	m.Status = models.TaskStatus(resolve("status", func(v *TaskView) (string, bool) {
		return string(v.Status), true
	}))

	// Status monotonicity: done wins across every view, regardless of
	// timestamps, unless an explicit reopen instruction accompanies
	// this merge.
	anyDone := false
	for _, h := range views {
		if h.view.Status == models.TaskStatusDone {
			anyDone = true
		}
	}
	if r, ok := reopens[id]; ok && anyDone {
		m.Status = r.To
		m.Reopened = &r
		// A reopen supersedes any status conflict recorded above.
		conflicts = dropField(conflicts, id, "status")
	} else if anyDone {
		m.Status = models.TaskStatusDone
		conflicts = dropField(conflicts, id, "status")
	}

	if m.Status == "" || !m.Status.Valid() {
		m.Status = models.TaskStatusTodo
	}
	if m.Priority == "" || !m.Priority.Valid() {
		m.Priority = models.PriorityMedium
	}

	// Checklist items merge by logical OR: true in any view wins.
	for _, h := range views {
		for item, done := range h.view.Checklist {
			if m.Checklist == nil {
				m.Checklist = make(map[string]bool)
			}
			m.Checklist[item] = m.Checklist[item] || done
		}
	}

	// Dependency edges merge conservatively: the union of every view's
	// edges. An edge removed in one view survives until all views agree
	// it is gone. Kind disagreements resolve to mandatory, keeping the
	// gating behavior.
	edgeKinds := make(map[string]models.EdgeKind)
	for _, h := range views {
		for _, e := range h.view.Edges {
			if existing, ok := edgeKinds[e.TaskID]; !ok || (existing == models.EdgeSoft && e.Kind == models.EdgeMandatory) {
				edgeKinds[e.TaskID] = e.Kind
			}
		}
	}
	targets := make([]string, 0, len(edgeKinds))
	for to := range edgeKinds {
		targets = append(targets, to)
	}
	sort.Strings(targets)
	for _, to := range targets {
		m.Edges = append(m.Edges, models.Edge{TaskID: to, Kind: edgeKinds[to]})
	}

	// The tracker ref survives from whichever view knows it.
	for _, h := range views {
		if h.view.Ref != "" {
			m.Ref = h.view.Ref
			break
		}
	}

	return m, conflicts
}

// changedSince reports whether a store modified the task after the last
// successful merge.
func changedSince(h heldView, rec models.SyncRecord) bool {
	switch h.store {
	case models.StoreTask:
		return h.view.Version > rec.TaskStoreVersion
	case models.StorePlan:
		if rec.PlanDocVersion.IsZero() {
			return true
		}
		return h.view.UpdatedAt.After(rec.PlanDocVersion)
	case models.StoreTracker:
		if rec.ExternalVersion.IsZero() {
			return true
		}
		return h.view.UpdatedAt.After(rec.ExternalVersion)
	default:
		return false
	}
}

// pickCandidate applies the contested-field rule to the changed stores.
func pickCandidate(cands []candidate, base string) (string, *Conflict) {
	distinct := make(map[string][]candidate)
	for _, c := range cands {
		distinct[c.value] = append(distinct[c.value], c)
	}
	switch len(distinct) {
	case 0:
		return base, nil
	case 1:
		return cands[0].value, nil
	}

	// Plan document is authoritative unless another store is strictly
	// more recent.
	var plan, latest *candidate
	for i := range cands {
		c := &cands[i]
		if c.store == models.StorePlan {
			plan = c
		}
		if latest == nil || c.updatedAt.After(latest.updatedAt) {
			latest = c
		}
	}
	if plan != nil && !latest.updatedAt.After(plan.updatedAt) {
		return plan.value, nil
	}

	// Strict latest wins; an exact tie between different values has no
	// applicable rule.
	tied := false
	for _, c := range cands {
		if c.value != latest.value && c.updatedAt.Equal(latest.updatedAt) {
			tied = true
		}
	}
	if tied {
		values := make(map[models.StoreName]string, len(cands))
		for _, c := range cands {
			values[c.store] = c.value
		}
		return "", &Conflict{Values: values}
	}
	return latest.value, nil
}

func dropField(conflicts []Conflict, taskID, field string) []Conflict {
	out := conflicts[:0]
	for _, c := range conflicts {
		if c.TaskID == taskID && c.Field == field {
			continue
		}
		out = append(out, c)
	}
	return out
}
