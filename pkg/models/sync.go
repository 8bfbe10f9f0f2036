package models

import "time"

// StoreName identifies one of the three stores of truth.
type StoreName string

const (
	// StoreTask is the internal task store.
	StoreTask StoreName = "taskstore"
	// StorePlan is the human-edited plan document.
	StorePlan StoreName = "plandoc"
	// StoreTracker is the external issue tracker.
	StoreTracker StoreName = "tracker"
)

// SyncRecord holds per-task reconciliation bookkeeping: the version
// watermark of each store at the last successful merge.
type SyncRecord struct {
	// TaskID is the task this record tracks.
	TaskID string `json:"task_id"`
	// TaskStoreVersion is the task store version at last merge.
	TaskStoreVersion int64 `json:"task_store_version"`
	// PlanDocVersion is the plan document timestamp at last merge.
	PlanDocVersion time.Time `json:"plan_doc_version"`
	// ExternalVersion is the tracker timestamp at last merge.
	ExternalVersion time.Time `json:"external_version"`
	// LastMergedAt is when the last successful merge completed.
	LastMergedAt time.Time `json:"last_merged_at"`
}

// PatchOpKind is the kind of write a patch operation performs.
type PatchOpKind string

const (
	// PatchCreateTask creates a task that exists in another view.
	PatchCreateTask PatchOpKind = "create_task"
	// PatchSetField overwrites a single task field.
	PatchSetField PatchOpKind = "set_field"
	// PatchSetChecklist sets a checklist item to true.
	PatchSetChecklist PatchOpKind = "set_checklist"
	// PatchAddEdge adds a dependency edge.
	PatchAddEdge PatchOpKind = "add_edge"
	// PatchRemoveEdge removes a dependency edge all views agree is gone.
	PatchRemoveEdge PatchOpKind = "remove_edge"
)

// PatchOp is a single write destined for one store.
type PatchOp struct {
	// Store is the destination store.
	Store StoreName `json:"store"`
	// Kind is the operation kind.
	Kind PatchOpKind `json:"kind"`
	// TaskID is the task being written.
	TaskID string `json:"task_id"`
	// Field names the task field for set_field ops.
	Field string `json:"field,omitempty"`
	// Value is the new value, encoded as a string.
	Value string `json:"value,omitempty"`
	// Edge carries the edge for add_edge/remove_edge ops.
	Edge *Edge `json:"edge,omitempty"`
	// Task carries the full task for create_task ops.
	Task *Task `json:"task,omitempty"`
	// Reason records which merge rule produced this op.
	Reason string `json:"reason,omitempty"`
}

// Patch is the set of writes a reconcile pass wants applied to the three
// stores. It is a description, not an application: callers apply it.
type Patch struct {
	// Ops are the writes, in application order.
	Ops []PatchOp `json:"ops"`
	// ComputedAt is when the patch was produced.
	ComputedAt time.Time `json:"computed_at"`
}

// Empty reports whether the patch contains no writes.
func (p *Patch) Empty() bool {
	return len(p.Ops) == 0
}

// OpsFor returns the ops destined for the given store.
func (p *Patch) OpsFor(store StoreName) []PatchOp {
	var ops []PatchOp
	for _, op := range p.Ops {
		if op.Store == store {
			ops = append(ops, op)
		}
	}
	return ops
}
