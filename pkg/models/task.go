package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusTodo indicates the task has not started.
	TaskStatusTodo TaskStatus = "todo"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusDone indicates the task completed successfully.
	TaskStatusDone TaskStatus = "done"
	// TaskStatusBlocked indicates the task cannot proceed.
	TaskStatusBlocked TaskStatus = "blocked"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone, TaskStatusBlocked:
		return true
	default:
		return false
	}
}

// Priority represents the scheduling priority of a task.
// It is ordinal and used only for tie-breaking within a wave.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Rank returns the numeric rank of the priority, higher is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Criticality determines how a task's terminal failure propagates.
type Criticality string

const (
	// CriticalityCritical aborts downstream work on terminal failure.
	CriticalityCritical Criticality = "critical"
	// CriticalityOptional only logs a warning on terminal failure.
	CriticalityOptional Criticality = "optional"
)

// Valid returns true if the criticality is a known value.
func (c Criticality) Valid() bool {
	return c == CriticalityCritical || c == CriticalityOptional
}

// EdgeKind distinguishes dependency edges that gate wave scheduling
// from advisory ones that do not.
type EdgeKind string

const (
	// EdgeMandatory gates scheduling: the dependency must be done first.
	EdgeMandatory EdgeKind = "mandatory"
	// EdgeSoft is advisory: it never gates wave boundaries and may cycle.
	EdgeSoft EdgeKind = "soft"
)

// Valid returns true if the edge kind is a known value.
func (k EdgeKind) Valid() bool {
	return k == EdgeMandatory || k == EdgeSoft
}

// Edge is a single dependency declaration: the owning task depends on TaskID.
type Edge struct {
	// TaskID is the id of the task depended upon.
	TaskID string `json:"task_id"`
	// Kind is mandatory or soft.
	Kind EdgeKind `json:"kind"`
}

// Task represents a unit of schedulable work.
type Task struct {
	// ID is the unique identifier for this task within a store.
	ID string `json:"id"`
	// Title is the short human label. The core never interprets it.
	Title string `json:"title"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Priority is used for dispatch ordering within a wave.
	Priority Priority `json:"priority"`
	// DependsOn lists dependency edges declared by this task.
	DependsOn []Edge `json:"depends_on,omitempty"`
	// Criticality determines failure propagation.
	Criticality Criticality `json:"criticality"`
	// Owner is the optional assignee identifier.
	Owner string `json:"owner,omitempty"`
	// ExternalRef points into the external tracker; empty if never synced.
	ExternalRef string `json:"external_ref,omitempty"`
	// NeedsApproval parks the task in AwaitingApproval before dispatch.
	NeedsApproval bool `json:"needs_approval,omitempty"`
	// Checklist holds boolean sub-item completion flags, merged by OR.
	Checklist map[string]bool `json:"checklist,omitempty"`
	// Archived marks a task removed by the collaborator layer. The core
	// never physically deletes tasks.
	Archived bool `json:"archived,omitempty"`
	// Version increases on every mutation; writes CAS against it.
	Version int64 `json:"version"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task was last mutated.
	UpdatedAt time.Time `json:"updated_at"`
}

// DependsOnIDs returns the ids of dependencies matching kind.
// An empty kind matches every edge.
func (t *Task) DependsOnIDs(kind EdgeKind) []string {
	var ids []string
	for _, e := range t.DependsOn {
		if kind == "" || e.Kind == kind {
			ids = append(ids, e.TaskID)
		}
	}
	return ids
}

// HasDependency reports whether the task declares an edge to depID of any kind.
func (t *Task) HasDependency(depID string) bool {
	for _, e := range t.DependsOn {
		if e.TaskID == depID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	cp := *t
	if t.DependsOn != nil {
		cp.DependsOn = make([]Edge, len(t.DependsOn))
		copy(cp.DependsOn, t.DependsOn)
	}
	if t.Checklist != nil {
		cp.Checklist = make(map[string]bool, len(t.Checklist))
		for k, v := range t.Checklist {
			cp.Checklist[k] = v
		}
	}
	return &cp
}
