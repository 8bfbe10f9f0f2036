package models

// Wave is an ordered batch of tasks that are safe to dispatch concurrently
// once every prior wave has reached a terminal state.
type Wave struct {
	// Index is the zero-based position of this wave in the run.
	Index int `json:"index"`
	// TaskIDs are the member tasks in dispatch order: priority descending,
	// then id ascending.
	TaskIDs []string `json:"task_ids"`
}

// Contains reports whether the wave includes the given task id.
func (w Wave) Contains(taskID string) bool {
	for _, id := range w.TaskIDs {
		if id == taskID {
			return true
		}
	}
	return false
}

// FindingSeverity classifies analyzer findings.
type FindingSeverity string

const (
	SeverityCritical FindingSeverity = "critical"
	SeverityWarning  FindingSeverity = "warning"
	SeverityInfo     FindingSeverity = "info"
)

// FindingCategory is the machine-readable category of a finding.
type FindingCategory string

const (
	// FindingPriorityInversion flags a high-priority task gated on a
	// low-priority one.
	FindingPriorityInversion FindingCategory = "priority_inversion"
	// FindingStatusInconsistency flags a done task with non-done
	// mandatory dependencies.
	FindingStatusInconsistency FindingCategory = "status_inconsistency"
	// FindingOrphanTask flags a task with no edges and no owner.
	FindingOrphanTask FindingCategory = "orphan_task"
	// FindingOwnerOverload flags an owner with too many tasks in flight.
	FindingOwnerOverload FindingCategory = "owner_overload"
)

// Finding is a single advisory produced by the conflict analyzer.
// Findings never mutate state; callers decide what to do with them.
type Finding struct {
	// Severity is critical, warning, or info.
	Severity FindingSeverity `json:"severity"`
	// Category is the machine-readable rule that fired.
	Category FindingCategory `json:"category"`
	// TaskID is the primary task the finding is about.
	TaskID string `json:"task_id"`
	// Related lists other task or owner identifiers involved.
	Related []string `json:"related,omitempty"`
	// Message is the human-readable description.
	Message string `json:"message"`
	// Remediation is the suggested fix, if any.
	Remediation string `json:"remediation,omitempty"`
}
