package coordinator

import (
	"sort"
	"sync"
)

// TaskState is a task's position in the execution state machine:
// Pending, optionally AwaitingApproval, then Dispatched, then exactly
// one terminal state.
type TaskState string

const (
	StatePending          TaskState = "pending"
	StateAwaitingApproval TaskState = "awaiting_approval"
	StateDispatched       TaskState = "dispatched"
	StateSucceeded        TaskState = "succeeded"
	StateFailed           TaskState = "failed"
	StateCancelled        TaskState = "cancelled"
)

// Terminal reports whether the state ends the task's run.
func (s TaskState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// ExecutionMode records how a task's payload was executed.
type ExecutionMode string

const (
	// ModeWorker means the payload ran on a pool worker.
	ModeWorker ExecutionMode = "worker"
	// ModeFallback means the coordinator ran the payload directly.
	ModeFallback ExecutionMode = "fallback"
)

// Verdict is the single top-level outcome of a run.
type Verdict string

const (
	VerdictSuccess         Verdict = "success"
	VerdictCriticalFailure Verdict = "critical_failure"
	VerdictCancelled       Verdict = "cancelled"
)

// Entry is the ledger record for one task.
type Entry struct {
	TaskID string    `json:"task_id"`
	Wave   int       `json:"wave"`
	State  TaskState `json:"state"`
	// Attempts counts payload executions, including the first.
	Attempts int `json:"attempts"`
	// Mode is how the payload ran; empty if it never ran.
	Mode ExecutionMode `json:"mode,omitempty"`
	// Reason explains failures and cancellations.
	Reason string `json:"reason,omitempty"`
}

// Ledger is the structured, thread-safe record of a run: one entry per
// task plus one top-level verdict.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]*Entry
	verdict Verdict
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]*Entry)}
}

// Track seeds a pending entry for a task in the given wave.
func (l *Ledger) Track(taskID string, wave int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[taskID]; !ok {
		l.entries[taskID] = &Entry{TaskID: taskID, Wave: wave, State: StatePending}
	}
}

// SetState moves a task to a new state. Terminal states are sticky:
// once a task is terminal, later transitions are ignored.
func (l *Ledger) SetState(taskID string, state TaskState, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[taskID]
	if !ok || e.State.Terminal() {
		return
	}
	e.State = state
	if reason != "" {
		e.Reason = reason
	}
}

// SetMode records the execution mode used for a task.
func (l *Ledger) SetMode(taskID string, mode ExecutionMode) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[taskID]; ok {
		e.Mode = mode
	}
}

// AddAttempt increments a task's payload execution count.
func (l *Ledger) AddAttempt(taskID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[taskID]; ok {
		e.Attempts++
	}
}

// Get returns a copy of a task's entry.
func (l *Ledger) Get(taskID string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[taskID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns copies of every entry, ordered by wave then task id.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Wave != out[j].Wave {
			return out[i].Wave < out[j].Wave
		}
		return out[i].TaskID < out[j].TaskID
	})
	return out
}

// SetVerdict records the run's top-level outcome.
func (l *Ledger) SetVerdict(v Verdict) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.verdict = v
}

// Verdict returns the run's top-level outcome.
func (l *Ledger) Verdict() Verdict {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.verdict
}

// CountByState tallies entries per state.
func (l *Ledger) CountByState() map[TaskState]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	counts := make(map[TaskState]int)
	for _, e := range l.entries {
		counts[e.State]++
	}
	return counts
}
