package store

import "github.com/pcranston/floe/pkg/models"

// TaskStore abstracts the persistence operations the coordinator and
// reconciler need, so tests can substitute an in-memory implementation.
type TaskStore interface {
	// CreateTask inserts a new task with version 1.
	CreateTask(t *models.Task) error
	// GetTask retrieves a task by id; nil, nil if not found.
	GetTask(id string) (*models.Task, error)
	// ListTasks returns all tasks ordered by id.
	ListTasks() ([]*models.Task, error)
	// UpdateTask writes a task back, CAS-guarded on its version.
	UpdateTask(t *models.Task) error
	// MutateTask runs a bounded read-modify-write loop around UpdateTask.
	MutateTask(id string, maxAttempts int, fn func(*models.Task) error) (*models.Task, error)
	// UpsertSyncRecord creates or replaces a task's sync record.
	UpsertSyncRecord(r *models.SyncRecord) error
	// GetSyncRecord retrieves a task's sync record; nil, nil if absent.
	GetSyncRecord(taskID string) (*models.SyncRecord, error)
	// ListSyncRecords returns all sync records keyed by task id.
	ListSyncRecords() (map[string]*models.SyncRecord, error)
	// RecordStatusOverride appends an explicit status reversion to the
	// audit trail.
	RecordStatusOverride(taskID string, from, to models.TaskStatus, reason string) error
}

// Compile-time checks that both implementations satisfy the interface.
var (
	_ TaskStore = (*DB)(nil)
	_ TaskStore = (*Memory)(nil)
)
