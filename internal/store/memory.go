package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pcranston/floe/pkg/models"
)

// Memory is an in-memory TaskStore with the same compare-and-swap
// semantics as the SQLite implementation. Used by tests and dry runs.
type Memory struct {
	mu        sync.RWMutex
	tasks     map[string]*models.Task
	records   map[string]*models.SyncRecord
	overrides []StatusOverride
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tasks:   make(map[string]*models.Task),
		records: make(map[string]*models.SyncRecord),
	}
}

// CreateTask inserts a new task with version 1.
func (m *Memory) CreateTask(t *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[t.ID]; exists {
		return fmt.Errorf("create task %s: %w", t.ID, ErrTaskExists)
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.Version = 1
	m.tasks[t.ID] = t.Clone()
	return nil
}

// GetTask retrieves a task by id. Returns nil, nil if not found.
func (m *Memory) GetTask(id string) (*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	return t.Clone(), nil
}

// ListTasks returns all tasks ordered by id.
func (m *Memory) ListTasks() ([]*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.tasks))
	for id := range m.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tasks := make([]*models.Task, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, m.tasks[id].Clone())
	}
	return tasks, nil
}

// UpdateTask writes a task back, CAS-guarded on its version.
func (m *Memory) UpdateTask(t *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.tasks[t.ID]
	if !ok {
		return fmt.Errorf("update task %s: not found", t.ID)
	}
	if current.Version != t.Version {
		return fmt.Errorf("update task %s: %w", t.ID, ErrVersionMismatch)
	}

	t.Version++
	t.UpdatedAt = time.Now()
	m.tasks[t.ID] = t.Clone()
	return nil
}

// MutateTask runs a bounded read-modify-write loop around UpdateTask.
func (m *Memory) MutateTask(id string, maxAttempts int, fn func(*models.Task) error) (*models.Task, error) {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		t, err := m.GetTask(id)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, fmt.Errorf("mutate task %s: not found", id)
		}
		if err := fn(t); err != nil {
			return nil, err
		}

		err = m.UpdateTask(t)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, ErrVersionMismatch) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("mutate task %s: retries exhausted: %w", id, lastErr)
}

// UpsertSyncRecord creates or replaces a task's sync record.
func (m *Memory) UpsertSyncRecord(r *models.SyncRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.records[r.TaskID] = &cp
	return nil
}

// GetSyncRecord retrieves a task's sync record. Returns nil, nil if absent.
func (m *Memory) GetSyncRecord(taskID string) (*models.SyncRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[taskID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

// ListSyncRecords returns all sync records keyed by task id.
func (m *Memory) ListSyncRecords() (map[string]*models.SyncRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]*models.SyncRecord, len(m.records))
	for id, r := range m.records {
		cp := *r
		out[id] = &cp
	}
	return out, nil
}

// RecordStatusOverride appends an explicit status reversion.
func (m *Memory) RecordStatusOverride(taskID string, from, to models.TaskStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides = append(m.overrides, StatusOverride{
		TaskID:     taskID,
		FromStatus: from,
		ToStatus:   to,
		Reason:     reason,
		RecordedAt: time.Now(),
	})
	return nil
}

// Overrides returns the recorded status overrides, oldest first.
func (m *Memory) Overrides() []StatusOverride {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]StatusOverride(nil), m.overrides...)
}
