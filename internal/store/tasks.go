package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pcranston/floe/pkg/models"
)

// ErrVersionMismatch indicates a compare-and-swap write lost a race: the
// task's version changed since it was read. Callers re-fetch and retry
// rather than overwriting blindly.
var ErrVersionMismatch = errors.New("task version mismatch")

// ErrTaskExists indicates a create collided with an existing task id.
var ErrTaskExists = errors.New("task already exists")

// CreateTask inserts a new task with version 1 and its dependency edges.
func (db *DB) CreateTask(t *models.Task) error {
	checklist, err := marshalChecklist(t.Checklist)
	if err != nil {
		return err
	}

	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.Version = 1

	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO tasks (id, title, status, priority, criticality, owner,
				external_ref, needs_approval, checklist, archived, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.Title, string(t.Status), string(t.Priority), string(t.Criticality),
			t.Owner, t.ExternalRef, boolToInt(t.NeedsApproval), checklist,
			boolToInt(t.Archived), t.Version, formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("create task %s: %w", t.ID, ErrTaskExists)
			}
			return fmt.Errorf("create task %s: %w", t.ID, err)
		}
		return insertEdges(tx, t)
	})
}

// GetTask retrieves a task by id. Returns nil, nil if not found.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT id, title, status, priority, criticality, owner, external_ref,
			needs_approval, checklist, archived, version, created_at, updated_at
		FROM tasks WHERE id = ?
	`, id)

	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}

	if err := db.loadEdges(t); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTasks returns all tasks with their edges, ordered by id.
func (db *DB) ListTasks() ([]*models.Task, error) {
	rows, err := db.Query(`
		SELECT id, title, status, priority, criticality, owner, external_ref,
			needs_approval, checklist, archived, version, created_at, updated_at
		FROM tasks ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	for _, t := range tasks {
		if err := db.loadEdges(t); err != nil {
			return nil, err
		}
	}
	return tasks, nil
}

// UpdateTask writes the task back, guarded by compare-and-swap on the
// version the caller read. On success the task's version is incremented
// in place. A concurrent write since the read yields ErrVersionMismatch.
func (db *DB) UpdateTask(t *models.Task) error {
	checklist, err := marshalChecklist(t.Checklist)
	if err != nil {
		return err
	}

	readVersion := t.Version
	now := time.Now()

	err = db.Transaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE tasks
			SET title = ?, status = ?, priority = ?, criticality = ?, owner = ?,
				external_ref = ?, needs_approval = ?, checklist = ?, archived = ?,
				version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?
		`, t.Title, string(t.Status), string(t.Priority), string(t.Criticality),
			t.Owner, t.ExternalRef, boolToInt(t.NeedsApproval), checklist,
			boolToInt(t.Archived), formatTime(now), t.ID, readVersion)
		if err != nil {
			return fmt.Errorf("update task %s: %w", t.ID, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update task %s: %w", t.ID, err)
		}
		if n == 0 {
			return fmt.Errorf("update task %s: %w", t.ID, ErrVersionMismatch)
		}

		if _, err := tx.Exec("DELETE FROM task_edges WHERE from_id = ?", t.ID); err != nil {
			return fmt.Errorf("clear edges for %s: %w", t.ID, err)
		}
		return insertEdges(tx, t)
	})
	if err != nil {
		return err
	}

	t.Version = readVersion + 1
	t.UpdatedAt = now
	return nil
}

// MutateTask applies fn to a fresh read of the task and writes it back,
// retrying the read-modify-write up to maxAttempts times on version
// mismatch. Returns the task as written.
func (db *DB) MutateTask(id string, maxAttempts int, fn func(*models.Task) error) (*models.Task, error) {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		t, err := db.GetTask(id)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, fmt.Errorf("mutate task %s: not found", id)
		}

		if err := fn(t); err != nil {
			return nil, err
		}

		err = db.UpdateTask(t)
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

// loadEdges populates t.DependsOn from the task_edges table.
func (db *DB) loadEdges(t *models.Task) error {
	rows, err := db.Query(`
		SELECT to_id, kind FROM task_edges WHERE from_id = ? ORDER BY to_id
	`, t.ID)
	if err != nil {
		return fmt.Errorf("load edges for %s: %w", t.ID, err)
	}
	defer rows.Close()

	t.DependsOn = nil
	for rows.Next() {
		var e models.Edge
		var kind string
		if err := rows.Scan(&e.TaskID, &kind); err != nil {
			return fmt.Errorf("scan edge for %s: %w", t.ID, err)
		}
		e.Kind = models.EdgeKind(kind)
		t.DependsOn = append(t.DependsOn, e)
	}
	return rows.Err()
}

func insertEdges(tx *sql.Tx, t *models.Task) error {
	for _, e := range t.DependsOn {
		_, err := tx.Exec(`
			INSERT OR IGNORE INTO task_edges (from_id, to_id, kind) VALUES (?, ?, ?)
		`, t.ID, e.TaskID, string(e.Kind))
		if err != nil {
			return fmt.Errorf("insert edge %s -> %s: %w", t.ID, e.TaskID, err)
		}
	}
	return nil
}

// scanTask scans one tasks row via the given scan function.
func scanTask(scan func(dest ...any) error) (*models.Task, error) {
	var t models.Task
	var status, priority, criticality string
	var owner, externalRef, checklist sql.NullString
	var needsApproval, archived int
	var createdAt, updatedAt string

	err := scan(&t.ID, &t.Title, &status, &priority, &criticality, &owner,
		&externalRef, &needsApproval, &checklist, &archived, &t.Version,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	t.Status = models.TaskStatus(status)
	t.Priority = models.Priority(priority)
	t.Criticality = models.Criticality(criticality)
	t.Owner = owner.String
	t.ExternalRef = externalRef.String
	t.NeedsApproval = needsApproval != 0
	t.Archived = archived != 0
	t.CreatedAt, _ = parseTime(createdAt)
	t.UpdatedAt, _ = parseTime(updatedAt)

	if checklist.Valid && checklist.String != "" {
		if err := json.Unmarshal([]byte(checklist.String), &t.Checklist); err != nil {
			return nil, fmt.Errorf("decode checklist: %w", err)
		}
	}
	return &t, nil
}

func marshalChecklist(m map[string]bool) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode checklist: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation reports whether the error is a primary key collision.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "constraint failed")
}
