package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pcranston/floe/pkg/models"
)

// SyncRecord CRUD operations

// UpsertSyncRecord creates or replaces the sync record for a task.
func (db *DB) UpsertSyncRecord(r *models.SyncRecord) error {
	_, err := db.Exec(`
		INSERT INTO sync_records (task_id, task_store_version, plan_doc_version, external_version, last_merged_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET
			task_store_version = excluded.task_store_version,
			plan_doc_version = excluded.plan_doc_version,
			external_version = excluded.external_version,
			last_merged_at = excluded.last_merged_at
	`, r.TaskID, r.TaskStoreVersion, nullableTime(r.PlanDocVersion),
		nullableTime(r.ExternalVersion), nullableTime(r.LastMergedAt))
	if err != nil {
		return fmt.Errorf("upsert sync record %s: %w", r.TaskID, err)
	}
	return nil
}

// GetSyncRecord retrieves the sync record for a task. Returns nil, nil
// if the task has never been merged.
func (db *DB) GetSyncRecord(taskID string) (*models.SyncRecord, error) {
	row := db.QueryRow(`
		SELECT task_id, task_store_version, plan_doc_version, external_version, last_merged_at
		FROM sync_records WHERE task_id = ?
	`, taskID)

	r, err := scanSyncRecord(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync record %s: %w", taskID, err)
	}
	return r, nil
}

// ListSyncRecords returns all sync records keyed by task id.
func (db *DB) ListSyncRecords() (map[string]*models.SyncRecord, error) {
	rows, err := db.Query(`
		SELECT task_id, task_store_version, plan_doc_version, external_version, last_merged_at
		FROM sync_records
	`)
	if err != nil {
		return nil, fmt.Errorf("list sync records: %w", err)
	}
	defer rows.Close()

	records := make(map[string]*models.SyncRecord)
	for rows.Next() {
		r, err := scanSyncRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan sync record: %w", err)
		}
		records[r.TaskID] = r
	}
	return records, rows.Err()
}

// RecordStatusOverride appends an explicit status reversion to the audit
// table. Automatic reconciliation never reverts done; only an override
// recorded here may.
func (db *DB) RecordStatusOverride(taskID string, from, to models.TaskStatus, reason string) error {
	_, err := db.Exec(`
		INSERT INTO status_overrides (task_id, from_status, to_status, reason, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, taskID, string(from), string(to), reason, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("record status override %s: %w", taskID, err)
	}
	return nil
}

// StatusOverride is one row of the override audit trail.
type StatusOverride struct {
	TaskID     string
	FromStatus models.TaskStatus
	ToStatus   models.TaskStatus
	Reason     string
	RecordedAt time.Time
}

// ListStatusOverrides returns the override history for a task, oldest first.
func (db *DB) ListStatusOverrides(taskID string) ([]StatusOverride, error) {
	rows, err := db.Query(`
		SELECT task_id, from_status, to_status, reason, recorded_at
		FROM status_overrides WHERE task_id = ? ORDER BY id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list status overrides %s: %w", taskID, err)
	}
	defer rows.Close()

	var overrides []StatusOverride
	for rows.Next() {
		var o StatusOverride
		var from, to, recordedAt string
		var reason sql.NullString
		if err := rows.Scan(&o.TaskID, &from, &to, &reason, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan status override: %w", err)
		}
		o.FromStatus = models.TaskStatus(from)
		o.ToStatus = models.TaskStatus(to)
		o.Reason = reason.String
		o.RecordedAt, _ = parseTime(recordedAt)
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

func scanSyncRecord(scan func(dest ...any) error) (*models.SyncRecord, error) {
	var r models.SyncRecord
	var planDoc, external, merged sql.NullString
	if err := scan(&r.TaskID, &r.TaskStoreVersion, &planDoc, &external, &merged); err != nil {
		return nil, err
	}
	r.PlanDocVersion = parseNullableTime(planDoc)
	r.ExternalVersion = parseNullableTime(external)
	r.LastMergedAt = parseNullableTime(merged)
	return &r, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}
