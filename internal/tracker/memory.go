package tracker

import (
	"fmt"
	"sync"
	"time"
)

// Memory is an in-memory Tracker used by tests and dry runs.
type Memory struct {
	mu     sync.Mutex
	issues []Issue
	// Now is swappable for tests that need deterministic timestamps.
	Now func() time.Time
}

// NewMemory creates an empty in-memory tracker.
func NewMemory() *Memory {
	return &Memory{Now: time.Now}
}

// Seed replaces the tracker contents, for test setup.
func (m *Memory) Seed(issues []Issue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues = append([]Issue(nil), issues...)
}

// List returns every issue.
func (m *Memory) List() ([]Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Issue(nil), m.issues...), nil
}

// Create opens a new issue and returns its ref.
func (m *Memory) Create(title, body string, labels []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref := fmt.Sprintf("ISS-%d", len(m.issues)+1)
	m.issues = append(m.issues, Issue{
		Ref:       ref,
		TaskID:    body,
		Title:     title,
		Status:    "todo",
		Labels:    append([]string(nil), labels...),
		UpdatedAt: m.Now(),
	})
	return ref, nil
}

// Edit applies a partial update to an existing issue.
func (m *Memory) Edit(ref string, fields Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.issues {
		if m.issues[i].Ref != ref {
			continue
		}
		issue := &m.issues[i]
		if fields.Title != nil {
			issue.Title = *fields.Title
		}
		if fields.Status != nil {
			issue.Status = *fields.Status
		}
		if fields.Labels != nil {
			issue.Labels = append([]string(nil), fields.Labels...)
		}
		if fields.Priority != nil {
			issue.SetPriority(*fields.Priority)
		}
		if fields.TaskID != nil {
			issue.TaskID = *fields.TaskID
		}
		for item, done := range fields.Checklist {
			if issue.Checklist == nil {
				issue.Checklist = make(map[string]bool)
			}
			issue.Checklist[item] = done
		}
		issue.UpdatedAt = m.Now()
		return nil
	}
	return fmt.Errorf("edit issue %s: not found", ref)
}

var _ Tracker = (*Memory)(nil)
var _ Tracker = (*JSONFile)(nil)
