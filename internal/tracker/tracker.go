// Package tracker defines the minimal contract the core needs from an
// external issue tracker. Transport and authentication belong to the
// adapter behind the interface, never to the core.
package tracker

import (
	"strings"
	"time"
)

// priorityLabelPrefix is the label convention carrying task priority.
const priorityLabelPrefix = "priority:"

// Issue is one tracker item as seen through the contract.
type Issue struct {
	// Ref is the tracker-side identifier (the externalRef on a task).
	Ref string `json:"ref"`
	// TaskID is the task this issue mirrors, if known.
	TaskID string `json:"task_id,omitempty"`
	// Title is the issue title.
	Title string `json:"title"`
	// Status is the issue status mapped onto task statuses.
	Status string `json:"status"`
	// Labels are free-form tracker labels. Priority travels as a
	// "priority:<level>" label.
	Labels []string `json:"labels,omitempty"`
	// Checklist holds boolean sub-item completion flags.
	Checklist map[string]bool `json:"checklist,omitempty"`
	// UpdatedAt is when the issue was last modified tracker-side.
	UpdatedAt time.Time `json:"updated_at"`
}

// Priority extracts the priority label value, or empty.
func (i *Issue) Priority() string {
	for _, l := range i.Labels {
		if rest, ok := strings.CutPrefix(l, priorityLabelPrefix); ok {
			return rest
		}
	}
	return ""
}

// SetPriority replaces any existing priority label.
func (i *Issue) SetPriority(level string) {
	labels := i.Labels[:0]
	for _, l := range i.Labels {
		if !strings.HasPrefix(l, priorityLabelPrefix) {
			labels = append(labels, l)
		}
	}
	i.Labels = append(labels, priorityLabelPrefix+level)
}

// Fields is a partial update for Edit. Nil pointers leave the field
// untouched; a non-nil Labels slice replaces the label set.
type Fields struct {
	Title    *string
	Status   *string
	Priority *string
	// TaskID links the issue to a task; set once when a match is
	// confirmed, never cleared.
	TaskID    *string
	Labels    []string
	Checklist map[string]bool
}

// Tracker is the CRUD-shaped surface the core consumes.
type Tracker interface {
	// List returns every issue.
	List() ([]Issue, error)
	// Create opens a new issue and returns its ref.
	Create(title, body string, labels []string) (string, error)
	// Edit applies a partial update to an existing issue.
	Edit(ref string, fields Fields) error
}
