package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// JSONFile is a Tracker backed by an issue-export JSON file of the form
// {"issues": [...]}. It is the adapter used when syncing against a
// tracker snapshot rather than a live service.
type JSONFile struct {
	path string
	mu   sync.Mutex
	// now is swappable for tests.
	now func() time.Time
	// nextRef allocates refs for created issues.
	nextRef func(n int) string
}

// NewJSONFile creates a file-backed tracker at path. The file is created
// on first write.
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{
		path: path,
		now:  time.Now,
		nextRef: func(n int) string {
			return fmt.Sprintf("ISS-%d", n+1)
		},
	}
}

// List returns every issue in the export file. A missing file is an
// empty tracker.
func (f *JSONFile) List() ([]Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.read()
	if err != nil {
		return nil, err
	}

	var issues []Issue
	for _, item := range gjson.GetBytes(data, "issues").Array() {
		var issue Issue
		if err := json.Unmarshal([]byte(item.Raw), &issue); err != nil {
			return nil, fmt.Errorf("decode issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// Create appends a new issue and returns its ref.
func (f *JSONFile) Create(title, body string, labels []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.read()
	if err != nil {
		return "", err
	}

	count := int(gjson.GetBytes(data, "issues.#").Int())
	issue := map[string]any{
		"ref":        f.nextRef(count),
		"task_id":    body, // the body carries the mirrored task id
		"title":      title,
		"status":     "todo",
		"labels":     labels,
		"updated_at": f.now().UTC().Format(time.RFC3339Nano),
	}

	data, err = sjson.SetBytes(data, "issues.-1", issue)
	if err != nil {
		return "", fmt.Errorf("append issue: %w", err)
	}
	if err := f.write(data); err != nil {
		return "", err
	}
	return issue["ref"].(string), nil
}

// Edit applies a partial update to the issue with the given ref.
func (f *JSONFile) Edit(ref string, fields Fields) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.read()
	if err != nil {
		return err
	}

	index := -1
	for i, item := range gjson.GetBytes(data, "issues").Array() {
		if item.Get("ref").String() == ref {
			index = i
			break
		}
	}
	if index < 0 {
		return fmt.Errorf("edit issue %s: not found", ref)
	}

	base := fmt.Sprintf("issues.%d", index)
	set := func(key string, value any) error {
		var err error
		data, err = sjson.SetBytes(data, base+"."+key, value)
		if err != nil {
			return fmt.Errorf("edit issue %s: set %s: %w", ref, key, err)
		}
		return nil
	}

	if fields.Title != nil {
		if err := set("title", *fields.Title); err != nil {
			return err
		}
	}
	if fields.Status != nil {
		if err := set("status", *fields.Status); err != nil {
			return err
		}
	}
	if fields.TaskID != nil {
		if err := set("task_id", *fields.TaskID); err != nil {
			return err
		}
	}
	if fields.Labels != nil {
		if err := set("labels", fields.Labels); err != nil {
			return err
		}
	}
	if fields.Priority != nil {
		var issue Issue
		raw := gjson.GetBytes(data, base).Raw
		if err := json.Unmarshal([]byte(raw), &issue); err != nil {
			return fmt.Errorf("edit issue %s: %w", ref, err)
		}
		issue.SetPriority(*fields.Priority)
		if err := set("labels", issue.Labels); err != nil {
			return err
		}
	}
	for item, done := range fields.Checklist {
		if err := set("checklist."+item, done); err != nil {
			return err
		}
	}
	if err := set("updated_at", f.now().UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}

	return f.write(data)
}

func (f *JSONFile) read() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return []byte(`{"issues":[]}`), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tracker file: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("tracker file %s is not valid JSON", f.path)
	}
	return data, nil
}

func (f *JSONFile) write(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("create tracker directory: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0644); err != nil {
		return fmt.Errorf("write tracker file: %w", err)
	}
	return nil
}
