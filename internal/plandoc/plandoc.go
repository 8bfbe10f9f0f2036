// Package plandoc reads and writes the human-edited plan document, a
// YAML outline mirroring the task graph. Soft dependencies are written
// with a "soft:" prefix so the file stays a flat, editable list.
package plandoc

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pcranston/floe/pkg/models"
)

// softPrefix marks a soft dependency in a depends_on list.
const softPrefix = "soft:"

// Entry is a single task entry in the plan document.
type Entry struct {
	ID        string          `yaml:"id"`
	Title     string          `yaml:"title"`
	Status    string          `yaml:"status,omitempty"`
	Priority  string          `yaml:"priority,omitempty"`
	Owner     string          `yaml:"owner,omitempty"`
	DependsOn []string        `yaml:"depends_on,omitempty"`
	Checklist map[string]bool `yaml:"checklist,omitempty"`
	// UpdatedAt is optional; when present it is used to detect
	// contested edits during reconciliation.
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
}

// Edges decodes the depends_on list into typed edges.
func (e *Entry) Edges() []models.Edge {
	var edges []models.Edge
	for _, dep := range e.DependsOn {
		if rest, ok := strings.CutPrefix(dep, softPrefix); ok {
			edges = append(edges, models.Edge{TaskID: rest, Kind: models.EdgeSoft})
		} else {
			edges = append(edges, models.Edge{TaskID: dep, Kind: models.EdgeMandatory})
		}
	}
	return edges
}

// SetEdges encodes typed edges back into the depends_on list.
func (e *Entry) SetEdges(edges []models.Edge) {
	e.DependsOn = nil
	for _, edge := range edges {
		if edge.Kind == models.EdgeSoft {
			e.DependsOn = append(e.DependsOn, softPrefix+edge.TaskID)
		} else {
			e.DependsOn = append(e.DependsOn, edge.TaskID)
		}
	}
	sort.Strings(e.DependsOn)
}

// Document is the parsed plan document.
type Document struct {
	// UpdatedAt is the document-level edit timestamp.
	UpdatedAt time.Time `yaml:"updated_at,omitempty"`
	// Tasks are the task entries in document order.
	Tasks []Entry `yaml:"tasks"`
}

// Find returns the entry with the given id, or nil.
func (d *Document) Find(id string) *Entry {
	for i := range d.Tasks {
		if d.Tasks[i].ID == id {
			return &d.Tasks[i]
		}
	}
	return nil
}

// Load parses the plan document at path. A missing file yields an empty
// document, so a fresh project reconciles cleanly.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read plan document: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse plan document: %w", err)
	}

	for i := range doc.Tasks {
		if doc.Tasks[i].ID == "" {
			return nil, fmt.Errorf("parse plan document: entry %d has no id", i)
		}
	}
	return &doc, nil
}

// Save writes the document back to path, creating parent directories.
// Entries are kept in their existing order so human edits stay stable.
func Save(path string, doc *Document) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create plan directory: %w", err)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode plan document: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write plan document: %w", err)
	}
	return nil
}
