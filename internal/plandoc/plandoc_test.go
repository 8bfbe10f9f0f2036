package plandoc

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pcranston/floe/pkg/models"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	doc, err := Load(filepath.Join(t.TempDir(), "plan.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(doc.Tasks) != 0 {
		t.Errorf("expected empty document, got %+v", doc)
	}
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	doc := &Document{
		Tasks: []Entry{
			{ID: "A", Title: "First", Status: "todo", Priority: "high", Owner: "sam"},
			{ID: "B", Title: "Second", Status: "in_progress",
				DependsOn: []string{"A", "soft:C"},
				Checklist: map[string]bool{"drafted": true}},
			{ID: "C", Title: "Third"},
		},
	}

	if err := Save(path, doc); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if len(loaded.Tasks) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(loaded.Tasks))
	}
	// Entry order is preserved across the round trip.
	for i, want := range []string{"A", "B", "C"} {
		if loaded.Tasks[i].ID != want {
			t.Errorf("entry %d: expected %s, got %s", i, want, loaded.Tasks[i].ID)
		}
	}
	if !reflect.DeepEqual(loaded.Tasks[1].DependsOn, []string{"A", "soft:C"}) {
		t.Errorf("depends_on not preserved: %v", loaded.Tasks[1].DependsOn)
	}
	if !loaded.Tasks[1].Checklist["drafted"] {
		t.Error("checklist not preserved")
	}
}

func TestEntryEdges(t *testing.T) {
	e := Entry{DependsOn: []string{"A", "soft:B"}}
	edges := e.Edges()
	want := []models.Edge{
		{TaskID: "A", Kind: models.EdgeMandatory},
		{TaskID: "B", Kind: models.EdgeSoft},
	}
	if !reflect.DeepEqual(edges, want) {
		t.Errorf("expected %v, got %v", want, edges)
	}
}

func TestSetEdges(t *testing.T) {
	var e Entry
	e.SetEdges([]models.Edge{
		{TaskID: "B", Kind: models.EdgeSoft},
		{TaskID: "A", Kind: models.EdgeMandatory},
	})
	if !reflect.DeepEqual(e.DependsOn, []string{"A", "soft:B"}) {
		t.Errorf("unexpected depends_on: %v", e.DependsOn)
	}
}

func TestLoadRejectsMissingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := Save(path, &Document{Tasks: []Entry{{Title: "no id"}}}); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for entry without id")
	}
}

func TestFind(t *testing.T) {
	doc := &Document{Tasks: []Entry{{ID: "A"}, {ID: "B"}}}
	if doc.Find("B") == nil {
		t.Error("expected to find B")
	}
	if doc.Find("Z") != nil {
		t.Error("expected nil for missing entry")
	}

	// Find returns a pointer into the document.
	doc.Find("A").Title = "renamed"
	if doc.Tasks[0].Title != "renamed" {
		t.Error("Find should return a mutable pointer")
	}
}
