package roster

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew_NormalizesAndSkipsBlanks(t *testing.T) {
	r := New([]Unit{
		{ID: " a1 ", Label: " Alpha One "},
		{ID: "", Label: "no id"},
		{ID: "B2", Label: "   "},
	})

	label, ok := r.Label("a1")
	if !ok || label != "Alpha One" {
		t.Fatalf("expected trimmed label via case-insensitive lookup, got %q ok=%v", label, ok)
	}
	if _, ok := r.Label("B2"); ok {
		t.Fatal("blank-label entries must be dropped")
	}
	if got := r.Units(); len(got) != 1 || got[0].ID != "A1" {
		t.Fatalf("unexpected units: %+v", got)
	}
}

func TestAssign(t *testing.T) {
	r := New([]Unit{{ID: "A1", Label: "Alpha One"}})

	r.Assign("!node1", "a1")
	unit, ok := r.Assignment("!node1")
	if !ok || unit != "A1" {
		t.Fatalf("expected normalized assignment, got %q ok=%v", unit, ok)
	}

	// Empty unit id clears the binding.
	r.Assign("!node1", "")
	if _, ok := r.Assignment("!node1"); ok {
		t.Fatal("expected assignment cleared")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	raw := []byte("units:\n  - id: a1\n    label: Alpha One\n  - id: br-42\n    label: Bravo Recon\n")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if label, ok := r.Label("BR-42"); !ok || label != "Bravo Recon" {
		t.Fatalf("unexpected label %q ok=%v", label, ok)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing roster file")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	if err := os.WriteFile(path, []byte("units: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected a parse error")
	}
}
