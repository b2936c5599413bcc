package store

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rcliao/monologue/internal/model"
)

func TestManifestAppendAndEntries(t *testing.T) {
	m := OpenManifest(filepath.Join(t.TempDir(), "manifest.jsonl"))

	entries, err := m.Entries()
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected empty manifest, got %v %v", entries, err)
	}

	a, err := m.Append(model.ManifestEntry{MonologueID: "m1", Date: "2025-03-11", File: "a.json", Minutes: 1440})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if a.ID == "" || a.CreatedAt.IsZero() {
		t.Error("expected id and timestamp to be filled")
	}
	m.Append(model.ManifestEntry{MonologueID: "m1", Date: "2025-03-12", File: "b.json"})
	fix, _ := m.Append(model.ManifestEntry{MonologueID: "m1", Date: "2025-03-11", File: "a.fix-1.json", FixOf: a.ID})

	entries, err = m.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	latest, ok, err := m.Latest("m1", "2025-03-11")
	if err != nil || !ok {
		t.Fatalf("latest: ok=%v err=%v", ok, err)
	}
	if latest.ID != fix.ID {
		t.Errorf("expected fix entry to be latest, got %s", latest.File)
	}
	if _, ok, _ := m.Latest("m2", "2025-03-11"); ok {
		t.Error("expected no entry for other monologue")
	}

	n, _ := m.CountFixes("m1", "2025-03-11")
	if n != 1 {
		t.Errorf("expected 1 fix, got %d", n)
	}
	n, _ = m.CountGenerated("m1", "2025-03-11")
	if n != 1 {
		t.Errorf("expected 1 generation, got %d", n)
	}
}

func TestManifestIsAppendOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.jsonl")
	m := OpenManifest(path)
	m.Append(model.ManifestEntry{MonologueID: "m1", Date: "2025-03-11"})
	before, _ := os.ReadFile(path)

	m.Append(model.ManifestEntry{MonologueID: "m1", Date: "2025-03-12"})
	after, _ := os.ReadFile(path)

	if !bytes.HasPrefix(after, before) {
		t.Error("existing manifest bytes changed on append")
	}
	if bytes.Count(after, []byte("\n")) != 2 {
		t.Errorf("expected 2 lines, got %q", after)
	}
}

func TestManifestIgnoresTornLastLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.jsonl")
	m := OpenManifest(path)
	m.Append(model.ManifestEntry{MonologueID: "m1", Date: "2025-03-11"})

	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	f.WriteString(`{"id":"x","monologue_id":"m1","da`)
	f.Close()

	entries, err := m.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected torn line to be skipped, got %d entries", len(entries))
	}

	os.WriteFile(path, []byte("not json\n{}\n"), 0o644)
	if _, err := m.Entries(); err == nil {
		t.Error("expected error for corrupt complete line")
	}
}

func TestLatestPerDay(t *testing.T) {
	entries := []model.ManifestEntry{
		{ID: "1", MonologueID: "m1", Date: "2025-03-12"},
		{ID: "2", MonologueID: "m1", Date: "2025-03-11"},
		{ID: "3", MonologueID: "m1", Date: "2025-03-12", FixOf: "1"},
		{ID: "4", MonologueID: "m0", Date: "2025-03-12"},
	}
	got := LatestPerDay(entries)
	var ids []string
	for _, e := range got {
		ids = append(ids, e.ID)
	}
	want := []string{"2", "4", "3"}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("got %v, want %v", ids, want)
			break
		}
	}
}
