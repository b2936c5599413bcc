package store

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcliao/monologue/internal/memory"
	"github.com/rcliao/monologue/internal/model"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestLayoutPaths(t *testing.T) {
	l := Layout{Root: "/out"}
	d := mustDate(t, "2025-03-11")

	cases := []struct{ got, want string }{
		{l.DayPath("m1", d), "/out/m1/year_2025/month_03/day_2025-03-11.json"},
		{l.DayPath("m2", d), "/out/m2/year_2025/month_03/day_2025-03-11.json"},
		{l.FixPath("m1", d, 2), "/out/m1/year_2025/month_03/day_2025-03-11.fix-2.json"},
		{l.RegenPath("m1", d, 1), "/out/m1/year_2025/month_03/day_2025-03-11.regen-1.json"},
		{l.ManifestPath(), "/out/manifest.jsonl"},
		{l.MemoryPath("m1"), "/out/memory/m1.json"},
		{l.WeekSummaryPath("m1", d), "/out/m1/week_summary_2025-03-11.json"},
		{l.MonthSummaryPath("m1", d), "/out/m1/month_summary_2025-03-11.json"},
		{l.YearSummaryPath("m1", 2), "/out/m1/year_summary_2.json"},
		{l.Rel(l.DayPath("m1", d)), "m1/year_2025/month_03/day_2025-03-11.json"},
		{l.Abs("year_2025/x.json"), "/out/year_2025/x.json"},
	}
	for _, tc := range cases {
		if filepath.ToSlash(tc.got) != tc.want {
			t.Errorf("got %q, want %q", tc.got, tc.want)
		}
	}
}

func TestWriteJSONAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "day.json")

	rec := model.DayRecord{MonologueID: "m1", Date: "2025-03-11", GenerationMethod: model.GenerationMethod}
	if err := WriteJSON(path, rec); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadDay(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.MonologueID != "m1" || got.GenerationMethod != "chunked_two_pass" {
		t.Errorf("unexpected record %+v", got)
	}

	first, _ := os.ReadFile(path)
	if err := WriteJSON(path, rec); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	second, _ := os.ReadFile(path)
	if !bytes.Equal(first, second) {
		t.Error("expected identical bytes for identical record")
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, "a", "b", ".*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestMemoryPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory", "m1.json")

	m, err := LoadMemory(path)
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if !m.Empty() || m.RecentSocial != memory.DefaultSocial {
		t.Errorf("expected default memory, got %+v", m)
	}

	m.Update("2025-03-11", 0, 11, []model.InternalResult{{Entries: []model.InternalEntry{{
		Components: model.Components{MotorBehavior: "first roll", SocialInteraction: "caregiver tickles"},
		Source:     model.SourceService,
	}}}})
	if err := SaveMemory(path, m); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := LoadMemory(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.RecentMilestones) != 1 || got.RecentMilestones[0] != "first roll" {
		t.Errorf("milestones not persisted: %v", got.RecentMilestones)
	}
	if got.LastGeneratedHour == nil || *got.LastGeneratedHour != 11 {
		t.Errorf("last hour not persisted: %v", got.LastGeneratedHour)
	}
}
