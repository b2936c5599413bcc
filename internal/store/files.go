package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rcliao/monologue/internal/memory"
	"github.com/rcliao/monologue/internal/model"
)

// Layout maps output artifacts to paths under Root.
type Layout struct {
	Root string
}

// DayPath returns the artifact path for one monologue's date, e.g.
// m1/year_2025/month_03/day_2025-03-11.json.
func (l Layout) DayPath(monologueID string, date time.Time) string {
	return filepath.Join(l.dayDir(monologueID, date), fmt.Sprintf("day_%s.json", date.Format(time.DateOnly)))
}

// FixPath returns the path of the n-th fix artifact for date.
func (l Layout) FixPath(monologueID string, date time.Time, n int) string {
	return filepath.Join(l.dayDir(monologueID, date), fmt.Sprintf("day_%s.fix-%d.json", date.Format(time.DateOnly), n))
}

// RegenPath returns the path of the n-th forced regeneration of date.
func (l Layout) RegenPath(monologueID string, date time.Time, n int) string {
	return filepath.Join(l.dayDir(monologueID, date), fmt.Sprintf("day_%s.regen-%d.json", date.Format(time.DateOnly), n))
}

func (l Layout) dayDir(monologueID string, date time.Time) string {
	return filepath.Join(l.Root, monologueID,
		fmt.Sprintf("year_%04d", date.Year()),
		fmt.Sprintf("month_%02d", int(date.Month())))
}

// ManifestPath returns the manifest location.
func (l Layout) ManifestPath() string { return filepath.Join(l.Root, "manifest.jsonl") }

// DBPath returns the SQLite cache location.
func (l Layout) DBPath() string { return filepath.Join(l.Root, "monologue.db") }

// MemoryPath returns the continuity memory file for a monologue.
func (l Layout) MemoryPath(monologueID string) string {
	return filepath.Join(l.Root, "memory", monologueID+".json")
}

// WeekSummaryPath returns the week summary location.
func (l Layout) WeekSummaryPath(monologueID string, start time.Time) string {
	return filepath.Join(l.Root, monologueID, fmt.Sprintf("week_summary_%s.json", start.Format(time.DateOnly)))
}

// MonthSummaryPath returns the month summary location.
func (l Layout) MonthSummaryPath(monologueID string, start time.Time) string {
	return filepath.Join(l.Root, monologueID, fmt.Sprintf("month_summary_%s.json", start.Format(time.DateOnly)))
}

// YearSummaryPath returns the summary location for the year-th year of life.
func (l Layout) YearSummaryPath(monologueID string, year int) string {
	return filepath.Join(l.Root, monologueID, fmt.Sprintf("year_summary_%d.json", year))
}

// Rel returns path relative to Root with forward slashes, as stored in the
// manifest.
func (l Layout) Rel(path string) string {
	rel, err := filepath.Rel(l.Root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Abs resolves a manifest-relative path.
func (l Layout) Abs(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(l.Root, filepath.FromSlash(rel))
}

// WriteJSON writes v as indented JSON to path atomically: readers see either
// the previous file or the complete new one.
func WriteJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	b = append(b, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ReadDay loads a day artifact.
func ReadDay(path string) (*model.DayRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d model.DayRecord
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return &d, nil
}

// LoadMemory reads continuity memory from path. A missing file yields empty
// memory.
func LoadMemory(path string) (*memory.Memory, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return memory.Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read memory: %w", err)
	}
	return memory.Decode(b)
}

// SaveMemory writes continuity memory to path atomically.
func SaveMemory(path string, m *memory.Memory) error {
	return WriteJSON(path, m)
}
