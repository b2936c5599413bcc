package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rcliao/monologue/internal/model"
)

// maxManifestLine bounds a single manifest record.
const maxManifestLine = 1 << 20

// Manifest is the append-only JSONL index of persisted day artifacts.
type Manifest struct {
	path string
	ids  *idSource

	mu sync.Mutex
}

// OpenManifest returns the manifest at path. The file is created on first
// append.
func OpenManifest(path string) *Manifest {
	return &Manifest{path: path, ids: newIDSource()}
}

// Path returns the manifest file path.
func (m *Manifest) Path() string { return m.path }

// Append writes e as one line. An empty ID or CreatedAt is filled in; the
// completed entry is returned.
func (m *Manifest) Append(e model.ManifestEntry) (model.ManifestEntry, error) {
	if e.ID == "" {
		e.ID = m.ids.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	line, err := json.Marshal(e)
	if err != nil {
		return e, fmt.Errorf("encode manifest entry: %w", err)
	}
	line = append(line, '\n')

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return e, fmt.Errorf("create manifest dir: %w", err)
	}
	f, err := os.OpenFile(m.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return e, fmt.Errorf("open manifest: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return e, fmt.Errorf("append manifest: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return e, fmt.Errorf("sync manifest: %w", err)
	}
	return e, f.Close()
}

// Entries returns every record in file order. A missing manifest is empty.
// A torn final line from an interrupted append is ignored.
func (m *Manifest) Entries() ([]model.ManifestEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var entries []model.ManifestEntry
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), maxManifestLine)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var e model.ManifestEntry
		if err := json.Unmarshal(line, &e); err != nil {
			if !bytes.HasSuffix(b, []byte("\n")) && isLastLine(b, lineNo) {
				break
			}
			return nil, fmt.Errorf("manifest line %d: %w", lineNo, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan manifest: %w", err)
	}
	return entries, nil
}

func isLastLine(b []byte, lineNo int) bool {
	return bytes.Count(b, []byte("\n"))+1 == lineNo
}

// Latest returns the newest entry for (monologueID, date).
func (m *Manifest) Latest(monologueID, date string) (model.ManifestEntry, bool, error) {
	entries, err := m.Entries()
	if err != nil {
		return model.ManifestEntry{}, false, err
	}
	var found model.ManifestEntry
	ok := false
	for _, e := range entries {
		if e.MonologueID == monologueID && e.Date == date {
			found, ok = e, true
		}
	}
	return found, ok, nil
}

// CountFixes returns how many fix entries exist for (monologueID, date).
func (m *Manifest) CountFixes(monologueID, date string) (int, error) {
	return m.count(monologueID, date, func(e model.ManifestEntry) bool { return e.FixOf != "" })
}

// CountGenerated returns how many full generations, the first run plus any
// forced regenerations, exist for (monologueID, date).
func (m *Manifest) CountGenerated(monologueID, date string) (int, error) {
	return m.count(monologueID, date, func(e model.ManifestEntry) bool { return e.FixOf == "" })
}

func (m *Manifest) count(monologueID, date string, keep func(model.ManifestEntry) bool) (int, error) {
	entries, err := m.Entries()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.MonologueID == monologueID && e.Date == date && keep(e) {
			n++
		}
	}
	return n, nil
}

// LatestPerDay keeps the last entry per (monologue, date), ordered by date
// then monologue id.
func LatestPerDay(entries []model.ManifestEntry) []model.ManifestEntry {
	type key struct{ id, date string }
	latest := make(map[key]model.ManifestEntry)
	for _, e := range entries {
		latest[key{e.MonologueID, e.Date}] = e
	}
	out := make([]model.ManifestEntry, 0, len(latest))
	for _, e := range latest {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].MonologueID < out[j].MonologueID
	})
	return out
}
