package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/monologue/internal/model"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	ids *idSource
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db, ids: newIDSource()}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// idSource hands out ULIDs; ulid entropy readers are not safe for concurrent
// use.
type idSource struct {
	mu      sync.Mutex
	entropy *rand.Rand
}

func newIDSource() *idSource {
	return &idSource{entropy: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (g *idSource) newID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS units (
		hash            TEXT PRIMARY KEY,
		monologue_id    TEXT NOT NULL,
		date            TEXT NOT NULL,
		hour            INTEGER NOT NULL,
		external_source TEXT NOT NULL,
		internal_source TEXT NOT NULL,
		payload         TEXT NOT NULL,
		created_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_units_day ON units(monologue_id, date);

	CREATE TABLE IF NOT EXISTS runs (
		id           TEXT PRIMARY KEY,
		kind         TEXT NOT NULL,
		monologue_id TEXT NOT NULL,
		start_date   TEXT NOT NULL,
		status       TEXT NOT NULL,
		days         INTEGER NOT NULL DEFAULT 0,
		service      INTEGER NOT NULL DEFAULT 0,
		repaired     INTEGER NOT NULL DEFAULT 0,
		fallback     INTEGER NOT NULL DEFAULT 0,
		error        TEXT,
		started_at   TEXT NOT NULL,
		finished_at  TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) GetUnit(ctx context.Context, hash string) (*model.HourPair, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM units WHERE hash = ?`, hash).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get unit: %w", err)
	}
	var pair model.HourPair
	if err := json.Unmarshal([]byte(payload), &pair); err != nil {
		return nil, false, fmt.Errorf("decode unit %s: %w", hash, err)
	}
	return &pair, true, nil
}

func (s *SQLiteStore) PutUnit(ctx context.Context, monologueID, date string, pair model.HourPair) error {
	if pair.PlanHash == "" {
		return fmt.Errorf("put unit: hour %d has no plan hash", pair.Hour)
	}
	b, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("encode unit: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO units (hash, monologue_id, date, hour, external_source, internal_source, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(hash) DO UPDATE SET
		   external_source = excluded.external_source,
		   internal_source = excluded.internal_source,
		   payload = excluded.payload,
		   created_at = excluded.created_at`,
		pair.PlanHash, monologueID, date, pair.Hour,
		string(pair.External.Source), string(pair.Internal.Source), string(b),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("put unit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) StartRun(ctx context.Context, p RunParams) (string, error) {
	id := s.ids.newID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, monologue_id, start_date, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, p.Kind, p.MonologueID, p.StartDate, RunRunning, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, id string, r RunResult) error {
	var errText *string
	if r.Error != "" {
		errText = &r.Error
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, days = ?, service = ?, repaired = ?, fallback = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		r.Status, r.Days, r.Units.Service, r.Units.Repaired, r.Units.Fallback, errText,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, monologue_id, start_date, status, days, service, repaired, fallback,
		        error, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var errText, finishedAt sql.NullString
	var startedAt string

	err := row.Scan(
		&r.ID, &r.Kind, &r.MonologueID, &r.StartDate, &r.Status, &r.Days,
		&r.Units.Service, &r.Units.Repaired, &r.Units.Fallback,
		&errText, &startedAt, &finishedAt,
	)
	if err != nil {
		return r, err
	}

	r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if errText.Valid {
		r.Error = errText.String
	}
	if finishedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, finishedAt.String)
		r.FinishedAt = &t
	}
	return r, nil
}
