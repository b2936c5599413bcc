// Package store persists generation output: day artifacts and the manifest
// on the filesystem, and the hour cache and run ledger in SQLite.
package store

import (
	"context"
	"time"

	"github.com/rcliao/monologue/internal/model"
)

// Run statuses.
const (
	RunRunning = "running"
	RunDone    = "done"
	RunFailed  = "failed"
)

// RunParams describes a generation run being started.
type RunParams struct {
	Kind        string // day, week, month or fix
	MonologueID string
	StartDate   string
}

// RunResult is recorded when a run finishes.
type RunResult struct {
	Status string
	Days   int
	Units  model.SourceCounts
	Error  string
}

// Run is one row of the run ledger.
type Run struct {
	ID          string             `json:"id"`
	Kind        string             `json:"kind"`
	MonologueID string             `json:"monologue_id"`
	StartDate   string             `json:"start_date"`
	Status      string             `json:"status"`
	Days        int                `json:"days"`
	Units       model.SourceCounts `json:"unit_sources"`
	Error       string             `json:"error,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
}

// Store defines the cache and ledger interface.
type Store interface {
	// GetUnit returns the cached pair for a plan content hash.
	GetUnit(ctx context.Context, hash string) (*model.HourPair, bool, error)

	// PutUnit caches a resolved pair under its plan hash.
	PutUnit(ctx context.Context, monologueID, date string, pair model.HourPair) error

	// StartRun records a new run and returns its id.
	StartRun(ctx context.Context, p RunParams) (string, error)

	// FinishRun records the outcome of a run.
	FinishRun(ctx context.Context, id string, r RunResult) error

	// ListRuns returns the most recent runs first.
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Close closes the store.
	Close() error
}
