package store

import (
	"context"
	"os"

	"github.com/rcliao/monologue/internal/model"
)

// TokensPerMinute is the rough service token cost of one generated minute.
const TokensPerMinute = 75

// Stats holds output and cache statistics.
type Stats struct {
	DBPath          string             `json:"db_path,omitempty"`
	DBSizeBytes     int64              `json:"db_size_bytes"`
	CachedUnits     int                `json:"cached_units"`
	Runs            int                `json:"runs"`
	Days            int                `json:"days"`
	Fixes           int                `json:"fixes"`
	Minutes         int                `json:"total_minutes"`
	FirstDate       string             `json:"first_date,omitempty"`
	LastDate        string             `json:"last_date,omitempty"`
	Units           model.SourceCounts `json:"unit_sources"`
	EstimatedTokens int                `json:"estimated_tokens"`
	Monologues      []MonologueStats   `json:"monologues"`
}

// MonologueStats holds per-monologue counts.
type MonologueStats struct {
	MonologueID string `json:"monologue_id"`
	Days        int    `json:"days"`
}

// ManifestStats summarises the newest entry per day.
func ManifestStats(entries []model.ManifestEntry) *Stats {
	st := &Stats{Monologues: []MonologueStats{}}
	for _, e := range entries {
		if e.FixOf != "" {
			st.Fixes++
		}
	}

	perMonologue := map[string]int{}
	var order []string
	for _, e := range LatestPerDay(entries) {
		st.Days++
		st.Minutes += e.Minutes
		st.Units.Merge(e.Units)
		if st.FirstDate == "" || e.Date < st.FirstDate {
			st.FirstDate = e.Date
		}
		if e.Date > st.LastDate {
			st.LastDate = e.Date
		}
		if _, ok := perMonologue[e.MonologueID]; !ok {
			order = append(order, e.MonologueID)
		}
		perMonologue[e.MonologueID]++
	}
	for _, id := range order {
		st.Monologues = append(st.Monologues, MonologueStats{MonologueID: id, Days: perMonologue[id]})
	}
	st.EstimatedTokens = st.Minutes * TokensPerMinute
	return st
}

// AddDB fills in cache and ledger counts.
func (s *SQLiteStore) AddDB(ctx context.Context, st *Stats, dbPath string) error {
	st.DBPath = dbPath
	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM units`).Scan(&st.CachedUnits); err != nil {
		return err
	}
	return s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&st.Runs)
}
