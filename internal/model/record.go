package model

import (
	"encoding/json"
	"time"
)

// GenerationMethod tags artifacts produced by the two-pass chunk protocol.
const GenerationMethod = "chunked_two_pass"

type (
	ExternalResult = Result[ExternalEntry]
	InternalResult = Result[InternalEntry]
)

// SourceCounts tallies units or entries by source.
type SourceCounts struct {
	Service  int `json:"service"`
	Repaired int `json:"repaired"`
	Fallback int `json:"fallback"`
}

// Add increments the counter for s by n.
func (c *SourceCounts) Add(s Source, n int) {
	switch s {
	case SourceService:
		c.Service += n
	case SourceRepaired:
		c.Repaired += n
	case SourceFallback:
		c.Fallback += n
	}
}

// Merge adds o into c.
func (c *SourceCounts) Merge(o SourceCounts) {
	c.Service += o.Service
	c.Repaired += o.Repaired
	c.Fallback += o.Fallback
}

// Total returns the sum of all counters.
func (c SourceCounts) Total() int { return c.Service + c.Repaired + c.Fallback }

// HourPair holds both stages for one hour.
type HourPair struct {
	Hour     int            `json:"hour"`
	PlanHash string         `json:"plan_hash"`
	External ExternalResult `json:"external_reality"`
	Internal InternalResult `json:"internal_monologue"`
}

// Fallback reports whether either stage of the hour fell back to templates.
func (p HourPair) Fallback() bool {
	return p.External.Source == SourceFallback || p.Internal.Source == SourceFallback
}

// Provenance records how a day artifact was generated.
type Provenance struct {
	Model           string      `json:"model"`
	Provider        string      `json:"provider"`
	PromptVersion   string      `json:"prompt_version"`
	Temperature     float64     `json:"temperature"`
	Seed            int64       `json:"seed"`
	Chunks          int         `json:"chunks"`
	TimelineContext WeekContext `json:"timeline_context"`
	GeneratedAt     time.Time   `json:"generation_timestamp"`
}

// DayRecord is the persisted artifact for one simulated day. It is written
// once; a fix pass writes a new record that names the one it replaces.
type DayRecord struct {
	MonologueID      string          `json:"monologue_id"`
	Date             string          `json:"date"`
	GenerationMethod string          `json:"generation_method"`
	AgeDays          int             `json:"age_days"`
	AgeWeeks         int             `json:"age_weeks"`
	AgeYears         int             `json:"age_years"`
	WeekIndex        int             `json:"week_index"`
	Provenance       Provenance      `json:"provenance"`
	Continuity       json.RawMessage `json:"continuity_snapshot,omitempty"`
	Hours            []HourPair      `json:"hours"`
	Units            SourceCounts    `json:"unit_sources"`
	Entries          SourceCounts    `json:"entry_sources"`
	FixOf            string          `json:"fix_of,omitempty"`
}

// Minutes returns the number of minutes the record covers.
func (d *DayRecord) Minutes() int { return len(d.Hours) * MinutesPerHour }

// Tally recomputes the unit and entry counters from the hours.
func (d *DayRecord) Tally() {
	d.Units, d.Entries = SourceCounts{}, SourceCounts{}
	for _, h := range d.Hours {
		d.Units.Add(h.External.Source, 1)
		d.Units.Add(h.Internal.Source, 1)
		d.Entries.Merge(h.External.Counts())
		d.Entries.Merge(h.Internal.Counts())
	}
}

// ManifestEntry is one line of the append-only manifest.
type ManifestEntry struct {
	ID          string       `json:"id"`
	MonologueID string       `json:"monologue_id"`
	Date        string       `json:"date"`
	File        string       `json:"file"`
	Minutes     int          `json:"minutes"`
	Units       SourceCounts `json:"unit_sources"`
	Provenance  Provenance   `json:"provenance"`
	FixOf       string       `json:"fix_of,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// DayFailure records a day that could not be generated.
type DayFailure struct {
	Date  string `json:"date"`
	Error string `json:"error"`
}

// WeekSummary aggregates a run of consecutive days.
type WeekSummary struct {
	MonologueID   string       `json:"monologue_id"`
	StartDate     string       `json:"start_date"`
	AgeRange      [2]int       `json:"age_range_weeks"`
	Milestones    []string     `json:"milestones"`
	Activities    []string     `json:"activities"`
	DaysGenerated []string     `json:"days_generated"`
	Failures      []DayFailure `json:"failures,omitempty"`
	Units         SourceCounts `json:"unit_sources"`
	File          string       `json:"file,omitempty"`
}

// YearSummary aggregates one year of life.
type YearSummary struct {
	Year    int    `json:"year"`
	EndDate string `json:"end_date"`
	WeekSummary
}

// MonthSummary aggregates consecutive weeks.
type MonthSummary struct {
	MonologueID string        `json:"monologue_id"`
	StartDate   string        `json:"start_date"`
	Weeks       []WeekSummary `json:"weeks"`
	Days        int           `json:"days_generated"`
	Units       SourceCounts  `json:"unit_sources"`
	File        string        `json:"file,omitempty"`
}
