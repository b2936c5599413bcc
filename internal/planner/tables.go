package planner

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

//go:embed tables.json
var defaultTablesJSON []byte

// Tables holds the static per-age lookup data the planner reads.
type Tables struct {
	Tiers      []Tier      `json:"tiers"`
	Guidelines []Guideline `json:"guidelines"`
}

// Tier is the developmental profile for one year of age.
type Tier struct {
	Age               int      `json:"age"`
	Name              string   `json:"name"`
	SleepHours        []int    `json:"sleep_hours"`
	MaxSentenceLength int      `json:"max_sentence_length"`
	LanguageForbidden []string `json:"language_forbidden"`
	Cognitive         []string `json:"cognitive_abilities"`
	Activities        []string `json:"typical_activities"`
	Forbidden         []string `json:"forbidden_patterns"`
}

// Guideline is behavioural guidance for ages below MaxWeeks. A zero MaxWeeks
// matches every age and must come last.
type Guideline struct {
	MaxWeeks int    `json:"max_weeks"`
	Text     string `json:"text"`
}

var (
	defaultOnce   sync.Once
	defaultTables *Tables
	defaultErr    error
)

// DefaultTables returns the built-in tables, parsed once.
func DefaultTables() (*Tables, error) {
	defaultOnce.Do(func() {
		defaultTables, defaultErr = parseTables(defaultTablesJSON)
	})
	return defaultTables, defaultErr
}

// LoadTables reads tables from path, or returns the defaults when path is
// empty.
func LoadTables(path string) (*Tables, error) {
	if path == "" {
		return DefaultTables()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tables: %w", err)
	}
	return parseTables(b)
}

func parseTables(b []byte) (*Tables, error) {
	var t Tables
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("parse tables: %w", err)
	}
	if len(t.Tiers) == 0 {
		return nil, fmt.Errorf("parse tables: no tiers")
	}
	for i, tier := range t.Tiers {
		if tier.Age != i {
			return nil, fmt.Errorf("parse tables: tier %d has age %d", i, tier.Age)
		}
		for _, h := range tier.SleepHours {
			if h < 0 || h > 23 {
				return nil, fmt.Errorf("parse tables: tier %d sleep hour %d", i, h)
			}
		}
	}
	return &t, nil
}

// Tier returns the profile for ageYears, clamped to the table's range.
func (t *Tables) Tier(ageYears int) Tier {
	if ageYears < 0 {
		ageYears = 0
	}
	if ageYears >= len(t.Tiers) {
		ageYears = len(t.Tiers) - 1
	}
	return t.Tiers[ageYears]
}

// Guideline returns the guidance text for an age in weeks.
func (t *Tables) Guideline(ageWeeks int) string {
	for _, g := range t.Guidelines {
		if g.MaxWeeks == 0 || ageWeeks < g.MaxWeeks {
			return g.Text
		}
	}
	return ""
}

// Asleep reports whether hour is a sleep hour for the tier.
func (tier Tier) Asleep(hour int) bool {
	for _, h := range tier.SleepHours {
		if h == hour {
			return true
		}
	}
	return false
}
