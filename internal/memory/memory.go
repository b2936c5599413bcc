// Package memory holds the continuity state carried between chunks and days.
//
// A Memory is owned by a single writer (the orchestrator) and mutated only
// between chunks. Prompt builders read an immutable Snapshot.
package memory

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/rcliao/monologue/internal/model"
	"github.com/rcliao/monologue/internal/recovery"
)

// Bounds on the rolling fields.
const (
	MaxMilestones = 5
	MaxActivities = 10
	MaxRoutines   = 15
	MaxHistory    = 48
)

// DefaultSocial is the social summary used before any interaction has been
// observed.
const DefaultSocial = "basic caregiver interaction"

// HistoryEntry records what one chunk contributed.
type HistoryEntry struct {
	Date       string   `json:"date"`
	HourRange  string   `json:"hour_range"`
	Milestones []string `json:"milestones"`
	Activities []string `json:"activities"`
}

// Memory is the bounded continuity state.
type Memory struct {
	RecentMilestones  []string       `json:"recent_milestones"`
	RecentActivities  []string       `json:"recent_activities"`
	CurrentRoutines   []string       `json:"current_routines"`
	RecentSocial      string         `json:"recent_social"`
	LastGeneratedDate string         `json:"last_generated_date,omitempty"`
	LastGeneratedHour *int           `json:"last_generated_hour"`
	GenerationHistory []HistoryEntry `json:"generation_history"`
}

// Default returns empty memory.
func Default() *Memory {
	return &Memory{
		RecentMilestones:  []string{},
		RecentActivities:  []string{},
		CurrentRoutines:   []string{},
		RecentSocial:      DefaultSocial,
		GenerationHistory: []HistoryEntry{},
	}
}

// Reset clears m back to Default.
func (m *Memory) Reset() { *m = *Default() }

// Empty reports whether nothing has been recorded yet.
func (m *Memory) Empty() bool {
	return len(m.GenerationHistory) == 0 && m.LastGeneratedHour == nil
}

// HourRange formats a chunk's inclusive hour range.
func HourRange(start, end int) string { return fmt.Sprintf("%d-%d", start, end) }

// Update folds the internal results of one chunk into m. Fallback entries and
// placeholder text are ignored. Applying the same (date, range) twice is a
// no-op.
func (m *Memory) Update(date string, start, end int, results []model.InternalResult) {
	rng := HourRange(start, end)
	for _, h := range m.GenerationHistory {
		if h.Date == date && h.HourRange == rng {
			return
		}
	}

	var milestones, activities, routines []string
	social := ""
	for _, r := range results {
		for _, e := range r.Entries {
			if e.Source == model.SourceFallback {
				continue
			}
			c := e.Components
			if usable(c.MotorBehavior) && strings.Contains(strings.ToLower(c.MotorBehavior), "first") {
				milestones = append(milestones, c.MotorBehavior)
			}
			if usable(c.EnvironmentalLearning) {
				activities = append(activities, c.EnvironmentalLearning)
			}
			if usable(c.SocialInteraction) {
				routines = append(routines, c.SocialInteraction)
				if strings.Contains(strings.ToLower(c.SocialInteraction), "caregiver") {
					social = c.SocialInteraction
				}
			}
		}
	}

	m.RecentMilestones = tail(append(m.RecentMilestones, milestones...), MaxMilestones)
	m.RecentActivities = tail(append(m.RecentActivities, activities...), MaxActivities)
	for _, r := range routines {
		m.CurrentRoutines = addUnique(m.CurrentRoutines, r)
	}
	m.CurrentRoutines = tail(m.CurrentRoutines, MaxRoutines)
	if social != "" {
		m.RecentSocial = social
	} else if m.RecentSocial == "" {
		m.RecentSocial = DefaultSocial
	}

	hour := end
	m.LastGeneratedHour = &hour
	m.LastGeneratedDate = date
	m.GenerationHistory = append(m.GenerationHistory, HistoryEntry{
		Date:       date,
		HourRange:  rng,
		Milestones: nonNil(tail(milestones, MaxMilestones)),
		Activities: nonNil(tail(activities, MaxActivities)),
	})
	m.GenerationHistory = tail(m.GenerationHistory, MaxHistory)
}

// Snapshot returns a deep copy of m.
func (m *Memory) Snapshot() Memory {
	s := Memory{
		RecentMilestones:  slices.Clone(m.RecentMilestones),
		RecentActivities:  slices.Clone(m.RecentActivities),
		CurrentRoutines:   slices.Clone(m.CurrentRoutines),
		RecentSocial:      m.RecentSocial,
		LastGeneratedDate: m.LastGeneratedDate,
		GenerationHistory: make([]HistoryEntry, len(m.GenerationHistory)),
	}
	if m.LastGeneratedHour != nil {
		h := *m.LastGeneratedHour
		s.LastGeneratedHour = &h
	}
	for i, h := range m.GenerationHistory {
		h.Milestones = slices.Clone(h.Milestones)
		h.Activities = slices.Clone(h.Activities)
		s.GenerationHistory[i] = h
	}
	return s
}

// JSON encodes m for embedding in a day record.
func (m *Memory) JSON() (json.RawMessage, error) {
	return json.Marshal(m)
}

// Decode parses persisted memory, filling empty fields with defaults and
// re-applying bounds.
func Decode(data []byte) (*Memory, error) {
	m := Default()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decode memory: %w", err)
	}
	m.RecentMilestones = nonNil(tail(m.RecentMilestones, MaxMilestones))
	m.RecentActivities = nonNil(tail(m.RecentActivities, MaxActivities))
	m.CurrentRoutines = nonNil(tail(m.CurrentRoutines, MaxRoutines))
	if m.GenerationHistory == nil {
		m.GenerationHistory = []HistoryEntry{}
	}
	m.GenerationHistory = tail(m.GenerationHistory, MaxHistory)
	if m.RecentSocial == "" {
		m.RecentSocial = DefaultSocial
	}
	return m, nil
}

func usable(s string) bool {
	return strings.TrimSpace(s) != "" && !recovery.IsPlaceholder(s)
}

// tail keeps the last n elements.
func tail[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return slices.Clone(s[len(s)-n:])
}

// addUnique appends v, moving it to the end if already present.
func addUnique(s []string, v string) []string {
	if i := slices.Index(s, v); i >= 0 {
		s = slices.Delete(s, i, i+1)
	}
	return append(s, v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
