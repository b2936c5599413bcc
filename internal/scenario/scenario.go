// Package scenario loads and validates scenario and timeline inputs.
package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rcliao/monologue/internal/model"
)

// DateLayout is the calendar date format used throughout.
const DateLayout = "2006-01-02"

// MaxYears is the span of life the weekly timeline covers.
const MaxYears = 5

// ErrInvalidInput marks errors caused by bad user input. Generation never
// starts when one is returned.
var ErrInvalidInput = errors.New("invalid input")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, invalid("date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// Load reads a scenario file and validates it.
func Load(path string) (*model.Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var sc model.Scenario
	if err := json.Unmarshal(b, &sc); err != nil {
		return nil, invalid("scenario %s: %v", filepath.Base(path), err)
	}
	if err := Validate(&sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks the fields generation depends on and fills defaults.
func Validate(sc *model.Scenario) error {
	if sc.MonologueID == "" {
		return invalid("scenario: monologue_id is required")
	}
	if sc.Child.Name == "" {
		return invalid("scenario: child_profile.name is required")
	}
	if _, err := time.Parse(DateLayout, sc.Child.Birthdate); err != nil {
		return invalid("scenario: child_profile.birthdate %q: want YYYY-MM-DD", sc.Child.Birthdate)
	}
	if len(sc.Caregivers) == 0 {
		return invalid("scenario: at least one caregiver is required")
	}
	for i, c := range sc.Caregivers {
		if c.Name == "" {
			return invalid("scenario: caregivers[%d].name is required", i)
		}
	}
	if sc.Environment.HomeType == "" {
		sc.Environment.HomeType = "apartment"
	}
	if sc.Environment.City == "" {
		sc.Environment.City = "Unknown"
	}
	return nil
}

// Birthdate returns the parsed birthdate of a validated scenario.
func Birthdate(sc *model.Scenario) time.Time {
	t, _ := time.Parse(DateLayout, sc.Child.Birthdate)
	return t
}

// CheckDate rejects dates outside the span the timeline covers.
func CheckDate(sc *model.Scenario, date time.Time) error {
	birth := Birthdate(sc)
	if date.Before(birth) {
		return invalid("date %s is before birthdate %s", date.Format(DateLayout), sc.Child.Birthdate)
	}
	if !date.Before(birth.AddDate(MaxYears, 0, 0)) {
		return invalid("date %s is beyond year %d of the timeline", date.Format(DateLayout), MaxYears)
	}
	return nil
}

// LoadTimeline reads a weekly timeline file. An empty path yields an empty
// timeline so every week uses the default context.
func LoadTimeline(path string) (*model.WeeklyTimeline, error) {
	if path == "" {
		return &model.WeeklyTimeline{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read timeline: %w", err)
	}
	var tl model.WeeklyTimeline
	if err := json.Unmarshal(b, &tl); err != nil {
		return nil, invalid("timeline %s: %v", filepath.Base(path), err)
	}
	seen := make(map[int]bool, len(tl.Weeks))
	for i, w := range tl.Weeks {
		if w.WeekIndex < 1 {
			return nil, invalid("timeline: weekly_timeline[%d].week_index must be >= 1", i)
		}
		if seen[w.WeekIndex] {
			return nil, invalid("timeline: duplicate week_index %d", w.WeekIndex)
		}
		seen[w.WeekIndex] = true
	}
	return &tl, nil
}

// ResolveTimeline picks the timeline path: an explicit path wins, then the
// scenario's weekly_plan_file relative to the scenario file.
func ResolveTimeline(explicit, scenarioPath string, sc *model.Scenario) string {
	if explicit != "" {
		return explicit
	}
	if sc.Timeline.WeeklyPlanFile == "" {
		return ""
	}
	if filepath.IsAbs(sc.Timeline.WeeklyPlanFile) {
		return sc.Timeline.WeeklyPlanFile
	}
	return filepath.Join(filepath.Dir(scenarioPath), sc.Timeline.WeeklyPlanFile)
}
