// Package planner derives the deterministic per-hour context for a day of
// generation. Planning does no I/O and uses no randomness: the same scenario,
// date, hour, timeline and tables always yield the same plan and hash.
package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/rcliao/monologue/internal/model"
	"github.com/rcliao/monologue/internal/scenario"
)

// HoursPerDay is the number of units in a planned day.
const HoursPerDay = 24

// Planner builds UnitPlans from a scenario and timeline.
type Planner struct {
	tables *Tables
}

// New returns a planner over the given tables.
func New(tables *Tables) *Planner {
	return &Planner{tables: tables}
}

// Age is the child's age on a given date.
type Age struct {
	Days      int
	Weeks     int
	Years     int
	WeekIndex int
}

// AgeOn computes the child's age on date. WeekIndex is 1-based and global
// across the whole timeline.
func AgeOn(sc *model.Scenario, date time.Time) Age {
	days := int(date.Sub(scenario.Birthdate(sc)).Hours() / 24)
	return Age{
		Days:      days,
		Weeks:     days / 7,
		Years:     days / 365,
		WeekIndex: days/7 + 1,
	}
}

// WeekContext returns the timeline record for index with missing fields
// filled from the default context.
func WeekContext(tl *model.WeeklyTimeline, index int) model.WeekContext {
	def := model.DefaultWeekContext(index)
	w, ok := tl.Week(index)
	if !ok {
		return def
	}
	if w.DevelopmentalTheme == "" {
		w.DevelopmentalTheme = def.DevelopmentalTheme
	}
	if w.CognitiveFocus == "" {
		w.CognitiveFocus = def.CognitiveFocus
	}
	if w.VocabularyPeriod == "" {
		w.VocabularyPeriod = def.VocabularyPeriod
	}
	if w.Milestones == nil {
		w.Milestones = def.Milestones
	}
	if w.VocabularyFocus == nil {
		w.VocabularyFocus = def.VocabularyFocus
	}
	if len(w.DominantEmotions) == 0 {
		w.DominantEmotions = def.DominantEmotions
	}
	if len(w.RoutineTags) == 0 {
		w.RoutineTags = def.RoutineTags
	}
	if w.ForbiddenPatterns == nil {
		w.ForbiddenPatterns = def.ForbiddenPatterns
	}
	return w
}

// PlanDay returns the 24 hour plans for date in hour order.
func (p *Planner) PlanDay(sc *model.Scenario, date time.Time, tl *model.WeeklyTimeline) ([]model.UnitPlan, error) {
	if err := scenario.CheckDate(sc, date); err != nil {
		return nil, err
	}
	plans := make([]model.UnitPlan, 0, HoursPerDay)
	for h := 0; h < HoursPerDay; h++ {
		plan, err := p.plan(sc, date, h, tl)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

// PlanHour returns the plan for a single hour of date.
func (p *Planner) PlanHour(sc *model.Scenario, date time.Time, hour int, tl *model.WeeklyTimeline) (model.UnitPlan, error) {
	if hour < 0 || hour >= HoursPerDay {
		return model.UnitPlan{}, fmt.Errorf("%w: hour %d out of range", scenario.ErrInvalidInput, hour)
	}
	if err := scenario.CheckDate(sc, date); err != nil {
		return model.UnitPlan{}, err
	}
	return p.plan(sc, date, hour, tl)
}

func (p *Planner) plan(sc *model.Scenario, date time.Time, hour int, tl *model.WeeklyTimeline) (model.UnitPlan, error) {
	age := AgeOn(sc, date)
	week := WeekContext(tl, age.WeekIndex)
	tier := p.tables.Tier(age.Years)

	sleep := model.Awake
	if tier.Asleep(hour) {
		sleep = model.Asleep
	}

	plan := model.UnitPlan{
		MonologueID: sc.MonologueID,
		Date:        date.Format(scenario.DateLayout),
		Hour:        hour,
		AgeDays:     age.Days,
		AgeWeeks:    age.Weeks,
		AgeYears:    age.Years,
		WeekIndex:   age.WeekIndex,
		Tier:        tier.Name,
		SleepState:  sleep,
		Development: week,
		Environment: model.EnvironmentContext{
			TimeOfDay:   TimeOfDay(hour),
			Season:      Season(date.Month()),
			Weather:     "typical",
			Location:    sc.Environment.HomeType,
			Temperature: "comfortable",
		},
		Social:    socialContext(sc, hour),
		Emotional: emotionalContext(sc, hour, week),
		Language: model.LanguageConstraint{
			MaxSentenceLength: tier.MaxSentenceLength,
			ForbiddenPatterns: nonNil(tier.LanguageForbidden),
		},
		Cognitive:     nonNil(tier.Cognitive),
		Activities:    nonNil(tier.Activities),
		Forbidden:     nonNil(tier.Forbidden),
		AgeGuidelines: p.tables.Guideline(age.Weeks),
	}

	hash, err := Hash(plan)
	if err != nil {
		return model.UnitPlan{}, err
	}
	plan.ContentHash = hash
	return plan, nil
}

// TimeOfDay buckets an hour. Morning wins over night at hour 6.
func TimeOfDay(hour int) string {
	switch {
	case hour >= 6 && hour <= 8:
		return "morning"
	case hour >= 12 && hour <= 14:
		return "afternoon"
	case hour >= 18 && hour <= 20:
		return "evening"
	case hour >= 22 || hour <= 6:
		return "night"
	default:
		return "day"
	}
}

// Season maps a month to a northern-hemisphere season.
func Season(m time.Month) string {
	switch m {
	case time.December, time.January, time.February:
		return "winter"
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	default:
		return "autumn"
	}
}

func socialContext(sc *model.Scenario, hour int) model.SocialContext {
	var present []string
	if (hour >= 7 && hour <= 9) || (hour >= 17 && hour <= 19) {
		for _, c := range sc.Caregivers {
			present = append(present, c.Name)
		}
	} else {
		present = []string{sc.Caregivers[0].Name}
	}
	level := "low"
	if len(present) > 0 {
		level = "high"
	}
	return model.SocialContext{
		CaregiversPresent: present,
		InteractionLevel:  level,
		OtherChildren:     []string{},
	}
}

func emotionalContext(sc *model.Scenario, hour int, week model.WeekContext) model.EmotionalContext {
	emotions := slices.Clone(week.DominantEmotions)
	if slices.Contains(sc.Child.TemperamentTags, "sensitive_to_noise") && (hour == 8 || hour == 18) {
		emotions = append(emotions, "overwhelmed")
	}
	extraversion, ok := sc.Child.Personality["extraversion"]
	if !ok {
		extraversion = 0.5
	}
	if extraversion > 0.7 {
		emotions = append(emotions, "excited")
	}
	return model.EmotionalContext{
		DominantEmotions: emotions,
		ArousalLevel:     "medium",
		Stability:        "stable",
	}
}

// Hash returns the first 16 hex characters of the sha256 of the plan's
// key-sorted JSON encoding, computed with ContentHash cleared.
func Hash(plan model.UnitPlan) (string, error) {
	plan.ContentHash = ""
	b, err := json.Marshal(plan)
	if err != nil {
		return "", fmt.Errorf("hash plan: %w", err)
	}
	// Round-trip through a generic value so object keys are emitted sorted.
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return "", fmt.Errorf("hash plan: %w", err)
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("hash plan: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:16], nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
