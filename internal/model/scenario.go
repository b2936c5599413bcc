// Package model defines the core monologue data types.
package model

// Scenario describes one simulated child and the household around them.
type Scenario struct {
	MonologueID string            `json:"monologue_id"`
	Seed        int64             `json:"seed"`
	Language    string            `json:"language,omitempty"`
	Culture     string            `json:"culture,omitempty"`
	Child       ChildProfile      `json:"child_profile"`
	Caregivers  []Caregiver       `json:"caregivers"`
	Environment Environment       `json:"environment"`
	Timeline    TimelineConfig    `json:"timeline"`
	Style       map[string]string `json:"style,omitempty"`
}

// ChildProfile holds the child's fixed characteristics.
type ChildProfile struct {
	Name            string             `json:"name"`
	Birthdate       string             `json:"birthdate"`
	Sex             string             `json:"sex,omitempty"`
	Personality     map[string]float64 `json:"personality,omitempty"`
	TemperamentTags []string           `json:"temperament_tags,omitempty"`
	SpecialNeeds    []string           `json:"special_needs,omitempty"`
}

// Caregiver is an adult who looks after the child. The first caregiver in a
// scenario is the primary one.
type Caregiver struct {
	Name     string `json:"name"`
	Relation string `json:"relation"`
	Age      int    `json:"age,omitempty"`
}

// Environment is the household setting.
type Environment struct {
	HomeType           string   `json:"home_type"`
	City               string   `json:"city"`
	Timezone           string   `json:"timezone,omitempty"`
	SocioeconomicState string   `json:"socioeconomic_status,omitempty"`
	CulturalBackground string   `json:"cultural_background,omitempty"`
	Siblings           []string `json:"siblings,omitempty"`
}

// TimelineConfig points a scenario at its weekly timeline.
type TimelineConfig struct {
	WeeklyPlanFile  string      `json:"weekly_plan_file,omitempty"`
	VocabularyBands map[int]int `json:"vocabulary_bands,omitempty"`
}

// WeeklyTimeline is the master developmental timeline, one record per week of
// life.
type WeeklyTimeline struct {
	Weeks []WeekContext `json:"weekly_timeline"`
}

// WeekContext is the developmental snapshot for one week of life.
type WeekContext struct {
	WeekIndex          int      `json:"week_index"`
	Year               int      `json:"year"`
	DevelopmentalTheme string   `json:"developmental_theme"`
	VocabularyPeriod   string   `json:"vocabulary_period"`
	Milestones         []string `json:"milestones"`
	DominantEmotions   []string `json:"dominant_emotions"`
	RoutineTags        []string `json:"routine_tags"`
	NewSocialActors    []string `json:"new_social_actors,omitempty"`
	VocabularyFocus    []string `json:"vocabulary_focus"`
	CognitiveFocus     string   `json:"cognitive_focus"`
	EnvironmentNotes   []string `json:"environment_notes,omitempty"`
	HealthState        string   `json:"health_state,omitempty"`
	ForbiddenPatterns  []string `json:"forbidden_patterns,omitempty"`
}

// Week returns the record for the 1-based global week index.
func (t *WeeklyTimeline) Week(index int) (WeekContext, bool) {
	if t == nil {
		return WeekContext{}, false
	}
	for _, w := range t.Weeks {
		if w.WeekIndex == index {
			return w, true
		}
	}
	return WeekContext{}, false
}

// DefaultWeekContext is used when the timeline has no record for a week.
func DefaultWeekContext(index int) WeekContext {
	return WeekContext{
		WeekIndex:          index,
		DevelopmentalTheme: "sensory_integration",
		VocabularyPeriod:   "1.1",
		Milestones:         []string{},
		DominantEmotions:   []string{"curiosity"},
		RoutineTags:        []string{"daily routine"},
		VocabularyFocus:    []string{},
		CognitiveFocus:     "pattern_recognition",
		ForbiddenPatterns:  []string{"complex_sentences", "abstract_concepts"},
	}
}
