package model

// Sleep states.
const (
	Asleep = "asleep"
	Awake  = "awake"
)

// UnitPlan is the deterministic context for one hour of one day. It is a pure
// function of its inputs; ContentHash identifies it across runs.
type UnitPlan struct {
	MonologueID   string             `json:"monologue_id"`
	Date          string             `json:"date"`
	Hour          int                `json:"hour"`
	AgeDays       int                `json:"age_days"`
	AgeWeeks      int                `json:"age_weeks"`
	AgeYears      int                `json:"age_years"`
	WeekIndex     int                `json:"week_index"`
	Tier          string             `json:"developmental_stage"`
	SleepState    string             `json:"sleep_state"`
	Development   WeekContext        `json:"developmental_context"`
	Environment   EnvironmentContext `json:"environmental_context"`
	Social        SocialContext      `json:"social_context"`
	Emotional     EmotionalContext   `json:"emotional_context"`
	Language      LanguageConstraint `json:"language_constraints"`
	Cognitive     []string           `json:"cognitive_abilities"`
	Activities    []string           `json:"typical_activities"`
	Forbidden     []string           `json:"forbidden_patterns"`
	AgeGuidelines string             `json:"age_guidelines"`
	ContentHash   string             `json:"content_hash"`
}

// EnvironmentContext is the derived physical setting for an hour.
type EnvironmentContext struct {
	TimeOfDay   string `json:"time_of_day"`
	Season      string `json:"season"`
	Weather     string `json:"weather"`
	Location    string `json:"location"`
	Temperature string `json:"temperature"`
}

// SocialContext records who is around during an hour.
type SocialContext struct {
	CaregiversPresent []string `json:"caregivers_present"`
	InteractionLevel  string   `json:"interaction_level"`
	OtherChildren     []string `json:"other_children"`
}

// EmotionalContext is the expected emotional tone for an hour.
type EmotionalContext struct {
	DominantEmotions []string `json:"dominant_emotions"`
	ArousalLevel     string   `json:"arousal_level"`
	Stability        string   `json:"emotional_stability"`
}

// LanguageConstraint bounds what the child can say at this age.
type LanguageConstraint struct {
	MaxSentenceLength int      `json:"max_sentence_length"`
	ForbiddenPatterns []string `json:"forbidden_patterns"`
}

// Asleep reports whether the plan expects the child to be sleeping.
func (p UnitPlan) Asleep() bool { return p.SleepState == Asleep }
