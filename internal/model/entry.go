package model

import (
	"fmt"
	"strings"
	"time"
)

// Source records how an entry or result was produced.
type Source string

const (
	SourceService  Source = "service"
	SourceRepaired Source = "repaired"
	SourceFallback Source = "fallback"
)

// ValidSources are the allowed source tags.
var ValidSources = map[Source]bool{
	SourceService:  true,
	SourceRepaired: true,
	SourceFallback: true,
}

// Stage names one pass of the two-pass protocol.
type Stage string

const (
	StageExternal Stage = "external"
	StageInternal Stage = "internal"
)

// MinutesPerHour is the number of entries every hour result carries.
const MinutesPerHour = 60

// Entry is the constraint shared by per-minute entries of both stages.
type Entry[E any] interface {
	MinuteIndex() int
	// MissingFields lists the schema fields that are empty.
	MissingFields() []string
	EntrySource() Source
	WithSource(Source) E
}

// ExternalEntry is one minute of observable reality around the child.
type ExternalEntry struct {
	Minute           int    `json:"minute"`
	Environment      string `json:"environment"`
	CaregiverActions string `json:"caregiver_actions"`
	ObjectsPresent   string `json:"objects_present"`
	SensoryStimuli   string `json:"sensory_stimuli"`
	RoutineActivity  string `json:"routine_activity"`
	ExternalEvents   string `json:"external_events"`
	Source           Source `json:"source,omitempty"`
}

func (e ExternalEntry) MinuteIndex() int { return e.Minute }

func (e ExternalEntry) EntrySource() Source { return e.Source }

func (e ExternalEntry) WithSource(s Source) ExternalEntry {
	e.Source = s
	return e
}

func (e ExternalEntry) MissingFields() []string {
	return missing(
		"environment", e.Environment,
		"caregiver_actions", e.CaregiverActions,
		"objects_present", e.ObjectsPresent,
		"sensory_stimuli", e.SensoryStimuli,
		"routine_activity", e.RoutineActivity,
		"external_events", e.ExternalEvents,
	)
}

// Components are the ten facets of one minute of inner experience.
type Components struct {
	SensoryPerception     string `json:"sensory_perception"`
	Interoception         string `json:"interoception"`
	AttentionFocus        string `json:"attention_focus"`
	IntentionMotive       string `json:"intention_motive"`
	SocialInteraction     string `json:"social_interaction"`
	Vocalization          string `json:"vocalization"`
	MotorBehavior         string `json:"motor_behavior"`
	EmotionalExpression   string `json:"emotional_expression"`
	EnvironmentalLearning string `json:"environmental_learning"`
	ReflectiveAwareness   string `json:"reflective_awareness"`
}

// Labels are coarse categorical tags for one minute.
type Labels struct {
	ArousalLevel    string `json:"arousal_level"`
	DominantEmotion string `json:"dominant_emotion"`
	CognitiveLoad   string `json:"cognitive_load"`
	SocialContext   string `json:"social_context"`
}

// InternalEntry is one minute of the child's inner experience.
type InternalEntry struct {
	Minute     int        `json:"minute"`
	Components Components `json:"consciousness_components"`
	Labels     Labels     `json:"labels"`
	Source     Source     `json:"source,omitempty"`
}

func (e InternalEntry) MinuteIndex() int { return e.Minute }

func (e InternalEntry) EntrySource() Source { return e.Source }

func (e InternalEntry) WithSource(s Source) InternalEntry {
	e.Source = s
	return e
}

func (e InternalEntry) MissingFields() []string {
	c, l := e.Components, e.Labels
	return missing(
		"sensory_perception", c.SensoryPerception,
		"interoception", c.Interoception,
		"attention_focus", c.AttentionFocus,
		"intention_motive", c.IntentionMotive,
		"social_interaction", c.SocialInteraction,
		"vocalization", c.Vocalization,
		"motor_behavior", c.MotorBehavior,
		"emotional_expression", c.EmotionalExpression,
		"environmental_learning", c.EnvironmentalLearning,
		"reflective_awareness", c.ReflectiveAwareness,
		"arousal_level", l.ArousalLevel,
		"dominant_emotion", l.DominantEmotion,
		"cognitive_load", l.CognitiveLoad,
		"social_context", l.SocialContext,
	)
}

// missing takes name/value pairs and returns the names whose value is blank.
func missing(pairs ...string) []string {
	var out []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			out = append(out, pairs[i])
		}
	}
	return out
}

// Result is the resolved output of one stage for one hour. Entries always
// holds exactly MinutesPerHour entries, minutes 0..59 in order.
type Result[E Entry[E]] struct {
	Hour        int       `json:"hour"`
	Stage       Stage     `json:"stage"`
	Source      Source    `json:"source"`
	Tier        string    `json:"recovery_tier,omitempty"`
	Entries     []E       `json:"entries"`
	GeneratedAt time.Time `json:"generated_at"`
	RequestID   string    `json:"request_id,omitempty"`
	Attempts    int       `json:"attempts,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Counts tallies entries by their own source tag.
func (r Result[E]) Counts() SourceCounts {
	var c SourceCounts
	for _, e := range r.Entries {
		c.Add(e.EntrySource(), 1)
	}
	return c
}

// Validate reports the first schema violation in r, or nil.
func (r Result[E]) Validate() error {
	if len(r.Entries) != MinutesPerHour {
		return &SchemaError{Hour: r.Hour, Stage: r.Stage, Minute: -1,
			Reason: fmt.Sprintf("%d entries", len(r.Entries))}
	}
	for i, e := range r.Entries {
		if e.MinuteIndex() != i {
			return &SchemaError{Hour: r.Hour, Stage: r.Stage, Minute: i, Reason: "minute out of order"}
		}
		if m := e.MissingFields(); len(m) > 0 {
			return &SchemaError{Hour: r.Hour, Stage: r.Stage, Minute: i, Reason: "empty " + m[0]}
		}
		if !ValidSources[e.EntrySource()] {
			return &SchemaError{Hour: r.Hour, Stage: r.Stage, Minute: i, Reason: "untagged entry"}
		}
	}
	if !ValidSources[r.Source] {
		return &SchemaError{Hour: r.Hour, Stage: r.Stage, Minute: -1, Reason: "invalid source " + string(r.Source)}
	}
	return nil
}

// SchemaError describes a result that breaks the per-hour schema.
type SchemaError struct {
	Hour   int
	Stage  Stage
	Minute int
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Minute < 0 {
		return fmt.Sprintf("hour %d %s: %s", e.Hour, e.Stage, e.Reason)
	}
	return fmt.Sprintf("hour %d %s minute %d: %s", e.Hour, e.Stage, e.Minute, e.Reason)
}
