package recovery

import (
	"strings"

	"github.com/rcliao/monologue/internal/model"
)

// placeholderPrefix marks text standing in for content the service never
// produced.
const placeholderPrefix = "Partial data - "

// Schema binds the recovery strategies to one stage's entry type.
type Schema[E model.Entry[E]] struct {
	Stage model.Stage

	// ListKey is the envelope field holding the entry array.
	ListKey string

	// Fill replaces blank fields with placeholder text and reports whether
	// anything changed.
	Fill func(e E) (E, bool)

	// Placeholder builds a fully placeholder entry for a missing minute.
	Placeholder func(minute int) E

	// Template builds a synthetic entry from the time-of-day templates.
	Template func(hour, minute int) E
}

func fillString(dst *string, text string) bool {
	if strings.TrimSpace(*dst) != "" {
		return false
	}
	*dst = text
	return true
}

// ExternalSchema describes external-stage entries.
func ExternalSchema() Schema[model.ExternalEntry] {
	fill := func(e model.ExternalEntry) (model.ExternalEntry, bool) {
		changed := false
		changed = fillString(&e.Environment, placeholderPrefix+"environment details") || changed
		changed = fillString(&e.CaregiverActions, placeholderPrefix+"caregiver actions") || changed
		changed = fillString(&e.ObjectsPresent, placeholderPrefix+"objects present") || changed
		changed = fillString(&e.SensoryStimuli, placeholderPrefix+"sensory stimuli") || changed
		changed = fillString(&e.RoutineActivity, placeholderPrefix+"routine activity") || changed
		changed = fillString(&e.ExternalEvents, placeholderPrefix+"external events") || changed
		return e, changed
	}
	return Schema[model.ExternalEntry]{
		Stage:   model.StageExternal,
		ListKey: "external_reality",
		Fill:    fill,
		Placeholder: func(minute int) model.ExternalEntry {
			e, _ := fill(model.ExternalEntry{Minute: minute})
			return e
		},
		Template: externalTemplate,
	}
}

// InternalSchema describes internal-stage entries.
func InternalSchema() Schema[model.InternalEntry] {
	fill := func(e model.InternalEntry) (model.InternalEntry, bool) {
		c, l := &e.Components, &e.Labels
		changed := false
		changed = fillString(&c.SensoryPerception, placeholderPrefix+"sensory perception") || changed
		changed = fillString(&c.Interoception, placeholderPrefix+"interoception") || changed
		changed = fillString(&c.AttentionFocus, placeholderPrefix+"attention focus") || changed
		changed = fillString(&c.IntentionMotive, placeholderPrefix+"intention motive") || changed
		changed = fillString(&c.SocialInteraction, placeholderPrefix+"social interaction") || changed
		changed = fillString(&c.Vocalization, placeholderPrefix+"vocalization") || changed
		changed = fillString(&c.MotorBehavior, placeholderPrefix+"motor behavior") || changed
		changed = fillString(&c.EmotionalExpression, placeholderPrefix+"emotional expression") || changed
		changed = fillString(&c.EnvironmentalLearning, placeholderPrefix+"environmental learning") || changed
		changed = fillString(&c.ReflectiveAwareness, placeholderPrefix+"reflective awareness") || changed
		changed = fillString(&l.ArousalLevel, "medium") || changed
		changed = fillString(&l.DominantEmotion, "neutral") || changed
		changed = fillString(&l.CognitiveLoad, "low") || changed
		changed = fillString(&l.SocialContext, "alone") || changed
		return e, changed
	}
	return Schema[model.InternalEntry]{
		Stage:   model.StageInternal,
		ListKey: "entries",
		Fill:    fill,
		Placeholder: func(minute int) model.InternalEntry {
			e, _ := fill(model.InternalEntry{Minute: minute})
			return e
		},
		Template: internalTemplate,
	}
}

// IsPlaceholder reports whether text was produced by Fill or Placeholder.
func IsPlaceholder(text string) bool {
	return strings.HasPrefix(text, placeholderPrefix)
}
