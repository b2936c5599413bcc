package recovery

import "github.com/rcliao/monologue/internal/model"

// Fallback content is keyed by a coarse time-of-day band and rotates through
// variants by minute so synthetic hours are not sixty identical lines.
const variants = 3

type band int

const (
	bandNight band = iota
	bandMorning
	bandAfternoon
	bandEvening
)

func bandOf(hour int) band {
	switch {
	case hour < 6:
		return bandNight
	case hour < 12:
		return bandMorning
	case hour < 18:
		return bandAfternoon
	default:
		return bandEvening
	}
}

type externalTmpl struct {
	environment string
	caregiver   string
	activities  [variants]string
	stimuli     [variants]string
}

var externalTemplates = map[band]externalTmpl{
	bandNight: {
		environment: "Dark, quiet nursery with minimal stimulation",
		caregiver:   "Occasional gentle check-ins, minimal intervention",
		activities:  [variants]string{"Deep sleep", "Light sleep, shifting position", "Deep sleep"},
		stimuli:     [variants]string{"Soft white noise", "Faint night light glow", "Quiet breathing sounds"},
	},
	bandMorning: {
		environment: "Soft morning light, comfortable temperature",
		caregiver:   "Gentle feeding, diaper changes, soft talking",
		activities:  [variants]string{"Feeding and gentle wake-up routine", "Diaper change and dressing", "Cuddling after feeding"},
		stimuli:     [variants]string{"Morning light through curtains", "Warm milk smell", "Caregiver's soft voice"},
	},
	bandAfternoon: {
		environment: "Bright, stimulating environment with toys and sounds",
		caregiver:   "Active engagement, play, tummy time, talking",
		activities:  [variants]string{"Active play and interaction", "Tummy time on the play mat", "Exploring toys with caregiver"},
		stimuli:     [variants]string{"Colorful toys and rattles", "Music playing softly", "Textured play mat"},
	},
	bandEvening: {
		environment: "Dimming lights, calming atmosphere",
		caregiver:   "Gentle rocking, soft singing, bedtime routine",
		activities:  [variants]string{"Wind-down routine and preparation for sleep", "Bath time", "Bedtime story and lullaby"},
		stimuli:     [variants]string{"Warm bath water", "Lullaby singing", "Dim lamp light"},
	},
}

func externalTemplate(hour, minute int) model.ExternalEntry {
	t := externalTemplates[bandOf(hour)]
	v := minute % variants
	return model.ExternalEntry{
		Minute:           minute,
		Environment:      t.environment,
		CaregiverActions: t.caregiver,
		ObjectsPresent:   "Age-appropriate toys, soft blankets, feeding supplies",
		SensoryStimuli:   t.stimuli[v],
		RoutineActivity:  t.activities[v],
		ExternalEvents:   "Developmentally appropriate stimulation and care",
	}
}

type internalTmpl struct {
	components model.Components
	labels     model.Labels
	motor      [variants]string
	attention  [variants]string
}

var internalTemplates = map[band]internalTmpl{
	bandNight: {
		components: model.Components{
			SensoryPerception:     "minimal sensory input, deep sleep state",
			Interoception:         "basic bodily needs, hunger cues",
			IntentionMotive:       "rest and recovery",
			SocialInteraction:     "caregiver presence and interaction",
			Vocalization:          "occasional sleep sounds",
			EmotionalExpression:   "calm and responsive",
			EnvironmentalLearning: "consolidating experiences from day",
			ReflectiveAwareness:   "minimal conscious awareness",
		},
		labels:    model.Labels{ArousalLevel: "low", DominantEmotion: "calm", CognitiveLoad: "low", SocialContext: "alone"},
		motor:     [variants]string{"minimal movement, sleep positions", "small twitch of the hands", "turning head in sleep"},
		attention: [variants]string{"internal focus, sleep cycles", "drifting between sleep stages", "internal focus, sleep cycles"},
	},
	bandMorning: {
		components: model.Components{
			SensoryPerception:     "increasing sensory awareness, morning light",
			Interoception:         "hunger, comfort needs, bodily sensations",
			IntentionMotive:       "satisfying basic needs, social connection",
			SocialInteraction:     "caregiver presence and interaction",
			Vocalization:          "cooing, babbling, feeding sounds",
			EmotionalExpression:   "alert and responsive",
			EnvironmentalLearning: "associating caregivers with comfort",
			ReflectiveAwareness:   "growing awareness of surroundings",
		},
		labels:    model.Labels{ArousalLevel: "medium", DominantEmotion: "alert", CognitiveLoad: "low", SocialContext: "with_caregivers"},
		motor:     [variants]string{"active feeding movements, eye tracking", "kicking legs", "reaching toward caregiver"},
		attention: [variants]string{"caregiver faces", "feeding activities", "light from the window"},
	},
	bandAfternoon: {
		components: model.Components{
			SensoryPerception:     "rich sensory input, visual and auditory stimulation",
			Interoception:         "comfortable, alert bodily state",
			IntentionMotive:       "exploration, play, social interaction",
			SocialInteraction:     "caregiver presence and interaction",
			Vocalization:          "excited sounds, attempts at communication",
			EmotionalExpression:   "curious and responsive",
			EnvironmentalLearning: "discovering cause and effect, object properties",
			ReflectiveAwareness:   "high awareness of environment and interactions",
		},
		labels:    model.Labels{ArousalLevel: "high", DominantEmotion: "curious", CognitiveLoad: "low", SocialContext: "with_caregivers"},
		motor:     [variants]string{"active movement, reaching, grasping", "batting at a hanging toy", "rolling to one side"},
		attention: [variants]string{"toys", "faces", "moving objects"},
	},
	bandEvening: {
		components: model.Components{
			SensoryPerception:     "softening sensory input, calming environment",
			Interoception:         "satisfied, preparing for sleep",
			IntentionMotive:       "seeking comfort and security",
			SocialInteraction:     "caregiver presence and interaction",
			Vocalization:          "soft sounds, contentment",
			EmotionalExpression:   "content and responsive",
			EnvironmentalLearning: "associating routines with comfort",
			ReflectiveAwareness:   "calm, secure awareness",
		},
		labels:    model.Labels{ArousalLevel: "medium", DominantEmotion: "content", CognitiveLoad: "low", SocialContext: "with_caregivers"},
		motor:     [variants]string{"gentle movements, cuddling", "relaxing limbs", "rubbing eyes"},
		attention: [variants]string{"caregiver's soothing presence", "the lullaby", "the dim lamp"},
	},
}

func internalTemplate(hour, minute int) model.InternalEntry {
	t := internalTemplates[bandOf(hour)]
	v := minute % variants
	c := t.components
	c.MotorBehavior = t.motor[v]
	c.AttentionFocus = t.attention[v]
	return model.InternalEntry{
		Minute:     minute,
		Components: c,
		Labels:     t.labels,
	}
}
