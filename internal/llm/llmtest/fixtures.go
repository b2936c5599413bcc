package llmtest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rcliao/monologue/internal/llm"
	"github.com/rcliao/monologue/internal/model"
)

// ExternalJSON returns a complete external-stage response for hour.
func ExternalJSON(hour int) string {
	entries := make([]model.ExternalEntry, model.MinutesPerHour)
	for m := range entries {
		entries[m] = model.ExternalEntry{
			Minute:           m,
			Environment:      fmt.Sprintf("nursery at %02d:%02d", hour, m),
			CaregiverActions: "caregiver hums softly",
			ObjectsPresent:   "rattle, blanket",
			SensoryStimuli:   "warm light",
			RoutineActivity:  "play",
			ExternalEvents:   "none",
		}
	}
	return envelope(hour, "external_reality", entries)
}

// InternalJSON returns a complete internal-stage response for hour.
func InternalJSON(hour int) string {
	entries := make([]model.InternalEntry, model.MinutesPerHour)
	for m := range entries {
		entries[m] = model.InternalEntry{
			Minute: m,
			Components: model.Components{
				SensoryPerception:     "bright blur",
				Interoception:         "full and warm",
				AttentionFocus:        "caregiver face",
				IntentionMotive:       "look longer",
				SocialInteraction:     "caregiver smiles back",
				Vocalization:          "coo",
				MotorBehavior:         fmt.Sprintf("first kick of hour %d", hour),
				EmotionalExpression:   "content",
				EnvironmentalLearning: fmt.Sprintf("light moves at %d:%02d", hour, m),
				ReflectiveAwareness:   "none",
			},
			Labels: model.Labels{ArousalLevel: "medium", DominantEmotion: "content", CognitiveLoad: "low", SocialContext: "with_caregivers"},
		}
	}
	return envelope(hour, "entries", entries)
}

func envelope(hour int, key string, entries any) string {
	b, err := json.Marshal(map[string]any{"hour": hour, key: entries})
	if err != nil {
		panic(err)
	}
	return string(b)
}

// LabelHour parses the hour out of a request label such as "internal/7".
func LabelHour(label string) (stage string, hour int) {
	parts := strings.Split(label, "/")
	if len(parts) < 2 {
		return label, -1
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return parts[0], -1
	}
	return parts[0], h
}

// TwoPassHandler answers every request with valid content for its stage and
// hour. fail, when non-nil, can override the outcome for a request.
func TwoPassHandler(fail func(stage string, hour int) error) func(llm.Request) (*llm.Response, error) {
	return func(req llm.Request) (*llm.Response, error) {
		stage, hour := LabelHour(req.Label)
		if fail != nil {
			if err := fail(stage, hour); err != nil {
				return nil, err
			}
		}
		content := ExternalJSON(hour)
		if stage == string(model.StageInternal) {
			content = InternalJSON(hour)
		}
		return &llm.Response{Content: content, Model: "test-model", Attempts: 1, RequestID: req.Label}, nil
	}
}
