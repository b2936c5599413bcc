package recovery

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/monologue/internal/model"
)

func externalEntry(m int) model.ExternalEntry {
	return model.ExternalEntry{
		Minute:           m,
		Environment:      fmt.Sprintf("living room, minute %d", m),
		CaregiverActions: "mother hums",
		ObjectsPresent:   "rattle",
		SensoryStimuli:   "warm light",
		RoutineActivity:  "play",
		ExternalEvents:   "door closes",
	}
}

func internalEntry(m int) model.InternalEntry {
	return model.InternalEntry{
		Minute: m,
		Components: model.Components{
			SensoryPerception:     "bright shapes",
			Interoception:         "full belly",
			AttentionFocus:        "mother's face",
			IntentionMotive:       "reach",
			SocialInteraction:     "gazing at caregiver",
			Vocalization:          "coo",
			MotorBehavior:         "kicks",
			EmotionalExpression:   "smile",
			EnvironmentalLearning: "rattle makes sound",
			ReflectiveAwareness:   "none",
		},
		Labels: model.Labels{ArousalLevel: "medium", DominantEmotion: "joy", CognitiveLoad: "low", SocialContext: "with_caregivers"},
	}
}

func envelope(t *testing.T, key string, entries any) string {
	t.Helper()
	b, err := json.MarshalIndent(map[string]any{"hour": 14, key: entries}, "", "  ")
	require.NoError(t, err)
	return string(b)
}

func externalEntries(n int) []model.ExternalEntry {
	out := make([]model.ExternalEntry, n)
	for i := range out {
		out[i] = externalEntry(i)
	}
	return out
}

func TestChain_Direct(t *testing.T) {
	c := NewChain(ExternalSchema())
	raw := envelope(t, "external_reality", externalEntries(60))

	r := c.Recover(raw, 14)
	require.NoError(t, r.Validate())
	assert.Equal(t, "direct", r.Tier)
	assert.Equal(t, model.SourceService, r.Source)
	assert.Equal(t, model.StageExternal, r.Stage)
	assert.Equal(t, 60, r.Counts().Service)
}

func TestChain_DirectFenced(t *testing.T) {
	c := NewChain(ExternalSchema())
	raw := "Here you go:\n```json\n" + envelope(t, "external_reality", externalEntries(60)) + "\n```"

	r := c.Recover(raw, 9)
	require.NoError(t, r.Validate())
	assert.Equal(t, "direct", r.Tier)
}

func TestChain_DirectRejectsIncomplete(t *testing.T) {
	entries := externalEntries(60)
	entries[30].Environment = ""
	raw := envelope(t, "external_reality", entries)

	_, _, ok := Direct[model.ExternalEntry]{}.Recover(raw, 3, ExternalSchema())
	assert.False(t, ok)

	r := NewChain(ExternalSchema()).Recover(raw, 3)
	require.NoError(t, r.Validate())
	assert.Equal(t, "truncation", r.Tier)
	assert.Equal(t, model.SourceRepaired, r.Entries[30].Source)
	assert.True(t, IsPlaceholder(r.Entries[30].Environment))
	assert.Equal(t, model.SourceService, r.Entries[29].Source)
}

func TestChain_TruncatedAtMinute42(t *testing.T) {
	full := envelope(t, "external_reality", externalEntries(60))
	cut := strings.Index(full, `"minute": 43`)
	require.Positive(t, cut)
	raw := full[:cut+len(`"minute": 43, "environment": "liv`)]

	r := NewChain(ExternalSchema()).Recover(raw, 14)
	require.NoError(t, r.Validate())
	assert.Equal(t, "truncation", r.Tier)
	assert.Equal(t, model.SourceRepaired, r.Source)

	for m := 0; m <= 42; m++ {
		assert.Equal(t, model.SourceService, r.Entries[m].Source, "minute %d", m)
		assert.Equal(t, externalEntry(m).Environment, r.Entries[m].Environment)
	}
	for m := 43; m < 60; m++ {
		assert.Equal(t, model.SourceFallback, r.Entries[m].Source, "minute %d", m)
		assert.True(t, IsPlaceholder(r.Entries[m].Environment))
	}

	counts := r.Counts()
	assert.Equal(t, 43, counts.Service)
	assert.Equal(t, 17, counts.Fallback)
}

func TestChain_Partial(t *testing.T) {
	first := externalEntry(5)
	dup := externalEntry(5)
	dup.Environment = "kitchen"
	b0, _ := json.Marshal(externalEntry(0))
	b5, _ := json.Marshal(first)
	b5dup, _ := json.Marshal(dup)
	b10, _ := json.Marshal(model.ExternalEntry{Minute: 10, Environment: "nursery"})

	raw := fmt.Sprintf("minute zero: %s\nthen %s, and again %s\nlater %s\n{\"note\": true}", b0, b5, b5dup, b10)

	r := NewChain(ExternalSchema()).Recover(raw, 8)
	require.NoError(t, r.Validate())
	assert.Equal(t, "partial", r.Tier)
	assert.Equal(t, model.SourceRepaired, r.Source)

	assert.Equal(t, model.SourceService, r.Entries[0].Source)
	assert.Equal(t, "living room, minute 5", r.Entries[5].Environment)
	assert.Equal(t, model.SourceRepaired, r.Entries[10].Source)
	assert.Equal(t, "nursery", r.Entries[10].Environment)
	assert.True(t, IsPlaceholder(r.Entries[10].CaregiverActions))
	assert.Equal(t, model.SourceFallback, r.Entries[1].Source)

	counts := r.Counts()
	assert.Equal(t, 2, counts.Service)
	assert.Equal(t, 1, counts.Repaired)
	assert.Equal(t, 57, counts.Fallback)
}

func TestChain_Fallback(t *testing.T) {
	for _, raw := range []string{"", "I'm sorry, I can't help with that.", "{{{", `{"external_reality": "nope"}`} {
		r := NewChain(ExternalSchema()).Recover(raw, 14)
		require.NoError(t, r.Validate(), "input %q", raw)
		assert.Equal(t, "fallback", r.Tier)
		assert.Equal(t, model.SourceFallback, r.Source)
		assert.Equal(t, 60, r.Counts().Fallback)
	}
}

func TestFallback_TemplatesRotate(t *testing.T) {
	r := NewChain(ExternalSchema()).Fallback(14, "service unavailable")
	require.NoError(t, r.Validate())
	assert.Equal(t, "service unavailable", r.Error)
	assert.NotEqual(t, r.Entries[0].RoutineActivity, r.Entries[1].RoutineActivity)
	assert.Equal(t, r.Entries[0].RoutineActivity, r.Entries[3].RoutineActivity)

	night := NewChain(ExternalSchema()).Fallback(2, "")
	assert.NotEqual(t, night.Entries[0].Environment, r.Entries[0].Environment)
}

func TestChain_InternalSchema(t *testing.T) {
	entries := make([]model.InternalEntry, 60)
	for i := range entries {
		entries[i] = internalEntry(i)
	}
	c := NewChain(InternalSchema())

	r := c.Recover(envelope(t, "entries", entries), 14)
	require.NoError(t, r.Validate())
	assert.Equal(t, "direct", r.Tier)
	assert.Equal(t, model.StageInternal, r.Stage)

	entries[7].Labels.DominantEmotion = ""
	r = c.Recover(envelope(t, "entries", entries), 14)
	require.NoError(t, r.Validate())
	assert.Equal(t, "truncation", r.Tier)
	assert.Equal(t, "neutral", r.Entries[7].Labels.DominantEmotion)
	assert.Equal(t, model.SourceRepaired, r.Entries[7].Source)

	r = c.Recover("not json", 23)
	require.NoError(t, r.Validate())
	assert.Equal(t, "fallback", r.Tier)
}

func TestChain_AlwaysValid(t *testing.T) {
	ext := NewChain(ExternalSchema())
	in := NewChain(InternalSchema())
	inputs := []string{
		"",
		"```json\n{\"external_reality\": [",
		`{"entries": [{"minute": 3}]}`,
		`{"minute": 70, "environment": "x"}`,
		`[{"minute": 0}, {"minute": 0}]`,
	}
	for hour := 0; hour < 24; hour += 5 {
		for _, raw := range inputs {
			assert.NoError(t, ext.Recover(raw, hour).Validate(), "external %d %q", hour, raw)
			assert.NoError(t, in.Recover(raw, hour).Validate(), "internal %d %q", hour, raw)
		}
	}
}

func TestNewChain_AppendsFallback(t *testing.T) {
	c := NewChain(ExternalSchema(), Direct[model.ExternalEntry]{})
	r := c.Recover("garbage", 1)
	assert.Equal(t, "fallback", r.Tier)
	require.NoError(t, r.Validate())
}

func TestExtractJSON(t *testing.T) {
	got := ExtractJSON("```json\n{\"a\": [1, 2,], // note\n\"b\": \"http://x\"}\n```")
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(got), &v))
	assert.Equal(t, "http://x", v["b"])
	assert.Empty(t, ExtractJSON("no braces here"))
}

func TestExtractJSON_KeepsCommasInsideStrings(t *testing.T) {
	raw := `{"minute": 3, "vocalization": "babbles, ]", "scene": "mom says \"ok, }\"",}`
	got := ExtractJSON(raw)
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(got), &v), got)
	assert.Equal(t, "babbles, ]", v["vocalization"])
	assert.Equal(t, `mom says "ok, }"`, v["scene"])

	assert.Equal(t, `{"a": [1, 2 ]}`, stripTrailingCommas(`{"a": [1, 2, ]}`))
	assert.Equal(t, "{\"a\": 1\n}", stripTrailingCommas("{\"a\": 1,\n}"))
}

func TestObjectEnd(t *testing.T) {
	s := `{"a": "}{", "b": [1, {"c": 2}]} tail`
	assert.Equal(t, strings.Index(s, " tail"), objectEnd(s, 0))
	assert.Equal(t, -1, objectEnd(`{"a": 1`, 0))
}
