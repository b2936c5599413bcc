package twopass

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/rcliao/monologue/internal/memory"
	"github.com/rcliao/monologue/internal/model"
)

// PromptVersion is recorded in day provenance. Bump it when any template
// under prompts/ changes meaning.
const PromptVersion = "two-pass-v1"

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.New("").Funcs(template.FuncMap{
	"join":  strings.Join,
	"deref": func(p *int) int { return *p },
}).ParseFS(promptFS, "prompts/*.tmpl"))

const (
	tmplExternal       = "external.tmpl"
	tmplExternalSimple = "external_simple.tmpl"
	tmplInternal       = "internal.tmpl"
	tmplInternalSimple = "internal_simple.tmpl"
)

// promptData is the view of a unit handed to the templates.
type promptData struct {
	Hour        int
	Child       string
	AgeWeeks    int
	AgeYears    int
	SleepState  string
	Asleep      bool
	Caregivers  string
	HomeType    string
	City        string
	Stage       string
	Chunk       string
	Timeline    model.WeekContext
	Environment model.EnvironmentContext
	Social      model.SocialContext
	Activities  []string
	Cognitive   []string
	Guidelines  string
	Memory      *memory.Memory

	Vocabulary      string
	Forbidden       []string
	External        string
	ExternalCompact string
}

func newPromptData(in HourInput) promptData {
	p := in.Plan
	names := make([]string, 0, len(in.Scenario.Caregivers))
	for _, c := range in.Scenario.Caregivers {
		names = append(names, c.Name)
	}
	caregivers := strings.Join(names, ", ")
	if caregivers == "" {
		caregivers = "caregivers"
	}

	d := promptData{
		Hour:        p.Hour,
		Child:       in.Scenario.Child.Name,
		AgeWeeks:    p.AgeWeeks,
		AgeYears:    p.AgeYears,
		SleepState:  p.SleepState,
		Asleep:      p.Asleep(),
		Caregivers:  caregivers,
		HomeType:    in.Scenario.Environment.HomeType,
		City:        in.Scenario.Environment.City,
		Stage:       p.Tier,
		Chunk:       in.Chunk,
		Timeline:    p.Development,
		Environment: p.Environment,
		Social:      p.Social,
		Activities:  p.Activities,
		Cognitive:   p.Cognitive,
		Guidelines:  p.AgeGuidelines,
	}
	if in.Memory != nil && !in.Memory.Empty() {
		d.Memory = in.Memory
	}
	return d
}

// withExternal attaches the resolved external stage for the internal prompt.
func (d promptData) withExternal(ext model.ExternalResult) (promptData, error) {
	entries := make([]model.ExternalEntry, len(ext.Entries))
	for i, e := range ext.Entries {
		entries[i] = e.WithSource("")
	}
	view := struct {
		Hour     int                   `json:"hour"`
		External []model.ExternalEntry `json:"external_reality"`
	}{ext.Hour, entries}

	indented, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return d, fmt.Errorf("encode external reality: %w", err)
	}
	compact, err := json.Marshal(view)
	if err != nil {
		return d, fmt.Errorf("encode external reality: %w", err)
	}
	d.External = string(indented)
	d.ExternalCompact = string(compact)
	return d, nil
}

func render(name string, d promptData) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, d); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
