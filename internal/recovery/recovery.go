// Package recovery turns raw service output into schema-complete hour
// results. Strategies run in order from strict parsing to synthetic
// fallback; the last strategy always succeeds, so no hour is ever dropped.
package recovery

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/rcliao/monologue/internal/model"
)

// Strategy salvages entries from raw text. ok is false when the strategy
// does not apply; it must then return no entries.
type Strategy[E model.Entry[E]] interface {
	Name() string
	Recover(raw string, hour int, s Schema[E]) (entries []E, src model.Source, ok bool)
}

// DefaultStrategies returns the standard tiers in order.
func DefaultStrategies[E model.Entry[E]]() []Strategy[E] {
	return []Strategy[E]{Direct[E]{}, Truncation[E]{}, Partial[E]{}, Fallback[E]{}}
}

// Chain runs strategies in order for one stage.
type Chain[E model.Entry[E]] struct {
	schema     Schema[E]
	strategies []Strategy[E]
}

// NewChain builds a chain over schema. With no strategies the defaults are
// used. A trailing Fallback is always present.
func NewChain[E model.Entry[E]](schema Schema[E], strategies ...Strategy[E]) *Chain[E] {
	if len(strategies) == 0 {
		strategies = DefaultStrategies[E]()
	}
	if _, ok := strategies[len(strategies)-1].(Fallback[E]); !ok {
		strategies = append(strategies, Fallback[E]{})
	}
	return &Chain[E]{schema: schema, strategies: strategies}
}

// Recover resolves raw into a valid result for hour. Hour, Stage, Source,
// Tier and Entries are set; timing and request fields are left to the caller.
func (c *Chain[E]) Recover(raw string, hour int) model.Result[E] {
	for _, st := range c.strategies {
		entries, src, ok := st.Recover(raw, hour, c.schema)
		if !ok {
			continue
		}
		r := model.Result[E]{
			Hour:    hour,
			Stage:   c.schema.Stage,
			Source:  src,
			Tier:    st.Name(),
			Entries: entries,
		}
		if r.Validate() == nil {
			return r
		}
	}
	return c.Fallback(hour, "no strategy produced a valid result")
}

// Fallback returns a fully synthetic result for hour.
func (c *Chain[E]) Fallback(hour int, reason string) model.Result[E] {
	entries, src, _ := Fallback[E]{}.Recover("", hour, c.schema)
	return model.Result[E]{
		Hour:    hour,
		Stage:   c.schema.Stage,
		Source:  src,
		Tier:    Fallback[E]{}.Name(),
		Entries: entries,
		Error:   reason,
	}
}

// Direct accepts only a complete, well-formed envelope.
type Direct[E model.Entry[E]] struct{}

func (Direct[E]) Name() string { return "direct" }

func (Direct[E]) Recover(raw string, _ int, s Schema[E]) ([]E, model.Source, bool) {
	js := ExtractJSON(raw)
	if js == "" {
		return nil, "", false
	}
	entries, err := decodeList[E](js, s.ListKey)
	if err != nil || !complete(entries) {
		return nil, "", false
	}
	for i := range entries {
		entries[i] = entries[i].WithSource(model.SourceService)
	}
	return entries, model.SourceService, true
}

// Truncation keeps the leading run of syntactically complete array elements
// from a response that was cut off, and fills the missing tail with
// placeholders.
type Truncation[E model.Entry[E]] struct{}

func (Truncation[E]) Name() string { return "truncation" }

func (Truncation[E]) Recover(raw string, _ int, s Schema[E]) ([]E, model.Source, bool) {
	text := stripFence(raw)
	open := listStart(text, s.ListKey)
	if open < 0 {
		return nil, "", false
	}

	lastEnd := -1
	for i := open + 1; i < len(text); {
		switch text[i] {
		case ' ', '\t', '\n', '\r', ',':
			i++
			continue
		case '{':
			end := objectEnd(text, i)
			if end < 0 {
				i = len(text)
				continue
			}
			lastEnd = end
			i = end
			continue
		}
		break
	}
	if lastEnd < 0 {
		return nil, "", false
	}

	var entries []E
	if err := json.Unmarshal([]byte(cleanJSON("["+text[open+1:lastEnd]+"]")), &entries); err != nil {
		return nil, "", false
	}
	n := 0
	for n < len(entries) && n < model.MinutesPerHour && entries[n].MinuteIndex() == n {
		n++
	}
	if n == 0 {
		return nil, "", false
	}

	out := make([]E, 0, model.MinutesPerHour)
	for _, e := range entries[:n] {
		out = append(out, retain(e, s))
	}
	for m := n; m < model.MinutesPerHour; m++ {
		out = append(out, s.Placeholder(m).WithSource(model.SourceFallback))
	}
	return out, model.SourceRepaired, true
}

// Partial collects every well-formed minute object anywhere in the text,
// keeps the first occurrence of each minute and fills gaps with placeholders.
type Partial[E model.Entry[E]] struct{}

func (Partial[E]) Name() string { return "partial" }

func (Partial[E]) Recover(raw string, _ int, s Schema[E]) ([]E, model.Source, bool) {
	found := make(map[int]E)
	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' {
			continue
		}
		end := objectEnd(raw, i)
		if end < 0 {
			continue
		}
		obj := []byte(cleanJSON(raw[i:end]))
		var keys map[string]json.RawMessage
		if json.Unmarshal(obj, &keys) != nil {
			continue
		}
		if _, ok := keys["minute"]; !ok {
			// Not an entry; look inside it.
			continue
		}
		var e E
		if json.Unmarshal(obj, &e) == nil {
			m := e.MinuteIndex()
			if _, dup := found[m]; !dup && m >= 0 && m < model.MinutesPerHour {
				found[m] = e
			}
		}
		i = end - 1
	}
	if len(found) == 0 {
		return nil, "", false
	}

	out := make([]E, 0, model.MinutesPerHour)
	for m := 0; m < model.MinutesPerHour; m++ {
		if e, ok := found[m]; ok {
			out = append(out, retain(e, s))
			continue
		}
		out = append(out, s.Placeholder(m).WithSource(model.SourceFallback))
	}
	return out, model.SourceRepaired, true
}

// Fallback synthesises every minute from time-of-day templates.
type Fallback[E model.Entry[E]] struct{}

func (Fallback[E]) Name() string { return "fallback" }

func (Fallback[E]) Recover(_ string, hour int, s Schema[E]) ([]E, model.Source, bool) {
	out := make([]E, model.MinutesPerHour)
	for m := range out {
		out[m] = s.Template(hour, m).WithSource(model.SourceFallback)
	}
	return out, model.SourceFallback, true
}

// retain tags a salvaged service entry, marking it repaired if any field had
// to be filled.
func retain[E model.Entry[E]](e E, s Schema[E]) E {
	filled, changed := s.Fill(e)
	if changed {
		return filled.WithSource(model.SourceRepaired)
	}
	return filled.WithSource(model.SourceService)
}

func complete[E model.Entry[E]](entries []E) bool {
	if len(entries) != model.MinutesPerHour {
		return false
	}
	for i, e := range entries {
		if e.MinuteIndex() != i || len(e.MissingFields()) > 0 {
			return false
		}
	}
	return true
}

var errNoList = errors.New("entry list not found")

// decodeList decodes the entry array from an envelope, accepting "entries"
// when listKey is absent.
func decodeList[E any](js, listKey string) ([]E, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal([]byte(js), &env); err != nil {
		return nil, err
	}
	list, ok := env[listKey]
	if !ok {
		if list, ok = env["entries"]; !ok {
			return nil, errNoList
		}
	}
	var entries []E
	if err := json.Unmarshal(list, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// listStart returns the index of the '[' opening the entry array.
func listStart(text, listKey string) int {
	for _, key := range []string{listKey, "entries"} {
		idx := indexKey(text, key)
		if idx < 0 {
			continue
		}
		for i := idx; i < len(text); i++ {
			switch text[i] {
			case '[':
				return i
			case ' ', '\t', '\n', '\r', ':':
				continue
			default:
				return -1
			}
		}
	}
	return -1
}

// indexKey returns the position just after `"key"` in text, or -1.
func indexKey(text, key string) int {
	quoted := `"` + key + `"`
	idx := strings.Index(text, quoted)
	if idx < 0 {
		return -1
	}
	return idx + len(quoted)
}
