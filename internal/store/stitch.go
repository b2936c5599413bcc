package store

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rcliao/monologue/internal/model"
)

// DateRange is an inclusive range of YYYY-MM-DD dates. An empty bound is
// open.
type DateRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// ParseRange parses "START..END", "START..", "..END" or a single date. An
// empty string matches every date.
func ParseRange(s string) (DateRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DateRange{}, nil
	}
	var r DateRange
	if start, end, ok := strings.Cut(s, ".."); ok {
		r = DateRange{Start: start, End: end}
	} else {
		r = DateRange{Start: s, End: s}
	}
	for _, d := range []string{r.Start, r.End} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return DateRange{}, fmt.Errorf("invalid range %q: %w", s, err)
		}
	}
	if r.Start != "" && r.End != "" && r.Start > r.End {
		return DateRange{}, fmt.Errorf("invalid range %q: start after end", s)
	}
	return r, nil
}

// Contains reports whether date falls inside r.
func (r DateRange) Contains(date string) bool {
	return (r.Start == "" || date >= r.Start) && (r.End == "" || date <= r.End)
}

// Stitched is the combined document produced by Stitch.
type Stitched struct {
	Range   DateRange          `json:"range"`
	Days    int                `json:"days"`
	Minutes int                `json:"total_minutes"`
	Units   model.SourceCounts `json:"unit_sources"`
	Records []model.DayRecord  `json:"records"`
}

// Stitch concatenates the newest artifact for every manifest date in r. It
// only reads; output depends solely on the manifest and the artifacts.
func Stitch(l Layout, entries []model.ManifestEntry, r DateRange) (*Stitched, error) {
	out := &Stitched{Range: r, Records: []model.DayRecord{}}
	for _, e := range LatestPerDay(entries) {
		if !r.Contains(e.Date) {
			continue
		}
		d, err := ReadDay(l.Abs(e.File))
		if err != nil {
			return nil, fmt.Errorf("stitch %s: %w", e.Date, err)
		}
		out.Records = append(out.Records, *d)
		out.Days++
		out.Minutes += d.Minutes()
		out.Units.Merge(d.Units)
	}
	return out, nil
}

// WriteStitched encodes s as indented JSON.
func WriteStitched(w io.Writer, s *Stitched) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
