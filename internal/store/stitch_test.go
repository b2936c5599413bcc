package store

import (
	"bytes"
	"testing"

	"github.com/rcliao/monologue/internal/model"
)

func writeDay(t *testing.T, l Layout, m *Manifest, date string, units model.SourceCounts, fixOf string) model.ManifestEntry {
	t.Helper()
	rec := model.DayRecord{
		MonologueID:      "m1",
		Date:             date,
		GenerationMethod: model.GenerationMethod,
		Hours:            make([]model.HourPair, 24),
		Units:            units,
		FixOf:            fixOf,
	}
	path := l.DayPath("m1", mustDate(t, date))
	if fixOf != "" {
		path = l.FixPath("m1", mustDate(t, date), 1)
	}
	if err := WriteJSON(path, rec); err != nil {
		t.Fatalf("write day: %v", err)
	}
	e, err := m.Append(model.ManifestEntry{
		MonologueID: "m1", Date: date, File: l.Rel(path), Minutes: rec.Minutes(), Units: units, FixOf: fixOf,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	return e
}

func TestParseRange(t *testing.T) {
	cases := []struct {
		in      string
		want    DateRange
		wantErr bool
	}{
		{"", DateRange{}, false},
		{"2025-03-01..2025-03-31", DateRange{"2025-03-01", "2025-03-31"}, false},
		{"2025-03-01..", DateRange{Start: "2025-03-01"}, false},
		{"..2025-03-31", DateRange{End: "2025-03-31"}, false},
		{"2025-03-11", DateRange{"2025-03-11", "2025-03-11"}, false},
		{"2025-03-31..2025-03-01", DateRange{}, true},
		{"March..April", DateRange{}, true},
	}
	for _, tc := range cases {
		got, err := ParseRange(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseRange(%q) err = %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseRange(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestStitch(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	m := OpenManifest(l.ManifestPath())

	first := writeDay(t, l, m, "2025-03-11", model.SourceCounts{Service: 40, Fallback: 8}, "")
	writeDay(t, l, m, "2025-03-12", model.SourceCounts{Service: 48}, "")
	writeDay(t, l, m, "2025-03-13", model.SourceCounts{Service: 48}, "")
	writeDay(t, l, m, "2025-03-11", model.SourceCounts{Service: 46, Repaired: 2}, first.ID)

	entries, _ := m.Entries()
	r, _ := ParseRange("2025-03-11..2025-03-12")
	s, err := Stitch(l, entries, r)
	if err != nil {
		t.Fatalf("stitch: %v", err)
	}
	if s.Days != 2 || len(s.Records) != 2 {
		t.Fatalf("expected 2 days, got %d", s.Days)
	}
	if s.Records[0].FixOf != first.ID {
		t.Error("expected fix artifact to replace original")
	}
	if s.Minutes != 2*1440 {
		t.Errorf("expected 2880 minutes, got %d", s.Minutes)
	}
	if s.Units.Service != 94 || s.Units.Repaired != 2 || s.Units.Fallback != 0 {
		t.Errorf("unexpected totals %+v", s.Units)
	}
}

func TestStitchIsByteStable(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	m := OpenManifest(l.ManifestPath())
	writeDay(t, l, m, "2025-03-11", model.SourceCounts{Service: 48}, "")
	writeDay(t, l, m, "2025-03-12", model.SourceCounts{Service: 47, Fallback: 1}, "")

	render := func() []byte {
		entries, err := m.Entries()
		if err != nil {
			t.Fatal(err)
		}
		s, err := Stitch(l, entries, DateRange{})
		if err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		if err := WriteStitched(&buf, s); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}

	a, b := render(), render()
	if !bytes.Equal(a, b) {
		t.Error("stitching twice produced different bytes")
	}
}

func TestStitchMissingArtifact(t *testing.T) {
	l := Layout{Root: t.TempDir()}
	entries := []model.ManifestEntry{{MonologueID: "m1", Date: "2025-03-11", File: "year_2025/month_03/day_2025-03-11.json"}}
	if _, err := Stitch(l, entries, DateRange{}); err == nil {
		t.Error("expected error for missing artifact")
	}
}

func TestManifestStats(t *testing.T) {
	entries := []model.ManifestEntry{
		{ID: "1", MonologueID: "m1", Date: "2025-03-11", Minutes: 1440, Units: model.SourceCounts{Service: 40, Fallback: 8}},
		{ID: "2", MonologueID: "m1", Date: "2025-03-12", Minutes: 1440, Units: model.SourceCounts{Service: 48}},
		{ID: "3", MonologueID: "m1", Date: "2025-03-11", Minutes: 1440, Units: model.SourceCounts{Service: 48}, FixOf: "1"},
	}
	st := ManifestStats(entries)
	if st.Days != 2 || st.Fixes != 1 {
		t.Errorf("expected 2 days and 1 fix, got %d/%d", st.Days, st.Fixes)
	}
	if st.Minutes != 2880 || st.EstimatedTokens != 2880*75 {
		t.Errorf("unexpected minutes/tokens %d/%d", st.Minutes, st.EstimatedTokens)
	}
	if st.FirstDate != "2025-03-11" || st.LastDate != "2025-03-12" {
		t.Errorf("unexpected date range %s..%s", st.FirstDate, st.LastDate)
	}
	if st.Units.Fallback != 0 || st.Units.Service != 96 {
		t.Errorf("unexpected units %+v", st.Units)
	}
	if len(st.Monologues) != 1 || st.Monologues[0].Days != 2 {
		t.Errorf("unexpected monologues %+v", st.Monologues)
	}
}
