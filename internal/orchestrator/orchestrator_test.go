package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rcliao/monologue/internal/llm"
	"github.com/rcliao/monologue/internal/llm/llmtest"
	"github.com/rcliao/monologue/internal/model"
	"github.com/rcliao/monologue/internal/scenario"
	"github.com/rcliao/monologue/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Started at init by a transitive dependency of the genai SDK.
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func testScenario() *model.Scenario {
	return &model.Scenario{
		MonologueID: "m-test",
		Seed:        7,
		Child:       model.ChildProfile{Name: "Ava", Birthdate: "2024-12-31"},
		Caregivers:  []model.Caregiver{{Name: "Mom", Relation: "mother"}, {Name: "Dad", Relation: "father"}},
		Environment: model.Environment{HomeType: "apartment", City: "Portland"},
	}
}

func testJob(t *testing.T, date string) Job {
	t.Helper()
	d, err := scenario.ParseDate(date)
	require.NoError(t, err)
	return Job{Scenario: testScenario(), Date: d}
}

// failingHour makes the external stage of hour fail while enabled is set.
func failingHour(hour int, enabled *atomic.Bool) func(string, int) error {
	return func(stage string, h int) error {
		if enabled.Load() && h == hour && stage == string(model.StageExternal) {
			return llm.NewFatalError(errors.New("service unavailable"))
		}
		return nil
	}
}

func newTestOrchestrator(t *testing.T, c llm.Completer, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(c, Config{Output: t.TempDir(), Provider: "mock", Model: "test-model"}, opts...)
	require.NoError(t, err)
	return o
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "monologue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGenerateDay_FailedHourIsIsolated(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	mock := &llmtest.MockCompleter{Handler: llmtest.TwoPassHandler(failingHour(7, &failing))}
	o := newTestOrchestrator(t, mock)

	rec, err := o.GenerateDay(context.Background(), testJob(t, "2025-03-11"))
	require.NoError(t, err)

	require.Len(t, rec.Hours, 24)
	for _, h := range rec.Hours {
		require.NoError(t, h.External.Validate(), "hour %d", h.Hour)
		require.NoError(t, h.Internal.Validate(), "hour %d", h.Hour)
		if h.Hour == 7 {
			assert.Equal(t, model.SourceFallback, h.External.Source)
			continue
		}
		assert.False(t, h.Fallback(), "hour %d should come from the service", h.Hour)
	}
	assert.Equal(t, 1, rec.Units.Fallback)
	assert.Equal(t, 47, rec.Units.Service)
	assert.Equal(t, 1440, rec.Minutes())
	assert.Equal(t, model.GenerationMethod, rec.GenerationMethod)
	assert.Equal(t, 10, rec.AgeWeeks)
	assert.Equal(t, "two-pass-v1", rec.Provenance.PromptVersion)
	assert.Equal(t, 2, rec.Provenance.Chunks)
	assert.InDelta(t, 0.6, rec.Provenance.Temperature, 1e-9)
	assert.Equal(t, "mock", rec.Provenance.Provider)

	entries, err := o.Manifest().Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "m-test/year_2025/month_03/day_2025-03-11.json", filepath.ToSlash(entries[0].File))
	assert.Equal(t, 1440, entries[0].Minutes)

	onDisk, err := store.ReadDay(o.Layout().DayPath("m-test", testJob(t, "2025-03-11").Date))
	require.NoError(t, err)
	assert.Equal(t, rec.Units, onDisk.Units)
}

func TestGenerateDay_SkipsExistingUnlessForced(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	mock := &llmtest.MockCompleter{Handler: llmtest.TwoPassHandler(nil)}
	o := newTestOrchestrator(t, mock, WithLogger(zap.New(core)))
	job := testJob(t, "2025-03-11")

	_, err := o.GenerateDay(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 48, mock.CallCount())

	again, err := o.GenerateDay(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 48, mock.CallCount(), "existing day must not be regenerated")
	assert.Len(t, again.Hours, 24)
	assert.Equal(t, 1, logs.FilterMessage("day already generated, skipping").Len())

	job.Force = true
	_, err = o.GenerateDay(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 96, mock.CallCount())

	entries, err := o.Manifest().Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestGenerateDay_ReusesCachedHours(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	mock := &llmtest.MockCompleter{Handler: llmtest.TwoPassHandler(failingHour(7, &failing))}
	s := newTestStore(t)
	o := newTestOrchestrator(t, mock, WithStore(s))
	job := testJob(t, "2025-03-11")

	_, err := o.GenerateDay(context.Background(), job)
	require.NoError(t, err)
	before := mock.CallCount()

	// A run into an output directory without this day, such as a resumed
	// run whose artifact was never indexed, reuses the cached hours.
	failing.Store(false)
	resumed := newTestOrchestrator(t, mock, WithStore(s))
	rec, err := resumed.GenerateDay(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, 2, mock.CallCount()-before, "only the fallback hour should be regenerated")
	assert.Zero(t, rec.Units.Fallback)

	runs, err := s.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, store.RunDone, r.Status)
		assert.Equal(t, 1, r.Days)
	}
}

func TestGenerateDay_ForceWritesNewArtifact(t *testing.T) {
	mock := &llmtest.MockCompleter{Handler: llmtest.TwoPassHandler(nil)}
	o := newTestOrchestrator(t, mock, WithStore(newTestStore(t)))
	job := testJob(t, "2025-03-11")

	_, err := o.GenerateDay(context.Background(), job)
	require.NoError(t, err)
	original := o.Layout().DayPath("m-test", job.Date)
	first, err := os.ReadFile(original)
	require.NoError(t, err)

	job.Force = true
	for n := 1; n <= 2; n++ {
		before := mock.CallCount()
		_, err = o.GenerateDay(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, 48, mock.CallCount()-before, "a forced run must not reuse cached hours")
		assert.FileExists(t, o.Layout().RegenPath("m-test", job.Date, n))
	}

	after, err := os.ReadFile(original)
	require.NoError(t, err)
	assert.Equal(t, first, after, "an indexed artifact must never be rewritten")

	entries, err := o.Manifest().Entries()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "m-test/year_2025/month_03/day_2025-03-11.regen-2.json", filepath.ToSlash(entries[2].File))
	for _, e := range entries {
		_, err := store.ReadDay(o.Layout().Abs(e.File))
		assert.NoError(t, err, "entry %s must point at its own artifact", e.File)
	}
}

func TestGenerateDay_KeepsMonologuesApart(t *testing.T) {
	mock := &llmtest.MockCompleter{Handler: llmtest.TwoPassHandler(nil)}
	o := newTestOrchestrator(t, mock)

	a := testJob(t, "2025-03-11")
	b := testJob(t, "2025-03-11")
	b.Scenario.MonologueID = "m-other"
	b.Scenario.Child.Name = "Ben"

	_, err := o.GenerateDay(context.Background(), a)
	require.NoError(t, err)
	first, err := os.ReadFile(o.Layout().DayPath("m-test", a.Date))
	require.NoError(t, err)

	_, err = o.GenerateDay(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, 96, mock.CallCount())

	again, err := os.ReadFile(o.Layout().DayPath("m-test", a.Date))
	require.NoError(t, err)
	assert.Equal(t, first, again, "another monologue must not overwrite this one")

	st, err := o.Stitch(store.DateRange{})
	require.NoError(t, err)
	require.Len(t, st.Records, 2)
	assert.Equal(t, "m-other", st.Records[0].MonologueID)
	assert.Equal(t, "m-test", st.Records[1].MonologueID)
}

func TestGenerateDay_PersistsMemoryPerChunk(t *testing.T) {
	mock := &llmtest.MockCompleter{Handler: llmtest.TwoPassHandler(nil)}
	o := newTestOrchestrator(t, mock)

	rec, err := o.GenerateDay(context.Background(), testJob(t, "2025-03-11"))
	require.NoError(t, err)
	assert.Contains(t, string(rec.Continuity), "basic caregiver interaction")

	mem, err := store.LoadMemory(o.Layout().MemoryPath("m-test"))
	require.NoError(t, err)
	require.Len(t, mem.GenerationHistory, 2)
	assert.Equal(t, "0-11", mem.GenerationHistory[0].HourRange)
	assert.Equal(t, "12-23", mem.GenerationHistory[1].HourRange)
	require.NotNil(t, mem.LastGeneratedHour)
	assert.Equal(t, 23, *mem.LastGeneratedHour)
	assert.Equal(t, "2025-03-11", mem.LastGeneratedDate)
	assert.Len(t, mem.RecentMilestones, 5)
	assert.Equal(t, "first kick of hour 23", mem.RecentMilestones[4])

	// The second chunk's prompts see the first chunk's milestones.
	var sawContext bool
	for _, req := range mock.Requests() {
		if req.Label == "external/12" {
			sawContext = bytes.Contains([]byte(req.Prompt), []byte("first kick of hour 11"))
		}
	}
	assert.True(t, sawContext)
}

func TestGenerateDay_RejectsDateBeforeBirth(t *testing.T) {
	mock := &llmtest.MockCompleter{Handler: llmtest.TwoPassHandler(nil)}
	o := newTestOrchestrator(t, mock)

	_, err := o.GenerateDay(context.Background(), testJob(t, "2024-12-01"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, scenario.ErrInvalidInput))
	assert.Zero(t, mock.CallCount())
}

func TestGenerateDay_CancelStopsBetweenChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := llmtest.TwoPassHandler(nil)
	mock := &llmtest.MockCompleter{Handler: func(req llm.Request) (*llm.Response, error) {
		if _, h := llmtest.LabelHour(req.Label); h == 0 {
			cancel()
		}
		return handler(req)
	}}
	o := newTestOrchestrator(t, mock)

	_, err := o.GenerateDay(ctx, testJob(t, "2025-03-11"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	entries, err := o.Manifest().Entries()
	require.NoError(t, err)
	assert.Empty(t, entries, "an aborted day must not be indexed")
	for _, req := range mock.Requests() {
		_, h := llmtest.LabelHour(req.Label)
		assert.Less(t, h, 12, "no request may start for the second chunk")
	}
}

func TestGateBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	handler := llmtest.TwoPassHandler(nil)
	mock := &llmtest.MockCompleter{Handler: func(req llm.Request) (*llm.Response, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		return handler(req)
	}}
	o, err := New(mock, Config{Output: t.TempDir(), Concurrency: 3})
	require.NoError(t, err)

	_, err = o.GenerateDay(context.Background(), testJob(t, "2025-03-11"))
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Positive(t, peak.Load())
}

func TestGenerateWeek_RecordsFailedDay(t *testing.T) {
	mock := &llmtest.MockCompleter{Handler: llmtest.TwoPassHandler(nil)}
	o := newTestOrchestrator(t, mock)
	job := testJob(t, "2025-03-08")

	// A directory where the third day's artifact belongs makes its write fail.
	blocked := o.Layout().DayPath("m-test", job.Date.AddDate(0, 0, 2))
	require.NoError(t, os.MkdirAll(filepath.Join(blocked, "occupied"), 0o755))

	sum, err := o.GenerateWeek(context.Background(), job)
	require.NoError(t, err)

	assert.Len(t, sum.DaysGenerated, 6)
	require.Len(t, sum.Failures, 1)
	assert.Equal(t, "2025-03-10", sum.Failures[0].Date)
	assert.Equal(t, [2]int{9, 10}, sum.AgeRange)
	assert.NotEmpty(t, sum.Milestones)
	assert.NotEmpty(t, sum.Activities)
	assert.Equal(t, 6*48, sum.Units.Service)

	seen := map[string]bool{}
	for _, m := range sum.Milestones {
		assert.False(t, seen[m], "duplicate milestone %q", m)
		seen[m] = true
	}

	data, err := os.ReadFile(o.Layout().WeekSummaryPath("m-test", job.Date))
	require.NoError(t, err)
	require.Contains(t, string(data), `"days_generated"`)
	assert.Equal(t, "m-test/week_summary_2025-03-08.json", sum.File)
}

func TestGenerateMonth(t *testing.T) {
	mock := &llmtest.MockCompleter{Handler: llmtest.TwoPassHandler(nil)}
	o := newTestOrchestrator(t, mock)
	job := testJob(t, "2025-03-01")

	sum, err := o.GenerateMonth(context.Background(), job)
	require.NoError(t, err)

	assert.Len(t, sum.Weeks, 4)
	assert.Equal(t, 28, sum.Days)
	assert.Equal(t, 28*48, sum.Units.Service)
	assert.Equal(t, "2025-03-22", sum.Weeks[3].StartDate)
	assert.FileExists(t, o.Layout().MonthSummaryPath("m-test", job.Date))

	entries, err := o.Manifest().Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 28)
}

func TestGenerateYear(t *testing.T) {
	mock := &llmtest.MockCompleter{Handler: llmtest.TwoPassHandler(nil)}
	o := newTestOrchestrator(t, mock)
	o.yearLength = 3

	sum, err := o.GenerateYear(context.Background(), testJob(t, "2025-03-11"), 2)
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Year)
	assert.Equal(t, "2025-12-31", sum.StartDate, "year 2 starts one year length after birth")
	assert.Equal(t, "2026-01-02", sum.EndDate)
	assert.Equal(t, []string{"2025-12-31", "2026-01-01", "2026-01-02"}, sum.DaysGenerated)
	assert.Equal(t, 3*48, sum.Units.Service)
	assert.Equal(t, "m-test/year_summary_2.json", sum.File)
	assert.FileExists(t, o.Layout().YearSummaryPath("m-test", 2))
}

func TestGenerateYear_FullLength(t *testing.T) {
	if testing.Short() {
		t.Skip("generates 365 days")
	}
	mock := &llmtest.MockCompleter{Handler: llmtest.TwoPassHandler(nil)}
	o := newTestOrchestrator(t, mock)

	sum, err := o.GenerateYear(context.Background(), testJob(t, "2025-03-11"), 5)
	require.NoError(t, err)
	assert.Len(t, sum.DaysGenerated, DaysPerYear)
	assert.Empty(t, sum.Failures)
	assert.Equal(t, "2028-12-30", sum.StartDate)
}

func TestGenerateYear_RejectsOutOfRange(t *testing.T) {
	mock := &llmtest.MockCompleter{Handler: llmtest.TwoPassHandler(nil)}
	o := newTestOrchestrator(t, mock)

	for _, year := range []int{0, 6, -1} {
		_, err := o.GenerateYear(context.Background(), testJob(t, "2025-03-11"), year)
		require.Error(t, err, "year %d", year)
		assert.True(t, errors.Is(err, scenario.ErrInvalidInput))
	}
	assert.Zero(t, mock.CallCount())
}

func TestFixDay_RegeneratesOnlyFallbackHours(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	mock := &llmtest.MockCompleter{Handler: llmtest.TwoPassHandler(failingHour(7, &failing))}
	o := newTestOrchestrator(t, mock)
	job := testJob(t, "2025-03-11")

	orig, err := o.GenerateDay(context.Background(), job)
	require.NoError(t, err)
	require.True(t, orig.Hours[7].Fallback())
	first, _, err := o.Manifest().Latest("m-test", "2025-03-11")
	require.NoError(t, err)
	memBefore, err := os.ReadFile(o.Layout().MemoryPath("m-test"))
	require.NoError(t, err)

	failing.Store(false)
	before := mock.CallCount()
	fixed, err := o.FixDay(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, 2, mock.CallCount()-before)
	assert.False(t, fixed.Hours[7].Fallback())
	assert.Equal(t, first.ID, fixed.FixOf)
	assert.Zero(t, fixed.Units.Fallback)
	assert.Equal(t, orig.Hours[3].External.Entries, fixed.Hours[3].External.Entries)
	assert.FileExists(t, o.Layout().FixPath("m-test", job.Date, 1))

	memAfter, err := os.ReadFile(o.Layout().MemoryPath("m-test"))
	require.NoError(t, err)
	assert.Equal(t, memBefore, memAfter, "a fix pass must not advance memory")

	st, err := o.Stitch(store.DateRange{})
	require.NoError(t, err)
	require.Len(t, st.Records, 1)
	assert.Equal(t, first.ID, st.Records[0].FixOf)

	// Nothing left to fix: no new artifact.
	_, err = o.FixDay(context.Background(), job)
	require.NoError(t, err)
	n, err := o.Manifest().CountFixes("m-test", "2025-03-11")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFixDay_RequiresGeneratedDay(t *testing.T) {
	o := newTestOrchestrator(t, &llmtest.MockCompleter{Handler: llmtest.TwoPassHandler(nil)})
	_, err := o.FixDay(context.Background(), testJob(t, "2025-03-11"))
	assert.Error(t, err)
}

func TestStitchIsByteIdentical(t *testing.T) {
	mock := &llmtest.MockCompleter{Handler: llmtest.TwoPassHandler(nil)}
	o := newTestOrchestrator(t, mock)
	for _, d := range []string{"2025-03-11", "2025-03-12"} {
		_, err := o.GenerateDay(context.Background(), testJob(t, d))
		require.NoError(t, err)
	}

	render := func() []byte {
		r, err := store.ParseRange("2025-03-11..2025-03-12")
		require.NoError(t, err)
		st, err := o.Stitch(r)
		require.NoError(t, err)
		var buf bytes.Buffer
		require.NoError(t, store.WriteStitched(&buf, st))
		return buf.Bytes()
	}
	a, b := render(), render()
	assert.Equal(t, a, b)
	assert.Contains(t, string(a), `"2025-03-12"`)
}

func TestStats(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	mock := &llmtest.MockCompleter{Handler: llmtest.TwoPassHandler(failingHour(7, &failing))}
	s := newTestStore(t)
	o := newTestOrchestrator(t, mock, WithStore(s))

	_, err := o.GenerateDay(context.Background(), testJob(t, "2025-03-11"))
	require.NoError(t, err)

	st, err := o.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Days)
	assert.Equal(t, 1440, st.Minutes)
	assert.Equal(t, 1440*store.TokensPerMinute, st.EstimatedTokens)
	assert.Equal(t, 23, st.CachedUnits, "fallback hours are not cached")
	assert.Equal(t, 1, st.Runs)
}
