package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rcliao/monologue/internal/chunker"
	"github.com/rcliao/monologue/internal/memory"
	"github.com/rcliao/monologue/internal/model"
	"github.com/rcliao/monologue/internal/scenario"
	"github.com/rcliao/monologue/internal/store"
)

// GenerateWeek generates DaysPerWeek consecutive days starting at job.Date
// and writes a week summary. A failing day is recorded and the week
// continues; invalid input and cancellation stop the week.
func (o *Orchestrator) GenerateWeek(ctx context.Context, job Job) (*model.WeekSummary, error) {
	runID := o.startRun(ctx, "week", job)
	sum, err := o.generateWeek(ctx, job)
	o.finishRun(ctx, runID, weekResult(sum, err))
	if err != nil {
		return sum, err
	}
	path := o.layout.WeekSummaryPath(job.Scenario.MonologueID, job.Date)
	sum.File = o.layout.Rel(path)
	if err := store.WriteJSON(path, sum); err != nil {
		return sum, fmt.Errorf("write week summary: %w", err)
	}
	return sum, nil
}

func (o *Orchestrator) generateWeek(ctx context.Context, job Job) (*model.WeekSummary, error) {
	return o.generateSpan(ctx, job, DaysPerWeek, "week")
}

// generateSpan generates days consecutive days from job.Date, recording
// failed days in the summary.
func (o *Orchestrator) generateSpan(ctx context.Context, job Job, days int, kind string) (*model.WeekSummary, error) {
	sc := job.Scenario
	sum := &model.WeekSummary{
		MonologueID:   sc.MonologueID,
		StartDate:     job.Date.Format(scenario.DateLayout),
		Milestones:    []string{},
		Activities:    []string{},
		DaysGenerated: []string{},
	}
	seenMilestone := map[string]bool{}
	seenActivity := map[string]bool{}

	for i := range days {
		day := job
		day.Date = job.Date.AddDate(0, 0, i)
		date := day.Date.Format(scenario.DateLayout)
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("%s %s: aborted before %s: %w", kind, sum.StartDate, date, err)
		}

		rec, err := o.generateDay(ctx, day)
		if err != nil {
			if isInputError(err) || ctx.Err() != nil {
				return sum, err
			}
			o.logger.Error("day failed", zap.String("date", date), zap.Error(err))
			o.metrics.Day("failed")
			sum.Failures = append(sum.Failures, model.DayFailure{Date: date, Error: err.Error()})
			continue
		}

		if len(sum.DaysGenerated) == 0 {
			sum.AgeRange[0] = rec.AgeWeeks
		}
		sum.AgeRange[1] = rec.AgeWeeks
		sum.DaysGenerated = append(sum.DaysGenerated, date)
		sum.Units.Merge(rec.Units)

		mem, err := store.LoadMemory(o.layout.MemoryPath(sc.MonologueID))
		if err != nil {
			o.logger.Warn("read memory for summary failed", zap.Error(err))
			continue
		}
		sum.Milestones = appendNew(sum.Milestones, seenMilestone, mem.RecentMilestones)
		sum.Activities = appendNew(sum.Activities, seenActivity, mem.RecentActivities)
	}
	return sum, nil
}

// GenerateMonth generates WeeksPerMonth consecutive weeks and writes a
// month summary.
func (o *Orchestrator) GenerateMonth(ctx context.Context, job Job) (*model.MonthSummary, error) {
	sum := &model.MonthSummary{
		MonologueID: job.Scenario.MonologueID,
		StartDate:   job.Date.Format(scenario.DateLayout),
		Weeks:       []model.WeekSummary{},
	}
	for i := range WeeksPerMonth {
		week := job
		week.Date = job.Date.AddDate(0, 0, i*DaysPerWeek)
		ws, err := o.GenerateWeek(ctx, week)
		if ws != nil {
			sum.Weeks = append(sum.Weeks, *ws)
			sum.Days += len(ws.DaysGenerated)
			sum.Units.Merge(ws.Units)
		}
		if err != nil {
			return sum, err
		}
	}

	path := o.layout.MonthSummaryPath(job.Scenario.MonologueID, job.Date)
	sum.File = o.layout.Rel(path)
	if err := store.WriteJSON(path, sum); err != nil {
		return sum, fmt.Errorf("write month summary: %w", err)
	}
	return sum, nil
}

// GenerateYear generates the year-th year of life, 1 through
// scenario.MaxYears, as DaysPerYear consecutive days starting
// DaysPerYear*(year-1) days after the birthdate, and writes a year summary.
// job.Date is ignored. Failing days are recorded as in GenerateWeek.
func (o *Orchestrator) GenerateYear(ctx context.Context, job Job, year int) (*model.YearSummary, error) {
	if year < 1 || year > scenario.MaxYears {
		return nil, fmt.Errorf("%w: year %d must be between 1 and %d", scenario.ErrInvalidInput, year, scenario.MaxYears)
	}
	job.Date = scenario.Birthdate(job.Scenario).AddDate(0, 0, o.yearLength*(year-1))

	runID := o.startRun(ctx, "year", job)
	span, err := o.generateSpan(ctx, job, o.yearLength, "year")
	o.finishRun(ctx, runID, weekResult(span, err))

	sum := &model.YearSummary{
		Year:        year,
		EndDate:     job.Date.AddDate(0, 0, o.yearLength-1).Format(scenario.DateLayout),
		WeekSummary: *span,
	}
	if err != nil {
		return sum, err
	}
	path := o.layout.YearSummaryPath(job.Scenario.MonologueID, year)
	sum.File = o.layout.Rel(path)
	if err := store.WriteJSON(path, sum); err != nil {
		return sum, fmt.Errorf("write year summary: %w", err)
	}
	o.logger.Info("year complete",
		zap.Int("year", year),
		zap.Int("days", len(sum.DaysGenerated)),
		zap.Int("failed", len(sum.Failures)))
	return sum, nil
}

// FixDay regenerates only the fallback hours of the newest persisted record
// for job.Date. The result is written as a new fix artifact and indexed with
// fix_of pointing at the record it replaces. Continuity memory is not
// advanced. A day without fallback hours is returned unchanged.
func (o *Orchestrator) FixDay(ctx context.Context, job Job) (*model.DayRecord, error) {
	runID := o.startRun(ctx, "fix", job)
	rec, err := o.fixDay(ctx, job)
	res := store.RunResult{Status: store.RunDone}
	if err != nil {
		res = store.RunResult{Status: store.RunFailed, Error: err.Error()}
	} else {
		res.Days = 1
		res.Units = rec.Units
	}
	o.finishRun(ctx, runID, res)
	return rec, err
}

func (o *Orchestrator) fixDay(ctx context.Context, job Job) (*model.DayRecord, error) {
	sc := job.Scenario
	date := job.Date.Format(scenario.DateLayout)
	log := o.logger.With(zap.String("monologue", sc.MonologueID), zap.String("date", date))

	plans, err := o.planner.PlanDay(sc, job.Date, job.Timeline)
	if err != nil {
		return nil, err
	}
	prev, ok, err := o.manifest.Latest(sc.MonologueID, date)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("fix %s: day has not been generated", date)
	}
	rec, err := store.ReadDay(o.layout.Abs(prev.File))
	if err != nil {
		return nil, err
	}

	var broken []int
	for _, h := range rec.Hours {
		if h.Fallback() {
			broken = append(broken, h.Hour)
		}
	}
	if len(broken) == 0 {
		log.Info("nothing to fix")
		return rec, nil
	}

	mem := memory.Default()
	if len(rec.Continuity) > 0 {
		if mem, err = memory.Decode(rec.Continuity); err != nil {
			return nil, err
		}
	}

	ranges := chunker.Chunk(chunker.DefaultOptions())
	for _, hours := range chunker.Select(ranges, broken) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fix %s: %w", date, err)
		}
		r := ranges[hours[0]/chunker.DefaultSize]
		subset := make([]model.UnitPlan, len(hours))
		for i, h := range hours {
			subset[i] = plans[h]
		}
		for _, pair := range o.runChunk(ctx, sc, subset, mem, r, true, log) {
			rec.Hours[pair.Hour] = pair
		}
	}

	n, err := o.manifest.CountFixes(sc.MonologueID, date)
	if err != nil {
		return nil, err
	}
	rec.FixOf = prev.ID
	rec.Provenance = o.provenance(sc, plans[0].Development, len(ranges), o.now())
	rec.Tally()

	path := o.layout.FixPath(sc.MonologueID, job.Date, n+1)
	if _, err := o.persist(rec, path); err != nil {
		return nil, err
	}
	o.metrics.Day("fixed")
	log.Info("day fixed",
		zap.Ints("hours", broken),
		zap.String("file", path),
		zap.Int("fallback_units", rec.Units.Fallback))
	return rec, nil
}

// Stitch aggregates the newest artifact of each day in r.
func (o *Orchestrator) Stitch(r store.DateRange) (*store.Stitched, error) {
	entries, err := o.manifest.Entries()
	if err != nil {
		return nil, err
	}
	return store.Stitch(o.layout, entries, r)
}

// Stats summarises the manifest, adding cache and run counts when a store is
// configured.
func (o *Orchestrator) Stats(ctx context.Context) (*store.Stats, error) {
	entries, err := o.manifest.Entries()
	if err != nil {
		return nil, err
	}
	st := store.ManifestStats(entries)
	if s, ok := o.cache.(*store.SQLiteStore); ok {
		if err := s.AddDB(ctx, st, o.layout.DBPath()); err != nil {
			return nil, err
		}
	}
	return st, nil
}

func weekResult(sum *model.WeekSummary, err error) store.RunResult {
	res := store.RunResult{Status: store.RunDone}
	if sum != nil {
		res.Days = len(sum.DaysGenerated)
		res.Units = sum.Units
	}
	if err != nil {
		res.Status = store.RunFailed
		res.Error = err.Error()
	}
	return res
}

func appendNew(dst []string, seen map[string]bool, items []string) []string {
	for _, s := range items {
		if !seen[s] {
			seen[s] = true
			dst = append(dst, s)
		}
	}
	return dst
}
