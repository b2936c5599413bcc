// Package orchestrator drives planning and two-pass generation for days,
// weeks and months, and persists the results idempotently.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/monologue/internal/chunker"
	"github.com/rcliao/monologue/internal/llm"
	"github.com/rcliao/monologue/internal/memory"
	"github.com/rcliao/monologue/internal/metrics"
	"github.com/rcliao/monologue/internal/model"
	"github.com/rcliao/monologue/internal/planner"
	"github.com/rcliao/monologue/internal/scenario"
	"github.com/rcliao/monologue/internal/store"
	"github.com/rcliao/monologue/internal/twopass"
	"github.com/rcliao/monologue/internal/vocab"
)

// Sizes of the composite runs.
const (
	DaysPerWeek   = 7
	WeeksPerMonth = 4
	DaysPerYear   = 365
)

// Config holds the orchestrator settings.
type Config struct {
	// Concurrency bounds in-flight service calls. Zero uses
	// DefaultConcurrency.
	Concurrency int

	// Output is where artifacts, the manifest and memory are written.
	Output string

	// Provider and Model are recorded in provenance.
	Provider string
	Model    string

	Generation twopass.Config
}

// Job identifies what to generate.
type Job struct {
	Scenario *model.Scenario
	Timeline *model.WeeklyTimeline
	Date     time.Time

	// Force regenerates days already present in the manifest.
	Force bool
}

// Orchestrator composes planning, generation and persistence.
type Orchestrator struct {
	cfg      Config
	layout   store.Layout
	planner  *planner.Planner
	gen      *twopass.Generator
	cache    store.Store
	manifest *store.Manifest
	logger   *zap.Logger
	metrics  *metrics.Metrics
	vocab    *vocab.Store
	now      func() time.Time

	yearLength int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStore enables the hour cache and run ledger.
func WithStore(s store.Store) Option {
	return func(o *Orchestrator) { o.cache = s }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMetrics records gate, unit and day metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithVocabulary sets the vocabulary band store.
func WithVocabulary(v *vocab.Store) Option {
	return func(o *Orchestrator) { o.vocab = v }
}

// WithPlanner overrides the default planner.
func WithPlanner(p *planner.Planner) Option {
	return func(o *Orchestrator) { o.planner = p }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New returns an orchestrator that sends requests through c.
func New(c llm.Completer, cfg Config, opts ...Option) (*Orchestrator, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Generation == (twopass.Config{}) {
		cfg.Generation = twopass.DefaultConfig()
	}
	layout := store.Layout{Root: cfg.Output}
	o := &Orchestrator{
		cfg:      cfg,
		layout:   layout,
		manifest: store.OpenManifest(layout.ManifestPath()),
		logger:   zap.NewNop(),
		now:      time.Now,

		yearLength: DaysPerYear,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.planner == nil {
		tables, err := planner.DefaultTables()
		if err != nil {
			return nil, fmt.Errorf("load age tables: %w", err)
		}
		o.planner = planner.New(tables)
	}
	if o.vocab == nil {
		o.vocab = vocab.NewStore("", o.logger)
	}
	o.gen = twopass.New(newGate(c, cfg.Concurrency, o.metrics), o.vocab,
		twopass.WithConfig(cfg.Generation),
		twopass.WithLogger(o.logger),
		twopass.WithMetrics(o.metrics),
		twopass.WithClock(o.now))
	return o, nil
}

// Layout returns the output layout.
func (o *Orchestrator) Layout() store.Layout { return o.layout }

// Manifest returns the manifest.
func (o *Orchestrator) Manifest() *store.Manifest { return o.manifest }

// GenerateDay generates, persists and indexes one day. A day already in the
// manifest is loaded instead unless job.Force is set. Only input errors,
// cancellation and persistence failures are returned; generation failures
// degrade to fallback hours.
func (o *Orchestrator) GenerateDay(ctx context.Context, job Job) (*model.DayRecord, error) {
	runID := o.startRun(ctx, "day", job)
	rec, err := o.generateDay(ctx, job)
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

func (o *Orchestrator) generateDay(ctx context.Context, job Job) (*model.DayRecord, error) {
	sc := job.Scenario
	date := job.Date.Format(scenario.DateLayout)
	log := o.logger.With(zap.String("monologue", sc.MonologueID), zap.String("date", date))

	plans, err := o.planner.PlanDay(sc, job.Date, job.Timeline)
	if err != nil {
		return nil, err
	}

	if !job.Force {
		if rec, ok := o.existing(sc.MonologueID, date, log); ok {
			o.metrics.Day("skipped")
			return rec, nil
		}
	}

	memPath := o.layout.MemoryPath(sc.MonologueID)
	mem, err := store.LoadMemory(memPath)
	if err != nil {
		return nil, err
	}
	continuity, err := mem.JSON()
	if err != nil {
		return nil, fmt.Errorf("snapshot memory: %w", err)
	}

	start := o.now()
	log.Info("generating day", zap.Int("concurrency", o.cfg.Concurrency))

	ranges := chunker.Chunk(chunker.DefaultOptions())
	pairs := make([]model.HourPair, 0, len(plans))
	for _, r := range ranges {
		if err := ctx.Err(); err != nil {
			o.metrics.Day("aborted")
			return nil, fmt.Errorf("generate %s: aborted before hours %d-%d: %w", date, r.Start, r.Last(), err)
		}
		chunk := o.runChunk(ctx, sc, plans[r.Start:r.End], mem, r, !job.Force, log)
		pairs = append(pairs, chunk...)

		internal := make([]model.InternalResult, len(chunk))
		for i, p := range chunk {
			internal[i] = p.Internal
		}
		mem.Update(date, r.Start, r.Last(), internal)
		if err := store.SaveMemory(memPath, mem); err != nil {
			return nil, fmt.Errorf("save memory: %w", err)
		}
		log.Debug("chunk committed", zap.Int("chunk", r.Index), zap.Int("last_hour", r.Last()))
	}

	age := planner.AgeOn(sc, job.Date)
	rec := &model.DayRecord{
		MonologueID:      sc.MonologueID,
		Date:             date,
		GenerationMethod: model.GenerationMethod,
		AgeDays:          age.Days,
		AgeWeeks:         age.Weeks,
		AgeYears:         age.Years,
		WeekIndex:        age.WeekIndex,
		Provenance:       o.provenance(sc, plans[0].Development, len(ranges), start),
		Continuity:       continuity,
		Hours:            pairs,
	}
	rec.Tally()

	path, err := o.dayPath(sc.MonologueID, job.Date, job.Force)
	if err != nil {
		return nil, err
	}
	if _, err := o.persist(rec, path); err != nil {
		return nil, err
	}
	o.metrics.Day("generated")
	log.Info("day complete",
		zap.String("file", path),
		zap.Int("service", rec.Entries.Service),
		zap.Int("repaired", rec.Entries.Repaired),
		zap.Int("fallback", rec.Entries.Fallback),
		zap.Duration("elapsed", o.now().Sub(start)))
	return rec, nil
}

// dayPath picks where a generated day is written. A forced run over an
// indexed day gets a fresh regen artifact so indexed files are never
// rewritten.
func (o *Orchestrator) dayPath(monologueID string, date time.Time, force bool) (string, error) {
	if !force {
		return o.layout.DayPath(monologueID, date), nil
	}
	n, err := o.manifest.CountGenerated(monologueID, date.Format(scenario.DateLayout))
	if err != nil {
		return "", fmt.Errorf("read manifest: %w", err)
	}
	if n == 0 {
		return o.layout.DayPath(monologueID, date), nil
	}
	return o.layout.RegenPath(monologueID, date, n), nil
}

// runChunk generates the hours of one chunk. With useCache set, hours already
// in the cache are reused instead of requested again.
func (o *Orchestrator) runChunk(ctx context.Context, sc *model.Scenario, plans []model.UnitPlan, mem *memory.Memory, r chunker.Range, useCache bool, log *zap.Logger) []model.HourPair {
	out := make([]model.HourPair, len(plans))
	var todo []model.UnitPlan
	var slots []int
	for i, plan := range plans {
		if useCache {
			if pair, ok := o.cached(ctx, plan, log); ok {
				out[i] = pair
				continue
			}
		}
		todo = append(todo, plan)
		slots = append(slots, i)
	}
	if len(todo) == 0 {
		return out
	}

	snap := mem.Snapshot()
	generated := o.gen.GenerateChunk(ctx, sc, todo, &snap, r)
	for j, pair := range generated {
		out[slots[j]] = pair
		if o.cache == nil || pair.Fallback() {
			continue
		}
		if err := o.cache.PutUnit(ctx, sc.MonologueID, todo[j].Date, pair); err != nil {
			log.Warn("cache hour failed", zap.Int("hour", pair.Hour), zap.Error(err))
		}
	}
	return out
}

func (o *Orchestrator) cached(ctx context.Context, plan model.UnitPlan, log *zap.Logger) (model.HourPair, bool) {
	if o.cache == nil {
		return model.HourPair{}, false
	}
	pair, ok, err := o.cache.GetUnit(ctx, plan.ContentHash)
	if err != nil {
		log.Warn("read cached hour failed", zap.Int("hour", plan.Hour), zap.Error(err))
		return model.HourPair{}, false
	}
	if !ok || pair.Hour != plan.Hour || pair.External.Validate() != nil || pair.Internal.Validate() != nil {
		return model.HourPair{}, false
	}
	log.Debug("reusing cached hour", zap.Int("hour", plan.Hour))
	return *pair, true
}

// existing loads the newest persisted record for a date.
func (o *Orchestrator) existing(monologueID, date string, log *zap.Logger) (*model.DayRecord, bool) {
	entry, ok, err := o.manifest.Latest(monologueID, date)
	if err != nil {
		log.Warn("read manifest failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	rec, err := store.ReadDay(o.layout.Abs(entry.File))
	if err != nil {
		log.Warn("manifest artifact unreadable, regenerating", zap.String("file", entry.File), zap.Error(err))
		return nil, false
	}
	log.Info("day already generated, skipping", zap.String("file", entry.File))
	return rec, true
}

// persist writes rec and then appends its manifest entry.
func (o *Orchestrator) persist(rec *model.DayRecord, path string) (model.ManifestEntry, error) {
	if err := store.WriteJSON(path, rec); err != nil {
		return model.ManifestEntry{}, fmt.Errorf("write day %s: %w", rec.Date, err)
	}
	entry, err := o.manifest.Append(model.ManifestEntry{
		MonologueID: rec.MonologueID,
		Date:        rec.Date,
		File:        o.layout.Rel(path),
		Minutes:     rec.Minutes(),
		Units:       rec.Units,
		Provenance:  rec.Provenance,
		FixOf:       rec.FixOf,
		CreatedAt:   o.now().UTC(),
	})
	if err != nil {
		return entry, fmt.Errorf("index day %s: %w", rec.Date, err)
	}
	return entry, nil
}

func (o *Orchestrator) provenance(sc *model.Scenario, week model.WeekContext, chunks int, at time.Time) model.Provenance {
	return model.Provenance{
		Model:           o.cfg.Model,
		Provider:        o.cfg.Provider,
		PromptVersion:   twopass.PromptVersion,
		Temperature:     o.gen.Config().Temperature,
		Seed:            sc.Seed,
		Chunks:          chunks,
		TimelineContext: week,
		GeneratedAt:     at.UTC(),
	}
}

func (o *Orchestrator) startRun(ctx context.Context, kind string, job Job) string {
	if o.cache == nil {
		return ""
	}
	id, err := o.cache.StartRun(ctx, store.RunParams{
		Kind:        kind,
		MonologueID: job.Scenario.MonologueID,
		StartDate:   job.Date.Format(scenario.DateLayout),
	})
	if err != nil {
		o.logger.Warn("record run start failed", zap.Error(err))
		return ""
	}
	return id
}

func (o *Orchestrator) finishRun(ctx context.Context, id string, r store.RunResult) {
	if o.cache == nil || id == "" {
		return
	}
	// Close the ledger row even when ctx is cancelled.
	if err := o.cache.FinishRun(context.WithoutCancel(ctx), id, r); err != nil {
		o.logger.Warn("record run finish failed", zap.String("run", id), zap.Error(err))
	}
}

// isInputError reports whether err came from invalid user input.
func isInputError(err error) bool {
	return errors.Is(err, scenario.ErrInvalidInput)
}
