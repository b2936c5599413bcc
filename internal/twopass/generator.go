// Package twopass generates hours in two causally ordered stages: the
// external reality around the child first, then the child's internal
// experience conditioned on it. Hours are grouped into chunks; every hour
// always resolves to a schema-valid pair.
package twopass

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/monologue/internal/chunker"
	"github.com/rcliao/monologue/internal/llm"
	"github.com/rcliao/monologue/internal/logging"
	"github.com/rcliao/monologue/internal/memory"
	"github.com/rcliao/monologue/internal/metrics"
	"github.com/rcliao/monologue/internal/model"
	"github.com/rcliao/monologue/internal/recovery"
	"github.com/rcliao/monologue/internal/vocab"
)

// Config holds the generation parameters.
type Config struct {
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// SimplifiedMaxTokens is the budget for the shorter prompt used after a
	// token-limit error.
	SimplifiedMaxTokens int `yaml:"simplified_max_tokens"`
}

// DefaultConfig returns the standard generation parameters.
func DefaultConfig() Config {
	return Config{
		Temperature:         0.6,
		MaxTokens:           6000,
		SimplifiedMaxTokens: 4000,
	}
}

// HourInput is everything needed to generate one hour.
type HourInput struct {
	Scenario *model.Scenario
	Plan     model.UnitPlan

	// Memory is a read-only snapshot taken before the chunk started.
	Memory *memory.Memory

	// Chunk describes the enclosing chunk for the prompt.
	Chunk string
}

// Generator runs the two-pass protocol against a Completer.
type Generator struct {
	llm      llm.Completer
	vocab    *vocab.Store
	cfg      Config
	external *recovery.Chain[model.ExternalEntry]
	internal *recovery.Chain[model.InternalEntry]
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithConfig sets the generation parameters.
func WithConfig(cfg Config) Option {
	return func(g *Generator) { g.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Generator) { g.logger = logger }
}

// WithMetrics records resolved units into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// New returns a generator that calls c and reads vocabulary from v.
func New(c llm.Completer, v *vocab.Store, opts ...Option) *Generator {
	g := &Generator{
		llm:      c,
		vocab:    v,
		cfg:      DefaultConfig(),
		external: recovery.NewChain(recovery.ExternalSchema()),
		internal: recovery.NewChain(recovery.InternalSchema()),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.vocab == nil {
		g.vocab = vocab.NewStore("", g.logger)
	}
	return g
}

// Config returns the generation parameters in use.
func (g *Generator) Config() Config { return g.cfg }

// GenerateChunk generates the given hours concurrently and returns their
// pairs in input order. It never fails: an hour that errors or panics
// resolves to fallback content.
func (g *Generator) GenerateChunk(ctx context.Context, sc *model.Scenario, plans []model.UnitPlan, mem *memory.Memory, r chunker.Range) []model.HourPair {
	pairs := make([]model.HourPair, len(plans))
	label := fmt.Sprintf("chunk %d (hours %d-%d)", r.Index+1, r.Start, r.Last())

	var eg errgroup.Group
	for i, plan := range plans {
		eg.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					g.logger.Error("hour generation panicked",
						zap.String("date", plan.Date),
						zap.Int("hour", plan.Hour),
						zap.Any("panic", p),
						zap.ByteString("stack", debug.Stack()))
					pairs[i] = g.FallbackPair(plan, fmt.Sprintf("panic: %v", p))
				}
			}()
			pairs[i] = g.GenerateHour(ctx, HourInput{Scenario: sc, Plan: plan, Memory: mem, Chunk: label})
			return nil
		})
	}
	_ = eg.Wait()
	return pairs
}

// GenerateHour runs both stages for one hour. The internal stage starts only
// after the external stage has resolved, and its timestamp is never earlier.
func (g *Generator) GenerateHour(ctx context.Context, in HourInput) model.HourPair {
	plan := in.Plan
	log := g.logger.With(logging.Unit(plan.MonologueID, plan.Date, plan.Hour)...)

	data := newPromptData(in)
	seed := in.Scenario.Seed + int64(plan.Hour)

	ext := runStage(ctx, g, g.external, log, stageCall{
		stage:  model.StageExternal,
		hour:   plan.Hour,
		seed:   seed,
		full:   tmplExternal,
		simple: tmplExternalSimple,
		data:   data,
	})

	band := g.vocab.Get(plan.Development.VocabularyPeriod)
	data.Vocabulary = band.Constraint()
	data.Forbidden = band.ForbiddenPatterns

	var inner model.InternalResult
	idata, err := data.withExternal(ext)
	if err != nil {
		inner = g.internal.Fallback(plan.Hour, err.Error())
		inner.GeneratedAt = g.now()
		g.observe(log, inner.Stage, inner.Source, inner.Tier, inner.Error, "", 0)
	} else {
		inner = runStage(ctx, g, g.internal, log, stageCall{
			stage:  model.StageInternal,
			hour:   plan.Hour,
			seed:   seed,
			full:   tmplInternal,
			simple: tmplInternalSimple,
			data:   idata,
		})
	}
	if inner.GeneratedAt.Before(ext.GeneratedAt) {
		inner.GeneratedAt = ext.GeneratedAt
	}

	return model.HourPair{
		Hour:     plan.Hour,
		PlanHash: plan.ContentHash,
		External: ext,
		Internal: inner,
	}
}

// FallbackPair returns a fully synthetic pair for plan.
func (g *Generator) FallbackPair(plan model.UnitPlan, reason string) model.HourPair {
	now := g.now()
	ext := g.external.Fallback(plan.Hour, reason)
	ext.GeneratedAt = now
	in := g.internal.Fallback(plan.Hour, reason)
	in.GeneratedAt = now
	g.metrics.Unit(string(ext.Stage), string(ext.Source), ext.Tier)
	g.metrics.Unit(string(in.Stage), string(in.Source), in.Tier)
	return model.HourPair{Hour: plan.Hour, PlanHash: plan.ContentHash, External: ext, Internal: in}
}

type stageCall struct {
	stage  model.Stage
	hour   int
	seed   int64
	full   string
	simple string
	data   promptData
}

// runStage renders and sends one stage, escalating to the simplified prompt
// on a token-limit error, and resolves the output through chain.
func runStage[E model.Entry[E]](ctx context.Context, g *Generator, chain *recovery.Chain[E], log *zap.Logger, c stageCall) model.Result[E] {
	label := fmt.Sprintf("%s/%d", c.stage, c.hour)

	resp, err := g.send(ctx, label, c.full, c.data, g.cfg.MaxTokens, c.seed)
	if llm.IsTokenLimit(err) {
		log.Warn("token limit reached, retrying with simplified prompt",
			zap.String("stage", string(c.stage)),
			zap.Int("max_tokens", g.cfg.SimplifiedMaxTokens),
			zap.Error(err))
		resp, err = g.send(ctx, label+"/simple", c.simple, c.data, g.cfg.SimplifiedMaxTokens, c.seed)
	}

	var r model.Result[E]
	if err != nil {
		r = chain.Fallback(c.hour, err.Error())
	} else {
		r = chain.Recover(resp.Content, c.hour)
		r.RequestID = resp.RequestID
		r.Attempts = resp.Attempts
	}
	r.GeneratedAt = g.now()
	g.observe(log, r.Stage, r.Source, r.Tier, r.Error, r.RequestID, r.Attempts)
	return r
}

func (g *Generator) send(ctx context.Context, label, tmpl string, data promptData, maxTokens int, seed int64) (*llm.Response, error) {
	prompt, err := render(tmpl, data)
	if err != nil {
		return nil, err
	}
	return g.llm.Complete(ctx, llm.Request{
		Prompt:      prompt,
		Temperature: g.cfg.Temperature,
		MaxTokens:   maxTokens,
		Seed:        &seed,
		JSON:        true,
		Label:       label,
	})
}

func (g *Generator) observe(log *zap.Logger, stage model.Stage, src model.Source, tier, reason, requestID string, attempts int) {
	g.metrics.Unit(string(stage), string(src), tier)
	fields := append(logging.Stage(stage, src, requestID, attempts), zap.String("tier", tier))
	if src == model.SourceFallback {
		log.Warn("stage resolved to fallback", append(fields, zap.String("reason", reason))...)
		return
	}
	log.Debug("stage resolved", fields...)
}
