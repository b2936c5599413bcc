package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/monologue/internal/llm"
	"github.com/rcliao/monologue/internal/metrics"
	"github.com/rcliao/monologue/internal/model"
	"github.com/rcliao/monologue/internal/orchestrator"
	"github.com/rcliao/monologue/internal/planner"
	"github.com/rcliao/monologue/internal/scenario"
	"github.com/rcliao/monologue/internal/store"
	"github.com/rcliao/monologue/internal/vocab"
)

var (
	timelinePath string
	concurrency  int
	forceFlag    bool
)

func init() {
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate a day, week, month or year",
	}

	day := &cobra.Command{
		Use:   "day <scenario.json> <YYYY-MM-DD>",
		Short: "Generate one day",
		Args:  cobra.ExactArgs(2),
		Run:   runGenerateDay,
	}
	week := &cobra.Command{
		Use:   "week <scenario.json> <YYYY-MM-DD>",
		Short: "Generate 7 consecutive days and a week summary",
		Args:  cobra.ExactArgs(2),
		Run:   runGenerateWeek,
	}
	month := &cobra.Command{
		Use:   "month <scenario.json> <YYYY-MM-DD>",
		Short: "Generate 4 consecutive weeks and a month summary",
		Args:  cobra.ExactArgs(2),
		Run:   runGenerateMonth,
	}
	year := &cobra.Command{
		Use:   "year <scenario.json> <1-5>",
		Short: "Generate one year of life and a year summary",
		Args:  cobra.ExactArgs(2),
		Run:   runGenerateYear,
	}
	for _, c := range []*cobra.Command{day, week, month, year} {
		c.Flags().StringVarP(&timelinePath, "timeline", "t", "", "Weekly timeline JSON (default: the scenario's weekly_plan_file)")
		c.Flags().IntVarP(&concurrency, "concurrency", "n", 0, "Maximum in-flight service calls (default: from config, 8)")
		c.Flags().BoolVar(&forceFlag, "force", false, "Regenerate days already in the manifest")
		generate.AddCommand(c)
	}

	RootCmd.AddCommand(generate)
}

func runGenerateDay(cmd *cobra.Command, args []string) {
	job := loadJob(args)
	o, done := openOrchestrator(cmd.Context())
	defer done()

	rec, err := o.GenerateDay(cmd.Context(), job)
	if err != nil {
		exitErr("generate day", err)
	}
	if formatFlag == "text" {
		fmt.Printf("%s  %s  minutes=%d  %s\n", rec.Date, rec.MonologueID, rec.Minutes(), sourceLine(rec.Entries))
		return
	}
	printJSON(map[string]any{
		"date":           rec.Date,
		"monologue_id":   rec.MonologueID,
		"minutes":        rec.Minutes(),
		"unit_sources":   rec.Units,
		"entry_sources":  rec.Entries,
		"age_weeks":      rec.AgeWeeks,
		"generation":     rec.GenerationMethod,
		"prompt_version": rec.Provenance.PromptVersion,
	})
}

func runGenerateWeek(cmd *cobra.Command, args []string) {
	job := loadJob(args)
	o, done := openOrchestrator(cmd.Context())
	defer done()

	sum, err := o.GenerateWeek(cmd.Context(), job)
	if err != nil {
		exitErr("generate week", err)
	}
	if formatFlag == "text" {
		fmt.Printf("week of %s  days=%d  failed=%d  weeks %d-%d  %s\n",
			sum.StartDate, len(sum.DaysGenerated), len(sum.Failures), sum.AgeRange[0], sum.AgeRange[1], sourceLine(sum.Units))
		return
	}
	printJSON(sum)
}

func runGenerateMonth(cmd *cobra.Command, args []string) {
	job := loadJob(args)
	o, done := openOrchestrator(cmd.Context())
	defer done()

	sum, err := o.GenerateMonth(cmd.Context(), job)
	if err != nil {
		exitErr("generate month", err)
	}
	if formatFlag == "text" {
		fmt.Printf("month of %s  days=%d  %s\n", sum.StartDate, sum.Days, sourceLine(sum.Units))
		return
	}
	printJSON(sum)
}

func runGenerateYear(cmd *cobra.Command, args []string) {
	n, err := strconv.Atoi(args[1])
	if err != nil {
		exitErr("parse year", fmt.Errorf("%w: year %q is not a number", scenario.ErrInvalidInput, args[1]))
	}
	sc, tl := loadScenario(args[0])
	o, done := openOrchestrator(cmd.Context())
	defer done()

	sum, err := o.GenerateYear(cmd.Context(), orchestrator.Job{Scenario: sc, Timeline: tl, Force: forceFlag}, n)
	if err != nil {
		exitErr("generate year", err)
	}
	if formatFlag == "text" {
		fmt.Printf("year %d  %s..%s  days=%d  failed=%d  %s\n",
			sum.Year, sum.StartDate, sum.EndDate, len(sum.DaysGenerated), len(sum.Failures), sourceLine(sum.Units))
		return
	}
	printJSON(sum)
}

func sourceLine(c model.SourceCounts) string {
	return fmt.Sprintf("service=%d repaired=%d fallback=%d", c.Service, c.Repaired, c.Fallback)
}

// loadJob reads the scenario, date and timeline named on the command line.
func loadJob(args []string) orchestrator.Job {
	sc, tl := loadScenario(args[0])
	date, err := scenario.ParseDate(args[1])
	if err != nil {
		exitErr("parse date", err)
	}
	if err := scenario.CheckDate(sc, date); err != nil {
		exitErr("check date", err)
	}
	return orchestrator.Job{Scenario: sc, Timeline: tl, Date: date, Force: forceFlag}
}

func loadScenario(path string) (*model.Scenario, *model.WeeklyTimeline) {
	sc, err := scenario.Load(path)
	if err != nil {
		exitErr("load scenario", err)
	}
	tl, err := scenario.LoadTimeline(scenario.ResolveTimeline(timelinePath, path, sc))
	if err != nil {
		exitErr("load timeline", err)
	}
	return sc, tl
}

// loadPlanner builds the planner from the configured age tables, or the
// built-in tables when none are configured.
func loadPlanner() *planner.Planner {
	tables, err := planner.LoadTables(cfg.Tables)
	if err != nil {
		exitErr("load age tables", err)
	}
	return planner.New(tables)
}

// openOrchestrator wires provider, client, cache, metrics and vocabulary into
// an orchestrator. The returned func releases them.
func openOrchestrator(ctx context.Context) (*orchestrator.Orchestrator, func()) {
	provider, err := llm.NewProvider(ctx, cfg.Settings())
	if err != nil {
		exitErr("provider", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	ctx, cancel := context.WithCancel(ctx)
	served := make(chan struct{})
	if cfg.Metrics.Addr != "" {
		go func() {
			defer close(served)
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, reg); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("addr", cfg.Metrics.Addr))
	} else {
		close(served)
	}

	client := llm.NewClient(provider,
		llm.WithRetryConfig(cfg.Retry),
		llm.WithMinInterval(cfg.Generation.MinInterval),
		llm.WithLogger(logger),
		llm.WithMetrics(m))

	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(m),
		orchestrator.WithVocabulary(vocab.NewStore(cfg.Vocabulary, logger)),
		orchestrator.WithPlanner(loadPlanner()),
	}
	var cache *store.SQLiteStore
	if cfg.Cache {
		cache, err = store.NewSQLiteStore(layout().DBPath())
		if err != nil {
			exitErr("open cache", err)
		}
		opts = append(opts, orchestrator.WithStore(cache))
	}

	n := cfg.Generation.Concurrency
	if concurrency > 0 {
		n = concurrency
	}
	o, err := orchestrator.New(client, orchestrator.Config{
		Concurrency: n,
		Output:      cfg.Output,
		Provider:    client.Provider().Name(),
		Model:       client.Provider().Model(),
		Generation:  cfg.TwoPass(),
	}, opts...)
	if err != nil {
		exitErr("init", err)
	}

	return o, func() {
		cancel()
		<-served
		if cache != nil {
			cache.Close()
		}
	}
}
