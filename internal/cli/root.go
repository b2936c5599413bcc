// Package cli implements the monologue CLI commands.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/monologue/internal/config"
	"github.com/rcliao/monologue/internal/logging"
	"github.com/rcliao/monologue/internal/scenario"
	"github.com/rcliao/monologue/internal/store"
)

var (
	configPath  string
	outputDir   string
	formatFlag  string
	verbose     bool
	metricsAddr string

	cfg    *config.Config
	logger = zap.NewNop()
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "monologue",
	Short: "Generate synthetic minute-by-minute child monologues",
	Long: `Generates a synthetic developmental timeline for one simulated child: for
every minute of every day, what happens around the child and what the child
experiences. Days are planned deterministically, generated in two 12-hour
chunks, and written as date-partitioned JSON indexed by an append-only
manifest.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath, os.Getenv)
		if err != nil {
			return err
		}
		if outputDir != "" {
			cfg.Output = outputDir
		}
		if metricsAddr != "" {
			cfg.Metrics.Addr = metricsAddr
		}
		if verbose {
			cfg.Log.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		logger, err = logging.New(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./monologue.yaml if present)")
	RootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "Output directory (default: $MONOLOGUE_OUTPUT or ./output)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	RootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
}

func layout() store.Layout {
	return store.Layout{Root: cfg.Output}
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	_ = logger.Sync()
	if errors.Is(err, scenario.ErrInvalidInput) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
