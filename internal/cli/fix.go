package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "fix <scenario.json> <YYYY-MM-DD>",
		Short: "Regenerate the fallback hours of a generated day",
		Long: `Regenerates only the hours of a day that resolved to fallback content. The
repaired day is written as day_<date>.fix-<n>.json next to the original and
indexed in the manifest; stitching uses the newest artifact for each day.`,
		Args: cobra.ExactArgs(2),
		Run:  runFix,
	}
	cmd.Flags().StringVarP(&timelinePath, "timeline", "t", "", "Weekly timeline JSON (default: the scenario's weekly_plan_file)")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "n", 0, "Maximum in-flight service calls")

	RootCmd.AddCommand(cmd)
}

func runFix(cmd *cobra.Command, args []string) {
	job := loadJob(args)
	o, done := openOrchestrator(cmd.Context())
	defer done()

	rec, err := o.FixDay(cmd.Context(), job)
	if err != nil {
		exitErr("fix", err)
	}
	if formatFlag == "text" {
		fmt.Printf("%s  fix_of=%s  %s\n", rec.Date, rec.FixOf, sourceLine(rec.Units))
		return
	}
	printJSON(map[string]any{
		"date":         rec.Date,
		"fix_of":       rec.FixOf,
		"unit_sources": rec.Units,
	})
}
