package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/monologue/internal/model"
)

var planHour int

func init() {
	cmd := &cobra.Command{
		Use:   "plan <scenario.json> <YYYY-MM-DD>",
		Short: "Print the hour plans for a day without generating",
		Args:  cobra.ExactArgs(2),
		Run:   runPlan,
	}
	cmd.Flags().StringVarP(&timelinePath, "timeline", "t", "", "Weekly timeline JSON (default: the scenario's weekly_plan_file)")
	cmd.Flags().IntVar(&planHour, "hour", -1, "Only print this hour (0-23)")

	RootCmd.AddCommand(cmd)
}

func runPlan(cmd *cobra.Command, args []string) {
	job := loadJob(args)
	p := loadPlanner()

	var plans []model.UnitPlan
	if planHour >= 0 {
		plan, err := p.PlanHour(job.Scenario, job.Date, planHour, job.Timeline)
		if err != nil {
			exitErr("plan", err)
		}
		plans = []model.UnitPlan{plan}
	} else {
		var err error
		plans, err = p.PlanDay(job.Scenario, job.Date, job.Timeline)
		if err != nil {
			exitErr("plan", err)
		}
	}

	if formatFlag == "text" {
		for _, pl := range plans {
			fmt.Printf("%02d:00  %-7s  %-14s  %-6s  week=%d  theme=%s  hash=%s\n",
				pl.Hour, pl.SleepState, pl.Environment.TimeOfDay, pl.Environment.Season,
				pl.WeekIndex, pl.Development.DevelopmentalTheme, pl.ContentHash)
		}
		return
	}
	printJSON(plans)
}
