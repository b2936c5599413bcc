package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/monologue/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show output and cache statistics",
		Args:  cobra.NoArgs,
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	l := layout()
	entries, err := store.OpenManifest(l.ManifestPath()).Entries()
	if err != nil {
		exitErr("read manifest", err)
	}
	stats := store.ManifestStats(entries)

	if _, err := os.Stat(l.DBPath()); err == nil {
		s, err := store.NewSQLiteStore(l.DBPath())
		if err != nil {
			exitErr("open cache", err)
		}
		defer s.Close()
		if err := s.AddDB(cmd.Context(), stats, l.DBPath()); err != nil {
			exitErr("stats", err)
		}
	}

	if formatFlag == "text" {
		fmt.Printf("days:      %d (%s .. %s)\n", stats.Days, stats.FirstDate, stats.LastDate)
		fmt.Printf("minutes:   %d (~%d tokens)\n", stats.Minutes, stats.EstimatedTokens)
		fmt.Printf("fixes:     %d\n", stats.Fixes)
		fmt.Printf("units:     %s\n", sourceLine(stats.Units))
		fmt.Printf("cache:     %d hours, %d runs\n", stats.CachedUnits, stats.Runs)
		return
	}
	printJSON(stats)
}
