package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/monologue/internal/store"
)

var (
	rangeFlag string
	stitchOut string
)

func init() {
	cmd := &cobra.Command{
		Use:   "stitch",
		Short: "Combine generated days into one document",
		Long: `Reads the manifest and combines the newest artifact of every day in the
range into one JSON document. Stitching the same manifest twice produces
identical bytes.`,
		Args: cobra.NoArgs,
		Run:  runStitch,
	}
	cmd.Flags().StringVarP(&rangeFlag, "range", "r", "", "Date range START..END (either side may be omitted)")
	cmd.Flags().StringVar(&stitchOut, "out", "", "Write to this file instead of stdout")

	RootCmd.AddCommand(cmd)
}

func runStitch(cmd *cobra.Command, args []string) {
	r, err := store.ParseRange(rangeFlag)
	if err != nil {
		exitErr("range", err)
	}
	l := layout()
	entries, err := store.OpenManifest(l.ManifestPath()).Entries()
	if err != nil {
		exitErr("read manifest", err)
	}
	st, err := store.Stitch(l, entries, r)
	if err != nil {
		exitErr("stitch", err)
	}

	var w io.Writer = os.Stdout
	if stitchOut != "" {
		f, err := os.Create(stitchOut)
		if err != nil {
			exitErr("create output", err)
		}
		defer f.Close()
		w = f
	}
	if err := store.WriteStitched(w, st); err != nil {
		exitErr("write", err)
	}
	if stitchOut != "" {
		fmt.Fprintf(os.Stderr, "stitched %d days (%d minutes) into %s\n", st.Days, st.Minutes, stitchOut)
	}
}
