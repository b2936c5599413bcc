package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/monologue/internal/memory"
	"github.com/rcliao/monologue/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect or reset continuity memory",
	}

	show := &cobra.Command{
		Use:   "show <monologue-id>",
		Short: "Print the continuity memory of a monologue",
		Args:  cobra.ExactArgs(1),
		Run:   runMemoryShow,
	}
	reset := &cobra.Command{
		Use:   "reset <monologue-id>",
		Short: "Reset continuity memory to its initial state",
		Args:  cobra.ExactArgs(1),
		Run:   runMemoryReset,
	}

	cmd.AddCommand(show, reset)
	RootCmd.AddCommand(cmd)
}

func runMemoryShow(cmd *cobra.Command, args []string) {
	m, err := store.LoadMemory(layout().MemoryPath(args[0]))
	if err != nil {
		exitErr("load memory", err)
	}
	printJSON(m)
}

func runMemoryReset(cmd *cobra.Command, args []string) {
	path := layout().MemoryPath(args[0])
	if err := store.SaveMemory(path, memory.Default()); err != nil {
		exitErr("reset memory", err)
	}
	fmt.Printf("reset %s\n", path)
}
