package commands

import (
	"fmt"
	"lodgemirror/internal/changes"
	"lodgemirror/internal/snapshot"
	"lodgemirror/lib/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(diffCmd)
}

var diffCmd = &cobra.Command{
	Use:   "diff <old.json> <new.json>",
	Short: "Lists the changes between two snapshot files.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		old, err := snapshot.ReadDataset(args[0])
		if err != nil {
			serviceutil.Fatal("failed to read old snapshot", err)
		}
		current, err := snapshot.ReadDataset(args[1])
		if err != nil {
			serviceutil.Fatal("failed to read new snapshot", err)
		}

		changeList := changes.Diff(old, current)
		if len(changeList) == 0 {
			fmt.Println("No changes.")
			return
		}
		printChanges(changeList)
	},
}
