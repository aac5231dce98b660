package commands

import (
	"context"
	"fmt"
	"lodgemirror/internal/components/telemetry"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath *string
	verbose    *bool
)

var rootCmd = &cobra.Command{
	Use:   "lodge-cli",
	Short: "lodge-cli mirrors the Trainer Lodge pages of the Pokemon Masters EX wiki into a JSON snapshot.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(*verbose)
	},
}

func init() {
	configPath = rootCmd.PersistentFlags().String("config", "config.json5", "The config file, overridden by <name>.local.json5 next to it.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log every request and debug report.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
