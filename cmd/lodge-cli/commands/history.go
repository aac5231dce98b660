package commands

import (
	"context"
	"fmt"
	"lodgemirror/cmd/lodge-cli/utils"
	"lodgemirror/internal/archive"
	"lodgemirror/internal/components/telemetry"
	"lodgemirror/lib/serviceutil"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	historyArchive *string
	historyLimit   *int
	historyRun     *string
	historyTrainer *string
)

func init() {
	historyArchive = historyCmd.Flags().String("archive", "", "The archive database or libsql url, overrides archive.file.")
	historyLimit = historyCmd.Flags().IntP("limit", "n", 20, "The number of runs to list.")
	historyRun = historyCmd.Flags().String("run", "", "Show the changes and failures of a single run.")
	historyTrainer = historyCmd.Flags().String("trainer", "", "Show every archived change of a trainer.")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [--archive <db>] [--limit <n>] [--run <id> | --trainer <name>]",
	Short: "Lists archived runs.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		err := history(cmd.Context())
		if err != nil {
			serviceutil.Fatal("failed to read history", err)
		}
	},
}

func history(ctx context.Context) error {
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *historyArchive != "" {
		cfg.Archive.File = *historyArchive
	}
	if cfg.Archive.File == "" {
		return fmt.Errorf("no archive configured, set archive.file or pass --archive")
	}
	if *historyLimit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", *historyLimit)
	}

	db, err := cfg.Archive.OpenDB()
	if err != nil {
		return err
	}
	defer db.Close()
	runArchive, err := archive.New(ctx, db, telemetry.NewSlogAPI())
	if err != nil {
		return err
	}

	switch {
	case *historyRun != "":
		changeList, err := runArchive.Changes(ctx, *historyRun)
		if err != nil {
			return err
		}
		failures, err := runArchive.Failures(ctx, *historyRun)
		if err != nil {
			return err
		}
		if len(changeList) > 0 {
			printChanges(changeList)
		}
		if len(failures) > 0 {
			t := utils.NewTable()
			t.AppendHeader(table.Row{"Failed", "Kind", "Error"})
			for _, f := range failures {
				t.AppendRow(table.Row{f.Trainer, f.Kind, f.Message})
			}
			t.Render()
		}
		if len(changeList) == 0 && len(failures) == 0 {
			fmt.Println("Nothing recorded for this run.")
		}
	case *historyTrainer != "":
		changeList, err := runArchive.TrainerChanges(ctx, *historyTrainer)
		if err != nil {
			return err
		}
		if len(changeList) == 0 {
			fmt.Println("No changes recorded for this trainer.")
			return nil
		}
		printChanges(changeList)
	default:
		runs, err := runArchive.Runs(ctx, *historyLimit)
		if err != nil {
			return err
		}
		t := utils.NewTable()
		t.AppendHeader(table.Row{"Run", "Started", "Took", "Scraped", "Failed", "Changes", "Topics"})
		for _, run := range runs {
			t.AppendRow(table.Row{
				run.Id,
				run.Started.Format("2006-01-02 15:04 UTC"),
				run.Finished.Sub(run.Started).Round(time.Second),
				fmt.Sprintf("%d/%d", run.Scraped, run.Total),
				run.Failed,
				run.ChangeCount,
				run.TotalTopics,
			})
		}
		t.Render()
	}
	return nil
}
