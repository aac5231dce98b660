package commands

import (
	"context"
	"lodgemirror/cmd/lodge-cli/utils"
	"lodgemirror/internal/archive"
	"lodgemirror/internal/changes"
	"lodgemirror/internal/components/chrono"
	"lodgemirror/internal/components/telemetry"
	"lodgemirror/internal/notify"
	"lodgemirror/internal/runner"
	"lodgemirror/internal/scrapers/fandom"
	"lodgemirror/internal/snapshot"
	"lodgemirror/lib/restyutil"
	"lodgemirror/lib/serviceutil"
	"log/slog"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	scrapeData *string
	scrapeDump *string
)

func init() {
	scrapeData = scrapeCmd.Flags().String("data", "", "The directory holding trainer_lodge_data.json and changelog.json, overrides data_dir.")
	scrapeDump = scrapeCmd.Flags().String("dump", "", "Write every http exchange to this directory (emptied first).")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--config <config.json5>] [--data <dir>] [--dump <dir>]",
	Short: "Scrapes every trainer lodge page and updates the snapshot and changelog.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		err := scrape(cmd.Context())
		if err != nil {
			serviceutil.Fatal("scrape failed", err)
		}
	},
}

func scrape(ctx context.Context) error {
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *scrapeData != "" {
		cfg.DataDir = *scrapeData
	}

	otel, err := telemetry.SetupFromEnv(ctx, "lodge-cli")
	if err != nil {
		slog.Warn("failed to setup telemetry, continuing without it", "err", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := otel.Shutdown(shutdownCtx)
		if err != nil {
			slog.Warn("failed to flush telemetry", "err", err)
		}
	}()

	if otel.MeterProvider != nil {
		perfCtx, stopPerf := context.WithCancel(ctx)
		perfDone := telemetry.InstrumentPerfStats(perfCtx, 30*time.Second)
		defer func() {
			stopPerf()
			<-perfDone
		}()
	}

	tel := telemetry.NewSlogAPI()
	clock := chrono.NewStandardTime()

	clientOpts := cfg.ClientOptions()
	if *scrapeDump != "" {
		clientOpts.Dump, err = restyutil.NewDirOutput(*scrapeDump)
		if err != nil {
			return err
		}
	}
	client, err := fandom.NewClient(clientOpts, tel)
	if err != nil {
		return err
	}
	store := snapshot.NewStore(cfg.StoreOptions(), clock, tel)

	var hooks []runner.Hook
	if cfg.Archive.File != "" {
		db, err := cfg.Archive.OpenDB()
		if err != nil {
			return err
		}
		defer db.Close()
		runArchive, err := archive.New(ctx, db, tel)
		if err != nil {
			return err
		}
		hooks = append(hooks, runArchive)
	}
	if cfg.Smtp.Enabled() {
		hooks = append(hooks, notify.New(cfg.Smtp, tel))
	}

	r := runner.New(cfg.Config, client, store, clock, tel, hooks...)
	report, err := r.Run(ctx)
	if len(report.Changes) > 0 {
		printChanges(report.Changes)
	}
	return err
}

func printChanges(changeList []changes.Change) {
	t := utils.NewTable()
	t.AppendHeader(table.Row{"Change", "Trainer", "Details"})
	for _, c := range changeList {
		details := c.Summary
		if c.Kind == changes.KindModified {
			details = strings.Join(c.Details, "\n")
		}
		t.AppendRow(table.Row{c.Label(), c.Trainer, details})
	}
	t.Render()
}
