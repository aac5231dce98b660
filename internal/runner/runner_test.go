package runner

import (
	"context"
	"errors"
	"fmt"
	"lodgemirror/internal/changes"
	"lodgemirror/internal/components/chrono"
	"lodgemirror/internal/components/telemetry"
	"lodgemirror/internal/scrapers/fandom"
	"lodgemirror/internal/snapshot"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	pages      map[string]string
	pageErrors map[string]error
	members    []string
	membersErr error
	requested  []string
}

func (f *fakeFetcher) Wikitext(ctx context.Context, page string) (string, error) {
	f.requested = append(f.requested, page)
	if err, ok := f.pageErrors[page]; ok {
		return "", err
	}
	markup, ok := f.pages[page]
	if !ok {
		return "", fmt.Errorf("%w: %s: missingtitle", fandom.ErrAPI, page)
	}
	return markup, nil
}

func (f *fakeFetcher) CategoryMembers(ctx context.Context, category string) ([]string, error) {
	return f.members, f.membersErr
}

type recordingHook struct {
	reports []Report
	err     error
}

func (h *recordingHook) RunFinished(ctx context.Context, report Report) error {
	h.reports = append(h.reports, report)
	return h.err
}

func lodgePage(topics ...string) string {
	return "=== Interesting ===\n!colspan=\"2\"|Battles\n|" + strings.Join(topics, "||") + "\n"
}

var runTime = time.Date(2024, time.October, 1, 9, 30, 0, 0, time.UTC)

type testRun struct {
	cfg     Config
	fetcher *fakeFetcher
	store   snapshot.Store
	tel     *telemetry.TestAPI
}

func newTestRun(t *testing.T, trainers ...string) *testRun {
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Trainers = trainers

	tel := telemetry.NewTestAPI()
	return &testRun{
		cfg: cfg,
		fetcher: &fakeFetcher{
			pages:      map[string]string{},
			pageErrors: map[string]error{},
		},
		store: snapshot.NewStore(cfg.StoreOptions(), chrono.FixedTime{At: runTime}, tel),
		tel:   tel,
	}
}

func (tr *testRun) run(ctx context.Context, hooks ...Hook) (Report, error) {
	r := New(tr.cfg, tr.fetcher, tr.store, chrono.FixedTime{At: runTime}, tr.tel, hooks...)
	return r.Run(ctx)
}

func TestRunDiscoversAndSaves(t *testing.T) {
	tr := newTestRun(t, "Blue", "Lance")
	tr.fetcher.members = []string{
		"Trainer Lodge",
		"Trainer Lodge/Blue",
		"Trainer Lodge/Iono",
		"Trainer Lodge/Expeditions",
		"Trainer Lodge/Lodge Exchange",
		"Category:Something Else",
		"Trainer Lodge/" + strings.Repeat("x", MaxNameLength+1),
	}
	tr.fetcher.pages["Trainer Lodge/Blue"] = lodgePage("Red", "Pidgeot")
	tr.fetcher.pages["Trainer Lodge/Lance"] = lodgePage("Dragonite")
	tr.fetcher.pages["Trainer Lodge/Iono"] = lodgePage("Streaming")

	hook := &recordingHook{}
	report, err := tr.run(context.Background(), hook)
	require.NoError(t, err)

	require.Equal(t, 3, report.Total)
	require.Equal(t, 3, report.Scraped)
	require.Empty(t, report.Failures)
	require.Equal(t, []string{"Iono"}, report.Discovered)
	require.Equal(t, []string{
		"Trainer Lodge/Blue",
		"Trainer Lodge/Iono",
		"Trainer Lodge/Lance",
	}, tr.fetcher.requested)

	require.Len(t, report.Changes, 3)
	for _, c := range report.Changes {
		require.Equal(t, changes.KindNew, c.Kind)
	}
	require.Equal(t, "1 tiers, 2 topics", report.Changes[0].Summary)

	require.Equal(t, 3, report.Metadata.TrainerCount)
	require.Equal(t, 4, report.Metadata.TotalTopics)
	require.Equal(t, runTime, report.Finished)

	require.Len(t, hook.reports, 1)
	require.Equal(t, report, hook.reports[0])

	dataset, err := tr.store.LoadDataset()
	require.NoError(t, err)
	require.Equal(t, []string{"Blue", "Iono", "Lance"}, dataset.Names())

	scraped, ok := tr.tel.Count(report_runner_scraped)
	require.True(t, ok)
	require.Equal(t, int64(3), scraped)
}

func TestRunNeverScrapesMetadataName(t *testing.T) {
	tr := newTestRun(t, "Blue", snapshot.MetadataKey)
	tr.fetcher.members = []string{"Trainer Lodge/" + snapshot.MetadataKey}
	tr.fetcher.pages["Trainer Lodge/Blue"] = lodgePage("Red")

	report, err := tr.run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Total)
	require.Empty(t, report.Discovered)
	require.Equal(t, []string{"Trainer Lodge/Blue"}, tr.fetcher.requested)
}

func TestRunClassifiesFailures(t *testing.T) {
	tr := newTestRun(t, "Blue", "Cynthia", "Iono", "Lance")
	tr.fetcher.pageErrors["Trainer Lodge/Blue"] = fmt.Errorf("%w after 3 attempts: http 503", fandom.ErrNoResponse)
	tr.fetcher.pages["Trainer Lodge/Cynthia"] = lodgePage("Garchomp")
	tr.fetcher.pages["Trainer Lodge/Iono"] = "{{Stub}}\nNothing here yet."
	tr.fetcher.pageErrors["Trainer Lodge/Lance"] = fmt.Errorf("%w: missing parse.wikitext", fandom.ErrMalformedResponse)

	report, err := tr.run(context.Background())
	require.ErrorIs(t, err, ErrTooManyFailures)

	require.Equal(t, 4, report.Total)
	require.Equal(t, 1, report.Scraped)
	require.Equal(t, []string{"Blue", "Iono", "Lance"}, report.FailedNames())

	kinds := map[string]FailureKind{}
	for _, f := range report.Failures {
		kinds[f.Trainer] = f.Kind
	}
	require.Equal(t, map[string]FailureKind{
		"Blue":  FailureFetch,
		"Iono":  FailureEmpty,
		"Lance": FailureMalformed,
	}, kinds)
	require.ErrorIs(t, report.Failures[1].Err, ErrEmptyParse)

	// the run still saves what it got
	meta, err := snapshot.ReadMetadata(tr.store.DataPath())
	require.NoError(t, err)
	require.Equal(t, []string{"Blue", "Iono", "Lance"}, meta.Errors)
	require.Equal(t, 1, meta.TrainerCount)

	require.Len(t, tr.tel.Reports("warning", report_runner_scrape_trainer), 3)
}

func TestRunHalfFailedIsNotFatal(t *testing.T) {
	tr := newTestRun(t, "Blue", "Lance")
	tr.fetcher.pages["Trainer Lodge/Blue"] = lodgePage("Red")

	report, err := tr.run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Lance"}, report.FailedNames())
	require.False(t, report.TooManyFailures())
}

func TestRunDiscoveryFailure(t *testing.T) {
	tr := newTestRun(t, "Blue")
	tr.fetcher.membersErr = fmt.Errorf("%w after 3 attempts", fandom.ErrNoResponse)
	tr.fetcher.pages["Trainer Lodge/Blue"] = lodgePage("Red")

	report, err := tr.run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Scraped)
	require.Empty(t, report.Discovered)
	require.Len(t, tr.tel.Reports("warning", report_runner_discover), 1)
}

func TestRunReportsModifications(t *testing.T) {
	tr := newTestRun(t, "Blue")
	tr.fetcher.pages["Trainer Lodge/Blue"] = lodgePage("Red", "Pidgeot")

	_, err := tr.run(context.Background())
	require.NoError(t, err)

	// reordering alone is not a change
	tr.fetcher.pages["Trainer Lodge/Blue"] = lodgePage("Pidgeot", "Red")
	report, err := tr.run(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Changes)

	tr.fetcher.pages["Trainer Lodge/Blue"] = lodgePage("Red", "Pidgeot", "Gym Leaders")
	report, err = tr.run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []changes.Change{{
		Kind:    changes.KindModified,
		Trainer: "Blue",
		Details: []string{"+[Interesting/Battles]: Gym Leaders"},
	}}, report.Changes)

	changelog, err := tr.store.LoadChangelog()
	require.NoError(t, err)
	require.Len(t, changelog.Updates, 2)
	require.Equal(t, report.Changes, changelog.Updates[0].Changes)
}

func TestRunHookFailureIsAWarning(t *testing.T) {
	tr := newTestRun(t, "Blue")
	tr.fetcher.pages["Trainer Lodge/Blue"] = lodgePage("Red")

	failing := &recordingHook{err: errors.New("smtp: connection refused")}
	after := &recordingHook{}
	_, err := tr.run(context.Background(), failing, after)
	require.NoError(t, err)
	require.Len(t, failing.reports, 1)
	require.Len(t, after.reports, 1)
	require.Len(t, tr.tel.Reports("warning", report_runner_hook), 1)
}

func TestRunWarnsAboutLookalikes(t *testing.T) {
	tr := newTestRun(t, "Professor Sycamore", "Blue")
	tr.fetcher.members = []string{"Trainer Lodge/Profesor Sycamore", "Trainer Lodge/Blue"}
	tr.fetcher.pages["Trainer Lodge/Professor Sycamore"] = lodgePage("Research")
	tr.fetcher.pages["Trainer Lodge/Profesor Sycamore"] = lodgePage("Research")
	tr.fetcher.pages["Trainer Lodge/Blue"] = lodgePage("Red")

	report, err := tr.run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"Profesor Sycamore"}, report.Discovered)

	warnings := tr.tel.Reports("warning", report_runner_discover)
	require.Len(t, warnings, 1)
	require.ErrorContains(t, warnings[0].Params[0].(error), `"Professor Sycamore"`)
}

func TestRunSaveFailure(t *testing.T) {
	tr := newTestRun(t, "Blue")
	tr.fetcher.pages["Trainer Lodge/Blue"] = lodgePage("Red")

	// a regular file where the data directory should be
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	tr.store = snapshot.NewStore(snapshot.Options{Dir: filepath.Join(blocker, "data")}, chrono.FixedTime{At: runTime}, tr.tel)

	hook := &recordingHook{}
	_, err := tr.run(context.Background(), hook)
	require.Error(t, err)
	require.Empty(t, hook.reports)
	require.Len(t, tr.tel.Reports("broken", report_runner_save), 1)
}

func TestRunCancelled(t *testing.T) {
	tr := newTestRun(t, "Blue", "Lance")
	tr.fetcher.pages["Trainer Lodge/Blue"] = lodgePage("Red")
	tr.fetcher.pages["Trainer Lodge/Lance"] = lodgePage("Dragonite")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	_, err = os.Stat(tr.store.DataPath())
	require.True(t, os.IsNotExist(err))
}

func TestChangeLineTruncatesDetails(t *testing.T) {
	long := strings.Repeat("é", maxDetailLength+10)
	line := changeLine(changes.Change{Kind: changes.KindModified, Trainer: "Blue", Details: []string{long}})
	require.Equal(t, "[MODIFIED TRAINER] Blue - "+strings.Repeat("é", maxDetailLength), line)

	line = changeLine(changes.Change{Kind: changes.KindRemoved, Trainer: "Blue"})
	require.Equal(t, "[REMOVED TRAINER] Blue", line)
}

func TestConfigWithDefaults(t *testing.T) {
	cfg, err := Config{DataDir: "mirror", Trainers: []string{"Blue"}, PaceMs: 10}.WithDefaults()
	require.NoError(t, err)
	require.Equal(t, "mirror", cfg.DataDir)
	require.Equal(t, []string{"Blue"}, cfg.Trainers)
	require.Equal(t, "Trainer Lodge/", cfg.PagePrefix)
	require.Equal(t, fandom.DefaultMaxRetries, cfg.MaxRetries)

	opts := cfg.ClientOptions()
	require.Equal(t, 10*time.Millisecond, opts.Pace)
	require.Equal(t, fandom.DefaultRetryDelay, opts.RetryDelay)

	cfg, err = Config{}.WithDefaults()
	require.NoError(t, err)
	require.Len(t, cfg.Trainers, 50)
}
