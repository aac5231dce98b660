// Package runner coordinates one mirroring run: discovery, fetching, parsing,
// diffing and saving, followed by the run hooks.
package runner

import (
	"context"
	"errors"
	"fmt"
	"lodgemirror/internal/changes"
	"lodgemirror/internal/components/assert"
	"lodgemirror/internal/components/chrono"
	"lodgemirror/internal/components/telemetry"
	"lodgemirror/internal/lodge"
	"lodgemirror/internal/scrapers/fandom"
	"lodgemirror/internal/snapshot"
	"lodgemirror/internal/wikitext"
	"lodgemirror/lib/textutil"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	report_runner_discover       = "runner.discover"
	report_runner_scrape_trainer = "runner.scrape-trainer"
	report_runner_save           = "runner.save"
	report_runner_hook           = "runner.hook"
	report_runner_scraped        = "runner.scraped"
	report_runner_failed         = "runner.failed"
)

var (
	// ErrEmptyParse means a page was fetched but no tier could be parsed out of it.
	ErrEmptyParse = errors.New("no tiers parsed")
	// ErrTooManyFailures means more than half of the trainers could not be scraped.
	ErrTooManyFailures = errors.New("too many failures")
)

const (
	// MaxNameLength guards against category members that are clearly not trainers.
	MaxNameLength = 49
	// LookalikeThreshold is the Jaro-Winkler similarity above which a newly
	// discovered name is reported as a possible duplicate of a known trainer.
	LookalikeThreshold = 0.9

	maxDetailLength = 120
)

// Fetcher is the wiki as seen by a run, implemented by *fandom.Client.
type Fetcher interface {
	Wikitext(ctx context.Context, page string) (string, error)
	CategoryMembers(ctx context.Context, category string) ([]string, error)
}

// Store is where the dataset and changelog live between runs, implemented by
// snapshot.Store.
type Store interface {
	LoadDataset() (lodge.Dataset, error)
	LoadChangelog() (snapshot.Changelog, error)
	Save(dataset lodge.Dataset, changeList []changes.Change, changelog snapshot.Changelog, failed []string) (snapshot.Metadata, snapshot.Changelog, error)
}

// Hook is notified after a run has been saved. A failing hook never fails the run.
type Hook interface {
	RunFinished(ctx context.Context, report Report) error
}

type FailureKind string

const (
	FailureFetch     FailureKind = "fetch_failure"
	FailureMalformed FailureKind = "malformed_response"
	FailureEmpty     FailureKind = "empty_parse"
)

type Failure struct {
	Trainer string
	Kind    FailureKind
	Err     error
}

func classify(err error) FailureKind {
	switch {
	case errors.Is(err, ErrEmptyParse):
		return FailureEmpty
	case errors.Is(err, fandom.ErrAPI), errors.Is(err, fandom.ErrMalformedResponse):
		return FailureMalformed
	default:
		return FailureFetch
	}
}

// Report is everything a run did.
type Report struct {
	Started  time.Time
	Finished time.Time
	// Total is the number of trainers the run attempted.
	Total    int
	Scraped  int
	Failures []Failure
	// Discovered are trainers found in the category that are not configured.
	Discovered []string
	Changes    []changes.Change
	Metadata   snapshot.Metadata
}

// FailedNames returns the trainers that failed in the order they were attempted.
func (r Report) FailedNames() []string {
	names := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		names[i] = f.Trainer
	}
	return names
}

// TooManyFailures is true when strictly more than half of the trainers failed.
func (r Report) TooManyFailures() bool {
	return 2*len(r.Failures) > r.Total
}

type Runner struct {
	cfg     Config
	fetcher Fetcher
	store   Store
	hooks   []Hook
	time    chrono.TimeAPI
	tel     telemetry.API
}

// New creates a Runner, `cfg` is expected to have its defaults applied.
func New(cfg Config, fetcher Fetcher, store Store, time chrono.TimeAPI, tel telemetry.API, hooks ...Hook) Runner {
	assert.NotNil(fetcher)
	assert.NotNil(store)
	assert.NotNil(time)
	assert.NotNil(tel)
	assert.NotEmptyStr(cfg.PagePrefix)
	for _, h := range hooks {
		assert.NotNil(h)
	}

	tel = telemetry.NewScopedAPI("runner", tel)

	return Runner{
		cfg:     cfg,
		fetcher: fetcher,
		store:   store,
		hooks:   hooks,
		time:    time,
		tel:     tel,
	}
}

// Run performs a full run. The returned report is filled in as far as the run
// got, a run that scraped and saved but had a majority of failures returns
// ErrTooManyFailures along with the complete report.
//
// A cancelled context aborts the run before anything is saved.
func (r Runner) Run(ctx context.Context) (Report, error) {
	report := Report{Started: r.time.Now()}

	existing, _ := r.store.LoadDataset()
	if existing == nil {
		existing = lodge.Dataset{}
	}
	changelog, _ := r.store.LoadChangelog()
	r.tel.ReportInfo(
		"loaded existing data",
		telemetry.KV{Key: "trainers", Value: len(existing)},
		telemetry.KV{Key: "changelog_entries", Value: len(changelog.Updates)},
	)

	discovered := r.discover(ctx)
	if ctx.Err() != nil {
		return report, ctx.Err()
	}
	candidates, newNames := r.candidates(discovered)
	report.Total = len(candidates)
	report.Discovered = newNames

	if len(newNames) > 0 {
		r.tel.ReportInfo(
			"new trainers discovered",
			telemetry.KV{Key: "names", Value: strings.Join(newNames, ", ")},
		)
		for _, lookalike := range textutil.FindLookalikes(newNames, r.cfg.Trainers, LookalikeThreshold) {
			r.tel.ReportWarning(
				report_runner_discover,
				fmt.Errorf("discovered trainer %q looks like known trainer %q", lookalike.Name, lookalike.Known),
				telemetry.KV{Key: "similarity", Value: fmt.Sprintf("%.3f", lookalike.Similarity)},
			)
		}
	}

	r.tel.ReportInfo("scraping trainers", telemetry.KV{Key: "count", Value: len(candidates)})

	dataset := lodge.Dataset{}
	for i, name := range candidates {
		progress := fmt.Sprintf(
			"[%d/%d] (%.0f%%) %s",
			i+1, len(candidates),
			float64(i+1)/float64(len(candidates))*100,
			name,
		)

		record, err := r.scrapeTrainer(ctx, name)
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if err != nil {
			kind := classify(err)
			report.Failures = append(report.Failures, Failure{Trainer: name, Kind: kind, Err: err})
			r.tel.ReportWarning(
				report_runner_scrape_trainer,
				err,
				telemetry.KV{Key: "progress", Value: progress},
				telemetry.KV{Key: "kind", Value: string(kind)},
			)
			continue
		}

		dataset[name] = record
		r.tel.ReportInfo(
			progress,
			telemetry.KV{Key: "tiers", Value: len(record.Tiers)},
			telemetry.KV{Key: "topics", Value: record.TopicCount()},
		)
	}
	report.Scraped = len(dataset)
	r.tel.ReportCount(report_runner_scraped, int64(report.Scraped))
	r.tel.ReportCount(report_runner_failed, int64(len(report.Failures)))

	report.Changes = changes.Diff(existing, dataset)
	if len(report.Changes) == 0 {
		r.tel.ReportInfo("no changes detected")
	} else {
		r.tel.ReportInfo("changes detected", telemetry.KV{Key: "count", Value: len(report.Changes)})
	}
	for _, c := range report.Changes {
		r.tel.ReportInfo(changeLine(c))
	}

	meta, _, err := r.store.Save(dataset, report.Changes, changelog, report.FailedNames())
	if err != nil {
		r.tel.ReportBroken(report_runner_save, err)
		return report, fmt.Errorf("save: %w", err)
	}
	report.Metadata = meta
	report.Finished = r.time.Now()

	for _, hook := range r.hooks {
		err = hook.RunFinished(ctx, report)
		if err != nil {
			r.tel.ReportWarning(
				report_runner_hook,
				err,
				telemetry.KV{Key: "hook", Value: fmt.Sprintf("%T", hook)},
			)
		}
	}

	r.tel.ReportInfo(
		"run finished",
		telemetry.KV{Key: "scraped", Value: fmt.Sprintf("%d/%d", report.Scraped, report.Total)},
		telemetry.KV{Key: "errors", Value: len(report.Failures)},
		telemetry.KV{Key: "changes", Value: len(report.Changes)},
		telemetry.KV{Key: "topics", Value: meta.TotalTopics},
	)
	if len(report.Failures) > 0 {
		r.tel.ReportInfo("failed trainers", telemetry.KV{Key: "names", Value: strings.Join(report.FailedNames(), ", ")})
	}

	if report.TooManyFailures() {
		return report, fmt.Errorf(
			"%w: %d of %d trainers failed",
			ErrTooManyFailures, len(report.Failures), report.Total,
		)
	}
	return report, nil
}

func (r Runner) scrapeTrainer(ctx context.Context, name string) (lodge.Record, error) {
	markup, err := r.fetcher.Wikitext(ctx, r.cfg.PagePrefix+name)
	if err != nil {
		return lodge.Record{}, err
	}
	record := wikitext.Parse(markup, name)
	if len(record.Tiers) == 0 {
		return lodge.Record{}, fmt.Errorf("%w: %s", ErrEmptyParse, name)
	}
	return record, nil
}

// discover returns the trainer names found in the configured category. A
// failure only costs the run its discovered names.
func (r Runner) discover(ctx context.Context) []string {
	if r.cfg.Category == "" {
		return nil
	}

	titles, err := r.fetcher.CategoryMembers(ctx, r.cfg.Category)
	if err != nil {
		r.tel.ReportWarning(report_runner_discover, err, telemetry.KV{Key: "category", Value: r.cfg.Category})
		return nil
	}

	skip := make(map[string]struct{}, len(r.cfg.SkipPages))
	for _, page := range r.cfg.SkipPages {
		skip[page] = struct{}{}
	}

	var names []string
	for _, title := range titles {
		if !strings.HasPrefix(title, r.cfg.PagePrefix) {
			continue
		}
		if _, ok := skip[title]; ok {
			continue
		}
		name := strings.TrimPrefix(title, r.cfg.PagePrefix)
		length := utf8.RuneCountInString(name)
		if length == 0 || length > MaxNameLength {
			continue
		}
		names = append(names, name)
	}

	r.tel.ReportInfo("found trainer pages on wiki", telemetry.KV{Key: "count", Value: len(names)})
	return names
}

// candidates merges the configured and discovered trainers into the sorted list
// of names to scrape, also returning the discovered names that were not configured.
func (r Runner) candidates(discovered []string) ([]string, []string) {
	skipNames := map[string]struct{}{snapshot.MetadataKey: {}}
	for _, page := range r.cfg.SkipPages {
		if strings.HasPrefix(page, r.cfg.PagePrefix) {
			skipNames[strings.TrimPrefix(page, r.cfg.PagePrefix)] = struct{}{}
		}
	}
	configured := map[string]struct{}{}
	for _, name := range r.cfg.Trainers {
		configured[name] = struct{}{}
	}

	all := map[string]struct{}{}
	newNames := map[string]struct{}{}
	for _, name := range r.cfg.Trainers {
		all[name] = struct{}{}
	}
	for _, name := range discovered {
		all[name] = struct{}{}
		if _, ok := configured[name]; !ok {
			newNames[name] = struct{}{}
		}
	}

	return sortedWithout(all, skipNames), sortedWithout(newNames, skipNames)
}

func sortedWithout(set, exclude map[string]struct{}) []string {
	var out []string
	for name := range set {
		if _, ok := exclude[name]; ok {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func changeLine(c changes.Change) string {
	detail := c.Detail()
	if detail == "" {
		return fmt.Sprintf("[%s] %s", c.Label(), c.Trainer)
	}
	if utf8.RuneCountInString(detail) > maxDetailLength {
		detail = string([]rune(detail)[:maxDetailLength])
	}
	return fmt.Sprintf("[%s] %s - %s", c.Label(), c.Trainer, detail)
}
