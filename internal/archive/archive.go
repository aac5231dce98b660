// Package archive keeps every run in a SQLite (or libSQL) database, the
// changelog document only holds the most recent runs.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"lodgemirror/internal/changes"
	"lodgemirror/internal/components/assert"
	"lodgemirror/internal/components/telemetry"
	"lodgemirror/internal/runner"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/mazen160/go-random"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

const (
	report_archive_run_finished = "archive.run-finished"

	runIdLength = 12
)

// Config is the "archive" section of config.json5.
type Config struct {
	// File is a path to a SQLite database or a libsql://, http(s):// or wss:// url.
	File      string `json:"file"`
	AuthToken string `json:"auth_token"`
}

func (c Config) remote() bool {
	for _, scheme := range []string{"libsql://", "http://", "https://", "ws://", "wss://"} {
		if strings.HasPrefix(c.File, scheme) {
			return true
		}
	}
	return false
}

// OpenDB opens the configured database, a local file is created if it does
// not exist yet.
func (c Config) OpenDB() (*sql.DB, error) {
	if c.File == "" {
		return nil, fmt.Errorf("a path was not specified")
	}

	if c.remote() {
		dsn := c.File
		if c.AuthToken != "" {
			separator := "?"
			if strings.Contains(dsn, "?") {
				separator = "&"
			}
			dsn += separator + "authToken=" + c.AuthToken
		}
		return sql.Open("libsql", dsn)
	}

	if c.File != ":memory:" {
		err := os.MkdirAll(filepath.Dir(c.File), 0755)
		if err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", c.File)
	if err != nil {
		return nil, err
	}
	// sqlite only allows a single writer, an in memory database only exists
	// on its own connection
	db.SetMaxOpenConns(1)
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Archive records finished runs, it is a runner.Hook.
type Archive struct {
	db  *sql.DB
	tel telemetry.API
}

// New creates an Archive, creating its tables if they do not exist.
func New(ctx context.Context, db *sql.DB, tel telemetry.API) (Archive, error) {
	assert.NotNil(db)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("archive", tel)

	_, err := db.ExecContext(ctx, Schema)
	if err != nil {
		return Archive{}, fmt.Errorf("create schema: %w", err)
	}
	return Archive{db: db, tel: tel}, nil
}

// Run is a summary of an archived run.
type Run struct {
	Id             string
	Started        time.Time
	Finished       time.Time
	Total          int
	Scraped        int
	Failed         int
	ChangeCount    int
	TrainerCount   int
	TotalTopics    int
	ScraperVersion string
}

// Failure is a trainer that could not be scraped in an archived run.
type Failure struct {
	Trainer string
	Kind    runner.FailureKind
	Message string
}

func (a Archive) RunFinished(ctx context.Context, report runner.Report) error {
	id, err := a.Record(ctx, report)
	if err != nil {
		a.tel.ReportBroken(report_archive_run_finished, err)
		return err
	}
	a.tel.ReportInfo("archived run", telemetry.KV{Key: "run", Value: id})
	return nil
}

// Record stores a run and returns the id it was given.
func (a Archive) Record(ctx context.Context, report runner.Report) (string, error) {
	id, err := random.String(runIdLength)
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(
		ctx,
		`insert into run (
			id, started_at, finished_at, total, scraped, failed,
			change_count, trainer_count, total_topics, scraper_version
		) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		report.Started.Unix(),
		report.Finished.Unix(),
		report.Total,
		report.Scraped,
		len(report.Failures),
		len(report.Changes),
		report.Metadata.TrainerCount,
		report.Metadata.TotalTopics,
		report.Metadata.ScraperVersion,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for _, failure := range report.Failures {
		message := ""
		if failure.Err != nil {
			message = failure.Err.Error()
		}
		_, err = tx.ExecContext(
			ctx,
			"insert into run_failure (run_id, trainer, kind, message) values (?, ?, ?, ?)",
			id, failure.Trainer, string(failure.Kind), message,
		)
		if err != nil {
			return "", fmt.Errorf("insert failure %q: %w", failure.Trainer, err)
		}
	}

	for i, change := range report.Changes {
		encoded, err := json.Marshal(change)
		if err != nil {
			return "", err
		}
		_, err = tx.ExecContext(
			ctx,
			"insert into run_change (run_id, position, type, trainer, change) values (?, ?, ?, ?, ?)",
			id, i, string(change.Kind), change.Trainer, string(encoded),
		)
		if err != nil {
			return "", fmt.Errorf("insert change %d: %w", i, err)
		}
	}

	return id, tx.Commit()
}

// Runs lists the most recent runs first, at most `limit` of them.
func (a Archive) Runs(ctx context.Context, limit int) ([]Run, error) {
	assert.Positive(limit, "limit")

	rows, err := a.db.QueryContext(
		ctx,
		`select
			id, started_at, finished_at, total, scraped, failed,
			change_count, trainer_count, total_topics, scraper_version
		from run
		order by started_at desc, rowid desc
		limit ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var started, finished int64
		err = rows.Scan(
			&run.Id, &started, &finished,
			&run.Total, &run.Scraped, &run.Failed,
			&run.ChangeCount, &run.TrainerCount, &run.TotalTopics,
			&run.ScraperVersion,
		)
		if err != nil {
			return nil, err
		}
		run.Started = time.Unix(started, 0).UTC()
		run.Finished = time.Unix(finished, 0).UTC()
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Changes returns the changes of a run in the order they were detected.
func (a Archive) Changes(ctx context.Context, runId string) ([]changes.Change, error) {
	rows, err := a.db.QueryContext(
		ctx,
		"select change from run_change where run_id = ? order by position",
		runId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []changes.Change
	for rows.Next() {
		var encoded string
		err = rows.Scan(&encoded)
		if err != nil {
			return nil, err
		}
		var change changes.Change
		err = json.Unmarshal([]byte(encoded), &change)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", runId, err)
		}
		out = append(out, change)
	}
	return out, rows.Err()
}

// Failures returns the trainers that failed in a run.
func (a Archive) Failures(ctx context.Context, runId string) ([]Failure, error) {
	rows, err := a.db.QueryContext(
		ctx,
		"select trainer, kind, message from run_failure where run_id = ? order by trainer",
		runId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		var kind string
		err = rows.Scan(&f.Trainer, &kind, &f.Message)
		if err != nil {
			return nil, err
		}
		f.Kind = runner.FailureKind(kind)
		out = append(out, f)
	}
	return out, rows.Err()
}

// TrainerChanges returns every archived change of a trainer, most recent first.
func (a Archive) TrainerChanges(ctx context.Context, trainer string) ([]changes.Change, error) {
	rows, err := a.db.QueryContext(
		ctx,
		`select c.change from run_change c
		join run r on r.id = c.run_id
		where c.trainer = ?
		order by r.started_at desc, r.rowid desc, c.position`,
		trainer,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []changes.Change
	for rows.Next() {
		var encoded string
		err = rows.Scan(&encoded)
		if err != nil {
			return nil, err
		}
		var change changes.Change
		err = json.Unmarshal([]byte(encoded), &change)
		if err != nil {
			return nil, err
		}
		out = append(out, change)
	}
	return out, rows.Err()
}
