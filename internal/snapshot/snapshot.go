// Package snapshot persists the mirrored dataset and its changelog as JSON documents.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"lodgemirror/internal/changes"
	"lodgemirror/internal/components/assert"
	"lodgemirror/internal/components/chrono"
	"lodgemirror/internal/components/telemetry"
	"lodgemirror/internal/lodge"
	"os"
	"path/filepath"
)

const (
	report_store_load_dataset   = "store.load-dataset"
	report_store_load_changelog = "store.load-changelog"
	report_store_save           = "store.save"
)

const (
	DataFile      = "trainer_lodge_data.json"
	ChangelogFile = "changelog.json"

	// MaxChangelogEntries is how many runs the changelog keeps, older runs are dropped.
	MaxChangelogEntries = 50
	ScraperVersion      = "2.0"
	DefaultSource       = "pokemon-masters-ex-game.fandom.com"

	// TimeFormat is how timestamps are written in both documents, always in UTC.
	TimeFormat = "2006-01-02 15:04 UTC"

	// MetadataKey holds the metadata in the snapshot document, no trainer can have this name.
	MetadataKey = "_metadata"
)

var (
	ErrCorrupt      = errors.New("corrupt document")
	ErrReservedName = errors.New("reserved trainer name")
)

// Metadata is written as the first key of the snapshot document.
type Metadata struct {
	LastUpdated    string   `json:"last_updated"`
	TrainerCount   int      `json:"trainer_count"`
	TotalTopics    int      `json:"total_topics"`
	Source         string   `json:"source"`
	ScraperVersion string   `json:"scraper_version"`
	Errors         []string `json:"errors"`
}

// ChangelogEntry is one run that produced at least one change.
type ChangelogEntry struct {
	Date         string           `json:"date"`
	TrainerCount int              `json:"trainer_count"`
	ChangeCount  int              `json:"change_count"`
	Changes      []changes.Change `json:"changes"`
}

// Changelog holds the most recent runs first.
type Changelog struct {
	Updates []ChangelogEntry `json:"updates"`
}

type Options struct {
	// Dir is the directory both documents live in, it is created on save.
	Dir string
	// Source is the provenance written into the metadata, defaults to DefaultSource.
	Source string
}

// Store is the only writer of the snapshot and changelog documents.
type Store struct {
	dir    string
	source string
	time   chrono.TimeAPI
	tel    telemetry.API
}

func NewStore(opts Options, time chrono.TimeAPI, tel telemetry.API) Store {
	assert.NotEmptyStr(opts.Dir)
	assert.NotNil(time)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("snapshot", tel)

	source := opts.Source
	if source == "" {
		source = DefaultSource
	}

	return Store{
		dir:    opts.Dir,
		source: source,
		time:   time,
		tel:    tel,
	}
}

func (s Store) DataPath() string {
	return filepath.Join(s.dir, DataFile)
}

func (s Store) ChangelogPath() string {
	return filepath.Join(s.dir, ChangelogFile)
}

// ReadDataset reads a snapshot document, dropping its metadata. A missing file
// is an empty dataset.
func ReadDataset(path string) (lodge.Dataset, error) {
	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return lodge.Dataset{}, nil
	}
	if err != nil {
		return lodge.Dataset{}, err
	}

	var document map[string]json.RawMessage
	err = json.Unmarshal(contents, &document)
	if err != nil {
		return lodge.Dataset{}, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
	}

	dataset := lodge.Dataset{}
	for name, raw := range document {
		if name == MetadataKey {
			continue
		}
		var record lodge.Record
		err = json.Unmarshal(raw, &record)
		if err != nil {
			return lodge.Dataset{}, fmt.Errorf("%w: %s: trainer %q: %w", ErrCorrupt, path, name, err)
		}
		if record.Tiers == nil {
			record.Tiers = map[lodge.Tier]lodge.Categories{}
		}
		dataset[name] = record
	}
	return dataset, nil
}

// ReadMetadata reads only the metadata of a snapshot document.
func ReadMetadata(path string) (Metadata, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, err
	}
	var document struct {
		Metadata Metadata `json:"_metadata"`
	}
	err = json.Unmarshal(contents, &document)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
	}
	return document.Metadata, nil
}

// LoadDataset returns the previously saved dataset. On error the returned
// dataset is empty but usable.
func (s Store) LoadDataset() (lodge.Dataset, error) {
	dataset, err := ReadDataset(s.DataPath())
	if err != nil {
		s.tel.ReportWarning(report_store_load_dataset, err)
		return dataset, err
	}
	s.tel.ReportDebug("loaded dataset", telemetry.KV{Key: "trainers", Value: len(dataset)})
	return dataset, nil
}

// LoadChangelog returns the previously saved changelog. On error the returned
// changelog is empty but usable.
func (s Store) LoadChangelog() (Changelog, error) {
	empty := Changelog{Updates: []ChangelogEntry{}}

	contents, err := os.ReadFile(s.ChangelogPath())
	if os.IsNotExist(err) {
		return empty, nil
	}
	if err != nil {
		s.tel.ReportWarning(report_store_load_changelog, err)
		return empty, err
	}

	var changelog Changelog
	err = json.Unmarshal(contents, &changelog)
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrCorrupt, s.ChangelogPath(), err)
		s.tel.ReportWarning(report_store_load_changelog, err)
		return empty, err
	}
	if changelog.Updates == nil {
		changelog.Updates = []ChangelogEntry{}
	}
	return changelog, nil
}

// Save writes the snapshot of `dataset` and, when `changeList` is not empty,
// records the run at the front of the changelog. The changelog is written back
// either way. Both documents are serialized before anything touches the disk.
func (s Store) Save(dataset lodge.Dataset, changeList []changes.Change, changelog Changelog, failed []string) (Metadata, Changelog, error) {
	now := s.time.Now().Format(TimeFormat)

	errs := []string{}
	errs = append(errs, failed...)
	meta := Metadata{
		LastUpdated:    now,
		TrainerCount:   len(dataset),
		TotalTopics:    dataset.TopicCount(),
		Source:         s.source,
		ScraperVersion: ScraperVersion,
		Errors:         errs,
	}

	updates := append([]ChangelogEntry{}, changelog.Updates...)
	if len(changeList) > 0 {
		updates = append([]ChangelogEntry{{
			Date:         now,
			TrainerCount: len(dataset),
			ChangeCount:  len(changeList),
			Changes:      changeList,
		}}, updates...)
		if len(updates) > MaxChangelogEntries {
			updates = updates[:MaxChangelogEntries]
		}
	}
	changelog = Changelog{Updates: updates}

	snapshotDoc, err := encodeSnapshot(meta, dataset)
	if err != nil {
		s.tel.ReportBroken(report_store_save, fmt.Errorf("encode snapshot: %w", err))
		return Metadata{}, Changelog{}, err
	}
	changelogDoc, err := encodeIndented(changelog)
	if err != nil {
		s.tel.ReportBroken(report_store_save, fmt.Errorf("encode changelog: %w", err))
		return Metadata{}, Changelog{}, err
	}

	err = os.MkdirAll(s.dir, 0755)
	if err != nil {
		s.tel.ReportBroken(report_store_save, err, s.dir)
		return Metadata{}, Changelog{}, err
	}

	err = writeFile(s.DataPath(), snapshotDoc)
	if err != nil {
		s.tel.ReportBroken(report_store_save, err, s.DataPath())
		return Metadata{}, Changelog{}, err
	}
	s.tel.ReportInfo(
		"saved snapshot",
		telemetry.KV{Key: "path", Value: s.DataPath()},
		telemetry.KV{Key: "trainers", Value: meta.TrainerCount},
		telemetry.KV{Key: "topics", Value: meta.TotalTopics},
	)

	err = writeFile(s.ChangelogPath(), changelogDoc)
	if err != nil {
		s.tel.ReportBroken(report_store_save, err, s.ChangelogPath())
		return Metadata{}, Changelog{}, err
	}
	s.tel.ReportInfo(
		"saved changelog",
		telemetry.KV{Key: "path", Value: s.ChangelogPath()},
		telemetry.KV{Key: "entries", Value: len(changelog.Updates)},
	)

	return meta, changelog, nil
}

func encodeCompact(value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(value)
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func encodeIndented(value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	err := enc.Encode(value)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeSnapshot writes the metadata first and then every trainer sorted by
// name, encoding/json would sort "_metadata" after upper case names.
func encodeSnapshot(meta Metadata, dataset lodge.Dataset) ([]byte, error) {
	var compact bytes.Buffer
	compact.WriteByte('{')

	writePair := func(key string, value any) error {
		encodedKey, err := encodeCompact(key)
		if err != nil {
			return err
		}
		encodedValue, err := encodeCompact(value)
		if err != nil {
			return err
		}
		if compact.Len() > 1 {
			compact.WriteByte(',')
		}
		compact.Write(encodedKey)
		compact.WriteByte(':')
		compact.Write(encodedValue)
		return nil
	}

	err := writePair(MetadataKey, meta)
	if err != nil {
		return nil, err
	}
	for _, name := range dataset.Names() {
		if name == MetadataKey {
			return nil, fmt.Errorf("%w: %q", ErrReservedName, name)
		}
		err = writePair(name, dataset[name])
		if err != nil {
			return nil, fmt.Errorf("trainer %q: %w", name, err)
		}
	}
	compact.WriteByte('}')

	var out bytes.Buffer
	err = json.Indent(&out, compact.Bytes(), "", "  ")
	if err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// writeFile replaces a file through a rename so readers never see half a document.
func writeFile(path string, contents []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(contents)
	if err != nil {
		tmp.Close()
		return err
	}
	err = tmp.Close()
	if err != nil {
		return err
	}
	err = os.Chmod(tmp.Name(), 0644)
	if err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
