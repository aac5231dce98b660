package runner

import (
	"lodgemirror/internal/scrapers/fandom"
	"lodgemirror/internal/snapshot"
	"lodgemirror/lib/configutil"
	"time"
)

// Config is the part of config.json5 that drives a run.
type Config struct {
	ApiUrl     string `json:"api_url"`
	DataDir    string `json:"data_dir"`
	Category   string `json:"category"`
	PagePrefix string `json:"page_prefix"`
	// Trainers are always scraped, discovery only adds to them.
	Trainers []string `json:"trainers"`
	// SkipPages are full page titles in the category that are not trainers.
	SkipPages    []string `json:"skip_pages"`
	MaxRetries   int      `json:"max_retries"`
	RetryDelayMs int      `json:"retry_delay_ms"`
	PaceMs       int      `json:"pace_ms"`
	TimeoutMs    int      `json:"timeout_ms"`
	Source       string   `json:"source"`
}

var defaultTrainers = []string{
	"Acerola", "Adaman", "Arven", "Ball Guy", "Blue", "Brendan",
	"Calem", "Carmine", "Cheren", "Cynthia", "Dawn", "Diantha",
	"Elesa", "Giovanni", "Gladion", "Gloria", "Grimsley", "Hilda",
	"Iono", "Irida", "Iris", "Jasmine", "Kabu", "Lacey", "Lana",
	"Lance", "Larry", "Leaf", "Lear", "Leon", "Lillie", "Lusamine",
	"Marnie", "May", "Morty", "N", "Penny", "Piers",
	"Professor Sycamore", "Raihan", "Rika", "Rosa", "Serena",
	"Shauna", "Silver", "Skyla", "Steven", "Volkner", "Volo", "Wally",
}

func DefaultConfig() Config {
	return Config{
		ApiUrl:     fandom.DefaultApiUrl,
		DataDir:    "data",
		Category:   "Category:Trainer_Lodge",
		PagePrefix: "Trainer Lodge/",
		Trainers:   append([]string{}, defaultTrainers...),
		SkipPages: []string{
			"Trainer Lodge",
			"Trainer Lodge/Expeditions",
			"Trainer Lodge/Lodge Exchange",
			"Trainer Lodge/Redecorate",
		},
		MaxRetries:   fandom.DefaultMaxRetries,
		RetryDelayMs: int(fandom.DefaultRetryDelay / time.Millisecond),
		PaceMs:       int(fandom.DefaultPace / time.Millisecond),
		TimeoutMs:    int(fandom.DefaultTimeout / time.Millisecond),
		Source:       snapshot.DefaultSource,
	}
}

// WithDefaults fills every field left empty with the value from DefaultConfig.
func (c Config) WithDefaults() (Config, error) {
	return configutil.WithDefaults(c, DefaultConfig())
}

func (c Config) ClientOptions() fandom.ClientOptions {
	return fandom.ClientOptions{
		ApiUrl:     c.ApiUrl,
		MaxRetries: c.MaxRetries,
		RetryDelay: time.Duration(c.RetryDelayMs) * time.Millisecond,
		Pace:       time.Duration(c.PaceMs) * time.Millisecond,
		Timeout:    time.Duration(c.TimeoutMs) * time.Millisecond,
	}
}

func (c Config) StoreOptions() snapshot.Options {
	return snapshot.Options{
		Dir:    c.DataDir,
		Source: c.Source,
	}
}
