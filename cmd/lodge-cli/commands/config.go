package commands

import (
	"errors"
	"lodgemirror/internal/archive"
	"lodgemirror/internal/notify"
	"lodgemirror/internal/runner"
	"lodgemirror/lib/configutil"
	"log/slog"
	"os"
)

type Config struct {
	runner.Config
	Archive archive.Config    `json:"archive"`
	Smtp    notify.SmtpConfig `json:"smtp"`
}

// loadConfig reads the config file, a missing file means every default applies.
func loadConfig(path string) (Config, error) {
	cfg, err := configutil.ReadConfig[Config](path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("no config file found, using defaults", "path", path)
		cfg = Config{}
	} else if err != nil {
		return Config{}, err
	}

	cfg.Config, err = cfg.Config.WithDefaults()
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}
