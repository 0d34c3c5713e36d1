package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the collection defaults. Command-line flags override any of
// these per run.
type Config struct {
	Cluster        string   `yaml:"cluster"`
	SocketDir      string   `yaml:"socket_dir"`
	PollIntervalMS int      `yaml:"poll_interval_ms"`
	RunSeconds     int      `yaml:"run_seconds"`
	DBPath         string   `yaml:"db"`
	Listen         string   `yaml:"listen"`
	OSDs           []string `yaml:"osds"`

	// Historic-op retention applied for the collection window when the run
	// prepares OSDs for reliable historic collection.
	HistoricDurationSec int `yaml:"historic_duration_seconds"`
	HistoricSize        int `yaml:"historic_size"`
}

// DefaultConfig returns the conventional defaults for a local cluster.
func DefaultConfig() Config {
	return Config{
		Cluster:             "ceph",
		SocketDir:           "/var/run/ceph",
		PollIntervalMS:      500,
		RunSeconds:          60,
		HistoricDurationSec: 2,
		HistoricSize:        200,
	}
}

// Load reads configuration from a yaml file. Missing files fall back to
// defaults; an explicitly empty path skips the file entirely.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the collector cannot run with.
func (c Config) Validate() error {
	if c.Cluster == "" {
		return errors.New("cluster name must not be empty")
	}
	if c.PollIntervalMS <= 0 {
		return errors.Newf("poll_interval_ms must be positive, got %d", c.PollIntervalMS)
	}
	if c.RunSeconds <= 0 {
		return errors.Newf("run_seconds must be positive, got %d", c.RunSeconds)
	}
	if c.HistoricDurationSec <= 0 || c.HistoricSize <= 0 {
		return errors.New("historic retention values must be positive")
	}
	return nil
}
