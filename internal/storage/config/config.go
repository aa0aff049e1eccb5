// Package config loads the engine's on-disk YAML configuration: storage
// file locations, buffer pool sizing, and the isolation level new
// transactions run under.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/SimonWaldherr/pagedb/internal/storage/txn"
)

// Config is the engine's top-level configuration, loaded from a single
// YAML file at startup.
type Config struct {
	// DataDir holds the database file, WAL file, and transaction status
	// log, named data/wal.log/txn.status inside it.
	DataDir string `yaml:"data_dir"`

	// BufferPoolFrames is the fixed number of page frames cached in
	// memory at once.
	BufferPoolFrames int `yaml:"buffer_pool_frames"`

	// Isolation selects the snapshot-visibility rule new transactions run
	// under: "read_committed" or "repeatable_read".
	Isolation string `yaml:"isolation"`

	// MetricsAddr, if non-empty, is the address an HTTP server exposing
	// Prometheus metrics listens on (e.g. ":9100").
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		DataDir:          "./data",
		BufferPoolFrames: 64,
		Isolation:        "repeatable_read",
		MetricsAddr:      "",
	}
}

// Load reads and parses a YAML config file at path, filling in defaults
// for any field the file omits.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.BufferPoolFrames <= 0 {
		cfg.BufferPoolFrames = 64
	}
	return cfg, nil
}

// IsolationLevel resolves the configured isolation string, defaulting to
// RepeatableRead for an empty or unrecognized value.
func (c Config) IsolationLevel() txn.IsolationLevel {
	if c.Isolation == "read_committed" {
		return txn.ReadCommitted
	}
	return txn.RepeatableRead
}
