// Package config provides configuration management for the leapdq CLI.
//
// Settings are layered with koanf: defaults, then leapdq.yaml, then
// LEAPDQ_ environment variables, then explicitly set flags.
package config

import (
	"github.com/leapstack-labs/leapdq/internal/storage"
)

// S3Config is the object store configuration.
type S3Config = storage.S3Config

// Config holds all CLI configuration options.
type Config struct {
	StatePath    string   `koanf:"state_path"`
	RunType      string   `koanf:"run_type"`
	WorkspaceDir string   `koanf:"workspace_dir"`
	LogLevel     string   `koanf:"log_level"`
	Verbose      bool     `koanf:"verbose"`
	OutputFormat string   `koanf:"output"`
	Workers      int      `koanf:"workers"`
	S3           S3Config `koanf:"s3"`

	// ProjectRoot anchors relative paths. It is not read from the file.
	ProjectRoot string `koanf:"-"`
}

// StorageConfig returns the location resolution settings.
func (c *Config) StorageConfig() storage.Config {
	return storage.Config{
		RunType:      c.RunType,
		WorkspaceDir: c.WorkspaceDir,
		S3:           c.S3,
	}
}

// Default configuration values.
const (
	DefaultStateFile = ".leapdq/state.db"
	DefaultRunType   = storage.RunLocal
	DefaultLogLevel  = "warn"
	DefaultOutput    = "auto" // Auto-detect: TTY=text, non-TTY=markdown
)
