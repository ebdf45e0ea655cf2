// Package config loads process configuration for the registry: the blob
// directory, database path, and default log level, from REGISTRY_-prefixed
// environment variables with programmatic defaults. It is grounded on
// marmos91-dittofs's pkg/config/config.go viper usage (SetEnvPrefix +
// AutomaticEnv + defaults), scaled down to this module's much smaller
// configuration surface — no config file, since the registry has no CLI.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config is the registry's process configuration.
type Config struct {
	// BlobDir is the absolute path to the directory blob values are written
	// under. It must already exist.
	BlobDir string

	// DatabasePath is a database file path for use in a file:// identifier.
	// registry.Open does not read it; the database path comes from the
	// identifier.
	DatabasePath string

	// LogLevel holds REGISTRY_LOG_LEVEL
	// (CRITICAL/ERROR/WARNING/NOTICE/INFO/DEBUG). The logging package reads
	// that variable itself at init; it does not consult this field.
	LogLevel string
}

// Default returns the configuration used when no environment variables are
// set: a database file and blob directory under the current directory,
// suitable for tests and ad hoc local runs.
func Default() *Config {
	return &Config{
		BlobDir:      "./registry-blobs",
		DatabasePath: "./registry.db",
		LogLevel:     "",
	}
}

// Load reads REGISTRY_BLOB_DIR, REGISTRY_DATABASE_PATH and
// REGISTRY_LOG_LEVEL from the environment, falling back to Default's values
// for anything unset, then resolves a relative BlobDir to an absolute path.
// It does not check that the directory exists.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REGISTRY")
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("blob_dir", def.BlobDir)
	v.SetDefault("database_path", def.DatabasePath)
	v.SetDefault("log_level", def.LogLevel)

	cfg := &Config{
		BlobDir:      v.GetString("blob_dir"),
		DatabasePath: v.GetString("database_path"),
		LogLevel:     v.GetString("log_level"),
	}

	if !filepath.IsAbs(cfg.BlobDir) {
		abs, err := filepath.Abs(cfg.BlobDir)
		if err != nil {
			return nil, fmt.Errorf("config: cannot resolve blob directory %q: %w", cfg.BlobDir, err)
		}
		cfg.BlobDir = abs
	}

	return cfg, nil
}
