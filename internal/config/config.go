// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for arkvault. Values flow through a
// four-layer override chain: defaults -> config file -> environment -> CLI
// flags.
package config

import (
	"path/filepath"
	"time"
)

// Config is the top-level configuration structure parsed from a TOML file.
// Durations and sizes stay strings here; Resolve parses them.
type Config struct {
	ServerURL string          `toml:"server_url"`
	DataDir   string          `toml:"data_dir"`
	Session   SessionConfig   `toml:"session"`
	Transfers TransfersConfig `toml:"transfers"`
	Network   NetworkConfig   `toml:"network"`
	Logging   LoggingConfig   `toml:"logging"`
}

// SessionConfig controls how long an unlocked account key stays in memory.
type SessionConfig struct {
	TTL           string `toml:"ttl"`
	SweepInterval string `toml:"sweep_interval"`
}

// TransfersConfig controls upload concurrency and the per-file size cap.
type TransfersConfig struct {
	ParallelUploads int    `toml:"parallel_uploads"`
	MaxFileSize     string `toml:"max_file_size"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// LoggingConfig controls log level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish "not
// specified" (nil) from "explicitly set to the empty string".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	ServerURL  *string // --server flag
	DataDir    *string // --data-dir flag
}

// Resolved is the effective configuration after every override layer, with
// durations and sizes parsed.
type Resolved struct {
	ConfigPath      string        `json:"config_path"`
	ServerURL       string        `json:"server_url"`
	DataDir         string        `json:"data_dir"`
	SessionTTL      time.Duration `json:"session_ttl"`
	SweepInterval   time.Duration `json:"sweep_interval"`
	ParallelUploads int           `json:"parallel_uploads"`
	MaxFileSize     int64         `json:"max_file_size"`
	ConnectTimeout  time.Duration `json:"connect_timeout"`
	DataTimeout     time.Duration `json:"data_timeout"`
	UserAgent       string        `json:"user_agent"`
	LogLevel        string        `json:"log_level"`
	LogFormat       string        `json:"log_format"`
}

// File names inside the data directory.
const (
	tokenFileName   = "tokens.json"
	catalogFileName = "catalog.db"
)

// TokenPath is where the token pair is persisted.
func (r *Resolved) TokenPath() string {
	return filepath.Join(r.DataDir, tokenFileName)
}

// CatalogPath is the local catalog database.
func (r *Resolved) CatalogPath() string {
	return filepath.Join(r.DataDir, catalogFileName)
}
