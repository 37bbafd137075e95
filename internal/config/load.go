package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// 1. Config path: CLI > env > default
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Config file (defaults if no file exists)
	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	// 3. Environment
	if env.ServerURL != "" {
		cfg.ServerURL = env.ServerURL
	}

	if env.DataDir != "" {
		cfg.DataDir = env.DataDir
	}

	// 4. CLI flags
	if cli.ServerURL != nil {
		cfg.ServerURL = *cli.ServerURL
	}

	if cli.DataDir != nil {
		cfg.DataDir = *cli.DataDir
	}

	// Overrides bypass Load's validation, so check again.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	resolved := resolve(cfg)
	resolved.ConfigPath = cfgPath

	if err := ValidateResolved(resolved); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolved, nil
}

// resolve parses a validated Config. Parse errors cannot happen here.
func resolve(cfg *Config) *Resolved {
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	maxSize, _ := ParseSize(cfg.Transfers.MaxFileSize) //nolint:errcheck // validated

	return &Resolved{
		ServerURL:       strings.TrimRight(cfg.ServerURL, "/"),
		DataDir:         expandTilde(dataDir),
		SessionTTL:      mustDuration(cfg.Session.TTL),
		SweepInterval:   mustDuration(cfg.Session.SweepInterval),
		ParallelUploads: cfg.Transfers.ParallelUploads,
		MaxFileSize:     maxSize,
		ConnectTimeout:  mustDuration(cfg.Network.ConnectTimeout),
		DataTimeout:     mustDuration(cfg.Network.DataTimeout),
		UserAgent:       cfg.Network.UserAgent,
		LogLevel:        cfg.Logging.LogLevel,
		LogFormat:       cfg.Logging.LogFormat,
	}
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s) //nolint:errcheck // validated

	return d
}
