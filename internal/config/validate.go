package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"
)

// Validation range constants.
const (
	minParallelUploads = 1
	maxParallelUploads = 16
	minSessionTTL      = time.Minute
	maxSessionTTL      = 24 * time.Hour
	minSweepInterval   = time.Second
	minConnectTimeout  = 1 * time.Second
	minDataTimeout     = 5 * time.Second
)

// Validate checks all configuration values and returns every error found,
// so users can fix all problems in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateServerURL(cfg.ServerURL)...)
	errs = append(errs, validateSession(&cfg.Session)...)
	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

// ValidateResolved checks constraints that only make sense after every
// override layer has been applied.
func ValidateResolved(r *Resolved) error {
	var errs []error

	if r.DataDir == "" {
		errs = append(errs, errors.New("data_dir: cannot determine a data directory; set data_dir"))
	} else if !filepath.IsAbs(r.DataDir) {
		errs = append(errs, fmt.Errorf("data_dir: must be absolute after expansion, got %q", r.DataDir))
	}

	if r.SweepInterval > r.SessionTTL {
		errs = append(errs, fmt.Errorf("session.sweep_interval: must not exceed session.ttl (%s), got %s",
			r.SessionTTL, r.SweepInterval))
	}

	return errors.Join(errs...)
}

// validateServerURL accepts an empty URL; commands that talk to the server
// check for it themselves.
func validateServerURL(raw string) []error {
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return []error{fmt.Errorf("server_url: %w", err)}
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return []error{fmt.Errorf("server_url: scheme must be https or http, got %q", raw)}
	}

	if u.Host == "" {
		return []error{fmt.Errorf("server_url: missing host in %q", raw)}
	}

	return nil
}

func validateSession(s *SessionConfig) []error {
	var errs []error

	if d, err := parseDuration("session.ttl", s.TTL); err != nil {
		errs = append(errs, err)
	} else if d < minSessionTTL || d > maxSessionTTL {
		errs = append(errs, fmt.Errorf("session.ttl: must be between %s and %s, got %s",
			minSessionTTL, maxSessionTTL, d))
	}

	errs = append(errs, validateDurationMin("session.sweep_interval", s.SweepInterval, minSweepInterval)...)

	return errs
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	if t.ParallelUploads < minParallelUploads || t.ParallelUploads > maxParallelUploads {
		errs = append(errs, fmt.Errorf("transfers.parallel_uploads: must be between %d and %d, got %d",
			minParallelUploads, maxParallelUploads, t.ParallelUploads))
	}

	if _, err := ParseSize(t.MaxFileSize); err != nil {
		errs = append(errs, fmt.Errorf("transfers.max_file_size: %w", err))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("network.connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("network.data_timeout", n.DataTimeout, minDataTimeout)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	return d, nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := parseDuration(field, value)
	if err != nil {
		return []error{err}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}
