package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// configFilePermissions: owner read/write, everyone else read-only.
const configFilePermissions = 0o644

const configDirPermissions = 0o755

// configTemplate is written on first login when no config file exists. Every
// setting is present as a commented-out default so users can discover them.
// Later edits are line-level, so user changes survive.
const configTemplate = `# arkvault configuration

# Vault server base URL.
server_url = ""

# Where tokens and the local catalog live (default: platform data directory).
# data_dir = ""

[session]
# How long the unlocked account key stays in memory.
# ttl = "1h"
# sweep_interval = "1m"

[transfers]
# parallel_uploads = 4
# max_file_size = "5GiB"

[network]
# connect_timeout = "10s"
# data_timeout = "60s"
# user_agent = ""

[logging]
# log_level = "warn"   # debug, info, warn, error
# log_format = "auto"  # auto, text, json
`

// SetServerURL records the server URL in the config file at path, creating
// the file from the template if it does not exist. An existing top-level
// server_url line is replaced; otherwise one is inserted before the first
// section header.
func SetServerURL(path, serverURL string) error {
	slog.Info("saving server url to config", slog.String("path", path), slog.String("server_url", serverURL))

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		data = []byte(configTemplate)
	} else if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	lines := strings.Split(string(data), "\n")
	lines = setTopLevelKey(lines, "server_url", fmt.Sprintf("server_url = %q", serverURL))

	return atomicWriteFile(path, []byte(strings.Join(lines, "\n")))
}

// setTopLevelKey replaces key's line above the first section header, or
// inserts newLine just before that header.
func setTopLevelKey(lines []string, key, newLine string) []string {
	firstSection := len(lines)

	if i := slices.IndexFunc(lines, func(l string) bool {
		return strings.HasPrefix(strings.TrimSpace(l), "[")
	}); i >= 0 {
		firstSection = i
	}

	for i, line := range lines[:firstSection] {
		name, _, found := strings.Cut(line, "=")
		if found && strings.TrimSpace(name) == key {
			lines[i] = newLine
			return lines
		}
	}

	inserted := make([]string, 0, len(lines)+2)
	inserted = append(inserted, lines[:firstSection]...)
	inserted = append(inserted, newLine, "")
	inserted = append(inserted, lines[firstSection:]...)

	return inserted
}

// atomicWriteFile swaps data into path via a temp sibling so readers see the
// old file or the new one, never a partial write.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("config: creating %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, "."+configFileName+"-*")
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	_, werr := f.Write(data)

	err = errors.Join(werr, f.Chmod(configFilePermissions), f.Close())
	if err == nil {
		err = os.Rename(f.Name(), path)
	}

	if err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("config: writing %s: %w", path, err)
	}

	return nil
}
