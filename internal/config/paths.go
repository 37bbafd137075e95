package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	appName        = "arkvault"
	configFileName = "config.toml"
)

// dirKind selects which XDG base directory a default path derives from.
type dirKind struct {
	xdgEnv   string
	fallback []string // relative to $HOME
}

var (
	configKind = dirKind{xdgEnv: "XDG_CONFIG_HOME", fallback: []string{".config"}}
	dataKind   = dirKind{xdgEnv: "XDG_DATA_HOME", fallback: []string{".local", "share"}}
)

// appDir resolves the arkvault directory of kind for home on goos. macOS keeps
// config and data together under Application Support; XDG variables are
// honored on Linux only.
func appDir(goos, home string, kind dirKind) string {
	if goos == "darwin" {
		return filepath.Join(home, "Library", "Application Support", appName)
	}

	if goos == "linux" {
		if base := os.Getenv(kind.xdgEnv); base != "" {
			return filepath.Join(base, appName)
		}
	}

	parts := append([]string{home}, kind.fallback...)

	return filepath.Join(append(parts, appName)...)
}

func defaultDir(kind dirKind) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return appDir(runtime.GOOS, home, kind)
}

// DefaultConfigDir is where config.toml lives when no path is given.
func DefaultConfigDir() string { return defaultDir(configKind) }

// DefaultDataDir holds the token file and the catalog database.
func DefaultDataDir() string { return defaultDir(dataKind) }

// DefaultConfigPath is the config file used when neither ARKVAULT_CONFIG nor
// --config is set. Empty when the home directory is unknown.
func DefaultConfigPath() string {
	if dir := DefaultConfigDir(); dir != "" {
		return filepath.Join(dir, configFileName)
	}

	return ""
}

// expandTilde turns "~/x" into "$HOME/x". Other forms pass through.
func expandTilde(path string) string {
	rest, ok := strings.CutPrefix(path, "~/")
	if !ok {
		return path
	}

	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, rest)
	}

	return path
}
