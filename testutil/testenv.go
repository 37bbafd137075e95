// Package testutil provides environment helpers for end-to-end tests. It
// depends only on the standard library so that tests outside internal/ can
// use it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AllowlistEnv names the comma-separated accounts e2e tests may touch.
const AllowlistEnv = "ARKVAULT_ALLOWED_TEST_ACCOUNTS"

// LoadDotEnv reads KEY=VALUE pairs from a .env file at path. A missing file
// is not an error. Variables already set win over the file.
func LoadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	for key, value := range parseDotEnv(bufio.NewScanner(f)) {
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

func parseDotEnv(scanner *bufio.Scanner) map[string]string {
	out := map[string]string{}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		out[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), "\"'")
	}

	return out
}

// CheckAllowlist returns an error unless the account in accountEnv is listed
// in AllowlistEnv. E2E tests create and delete real files, so they refuse to
// run against an account nobody vouched for.
func CheckAllowlist(accountEnv string) error {
	allowlist := os.Getenv(AllowlistEnv)
	if allowlist == "" {
		return fmt.Errorf("%s not set (example: %s=e2e@example.com)", AllowlistEnv, AllowlistEnv)
	}

	account := os.Getenv(accountEnv)
	if account == "" {
		return fmt.Errorf("%s not set", accountEnv)
	}

	for _, a := range strings.Split(allowlist, ",") {
		if strings.EqualFold(strings.TrimSpace(a), account) {
			return nil
		}
	}

	return fmt.Errorf("%s=%q is not in %s=%q", accountEnv, account, AllowlistEnv, allowlist)
}

// FindModuleRoot walks up from the working directory to the directory
// holding go.mod. Returns fallback if there is none.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}
