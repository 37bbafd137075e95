package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxSuggestDistance bounds the edit distance of a "did you mean" suggestion.
const maxSuggestDistance = 3

// knownKeys lists every accepted key in dotted form, sorted so suggestions
// are deterministic on ties.
var knownKeys = []string{
	"data_dir",
	"logging.log_format",
	"logging.log_level",
	"network.connect_timeout",
	"network.data_timeout",
	"network.user_agent",
	"server_url",
	"session.sweep_interval",
	"session.ttl",
	"transfers.max_file_size",
	"transfers.parallel_uploads",
}

// checkUnknownKeys turns keys the decoder left untouched into errors. Keys
// under an unknown table are folded into the table's own error.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()

	keys := make([]string, len(undecoded))
	for i, k := range undecoded {
		keys[i] = k.String()
	}

	var errs []error

	for _, key := range keys {
		if !underAny(key, keys) {
			errs = append(errs, unknownKeyError(key))
		}
	}

	return errors.Join(errs...)
}

func underAny(key string, tables []string) bool {
	for _, t := range tables {
		if strings.HasPrefix(key, t+".") {
			return true
		}
	}

	return false
}

func unknownKeyError(key string) error {
	if s := suggest(key); s != "" {
		return fmt.Errorf("unknown config key %q: did you mean %q?", key, s)
	}

	return fmt.Errorf("unknown config key %q", key)
}

// suggest returns the nearest known key within maxSuggestDistance, or "".
func suggest(key string) string {
	best, bestDist := "", maxSuggestDistance+1

	for _, k := range knownKeys {
		if d := levenshtein(key, k); d < bestDist {
			best, bestDist = k, d
		}
	}

	return best
}

// levenshtein is the byte-wise edit distance between a and b.
func levenshtein(a, b string) int {
	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}

	for i := 1; i <= len(a); i++ {
		diag := row[0]
		row[0] = i

		for j := 1; j <= len(b); j++ {
			sub := diag
			if a[i-1] != b[j-1] {
				sub++
			}

			diag = row[j]
			row[j] = min(row[j]+1, row[j-1]+1, sub)
		}
	}

	return row[len(b)]
}
