package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// sizeUnits lists suffixes longest first so "GiB" is tried before "B".
var sizeUnits = []struct {
	suffix string
	factor float64
}{
	{"TIB", 1 << 40},
	{"GIB", 1 << 30},
	{"MIB", 1 << 20},
	{"KIB", 1 << 10},
	{"TB", 1e12},
	{"GB", 1e9},
	{"MB", 1e6},
	{"KB", 1e3},
	{"B", 1},
}

// ParseSize converts a size such as "5GiB", "1.5 GB" or "4096" to bytes.
// Suffixes are case-insensitive; a bare number is bytes and "" is zero.
func ParseSize(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, nil
	}

	number, factor := trimmed, 1.0
	upper := strings.ToUpper(trimmed)

	for _, u := range sizeUnits {
		if strings.HasSuffix(upper, u.suffix) {
			number = strings.TrimSpace(trimmed[:len(trimmed)-len(u.suffix)])
			factor = u.factor

			break
		}
	}

	n, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: must be non-negative", s)
	}

	bytes := n * factor
	if bytes > math.MaxInt64 || math.IsInf(bytes, 0) || math.IsNaN(bytes) {
		return 0, fmt.Errorf("invalid size %q: too large", s)
	}

	return int64(bytes), nil
}
