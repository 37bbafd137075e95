package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// statusOut receives status messages. Tests capture it.
var statusOut io.Writer = os.Stderr

// statusf prints a progress or result line unless quiet is set. Data output
// goes to the command's stdout instead.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(statusOut, format, args...)
	}
}

var sizeSuffixes = []string{"KB", "MB", "GB", "TB"}

// formatSize renders bytes with binary units and one decimal, e.g. "1.5 MB".
func formatSize(bytes int64) string {
	const unit = 1024

	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	value := float64(bytes) / unit
	i := 0

	for value >= unit && i < len(sizeSuffixes)-1 {
		value /= unit
		i++
	}

	return fmt.Sprintf("%.1f %s", value, sizeSuffixes[i])
}

// formatTime renders t compactly: time of day within the current year,
// otherwise the year. The zero time renders as "-".
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	t = t.Local()

	if t.Year() == time.Now().Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// printTable writes headers and rows as left-aligned columns separated by
// two spaces. Every row must have len(headers) cells.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))

	for _, row := range append([][]string{headers}, rows...) {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	var b strings.Builder

	for _, row := range append([][]string{headers}, rows...) {
		b.Reset()

		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}

			fmt.Fprintf(&b, "%-*s", widths[i], cell)
		}

		fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
	}
}
