package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as an annotated summary.
// This powers "config show".
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", orNone(r.ConfigPath))

	ew.printf("server_url = %q\n", r.ServerURL)
	ew.printf("data_dir   = %q\n\n", r.DataDir)

	ew.printf("[session]\n")
	ew.printf("  ttl            = %q\n", r.SessionTTL.String())
	ew.printf("  sweep_interval = %q\n\n", r.SweepInterval.String())

	ew.printf("[transfers]\n")
	ew.printf("  parallel_uploads = %d\n", r.ParallelUploads)
	ew.printf("  max_file_size    = %d\n\n", r.MaxFileSize)

	ew.printf("[network]\n")
	ew.printf("  connect_timeout = %q\n", r.ConnectTimeout.String())
	ew.printf("  data_timeout    = %q\n", r.DataTimeout.String())

	if r.UserAgent != "" {
		ew.printf("  user_agent      = %q\n", r.UserAgent)
	}

	ew.printf("\n[logging]\n")
	ew.printf("  log_level  = %q\n", r.LogLevel)
	ew.printf("  log_format = %q\n", r.LogFormat)

	return ew.err
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}

	return s
}

// errWriter captures the first write error; later writes are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
