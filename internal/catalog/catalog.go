// Package catalog is the local record of what has been uploaded: filename,
// password mode and hint, and the plaintext digest taken at upload time. The
// digest is what a later download is verified against, so a server that
// swaps both ciphertext and its stored digest is still caught.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/unicode/norm"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Entry sources.
const (
	SourceLocal  = "local"  // recorded by this client after an upload
	SourceServer = "server" // learned from a server listing
)

// digestLen is the length of a lowercase hex SHA-256 digest.
const digestLen = 64

// ErrNotFound is returned by Lookup for unknown filenames.
var ErrNotFound = errors.New("catalog: file not found")

const (
	sqlSelectFile = `SELECT filename, password_hint, password_type, sha256sum,
		size_bytes, uploaded_at, recorded_at, source
		FROM files WHERE filename = ?`

	sqlListFiles = `SELECT filename, password_hint, password_type, sha256sum,
		size_bytes, uploaded_at, recorded_at, source
		FROM files ORDER BY filename`

	sqlUpsertFile = `INSERT INTO files
		(filename, password_hint, password_type, sha256sum, size_bytes,
		 uploaded_at, recorded_at, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET
		 password_hint = excluded.password_hint,
		 password_type = excluded.password_type,
		 sha256sum = excluded.sha256sum,
		 size_bytes = excluded.size_bytes,
		 uploaded_at = excluded.uploaded_at,
		 recorded_at = excluded.recorded_at,
		 source = excluded.source`

	sqlDeleteFile = `DELETE FROM files WHERE filename = ?`

	sqlUpsertStorage = `INSERT INTO storage
		(id, total_bytes, limit_bytes, available_bytes, usage_percent, refreshed_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		 total_bytes = excluded.total_bytes,
		 limit_bytes = excluded.limit_bytes,
		 available_bytes = excluded.available_bytes,
		 usage_percent = excluded.usage_percent,
		 refreshed_at = excluded.refreshed_at`

	sqlSelectStorage = `SELECT total_bytes, limit_bytes, available_bytes,
		usage_percent, refreshed_at FROM storage WHERE id = 1`
)

// Entry is one catalogued file.
type Entry struct {
	Filename     string
	PasswordHint string
	PasswordType string
	SHA256       string
	SizeBytes    int64
	UploadedAt   time.Time
	RecordedAt   time.Time
	Source       string
}

// Usage is the last known storage quota.
type Usage struct {
	TotalBytes     int64
	LimitBytes     int64
	AvailableBytes int64
	UsagePercent   float64
	RefreshedAt    time.Time
}

// Catalog is the sole writer to the catalog database.
type Catalog struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if needed) the catalog database at dbPath and applies
// pending migrations.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("catalog opened", slog.String("db_path", dbPath))

	return &Catalog{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close releases the database.
func (c *Catalog) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("catalog: closing: %w", err)
	}

	return nil
}

// NormalizeName returns the canonical (NFC) form of a filename. Names typed
// on macOS arrive decomposed; the server and the catalog key on NFC.
func NormalizeName(name string) string {
	return norm.NFC.String(name)
}

// RecordUpload stores the metadata of a file this client just uploaded.
func (c *Catalog) RecordUpload(ctx context.Context, e Entry) error {
	if len(e.SHA256) != digestLen {
		return fmt.Errorf("catalog: recording %s: digest must be %d hex characters", e.Filename, digestLen)
	}

	now := c.nowFunc()
	if e.UploadedAt.IsZero() {
		e.UploadedAt = now
	}

	e.RecordedAt = now
	e.Source = SourceLocal

	if err := upsert(ctx, c.db, e); err != nil {
		return fmt.Errorf("catalog: recording %s: %w", e.Filename, err)
	}

	return nil
}

// ReplaceListing brings the catalog in line with a server listing. Files the
// server no longer has are dropped. For files recorded locally, the local
// digest is kept even if the server reports a different one, unless the
// server's copy was uploaded after the local record: then the file was
// replaced elsewhere and the server's digest is adopted. Disagreements are
// logged.
func (c *Catalog) ReplaceListing(ctx context.Context, entries []Entry, usage *Usage) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: beginning listing transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	existing, err := listFrom(ctx, tx)
	if err != nil {
		return err
	}

	byName := make(map[string]Entry, len(existing))
	for _, e := range existing {
		byName[e.Filename] = e
	}

	now := c.nowFunc()
	seen := make(map[string]bool, len(entries))

	for _, e := range entries {
		e.Filename = NormalizeName(e.Filename)
		seen[e.Filename] = true

		if len(e.SHA256) != digestLen || !validPasswordType(e.PasswordType) {
			c.logger.Warn("skipping malformed listing entry", slog.String("filename", e.Filename))
			continue
		}

		e.RecordedAt = now
		e.Source = SourceServer

		if prev, ok := byName[e.Filename]; ok && prev.Source == SourceLocal {
			replaced := e.UploadedAt.After(prev.RecordedAt)

			if prev.SHA256 != e.SHA256 {
				c.logger.Warn("server digest disagrees with locally recorded digest",
					slog.String("filename", e.Filename),
					slog.String("local", prev.SHA256),
					slog.String("server", e.SHA256),
					slog.Bool("replaced_on_server", replaced),
				)
			}

			if !replaced {
				e.SHA256 = prev.SHA256
				e.Source = SourceLocal
				e.RecordedAt = prev.RecordedAt
			}
		}

		if err := upsert(ctx, tx, e); err != nil {
			return fmt.Errorf("catalog: storing listed %s: %w", e.Filename, err)
		}
	}

	for name := range byName {
		if seen[name] {
			continue
		}

		if _, err := tx.ExecContext(ctx, sqlDeleteFile, name); err != nil {
			return fmt.Errorf("catalog: pruning %s: %w", name, err)
		}
	}

	if usage != nil {
		if err := putStorage(ctx, tx, *usage, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: committing listing: %w", err)
	}

	c.logger.Debug("catalog listing replaced", slog.Int("files", len(entries)))

	return nil
}

// Lookup returns the entry for filename, or ErrNotFound.
func (c *Catalog) Lookup(ctx context.Context, filename string) (*Entry, error) {
	row := c.db.QueryRowContext(ctx, sqlSelectFile, NormalizeName(filename))

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("catalog: looking up %s: %w", filename, err)
	}

	return e, nil
}

// List returns every entry ordered by filename.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	return listFrom(ctx, c.db)
}

// Delete removes filename. Deleting an unknown file is not an error.
func (c *Catalog) Delete(ctx context.Context, filename string) error {
	if _, err := c.db.ExecContext(ctx, sqlDeleteFile, NormalizeName(filename)); err != nil {
		return fmt.Errorf("catalog: deleting %s: %w", filename, err)
	}

	return nil
}

// UpdateStorage records the quota reported by the server.
func (c *Catalog) UpdateStorage(ctx context.Context, u Usage) error {
	return putStorage(ctx, c.db, u, c.nowFunc())
}

// Storage returns the last known quota, or nil if none was recorded.
func (c *Catalog) Storage(ctx context.Context) (*Usage, error) {
	var (
		u           Usage
		refreshedAt int64
	)

	err := c.db.QueryRowContext(ctx, sqlSelectStorage).Scan(
		&u.TotalBytes, &u.LimitBytes, &u.AvailableBytes, &u.UsagePercent, &refreshedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // no quota recorded yet
	}

	if err != nil {
		return nil, fmt.Errorf("catalog: reading storage: %w", err)
	}

	u.RefreshedAt = time.Unix(0, refreshedAt)

	return &u, nil
}

func validPasswordType(t string) bool {
	return t == "account" || t == "custom"
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func upsert(ctx context.Context, db execer, e Entry) error {
	_, err := db.ExecContext(ctx, sqlUpsertFile,
		NormalizeName(e.Filename), e.PasswordHint, e.PasswordType, e.SHA256, e.SizeBytes,
		e.UploadedAt.UnixNano(), e.RecordedAt.UnixNano(), e.Source,
	)

	return err
}

func putStorage(ctx context.Context, db execer, u Usage, now time.Time) error {
	if _, err := db.ExecContext(ctx, sqlUpsertStorage,
		u.TotalBytes, u.LimitBytes, u.AvailableBytes, u.UsagePercent, now.UnixNano(),
	); err != nil {
		return fmt.Errorf("catalog: storing storage usage: %w", err)
	}

	return nil
}

func listFrom(ctx context.Context, db querier) ([]Entry, error) {
	rows, err := db.QueryContext(ctx, sqlListFiles)
	if err != nil {
		return nil, fmt.Errorf("catalog: listing files: %w", err)
	}
	defer rows.Close()

	var out []Entry

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scanning file row: %w", err)
		}

		out = append(out, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterating file rows: %w", err)
	}

	return out, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e          Entry
		uploadedAt int64
		recordedAt int64
	)

	if err := s.Scan(&e.Filename, &e.PasswordHint, &e.PasswordType, &e.SHA256,
		&e.SizeBytes, &uploadedAt, &recordedAt, &e.Source); err != nil {
		return nil, err
	}

	e.UploadedAt = time.Unix(0, uploadedAt)
	e.RecordedAt = time.Unix(0, recordedAt)

	return &e, nil
}
