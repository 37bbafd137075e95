package catalog

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var schemaFS embed.FS

// migrate brings the catalog schema up to the newest embedded version.
func migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	scripts, err := fs.Sub(schemaFS, "migrations")
	if err != nil {
		return fmt.Errorf("catalog: migrations: %w", err)
	}

	p, err := goose.NewProvider(goose.DialectSQLite3, db, scripts)
	if err != nil {
		return fmt.Errorf("catalog: migrations: %w", err)
	}

	applied, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("catalog: applying schema: %w", err)
	}

	if len(applied) == 0 {
		return nil
	}

	version, err := p.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("catalog: reading schema version: %w", err)
	}

	logger.Debug("catalog schema upgraded",
		slog.Int("applied", len(applied)),
		slog.Int64("version", version),
	)

	return nil
}
