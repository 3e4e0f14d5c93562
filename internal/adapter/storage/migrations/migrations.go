// Package migrations carries the PostgreSQL schema and applies it in order.
// Every statement is idempotent, so Apply can run on each deploy.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
)

//go:embed sql/*.sql
var files embed.FS

// Names lists the embedded migrations in the order Apply runs them.
func Names() ([]string, error) {
	names, err := fs.Glob(files, "sql/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Apply executes every migration against db, stopping at the first failure.
func Apply(ctx context.Context, db *sql.DB) error {
	names, err := Names()
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	for _, name := range names {
		body, err := files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		slog.Info("📦 Migration applied", "file", name)
	}
	return nil
}
