// Package db opens the optional SQL database used for the channel list and
// applies its idempotent schema. Postgres (pgx) and SQLite are supported.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
	_ "github.com/mattn/go-sqlite3"    // sqlite driver registered as 'sqlite3'
)

// Driver returns the database/sql driver name and data source for dsn.
// postgres:// and postgresql:// URLs use pgx; sqlite: and file: prefixes, and
// paths ending in .db or .sqlite, use sqlite3.
func Driver(dsn string) (driver, source string, err error) {
	lower := strings.ToLower(dsn)
	switch {
	case dsn == "":
		return "", "", fmt.Errorf("empty DB_DSN")
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "pgx", dsn, nil
	case strings.HasPrefix(lower, "sqlite:"):
		return "sqlite3", strings.TrimPrefix(dsn[len("sqlite:"):], "//"), nil
	case strings.HasPrefix(lower, "file:"), strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"):
		return "sqlite3", dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported DB_DSN scheme: %q", dsn)
	}
}

// Connect opens a database for dsn and verifies it answers a ping.
func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	driver, source, err := Driver(dsn)
	if err != nil {
		return nil, err
	}
	database, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		// sqlite serializes writers; a single connection avoids SQLITE_BUSY.
		database.SetMaxOpenConns(1)
	}
	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return database, nil
}

// Migrate applies idempotent schema changes. The statements are portable
// between Postgres and SQLite.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS channels (
			name TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_channels_position ON channels(position)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate step %d failed: %w", i, err)
		}
	}
	return nil
}
