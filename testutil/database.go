package testutil

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/onnwee/lurker/db"
)

// SetupTestDB returns a migrated database for tests. It uses TEST_PG_DSN when
// set and otherwise a throwaway SQLite file under t.TempDir().
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		dsn = "sqlite://" + filepath.Join(t.TempDir(), "test.db")
	}
	ctx := context.Background()
	database, err := db.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(ctx, database); err != nil {
		_ = database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	if _, err := database.ExecContext(ctx, `DELETE FROM channels`); err != nil {
		_ = database.Close()
		t.Fatalf("failed to reset channels: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})
	return database
}
