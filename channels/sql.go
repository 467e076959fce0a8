package channels

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLBackend stores the list in the channels table created by db.Migrate.
// The position column keeps insertion order.
type SQLBackend struct {
	DB *sql.DB
}

// Load returns stored names ordered by position.
func (b *SQLBackend) Load(ctx context.Context) ([]string, error) {
	rows, err := b.DB.QueryContext(ctx, `SELECT name FROM channels ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Save replaces all rows in a single transaction.
func (b *SQLBackend) Save(ctx context.Context, names []string) error {
	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM channels`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear channels: %w", err)
	}
	for i, n := range names {
		if _, err := tx.ExecContext(ctx, `INSERT INTO channels (name, position) VALUES ($1, $2)`, n, i); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert channel %q: %w", n, err)
		}
	}
	return tx.Commit()
}
