// Package sqlite implements the core record store on an embedded SQLite
// database using the pure Go modernc driver.
//
// The database is opened with a single connection, so transactions are
// serialized by database/sql and LockUser has nothing left to do.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/equipment-analytics/internal/core"
	_ "modernc.org/sqlite"
)

// driverName is the database/sql name registered by modernc.org/sqlite.
const driverName = "sqlite"

// Store is a core.Store backed by a SQLite database file.
type Store struct {
	*queries
	db *sql.DB
}

var _ core.Store = (*Store)(nil)

// New wraps an open database.
func New(db *sql.DB) *Store {
	return &Store{queries: &queries{db: db}, db: db}
}

// DSN turns a file path or file: URI into a DSN with foreign keys enabled
// and a busy timeout.
func DSN(path string) string {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Open opens and verifies the database at path.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite: empty database path")
	}

	db, err := sql.Open(driverName, DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("connected to database", "driver", "sqlite", "path", path)
	return db, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn in a transaction. It commits when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(q core.Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// PurgeAll deletes every dataset. Rows and reports go with them by cascade,
// and report numbering starts over.
func (s *Store) PurgeAll(ctx context.Context) (core.PurgeResult, error) {
	var res core.PurgeResult
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM equipment_rows`).Scan(&res.Rows); err != nil {
		return core.PurgeResult{}, fmt.Errorf("count rows: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM reports`).Scan(&res.Reports); err != nil {
		return core.PurgeResult{}, fmt.Errorf("count reports: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `DELETE FROM datasets RETURNING raw_ref`)
	if err != nil {
		return core.PurgeResult{}, fmt.Errorf("delete datasets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return core.PurgeResult{}, fmt.Errorf("delete datasets: %w", err)
		}
		res.Datasets++
		if ref != "" {
			res.RawRefs = append(res.RawRefs, ref)
		}
	}
	if err := rows.Err(); err != nil {
		return core.PurgeResult{}, fmt.Errorf("delete datasets: %w", err)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM report_counters`); err != nil {
		return core.PurgeResult{}, fmt.Errorf("reset report counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.PurgeResult{}, fmt.Errorf("commit purge: %w", err)
	}
	return res, nil
}
