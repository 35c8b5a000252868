// Package postgres implements the core record store on PostgreSQL using pgx.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonMunkholm/equipment-analytics/internal/config"
	"github.com/JonMunkholm/equipment-analytics/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a core.Store backed by a pgx connection pool.
type Store struct {
	*queries
	pool *pgxpool.Pool
}

var _ core.Store = (*Store)(nil)

// New wraps an open pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: &queries{db: pool}, pool: pool}
}

// Connect opens and verifies a connection pool using the database settings.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "driver", "postgres", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database", "driver", "postgres")
	}
	return pool, nil
}

// Close closes the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// InTx runs fn in a transaction. It commits when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(q core.Queries) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&queries{db: tx})
	})
}

// PurgeAll deletes every dataset. Rows and reports go with them by cascade,
// and report numbering starts over.
func (s *Store) PurgeAll(ctx context.Context) (core.PurgeResult, error) {
	var res core.PurgeResult
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM equipment_rows`).Scan(&res.Rows); err != nil {
			return fmt.Errorf("count rows: %w", err)
		}
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM reports`).Scan(&res.Reports); err != nil {
			return fmt.Errorf("count reports: %w", err)
		}

		rows, err := tx.Query(ctx, `DELETE FROM datasets RETURNING raw_ref`)
		if err != nil {
			return fmt.Errorf("delete datasets: %w", err)
		}
		refs, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("delete datasets: %w", err)
		}

		res.Datasets = int64(len(refs))
		for _, ref := range refs {
			if ref != "" {
				res.RawRefs = append(res.RawRefs, ref)
			}
		}

		if _, err := tx.Exec(ctx, `DELETE FROM report_counters`); err != nil {
			return fmt.Errorf("reset report counters: %w", err)
		}
		return nil
	})
	if err != nil {
		return core.PurgeResult{}, err
	}
	return res, nil
}
