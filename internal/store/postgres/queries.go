package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/equipment-analytics/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Postgres error codes and constraint names mapped to core errors.
const (
	uniqueViolation      = "23505"
	reportDatasetKey     = "reports_dataset_key"
	reportUserNumberKey  = "reports_user_number_key"
	datasetColumns       = `id, user_id, file_name, created_at, summary, raw_ref`
	rowColumns           = `equipment_name, equipment_type, flowrate, pressure, temperature`
	reportColumns        = `id, user_id, dataset_id, report_number, created_at, updated_at, pdf`
	reportColumnsNoBytes = `id, user_id, dataset_id, report_number, created_at, updated_at`
)

// queries implements core.Queries over a pool or a transaction.
type queries struct {
	db DBTX
}

var _ core.Queries = (*queries)(nil)

func (q *queries) InsertDataset(ctx context.Context, d core.NewDataset) (core.Dataset, error) {
	summary, err := json.Marshal(d.Summary)
	if err != nil {
		return core.Dataset{}, fmt.Errorf("encode summary: %w", err)
	}

	row := q.db.QueryRow(ctx, `
		INSERT INTO datasets (user_id, file_name, created_at, summary, raw_ref)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+datasetColumns,
		d.UserID, d.FileName, d.CreatedAt, summary, d.RawRef,
	)
	return scanDataset(row)
}

func (q *queries) InsertRows(ctx context.Context, datasetID int64, rows []core.EquipmentRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	return q.db.CopyFrom(ctx,
		pgx.Identifier{"equipment_rows"},
		[]string{"dataset_id", "position", "equipment_name", "equipment_type", "flowrate", "pressure", "temperature"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{datasetID, int32(i), r.Name, r.Type, r.Flowrate, r.Pressure, r.Temperature}, nil
		}),
	)
}

func (q *queries) GetDataset(ctx context.Context, userID, datasetID int64) (core.Dataset, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+datasetColumns+` FROM datasets WHERE id = $1 AND user_id = $2`,
		datasetID, userID,
	)
	ds, err := scanDataset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Dataset{}, core.ErrNotFound
	}
	return ds, err
}

func (q *queries) ListDatasets(ctx context.Context, userID int64, limit int) ([]core.Dataset, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+datasetColumns+` FROM datasets
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		userID, limitArg(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Dataset
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, rows.Err()
}

func (q *queries) ListDatasetIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id FROM datasets
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (q *queries) DeleteDatasets(ctx context.Context, userID int64, ids []int64) ([]core.DeletedDataset, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := q.db.Query(ctx,
		`DELETE FROM datasets WHERE user_id = $1 AND id = ANY($2) RETURNING id, raw_ref`,
		userID, ids,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.DeletedDataset, error) {
		var d core.DeletedDataset
		err := row.Scan(&d.ID, &d.RawRef)
		return d, err
	})
}

func (q *queries) ListRows(ctx context.Context, datasetID int64, limit int) ([]core.EquipmentRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+rowColumns+` FROM equipment_rows
		WHERE dataset_id = $1
		ORDER BY position
		LIMIT $2`,
		datasetID, limitArg(limit),
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.EquipmentRow, error) {
		var r core.EquipmentRow
		err := row.Scan(&r.Name, &r.Type, &r.Flowrate, &r.Pressure, &r.Temperature)
		return r, err
	})
}

func (q *queries) CountRows(ctx context.Context, datasetID int64) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM equipment_rows WHERE dataset_id = $1`, datasetID).Scan(&n)
	return n, err
}

func (q *queries) UsersOverLimit(ctx context.Context, keep int) ([]int64, error) {
	rows, err := q.db.Query(ctx, `
		SELECT user_id FROM datasets
		GROUP BY user_id
		HAVING count(*) > $1
		ORDER BY user_id`,
		keep,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// LockUser takes a transaction-scoped advisory lock keyed by the user id.
func (q *queries) LockUser(ctx context.Context, userID int64) error {
	_, err := q.db.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, userID)
	return err
}

func (q *queries) MaxReportNumber(ctx context.Context, userID int64) (int, error) {
	var n int
	err := q.db.QueryRow(ctx,
		`SELECT GREATEST(
			COALESCE((SELECT last_number FROM report_counters WHERE user_id = $1), 0),
			COALESCE((SELECT MAX(report_number) FROM reports WHERE user_id = $1), 0))`,
		userID,
	).Scan(&n)
	return n, err
}

func (q *queries) GetReportByDataset(ctx context.Context, datasetID int64) (core.Report, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+reportColumnsNoBytes+` FROM reports WHERE dataset_id = $1`,
		datasetID,
	)
	var r core.Report
	err := row.Scan(&r.ID, &r.UserID, &r.DatasetID, &r.Number, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Report{}, core.ErrNotFound
	}
	if err != nil {
		return core.Report{}, err
	}
	return normalizeReport(r), nil
}

func (q *queries) InsertReport(ctx context.Context, nr core.NewReport) (core.Report, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO reports (user_id, dataset_id, report_number, pdf, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING `+reportColumns,
		nr.UserID, nr.DatasetID, nr.Number, nr.PDF, nr.CreatedAt,
	)
	r, err := scanReport(row)
	if err != nil {
		return core.Report{}, mapUniqueViolation(err)
	}

	_, err = q.db.Exec(ctx, `
		INSERT INTO report_counters (user_id, last_number) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET last_number = GREATEST(report_counters.last_number, EXCLUDED.last_number)`,
		r.UserID, r.Number,
	)
	if err != nil {
		return core.Report{}, fmt.Errorf("record report number: %w", err)
	}
	return r, nil
}

func (q *queries) UpdateReportPDF(ctx context.Context, reportID int64, pdf []byte, updatedAt time.Time) (core.Report, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE reports SET pdf = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+reportColumns,
		reportID, pdf, updatedAt,
	)
	r, err := scanReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Report{}, core.ErrNotFound
	}
	return r, err
}

func (q *queries) CountReports(ctx context.Context, datasetID int64) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT count(*) FROM reports WHERE dataset_id = $1`, datasetID).Scan(&n)
	return n, err
}

// mapUniqueViolation translates the report unique constraints into core errors.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return err
	}
	switch pgErr.ConstraintName {
	case reportDatasetKey:
		return fmt.Errorf("%w: %s", core.ErrReportExists, pgErr.Message)
	case reportUserNumberKey:
		return fmt.Errorf("%w: %s", core.ErrConflict, pgErr.Message)
	default:
		return err
	}
}

// limitArg converts a non-positive limit to NULL, which LIMIT treats as none.
func limitArg(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

func scanDataset(row pgx.Row) (core.Dataset, error) {
	var (
		ds      core.Dataset
		summary []byte
	)
	if err := row.Scan(&ds.ID, &ds.UserID, &ds.FileName, &ds.CreatedAt, &summary, &ds.RawRef); err != nil {
		return core.Dataset{}, err
	}
	if err := json.Unmarshal(summary, &ds.Summary); err != nil {
		return core.Dataset{}, fmt.Errorf("decode summary for dataset %d: %w", ds.ID, err)
	}
	ds.CreatedAt = ds.CreatedAt.UTC()
	return ds, nil
}

func scanReport(row pgx.Row) (core.Report, error) {
	var r core.Report
	if err := row.Scan(&r.ID, &r.UserID, &r.DatasetID, &r.Number, &r.CreatedAt, &r.UpdatedAt, &r.PDF); err != nil {
		return core.Report{}, err
	}
	return normalizeReport(r), nil
}

func normalizeReport(r core.Report) core.Report {
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r
}
