package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/equipment-analytics/internal/core"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	datasetColumns       = `id, user_id, file_name, created_at, summary, raw_ref`
	rowColumns           = `equipment_name, equipment_type, flowrate, pressure, temperature`
	reportColumns        = `id, user_id, dataset_id, report_number, created_at, updated_at, pdf`
	reportColumnsNoBytes = `id, user_id, dataset_id, report_number, created_at, updated_at`

	// rowBatch bounds the rows per INSERT so the bound parameter count stays
	// well under SQLite's limit.
	rowBatch = 500
)

// queries implements core.Queries over the database or a transaction.
type queries struct {
	db DBTX
}

var _ core.Queries = (*queries)(nil)

type scanner interface {
	Scan(dest ...any) error
}

func (q *queries) InsertDataset(ctx context.Context, d core.NewDataset) (core.Dataset, error) {
	summary, err := json.Marshal(d.Summary)
	if err != nil {
		return core.Dataset{}, fmt.Errorf("encode summary: %w", err)
	}

	row := q.db.QueryRowContext(ctx, `
		INSERT INTO datasets (user_id, file_name, created_at, summary, raw_ref)
		VALUES (?, ?, ?, ?, ?)
		RETURNING `+datasetColumns,
		d.UserID, d.FileName, d.CreatedAt.UnixMicro(), string(summary), d.RawRef,
	)
	return scanDataset(row)
}

func (q *queries) InsertRows(ctx context.Context, datasetID int64, rows []core.EquipmentRow) (int64, error) {
	var total int64
	for start := 0; start < len(rows); start += rowBatch {
		end := min(start+rowBatch, len(rows))
		batch := rows[start:end]

		var sb strings.Builder
		sb.WriteString(`INSERT INTO equipment_rows (dataset_id, position, ` + rowColumns + `) VALUES `)
		args := make([]any, 0, len(batch)*7)
		for i, r := range batch {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, datasetID, start+i, r.Name, r.Type, r.Flowrate, r.Pressure, r.Temperature)
		}

		res, err := q.db.ExecContext(ctx, sb.String(), args...)
		if err != nil {
			return total, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (q *queries) GetDataset(ctx context.Context, userID, datasetID int64) (core.Dataset, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+datasetColumns+` FROM datasets WHERE id = ? AND user_id = ?`,
		datasetID, userID,
	)
	ds, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Dataset{}, core.ErrNotFound
	}
	return ds, err
}

func (q *queries) ListDatasets(ctx context.Context, userID int64, limit int) ([]core.Dataset, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+datasetColumns+` FROM datasets
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`,
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
	rows, err := q.db.QueryContext(ctx, `
		SELECT id FROM datasets
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

func (q *queries) DeleteDatasets(ctx context.Context, userID int64, ids []int64) ([]core.DeletedDataset, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")

	rows, err := q.db.QueryContext(ctx,
		`DELETE FROM datasets WHERE user_id = ? AND id IN (`+placeholders+`) RETURNING id, raw_ref`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.DeletedDataset
	for rows.Next() {
		var d core.DeletedDataset
		if err := rows.Scan(&d.ID, &d.RawRef); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (q *queries) ListRows(ctx context.Context, datasetID int64, limit int) ([]core.EquipmentRow, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+rowColumns+` FROM equipment_rows
		WHERE dataset_id = ?
		ORDER BY position
		LIMIT ?`,
		datasetID, limitArg(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.EquipmentRow
	for rows.Next() {
		var r core.EquipmentRow
		if err := rows.Scan(&r.Name, &r.Type, &r.Flowrate, &r.Pressure, &r.Temperature); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *queries) CountRows(ctx context.Context, datasetID int64) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT count(*) FROM equipment_rows WHERE dataset_id = ?`, datasetID).Scan(&n)
	return n, err
}

func (q *queries) UsersOverLimit(ctx context.Context, keep int) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT user_id FROM datasets
		GROUP BY user_id
		HAVING count(*) > ?
		ORDER BY user_id`,
		keep,
	)
	if err != nil {
		return nil, err
	}
	return collectIDs(rows)
}

// LockUser is a no-op: the single connection already serializes transactions.
func (q *queries) LockUser(context.Context, int64) error {
	return nil
}

func (q *queries) MaxReportNumber(ctx context.Context, userID int64) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		`SELECT MAX(
			COALESCE((SELECT last_number FROM report_counters WHERE user_id = ?), 0),
			COALESCE((SELECT MAX(report_number) FROM reports WHERE user_id = ?), 0))`,
		userID, userID,
	).Scan(&n)
	return n, err
}

func (q *queries) GetReportByDataset(ctx context.Context, datasetID int64) (core.Report, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+reportColumnsNoBytes+` FROM reports WHERE dataset_id = ?`,
		datasetID,
	)
	var (
		r                core.Report
		created, updated int64
	)
	err := row.Scan(&r.ID, &r.UserID, &r.DatasetID, &r.Number, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Report{}, core.ErrNotFound
	}
	if err != nil {
		return core.Report{}, err
	}
	r.CreatedAt = fromMicros(created)
	r.UpdatedAt = fromMicros(updated)
	return r, nil
}

func (q *queries) InsertReport(ctx context.Context, nr core.NewReport) (core.Report, error) {
	at := nr.CreatedAt.UnixMicro()
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO reports (user_id, dataset_id, report_number, pdf, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING `+reportColumns,
		nr.UserID, nr.DatasetID, nr.Number, nr.PDF, at, at,
	)
	r, err := scanReport(row)
	if err != nil {
		return core.Report{}, mapUniqueViolation(err)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO report_counters (user_id, last_number) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET last_number = MAX(last_number, excluded.last_number)`,
		r.UserID, r.Number,
	)
	if err != nil {
		return core.Report{}, fmt.Errorf("record report number: %w", err)
	}
	return r, nil
}

func (q *queries) UpdateReportPDF(ctx context.Context, reportID int64, pdf []byte, updatedAt time.Time) (core.Report, error) {
	row := q.db.QueryRowContext(ctx, `
		UPDATE reports SET pdf = ?, updated_at = ?
		WHERE id = ?
		RETURNING `+reportColumns,
		pdf, updatedAt.UnixMicro(), reportID,
	)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Report{}, core.ErrNotFound
	}
	return r, err
}

func (q *queries) CountReports(ctx context.Context, datasetID int64) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT count(*) FROM reports WHERE dataset_id = ?`, datasetID).Scan(&n)
	return n, err
}

// mapUniqueViolation translates the report unique indexes into core errors.
// SQLite names the violated columns rather than the index.
func mapUniqueViolation(err error) error {
	var sqErr *msqlite.Error
	if !errors.As(err, &sqErr) || sqErr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return err
	}
	msg := sqErr.Error()
	switch {
	case strings.Contains(msg, "reports.dataset_id"):
		return fmt.Errorf("%w: %s", core.ErrReportExists, msg)
	case strings.Contains(msg, "reports.report_number"):
		return fmt.Errorf("%w: %s", core.ErrConflict, msg)
	default:
		return err
	}
}

// limitArg converts a non-positive limit to -1, which LIMIT treats as none.
func limitArg(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func collectIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanDataset(row scanner) (core.Dataset, error) {
	var (
		ds      core.Dataset
		created int64
		summary string
	)
	if err := row.Scan(&ds.ID, &ds.UserID, &ds.FileName, &created, &summary, &ds.RawRef); err != nil {
		return core.Dataset{}, err
	}
	if err := json.Unmarshal([]byte(summary), &ds.Summary); err != nil {
		return core.Dataset{}, fmt.Errorf("decode summary for dataset %d: %w", ds.ID, err)
	}
	ds.CreatedAt = fromMicros(created)
	return ds, nil
}

func scanReport(row scanner) (core.Report, error) {
	var (
		r                core.Report
		created, updated int64
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.DatasetID, &r.Number, &created, &updated, &r.PDF); err != nil {
		return core.Report{}, err
	}
	r.CreatedAt = fromMicros(created)
	r.UpdatedAt = fromMicros(updated)
	return r, nil
}
