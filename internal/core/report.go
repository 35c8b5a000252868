package core

// report.go manages the single PDF report attached to each dataset.
//
// Every request renders the PDF again from the dataset's persisted full
// summary. The first request numbers and inserts the report; later requests
// overwrite the stored PDF and keep the number. Numbering reads the user's
// highest report number and inserts max+1 in one transaction holding the
// user's lock, and the unique constraints on (user, number) and (dataset)
// catch anything the lock does not.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JonMunkholm/equipment-analytics/internal/logging"
)

// reportAttempts bounds GetOrCreateReport's transaction retries: the first
// attempt plus one retry after a numbering or dataset conflict.
const reportAttempts = 2

// GetOrCreateReport renders the dataset's report and stores it, creating and
// numbering the report on first request.
func (s *Service) GetOrCreateReport(ctx context.Context, userID, datasetID int64) (*ReportFile, error) {
	ds, err := s.store.GetDataset(ctx, userID, datasetID)
	if err != nil {
		return nil, fmt.Errorf("get dataset %d: %w", datasetID, err)
	}

	pdf, err := s.renderer.Render(ctx, ds.FileName, ds.CreatedAt, ds.Summary)
	if err != nil {
		return nil, &RenderError{DatasetID: ds.ID, Err: err}
	}
	if len(pdf) == 0 {
		return nil, &RenderError{DatasetID: ds.ID, Err: errors.New("renderer returned no bytes")}
	}

	var report Report
	for attempt := 1; ; attempt++ {
		report, err = s.storeReport(ctx, ds, pdf)
		if err == nil {
			break
		}
		retryable := errors.Is(err, ErrConflict) || errors.Is(err, ErrReportExists)
		if !retryable || attempt >= reportAttempts {
			return nil, fmt.Errorf("store report for dataset %d: %w", ds.ID, err)
		}
		slog.Debug("report store conflict, retrying",
			"user_id", userID,
			"dataset_id", ds.ID,
			"attempt", attempt,
			"error", err,
		)
	}

	return &ReportFile{
		Report:   report,
		PDF:      pdf,
		Filename: ReportFilename(report.Number),
	}, nil
}

// storeReport writes pdf as the dataset's report in one transaction:
// update in place if a report exists, otherwise insert under the next number.
func (s *Service) storeReport(ctx context.Context, ds Dataset, pdf []byte) (Report, error) {
	var out Report
	err := s.store.InTx(ctx, func(q Queries) error {
		if err := q.LockUser(ctx, ds.UserID); err != nil {
			return fmt.Errorf("lock user: %w", err)
		}

		now := s.timestamp()

		existing, err := q.GetReportByDataset(ctx, ds.ID)
		switch {
		case err == nil:
			out, err = q.UpdateReportPDF(ctx, existing.ID, pdf, now)
			if err != nil {
				return fmt.Errorf("update report %d: %w", existing.ID, err)
			}
			return nil
		case !errors.Is(err, ErrNotFound):
			return fmt.Errorf("get report: %w", err)
		}

		number, err := NextReportNumber(ctx, q, ds.UserID)
		if err != nil {
			return err
		}
		out, err = q.InsertReport(ctx, NewReport{
			UserID:    ds.UserID,
			DatasetID: ds.ID,
			Number:    number,
			CreatedAt: now,
			PDF:       pdf,
		})
		if err != nil {
			return fmt.Errorf("insert report %d: %w", number, err)
		}
		logging.FromContext(ctx).Info("report created", "user_id", ds.UserID, "dataset_id", ds.ID, "report_number", number)
		return nil
	})
	return out, err
}
