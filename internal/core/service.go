package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultHistoryLimit is the number of datasets returned by History.
const DefaultHistoryLimit = 5

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	// Keep is the number of most recent datasets retained per user.
	Keep int
	// MaxConcurrentUploads bounds parallel ingests.
	MaxConcurrentUploads int
	// MaxUploadWait is how long an ingest waits for a free slot.
	MaxUploadWait time.Duration
	// Now returns the current time. Used for dataset and report timestamps.
	Now func() time.Time
}

// Service provides ingestion, retention, summary and report operations over
// a record store.
type Service struct {
	store    Store
	renderer Renderer
	raw      RawStore
	limiter  *UploadLimiter
	keep     int
	now      func() time.Time
}

// NewService creates a new Service instance. raw may be nil, in which case
// raw uploads are not kept.
func NewService(store Store, renderer Renderer, raw RawStore, opts Options) (*Service, error) {
	if store == nil {
		return nil, errors.New("core: nil store")
	}
	if renderer == nil {
		return nil, errors.New("core: nil renderer")
	}
	if raw == nil {
		raw = NopRawStore{}
	}

	keep := opts.Keep
	if keep <= 0 {
		keep = DefaultRetentionKeep
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		store:    store,
		renderer: renderer,
		raw:      raw,
		limiter:  NewUploadLimiter(opts.MaxConcurrentUploads, opts.MaxUploadWait),
		keep:     keep,
		now:      now,
	}, nil
}

// Limiter exposes the upload limiter for health reporting and shutdown drain.
func (s *Service) Limiter() *UploadLimiter {
	return s.limiter
}

// Keep returns the per-user retention window.
func (s *Service) Keep() int {
	return s.keep
}

// timestamp returns the current time at the precision every store keeps.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Summary returns a dataset's statistics. A limitRaw that parses as a
// positive integer recomputes the summary over that many leading rows and
// adds max_temperature; anything else returns the persisted full summary.
func (s *Service) Summary(ctx context.Context, userID, datasetID int64, limitRaw string) (*SummaryResult, error) {
	ds, err := s.store.GetDataset(ctx, userID, datasetID)
	if err != nil {
		return nil, fmt.Errorf("get dataset %d: %w", datasetID, err)
	}

	limit, ok := ParseLimit(limitRaw)
	if !ok {
		return &SummaryResult{DatasetID: ds.ID, Summary: ds.Summary}, nil
	}

	rows, err := s.store.ListRows(ctx, ds.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list rows for dataset %d: %w", ds.ID, err)
	}
	return &SummaryResult{DatasetID: ds.ID, Summary: AnalyzeSubset(rows, limit)}, nil
}

// Rows returns a dataset's stored rows in file order along with the total
// row count. A limitRaw of "0" returns an empty page; any other value that
// is not a positive integer returns every row.
func (s *Service) Rows(ctx context.Context, userID, datasetID int64, limitRaw string) (*RowsPage, error) {
	ds, err := s.store.GetDataset(ctx, userID, datasetID)
	if err != nil {
		return nil, fmt.Errorf("get dataset %d: %w", datasetID, err)
	}

	var rows []EquipmentRow
	if !isZeroLimit(limitRaw) {
		limit, _ := ParseLimit(limitRaw)
		rows, err = s.store.ListRows(ctx, ds.ID, limit)
		if err != nil {
			return nil, fmt.Errorf("list rows for dataset %d: %w", ds.ID, err)
		}
	}
	total, err := s.store.CountRows(ctx, ds.ID)
	if err != nil {
		return nil, fmt.Errorf("count rows for dataset %d: %w", ds.ID, err)
	}

	if rows == nil {
		rows = []EquipmentRow{}
	}
	return &RowsPage{DatasetID: ds.ID, TotalCount: total, Data: rows}, nil
}

// History returns the user's most recent datasets, newest first.
func (s *Service) History(ctx context.Context, userID int64) ([]Dataset, error) {
	datasets, err := s.store.ListDatasets(ctx, userID, DefaultHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	if datasets == nil {
		datasets = []Dataset{}
	}
	return datasets, nil
}

// Purge deletes every dataset, row and report. When deleteMedia is set the
// raw uploads are removed from the raw store as well; failures there are
// counted but do not fail the purge.
func (s *Service) Purge(ctx context.Context, deleteMedia bool) (PurgeResult, int, error) {
	res, err := s.store.PurgeAll(ctx)
	if err != nil {
		return PurgeResult{}, 0, fmt.Errorf("purge records: %w", err)
	}

	var failed int
	if deleteMedia {
		for _, ref := range res.RawRefs {
			if !s.deleteRaw(ctx, ref) {
				failed++
			}
		}
	}
	return res, failed, nil
}

// NopRawStore discards raw uploads.
type NopRawStore struct{}

// Save implements RawStore.
func (NopRawStore) Save(context.Context, string, []byte) (string, error) { return "", nil }

// Delete implements RawStore.
func (NopRawStore) Delete(context.Context, string) error { return nil }
