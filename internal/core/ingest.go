package core

// ingest.go turns an uploaded CSV into a persisted dataset.
//
// The flow is:
//  1. Take an upload slot from the limiter
//  2. Analyze the bytes; any analyzer error aborts with nothing written
//  3. Copy the raw bytes to the raw store (best effort)
//  4. Insert the dataset and its rows in one transaction
//  5. After commit, prune the user's datasets beyond the retention window
//
// A failed prune is logged and the new dataset stays. Datasets left over are
// removed by the next successful ingest or by the retention sweep.

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/JonMunkholm/equipment-analytics/internal/logging"
)

// Ingest analyzes and stores one upload for userID and returns the created
// dataset with its summary.
func (s *Service) Ingest(ctx context.Context, userID int64, fileName string, r io.Reader) (*Dataset, error) {
	var created *Dataset

	err := s.limiter.Do(ctx, func(ctx context.Context) error {
		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("read upload: %w", err)
		}
		if len(data) == 0 {
			return ErrEmptyUpload
		}

		start := time.Now()
		rows, summary, err := AnalyzeBytes(data)
		if err != nil {
			return err
		}

		rawRef := s.saveRaw(ctx, userID, fileName, data)

		ds, err := s.persist(ctx, NewDataset{
			UserID:    userID,
			FileName:  fileName,
			CreatedAt: s.timestamp(),
			Summary:   summary,
			RawRef:    rawRef,
		}, rows)
		if err != nil {
			if rawRef != "" {
				s.deleteRaw(ctx, rawRef)
			}
			return err
		}

		log := logging.WithFields(ctx, "user_id", userID, "dataset_id", ds.ID)
		log.Info("dataset ingested",
			"file", fileName,
			"rows", len(rows),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", GetIPAddressFromContext(ctx),
		)

		if _, err := s.ApplyRetention(ctx, userID); err != nil {
			log.Warn("retention prune failed", "error", err)
		}

		created = &ds
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// persist inserts the dataset and its rows atomically.
func (s *Service) persist(ctx context.Context, nd NewDataset, rows []EquipmentRow) (Dataset, error) {
	var ds Dataset
	err := s.store.InTx(ctx, func(q Queries) error {
		d, err := q.InsertDataset(ctx, nd)
		if err != nil {
			return fmt.Errorf("insert dataset: %w", err)
		}
		n, err := q.InsertRows(ctx, d.ID, rows)
		if err != nil {
			return fmt.Errorf("insert rows: %w", err)
		}
		if n != int64(len(rows)) {
			return fmt.Errorf("insert rows: wrote %d of %d", n, len(rows))
		}
		ds = d
		return nil
	})
	return ds, err
}

// ApplyRetention deletes the user's datasets outside the newest Keep and
// removes their raw files. It returns the deleted dataset ids.
func (s *Service) ApplyRetention(ctx context.Context, userID int64) ([]int64, error) {
	ids, err := s.store.ListDatasetIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list dataset ids: %w", err)
	}

	stale := Prune(ids, s.keep)
	if len(stale) == 0 {
		return nil, nil
	}

	deleted, err := s.store.DeleteDatasets(ctx, userID, stale)
	if err != nil {
		return nil, fmt.Errorf("delete datasets: %w", err)
	}

	out := make([]int64, 0, len(deleted))
	for _, d := range deleted {
		out = append(out, d.ID)
		if d.RawRef != "" {
			s.deleteRaw(ctx, d.RawRef)
		}
	}

	slog.Info("retention applied", "user_id", userID, "deleted", out)
	return out, nil
}

// rawPathHint names the raw copy of an upload. The raw store adds a unique
// prefix to the base name.
func rawPathHint(userID int64, fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload.csv"
	}
	return fmt.Sprintf("uploads/user_%d/%s", userID, base)
}

// saveRaw stores the raw upload. Failures are logged and yield an empty ref.
func (s *Service) saveRaw(ctx context.Context, userID int64, fileName string, data []byte) string {
	ref, err := s.raw.Save(ctx, rawPathHint(userID, fileName), data)
	if err != nil {
		slog.Warn("raw upload not stored", "user_id", userID, "file", fileName, "error", err)
		return ""
	}
	return ref
}

// deleteRaw removes a raw upload and reports whether it succeeded.
func (s *Service) deleteRaw(ctx context.Context, ref string) bool {
	if err := s.raw.Delete(ctx, ref); err != nil {
		slog.Warn("raw upload not deleted", "ref", ref, "error", err)
		return false
	}
	return true
}
