// Package admin provides administrative operations for the analytics
// database: full resets and on-demand retention sweeps.
package admin

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/equipment-analytics/internal/core"
)

// ResetTimeout is the maximum duration for a reset or sweep.
const ResetTimeout = 30 * time.Second

// Maintainer is the part of core.Service admin operations need.
type Maintainer interface {
	Purge(ctx context.Context, deleteMedia bool) (core.PurgeResult, int, error)
	SweepRetention(ctx context.Context) (core.SweepResult, error)
}

// ResetResult reports what a reset removed.
type ResetResult struct {
	Datasets     int64
	Rows         int64
	Reports      int64
	MediaDeleted int
	MediaFailed  int
}

// ResetAll deletes every dataset, row and report. With deleteMedia the raw
// uploads are removed too. This is a destructive operation.
func ResetAll(ctx context.Context, m Maintainer, deleteMedia bool) (ResetResult, error) {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	res, failed, err := m.Purge(ctx, deleteMedia)
	if err != nil {
		return ResetResult{}, err
	}

	out := ResetResult{
		Datasets: res.Datasets,
		Rows:     res.Rows,
		Reports:  res.Reports,
	}
	if deleteMedia {
		out.MediaDeleted = len(res.RawRefs) - failed
		out.MediaFailed = failed
	}

	slog.Warn("database reset",
		"datasets", out.Datasets,
		"rows", out.Rows,
		"reports", out.Reports,
		"media_deleted", out.MediaDeleted,
		"media_failed", out.MediaFailed,
	)
	return out, nil
}

// Sweep runs one retention pass over every user above the window.
func Sweep(ctx context.Context, m Maintainer) (core.SweepResult, error) {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()
	return m.SweepRetention(ctx)
}
