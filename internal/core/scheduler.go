package core

// scheduler.go provides the background retention sweep.
//
// Ingest prunes each user's datasets right after commit. If that prune fails
// the user is temporarily over the retention window; the sweep finds such
// users and prunes them again. It logs failures and keeps running.

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SweepResult summarizes one retention sweep.
type SweepResult struct {
	Users    int
	Datasets int
	Failed   int
}

// StartRetentionSweep runs SweepRetention immediately and then every
// interval until ctx is cancelled. A non-positive interval returns at once.
func (s *Service) StartRetentionSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	slog.Info("retention sweep started", "interval", interval.String(), "keep", s.keep)

	s.runSweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retention sweep stopped")
			return
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

func (s *Service) runSweep(ctx context.Context) {
	start := time.Now()
	res, err := s.SweepRetention(ctx)
	if err != nil {
		slog.Error("retention sweep failed", "error", err)
		return
	}
	slog.Info("retention sweep completed",
		"users", res.Users,
		"datasets_deleted", res.Datasets,
		"users_failed", res.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// SweepRetention applies the retention window to every user above it.
func (s *Service) SweepRetention(ctx context.Context) (SweepResult, error) {
	users, err := s.store.UsersOverLimit(ctx, s.keep)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list users over limit: %w", err)
	}

	res := SweepResult{Users: len(users)}
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		deleted, err := s.ApplyRetention(ctx, userID)
		if err != nil {
			slog.Warn("retention sweep: user failed", "user_id", userID, "error", err)
			res.Failed++
			continue
		}
		res.Datasets += len(deleted)
	}
	return res, nil
}
