package core

// retention.go runs the optional background sweep that drops finished
// sessions from the in-memory registry.
//
// Sessions are never removed unless an operator enables the sweep. Only
// terminal sessions older than MaxAge are touched; running and paused
// sessions are always kept.

import (
	"context"
	"log/slog"
	"time"
)

// RetentionConfig controls the sweep.
type RetentionConfig struct {
	MaxAge        time.Duration // Age after FinishedAt before a session is dropped
	CheckInterval time.Duration // How often to sweep (default: 1h)
}

// StartRetentionSweeper purges expired sessions immediately and then every
// CheckInterval until ctx is cancelled. A non-positive MaxAge disables it.
func (s *Service) StartRetentionSweeper(ctx context.Context, cfg RetentionConfig) {
	if cfg.MaxAge <= 0 {
		slog.Info("session retention disabled")
		return
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Hour
	}

	slog.Info("session retention sweeper started",
		"max_age", cfg.MaxAge.String(),
		"interval", cfg.CheckInterval.String(),
	)

	s.runRetentionSweep(ctx, cfg.MaxAge)

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session retention sweeper stopped")
			return
		case <-ticker.C:
			s.runRetentionSweep(ctx, cfg.MaxAge)
		}
	}
}

// snapshotPurger is implemented by snapshot stores that can drop old sessions.
type snapshotPurger interface {
	PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error)
}

func (s *Service) runRetentionSweep(ctx context.Context, maxAge time.Duration) {
	start := time.Now()
	cutoff := start.Add(-maxAge)

	purged := s.PurgeFinished(cutoff)

	var stored int64
	if p, ok := s.snapshots.(snapshotPurger); ok {
		n, err := p.PurgeFinished(ctx, cutoff)
		if err != nil {
			slog.Error("purge stored import sessions failed", "error", err)
		}
		stored = n
	}

	if purged == 0 && stored == 0 {
		slog.Debug("retention sweep found nothing to purge")
		return
	}
	slog.Info("purged finished import sessions",
		"sessions_purged", purged,
		"snapshots_purged", stored,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
