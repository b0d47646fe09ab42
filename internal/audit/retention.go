package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Prune deletes scans created before cutoff. Scans of labeled targets are
// kept so calibration history survives retention.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM scans
		WHERE created_at < ?
		AND NOT EXISTS (
			SELECT 1 FROM outcomes o
			WHERE o.chain_id = scans.chain_id AND o.target = scans.target
		)
	`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune scans: %w", err)
	}

	n, _ := res.RowsAffected()
	slog.Info("Audit retention completed", "cutoff", cutoff.UTC(), "scans_deleted", n)
	return n, nil
}

// RunRetention prunes scans older than retention every interval until ctx is
// done. A non-positive retention disables it.
func (s *Store) RunRetention(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.Prune(ctx, time.Now().Add(-retention)); err != nil && ctx.Err() == nil {
			slog.Warn("Audit retention failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
