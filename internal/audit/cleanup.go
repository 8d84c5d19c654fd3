package audit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kitloop-backend/internal/logging"
	"kitloop-backend/internal/store"
)

// Cleanup deletes decisions older than retentionDays from the _decisions table.
func Cleanup(ctx context.Context, s *store.Store, retentionDays int, now time.Time) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-time.Duration(retentionDays) * 24 * time.Hour).Unix()

	pb := s.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("DELETE FROM _decisions WHERE created_at < %s", pb.Add(cutoff))
	n, err := store.Exec(ctx, s.DB, sqlStr, pb.Params()...)
	if err != nil {
		return 0, fmt.Errorf("decision cleanup: %w", err)
	}
	if n > 0 {
		logging.Info("Decision cleanup", zap.Int64("deleted", n), zap.Int("retention_days", retentionDays))
	}
	return n, nil
}

// StartCleanup runs Cleanup once a day until ctx is cancelled.
func StartCleanup(ctx context.Context, s *store.Store, retentionDays int) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			if _, err := Cleanup(ctx, s, retentionDays, time.Now()); err != nil {
				logging.Error("Decision cleanup failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}
