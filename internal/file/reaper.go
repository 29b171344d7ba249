package file

import (
	"context"
	"errors"
	"time"

	"github.com/abduss/cloudnest/internal/logger"
	"github.com/abduss/cloudnest/internal/metrics"
	"go.uber.org/zap"
)

const reapBatchSize = 100

// ReapOrphans deletes files that never left UPLOADED within olderThan, along
// with any blob the client may have written. It returns the number of rows removed.
func (s *Service) ReapOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.nowFunc().Add(-olderThan)
	log := logger.FromContext(ctx)

	reaped := 0
	for {
		batch, err := s.repo.ListUploadedBefore(ctx, cutoff, reapBatchSize)
		if err != nil {
			return reaped, err
		}
		if len(batch) == 0 {
			return reaped, nil
		}

		progressed := false
		for _, f := range batch {
			// Only rows still UPLOADED are removed.
			if err := s.repo.Delete(ctx, f.ID, StatusUploaded); err != nil {
				if errors.Is(err, ErrFileNotFound) {
					continue
				}
				return reaped, err
			}
			progressed = true
			reaped++
			metrics.OrphansReaped.Inc()

			if err := s.store.Remove(ctx, f.StorageKey); err != nil {
				log.Warn("orphan blob not removed", zap.String("storage_key", f.StorageKey), zap.Error(err))
			}
		}
		if !progressed || len(batch) < reapBatchSize {
			return reaped, nil
		}
	}
}

// RunReaper calls ReapOrphans every interval until ctx ends. A non-positive interval disables it.
func (s *Service) RunReaper(ctx context.Context, interval, olderThan time.Duration) {
	if interval <= 0 {
		return
	}
	log := logger.FromContext(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.ReapOrphans(ctx, olderThan)
			if err != nil {
				log.Error("orphan sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("orphan sweep", zap.Int("reaped", n))
			}
		}
	}
}
