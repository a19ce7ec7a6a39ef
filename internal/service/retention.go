package service

import (
	"context"
	"time"

	"github.com/calderhq/parley/internal/repository"
	"github.com/calderhq/parley/pkg/log"
)

// RetentionSweeper deletes messages older than the configured age.
// Advisory maintenance: failures are logged and retried on the next
// tick, never surfaced to connections.
type RetentionSweeper struct {
	repo     repository.MessageRepository
	maxAge   time.Duration
	interval time.Duration
}

func NewRetentionSweeper(repo repository.MessageRepository, maxAge, interval time.Duration) *RetentionSweeper {
	return &RetentionSweeper{
		repo:     repo,
		maxAge:   maxAge,
		interval: interval,
	}
}

// Run sweeps until the context is cancelled.
func (s *RetentionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *RetentionSweeper) sweep(ctx context.Context) {
	rooms, err := s.repo.Rooms(ctx)
	if err != nil {
		logger := log.L()
		logger.Warn().Err(err).Msg("retention sweep: failed to list rooms")
		return
	}

	cutoff := time.Now().UTC().Add(-s.maxAge)
	for _, room := range rooms {
		purged, err := s.repo.PurgeOlderThan(ctx, room, cutoff)
		if err != nil {
			logger := log.L()
			logger.Warn().Err(err).Str(log.FieldRoom, room).Msg("retention sweep: purge failed")
			continue
		}
		if purged > 0 {
			logger := log.L()
			logger.Info().Str(log.FieldRoom, room).Int64("purged", purged).Msg("retention sweep: purged old messages")
		}
	}
}
