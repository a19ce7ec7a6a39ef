package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/calderhq/parley/internal/cache"
	"github.com/calderhq/parley/internal/domain"
	"github.com/calderhq/parley/internal/repository"
	"github.com/calderhq/parley/pkg/log"
)

type historyService struct {
	repo     repository.MessageRepository
	cache    cache.StatsCache // nil disables caching
	cacheTTL time.Duration
	sf       singleflight.Group
}

func NewHistoryService(repo repository.MessageRepository, statsCache cache.StatsCache, cacheTTL time.Duration) HistoryService {
	return &historyService{
		repo:     repo,
		cache:    statsCache,
		cacheTTL: cacheTTL,
	}
}

// RoomHistory returns up to limit messages oldest-first. The latest
// window is always read from the store, never from a cache, so a
// joining client cannot see a stale or empty snapshot.
func (s *historyService) RoomHistory(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	messages, err := s.repo.Recent(ctx, room, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load room history: %w", err)
	}

	// Store answers newest-first; history is delivered oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// RoomStats derives statistics from the message log, collapsing
// concurrent requests for the same room and caching the result for a
// short TTL when a cache is configured.
func (s *historyService) RoomStats(ctx context.Context, room string) (*domain.RoomStats, error) {
	result, err, _ := s.sf.Do(room, func() (interface{}, error) {
		return s.fetchStats(ctx, room)
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.RoomStats), nil
}

func (s *historyService) fetchStats(ctx context.Context, room string) (*domain.RoomStats, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, room)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger := log.Ctx(ctx)
			logger.Warn().Err(err).Str(log.FieldRoom, room).Msg("stats cache get error")
		}
	}

	stats, err := s.repo.Stats(ctx, room)
	if err != nil {
		return nil, fmt.Errorf("failed to derive room stats: %w", err)
	}

	if s.cache != nil {
		// Async so a slow cache cannot delay the join path.
		go func() {
			cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.cache.Set(cacheCtx, room, stats, s.cacheTTL); err != nil {
				logger := log.L()
				logger.Warn().Err(err).Str(log.FieldRoom, room).Msg("stats cache set error")
			}
		}()
	}

	return stats, nil
}
