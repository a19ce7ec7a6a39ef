package cache

import (
	"context"
	"errors"
	"time"

	"github.com/calderhq/parley/internal/domain"
)

// ErrCacheMiss is returned when the key has no cached value.
var ErrCacheMiss = errors.New("cache miss")

// StatsCache holds short-lived room statistics so a burst of joins on
// a busy room does not hammer the message store.
type StatsCache interface {
	Get(ctx context.Context, room string) (*domain.RoomStats, error)
	Set(ctx context.Context, room string, stats *domain.RoomStats, ttl time.Duration) error
	Close() error
}
