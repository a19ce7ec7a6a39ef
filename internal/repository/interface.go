package repository

import (
	"context"
	"errors"
	"time"

	"github.com/calderhq/parley/internal/domain"
)

// ErrPersistence marks a storage read or write that could not be
// completed. Callers treat reads as degradable and writes as fatal to
// the single operation, never to the process.
var ErrPersistence = errors.New("message store unavailable")

// MessageRepository is the durable, time-ordered message log.
type MessageRepository interface {
	// Append durably commits the message, assigning its ID and a
	// server timestamp that is monotonic within the room.
	Append(ctx context.Context, msg *domain.Message) error

	// Recent returns up to limit messages for the room, newest first.
	Recent(ctx context.Context, room string, limit int) ([]domain.Message, error)

	// Stats derives message count and distinct authors for the room.
	Stats(ctx context.Context, room string) (*domain.RoomStats, error)

	// Rooms lists every room that has at least one persisted message.
	Rooms(ctx context.Context) ([]string, error)

	// PurgeOlderThan deletes messages created before cutoff and
	// returns the number of rows removed. Maintenance only.
	PurgeOlderThan(ctx context.Context, room string, cutoff time.Time) (int64, error)
}
