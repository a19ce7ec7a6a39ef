package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/calderhq/parley/internal/domain"
)

// GormMessageRepository persists messages through GORM; the driver
// (sqlite, postgres, mysql) is whatever the connection was opened with.
type GormMessageRepository struct {
	db *gorm.DB

	// Per-room high-water mark so two commits in the same clock tick
	// still get distinct, ordered timestamps.
	mu     sync.Mutex
	lastTS map[string]time.Time
}

func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{
		db:     db,
		lastTS: make(map[string]time.Time),
	}
}

func (r *GormMessageRepository) Append(ctx context.Context, msg *domain.Message) error {
	if msg.Room == "" || msg.Body == "" {
		return fmt.Errorf("message room and body must be non-empty")
	}

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = r.nextTimestamp(msg.Room)

	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (r *GormMessageRepository) Recent(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	var messages []domain.Message
	err := r.db.WithContext(ctx).
		Where("room = ?", room).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return messages, nil
}

func (r *GormMessageRepository) Stats(ctx context.Context, room string) (*domain.RoomStats, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("room = ?", room).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	var authors []string
	if err := r.db.WithContext(ctx).
		Model(&domain.Message{}).
		Distinct("author").
		Where("room = ?", room).
		Pluck("author", &authors).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	return &domain.RoomStats{
		MessageCount:     count,
		ParticipantCount: len(authors),
		Participants:     authors,
	}, nil
}

func (r *GormMessageRepository) Rooms(ctx context.Context) ([]string, error) {
	var rooms []string
	if err := r.db.WithContext(ctx).
		Model(&domain.Message{}).
		Distinct("room").
		Pluck("room", &rooms).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return rooms, nil
}

func (r *GormMessageRepository) PurgeOlderThan(ctx context.Context, room string, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("room = ? AND created_at < ?", room, cutoff).
		Delete(&domain.Message{})
	if res.Error != nil {
		return 0, fmt.Errorf("%w: %v", ErrPersistence, res.Error)
	}
	return res.RowsAffected, nil
}

func (r *GormMessageRepository) nextTimestamp(room string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if last, ok := r.lastTS[room]; ok && !now.After(last) {
		now = last.Add(time.Microsecond)
	}
	r.lastTS[room] = now
	return now
}
