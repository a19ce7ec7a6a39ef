package domain

import (
	"sync"
	"time"
)

// Identity is the authenticated user attached to a connection by the
// upstream auth layer. The core treats it as opaque and never
// validates it.
type Identity struct {
	UserID   string
	Username string
	Avatar   string
}

// Session holds the per-connection state: optional identity, the room
// the connection currently belongs to (at most one) and the display
// name announced on join. Safe for concurrent use.
type Session struct {
	mu           sync.RWMutex
	identity     *Identity
	room         string
	name         string
	createdAt    time.Time
	lastActiveAt time.Time
}

func NewSession(identity *Identity) *Session {
	now := time.Now()
	return &Session{
		identity:     identity,
		createdAt:    now,
		lastActiveAt: now,
	}
}

// Identity returns the attached identity, nil for anonymous connections.
func (s *Session) Identity() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// JoinRoom records the current room and the display name used in it.
func (s *Session) JoinRoom(room, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = room
	s.name = name
	s.lastActiveAt = time.Now()
}

// LeaveRoom clears the room association and returns the room and
// display name that were active.
func (s *Session) LeaveRoom() (room, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, name = s.room, s.name
	s.room = ""
	s.name = ""
	s.lastActiveAt = time.Now()
	return room, name
}

// Room returns the current room, empty when not in one.
func (s *Session) Room() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room
}

// Name returns the display name announced on the last join.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *Session) IsInRoom() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.room != ""
}

func (s *Session) UpdateActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActiveAt = time.Now()
}

// LastActiveAt reports the time of the last inbound event.
func (s *Session) LastActiveAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActiveAt
}
