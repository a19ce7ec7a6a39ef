package service

import (
	"context"

	"github.com/calderhq/parley/internal/domain"
	"github.com/calderhq/parley/internal/hub"
)

// ChatService owns the per-connection event semantics: one method per
// inbound event kind, each safe to call concurrently across clients.
type ChatService interface {
	HandleJoin(ctx context.Context, c *hub.Client, room, username string) error
	HandleSend(ctx context.Context, c *hub.Client, author, body, clientTime string) error
	HandleTyping(ctx context.Context, c *hub.Client, username string) error
	HandleStopTyping(ctx context.Context, c *hub.Client, username string) error
	HandleLeave(ctx context.Context, c *hub.Client) error
	HandleDisconnect(ctx context.Context, c *hub.Client) error

	// NotifyTypingExpired announces a typing entry the presence
	// sweeper expired; wired as the tracker's expiry callback.
	NotifyTypingExpired(room, name, clientID string)
}

// HistoryService answers the read queries behind a room join and the
// REST surface: bounded recent history and derived statistics.
type HistoryService interface {
	RoomHistory(ctx context.Context, room string, limit int) ([]domain.Message, error)
	RoomStats(ctx context.Context, room string) (*domain.RoomStats, error)
}
