package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/calderhq/parley/internal/audit"
	"github.com/calderhq/parley/internal/domain"
	"github.com/calderhq/parley/internal/hub"
	"github.com/calderhq/parley/internal/presence"
	"github.com/calderhq/parley/internal/repository"
	"github.com/calderhq/parley/pkg/log"
)

// AnonymousName is used when a client joins or sends without a name.
const AnonymousName = "Anonymous"

type chatService struct {
	hub          *hub.Hub
	tracker      *presence.Tracker
	history      HistoryService
	repo         repository.MessageRepository
	historyLimit int

	// One mutex per room held across persist + broadcast enqueue so
	// commit order equals delivery order within a room. Membership
	// locks are never held across store I/O.
	sendLocks sync.Map // room -> *sync.Mutex
}

func NewChatService(
	h *hub.Hub,
	tracker *presence.Tracker,
	history HistoryService,
	repo repository.MessageRepository,
	historyLimit int,
) ChatService {
	return &chatService{
		hub:          h,
		tracker:      tracker,
		history:      history,
		repo:         repo,
		historyLimit: historyLimit,
	}
}

func (s *chatService) HandleJoin(ctx context.Context, c *hub.Client, room, username string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return c.SendMessage(domain.NewErrorEvent(domain.ErrCodeValidation, "room is required"))
	}

	name := strings.TrimSpace(username)
	if name == "" {
		name = AnonymousName
	}

	// A session belongs to at most one room; switching rooms is an
	// implicit leave of the previous one.
	if prev := c.Session.Room(); prev != "" && prev != room {
		s.leaveCurrentRoom(ctx, c)
	}

	s.hub.JoinRoom(c, room)
	c.Session.JoinRoom(room, name)

	// History and stats go to the joiner only. A store failure
	// degrades the join instead of failing it.
	history, err := s.history.RoomHistory(ctx, room, s.historyLimit)
	if err != nil {
		logger := log.Ctx(ctx)
		logger.Warn().Err(err).Str(log.FieldRoom, room).Msg("degraded join: history unavailable")
		history = []domain.Message{}
	}
	if history == nil {
		history = []domain.Message{}
	}

	stats, err := s.history.RoomStats(ctx, room)
	if err != nil {
		logger := log.Ctx(ctx)
		logger.Warn().Err(err).Str(log.FieldRoom, room).Msg("degraded join: stats unavailable")
		stats = &domain.RoomStats{Participants: []string{}}
	}

	c.SendMessage(&domain.RoomHistoryEvent{
		Type:     domain.EventRoomHistory,
		Messages: history,
	})
	c.SendMessage(domain.NewRoomStatsEvent(stats))

	s.hub.BroadcastToRoom(room, &domain.PresenceEvent{
		Type:      domain.EventUserJoined,
		Username:  name,
		Timestamp: time.Now().UTC(),
	}, c.ID)

	audit.LogWithDetail(ctx, audit.ActionJoinRoom, c.ID, room, name)
	return nil
}

func (s *chatService) HandleSend(ctx context.Context, c *hub.Client, author, body, clientTime string) error {
	room := c.Session.Room()
	if room == "" {
		return c.SendMessage(domain.NewErrorEvent(domain.ErrCodeNotInRoom, "not in a room"))
	}

	if strings.TrimSpace(body) == "" {
		return c.SendMessage(domain.NewErrorEvent(domain.ErrCodeValidation, "message is required"))
	}

	name := strings.TrimSpace(author)
	if name == "" {
		if name = c.Session.Name(); name == "" {
			name = AnonymousName
		}
	}

	msg := &domain.Message{
		Room:     room,
		Author:   name,
		Body:     body,
		SocketID: c.ID,
	}
	if id := c.Session.Identity(); id != nil {
		userID := id.UserID
		msg.UserID = &userID
	}

	// Persist, then enqueue the broadcast before releasing the room's
	// send lock: the hub delivers in enqueue order, so per-room
	// delivery order matches commit order. The member snapshot is
	// taken by the hub after the commit succeeded.
	lock := s.sendLock(room)
	lock.Lock()
	if err := s.repo.Append(ctx, msg); err != nil {
		lock.Unlock()
		logger := log.Ctx(ctx)
		logger.Error().Err(err).Str(log.FieldRoom, room).Msg("failed to persist message")
		return c.SendMessage(domain.NewErrorEvent(domain.ErrCodePersistence, "failed to send message"))
	}

	displayTime := clientTime
	if displayTime == "" {
		displayTime = msg.CreatedAt.Format(time.RFC3339)
	}

	s.hub.BroadcastToRoom(room, &domain.ReceiveMessageEvent{
		Type:      domain.EventReceiveMessage,
		ID:        msg.ID,
		Room:      room,
		Author:    name,
		Message:   body,
		Time:      displayTime,
		SocketID:  c.ID,
		CreatedAt: msg.CreatedAt,
	}, "")
	lock.Unlock()

	audit.LogWithDetail(ctx, audit.ActionSendMessage, c.ID, room, msg.ID)
	return nil
}

func (s *chatService) HandleTyping(ctx context.Context, c *hub.Client, username string) error {
	room := c.Session.Room()
	if room == "" {
		return nil
	}

	name := s.typingName(c, username)
	s.tracker.SetTyping(room, name, c.ID)

	return s.hub.BroadcastToRoom(room, &domain.TypingNotice{
		Type:     domain.EventUserTyping,
		Username: name,
	}, c.ID)
}

func (s *chatService) HandleStopTyping(ctx context.Context, c *hub.Client, username string) error {
	room := c.Session.Room()
	if room == "" {
		return nil
	}

	name := s.typingName(c, username)
	s.tracker.ClearTyping(room, name)

	return s.hub.BroadcastToRoom(room, &domain.TypingNotice{
		Type:     domain.EventUserStopTyping,
		Username: name,
	}, c.ID)
}

// NotifyTypingExpired is wired as the presence tracker's expiry
// callback: a typing entry that was never cleared (ungraceful
// disconnect, lost stop_typing) is announced as stopped.
func (s *chatService) NotifyTypingExpired(room, name, clientID string) {
	s.hub.BroadcastToRoom(room, &domain.TypingNotice{
		Type:     domain.EventUserStopTyping,
		Username: name,
	}, clientID)
}

func (s *chatService) HandleLeave(ctx context.Context, c *hub.Client) error {
	if !c.Session.IsInRoom() {
		return nil
	}
	s.leaveCurrentRoom(ctx, c)
	return nil
}

func (s *chatService) HandleDisconnect(ctx context.Context, c *hub.Client) error {
	if c.Session.IsInRoom() {
		s.leaveCurrentRoom(ctx, c)
	}
	audit.Log(ctx, audit.ActionDisconnect, c.ID, "")
	return nil
}

func (s *chatService) leaveCurrentRoom(ctx context.Context, c *hub.Client) {
	room, name := c.Session.LeaveRoom()
	if room == "" {
		return
	}

	s.hub.LeaveRoom(c, room)
	s.tracker.ClearTyping(room, name)

	s.hub.BroadcastToRoom(room, &domain.PresenceEvent{
		Type:      domain.EventUserLeft,
		Username:  name,
		Timestamp: time.Now().UTC(),
	}, c.ID)

	audit.LogWithDetail(ctx, audit.ActionLeaveRoom, c.ID, room, name)
}

func (s *chatService) typingName(c *hub.Client, username string) string {
	name := strings.TrimSpace(username)
	if name == "" {
		if name = c.Session.Name(); name == "" {
			name = AnonymousName
		}
	}
	return name
}

func (s *chatService) sendLock(room string) *sync.Mutex {
	if l, ok := s.sendLocks.Load(room); ok {
		return l.(*sync.Mutex)
	}
	l, _ := s.sendLocks.LoadOrStore(room, &sync.Mutex{})
	return l.(*sync.Mutex)
}
