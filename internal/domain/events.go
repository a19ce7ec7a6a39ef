package domain

import "time"

// WebSocket event types from client.
const (
	EventJoinRoom    = "join_room"
	EventSendMessage = "send_message"
	EventTyping      = "typing"
	EventStopTyping  = "stop_typing"
	EventLeaveRoom   = "leave_room"
)

// WebSocket event types to client.
const (
	EventRoomHistory    = "room_history"
	EventRoomStats      = "room_stats"
	EventReceiveMessage = "receive_message"
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
	EventUserTyping     = "user_typing"
	EventUserStopTyping = "user_stop_typing"
	EventError          = "error"
)

// Error codes carried on error events.
const (
	ErrCodeValidation  = "VALIDATION"
	ErrCodePersistence = "PERSISTENCE"
	ErrCodeNotInRoom   = "NOT_IN_ROOM"
	ErrCodeBadRequest  = "BAD_REQUEST"
)

// BaseEvent is the envelope every inbound event is first decoded into.
type BaseEvent struct {
	Type string `json:"type"`
}

// Client -> Server events

type JoinRoomEvent struct {
	Type     string `json:"type"`
	Room     string `json:"room"`
	Username string `json:"username"`
}

type SendMessageEvent struct {
	Type    string `json:"type"`
	Room    string `json:"room"`
	Author  string `json:"author"`
	Message string `json:"message"`
	Time    string `json:"time,omitempty"`
}

type TypingEvent struct {
	Type     string `json:"type"`
	Room     string `json:"room"`
	Username string `json:"username"`
}

type LeaveRoomEvent struct {
	Type     string `json:"type"`
	Room     string `json:"room"`
	Username string `json:"username"`
}

// Server -> Client events

type RoomHistoryEvent struct {
	Type     string    `json:"type"`
	Messages []Message `json:"messages"`
}

type RoomStatsEvent struct {
	Type             string   `json:"type"`
	MessageCount     int64    `json:"messageCount"`
	ParticipantCount int      `json:"participantCount"`
	Participants     []string `json:"participants"`
}

type ReceiveMessageEvent struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	Author    string    `json:"author"`
	Message   string    `json:"message"`
	Time      string    `json:"time"`
	SocketID  string    `json:"socketId"`
	CreatedAt time.Time `json:"createdAt"`
}

// PresenceEvent carries user_joined and user_left notifications.
type PresenceEvent struct {
	Type      string    `json:"type"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// TypingNotice carries user_typing and user_stop_typing notifications.
type TypingNotice struct {
	Type     string `json:"type"`
	Username string `json:"username"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorEvent(code, message string) *ErrorEvent {
	return &ErrorEvent{
		Type:    EventError,
		Code:    code,
		Message: message,
	}
}

func NewRoomStatsEvent(stats *RoomStats) *RoomStatsEvent {
	return &RoomStatsEvent{
		Type:             EventRoomStats,
		MessageCount:     stats.MessageCount,
		ParticipantCount: stats.ParticipantCount,
		Participants:     stats.Participants,
	}
}
