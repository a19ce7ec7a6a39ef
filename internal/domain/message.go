package domain

import "time"

// Message is the durable chat record. Once persisted it is never
// mutated; old rows are only removed by the retention sweep.
type Message struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Room      string    `gorm:"not null;index:idx_messages_room_created,priority:1" json:"room"`
	Author    string    `gorm:"not null" json:"author"`
	Body      string    `gorm:"column:message;not null" json:"message"`
	UserID    *string   `gorm:"size:36" json:"userId,omitempty"`
	SocketID  string    `gorm:"not null" json:"socketId"`
	CreatedAt time.Time `gorm:"index:idx_messages_room_created,priority:2" json:"createdAt"`
}

func (Message) TableName() string {
	return "messages"
}

// RoomStats is derived from the message log on demand, never stored.
type RoomStats struct {
	MessageCount     int64    `json:"messageCount"`
	ParticipantCount int      `json:"participantCount"`
	Participants     []string `json:"participants"`
}
