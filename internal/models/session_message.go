package models

import "time"

// SessionMessage is written by the chat layer. The engine only deletes old rows.
type SessionMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID uint      `gorm:"not null;index" json:"session_id"`
	SenderID  uint      `gorm:"not null;index" json:"sender_id"`
	Body      string    `gorm:"type:text" json:"body"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (SessionMessage) TableName() string {
	return "session_messages"
}
