package models

import (
	"time"

	"telehealth/internal/domain"
)

// Subscription holds a patient's session quota. Remaining counters go negative on overrun.
type Subscription struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	PatientID             uint       `gorm:"uniqueIndex;not null" json:"patient_id"`
	PlanName              string     `gorm:"size:100" json:"plan_name"`
	TextSessionsRemaining int        `gorm:"not null;default:0" json:"text_sessions_remaining"`
	VoiceCallsRemaining   int        `gorm:"not null;default:0" json:"voice_calls_remaining"`
	VideoCallsRemaining   int        `gorm:"not null;default:0" json:"video_calls_remaining"`
	TotalTextSessions     int        `gorm:"not null;default:0" json:"total_text_sessions"`
	TotalVoiceCalls       int        `gorm:"not null;default:0" json:"total_voice_calls"`
	TotalVideoCalls       int        `gorm:"not null;default:0" json:"total_video_calls"`
	IsActive              bool       `gorm:"not null;index" json:"is_active"`
	StartsAt              *time.Time `json:"starts_at"`
	ExpiresAt             *time.Time `gorm:"index" json:"expires_at"`
	PaymentTransactionID  string     `gorm:"size:128" json:"payment_transaction_id"`
	PaymentGateway        string     `gorm:"size:50" json:"payment_gateway"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// Remaining returns the counter for media.
func (s *Subscription) Remaining(media domain.Media) int {
	switch media {
	case domain.MediaText:
		return s.TextSessionsRemaining
	case domain.MediaVoice:
		return s.VoiceCallsRemaining
	case domain.MediaVideo:
		return s.VideoCallsRemaining
	}
	return 0
}

// ExpiredAt reports whether the subscription has lapsed at t.
func (s *Subscription) ExpiredAt(t time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(t)
}

// UsableAt is an active, unexpired subscription.
func (s *Subscription) UsableAt(t time.Time) bool {
	return s.IsActive && !s.ExpiredAt(t)
}

// RemainingColumn and TotalColumn name the counter columns for media.
func RemainingColumn(media domain.Media) string {
	switch media {
	case domain.MediaText:
		return "text_sessions_remaining"
	case domain.MediaVoice:
		return "voice_calls_remaining"
	case domain.MediaVideo:
		return "video_calls_remaining"
	}
	return ""
}

func TotalColumn(media domain.Media) string {
	switch media {
	case domain.MediaText:
		return "total_text_sessions"
	case domain.MediaVoice:
		return "total_voice_calls"
	case domain.MediaVideo:
		return "total_video_calls"
	}
	return ""
}
