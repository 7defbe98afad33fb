package models

import (
	"time"

	"gorm.io/datatypes"
)

// SubscriptionPayment is one funded top-up. PaymentTransactionID is unique so replays are no-ops.
type SubscriptionPayment struct {
	ID                   uint           `gorm:"primaryKey" json:"id"`
	PatientID            uint           `gorm:"not null;index" json:"patient_id"`
	SubscriptionID       uint           `gorm:"not null;index" json:"subscription_id"`
	PaymentTransactionID string         `gorm:"size:128;uniqueIndex;not null" json:"payment_transaction_id"`
	Gateway              string         `gorm:"size:50" json:"gateway"`
	AmountCents          int64          `gorm:"not null;default:0" json:"amount_cents"`
	Currency             string         `gorm:"size:3" json:"currency"`
	TextSessions         int            `json:"text_sessions"`
	VoiceCalls           int            `json:"voice_calls"`
	VideoCalls           int            `json:"video_calls"`
	Payload              datatypes.JSON `json:"payload,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
}

func (SubscriptionPayment) TableName() string {
	return "subscription_payments"
}
