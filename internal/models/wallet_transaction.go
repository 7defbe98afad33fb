package models

import (
	"time"

	"gorm.io/datatypes"
)

// WalletTransaction is an append-only ledger row. Corrections are new rows.
type WalletTransaction struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	DoctorID     uint           `gorm:"not null;index" json:"doctor_id"`
	Type         string         `gorm:"size:10;not null;index" json:"type"` // credit | debit
	Amount       int64          `gorm:"not null" json:"amount"`
	Currency     string         `gorm:"size:3" json:"currency"`
	Description  string         `gorm:"size:255" json:"description"`
	SessionType  string         `gorm:"size:10;index" json:"session_type,omitempty"`
	SessionID    *uint          `gorm:"index" json:"session_id,omitempty"`
	SessionTable string         `gorm:"size:32" json:"session_table,omitempty"`
	WithdrawalID *uint          `gorm:"index" json:"withdrawal_request_id,omitempty"`
	Status       string         `gorm:"size:20;not null" json:"status"`
	Metadata     datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}
