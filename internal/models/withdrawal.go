package models

import (
	"time"

	"telehealth/internal/domain"
)

type WithdrawalRequest struct {
	ID              uint                    `gorm:"primaryKey" json:"id"`
	DoctorID        uint                    `gorm:"not null;index" json:"doctor_id"`
	Amount          int64                   `gorm:"not null" json:"amount"`
	Currency        string                  `gorm:"size:3" json:"currency"`
	Status          domain.WithdrawalStatus `gorm:"size:20;not null;index" json:"status"`
	PaymentMethod   string                  `gorm:"size:20;not null" json:"payment_method"`
	BankName        string                  `gorm:"size:100" json:"bank_name,omitempty"`
	AccountNumber   string                  `gorm:"size:64" json:"account_number,omitempty"`
	AccountName     string                  `gorm:"size:100" json:"account_name,omitempty"`
	MobileProvider  string                  `gorm:"size:50" json:"mobile_provider,omitempty"`
	MobileNumber    string                  `gorm:"size:20" json:"mobile_number,omitempty"`
	Reference       string                  `gorm:"size:64;uniqueIndex" json:"reference"`
	ApprovedBy      *uint                   `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time              `json:"approved_at,omitempty"`
	PaidBy          *uint                   `json:"paid_by,omitempty"`
	PaidAt          *time.Time              `json:"paid_at,omitempty"`
	PaymentRef      string                  `gorm:"size:128" json:"payment_reference,omitempty"`
	RejectedBy      *uint                   `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time              `json:"rejected_at,omitempty"`
	RejectionReason string                  `gorm:"size:255" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

func (WithdrawalRequest) TableName() string {
	return "withdrawal_requests"
}
