package models

import (
	"fmt"
	"time"
)

// Wallet is a doctor's earnings account. Balance always equals TotalEarned - TotalWithdrawn.
type Wallet struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	DoctorID       uint      `gorm:"uniqueIndex;not null" json:"doctor_id"`
	Balance        int64     `gorm:"not null;default:0" json:"balance"`
	TotalEarned    int64     `gorm:"not null;default:0" json:"total_earned"`
	TotalWithdrawn int64     `gorm:"not null;default:0" json:"total_withdrawn"`
	Currency       string    `gorm:"size:3;default:'USD'" json:"currency"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Wallet) TableName() string {
	return "doctor_wallets"
}

func (w *Wallet) CheckBalance() error {
	if w.Balance != w.TotalEarned-w.TotalWithdrawn {
		return fmt.Errorf("wallet %d out of balance: balance=%d earned=%d withdrawn=%d",
			w.ID, w.Balance, w.TotalEarned, w.TotalWithdrawn)
	}
	return nil
}
