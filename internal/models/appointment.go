package models

import (
	"time"

	"telehealth/internal/domain"

	"gorm.io/gorm"
)

// Appointment is a booked calendar slot; the scheduler opens a Session for it when it comes due.
type Appointment struct {
	ID          uint                     `gorm:"primaryKey" json:"id"`
	PatientID   uint                     `gorm:"not null;index" json:"patient_id"`
	DoctorID    uint                     `gorm:"not null;index" json:"doctor_id"`
	Media       domain.Media             `gorm:"size:10;not null" json:"session_type"`
	ScheduledAt time.Time                `gorm:"not null;index" json:"scheduled_at"`
	Status      domain.AppointmentStatus `gorm:"size:20;not null;index" json:"status"`
	SessionID   *uint                    `gorm:"index" json:"session_id,omitempty"`
	Reason      string                   `gorm:"size:255" json:"reason"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
	DeletedAt   gorm.DeletedAt           `gorm:"index" json:"-"`
}

func (Appointment) TableName() string {
	return "appointments"
}
