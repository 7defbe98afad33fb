package models

import (
	"time"

	"telehealth/internal/domain"
)

// Session is one consultation, text or call. SessionsRemainingBeforeStart is written once at creation.
type Session struct {
	ID                           uint                 `gorm:"primaryKey" json:"id"`
	PatientID                    uint                 `gorm:"not null;index:idx_sessions_patient_status" json:"patient_id"`
	DoctorID                     *uint                `gorm:"index:idx_sessions_doctor_status" json:"doctor_id"`
	AppointmentID                *uint                `gorm:"index" json:"appointment_id,omitempty"`
	Media                        domain.Media         `gorm:"size:10;not null" json:"session_type"`
	Status                       domain.SessionStatus `gorm:"size:24;not null;index;index:idx_sessions_patient_status;index:idx_sessions_doctor_status" json:"status"`
	ScheduledAt                  *time.Time           `gorm:"index" json:"scheduled_at,omitempty"`
	DoctorResponseDeadline       *time.Time           `gorm:"index" json:"doctor_response_deadline,omitempty"`
	AcceptedAt                   *time.Time           `json:"accepted_at,omitempty"`
	StartedAt                    *time.Time           `json:"started_at,omitempty"`
	LastActivityAt               *time.Time           `json:"last_activity_at,omitempty"`
	EndedAt                      *time.Time           `json:"ended_at,omitempty"`
	EndReason                    domain.EndReason     `gorm:"size:32" json:"end_reason,omitempty"`
	SessionsRemainingBeforeStart int                  `gorm:"not null;default:0" json:"sessions_remaining_before_start"`
	SessionsUsed                 int                  `gorm:"not null;default:0" json:"sessions_used"`
	AutoDeductionsProcessed      int                  `gorm:"not null;default:0" json:"auto_deductions_processed"`
	TextEnabled                  bool                 `gorm:"not null;default:false" json:"text_enabled"`
	CallEnabled                  bool                 `gorm:"not null;default:false" json:"call_enabled"`
	CreatedAt                    time.Time            `json:"created_at"`
	UpdatedAt                    time.Time            `json:"updated_at"`

	Patient *User `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
	Doctor  *User `gorm:"foreignKey:DoctorID" json:"doctor,omitempty"`
}

func (Session) TableName() string {
	return "consultation_sessions"
}

// HasParticipant reports whether userID is the patient or the doctor of the session.
func (s *Session) HasParticipant(userID uint) bool {
	return s.PatientID == userID || (s.DoctorID != nil && *s.DoctorID == userID)
}

func (s *Session) IsDoctor(userID uint) bool {
	return s.DoctorID != nil && *s.DoctorID == userID
}

func (s *Session) DoctorIDValue() uint {
	if s.DoctorID == nil {
		return 0
	}
	return *s.DoctorID
}
