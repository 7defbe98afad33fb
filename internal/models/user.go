package models

import (
	"time"

	"telehealth/internal/domain"

	"gorm.io/gorm"
)

// User carries only what the session engine reads. Profiles and credentials live with the auth service.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Email     string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	FirstName string         `gorm:"size:100" json:"first_name"`
	LastName  string         `gorm:"size:100" json:"last_name"`
	Role      string         `gorm:"size:20;not null;index" json:"role"` // PATIENT | DOCTOR | ADMIN
	Country   string         `gorm:"size:64" json:"country"`
	IsActive  bool           `gorm:"not null" json:"is_active"`
	IsOnline  bool           `gorm:"not null;default:false;index" json:"is_online"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsDoctor() bool  { return u.Role == domain.RoleDoctor }
func (u *User) IsPatient() bool { return u.Role == domain.RolePatient }

// AvailableForSessions reports whether a doctor can be offered new consultations.
func (u *User) AvailableForSessions() bool {
	return u.IsDoctor() && u.IsActive && u.IsOnline
}

func (u *User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	}
	return u.LastName
}
