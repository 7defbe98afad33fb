// Package testutil builds an in-memory database and fixtures for package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"telehealth/internal/database"
	"telehealth/internal/domain"
	"telehealth/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Epoch is the default start of the manual clock in tests.
var Epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// NewDB opens a private in-memory SQLite database with the full schema.
// A single connection keeps the database alive and serialises transactions.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func CreateDoctor(t testing.TB, db *gorm.DB, country string, online bool) *models.User {
	t.Helper()
	u := &models.User{
		Email:     uniqueEmail(db, "doctor"),
		FirstName: "Doc",
		LastName:  "Tor",
		Role:      domain.RoleDoctor,
		Country:   country,
		IsActive:  true,
		IsOnline:  online,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create doctor: %v", err)
	}
	return u
}

func CreatePatient(t testing.TB, db *gorm.DB) *models.User {
	t.Helper()
	u := &models.User{
		Email:     uniqueEmail(db, "patient"),
		FirstName: "Pat",
		Role:      domain.RolePatient,
		IsActive:  true,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create patient: %v", err)
	}
	return u
}

func CreateAdmin(t testing.TB, db *gorm.DB) *models.User {
	t.Helper()
	u := &models.User{Email: uniqueEmail(db, "admin"), Role: domain.RoleAdmin, IsActive: true}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create admin: %v", err)
	}
	return u
}

// CreateSubscription gives the patient an active subscription with the given counters.
func CreateSubscription(t testing.TB, db *gorm.DB, patientID uint, text, voice, video int) *models.Subscription {
	t.Helper()
	expires := Epoch.Add(30 * 24 * time.Hour)
	s := &models.Subscription{
		PatientID:             patientID,
		PlanName:              "test",
		TextSessionsRemaining: text,
		VoiceCallsRemaining:   voice,
		VideoCallsRemaining:   video,
		TotalTextSessions:     text,
		TotalVoiceCalls:       voice,
		TotalVideoCalls:       video,
		IsActive:              true,
		ExpiresAt:             &expires,
	}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	return s
}

// CreateWallet seeds a wallet whose balance came from earlier earnings.
func CreateWallet(t testing.TB, db *gorm.DB, doctorID uint, earned int64, currency string) *models.Wallet {
	t.Helper()
	w := &models.Wallet{DoctorID: doctorID, Balance: earned, TotalEarned: earned, Currency: currency}
	if err := db.Create(w).Error; err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	return w
}

func ReloadSubscription(t testing.TB, db *gorm.DB, patientID uint) *models.Subscription {
	t.Helper()
	var s models.Subscription
	if err := db.Where("patient_id = ?", patientID).First(&s).Error; err != nil {
		t.Fatalf("reload subscription: %v", err)
	}
	return &s
}

func ReloadSession(t testing.TB, db *gorm.DB, id uint) *models.Session {
	t.Helper()
	var s models.Session
	if err := db.First(&s, id).Error; err != nil {
		t.Fatalf("reload session: %v", err)
	}
	return &s
}

func ReloadWallet(t testing.TB, db *gorm.DB, doctorID uint) *models.Wallet {
	t.Helper()
	var w models.Wallet
	if err := db.Where("doctor_id = ?", doctorID).First(&w).Error; err != nil {
		t.Fatalf("reload wallet: %v", err)
	}
	return &w
}

func uniqueEmail(db *gorm.DB, prefix string) string {
	var n int64
	db.Model(&models.User{}).Unscoped().Count(&n)
	return fmt.Sprintf("%s-%d@example.com", prefix, n+1)
}
