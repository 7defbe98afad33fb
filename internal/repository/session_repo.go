package repository

import (
	"errors"
	"time"

	"telehealth/internal/domain"
	"telehealth/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrStaleSession is returned when a compare-and-swap finds the session already moved on.
var ErrStaleSession = errors.New("session status changed concurrently")

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(s *models.Session) error {
	return r.db.Omit(clause.Associations).Create(s).Error
}

func (r *SessionRepository) GetByID(id uint) (*models.Session, error) {
	var s models.Session
	err := r.db.First(&s, id).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetWithParticipants preloads patient and doctor for API responses.
func (r *SessionRepository) GetWithParticipants(id uint) (*models.Session, error) {
	var s models.Session
	err := r.db.Preload("Patient").Preload("Doctor").First(&s, id).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) GetByIDForUpdate(id uint) (*models.Session, error) {
	var s models.Session
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, id).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CountBusyForDoctor counts waiting/active sessions held by the doctor, ignoring excludeID.
func (r *SessionRepository) CountBusyForDoctor(doctorID, excludeID uint) (int64, error) {
	var c int64
	err := r.db.Model(&models.Session{}).
		Where("doctor_id = ? AND status IN ? AND id <> ?", doctorID, domain.BusyStatuses, excludeID).
		Count(&c).Error
	return c, err
}

func (r *SessionRepository) CountBusyForPatient(patientID, excludeID uint) (int64, error) {
	var c int64
	err := r.db.Model(&models.Session{}).
		Where("patient_id = ? AND status IN ? AND id <> ?", patientID, domain.BusyStatuses, excludeID).
		Count(&c).Error
	return c, err
}

// UpdateStatusIfCurrent moves the session to `to` only while it is still in `from`.
// Returns ErrStaleSession when no row matched.
func (r *SessionRepository) UpdateStatusIfCurrent(id uint, from, to domain.SessionStatus, fields map[string]interface{}) error {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.Model(&models.Session{}).Where("id = ? AND status = ?", id, from).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrStaleSession
	}
	return nil
}

// RecordAutoDeduction adds units to both counters, guarded on the processed count the caller read.
func (r *SessionRepository) RecordAutoDeduction(id uint, expectedProcessed, units int) error {
	res := r.db.Model(&models.Session{}).
		Where("id = ? AND status = ? AND auto_deductions_processed = ?", id, domain.SessionActive, expectedProcessed).
		Updates(map[string]interface{}{
			"auto_deductions_processed": gorm.Expr("auto_deductions_processed + ?", units),
			"sessions_used":             gorm.Expr("sessions_used + ?", units),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrStaleSession
	}
	return nil
}

func (r *SessionRepository) TouchActivity(id uint, at time.Time) error {
	res := r.db.Model(&models.Session{}).
		Where("id = ? AND status = ?", id, domain.SessionActive).
		Update("last_activity_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrStaleSession
	}
	return nil
}

// ListForUser returns sessions where the user is patient or doctor, newest first.
func (r *SessionRepository) ListForUser(userID uint, status string, limit, offset int) ([]models.Session, int64, error) {
	q := r.db.Model(&models.Session{}).Where("patient_id = ? OR doctor_id = ?", userID, userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Session
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, total, err
}

// Scheduler queries return ids only; each row is re-read under lock in its own transaction.
// They page by id (afterID is the last id of the previous page) so rows that stay in the
// result set, such as charged active sessions, cannot starve the rows behind them.

func (r *SessionRepository) ListExpiredWaitingIDs(now time.Time, afterID uint, limit int) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.Session{}).
		Where("status = ? AND doctor_response_deadline IS NOT NULL AND doctor_response_deadline < ?", domain.SessionWaitingForDoctor, now).
		Where("id > ?", afterID).
		Order("id ASC").Limit(limit).Pluck("id", &ids).Error
	return ids, err
}

func (r *SessionRepository) ListDueScheduledIDs(now time.Time, afterID uint, limit int) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.Session{}).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", domain.SessionScheduled, now).
		Where("id > ?", afterID).
		Order("id ASC").Limit(limit).Pluck("id", &ids).Error
	return ids, err
}

func (r *SessionRepository) ListActiveIDs(afterID uint, limit int) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.Session{}).
		Where("status = ? AND id > ?", domain.SessionActive, afterID).
		Order("id ASC").Limit(limit).Pluck("id", &ids).Error
	return ids, err
}

func (r *SessionRepository) ListInactiveIDs(cutoff time.Time, afterID uint, limit int) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.Session{}).
		Where("status = ? AND last_activity_at IS NOT NULL AND last_activity_at < ?", domain.SessionActive, cutoff).
		Where("id > ?", afterID).
		Order("id ASC").Limit(limit).Pluck("id", &ids).Error
	return ids, err
}
