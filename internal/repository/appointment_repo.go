package repository

import (
	"time"

	"telehealth/internal/domain"
	"telehealth/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AppointmentRepository struct {
	db *gorm.DB
}

func NewAppointmentRepository(db *gorm.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

func (r *AppointmentRepository) Create(a *models.Appointment) error {
	return r.db.Create(a).Error
}

func (r *AppointmentRepository) GetByID(id uint) (*models.Appointment, error) {
	var a models.Appointment
	err := r.db.First(&a, id).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AppointmentRepository) GetByIDForUpdate(id uint) (*models.Appointment, error) {
	var a models.Appointment
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&a, id).Error
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AppointmentRepository) Save(a *models.Appointment) error {
	return r.db.Save(a).Error
}

// CountDoctorConflicts counts confirmed appointments of the doctor in [from, to).
func (r *AppointmentRepository) CountDoctorConflicts(doctorID uint, from, to time.Time) (int64, error) {
	var c int64
	err := r.db.Model(&models.Appointment{}).
		Where("doctor_id = ? AND status = ? AND scheduled_at >= ? AND scheduled_at < ?", doctorID, domain.AppointmentConfirmed, from, to).
		Count(&c).Error
	return c, err
}

func (r *AppointmentRepository) ListDueConfirmedIDs(now time.Time, afterID uint, limit int) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.Appointment{}).
		Where("status = ? AND scheduled_at <= ? AND id > ?", domain.AppointmentConfirmed, now, afterID).
		Order("id ASC").Limit(limit).Pluck("id", &ids).Error
	return ids, err
}

func (r *AppointmentRepository) ListInProgressIDs(afterID uint, limit int) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.Appointment{}).
		Where("status = ? AND id > ?", domain.AppointmentInProgress, afterID).
		Order("id ASC").Limit(limit).Pluck("id", &ids).Error
	return ids, err
}

// ListForUser returns appointments where the user is patient or doctor, soonest first.
func (r *AppointmentRepository) ListForUser(userID uint, status string, limit, offset int) ([]models.Appointment, int64, error) {
	q := r.db.Model(&models.Appointment{}).Where("patient_id = ? OR doctor_id = ?", userID, userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Appointment
	err := q.Order("scheduled_at ASC").Order("id ASC").Limit(limit).Offset(offset).Find(&list).Error
	return list, total, err
}
