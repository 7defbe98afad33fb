package repository

import (
	"fmt"
	"time"

	"telehealth/internal/domain"
	"telehealth/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(s *models.Subscription) error {
	return r.db.Create(s).Error
}

func (r *SubscriptionRepository) Save(s *models.Subscription) error {
	return r.db.Save(s).Error
}

func (r *SubscriptionRepository) GetByPatientID(patientID uint) (*models.Subscription, error) {
	var s models.Subscription
	err := r.db.Where("patient_id = ?", patientID).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByPatientIDForUpdate locks the subscription row; every quota debit goes through it.
func (r *SubscriptionRepository) GetByPatientIDForUpdate(patientID uint) (*models.Subscription, error) {
	var s models.Subscription
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("patient_id = ?", patientID).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// AdjustRemaining adds delta (negative for a debit) to the media counter in one statement.
func (r *SubscriptionRepository) AdjustRemaining(id uint, media domain.Media, delta int) error {
	col := models.RemainingColumn(media)
	if col == "" {
		return fmt.Errorf("unknown session type %q", media)
	}
	return r.db.Model(&models.Subscription{}).Where("id = ?", id).
		Update(col, gorm.Expr(col+" + ?", delta)).Error
}

// AddQuota raises both the total ceiling and the remaining counter.
func (r *SubscriptionRepository) AddQuota(id uint, media domain.Media, units int) error {
	rem, total := models.RemainingColumn(media), models.TotalColumn(media)
	if rem == "" {
		return fmt.Errorf("unknown session type %q", media)
	}
	return r.db.Model(&models.Subscription{}).Where("id = ?", id).Updates(map[string]interface{}{
		rem:   gorm.Expr(rem+" + ?", units),
		total: gorm.Expr(total+" + ?", units),
	}).Error
}

// ListExpiredActiveIDs returns active subscriptions whose expiry has passed.
func (r *SubscriptionRepository) ListExpiredActiveIDs(now time.Time, afterID uint, limit int) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.Subscription{}).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at <= ? AND id > ?", true, now, afterID).
		Order("id ASC").Limit(limit).Pluck("id", &ids).Error
	return ids, err
}

// DeactivateIfExpired flips is_active only if the row is still active and expired.
func (r *SubscriptionRepository) DeactivateIfExpired(id uint, now time.Time) (bool, error) {
	res := r.db.Model(&models.Subscription{}).
		Where("id = ? AND is_active = ? AND expires_at IS NOT NULL AND expires_at <= ?", id, true, now).
		Update("is_active", false)
	return res.RowsAffected == 1, res.Error
}

func (r *SubscriptionRepository) CreatePayment(p *models.SubscriptionPayment) error {
	return r.db.Create(p).Error
}

func (r *SubscriptionRepository) GetPaymentByTransactionID(txnID string) (*models.SubscriptionPayment, error) {
	var p models.SubscriptionPayment
	err := r.db.Where("payment_transaction_id = ?", txnID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}
