package repository

import (
	"errors"
	"time"

	"telehealth/internal/domain"
	"telehealth/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInsufficientBalance = errors.New("insufficient wallet balance")

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) GetByDoctorID(doctorID uint) (*models.Wallet, error) {
	var w models.Wallet
	err := r.db.Where("doctor_id = ?", doctorID).First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *WalletRepository) GetByDoctorIDForUpdate(doctorID uint) (*models.Wallet, error) {
	var w models.Wallet
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("doctor_id = ?", doctorID).First(&w).Error
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetOrCreateForUpdate returns the doctor's wallet locked, creating an empty one first if needed.
func (r *WalletRepository) GetOrCreateForUpdate(doctorID uint, currency string) (*models.Wallet, error) {
	w, err := r.GetByDoctorIDForUpdate(doctorID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	w = &models.Wallet{DoctorID: doctorID, Currency: currency}
	if err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(w).Error; err != nil {
		return nil, err
	}
	return r.GetByDoctorIDForUpdate(doctorID)
}

// Credit adds earnings to a wallet the caller has locked.
func (r *WalletRepository) Credit(w *models.Wallet, amount int64) error {
	w.TotalEarned += amount
	w.Balance += amount
	return r.save(w)
}

// Debit moves amount into total_withdrawn. The wallet must be locked by the caller.
func (r *WalletRepository) Debit(w *models.Wallet, amount int64) error {
	if w.Balance < amount {
		return ErrInsufficientBalance
	}
	w.TotalWithdrawn += amount
	w.Balance -= amount
	return r.save(w)
}

// Reverse undoes an earlier Debit.
func (r *WalletRepository) Reverse(w *models.Wallet, amount int64) error {
	w.TotalWithdrawn -= amount
	w.Balance += amount
	return r.save(w)
}

func (r *WalletRepository) save(w *models.Wallet) error {
	if err := w.CheckBalance(); err != nil {
		return err
	}
	return r.db.Model(w).Updates(map[string]interface{}{
		"balance":         w.Balance,
		"total_earned":    w.TotalEarned,
		"total_withdrawn": w.TotalWithdrawn,
	}).Error
}

func (r *WalletRepository) CreateTransaction(t *models.WalletTransaction) error {
	return r.db.Create(t).Error
}

func (r *WalletRepository) ListTransactions(doctorID uint, txType string, page, limit int) ([]models.WalletTransaction, int64, error) {
	q := r.db.Model(&models.WalletTransaction{}).Where("doctor_id = ?", doctorID)
	if txType != "" {
		q = q.Where("type = ?", txType)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.WalletTransaction
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

type EarningsByType struct {
	SessionType string `json:"session_type"`
	Count       int64  `json:"count"`
	Total       int64  `json:"total"`
}

// EarningsByType groups completed session credits by session type.
func (r *WalletRepository) EarningsByType(doctorID uint) ([]EarningsByType, error) {
	var rows []EarningsByType
	err := r.db.Model(&models.WalletTransaction{}).
		Select("session_type, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Where("doctor_id = ? AND type = ? AND session_id IS NOT NULL", doctorID, domain.TxnTypeCredit).
		Group("session_type").
		Order("session_type ASC").
		Scan(&rows).Error
	return rows, err
}

// SumCreditsSince totals session earnings credited at or after since.
func (r *WalletRepository) SumCreditsSince(doctorID uint, since time.Time) (int64, error) {
	var total int64
	err := r.db.Model(&models.WalletTransaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("doctor_id = ? AND type = ? AND session_id IS NOT NULL AND created_at >= ?", doctorID, domain.TxnTypeCredit, since).
		Scan(&total).Error
	return total, err
}
