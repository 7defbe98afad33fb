package repository

import (
	"telehealth/internal/domain"
	"telehealth/internal/models"

	"gorm.io/gorm"
)

// WithdrawalStats is the admin overview of the payout queue, amounts in minor units.
type WithdrawalStats struct {
	TotalRequests  int64 `json:"total_requests"`
	PendingCount   int64 `json:"pending_count"`
	ApprovedCount  int64 `json:"approved_count"`
	PaidCount      int64 `json:"paid_count"`
	RejectedCount  int64 `json:"rejected_count"`
	PendingAmount  int64 `json:"pending_amount"`
	ApprovedAmount int64 `json:"approved_amount"`
	PaidAmount     int64 `json:"paid_amount"`
}

type AdminRepository struct {
	db *gorm.DB
}

func NewAdminRepository(db *gorm.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

// ListWithdrawals returns withdrawal requests with optional status filter.
func (r *AdminRepository) ListWithdrawals(status string, page, limit int) ([]models.WithdrawalRequest, int64, error) {
	q := r.db.Model(&models.WithdrawalRequest{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.WithdrawalRequest
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

func (r *AdminRepository) WithdrawalStatistics() (*WithdrawalStats, error) {
	var rows []struct {
		Status string
		Count  int64
		Total  int64
	}
	err := r.db.Model(&models.WithdrawalRequest{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	var s WithdrawalStats
	for _, row := range rows {
		s.TotalRequests += row.Count
		switch domain.WithdrawalStatus(row.Status) {
		case domain.WithdrawalPending:
			s.PendingCount, s.PendingAmount = row.Count, row.Total
		case domain.WithdrawalApproved:
			s.ApprovedCount, s.ApprovedAmount = row.Count, row.Total
		case domain.WithdrawalPaid:
			s.PaidCount, s.PaidAmount = row.Count, row.Total
		case domain.WithdrawalRejected:
			s.RejectedCount = row.Count
		}
	}
	return &s, nil
}
