package repository

import (
	"time"

	"telehealth/internal/domain"
	"telehealth/internal/models"

	"gorm.io/gorm"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(m *models.SessionMessage) error {
	return r.db.Create(m).Error
}

// DeleteOldForClosedSessions removes messages older than cutoff whose session has finished.
func (r *MessageRepository) DeleteOldForClosedSessions(cutoff time.Time) (int64, error) {
	closed := r.db.Model(&models.Session{}).Select("id").
		Where("status IN ?", []domain.SessionStatus{domain.SessionEnded, domain.SessionExpired, domain.SessionCancelled})
	res := r.db.Where("created_at < ? AND session_id IN (?)", cutoff, closed).Delete(&models.SessionMessage{})
	return res.RowsAffected, res.Error
}
