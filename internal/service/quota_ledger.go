package service

import (
	"context"
	"errors"
	"fmt"

	"telehealth/internal/clock"
	"telehealth/internal/domain"
	"telehealth/internal/models"
	"telehealth/internal/repository"

	"gorm.io/gorm"
)

// QuotaLedger owns the patient subscription counters. Debits never check the balance;
// overruns leave the counter negative.
type QuotaLedger struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewQuotaLedger(db *gorm.DB, clk clock.Clock) *QuotaLedger {
	return &QuotaLedger{db: db, clock: clk}
}

// Debit takes units from the patient's media counter inside tx. The subscription row is
// locked, so concurrent debits for one patient are applied one at a time.
func (q *QuotaLedger) Debit(tx *gorm.DB, patientID uint, media domain.Media, units int) (*models.Subscription, error) {
	repo := repository.NewSubscriptionRepository(tx)
	sub, err := repo.GetByPatientIDForUpdate(patientID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveSubscription
	}
	if err != nil {
		return nil, fmt.Errorf("lock subscription: %w", err)
	}
	if !sub.UsableAt(q.clock.Now()) {
		return sub, ErrSubscriptionInactive
	}
	if units <= 0 {
		return sub, nil
	}
	if err := repo.AdjustRemaining(sub.ID, media, -units); err != nil {
		return nil, fmt.Errorf("debit subscription: %w", err)
	}
	applyDelta(sub, media, -units)
	return sub, nil
}

// Credit adds funded units to the counter and its ceiling.
func (q *QuotaLedger) Credit(tx *gorm.DB, sub *models.Subscription, media domain.Media, units int) error {
	if units <= 0 {
		return nil
	}
	if err := repository.NewSubscriptionRepository(tx).AddQuota(sub.ID, media, units); err != nil {
		return fmt.Errorf("credit subscription: %w", err)
	}
	applyDelta(sub, media, units)
	switch media {
	case domain.MediaText:
		sub.TotalTextSessions += units
	case domain.MediaVoice:
		sub.TotalVoiceCalls += units
	case domain.MediaVideo:
		sub.TotalVideoCalls += units
	}
	return nil
}

// Remaining reads the counter without locking. Returns ErrNoActiveSubscription when the
// patient has no usable subscription.
func (q *QuotaLedger) Remaining(ctx context.Context, patientID uint, media domain.Media) (int, error) {
	sub, err := repository.NewSubscriptionRepository(q.db.WithContext(ctx)).GetByPatientID(patientID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNoActiveSubscription
	}
	if err != nil {
		return 0, err
	}
	if !sub.UsableAt(q.clock.Now()) {
		return sub.Remaining(media), ErrSubscriptionInactive
	}
	return sub.Remaining(media), nil
}

func applyDelta(sub *models.Subscription, media domain.Media, delta int) {
	switch media {
	case domain.MediaText:
		sub.TextSessionsRemaining += delta
	case domain.MediaVoice:
		sub.VoiceCallsRemaining += delta
	case domain.MediaVideo:
		sub.VideoCallsRemaining += delta
	}
}
