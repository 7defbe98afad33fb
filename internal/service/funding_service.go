package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"telehealth/config"
	"telehealth/internal/clock"
	"telehealth/internal/domain"
	"telehealth/internal/models"
	"telehealth/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FundingInput is the "subscription funded" effect delivered after a gateway confirms payment.
type FundingInput struct {
	PatientID            uint   `json:"patient_id" binding:"required"`
	PaymentTransactionID string `json:"payment_transaction_id" binding:"required"`
	Gateway              string `json:"gateway"`
	PlanName             string `json:"plan_name"`
	AmountCents          int64  `json:"amount"`
	Currency             string `json:"currency"`
	TextSessions         int    `json:"text_sessions" binding:"min=0"`
	VoiceCalls           int    `json:"voice_calls" binding:"min=0"`
	VideoCalls           int    `json:"video_calls" binding:"min=0"`
}

func (in FundingInput) units(media domain.Media) int {
	switch media {
	case domain.MediaText:
		return in.TextSessions
	case domain.MediaVoice:
		return in.VoiceCalls
	case domain.MediaVideo:
		return in.VideoCalls
	}
	return 0
}

type FundingService struct {
	db    *gorm.DB
	clock clock.Clock
	cfg   config.BillingConfig
	quota *QuotaLedger
}

func NewFundingService(db *gorm.DB, clk clock.Clock, cfg config.BillingConfig, quota *QuotaLedger) *FundingService {
	return &FundingService{db: db, clock: clk, cfg: cfg, quota: quota}
}

// FundSubscription creates or refills the patient's subscription. A transaction id that was
// already applied returns the current subscription with replayed set and changes nothing.
func (s *FundingService) FundSubscription(ctx context.Context, in FundingInput) (*models.Subscription, bool, error) {
	in.PaymentTransactionID = strings.TrimSpace(in.PaymentTransactionID)
	if in.PatientID == 0 || in.PaymentTransactionID == "" {
		return nil, false, ErrInvalidFunding
	}
	if in.TextSessions < 0 || in.VoiceCalls < 0 || in.VideoCalls < 0 ||
		in.TextSessions+in.VoiceCalls+in.VideoCalls == 0 {
		return nil, false, ErrInvalidFunding
	}

	var (
		sub      *models.Subscription
		replayed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		patient, err := repository.NewUserRepository(tx).GetByIDForUpdate(in.PatientID)
		if err != nil || !patient.IsPatient() {
			return ErrInvalidParticipant
		}
		subs := repository.NewSubscriptionRepository(tx)
		sub, err = subs.GetByPatientIDForUpdate(in.PatientID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("lock subscription: %w", err)
		}

		if _, err := subs.GetPaymentByTransactionID(in.PaymentTransactionID); err == nil {
			replayed = true
			return nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := s.clock.Now()
		fresh := sub == nil || !sub.UsableAt(now)
		if sub == nil {
			sub = &models.Subscription{PatientID: in.PatientID}
			if err := subs.Create(sub); err != nil {
				return fmt.Errorf("create subscription: %w", err)
			}
		} else if fresh {
			// A lapsed plan starts over; only debt carries into the new period.
			sub.TextSessionsRemaining = min(sub.TextSessionsRemaining, 0)
			sub.VoiceCallsRemaining = min(sub.VoiceCallsRemaining, 0)
			sub.VideoCallsRemaining = min(sub.VideoCallsRemaining, 0)
			sub.TotalTextSessions, sub.TotalVoiceCalls, sub.TotalVideoCalls = 0, 0, 0
			if err := subs.Save(sub); err != nil {
				return fmt.Errorf("reset subscription: %w", err)
			}
		}

		for _, media := range domain.AllMedia {
			if err := s.quota.Credit(tx, sub, media, in.units(media)); err != nil {
				return err
			}
		}

		expires := now.Add(s.cfg.SubscriptionPeriod)
		sub.IsActive = true
		if fresh || sub.StartsAt == nil {
			sub.StartsAt = &now
		}
		sub.ExpiresAt = &expires
		sub.PaymentTransactionID = in.PaymentTransactionID
		sub.PaymentGateway = in.Gateway
		if in.PlanName != "" {
			sub.PlanName = in.PlanName
		}
		err = tx.Model(sub).Updates(map[string]interface{}{
			"is_active":              true,
			"starts_at":              sub.StartsAt,
			"expires_at":             sub.ExpiresAt,
			"payment_transaction_id": sub.PaymentTransactionID,
			"payment_gateway":        sub.PaymentGateway,
			"plan_name":              sub.PlanName,
		}).Error
		if err != nil {
			return fmt.Errorf("activate subscription: %w", err)
		}

		payload, _ := json.Marshal(in)
		return subs.CreatePayment(&models.SubscriptionPayment{
			PatientID:            in.PatientID,
			SubscriptionID:       sub.ID,
			PaymentTransactionID: in.PaymentTransactionID,
			Gateway:              in.Gateway,
			AmountCents:          in.AmountCents,
			Currency:             in.Currency,
			TextSessions:         in.TextSessions,
			VoiceCalls:           in.VoiceCalls,
			VideoCalls:           in.VideoCalls,
			Payload:              datatypes.JSON(payload),
		})
	})
	if err != nil {
		return nil, false, err
	}
	if replayed {
		sub, err = repository.NewSubscriptionRepository(s.db.WithContext(ctx)).GetByPatientID(in.PatientID)
		if err != nil {
			return nil, true, err
		}
		logrus.WithField("payment_transaction_id", in.PaymentTransactionID).Info("funding replay ignored")
		return sub, true, nil
	}
	logrus.WithFields(logrus.Fields{
		"patient_id":             in.PatientID,
		"subscription_id":        sub.ID,
		"payment_transaction_id": in.PaymentTransactionID,
		"text":                   in.TextSessions,
		"voice":                  in.VoiceCalls,
		"video":                  in.VideoCalls,
	}).Info("subscription funded")
	return sub, false, nil
}
