package service

import (
	"context"
	"errors"
	"fmt"

	"telehealth/internal/billing"
	"telehealth/internal/clock"
	"telehealth/internal/domain"
	"telehealth/internal/models"
	"telehealth/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SessionEndResult reports what a termination charged and paid. A non-empty Errors list
// with HTTP 200 means a partial failure: the session is closed but one side was not settled.
type SessionEndResult struct {
	SessionID               uint                 `json:"session_id"`
	Status                  domain.SessionStatus `json:"status"`
	DoctorPaymentSuccess    bool                 `json:"doctor_payment_success"`
	PatientDeductionSuccess bool                 `json:"patient_deduction_success"`
	DoctorPaymentAmount     int64                `json:"doctor_payment_amount"`
	Currency                string               `json:"currency,omitempty"`
	ElapsedMinutes          int                  `json:"elapsed_minutes"`
	AutoUnits               int                  `json:"auto_deductions"`
	ManualUnit              int                  `json:"manual_deduction"`
	UnitsDeducted           int                  `json:"patient_sessions_deducted"`
	SessionsUsed            int                  `json:"sessions_used"`
	Errors                  []string             `json:"errors"`
	AlreadyProcessed        bool                 `json:"already_processed"`
	Skipped                 bool                 `json:"-"`
}

// AutoDeductionResult is one sweep step for one session.
type AutoDeductionResult struct {
	SessionID uint
	NewUnits  int
	AutoEnded bool
	End       *SessionEndResult
}

type PaymentService struct {
	db       *gorm.DB
	clock    clock.Clock
	rates    billing.RateTable
	quota    *QuotaLedger
	wallet   *WalletLedger
	notifier *NotificationService
}

func NewPaymentService(db *gorm.DB, clk clock.Clock, rates billing.RateTable, quota *QuotaLedger, wallet *WalletLedger, notifier *NotificationService) *PaymentService {
	return &PaymentService{db: db, clock: clk, rates: rates, quota: quota, wallet: wallet, notifier: notifier}
}

// ProcessSessionEnd settles an active session: debit the patient's quota, pay the doctor's
// flat fee, close the session. All in one transaction. Calling it again on a closed session
// returns AlreadyProcessed without side effects.
func (s *PaymentService) ProcessSessionEnd(ctx context.Context, sessionID uint, isManualEnd bool, reason domain.EndReason) (*SessionEndResult, error) {
	return s.EndIf(ctx, sessionID, isManualEnd, reason, nil)
}

// EndIf is ProcessSessionEnd with a condition re-checked under the row lock. When cond
// rejects the locked session nothing happens and the result has Skipped set.
func (s *PaymentService) EndIf(ctx context.Context, sessionID uint, isManualEnd bool, reason domain.EndReason, cond func(*models.Session) bool) (*SessionEndResult, error) {
	var (
		result *SessionEndResult
		sess   *models.Session
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, sess, err = s.endTx(tx, sessionID, isManualEnd, reason, cond)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) && !errors.Is(err, ErrSessionNotActive) {
			logrus.WithError(err).WithField("session_id", sessionID).Error("session end rolled back")
		}
		return nil, err
	}
	if result.AlreadyProcessed || result.Skipped {
		return result, nil
	}

	fields := logrus.Fields{
		"session_id":       sess.ID,
		"patient_id":       sess.PatientID,
		"doctor_id":        sess.DoctorIDValue(),
		"status":           result.Status,
		"reason":           reason,
		"units_deducted":   result.UnitsDeducted,
		"doctor_paid":      result.DoctorPaymentAmount,
		"elapsed_minutes":  result.ElapsedMinutes,
		"patient_deducted": result.PatientDeductionSuccess,
	}
	if len(result.Errors) > 0 {
		logrus.WithFields(fields).WithField("errors", result.Errors).Warn("session ended with partial settlement")
	} else {
		logrus.WithFields(fields).Info("session ended")
	}

	event := domain.EventSessionEnded
	if result.Status == domain.SessionExpired {
		event = domain.EventSessionExpired
	}
	s.notifier.SessionEvent(event, sess, map[string]interface{}{
		"reason":         reason,
		"units_deducted": result.UnitsDeducted,
	})
	return result, nil
}

func (s *PaymentService) endTx(tx *gorm.DB, sessionID uint, isManualEnd bool, reason domain.EndReason, cond func(*models.Session) bool) (*SessionEndResult, *models.Session, error) {
	sessions := repository.NewSessionRepository(tx)
	sess, err := sessions.GetByIDForUpdate(sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lock session: %w", err)
	}

	res := &SessionEndResult{SessionID: sess.ID, Status: sess.Status, SessionsUsed: sess.SessionsUsed, Errors: []string{}}
	if sess.Status.IsTerminal() {
		res.AlreadyProcessed = true
		return res, sess, nil
	}
	if sess.Status != domain.SessionActive {
		return nil, nil, ErrSessionNotActive
	}
	if cond != nil && !cond(sess) {
		res.Skipped = true
		return res, sess, nil
	}

	now := s.clock.Now()
	final := domain.SessionEnded
	if !isManualEnd {
		final = domain.SessionExpired
	}
	charge := billing.Compute(billing.ElapsedMinutes(sess.StartedAt, now), isManualEnd)
	res.ElapsedMinutes = charge.ElapsedMinutes
	res.AutoUnits = charge.AutoUnits
	res.ManualUnit = charge.ManualUnit

	// Units already taken by the sweep count toward this charge.
	toDebit := charge.UnitsToDeduct - sess.SessionsUsed
	if toDebit < 0 {
		toDebit = 0
	}
	if _, err := s.quota.Debit(tx, sess.PatientID, sess.Media, toDebit); err != nil {
		if !errors.Is(err, ErrNoActiveSubscription) && !errors.Is(err, ErrSubscriptionInactive) {
			return nil, nil, err
		}
		res.Errors = append(res.Errors, "patient deduction failed: "+err.Error())
		toDebit = 0
	} else {
		res.PatientDeductionSuccess = true
	}
	res.UnitsDeducted = toDebit

	if err := s.payDoctor(tx, sess, charge, res); err != nil {
		return nil, nil, err
	}

	used := sess.SessionsUsed + toDebit
	err = sessions.UpdateStatusIfCurrent(sess.ID, domain.SessionActive, final, map[string]interface{}{
		"ended_at":      now,
		"end_reason":    reason,
		"sessions_used": used,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("close session: %w", err)
	}
	sess.Status = final
	sess.EndedAt = &now
	sess.EndReason = reason
	sess.SessionsUsed = used
	res.Status = final
	res.SessionsUsed = used
	return res, sess, nil
}

// payDoctor records lookup problems in res and only returns storage errors.
func (s *PaymentService) payDoctor(tx *gorm.DB, sess *models.Session, charge billing.Charge, res *SessionEndResult) error {
	if sess.DoctorID == nil {
		res.Errors = append(res.Errors, "doctor payment failed: no doctor assigned")
		return nil
	}
	doctor, err := repository.NewUserRepository(tx).GetByID(*sess.DoctorID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		res.Errors = append(res.Errors, "doctor payment failed: doctor not found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load doctor: %w", err)
	}
	txn, err := s.wallet.CreditSessionFee(tx, doctor.ID, doctor.Country, s.rates, sess, charge)
	if errors.Is(err, billing.ErrNoRate) {
		res.Errors = append(res.Errors, "doctor payment failed: "+err.Error())
		return nil
	}
	if err != nil {
		return err
	}
	res.DoctorPaymentSuccess = true
	res.DoctorPaymentAmount = txn.Amount
	res.Currency = txn.Currency
	return nil
}

// ApplyAutoDeduction charges whole units elapsed since the last sweep and force-ends the
// session once it has outrun the quota it started with. Safe to repeat: a second call with
// no new elapsed time charges nothing.
func (s *PaymentService) ApplyAutoDeduction(ctx context.Context, sessionID uint) (*AutoDeductionResult, error) {
	res := &AutoDeductionResult{SessionID: sessionID}
	var shouldEnd bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sessions := repository.NewSessionRepository(tx)
		sess, err := sessions.GetByIDForUpdate(sessionID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}
		if sess.Status != domain.SessionActive {
			return nil
		}
		elapsed := billing.ElapsedMinutes(sess.StartedAt, s.clock.Now())
		shouldEnd = billing.ShouldAutoEnd(elapsed, sess.SessionsRemainingBeforeStart)

		newUnits := billing.AutoUnits(elapsed) - sess.AutoDeductionsProcessed
		if newUnits <= 0 {
			return nil
		}
		if _, err := s.quota.Debit(tx, sess.PatientID, sess.Media, newUnits); err != nil {
			if errors.Is(err, ErrNoActiveSubscription) || errors.Is(err, ErrSubscriptionInactive) {
				logrus.WithError(err).WithFields(logrus.Fields{
					"session_id": sess.ID,
					"patient_id": sess.PatientID,
				}).Warn("auto-deduction skipped")
				return nil
			}
			return err
		}
		if err := sessions.RecordAutoDeduction(sess.ID, sess.AutoDeductionsProcessed, newUnits); err != nil {
			return fmt.Errorf("record auto-deduction: %w", err)
		}
		res.NewUnits = newUnits
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.NewUnits > 0 {
		logrus.WithFields(logrus.Fields{"session_id": sessionID, "units": res.NewUnits}).Info("auto-deduction applied")
	}
	if shouldEnd {
		end, err := s.ProcessSessionEnd(ctx, sessionID, false, domain.EndReasonQuotaExhausted)
		if err != nil {
			return res, err
		}
		res.AutoEnded = !end.AlreadyProcessed
		res.End = end
	}
	return res, nil
}
