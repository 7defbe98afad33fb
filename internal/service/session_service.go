package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telehealth/config"
	"telehealth/internal/billing"
	"telehealth/internal/clock"
	"telehealth/internal/domain"
	"telehealth/internal/models"
	"telehealth/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SessionInfo is the billing view of a session returned to clients.
type SessionInfo struct {
	StartedAt            *time.Time `json:"started_at"`
	TotalDurationMinutes int        `json:"total_duration_minutes"`
	ElapsedMinutes       int        `json:"elapsed_minutes"`
	RemainingMinutes     int        `json:"remaining_minutes"`
	SessionsUsed         int        `json:"sessions_used"`
	SessionsRemaining    int        `json:"sessions_remaining"`
	NextDeductionAt      *time.Time `json:"next_deduction_at,omitempty"`
	ResponseDeadline     *time.Time `json:"doctor_response_deadline,omitempty"`
}

type StartResult struct {
	Session *models.Session
	Doctor  *models.User
	Info    SessionInfo
}

// SessionService drives the session state machine. Every transition is a single
// transaction; rows are locked in the order sessions, users, subscriptions, wallets.
type SessionService struct {
	db       *gorm.DB
	clock    clock.Clock
	cfg      config.BillingConfig
	payments *PaymentService
	notifier *NotificationService
}

func NewSessionService(db *gorm.DB, clk clock.Clock, cfg config.BillingConfig, payments *PaymentService, notifier *NotificationService) *SessionService {
	return &SessionService{db: db, clock: clk, cfg: cfg, payments: payments, notifier: notifier}
}

// Start opens an instant session waiting for the doctor to accept.
func (s *SessionService) Start(ctx context.Context, patientID, doctorID uint, media domain.Media) (*StartResult, error) {
	if !media.Valid() {
		return nil, fmt.Errorf("%w: unknown session type", ErrInvalidParticipant)
	}
	if patientID == doctorID {
		return nil, ErrInvalidParticipant
	}
	var out StartResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		doctor, sub, err := s.claimParticipants(tx, patientID, doctorID, 0, true)
		if errors.Is(err, ErrNoActiveSubscription) {
			return fmt.Errorf("%w: no active subscription", ErrQuotaExhausted)
		}
		if err != nil {
			return err
		}
		if sub.Remaining(media) < s.cfg.MinUnitsToStart {
			return ErrQuotaExhausted
		}
		deadline := now.Add(s.cfg.DoctorResponseWindow)
		docID := doctor.ID
		sess := &models.Session{
			PatientID:                    patientID,
			DoctorID:                     &docID,
			Media:                        media,
			Status:                       domain.SessionWaitingForDoctor,
			DoctorResponseDeadline:       &deadline,
			SessionsRemainingBeforeStart: sub.Remaining(media),
			TextEnabled:                  media.TextEnabled(),
			CallEnabled:                  media.CallEnabled(),
		}
		if err := repository.NewSessionRepository(tx).Create(sess); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		out.Session = sess
		out.Doctor = doctor
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Info = s.Info(out.Session)
	logrus.WithFields(logrus.Fields{
		"session_id":   out.Session.ID,
		"patient_id":   patientID,
		"doctor_id":    doctorID,
		"session_type": media,
		"remaining":    out.Session.SessionsRemainingBeforeStart,
	}).Info("session requested")
	s.notifier.SessionEvent(domain.EventSessionRequested, out.Session, map[string]interface{}{
		"doctor_response_deadline": out.Session.DoctorResponseDeadline,
	})
	return &out, nil
}

// claimParticipants locks the doctor's user row, then the patient's subscription row, and
// checks that neither side is already occupied. excludeID skips the session being activated.
// A missing or lapsed subscription is reported only after the busy checks pass.
func (s *SessionService) claimParticipants(tx *gorm.DB, patientID, doctorID, excludeID uint, requireOnline bool) (*models.User, *models.Subscription, error) {
	doctor, err := repository.NewUserRepository(tx).GetByIDForUpdate(doctorID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrDoctorUnavailable
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lock doctor: %w", err)
	}
	available := doctor.IsDoctor() && doctor.IsActive
	if requireOnline {
		available = doctor.AvailableForSessions()
	}
	if !available {
		return nil, nil, ErrDoctorUnavailable
	}

	sub, err := repository.NewSubscriptionRepository(tx).GetByPatientIDForUpdate(patientID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		sub, err = nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lock subscription: %w", err)
	}

	sessions := repository.NewSessionRepository(tx)
	n, err := sessions.CountBusyForDoctor(doctorID, excludeID)
	if err != nil {
		return nil, nil, err
	}
	if n > 0 {
		return nil, nil, ErrDoctorBusy
	}
	n, err = sessions.CountBusyForPatient(patientID, excludeID)
	if err != nil {
		return nil, nil, err
	}
	if n > 0 {
		return nil, nil, ErrPatientBusy
	}
	if sub == nil || !sub.UsableAt(s.clock.Now()) {
		return nil, nil, ErrNoActiveSubscription
	}
	return doctor, sub, nil
}

// Schedule books a session that the scheduler moves to waiting_for_doctor at scheduledAt.
func (s *SessionService) Schedule(ctx context.Context, patientID, doctorID uint, scheduledAt time.Time, media domain.Media) (*models.Session, error) {
	if !media.Valid() || patientID == doctorID {
		return nil, ErrInvalidParticipant
	}
	scheduledAt = scheduledAt.UTC()
	if !scheduledAt.After(s.clock.Now()) {
		return nil, ErrInvalidSchedule
	}
	var sess *models.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doctor, err := repository.NewUserRepository(tx).GetByID(doctorID)
		if err != nil || !doctor.IsDoctor() || !doctor.IsActive {
			return ErrDoctorUnavailable
		}
		sub, err := repository.NewSubscriptionRepository(tx).GetByPatientIDForUpdate(patientID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoActiveSubscription
		}
		if err != nil {
			return fmt.Errorf("lock subscription: %w", err)
		}
		if !sub.UsableAt(s.clock.Now()) || sub.Remaining(media) < s.cfg.MinUnitsToStart {
			return ErrNoActiveSubscription
		}
		docID := doctor.ID
		sess = &models.Session{
			PatientID:                    patientID,
			DoctorID:                     &docID,
			Media:                        media,
			Status:                       domain.SessionScheduled,
			ScheduledAt:                  &scheduledAt,
			SessionsRemainingBeforeStart: sub.Remaining(media),
			TextEnabled:                  media.TextEnabled(),
			CallEnabled:                  media.CallEnabled(),
		}
		return repository.NewSessionRepository(tx).Create(sess)
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"session_id":   sess.ID,
		"patient_id":   patientID,
		"doctor_id":    doctorID,
		"scheduled_at": scheduledAt,
	}).Info("session scheduled")
	return sess, nil
}

// Accept is the doctor taking a waiting session before its response deadline.
func (s *SessionService) Accept(ctx context.Context, doctorID, sessionID uint) (*models.Session, error) {
	var sess *models.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sessions := repository.NewSessionRepository(tx)
		var err error
		sess, err = s.lockSession(sessions, sessionID)
		if err != nil {
			return err
		}
		if !sess.IsDoctor(doctorID) {
			return ErrForbidden
		}
		if sess.Status != domain.SessionWaitingForDoctor {
			return ErrInvalidStateTransition
		}
		now := s.clock.Now()
		if sess.DoctorResponseDeadline != nil && now.After(*sess.DoctorResponseDeadline) {
			return ErrResponseDeadlinePassed
		}
		err = sessions.UpdateStatusIfCurrent(sess.ID, domain.SessionWaitingForDoctor, domain.SessionActive, map[string]interface{}{
			"accepted_at":      now,
			"started_at":       now,
			"last_activity_at": now,
		})
		if err != nil {
			return err
		}
		sess.Status = domain.SessionActive
		sess.AcceptedAt, sess.StartedAt, sess.LastActivityAt = &now, &now, &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"session_id": sess.ID, "doctor_id": doctorID}).Info("session accepted")
	s.notifier.SessionEvent(domain.EventSessionAccepted, sess, nil)
	return sess, nil
}

// End is a manual end by either participant.
func (s *SessionService) End(ctx context.Context, actorID, sessionID uint) (*SessionEndResult, error) {
	sess, err := repository.NewSessionRepository(s.db.WithContext(ctx)).GetByID(sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if !sess.HasParticipant(actorID) {
		return nil, ErrForbidden
	}
	return s.payments.ProcessSessionEnd(ctx, sessionID, true, domain.EndReasonManual)
}

// Cancel closes a session the doctor has not accepted yet. Nothing is billed.
func (s *SessionService) Cancel(ctx context.Context, patientID, sessionID uint) (*models.Session, error) {
	var sess *models.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sessions := repository.NewSessionRepository(tx)
		var err error
		sess, err = s.lockSession(sessions, sessionID)
		if err != nil {
			return err
		}
		if sess.PatientID != patientID {
			return ErrForbidden
		}
		if !domain.CanTransition(sess.Status, domain.SessionCancelled) {
			return ErrInvalidStateTransition
		}
		now := s.clock.Now()
		from := sess.Status
		err = sessions.UpdateStatusIfCurrent(sess.ID, from, domain.SessionCancelled, map[string]interface{}{
			"ended_at":   now,
			"end_reason": domain.EndReasonCancelledByPatient,
		})
		if err != nil {
			return err
		}
		sess.Status = domain.SessionCancelled
		sess.EndedAt = &now
		sess.EndReason = domain.EndReasonCancelledByPatient
		return nil
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"session_id": sess.ID, "patient_id": patientID}).Info("session cancelled")
	s.notifier.SessionEvent(domain.EventSessionCancelled, sess, nil)
	return sess, nil
}

// RecordActivity stamps last_activity_at; the chat and call layers call it on traffic.
func (s *SessionService) RecordActivity(ctx context.Context, actorID, sessionID uint) error {
	sessions := repository.NewSessionRepository(s.db.WithContext(ctx))
	sess, err := sessions.GetByID(sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	if !sess.HasParticipant(actorID) {
		return ErrForbidden
	}
	if err := sessions.TouchActivity(sessionID, s.clock.Now()); err != nil {
		if errors.Is(err, repository.ErrStaleSession) {
			return ErrSessionNotActive
		}
		return err
	}
	return nil
}

func (s *SessionService) Get(ctx context.Context, actorID, sessionID uint) (*models.Session, SessionInfo, error) {
	sess, err := repository.NewSessionRepository(s.db.WithContext(ctx)).GetWithParticipants(sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, SessionInfo{}, ErrSessionNotFound
	}
	if err != nil {
		return nil, SessionInfo{}, err
	}
	if !sess.HasParticipant(actorID) {
		return nil, SessionInfo{}, ErrForbidden
	}
	return sess, s.Info(sess), nil
}

func (s *SessionService) ListForUser(ctx context.Context, userID uint, status string, page, limit int) ([]models.Session, int64, error) {
	if status != "" {
		if _, err := domain.ParseSessionStatus(status); err != nil {
			return nil, 0, err
		}
	}
	page, limit = normalizePage(page, limit)
	return repository.NewSessionRepository(s.db.WithContext(ctx)).ListForUser(userID, status, limit, (page-1)*limit)
}

// SetAvailability toggles whether a doctor accepts instant sessions. Scheduled sessions
// and appointments do not require the doctor to be online.
func (s *SessionService) SetAvailability(ctx context.Context, doctorID uint, online bool) error {
	users := repository.NewUserRepository(s.db.WithContext(ctx))
	doctor, err := users.GetByID(doctorID)
	if err != nil || !doctor.IsDoctor() {
		return ErrInvalidParticipant
	}
	if err := users.SetOnline(doctorID, online); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"doctor_id": doctorID, "online": online}).Info("doctor availability changed")
	return nil
}

// Info derives the allowance view from the creation snapshot and the units used so far.
func (s *SessionService) Info(sess *models.Session) SessionInfo {
	now := s.clock.Now()
	elapsed := 0
	if sess.Status == domain.SessionActive {
		elapsed = billing.ElapsedMinutes(sess.StartedAt, now)
	} else if sess.StartedAt != nil && sess.EndedAt != nil {
		elapsed = billing.ElapsedMinutes(sess.StartedAt, *sess.EndedAt)
	}
	info := SessionInfo{
		StartedAt:            sess.StartedAt,
		TotalDurationMinutes: billing.TotalAllowedMinutes(sess.SessionsRemainingBeforeStart),
		ElapsedMinutes:       elapsed,
		RemainingMinutes:     billing.RemainingMinutes(elapsed, sess.SessionsRemainingBeforeStart),
		SessionsUsed:         sess.SessionsUsed,
		SessionsRemaining:    sess.SessionsRemainingBeforeStart - sess.SessionsUsed,
		ResponseDeadline:     sess.DoctorResponseDeadline,
	}
	if sess.Status == domain.SessionActive && sess.StartedAt != nil {
		next := billing.NextDeductionAt(*sess.StartedAt, sess.AutoDeductionsProcessed)
		info.NextDeductionAt = &next
	}
	return info
}

// ExpireUnanswered closes a waiting session whose doctor never answered. No activity
// can happen before acceptance, so nothing is billed.
func (s *SessionService) ExpireUnanswered(ctx context.Context, sessionID uint) (bool, error) {
	var sess *models.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sessions := repository.NewSessionRepository(tx)
		var err error
		sess, err = s.lockSession(sessions, sessionID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if sess.Status != domain.SessionWaitingForDoctor || sess.DoctorResponseDeadline == nil || !now.After(*sess.DoctorResponseDeadline) {
			sess = nil
			return nil
		}
		err = sessions.UpdateStatusIfCurrent(sess.ID, domain.SessionWaitingForDoctor, domain.SessionExpired, map[string]interface{}{
			"ended_at":   now,
			"end_reason": domain.EndReasonNoResponse,
		})
		if err != nil {
			return err
		}
		sess.Status = domain.SessionExpired
		sess.EndReason = domain.EndReasonNoResponse
		sess.EndedAt = &now
		return nil
	})
	if err != nil || sess == nil {
		return false, err
	}
	logrus.WithFields(logrus.Fields{"session_id": sess.ID, "doctor_id": sess.DoctorIDValue()}).Info("session expired without doctor response")
	s.notifier.SessionEvent(domain.EventSessionExpired, sess, map[string]interface{}{"reason": domain.EndReasonNoResponse})
	return true, nil
}

// ActivateScheduled moves a due scheduled session to waiting_for_doctor. When either side is
// busy the session stays scheduled for the next tick, until the grace window runs out.
func (s *SessionService) ActivateScheduled(ctx context.Context, sessionID uint) (domain.SessionStatus, error) {
	var sess *models.Session
	var outcome domain.SessionStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sessions := repository.NewSessionRepository(tx)
		var err error
		sess, err = s.lockSession(sessions, sessionID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if sess.Status != domain.SessionScheduled || sess.ScheduledAt == nil || sess.ScheduledAt.After(now) {
			outcome = sess.Status
			return nil
		}
		_, _, claimErr := s.claimParticipants(tx, sess.PatientID, sess.DoctorIDValue(), sess.ID, false)
		if claimErr != nil {
			pastGrace := now.After(sess.ScheduledAt.Add(s.cfg.ScheduledGraceWindow))
			retryable := errors.Is(claimErr, ErrDoctorBusy) || errors.Is(claimErr, ErrPatientBusy)
			if retryable && !pastGrace {
				outcome = domain.SessionScheduled
				return nil
			}
			if !retryable && !errors.Is(claimErr, ErrDoctorUnavailable) && !errors.Is(claimErr, ErrNoActiveSubscription) {
				return claimErr
			}
			err = sessions.UpdateStatusIfCurrent(sess.ID, domain.SessionScheduled, domain.SessionExpired, map[string]interface{}{
				"ended_at":   now,
				"end_reason": domain.EndReasonMissed,
			})
			if err != nil {
				return err
			}
			sess.Status = domain.SessionExpired
			sess.EndReason = domain.EndReasonMissed
			sess.EndedAt = &now
			outcome = domain.SessionExpired
			logrus.WithError(claimErr).WithField("session_id", sess.ID).Info("scheduled session missed")
			return nil
		}
		deadline := now.Add(s.cfg.DoctorResponseWindow)
		err = sessions.UpdateStatusIfCurrent(sess.ID, domain.SessionScheduled, domain.SessionWaitingForDoctor, map[string]interface{}{
			"doctor_response_deadline": deadline,
		})
		if err != nil {
			return err
		}
		sess.Status = domain.SessionWaitingForDoctor
		sess.DoctorResponseDeadline = &deadline
		outcome = domain.SessionWaitingForDoctor
		return nil
	})
	if err != nil {
		return "", err
	}
	switch outcome {
	case domain.SessionWaitingForDoctor:
		logrus.WithField("session_id", sess.ID).Info("scheduled session activated")
		s.notifier.SessionEvent(domain.EventSessionActivated, sess, nil)
	case domain.SessionExpired:
		s.notifier.SessionEvent(domain.EventSessionExpired, sess, map[string]interface{}{"reason": domain.EndReasonMissed})
	}
	return outcome, nil
}

// ExpireInactive ends an active session with no activity since cutoff. Activity recorded
// after the scheduler listed the session keeps it open.
func (s *SessionService) ExpireInactive(ctx context.Context, sessionID uint, cutoff time.Time) (*SessionEndResult, error) {
	return s.payments.EndIf(ctx, sessionID, false, domain.EndReasonInactivity, func(sess *models.Session) bool {
		return sess.LastActivityAt != nil && sess.LastActivityAt.Before(cutoff)
	})
}

func (s *SessionService) lockSession(sessions *repository.SessionRepository, id uint) (*models.Session, error) {
	sess, err := sessions.GetByIDForUpdate(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	return sess, nil
}
