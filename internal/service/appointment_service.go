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

// AppointmentService books calendar slots and turns due appointments into sessions.
type AppointmentService struct {
	db       *gorm.DB
	clock    clock.Clock
	cfg      config.BillingConfig
	notifier *NotificationService
}

func NewAppointmentService(db *gorm.DB, clk clock.Clock, cfg config.BillingConfig, notifier *NotificationService) *AppointmentService {
	return &AppointmentService{db: db, clock: clk, cfg: cfg, notifier: notifier}
}

func (s *AppointmentService) Book(ctx context.Context, patientID, doctorID uint, at time.Time, media domain.Media, reason string) (*models.Appointment, error) {
	if !media.Valid() || patientID == doctorID {
		return nil, ErrInvalidParticipant
	}
	at = at.UTC()
	now := s.clock.Now()
	if !at.After(now) {
		return nil, ErrInvalidSchedule
	}
	var appt *models.Appointment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doctor, err := repository.NewUserRepository(tx).GetByIDForUpdate(doctorID)
		if err != nil || !doctor.IsDoctor() || !doctor.IsActive {
			return ErrDoctorUnavailable
		}
		sub, err := repository.NewSubscriptionRepository(tx).GetByPatientID(patientID)
		if err != nil || !sub.UsableAt(now) {
			return ErrNoActiveSubscription
		}
		if sub.Remaining(media) < s.cfg.MinUnitsToStart {
			return ErrQuotaExhausted
		}
		slot := time.Duration(billing.UnitMinutes) * time.Minute
		appts := repository.NewAppointmentRepository(tx)
		n, err := appts.CountDoctorConflicts(doctorID, at.Add(-slot+time.Second), at.Add(slot))
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrSlotTaken
		}
		appt = &models.Appointment{
			PatientID:   patientID,
			DoctorID:    doctorID,
			Media:       media,
			ScheduledAt: at,
			Status:      domain.AppointmentConfirmed,
			Reason:      reason,
		}
		return appts.Create(appt)
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"appointment_id": appt.ID,
		"patient_id":     patientID,
		"doctor_id":      doctorID,
		"scheduled_at":   at,
	}).Info("appointment booked")
	return appt, nil
}

// Cancel is only possible before the appointment has opened a session.
func (s *AppointmentService) Cancel(ctx context.Context, patientID, appointmentID uint) (*models.Appointment, error) {
	var appt *models.Appointment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		appts := repository.NewAppointmentRepository(tx)
		var err error
		appt, err = appts.GetByIDForUpdate(appointmentID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAppointmentNotFound
		}
		if err != nil {
			return err
		}
		if appt.PatientID != patientID {
			return ErrForbidden
		}
		if appt.Status != domain.AppointmentConfirmed {
			return ErrInvalidStateTransition
		}
		appt.Status = domain.AppointmentCancelled
		return appts.Save(appt)
	})
	if err != nil {
		return nil, err
	}
	logrus.WithField("appointment_id", appt.ID).Info("appointment cancelled")
	return appt, nil
}

// ProcessDue opens a waiting session for a confirmed appointment whose time has come.
// Busy participants leave it confirmed for the next run; past the miss window it is missed.
func (s *AppointmentService) ProcessDue(ctx context.Context, appointmentID uint) (domain.AppointmentStatus, error) {
	var (
		appt *models.Appointment
		sess *models.Session
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		appts := repository.NewAppointmentRepository(tx)
		var err error
		appt, err = appts.GetByIDForUpdate(appointmentID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAppointmentNotFound
		}
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if appt.Status != domain.AppointmentConfirmed || appt.ScheduledAt.After(now) {
			return nil
		}
		if now.After(appt.ScheduledAt.Add(s.cfg.AppointmentMissWindow)) {
			appt.Status = domain.AppointmentMissed
			return appts.Save(appt)
		}

		doctor, err := repository.NewUserRepository(tx).GetByIDForUpdate(appt.DoctorID)
		if err != nil || !doctor.IsDoctor() || !doctor.IsActive {
			appt.Status = domain.AppointmentMissed
			return appts.Save(appt)
		}
		sub, err := repository.NewSubscriptionRepository(tx).GetByPatientIDForUpdate(appt.PatientID)
		if err != nil || !sub.UsableAt(now) || sub.Remaining(appt.Media) < s.cfg.MinUnitsToStart {
			appt.Status = domain.AppointmentMissed
			return appts.Save(appt)
		}
		sessions := repository.NewSessionRepository(tx)
		busyDoctor, err := sessions.CountBusyForDoctor(appt.DoctorID, 0)
		if err != nil {
			return err
		}
		busyPatient, err := sessions.CountBusyForPatient(appt.PatientID, 0)
		if err != nil {
			return err
		}
		if busyDoctor > 0 || busyPatient > 0 {
			return nil
		}

		deadline := now.Add(s.cfg.DoctorResponseWindow)
		doctorID, apptID, scheduledAt := appt.DoctorID, appt.ID, appt.ScheduledAt
		sess = &models.Session{
			PatientID:                    appt.PatientID,
			DoctorID:                     &doctorID,
			AppointmentID:                &apptID,
			Media:                        appt.Media,
			Status:                       domain.SessionWaitingForDoctor,
			ScheduledAt:                  &scheduledAt,
			DoctorResponseDeadline:       &deadline,
			SessionsRemainingBeforeStart: sub.Remaining(appt.Media),
			TextEnabled:                  appt.Media.TextEnabled(),
			CallEnabled:                  appt.Media.CallEnabled(),
		}
		if err := sessions.Create(sess); err != nil {
			return fmt.Errorf("create appointment session: %w", err)
		}
		appt.Status = domain.AppointmentInProgress
		appt.SessionID = &sess.ID
		return appts.Save(appt)
	})
	if err != nil {
		return "", err
	}
	if sess != nil {
		logrus.WithFields(logrus.Fields{"appointment_id": appt.ID, "session_id": sess.ID}).Info("appointment session opened")
		s.notifier.SessionEvent(domain.EventSessionActivated, sess, map[string]interface{}{"appointment_id": appt.ID})
	}
	return appt.Status, nil
}

// SyncInProgress closes an in-progress appointment once its session has finished.
func (s *AppointmentService) SyncInProgress(ctx context.Context, appointmentID uint) (domain.AppointmentStatus, error) {
	var appt *models.Appointment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		appts := repository.NewAppointmentRepository(tx)
		var err error
		appt, err = appts.GetByIDForUpdate(appointmentID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAppointmentNotFound
		}
		if err != nil {
			return err
		}
		if appt.Status != domain.AppointmentInProgress {
			return nil
		}
		if appt.SessionID == nil {
			appt.Status = domain.AppointmentMissed
			return appts.Save(appt)
		}
		sess, err := repository.NewSessionRepository(tx).GetByID(*appt.SessionID)
		if err != nil {
			return err
		}
		if !sess.Status.IsTerminal() {
			return nil
		}
		switch {
		case sess.Status == domain.SessionCancelled:
			appt.Status = domain.AppointmentCancelled
		case sess.StartedAt != nil:
			appt.Status = domain.AppointmentCompleted
		default:
			appt.Status = domain.AppointmentMissed
		}
		return appts.Save(appt)
	})
	if err != nil {
		return "", err
	}
	return appt.Status, nil
}

func (s *AppointmentService) ListForUser(ctx context.Context, userID uint, status string, page, limit int) ([]models.Appointment, int64, error) {
	if status != "" {
		if _, err := domain.ParseAppointmentStatus(status); err != nil {
			return nil, 0, err
		}
	}
	page, limit = normalizePage(page, limit)
	return repository.NewAppointmentRepository(s.db.WithContext(ctx)).ListForUser(userID, status, limit, (page-1)*limit)
}
