// Package scheduler runs the periodic session, billing and housekeeping jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telehealth/config"
	"telehealth/internal/clock"
	"telehealth/internal/domain"
	"telehealth/internal/repository"
	"telehealth/internal/service"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Job names double as Redis lock keys.
const (
	JobExpireWaiting       = "expire-waiting-sessions"
	JobActivateScheduled   = "activate-scheduled-sessions"
	JobAutoDeduction       = "auto-deduction-sweep"
	JobExpireInactive      = "expire-inactive-sessions"
	JobAppointments        = "process-appointment-sessions"
	JobCleanupMessages     = "cleanup-messages"
	JobExpireSubscriptions = "expire-subscriptions"
)

type Scheduler struct {
	cron         *cron.Cron
	cfg          config.SchedulerConfig
	billing      config.BillingConfig
	db           *gorm.DB
	clock        clock.Clock
	locker       Locker
	sessions     *service.SessionService
	payments     *service.PaymentService
	appointments *service.AppointmentService
	ctx          context.Context
	cancel       context.CancelFunc
}

// New builds a scheduler. With a nil Redis client runs are only guarded in-process.
func New(
	cfg config.SchedulerConfig,
	billingCfg config.BillingConfig,
	db *gorm.DB,
	clk clock.Clock,
	rdb *redis.Client,
	sessions *service.SessionService,
	payments *service.PaymentService,
	appointments *service.AppointmentService,
) *Scheduler {
	var locker Locker = NewLocalLocker()
	if rdb != nil {
		locker = NewRedisLocker(rdb)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	cl := cron.PrintfLogger(logrus.StandardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		cfg:          cfg,
		billing:      billingCfg,
		db:           db,
		clock:        clk,
		locker:       locker,
		sessions:     sessions,
		payments:     payments,
		appointments: appointments,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start registers every job and starts the cron goroutine.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name string
		spec string
		fn   func(context.Context) (int, error)
	}{
		{JobExpireWaiting, s.cfg.ExpireWaitingSpec, s.ExpireWaitingSessions},
		{JobActivateScheduled, s.cfg.ActivateScheduledSpec, s.ActivateScheduledSessions},
		{JobAutoDeduction, s.cfg.AutoDeductionSpec, s.RunAutoDeductionSweep},
		{JobExpireInactive, s.cfg.ExpireInactiveSpec, s.ExpireInactiveSessions},
		{JobAppointments, s.cfg.AppointmentSpec, s.ProcessAppointments},
		{JobCleanupMessages, s.cfg.MessageCleanupSpec, s.CleanupMessages},
		{JobExpireSubscriptions, s.cfg.SubscriptionExpirySpec, s.ExpireSubscriptions},
	}
	for _, j := range jobs {
		if _, err := s.cron.AddFunc(j.spec, s.wrap(j.name, j.fn)); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", j.name, j.spec, err)
		}
	}
	s.cron.Start()
	logrus.WithField("jobs", len(jobs)).Info("scheduler started")
	return nil
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	select {
	case <-s.cron.Stop().Done():
		logrus.Info("scheduler stopped")
	case <-ctx.Done():
		logrus.Warn("scheduler stop timed out")
	}
}

func (s *Scheduler) wrap(name string, fn func(context.Context) (int, error)) func() {
	return func() {
		s.runOnce(name, fn)
	}
}

// runOnce takes the job lock and runs fn once. Returns false when another node holds the lock.
func (s *Scheduler) runOnce(name string, fn func(context.Context) (int, error)) bool {
	log := logrus.WithField("job", name)
	release, ok, err := s.locker.Acquire(s.ctx, name, s.cfg.LockTTL)
	if err != nil {
		log.WithError(err).Error("acquire job lock")
		return false
	}
	if !ok {
		log.Debug("job locked elsewhere, skipping")
		return false
	}
	defer release()

	started := time.Now()
	n, err := fn(s.ctx)
	entry := log.WithFields(logrus.Fields{"processed": n, "duration": time.Since(started).String()})
	if err != nil {
		entry.WithError(err).Error("job failed")
		return true
	}
	if n > 0 {
		entry.Info("job finished")
	} else {
		entry.Debug("job finished")
	}
	return true
}

// forEach runs fn for each id, logging per-row failures and carrying on with the batch.
func forEach(ctx context.Context, job string, ids []uint, fn func(uint) (bool, error)) (int, error) {
	var done, failed int
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		changed, err := fn(id)
		if err != nil {
			failed++
			logrus.WithError(err).WithFields(logrus.Fields{"job": job, "id": id}).Warn("row failed")
			continue
		}
		if changed {
			done++
		}
	}
	if failed > 0 {
		return done, fmt.Errorf("%d of %d rows failed", failed, len(ids))
	}
	return done, nil
}

// sweep pages through list by id until a short page comes back, so rows that
// remain eligible after processing do not hide the rows behind them.
func (s *Scheduler) sweep(ctx context.Context, job string, list func(afterID uint, limit int) ([]uint, error), fn func(uint) (bool, error)) (int, error) {
	limit := s.cfg.BatchSize
	if limit <= 0 {
		limit = 200
	}
	var (
		total  int
		errs   []error
		lastID uint
	)
	for {
		ids, err := list(lastID, limit)
		if err != nil {
			return total, errors.Join(append(errs, err)...)
		}
		done, err := forEach(ctx, job, ids, fn)
		total += done
		if err != nil {
			errs = append(errs, err)
		}
		if len(ids) < limit || ctx.Err() != nil {
			break
		}
		lastID = ids[len(ids)-1]
	}
	return total, errors.Join(errs...)
}

func (s *Scheduler) ExpireWaitingSessions(ctx context.Context) (int, error) {
	now := s.clock.Now()
	repo := repository.NewSessionRepository(s.db.WithContext(ctx))
	return s.sweep(ctx, JobExpireWaiting, func(after uint, limit int) ([]uint, error) {
		return repo.ListExpiredWaitingIDs(now, after, limit)
	}, func(id uint) (bool, error) {
		return s.sessions.ExpireUnanswered(ctx, id)
	})
}

func (s *Scheduler) ActivateScheduledSessions(ctx context.Context) (int, error) {
	now := s.clock.Now()
	repo := repository.NewSessionRepository(s.db.WithContext(ctx))
	return s.sweep(ctx, JobActivateScheduled, func(after uint, limit int) ([]uint, error) {
		return repo.ListDueScheduledIDs(now, after, limit)
	}, func(id uint) (bool, error) {
		st, err := s.sessions.ActivateScheduled(ctx, id)
		return err == nil && st != domain.SessionScheduled, err
	})
}

func (s *Scheduler) RunAutoDeductionSweep(ctx context.Context) (int, error) {
	repo := repository.NewSessionRepository(s.db.WithContext(ctx))
	return s.sweep(ctx, JobAutoDeduction, repo.ListActiveIDs, func(id uint) (bool, error) {
		res, err := s.payments.ApplyAutoDeduction(ctx, id)
		if err != nil {
			return false, err
		}
		return res.NewUnits > 0 || res.AutoEnded, nil
	})
}

func (s *Scheduler) ExpireInactiveSessions(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.billing.InactivityWindow)
	repo := repository.NewSessionRepository(s.db.WithContext(ctx))
	return s.sweep(ctx, JobExpireInactive, func(after uint, limit int) ([]uint, error) {
		return repo.ListInactiveIDs(cutoff, after, limit)
	}, func(id uint) (bool, error) {
		res, err := s.sessions.ExpireInactive(ctx, id, cutoff)
		if errors.Is(err, service.ErrSessionNotActive) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return !res.Skipped && !res.AlreadyProcessed, nil
	})
}

// ProcessAppointments opens sessions for due appointments, then closes in-progress ones.
func (s *Scheduler) ProcessAppointments(ctx context.Context) (int, error) {
	now := s.clock.Now()
	appts := repository.NewAppointmentRepository(s.db.WithContext(ctx))
	opened, dueErr := s.sweep(ctx, JobAppointments, func(after uint, limit int) ([]uint, error) {
		return appts.ListDueConfirmedIDs(now, after, limit)
	}, func(id uint) (bool, error) {
		st, err := s.appointments.ProcessDue(ctx, id)
		return err == nil && st != domain.AppointmentConfirmed, err
	})
	synced, syncErr := s.sweep(ctx, JobAppointments, appts.ListInProgressIDs, func(id uint) (bool, error) {
		st, err := s.appointments.SyncInProgress(ctx, id)
		return err == nil && st != domain.AppointmentInProgress, err
	})
	return opened + synced, errors.Join(dueErr, syncErr)
}

func (s *Scheduler) CleanupMessages(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.cfg.MessageRetention)
	n, err := repository.NewMessageRepository(s.db.WithContext(ctx)).DeleteOldForClosedSessions(cutoff)
	return int(n), err
}

func (s *Scheduler) ExpireSubscriptions(ctx context.Context) (int, error) {
	now := s.clock.Now()
	subs := repository.NewSubscriptionRepository(s.db.WithContext(ctx))
	return s.sweep(ctx, JobExpireSubscriptions, func(after uint, limit int) ([]uint, error) {
		return subs.ListExpiredActiveIDs(now, after, limit)
	}, func(id uint) (bool, error) {
		return subs.DeactivateIfExpired(id, now)
	})
}
