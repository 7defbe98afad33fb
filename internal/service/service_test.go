package service

import (
	"sync"
	"testing"
	"time"

	"telehealth/config"
	"telehealth/internal/billing"
	"telehealth/internal/clock"
	"telehealth/internal/testutil"

	"gorm.io/gorm"
)

type recordedEvent struct {
	UserID uint
	Event  SessionEvent
}

type fakeHub struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (h *fakeHub) BroadcastToUser(userID uint, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ev, _ := payload.(SessionEvent)
	h.events = append(h.events, recordedEvent{UserID: userID, Event: ev})
}

func (h *fakeHub) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, e := range h.events {
		out = append(out, e.Event.Type)
	}
	return out
}

type testEnv struct {
	db           *gorm.DB
	clock        *clock.Manual
	hub          *fakeHub
	billingCfg   config.BillingConfig
	quota        *QuotaLedger
	payments     *PaymentService
	sessions     *SessionService
	appointments *AppointmentService
	funding      *FundingService
	withdrawals  *WithdrawalService
	wallets      *WalletService
}

func testBillingConfig() config.BillingConfig {
	return config.BillingConfig{
		Rates:                 billing.DefaultRates(),
		MinUnitsToStart:       1,
		DoctorResponseWindow:  90 * time.Second,
		InactivityWindow:      30 * time.Minute,
		ScheduledGraceWindow:  15 * time.Minute,
		AppointmentMissWindow: 30 * time.Minute,
		SubscriptionPeriod:    30 * 24 * time.Hour,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	clk := clock.NewManual(testutil.Epoch)
	hub := &fakeHub{}
	cfg := testBillingConfig()
	notifier := NewNotificationService(hub)
	quota := NewQuotaLedger(db, clk)
	ledger := NewWalletLedger()
	payments := NewPaymentService(db, clk, cfg.Rates, quota, ledger, notifier)
	return &testEnv{
		db:           db,
		clock:        clk,
		hub:          hub,
		billingCfg:   cfg,
		quota:        quota,
		payments:     payments,
		sessions:     NewSessionService(db, clk, cfg, payments, notifier),
		appointments: NewAppointmentService(db, clk, cfg, notifier),
		funding:      NewFundingService(db, clk, cfg, quota),
		withdrawals:  NewWithdrawalService(db, clk, config.WithdrawalConfig{MinAmount: 1000_00, MaxAmount: 1000000_00}, ledger),
		wallets:      NewWalletService(db, clk, cfg.Rates),
	}
}
