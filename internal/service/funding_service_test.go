package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"telehealth/internal/domain"
	"telehealth/internal/models"
	"telehealth/internal/testutil"
)

func TestFundSubscriptionCreatesAndReplays(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	patient := testutil.CreatePatient(t, env.db)
	in := FundingInput{
		PatientID:            patient.ID,
		PaymentTransactionID: "txn-001",
		Gateway:              "paychangu",
		PlanName:             "Monthly",
		AmountCents:          25000_00,
		Currency:             domain.CurrencyMWK,
		TextSessions:         4,
		VoiceCalls:           2,
		VideoCalls:           1,
	}

	sub, replayed, err := env.funding.FundSubscription(ctx, in)
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if replayed {
		t.Error("first funding reported as replay")
	}
	if sub.TextSessionsRemaining != 4 || sub.VoiceCallsRemaining != 2 || sub.VideoCallsRemaining != 1 || sub.TotalTextSessions != 4 {
		t.Errorf("subscription = %+v", sub)
	}
	if !sub.IsActive || sub.ExpiresAt == nil || !sub.ExpiresAt.Equal(testutil.Epoch.Add(30*24*time.Hour)) {
		t.Errorf("activation = %v %v", sub.IsActive, sub.ExpiresAt)
	}

	sub, replayed, err = env.funding.FundSubscription(ctx, in)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replayed || sub.TextSessionsRemaining != 4 {
		t.Errorf("replay = %v, remaining %d", replayed, sub.TextSessionsRemaining)
	}
	var payments int64
	env.db.Model(&models.SubscriptionPayment{}).Count(&payments)
	if payments != 1 {
		t.Errorf("payments = %d, want 1", payments)
	}
}

func TestFundSubscriptionTopUpAndRenewal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	patient := testutil.CreatePatient(t, env.db)
	testutil.CreateSubscription(t, env.db, patient.ID, 2, 0, 0)

	sub, _, err := env.funding.FundSubscription(ctx, FundingInput{PatientID: patient.ID, PaymentTransactionID: "t1", TextSessions: 3})
	if err != nil {
		t.Fatalf("top up: %v", err)
	}
	if sub.TextSessionsRemaining != 5 || sub.TotalTextSessions != 5 {
		t.Errorf("top up = %d/%d, want 5/5", sub.TextSessionsRemaining, sub.TotalTextSessions)
	}

	// Lapsed with debt: totals restart, the debt carries over.
	if err := env.db.Model(&models.Subscription{}).Where("id = ?", sub.ID).
		Update("text_sessions_remaining", -1).Error; err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(40 * 24 * time.Hour)
	sub, _, err = env.funding.FundSubscription(ctx, FundingInput{PatientID: patient.ID, PaymentTransactionID: "t2", TextSessions: 4})
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if sub.TextSessionsRemaining != 3 || sub.TotalTextSessions != 4 {
		t.Errorf("renewal = %d/%d, want 3/4", sub.TextSessionsRemaining, sub.TotalTextSessions)
	}
	if sub.StartsAt == nil || !sub.StartsAt.Equal(env.clock.Now()) {
		t.Errorf("starts_at = %v", sub.StartsAt)
	}
	reloaded := testutil.ReloadSubscription(t, env.db, patient.ID)
	if !reloaded.UsableAt(env.clock.Now()) || reloaded.TextSessionsRemaining != 3 {
		t.Errorf("stored subscription = %+v", reloaded)
	}
}

func TestFundSubscriptionRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	patient := testutil.CreatePatient(t, env.db)
	doctor := testutil.CreateDoctor(t, env.db, "kenya", true)

	tests := []struct {
		name string
		in   FundingInput
		want error
	}{
		{"no transaction id", FundingInput{PatientID: patient.ID, TextSessions: 1}, ErrInvalidFunding},
		{"no units", FundingInput{PatientID: patient.ID, PaymentTransactionID: "x"}, ErrInvalidFunding},
		{"negative units", FundingInput{PatientID: patient.ID, PaymentTransactionID: "x", TextSessions: 2, VoiceCalls: -1}, ErrInvalidFunding},
		{"doctor account", FundingInput{PatientID: doctor.ID, PaymentTransactionID: "x", TextSessions: 1}, ErrInvalidParticipant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := env.funding.FundSubscription(context.Background(), tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
