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

func TestProcessSessionEndManual(t *testing.T) {
	tests := []struct {
		name          string
		elapsed       time.Duration
		remaining     int
		wantUnits     int
		wantRemaining int
	}{
		{"8 minutes", 8 * time.Minute, 5, 1, 4},
		{"12 minutes", 12 * time.Minute, 5, 2, 3},
		{"25 minutes", 25 * time.Minute, 5, 3, 2},
		{"overrun goes negative", 25 * time.Minute, 2, 3, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			doctor := testutil.CreateDoctor(t, env.db, "malawi", true)
			patient := testutil.CreatePatient(t, env.db)
			testutil.CreateSubscription(t, env.db, patient.ID, tt.remaining, 0, 0)
			sess := startActive(t, env, patient, doctor, domain.MediaText)

			env.clock.Advance(tt.elapsed)
			res, err := env.payments.ProcessSessionEnd(context.Background(), sess.ID, true, domain.EndReasonManual)
			if err != nil {
				t.Fatalf("end: %v", err)
			}
			if res.UnitsDeducted != tt.wantUnits || res.SessionsUsed != tt.wantUnits {
				t.Errorf("units = %d used = %d, want %d", res.UnitsDeducted, res.SessionsUsed, tt.wantUnits)
			}
			if !res.PatientDeductionSuccess || !res.DoctorPaymentSuccess || len(res.Errors) != 0 {
				t.Errorf("result = %+v", res)
			}
			if res.DoctorPaymentAmount != 4000_00 || res.Currency != domain.CurrencyMWK {
				t.Errorf("fee = %d %s, want 400000 MWK", res.DoctorPaymentAmount, res.Currency)
			}
			if sub := testutil.ReloadSubscription(t, env.db, patient.ID); sub.TextSessionsRemaining != tt.wantRemaining {
				t.Errorf("remaining = %d, want %d", sub.TextSessionsRemaining, tt.wantRemaining)
			}
			got := testutil.ReloadSession(t, env.db, sess.ID)
			if got.Status != domain.SessionEnded || got.EndReason != domain.EndReasonManual || got.EndedAt == nil {
				t.Errorf("session = %s/%s", got.Status, got.EndReason)
			}
		})
	}
}

func TestFlatFeeIndependentOfDuration(t *testing.T) {
	for _, elapsed := range []time.Duration{time.Minute, 45 * time.Minute} {
		env := newTestEnv(t)
		doctor := testutil.CreateDoctor(t, env.db, "kenya", true)
		patient := testutil.CreatePatient(t, env.db)
		testutil.CreateSubscription(t, env.db, patient.ID, 0, 0, 10)
		sess := startActive(t, env, patient, doctor, domain.MediaVideo)
		env.clock.Advance(elapsed)

		res, err := env.payments.ProcessSessionEnd(context.Background(), sess.ID, true, domain.EndReasonManual)
		if err != nil {
			t.Fatalf("end: %v", err)
		}
		w := testutil.ReloadWallet(t, env.db, doctor.ID)
		if res.DoctorPaymentAmount != 6_00 || w.Balance != 6_00 || w.TotalEarned != 6_00 || w.Currency != domain.CurrencyUSD {
			t.Errorf("elapsed %v: paid %d, wallet %+v", elapsed, res.DoctorPaymentAmount, w)
		}
	}
}

func TestDoctorFeePricedInWalletCurrency(t *testing.T) {
	env := newTestEnv(t)
	doctor := testutil.CreateDoctor(t, env.db, "malawi", true)
	testutil.CreateWallet(t, env.db, doctor.ID, 0, domain.CurrencyMWK)
	if err := env.db.Model(&models.User{}).Where("id = ?", doctor.ID).Update("country", "Kenya").Error; err != nil {
		t.Fatal(err)
	}
	patient := testutil.CreatePatient(t, env.db)
	testutil.CreateSubscription(t, env.db, patient.ID, 2, 0, 0)
	sess := startActive(t, env, patient, doctor, domain.MediaText)
	env.clock.Advance(5 * time.Minute)

	res, err := env.payments.ProcessSessionEnd(context.Background(), sess.ID, true, domain.EndReasonManual)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if !res.DoctorPaymentSuccess || res.DoctorPaymentAmount != 4000_00 || res.Currency != domain.CurrencyMWK {
		t.Errorf("result = %+v, want 400000 MWK", res)
	}
	w := testutil.ReloadWallet(t, env.db, doctor.ID)
	if w.Currency != domain.CurrencyMWK || w.Balance != 4000_00 {
		t.Errorf("wallet = %+v", w)
	}
	var txn models.WalletTransaction
	if err := env.db.Where("doctor_id = ?", doctor.ID).First(&txn).Error; err != nil {
		t.Fatal(err)
	}
	if txn.Currency != domain.CurrencyMWK || txn.Amount != 4000_00 {
		t.Errorf("transaction = %d %s", txn.Amount, txn.Currency)
	}
}

func TestDoctorFeeWithoutRateIsReported(t *testing.T) {
	env := newTestEnv(t)
	doctor := testutil.CreateDoctor(t, env.db, "kenya", true)
	testutil.CreateWallet(t, env.db, doctor.ID, 0, "ZAR")
	patient := testutil.CreatePatient(t, env.db)
	testutil.CreateSubscription(t, env.db, patient.ID, 2, 0, 0)
	sess := startActive(t, env, patient, doctor, domain.MediaText)
	env.clock.Advance(5 * time.Minute)

	res, err := env.payments.ProcessSessionEnd(context.Background(), sess.ID, true, domain.EndReasonManual)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if res.DoctorPaymentSuccess || !res.PatientDeductionSuccess || len(res.Errors) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if w := testutil.ReloadWallet(t, env.db, doctor.ID); w.Balance != 0 {
		t.Errorf("balance = %d, want 0", w.Balance)
	}
}

func TestProcessSessionEndIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor := testutil.CreateDoctor(t, env.db, "malawi", true)
	patient := testutil.CreatePatient(t, env.db)
	testutil.CreateSubscription(t, env.db, patient.ID, 4, 0, 0)
	sess := startActive(t, env, patient, doctor, domain.MediaText)
	env.clock.Advance(15 * time.Minute)

	if _, err := env.payments.ProcessSessionEnd(ctx, sess.ID, true, domain.EndReasonManual); err != nil {
		t.Fatalf("first end: %v", err)
	}
	env.clock.Advance(30 * time.Minute)
	res, err := env.payments.ProcessSessionEnd(ctx, sess.ID, true, domain.EndReasonManual)
	if err != nil {
		t.Fatalf("second end: %v", err)
	}
	if !res.AlreadyProcessed {
		t.Errorf("second end not flagged as already processed: %+v", res)
	}
	if sub := testutil.ReloadSubscription(t, env.db, patient.ID); sub.TextSessionsRemaining != 2 {
		t.Errorf("remaining = %d, want 2", sub.TextSessionsRemaining)
	}
	w := testutil.ReloadWallet(t, env.db, doctor.ID)
	if w.Balance != 4000_00 {
		t.Errorf("balance = %d, want 400000", w.Balance)
	}
	var credits int64
	env.db.Model(&models.WalletTransaction{}).Where("doctor_id = ?", doctor.ID).Count(&credits)
	if credits != 1 {
		t.Errorf("wallet transactions = %d, want 1", credits)
	}
}

func TestProcessSessionEndNotActive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor := testutil.CreateDoctor(t, env.db, "kenya", true)
	patient := testutil.CreatePatient(t, env.db)
	testutil.CreateSubscription(t, env.db, patient.ID, 2, 0, 0)
	res, err := env.sessions.Start(ctx, patient.ID, doctor.ID, domain.MediaText)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.payments.ProcessSessionEnd(ctx, res.Session.ID, true, domain.EndReasonManual); !errors.Is(err, ErrSessionNotActive) {
		t.Fatalf("err = %v, want ErrSessionNotActive", err)
	}
	if _, err := env.payments.ProcessSessionEnd(ctx, 777, true, domain.EndReasonManual); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestProcessSessionEndPartialFailure(t *testing.T) {
	env := newTestEnv(t)
	doctor := testutil.CreateDoctor(t, env.db, "malawi", true)
	patient := testutil.CreatePatient(t, env.db)
	sub := testutil.CreateSubscription(t, env.db, patient.ID, 3, 0, 0)
	sess := startActive(t, env, patient, doctor, domain.MediaText)
	if err := env.db.Delete(&models.Subscription{}, sub.ID).Error; err != nil {
		t.Fatalf("delete subscription: %v", err)
	}
	env.clock.Advance(5 * time.Minute)

	res, err := env.payments.ProcessSessionEnd(context.Background(), sess.ID, true, domain.EndReasonManual)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if res.PatientDeductionSuccess || !res.DoctorPaymentSuccess || len(res.Errors) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.UnitsDeducted != 0 {
		t.Errorf("units deducted = %d, want 0", res.UnitsDeducted)
	}
	if got := testutil.ReloadSession(t, env.db, sess.ID); got.Status != domain.SessionEnded {
		t.Errorf("status = %s, want ended", got.Status)
	}
	if w := testutil.ReloadWallet(t, env.db, doctor.ID); w.Balance != 4000_00 {
		t.Errorf("balance = %d", w.Balance)
	}
}

func TestAutoDeductionSweepIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor := testutil.CreateDoctor(t, env.db, "kenya", true)
	patient := testutil.CreatePatient(t, env.db)
	testutil.CreateSubscription(t, env.db, patient.ID, 0, 5, 0)
	sess := startActive(t, env, patient, doctor, domain.MediaVoice)

	env.clock.Advance(25 * time.Minute)
	res, err := env.payments.ApplyAutoDeduction(ctx, sess.ID)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if res.NewUnits != 2 || res.AutoEnded {
		t.Fatalf("first sweep = %+v", res)
	}
	res, err = env.payments.ApplyAutoDeduction(ctx, sess.ID)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if res.NewUnits != 0 {
		t.Errorf("second sweep charged %d more units", res.NewUnits)
	}
	got := testutil.ReloadSession(t, env.db, sess.ID)
	if got.AutoDeductionsProcessed != 2 || got.SessionsUsed != 2 {
		t.Errorf("counters = %d/%d, want 2/2", got.AutoDeductionsProcessed, got.SessionsUsed)
	}
	if sub := testutil.ReloadSubscription(t, env.db, patient.ID); sub.VoiceCallsRemaining != 3 {
		t.Errorf("remaining = %d, want 3", sub.VoiceCallsRemaining)
	}

	// A manual end at 27 minutes owes 3 units, two of which the sweep already took.
	env.clock.Advance(2 * time.Minute)
	end, err := env.payments.ProcessSessionEnd(ctx, sess.ID, true, domain.EndReasonManual)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if end.UnitsDeducted != 1 || end.SessionsUsed != 3 {
		t.Errorf("end = %+v", end)
	}
	if sub := testutil.ReloadSubscription(t, env.db, patient.ID); sub.VoiceCallsRemaining != 2 {
		t.Errorf("remaining after end = %d, want 2", sub.VoiceCallsRemaining)
	}
}

func TestAutoDeductionForceEnds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor := testutil.CreateDoctor(t, env.db, "malawi", true)
	patient := testutil.CreatePatient(t, env.db)
	testutil.CreateSubscription(t, env.db, patient.ID, 3, 0, 0)
	sess := startActive(t, env, patient, doctor, domain.MediaText)

	env.clock.Advance(15 * time.Minute)
	res, err := env.payments.ApplyAutoDeduction(ctx, sess.ID)
	if err != nil {
		t.Fatalf("sweep at 15m: %v", err)
	}
	if res.AutoEnded {
		t.Fatal("session ended at 15 minutes with 3 units")
	}

	env.clock.Advance(20 * time.Minute)
	res, err = env.payments.ApplyAutoDeduction(ctx, sess.ID)
	if err != nil {
		t.Fatalf("sweep at 35m: %v", err)
	}
	if !res.AutoEnded || res.End == nil {
		t.Fatalf("sweep at 35m = %+v", res)
	}
	if res.End.Status != domain.SessionExpired || res.End.UnitsDeducted != 0 {
		t.Errorf("end = %+v", res.End)
	}
	got := testutil.ReloadSession(t, env.db, sess.ID)
	if got.EndReason != domain.EndReasonQuotaExhausted || got.SessionsUsed != 3 {
		t.Errorf("session = %s used=%d", got.EndReason, got.SessionsUsed)
	}
	if sub := testutil.ReloadSubscription(t, env.db, patient.ID); sub.TextSessionsRemaining != 0 {
		t.Errorf("remaining = %d, want 0", sub.TextSessionsRemaining)
	}
	if w := testutil.ReloadWallet(t, env.db, doctor.ID); w.Balance != 4000_00 {
		t.Errorf("doctor paid %d, want one fee", w.Balance)
	}

	// Further sweeps leave the closed session alone.
	res, err = env.payments.ApplyAutoDeduction(ctx, sess.ID)
	if err != nil || res.NewUnits != 0 || res.AutoEnded {
		t.Errorf("sweep after end = %+v, %v", res, err)
	}
}
