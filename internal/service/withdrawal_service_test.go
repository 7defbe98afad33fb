package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"telehealth/internal/domain"
	"telehealth/internal/models"
	"telehealth/internal/testutil"
)

func bankInput(amount int64) WithdrawalInput {
	return WithdrawalInput{
		Amount:        amount,
		PaymentMethod: domain.PaymentMethodBankTransfer,
		BankName:      "National Bank",
		AccountNumber: "100200300",
		AccountName:   "Doc Tor",
	}
}

func TestRequestWithdrawalHoldsFunds(t *testing.T) {
	env := newTestEnv(t)
	doctor := testutil.CreateDoctor(t, env.db, "malawi", true)
	testutil.CreateWallet(t, env.db, doctor.ID, 50000_00, domain.CurrencyMWK)

	req, err := env.withdrawals.RequestWithdrawal(context.Background(), doctor.ID, bankInput(20000_00))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if req.Status != domain.WithdrawalPending || !strings.HasPrefix(req.Reference, "WD-") || req.Currency != domain.CurrencyMWK {
		t.Errorf("request = %+v", req)
	}
	w := testutil.ReloadWallet(t, env.db, doctor.ID)
	if w.Balance != 30000_00 || w.TotalWithdrawn != 20000_00 || w.TotalEarned != 50000_00 {
		t.Errorf("wallet = %+v", w)
	}
	if err := w.CheckBalance(); err != nil {
		t.Error(err)
	}
	var txn models.WalletTransaction
	if err := env.db.Where("withdrawal_id = ?", req.ID).First(&txn).Error; err != nil {
		t.Fatalf("hold transaction: %v", err)
	}
	if txn.Type != domain.TxnTypeDebit || txn.Amount != 20000_00 {
		t.Errorf("hold transaction = %+v", txn)
	}
}

func TestRequestWithdrawalValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	malawi := testutil.CreateDoctor(t, env.db, "malawi", true)
	kenya := testutil.CreateDoctor(t, env.db, "kenya", true)
	broke := testutil.CreateDoctor(t, env.db, "malawi", true)
	testutil.CreateWallet(t, env.db, malawi.ID, 5000_00, domain.CurrencyMWK)
	testutil.CreateWallet(t, env.db, kenya.ID, 5000_00, domain.CurrencyUSD)

	mobile := WithdrawalInput{
		Amount:         2000_00,
		PaymentMethod:  domain.PaymentMethodMobileMoney,
		MobileProvider: "Airtel",
		MobileNumber:   "0991 234 567",
	}
	missingBank := bankInput(2000_00)
	missingBank.AccountName = " "

	tests := []struct {
		name     string
		doctorID uint
		in       WithdrawalInput
		want     error
	}{
		{"over balance", malawi.ID, bankInput(6000_00), ErrInsufficientBalance},
		{"no wallet", broke.ID, bankInput(2000_00), ErrInsufficientBalance},
		{"below minimum", malawi.ID, bankInput(999_00), ErrWithdrawalBelowMinimum},
		{"above maximum", malawi.ID, bankInput(1000001_00), ErrWithdrawalAboveMaximum},
		{"mobile outside malawi", kenya.ID, mobile, ErrInvalidPaymentMethod},
		{"missing bank details", malawi.ID, missingBank, ErrMissingPaymentDetails},
		{"unknown method", malawi.ID, WithdrawalInput{Amount: 2000_00, PaymentMethod: "cheque"}, ErrInvalidPaymentMethod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.withdrawals.RequestWithdrawal(ctx, tt.doctorID, tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if w := testutil.ReloadWallet(t, env.db, malawi.ID); w.Balance != 5000_00 || w.TotalWithdrawn != 0 {
		t.Errorf("rejected requests changed the wallet: %+v", w)
	}

	req, err := env.withdrawals.RequestWithdrawal(ctx, malawi.ID, mobile)
	if err != nil {
		t.Fatalf("mobile money: %v", err)
	}
	if req.MobileNumber != "265991234567" {
		t.Errorf("mobile number = %q", req.MobileNumber)
	}
}

func TestWithdrawalApproveAndPay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor := testutil.CreateDoctor(t, env.db, "malawi", true)
	admin := testutil.CreateAdmin(t, env.db)
	testutil.CreateWallet(t, env.db, doctor.ID, 10000_00, domain.CurrencyMWK)
	req, err := env.withdrawals.RequestWithdrawal(ctx, doctor.ID, bankInput(3000_00))
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	if _, err := env.withdrawals.MarkAsPaid(ctx, admin.ID, req.ID, "BANK-1"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("pay pending err = %v", err)
	}
	approved, err := env.withdrawals.Approve(ctx, admin.ID, req.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != domain.WithdrawalApproved || approved.ApprovedBy == nil || *approved.ApprovedBy != admin.ID {
		t.Errorf("approved = %+v", approved)
	}
	if _, err := env.withdrawals.Approve(ctx, admin.ID, req.ID); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("double approve err = %v", err)
	}
	paid, err := env.withdrawals.MarkAsPaid(ctx, admin.ID, req.ID, "BANK-1")
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != domain.WithdrawalPaid || paid.PaymentRef != "BANK-1" || paid.PaidAt == nil {
		t.Errorf("paid = %+v", paid)
	}
	if _, err := env.withdrawals.Reject(ctx, admin.ID, req.ID, "late"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Errorf("reject paid err = %v", err)
	}
	if w := testutil.ReloadWallet(t, env.db, doctor.ID); w.Balance != 7000_00 || w.TotalWithdrawn != 3000_00 {
		t.Errorf("wallet = %+v", w)
	}
	if _, err := env.withdrawals.Approve(ctx, admin.ID, 9999); !errors.Is(err, ErrWithdrawalNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestWithdrawalRejectReturnsHold(t *testing.T) {
	for _, approveFirst := range []bool{false, true} {
		env := newTestEnv(t)
		ctx := context.Background()
		doctor := testutil.CreateDoctor(t, env.db, "malawi", true)
		admin := testutil.CreateAdmin(t, env.db)
		testutil.CreateWallet(t, env.db, doctor.ID, 10000_00, domain.CurrencyMWK)
		req, err := env.withdrawals.RequestWithdrawal(ctx, doctor.ID, bankInput(4000_00))
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		if approveFirst {
			if _, err := env.withdrawals.Approve(ctx, admin.ID, req.ID); err != nil {
				t.Fatalf("approve: %v", err)
			}
		}
		rejected, err := env.withdrawals.Reject(ctx, admin.ID, req.ID, "wrong account")
		if err != nil {
			t.Fatalf("reject: %v", err)
		}
		if rejected.Status != domain.WithdrawalRejected || rejected.RejectionReason != "wrong account" {
			t.Errorf("rejected = %+v", rejected)
		}
		w := testutil.ReloadWallet(t, env.db, doctor.ID)
		if w.Balance != 10000_00 || w.TotalWithdrawn != 0 || w.TotalEarned != 10000_00 {
			t.Errorf("approveFirst=%v wallet = %+v", approveFirst, w)
		}
		var reversals int64
		env.db.Model(&models.WalletTransaction{}).
			Where("withdrawal_id = ? AND status = ?", req.ID, domain.TxnStatusReversed).
			Count(&reversals)
		if reversals != 1 {
			t.Errorf("reversal rows = %d, want 1", reversals)
		}
	}
}

func TestWithdrawalListsAndStatistics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	doctor := testutil.CreateDoctor(t, env.db, "malawi", true)
	admin := testutil.CreateAdmin(t, env.db)
	testutil.CreateWallet(t, env.db, doctor.ID, 20000_00, domain.CurrencyMWK)
	first, err := env.withdrawals.RequestWithdrawal(ctx, doctor.ID, bankInput(2000_00))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := env.withdrawals.RequestWithdrawal(ctx, doctor.ID, bankInput(3000_00)); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := env.withdrawals.Approve(ctx, admin.ID, first.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	mine, total, err := env.withdrawals.ListForDoctor(ctx, doctor.ID, 1, 10)
	if err != nil || total != 2 || len(mine) != 2 {
		t.Fatalf("doctor list = %d/%d, %v", len(mine), total, err)
	}
	pending, total, err := env.withdrawals.List(ctx, "pending", 0, 0)
	if err != nil || total != 1 || pending[0].Amount != 3000_00 {
		t.Fatalf("pending list = %+v, %d, %v", pending, total, err)
	}
	if _, _, err := env.withdrawals.List(ctx, "lost", 1, 10); err == nil {
		t.Error("expected error for unknown status")
	}
	stats, err := env.withdrawals.Statistics(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalRequests != 2 || stats.PendingAmount != 3000_00 || stats.ApprovedCount != 1 || stats.ApprovedAmount != 2000_00 {
		t.Errorf("stats = %+v", stats)
	}
}
