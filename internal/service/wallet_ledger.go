package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"telehealth/internal/billing"
	"telehealth/internal/domain"
	"telehealth/internal/models"
	"telehealth/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WalletLedger applies doctor wallet mutations together with their ledger rows.
// Every method runs inside the caller's transaction.
type WalletLedger struct{}

func NewWalletLedger() *WalletLedger {
	return &WalletLedger{}
}

// CreditSessionFee pays the flat fee for one finished session, priced in the wallet's
// currency. A wallet opened here takes the currency of the doctor's country.
// Returns an error wrapping billing.ErrNoRate when that currency has no rate.
func (l *WalletLedger) CreditSessionFee(tx *gorm.DB, doctorID uint, country string, rates billing.RateTable, s *models.Session, charge billing.Charge) (*models.WalletTransaction, error) {
	repo := repository.NewWalletRepository(tx)
	w, err := repo.GetOrCreateForUpdate(doctorID, billing.CurrencyForCountry(country))
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	currency := w.Currency
	if currency == "" {
		currency = billing.CurrencyForCountry(country)
	}
	fee, err := rates.FeeInCurrency(s.Media, currency)
	if err != nil {
		return nil, err
	}
	if want := billing.CurrencyForCountry(country); want != currency {
		logrus.WithFields(logrus.Fields{
			"doctor_id":       doctorID,
			"wallet_currency": currency,
			"country":         country,
		}).Warn("country currency differs from wallet currency, paying in wallet currency")
	}
	if err := repo.Credit(w, fee.Amount); err != nil {
		return nil, fmt.Errorf("credit wallet: %w", err)
	}
	sessionID := s.ID
	txn := &models.WalletTransaction{
		DoctorID:     doctorID,
		Type:         domain.TxnTypeCredit,
		Amount:       fee.Amount,
		Currency:     fee.Currency,
		Description:  fmt.Sprintf("Payment for %s session #%d", s.Media, s.ID),
		SessionType:  string(s.Media),
		SessionID:    &sessionID,
		SessionTable: s.Media.SessionTable(),
		Status:       domain.TxnStatusCompleted,
		Metadata: jsonMeta(map[string]interface{}{
			"patient_id":      s.PatientID,
			"elapsed_minutes": charge.ElapsedMinutes,
			"units_deducted":  charge.UnitsToDeduct,
		}),
	}
	if err := repo.CreateTransaction(txn); err != nil {
		return nil, fmt.Errorf("record wallet transaction: %w", err)
	}
	return txn, nil
}

// HoldWithdrawal debits the wallet for a new withdrawal request.
func (l *WalletLedger) HoldWithdrawal(tx *gorm.DB, w *models.Wallet, req *models.WithdrawalRequest) error {
	repo := repository.NewWalletRepository(tx)
	if err := repo.Debit(w, req.Amount); err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			return ErrInsufficientBalance
		}
		return fmt.Errorf("debit wallet: %w", err)
	}
	id := req.ID
	return repo.CreateTransaction(&models.WalletTransaction{
		DoctorID:     req.DoctorID,
		Type:         domain.TxnTypeDebit,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Description:  fmt.Sprintf("Withdrawal request %s", req.Reference),
		WithdrawalID: &id,
		Status:       domain.TxnStatusCompleted,
		Metadata:     jsonMeta(map[string]interface{}{"payment_method": req.PaymentMethod}),
	})
}

// ReleaseWithdrawal returns a rejected withdrawal's hold to the wallet.
func (l *WalletLedger) ReleaseWithdrawal(tx *gorm.DB, req *models.WithdrawalRequest, reason string) error {
	repo := repository.NewWalletRepository(tx)
	w, err := repo.GetByDoctorIDForUpdate(req.DoctorID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrWalletNotFound
	}
	if err != nil {
		return fmt.Errorf("lock wallet: %w", err)
	}
	if err := repo.Reverse(w, req.Amount); err != nil {
		return fmt.Errorf("reverse withdrawal: %w", err)
	}
	id := req.ID
	return repo.CreateTransaction(&models.WalletTransaction{
		DoctorID:     req.DoctorID,
		Type:         domain.TxnTypeCredit,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Description:  fmt.Sprintf("Withdrawal %s rejected, funds returned", req.Reference),
		WithdrawalID: &id,
		Status:       domain.TxnStatusReversed,
		Metadata:     jsonMeta(map[string]interface{}{"reason": reason}),
	})
}

func jsonMeta(m map[string]interface{}) datatypes.JSON {
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
