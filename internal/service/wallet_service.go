package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telehealth/internal/billing"
	"telehealth/internal/clock"
	"telehealth/internal/domain"
	"telehealth/internal/models"
	"telehealth/internal/repository"

	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

// WalletView is what a doctor sees on the wallet screen.
type WalletView struct {
	Balance        int64                  `json:"balance"`
	TotalEarned    int64                  `json:"total_earned"`
	TotalWithdrawn int64                  `json:"total_withdrawn"`
	Currency       string                 `json:"currency"`
	PaymentRates   map[domain.Media]int64 `json:"payment_rates"`
}

type EarningsSummary struct {
	Currency           string                      `json:"currency"`
	TotalEarned        int64                       `json:"total_earned"`
	ThisMonth          int64                       `json:"this_month_earnings"`
	EarningsByType     []repository.EarningsByType `json:"earnings_by_type"`
	RecentTransactions []models.WalletTransaction  `json:"recent_transactions"`
}

type WalletService struct {
	db    *gorm.DB
	clock clock.Clock
	rates billing.RateTable
}

func NewWalletService(db *gorm.DB, clk clock.Clock, rates billing.RateTable) *WalletService {
	return &WalletService{db: db, clock: clk, rates: rates}
}

// walletOrEmpty returns a zero wallet in the doctor's country currency until the first credit.
func (s *WalletService) walletOrEmpty(db *gorm.DB, doctorID uint) (*models.Wallet, error) {
	w, err := repository.NewWalletRepository(db).GetByDoctorID(doctorID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	doctor, err := repository.NewUserRepository(db).GetByID(doctorID)
	if err != nil || !doctor.IsDoctor() {
		return nil, ErrWalletNotFound
	}
	return &models.Wallet{DoctorID: doctorID, Currency: billing.CurrencyForCountry(doctor.Country)}, nil
}

func (s *WalletService) GetWallet(ctx context.Context, doctorID uint) (*WalletView, error) {
	w, err := s.walletOrEmpty(s.db.WithContext(ctx), doctorID)
	if err != nil {
		return nil, err
	}
	return &WalletView{
		Balance:        w.Balance,
		TotalEarned:    w.TotalEarned,
		TotalWithdrawn: w.TotalWithdrawn,
		Currency:       w.Currency,
		PaymentRates:   s.rates.ForCurrency(w.Currency),
	}, nil
}

func (s *WalletService) Transactions(ctx context.Context, doctorID uint, txType string, page, limit int) ([]models.WalletTransaction, int64, error) {
	if txType != "" && txType != domain.TxnTypeCredit && txType != domain.TxnTypeDebit {
		return nil, 0, fmt.Errorf("%w: transaction type %q", domain.ErrUnknownValue, txType)
	}
	page, limit = normalizePage(page, limit)
	return repository.NewWalletRepository(s.db.WithContext(ctx)).ListTransactions(doctorID, txType, page, limit)
}

func (s *WalletService) EarningsSummary(ctx context.Context, doctorID uint) (*EarningsSummary, error) {
	db := s.db.WithContext(ctx)
	w, err := s.walletOrEmpty(db, doctorID)
	if err != nil {
		return nil, err
	}
	repo := repository.NewWalletRepository(db)
	byType, err := repo.EarningsByType(doctorID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	thisMonth, err := repo.SumCreditsSince(doctorID, monthStart)
	if err != nil {
		return nil, err
	}
	recent, _, err := repo.ListTransactions(doctorID, "", 1, 10)
	if err != nil {
		return nil, err
	}
	if byType == nil {
		byType = []repository.EarningsByType{}
	}
	return &EarningsSummary{
		Currency:           w.Currency,
		TotalEarned:        w.TotalEarned,
		ThisMonth:          thisMonth,
		EarningsByType:     byType,
		RecentTransactions: recent,
	}, nil
}
