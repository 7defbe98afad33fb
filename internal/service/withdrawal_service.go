package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"telehealth/config"
	"telehealth/internal/clock"
	"telehealth/internal/domain"
	"telehealth/internal/models"
	"telehealth/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// WithdrawalInput is a doctor's payout request. Amount is in minor units of the wallet currency.
type WithdrawalInput struct {
	Amount         int64  `json:"amount" binding:"required,min=1"`
	PaymentMethod  string `json:"payment_method" binding:"required,payment_method"`
	BankName       string `json:"bank_name"`
	AccountNumber  string `json:"account_number"`
	AccountName    string `json:"account_name"`
	MobileProvider string `json:"mobile_provider"`
	MobileNumber   string `json:"mobile_number"`
}

type WithdrawalService struct {
	db     *gorm.DB
	clock  clock.Clock
	cfg    config.WithdrawalConfig
	ledger *WalletLedger
}

func NewWithdrawalService(db *gorm.DB, clk clock.Clock, cfg config.WithdrawalConfig, ledger *WalletLedger) *WithdrawalService {
	return &WithdrawalService{db: db, clock: clk, cfg: cfg, ledger: ledger}
}

// RequestWithdrawal holds the amount in the wallet and files a pending request.
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, doctorID uint, in WithdrawalInput) (*models.WithdrawalRequest, error) {
	if s.cfg.MinAmount > 0 && in.Amount < s.cfg.MinAmount {
		return nil, ErrWithdrawalBelowMinimum
	}
	if s.cfg.MaxAmount > 0 && in.Amount > s.cfg.MaxAmount {
		return nil, ErrWithdrawalAboveMaximum
	}

	var req *models.WithdrawalRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doctor, err := repository.NewUserRepository(tx).GetByID(doctorID)
		if err != nil || !doctor.IsDoctor() {
			return ErrInvalidParticipant
		}
		req = &models.WithdrawalRequest{
			DoctorID:      doctorID,
			Amount:        in.Amount,
			Status:        domain.WithdrawalPending,
			PaymentMethod: in.PaymentMethod,
			Reference:     "WD-" + strings.ToUpper(uuid.New().String()),
		}
		if err := applyPaymentDetails(req, in, doctor.Country); err != nil {
			return err
		}

		w, err := repository.NewWalletRepository(tx).GetByDoctorIDForUpdate(doctorID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInsufficientBalance
		}
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}
		if w.Balance < in.Amount {
			return ErrInsufficientBalance
		}
		req.Currency = w.Currency
		if err := repository.NewWithdrawalRepository(tx).Create(req); err != nil {
			return fmt.Errorf("create withdrawal: %w", err)
		}
		return s.ledger.HoldWithdrawal(tx, w, req)
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"withdrawal_id": req.ID,
		"doctor_id":     doctorID,
		"amount":        req.Amount,
		"method":        req.PaymentMethod,
	}).Info("withdrawal requested")
	return req, nil
}

var nonDigits = regexp.MustCompile(`\D`)

// normalizeMobile returns a Malawi number in 265XXXXXXXXX form, or "" if it is not one.
func normalizeMobile(s string) string {
	s = nonDigits.ReplaceAllString(s, "")
	if s == "" {
		return ""
	}
	if strings.HasPrefix(s, "0") {
		s = "265" + s[1:]
	} else if !strings.HasPrefix(s, "265") {
		s = "265" + s
	}
	if len(s) != 12 {
		return ""
	}
	return s
}

func applyPaymentDetails(req *models.WithdrawalRequest, in WithdrawalInput, country string) error {
	switch in.PaymentMethod {
	case domain.PaymentMethodBankTransfer:
		if strings.TrimSpace(in.BankName) == "" || strings.TrimSpace(in.AccountNumber) == "" || strings.TrimSpace(in.AccountName) == "" {
			return ErrMissingPaymentDetails
		}
		req.BankName = strings.TrimSpace(in.BankName)
		req.AccountNumber = strings.TrimSpace(in.AccountNumber)
		req.AccountName = strings.TrimSpace(in.AccountName)
	case domain.PaymentMethodMobileMoney:
		if !strings.EqualFold(country, domain.CountryMalawi) {
			return ErrInvalidPaymentMethod
		}
		phone := normalizeMobile(in.MobileNumber)
		if strings.TrimSpace(in.MobileProvider) == "" || phone == "" {
			return ErrMissingPaymentDetails
		}
		req.MobileProvider = strings.TrimSpace(in.MobileProvider)
		req.MobileNumber = phone
	default:
		return ErrInvalidPaymentMethod
	}
	return nil
}

func (s *WithdrawalService) Approve(ctx context.Context, adminID, id uint) (*models.WithdrawalRequest, error) {
	req, err := s.transition(ctx, id, func(tx *gorm.DB, req *models.WithdrawalRequest) error {
		if !req.Status.CanBeApproved() {
			return ErrInvalidStateTransition
		}
		now := s.clock.Now()
		req.Status = domain.WithdrawalApproved
		req.ApprovedBy = &adminID
		req.ApprovedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"withdrawal_id": id, "admin_id": adminID}).Info("withdrawal approved")
	return req, nil
}

// Reject returns the held amount to the wallet.
func (s *WithdrawalService) Reject(ctx context.Context, adminID, id uint, reason string) (*models.WithdrawalRequest, error) {
	req, err := s.transition(ctx, id, func(tx *gorm.DB, req *models.WithdrawalRequest) error {
		if !req.Status.CanBeRejected() {
			return ErrInvalidStateTransition
		}
		if err := s.ledger.ReleaseWithdrawal(tx, req, reason); err != nil {
			return err
		}
		now := s.clock.Now()
		req.Status = domain.WithdrawalRejected
		req.RejectedBy = &adminID
		req.RejectedAt = &now
		req.RejectionReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"withdrawal_id": id,
		"admin_id":      adminID,
		"amount":        req.Amount,
	}).Info("withdrawal rejected")
	return req, nil
}

func (s *WithdrawalService) MarkAsPaid(ctx context.Context, adminID, id uint, paymentRef string) (*models.WithdrawalRequest, error) {
	req, err := s.transition(ctx, id, func(tx *gorm.DB, req *models.WithdrawalRequest) error {
		if !req.Status.CanBeMarkedAsPaid() {
			return ErrInvalidStateTransition
		}
		now := s.clock.Now()
		req.Status = domain.WithdrawalPaid
		req.PaidBy = &adminID
		req.PaidAt = &now
		req.PaymentRef = paymentRef
		return nil
	})
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"withdrawal_id": id, "admin_id": adminID}).Info("withdrawal paid")
	return req, nil
}

// transition locks the doctor's wallet before the request row, the same order a new
// request takes them in.
func (s *WithdrawalService) transition(ctx context.Context, id uint, apply func(tx *gorm.DB, req *models.WithdrawalRequest) error) (*models.WithdrawalRequest, error) {
	var req *models.WithdrawalRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		withdrawals := repository.NewWithdrawalRepository(tx)
		peek, err := withdrawals.GetByID(id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrWithdrawalNotFound
		}
		if err != nil {
			return err
		}
		if _, err := repository.NewWalletRepository(tx).GetByDoctorIDForUpdate(peek.DoctorID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("lock wallet: %w", err)
		}
		req, err = withdrawals.GetByIDForUpdate(id)
		if err != nil {
			return err
		}
		if err := apply(tx, req); err != nil {
			return err
		}
		return withdrawals.Update(req)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *WithdrawalService) ListForDoctor(ctx context.Context, doctorID uint, page, limit int) ([]models.WithdrawalRequest, int64, error) {
	page, limit = normalizePage(page, limit)
	return repository.NewWithdrawalRepository(s.db.WithContext(ctx)).ListByDoctorID(doctorID, page, limit)
}

func (s *WithdrawalService) List(ctx context.Context, status string, page, limit int) ([]models.WithdrawalRequest, int64, error) {
	if status != "" {
		if _, err := domain.ParseWithdrawalStatus(status); err != nil {
			return nil, 0, err
		}
	}
	page, limit = normalizePage(page, limit)
	return repository.NewAdminRepository(s.db.WithContext(ctx)).ListWithdrawals(status, page, limit)
}

func (s *WithdrawalService) Statistics(ctx context.Context) (*repository.WithdrawalStats, error) {
	return repository.NewAdminRepository(s.db.WithContext(ctx)).WithdrawalStatistics()
}
