package domain

import "fmt"

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
	WithdrawalPaid     WithdrawalStatus = "paid"
)

func ParseWithdrawalStatus(s string) (WithdrawalStatus, error) {
	switch st := WithdrawalStatus(s); st {
	case WithdrawalPending, WithdrawalApproved, WithdrawalRejected, WithdrawalPaid:
		return st, nil
	}
	return "", fmt.Errorf("%w: withdrawal status %q", ErrUnknownValue, s)
}

func (s WithdrawalStatus) CanBeApproved() bool { return s == WithdrawalPending }
func (s WithdrawalStatus) CanBeRejected() bool { return s == WithdrawalPending || s == WithdrawalApproved }
func (s WithdrawalStatus) CanBeMarkedAsPaid() bool { return s == WithdrawalApproved }
func (s WithdrawalStatus) IsTerminal() bool { return s == WithdrawalRejected || s == WithdrawalPaid }
