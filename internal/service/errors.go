package service

import (
	"errors"

	"telehealth/internal/repository"
)

// Precondition failures. Handlers map these to 4xx responses with a stable code.
var (
	ErrDoctorUnavailable      = errors.New("doctor is not available")
	ErrDoctorBusy             = errors.New("doctor is in another session")
	ErrPatientBusy            = errors.New("patient already has an open session")
	ErrQuotaExhausted         = errors.New("no sessions remaining for this session type")
	ErrNoActiveSubscription   = errors.New("no active subscription")
	ErrSubscriptionInactive   = errors.New("subscription inactive")
	ErrInsufficientBalance    = repository.ErrInsufficientBalance
	ErrSessionNotFound        = errors.New("session not found")
	ErrSessionNotActive       = errors.New("session is not active")
	ErrForbidden              = errors.New("not a participant of this session")
	ErrResponseDeadlinePassed = errors.New("doctor response deadline has passed")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInvalidSchedule        = errors.New("scheduled time must be in the future")
	ErrInvalidParticipant     = errors.New("invalid patient or doctor")
)

var (
	ErrWalletNotFound         = errors.New("wallet not found")
	ErrWithdrawalNotFound     = errors.New("withdrawal request not found")
	ErrWithdrawalBelowMinimum = errors.New("amount is below the minimum withdrawal")
	ErrWithdrawalAboveMaximum = errors.New("amount is above the maximum withdrawal")
	ErrInvalidPaymentMethod   = errors.New("payment method not available")
	ErrMissingPaymentDetails  = errors.New("payment details incomplete")
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotTaken           = errors.New("doctor already has an appointment at that time")
	ErrInvalidFunding      = errors.New("invalid funding request")
)
