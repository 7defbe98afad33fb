package domain

const (
	RolePatient = "PATIENT"
	RoleDoctor  = "DOCTOR"
	RoleAdmin   = "ADMIN"
)

const (
	CurrencyMWK = "MWK"
	CurrencyUSD = "USD"
)

// CountryMalawi is the only country paid out in kwacha and the only one offered mobile money.
const CountryMalawi = "malawi"

const (
	TxnTypeCredit = "credit"
	TxnTypeDebit  = "debit"
)

const (
	TxnStatusCompleted = "completed"
	TxnStatusReversed  = "reversed"
)

const (
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodMobileMoney  = "mobile_money"
)

// Session event names pushed over /ws/sessions.
const (
	EventSessionRequested = "session.requested"
	EventSessionAccepted  = "session.accepted"
	EventSessionActivated = "session.activated"
	EventSessionEnded     = "session.ended"
	EventSessionExpired   = "session.expired"
	EventSessionCancelled = "session.cancelled"
)
