package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Provider identifies a third-party payment network deposits flow through.
type Provider string

const (
	ProviderJazzCash  Provider = "JAZZCASH"
	ProviderEasyPaisa Provider = "EASYPAISA"
	ProviderSadaPay   Provider = "SADAPAY"
)

// IsValid reports whether p is one of the known providers.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderJazzCash, ProviderEasyPaisa, ProviderSadaPay:
		return true
	default:
		return false
	}
}

// TransactionStatus is the lifecycle state of a PaymentTransaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusConfirmed TransactionStatus = "CONFIRMED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
	TransactionStatusExpired   TransactionStatus = "EXPIRED"
)

// IsTerminal reports whether the status can never change again.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusConfirmed || s == TransactionStatusFailed || s == TransactionStatusExpired
}

// DefaultCurrency is used whenever a deposit request omits one.
const DefaultCurrency = "PKR"

// PaymentTransaction carries a deposit from creation through provider
// settlement to an atomic wallet credit. It is created PENDING and
// mutated only through the narrow transitions in
// ports.PaymentTransactionRepository.
type PaymentTransaction struct {
	ID                    uuid.UUID
	UserID                string
	Provider              Provider
	Amount                decimal.Decimal
	Currency              string
	Status                TransactionStatus
	ProviderTransactionID *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	CreditedAt            *time.Time
}

// IsOwnedBy reports whether caller either owns this transaction or is an admin.
func (t *PaymentTransaction) IsOwnedBy(caller Caller) bool {
	return caller.IsAdmin() || t.UserID == caller.UserID
}
