package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletAccount holds one user's running balance. Created lazily on
// first credit; never mutated except through a WalletLedgerEntry.
type WalletAccount struct {
	ID        uuid.UUID
	UserID    string
	Balance   decimal.Decimal
	Currency  string
	UpdatedAt time.Time
}

// LedgerDirection is the sign of a WalletLedgerEntry.
type LedgerDirection string

const (
	LedgerDirectionCredit LedgerDirection = "CREDIT"
	LedgerDirectionDebit  LedgerDirection = "DEBIT"
)

// WalletLedgerEntry is an immutable, append-only record of one directional
// money movement. (WalletID, Reference) is unique and is the sole
// idempotency key that makes double-credit structurally impossible.
type WalletLedgerEntry struct {
	ID        uuid.UUID
	WalletID  uuid.UUID
	Direction LedgerDirection
	Amount    decimal.Decimal
	Reference string // the causing PaymentTransaction id
	CreatedAt time.Time
}
