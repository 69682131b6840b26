package ports

import (
	"context"
	"time"

	"depositgateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WalletRepository defines persistence operations for wallet accounts.
// Methods accepting pgx.Tx are used inside transaction blocks for
// pessimistic locking (FOR UPDATE).
type WalletRepository interface {
	// GetOrCreateForUpdate returns the wallet for userId, creating it with a
	// zero balance if absent, locked FOR UPDATE. Must be called inside tx.
	GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, userID string, currency string) (*domain.WalletAccount, error)
	GetByUserID(ctx context.Context, userID string) (*domain.WalletAccount, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, newBalance decimal.Decimal) error
}

// LedgerRepository defines persistence for append-only wallet ledger entries.
type LedgerRepository interface {
	// Insert attempts to insert the entry. The (walletId, reference) unique
	// constraint is the sole idempotency primitive: if a row with the same
	// key already exists, Insert returns inserted=false and does not error.
	Insert(ctx context.Context, tx pgx.Tx, entry *domain.WalletLedgerEntry) (inserted bool, err error)
}

// PaymentTransactionListParams holds filter + pagination for listing deposits.
type PaymentTransactionListParams struct {
	UserID   string
	Page     int
	PageSize int
}

// PaymentTransactionRepository persists PaymentTransaction rows and drives
// their state machine. The narrow transition methods enforce the
// transition table themselves — they are the only way a transaction's
// status ever changes.
type PaymentTransactionRepository interface {
	Create(ctx context.Context, userID string, provider domain.Provider, amount decimal.Decimal, currency string) (*domain.PaymentTransaction, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.PaymentTransaction, error)
	ListByUser(ctx context.Context, params PaymentTransactionListParams) ([]domain.PaymentTransaction, int64, error)

	// MarkConfirmed transitions PENDING->CONFIRMED, stamping creditedAt and
	// providerTxnId. Idempotent: re-issuing on an already-CONFIRMED row is a
	// no-op that still returns the row. Any other current status is
	// domain.ErrInvalidStateTransition.
	MarkConfirmed(ctx context.Context, tx pgx.Tx, id uuid.UUID, providerTxnID string) (*domain.PaymentTransaction, error)
	// MarkFailed transitions PENDING->FAILED. Allowed only from PENDING.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (*domain.PaymentTransaction, error)
	// MarkExpired transitions PENDING->EXPIRED. Allowed only from PENDING.
	MarkExpired(ctx context.Context, id uuid.UUID) (*domain.PaymentTransaction, error)
	// ListPendingOlderThan returns PENDING rows created before cutoff, for
	// the reconciliation sweep.
	ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]domain.PaymentTransaction, error)
}

// AuditRepository persists append-only audit entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}
