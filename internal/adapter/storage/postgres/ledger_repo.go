package postgres

import (
	"context"
	"fmt"

	"depositgateway/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// LedgerRepo implements ports.LedgerRepository.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Insert appends a ledger entry. The (wallet_id, reference) unique
// constraint is the sole idempotency primitive: ON CONFLICT DO NOTHING
// means a repeated reference leaves inserted=false instead of erroring.
func (r *LedgerRepo) Insert(ctx context.Context, tx pgx.Tx, entry *domain.WalletLedgerEntry) (bool, error) {
	query := `INSERT INTO wallet_ledger_entries (id, wallet_id, direction, amount, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (wallet_id, reference) DO NOTHING`

	tag, err := tx.Exec(ctx, query,
		entry.ID, entry.WalletID, string(entry.Direction), entry.Amount, entry.Reference, entry.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert ledger entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
