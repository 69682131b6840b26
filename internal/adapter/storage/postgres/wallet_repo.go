package postgres

import (
	"context"
	"errors"
	"fmt"

	"depositgateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

const walletColumnList = "id, user_id, balance, currency, updated_at"

func (r *WalletRepo) scanWallet(row pgx.Row) (*domain.WalletAccount, error) {
	w := &domain.WalletAccount{}
	err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.Currency, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan wallet account: %w", err)
	}
	return w, nil
}

// GetOrCreateForUpdate returns the caller's wallet, locked FOR UPDATE,
// creating it with a zero balance first if it does not yet exist. Must
// be called inside tx.
func (r *WalletRepo) GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, userID string, currency string) (*domain.WalletAccount, error) {
	query := `SELECT ` + walletColumnList + ` FROM wallet_accounts WHERE user_id = $1 FOR UPDATE`

	w, err := r.scanWallet(tx.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, err
	}
	if w != nil {
		return w, nil
	}

	insert := `INSERT INTO wallet_accounts (id, user_id, balance, currency, updated_at)
		VALUES ($1, $2, 0, $3, NOW())
		ON CONFLICT (user_id) DO NOTHING`
	if _, err := tx.Exec(ctx, insert, uuid.New(), userID, currency); err != nil {
		return nil, fmt.Errorf("insert wallet account: %w", err)
	}

	w, err = r.scanWallet(tx.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("wallet account for user %s missing after insert", userID)
	}
	return w, nil
}

// GetByUserID fetches a wallet by owning user, without locking.
func (r *WalletRepo) GetByUserID(ctx context.Context, userID string) (*domain.WalletAccount, error) {
	query := `SELECT ` + walletColumnList + ` FROM wallet_accounts WHERE user_id = $1`
	return r.scanWallet(r.pool.QueryRow(ctx, query, userID))
}

// UpdateBalance sets a wallet's balance within tx.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, newBalance decimal.Decimal) error {
	query := `UPDATE wallet_accounts SET balance = $1, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, newBalance, walletID)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", walletID)
	}
	return nil
}
