package service

import (
	"context"
	"fmt"
	"time"

	"depositgateway/internal/core/domain"
	"depositgateway/internal/core/ports"
	"depositgateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// walletLedger implements ports.WalletLedger (C3).
type walletLedger struct {
	wallets    ports.WalletRepository
	ledger     ports.LedgerRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewWalletLedger creates the wallet ledger service.
func NewWalletLedger(wallets ports.WalletRepository, ledger ports.LedgerRepository, transactor ports.DBTransactor, log zerolog.Logger) ports.WalletLedger {
	return &walletLedger{wallets: wallets, ledger: ledger, transactor: transactor, log: log}
}

// Credit opens its own transaction and delegates to the same locked
// sequence CreditTx uses. This is the entry point for callers with no
// transaction of their own; the webhook and retry paths use CreditTx.
func (l *walletLedger) Credit(ctx context.Context, userID string, amount decimal.Decimal, currency string, reference string) (ports.CreditResult, error) {
	tx, err := l.transactor.Begin(ctx)
	if err != nil {
		return ports.CreditResult{}, apperror.Internal(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	result, err := l.creditLocked(ctx, tx, userID, amount, currency, reference)
	if err != nil {
		return ports.CreditResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return ports.CreditResult{}, apperror.Internal(fmt.Errorf("commit tx: %w", err))
	}
	return result, nil
}

// CreditTx runs the same locked sequence as Credit inside a transaction the
// caller already opened and will commit itself, so the credit lands
// atomically with whatever else the caller writes in that transaction.
func (l *walletLedger) CreditTx(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal, currency string, reference string) (ports.CreditResult, error) {
	return l.creditLocked(ctx, tx, userID, amount, currency, reference)
}

// creditLocked locks the user's wallet FOR UPDATE, inserts a ledger entry
// keyed on reference, and bumps the balance, all within tx. The
// (walletId, reference) uniqueness constraint on the ledger table is the
// only thing standing between a replayed reference and a double credit:
// if the insert reports a conflict, the credit has already happened and
// creditLocked returns the current balance with Credited=false, without
// touching the balance again. The caller owns tx's commit/rollback.
func (l *walletLedger) creditLocked(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal, currency string, reference string) (ports.CreditResult, error) {
	if amount.Sign() <= 0 {
		return ports.CreditResult{}, apperror.ErrInvalidAmount()
	}

	wallet, err := l.wallets.GetOrCreateForUpdate(ctx, tx, userID, currency)
	if err != nil {
		return ports.CreditResult{}, apperror.Internal(fmt.Errorf("lock wallet: %w", err))
	}

	entry := &domain.WalletLedgerEntry{
		ID:        uuid.New(),
		WalletID:  wallet.ID,
		Direction: domain.LedgerDirectionCredit,
		Amount:    amount,
		Reference: reference,
		CreatedAt: time.Now().UTC(),
	}

	inserted, err := l.ledger.Insert(ctx, tx, entry)
	if err != nil {
		return ports.CreditResult{}, apperror.Internal(fmt.Errorf("insert ledger entry: %w", err))
	}
	if !inserted {
		l.log.Info().Str("reference", reference).Msg("wallet credit already applied for this reference, skipping")
		return ports.CreditResult{Balance: wallet.Balance, Credited: false}, nil
	}

	newBalance := wallet.Balance.Add(amount)
	if err := l.wallets.UpdateBalance(ctx, tx, wallet.ID, newBalance); err != nil {
		return ports.CreditResult{}, apperror.Internal(fmt.Errorf("update balance: %w", err))
	}

	l.log.Info().
		Str("user_id", userID).
		Str("reference", reference).
		Str("amount", amount.String()).
		Str("new_balance", newBalance.String()).
		Msg("wallet credited")

	return ports.CreditResult{Balance: newBalance, Credited: true}, nil
}
