package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"depositgateway/internal/core/domain"
	"depositgateway/internal/core/ports"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// TransactionRepo implements ports.PaymentTransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

const transactionColumnList = `id, user_id, provider, amount, currency, status, provider_transaction_id, created_at, updated_at, credited_at`

func (r *TransactionRepo) scanTransaction(row pgx.Row) (*domain.PaymentTransaction, error) {
	t := &domain.PaymentTransaction{}
	err := row.Scan(
		&t.ID, &t.UserID, &t.Provider, &t.Amount, &t.Currency, &t.Status,
		&t.ProviderTransactionID, &t.CreatedAt, &t.UpdatedAt, &t.CreditedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return t, nil
}

// Create inserts a new PENDING deposit transaction.
func (r *TransactionRepo) Create(ctx context.Context, userID string, provider domain.Provider, amount decimal.Decimal, currency string) (*domain.PaymentTransaction, error) {
	now := time.Now().UTC()
	t := &domain.PaymentTransaction{
		ID:        uuid.New(),
		UserID:    userID,
		Provider:  provider,
		Amount:    amount,
		Currency:  currency,
		Status:    domain.TransactionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `INSERT INTO payment_transactions (id, user_id, provider, amount, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.pool.Exec(ctx, query, t.ID, t.UserID, string(t.Provider), t.Amount, t.Currency, string(t.Status), t.CreatedAt, t.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

// FindByID fetches a transaction by UUID.
func (r *TransactionRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumnList + ` FROM payment_transactions WHERE id = $1`
	return r.scanTransaction(r.pool.QueryRow(ctx, query, id))
}

// ListByUser returns a page of userId's deposits, newest first, built with
// squirrel since the filter set grows with pagination/sorting options.
func (r *TransactionRepo) ListByUser(ctx context.Context, params ports.PaymentTransactionListParams) ([]domain.PaymentTransaction, int64, error) {
	page, pageSize := params.Page, params.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	countBuilder := sqrl.Select("COUNT(*)").
		From("payment_transactions").
		Where(sqrl.Eq{"user_id": params.UserID}).
		PlaceholderFormat(sqrl.Dollar)

	countQuery, countArgs, err := countBuilder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}

	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	dataBuilder := sqrl.Select(
		"id", "user_id", "provider", "amount", "currency", "status", "provider_transaction_id", "created_at", "updated_at", "credited_at",
	).
		From("payment_transactions").
		Where(sqrl.Eq{"user_id": params.UserID}).
		OrderBy("created_at DESC").
		Limit(uint64(pageSize)).
		Offset(uint64((page - 1) * pageSize)).
		PlaceholderFormat(sqrl.Dollar)

	dataQuery, dataArgs, err := dataBuilder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.pool.Query(ctx, dataQuery, dataArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.PaymentTransaction
	for rows.Next() {
		var t domain.PaymentTransaction
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Provider, &t.Amount, &t.Currency, &t.Status,
			&t.ProviderTransactionID, &t.CreatedAt, &t.UpdatedAt, &t.CreditedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, total, nil
}

// MarkConfirmed transitions PENDING->CONFIRMED. The row is first read
// under SELECT ... FOR UPDATE: an already-CONFIRMED row is returned as is
// (idempotent replay), any other non-PENDING state is an invalid
// transition, and the UPDATE's WHERE clause only matches a PENDING row.
func (r *TransactionRepo) MarkConfirmed(ctx context.Context, tx pgx.Tx, id uuid.UUID, providerTxnID string) (*domain.PaymentTransaction, error) {
	existing, err := r.findByIDTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("transaction not found: %s", id)
	}
	if existing.Status == domain.TransactionStatusConfirmed {
		return existing, nil
	}
	if existing.Status != domain.TransactionStatusPending {
		return nil, domain.ErrInvalidStateTransition
	}

	now := time.Now().UTC()
	query := `UPDATE payment_transactions
		SET status = $1, provider_transaction_id = $2, credited_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5`
	tag, err := tx.Exec(ctx, query, string(domain.TransactionStatusConfirmed), providerTxnID, now, id, string(domain.TransactionStatusPending))
	if err != nil {
		return nil, fmt.Errorf("mark confirmed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrInvalidStateTransition
	}

	return r.findByIDTx(ctx, tx, id)
}

// MarkFailed transitions PENDING->FAILED.
func (r *TransactionRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (*domain.PaymentTransaction, error) {
	return r.markTerminal(ctx, id, domain.TransactionStatusFailed)
}

// MarkExpired transitions PENDING->EXPIRED.
func (r *TransactionRepo) MarkExpired(ctx context.Context, id uuid.UUID) (*domain.PaymentTransaction, error) {
	return r.markTerminal(ctx, id, domain.TransactionStatusExpired)
}

func (r *TransactionRepo) markTerminal(ctx context.Context, id uuid.UUID, to domain.TransactionStatus) (*domain.PaymentTransaction, error) {
	now := time.Now().UTC()
	query := `UPDATE payment_transactions SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	tag, err := r.pool.Exec(ctx, query, string(to), now, id, string(domain.TransactionStatusPending))
	if err != nil {
		return nil, fmt.Errorf("mark %s: %w", to, err)
	}
	if tag.RowsAffected() == 0 {
		existing, findErr := r.FindByID(ctx, id)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, fmt.Errorf("transaction not found: %s", id)
		}
		if existing.Status == to {
			return existing, nil
		}
		return nil, domain.ErrInvalidStateTransition
	}
	return r.FindByID(ctx, id)
}

// ListPendingOlderThan returns PENDING rows created before cutoff.
func (r *TransactionRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]domain.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumnList + ` FROM payment_transactions WHERE status = $1 AND created_at < $2`
	rows, err := r.pool.Query(ctx, query, string(domain.TransactionStatusPending), cutoff)
	if err != nil {
		return nil, fmt.Errorf("list pending older than: %w", err)
	}
	defer rows.Close()

	var txns []domain.PaymentTransaction
	for rows.Next() {
		var t domain.PaymentTransaction
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Provider, &t.Amount, &t.Currency, &t.Status,
			&t.ProviderTransactionID, &t.CreatedAt, &t.UpdatedAt, &t.CreditedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, nil
}

func (r *TransactionRepo) findByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumnList + ` FROM payment_transactions WHERE id = $1 FOR UPDATE`
	return r.scanTransaction(tx.QueryRow(ctx, query, id))
}
