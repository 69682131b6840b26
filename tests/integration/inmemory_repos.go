package integration

import (
	"context"
	"sync"
	"time"

	"depositgateway/internal/core/domain"
	"depositgateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.Mutex
	wallets map[string]*domain.WalletAccount
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[string]*domain.WalletAccount)}
}

func (r *inMemoryWalletRepo) GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, userID string, currency string) (*domain.WalletAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.wallets[userID]; ok {
		return w, nil
	}
	w := &domain.WalletAccount{
		ID:        uuid.New(),
		UserID:    userID,
		Balance:   decimal.Zero,
		Currency:  currency,
		UpdatedAt: time.Now().UTC(),
	}
	r.wallets[userID] = w
	return w, nil
}

func (r *inMemoryWalletRepo) GetByUserID(ctx context.Context, userID string) (*domain.WalletAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[userID]
	if !ok {
		return nil, nil
	}
	return w, nil
}

func (r *inMemoryWalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, newBalance decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.wallets {
		if w.ID == walletID {
			w.Balance = newBalance
			return nil
		}
	}
	return nil
}

// --- In-Memory Ledger Repo ---

type inMemoryLedgerRepo struct {
	mu      sync.Mutex
	entries map[string]*domain.WalletLedgerEntry
}

func newInMemoryLedgerRepo() *inMemoryLedgerRepo {
	return &inMemoryLedgerRepo{entries: make(map[string]*domain.WalletLedgerEntry)}
}

func (r *inMemoryLedgerRepo) Insert(ctx context.Context, tx pgx.Tx, entry *domain.WalletLedgerEntry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entry.WalletID.String() + "|" + entry.Reference
	if _, exists := r.entries[key]; exists {
		return false, nil
	}
	r.entries[key] = entry
	return true, nil
}

func (r *inMemoryLedgerRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// --- In-Memory Transaction Repo ---

type inMemoryTransactionRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*domain.PaymentTransaction
}

func newInMemoryTransactionRepo() *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{rows: make(map[uuid.UUID]*domain.PaymentTransaction)}
}

func (r *inMemoryTransactionRepo) Create(ctx context.Context, userID string, provider domain.Provider, amount decimal.Decimal, currency string) (*domain.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	txn := &domain.PaymentTransaction{
		ID:        uuid.New(),
		UserID:    userID,
		Provider:  provider,
		Amount:    amount,
		Currency:  currency,
		Status:    domain.TransactionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.rows[txn.ID] = txn
	return txn, nil
}

func (r *inMemoryTransactionRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	txn, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *txn
	return &cp, nil
}

func (r *inMemoryTransactionRepo) ListByUser(ctx context.Context, params ports.PaymentTransactionListParams) ([]domain.PaymentTransaction, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []domain.PaymentTransaction
	for _, txn := range r.rows {
		if txn.UserID == params.UserID {
			matched = append(matched, *txn)
		}
	}
	total := int64(len(matched))
	start := (params.Page - 1) * params.PageSize
	if start >= len(matched) {
		return []domain.PaymentTransaction{}, total, nil
	}
	end := start + params.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *inMemoryTransactionRepo) MarkConfirmed(ctx context.Context, tx pgx.Tx, id uuid.UUID, providerTxnID string) (*domain.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	txn, ok := r.rows[id]
	if !ok {
		return nil, domain.ErrInvalidStateTransition
	}
	if txn.Status == domain.TransactionStatusConfirmed {
		cp := *txn
		return &cp, nil
	}
	if txn.Status != domain.TransactionStatusPending {
		return nil, domain.ErrInvalidStateTransition
	}
	now := time.Now().UTC()
	txn.Status = domain.TransactionStatusConfirmed
	txn.ProviderTransactionID = &providerTxnID
	txn.CreditedAt = &now
	txn.UpdatedAt = now
	cp := *txn
	return &cp, nil
}

func (r *inMemoryTransactionRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (*domain.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	txn, ok := r.rows[id]
	if !ok || txn.Status != domain.TransactionStatusPending {
		return nil, domain.ErrInvalidStateTransition
	}
	txn.Status = domain.TransactionStatusFailed
	txn.UpdatedAt = time.Now().UTC()
	cp := *txn
	return &cp, nil
}

func (r *inMemoryTransactionRepo) MarkExpired(ctx context.Context, id uuid.UUID) (*domain.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	txn, ok := r.rows[id]
	if !ok || txn.Status != domain.TransactionStatusPending {
		return nil, domain.ErrInvalidStateTransition
	}
	txn.Status = domain.TransactionStatusExpired
	txn.UpdatedAt = time.Now().UTC()
	cp := *txn
	return &cp, nil
}

func (r *inMemoryTransactionRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]domain.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale []domain.PaymentTransaction
	for _, txn := range r.rows {
		if txn.Status == domain.TransactionStatusPending && txn.CreatedAt.Before(cutoff) {
			stale = append(stale, *txn)
		}
	}
	return stale, nil
}

func (r *inMemoryTransactionRepo) setCreatedAt(id uuid.UUID, t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[id].CreatedAt = t
}

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

func newInMemoryAuditRepo() *inMemoryAuditRepo {
	return &inMemoryAuditRepo{}
}

func (r *inMemoryAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

// --- In-Memory Transactor (no-op tx) ---

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
