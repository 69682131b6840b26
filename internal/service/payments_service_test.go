package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"depositgateway/internal/core/domain"
	"depositgateway/internal/core/ports"
	"depositgateway/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeTxRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*domain.PaymentTransaction
}

func newFakeTxRepo() *fakeTxRepo {
	return &fakeTxRepo{rows: make(map[uuid.UUID]*domain.PaymentTransaction)}
}

func (r *fakeTxRepo) Create(ctx context.Context, userID string, provider domain.Provider, amount decimal.Decimal, currency string) (*domain.PaymentTransaction, error) {
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

func (r *fakeTxRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	txn, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *txn
	return &cp, nil
}

func (r *fakeTxRepo) ListByUser(ctx context.Context, params ports.PaymentTransactionListParams) ([]domain.PaymentTransaction, int64, error) {
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

func (r *fakeTxRepo) MarkConfirmed(ctx context.Context, tx pgx.Tx, id uuid.UUID, providerTxnID string) (*domain.PaymentTransaction, error) {
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

func (r *fakeTxRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (*domain.PaymentTransaction, error) {
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

func (r *fakeTxRepo) MarkExpired(ctx context.Context, id uuid.UUID) (*domain.PaymentTransaction, error) {
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

func (r *fakeTxRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time) ([]domain.PaymentTransaction, error) {
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

func (r *fakeTxRepo) setCreatedAt(id uuid.UUID, t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[id].CreatedAt = t
}

type fakeReplayCache struct {
	mu    sync.Mutex
	store map[string][]byte
}

func newFakeReplayCache() *fakeReplayCache {
	return &fakeReplayCache{store: make(map[string][]byte)}
}

func (c *fakeReplayCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store[key], nil
}

func (c *fakeReplayCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = value
	return nil
}

// --- test harness ---

type testHarness struct {
	svc      ports.PaymentsService
	txRepo   *fakeTxRepo
	ledger   *fakeLedgerRepo
	sigCodec ports.SignatureCodec
}

func newTestHarness(t *testing.T, pendingExpiry time.Duration) *testHarness {
	t.Helper()
	log := logger.New("error", false)
	txRepo := newFakeTxRepo()
	wallets := newFakeWalletRepo()
	ledger := newFakeLedgerRepo()
	wl := NewWalletLedger(wallets, ledger, &fakeTransactor{}, log)
	providers := NewProviderRegistry(testProvidersConfig())
	sigCodec := NewSignatureCodec()
	audit := NewAuditService(nil, log)

	svc := NewPaymentsService(
		txRepo, wl, providers, sigCodec, newFakeReplayCache(), audit, &fakeTransactor{},
		10, 50, 3, pendingExpiry, log,
	)

	return &testHarness{svc: svc, txRepo: txRepo, ledger: ledger, sigCodec: sigCodec}
}

func signedWebhookPayload(t *testing.T, codec ports.SignatureCodec, secret string, fields map[string]any) ports.WebhookPayload {
	t.Helper()
	signed := make(map[string]any, len(webhookSignedKeys))
	for _, k := range webhookSignedKeys {
		if v, ok := fields[k]; ok {
			signed[k] = v
		}
	}
	sig := codec.HMACHex(signed, secret)
	payload := make(ports.WebhookPayload, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["signature"] = sig
	return payload
}

// --- CreateDeposit ---

func TestCreateDeposit_Success(t *testing.T) {
	h := newTestHarness(t, 15*time.Minute)
	caller := domain.Caller{UserID: "user-1", Role: domain.RoleUser}

	result, err := h.svc.CreateDeposit(context.Background(), caller, domain.ProviderJazzCash, decimal.NewFromFloat(25.5), "PKR")
	require.NoError(t, err)
	assert.Contains(t, result.RedirectURL, "orderId="+result.TransactionID.String())

	txn, err := h.txRepo.FindByID(context.Background(), result.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, txn.Status)
	assert.Equal(t, "user-1", txn.UserID)
}

func TestCreateDeposit_UnknownProviderRejected(t *testing.T) {
	h := newTestHarness(t, 15*time.Minute)
	caller := domain.Caller{UserID: "user-1"}

	_, err := h.svc.CreateDeposit(context.Background(), caller, domain.Provider("UNKNOWN"), decimal.NewFromInt(10), "PKR")
	assert.Error(t, err)
}

func TestCreateDeposit_NonPositiveAmountRejected(t *testing.T) {
	h := newTestHarness(t, 15*time.Minute)
	caller := domain.Caller{UserID: "user-1"}

	_, err := h.svc.CreateDeposit(context.Background(), caller, domain.ProviderJazzCash, decimal.Zero, "PKR")
	assert.Error(t, err)
}

func TestCreateDeposit_DefaultsCurrency(t *testing.T) {
	h := newTestHarness(t, 15*time.Minute)
	caller := domain.Caller{UserID: "user-1"}

	result, err := h.svc.CreateDeposit(context.Background(), caller, domain.ProviderSadaPay, decimal.NewFromInt(10), "")
	require.NoError(t, err)

	txn, _ := h.txRepo.FindByID(context.Background(), result.TransactionID)
	assert.Equal(t, domain.DefaultCurrency, txn.Currency)
}

// --- GetStatus ---

func TestGetStatus_OwnerCanView(t *testing.T) {
	h := newTestHarness(t, 15*time.Minute)
	caller := domain.Caller{UserID: "user-1"}
	result, err := h.svc.CreateDeposit(context.Background(), caller, domain.ProviderJazzCash, decimal.NewFromInt(10), "PKR")
	require.NoError(t, err)

	txn, err := h.svc.GetStatus(context.Background(), result.TransactionID, caller)
	require.NoError(t, err)
	assert.Equal(t, result.TransactionID, txn.ID)
}

func TestGetStatus_NonOwnerForbidden(t *testing.T) {
	h := newTestHarness(t, 15*time.Minute)
	owner := domain.Caller{UserID: "user-1"}
	result, err := h.svc.CreateDeposit(context.Background(), owner, domain.ProviderJazzCash, decimal.NewFromInt(10), "PKR")
	require.NoError(t, err)

	other := domain.Caller{UserID: "user-2"}
	_, err = h.svc.GetStatus(context.Background(), result.TransactionID, other)
	assert.Error(t, err)
}

func TestGetStatus_AdminCanViewAnyTransaction(t *testing.T) {
	h := newTestHarness(t, 15*time.Minute)
	owner := domain.Caller{UserID: "user-1"}
	result, err := h.svc.CreateDeposit(context.Background(), owner, domain.ProviderJazzCash, decimal.NewFromInt(10), "PKR")
	require.NoError(t, err)

	admin := domain.Caller{UserID: "admin-1", Role: domain.RoleAdmin}
	txn, err := h.svc.GetStatus(context.Background(), result.TransactionID, admin)
	require.NoError(t, err)
	assert.Equal(t, result.TransactionID, txn.ID)
}

func TestGetStatus_UnknownTransactionNotFound(t *testing.T) {
	h := newTestHarness(t, 15*time.Minute)
	_, err := h.svc.GetStatus(context.Background(), uuid.New(), domain.Caller{UserID: "user-1"})
	assert.Error(t, err)
}

// --- ListUserDeposits ---

func TestListUserDeposits_SelfAllowed(t *testing.T) {
	h := newTestHarness(t, 15*time.Minute)
	caller := domain.Caller{UserID: "user-1"}
	_, err := h.svc.CreateDeposit(context.Background(), caller, domain.ProviderJazzCash, decimal.NewFromInt(10), "PKR")
	require.NoError(t, err)

	items, total, err := h.svc.ListUserDeposits(context.Background(), "user-1", caller, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, items, 1)
}

func TestListUserDeposits_OtherUserForbidden(t *testing.T) {
	h := newTestHarness(t, 15*time.Minute)
	caller := domain.Caller{UserID: "user-1"}

	_, _, err := h.svc.ListUserDeposits(context.Background(), "user-2", caller, 1, 20)
	assert.Error(t, err)
}

func TestListUserDeposits_AdminCanListOthers(t *testing.T) {
	h := newTestHarness(t, 15*time.Minute)
	owner := domain.Caller{UserID: "user-1"}
	_, err := h.svc.CreateDeposit(context.Background(), owner, domain.ProviderJazzCash, decimal.NewFromInt(10), "PKR")
	require.NoError(t, err)

	admin := domain.Caller{UserID: "admin-1", Role: domain.RoleAdmin}
	items, _, err := h.svc.ListUserDeposits(context.Background(), "user-1", admin, 1, 20)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

// --- Reconcile ---

func TestReconcile_NonAdminForbidden(t *testing.T) {
	h := newTestHarness(t, time.Millisecond)
	caller := domain.Caller{UserID: "user-1"}
	result, err := h.svc.CreateDeposit(context.Background(), caller, domain.ProviderJazzCash, decimal.NewFromInt(10), "PKR")
	require.NoError(t, err)

	_, err = h.svc.Reconcile(context.Background(), result.TransactionID, caller)
	assert.Error(t, err)
}

func TestReconcile_AdminBeforeExpiryIsNoOp(t *testing.T) {
	h := newTestHarness(t, time.Hour)
	caller := domain.Caller{UserID: "user-1"}
	result, err := h.svc.CreateDeposit(context.Background(), caller, domain.ProviderJazzCash, decimal.NewFromInt(10), "PKR")
	require.NoError(t, err)

	admin := domain.Caller{UserID: "admin-1", Role: domain.RoleAdmin}
	txn, err := h.svc.Reconcile(context.Background(), result.TransactionID, admin)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, txn.Status)
}

func TestReconcile_AdminAfterExpiryExpiresTransaction(t *testing.T) {
	h := newTestHarness(t, time.Millisecond)
	caller := domain.Caller{UserID: "user-1"}
	result, err := h.svc.CreateDeposit(context.Background(), caller, domain.ProviderJazzCash, decimal.NewFromInt(10), "PKR")
	require.NoError(t, err)
	h.txRepo.setCreatedAt(result.TransactionID, time.Now().Add(-time.Hour))

	admin := domain.Caller{UserID: "admin-1", Role: domain.RoleAdmin}
	txn, err := h.svc.Reconcile(context.Background(), result.TransactionID, admin)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusExpired, txn.Status)
}

func TestReconcile_AlreadyTerminalTransactionRejectsFurtherWebhooks(t *testing.T) {
	h := newTestHarness(t, time.Millisecond)
	caller := domain.Caller{UserID: "user-1"}
	result, err := h.svc.CreateDeposit(context.Background(), caller, domain.ProviderJazzCash, decimal.NewFromInt(10), "PKR")
	require.NoError(t, err)
	h.txRepo.setCreatedAt(result.TransactionID, time.Now().Add(-time.Hour))

	admin := domain.Caller{UserID: "admin-1", Role: domain.RoleAdmin}
	_, err = h.svc.Reconcile(context.Background(), result.TransactionID, admin)
	require.NoError(t, err)

	webhook := signedWebhookPayload(t, h.sigCodec, "jazzcash-secret", map[string]any{
		"provider":      "JAZZCASH",
		"transactionId": result.TransactionID.String(),
		"status":        "SUCCESS",
		"amount":        "10",
	})
	res, err := h.svc.HandleWebhook(context.Background(), webhook, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Credited, "a webhook against an already-terminal transaction must never credit")
}

// --- HandleWebhook ---

func TestHandleWebhook_RejectsDisallowedSourceIP(t *testing.T) {
	h := newTestHarness(t, 15*time.Minute)
	caller := domain.Caller{UserID: "user-1"}
	result, err := h.svc.CreateDeposit(context.Background(), caller, domain.ProviderJazzCash, decimal.NewFromInt(10), "PKR")
	require.NoError(t, err)

	webhook := signedWebhookPayload(t, h.sigCodec, "jazzcash-secret", map[string]any{
		"provider":      "JAZZCASH",
		"transactionId": result.TransactionID.String(),
		"status":        "SUCCESS",
		"amount":        "10",
	})
	_, err = h.svc.HandleWebhook(context.Background(), webhook, "8.8.8.8")
	assert.Error(t, err)
}

func TestHandleWebhook_RejectsInvalidSignature(t *testing.T) {
	h := newTestHarness(t, 15*time.Minute)
	caller := domain.Caller{UserID: "user-1"}
	result, err := h.svc.CreateDeposit(context.Background(), caller, domain.ProviderJazzCash, decimal.NewFromInt(10), "PKR")
	require.NoError(t, err)

	payload := ports.WebhookPayload{
		"provider":      "JAZZCASH",
		"transactionId": result.TransactionID.String(),
		"status":        "SUCCESS",
		"amount":        "10",
		"signature":     "0000000000000000000000000000000000000000000000000000000000000000",
	}
	_, err = h.svc.HandleWebhook(context.Background(), payload, "10.0.0.1")
	assert.Error(t, err)
}

func TestHandleWebhook_SuccessConfirmsAndCredits(t *testing.T) {
	h := newTestHarness(t, 15*time.Minute)
	caller := domain.Caller{UserID: "user-1"}
	result, err := h.svc.CreateDeposit(context.Background(), caller, domain.ProviderJazzCash, decimal.NewFromInt(10), "PKR")
	require.NoError(t, err)

	webhook := signedWebhookPayload(t, h.sigCodec, "jazzcash-secret", map[string]any{
		"provider":              "JAZZCASH",
		"transactionId":         result.TransactionID.String(),
		"providerTransactionId": "ext-999",
		"status":                "SUCCESS",
		"amount":                "10",
	})
	res, err := h.svc.HandleWebhook(context.Background(), webhook, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Credited)

	txn, err := h.svc.GetStatus(context.Background(), result.TransactionID, caller)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusConfirmed, txn.Status)
	assert.Equal(t, 1, h.ledger.count())
}

func TestHandleWebhook_DuplicateDeliveryCreditsExactlyOnce(t *testing.T) {
	h := newTestHarness(t, 15*time.Minute)
	caller := domain.Caller{UserID: "user-1"}
	result, err := h.svc.CreateDeposit(context.Background(), caller, domain.ProviderJazzCash, decimal.NewFromInt(10), "PKR")
	require.NoError(t, err)

	fields := map[string]any{
		"provider":              "JAZZCASH",
		"transactionId":         result.TransactionID.String(),
		"providerTransactionId": "ext-999",
		"status":                "SUCCESS",
		"amount":                "10",
	}
	webhook1 := signedWebhookPayload(t, h.sigCodec, "jazzcash-secret", fields)
	res1, err := h.svc.HandleWebhook(context.Background(), webhook1, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res1.Credited)

	webhook2 := signedWebhookPayload(t, h.sigCodec, "jazzcash-secret", fields)
	res2, err := h.svc.HandleWebhook(context.Background(), webhook2, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res2.Credited, "a replayed webhook must not credit twice")

	assert.Equal(t, 1, h.ledger.count())
}

func TestHandleWebhook_AmountMismatchRejected(t *testing.T) {
	h := newTestHarness(t, 15*time.Minute)
	caller := domain.Caller{UserID: "user-1"}
	result, err := h.svc.CreateDeposit(context.Background(), caller, domain.ProviderJazzCash, decimal.NewFromInt(10), "PKR")
	require.NoError(t, err)

	webhook := signedWebhookPayload(t, h.sigCodec, "jazzcash-secret", map[string]any{
		"provider":      "JAZZCASH",
		"transactionId": result.TransactionID.String(),
		"status":        "SUCCESS",
		"amount":        "99999",
	})
	_, err = h.svc.HandleWebhook(context.Background(), webhook, "10.0.0.1")
	assert.Error(t, err)

	txn, _ := h.svc.GetStatus(context.Background(), result.TransactionID, caller)
	assert.Equal(t, domain.TransactionStatusPending, txn.Status)
}

func TestHandleWebhook_FailedStatusTransitionsToFailed(t *testing.T) {
	h := newTestHarness(t, 15*time.Minute)
	caller := domain.Caller{UserID: "user-1"}
	result, err := h.svc.CreateDeposit(context.Background(), caller, domain.ProviderJazzCash, decimal.NewFromInt(10), "PKR")
	require.NoError(t, err)

	webhook := signedWebhookPayload(t, h.sigCodec, "jazzcash-secret", map[string]any{
		"provider":      "JAZZCASH",
		"transactionId": result.TransactionID.String(),
		"status":        "FAILED",
		"amount":        "10",
		"reason":        "insufficient balance at provider",
	})
	res, err := h.svc.HandleWebhook(context.Background(), webhook, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Credited)

	txn, _ := h.svc.GetStatus(context.Background(), result.TransactionID, caller)
	assert.Equal(t, domain.TransactionStatusFailed, txn.Status)
}

// --- ReconcileExpiredSweep ---

func TestReconcileExpiredSweep_ExpiresOnlyStalePending(t *testing.T) {
	h := newTestHarness(t, time.Minute)
	caller := domain.Caller{UserID: "user-1"}

	stale, err := h.svc.CreateDeposit(context.Background(), caller, domain.ProviderJazzCash, decimal.NewFromInt(10), "PKR")
	require.NoError(t, err)
	h.txRepo.setCreatedAt(stale.TransactionID, time.Now().Add(-time.Hour))

	fresh, err := h.svc.CreateDeposit(context.Background(), caller, domain.ProviderJazzCash, decimal.NewFromInt(10), "PKR")
	require.NoError(t, err)

	expired, err := h.svc.ReconcileExpiredSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	staleTxn, _ := h.svc.GetStatus(context.Background(), stale.TransactionID, caller)
	assert.Equal(t, domain.TransactionStatusExpired, staleTxn.Status)

	freshTxn, _ := h.svc.GetStatus(context.Background(), fresh.TransactionID, caller)
	assert.Equal(t, domain.TransactionStatusPending, freshTxn.Status)
}
