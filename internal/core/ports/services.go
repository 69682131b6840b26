package ports

import (
	"context"
	"time"

	"depositgateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// SignatureCodec canonicalises payloads and computes/verifies HMAC-SHA256
// signatures over them with constant-time comparison (C1).
type SignatureCodec interface {
	Canonicalise(payload map[string]any) string
	HMACHex(payload map[string]any, secret string) string
	Verify(payload map[string]any, secret string, providedHex string) bool
}

// ProviderConfig is the per-provider configuration held by the registry.
type ProviderConfig struct {
	HMACSecret      string
	RedirectBaseURL string
	IPAllowlist     []string
}

// ProviderRegistry is a pure, immutable-after-startup lookup of
// per-provider configuration (C2).
type ProviderRegistry interface {
	Get(provider domain.Provider) (ProviderConfig, bool)
}

// CreditResult is the outcome of a WalletLedger credit attempt.
type CreditResult struct {
	Balance  decimal.Decimal
	Credited bool
}

// WalletLedger performs atomic balance updates paired with append-only
// ledger entries (C3). Credit is the only way a balance ever increases;
// at-most-once-per-reference is enforced by a database uniqueness
// constraint, not application locking.
type WalletLedger interface {
	Credit(ctx context.Context, userID string, amount decimal.Decimal, currency string, reference string) (CreditResult, error)
	// CreditTx performs the same credit as Credit, but inside a
	// caller-supplied, caller-committed transaction. Used wherever a credit
	// must land atomically with another write — confirming a payment
	// transaction's CONFIRMED status, in particular (spec §4.6 step 6).
	CreditTx(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal, currency string, reference string) (CreditResult, error)
}

// RetryQueue is an in-process scheduler of delayed webhook-processing
// retries with exponential backoff (C5). Each due retry runs on its own
// timer goroutine, so retries for different transactions can run at the
// same time; the queue does not serialise them. Tasks do not survive
// process restart; the reconciliation sweep is the authoritative backstop.
type RetryQueue interface {
	Enqueue(transactionID uuid.UUID, attempt int)
	Stop()
}

// WebhookReplayCache is an optional Redis-backed fast path that
// short-circuits exact-duplicate webhook deliveries before they reach the
// database transaction. A nil cache (or a miss) always falls through to
// the database, which remains the sole source of correctness.
type WebhookReplayCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// AuditService appends a single audit entry, fire-and-forget (C7).
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// --- PaymentsService (C6): the coordinator ---

// DepositResult is returned by CreateDeposit.
type DepositResult struct {
	TransactionID uuid.UUID
	RedirectURL   string
}

// WebhookResult is returned by HandleWebhook.
type WebhookResult struct {
	Credited bool
}

// WebhookPayload is the raw inbound webhook, keyed exactly as delivered by
// the provider (arbitrary extra keys are ignored).
type WebhookPayload map[string]any

// PaymentsService composes C1-C5 to implement the public operations of
// the payment lifecycle engine.
type PaymentsService interface {
	CreateDeposit(ctx context.Context, caller domain.Caller, provider domain.Provider, amount decimal.Decimal, currency string) (DepositResult, error)
	GetStatus(ctx context.Context, transactionID uuid.UUID, caller domain.Caller) (*domain.PaymentTransaction, error)
	ListUserDeposits(ctx context.Context, userID string, caller domain.Caller, page, limit int) ([]domain.PaymentTransaction, int64, error)
	HandleWebhook(ctx context.Context, payload WebhookPayload, sourceIP string) (WebhookResult, error)
	Reconcile(ctx context.Context, transactionID uuid.UUID, caller domain.Caller) (*domain.PaymentTransaction, error)
	// ReconcileExpiredSweep scans PENDING transactions older than the expiry
	// threshold and expires them. Driven by the background sweep; it uses the
	// same MarkExpired transition as Reconcile, which expires a single
	// transaction without calling this method. Idempotent and safe to run
	// concurrently with webhook handling.
	ReconcileExpiredSweep(ctx context.Context) (expired int, err error)
}
