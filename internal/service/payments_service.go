package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"depositgateway/internal/core/domain"
	"depositgateway/internal/core/ports"
	"depositgateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const webhookReplayTTL = 24 * time.Hour

// webhookSignedKeys is the exact signing subset spec §4.6 step 3 / §6
// define: {transactionId, providerTransactionId, status, amount, currency}.
// Any other field the provider includes (provider, reason, ...) is carried
// in the payload but never part of the signature.
var webhookSignedKeys = [...]string{"transactionId", "providerTransactionId", "status", "amount", "currency"}

// paymentsService implements ports.PaymentsService (C6), coordinating C1-C5
// and the audit trail into the six public deposit operations.
type paymentsService struct {
	txRepo        ports.PaymentTransactionRepository
	walletLedger  ports.WalletLedger
	providers     ports.ProviderRegistry
	sigCodec      ports.SignatureCodec
	replayCache   ports.WebhookReplayCache // nil disables the fast path
	audit         ports.AuditService
	transactor    ports.DBTransactor
	retryQueue    ports.RetryQueue
	maxRetries    int
	pendingExpiry time.Duration
	log           zerolog.Logger

	// pendingConfirm remembers the providerTransactionId for a confirm+credit
	// that failed mid-transaction and was handed to the retry queue, since
	// the rolled-back transaction left no trace of it in the database. Keyed
	// by transaction ID; not durable across a process restart (the
	// reconciliation sweep is the backstop for anything lost this way).
	pendingConfirm sync.Map
}

// NewPaymentsService wires C1-C5 into the PaymentsService coordinator. The
// retry queue's processor closes over the returned service so a scheduled
// retry can re-run the credit step.
func NewPaymentsService(
	txRepo ports.PaymentTransactionRepository,
	walletLedger ports.WalletLedger,
	providers ports.ProviderRegistry,
	sigCodec ports.SignatureCodec,
	replayCache ports.WebhookReplayCache,
	audit ports.AuditService,
	transactor ports.DBTransactor,
	baseDelayMs, maxDelayMs, maxRetries int,
	pendingExpiry time.Duration,
	log zerolog.Logger,
) ports.PaymentsService {
	s := &paymentsService{
		txRepo:        txRepo,
		walletLedger:  walletLedger,
		providers:     providers,
		sigCodec:      sigCodec,
		replayCache:   replayCache,
		audit:         audit,
		transactor:    transactor,
		maxRetries:    maxRetries,
		pendingExpiry: pendingExpiry,
		log:           log,
	}
	s.retryQueue = NewRetryQueue(baseDelayMs, maxDelayMs, maxRetries, s.retryCredit)
	return s
}

// CreateDeposit opens a new PENDING PaymentTransaction for caller and
// returns the provider redirect URL the client follows to pay.
func (s *paymentsService) CreateDeposit(ctx context.Context, caller domain.Caller, provider domain.Provider, amount decimal.Decimal, currency string) (ports.DepositResult, error) {
	if !provider.IsValid() {
		return ports.DepositResult{}, apperror.ErrUnknownProvider(string(provider))
	}
	if amount.Sign() <= 0 {
		return ports.DepositResult{}, apperror.ErrInvalidAmount()
	}
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	cfg, ok := s.providers.Get(provider)
	if !ok {
		return ports.DepositResult{}, apperror.ErrUnknownProvider(string(provider))
	}

	txn, err := s.txRepo.Create(ctx, caller.UserID, provider, amount, currency)
	if err != nil {
		return ports.DepositResult{}, apperror.Internal(fmt.Errorf("create deposit: %w", err))
	}

	s.audit.Log(ctx, &domain.AuditLog{
		ID:         uuid.New(),
		Actor:      caller.UserID,
		Action:     domain.AuditActionDepositCreated,
		EntityType: "payment_transaction",
		EntityID:   txn.ID.String(),
		Metadata: map[string]any{
			"provider": string(provider),
			"amount":   amount.String(),
			"currency": currency,
		},
		CreatedAt: time.Now().UTC(),
	})

	return ports.DepositResult{
		TransactionID: txn.ID,
		RedirectURL: fmt.Sprintf("%s?orderId=%s&amount=%s&currency=%s",
			strings.TrimRight(cfg.RedirectBaseURL, "/"), txn.ID.String(), amount.String(), currency),
	}, nil
}

// GetStatus returns a transaction, enforcing that only its owner or an
// admin caller may view it.
func (s *paymentsService) GetStatus(ctx context.Context, transactionID uuid.UUID, caller domain.Caller) (*domain.PaymentTransaction, error) {
	txn, err := s.txRepo.FindByID(ctx, transactionID)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("find transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrNotFound("transaction")
	}
	if !txn.IsOwnedBy(caller) {
		return nil, apperror.ErrForbidden()
	}
	return txn, nil
}

// ListUserDeposits lists userID's deposits, paginated. Only userID itself
// or an admin caller may list them.
func (s *paymentsService) ListUserDeposits(ctx context.Context, userID string, caller domain.Caller, page, limit int) ([]domain.PaymentTransaction, int64, error) {
	if !caller.IsAdmin() && caller.UserID != userID {
		return nil, 0, apperror.ErrForbidden()
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return s.txRepo.ListByUser(ctx, ports.PaymentTransactionListParams{
		UserID:   userID,
		Page:     page,
		PageSize: limit,
	})
}

// Reconcile forces a single transaction through the expiry check,
// regardless of the background sweep's cadence. Admin-only: reconciliation
// is an operator action, not a self-service one.
func (s *paymentsService) Reconcile(ctx context.Context, transactionID uuid.UUID, caller domain.Caller) (*domain.PaymentTransaction, error) {
	if !caller.IsAdmin() {
		return nil, apperror.ErrForbidden()
	}
	txn, err := s.txRepo.FindByID(ctx, transactionID)
	if err != nil {
		return nil, apperror.Internal(fmt.Errorf("find transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrNotFound("transaction")
	}
	if txn.Status != domain.TransactionStatusPending {
		return txn, nil
	}
	if time.Since(txn.CreatedAt) < s.pendingExpiry {
		return txn, nil
	}

	expired, err := s.txRepo.MarkExpired(ctx, transactionID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidStateTransition) {
			return s.txRepo.FindByID(ctx, transactionID)
		}
		return nil, apperror.Internal(fmt.Errorf("mark expired: %w", err))
	}

	s.audit.Log(ctx, &domain.AuditLog{
		ID:         uuid.New(),
		Actor:      domain.SystemActor,
		Action:     domain.AuditActionReconciledExpired,
		EntityType: "payment_transaction",
		EntityID:   transactionID.String(),
		CreatedAt:  time.Now().UTC(),
	})

	return expired, nil
}

// ReconcileExpiredSweep expires every PENDING transaction older than
// pendingExpiry. Driven by the background sweep goroutine.
func (s *paymentsService) ReconcileExpiredSweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.pendingExpiry)
	stale, err := s.txRepo.ListPendingOlderThan(ctx, cutoff)
	if err != nil {
		return 0, apperror.Internal(fmt.Errorf("list stale pending: %w", err))
	}

	expired := 0
	for _, txn := range stale {
		if _, err := s.txRepo.MarkExpired(ctx, txn.ID); err != nil {
			if errors.Is(err, domain.ErrInvalidStateTransition) {
				continue
			}
			s.log.Warn().Err(err).Str("tx_id", txn.ID.String()).Msg("sweep: failed to expire transaction")
			continue
		}
		s.audit.Log(ctx, &domain.AuditLog{
			ID:         uuid.New(),
			Actor:      domain.SystemActor,
			Action:     domain.AuditActionReconciledExpired,
			EntityType: "payment_transaction",
			EntityID:   txn.ID.String(),
			CreatedAt:  time.Now().UTC(),
		})
		expired++
	}
	return expired, nil
}

// HandleWebhook validates source IP and signature, then applies the
// provider's reported status to the transaction. A SUCCESS status confirms
// and credits atomically (see confirmAndCredit); if that transaction fails
// to commit, the webhook delivery itself fails with a 5xx so the provider
// retries, and the retry queue also picks up the same confirm+credit
// attempt independently (spec §4.6 step 7).
func (s *paymentsService) HandleWebhook(ctx context.Context, payload ports.WebhookPayload, sourceIP string) (ports.WebhookResult, error) {
	providerStr, _ := payload["provider"].(string)
	provider := domain.Provider(strings.ToUpper(providerStr))
	if !provider.IsValid() {
		return ports.WebhookResult{}, apperror.ErrUnknownProvider(providerStr)
	}

	cfg, ok := s.providers.Get(provider)
	if !ok {
		return ports.WebhookResult{}, apperror.ErrUnknownProvider(string(provider))
	}

	txnIDStr, _ := payload["transactionId"].(string)

	if !IsIPAllowed(sourceIP, cfg.IPAllowlist) {
		s.audit.Log(ctx, &domain.AuditLog{
			ID: uuid.New(), Actor: domain.SystemActor, Action: domain.AuditActionWebhookIPRejected,
			EntityType: "payment_transaction", EntityID: txnIDStr,
			Metadata: map[string]any{"source_ip": sourceIP, "provider": string(provider)},
			CreatedAt: time.Now().UTC(),
		})
		return ports.WebhookResult{}, apperror.ErrWebhookSourceRejected()
	}

	providedSig, _ := payload["signature"].(string)
	signed := make(map[string]any, len(webhookSignedKeys))
	for _, k := range webhookSignedKeys {
		if v, ok := payload[k]; ok {
			signed[k] = v
		}
	}
	if providedSig == "" || !s.sigCodec.Verify(signed, cfg.HMACSecret, providedSig) {
		s.audit.Log(ctx, &domain.AuditLog{
			ID: uuid.New(), Actor: domain.SystemActor, Action: domain.AuditActionWebhookSigRejected,
			EntityType: "payment_transaction", EntityID: txnIDStr,
			Metadata: map[string]any{"provider": string(provider)},
			CreatedAt: time.Now().UTC(),
		})
		return ports.WebhookResult{}, apperror.ErrWebhookSignatureInvalid()
	}

	txnID, err := uuid.Parse(txnIDStr)
	if err != nil {
		return ports.WebhookResult{}, apperror.ErrValidation("invalid transactionId")
	}

	cacheKey := fmt.Sprintf("webhook:%s:%s", provider, providedSig)
	if s.replayCache != nil {
		if cached, err := s.replayCache.Get(ctx, cacheKey); err == nil && cached != nil {
			return ports.WebhookResult{Credited: false}, nil
		}
	}

	txn, err := s.txRepo.FindByID(ctx, txnID)
	if err != nil {
		return ports.WebhookResult{}, apperror.Internal(fmt.Errorf("find transaction: %w", err))
	}
	if txn == nil {
		return ports.WebhookResult{}, apperror.ErrNotFound("transaction")
	}

	if txn.Status.IsTerminal() {
		s.rememberReplay(ctx, cacheKey)
		return ports.WebhookResult{Credited: false}, nil
	}

	// Cross-check provider, amount, and currency against the stored row
	// (spec §4.6 step 5): a webhook authenticated with one provider's secret
	// must not be accepted against another provider's or currency's
	// transaction.
	mismatch := map[string]any{}
	if provider != txn.Provider {
		mismatch["claimed_provider"] = string(provider)
		mismatch["expected_provider"] = string(txn.Provider)
	}
	if amountRaw, ok := payload["amount"]; ok {
		if claimed, convErr := toDecimal(amountRaw); convErr == nil && !claimed.Equal(txn.Amount) {
			mismatch["claimed_amount"] = claimed.String()
			mismatch["expected_amount"] = txn.Amount.String()
		}
	}
	if currencyRaw, ok := payload["currency"].(string); ok && currencyRaw != txn.Currency {
		mismatch["claimed_currency"] = currencyRaw
		mismatch["expected_currency"] = txn.Currency
	}
	if len(mismatch) > 0 {
		s.audit.Log(ctx, &domain.AuditLog{
			ID: uuid.New(), Actor: domain.SystemActor, Action: domain.AuditActionWebhookMismatch,
			EntityType: "payment_transaction", EntityID: txnIDStr,
			Metadata:  mismatch,
			CreatedAt: time.Now().UTC(),
		})
		return ports.WebhookResult{}, apperror.ErrConflict("webhook does not match stored transaction")
	}

	statusStr := strings.ToUpper(fmt.Sprint(payload["status"]))
	providerTxnID, _ := payload["providerTransactionId"].(string)

	switch statusStr {
	case "SUCCESS", "CONFIRMED", "COMPLETED":
		return s.confirmAndCredit(ctx, txnID, providerTxnID, cacheKey)
	case "FAILED", "FAILURE", "DECLINED":
		reason, _ := payload["reason"].(string)
		return s.fail(ctx, txnID, reason, cacheKey)
	default:
		return ports.WebhookResult{}, apperror.ErrValidation(fmt.Sprintf("unknown status %q", statusStr))
	}
}

// confirmAndCredit drives spec §4.6 step 6's CONFIRMED branch: C4.markConfirmed
// and C3.credit happen together in a single database transaction, so a
// CONFIRMED row with no matching ledger entry is never observable. If the
// transaction fails to commit, nothing is persisted — the row stays
// PENDING — and the whole operation is hand off to the retry queue (step 7)
// while this call reports an internal error so the caller responds 5xx and
// the provider's webhook delivery is retried.
func (s *paymentsService) confirmAndCredit(ctx context.Context, txnID uuid.UUID, providerTxnID, cacheKey string) (ports.WebhookResult, error) {
	result, confirmedNow, err := s.tryConfirmAndCredit(ctx, txnID, providerTxnID)
	if err != nil {
		s.log.Warn().Err(err).Str("tx_id", txnID.String()).Msg("confirm+credit failed, scheduling retry")
		s.pendingConfirm.Store(txnID, providerTxnID)
		s.retryQueue.Enqueue(txnID, 1)
		return ports.WebhookResult{}, apperror.Internal(fmt.Errorf("confirm and credit: %w", err))
	}
	if confirmedNow {
		s.audit.Log(ctx, &domain.AuditLog{
			ID: uuid.New(), Actor: domain.SystemActor, Action: domain.AuditActionTransactionConfirmed,
			EntityType: "payment_transaction", EntityID: txnID.String(),
			CreatedAt: time.Now().UTC(),
		})
	}
	s.rememberReplay(ctx, cacheKey)
	return result, nil
}

// tryConfirmAndCredit opens one transaction, marks txnID CONFIRMED, and
// credits the wallet within it, committing only if both succeed.
// confirmedNow is true only when this call is the one that actually
// transitioned the row (so the caller logs the confirmation audit entry
// exactly once, not on every retry of an already-committed confirmation).
func (s *paymentsService) tryConfirmAndCredit(ctx context.Context, txnID uuid.UUID, providerTxnID string) (result ports.WebhookResult, confirmedNow bool, err error) {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return ports.WebhookResult{}, false, fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback(ctx) //nolint:errcheck
		}
	}()

	confirmed, err := s.txRepo.MarkConfirmed(ctx, tx, txnID, providerTxnID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidStateTransition) {
			return ports.WebhookResult{Credited: false}, false, nil
		}
		return ports.WebhookResult{}, false, fmt.Errorf("mark confirmed: %w", err)
	}

	creditResult, err := s.walletLedger.CreditTx(ctx, tx, confirmed.UserID, confirmed.Amount, confirmed.Currency, confirmed.ID.String())
	if err != nil {
		return ports.WebhookResult{}, false, fmt.Errorf("credit wallet: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ports.WebhookResult{}, false, fmt.Errorf("commit tx: %w", err)
	}
	committed = true

	return ports.WebhookResult{Credited: creditResult.Credited}, creditResult.Credited, nil
}

func (s *paymentsService) fail(ctx context.Context, txnID uuid.UUID, reason, cacheKey string) (ports.WebhookResult, error) {
	if _, err := s.txRepo.MarkFailed(ctx, txnID, reason); err != nil {
		if errors.Is(err, domain.ErrInvalidStateTransition) {
			return ports.WebhookResult{Credited: false}, nil
		}
		return ports.WebhookResult{}, apperror.Internal(fmt.Errorf("mark failed: %w", err))
	}
	s.audit.Log(ctx, &domain.AuditLog{
		ID: uuid.New(), Actor: domain.SystemActor, Action: domain.AuditActionTransactionFailed,
		EntityType: "payment_transaction", EntityID: txnID.String(),
		Metadata: map[string]any{"reason": reason},
		CreatedAt: time.Now().UTC(),
	})
	s.rememberReplay(ctx, cacheKey)
	return ports.WebhookResult{Credited: false}, nil
}

// retryCredit is the RetryQueue processor: it re-runs the same atomic
// confirm+credit transaction that failed earlier (spec §4.6 step 7). This
// is safe to repeat — MarkConfirmed is a no-op on an already-CONFIRMED row,
// and the ledger's (walletId, reference) uniqueness constraint makes
// CreditTx a no-op if some earlier attempt's commit actually landed.
func (s *paymentsService) retryCredit(transactionID uuid.UUID, attempt int) {
	ctx := context.Background()
	providerTxnID, _ := s.pendingConfirm.Load(transactionID)
	providerTxnIDStr, _ := providerTxnID.(string)

	result, confirmedNow, err := s.tryConfirmAndCredit(ctx, transactionID, providerTxnIDStr)
	if err == nil {
		s.pendingConfirm.Delete(transactionID)
		if confirmedNow {
			s.audit.Log(ctx, &domain.AuditLog{
				ID: uuid.New(), Actor: domain.SystemActor, Action: domain.AuditActionTransactionConfirmed,
				EntityType: "payment_transaction", EntityID: transactionID.String(),
				CreatedAt: time.Now().UTC(),
			})
		}
		s.log.Info().Str("tx_id", transactionID.String()).Bool("credited", result.Credited).Int("attempt", attempt).Msg("retry: confirm+credit succeeded")
		return
	}

	if attempt >= s.maxRetries {
		s.pendingConfirm.Delete(transactionID)
		s.audit.Log(ctx, &domain.AuditLog{
			ID: uuid.New(), Actor: domain.SystemActor, Action: domain.AuditActionRetryExhausted,
			EntityType: "payment_transaction", EntityID: transactionID.String(),
			Metadata: map[string]any{"attempts": attempt},
			CreatedAt: time.Now().UTC(),
		})
		s.log.Error().Err(err).Str("tx_id", transactionID.String()).Msg("retry: exhausted, giving up")
		return
	}
	s.retryQueue.Enqueue(transactionID, attempt+1)
}

func (s *paymentsService) rememberReplay(ctx context.Context, cacheKey string) {
	if s.replayCache == nil {
		return
	}
	if err := s.replayCache.Set(ctx, cacheKey, []byte("1"), webhookReplayTTL); err != nil {
		s.log.Warn().Err(err).Msg("failed to cache webhook replay key")
	}
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case string:
		return decimal.NewFromString(t)
	case float64:
		return decimal.NewFromFloat(t), nil
	default:
		return decimal.NewFromString(fmt.Sprint(t))
	}
}
