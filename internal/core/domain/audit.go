package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction tags the kind of state-changing event recorded.
type AuditAction string

const (
	AuditActionDepositCreated       AuditAction = "deposit_created"
	AuditActionWebhookIPRejected    AuditAction = "webhook_ip_rejected"
	AuditActionWebhookSigRejected   AuditAction = "webhook_signature_rejected"
	AuditActionWebhookMismatch      AuditAction = "webhook_mismatch"
	AuditActionRetryExhausted       AuditAction = "retry_exhausted"
	AuditActionReconciledExpired    AuditAction = "reconciled_expired"
	AuditActionTransactionConfirmed AuditAction = "transaction_confirmed"
	AuditActionTransactionFailed    AuditAction = "transaction_failed"
)

// SystemActor identifies audit entries originated by the service itself
// rather than by an authenticated caller (e.g. the background sweep).
const SystemActor = "system"

// AuditLog is an append-only, strictly-additive record of a
// state-changing action for forensic review. There is no update or
// delete path — only Create.
type AuditLog struct {
	ID         uuid.UUID
	Actor      string // userId, or SystemActor
	Action     AuditAction
	EntityType string
	EntityID   string
	Metadata   map[string]any
	CreatedAt  time.Time
}
