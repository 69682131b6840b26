package dto

import "encoding/json"

// CreateDepositRequest is the request body for starting a deposit. Amount
// accepts either a JSON number or a numeric string on the wire; it is
// parsed downstream with decimal.NewFromString to avoid binary-float loss.
type CreateDepositRequest struct {
	Provider string      `json:"provider" binding:"required"`
	Amount   json.Number `json:"amount" binding:"required"`
	Currency string      `json:"currency,omitempty"`
}

// DepositResponse is the response body for a newly created deposit.
type DepositResponse struct {
	TransactionID string `json:"transaction_id"`
	RedirectURL   string `json:"redirect_url"`
}

// TransactionResponse mirrors a domain.PaymentTransaction for API consumers.
type TransactionResponse struct {
	ID                    string  `json:"id"`
	UserID                string  `json:"user_id"`
	Provider              string  `json:"provider"`
	Amount                string  `json:"amount"`
	Currency              string  `json:"currency"`
	Status                string  `json:"status"`
	ProviderTransactionID *string `json:"provider_transaction_id,omitempty"`
	CreatedAt             string  `json:"created_at"`
	UpdatedAt             string  `json:"updated_at"`
	CreditedAt            *string `json:"credited_at,omitempty"`
}

// TransactionListResponse wraps a paginated list of deposits.
type TransactionListResponse struct {
	Items    []TransactionResponse `json:"items"`
	Total    int64                 `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}

// WebhookAck is returned to the provider once a webhook delivery has been
// processed, regardless of whether it resulted in a credit.
type WebhookAck struct {
	Received bool `json:"received"`
	Credited bool `json:"credited"`
}
