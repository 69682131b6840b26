package handler

import (
	"strconv"

	"depositgateway/internal/adapter/http/dto"
	"depositgateway/internal/adapter/http/middleware"
	"depositgateway/internal/core/domain"
	"depositgateway/internal/core/ports"
	"depositgateway/pkg/apperror"
	"depositgateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentHandler handles deposit lifecycle endpoints.
type PaymentHandler struct {
	paymentsSvc ports.PaymentsService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentsSvc ports.PaymentsService) *PaymentHandler {
	return &PaymentHandler{paymentsSvc: paymentsSvc}
}

// CreateDeposit handles POST /api/payment/deposit.
func (h *PaymentHandler) CreateDeposit(c *gin.Context) {
	caller := middleware.CallerFrom(c)

	var req dto.CreateDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.ErrValidation(err.Error()))
		return
	}

	amount, err := decimal.NewFromString(req.Amount.String())
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	result, err := h.paymentsSvc.CreateDeposit(c.Request.Context(), caller, domain.Provider(req.Provider), amount, req.Currency)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.DepositResponse{
		TransactionID: result.TransactionID.String(),
		RedirectURL:   result.RedirectURL,
	})
}

// GetStatus handles GET /api/payment/status/:id.
func (h *PaymentHandler) GetStatus(c *gin.Context) {
	caller := middleware.CallerFrom(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrValidation("invalid transaction id"))
		return
	}

	txn, err := h.paymentsSvc.GetStatus(c.Request.Context(), id, caller)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toTransactionResponse(txn))
}

// ListUserDeposits handles GET /api/user/deposits.
func (h *PaymentHandler) ListUserDeposits(c *gin.Context) {
	caller := middleware.CallerFrom(c)

	userID := c.Query("user_id")
	if userID == "" {
		userID = caller.UserID
	}

	page, limit := parsePagination(c)

	items, total, err := h.paymentsSvc.ListUserDeposits(c.Request.Context(), userID, caller, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.TransactionListResponse{
		Items:    make([]dto.TransactionResponse, 0, len(items)),
		Total:    total,
		Page:     page,
		PageSize: limit,
	}
	for i := range items {
		resp.Items = append(resp.Items, toTransactionResponse(&items[i]))
	}

	response.OK(c, resp)
}

// Reconcile handles POST /api/payment/reconcile/:id.
func (h *PaymentHandler) Reconcile(c *gin.Context) {
	caller := middleware.CallerFrom(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrValidation("invalid transaction id"))
		return
	}

	txn, err := h.paymentsSvc.Reconcile(c.Request.Context(), id, caller)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toTransactionResponse(txn))
}

// HandleWebhook handles POST /api/payment/webhook. It is not behind
// Identity: providers authenticate via IP allowlist + HMAC signature, not
// a user identity header.
func (h *PaymentHandler) HandleWebhook(c *gin.Context) {
	var payload ports.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, apperror.ErrValidation(err.Error()))
		return
	}

	result, err := h.paymentsSvc.HandleWebhook(c.Request.Context(), payload, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.WebhookAck{Received: true, Credited: result.Credited})
}

func parsePagination(c *gin.Context) (page, limit int) {
	page = 1
	limit = 20
	if p, err := strconv.Atoi(c.Query("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(c.Query("limit")); err == nil && l > 0 {
		limit = l
	}
	return page, limit
}

func toTransactionResponse(tx *domain.PaymentTransaction) dto.TransactionResponse {
	const layout = "2006-01-02T15:04:05Z07:00"
	resp := dto.TransactionResponse{
		ID:                    tx.ID.String(),
		UserID:                tx.UserID,
		Provider:              string(tx.Provider),
		Amount:                tx.Amount.String(),
		Currency:              tx.Currency,
		Status:                string(tx.Status),
		ProviderTransactionID: tx.ProviderTransactionID,
		CreatedAt:             tx.CreatedAt.Format(layout),
		UpdatedAt:             tx.UpdatedAt.Format(layout),
	}
	if tx.CreditedAt != nil {
		s := tx.CreditedAt.Format(layout)
		resp.CreditedAt = &s
	}
	return resp
}
