package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeStruct_TrimsWhitespace(t *testing.T) {
	req := CreateDepositRequest{
		Provider: "  JAZZCASH  ",
		Currency: " PKR ",
	}
	SanitizeStruct(&req)

	assert.Equal(t, "JAZZCASH", req.Provider)
	assert.Equal(t, "PKR", req.Currency)
}

func TestSanitizeStruct_EscapesHTML(t *testing.T) {
	req := CreateDepositRequest{
		Provider: "<script>alert('x')</script>",
	}
	SanitizeStruct(&req)

	assert.Contains(t, req.Provider, "&lt;script&gt;")
	assert.NotContains(t, req.Provider, "<script>")
}

func TestSanitizeStruct_HandlesPointerString(t *testing.T) {
	providerTxnID := "  ext-123  "
	resp := TransactionResponse{
		ID:                    "txn-1",
		ProviderTransactionID: &providerTxnID,
	}
	SanitizeStruct(&resp)

	assert.Equal(t, "ext-123", *resp.ProviderTransactionID)
}

func TestSanitizeStruct_NilPointerIsNoOp(t *testing.T) {
	resp := TransactionResponse{ID: "txn-1"}
	SanitizeStruct(&resp)
	assert.Nil(t, resp.ProviderTransactionID)
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	s := "hello"
	SanitizeStruct(s) // should not panic
}
