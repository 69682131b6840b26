package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"depositgateway/internal/core/ports"
)

// hmacSignatureCodec implements ports.SignatureCodec (C1).
type hmacSignatureCodec struct{}

// NewSignatureCodec creates an HMAC-SHA256 signature codec.
func NewSignatureCodec() ports.SignatureCodec {
	return &hmacSignatureCodec{}
}

// Canonicalise builds a deterministic string representation of payload by
// sorting its keys and joining "key=value" pairs with "&". Nested maps and
// slices are rendered as compact JSON (see renderValue).
func (c *hmacSignatureCodec) Canonicalise(payload map[string]any) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, renderValue(payload[k])))
	}
	return strings.Join(parts, "&")
}

// renderValue renders a single canonicalised value per C1's contract:
// strings verbatim, numbers by their decimal text, booleans as true/false,
// nil as "null", and anything else (nested maps/slices) as compact JSON.
func renderValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

// HMACHex computes HMAC-SHA256(secret, Canonicalise(payload)) and returns
// it lowercase hex-encoded.
func (c *hmacSignatureCodec) HMACHex(payload map[string]any, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(c.Canonicalise(payload)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether providedHex matches HMACHex(payload, secret),
// using a constant-time comparison to avoid leaking timing information
// about how many leading bytes matched.
func (c *hmacSignatureCodec) Verify(payload map[string]any, secret string, providedHex string) bool {
	expected := c.HMACHex(payload, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(providedHex)))
}
