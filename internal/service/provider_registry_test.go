package service

import (
	"testing"

	"depositgateway/config"
	"depositgateway/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProvidersConfig() config.ProvidersConfig {
	return config.ProvidersConfig{
		JazzCash: config.ProviderConfig{
			HMACSecret:  "jazzcash-secret",
			BaseURL:     "https://pay.jazzcash.example/redirect",
			IPAllowlist: []string{"10.0.0.1", "10.0.0.3"},
		},
		EasyPaisa: config.ProviderConfig{
			HMACSecret:  "easypaisa-secret",
			BaseURL:     "https://pay.easypaisa.example/redirect",
			IPAllowlist: []string{"10.0.0.2"},
		},
		SadaPay: config.ProviderConfig{
			HMACSecret:  "sadapay-secret",
			BaseURL:     "https://pay.sadapay.example/redirect",
		},
	}
}

func TestProviderRegistry_Get_KnownProvider(t *testing.T) {
	reg := NewProviderRegistry(testProvidersConfig())

	cfg, ok := reg.Get(domain.ProviderJazzCash)
	require.True(t, ok)
	assert.Equal(t, "jazzcash-secret", cfg.HMACSecret)
	assert.Equal(t, "https://pay.jazzcash.example/redirect", cfg.RedirectBaseURL)
}

func TestProviderRegistry_Get_UnknownProvider(t *testing.T) {
	reg := NewProviderRegistry(testProvidersConfig())

	_, ok := reg.Get(domain.Provider("UNKNOWN"))
	assert.False(t, ok)
}

func TestIsIPAllowed_ExactMatch(t *testing.T) {
	assert.True(t, IsIPAllowed("10.0.0.1", []string{"10.0.0.1"}))
}

func TestIsIPAllowed_NoMatch(t *testing.T) {
	assert.False(t, IsIPAllowed("8.8.8.8", []string{"10.0.0.1", "10.0.0.3"}))
}

func TestIsIPAllowed_NoCIDRParsing(t *testing.T) {
	// The allowlist is matched by exact string equality only; a configured
	// CIDR block does not widen to match addresses within its range.
	assert.False(t, IsIPAllowed("192.168.1.42", []string{"192.168.1.0/24"}))
}

func TestIsIPAllowed_EmptyAllowlistIsPermissive(t *testing.T) {
	assert.True(t, IsIPAllowed("10.0.0.1", nil))
}
