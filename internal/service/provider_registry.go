package service

import (
	"depositgateway/config"
	"depositgateway/internal/core/domain"
	"depositgateway/internal/core/ports"
)

// configProviderRegistry implements ports.ProviderRegistry over the
// statically loaded config.ProvidersConfig (C2). It never changes after
// startup, so no locking is needed for reads.
type configProviderRegistry struct {
	byProvider map[domain.Provider]ports.ProviderConfig
}

// NewProviderRegistry builds a ProviderRegistry from the loaded config.
func NewProviderRegistry(cfg config.ProvidersConfig) ports.ProviderRegistry {
	return &configProviderRegistry{
		byProvider: map[domain.Provider]ports.ProviderConfig{
			domain.ProviderJazzCash: {
				HMACSecret:      cfg.JazzCash.HMACSecret,
				RedirectBaseURL: cfg.JazzCash.BaseURL,
				IPAllowlist:     cfg.JazzCash.IPAllowlist,
			},
			domain.ProviderEasyPaisa: {
				HMACSecret:      cfg.EasyPaisa.HMACSecret,
				RedirectBaseURL: cfg.EasyPaisa.BaseURL,
				IPAllowlist:     cfg.EasyPaisa.IPAllowlist,
			},
			domain.ProviderSadaPay: {
				HMACSecret:      cfg.SadaPay.HMACSecret,
				RedirectBaseURL: cfg.SadaPay.BaseURL,
				IPAllowlist:     cfg.SadaPay.IPAllowlist,
			},
		},
	}
}

func (r *configProviderRegistry) Get(provider domain.Provider) (ports.ProviderConfig, bool) {
	cfg, ok := r.byProvider[provider]
	return cfg, ok
}

// IsIPAllowed reports whether sourceIP matches one of allowlist's entries.
// An empty allowlist is permissive by default (useful for local development);
// otherwise matching is exact string equality, not CIDR — whether providers
// deliver from ranges or behind a trusted proxy is left as an open question.
func IsIPAllowed(sourceIP string, allowlist []string) bool {
	if len(allowlist) == 0 {
		return true
	}
	for _, entry := range allowlist {
		if entry == sourceIP {
			return true
		}
	}
	return false
}
