package provider

import (
	"strings"

	"github.com/teranos/evalanche/am"
	"github.com/teranos/evalanche/errors"
)

// ProviderType represents the type of LLM provider
type ProviderType string

const (
	ProviderTypeLocal      ProviderType = "local"      // Ollama, LocalAI, or any OpenAI-compatible local server
	ProviderTypeOpenRouter ProviderType = "openrouter" // OpenRouter cloud service (gateway to multiple models)
	ProviderTypeAuto       ProviderType = "auto"       // chosen from configuration
)

// ParseProvider converts a string to a ProviderType
func ParseProvider(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local", "ollama", "localai":
		return ProviderTypeLocal, nil
	case "openrouter", "or":
		return ProviderTypeOpenRouter, nil
	case "auto", "":
		return ProviderTypeAuto, nil
	default:
		return "", errors.NewConfigurationError("unknown provider: %s (valid: local, openrouter, auto)", s)
	}
}

// DetermineProvider resolves explicit (which may be empty or "auto") against
// the configuration. Local inference wins when enabled with a base URL;
// otherwise OpenRouter is used.
func DetermineProvider(cfg *am.Config, explicit string) ProviderType {
	if p, err := ParseProvider(explicit); err == nil && p != ProviderTypeAuto {
		return p
	}
	if cfg.LocalInference.Enabled && cfg.LocalInference.BaseURL != "" {
		return ProviderTypeLocal
	}
	return ProviderTypeOpenRouter
}

// GetAvailableProviders returns the providers usable with cfg
func GetAvailableProviders(cfg *am.Config) []ProviderType {
	var providers []ProviderType
	if cfg.LocalInference.Enabled && cfg.LocalInference.BaseURL != "" {
		providers = append(providers, ProviderTypeLocal)
	}
	if cfg.OpenRouter.APIKey != "" {
		providers = append(providers, ProviderTypeOpenRouter)
	}
	return providers
}
