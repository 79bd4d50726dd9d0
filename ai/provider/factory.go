// Package provider selects and builds the LLM client used by prompt routines
// and LLM-judged metrics.
package provider

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/evalanche/ai/openrouter"
	"github.com/teranos/evalanche/ai/tracker"
	"github.com/teranos/evalanche/am"
)

// AIClient interface for all LLM providers
type AIClient interface {
	Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error)
}

// ClientConfig holds common configuration for creating AI clients
type ClientConfig struct {
	Provider      string                // "", "auto", "local" or "openrouter"
	Tracker       *tracker.UsageTracker // nil = no usage tracking
	Logger        *zap.SugaredLogger
	OperationType string // "routine" or "metric"
	EntityType    string
	EntityID      string
	Model         string // overrides the provider's configured model
}

// NewAIClient creates an AI client for the provider named in clientCfg,
// choosing from cfg when it is empty or "auto"
func NewAIClient(cfg *am.Config, clientCfg ClientConfig) (AIClient, error) {
	if _, err := ParseProvider(clientCfg.Provider); err != nil {
		return nil, err
	}

	switch DetermineProvider(cfg, clientCfg.Provider) {
	case ProviderTypeLocal:
		return newLocalClient(cfg, clientCfg), nil
	default:
		return newOpenRouterClient(cfg, clientCfg), nil
	}
}

func newLocalClient(cfg *am.Config, clientCfg ClientConfig) AIClient {
	local := cfg.LocalInference
	if clientCfg.Model != "" {
		local.Model = clientCfg.Model
	}
	return NewLocalProvider(local, clientCfg)
}

func newOpenRouterClient(cfg *am.Config, clientCfg ClientConfig) AIClient {
	model := cfg.OpenRouter.Model
	if clientCfg.Model != "" {
		model = clientCfg.Model
	}
	return openrouter.NewClient(openrouter.Config{
		APIKey:        cfg.OpenRouter.APIKey,
		Model:         model,
		Temperature:   cfg.OpenRouter.Temperature,
		MaxTokens:     cfg.OpenRouter.MaxTokens,
		Logger:        clientCfg.Logger,
		Tracker:       clientCfg.Tracker,
		OperationType: clientCfg.OperationType,
		EntityType:    clientCfg.EntityType,
		EntityID:      clientCfg.EntityID,
	})
}

var _ AIClient = (*openrouter.Client)(nil)
var _ AIClient = (*LocalProvider)(nil)
