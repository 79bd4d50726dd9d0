package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/evalanche/ai/openrouter"
	"github.com/teranos/evalanche/ai/tracker"
	"github.com/teranos/evalanche/am"
	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/logger"
)

// LocalProvider talks to a local inference server through its
// OpenAI-compatible endpoint. Works with Ollama, LocalAI and llama.cpp.
type LocalProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
	tracker    *tracker.UsageTracker
	clientCfg  ClientConfig
	logger     *zap.SugaredLogger
}

// NewLocalProvider creates a provider for local inference
func NewLocalProvider(cfg am.LocalInferenceConfig, clientCfg ClientConfig) *LocalProvider {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &LocalProvider{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		tracker:    clientCfg.Tracker,
		clientCfg:  clientCfg,
		logger:     logger.OrNop(clientCfg.Logger),
	}
}

// chatCompletionRequest matches the OpenAI API format (Ollama is compatible)
type chatCompletionRequest struct {
	Model       string               `json:"model"`
	Messages    []openrouter.Message `json:"messages"`
	Stream      bool                 `json:"stream"`
	Temperature *float64             `json:"temperature,omitempty"`
	MaxTokens   *int                 `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message openrouter.Message `json:"message"`
	} `json:"choices"`
	Usage *openrouter.Usage `json:"usage,omitempty"`
}

// Chat implements AIClient for local inference. req.Model is ignored; the
// model is fixed by configuration.
func (lp *LocalProvider) Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error) {
	requestTime := time.Now()
	resp, err := lp.chat(ctx, req)
	lp.track(ctx, requestTime, resp, err)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (lp *LocalProvider) chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error) {
	var messages []openrouter.Message
	if req.SystemPrompt != "" {
		messages = append(messages, openrouter.Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, openrouter.Message{Role: "user", Content: req.UserPrompt})

	body, err := json.Marshal(chatCompletionRequest{
		Model:       lp.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	endpoint := lp.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	lp.logger.Debugw("Local inference request", "model", lp.model, "endpoint", endpoint)

	resp, err := lp.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.WithHintf(errors.Wrap(err, "local inference request failed"),
			"is the inference server running at %s?", lp.baseURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, errors.Newf("local inference returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, errors.Wrap(err, "failed to decode response")
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("no completion choices returned")
	}

	out := &openrouter.ChatResponse{
		Content: strings.TrimSpace(completion.Choices[0].Message.Content),
		Model:   lp.model,
	}
	if completion.Usage != nil {
		out.Usage = *completion.Usage
	}
	return out, nil
}

// track records the call; local inference has no API cost
func (lp *LocalProvider) track(ctx context.Context, requestTime time.Time, resp *openrouter.ChatResponse, callErr error) {
	if lp.tracker == nil {
		return
	}
	responseTime := time.Now()
	usage := &tracker.ModelUsage{
		OperationType:     lp.clientCfg.OperationType,
		EntityType:        lp.clientCfg.EntityType,
		EntityID:          lp.clientCfg.EntityID,
		ModelName:         lp.model,
		ModelProvider:     string(ProviderTypeLocal),
		RequestTimestamp:  requestTime,
		ResponseTimestamp: &responseTime,
		Success:           callErr == nil,
	}
	if callErr != nil {
		msg := callErr.Error()
		usage.ErrorMessage = &msg
	} else {
		tokens := resp.Usage.TotalTokens
		cost := 0.0
		usage.TokensUsed = &tokens
		usage.Cost = &cost
	}
	if err := lp.tracker.TrackUsage(context.WithoutCancel(ctx), usage); err != nil {
		lp.logger.Warnw("Failed to track usage", logger.FieldError, err, "model", lp.model)
	}
}

// GetModelName returns the configured local model name
func (lp *LocalProvider) GetModelName() string {
	return lp.model
}
