// Package openrouter is a chat completions client for OpenRouter.ai and any
// OpenAI-compatible endpoint.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/evalanche/ai/tracker"
	"github.com/teranos/evalanche/errors"
	"github.com/teranos/evalanche/logger"
)

const (
	// DefaultModel is the fallback model when none is specified.
	// Should match the default in am/defaults.go.
	DefaultModel = "openai/gpt-4o-mini"

	// DefaultBaseURL is the OpenRouter API root
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	defaultTimeout = 120 * time.Second
	maxAttempts    = 3
)

// Client represents an OpenRouter.ai API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	config     Config
	tracker    *tracker.UsageTracker
	logger     *zap.SugaredLogger
}

// Config holds AI client configuration
type Config struct {
	APIKey        string
	BaseURL       string // "" = DefaultBaseURL
	Model         string
	Temperature   *float64              // nil = use default (0.2)
	MaxTokens     *int                  // nil = use default (1000)
	Logger        *zap.SugaredLogger    // nil = nop logger
	Tracker       *tracker.UsageTracker // records every call when set
	OperationType string                // tracking context, e.g. "routine"
	EntityType    string
	EntityID      string // e.g. the routine name
}

// NewClient creates a new OpenRouter.ai client with defaults applied
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Temperature == nil {
		defaultTemp := 0.2
		config.Temperature = &defaultTemp
	}
	if config.MaxTokens == nil {
		defaultTokens := 1000
		config.MaxTokens = &defaultTokens
	}
	baseURL := strings.TrimSuffix(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		config:     config,
		tracker:    config.Tracker,
		logger:     logger.OrNop(config.Logger),
	}
}

// ChatCompletionRequest represents a request to the chat completions endpoint
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// ChatRequest represents a high-level request to the AI
type ChatRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  *float64 // Override default temperature
	MaxTokens    *int     // Override default max tokens
	Model        *string  // Override default model
}

// ChatResponse represents the AI response
type ChatResponse struct {
	Content string
	Model   string
	Usage   Usage
}

// Message represents a message in a chat completion
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse represents the response from chat completions
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice represents a completion choice
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// APIError is a non-200 response from the API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return "API request failed with status " + http.StatusText(e.StatusCode) + ": " + e.Body
}

// CreateChatCompletion sends one chat completion request
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	title := "evalanche"
	if c.config.OperationType != "" {
		title += "/" + c.config.OperationType
	}
	httpReq.Header.Set("X-Title", title)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.WithStack(&APIError{StatusCode: resp.StatusCode, Body: string(respBody)})
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal response")
	}
	return &chatResp, nil
}

// Chat sends a system + user prompt and returns the trimmed reply. Network
// failures, rate limiting and server errors are retried.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if !c.IsConfigured() {
		return nil, errors.WithHint(
			errors.NewConfigurationError("OpenRouter API key not configured"),
			"set openrouter.api_key or OPENROUTER_API_KEY",
		)
	}

	temperature := *c.config.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := *c.config.MaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	model := c.config.Model
	if req.Model != nil && *req.Model != "" {
		model = *req.Model
	}

	c.logger.Debugw("AI chat request",
		"model", model,
		"temperature", temperature,
		"max_tokens", maxTokens,
		"prompt_length", len(req.UserPrompt),
	)

	messages := []Message{{Role: "user", Content: req.UserPrompt}}
	if req.SystemPrompt != "" {
		messages = append([]Message{{Role: "system", Content: req.SystemPrompt}}, messages...)
	}
	completionReq := ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	requestTime := time.Now()
	var resp *ChatCompletionResponse
	var err error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * time.Second
			c.logger.Debugw("Retrying OpenRouter request", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				err = ctx.Err()
				c.trackFailure(ctx, requestTime, model, temperature, maxTokens, err)
				return nil, errors.Wrap(err, "OpenRouter request cancelled")
			case <-time.After(delay):
			}
		}

		resp, err = c.CreateChatCompletion(ctx, completionReq)
		if err == nil {
			if attempt > 0 {
				c.logger.Infow("Request succeeded after retries", "attempts", attempt+1, "model", model)
			}
			break
		}

		c.logger.Warnw("OpenRouter API error",
			"attempt", attempt+1,
			"max_attempts", maxAttempts,
			logger.FieldError, err,
			"model", model,
		)
		if !isRetryableError(err) {
			c.trackFailure(ctx, requestTime, model, temperature, maxTokens, err)
			return nil, errors.Wrap(err, "OpenRouter API error")
		}
	}
	if err != nil {
		c.trackFailure(ctx, requestTime, model, temperature, maxTokens, err)
		return nil, errors.Wrapf(err, "OpenRouter API error after %d attempts", maxAttempts)
	}

	if len(resp.Choices) == 0 {
		return nil, errors.New("no response choices from OpenRouter")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)

	c.logger.Debugw("OpenRouter response",
		"content_length", len(content),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	c.trackSuccess(ctx, requestTime, model, temperature, maxTokens, resp.Usage)

	return &ChatResponse{Content: content, Model: model, Usage: resp.Usage}, nil
}

// isRetryableError reports whether err is a network failure, rate limit or
// server error
func isRetryableError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	networkErrors := []string{
		"connection reset by peer",
		"connection refused",
		"temporary failure",
		"network is unreachable",
		"i/o timeout",
	}
	for _, netErr := range networkErrors {
		if strings.Contains(errStr, netErr) {
			return true
		}
	}
	return false
}

func (c *Client) trackSuccess(ctx context.Context, requestTime time.Time, model string, temperature float64, maxTokens int, usage Usage) {
	if c.tracker == nil {
		return
	}
	responseTime := time.Now()
	tokens := usage.TotalTokens
	cost := CalculateCost(model, usage.PromptTokens, usage.CompletionTokens)

	c.track(ctx, &tracker.ModelUsage{
		ModelName:         model,
		ModelConfig:       tracker.NewModelConfig(&temperature, &maxTokens),
		RequestTimestamp:  requestTime,
		ResponseTimestamp: &responseTime,
		TokensUsed:        &tokens,
		Cost:              &cost,
		Success:           true,
	})
}

func (c *Client) trackFailure(ctx context.Context, requestTime time.Time, model string, temperature float64, maxTokens int, err error) {
	if c.tracker == nil {
		return
	}
	responseTime := time.Now()
	errMsg := err.Error()

	c.track(ctx, &tracker.ModelUsage{
		ModelName:         model,
		ModelConfig:       tracker.NewModelConfig(&temperature, &maxTokens),
		RequestTimestamp:  requestTime,
		ResponseTimestamp: &responseTime,
		Success:           false,
		ErrorMessage:      &errMsg,
	})
}

func (c *Client) track(ctx context.Context, usage *tracker.ModelUsage) {
	usage.OperationType = c.config.OperationType
	usage.EntityType = c.config.EntityType
	usage.EntityID = c.config.EntityID
	usage.ModelProvider = "openrouter"
	if runID := logger.RunIDFromContext(ctx); runID != "" {
		usage.Metadata = tracker.NewUsageMetadata(tracker.UsageMetadata{RunID: runID})
	}

	if err := c.tracker.TrackUsage(context.WithoutCancel(ctx), usage); err != nil {
		c.logger.Warnw("Failed to track usage", logger.FieldError, err, "model", usage.ModelName)
	}
}

// IsConfigured returns true if the client has an API key
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// Model returns the default model of the client
func (c *Client) Model() string {
	return c.config.Model
}

// SetHTTPClient overrides the HTTP client, for tests
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
