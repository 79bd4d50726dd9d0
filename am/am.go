package am

// Config represents the evalanche configuration
type Config struct {
	Database       DatabaseConfig       `mapstructure:"database"`
	Pipeline       PipelineConfig       `mapstructure:"pipeline"`
	Preview        PreviewConfig        `mapstructure:"preview"`
	LocalInference LocalInferenceConfig `mapstructure:"local_inference"`
	OpenRouter     OpenRouterConfig     `mapstructure:"openrouter"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	Routines       []RoutineConfig      `mapstructure:"routines"`
}

// DatabaseConfig configures the SQLite analytical session
type DatabaseConfig struct {
	Path    string            `mapstructure:"path"`
	Catalog string            `mapstructure:"catalog"` // first part of catalog.schema.table references
	Attach  map[string]string `mapstructure:"attach"`  // schema name = "path/to/file.db"
}

// PipelineConfig configures the pipeline runner
type PipelineConfig struct {
	Workers        int    `mapstructure:"workers"`          // Concurrent routine calls per batch (0 = logical CPU count)
	BatchSize      int    `mapstructure:"batch_size"`       // Rows per fetched batch (default: 1000)
	RowIDColumn    string `mapstructure:"row_id_column"`    // Identifier column added by the tagger (default: ROW_ID)
	ResponseColumn string `mapstructure:"response_column"`  // Column holding the routine result (default: RESPONSE)
	MaxRetries     int    `mapstructure:"max_retries"`      // Per-row retries on invocation error (default: 0)
	RetryBackoffMS int    `mapstructure:"retry_backoff_ms"` // Initial retry backoff, doubled per attempt (default: 200)
}

// PreviewConfig configures data previews
type PreviewConfig struct {
	Limit          int `mapstructure:"limit"`           // Rows shown by preview (default: 50)
	ConfigureLimit int `mapstructure:"configure_limit"` // Rows joined when listing columns to configure (default: 5)
}

// LocalInferenceConfig configures local model inference (Ollama, LocalAI, etc.)
type LocalInferenceConfig struct {
	Enabled        bool   `mapstructure:"enabled"`         // Enable local inference instead of cloud APIs
	BaseURL        string `mapstructure:"base_url"`        // e.g., "http://localhost:11434" for Ollama
	Model          string `mapstructure:"model"`           // e.g., "mistral", "qwen2.5-coder:7b"
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // Request timeout in seconds
}

// OpenRouterConfig configures OpenRouter.ai API access
type OpenRouterConfig struct {
	APIKey      string   `mapstructure:"api_key"`     // OpenRouter API key
	Model       string   `mapstructure:"model"`       // Default model (e.g., "openai/gpt-4o-mini")
	Temperature *float64 `mapstructure:"temperature"` // Sampling temperature (nil = default 0.2)
	MaxTokens   *int     `mapstructure:"max_tokens"`  // Maximum tokens per request (nil = default 1000)
}

// RateLimitConfig bounds calls to external LLM providers
type RateLimitConfig struct {
	LLMCallsPerMinute int `mapstructure:"llm_calls_per_minute"` // 0 = unlimited
}

// RoutineConfig defines a prompt routine backed by an LLM
type RoutineConfig struct {
	Name         string `mapstructure:"name"`
	Prompt       string `mapstructure:"prompt"`        // text/template rendered with the record's columns
	SystemPrompt string `mapstructure:"system_prompt"` // optional system message
	Model        string `mapstructure:"model"`         // overrides the provider default model
	Provider     string `mapstructure:"provider"`      // "auto" (default), "local" or "openrouter"
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
