package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// Default values shared between SetDefaults and the zero-value fallbacks below
const (
	DefaultDatabasePath   = "evalanche.db"
	DefaultCatalog        = "EVAL"
	DefaultBatchSize      = 1000
	DefaultRowIDColumn    = "ROW_ID"
	DefaultResponseColumn = "RESPONSE"
	DefaultPreviewLimit   = 50
	DefaultConfigureLimit = 5
	DefaultRetryBackoffMS = 200
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("database.catalog", DefaultCatalog)

	// Pipeline defaults
	v.SetDefault("pipeline.workers", 0) // logical CPU count
	v.SetDefault("pipeline.batch_size", DefaultBatchSize)
	v.SetDefault("pipeline.row_id_column", DefaultRowIDColumn)
	v.SetDefault("pipeline.response_column", DefaultResponseColumn)
	v.SetDefault("pipeline.max_retries", 0) // no retry unless asked for
	v.SetDefault("pipeline.retry_backoff_ms", DefaultRetryBackoffMS)

	// Preview defaults
	v.SetDefault("preview.limit", DefaultPreviewLimit)
	v.SetDefault("preview.configure_limit", DefaultConfigureLimit)

	// Local Inference (Ollama) defaults
	v.SetDefault("local_inference.enabled", false)
	v.SetDefault("local_inference.base_url", "http://localhost:11434")
	v.SetDefault("local_inference.model", "llama3.2:3b")
	v.SetDefault("local_inference.timeout_seconds", 120)

	// OpenRouter defaults
	v.SetDefault("openrouter.model", "openai/gpt-4o-mini") // Cost-effective default
	v.SetDefault("openrouter.temperature", 0.2)            // Deterministic
	v.SetDefault("openrouter.max_tokens", 1000)            // Token limit

	// Rate limit defaults
	v.SetDefault("rate_limit.llm_calls_per_minute", 60)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	// Database path
	v.BindEnv("database.path", "EVALANCHE_DATABASE_PATH")

	// OpenRouter key, also honoured under its conventional name
	v.BindEnv("openrouter.api_key", "EVALANCHE_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")

	// Local inference configuration
	v.BindEnv("local_inference.enabled", "EVALANCHE_LOCAL_INFERENCE_ENABLED")
	v.BindEnv("local_inference.base_url", "EVALANCHE_LOCAL_INFERENCE_BASE_URL")
	v.BindEnv("local_inference.model", "EVALANCHE_LOCAL_INFERENCE_MODEL")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return DefaultDatabasePath // Fallback default
	}
	return c.Database.Path
}

// GetCatalog returns the catalog name used in three-part references
func (c *Config) GetCatalog() string {
	if c.Database.Catalog == "" {
		return DefaultCatalog
	}
	return c.Database.Catalog
}

// GetPipelineConfig returns the pipeline configuration with defaults applied
func (c *Config) GetPipelineConfig() PipelineConfig {
	cfg := c.Pipeline

	// Apply defaults for zero values
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.RowIDColumn == "" {
		cfg.RowIDColumn = DefaultRowIDColumn
	}
	if cfg.ResponseColumn == "" {
		cfg.ResponseColumn = DefaultResponseColumn
	}
	if cfg.RetryBackoffMS == 0 {
		cfg.RetryBackoffMS = DefaultRetryBackoffMS
	}

	return cfg
}

// GetPreviewConfig returns the preview configuration with defaults applied
func (c *Config) GetPreviewConfig() PreviewConfig {
	cfg := c.Preview
	if cfg.Limit == 0 {
		cfg.Limit = DefaultPreviewLimit
	}
	if cfg.ConfigureLimit == 0 {
		cfg.ConfigureLimit = DefaultConfigureLimit
	}
	return cfg
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Catalog: %s, Pipeline: {Workers: %d, BatchSize: %d}}",
		c.GetDatabasePath(), c.GetCatalog(), c.Pipeline.Workers, c.Pipeline.BatchSize)
}
