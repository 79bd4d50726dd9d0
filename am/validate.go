package am

import (
	"regexp"

	"github.com/teranos/evalanche/errors"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Database path is optional - empty defaults to DefaultDatabasePath

	if c.Database.Catalog != "" && !identifierPattern.MatchString(c.Database.Catalog) {
		return errors.NewConfigurationError("database.catalog must be an identifier, got %q", c.Database.Catalog)
	}
	for schema, path := range c.Database.Attach {
		if !identifierPattern.MatchString(schema) {
			return errors.NewConfigurationError("database.attach key must be an identifier, got %q", schema)
		}
		if schema == "main" || schema == "temp" {
			return errors.NewConfigurationError("database.attach cannot redefine the %q schema", schema)
		}
		if path == "" {
			return errors.NewConfigurationError("database.attach.%s cannot be empty", schema)
		}
	}

	// Pipeline workers: 0 = logical CPU count, negative = invalid
	if c.Pipeline.Workers < 0 {
		return errors.NewConfigurationError("pipeline.workers must be >= 0, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.BatchSize < 0 {
		return errors.NewConfigurationError("pipeline.batch_size must be >= 0, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.MaxRetries < 0 {
		return errors.NewConfigurationError("pipeline.max_retries must be >= 0, got %d", c.Pipeline.MaxRetries)
	}
	if c.Pipeline.RetryBackoffMS < 0 {
		return errors.NewConfigurationError("pipeline.retry_backoff_ms must be >= 0, got %d", c.Pipeline.RetryBackoffMS)
	}
	for key, col := range map[string]string{
		"pipeline.row_id_column":   c.Pipeline.RowIDColumn,
		"pipeline.response_column": c.Pipeline.ResponseColumn,
	} {
		if col != "" && !identifierPattern.MatchString(col) {
			return errors.NewConfigurationError("%s must be an identifier, got %q", key, col)
		}
	}

	if c.Preview.Limit < 0 || c.Preview.ConfigureLimit < 0 {
		return errors.NewConfigurationError("preview limits must be >= 0")
	}

	// Validate local inference configuration only when enabled
	if c.LocalInference.Enabled {
		if c.LocalInference.BaseURL == "" {
			return errors.NewConfigurationError("local_inference.base_url cannot be empty when enabled")
		}
		if c.LocalInference.Model == "" {
			return errors.NewConfigurationError("local_inference.model cannot be empty when enabled")
		}
		if c.LocalInference.TimeoutSeconds <= 0 {
			return errors.NewConfigurationError("local_inference.timeout_seconds must be > 0, got %d", c.LocalInference.TimeoutSeconds)
		}
	}

	// Rate limit: 0 = unlimited, negative = invalid
	if c.RateLimit.LLMCallsPerMinute < 0 {
		return errors.NewConfigurationError("rate_limit.llm_calls_per_minute must be >= 0, got %d", c.RateLimit.LLMCallsPerMinute)
	}

	seen := make(map[string]bool, len(c.Routines))
	for i, r := range c.Routines {
		if !identifierPattern.MatchString(r.Name) {
			return errors.NewConfigurationError("routines[%d].name must be an identifier, got %q", i, r.Name)
		}
		if seen[r.Name] {
			return errors.NewConfigurationError("routine %q defined more than once", r.Name)
		}
		seen[r.Name] = true
		if r.Prompt == "" {
			return errors.NewConfigurationError("routine %q has an empty prompt", r.Name)
		}
		switch r.Provider {
		case "", "auto", "local", "openrouter":
		default:
			return errors.NewConfigurationError("routine %q has unknown provider %q (valid: auto, local, openrouter)", r.Name, r.Provider)
		}
	}

	return nil
}
