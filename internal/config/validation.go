package config

import (
	"fmt"
	"net/url"
	"time"
)

// ValidateServe checks the fields required to run the HTTP API server.
func (c *Config) ValidateServe() error {
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name must not be empty", ErrInvalidModelName)
	}
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY is required for answer generation", ErrMissingAPIKey)
	}
	if c.EmbeddingAPIKey == "" {
		return fmt.Errorf("%w: embedding_api_key is required for knowledge search", ErrMissingAPIKey)
	}
	if c.CacheTTL < time.Second || c.CacheTTL > 24*time.Hour {
		return fmt.Errorf("%w: %s (want 1s..24h)", ErrInvalidCacheTTL, c.CacheTTL)
	}
	return c.validateStorage()
}

// ValidateWorker checks the fields required to run the ingestion worker.
// News API keys are optional: a missing key skips that source.
func (c *Config) ValidateWorker() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY is required for content cleaning", ErrMissingAPIKey)
	}
	if c.EmbeddingAPIKey == "" {
		return fmt.Errorf("%w: embedding_api_key is required for indexing", ErrMissingAPIKey)
	}
	if u, err := url.Parse(c.ScrapeURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidScrapeURL, c.ScrapeURL)
	}
	if c.FetchInterval < time.Minute {
		return fmt.Errorf("%w: fetch_interval %s below 1m", ErrInvalidInterval, c.FetchInterval)
	}
	if c.ProcessInterval < time.Second {
		return fmt.Errorf("%w: process_interval %s below 1s", ErrInvalidInterval, c.ProcessInterval)
	}
	return c.validateStorage()
}

func (c *Config) validateStorage() error {
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	return nil
}
