package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
//
// Note: provider API keys are intentionally not required here. The fallback
// chain is designed to run with zero, one, or both generation credentials,
// and search degrades to an empty result set without a key.
func (c *Config) Validate() error {
	// 1. Generation provider validation
	if err := validateBaseURL(c.OpenRouterBaseURL); err != nil {
		return fmt.Errorf("openrouter_base_url: %w", err)
	}
	if c.OpenRouterModel == "" {
		return fmt.Errorf("%w: openrouter_model cannot be empty", ErrInvalidModelName)
	}
	if c.GeminiModel == "" {
		return fmt.Errorf("%w: gemini_model cannot be empty", ErrInvalidModelName)
	}
	if c.GenerationTimeoutMs < 1000 || c.GenerationTimeoutMs > 600000 {
		return fmt.Errorf("%w: generation_timeout_ms must be between 1,000 and 600,000, got %d",
			ErrInvalidTimeout, c.GenerationTimeoutMs)
	}

	// 2. Search validation
	if err := validateBaseURL(c.Search.BaseURL); err != nil {
		return fmt.Errorf("search.base_url: %w", err)
	}
	if c.Search.MaxResults < 1 || c.Search.MaxResults > 50 {
		return fmt.Errorf("%w: search.max_results must be between 1 and 50, got %d",
			ErrInvalidMaxResults, c.Search.MaxResults)
	}
	if c.Search.TimeoutMs < 100 || c.Search.TimeoutMs > 60000 {
		return fmt.Errorf("%w: search.timeout_ms must be between 100 and 60,000, got %d",
			ErrInvalidTimeout, c.Search.TimeoutMs)
	}

	// 3. Scraper validation
	if c.Scraper.Parallelism < 1 || c.Scraper.Parallelism > 16 {
		return fmt.Errorf("%w: scraper.parallelism must be between 1 and 16, got %d",
			ErrInvalidParallelism, c.Scraper.Parallelism)
	}
	if c.Scraper.TimeoutMs < 100 || c.Scraper.TimeoutMs > 120000 {
		return fmt.Errorf("%w: scraper.timeout_ms must be between 100 and 120,000, got %d",
			ErrInvalidTimeout, c.Scraper.TimeoutMs)
	}
	if c.Scraper.MaxSources < 0 || c.Scraper.MaxSources > 10 {
		return fmt.Errorf("%w: scraper.max_sources must be between 0 and 10, got %d",
			ErrInvalidMaxResults, c.Scraper.MaxSources)
	}

	// 4. Stream validation. The inactivity timeout must comfortably exceed
	// the keepalive interval or every stream would look dead.
	if c.Stream.InactivityTimeoutMs < 1000 {
		return fmt.Errorf("%w: stream.inactivity_timeout_ms must be at least 1,000, got %d",
			ErrInvalidTimeout, c.Stream.InactivityTimeoutMs)
	}
	if c.Stream.KeepaliveIntervalMs < 100 {
		return fmt.Errorf("%w: stream.keepalive_interval_ms must be at least 100, got %d",
			ErrInvalidTimeout, c.Stream.KeepaliveIntervalMs)
	}
	if c.Stream.KeepaliveIntervalMs >= c.Stream.InactivityTimeoutMs {
		return fmt.Errorf("%w: keepalive interval (%dms) must be shorter than inactivity timeout (%dms)",
			ErrInvalidTimeout, c.Stream.KeepaliveIntervalMs, c.Stream.InactivityTimeoutMs)
	}

	// 5. Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port must be between 1 and 65535, got %d",
			ErrInvalidPort, c.Server.Port)
	}

	// 6. Storage validation. An empty URL disables persistence; when set it
	// must point at Postgres.
	if c.DatabaseURL != "" &&
		!strings.HasPrefix(c.DatabaseURL, "postgres://") &&
		!strings.HasPrefix(c.DatabaseURL, "postgresql://") {
		return fmt.Errorf("%w: database_url must use postgres:// or postgresql:// scheme",
			ErrInvalidDatabaseURL)
	}

	return nil
}

// validateBaseURL checks that a provider endpoint is an absolute http(s) URL.
func validateBaseURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: cannot be empty", ErrInvalidBaseURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https, got %q", ErrInvalidBaseURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidBaseURL)
	}
	return nil
}
