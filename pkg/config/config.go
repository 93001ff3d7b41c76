// Package config loads process configuration from the environment with
// sensible defaults. Values are read once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/medcode-ai/opnote/pkg/orchestrator"
	"github.com/medcode-ai/opnote/pkg/services"
)

// Config is the process configuration.
type Config struct {
	// AI model routing.
	AIProvider services.AIProvider
	AIModel    string
	AIEndpoint string
	AIAPIKey   string

	// Processing defaults.
	Jurisdiction  string
	ErrorPolicy   orchestrator.ErrorPolicy
	GlobalTimeout time.Duration
	MaxRetries    int
	CacheTTL      time.Duration

	// Artifact storage. Empty DatabaseURL selects the in-memory store.
	DatabaseURL string
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		AIProvider:    services.AIProvider(envOr("OPNOTE_AI_PROVIDER", string(services.ProviderOpenAI))),
		AIModel:       os.Getenv("OPNOTE_AI_MODEL"),
		AIEndpoint:    os.Getenv("OPNOTE_AI_ENDPOINT"),
		AIAPIKey:      os.Getenv("OPNOTE_AI_API_KEY"),
		Jurisdiction:  envOr("OPNOTE_JURISDICTION", services.DefaultJurisdiction),
		ErrorPolicy:   orchestrator.ErrorPolicy(envOr("OPNOTE_ERROR_POLICY", string(orchestrator.PolicyContinue))),
		GlobalTimeout: orchestrator.DefaultGlobalTimeout,
		MaxRetries:    3,
		CacheTTL:      10 * time.Minute,
		DatabaseURL:   os.Getenv("OPNOTE_DATABASE_URL"),
	}

	switch cfg.ErrorPolicy {
	case orchestrator.PolicyFailFast, orchestrator.PolicySkipDependents, orchestrator.PolicyContinue:
	default:
		return nil, fmt.Errorf("invalid OPNOTE_ERROR_POLICY %q", cfg.ErrorPolicy)
	}

	if v := os.Getenv("OPNOTE_TIMEOUT_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("invalid OPNOTE_TIMEOUT_SECONDS %q", v)
		}
		cfg.GlobalTimeout = time.Duration(secs) * time.Second
	}
	if v := os.Getenv("OPNOTE_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid OPNOTE_MAX_RETRIES %q", v)
		}
		cfg.MaxRetries = n
	}
	return cfg, nil
}

// AIModelConfig projects the AI settings for the service registry.
func (c *Config) AIModelConfig() services.AIModelConfig {
	return services.AIModelConfig{
		Provider: c.AIProvider,
		Model:    c.AIModel,
		Endpoint: c.AIEndpoint,
		APIKey:   c.AIAPIKey,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
