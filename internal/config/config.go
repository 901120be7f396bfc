// Package config loads the router's TOML configuration: defaults first,
// then the config file, then PRISM_* env vars (env wins).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Router        RouterConfig        `toml:"router"`
	Models        ModelsConfig        `toml:"models"`
	Decomposition DecompositionConfig `toml:"decomposition"`
	Evaluation    EvaluationConfig    `toml:"evaluation"`
	ErrorHandling ErrorHandlingConfig `toml:"error_handling"`
	Provider      ProviderConfig      `toml:"provider"`
	Database      DatabaseConfig      `toml:"database"`
	Observer      ObserverConfig      `toml:"observer"`
	// Capabilities maps an agent id to the capability tags it serves.
	Capabilities map[string][]string `toml:"capabilities"`
}

type RouterConfig struct {
	Enabled bool `toml:"enabled"`
}

type ModelsConfig struct {
	Interpretation ModelConfig `toml:"interpretation"`
	Decomposition  ModelConfig `toml:"decomposition"`
	Synthesis      ModelConfig `toml:"synthesis"`
	Evaluation     ModelConfig `toml:"evaluation"`
}

type ModelConfig struct {
	Name        string  `toml:"name"`
	Temperature float64 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
}

type DecompositionConfig struct {
	MaxSubqueries     int     `toml:"max_subqueries"`
	RecursionLimit    int     `toml:"recursion_limit"`
	FallbackThreshold float64 `toml:"fallback_threshold"`
}

type EvaluationConfig struct {
	FallbackMessage  string   `toml:"fallback_message"`
	QualityThreshold float64  `toml:"quality_threshold"`
	Criteria         []string `toml:"criteria"`
}

type ErrorHandlingConfig struct {
	// TimeoutSeconds is the per-dispatch deadline.
	TimeoutSeconds float64 `toml:"timeout"`
	Retries        int     `toml:"retries"`
}

type ProviderConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
}

type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
	DSN    string `toml:"dsn"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Timeout converts the configured seconds to a duration.
func (e ErrorHandlingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds * float64(time.Second))
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Router: RouterConfig{Enabled: true},
		Models: ModelsConfig{
			Interpretation: ModelConfig{Name: "gpt-4o-mini", Temperature: 0, MaxTokens: 512},
			Decomposition:  ModelConfig{Name: "gpt-4o-mini", Temperature: 0, MaxTokens: 1024},
			Synthesis:      ModelConfig{Name: "gpt-4o", Temperature: 0.3, MaxTokens: 2048},
			Evaluation:     ModelConfig{Name: "gpt-4o-mini", Temperature: 0, MaxTokens: 512},
		},
		Decomposition: DecompositionConfig{MaxSubqueries: 10, RecursionLimit: 1, FallbackThreshold: 0.5},
		Evaluation: EvaluationConfig{
			FallbackMessage:  "I wasn't able to find a reliable answer to that. Could you rephrase or narrow the question?",
			QualityThreshold: 0.7,
			Criteria:         []string{"completeness", "accuracy", "clarity"},
		},
		ErrorHandling: ErrorHandlingConfig{TimeoutSeconds: 30, Retries: 2},
		Provider:      ProviderConfig{BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini"},
		Database:      DatabaseConfig{Driver: "sqlite", Path: "prism.db"},
		Capabilities: map[string][]string{
			"search_agent":       {"search", "web_search"},
			"conversation_agent": {"conversation", "chitchat"},
		},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "prism.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		// A capabilities table in the file replaces the default agents
		// rather than merging with them.
		defaultCaps := cfg.Capabilities
		cfg.Capabilities = nil
		_ = toml.Unmarshal(data, &cfg)
		if cfg.Capabilities == nil {
			cfg.Capabilities = defaultCaps
		}
	}

	// Env overrides
	if v := os.Getenv("PRISM_PROVIDER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("PRISM_PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("PRISM_PROVIDER_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("PRISM_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("PRISM_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("PRISM_QUALITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Evaluation.QualityThreshold = f
		}
	}
	if v := os.Getenv("PRISM_MAX_SUBQUERIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Decomposition.MaxSubqueries = n
		}
	}
	if v := os.Getenv("PRISM_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	// Per-stage models default to the provider model when unset.
	for _, m := range []*ModelConfig{
		&cfg.Models.Interpretation, &cfg.Models.Decomposition,
		&cfg.Models.Synthesis, &cfg.Models.Evaluation,
	} {
		if m.Name == "" {
			m.Name = cfg.Provider.Model
		}
	}

	return cfg
}

// Validate checks the loaded config for values the pipeline cannot run with.
// Misconfiguration here is fatal rather than silently corrected.
func (c Config) Validate() error {
	if c.Decomposition.MaxSubqueries < 1 {
		return fmt.Errorf("config: decomposition.max_subqueries must be >= 1, got %d", c.Decomposition.MaxSubqueries)
	}
	if c.Decomposition.RecursionLimit < 1 {
		return fmt.Errorf("config: decomposition.recursion_limit must be >= 1, got %d", c.Decomposition.RecursionLimit)
	}
	if c.Evaluation.QualityThreshold < 0 || c.Evaluation.QualityThreshold > 1 {
		return fmt.Errorf("config: evaluation.quality_threshold must be in [0,1], got %g", c.Evaluation.QualityThreshold)
	}
	if strings.TrimSpace(c.Evaluation.FallbackMessage) == "" {
		return fmt.Errorf("config: evaluation.fallback_message must not be empty")
	}
	if c.ErrorHandling.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: error_handling.timeout must be positive, got %g", c.ErrorHandling.TimeoutSeconds)
	}
	if c.ErrorHandling.Retries < 0 {
		return fmt.Errorf("config: error_handling.retries must be >= 0, got %d", c.ErrorHandling.Retries)
	}
	if len(c.Capabilities) == 0 {
		return fmt.Errorf("config: capabilities map is empty; at least one agent is required")
	}
	for agentID, caps := range c.Capabilities {
		if len(caps) == 0 {
			return fmt.Errorf("config: agent %q advertises no capabilities", agentID)
		}
	}
	switch c.Database.Driver {
	case "sqlite", "postgres", "":
	default:
		return fmt.Errorf("config: unknown database.driver %q", c.Database.Driver)
	}
	return nil
}
