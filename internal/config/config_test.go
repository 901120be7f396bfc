package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config invalid: %v", err)
	}
	if cfg.Decomposition.MaxSubqueries != 10 {
		t.Errorf("max_subqueries = %d, want 10", cfg.Decomposition.MaxSubqueries)
	}
	if cfg.Evaluation.QualityThreshold != 0.7 {
		t.Errorf("quality_threshold = %g, want 0.7", cfg.Evaluation.QualityThreshold)
	}
	if got := cfg.ErrorHandling.Timeout(); got != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", got)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if cfg.ErrorHandling.Retries != 2 {
		t.Errorf("retries = %d, want default 2", cfg.ErrorHandling.Retries)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prism.toml")
	data := `
[evaluation]
quality_threshold = 0.8
fallback_message = "try again"

[error_handling]
timeout = 10.0
retries = 1

[decomposition]
max_subqueries = 5

[capabilities]
weather_agent = ["search"]
finance_agent = ["stocks"]
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)
	if cfg.Evaluation.QualityThreshold != 0.8 {
		t.Errorf("quality_threshold = %g, want 0.8", cfg.Evaluation.QualityThreshold)
	}
	if cfg.Evaluation.FallbackMessage != "try again" {
		t.Errorf("fallback_message = %q", cfg.Evaluation.FallbackMessage)
	}
	if cfg.ErrorHandling.Retries != 1 {
		t.Errorf("retries = %d, want 1", cfg.ErrorHandling.Retries)
	}
	if got := cfg.ErrorHandling.Timeout(); got != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", got)
	}
	if len(cfg.Capabilities) != 2 {
		t.Errorf("capabilities = %v, want 2 agents", cfg.Capabilities)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PRISM_PROVIDER_API_KEY", "sk-test")
	t.Setenv("PRISM_QUALITY_THRESHOLD", "0.9")
	t.Setenv("PRISM_MAX_SUBQUERIES", "3")

	cfg := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if cfg.Provider.APIKey != "sk-test" {
		t.Errorf("api_key = %q, want sk-test", cfg.Provider.APIKey)
	}
	if cfg.Evaluation.QualityThreshold != 0.9 {
		t.Errorf("quality_threshold = %g, want 0.9", cfg.Evaluation.QualityThreshold)
	}
	if cfg.Decomposition.MaxSubqueries != 3 {
		t.Errorf("max_subqueries = %d, want 3", cfg.Decomposition.MaxSubqueries)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero subqueries", func(c *Config) { c.Decomposition.MaxSubqueries = 0 }},
		{"zero recursion limit", func(c *Config) { c.Decomposition.RecursionLimit = 0 }},
		{"threshold above one", func(c *Config) { c.Evaluation.QualityThreshold = 1.5 }},
		{"blank fallback message", func(c *Config) { c.Evaluation.FallbackMessage = "  " }},
		{"negative timeout", func(c *Config) { c.ErrorHandling.TimeoutSeconds = -1 }},
		{"negative retries", func(c *Config) { c.ErrorHandling.Retries = -1 }},
		{"no capabilities", func(c *Config) { c.Capabilities = nil }},
		{"capability-less agent", func(c *Config) { c.Capabilities = map[string][]string{"a": {}} }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
