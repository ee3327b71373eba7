// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for
// ragchat.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// =============================================================================
// DEFAULTS TESTS
// =============================================================================

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Endpoint.BaseURL != "http://127.0.0.1:8080" {
		t.Errorf("BaseURL = %q", cfg.Endpoint.BaseURL)
	}
	if cfg.Endpoint.AskPath != "/api/ask" {
		t.Errorf("AskPath = %q", cfg.Endpoint.AskPath)
	}
	if cfg.Timeout() != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Timeout())
	}
	if cfg.SettleDelay() != 300*time.Millisecond {
		t.Errorf("SettleDelay = %v, want 300ms", cfg.SettleDelay())
	}
	if cfg.Generation.Temperature != 0.2 {
		t.Errorf("Temperature = %f", cfg.Generation.Temperature)
	}
	if !cfg.Storage.CatalogEnabled {
		t.Error("catalog should default to enabled")
	}
}

func TestSetDefaults_FillsZeroValues(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	if cfg.Endpoint.BaseURL == "" || cfg.Endpoint.AskPath == "" {
		t.Errorf("endpoint defaults missing: %+v", cfg.Endpoint)
	}
	if cfg.Engine.SettleDelayMs != 300 {
		t.Errorf("SettleDelayMs = %d, want 300", cfg.Engine.SettleDelayMs)
	}
	if cfg.Storage.MaxConversations != 100 {
		t.Errorf("MaxConversations = %d, want 100", cfg.Storage.MaxConversations)
	}
}

func TestSetDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Endpoint.BaseURL = "http://custom.test"
	cfg.Engine.SettleDelayMs = 50

	cfg.SetDefaults()

	if cfg.Endpoint.BaseURL != "http://custom.test" {
		t.Errorf("BaseURL = %q", cfg.Endpoint.BaseURL)
	}
	if cfg.Engine.SettleDelayMs != 50 {
		t.Errorf("SettleDelayMs = %d, want 50", cfg.Engine.SettleDelayMs)
	}
}

// =============================================================================
// FILE LOADING TESTS
// =============================================================================

func TestLoadFromPath_TOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
version = "1"

[endpoint]
base_url = "http://chat.internal:9000"
bearer_token = "tok"

[generation]
model = "local-mini"
temperature = 0.7
dataset = "kb"

[engine]
settle_delay_ms = 150
submit_per_minute = 10
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}

	if cfg.Endpoint.BaseURL != "http://chat.internal:9000" {
		t.Errorf("BaseURL = %q", cfg.Endpoint.BaseURL)
	}
	if cfg.Generation.Model != "local-mini" || cfg.Generation.Dataset != "kb" {
		t.Errorf("generation = %+v", cfg.Generation)
	}
	if cfg.Engine.SettleDelayMs != 150 || cfg.Engine.SubmitPerMinute != 10 {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	// Unset fields still get defaults.
	if cfg.Endpoint.AskPath != "/api/ask" {
		t.Errorf("AskPath = %q, want default", cfg.Endpoint.AskPath)
	}
}

func TestLoadFromPath_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"endpoint":{"base_url":"http://json.test"},"generation":{"model":"j-model"}}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Endpoint.BaseURL != "http://json.test" || cfg.Generation.Model != "j-model" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadFromPath_UnsupportedExtension(t *testing.T) {
	if _, err := LoadFromPath("/tmp/config.yaml"); err == nil {
		t.Error("expected an error for unsupported format")
	}
}

func TestLoadFromPath_InvalidValuesRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "[generation]\ntemperature = 3.5\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFromPath(path); err == nil {
		t.Error("expected validation failure for temperature 3.5")
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDE TESTS
// =============================================================================

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("RAGCHAT_URL", "http://env.test")
	t.Setenv("RAGCHAT_TOKEN", "env-token")
	t.Setenv("RAGCHAT_MODEL", "env-model")
	t.Setenv("RAGCHAT_DATASET", "env-ds")
	t.Setenv("RAGCHAT_TEMPERATURE", "0.9")
	t.Setenv("RAGCHAT_SETTLE_MS", "450")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Endpoint.BaseURL != "http://env.test" || cfg.Endpoint.BearerToken != "env-token" {
		t.Errorf("endpoint = %+v", cfg.Endpoint)
	}
	if cfg.Generation.Model != "env-model" || cfg.Generation.Dataset != "env-ds" {
		t.Errorf("generation = %+v", cfg.Generation)
	}
	if cfg.Generation.Temperature != 0.9 {
		t.Errorf("Temperature = %f", cfg.Generation.Temperature)
	}
	if cfg.Engine.SettleDelayMs != 450 {
		t.Errorf("SettleDelayMs = %d", cfg.Engine.SettleDelayMs)
	}
}

func TestApplyEnvOverrides_MalformedNumbersIgnored(t *testing.T) {
	t.Setenv("RAGCHAT_TEMPERATURE", "hot")
	t.Setenv("RAGCHAT_SETTLE_MS", "soon")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Generation.Temperature != 0.2 || cfg.Engine.SettleDelayMs != 300 {
		t.Errorf("malformed env values applied: %+v %+v", cfg.Generation, cfg.Engine)
	}
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(*Config) {}, true},
		{"ask path missing slash", func(c *Config) { c.Endpoint.AskPath = "api/ask" }, false},
		{"negative timeout", func(c *Config) { c.Endpoint.TimeoutSecs = -1 }, false},
		{"temperature too high", func(c *Config) { c.Generation.Temperature = 2.5 }, false},
		{"temperature boundary", func(c *Config) { c.Generation.Temperature = 2.0 }, true},
		{"negative settle", func(c *Config) { c.Engine.SettleDelayMs = -10 }, false},
		{"negative rate limit", func(c *Config) { c.Engine.SubmitPerMinute = -1 }, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.valid && err != nil {
				t.Errorf("Validate = %v, want nil", err)
			}
			if !tc.valid && err == nil {
				t.Error("Validate = nil, want error")
			}
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	err := ValidationError{Field: "endpoint.base_url", Message: "not a valid URL"}
	if err.Error() != "endpoint.base_url: not a valid URL" {
		t.Errorf("Error() = %q", err.Error())
	}
}
