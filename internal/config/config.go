// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for
// ragchat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.ragchat/config.toml
//   - ~/.ragchat/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete ragchat configuration.
type Config struct {
	// General settings
	Version string `toml:"version" json:"version"`

	// Chat endpoint configuration
	Endpoint EndpointConfig `toml:"endpoint" json:"endpoint"`

	// Generation parameters
	Generation GenerationConfig `toml:"generation" json:"generation"`

	// Engine tuning
	Engine EngineConfig `toml:"engine" json:"engine"`

	// Local storage configuration
	Storage StorageConfig `toml:"storage" json:"storage"`
}

// EndpointConfig describes the chat service to talk to.
type EndpointConfig struct {
	// BaseURL of the chat service.
	BaseURL string `toml:"base_url" json:"base_url"`
	// AskPath is the streaming chat endpoint path.
	AskPath string `toml:"ask_path" json:"ask_path"`
	// BearerToken is the credential attached to each call. Renewal is
	// external; this engine only forwards the value.
	BearerToken string `toml:"bearer_token" json:"bearer_token"`
	// TimeoutSecs bounds connection and response headers. A request that
	// never calls back within this bound is treated as failed.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
}

// GenerationConfig carries the default per-question parameters.
type GenerationConfig struct {
	Model       string  `toml:"model" json:"model"`
	Temperature float64 `toml:"temperature" json:"temperature"`
	Dataset     string  `toml:"dataset" json:"dataset"`
}

// EngineConfig tunes the streaming engine.
type EngineConfig struct {
	// SettleDelayMs is the finalization guard's settle delay in
	// milliseconds.
	SettleDelayMs int `toml:"settle_delay_ms" json:"settle_delay_ms"`
	// SubmitPerMinute rate-limits question submissions (0 = unlimited).
	SubmitPerMinute int `toml:"submit_per_minute" json:"submit_per_minute"`
}

// StorageConfig configures local persistence.
type StorageConfig struct {
	// ConversationsDir is where conversations are saved
	// (default: ~/.ragchat/conversations).
	ConversationsDir string `toml:"conversations_dir" json:"conversations_dir"`
	// MaxConversations limits stored conversations (0 = unlimited).
	MaxConversations int `toml:"max_conversations" json:"max_conversations"`
	// CatalogPath is the SQLite source catalog location
	// (default: ~/.ragchat/catalog.db). Empty string with CatalogEnabled
	// false disables the catalog.
	CatalogPath    string `toml:"catalog_path" json:"catalog_path"`
	CatalogEnabled bool   `toml:"catalog_enabled" json:"catalog_enabled"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Version: "1",
		Endpoint: EndpointConfig{
			BaseURL:     "http://127.0.0.1:8080",
			AskPath:     "/api/ask",
			TimeoutSecs: 30,
		},
		Generation: GenerationConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			Dataset:     "default",
		},
		Engine: EngineConfig{
			SettleDelayMs:   300,
			SubmitPerMinute: 0,
		},
		Storage: StorageConfig{
			MaxConversations: 100,
			CatalogEnabled:   true,
		},
	}
}

// Timeout returns the endpoint timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Endpoint.TimeoutSecs) * time.Second
}

// SettleDelay returns the guard settle delay as a duration.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Engine.SettleDelayMs) * time.Millisecond
}

// =============================================================================
// FILE LOCATIONS
// =============================================================================

// ConfigDir returns the ragchat configuration directory (~/.ragchat).
func ConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".ragchat"), nil
}

// EnsureConfigDir creates the configuration directory if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ConfigPathTOML returns the TOML config file path.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the JSON config file path.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads configuration with the standard precedence: TOML file, JSON
// file, built-in defaults. Environment overrides apply on top of whichever
// source won.
func Load() (*Config, error) {
	cfg := Default()

	if path, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := LoadTOML(cfg, path); err != nil {
				return nil, fmt.Errorf("failed to load TOML config: %w", err)
			}
			return finish(cfg)
		}
	}

	if path, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			if err := LoadJSON(cfg, path); err != nil {
				return nil, fmt.Errorf("failed to load JSON config: %w", err)
			}
			return finish(cfg)
		}
	}

	return finish(cfg)
}

// LoadFromPath loads configuration from a specific file, deciding the format
// by extension.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	case ".json":
		if err := LoadJSON(cfg, path); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}

	return finish(cfg)
}

// finish applies env overrides, defaults and validation.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides:
//   - RAGCHAT_URL: overrides endpoint.base_url
//   - RAGCHAT_TOKEN: overrides endpoint.bearer_token
//   - RAGCHAT_MODEL: overrides generation.model
//   - RAGCHAT_DATASET: overrides generation.dataset
//   - RAGCHAT_TEMPERATURE: overrides generation.temperature
//   - RAGCHAT_SETTLE_MS: overrides engine.settle_delay_ms
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("RAGCHAT_URL"); v != "" {
		c.Endpoint.BaseURL = v
	}
	if v := os.Getenv("RAGCHAT_TOKEN"); v != "" {
		c.Endpoint.BearerToken = v
	}
	if v := os.Getenv("RAGCHAT_MODEL"); v != "" {
		c.Generation.Model = v
	}
	if v := os.Getenv("RAGCHAT_DATASET"); v != "" {
		c.Generation.Dataset = v
	}
	if v := os.Getenv("RAGCHAT_TEMPERATURE"); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			c.Generation.Temperature = t
		}
	}
	if v := os.Getenv("RAGCHAT_SETTLE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Engine.SettleDelayMs = ms
		}
	}
}

// =============================================================================
// DEFAULTS & VALIDATION
// =============================================================================

// SetDefaults fills any zero values with defaults.
func (c *Config) SetDefaults() {
	def := Default()

	if c.Endpoint.BaseURL == "" {
		c.Endpoint.BaseURL = def.Endpoint.BaseURL
	}
	if c.Endpoint.AskPath == "" {
		c.Endpoint.AskPath = def.Endpoint.AskPath
	}
	if c.Endpoint.TimeoutSecs == 0 {
		c.Endpoint.TimeoutSecs = def.Endpoint.TimeoutSecs
	}
	if c.Generation.Model == "" {
		c.Generation.Model = def.Generation.Model
	}
	if c.Engine.SettleDelayMs == 0 {
		c.Engine.SettleDelayMs = def.Engine.SettleDelayMs
	}
	if c.Storage.MaxConversations == 0 {
		c.Storage.MaxConversations = def.Storage.MaxConversations
	}
	if c.Storage.ConversationsDir == "" {
		if dir, err := ConfigDir(); err == nil {
			c.Storage.ConversationsDir = filepath.Join(dir, "conversations")
		}
	}
	if c.Storage.CatalogPath == "" {
		if dir, err := ConfigDir(); err == nil {
			c.Storage.CatalogPath = filepath.Join(dir, "catalog.db")
		}
	}
}

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if _, err := url.Parse(c.Endpoint.BaseURL); err != nil {
		return ValidationError{Field: "endpoint.base_url", Message: "not a valid URL"}
	}
	if !strings.HasPrefix(c.Endpoint.AskPath, "/") {
		return ValidationError{Field: "endpoint.ask_path", Message: "must start with /"}
	}
	if c.Endpoint.TimeoutSecs < 0 {
		return ValidationError{Field: "endpoint.timeout_secs", Message: "must not be negative"}
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return ValidationError{Field: "generation.temperature", Message: "must be between 0 and 2"}
	}
	if c.Engine.SettleDelayMs < 0 {
		return ValidationError{Field: "engine.settle_delay_ms", Message: "must not be negative"}
	}
	if c.Engine.SubmitPerMinute < 0 {
		return ValidationError{Field: "engine.submit_per_minute", Message: "must not be negative"}
	}
	return nil
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes the configuration to the TOML path, creating the directory if
// needed.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
