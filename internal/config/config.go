// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for agrichat.
//
// Configuration is TOML with sensible defaults and environment variable
// overrides. File location: ~/.agrichat/config.toml, falling back to
// built-in defaults when absent.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/agrichat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete agrichat configuration.
type Config struct {
	Chat    ChatConfig    `toml:"chat"`
	Suggest SuggestConfig `toml:"suggest"`
	Server  ServerConfig  `toml:"server"`
	Storage StorageConfig `toml:"storage"`
}

// ChatConfig configures the chat backend connection.
type ChatConfig struct {
	// BackendURL is the base URL of the chat backend.
	BackendURL string `toml:"backend_url"`
}

// SuggestConfig configures the suggestion client and engine.
type SuggestConfig struct {
	// BackendURL is the base URL of the suggestion backend.
	BackendURL string `toml:"backend_url"`
	// CooldownSecs is the minimum interval between suggestion calls.
	CooldownSecs int `toml:"cooldown_secs"`
	// StaleAfterMins is the age past which stored suggestions regenerate.
	StaleAfterMins int `toml:"stale_after_mins"`
	// MaxRetries bounds retry attempts on transient backend failures.
	MaxRetries int `toml:"max_retries"`
	// TimeoutSecs bounds one suggestion call end to end.
	TimeoutSecs int `toml:"timeout_secs"`
}

// ServerConfig configures the suggestion backend server (suggestd).
type ServerConfig struct {
	// Port is the listen port.
	Port int `toml:"port"`
	// RateLimitPerMin is the per-caller request budget per minute.
	RateLimitPerMin int `toml:"rate_limit_per_min"`
	// CacheTTLMins is how long cached suggestion responses stay valid.
	CacheTTLMins int `toml:"cache_ttl_mins"`
	// GlobalRPS is the whole-process load-shed budget.
	GlobalRPS float64 `toml:"global_rps"`
}

// StorageConfig configures local persistence.
type StorageConfig struct {
	// DBPath is the sqlite database path (empty = ~/.agrichat/agrichat.db).
	DBPath string `toml:"db_path"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Chat: ChatConfig{
			BackendURL: "http://localhost:3000",
		},
		Suggest: SuggestConfig{
			BackendURL:     "http://localhost:8090",
			CooldownSecs:   8,
			StaleAfterMins: 10,
			MaxRetries:     2,
			TimeoutSecs:    10,
		},
		Server: ServerConfig{
			Port:            8090,
			RateLimitPerMin: 10,
			CacheTTLMins:    5,
			GlobalRPS:       50,
		},
		Storage: StorageConfig{},
	}
}

// fillDefaults replaces zero values with defaults after decoding, so a
// partial config file works.
func fillDefaults(cfg *Config) {
	def := Default()
	if cfg.Chat.BackendURL == "" {
		cfg.Chat.BackendURL = def.Chat.BackendURL
	}
	if cfg.Suggest.BackendURL == "" {
		cfg.Suggest.BackendURL = def.Suggest.BackendURL
	}
	if cfg.Suggest.CooldownSecs == 0 {
		cfg.Suggest.CooldownSecs = def.Suggest.CooldownSecs
	}
	if cfg.Suggest.StaleAfterMins == 0 {
		cfg.Suggest.StaleAfterMins = def.Suggest.StaleAfterMins
	}
	if cfg.Suggest.MaxRetries == 0 {
		cfg.Suggest.MaxRetries = def.Suggest.MaxRetries
	}
	if cfg.Suggest.TimeoutSecs == 0 {
		cfg.Suggest.TimeoutSecs = def.Suggest.TimeoutSecs
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.RateLimitPerMin == 0 {
		cfg.Server.RateLimitPerMin = def.Server.RateLimitPerMin
	}
	if cfg.Server.CacheTTLMins == 0 {
		cfg.Server.CacheTTLMins = def.Server.CacheTTLMins
	}
	if cfg.Server.GlobalRPS == 0 {
		cfg.Server.GlobalRPS = def.Server.GlobalRPS
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the agrichat configuration directory (~/.agrichat).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".agrichat"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DBPath resolves the storage path, applying the default location when
// the config leaves it empty.
func (c *Config) DBPath() (string, error) {
	if c.Storage.DBPath != "" {
		return c.Storage.DBPath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "agrichat.db"), nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads the config file, applies environment overrides, and
// validates. A missing file yields defaults.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from the given TOML file. A missing
// file is not an error; defaults apply.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
		fillDefaults(cfg)
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the config as TOML atomically.
func Save(cfg *Config, path string) error {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := util.AtomicWriteFile(path, []byte(sb.String()), 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes a single invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	var errs ValidateErrors

	for field, u := range map[string]string{
		"chat.backend_url":    c.Chat.BackendURL,
		"suggest.backend_url": c.Suggest.BackendURL,
	} {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid URL '%s', must start with http:// or https://", u),
			})
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port %d out of range 1-65535", c.Server.Port),
		})
	}
	if c.Server.RateLimitPerMin < 1 {
		errs = append(errs, ValidationError{
			Field:   "server.rate_limit_per_min",
			Message: "must be at least 1",
		})
	}
	if c.Suggest.CooldownSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "suggest.cooldown_secs",
			Message: "cannot be negative",
		})
	}
	if c.Suggest.MaxRetries < 0 {
		errs = append(errs, ValidationError{
			Field:   "suggest.max_retries",
			Message: "cannot be negative",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies AGRICHAT_* environment variables over the
// loaded values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("AGRICHAT_CHAT_URL"); v != "" {
		c.Chat.BackendURL = v
	}
	if v := os.Getenv("AGRICHAT_SUGGEST_URL"); v != "" {
		c.Suggest.BackendURL = v
	}
	if v := os.Getenv("AGRICHAT_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("AGRICHAT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("AGRICHAT_RATE_LIMIT"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			c.Server.RateLimitPerMin = limit
		}
	}
}

// =============================================================================
// GLOBAL INSTANCE
// =============================================================================

var (
	globalConfig *Config
	globalMu     sync.RWMutex
)

// Global returns the process-wide config, loading it on first use.
func Global() *Config {
	globalMu.RLock()
	if globalConfig != nil {
		defer globalMu.RUnlock()
		return globalConfig
	}
	globalMu.RUnlock()

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		globalConfig = cfg
	}
	return globalConfig
}

// SetGlobal replaces the process-wide config.
func SetGlobal(cfg *Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting clears the global config so tests can reload.
func ResetGlobalForTesting() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = nil
}
