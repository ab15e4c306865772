// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadPartialFileFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 9999\n"), 0o600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Server.Port)
	require.Equal(t, Default().Suggest.CooldownSecs, cfg.Suggest.CooldownSecs)
	require.Equal(t, Default().Chat.BackendURL, cfg.Chat.BackendURL)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nport ="), 0o600))

	_, err := LoadFromPath(path)
	require.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad chat url", func(c *Config) { c.Chat.BackendURL = "localhost:3000" }, "chat.backend_url"},
		{"bad suggest url", func(c *Config) { c.Suggest.BackendURL = "ftp://x" }, "suggest.backend_url"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"zero rate limit", func(c *Config) { c.Server.RateLimitPerMin = 0 }, "server.rate_limit_per_min"},
		{"negative cooldown", func(c *Config) { c.Suggest.CooldownSecs = -1 }, "suggest.cooldown_secs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AGRICHAT_CHAT_URL", "http://example.com:4000")
	t.Setenv("AGRICHAT_SERVER_PORT", "8123")
	t.Setenv("AGRICHAT_RATE_LIMIT", "not-a-number")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	require.Equal(t, "http://example.com:4000", cfg.Chat.BackendURL)
	require.Equal(t, 8123, cfg.Server.Port)
	// Unparsable values are ignored
	require.Equal(t, Default().Server.RateLimitPerMin, cfg.Server.RateLimitPerMin)
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.Server.Port = 8222
	cfg.Storage.DBPath = "/tmp/agrichat-test.db"
	require.NoError(t, Save(cfg, path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestDBPathDefault(t *testing.T) {
	cfg := Default()
	path, err := cfg.DBPath()
	require.NoError(t, err)
	require.Contains(t, path, ".agrichat")

	cfg.Storage.DBPath = "/custom/path.db"
	path, err = cfg.DBPath()
	require.NoError(t, err)
	require.Equal(t, "/custom/path.db", path)
}

func TestGlobalSetAndReset(t *testing.T) {
	ResetGlobalForTesting()
	t.Cleanup(ResetGlobalForTesting)

	custom := Default()
	custom.Server.Port = 8555
	SetGlobal(custom)
	require.Equal(t, 8555, Global().Server.Port)
}
