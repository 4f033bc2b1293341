// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authd/authd/internal/config"
	"github.com/authd/authd/pkg/errutil"
)

// writeConfig writes a YAML config file into a temp dir and returns its path.
func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "authd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

// serveFlags mirrors the flag set the serve command registers.
func serveFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("database-url", "", "")
	flags.String("redis-url", "", "")
	flags.String("listen-addr", "", "")
	flags.String("log-format", "", "")
	require.NoError(t, flags.Parse(args))
	return flags
}

const minimalYAML = `
database_url: postgres://localhost:5432/authd
redis_url: redis://localhost:6379/0
`

func TestLoad(t *testing.T) {
	t.Run("file values over defaults", func(t *testing.T) {
		path := writeConfig(t, minimalYAML+`
listen_addr: ":9999"
session_ttl: 1h
hash_workers: 8
`)

		cfg, err := config.Load(path, nil)
		require.NoError(t, err)

		assert.Equal(t, "postgres://localhost:5432/authd", cfg.DatabaseURL)
		assert.Equal(t, ":9999", cfg.ListenAddr)
		assert.Equal(t, time.Hour, cfg.SessionTTL)
		assert.Equal(t, 8, cfg.HashWorkers)

		// Untouched keys keep their defaults.
		assert.Equal(t, "json", cfg.LogFormat)
		assert.Equal(t, 15*time.Minute, cfg.VerificationTTL)
		assert.True(t, cfg.SecureCookies)
	})

	t.Run("flags over file values", func(t *testing.T) {
		path := writeConfig(t, minimalYAML+`
listen_addr: ":9999"
`)
		flags := serveFlags(t, "--listen-addr", ":7777", "--log-format", "text")

		cfg, err := config.Load(path, flags)
		require.NoError(t, err)

		assert.Equal(t, ":7777", cfg.ListenAddr)
		assert.Equal(t, "text", cfg.LogFormat)
		// File values not overridden by flags survive.
		assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	})

	t.Run("unset flags do not shadow file values", func(t *testing.T) {
		path := writeConfig(t, minimalYAML+`
listen_addr: ":9999"
`)
		flags := serveFlags(t)

		cfg, err := config.Load(path, flags)
		require.NoError(t, err)

		assert.Equal(t, ":9999", cfg.ListenAddr)
		assert.Equal(t, "json", cfg.LogFormat)
	})

	t.Run("explicit path must exist", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing.yaml")

		_, err := config.Load(path, nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_FILE_FAILED")
	})

	t.Run("missing required values", func(t *testing.T) {
		path := writeConfig(t, `redis_url: redis://localhost:6379/0`)

		_, err := config.Load(path, nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_MISSING")
	})

	t.Run("invalid log format", func(t *testing.T) {
		path := writeConfig(t, minimalYAML+`
log_format: xml
`)

		_, err := config.Load(path, nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})

	t.Run("non-positive ttl", func(t *testing.T) {
		path := writeConfig(t, minimalYAML+`
session_ttl: 0s
`)

		_, err := config.Load(path, nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "database_url: [unclosed")

		_, err := config.Load(path, nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_FILE_FAILED")
	})
}

func TestDatabaseURL(t *testing.T) {
	t.Run("from file", func(t *testing.T) {
		path := writeConfig(t, minimalYAML)

		url, err := config.DatabaseURL(path, nil)
		require.NoError(t, err)
		assert.Equal(t, "postgres://localhost:5432/authd", url)
	})

	t.Run("flag overrides file", func(t *testing.T) {
		path := writeConfig(t, minimalYAML)
		flags := serveFlags(t, "--database-url", "postgres://db.internal:5432/authd")

		url, err := config.DatabaseURL(path, flags)
		require.NoError(t, err)
		assert.Equal(t, "postgres://db.internal:5432/authd", url)
	})

	t.Run("absent everywhere", func(t *testing.T) {
		path := writeConfig(t, `redis_url: redis://localhost:6379/0`)

		_, err := config.DatabaseURL(path, nil)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_MISSING")
	})

	t.Run("ignores full-config validation", func(t *testing.T) {
		// Only the database URL is needed; redis_url absence is fine here.
		path := writeConfig(t, `database_url: postgres://localhost:5432/authd`)

		url, err := config.DatabaseURL(path, nil)
		require.NoError(t, err)
		assert.Equal(t, "postgres://localhost:5432/authd", url)
	})
}

func TestValidate(t *testing.T) {
	valid := func() config.Config {
		cfg := config.Defaults()
		cfg.DatabaseURL = "postgres://localhost:5432/authd"
		cfg.RedisURL = "redis://localhost:6379/0"
		return cfg
	}

	t.Run("defaults plus urls pass", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	tests := []struct {
		name   string
		mutate func(*config.Config)
		code   string
	}{
		{"missing database url", func(c *config.Config) { c.DatabaseURL = "" }, "CONFIG_MISSING"},
		{"missing redis url", func(c *config.Config) { c.RedisURL = "" }, "CONFIG_MISSING"},
		{"bad log format", func(c *config.Config) { c.LogFormat = "logfmt" }, "CONFIG_INVALID"},
		{"zero verification ttl", func(c *config.Config) { c.VerificationTTL = 0 }, "CONFIG_INVALID"},
		{"negative reset ttl", func(c *config.Config) { c.ResetTTL = -time.Minute }, "CONFIG_INVALID"},
		{"zero hash workers", func(c *config.Config) { c.HashWorkers = 0 }, "CONFIG_INVALID"},
		{"zero acquire timeout", func(c *config.Config) { c.HashAcquireTimeout = 0 }, "CONFIG_INVALID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}
