// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authd Contributors

// Package config loads service configuration from a YAML file and
// command-line flags. Flags override file values; file values override
// defaults. Configuration is resolved once at startup and passed into
// components as plain values.
package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/authd/authd/internal/xdg"
)

// Config holds all service configuration. Every knob that workflows
// need (token lifetimes, hashing concurrency) is resolved here, not
// read ad hoc by the components themselves.
type Config struct {
	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"`

	ListenAddr  string `koanf:"listen_addr"`
	MetricsAddr string `koanf:"metrics_addr"`
	LogFormat   string `koanf:"log_format"`

	// FrontendURL is the base URL users are directed to in account
	// emails and remediation messages.
	FrontendURL string `koanf:"frontend_url"`

	SessionTTL      time.Duration `koanf:"session_ttl"`
	VerificationTTL time.Duration `koanf:"verification_ttl"`
	ResetTTL        time.Duration `koanf:"reset_ttl"`

	HashWorkers        int           `koanf:"hash_workers"`
	HashAcquireTimeout time.Duration `koanf:"hash_acquire_timeout"`

	SecureCookies bool `koanf:"secure_cookies"`
}

// Defaults returns the built-in configuration. Connection URLs have no
// defaults and must come from the file or flags.
func Defaults() Config {
	return Config{
		ListenAddr:         ":8080",
		MetricsAddr:        ":9100",
		LogFormat:          "json",
		FrontendURL:        "http://localhost:3000",
		SessionTTL:         24 * time.Hour,
		VerificationTTL:    15 * time.Minute,
		ResetTTL:           15 * time.Minute,
		HashWorkers:        4,
		HashAcquireTimeout: 5 * time.Second,
		SecureCookies:      true,
	}
}

// DefaultPath returns the default config file location under the XDG
// config directory.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigDir(), "authd.yaml")
}

// Load resolves configuration from the given file path and flag set.
// An empty path falls back to DefaultPath; a missing file at the
// default path is not an error, a missing file at an explicit path is.
// flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k, err := load(path, flags)
	if err != nil {
		return Config{}, err
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_PARSE_FAILED").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DatabaseURL resolves just the database URL, for commands that only
// touch the schema and do not need the full configuration.
func DatabaseURL(path string, flags *pflag.FlagSet) (string, error) {
	k, err := load(path, flags)
	if err != nil {
		return "", err
	}

	url := k.String("database_url")
	if url == "" {
		return "", oops.Code("CONFIG_MISSING").Errorf("database_url is required")
	}
	return url, nil
}

// load merges the config file and flag set into one koanf instance.
func load(path string, flags *pflag.FlagSet) (*koanf.Koanf, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_FILE_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		// Flags use dashes ("listen-addr"); config keys use underscores.
		// Only flags the user actually set participate, so flag defaults
		// never shadow file values or built-in defaults.
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key := strings.ReplaceAll(f.Name, "-", "_")
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	return k, nil
}

// Validate checks that required values are present and sane.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return oops.Code("CONFIG_MISSING").Errorf("database_url is required")
	}
	if c.RedisURL == "" {
		return oops.Code("CONFIG_MISSING").Errorf("redis_url is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").With("log_format", c.LogFormat).
			Errorf("log_format must be json or text")
	}
	if c.SessionTTL <= 0 || c.VerificationTTL <= 0 || c.ResetTTL <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("token and session TTLs must be positive")
	}
	if c.HashWorkers < 1 {
		return oops.Code("CONFIG_INVALID").With("hash_workers", c.HashWorkers).
			Errorf("hash_workers must be at least 1")
	}
	if c.HashAcquireTimeout <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("hash_acquire_timeout must be positive")
	}
	return nil
}
