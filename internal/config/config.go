// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

//go:generate go run ../../cmd/gen-schema -o ../../schemas/config.schema.json

// Package config loads Turnstile configuration from defaults, a YAML file,
// TURNSTILE_* environment variables and command-line flags, in that order.
package config

import (
	"net/url"
	"time"

	"github.com/samber/oops"

	"github.com/turnstile-auth/turnstile/internal/auth"
	"github.com/turnstile-auth/turnstile/internal/google"
	"github.com/turnstile-auth/turnstile/internal/httpapi"
	"github.com/turnstile-auth/turnstile/internal/logging"
	"github.com/turnstile-auth/turnstile/internal/mail"
	"github.com/turnstile-auth/turnstile/internal/observability"
	"github.com/turnstile-auth/turnstile/internal/ratelimit"
	"github.com/turnstile-auth/turnstile/internal/store"
)

// redacted replaces secrets in Redacted output.
const redacted = "REDACTED"

// Config is the complete service configuration.
type Config struct {
	Server        httpapi.Config       `koanf:"server" yaml:"server" json:"server"`
	Database      store.PoolConfig     `koanf:"database" yaml:"database" json:"database"`
	AutoMigrate   bool                 `koanf:"auto_migrate" yaml:"auto_migrate" json:"auto_migrate"`
	Auth          AuthConfig           `koanf:"auth" yaml:"auth" json:"auth"`
	Crypto        CryptoConfig         `koanf:"crypto" yaml:"crypto" json:"crypto"`
	Mail          mail.Config          `koanf:"mail" yaml:"mail" json:"mail"`
	Google        google.Config        `koanf:"google" yaml:"google" json:"google"`
	RateLimit     ratelimit.Config     `koanf:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
	Logging       logging.Config       `koanf:"logging" yaml:"logging" json:"logging"`
	Observability observability.Config `koanf:"observability" yaml:"observability" json:"observability"`
}

// AuthConfig holds the lifetimes and hashing cost of the auth service.
type AuthConfig struct {
	Policies    auth.Policies     `koanf:"policies" yaml:"policies" json:"policies"`
	Argon2      auth.Argon2Params `koanf:"argon2" yaml:"argon2" json:"argon2"`
	MailTimeout time.Duration     `koanf:"mail_timeout" yaml:"mail_timeout" json:"mail_timeout"`
}

// CryptoConfig holds the inputs of the verification token key.
type CryptoConfig struct {
	HashSecret string `koanf:"hash_secret" yaml:"hash_secret" json:"hash_secret"`
	Salt       string `koanf:"salt" yaml:"salt" json:"salt"`
}

// Default returns the built-in configuration. Crypto secrets have no default.
func Default() Config {
	return Config{
		Server:   httpapi.DefaultConfig(),
		Database: store.DefaultPoolConfig(),
		Auth: AuthConfig{
			Policies:    auth.DefaultPolicies(),
			Argon2:      auth.DefaultArgon2Params,
			MailTimeout: auth.DefaultMailTimeout,
		},
		Mail:          mail.DefaultConfig(),
		Google:        google.DefaultConfig(),
		RateLimit:     ratelimit.DefaultConfig(),
		Logging:       logging.DefaultConfig(),
		Observability: observability.DefaultConfig(),
	}
}

// Validate checks every section and returns the first problem found.
func (c Config) Validate() error {
	sections := []struct {
		name     string
		validate func() error
	}{
		{"server", c.Server.Validate},
		{"database", c.Database.Validate},
		{"auth", c.Auth.Validate},
		{"crypto", c.Crypto.Validate},
		{"mail", c.Mail.Validate},
		{"rate_limit", c.RateLimit.Validate},
		{"logging", c.Logging.Validate},
		{"observability", c.Observability.Validate},
	}
	for _, s := range sections {
		if err := s.validate(); err != nil {
			return oops.Code("CONFIG_INVALID").With("section", s.name).Wrap(err)
		}
	}
	return nil
}

// Validate checks policies and hashing parameters.
func (a AuthConfig) Validate() error {
	if err := a.Policies.Validate(); err != nil {
		return err
	}
	if a.Argon2.Time == 0 || a.Argon2.Threads == 0 || a.Argon2.Memory < 8*uint32(a.Argon2.Threads) {
		return oops.Code("AUTH_INVALID_ARGON2").
			With("time", a.Argon2.Time).
			With("memory_kib", a.Argon2.Memory).
			With("threads", a.Argon2.Threads).
			Errorf("argon2 needs time >= 1, threads >= 1 and at least 8 KiB of memory per thread")
	}
	if a.MailTimeout <= 0 {
		return oops.Code("AUTH_INVALID_MAIL_TIMEOUT").Errorf("mail_timeout must be positive")
	}
	return nil
}

// Validate requires both token key inputs.
func (c CryptoConfig) Validate() error {
	if c.HashSecret == "" || c.Salt == "" {
		return oops.Code("CRYPTO_MISSING_SECRET").Errorf("crypto.hash_secret and crypto.salt are required")
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	out := c
	out.Database.URL = redactURL(c.Database.URL)
	out.RateLimit.Redis.URL = redactURL(c.RateLimit.Redis.URL)
	if out.Mail.Password != "" {
		out.Mail.Password = redacted
	}
	if out.Crypto.HashSecret != "" {
		out.Crypto.HashSecret = redacted
	}
	if out.Crypto.Salt != "" {
		out.Crypto.Salt = redacted
	}
	return out
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return redacted
	}
	return u.Redacted()
}
