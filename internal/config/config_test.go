// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnstile-auth/turnstile/internal/expiry"
	"github.com/turnstile-auth/turnstile/pkg/errutil"
)

func validConfig() Config {
	cfg := Default()
	cfg.Crypto = CryptoConfig{HashSecret: "secret", Salt: "salt"}
	return cfg
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "turnstile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_RequiresCryptoSecrets(t *testing.T) {
	err := Default().Validate()
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CRYPTO_MISSING_SECRET")
	errutil.AssertErrorContext(t, err, "section", "crypto")

	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Sections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		code   string
	}{
		{"bad environment", func(c *Config) { c.Server.Environment = "staging" }, "HTTP_INVALID_CONFIG"},
		{"missing database url", func(c *Config) { c.Database.URL = "" }, "STORE_INVALID_CONFIG"},
		{"unknown expiry unit", func(c *Config) { c.Auth.Policies.Session.Unit = "fortnight" }, "EXPIRY_UNKNOWN_UNIT"},
		{"zero token amount", func(c *Config) { c.Auth.Policies.Token.Amount = 0 }, "EXPIRY_INVALID_AMOUNT"},
		{"argon2 threads", func(c *Config) { c.Auth.Argon2.Threads = 0 }, "AUTH_INVALID_ARGON2"},
		{"mail timeout", func(c *Config) { c.Auth.MailTimeout = 0 }, "AUTH_INVALID_MAIL_TIMEOUT"},
		{"verify url", func(c *Config) { c.Mail.VerifyURL = "/verify" }, "MAIL_INVALID_CONFIG"},
		{"rate limit backend", func(c *Config) { c.RateLimit.Backend = "memcached" }, "RATELIMIT_INVALID_CONFIG"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_INVALID_LEVEL"},
		{"metrics addr", func(c *Config) { c.Observability.Addr = "nope" }, "OBSERVABILITY_INVALID_ADDR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
server:
  addr: ":9090"
  environment: development
  cookie:
    domain: example.test
    max_age: 2h
auth:
  policies:
    session: {amount: 10, unit: minute}
crypto:
  hash_secret: from-file
  salt: pepper
rate_limit:
  auth: {limit: 4, window: 1m}
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.Equal(t, "example.test", cfg.Server.Cookie.Domain)
	assert.Equal(t, 2*time.Hour, cfg.Server.Cookie.MaxAge)
	assert.Equal(t, expiry.Policy{Amount: 10, Unit: expiry.Minute}, cfg.Auth.Policies.Session)
	assert.Equal(t, expiry.DefaultAuth, cfg.Auth.Policies.Auth, "unset keys keep defaults")
	assert.Equal(t, 4, cfg.RateLimit.Auth.Limit)
	assert.Equal(t, time.Minute, cfg.RateLimit.Auth.Window)
	assert.Equal(t, Default().RateLimit.Mail, cfg.RateLimit.Mail)
	assert.Equal(t, "from-file", cfg.Crypto.HashSecret)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "crypto:\n  hash_secret: from-file\n  salt: pepper\nlogging:\n  level: debug\n")
	t.Setenv("TURNSTILE_LOGGING__LEVEL", "warn")
	t.Setenv("TURNSTILE_SERVER__CORS__ALLOW_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("TURNSTILE_AUTO_MIGRATE", "true")
	t.Setenv("TURNSTILE_AUTH__MAIL_TIMEOUT", "5s")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.CORS.AllowOrigins)
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, 5*time.Second, cfg.Auth.MailTimeout)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("TURNSTILE_CRYPTO__HASH_SECRET", "env-secret")
	t.Setenv("TURNSTILE_CRYPTO__SALT", "env-salt")
	t.Setenv("TURNSTILE_SERVER__ADDR", ":7000")
	t.Setenv("TURNSTILE_LOGGING__FORMAT", "text")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--addr", ":7001", "--database-url", "postgres://u:p@db:5432/auth"}))

	cfg, err := Load("", fs)
	require.NoError(t, err)

	assert.Equal(t, ":7001", cfg.Server.Addr)
	assert.Equal(t, "postgres://u:p@db:5432/auth", cfg.Database.URL)
	assert.Equal(t, "text", cfg.Logging.Format, "unchanged flags do not mask the environment")
	assert.Equal(t, "env-secret", cfg.Crypto.HashSecret)
}

func TestLoad_UnchangedFlagsKeepDefaults(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(nil))

	cfg, err := LoadUnvalidated("", fs)
	require.NoError(t, err)
	assert.Equal(t, Default().Server, cfg.Server)
	assert.Equal(t, Default().Database, cfg.Database)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
		errutil.AssertErrorCode(t, err, "CONFIG_READ_FAILED")
	})
	t.Run("unknown key", func(t *testing.T) {
		_, err := Load(writeFile(t, "server:\n  port: 80\n"), nil)
		errutil.AssertErrorCode(t, err, "CONFIG_SCHEMA_VIOLATION")
	})
	t.Run("bad duration", func(t *testing.T) {
		_, err := Load(writeFile(t, "server:\n  read_timeout: soon\n"), nil)
		errutil.AssertErrorCode(t, err, "CONFIG_SCHEMA_VIOLATION")
	})
	t.Run("bad unit", func(t *testing.T) {
		_, err := Load(writeFile(t, "auth:\n  policies:\n    token: {amount: 1, unit: week}\n"), nil)
		errutil.AssertErrorCode(t, err, "CONFIG_SCHEMA_VIOLATION")
	})
	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeFile(t, "server: [\n"), nil)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID_YAML")
	})
	t.Run("invalid after merge", func(t *testing.T) {
		_, err := Load(writeFile(t, "logging:\n  level: info\n"), nil)
		errutil.AssertErrorCode(t, err, "CRYPTO_MISSING_SECRET")
	})
}

func TestValidateYAML_EmptyDocument(t *testing.T) {
	assert.NoError(t, ValidateYAML([]byte("")))
	assert.NoError(t, ValidateYAML([]byte("# only comments\n")))
}

func TestSchema(t *testing.T) {
	raw, err := Schema()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, SchemaID, doc["$id"])
	assert.Equal(t, false, doc["additionalProperties"])

	props, ok := doc["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"server", "database", "auth", "crypto", "mail", "google", "rate_limit", "logging", "observability", "auto_migrate"} {
		assert.Contains(t, props, key)
	}
	assert.NotContains(t, doc, "required")
}

func TestRedacted(t *testing.T) {
	cfg := validConfig()
	cfg.Database.URL = "postgres://turnstile:hunter2@db:5432/turnstile"
	cfg.RateLimit.Redis.URL = "redis://:s3cret@cache:6379/0"
	cfg.Mail.Password = "smtp-pass"

	out := cfg.Redacted()

	assert.NotContains(t, out.Database.URL, "hunter2")
	assert.Contains(t, out.Database.URL, "db:5432")
	assert.NotContains(t, out.RateLimit.Redis.URL, "s3cret")
	assert.Equal(t, redacted, out.Mail.Password)
	assert.Equal(t, redacted, out.Crypto.HashSecret)
	assert.Equal(t, redacted, out.Crypto.Salt)
	assert.Equal(t, "secret", cfg.Crypto.HashSecret, "original is untouched")
}

func TestEnvValue(t *testing.T) {
	key, val := envValue("TURNSTILE_SERVER__COOKIE__SAME_SITE", "strict")
	assert.Equal(t, "server.cookie.same_site", key)
	assert.Equal(t, "strict", val)

	key, val = envValue("TURNSTILE_GOOGLE__ISSUERS", "a,,b")
	assert.Equal(t, "google.issuers", key)
	assert.Equal(t, []string{"a", "b"}, val)
}
