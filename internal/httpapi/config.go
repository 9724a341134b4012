// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package httpapi

import (
	"net"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name     string `koanf:"name" yaml:"name" json:"name"`
	Domain   string `koanf:"domain" yaml:"domain" json:"domain"`
	Path     string `koanf:"path" yaml:"path" json:"path"`
	SameSite string `koanf:"same_site" yaml:"same_site" json:"same_site" jsonschema:"enum=lax,enum=strict,enum=none"`
	// MaxAge of zero issues a browser-session cookie.
	MaxAge time.Duration `koanf:"max_age" yaml:"max_age" json:"max_age"`
}

// CORSConfig lists the origins allowed to call the API with credentials.
type CORSConfig struct {
	AllowOrigins []string `koanf:"allow_origins" yaml:"allow_origins" json:"allow_origins"`
}

// Config configures the HTTP API.
type Config struct {
	Addr            string        `koanf:"addr" yaml:"addr" json:"addr"`
	Environment     string        `koanf:"environment" yaml:"environment" json:"environment" jsonschema:"enum=development,enum=production"`
	BodyLimit       int           `koanf:"body_limit" yaml:"body_limit" json:"body_limit" jsonschema:"minimum=0"`
	ReadTimeout     time.Duration `koanf:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	// ProxyHeader names the header holding the client IP, e.g. X-Forwarded-For.
	ProxyHeader string       `koanf:"proxy_header" yaml:"proxy_header" json:"proxy_header"`
	Cookie      CookieConfig `koanf:"cookie" yaml:"cookie" json:"cookie"`
	CORS        CORSConfig   `koanf:"cors" yaml:"cors" json:"cors"`
}

// DefaultConfig returns production defaults listening on :8080.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		Environment:     EnvProduction,
		BodyLimit:       64 * 1024,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		Cookie: CookieConfig{
			Name:     "session_id",
			Path:     "/",
			SameSite: "lax",
		},
		CORS: CORSConfig{AllowOrigins: []string{"http://localhost:3000"}},
	}
}

// Secure reports whether cookies carry the Secure attribute.
func (c Config) Secure() bool {
	return c.Environment != EnvDevelopment
}

// Validate checks the HTTP settings.
func (c Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return oops.Code("HTTP_INVALID_CONFIG").With("addr", c.Addr).Wrap(err)
	}
	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		return oops.Code("HTTP_INVALID_CONFIG").
			With("environment", c.Environment).
			Errorf("environment must be %q or %q", EnvDevelopment, EnvProduction)
	}
	if c.Cookie.Name == "" {
		return oops.Code("HTTP_INVALID_CONFIG").Errorf("cookie name is required")
	}
	switch strings.ToLower(c.Cookie.SameSite) {
	case "lax", "strict":
	case "none":
		if !c.Secure() {
			return oops.Code("HTTP_INVALID_CONFIG").Errorf("same_site none requires a secure cookie")
		}
	default:
		return oops.Code("HTTP_INVALID_CONFIG").
			With("same_site", c.Cookie.SameSite).
			Errorf("same_site must be lax, strict or none")
	}
	if c.Cookie.MaxAge < 0 {
		return oops.Code("HTTP_INVALID_CONFIG").Errorf("cookie max_age must not be negative")
	}
	for _, origin := range c.CORS.AllowOrigins {
		if origin == "*" {
			return oops.Code("HTTP_INVALID_CONFIG").Errorf("wildcard CORS origin cannot be used with credentials")
		}
	}
	return nil
}
