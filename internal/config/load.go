// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Turnstile Contributors

package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment override. Nested keys are joined
// with a double underscore: TURNSTILE_SERVER__COOKIE__DOMAIN.
const EnvPrefix = "TURNSTILE_"

// listKeys are split on commas when set from the environment.
var listKeys = map[string]bool{
	"server.cors.allow_origins": true,
	"google.issuers":            true,
}

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"addr":               "server.addr",
	"environment":        "server.environment",
	"database-url":       "database.url",
	"auto-migrate":       "auto_migrate",
	"log-level":          "logging.level",
	"log-format":         "logging.format",
	"metrics-addr":       "observability.addr",
	"rate-limit-backend": "rate_limit.backend",
}

// RegisterFlags adds the overridable settings to fs. Only flags the user
// sets take precedence over the file and environment.
func RegisterFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.String("addr", def.Server.Addr, "HTTP listen address")
	fs.String("environment", def.Server.Environment, "deployment environment (development or production)")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.Bool("auto-migrate", def.AutoMigrate, "apply pending migrations on startup")
	fs.String("log-level", def.Logging.Level, "log level (debug, info, warn, error)")
	fs.String("log-format", def.Logging.Format, "log format (json or text)")
	fs.String("metrics-addr", def.Observability.Addr, "metrics and health listen address")
	fs.String("rate-limit-backend", def.RateLimit.Backend, "rate limit backend (memory or redis)")
}

// Load layers defaults, the YAML file at path, TURNSTILE_* variables and the
// changed flags of fs. path and fs may be empty. The result is validated.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	cfg, err := load(path, fs)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadUnvalidated is Load without the final Validate, for inspecting a
// partial configuration.
func LoadUnvalidated(path string, fs *pflag.FlagSet) (Config, error) {
	return load(path, fs)
}

func load(path string, fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
		if err != nil {
			return Config{}, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
		if err := ValidateYAML(data); err != nil {
			return Config{}, oops.With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_PARSE_FAILED").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return Config{}, oops.Code("CONFIG_ENV_FAILED").Wrap(err)
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}
	return cfg, nil
}

// envValue turns TURNSTILE_A__B_C=v into the key a.b_c.
func envValue(name, value string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if listKeys[key] {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return key, out
	}
	return key, value
}
