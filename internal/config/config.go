// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

// Package config loads authgate configuration.
//
// Sources are layered, later ones overriding earlier ones:
//
//  1. built-in defaults
//  2. a YAML file (--config)
//  3. AUTHGATE_* environment variables, with "__" separating key levels
//     (AUTHGATE_TOKEN__SECRET sets token.secret)
//  4. command-line flags that were explicitly set
package config

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/wefix/authgate/internal/auth"
	"github.com/wefix/authgate/internal/envelope"
	"github.com/wefix/authgate/internal/logging"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "AUTHGATE_"

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the complete authgate configuration.
type Config struct {
	HTTP      HTTP      `koanf:"http"`
	Metrics   Metrics   `koanf:"metrics"`
	Log       Log       `koanf:"log"`
	Database  Database  `koanf:"database"`
	Store     Store     `koanf:"store"`
	Envelope  Envelope  `koanf:"envelope"`
	Token     Token     `koanf:"token"`
	Providers Providers `koanf:"providers"`
}

// HTTP configures the public API listener.
type HTTP struct {
	Addr           string        `koanf:"addr"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// Metrics configures the observability listener. An empty Addr disables it.
type Metrics struct {
	Addr string `koanf:"addr"`
}

// Log configures logging.
type Log struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Database configures PostgreSQL.
type Database struct {
	URL             string `koanf:"url"`
	ConnectAttempts uint64 `koanf:"connect_attempts"`
	// AutoMigrate applies pending migrations when the server starts.
	AutoMigrate bool `koanf:"auto_migrate"`
}

// Store selects the account store.
type Store struct {
	Driver string `koanf:"driver"`
}

// Envelope configures the signed-envelope codec.
type Envelope struct {
	Secret string          `koanf:"secret"`
	Digest envelope.Digest `koanf:"digest"`
}

// Token configures session token issuance.
type Token struct {
	Secret string `koanf:"secret"`
	Issuer string `koanf:"issuer"`
}

// Providers configures the external identity verifiers.
type Providers struct {
	Timeout time.Duration `koanf:"timeout"`
	GitHub  GitHub        `koanf:"github"`
	Google  Google        `koanf:"google"`
}

// GitHub configures the GitHub verifier.
type GitHub struct {
	APIURL string `koanf:"api_url"`
}

// Google configures the Google verifier. When UserInfoURL is empty the
// endpoint is discovered from Issuer.
type Google struct {
	Issuer      string `koanf:"issuer"`
	UserInfoURL string `koanf:"userinfo_url"`
}

// defaults are loaded before any other source.
var defaults = map[string]any{
	"http.addr":                     ":8080",
	"http.request_timeout":          "30s",
	"metrics.addr":                  "127.0.0.1:9100",
	"log.format":                    "json",
	"log.level":                     "info",
	"database.connect_attempts":     8,
	"database.auto_migrate":         false,
	"store.driver":                  DriverPostgres,
	"envelope.digest":               string(envelope.DigestHMACSHA256),
	"token.issuer":                  "authgate",
	"providers.timeout":             "10s",
	"providers.github.api_url":      "https://api.github.com",
	"providers.google.issuer":       "https://accounts.google.com",
	"providers.google.userinfo_url": "https://openidconnect.googleapis.com/v1/userinfo",
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"http-addr":    "http.addr",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
	"database-url": "database.url",
	"store":        "store.driver",
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("http-addr", ":8080", "API listen address")
	fs.String("metrics-addr", "127.0.0.1:9100", "metrics and health listen address (empty disables)")
	fs.String("log-format", "json", "log format (json or text)")
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("store", DriverPostgres, "account store (postgres or memory)")
}

// LoadOptions selects the sources for Load.
type LoadOptions struct {
	// File is an optional YAML file.
	File string
	// Flags, when set, overrides keys for flags the user changed.
	Flags *pflag.FlagSet
}

// Load builds a Config from defaults, file, environment and flags. Callers
// validate the parts they use.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", opts.File).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "unmarshal").Wrap(err)
	}
	return &cfg, nil
}

// envKey maps AUTHGATE_PROVIDERS__GOOGLE__USERINFO_URL to
// providers.google.userinfo_url.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks every field the server depends on.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "is required")
	}
	if c.HTTP.RequestTimeout <= 0 {
		return invalid("http.request_timeout", "must be positive")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "must be json or text")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "must be debug, info, warn or error")
	}
	if err := c.ValidateStore(); err != nil {
		return err
	}
	if err := c.ValidateEnvelope(); err != nil {
		return err
	}

	if len(c.Token.Secret) < auth.MinTokenSecretLength {
		return invalid("token.secret", "must be at least 32 bytes")
	}
	if c.Token.Issuer == "" {
		return invalid("token.issuer", "is required")
	}

	if c.Providers.Timeout <= 0 {
		return invalid("providers.timeout", "must be positive")
	}
	if !absoluteURL(c.Providers.GitHub.APIURL) {
		return invalid("providers.github.api_url", "must be an absolute URL")
	}
	if !absoluteURL(c.Providers.Google.Issuer) {
		return invalid("providers.google.issuer", "must be an absolute URL")
	}
	if c.Providers.Google.UserInfoURL != "" && !absoluteURL(c.Providers.Google.UserInfoURL) {
		return invalid("providers.google.userinfo_url", "must be an absolute URL")
	}
	return nil
}

// ValidateStore checks the account store selection.
func (c *Config) ValidateStore() error {
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "is required for the postgres store")
		}
	case DriverMemory:
	default:
		return invalid("store.driver", "must be postgres or memory")
	}
	return nil
}

// ValidateDatabase checks that a PostgreSQL URL is configured, whatever the
// store driver.
func (c *Config) ValidateDatabase() error {
	if c.Database.URL == "" {
		return invalid("database.url", "is required")
	}
	return nil
}

// ValidateEnvelope checks the envelope codec settings.
func (c *Config) ValidateEnvelope() error {
	if len(c.Envelope.Secret) < envelope.MinSecretLength {
		return invalid("envelope.secret", "must be at least 16 bytes")
	}
	switch c.Envelope.Digest {
	case envelope.DigestHMACSHA256, envelope.DigestHMACSHA512:
		return nil
	default:
		return invalid("envelope.digest", "must be hmac-sha256 or hmac-sha512")
	}
}

func absoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.IsAbs() && u.Host != ""
}

func invalid(key, msg string) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf("%s %s", key, msg)
}

// LogValue implements slog.LogValuer with secrets and credentials removed.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("http_addr", c.HTTP.Addr),
		slog.String("metrics_addr", c.Metrics.Addr),
		slog.String("store", c.Store.Driver),
		slog.Bool("database_configured", c.Database.URL != ""),
		slog.String("envelope_digest", string(c.Envelope.Digest)),
		slog.String("token_issuer", c.Token.Issuer),
		slog.Duration("provider_timeout", c.Providers.Timeout),
	)
}
