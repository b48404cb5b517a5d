// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config assembles the keyhive server configuration from the
// environment. The server is configured exclusively through environment
// variables plus a small number of CLI flags bound by the caller.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/stacklok/keyhive/pkg/crypto"
)

// ErrInvalid marks fatal configuration errors. Callers map it to exit code 1.
var ErrInvalid = errors.New("invalid configuration")

// Environment names accepted in KEYHIVE_ENV.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Defaults for optional settings.
const (
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 8415
	DefaultFrontendOrigin  = "http://localhost:5173"
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultBcryptCost      = 12
)

// OAuthProvider holds the client credentials for one upstream provider.
// A provider with an empty ClientID is disabled.
type OAuthProvider struct {
	ClientID     string
	ClientSecret string
}

// Enabled reports whether the provider is configured.
func (p OAuthProvider) Enabled() bool {
	return p.ClientID != ""
}

// Config is the resolved server configuration.
type Config struct {
	Host string
	Port int

	// DatabaseURL is the SQLite DSN or file path.
	DatabaseURL string

	// MasterKey is the decoded 32-byte vault master key.
	MasterKey []byte

	// JWTSecret signs bearer access tokens.
	JWTSecret []byte

	// FrontendOrigin is the single allowed CORS origin.
	FrontendOrigin string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int

	// Environment toggles production behavior such as Secure cookies.
	Environment string

	// OAuthRedirectBase is the externally visible base URL callbacks are
	// registered under, e.g. https://vault.example.com.
	OAuthRedirectBase string

	Google OAuthProvider
	GitHub OAuthProvider
}

// Production reports whether the server runs with production hardening.
func (c *Config) Production() bool {
	return c.Environment == EnvProduction
}

// ListenAddr returns the host:port the HTTP server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func init() {
	registerDefaults()
}

// registerDefaults wires viper defaults and env bindings. Split out of init
// so tests can re-register after viper.Reset.
func registerDefaults() {
	viper.SetDefault("host", DefaultHost)
	viper.SetDefault("port", DefaultPort)
	viper.SetDefault("frontend-origin", DefaultFrontendOrigin)
	viper.SetDefault("access-token-ttl", DefaultAccessTokenTTL)
	viper.SetDefault("refresh-token-ttl", DefaultRefreshTokenTTL)
	viper.SetDefault("bcrypt-cost", DefaultBcryptCost)
	viper.SetDefault("environment", EnvDevelopment)

	// Env bindings. Flags bound by the serve command take precedence.
	bindings := map[string]string{
		"host":                 "KEYHIVE_HOST",
		"port":                 "KEYHIVE_PORT",
		"database-url":         "KEYHIVE_DATABASE_URL",
		"master-key":           "KEYHIVE_MASTER_KEY",
		"jwt-secret":           "KEYHIVE_JWT_SECRET",
		"frontend-origin":      "KEYHIVE_FRONTEND_ORIGIN",
		"access-token-ttl":     "KEYHIVE_ACCESS_TOKEN_TTL",
		"refresh-token-ttl":    "KEYHIVE_REFRESH_TOKEN_TTL",
		"bcrypt-cost":          "KEYHIVE_BCRYPT_COST",
		"environment":          "KEYHIVE_ENV",
		"oauth-redirect-base":  "KEYHIVE_OAUTH_REDIRECT_BASE",
		"google-client-id":     "GOOGLE_CLIENT_ID",
		"google-client-secret": "GOOGLE_CLIENT_SECRET",
		"github-client-id":     "GITHUB_CLIENT_ID",
		"github-client-secret": "GITHUB_CLIENT_SECRET",
	}
	for key, env := range bindings {
		// BindEnv only fails on an empty key, which cannot happen here.
		_ = viper.BindEnv(key, env)
	}
}

// Load resolves and validates the configuration. All failures wrap
// ErrInvalid so main can exit with the configuration error code.
func Load() (*Config, error) {
	cfg := &Config{
		Host:              viper.GetString("host"),
		Port:              viper.GetInt("port"),
		DatabaseURL:       viper.GetString("database-url"),
		FrontendOrigin:    viper.GetString("frontend-origin"),
		AccessTokenTTL:    viper.GetDuration("access-token-ttl"),
		RefreshTokenTTL:   viper.GetDuration("refresh-token-ttl"),
		BcryptCost:        viper.GetInt("bcrypt-cost"),
		Environment:       viper.GetString("environment"),
		OAuthRedirectBase: viper.GetString("oauth-redirect-base"),
		Google: OAuthProvider{
			ClientID:     viper.GetString("google-client-id"),
			ClientSecret: viper.GetString("google-client-secret"),
		},
		GitHub: OAuthProvider{
			ClientID:     viper.GetString("github-client-id"),
			ClientSecret: viper.GetString("github-client-secret"),
		},
	}

	masterKey, err := decodeMasterKey(viper.GetString("master-key"))
	if err != nil {
		return nil, err
	}
	cfg.MasterKey = masterKey

	jwtSecret := viper.GetString("jwt-secret")
	if jwtSecret == "" {
		return nil, fmt.Errorf("%w: KEYHIVE_JWT_SECRET is required", ErrInvalid)
	}
	cfg.JWTSecret = []byte(jwtSecret)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%w: KEYHIVE_DATABASE_URL is required", ErrInvalid)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrInvalid, cfg.Port)
	}
	if cfg.Environment != EnvDevelopment && cfg.Environment != EnvProduction {
		return nil, fmt.Errorf("%w: KEYHIVE_ENV must be %q or %q", ErrInvalid, EnvDevelopment, EnvProduction)
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return nil, fmt.Errorf("%w: token TTLs must be positive", ErrInvalid)
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, fmt.Errorf("%w: KEYHIVE_BCRYPT_COST %d out of range", ErrInvalid, cfg.BcryptCost)
	}
	if cfg.OAuthRedirectBase == "" {
		// Callbacks default to the local listen address in development.
		cfg.OAuthRedirectBase = fmt.Sprintf("http://%s", cfg.ListenAddr())
	}

	return cfg, nil
}

// decodeMasterKey accepts the master key in any common base64 alphabet,
// with or without padding, and requires exactly 32 decoded bytes.
func decodeMasterKey(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, fmt.Errorf("%w: KEYHIVE_MASTER_KEY is required", ErrInvalid)
	}

	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}

	var key []byte
	var err error
	for _, enc := range encodings {
		key, err = enc.DecodeString(encoded)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: KEYHIVE_MASTER_KEY is not valid base64", ErrInvalid)
	}
	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("%w: KEYHIVE_MASTER_KEY must decode to %d bytes, got %d",
			ErrInvalid, crypto.KeySize, len(key))
	}

	return key, nil
}
