// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/base64"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/keyhive/pkg/crypto"
)

// validKey is a 32-byte master key in standard base64.
var validKey = base64.StdEncoding.EncodeToString(make([]byte, crypto.KeySize))

// setRequired sets the minimum viable environment for Load and resets any
// viper state left behind by other tests.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("KEYHIVE_MASTER_KEY", validKey)
	t.Setenv("KEYHIVE_JWT_SECRET", "test-signing-secret")
	t.Setenv("KEYHIVE_DATABASE_URL", "file:test.db")
	viper.Reset()
	registerDefaults()
}

func TestLoad_Defaults(t *testing.T) { //nolint:paralleltest // mutates env and viper
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "file:test.db", cfg.DatabaseURL)
	assert.Len(t, cfg.MasterKey, crypto.KeySize)
	assert.Equal(t, []byte("test-signing-secret"), cfg.JWTSecret)
	assert.Equal(t, DefaultFrontendOrigin, cfg.FrontendOrigin)
	assert.Equal(t, DefaultAccessTokenTTL, cfg.AccessTokenTTL)
	assert.Equal(t, DefaultRefreshTokenTTL, cfg.RefreshTokenTTL)
	assert.Equal(t, DefaultBcryptCost, cfg.BcryptCost)
	assert.False(t, cfg.Production())
	assert.False(t, cfg.Google.Enabled())
	assert.False(t, cfg.GitHub.Enabled())
	assert.Equal(t, "http://127.0.0.1:8415", cfg.OAuthRedirectBase)
}

func TestLoad_Overrides(t *testing.T) { //nolint:paralleltest // mutates env and viper
	setRequired(t)
	t.Setenv("KEYHIVE_HOST", "0.0.0.0")
	t.Setenv("KEYHIVE_PORT", "9000")
	t.Setenv("KEYHIVE_ENV", "production")
	t.Setenv("KEYHIVE_ACCESS_TOKEN_TTL", "5m")
	t.Setenv("KEYHIVE_FRONTEND_ORIGIN", "https://vault.example.com")
	t.Setenv("GOOGLE_CLIENT_ID", "gid")
	t.Setenv("GOOGLE_CLIENT_SECRET", "gsecret")
	t.Setenv("KEYHIVE_OAUTH_REDIRECT_BASE", "https://vault.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr())
	assert.True(t, cfg.Production())
	assert.Equal(t, 5*60, int(cfg.AccessTokenTTL.Seconds()))
	assert.Equal(t, "https://vault.example.com", cfg.FrontendOrigin)
	assert.True(t, cfg.Google.Enabled())
	assert.False(t, cfg.GitHub.Enabled())
	assert.Equal(t, "https://vault.example.com", cfg.OAuthRedirectBase)
}

func TestLoad_Failures(t *testing.T) { //nolint:paralleltest // mutates env and viper
	tests := []struct {
		name  string
		setup func(t *testing.T)
	}{
		{"missing master key", func(t *testing.T) {
			t.Helper()
			t.Setenv("KEYHIVE_MASTER_KEY", "")
		}},
		{"master key not base64", func(t *testing.T) {
			t.Helper()
			t.Setenv("KEYHIVE_MASTER_KEY", "!!not-base64!!")
		}},
		{"master key wrong length", func(t *testing.T) {
			t.Helper()
			t.Setenv("KEYHIVE_MASTER_KEY", base64.StdEncoding.EncodeToString(make([]byte, 16)))
		}},
		{"missing jwt secret", func(t *testing.T) {
			t.Helper()
			t.Setenv("KEYHIVE_JWT_SECRET", "")
		}},
		{"missing database url", func(t *testing.T) {
			t.Helper()
			t.Setenv("KEYHIVE_DATABASE_URL", "")
		}},
		{"bad environment", func(t *testing.T) {
			t.Helper()
			t.Setenv("KEYHIVE_ENV", "staging")
		}},
		{"port out of range", func(t *testing.T) {
			t.Helper()
			t.Setenv("KEYHIVE_PORT", "70000")
		}},
		{"bcrypt cost out of range", func(t *testing.T) {
			t.Helper()
			t.Setenv("KEYHIVE_BCRYPT_COST", "99")
		}},
	}

	for _, tc := range tests { //nolint:paralleltest // mutates env and viper
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			tc.setup(t)

			_, err := Load()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestDecodeMasterKey_Alphabets(t *testing.T) { //nolint:paralleltest // simple helper test
	raw := make([]byte, crypto.KeySize)
	for i := range raw {
		raw[i] = byte(i*7 + 3)
	}

	tests := []struct {
		name    string
		encoded string
	}{
		{"std", base64.StdEncoding.EncodeToString(raw)},
		{"raw std", base64.RawStdEncoding.EncodeToString(raw)},
		{"url", base64.URLEncoding.EncodeToString(raw)},
		{"raw url", base64.RawURLEncoding.EncodeToString(raw)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			key, err := decodeMasterKey(tc.encoded)
			require.NoError(t, err)
			assert.Equal(t, raw, key)
		})
	}
}
