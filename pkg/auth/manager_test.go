// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"github.com/stacklok/keyhive/pkg/audit/mocks"
	"github.com/stacklok/keyhive/pkg/auth"
	"github.com/stacklok/keyhive/pkg/crypto"
	"github.com/stacklok/keyhive/pkg/errors"
	"github.com/stacklok/keyhive/pkg/storage/sqlite"
)

func newTestManager(t *testing.T) (auth.Manager, *sqlite.DB) {
	t.Helper()

	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	masterKey := make([]byte, crypto.KeySize)
	copy(masterKey, "0123456789abcdef0123456789abcdef")
	cipher, err := crypto.New(masterKey)
	require.NoError(t, err)

	issuer, err := auth.NewTokenIssuer([]byte("test-secret"), 15*time.Minute)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	recorder := mocks.NewMockRecorder(ctrl)
	recorder.EXPECT().Record(gomock.Any(), gomock.Any()).AnyTimes()

	accounts := sqlite.NewAccountStore(db)
	manager := auth.NewManager(
		accounts,
		sqlite.NewRefreshTokenStore(db),
		auth.NewKeyService(accounts, cipher),
		issuer,
		recorder,
		auth.Config{BcryptCost: bcrypt.MinCost, RefreshTTL: time.Hour},
	)
	return manager, db
}

func TestManager_RegisterAndLogin(t *testing.T) {
	t.Parallel()
	manager, _ := newTestManager(t)
	ctx := context.Background()

	identity, pair, err := manager.Register(ctx, "a@x.test", "Alice", "Passw0rd!")
	require.NoError(t, err)
	assert.Equal(t, "a@x.test", identity.Email)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)

	// The bearer token verifies back to the same identity.
	got, err := manager.VerifyAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, identity.AccountID, got.AccountID)

	// Email addresses are case-insensitive on login.
	identity2, pair2, err := manager.Login(ctx, "A@X.TEST", "Passw0rd!")
	require.NoError(t, err)
	assert.Equal(t, identity.AccountID, identity2.AccountID)
	assert.NotEqual(t, pair.RefreshToken, pair2.RefreshToken)
}

func TestManager_RegisterRejectsDuplicateEmail(t *testing.T) {
	t.Parallel()
	manager, _ := newTestManager(t)
	ctx := context.Background()

	_, _, err := manager.Register(ctx, "a@x.test", "", "Passw0rd!")
	require.NoError(t, err)

	_, _, err = manager.Register(ctx, "a@x.test", "", "Passw0rd!")
	assert.True(t, errors.IsConflict(err))
}

func TestManager_RegisterPasswordPolicy(t *testing.T) {
	t.Parallel()
	manager, _ := newTestManager(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		password string
	}{
		{"too short", "Ab1"},
		{"no upper", "passw0rd!"},
		{"no lower", "PASSW0RD!"},
		{"no digit", "Password!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := manager.Register(ctx, "p@x.test", "", tt.password)
			assert.True(t, errors.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestManager_LoginFailuresAreUniform(t *testing.T) {
	t.Parallel()
	manager, _ := newTestManager(t)
	ctx := context.Background()

	_, _, err := manager.Register(ctx, "a@x.test", "", "Passw0rd!")
	require.NoError(t, err)

	_, _, unknownErr := manager.Login(ctx, "nobody@x.test", "Passw0rd!")
	_, _, wrongErr := manager.Login(ctx, "a@x.test", "WrongPass1")

	// Unknown email and wrong password are indistinguishable.
	require.Error(t, unknownErr)
	require.Error(t, wrongErr)
	assert.Equal(t, unknownErr.Error(), wrongErr.Error())
	assert.True(t, errors.IsUnauthenticated(unknownErr))
}

func TestManager_RefreshRotates(t *testing.T) {
	t.Parallel()
	manager, _ := newTestManager(t)
	ctx := context.Background()

	_, pair, err := manager.Register(ctx, "a@x.test", "", "Passw0rd!")
	require.NoError(t, err)

	_, next, err := manager.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// The presented token died with the rotation.
	_, _, err = manager.Refresh(ctx, pair.RefreshToken)
	assert.True(t, errors.IsUnauthenticated(err))

	// The replacement still works.
	_, _, err = manager.Refresh(ctx, next.RefreshToken)
	require.NoError(t, err)
}

func TestManager_LogoutRevokesRefresh(t *testing.T) {
	t.Parallel()
	manager, _ := newTestManager(t)
	ctx := context.Background()

	_, pair, err := manager.Register(ctx, "a@x.test", "", "Passw0rd!")
	require.NoError(t, err)

	require.NoError(t, manager.Logout(ctx, pair.RefreshToken))
	_, _, err = manager.Refresh(ctx, pair.RefreshToken)
	assert.True(t, errors.IsUnauthenticated(err))

	// Logout is idempotent, unknown tokens included.
	require.NoError(t, manager.Logout(ctx, pair.RefreshToken))
	require.NoError(t, manager.Logout(ctx, "never-issued"))
}

func TestManager_RevokeAll(t *testing.T) {
	t.Parallel()
	manager, _ := newTestManager(t)
	ctx := context.Background()

	identity, first, err := manager.Register(ctx, "a@x.test", "", "Passw0rd!")
	require.NoError(t, err)
	_, second, err := manager.Login(ctx, "a@x.test", "Passw0rd!")
	require.NoError(t, err)

	require.NoError(t, manager.RevokeAll(ctx, identity.AccountID))

	_, _, err = manager.Refresh(ctx, first.RefreshToken)
	assert.True(t, errors.IsUnauthenticated(err))
	_, _, err = manager.Refresh(ctx, second.RefreshToken)
	assert.True(t, errors.IsUnauthenticated(err))
}

func TestManager_OAuthSignIn(t *testing.T) {
	t.Parallel()
	manager, db := newTestManager(t)
	ctx := context.Background()

	// First sign-in creates the account with a wrapped key.
	identity, pair, err := manager.OAuthSignIn(ctx, "github", "12345", "gh@x.test", "Hubber")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)

	account, err := sqlite.NewAccountStore(db).GetByID(ctx, identity.AccountID)
	require.NoError(t, err)
	assert.Len(t, account.WrappedKey, crypto.WrappedKeySize)
	assert.False(t, account.HasPassword())

	// Second sign-in with the same subject reuses the account.
	identity2, _, err := manager.OAuthSignIn(ctx, "github", "12345", "gh@x.test", "Hubber")
	require.NoError(t, err)
	assert.Equal(t, identity.AccountID, identity2.AccountID)

	// Password login on an OAuth-only account fails like a bad password.
	_, _, err = manager.Login(ctx, "gh@x.test", "Passw0rd!")
	assert.True(t, errors.IsUnauthenticated(err))
}

func TestManager_OAuthLinksExistingEmailAccount(t *testing.T) {
	t.Parallel()
	manager, _ := newTestManager(t)
	ctx := context.Background()

	registered, _, err := manager.Register(ctx, "a@x.test", "Alice", "Passw0rd!")
	require.NoError(t, err)

	linked, _, err := manager.OAuthSignIn(ctx, "google", "g-999", "a@x.test", "Alice G")
	require.NoError(t, err)
	assert.Equal(t, registered.AccountID, linked.AccountID)
}

func TestManager_RefreshRevokedSession(t *testing.T) {
	t.Parallel()

	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	sessions := sqlite.NewRefreshTokenStore(db)
	accounts := sqlite.NewAccountStore(db)

	masterKey := make([]byte, crypto.KeySize)
	cipher, err := crypto.New(masterKey)
	require.NoError(t, err)
	issuer, err := auth.NewTokenIssuer([]byte("s"), time.Minute)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	recorder := mocks.NewMockRecorder(ctrl)
	recorder.EXPECT().Record(gomock.Any(), gomock.Any()).AnyTimes()

	manager := auth.NewManager(accounts, sessions, auth.NewKeyService(accounts, cipher),
		issuer, recorder, auth.Config{BcryptCost: bcrypt.MinCost, RefreshTTL: time.Hour})

	ctx := context.Background()
	identity, pair, err := manager.Register(ctx, "a@x.test", "", "Passw0rd!")
	require.NoError(t, err)

	// Kill the session out from under the manager.
	token, err := sessions.GetByFingerprint(ctx, crypto.Fingerprint(pair.RefreshToken))
	require.NoError(t, err)
	require.NoError(t, sessions.Revoke(ctx, token.Fingerprint, time.Now()))

	_, _, err = manager.Refresh(ctx, pair.RefreshToken)
	assert.True(t, errors.IsUnauthenticated(err))
	_ = identity
}
