// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sharing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/keyhive/pkg/audit/mocks"
	"github.com/stacklok/keyhive/pkg/auth"
	"github.com/stacklok/keyhive/pkg/crypto"
	"github.com/stacklok/keyhive/pkg/errors"
	"github.com/stacklok/keyhive/pkg/sharing"
	"github.com/stacklok/keyhive/pkg/storage"
	"github.com/stacklok/keyhive/pkg/storage/sqlite"
	"github.com/stacklok/keyhive/pkg/vault"
)

type testEnv struct {
	shares   sharing.Manager
	vault    vault.Manager
	owner    string
	stranger string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	db, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	masterKey := make([]byte, crypto.KeySize)
	copy(masterKey, "0123456789abcdef0123456789abcdef")
	cipher, err := crypto.New(masterKey)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	recorder := mocks.NewMockRecorder(ctrl)
	recorder.EXPECT().Record(gomock.Any(), gomock.Any()).AnyTimes()

	accounts := sqlite.NewAccountStore(db)
	now := time.Now().UTC()
	owner, stranger := uuid.NewString(), uuid.NewString()
	for i, id := range []string{owner, stranger} {
		require.NoError(t, accounts.Create(context.Background(), storage.Account{
			ID:        id,
			Email:     []string{"owner@x.test", "stranger@x.test"}[i],
			Name:      "tester",
			CreatedAt: now,
			UpdatedAt: now,
		}))
	}

	keys := auth.NewKeyService(accounts, cipher)
	entries := sqlite.NewEntryStore(db)
	return testEnv{
		shares: sharing.NewManager(sqlite.NewShareStore(db), entries, keys, recorder),
		vault: vault.NewManager(
			entries, sqlite.NewCollectionStore(db), sqlite.NewTagStore(db), keys, recorder,
		),
		owner:    owner,
		stranger: stranger,
	}
}

func (e testEnv) seedEntry(t *testing.T) vault.Entry {
	t.Helper()
	entry, err := e.vault.Create(context.Background(), e.owner, vault.CreateEntryInput{
		Title:    "Router admin",
		Username: "admin",
		Secret:   "Shared-Secret-1",
		Notes:    "back office",
	})
	require.NoError(t, err)
	return entry
}

func TestSharing_CreateAndAccess(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	entry := env.seedEntry(t)

	share, err := env.shares.Create(ctx, env.owner, sharing.CreateInput{
		EntryID:       entry.ID,
		IncludeSecret: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, share.Token)
	assert.Equal(t, 1, share.MaxViews)

	got, err := env.shares.Access(ctx, share.Token)
	require.NoError(t, err)
	assert.Equal(t, "Router admin", got.Title)
	assert.Equal(t, "Shared-Secret-1", got.Secret)
	assert.Empty(t, got.Notes, "notes were not included")
	assert.Equal(t, 0, got.ViewsRemaining)

	// The single view is spent.
	_, err = env.shares.Access(ctx, share.Token)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSharing_SelectiveDisclosure(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	entry := env.seedEntry(t)

	share, err := env.shares.Create(ctx, env.owner, sharing.CreateInput{
		EntryID:      entry.ID,
		IncludeNotes: true,
	})
	require.NoError(t, err)

	got, err := env.shares.Access(ctx, share.Token)
	require.NoError(t, err)
	assert.Empty(t, got.Secret)
	assert.Equal(t, "back office", got.Notes)
}

func TestSharing_MultipleViews(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	entry := env.seedEntry(t)

	share, err := env.shares.Create(ctx, env.owner, sharing.CreateInput{
		EntryID:  entry.ID,
		MaxViews: 3,
	})
	require.NoError(t, err)

	for remaining := 2; remaining >= 0; remaining-- {
		got, err := env.shares.Access(ctx, share.Token)
		require.NoError(t, err)
		assert.Equal(t, remaining, got.ViewsRemaining)
	}
	_, err = env.shares.Access(ctx, share.Token)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSharing_LimitsAndOwnership(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	entry := env.seedEntry(t)

	_, err := env.shares.Create(ctx, env.owner, sharing.CreateInput{
		EntryID: entry.ID, MaxViews: 101,
	})
	assert.True(t, errors.IsValidation(err))

	_, err = env.shares.Create(ctx, env.owner, sharing.CreateInput{
		EntryID: entry.ID, TTL: 8 * 24 * time.Hour,
	})
	assert.True(t, errors.IsValidation(err))

	// A stranger cannot share someone else's entry.
	_, err = env.shares.Create(ctx, env.stranger, sharing.CreateInput{EntryID: entry.ID})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSharing_RevokeStopsAccess(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	entry := env.seedEntry(t)

	share, err := env.shares.Create(ctx, env.owner, sharing.CreateInput{
		EntryID: entry.ID, MaxViews: 5,
	})
	require.NoError(t, err)

	// Only the owner can revoke.
	err = env.shares.Revoke(ctx, env.stranger, share.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, env.shares.Revoke(ctx, env.owner, share.ID))
	_, err = env.shares.Access(ctx, share.Token)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSharing_ListHidesTokens(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	entry := env.seedEntry(t)

	created, err := env.shares.Create(ctx, env.owner, sharing.CreateInput{EntryID: entry.ID})
	require.NoError(t, err)

	_, err = env.shares.Access(ctx, created.Token)
	require.NoError(t, err)

	shares, err := env.shares.List(ctx, env.owner)
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.Empty(t, shares[0].Token)
	assert.Equal(t, 1, shares[0].ViewCount)
	assert.NotNil(t, shares[0].AccessedAt)
	assert.Equal(t, "Router admin", shares[0].EntryTitle)

	// The stranger sees nothing.
	shares, err = env.shares.List(ctx, env.stranger)
	require.NoError(t, err)
	assert.Empty(t, shares)
}
