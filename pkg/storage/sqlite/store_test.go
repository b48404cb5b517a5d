// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/keyhive/pkg/storage"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func seedAccount(t *testing.T, db *DB) storage.Account {
	t.Helper()

	now := time.Now().UTC()
	account := storage.Account{
		ID:        uuid.NewString(),
		Email:     uuid.NewString() + "@example.test",
		Name:      "Test User",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, NewAccountStore(db).Create(context.Background(), account))
	return account
}

func seedEntry(t *testing.T, db *DB, accountID string, mutate func(*storage.Entry)) storage.Entry {
	t.Helper()

	now := time.Now().UTC()
	entry := storage.Entry{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		Title:             "Example",
		Username:          "user@example.test",
		SiteURL:           "https://example.test",
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if mutate != nil {
		mutate(&entry)
	}
	require.NoError(t, NewEntryStore(db).Create(context.Background(), entry))
	return entry
}

func TestMigrate_AppliesAndIsIdempotent(t *testing.T) {
	t.Parallel()

	db, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(context.Background()))
	// A second run finds nothing pending.
	require.NoError(t, db.Migrate(context.Background()))
}

func TestAccountStore_UniqueEmail(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	store := NewAccountStore(db)
	ctx := context.Background()

	now := time.Now().UTC()
	account := storage.Account{
		ID: uuid.NewString(), Email: "dup@example.test",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.Create(ctx, account))

	// Same address with different case still conflicts.
	dup := storage.Account{
		ID: uuid.NewString(), Email: "DUP@example.test",
		CreatedAt: now, UpdatedAt: now,
	}
	err := store.Create(ctx, dup)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	found, err := store.GetByEmail(ctx, "DUP@EXAMPLE.TEST")
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)
}

func TestAccountStore_WrappedKeySetOnce(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	store := NewAccountStore(db)
	ctx := context.Background()

	account := seedAccount(t, db)

	first := make([]byte, 60)
	first[0] = 1
	require.NoError(t, store.SetWrappedKey(ctx, account.ID, first))

	second := make([]byte, 60)
	second[0] = 2
	err := store.SetWrappedKey(ctx, account.ID, second)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	got, err := store.GetByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, first, got.WrappedKey)

	err = store.SetWrappedKey(ctx, "missing", first)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAccountStore_OAuthIdentity(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	store := NewAccountStore(db)
	ctx := context.Background()

	account := seedAccount(t, db)
	identity := storage.OAuthIdentity{
		ID: uuid.NewString(), AccountID: account.ID,
		Provider: "github", Subject: "12345",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.AttachOAuth(ctx, identity))

	got, err := store.GetByOAuth(ctx, "github", "12345")
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)

	dup := identity
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, store.AttachOAuth(ctx, dup), storage.ErrAlreadyExists)

	_, err = store.GetByOAuth(ctx, "google", "12345")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRefreshTokenStore_Lifecycle(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	store := NewRefreshTokenStore(db)
	ctx := context.Background()

	account := seedAccount(t, db)
	now := time.Now().UTC()
	token := storage.RefreshToken{
		ID: uuid.NewString(), AccountID: account.ID,
		Fingerprint: "fp-1", ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}
	require.NoError(t, store.Create(ctx, token))

	got, err := store.GetByFingerprint(ctx, "fp-1")
	require.NoError(t, err)
	assert.False(t, got.Revoked())

	require.NoError(t, store.Revoke(ctx, "fp-1", now))
	got, err = store.GetByFingerprint(ctx, "fp-1")
	require.NoError(t, err)
	assert.True(t, got.Revoked())

	// Revoking again or revoking an unknown fingerprint is a no-op.
	require.NoError(t, store.Revoke(ctx, "fp-1", now))
	require.NoError(t, store.Revoke(ctx, "unknown", now))

	expired := storage.RefreshToken{
		ID: uuid.NewString(), AccountID: account.ID,
		Fingerprint: "fp-2", ExpiresAt: now.Add(-time.Hour), CreatedAt: now,
	}
	require.NoError(t, store.Create(ctx, expired))
	deleted, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestEntryStore_OwnerScoping(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	store := NewEntryStore(db)
	ctx := context.Background()

	owner := seedAccount(t, db)
	other := seedAccount(t, db)
	entry := seedEntry(t, db, owner.ID, nil)

	_, err := store.Get(ctx, other.ID, entry.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = store.Delete(ctx, other.ID, entry.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	entries, err := store.ListAll(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	got, err := store.Get(ctx, owner.ID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, got.ID)
}

func TestEntryStore_ListOrderingAndFilters(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	store := NewEntryStore(db)
	ctx := context.Background()

	account := seedAccount(t, db)
	base := time.Now().UTC().Add(-time.Hour)

	plain := seedEntry(t, db, account.ID, func(e *storage.Entry) {
		e.Title = "Plain"
		e.UpdatedAt = base
		e.Strength = 1
	})
	favorite := seedEntry(t, db, account.ID, func(e *storage.Entry) {
		e.Title = "Favorite"
		e.Favorite = true
		e.UpdatedAt = base.Add(time.Minute)
		e.Strength = 3
	})
	pinned := seedEntry(t, db, account.ID, func(e *storage.Entry) {
		e.Title = "Pinned"
		e.Pinned = true
		e.UpdatedAt = base.Add(2 * time.Minute)
		e.Strength = 4
	})

	entries, total, err := store.List(ctx, account.ID, storage.EntryFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, entries, 3)
	assert.Equal(t, pinned.ID, entries[0].ID)
	assert.Equal(t, favorite.ID, entries[1].ID)
	assert.Equal(t, plain.ID, entries[2].ID)

	entries, total, err = store.List(ctx, account.ID, storage.EntryFilter{Query: "PLAIN"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, plain.ID, entries[0].ID)

	strongMin := 3
	entries, total, err = store.List(ctx, account.ID, storage.EntryFilter{StrengthMin: &strongMin})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, entries, 2)

	isFavorite := true
	entries, _, err = store.List(ctx, account.ID, storage.EntryFilter{Favorite: &isFavorite})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, favorite.ID, entries[0].ID)
}

func TestEntryStore_TagsAttachDetach(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	entryStore := NewEntryStore(db)
	tagStore := NewTagStore(db)
	ctx := context.Background()

	account := seedAccount(t, db)
	other := seedAccount(t, db)

	tag := storage.Tag{
		ID: uuid.NewString(), AccountID: account.ID,
		Name: "work", CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, tagStore.Create(ctx, tag))

	foreign := storage.Tag{
		ID: uuid.NewString(), AccountID: other.ID,
		Name: "work", CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, tagStore.Create(ctx, foreign))

	entry := seedEntry(t, db, account.ID, func(e *storage.Entry) {
		e.TagIDs = []string{tag.ID}
	})

	got, err := entryStore.Get(ctx, account.ID, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{tag.ID}, got.TagIDs)

	// Attaching another account's tag reads as not found.
	err = entryStore.SetTags(ctx, account.ID, entry.ID, []string{foreign.ID})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Deleting the tag detaches it from the entry.
	require.NoError(t, tagStore.Delete(ctx, account.ID, tag.ID))
	got, err = entryStore.Get(ctx, account.ID, entry.ID)
	require.NoError(t, err)
	assert.Empty(t, got.TagIDs)

	// Tag filter matches via the join table.
	entries, _, err := entryStore.List(ctx, account.ID, storage.EntryFilter{TagIDs: []string{tag.ID}})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTagStore_UniquePerAccount(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	store := NewTagStore(db)
	ctx := context.Background()

	account := seedAccount(t, db)
	now := time.Now().UTC()

	require.NoError(t, store.Create(ctx, storage.Tag{
		ID: uuid.NewString(), AccountID: account.ID, Name: "Work", CreatedAt: now,
	}))
	err := store.Create(ctx, storage.Tag{
		ID: uuid.NewString(), AccountID: account.ID, Name: "work", CreatedAt: now,
	})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	// A different account can reuse the name.
	other := seedAccount(t, db)
	require.NoError(t, store.Create(ctx, storage.Tag{
		ID: uuid.NewString(), AccountID: other.ID, Name: "work", CreatedAt: now,
	}))

	tag, err := store.GetByName(ctx, account.ID, "WORK")
	require.NoError(t, err)
	assert.Equal(t, "Work", tag.Name)
}

func TestCollectionStore_DeleteReparents(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	collectionStore := NewCollectionStore(db)
	entryStore := NewEntryStore(db)
	ctx := context.Background()

	account := seedAccount(t, db)
	now := time.Now().UTC()
	collection := storage.Collection{
		ID: uuid.NewString(), AccountID: account.ID,
		Name: "Banking", CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, collectionStore.Create(ctx, collection))

	entry := seedEntry(t, db, account.ID, func(e *storage.Entry) {
		e.CollectionID = collection.ID
	})

	require.NoError(t, collectionStore.Delete(ctx, account.ID, collection.ID))

	// The entry survives with no collection.
	got, err := entryStore.Get(ctx, account.ID, entry.ID)
	require.NoError(t, err)
	assert.Empty(t, got.CollectionID)
}

func TestCollectionStore_MoveEntries(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	collectionStore := NewCollectionStore(db)
	entryStore := NewEntryStore(db)
	ctx := context.Background()

	account := seedAccount(t, db)
	other := seedAccount(t, db)
	now := time.Now().UTC()
	collection := storage.Collection{
		ID: uuid.NewString(), AccountID: account.ID,
		Name: "Work", CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, collectionStore.Create(ctx, collection))

	mine := seedEntry(t, db, account.ID, nil)
	foreign := seedEntry(t, db, other.ID, nil)

	moved, err := collectionStore.MoveEntries(ctx, account.ID, []string{mine.ID, foreign.ID}, collection.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), moved)

	got, err := entryStore.Get(ctx, account.ID, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, collection.ID, got.CollectionID)

	// Moving to another account's collection is refused outright.
	theirs := storage.Collection{
		ID: uuid.NewString(), AccountID: other.ID,
		Name: "Theirs", CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, collectionStore.Create(ctx, theirs))
	_, err = collectionStore.MoveEntries(ctx, account.ID, []string{mine.ID}, theirs.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Empty collection id moves back to uncategorised.
	moved, err = collectionStore.MoveEntries(ctx, account.ID, []string{mine.ID}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), moved)
	got, err = entryStore.Get(ctx, account.ID, mine.ID)
	require.NoError(t, err)
	assert.Empty(t, got.CollectionID)
}

func TestShareStore_ConsumeBoundaries(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	store := NewShareStore(db)
	ctx := context.Background()

	account := seedAccount(t, db)
	entry := seedEntry(t, db, account.ID, nil)
	now := time.Now().UTC()

	share := storage.Share{
		ID: uuid.NewString(), AccountID: account.ID, EntryID: entry.ID,
		Fingerprint: "share-fp", MaxViews: 2,
		ExpiresAt: now.Add(time.Hour), CreatedAt: now,
		IncludeSecret: true,
	}
	require.NoError(t, store.Create(ctx, share))

	first, err := store.Consume(ctx, "share-fp", "198.51.100.7", now)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ViewCount)
	assert.Equal(t, 1, first.Remaining())
	assert.Equal(t, "198.51.100.7", first.AccessorIP)
	assert.False(t, first.AccessedAt.IsZero())

	second, err := store.Consume(ctx, "share-fp", "198.51.100.8", now)
	require.NoError(t, err)
	assert.Equal(t, 2, second.ViewCount)
	assert.Equal(t, 0, second.Remaining())

	// The third access fails exactly like an unknown token.
	_, err = store.Consume(ctx, "share-fp", "198.51.100.9", now)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.Consume(ctx, "no-such-token", "198.51.100.9", now)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestShareStore_ExpiryBeatsRemainingViews(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	store := NewShareStore(db)
	ctx := context.Background()

	account := seedAccount(t, db)
	entry := seedEntry(t, db, account.ID, nil)
	now := time.Now().UTC()

	share := storage.Share{
		ID: uuid.NewString(), AccountID: account.ID, EntryID: entry.ID,
		Fingerprint: "expired-fp", MaxViews: 5,
		ExpiresAt: now.Add(-time.Minute), CreatedAt: now.Add(-time.Hour),
	}
	require.NoError(t, store.Create(ctx, share))

	_, err := store.Consume(ctx, "expired-fp", "", now)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestShareStore_EntryDeleteCascades(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	shareStore := NewShareStore(db)
	entryStore := NewEntryStore(db)
	ctx := context.Background()

	account := seedAccount(t, db)
	entry := seedEntry(t, db, account.ID, nil)
	now := time.Now().UTC()

	require.NoError(t, shareStore.Create(ctx, storage.Share{
		ID: uuid.NewString(), AccountID: account.ID, EntryID: entry.ID,
		Fingerprint: "cascade-fp", MaxViews: 1,
		ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}))

	require.NoError(t, entryStore.Delete(ctx, account.ID, entry.ID))

	_, err := shareStore.Consume(ctx, "cascade-fp", "", now)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAuditStore_AppendAndQuery(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)
	store := NewAuditStore(db)
	ctx := context.Background()

	account := seedAccount(t, db)
	base := time.Now().UTC().Add(-time.Hour)

	actions := []string{storage.ActionLogin, storage.ActionCreate, storage.ActionCreate, storage.ActionReveal}
	for i, action := range actions {
		require.NoError(t, store.Append(ctx, storage.AuditEvent{
			ID: uuid.NewString(), AccountID: account.ID, Action: action,
			IP:        "203.0.113.1",
			Metadata:  map[string]string{"seq": string(rune('a' + i))},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	events, total, err := store.List(ctx, account.ID, storage.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, events, 4)
	// Newest first.
	assert.Equal(t, storage.ActionReveal, events[0].Action)
	assert.Equal(t, storage.ActionLogin, events[3].Action)

	events, total, err = store.List(ctx, account.ID, storage.AuditFilter{Action: storage.ActionCreate})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, events, 2)

	counts, err := store.Summary(ctx, account.ID, base)
	require.NoError(t, err)
	require.NotEmpty(t, counts)
	assert.Equal(t, storage.ActionCreate, counts[0].Action)
	assert.Equal(t, int64(2), counts[0].Count)

	// Another account sees nothing.
	other := seedAccount(t, db)
	_, total, err = store.List(ctx, other.ID, storage.AuditFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}
