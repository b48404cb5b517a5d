// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package storage provides domain-specific storage interfaces for keyhive.
//
// Every vault-side query is scoped by account id: rows belonging to another
// account are reported as ErrNotFound, never as a permission error, so the
// API cannot leak resource existence across accounts.
package storage

import (
	"context"
	"time"
)

// AccountStore manages accounts and their linked OAuth identities.
type AccountStore interface {
	// Create stores a new account. A duplicate email (case-insensitive)
	// returns ErrAlreadyExists.
	Create(ctx context.Context, account Account) error
	// GetByID retrieves an account by id.
	GetByID(ctx context.Context, id string) (Account, error)
	// GetByEmail retrieves an account by email, case-insensitively.
	GetByEmail(ctx context.Context, email string) (Account, error)
	// GetByOAuth retrieves the account linked to a provider subject.
	GetByOAuth(ctx context.Context, provider, subject string) (Account, error)
	// AttachOAuth links a provider identity to an account. A duplicate
	// (provider, subject) pair returns ErrAlreadyExists.
	AttachOAuth(ctx context.Context, identity OAuthIdentity) error
	// SetWrappedKey stores the wrapped data key, only if none is set yet.
	SetWrappedKey(ctx context.Context, accountID string, wrapped []byte) error
	// TouchLastLogin records a successful sign-in.
	TouchLastLogin(ctx context.Context, accountID string, at time.Time) error
}

// RefreshTokenStore manages refresh sessions, indexed by token fingerprint.
type RefreshTokenStore interface {
	// Create stores a new refresh session.
	Create(ctx context.Context, token RefreshToken) error
	// GetByFingerprint retrieves a session by token fingerprint.
	GetByFingerprint(ctx context.Context, fingerprint string) (RefreshToken, error)
	// Revoke marks a session revoked. Revoking an already revoked or
	// unknown fingerprint is not an error.
	Revoke(ctx context.Context, fingerprint string, at time.Time) error
	// RevokeAllForAccount revokes every live session of an account.
	RevokeAllForAccount(ctx context.Context, accountID string, at time.Time) error
	// DeleteExpired removes sessions that expired before the given time
	// and returns how many were removed.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// EntryFilter configures filtering and pagination for EntryStore.List.
// All populated conditions are conjunctive.
type EntryFilter struct {
	// Query matches title, username and site URL, case-insensitively.
	Query string
	// CollectionID restricts to one collection. Empty matches all.
	CollectionID string
	// TagIDs restricts to entries carrying any of the tags.
	TagIDs []string
	// Favorite and Pinned restrict on the markers when non-nil.
	Favorite *bool
	Pinned   *bool
	// StrengthMin and StrengthMax bound the stored strength when non-nil.
	StrengthMin *int
	StrengthMax *int
	// Page is 1-based. PageSize of 0 means the caller's default.
	Page     int
	PageSize int
}

// EntryStore manages vault entries.
type EntryStore interface {
	// Create stores a new entry with its tag attachments.
	Create(ctx context.Context, entry Entry) error
	// Get retrieves one entry owned by the account.
	Get(ctx context.Context, accountID, id string) (Entry, error)
	// List returns one page of entries matching the filter plus the total
	// match count. Ordering is pinned first, then favourites, then most
	// recently updated.
	List(ctx context.Context, accountID string, filter EntryFilter) ([]Entry, int, error)
	// ListAll returns every entry owned by the account, for health
	// analysis and export.
	ListAll(ctx context.Context, accountID string) ([]Entry, error)
	// Update replaces all mutable fields of an entry, including its tag
	// attachments.
	Update(ctx context.Context, entry Entry) error
	// Delete removes one entry.
	Delete(ctx context.Context, accountID, id string) error
	// DeleteMany removes the given entries in one transaction and returns
	// how many rows were deleted. Unknown or foreign ids are skipped.
	DeleteMany(ctx context.Context, accountID string, ids []string) (int64, error)
	// DeleteAll removes every entry owned by the account.
	DeleteAll(ctx context.Context, accountID string) (int64, error)
	// TouchLastUsed stamps the entry's last-used time after a reveal.
	TouchLastUsed(ctx context.Context, accountID, id string, at time.Time) error
	// SetFavorite toggles the favourite marker.
	SetFavorite(ctx context.Context, accountID, id string, favorite bool) error
	// SetPinned toggles the pinned marker.
	SetPinned(ctx context.Context, accountID, id string, pinned bool) error
	// SetTags replaces the entry's tag attachments. Tags not owned by the
	// account return ErrNotFound.
	SetTags(ctx context.Context, accountID, entryID string, tagIDs []string) error
	// FindByTriple locates an entry by (title, username, site URL), the
	// identity used by direct save and import merging.
	FindByTriple(ctx context.Context, accountID, title, username, siteURL string) (Entry, error)
}

// CollectionStore manages entry collections.
type CollectionStore interface {
	// Create stores a new collection. Duplicate names (case-insensitive)
	// return ErrAlreadyExists.
	Create(ctx context.Context, collection Collection) error
	// Get retrieves one collection owned by the account.
	Get(ctx context.Context, accountID, id string) (Collection, error)
	// List returns all collections of the account ordered by name.
	List(ctx context.Context, accountID string) ([]Collection, error)
	// Update renames a collection or changes its icon.
	Update(ctx context.Context, collection Collection) error
	// Delete removes a collection and re-parents its entries to no
	// collection in the same transaction.
	Delete(ctx context.Context, accountID, id string) error
	// MoveEntries assigns the given entries to a collection, or to none
	// when collectionID is empty. It returns how many entries moved.
	MoveEntries(ctx context.Context, accountID string, entryIDs []string, collectionID string) (int64, error)
}

// TagStore manages tags.
type TagStore interface {
	// Create stores a new tag. Duplicate names (case-insensitive) return
	// ErrAlreadyExists.
	Create(ctx context.Context, tag Tag) error
	// Get retrieves one tag owned by the account.
	Get(ctx context.Context, accountID, id string) (Tag, error)
	// GetByName retrieves one tag by name, case-insensitively.
	GetByName(ctx context.Context, accountID, name string) (Tag, error)
	// List returns all tags of the account ordered by name.
	List(ctx context.Context, accountID string) ([]Tag, error)
	// Update renames a tag or changes its color.
	Update(ctx context.Context, tag Tag) error
	// Delete removes a tag and detaches it from all entries.
	Delete(ctx context.Context, accountID, id string) error
}

// ShareStore manages share capabilities.
type ShareStore interface {
	// Create stores a new share.
	Create(ctx context.Context, share Share) error
	// ListByAccount returns the account's shares, newest first.
	ListByAccount(ctx context.Context, accountID string) ([]Share, error)
	// Delete revokes a share owned by the account.
	Delete(ctx context.Context, accountID, id string) error
	// Consume atomically spends one view of the share with the given
	// token fingerprint and records the accessor address. It returns
	// ErrNotFound when the share does not exist, is expired or has no
	// views left; callers cannot distinguish the three cases. On success
	// the returned share reflects the incremented view count.
	Consume(ctx context.Context, fingerprint, accessorIP string, now time.Time) (Share, error)
}

// AuditFilter configures audit queries.
type AuditFilter struct {
	// Action restricts to one action when non-empty.
	Action string
	// From and To bound the creation time when non-zero.
	From time.Time
	To   time.Time
	// Page is 1-based. PageSize of 0 means the caller's default.
	Page     int
	PageSize int
}

// ActionCount is one row of an audit summary.
type ActionCount struct {
	Action string
	Count  int64
}

// AuditStore appends and queries audit events. The interface deliberately
// has no update or delete methods; the log is append-only.
type AuditStore interface {
	// Append stores one event.
	Append(ctx context.Context, event AuditEvent) error
	// List returns one page of the account's events, newest first, plus
	// the total match count.
	List(ctx context.Context, accountID string, filter AuditFilter) ([]AuditEvent, int, error)
	// Summary returns per-action counts for events created at or after
	// the given time, ordered by descending count.
	Summary(ctx context.Context, accountID string, since time.Time) ([]ActionCount, error)
}
