// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"time"

	"github.com/stacklok/keyhive/pkg/crypto"
)

// Account is a registered user of the vault.
type Account struct {
	ID    string
	Email string
	Name  string

	// PasswordHash is the bcrypt hash of the login password. Empty for
	// accounts created through an OAuth provider that never set one.
	PasswordHash string

	// WrappedKey is the account data key wrapped by the master key,
	// exactly crypto.WrappedKeySize bytes once materialised. Empty until
	// the first sign-in that needs it.
	WrappedKey []byte

	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastLoginAt time.Time
}

// HasPassword reports whether the account can sign in with a password.
func (a Account) HasPassword() bool {
	return a.PasswordHash != ""
}

// OAuthIdentity links an account to an upstream provider subject.
type OAuthIdentity struct {
	ID        string
	AccountID string
	// Provider is "google" or "github".
	Provider string
	// Subject is the provider's stable user identifier.
	Subject   string
	Email     string
	CreatedAt time.Time
}

// RefreshToken is one refresh session. Only the SHA-256 fingerprint of the
// raw token is persisted.
type RefreshToken struct {
	ID          string
	AccountID   string
	Fingerprint string
	ExpiresAt   time.Time
	CreatedAt   time.Time
	RevokedAt   time.Time
}

// Revoked reports whether the token has been explicitly revoked.
func (t RefreshToken) Revoked() bool {
	return !t.RevokedAt.IsZero()
}

// Expired reports whether the token is past its expiry at the given time.
func (t RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Entry is a single stored credential. Secret, Notes and TOTPSeed are
// encrypted with the owning account's data key; everything else is
// plaintext metadata.
type Entry struct {
	ID        string
	AccountID string

	Title    string
	Username string
	SiteURL  string

	Secret   crypto.EncryptedField
	Notes    crypto.EncryptedField
	TOTPSeed crypto.EncryptedField

	// CollectionID is empty when the entry is not in a collection.
	CollectionID string
	// TagIDs are the ids of the tags attached to the entry.
	TagIDs []string

	Favorite bool
	Pinned   bool

	// Strength is the stored 0..4 score of the current secret, recomputed
	// whenever the secret changes.
	Strength int

	// LastUsedAt is stamped when the secret is revealed. Zero until the
	// first reveal.
	LastUsedAt time.Time

	// PasswordChangedAt tracks the last time the secret actually changed,
	// which drives the "old password" health classification.
	PasswordChangedAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Collection groups entries for one account.
type Collection struct {
	ID        string
	AccountID string
	Name      string
	Icon      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tag is a user-defined label attachable to entries.
type Tag struct {
	ID        string
	AccountID string
	Name      string
	Color     string
	CreatedAt time.Time
}

// Share is a one-time share capability for a single entry. Only the token
// fingerprint is persisted; the raw token is returned to the owner once at
// creation.
type Share struct {
	ID          string
	AccountID   string
	EntryID     string
	Fingerprint string

	MaxViews  int
	ViewCount int
	ExpiresAt time.Time

	IncludeSecret bool
	IncludeNotes  bool

	// AccessedAt and AccessorIP record the most recent consumption.
	AccessedAt time.Time
	AccessorIP string

	CreatedAt time.Time
}

// Remaining returns how many views the share has left.
func (s Share) Remaining() int {
	if s.ViewCount >= s.MaxViews {
		return 0
	}
	return s.MaxViews - s.ViewCount
}

// Audit action vocabulary. The set is closed; stores reject nothing, but
// the service layer only ever emits these values.
const (
	ActionLogin       = "login"
	ActionLogout      = "logout"
	ActionReveal      = "reveal"
	ActionCopy        = "copy"
	ActionCreate      = "create"
	ActionUpdate      = "update"
	ActionDelete      = "delete"
	ActionExport      = "export"
	ActionImport      = "import"
	ActionShare       = "share"
	ActionShareAccess = "share_access"
)

// AuditEvent is one append-only audit record.
type AuditEvent struct {
	ID        string
	AccountID string
	// Action is one of the Action* constants.
	Action string
	// EntryID and EntryTitle identify the affected vault entry, if any.
	// The title is denormalised so the trail survives entry deletion.
	EntryID    string
	EntryTitle string
	// IP is the remote address the action originated from.
	IP string
	// UserAgent is the client's User-Agent header, if known.
	UserAgent string
	// Metadata is a small free-form JSON object.
	Metadata  map[string]string
	CreatedAt time.Time
}
