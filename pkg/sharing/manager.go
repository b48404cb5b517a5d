// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sharing implements one-time share capabilities: an owner mints
// an opaque token for one entry, hands the token out of band, and the
// recipient redeems it without an account. Tokens are stored only as
// SHA-256 fingerprints.
package sharing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/keyhive/pkg/audit"
	"github.com/stacklok/keyhive/pkg/auth"
	"github.com/stacklok/keyhive/pkg/crypto"
	"github.com/stacklok/keyhive/pkg/errors"
	"github.com/stacklok/keyhive/pkg/storage"
)

const (
	defaultMaxViews = 1
	maxMaxViews     = 100
	defaultTTL      = 24 * time.Hour
	maxTTL          = 7 * 24 * time.Hour
)

// CreateInput configures a new share. Zero values take the defaults of
// one view and 24 hours.
type CreateInput struct {
	EntryID       string
	MaxViews      int
	TTL           time.Duration
	IncludeSecret bool
	IncludeNotes  bool
}

// Share is the API shape of a share as seen by its owner. The token is
// present only in the Create response; it is not recoverable afterwards.
type Share struct {
	ID            string     `json:"id"`
	EntryID       string     `json:"entryId"`
	EntryTitle    string     `json:"entryTitle,omitempty"`
	Token         string     `json:"token,omitempty"`
	MaxViews      int        `json:"maxViews"`
	ViewCount     int        `json:"viewCount"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	IncludeSecret bool       `json:"includeSecret"`
	IncludeNotes  bool       `json:"includeNotes"`
	AccessedAt    *time.Time `json:"accessedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// SharedEntry is what a token redemption reveals. Fields the owner did
// not include stay empty.
type SharedEntry struct {
	Title          string `json:"title"`
	Username       string `json:"username,omitempty"`
	SiteURL        string `json:"site,omitempty"`
	Secret         string `json:"password,omitempty"`
	Notes          string `json:"notes,omitempty"`
	ViewsRemaining int    `json:"viewsRemaining"`
}

// Manager is the sharing service.
type Manager interface {
	// Create mints a share for an owned entry and returns it with the
	// one-time token.
	Create(ctx context.Context, accountID string, input CreateInput) (Share, error)
	// List returns the account's shares, newest first, without tokens.
	List(ctx context.Context, accountID string) ([]Share, error)
	// Revoke deletes a share before it expires.
	Revoke(ctx context.Context, accountID, shareID string) error
	// Access redeems a token. Unknown, expired and exhausted tokens all
	// return ErrNotFound.
	Access(ctx context.Context, token string) (SharedEntry, error)
}

type manager struct {
	shares   storage.ShareStore
	entries  storage.EntryStore
	keys     *auth.KeyService
	recorder audit.Recorder
}

// NewManager creates the sharing service.
func NewManager(
	shares storage.ShareStore,
	entries storage.EntryStore,
	keys *auth.KeyService,
	recorder audit.Recorder,
) Manager {
	return &manager{shares: shares, entries: entries, keys: keys, recorder: recorder}
}

// Create mints a share for an owned entry.
func (m *manager) Create(ctx context.Context, accountID string, input CreateInput) (Share, error) {
	if input.MaxViews < 0 || input.MaxViews > maxMaxViews {
		return Share{}, errors.NewValidationError("maxViews must be between 1 and 100", nil)
	}
	if input.TTL < 0 || input.TTL > maxTTL {
		return Share{}, errors.NewValidationError("ttl must be between 1 second and 7 days", nil)
	}
	if input.MaxViews == 0 {
		input.MaxViews = defaultMaxViews
	}
	if input.TTL == 0 {
		input.TTL = defaultTTL
	}

	// Ownership check before minting anything.
	entry, err := m.entries.Get(ctx, accountID, input.EntryID)
	if err != nil {
		return Share{}, err
	}

	token, err := crypto.NewOpaqueToken()
	if err != nil {
		return Share{}, err
	}

	now := time.Now().UTC()
	stored := storage.Share{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		EntryID:       entry.ID,
		Fingerprint:   crypto.Fingerprint(token),
		MaxViews:      input.MaxViews,
		ExpiresAt:     now.Add(input.TTL),
		IncludeSecret: input.IncludeSecret,
		IncludeNotes:  input.IncludeNotes,
		CreatedAt:     now,
	}
	if err := m.shares.Create(ctx, stored); err != nil {
		return Share{}, err
	}

	m.recorder.Record(ctx, audit.Event{
		AccountID:  accountID,
		Action:     storage.ActionShare,
		EntryID:    entry.ID,
		EntryTitle: entry.Title,
	})

	share := toShare(stored, entry.Title)
	share.Token = token
	return share, nil
}

// List returns the account's shares without tokens.
func (m *manager) List(ctx context.Context, accountID string) ([]Share, error) {
	stored, err := m.shares.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	shares := make([]Share, 0, len(stored))
	for _, s := range stored {
		title := ""
		if entry, err := m.entries.Get(ctx, accountID, s.EntryID); err == nil {
			title = entry.Title
		}
		shares = append(shares, toShare(s, title))
	}
	return shares, nil
}

// Revoke deletes a share.
func (m *manager) Revoke(ctx context.Context, accountID, shareID string) error {
	return m.shares.Delete(ctx, accountID, shareID)
}

// Access redeems a token. The view is spent atomically before any
// decryption happens, so concurrent redemptions cannot exceed MaxViews.
func (m *manager) Access(ctx context.Context, token string) (SharedEntry, error) {
	info, _ := audit.RequestInfoFromContext(ctx)

	consumed, err := m.shares.Consume(ctx, crypto.Fingerprint(token), info.IP, time.Now().UTC())
	if err != nil {
		return SharedEntry{}, err
	}

	entry, err := m.entries.Get(ctx, consumed.AccountID, consumed.EntryID)
	if err != nil {
		return SharedEntry{}, err
	}

	shared := SharedEntry{
		Title:          entry.Title,
		Username:       entry.Username,
		SiteURL:        entry.SiteURL,
		ViewsRemaining: consumed.Remaining(),
	}
	if consumed.IncludeSecret || consumed.IncludeNotes {
		key, err := m.keys.AccountKey(ctx, consumed.AccountID)
		if err != nil {
			return SharedEntry{}, err
		}
		if consumed.IncludeSecret {
			if shared.Secret, err = crypto.DecryptField(key, entry.Secret); err != nil {
				return SharedEntry{}, err
			}
		}
		if consumed.IncludeNotes {
			if shared.Notes, err = crypto.DecryptField(key, entry.Notes); err != nil {
				return SharedEntry{}, err
			}
		}
	}

	// Audited against the owner; the accessor has no account.
	m.recorder.Record(ctx, audit.Event{
		AccountID:  consumed.AccountID,
		Action:     storage.ActionShareAccess,
		EntryID:    entry.ID,
		EntryTitle: entry.Title,
	})
	return shared, nil
}

func toShare(stored storage.Share, entryTitle string) Share {
	share := Share{
		ID:            stored.ID,
		EntryID:       stored.EntryID,
		EntryTitle:    entryTitle,
		MaxViews:      stored.MaxViews,
		ViewCount:     stored.ViewCount,
		ExpiresAt:     stored.ExpiresAt,
		IncludeSecret: stored.IncludeSecret,
		IncludeNotes:  stored.IncludeNotes,
		CreatedAt:     stored.CreatedAt,
	}
	if !stored.AccessedAt.IsZero() {
		accessed := stored.AccessedAt
		share.AccessedAt = &accessed
	}
	return share
}
