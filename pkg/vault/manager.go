// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package vault is the credential engine: encrypted entry CRUD, search,
// organisation into collections and tags, health analysis and
// export/import. Every operation is scoped to the calling account; the
// account's data key is unwrapped per call and never cached.
package vault

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/keyhive/pkg/audit"
	"github.com/stacklok/keyhive/pkg/auth"
	"github.com/stacklok/keyhive/pkg/crypto"
	"github.com/stacklok/keyhive/pkg/errors"
	"github.com/stacklok/keyhive/pkg/storage"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200

	maxTitleLength  = 200
	maxFieldLength  = 1024
	maxSecretLength = 4096
	maxNotesLength  = 10240

	// oldPasswordAge is the age past which a secret counts as old in the
	// health analysis.
	oldPasswordAge = 90 * 24 * time.Hour
)

// Manager is the vault service.
type Manager interface {
	// Create stores a new encrypted entry.
	Create(ctx context.Context, accountID string, input CreateEntryInput) (Entry, error)
	// Get returns one entry with its secret decrypted, stamps its
	// last-used time and audits the reveal.
	Get(ctx context.Context, accountID, id string) (Entry, error)
	// List returns one page of entries without secrets.
	List(ctx context.Context, accountID string, filter ListFilter) (EntryPage, error)
	// Update applies a partial update, re-encrypting changed sensitive
	// fields and recomputing strength when the secret changes.
	Update(ctx context.Context, accountID, id string, input UpdateEntryInput) (Entry, error)
	// Delete removes one entry.
	Delete(ctx context.Context, accountID, id string) error
	// BulkDelete removes entries and reports how many actually went.
	BulkDelete(ctx context.Context, accountID string, ids []string) (int64, error)
	// ToggleFavorite flips the favourite marker and returns the new state.
	ToggleFavorite(ctx context.Context, accountID, id string) (bool, error)
	// TogglePinned flips the pinned marker and returns the new state.
	TogglePinned(ctx context.Context, accountID, id string) (bool, error)
	// SetEntryTags replaces an entry's tag attachments.
	SetEntryTags(ctx context.Context, accountID, entryID string, tagIDs []string) (Entry, error)
	// DirectSave upserts by (title, username, site), the identity used by
	// the browser capture flow. Reports whether a new entry was created.
	DirectSave(ctx context.Context, accountID string, input CreateEntryInput) (Entry, bool, error)
	// RecordCopy audits a client-side copy of the secret to the clipboard.
	RecordCopy(ctx context.Context, accountID, id string) error

	// Health decrypts every owned secret once and classifies the vault.
	Health(ctx context.Context, accountID string) (HealthReport, error)
	// Export returns all entries with decrypted secrets.
	Export(ctx context.Context, accountID string) (ExportDocument, error)
	// Import loads an export document, best-effort per entry.
	Import(ctx context.Context, accountID string, doc ExportDocument, mode string) (ImportResult, error)

	// CreateCollection, ListCollections, UpdateCollection and
	// DeleteCollection manage collections; deletion re-parents members
	// to no collection.
	CreateCollection(ctx context.Context, accountID, name, icon string) (Collection, error)
	ListCollections(ctx context.Context, accountID string) ([]Collection, error)
	UpdateCollection(ctx context.Context, accountID, id, name, icon string) (Collection, error)
	DeleteCollection(ctx context.Context, accountID, id string) error
	// MoveEntries assigns entries to a collection, or to none when
	// collectionID is empty.
	MoveEntries(ctx context.Context, accountID string, entryIDs []string, collectionID string) (MoveResult, error)

	// CreateTag, ListTags, UpdateTag and DeleteTag manage tags.
	CreateTag(ctx context.Context, accountID, name, color string) (Tag, error)
	ListTags(ctx context.Context, accountID string) ([]Tag, error)
	UpdateTag(ctx context.Context, accountID, id, name, color string) (Tag, error)
	DeleteTag(ctx context.Context, accountID, id string) error
}

type manager struct {
	entries     storage.EntryStore
	collections storage.CollectionStore
	tags        storage.TagStore
	keys        *auth.KeyService
	recorder    audit.Recorder
}

// NewManager creates the vault service.
func NewManager(
	entries storage.EntryStore,
	collections storage.CollectionStore,
	tags storage.TagStore,
	keys *auth.KeyService,
	recorder audit.Recorder,
) Manager {
	return &manager{
		entries:     entries,
		collections: collections,
		tags:        tags,
		keys:        keys,
		recorder:    recorder,
	}
}

// Create stores a new encrypted entry.
func (m *manager) Create(ctx context.Context, accountID string, input CreateEntryInput) (Entry, error) {
	if err := validateCreate(input); err != nil {
		return Entry{}, err
	}
	if input.CollectionID != "" {
		if _, err := m.collections.Get(ctx, accountID, input.CollectionID); err != nil {
			return Entry{}, err
		}
	}

	key, err := m.keys.AccountKey(ctx, accountID)
	if err != nil {
		return Entry{}, err
	}

	now := time.Now().UTC()
	stored := storage.Entry{
		ID:                uuid.NewString(),
		AccountID:         accountID,
		Title:             strings.TrimSpace(input.Title),
		Username:          input.Username,
		SiteURL:           input.SiteURL,
		CollectionID:      input.CollectionID,
		TagIDs:            input.TagIDs,
		Favorite:          input.IsFavorite,
		Pinned:            input.IsPinned,
		Strength:          Strength(input.Secret),
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := m.encryptInto(&stored, key, input.Secret, input.Notes, input.TOTPSeed); err != nil {
		return Entry{}, err
	}

	if err := m.entries.Create(ctx, stored); err != nil {
		return Entry{}, err
	}

	m.recorder.Record(ctx, audit.Event{
		AccountID:  accountID,
		Action:     storage.ActionCreate,
		EntryID:    stored.ID,
		EntryTitle: stored.Title,
	})
	return m.toEntry(ctx, stored, revealNone, nil)
}

// Get returns one entry with its secret decrypted.
func (m *manager) Get(ctx context.Context, accountID, id string) (Entry, error) {
	stored, err := m.entries.Get(ctx, accountID, id)
	if err != nil {
		return Entry{}, err
	}

	key, err := m.keys.AccountKey(ctx, accountID)
	if err != nil {
		return Entry{}, err
	}

	now := time.Now().UTC()
	if err := m.entries.TouchLastUsed(ctx, accountID, id, now); err != nil {
		return Entry{}, err
	}
	stored.LastUsedAt = now

	m.recorder.Record(ctx, audit.Event{
		AccountID:  accountID,
		Action:     storage.ActionReveal,
		EntryID:    stored.ID,
		EntryTitle: stored.Title,
	})
	return m.toEntry(ctx, stored, revealAll, key)
}

// List returns one page of entries without secrets.
func (m *manager) List(ctx context.Context, accountID string, filter ListFilter) (EntryPage, error) {
	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	stored, total, err := m.entries.List(ctx, accountID, storage.EntryFilter{
		Query:        filter.Query,
		CollectionID: filter.CollectionID,
		TagIDs:       filter.TagIDs,
		Favorite:     filter.Favorite,
		Pinned:       filter.Pinned,
		StrengthMin:  filter.StrengthMin,
		StrengthMax:  filter.StrengthMax,
		Page:         page,
		PageSize:     pageSize,
	})
	if err != nil {
		return EntryPage{}, err
	}

	tagsByID, err := m.tagIndex(ctx, accountID)
	if err != nil {
		return EntryPage{}, err
	}

	entries := make([]Entry, 0, len(stored))
	for _, s := range stored {
		entries = append(entries, toEntryShallow(s, tagsByID))
	}
	return EntryPage{Entries: entries, Total: total, Page: page, PageSize: pageSize}, nil
}

// Update applies a partial update.
func (m *manager) Update(ctx context.Context, accountID, id string, input UpdateEntryInput) (Entry, error) {
	stored, err := m.entries.Get(ctx, accountID, id)
	if err != nil {
		return Entry{}, err
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if err := validateTitle(title); err != nil {
			return Entry{}, err
		}
		stored.Title = title
	}
	if input.Username != nil {
		stored.Username = *input.Username
	}
	if input.SiteURL != nil {
		if err := validateSiteURL(*input.SiteURL); err != nil {
			return Entry{}, err
		}
		stored.SiteURL = *input.SiteURL
	}
	if input.CollectionID != nil {
		if *input.CollectionID != "" {
			if _, err := m.collections.Get(ctx, accountID, *input.CollectionID); err != nil {
				return Entry{}, err
			}
		}
		stored.CollectionID = *input.CollectionID
	}
	if input.TagIDs != nil {
		stored.TagIDs = *input.TagIDs
	}
	if input.IsFavorite != nil {
		stored.Favorite = *input.IsFavorite
	}
	if input.IsPinned != nil {
		stored.Pinned = *input.IsPinned
	}

	needsKey := input.Secret != nil || input.Notes != nil || input.TOTPSeed != nil
	if needsKey {
		key, err := m.keys.AccountKey(ctx, accountID)
		if err != nil {
			return Entry{}, err
		}

		if input.Secret != nil {
			if len(*input.Secret) > maxSecretLength {
				return Entry{}, errors.NewValidationError("secret is too long", nil)
			}
			// Only an actual change rewrites the ciphertext triple and
			// restarts the password age clock.
			current, err := crypto.DecryptField(key, stored.Secret)
			if err != nil || current != *input.Secret {
				encrypted, err := crypto.EncryptField(key, *input.Secret)
				if err != nil {
					return Entry{}, err
				}
				stored.Secret = encrypted
				stored.Strength = Strength(*input.Secret)
				stored.PasswordChangedAt = time.Now().UTC()
			}
		}
		if input.Notes != nil {
			if len(*input.Notes) > maxNotesLength {
				return Entry{}, errors.NewValidationError("notes are too long", nil)
			}
			encrypted, err := crypto.EncryptField(key, *input.Notes)
			if err != nil {
				return Entry{}, err
			}
			stored.Notes = encrypted
		}
		if input.TOTPSeed != nil {
			encrypted, err := crypto.EncryptField(key, *input.TOTPSeed)
			if err != nil {
				return Entry{}, err
			}
			stored.TOTPSeed = encrypted
		}
	}

	stored.UpdatedAt = time.Now().UTC()
	if err := m.entries.Update(ctx, stored); err != nil {
		return Entry{}, err
	}

	m.recorder.Record(ctx, audit.Event{
		AccountID:  accountID,
		Action:     storage.ActionUpdate,
		EntryID:    stored.ID,
		EntryTitle: stored.Title,
	})
	return m.toEntry(ctx, stored, revealNone, nil)
}

// Delete removes one entry.
func (m *manager) Delete(ctx context.Context, accountID, id string) error {
	stored, err := m.entries.Get(ctx, accountID, id)
	if err != nil {
		return err
	}
	if err := m.entries.Delete(ctx, accountID, id); err != nil {
		return err
	}

	m.recorder.Record(ctx, audit.Event{
		AccountID:  accountID,
		Action:     storage.ActionDelete,
		EntryID:    stored.ID,
		EntryTitle: stored.Title,
	})
	return nil
}

// BulkDelete removes entries, skipping unknown and foreign ids.
func (m *manager) BulkDelete(ctx context.Context, accountID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, errors.NewValidationError("no entry ids given", nil)
	}

	deleted, err := m.entries.DeleteMany(ctx, accountID, ids)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		m.recorder.Record(ctx, audit.Event{
			AccountID: accountID,
			Action:    storage.ActionDelete,
			Metadata:  map[string]string{"count": fmt.Sprintf("%d", deleted)},
		})
	}
	return deleted, nil
}

// ToggleFavorite flips the favourite marker.
func (m *manager) ToggleFavorite(ctx context.Context, accountID, id string) (bool, error) {
	stored, err := m.entries.Get(ctx, accountID, id)
	if err != nil {
		return false, err
	}
	next := !stored.Favorite
	if err := m.entries.SetFavorite(ctx, accountID, id, next); err != nil {
		return false, err
	}
	return next, nil
}

// TogglePinned flips the pinned marker.
func (m *manager) TogglePinned(ctx context.Context, accountID, id string) (bool, error) {
	stored, err := m.entries.Get(ctx, accountID, id)
	if err != nil {
		return false, err
	}
	next := !stored.Pinned
	if err := m.entries.SetPinned(ctx, accountID, id, next); err != nil {
		return false, err
	}
	return next, nil
}

// SetEntryTags replaces an entry's tag attachments.
func (m *manager) SetEntryTags(ctx context.Context, accountID, entryID string, tagIDs []string) (Entry, error) {
	if err := m.entries.SetTags(ctx, accountID, entryID, tagIDs); err != nil {
		return Entry{}, err
	}
	stored, err := m.entries.Get(ctx, accountID, entryID)
	if err != nil {
		return Entry{}, err
	}
	return m.toEntry(ctx, stored, revealNone, nil)
}

// DirectSave upserts by (title, username, site).
func (m *manager) DirectSave(ctx context.Context, accountID string, input CreateEntryInput) (Entry, bool, error) {
	if err := validateCreate(input); err != nil {
		return Entry{}, false, err
	}

	existing, err := m.entries.FindByTriple(ctx, accountID, input.Title, input.Username, input.SiteURL)
	if stderrors.Is(err, storage.ErrNotFound) {
		entry, err := m.Create(ctx, accountID, input)
		return entry, true, err
	}
	if err != nil {
		return Entry{}, false, err
	}

	entry, err := m.Update(ctx, accountID, existing.ID, UpdateEntryInput{Secret: &input.Secret})
	return entry, false, err
}

// RecordCopy audits a clipboard copy. The secret itself never travels
// through this path; the client copies what an earlier reveal returned.
func (m *manager) RecordCopy(ctx context.Context, accountID, id string) error {
	stored, err := m.entries.Get(ctx, accountID, id)
	if err != nil {
		return err
	}
	m.recorder.Record(ctx, audit.Event{
		AccountID:  accountID,
		Action:     storage.ActionCopy,
		EntryID:    stored.ID,
		EntryTitle: stored.Title,
	})
	return nil
}

// reveal levels for toEntry.
const (
	revealNone = iota
	revealAll
)

// toEntry converts a stored entry, decrypting sensitive fields when the
// reveal level asks for them.
func (m *manager) toEntry(ctx context.Context, stored storage.Entry, reveal int, key []byte) (Entry, error) {
	tagsByID, err := m.tagIndex(ctx, stored.AccountID)
	if err != nil {
		return Entry{}, err
	}

	entry := toEntryShallow(stored, tagsByID)
	if reveal == revealAll {
		if entry.Secret, err = crypto.DecryptField(key, stored.Secret); err != nil {
			return Entry{}, err
		}
		if entry.Notes, err = crypto.DecryptField(key, stored.Notes); err != nil {
			return Entry{}, err
		}
		if entry.TOTPSeed, err = crypto.DecryptField(key, stored.TOTPSeed); err != nil {
			return Entry{}, err
		}
	}
	return entry, nil
}

// toEntryShallow converts a stored entry without touching ciphertext.
func toEntryShallow(stored storage.Entry, tagsByID map[string]Tag) Entry {
	entry := Entry{
		ID:           stored.ID,
		Title:        stored.Title,
		Username:     stored.Username,
		SiteURL:      stored.SiteURL,
		CollectionID: stored.CollectionID,
		Tags:         make([]Tag, 0, len(stored.TagIDs)),
		IsFavorite:   stored.Favorite,
		IsPinned:     stored.Pinned,
		Strength:     stored.Strength,
		CreatedAt:    stored.CreatedAt,
		UpdatedAt:    stored.UpdatedAt,
	}
	if !stored.LastUsedAt.IsZero() {
		lastUsed := stored.LastUsedAt
		entry.LastUsedAt = &lastUsed
	}
	for _, tagID := range stored.TagIDs {
		if tag, ok := tagsByID[tagID]; ok {
			entry.Tags = append(entry.Tags, tag)
		}
	}
	return entry
}

// tagIndex loads the account's tags keyed by id.
func (m *manager) tagIndex(ctx context.Context, accountID string) (map[string]Tag, error) {
	tags, err := m.tags.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	index := make(map[string]Tag, len(tags))
	for _, tag := range tags {
		index[tag.ID] = Tag{ID: tag.ID, Name: tag.Name, Color: tag.Color}
	}
	return index, nil
}

// encryptInto encrypts the three sensitive fields into the stored entry.
func (m *manager) encryptInto(stored *storage.Entry, key []byte, secret, notes, totpSeed string) error {
	var err error
	if stored.Secret, err = crypto.EncryptField(key, secret); err != nil {
		return err
	}
	if stored.Notes, err = crypto.EncryptField(key, notes); err != nil {
		return err
	}
	if stored.TOTPSeed, err = crypto.EncryptField(key, totpSeed); err != nil {
		return err
	}
	return nil
}

func validateCreate(input CreateEntryInput) error {
	if err := validateTitle(strings.TrimSpace(input.Title)); err != nil {
		return err
	}
	if input.Secret == "" {
		return errors.NewValidationError("secret is required", nil)
	}
	if len(input.Secret) > maxSecretLength {
		return errors.NewValidationError("secret is too long", nil)
	}
	if len(input.Username) > maxFieldLength {
		return errors.NewValidationError("username is too long", nil)
	}
	if len(input.Notes) > maxNotesLength {
		return errors.NewValidationError("notes are too long", nil)
	}
	return validateSiteURL(input.SiteURL)
}

func validateTitle(title string) error {
	if title == "" {
		return errors.NewValidationError("title is required", nil)
	}
	if len(title) > maxTitleLength {
		return errors.NewValidationError("title is too long", nil)
	}
	return nil
}

// validateSiteURL accepts empty or an absolute http(s) URL.
func validateSiteURL(site string) error {
	if site == "" {
		return nil
	}
	if len(site) > maxFieldLength {
		return errors.NewValidationError("site url is too long", nil)
	}
	parsed, err := url.Parse(site)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return errors.NewValidationError("site url must be an absolute http(s) url", nil)
	}
	return nil
}
