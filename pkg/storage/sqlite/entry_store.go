// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stacklok/keyhive/pkg/storage"
)

// EntryStore implements storage.EntryStore using SQLite.
type EntryStore struct {
	db *sql.DB
}

// NewEntryStore creates a new SQLite-backed EntryStore.
func NewEntryStore(db *DB) *EntryStore {
	return &EntryStore{db: db.DB()}
}

var _ storage.EntryStore = (*EntryStore)(nil)

// entryColumns is the SELECT column list shared by all entry queries.
const entryColumns = `e.id, e.account_id, e.title, e.username, e.site_url,
		e.secret_ciphertext, e.secret_nonce, e.secret_tag,
		e.notes_ciphertext, e.notes_nonce, e.notes_tag,
		e.totp_ciphertext, e.totp_nonce, e.totp_tag,
		e.collection_id, e.favorite, e.pinned, e.strength,
		e.last_used_at, e.password_changed_at, e.created_at, e.updated_at`

// Create stores a new entry with its tag attachments in one transaction.
func (s *EntryStore) Create(ctx context.Context, entry storage.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(tx)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO vault_entries (
			id, account_id, title, username, site_url,
			secret_ciphertext, secret_nonce, secret_tag,
			notes_ciphertext, notes_nonce, notes_tag,
			totp_ciphertext, totp_nonce, totp_tag,
			collection_id, favorite, pinned, strength,
			last_used_at, password_changed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.AccountID, entry.Title, entry.Username, entry.SiteURL,
		nullableBlob(entry.Secret.Ciphertext), nullableBlob(entry.Secret.Nonce), nullableBlob(entry.Secret.AuthTag),
		nullableBlob(entry.Notes.Ciphertext), nullableBlob(entry.Notes.Nonce), nullableBlob(entry.Notes.AuthTag),
		nullableBlob(entry.TOTPSeed.Ciphertext), nullableBlob(entry.TOTPSeed.Nonce), nullableBlob(entry.TOTPSeed.AuthTag),
		nullableString(entry.CollectionID), entry.Favorite, entry.Pinned, entry.Strength,
		formatNullableTime(entry.LastUsedAt), formatTime(entry.PasswordChangedAt),
		formatTime(entry.CreatedAt), formatTime(entry.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting entry: %w", err)
	}

	if err := attachTags(ctx, tx, entry.AccountID, entry.ID, entry.TagIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Get retrieves one entry owned by the account.
func (s *EntryStore) Get(ctx context.Context, accountID, id string) (storage.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM vault_entries e WHERE e.id = ? AND e.account_id = ?`,
		id, accountID)
	entry, err := scanEntry(row)
	if err != nil {
		return storage.Entry{}, err
	}
	if err := s.loadTags(ctx, []*storage.Entry{&entry}); err != nil {
		return storage.Entry{}, err
	}
	return entry, nil
}

// List returns one page of entries matching the filter plus the total
// match count.
func (s *EntryStore) List(ctx context.Context, accountID string, filter storage.EntryFilter) ([]storage.Entry, int, error) {
	where, args := buildEntryFilter(accountID, filter)

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vault_entries e WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting entries: %w", err)
	}

	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	query := `SELECT ` + entryColumns + ` FROM vault_entries e WHERE ` + where +
		` ORDER BY e.pinned DESC, e.favorite DESC, e.updated_at DESC, e.id ASC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	entries, err := s.queryEntries(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ListAll returns every entry owned by the account.
func (s *EntryStore) ListAll(ctx context.Context, accountID string) ([]storage.Entry, error) {
	return s.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM vault_entries e WHERE e.account_id = ?
		 ORDER BY e.pinned DESC, e.favorite DESC, e.updated_at DESC, e.id ASC`,
		accountID)
}

// Update replaces all mutable fields of an entry, including its tag
// attachments, in one transaction.
func (s *EntryStore) Update(ctx context.Context, entry storage.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx, `
		UPDATE vault_entries SET
			title = ?, username = ?, site_url = ?,
			secret_ciphertext = ?, secret_nonce = ?, secret_tag = ?,
			notes_ciphertext = ?, notes_nonce = ?, notes_tag = ?,
			totp_ciphertext = ?, totp_nonce = ?, totp_tag = ?,
			collection_id = ?, favorite = ?, pinned = ?, strength = ?,
			password_changed_at = ?, updated_at = ?
		WHERE id = ? AND account_id = ?`,
		entry.Title, entry.Username, entry.SiteURL,
		nullableBlob(entry.Secret.Ciphertext), nullableBlob(entry.Secret.Nonce), nullableBlob(entry.Secret.AuthTag),
		nullableBlob(entry.Notes.Ciphertext), nullableBlob(entry.Notes.Nonce), nullableBlob(entry.Notes.AuthTag),
		nullableBlob(entry.TOTPSeed.Ciphertext), nullableBlob(entry.TOTPSeed.Nonce), nullableBlob(entry.TOTPSeed.AuthTag),
		nullableString(entry.CollectionID), entry.Favorite, entry.Pinned, entry.Strength,
		formatTime(entry.PasswordChangedAt), formatTime(entry.UpdatedAt),
		entry.ID, entry.AccountID,
	)
	if err != nil {
		return fmt.Errorf("updating entry: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entry_tags WHERE entry_id = ?`, entry.ID); err != nil {
		return fmt.Errorf("detaching tags: %w", err)
	}
	if err := attachTags(ctx, tx, entry.AccountID, entry.ID, entry.TagIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Delete removes one entry. Tag attachments and shares cascade.
func (s *EntryStore) Delete(ctx context.Context, accountID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM vault_entries WHERE id = ? AND account_id = ?`, id, accountID)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	return requireAffected(res)
}

// DeleteMany removes the given entries in one statement. Unknown or foreign
// ids are skipped; the returned count reflects actual deletions.
func (s *EntryStore) DeleteMany(ctx context.Context, accountID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, accountID)
	for _, id := range ids {
		args = append(args, id)
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM vault_entries WHERE account_id = ? AND id IN (`+placeholders(len(ids))+`)`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("deleting entries: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting affected rows: %w", err)
	}
	return affected, nil
}

// DeleteAll removes every entry owned by the account.
func (s *EntryStore) DeleteAll(ctx context.Context, accountID string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM vault_entries WHERE account_id = ?`, accountID)
	if err != nil {
		return 0, fmt.Errorf("deleting entries: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting affected rows: %w", err)
	}
	return affected, nil
}

// TouchLastUsed stamps the entry's last-used time after a reveal.
func (s *EntryStore) TouchLastUsed(ctx context.Context, accountID, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE vault_entries SET last_used_at = ? WHERE id = ? AND account_id = ?`,
		formatTime(at), id, accountID)
	if err != nil {
		return fmt.Errorf("updating last used: %w", err)
	}
	return requireAffected(res)
}

// SetFavorite toggles the favourite marker.
func (s *EntryStore) SetFavorite(ctx context.Context, accountID, id string, favorite bool) error {
	return s.setFlag(ctx, "favorite", accountID, id, favorite)
}

// SetPinned toggles the pinned marker.
func (s *EntryStore) SetPinned(ctx context.Context, accountID, id string, pinned bool) error {
	return s.setFlag(ctx, "pinned", accountID, id, pinned)
}

func (s *EntryStore) setFlag(ctx context.Context, column, accountID, id string, value bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE vault_entries SET `+column+` = ?, updated_at = ? WHERE id = ? AND account_id = ?`,
		value, formatTime(time.Now()), id, accountID)
	if err != nil {
		return fmt.Errorf("updating %s: %w", column, err)
	}
	return requireAffected(res)
}

// SetTags replaces the entry's tag attachments.
func (s *EntryStore) SetTags(ctx context.Context, accountID, entryID string, tagIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(tx)

	var one int
	err = tx.QueryRowContext(ctx,
		`SELECT 1 FROM vault_entries WHERE id = ? AND account_id = ?`, entryID, accountID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entry_tags WHERE entry_id = ?`, entryID); err != nil {
		return fmt.Errorf("detaching tags: %w", err)
	}
	if err := attachTags(ctx, tx, accountID, entryID, tagIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// FindByTriple locates an entry by (title, username, site URL).
func (s *EntryStore) FindByTriple(ctx context.Context, accountID, title, username, siteURL string) (storage.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM vault_entries e
		WHERE e.account_id = ? AND lower(e.title) = lower(?)
		  AND lower(e.username) = lower(?) AND lower(e.site_url) = lower(?)
		ORDER BY e.updated_at DESC, e.id ASC LIMIT 1`,
		accountID, title, username, siteURL)
	entry, err := scanEntry(row)
	if err != nil {
		return storage.Entry{}, err
	}
	if err := s.loadTags(ctx, []*storage.Entry{&entry}); err != nil {
		return storage.Entry{}, err
	}
	return entry, nil
}

// buildEntryFilter renders the WHERE clause for a filtered list query.
func buildEntryFilter(accountID string, filter storage.EntryFilter) (string, []any) {
	conditions := []string{"e.account_id = ?"}
	args := []any{accountID}

	// Free text matches the plaintext columns only; notes are encrypted
	// at rest and cannot participate.
	if filter.Query != "" {
		conditions = append(conditions,
			"(instr(lower(e.title), lower(?)) > 0 OR instr(lower(e.username), lower(?)) > 0 OR instr(lower(e.site_url), lower(?)) > 0)")
		args = append(args, filter.Query, filter.Query, filter.Query)
	}
	if filter.CollectionID != "" {
		conditions = append(conditions, "e.collection_id = ?")
		args = append(args, filter.CollectionID)
	}
	if len(filter.TagIDs) > 0 {
		conditions = append(conditions,
			"EXISTS (SELECT 1 FROM entry_tags et WHERE et.entry_id = e.id AND et.tag_id IN ("+
				placeholders(len(filter.TagIDs))+"))")
		for _, id := range filter.TagIDs {
			args = append(args, id)
		}
	}
	if filter.Favorite != nil {
		conditions = append(conditions, "e.favorite = ?")
		args = append(args, *filter.Favorite)
	}
	if filter.Pinned != nil {
		conditions = append(conditions, "e.pinned = ?")
		args = append(args, *filter.Pinned)
	}
	if filter.StrengthMin != nil {
		conditions = append(conditions, "e.strength >= ?")
		args = append(args, *filter.StrengthMin)
	}
	if filter.StrengthMax != nil {
		conditions = append(conditions, "e.strength <= ?")
		args = append(args, *filter.StrengthMax)
	}

	return strings.Join(conditions, " AND "), args
}

// queryEntries runs an entry query and loads the tag attachments of every
// returned row.
func (s *EntryStore) queryEntries(ctx context.Context, query string, args ...any) ([]storage.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []storage.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}

	refs := make([]*storage.Entry, len(entries))
	for i := range entries {
		refs[i] = &entries[i]
	}
	if err := s.loadTags(ctx, refs); err != nil {
		return nil, err
	}
	return entries, nil
}

// loadTags fills TagIDs for the given entries with one query.
func (s *EntryStore) loadTags(ctx context.Context, entries []*storage.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	byID := make(map[string]*storage.Entry, len(entries))
	args := make([]any, 0, len(entries))
	for _, entry := range entries {
		byID[entry.ID] = entry
		args = append(args, entry.ID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT et.entry_id, et.tag_id FROM entry_tags et
		WHERE et.entry_id IN (`+placeholders(len(entries))+`)
		ORDER BY et.entry_id, et.tag_id`, args...)
	if err != nil {
		return fmt.Errorf("querying entry tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entryID, tagID string
		if err := rows.Scan(&entryID, &tagID); err != nil {
			return fmt.Errorf("scanning entry tag row: %w", err)
		}
		if entry, ok := byID[entryID]; ok {
			entry.TagIDs = append(entry.TagIDs, tagID)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating entry tags: %w", err)
	}
	return nil
}

// attachTags inserts the entry/tag join rows inside tx. Tags that do not
// belong to the account read as not found.
func attachTags(ctx context.Context, tx *sql.Tx, accountID, entryID string, tagIDs []string) error {
	for _, tagID := range tagIDs {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO entry_tags (entry_id, tag_id)
			SELECT ?, id FROM tags WHERE id = ? AND account_id = ?`,
			entryID, tagID, accountID)
		if err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return fmt.Errorf("attaching tag: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("getting affected rows: %w", err)
		}
		if affected == 0 {
			return storage.ErrNotFound
		}
	}
	return nil
}

// requireAffected maps a zero-row update or delete to ErrNotFound.
func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting affected rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanEntry scans an entry row.
func scanEntry(sc scanner) (storage.Entry, error) {
	var (
		entry             storage.Entry
		collectionID      sql.NullString
		lastUsedAt        sql.NullString
		passwordChangedAt string
		createdAt         string
		updatedAt         string
	)

	err := sc.Scan(
		&entry.ID, &entry.AccountID, &entry.Title, &entry.Username, &entry.SiteURL,
		&entry.Secret.Ciphertext, &entry.Secret.Nonce, &entry.Secret.AuthTag,
		&entry.Notes.Ciphertext, &entry.Notes.Nonce, &entry.Notes.AuthTag,
		&entry.TOTPSeed.Ciphertext, &entry.TOTPSeed.Nonce, &entry.TOTPSeed.AuthTag,
		&collectionID, &entry.Favorite, &entry.Pinned, &entry.Strength,
		&lastUsedAt, &passwordChangedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Entry{}, storage.ErrNotFound
		}
		return storage.Entry{}, fmt.Errorf("scanning entry row: %w", err)
	}

	entry.CollectionID = collectionID.String
	if entry.LastUsedAt, err = parseNullableTime(lastUsedAt); err != nil {
		return storage.Entry{}, err
	}
	if entry.PasswordChangedAt, err = parseTime(passwordChangedAt); err != nil {
		return storage.Entry{}, err
	}
	if entry.CreatedAt, err = parseTime(createdAt); err != nil {
		return storage.Entry{}, err
	}
	if entry.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return storage.Entry{}, err
	}

	return entry, nil
}

// nullableString maps an empty string to NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
