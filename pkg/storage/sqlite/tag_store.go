// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/stacklok/keyhive/pkg/storage"
)

// TagStore implements storage.TagStore using SQLite.
type TagStore struct {
	db *sql.DB
}

// NewTagStore creates a new SQLite-backed TagStore.
func NewTagStore(db *DB) *TagStore {
	return &TagStore{db: db.DB()}
}

var _ storage.TagStore = (*TagStore)(nil)

// Create stores a new tag. Concurrent creates of the same (account, name)
// pair collapse to one row through the uniqueness constraint.
func (s *TagStore) Create(ctx context.Context, tag storage.Tag) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tags (id, account_id, name, color, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		tag.ID, tag.AccountID, tag.Name, tag.Color, formatTime(tag.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting tag: %w", err)
	}
	return nil
}

// Get retrieves one tag owned by the account.
func (s *TagStore) Get(ctx context.Context, accountID, id string) (storage.Tag, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, name, color, created_at
		FROM tags WHERE id = ? AND account_id = ?`, id, accountID)
	return scanTag(row)
}

// GetByName retrieves one tag by name, case-insensitively.
func (s *TagStore) GetByName(ctx context.Context, accountID, name string) (storage.Tag, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, name, color, created_at
		FROM tags WHERE account_id = ? AND lower(name) = lower(?)`, accountID, name)
	return scanTag(row)
}

// List returns all tags of the account ordered by name.
func (s *TagStore) List(ctx context.Context, accountID string) ([]storage.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, name, color, created_at
		FROM tags WHERE account_id = ? ORDER BY lower(name), id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("querying tags: %w", err)
	}
	defer rows.Close()

	var tags []storage.Tag
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tags: %w", err)
	}
	return tags, nil
}

// Update renames a tag or changes its color.
func (s *TagStore) Update(ctx context.Context, tag storage.Tag) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tags SET name = ?, color = ? WHERE id = ? AND account_id = ?`,
		tag.Name, tag.Color, tag.ID, tag.AccountID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("updating tag: %w", err)
	}
	return requireAffected(res)
}

// Delete removes a tag. Entry attachments cascade.
func (s *TagStore) Delete(ctx context.Context, accountID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tags WHERE id = ? AND account_id = ?`, id, accountID)
	if err != nil {
		return fmt.Errorf("deleting tag: %w", err)
	}
	return requireAffected(res)
}

// scanTag scans a tag row.
func scanTag(sc scanner) (storage.Tag, error) {
	var (
		tag       storage.Tag
		createdAt string
	)

	err := sc.Scan(&tag.ID, &tag.AccountID, &tag.Name, &tag.Color, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Tag{}, storage.ErrNotFound
		}
		return storage.Tag{}, fmt.Errorf("scanning tag row: %w", err)
	}

	if tag.CreatedAt, err = parseTime(createdAt); err != nil {
		return storage.Tag{}, err
	}
	return tag, nil
}
