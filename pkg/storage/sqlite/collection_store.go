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

// CollectionStore implements storage.CollectionStore using SQLite.
type CollectionStore struct {
	db *sql.DB
}

// NewCollectionStore creates a new SQLite-backed CollectionStore.
func NewCollectionStore(db *DB) *CollectionStore {
	return &CollectionStore{db: db.DB()}
}

var _ storage.CollectionStore = (*CollectionStore)(nil)

// Create stores a new collection.
func (s *CollectionStore) Create(ctx context.Context, collection storage.Collection) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collections (id, account_id, name, icon, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		collection.ID, collection.AccountID, collection.Name, collection.Icon,
		formatTime(collection.CreatedAt), formatTime(collection.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting collection: %w", err)
	}
	return nil
}

// Get retrieves one collection owned by the account.
func (s *CollectionStore) Get(ctx context.Context, accountID, id string) (storage.Collection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, name, icon, created_at, updated_at
		FROM collections WHERE id = ? AND account_id = ?`, id, accountID)
	return scanCollection(row)
}

// List returns all collections of the account ordered by name.
func (s *CollectionStore) List(ctx context.Context, accountID string) ([]storage.Collection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, name, icon, created_at, updated_at
		FROM collections WHERE account_id = ? ORDER BY lower(name), id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("querying collections: %w", err)
	}
	defer rows.Close()

	var collections []storage.Collection
	for rows.Next() {
		collection, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		collections = append(collections, collection)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating collections: %w", err)
	}
	return collections, nil
}

// Update renames a collection or changes its icon.
func (s *CollectionStore) Update(ctx context.Context, collection storage.Collection) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE collections SET name = ?, icon = ?, updated_at = ?
		WHERE id = ? AND account_id = ?`,
		collection.Name, collection.Icon, formatTime(collection.UpdatedAt),
		collection.ID, collection.AccountID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("updating collection: %w", err)
	}
	return requireAffected(res)
}

// Delete removes a collection. Member entries are re-parented to no
// collection by the ON DELETE SET NULL constraint, atomically with the
// delete itself.
func (s *CollectionStore) Delete(ctx context.Context, accountID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM collections WHERE id = ? AND account_id = ?`, id, accountID)
	if err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	return requireAffected(res)
}

// MoveEntries assigns the given entries to a collection, or to none when
// collectionID is empty.
func (s *CollectionStore) MoveEntries(ctx context.Context, accountID string, entryIDs []string, collectionID string) (int64, error) {
	if len(entryIDs) == 0 {
		return 0, nil
	}

	if collectionID != "" {
		var one int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM collections WHERE id = ? AND account_id = ?`,
			collectionID, accountID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return 0, storage.ErrNotFound
		}
		if err != nil {
			return 0, fmt.Errorf("checking collection: %w", err)
		}
	}

	args := make([]any, 0, len(entryIDs)+2)
	args = append(args, nullableString(collectionID), accountID)
	for _, id := range entryIDs {
		args = append(args, id)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE vault_entries SET collection_id = ?
		WHERE account_id = ? AND id IN (`+placeholders(len(entryIDs))+`)`,
		args...)
	if err != nil {
		return 0, fmt.Errorf("moving entries: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting affected rows: %w", err)
	}
	return affected, nil
}

// scanCollection scans a collection row.
func scanCollection(sc scanner) (storage.Collection, error) {
	var (
		collection storage.Collection
		createdAt  string
		updatedAt  string
	)

	err := sc.Scan(
		&collection.ID, &collection.AccountID, &collection.Name, &collection.Icon,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Collection{}, storage.ErrNotFound
		}
		return storage.Collection{}, fmt.Errorf("scanning collection row: %w", err)
	}

	if collection.CreatedAt, err = parseTime(createdAt); err != nil {
		return storage.Collection{}, err
	}
	if collection.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return storage.Collection{}, err
	}
	return collection, nil
}
