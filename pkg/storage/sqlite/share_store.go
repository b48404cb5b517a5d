// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/keyhive/pkg/storage"
)

// ShareStore implements storage.ShareStore using SQLite.
type ShareStore struct {
	db *sql.DB
}

// NewShareStore creates a new SQLite-backed ShareStore.
func NewShareStore(db *DB) *ShareStore {
	return &ShareStore{db: db.DB()}
}

var _ storage.ShareStore = (*ShareStore)(nil)

// shareColumns is the SELECT column list shared by all share queries.
const shareColumns = `s.id, s.account_id, s.entry_id, s.fingerprint,
		s.max_views, s.view_count, s.expires_at,
		s.include_secret, s.include_notes, s.accessed_at, s.accessor_ip, s.created_at`

// Create stores a new share.
func (s *ShareStore) Create(ctx context.Context, share storage.Share) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shares (id, account_id, entry_id, fingerprint, max_views, view_count,
			expires_at, include_secret, include_notes, accessor_ip, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		share.ID, share.AccountID, share.EntryID, share.Fingerprint,
		share.MaxViews, share.ViewCount, formatTime(share.ExpiresAt),
		share.IncludeSecret, share.IncludeNotes, share.AccessorIP,
		formatTime(share.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting share: %w", err)
	}
	return nil
}

// ListByAccount returns the account's shares, newest first.
func (s *ShareStore) ListByAccount(ctx context.Context, accountID string) ([]storage.Share, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+shareColumns+` FROM shares s
		WHERE s.account_id = ? ORDER BY s.created_at DESC, s.id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("querying shares: %w", err)
	}
	defer rows.Close()

	var shares []storage.Share
	for rows.Next() {
		share, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		shares = append(shares, share)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating shares: %w", err)
	}
	return shares, nil
}

// Delete revokes a share owned by the account.
func (s *ShareStore) Delete(ctx context.Context, accountID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM shares WHERE id = ? AND account_id = ?`, id, accountID)
	if err != nil {
		return fmt.Errorf("deleting share: %w", err)
	}
	return requireAffected(res)
}

// Consume atomically spends one view of the share with the given token
// fingerprint. The conditional UPDATE is the whole concurrency story: two
// racing accesses on the last view produce exactly one affected row.
func (s *ShareStore) Consume(ctx context.Context, fingerprint, accessorIP string, now time.Time) (storage.Share, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE shares SET view_count = view_count + 1, accessed_at = ?, accessor_ip = ?
		WHERE fingerprint = ? AND expires_at > ? AND view_count < max_views`,
		formatTime(now), accessorIP, fingerprint, formatTime(now),
	)
	if err != nil {
		return storage.Share{}, fmt.Errorf("consuming share: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return storage.Share{}, fmt.Errorf("getting affected rows: %w", err)
	}
	if affected == 0 {
		// Unknown, expired and exhausted are deliberately one answer.
		return storage.Share{}, storage.ErrNotFound
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+shareColumns+` FROM shares s WHERE s.fingerprint = ?`, fingerprint)
	return scanShare(row)
}

// scanShare scans a share row.
func scanShare(sc scanner) (storage.Share, error) {
	var (
		share      storage.Share
		expiresAt  string
		accessedAt sql.NullString
		createdAt  string
	)

	err := sc.Scan(
		&share.ID, &share.AccountID, &share.EntryID, &share.Fingerprint,
		&share.MaxViews, &share.ViewCount, &expiresAt,
		&share.IncludeSecret, &share.IncludeNotes, &accessedAt, &share.AccessorIP,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Share{}, storage.ErrNotFound
		}
		return storage.Share{}, fmt.Errorf("scanning share row: %w", err)
	}

	if share.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return storage.Share{}, err
	}
	if share.AccessedAt, err = parseNullableTime(accessedAt); err != nil {
		return storage.Share{}, err
	}
	if share.CreatedAt, err = parseTime(createdAt); err != nil {
		return storage.Share{}, err
	}
	return share, nil
}
