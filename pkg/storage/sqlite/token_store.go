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

// RefreshTokenStore implements storage.RefreshTokenStore using SQLite.
type RefreshTokenStore struct {
	db *sql.DB
}

// NewRefreshTokenStore creates a new SQLite-backed RefreshTokenStore.
func NewRefreshTokenStore(db *DB) *RefreshTokenStore {
	return &RefreshTokenStore{db: db.DB()}
}

var _ storage.RefreshTokenStore = (*RefreshTokenStore)(nil)

// Create stores a new refresh session.
func (s *RefreshTokenStore) Create(ctx context.Context, token storage.RefreshToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, account_id, fingerprint, expires_at, created_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		token.ID,
		token.AccountID,
		token.Fingerprint,
		formatTime(token.ExpiresAt),
		formatTime(token.CreatedAt),
		formatNullableTime(token.RevokedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting refresh token: %w", err)
	}
	return nil
}

// GetByFingerprint retrieves a session by token fingerprint.
func (s *RefreshTokenStore) GetByFingerprint(ctx context.Context, fingerprint string) (storage.RefreshToken, error) {
	var (
		token     storage.RefreshToken
		expiresAt string
		createdAt string
		revokedAt sql.NullString
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, fingerprint, expires_at, created_at, revoked_at
		FROM refresh_tokens WHERE fingerprint = ?`,
		fingerprint,
	).Scan(&token.ID, &token.AccountID, &token.Fingerprint, &expiresAt, &createdAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.RefreshToken{}, storage.ErrNotFound
		}
		return storage.RefreshToken{}, fmt.Errorf("scanning refresh token row: %w", err)
	}

	if token.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return storage.RefreshToken{}, err
	}
	if token.CreatedAt, err = parseTime(createdAt); err != nil {
		return storage.RefreshToken{}, err
	}
	if token.RevokedAt, err = parseNullableTime(revokedAt); err != nil {
		return storage.RefreshToken{}, err
	}

	return token, nil
}

// Revoke marks a session revoked. Unknown or already revoked fingerprints
// are a no-op.
func (s *RefreshTokenStore) Revoke(ctx context.Context, fingerprint string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = ?
		WHERE fingerprint = ? AND revoked_at IS NULL`,
		formatTime(at), fingerprint)
	if err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	return nil
}

// RevokeAllForAccount revokes every live session of an account.
func (s *RefreshTokenStore) RevokeAllForAccount(ctx context.Context, accountID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked_at = ?
		WHERE account_id = ? AND revoked_at IS NULL`,
		formatTime(at), accountID)
	if err != nil {
		return fmt.Errorf("revoking account refresh tokens: %w", err)
	}
	return nil
}

// DeleteExpired removes sessions that expired before the given time.
func (s *RefreshTokenStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("deleting expired refresh tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting affected rows: %w", err)
	}
	return affected, nil
}
