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

// AccountStore implements storage.AccountStore using SQLite.
type AccountStore struct {
	db *sql.DB
}

// NewAccountStore creates a new SQLite-backed AccountStore.
func NewAccountStore(db *DB) *AccountStore {
	return &AccountStore{db: db.DB()}
}

var _ storage.AccountStore = (*AccountStore)(nil)

// accountColumns is the SELECT column list shared by all account queries.
const accountColumns = `a.id, a.email, a.name, a.password_hash, a.wrapped_key,
			a.created_at, a.updated_at, a.last_login_at`

// Create stores a new account.
func (s *AccountStore) Create(ctx context.Context, account storage.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, name, password_hash, wrapped_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Email,
		account.Name,
		account.PasswordHash,
		nullableBlob(account.WrappedKey),
		formatTime(account.CreatedAt),
		formatTime(account.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

// GetByID retrieves an account by id.
func (s *AccountStore) GetByID(ctx context.Context, id string) (storage.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts a WHERE a.id = ?`, id)
	return scanAccount(row)
}

// GetByEmail retrieves an account by email, case-insensitively.
func (s *AccountStore) GetByEmail(ctx context.Context, email string) (storage.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts a WHERE lower(a.email) = lower(?)`, email)
	return scanAccount(row)
}

// GetByOAuth retrieves the account linked to a provider subject.
func (s *AccountStore) GetByOAuth(ctx context.Context, provider, subject string) (storage.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts a
		JOIN oauth_identities oi ON oi.account_id = a.id
		WHERE oi.provider = ? AND oi.subject = ?`,
		provider, subject)
	return scanAccount(row)
}

// AttachOAuth links a provider identity to an account.
func (s *AccountStore) AttachOAuth(ctx context.Context, identity storage.OAuthIdentity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_identities (id, account_id, provider, subject, email, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		identity.ID,
		identity.AccountID,
		identity.Provider,
		identity.Subject,
		identity.Email,
		formatTime(identity.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("inserting oauth identity: %w", err)
	}
	return nil
}

// SetWrappedKey stores the wrapped data key, only if none is set yet.
// It returns ErrAlreadyExists when a key is already present so callers can
// re-read the winning key after a materialisation race.
func (s *AccountStore) SetWrappedKey(ctx context.Context, accountID string, wrapped []byte) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET wrapped_key = ?, updated_at = ?
		WHERE id = ? AND (wrapped_key IS NULL OR length(wrapped_key) = 0)`,
		wrapped, formatTime(time.Now()), accountID)
	if err != nil {
		return fmt.Errorf("updating wrapped key: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting affected rows: %w", err)
	}
	if affected == 0 {
		// Either the account does not exist or the key is already set.
		var one int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM accounts WHERE id = ?`, accountID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("checking account: %w", err)
		}
		return storage.ErrAlreadyExists
	}
	return nil
}

// TouchLastLogin records a successful sign-in.
func (s *AccountStore) TouchLastLogin(ctx context.Context, accountID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET last_login_at = ? WHERE id = ?`,
		formatTime(at), accountID)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting affected rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanAccount scans an account row.
func scanAccount(sc scanner) (storage.Account, error) {
	var (
		account      storage.Account
		wrappedKey   []byte
		createdAt    string
		updatedAt    string
		lastLoginAt  sql.NullString
	)

	err := sc.Scan(
		&account.ID, &account.Email, &account.Name, &account.PasswordHash,
		&wrappedKey, &createdAt, &updatedAt, &lastLoginAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Account{}, storage.ErrNotFound
		}
		return storage.Account{}, fmt.Errorf("scanning account row: %w", err)
	}

	account.WrappedKey = wrappedKey
	if account.CreatedAt, err = parseTime(createdAt); err != nil {
		return storage.Account{}, err
	}
	if account.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return storage.Account{}, err
	}
	if account.LastLoginAt, err = parseNullableTime(lastLoginAt); err != nil {
		return storage.Account{}, err
	}

	return account, nil
}

// nullableBlob maps an empty byte slice to NULL.
func nullableBlob(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
