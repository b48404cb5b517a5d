// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	stderrors "errors"

	"github.com/stacklok/keyhive/pkg/crypto"
	"github.com/stacklok/keyhive/pkg/errors"
	"github.com/stacklok/keyhive/pkg/storage"
)

// KeyService hands out unwrapped account data keys. Keys are unwrapped per
// call and must never be persisted or cached across requests by callers.
type KeyService struct {
	accounts storage.AccountStore
	cipher   *crypto.Cipher
}

// NewKeyService creates a KeyService.
func NewKeyService(accounts storage.AccountStore, cipher *crypto.Cipher) *KeyService {
	return &KeyService{accounts: accounts, cipher: cipher}
}

// AccountKey returns the unwrapped data key of the account, materialising
// a fresh wrapped key for accounts that never had one. The materialisation
// race between concurrent requests is resolved by the store: the losing
// writer re-reads the winning key.
func (s *KeyService) AccountKey(ctx context.Context, accountID string) ([]byte, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if len(account.WrappedKey) == 0 {
		if err := s.materialise(ctx, accountID); err != nil {
			return nil, err
		}
		if account, err = s.accounts.GetByID(ctx, accountID); err != nil {
			return nil, err
		}
	}

	return s.cipher.UnwrapKey(account.WrappedKey)
}

// EnsureWrappedKey guarantees the account has a wrapped data key, creating
// one if needed. Used on sign-in paths so the first vault operation never
// pays the materialisation write.
func (s *KeyService) EnsureWrappedKey(ctx context.Context, accountID string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if len(account.WrappedKey) > 0 {
		return nil
	}
	return s.materialise(ctx, accountID)
}

// NewWrappedKey generates and wraps a fresh account data key.
func (s *KeyService) NewWrappedKey() ([]byte, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return s.cipher.WrapKey(key)
}

func (s *KeyService) materialise(ctx context.Context, accountID string) error {
	wrapped, err := s.NewWrappedKey()
	if err != nil {
		return err
	}

	err = s.accounts.SetWrappedKey(ctx, accountID, wrapped)
	if err != nil && !stderrors.Is(err, storage.ErrAlreadyExists) {
		return errors.NewInternalError("storing wrapped account key", err)
	}
	return nil
}
