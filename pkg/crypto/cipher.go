// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package crypto implements the two-tier encryption scheme used by the vault.
//
// A single 32-byte master key, supplied at process start, wraps one random
// data key per account. The account key encrypts individual entry fields
// with AES-256-GCM. Neither key ever leaves the process or is written to
// storage in the clear.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"github.com/stacklok/keyhive/pkg/errors"
)

const (
	// KeySize is the size in bytes of master and account keys.
	KeySize = 32
	// NonceSize is the AES-GCM nonce size in bytes.
	NonceSize = 12
	// TagSize is the AES-GCM authentication tag size in bytes.
	TagSize = 16
	// WrappedKeySize is the exact size of a wrapped account key:
	// nonce (12) + tag (16) + encrypted key (32).
	WrappedKeySize = NonceSize + TagSize + KeySize
)

// Cipher wraps and unwraps account keys using the process master key and
// encrypts entry fields with account keys. It is safe for concurrent use.
type Cipher struct {
	master cipher.AEAD
}

// New creates a Cipher from a raw 32-byte master key.
func New(masterKey []byte) (*Cipher, error) {
	if len(masterKey) != KeySize {
		return nil, errors.NewCryptoError(
			fmt.Sprintf("master key must be %d bytes, got %d", KeySize, len(masterKey)), nil)
	}
	aead, err := newAEAD(masterKey)
	if err != nil {
		return nil, err
	}
	return &Cipher{master: aead}, nil
}

// GenerateKey returns a fresh random 32-byte account key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.NewCryptoError("generating account key", err)
	}
	return key, nil
}

// WrapKey encrypts an account key with the master key. The result is always
// exactly WrappedKeySize bytes: nonce, then tag, then the encrypted key.
func (c *Cipher) WrapKey(accountKey []byte) ([]byte, error) {
	if len(accountKey) != KeySize {
		return nil, errors.NewCryptoError(
			fmt.Sprintf("account key must be %d bytes, got %d", KeySize, len(accountKey)), nil)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.NewCryptoError("generating nonce", err)
	}

	// Seal appends ciphertext||tag; reorder into nonce||tag||ciphertext.
	sealed := c.master.Seal(nil, nonce, accountKey, nil)
	ciphertext, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	wrapped := make([]byte, 0, WrappedKeySize)
	wrapped = append(wrapped, nonce...)
	wrapped = append(wrapped, tag...)
	wrapped = append(wrapped, ciphertext...)
	return wrapped, nil
}

// UnwrapKey decrypts a wrapped account key. Any tampering with the blob,
// including truncation, yields a crypto error.
func (c *Cipher) UnwrapKey(wrapped []byte) ([]byte, error) {
	if len(wrapped) != WrappedKeySize {
		return nil, errors.NewCryptoError("wrapped key has invalid length", nil)
	}

	nonce := wrapped[:NonceSize]
	tag := wrapped[NonceSize : NonceSize+TagSize]
	ciphertext := wrapped[NonceSize+TagSize:]

	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	key, err := c.master.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, errors.NewCryptoError("unwrapping account key failed", nil)
	}
	return key, nil
}

// EncryptedField is the persisted form of an encrypted entry field. A zero
// value represents an empty plaintext.
type EncryptedField struct {
	Ciphertext []byte
	Nonce      []byte
	AuthTag    []byte
}

// IsZero reports whether the field holds no data.
func (f EncryptedField) IsZero() bool {
	return len(f.Ciphertext) == 0 && len(f.Nonce) == 0 && len(f.AuthTag) == 0
}

// EncryptField encrypts a plaintext string with an account key. Each call
// draws a fresh nonce. The empty string maps to the zero EncryptedField.
func EncryptField(accountKey []byte, plaintext string) (EncryptedField, error) {
	if plaintext == "" {
		return EncryptedField{}, nil
	}

	aead, err := newAEAD(accountKey)
	if err != nil {
		return EncryptedField{}, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return EncryptedField{}, errors.NewCryptoError("generating nonce", err)
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)
	return EncryptedField{
		Ciphertext: sealed[:len(sealed)-TagSize],
		Nonce:      nonce,
		AuthTag:    sealed[len(sealed)-TagSize:],
	}, nil
}

// DecryptField reverses EncryptField. Decryption failures never include the
// ciphertext or key in the returned error.
func DecryptField(accountKey []byte, field EncryptedField) (string, error) {
	if field.IsZero() {
		return "", nil
	}
	if len(field.Nonce) != NonceSize || len(field.AuthTag) != TagSize {
		return "", errors.NewCryptoError("encrypted field is malformed", nil)
	}

	aead, err := newAEAD(accountKey)
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(field.Ciphertext)+TagSize)
	sealed = append(sealed, field.Ciphertext...)
	sealed = append(sealed, field.AuthTag...)

	plaintext, err := aead.Open(nil, field.Nonce, sealed, nil)
	if err != nil {
		return "", errors.NewCryptoError("field decryption failed", nil)
	}
	return string(plaintext), nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, errors.NewCryptoError(
			fmt.Sprintf("key must be %d bytes, got %d", KeySize, len(key)), nil)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.NewCryptoError("initializing cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.NewCryptoError("initializing GCM", err)
	}
	return aead, nil
}
