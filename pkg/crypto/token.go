// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"

	"github.com/stacklok/keyhive/pkg/errors"
)

// tokenEntropy is the number of random bytes behind an opaque token.
const tokenEntropy = 32

// NewOpaqueToken returns a URL-safe random token for refresh sessions and
// share links. The raw value is shown to the caller once; only its
// fingerprint is ever stored.
func NewOpaqueToken() (string, error) {
	buf := make([]byte, tokenEntropy)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.NewCryptoError("generating token", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Fingerprint returns the hex form of the SHA-256 digest of a token. Stores
// index tokens by fingerprint so a database leak does not expose live
// credentials.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
