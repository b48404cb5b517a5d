// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpaqueToken(t *testing.T) {
	t.Parallel()

	tok, err := NewOpaqueToken()
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(tok)
	require.NoError(t, err, "token must be URL-safe base64 without padding")
	assert.Len(t, raw, tokenEntropy)

	other, err := NewOpaqueToken()
	require.NoError(t, err)
	assert.NotEqual(t, tok, other)
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	// SHA-256 of "token" as a stable reference value.
	assert.Equal(t,
		"3c469e9d6c5875d37a43f353d4f88e61fcf812c66eee3457465a40b0da4153e0",
		Fingerprint("token"),
	)

	assert.Equal(t, Fingerprint("abc"), Fingerprint("abc"))
	assert.NotEqual(t, Fingerprint("abc"), Fingerprint("abd"))
	assert.Len(t, Fingerprint(""), 64)
}
