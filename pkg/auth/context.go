// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package auth provides account registration, login, token issuance and
// the bearer middleware for keyhive.
package auth

import (
	"context"
)

// Identity is the authenticated caller attached to a request context by
// the bearer middleware.
type Identity struct {
	AccountID string
	Email     string
	Name      string
}

// identityContextKey keys Identity in the request context. Using an empty
// struct type prevents collisions with context keys from other packages.
type identityContextKey struct{}

// WithIdentity stores an identity in the context.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the authenticated identity from the
// context. Handlers behind the bearer middleware can rely on ok being true.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(Identity)
	return identity, ok
}
