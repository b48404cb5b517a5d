// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stacklok/keyhive/pkg/errors"
)

const (
	// tokenIssuer and tokenAudience are fixed claims of every access
	// token this server issues.
	tokenIssuer   = "keyhive"
	tokenAudience = "keyhive-api"
)

// ErrTokenExpired is returned by VerifyAccessToken for structurally valid
// but expired tokens, so clients know to attempt a refresh instead of a
// full re-authentication.
var ErrTokenExpired = errors.NewUnauthenticatedError("access token expired", nil)

// ErrTokenInvalid is returned for every other verification failure.
var ErrTokenInvalid = errors.NewUnauthenticatedError("access token invalid", nil)

// accessClaims is the JWT claim set of an access token.
type accessClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates a TokenIssuer. The secret must be non-empty; the
// TTL falls back to 15 minutes when zero.
func NewTokenIssuer(secret []byte, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("jwt secret must not be empty")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &TokenIssuer{secret: secret, ttl: ttl}, nil
}

// TTL returns the configured access token lifetime.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// IssueAccessToken mints a signed access token for the identity and
// returns it with its expiry.
func (i *TokenIssuer) IssueAccessToken(identity Identity) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(i.ttl)

	claims := accessClaims{
		Email: identity.Email,
		Name:  identity.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			Subject:   identity.AccountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, errors.NewInternalError("signing access token", err)
	}
	return token, expiresAt, nil
}

// VerifyAccessToken validates a raw token and returns the identity it
// carries. Expired tokens report ErrTokenExpired; every other failure is
// ErrTokenInvalid so callers never learn why verification failed.
func (i *TokenIssuer) VerifyAccessToken(raw string) (Identity, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
			}
			return i.secret, nil
		},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return Identity{}, ErrTokenInvalid
	}

	return Identity{
		AccountID: claims.Subject,
		Email:     claims.Email,
		Name:      claims.Name,
	}, nil
}
