// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/stacklok/keyhive/pkg/errors"
)

const googleIssuer = "https://accounts.google.com"

// GoogleProvider signs users in through Google's OIDC endpoint, verifying
// the returned ID token against Google's published keys.
type GoogleProvider struct {
	config   oauth2.Config
	verifier *oidc.IDTokenVerifier
}

var _ Provider = (*GoogleProvider)(nil)

// NewGoogle creates a GoogleProvider, running OIDC discovery against the
// Google issuer.
func NewGoogle(ctx context.Context, cfg Config) (*GoogleProvider, error) {
	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("discovering google oidc configuration: %w", err)
	}

	return &GoogleProvider{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

// Name is the stable provider key stored on OAuth identities.
func (*GoogleProvider) Name() string {
	return "google"
}

// AuthCodeURL renders the Google redirect for the given state and nonce.
func (p *GoogleProvider) AuthCodeURL(state, nonce string) string {
	return p.config.AuthCodeURL(state, oidc.Nonce(nonce))
}

// Exchange redeems the authorization code and verifies the ID token,
// including its nonce binding.
func (p *GoogleProvider) Exchange(ctx context.Context, code, nonce string) (Profile, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return Profile{}, errors.NewUnauthenticatedError("google code exchange failed", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return Profile{}, errors.NewUnauthenticatedError("google response carried no id token", nil)
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Profile{}, errors.NewUnauthenticatedError("google id token verification failed", err)
	}
	if idToken.Nonce != nonce {
		return Profile{}, errors.NewUnauthenticatedError("google id token nonce mismatch", nil)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Profile{}, errors.NewUnauthenticatedError("google id token claims unreadable", err)
	}

	profile := Profile{
		Subject: idToken.Subject,
		Name:    claims.Name,
	}
	// Only verified addresses may link to an existing password account.
	if claims.EmailVerified {
		profile.Email = claims.Email
	}
	return profile, nil
}
