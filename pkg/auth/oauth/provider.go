// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oauth implements the Google and GitHub sign-in flows. Providers
// run the authorization-code exchange and normalise the upstream profile;
// account linking happens in the auth manager.
package oauth

import (
	"context"
)

// Profile is the normalised result of a completed provider exchange.
type Profile struct {
	// Subject is the provider's stable user identifier.
	Subject string
	Email   string
	Name    string
}

// Provider is one upstream identity provider.
type Provider interface {
	// Name is the stable provider key stored on OAuth identities.
	Name() string
	// AuthCodeURL renders the provider redirect for the given state and
	// nonce. Providers without nonce support ignore it.
	AuthCodeURL(state, nonce string) string
	// Exchange redeems an authorization code and returns the profile.
	Exchange(ctx context.Context, code, nonce string) (Profile, error)
}

// Config carries one provider's client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	// RedirectURL is the absolute callback URL registered upstream.
	RedirectURL string
}

// Enabled reports whether the registration is complete enough to use.
func (c Config) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}
