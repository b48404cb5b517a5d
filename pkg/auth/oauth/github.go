// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/stacklok/keyhive/pkg/errors"
)

const (
	githubUserURL   = "https://api.github.com/user"
	githubEmailsURL = "https://api.github.com/user/emails"

	// githubRequestTimeout bounds each REST call to the GitHub API.
	githubRequestTimeout = 10 * time.Second

	// maxProfileResponse caps profile response bodies; the user and
	// emails payloads are far below this.
	maxProfileResponse = 1 << 20
)

// GitHubProvider signs users in through GitHub's OAuth flow and reads the
// profile from the REST API.
type GitHubProvider struct {
	config oauth2.Config
}

var _ Provider = (*GitHubProvider)(nil)

// NewGitHub creates a GitHubProvider.
func NewGitHub(cfg Config) *GitHubProvider {
	return &GitHubProvider{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     github.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
	}
}

// Name is the stable provider key stored on OAuth identities.
func (*GitHubProvider) Name() string {
	return "github"
}

// AuthCodeURL renders the GitHub redirect. GitHub's OAuth flow has no
// nonce; only the state round-trips.
func (p *GitHubProvider) AuthCodeURL(state, _ string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange redeems the authorization code and fetches the user profile.
func (p *GitHubProvider) Exchange(ctx context.Context, code, _ string) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, githubRequestTimeout)
	defer cancel()

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return Profile{}, errors.NewUnauthenticatedError("github code exchange failed", err)
	}
	client := p.config.Client(ctx, token)

	user, err := getJSON(ctx, client, githubUserURL)
	if err != nil {
		return Profile{}, err
	}

	id := user.Get("id")
	if !id.Exists() {
		return Profile{}, errors.NewUnauthenticatedError("github profile carried no user id", nil)
	}

	profile := Profile{
		Subject: strconv.FormatInt(id.Int(), 10),
		Email:   user.Get("email").String(),
		Name:    user.Get("name").String(),
	}
	if profile.Name == "" {
		profile.Name = user.Get("login").String()
	}

	// The profile email is often unset; fall back to the primary
	// verified address from the emails endpoint.
	if profile.Email == "" {
		emails, err := getJSON(ctx, client, githubEmailsURL)
		if err != nil {
			return Profile{}, err
		}
		profile.Email = primaryVerifiedEmail(emails)
	}

	return profile, nil
}

// getJSON fetches a GitHub API document.
func getJSON(ctx context.Context, client *http.Client, url string) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return gjson.Result{}, errors.NewInternalError("building github request", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return gjson.Result{}, errors.NewUnauthenticatedError("github profile request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, errors.NewUnauthenticatedError(
			fmt.Sprintf("github profile request returned %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileResponse))
	if err != nil {
		return gjson.Result{}, errors.NewUnauthenticatedError("reading github response", err)
	}
	return gjson.ParseBytes(body), nil
}

// primaryVerifiedEmail picks the primary verified address from the emails
// payload, falling back to any verified one.
func primaryVerifiedEmail(emails gjson.Result) string {
	var fallback string
	for _, email := range emails.Array() {
		if !email.Get("verified").Bool() {
			continue
		}
		address := email.Get("email").String()
		if email.Get("primary").Bool() {
			return address
		}
		if fallback == "" {
			fallback = address
		}
	}
	return fallback
}
