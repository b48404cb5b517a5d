// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/keyhive/pkg/auth"
	"github.com/stacklok/keyhive/pkg/auth/oauth"
	"github.com/stacklok/keyhive/pkg/crypto"
	"github.com/stacklok/keyhive/pkg/errors"
)

// Cookie names. The refresh cookie is scoped to the auth routes so the
// browser never sends it anywhere else.
const (
	refreshCookieName = "keyhive_refresh"
	refreshCookiePath = "/api/auth"

	stateCookieName = "keyhive_oauth_state"
	nonceCookieName = "keyhive_oauth_nonce"
	oauthCookiePath = "/api/auth"
	oauthCookieTTL  = 10 * time.Minute
)

// CookieConfig carries the environment-dependent cookie settings.
type CookieConfig struct {
	// Secure marks cookies HTTPS-only; enabled in production.
	Secure bool
	// MaxAge is the refresh cookie lifetime in seconds.
	MaxAge int
	// RedirectTo is the frontend URL OAuth callbacks land on.
	RedirectTo string
}

// AuthRouter sets up the account and session routes. The authn middleware
// guards only the routes that need an authenticated caller; registration,
// login and the OAuth flow are reachable without a token.
func AuthRouter(
	manager auth.Manager,
	providers []oauth.Provider,
	cookies CookieConfig,
	authn func(http.Handler) http.Handler,
) http.Handler {
	routes := &authRoutes{
		manager:   manager,
		providers: make(map[string]oauth.Provider, len(providers)),
		cookies:   cookies,
	}
	for _, p := range providers {
		routes.providers[p.Name()] = p
	}

	r := chi.NewRouter()
	r.Post("/register", handle(routes.register))
	r.Post("/login", handle(routes.login))
	r.Post("/refresh", handle(routes.refresh))
	r.Post("/logout", handle(routes.logout))
	r.Get("/{provider:google|github}", handle(routes.oauthStart))
	r.Get("/{provider:google|github}/callback", handle(routes.oauthCallback))

	r.Group(func(r chi.Router) {
		r.Use(authn)
		r.Get("/me", handle(routes.me))
		r.Post("/logout-all", handle(routes.logoutAll))
	})
	return r
}

type authRoutes struct {
	manager   auth.Manager
	providers map[string]oauth.Provider
	cookies   CookieConfig
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// sessionResponse never carries the refresh token; that travels only in
// the HttpOnly cookie.
type sessionResponse struct {
	User        userResponse `json:"user"`
	AccessToken string       `json:"accessToken"`
	ExpiresAt   time.Time    `json:"expiresAt"`
}

func (a *authRoutes) register(w http.ResponseWriter, r *http.Request) error {
	var req registerRequest
	if err := decodeJSON(w, r, maxBodySize, &req); err != nil {
		return err
	}

	identity, pair, err := a.manager.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		return err
	}

	a.setRefreshCookie(w, pair.RefreshToken)
	return respondJSON(w, http.StatusCreated, toSession(identity, pair))
}

func (a *authRoutes) login(w http.ResponseWriter, r *http.Request) error {
	var req loginRequest
	if err := decodeJSON(w, r, maxBodySize, &req); err != nil {
		return err
	}

	identity, pair, err := a.manager.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	a.setRefreshCookie(w, pair.RefreshToken)
	return respondJSON(w, http.StatusOK, toSession(identity, pair))
}

// refresh accepts the token from the cookie or, for cookie-less clients,
// the body. The presented session is revoked and a fresh pair issued.
func (a *authRoutes) refresh(w http.ResponseWriter, r *http.Request) error {
	token := a.refreshTokenFrom(w, r)
	if token == "" {
		return errors.NewUnauthenticatedError("missing refresh token", nil)
	}

	identity, pair, err := a.manager.Refresh(r.Context(), token)
	if err != nil {
		a.clearRefreshCookie(w)
		return err
	}

	a.setRefreshCookie(w, pair.RefreshToken)
	return respondJSON(w, http.StatusOK, toSession(identity, pair))
}

func (a *authRoutes) logout(w http.ResponseWriter, r *http.Request) error {
	if token := a.refreshTokenFrom(w, r); token != "" {
		if err := a.manager.Logout(r.Context(), token); err != nil {
			return err
		}
	}
	a.clearRefreshCookie(w)
	return respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (a *authRoutes) logoutAll(w http.ResponseWriter, r *http.Request) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return errors.NewUnauthenticatedError("authentication required", nil)
	}
	if err := a.manager.RevokeAll(r.Context(), identity.AccountID); err != nil {
		return err
	}
	a.clearRefreshCookie(w)
	return respondJSON(w, http.StatusNoContent, nil)
}

func (a *authRoutes) me(w http.ResponseWriter, r *http.Request) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return errors.NewUnauthenticatedError("authentication required", nil)
	}
	current, err := a.manager.Me(r.Context(), identity.AccountID)
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusOK, userResponse{
		ID:    current.AccountID,
		Email: current.Email,
		Name:  current.Name,
	})
}

// oauthStart redirects to the upstream provider with fresh state and
// nonce, both pinned in short-lived cookies for the callback to verify.
func (a *authRoutes) oauthStart(w http.ResponseWriter, r *http.Request) error {
	provider, ok := a.providers[chi.URLParam(r, "provider")]
	if !ok {
		return errors.NewNotFoundError("unknown oauth provider", nil)
	}

	state, err := crypto.NewOpaqueToken()
	if err != nil {
		return err
	}
	nonce, err := crypto.NewOpaqueToken()
	if err != nil {
		return err
	}

	a.setOAuthCookie(w, stateCookieName, state)
	a.setOAuthCookie(w, nonceCookieName, nonce)
	http.Redirect(w, r, provider.AuthCodeURL(state, nonce), http.StatusFound)
	return nil
}

// oauthCallback verifies state against the pinned cookie, exchanges the
// code and signs the profile in, then hands the browser back to the
// frontend with only the refresh cookie set. The frontend obtains a
// bearer token by calling refresh; tokens never appear in the URL.
func (a *authRoutes) oauthCallback(w http.ResponseWriter, r *http.Request) error {
	provider, ok := a.providers[chi.URLParam(r, "provider")]
	if !ok {
		return errors.NewNotFoundError("unknown oauth provider", nil)
	}

	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(stateCookieName)
	if state == "" || err != nil || stateCookie.Value != state {
		return errors.NewUnauthenticatedError("oauth state mismatch", nil)
	}
	nonce := ""
	if nonceCookie, err := r.Cookie(nonceCookieName); err == nil {
		nonce = nonceCookie.Value
	}
	a.clearOAuthCookies(w)

	code := r.URL.Query().Get("code")
	if code == "" {
		return errors.NewUnauthenticatedError("missing authorization code", nil)
	}

	profile, err := provider.Exchange(r.Context(), code, nonce)
	if err != nil {
		return err
	}

	_, pair, err := a.manager.OAuthSignIn(
		r.Context(), provider.Name(), profile.Subject, profile.Email, profile.Name,
	)
	if err != nil {
		return err
	}

	a.setRefreshCookie(w, pair.RefreshToken)
	http.Redirect(w, r, a.cookies.RedirectTo, http.StatusFound)
	return nil
}

// refreshTokenFrom prefers the cookie, falling back to the body.
func (a *authRoutes) refreshTokenFrom(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	var req refreshRequest
	if err := decodeJSON(w, r, maxBodySize, &req); err != nil {
		return ""
	}
	return req.RefreshToken
}

func (a *authRoutes) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		MaxAge:   a.cookies.MaxAge,
		HttpOnly: true,
		Secure:   a.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *authRoutes) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *authRoutes) setOAuthCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     oauthCookiePath,
		MaxAge:   int(oauthCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   a.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *authRoutes) clearOAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{stateCookieName, nonceCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     oauthCookiePath,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   a.cookies.Secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func toSession(identity auth.Identity, pair auth.TokenPair) sessionResponse {
	return sessionResponse{
		User: userResponse{
			ID:    identity.AccountID,
			Email: identity.Email,
			Name:  identity.Name,
		},
		AccessToken: pair.AccessToken,
		ExpiresAt:   pair.AccessExpiresAt,
	}
}
