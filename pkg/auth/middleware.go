// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/stacklok/keyhive/pkg/telemetry"
)

// Error codes clients branch on when a request is rejected with 401.
const (
	// CodeTokenExpired tells the client to attempt a refresh.
	CodeTokenExpired = "TOKEN_EXPIRED"
	// CodeTokenInvalid tells the client to re-authenticate.
	CodeTokenInvalid = "TOKEN_INVALID"
)

// Verifier validates a raw bearer token. Manager satisfies it.
type Verifier interface {
	VerifyAccessToken(raw string) (Identity, error)
}

// Middleware returns the bearer authentication middleware. Requests with a
// valid token proceed with the caller's Identity in the context; everything
// else is rejected with 401 and a machine-readable code distinguishing
// expiry from invalidity.
func Middleware(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				telemetry.AuthFailures.WithLabelValues("missing_token").Inc()
				writeUnauthenticated(w, CodeTokenInvalid, "missing bearer token")
				return
			}

			identity, err := verifier.VerifyAccessToken(raw)
			if err != nil {
				code := CodeTokenInvalid
				reason := "invalid_token"
				if stderrors.Is(err, ErrTokenExpired) {
					code = CodeTokenExpired
					reason = "expired_token"
				}
				telemetry.AuthFailures.WithLabelValues(reason).Inc()
				writeUnauthenticated(w, code, "authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeUnauthenticated(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  code,
	})
}
