// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors converts service-layer errors into HTTP responses.
package errors

import (
	"encoding/json"
	"net/http"

	"github.com/stacklok/keyhive/pkg/errors"
	"github.com/stacklok/keyhive/pkg/logger"
)

// HandlerWithError is an HTTP handler that can return an error. Handlers
// return errors instead of writing error responses themselves, so status
// mapping and logging live in one place.
type HandlerWithError func(http.ResponseWriter, *http.Request) error

// Response is the JSON error body.
type Response struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

// Handler wraps a HandlerWithError and renders returned errors.
//
// 5xx errors are logged in full and answered with a generic message so
// internal details never reach a client. 4xx errors carry their message
// through.
func Handler(fn HandlerWithError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		status := errors.HTTPStatus(err)
		body := Response{Error: err.Error(), Type: errors.TypeOf(err)}
		if status >= http.StatusInternalServerError {
			logger.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
			body = Response{Error: http.StatusText(status)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
