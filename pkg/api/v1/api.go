// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package v1 holds the HTTP route handlers of the keyhive API.
package v1

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	apierrors "github.com/stacklok/keyhive/pkg/api/errors"
	keyhiveerrors "github.com/stacklok/keyhive/pkg/errors"
)

// Body caps for JSON decoding. Import documents get the large cap.
const (
	maxBodySize       = 10 << 10
	maxImportBodySize = 1 << 20
)

// handle adapts an error-returning handler; kept short because every
// route uses it.
var handle = apierrors.Handler

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(body)
}

// decodeJSON decodes a request body of at most limit bytes, rejecting
// unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, into any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return keyhiveerrors.NewValidationError("request body too large", nil)
		}
		return keyhiveerrors.NewValidationError("invalid request body", err)
	}
	return nil
}

// queryInt parses an optional integer query parameter, 0 when absent.
func queryInt(r *http.Request, name string) int {
	value := r.URL.Query().Get(name)
	if value == "" {
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}

// queryIntPtr parses an optional integer query parameter, nil when absent
// or malformed.
func queryIntPtr(r *http.Request, name string) *int {
	value := r.URL.Query().Get(name)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil
	}
	return &n
}

// queryBoolPtr parses an optional boolean query parameter, nil when
// absent or malformed.
func queryBoolPtr(r *http.Request, name string) *bool {
	value := r.URL.Query().Get(name)
	if value == "" {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return nil
	}
	return &b
}
