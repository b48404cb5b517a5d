// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/keyhive/pkg/versions"
)

// Pinger is the dependency the health endpoint probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthcheckRouter sets up the health route.
func HealthcheckRouter(pinger Pinger) http.Handler {
	routes := &healthcheckRoutes{pinger: pinger}
	r := chi.NewRouter()
	r.Get("/", handle(routes.getHealthcheck))
	return r
}

type healthcheckRoutes struct {
	pinger Pinger
}

type healthcheckResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (h *healthcheckRoutes) getHealthcheck(w http.ResponseWriter, r *http.Request) error {
	if err := h.pinger.Ping(r.Context()); err != nil {
		return respondJSON(w, http.StatusServiceUnavailable, healthcheckResponse{
			Status:  "unavailable",
			Version: versions.GetVersionInfo().Version,
		})
	}
	return respondJSON(w, http.StatusOK, healthcheckResponse{
		Status:  "ok",
		Version: versions.GetVersionInfo().Version,
	})
}
