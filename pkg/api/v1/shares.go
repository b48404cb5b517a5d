// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/keyhive/pkg/sharing"
	"github.com/stacklok/keyhive/pkg/telemetry"
)

// SharesRouter sets up the share routes. The access route is public by
// design; everything else requires the owner's token.
func SharesRouter(manager sharing.Manager, authn func(http.Handler) http.Handler) http.Handler {
	routes := &shareRoutes{manager: manager}

	r := chi.NewRouter()
	r.Get("/access/{token}", handle(routes.access))

	r.Group(func(r chi.Router) {
		r.Use(authn)
		r.Get("/", handle(routes.list))
		r.Post("/", handle(routes.create))
		r.Delete("/{id}", handle(routes.revoke))
	})
	return r
}

type shareRoutes struct {
	manager sharing.Manager
}

type createShareRequest struct {
	EntryID       string `json:"entryId"`
	MaxViews      int    `json:"maxViews"`
	TTLSeconds    int    `json:"ttlSeconds"`
	IncludeSecret bool   `json:"includeSecret"`
	IncludeNotes  bool   `json:"includeNotes"`
}

func (s *shareRoutes) create(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	var req createShareRequest
	if err := decodeJSON(w, r, maxBodySize, &req); err != nil {
		return err
	}

	share, err := s.manager.Create(r.Context(), accountID, sharing.CreateInput{
		EntryID:       req.EntryID,
		MaxViews:      req.MaxViews,
		TTL:           time.Duration(req.TTLSeconds) * time.Second,
		IncludeSecret: req.IncludeSecret,
		IncludeNotes:  req.IncludeNotes,
	})
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusCreated, share)
}

func (s *shareRoutes) list(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	shares, err := s.manager.List(r.Context(), accountID)
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusOK, shares)
}

func (s *shareRoutes) revoke(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	if err := s.manager.Revoke(r.Context(), accountID, chi.URLParam(r, "id")); err != nil {
		return err
	}
	return respondJSON(w, http.StatusNoContent, nil)
}

func (s *shareRoutes) access(w http.ResponseWriter, r *http.Request) error {
	entry, err := s.manager.Access(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		return err
	}
	telemetry.SharesConsumed.Inc()
	return respondJSON(w, http.StatusOK, entry)
}
