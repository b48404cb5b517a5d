// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/keyhive/pkg/vault"
)

// TagsRouter sets up the tag routes.
func TagsRouter(manager vault.Manager) http.Handler {
	routes := &tagRoutes{manager: manager}

	r := chi.NewRouter()
	r.Get("/", handle(routes.list))
	r.Post("/", handle(routes.create))
	r.Put("/{id}", handle(routes.update))
	r.Delete("/{id}", handle(routes.delete))
	return r
}

type tagRoutes struct {
	manager vault.Manager
}

type tagRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (t *tagRoutes) create(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	var req tagRequest
	if err := decodeJSON(w, r, maxBodySize, &req); err != nil {
		return err
	}

	tag, err := t.manager.CreateTag(r.Context(), accountID, req.Name, req.Color)
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusCreated, tag)
}

func (t *tagRoutes) list(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	tags, err := t.manager.ListTags(r.Context(), accountID)
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusOK, tags)
}

func (t *tagRoutes) update(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	var req tagRequest
	if err := decodeJSON(w, r, maxBodySize, &req); err != nil {
		return err
	}

	tag, err := t.manager.UpdateTag(r.Context(), accountID, chi.URLParam(r, "id"), req.Name, req.Color)
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusOK, tag)
}

func (t *tagRoutes) delete(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	if err := t.manager.DeleteTag(r.Context(), accountID, chi.URLParam(r, "id")); err != nil {
		return err
	}
	return respondJSON(w, http.StatusNoContent, nil)
}
