// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/keyhive/pkg/vault"
)

// CollectionsRouter sets up the collection routes.
func CollectionsRouter(manager vault.Manager) http.Handler {
	routes := &collectionRoutes{manager: manager}

	r := chi.NewRouter()
	r.Get("/", handle(routes.list))
	r.Post("/", handle(routes.create))
	r.Post("/move", handle(routes.moveEntries))
	r.Put("/{id}", handle(routes.update))
	r.Delete("/{id}", handle(routes.delete))
	return r
}

type collectionRoutes struct {
	manager vault.Manager
}

type collectionRequest struct {
	Name string `json:"name"`
	Icon string `json:"icon"`
}

type moveEntriesRequest struct {
	EntryIDs     []string `json:"entryIds"`
	CollectionID string   `json:"collectionId"`
}

func (c *collectionRoutes) create(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	var req collectionRequest
	if err := decodeJSON(w, r, maxBodySize, &req); err != nil {
		return err
	}

	collection, err := c.manager.CreateCollection(r.Context(), accountID, req.Name, req.Icon)
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusCreated, collection)
}

func (c *collectionRoutes) list(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	collections, err := c.manager.ListCollections(r.Context(), accountID)
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusOK, collections)
}

func (c *collectionRoutes) update(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	var req collectionRequest
	if err := decodeJSON(w, r, maxBodySize, &req); err != nil {
		return err
	}

	collection, err := c.manager.UpdateCollection(
		r.Context(), accountID, chi.URLParam(r, "id"), req.Name, req.Icon,
	)
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusOK, collection)
}

func (c *collectionRoutes) delete(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	if err := c.manager.DeleteCollection(r.Context(), accountID, chi.URLParam(r, "id")); err != nil {
		return err
	}
	return respondJSON(w, http.StatusNoContent, nil)
}

func (c *collectionRoutes) moveEntries(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	var req moveEntriesRequest
	if err := decodeJSON(w, r, maxBodySize, &req); err != nil {
		return err
	}

	result, err := c.manager.MoveEntries(r.Context(), accountID, req.EntryIDs, req.CollectionID)
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusOK, result)
}
