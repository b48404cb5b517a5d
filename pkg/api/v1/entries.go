// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/keyhive/pkg/auth"
	"github.com/stacklok/keyhive/pkg/errors"
	"github.com/stacklok/keyhive/pkg/vault"
)

// EntriesRouter sets up the password entry routes.
func EntriesRouter(manager vault.Manager) http.Handler {
	routes := &entryRoutes{manager: manager}

	r := chi.NewRouter()
	r.Get("/", handle(routes.list))
	r.Post("/", handle(routes.create))
	r.Post("/bulk-delete", handle(routes.bulkDelete))
	r.Post("/direct-save", handle(routes.directSave))
	r.Get("/health", handle(routes.health))
	r.Get("/export", handle(routes.export))
	r.Post("/import", handle(routes.importDoc))

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", handle(routes.get))
		r.Put("/", handle(routes.update))
		r.Delete("/", handle(routes.delete))
		r.Post("/favorite", handle(routes.toggleFavorite))
		r.Post("/pin", handle(routes.togglePinned))
		r.Post("/copy", handle(routes.recordCopy))
		r.Put("/tags", handle(routes.setTags))
	})
	return r
}

type entryRoutes struct {
	manager vault.Manager
}

type createEntryRequest struct {
	Title        string   `json:"title"`
	Username     string   `json:"username"`
	Secret       string   `json:"password"`
	SiteURL      string   `json:"site"`
	Notes        string   `json:"notes"`
	TOTPSeed     string   `json:"totpSeed"`
	CollectionID string   `json:"collectionId"`
	TagIDs       []string `json:"tagIds"`
	IsFavorite   bool     `json:"isFavorite"`
	IsPinned     bool     `json:"isPinned"`
}

type updateEntryRequest struct {
	Title        *string   `json:"title"`
	Username     *string   `json:"username"`
	Secret       *string   `json:"password"`
	SiteURL      *string   `json:"site"`
	Notes        *string   `json:"notes"`
	TOTPSeed     *string   `json:"totpSeed"`
	CollectionID *string   `json:"collectionId"`
	TagIDs       *[]string `json:"tagIds"`
	IsFavorite   *bool     `json:"isFavorite"`
	IsPinned     *bool     `json:"isPinned"`
}

type bulkDeleteRequest struct {
	EntryIDs []string `json:"entryIds"`
}

type tagIDsRequest struct {
	TagIDs []string `json:"tagIds"`
}

type importRequest struct {
	Mode string               `json:"mode"`
	Data vault.ExportDocument `json:"data"`
}

func (e *entryRoutes) create(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	var req createEntryRequest
	if err := decodeJSON(w, r, maxBodySize, &req); err != nil {
		return err
	}

	entry, err := e.manager.Create(r.Context(), accountID, vault.CreateEntryInput{
		Title:        req.Title,
		Username:     req.Username,
		Secret:       req.Secret,
		SiteURL:      req.SiteURL,
		Notes:        req.Notes,
		TOTPSeed:     req.TOTPSeed,
		CollectionID: req.CollectionID,
		TagIDs:       req.TagIDs,
		IsFavorite:   req.IsFavorite,
		IsPinned:     req.IsPinned,
	})
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusCreated, entry)
}

func (e *entryRoutes) get(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	entry, err := e.manager.Get(r.Context(), accountID, chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusOK, entry)
}

func (e *entryRoutes) list(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}

	filter := vault.ListFilter{
		Query:        r.URL.Query().Get("query"),
		CollectionID: r.URL.Query().Get("collectionId"),
		Favorite:     queryBoolPtr(r, "isFavorite"),
		Pinned:       queryBoolPtr(r, "isPinned"),
		StrengthMin:  queryIntPtr(r, "strengthMin"),
		StrengthMax:  queryIntPtr(r, "strengthMax"),
		Page:         queryInt(r, "page"),
		PageSize:     queryInt(r, "pageSize"),
	}
	if tags := r.URL.Query().Get("tagIds"); tags != "" {
		filter.TagIDs = strings.Split(tags, ",")
	}

	page, err := e.manager.List(r.Context(), accountID, filter)
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusOK, page)
}

func (e *entryRoutes) update(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	var req updateEntryRequest
	if err := decodeJSON(w, r, maxBodySize, &req); err != nil {
		return err
	}

	entry, err := e.manager.Update(r.Context(), accountID, chi.URLParam(r, "id"), vault.UpdateEntryInput{
		Title:        req.Title,
		Username:     req.Username,
		Secret:       req.Secret,
		SiteURL:      req.SiteURL,
		Notes:        req.Notes,
		TOTPSeed:     req.TOTPSeed,
		CollectionID: req.CollectionID,
		TagIDs:       req.TagIDs,
		IsFavorite:   req.IsFavorite,
		IsPinned:     req.IsPinned,
	})
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusOK, entry)
}

func (e *entryRoutes) delete(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	if err := e.manager.Delete(r.Context(), accountID, chi.URLParam(r, "id")); err != nil {
		return err
	}
	return respondJSON(w, http.StatusNoContent, nil)
}

func (e *entryRoutes) bulkDelete(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	var req bulkDeleteRequest
	if err := decodeJSON(w, r, maxBodySize, &req); err != nil {
		return err
	}

	deleted, err := e.manager.BulkDelete(r.Context(), accountID, req.EntryIDs)
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusOK, map[string]int64{"count": deleted})
}

func (e *entryRoutes) toggleFavorite(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	favorite, err := e.manager.ToggleFavorite(r.Context(), accountID, chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusOK, map[string]bool{"isFavorite": favorite})
}

func (e *entryRoutes) togglePinned(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	pinned, err := e.manager.TogglePinned(r.Context(), accountID, chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusOK, map[string]bool{"isPinned": pinned})
}

func (e *entryRoutes) recordCopy(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	if err := e.manager.RecordCopy(r.Context(), accountID, chi.URLParam(r, "id")); err != nil {
		return err
	}
	return respondJSON(w, http.StatusNoContent, nil)
}

func (e *entryRoutes) setTags(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	var req tagIDsRequest
	if err := decodeJSON(w, r, maxBodySize, &req); err != nil {
		return err
	}

	entry, err := e.manager.SetEntryTags(r.Context(), accountID, chi.URLParam(r, "id"), req.TagIDs)
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusOK, entry)
}

func (e *entryRoutes) directSave(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	var req createEntryRequest
	if err := decodeJSON(w, r, maxBodySize, &req); err != nil {
		return err
	}

	entry, created, err := e.manager.DirectSave(r.Context(), accountID, vault.CreateEntryInput{
		Title:    req.Title,
		Username: req.Username,
		Secret:   req.Secret,
		SiteURL:  req.SiteURL,
	})
	if err != nil {
		return err
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return respondJSON(w, status, entry)
}

func (e *entryRoutes) health(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	report, err := e.manager.Health(r.Context(), accountID)
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusOK, report)
}

func (e *entryRoutes) export(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	doc, err := e.manager.Export(r.Context(), accountID)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Disposition", `attachment; filename="keyhive-export.json"`)
	return respondJSON(w, http.StatusOK, doc)
}

func (e *entryRoutes) importDoc(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}
	var req importRequest
	if err := decodeJSON(w, r, maxImportBodySize, &req); err != nil {
		return err
	}

	result, err := e.manager.Import(r.Context(), accountID, req.Data, req.Mode)
	if err != nil {
		return err
	}
	return respondJSON(w, http.StatusOK, result)
}

// callerID extracts the authenticated account from the context.
func callerID(r *http.Request) (string, error) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return "", errors.NewUnauthenticatedError("authentication required", nil)
	}
	return identity.AccountID, nil
}
