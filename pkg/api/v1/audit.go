// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/keyhive/pkg/storage"
)

// defaultSummaryWindow is how far back the summary looks when the caller
// does not say.
const defaultSummaryWindow = 30 * 24 * time.Hour

// AuditRouter sets up the audit query routes. The log itself is
// append-only; these routes only read.
func AuditRouter(store storage.AuditStore) http.Handler {
	routes := &auditRoutes{store: store}

	r := chi.NewRouter()
	r.Get("/", handle(routes.list))
	r.Get("/summary", handle(routes.summary))
	return r
}

type auditRoutes struct {
	store storage.AuditStore
}

type auditEventResponse struct {
	ID         string            `json:"id"`
	Action     string            `json:"action"`
	EntryID    string            `json:"entryId,omitempty"`
	EntryTitle string            `json:"entryTitle,omitempty"`
	IP         string            `json:"ip,omitempty"`
	UserAgent  string            `json:"userAgent,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

type auditPageResponse struct {
	Events   []auditEventResponse `json:"events"`
	Total    int                  `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"pageSize"`
}

type auditSummaryResponse struct {
	Since   time.Time        `json:"since"`
	Actions map[string]int64 `json:"actions"`
}

func (a *auditRoutes) list(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}

	filter := storage.AuditFilter{
		Action:   r.URL.Query().Get("action"),
		Page:     queryInt(r, "page"),
		PageSize: queryInt(r, "pageSize"),
	}
	if from := r.URL.Query().Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = t
		}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = t
		}
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 200 {
		filter.PageSize = 50
	}

	events, total, err := a.store.List(r.Context(), accountID, filter)
	if err != nil {
		return err
	}

	page := auditPageResponse{
		Events:   make([]auditEventResponse, 0, len(events)),
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}
	for _, event := range events {
		page.Events = append(page.Events, auditEventResponse{
			ID:         event.ID,
			Action:     event.Action,
			EntryID:    event.EntryID,
			EntryTitle: event.EntryTitle,
			IP:         event.IP,
			UserAgent:  event.UserAgent,
			Metadata:   event.Metadata,
			CreatedAt:  event.CreatedAt,
		})
	}
	return respondJSON(w, http.StatusOK, page)
}

func (a *auditRoutes) summary(w http.ResponseWriter, r *http.Request) error {
	accountID, err := callerID(r)
	if err != nil {
		return err
	}

	since := time.Now().UTC().Add(-defaultSummaryWindow)
	if raw := r.URL.Query().Get("since"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			since = t
		}
	}

	counts, err := a.store.Summary(r.Context(), accountID, since)
	if err != nil {
		return err
	}

	summary := auditSummaryResponse{Since: since, Actions: make(map[string]int64, len(counts))}
	for _, count := range counts {
		summary.Actions[count.Action] = count.Count
	}
	return respondJSON(w, http.StatusOK, summary)
}
