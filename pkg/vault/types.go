// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"time"
)

// Entry is the API shape of a vault entry. Secret, Notes and TOTPSeed are
// populated only on paths that deliberately reveal them; list responses
// carry metadata only.
type Entry struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Username     string     `json:"username,omitempty"`
	Secret       string     `json:"password,omitempty"`
	SiteURL      string     `json:"site,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	TOTPSeed     string     `json:"totpSeed,omitempty"`
	CollectionID string     `json:"collectionId,omitempty"`
	Tags         []Tag      `json:"tags"`
	IsFavorite   bool       `json:"isFavorite"`
	IsPinned     bool       `json:"isPinned"`
	Strength     int        `json:"strength"`
	LastUsedAt   *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Collection is the API shape of an entry collection.
type Collection struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Tag is the API shape of a tag.
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// CreateEntryInput is the input for creating an entry.
type CreateEntryInput struct {
	Title        string
	Username     string
	Secret       string
	SiteURL      string
	Notes        string
	TOTPSeed     string
	CollectionID string
	TagIDs       []string
	IsFavorite   bool
	IsPinned     bool
}

// UpdateEntryInput is a partial update. Nil fields are untouched; a
// pointer to the empty string clears the field.
type UpdateEntryInput struct {
	Title        *string
	Username     *string
	Secret       *string
	SiteURL      *string
	Notes        *string
	TOTPSeed     *string
	CollectionID *string
	TagIDs       *[]string
	IsFavorite   *bool
	IsPinned     *bool
}

// ListFilter selects and pages entries.
type ListFilter struct {
	Query        string
	CollectionID string
	TagIDs       []string
	Favorite     *bool
	Pinned       *bool
	StrengthMin  *int
	StrengthMax  *int
	Page         int
	PageSize     int
}

// EntryPage is one page of list results.
type EntryPage struct {
	Entries  []Entry `json:"entries"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"pageSize"`
}

// Health classification labels.
const (
	HealthStrong   = "strong"
	HealthMedium   = "medium"
	HealthWeak     = "weak"
	HealthNoSecret = "noSecret"
	HealthOld      = "old"
	HealthReused   = "reused"
)

// EntryHealth is the per-entry slice of a health report.
type EntryHealth struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Strength int      `json:"strength"`
	Issues   []string `json:"issues,omitempty"`
}

// HealthReport is the result of a vault health analysis.
type HealthReport struct {
	Total    int `json:"total"`
	Strong   int `json:"strong"`
	Medium   int `json:"medium"`
	Weak     int `json:"weak"`
	NoSecret int `json:"noSecret"`
	Old      int `json:"old"`
	Reused   int `json:"reused"`
	// Score is an overall 0..100 health grade.
	Score   int           `json:"score"`
	Entries []EntryHealth `json:"entries"`
}

// ExportDocument is the export/import interchange format.
type ExportDocument struct {
	Version    int           `json:"version"`
	ExportedAt time.Time     `json:"exportedAt"`
	Entries    []ExportEntry `json:"entries"`
}

// ExportEntry is one entry in an export document, secrets in the clear.
type ExportEntry struct {
	Title      string   `json:"title"`
	Username   string   `json:"username,omitempty"`
	Secret     string   `json:"password,omitempty"`
	SiteURL    string   `json:"site,omitempty"`
	Notes      string   `json:"notes,omitempty"`
	TOTPSeed   string   `json:"totpSeed,omitempty"`
	Collection string   `json:"collection,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	IsFavorite bool     `json:"isFavorite,omitempty"`
	IsPinned   bool     `json:"isPinned,omitempty"`
}

// Import modes.
const (
	// ImportModeMerge skips entries whose (title, username, site)
	// triple already exists.
	ImportModeMerge = "merge"
	// ImportModeReplace deletes every existing entry first.
	ImportModeReplace = "replace"
)

// ImportResult summarises a best-effort import.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// MoveResult reports a bulk move. Requested counts the ids the caller
// submitted; unknown and foreign ids make the two numbers differ.
type MoveResult struct {
	Moved     int64 `json:"moved"`
	Requested int   `json:"requested"`
}

// ExportVersion is the current export document version.
const ExportVersion = 1
