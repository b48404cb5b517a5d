// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/keyhive/pkg/errors"
	"github.com/stacklok/keyhive/pkg/storage"
)

const maxNameLength = 100

// colorPattern accepts #RGB and #RRGGBB.
var colorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// CreateCollection stores a new collection.
func (m *manager) CreateCollection(ctx context.Context, accountID, name, icon string) (Collection, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return Collection{}, err
	}

	now := time.Now().UTC()
	stored := storage.Collection{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Name:      name,
		Icon:      icon,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.collections.Create(ctx, stored); err != nil {
		return Collection{}, err
	}
	return toCollection(stored), nil
}

// ListCollections returns the account's collections ordered by name.
func (m *manager) ListCollections(ctx context.Context, accountID string) ([]Collection, error) {
	stored, err := m.collections.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	collections := make([]Collection, 0, len(stored))
	for _, s := range stored {
		collections = append(collections, toCollection(s))
	}
	return collections, nil
}

// UpdateCollection renames a collection or changes its icon.
func (m *manager) UpdateCollection(ctx context.Context, accountID, id, name, icon string) (Collection, error) {
	stored, err := m.collections.Get(ctx, accountID, id)
	if err != nil {
		return Collection{}, err
	}

	if name != "" {
		name = strings.TrimSpace(name)
		if err := validateName(name); err != nil {
			return Collection{}, err
		}
		stored.Name = name
	}
	if icon != "" {
		stored.Icon = icon
	}
	stored.UpdatedAt = time.Now().UTC()

	if err := m.collections.Update(ctx, stored); err != nil {
		return Collection{}, err
	}
	return toCollection(stored), nil
}

// DeleteCollection removes a collection. Member entries survive and fall
// back to no collection.
func (m *manager) DeleteCollection(ctx context.Context, accountID, id string) error {
	return m.collections.Delete(ctx, accountID, id)
}

// MoveEntries assigns entries to a collection, or to none when
// collectionID is empty.
func (m *manager) MoveEntries(ctx context.Context, accountID string, entryIDs []string, collectionID string) (MoveResult, error) {
	if len(entryIDs) == 0 {
		return MoveResult{}, errors.NewValidationError("no entry ids given", nil)
	}
	moved, err := m.collections.MoveEntries(ctx, accountID, entryIDs, collectionID)
	if err != nil {
		return MoveResult{}, err
	}
	return MoveResult{Moved: moved, Requested: len(entryIDs)}, nil
}

// CreateTag stores a new tag.
func (m *manager) CreateTag(ctx context.Context, accountID, name, color string) (Tag, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return Tag{}, err
	}
	if err := validateColor(color); err != nil {
		return Tag{}, err
	}

	stored := storage.Tag{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Name:      name,
		Color:     color,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.tags.Create(ctx, stored); err != nil {
		return Tag{}, err
	}
	return Tag{ID: stored.ID, Name: stored.Name, Color: stored.Color}, nil
}

// ListTags returns the account's tags ordered by name.
func (m *manager) ListTags(ctx context.Context, accountID string) ([]Tag, error) {
	stored, err := m.tags.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	tags := make([]Tag, 0, len(stored))
	for _, s := range stored {
		tags = append(tags, Tag{ID: s.ID, Name: s.Name, Color: s.Color})
	}
	return tags, nil
}

// UpdateTag renames a tag or changes its color.
func (m *manager) UpdateTag(ctx context.Context, accountID, id, name, color string) (Tag, error) {
	stored, err := m.tags.Get(ctx, accountID, id)
	if err != nil {
		return Tag{}, err
	}

	if name != "" {
		name = strings.TrimSpace(name)
		if err := validateName(name); err != nil {
			return Tag{}, err
		}
		stored.Name = name
	}
	if color != "" {
		if err := validateColor(color); err != nil {
			return Tag{}, err
		}
		stored.Color = color
	}

	if err := m.tags.Update(ctx, stored); err != nil {
		return Tag{}, err
	}
	return Tag{ID: stored.ID, Name: stored.Name, Color: stored.Color}, nil
}

// DeleteTag removes a tag and detaches it from all entries.
func (m *manager) DeleteTag(ctx context.Context, accountID, id string) error {
	return m.tags.Delete(ctx, accountID, id)
}

func toCollection(stored storage.Collection) Collection {
	return Collection{
		ID:        stored.ID,
		Name:      stored.Name,
		Icon:      stored.Icon,
		CreatedAt: stored.CreatedAt,
		UpdatedAt: stored.UpdatedAt,
	}
}

func validateName(name string) error {
	if name == "" {
		return errors.NewValidationError("name is required", nil)
	}
	if len(name) > maxNameLength {
		return errors.NewValidationError("name is too long", nil)
	}
	return nil
}

func validateColor(color string) error {
	if color == "" {
		return nil
	}
	if !colorPattern.MatchString(color) {
		return errors.NewValidationError("color must be a hex color like #aabbcc", nil)
	}
	return nil
}
