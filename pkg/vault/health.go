// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/stacklok/keyhive/pkg/audit"
	"github.com/stacklok/keyhive/pkg/crypto"
	"github.com/stacklok/keyhive/pkg/errors"
	"github.com/stacklok/keyhive/pkg/storage"
)

// maxImportEntries caps one import document.
const maxImportEntries = 5000

// Health decrypts every owned secret once and classifies the vault.
//
// An entry whose secret fails to decrypt is counted as noSecret rather
// than failing the whole analysis; the vault may hold entries written
// before a key incident, and the report should still describe the rest.
func (m *manager) Health(ctx context.Context, accountID string) (HealthReport, error) {
	stored, err := m.entries.ListAll(ctx, accountID)
	if err != nil {
		return HealthReport{}, err
	}

	key, err := m.keys.AccountKey(ctx, accountID)
	if err != nil {
		return HealthReport{}, err
	}

	now := time.Now().UTC()
	report := HealthReport{Total: len(stored), Entries: make([]EntryHealth, 0, len(stored))}
	secrets := make([]string, len(stored))
	bySecret := make(map[string]int, len(stored))

	for i, entry := range stored {
		secret, err := crypto.DecryptField(key, entry.Secret)
		if err != nil || secret == "" {
			secrets[i] = ""
			continue
		}
		secrets[i] = secret
		bySecret[secret]++
	}

	for i, entry := range stored {
		health := EntryHealth{ID: entry.ID, Title: entry.Title, Strength: entry.Strength}

		if secrets[i] == "" {
			report.NoSecret++
			health.Issues = append(health.Issues, HealthNoSecret)
			report.Entries = append(report.Entries, health)
			continue
		}

		switch strength := Strength(secrets[i]); {
		case strength >= 4:
			report.Strong++
		case strength >= 2:
			report.Medium++
		default:
			report.Weak++
			health.Issues = append(health.Issues, HealthWeak)
		}

		if !entry.PasswordChangedAt.IsZero() && now.Sub(entry.PasswordChangedAt) > oldPasswordAge {
			report.Old++
			health.Issues = append(health.Issues, HealthOld)
		}
		if bySecret[secrets[i]] > 1 {
			report.Reused++
			health.Issues = append(health.Issues, HealthReused)
		}
		report.Entries = append(report.Entries, health)
	}

	report.Score = healthScore(report)
	return report, nil
}

// healthScore grades the report 0..100. Weak and reused secrets weigh
// most; staleness weighs less. An empty vault scores 100.
func healthScore(report HealthReport) int {
	if report.Total == 0 {
		return 100
	}
	total := float64(report.Total)
	penalty := 40*float64(report.Weak)/total +
		40*float64(report.Reused)/total +
		20*float64(report.Old)/total
	score := 100 - int(penalty)
	if score < 0 {
		score = 0
	}
	return score
}

// Export returns all entries with decrypted secrets.
func (m *manager) Export(ctx context.Context, accountID string) (ExportDocument, error) {
	stored, err := m.entries.ListAll(ctx, accountID)
	if err != nil {
		return ExportDocument{}, err
	}

	key, err := m.keys.AccountKey(ctx, accountID)
	if err != nil {
		return ExportDocument{}, err
	}

	collectionNames, err := m.collectionNames(ctx, accountID)
	if err != nil {
		return ExportDocument{}, err
	}
	tagNames, err := m.tagNames(ctx, accountID)
	if err != nil {
		return ExportDocument{}, err
	}

	doc := ExportDocument{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC(),
		Entries:    make([]ExportEntry, 0, len(stored)),
	}
	for _, entry := range stored {
		out := ExportEntry{
			Title:      entry.Title,
			Username:   entry.Username,
			SiteURL:    entry.SiteURL,
			Collection: collectionNames[entry.CollectionID],
			IsFavorite: entry.Favorite,
			IsPinned:   entry.Pinned,
		}
		if out.Secret, err = crypto.DecryptField(key, entry.Secret); err != nil {
			return ExportDocument{}, err
		}
		if out.Notes, err = crypto.DecryptField(key, entry.Notes); err != nil {
			return ExportDocument{}, err
		}
		if out.TOTPSeed, err = crypto.DecryptField(key, entry.TOTPSeed); err != nil {
			return ExportDocument{}, err
		}
		for _, tagID := range entry.TagIDs {
			if name, ok := tagNames[tagID]; ok {
				out.Tags = append(out.Tags, name)
			}
		}
		sort.Strings(out.Tags)
		doc.Entries = append(doc.Entries, out)
	}

	m.recorder.Record(ctx, audit.Event{
		AccountID: accountID,
		Action:    storage.ActionExport,
		Metadata:  map[string]string{"count": fmt.Sprintf("%d", len(doc.Entries))},
	})
	return doc, nil
}

// Import loads an export document. Each entry is attempted on its own;
// one bad row does not abort the rest.
func (m *manager) Import(ctx context.Context, accountID string, doc ExportDocument, mode string) (ImportResult, error) {
	switch mode {
	case ImportModeMerge, ImportModeReplace:
	default:
		return ImportResult{}, errors.NewValidationError("mode must be merge or replace", nil)
	}
	if doc.Version != ExportVersion {
		return ImportResult{}, errors.NewValidationError(
			fmt.Sprintf("unsupported export version %d", doc.Version), nil)
	}
	if len(doc.Entries) > maxImportEntries {
		return ImportResult{}, errors.NewValidationError("too many entries in one import", nil)
	}

	if mode == ImportModeReplace {
		if _, err := m.entries.DeleteAll(ctx, accountID); err != nil {
			return ImportResult{}, err
		}
	}

	var result ImportResult
	for _, in := range doc.Entries {
		if mode == ImportModeMerge {
			_, err := m.entries.FindByTriple(ctx, accountID, in.Title, in.Username, in.SiteURL)
			if err == nil {
				result.Skipped++
				continue
			}
			if !stderrors.Is(err, storage.ErrNotFound) {
				return result, err
			}
		}

		input := CreateEntryInput{
			Title:      in.Title,
			Username:   in.Username,
			Secret:     in.Secret,
			SiteURL:    in.SiteURL,
			Notes:      in.Notes,
			TOTPSeed:   in.TOTPSeed,
			IsFavorite: in.IsFavorite,
			IsPinned:   in.IsPinned,
		}
		if in.Collection != "" {
			collectionID, err := m.ensureCollection(ctx, accountID, in.Collection)
			if err != nil {
				return result, err
			}
			input.CollectionID = collectionID
		}
		for _, tagName := range in.Tags {
			tagID, err := m.ensureTag(ctx, accountID, tagName)
			if err != nil {
				return result, err
			}
			input.TagIDs = append(input.TagIDs, tagID)
		}

		if _, err := m.Create(ctx, accountID, input); err != nil {
			if errors.IsValidation(err) {
				result.Failed++
				continue
			}
			return result, err
		}
		result.Imported++
	}

	m.recorder.Record(ctx, audit.Event{
		AccountID: accountID,
		Action:    storage.ActionImport,
		Metadata: map[string]string{
			"imported": fmt.Sprintf("%d", result.Imported),
			"skipped":  fmt.Sprintf("%d", result.Skipped),
			"failed":   fmt.Sprintf("%d", result.Failed),
		},
	})
	return result, nil
}

// ensureCollection finds a collection by name or creates it.
func (m *manager) ensureCollection(ctx context.Context, accountID, name string) (string, error) {
	existing, err := m.collections.List(ctx, accountID)
	if err != nil {
		return "", err
	}
	for _, c := range existing {
		if strings.EqualFold(c.Name, name) {
			return c.ID, nil
		}
	}
	created, err := m.CreateCollection(ctx, accountID, name, "")
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// ensureTag finds a tag by name or creates it.
func (m *manager) ensureTag(ctx context.Context, accountID, name string) (string, error) {
	existing, err := m.tags.GetByName(ctx, accountID, name)
	if err == nil {
		return existing.ID, nil
	}
	if !stderrors.Is(err, storage.ErrNotFound) {
		return "", err
	}
	created, err := m.CreateTag(ctx, accountID, name, "")
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

func (m *manager) collectionNames(ctx context.Context, accountID string) (map[string]string, error) {
	collections, err := m.collections.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(collections))
	for _, c := range collections {
		names[c.ID] = c.Name
	}
	return names, nil
}

func (m *manager) tagNames(ctx context.Context, accountID string) (map[string]string, error) {
	tags, err := m.tags.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(tags))
	for _, t := range tags {
		names[t.ID] = t.Name
	}
	return names, nil
}
