// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package vault_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/keyhive/pkg/errors"
	"github.com/stacklok/keyhive/pkg/vault"
)

func TestVault_Health(t *testing.T) {
	t.Parallel()
	manager, accountID := newTestVault(t)
	ctx := context.Background()

	_, err := manager.Create(ctx, accountID, vault.CreateEntryInput{
		Title: "strong", Secret: "Very-Strong-Pass-1",
	})
	require.NoError(t, err)
	_, err = manager.Create(ctx, accountID, vault.CreateEntryInput{
		Title: "weak", Secret: "abc",
	})
	require.NoError(t, err)
	// Two entries sharing a secret both count as reused.
	_, err = manager.Create(ctx, accountID, vault.CreateEntryInput{
		Title: "dup one", Secret: "Shared-Pass-99",
	})
	require.NoError(t, err)
	_, err = manager.Create(ctx, accountID, vault.CreateEntryInput{
		Title: "dup two", Secret: "Shared-Pass-99",
	})
	require.NoError(t, err)

	report, err := manager.Health(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 3, report.Strong)
	assert.Equal(t, 1, report.Weak)
	assert.Equal(t, 2, report.Reused)
	assert.Equal(t, 0, report.Old)
	assert.Len(t, report.Entries, 4)
	assert.Less(t, report.Score, 100)
}

func TestVault_HealthEmptyVault(t *testing.T) {
	t.Parallel()
	manager, accountID := newTestVault(t)

	report, err := manager.Health(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Total)
	assert.Equal(t, 100, report.Score)
}

func TestVault_ExportRoundTrip(t *testing.T) {
	t.Parallel()
	manager, accountID := newTestVault(t)
	ctx := context.Background()

	work, err := manager.CreateCollection(ctx, accountID, "Work", "")
	require.NoError(t, err)
	_, err = manager.Create(ctx, accountID, vault.CreateEntryInput{
		Title: "Jira", Username: "alice", Secret: "Export-Me-123",
		SiteURL: "https://jira.test", CollectionID: work.ID,
	})
	require.NoError(t, err)

	doc, err := manager.Export(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, vault.ExportVersion, doc.Version)
	require.Len(t, doc.Entries, 1)
	assert.Equal(t, "Export-Me-123", doc.Entries[0].Secret)
	assert.Equal(t, "Work", doc.Entries[0].Collection)

	// Importing into a second account rebuilds collections by name.
	other, otherID := newTestVault(t)
	result, err := other.Import(ctx, otherID, doc, vault.ImportModeMerge)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)

	collections, err := other.ListCollections(ctx, otherID)
	require.NoError(t, err)
	require.Len(t, collections, 1)
	assert.Equal(t, "Work", collections[0].Name)
}

func TestVault_ImportMergeSkipsExisting(t *testing.T) {
	t.Parallel()
	manager, accountID := newTestVault(t)
	ctx := context.Background()

	_, err := manager.Create(ctx, accountID, vault.CreateEntryInput{
		Title: "Forum", Username: "alice", Secret: "Old-Pass-111", SiteURL: "https://forum.test",
	})
	require.NoError(t, err)

	doc := vault.ExportDocument{
		Version: vault.ExportVersion,
		Entries: []vault.ExportEntry{
			{Title: "Forum", Username: "alice", Secret: "New-Pass-222", SiteURL: "https://forum.test"},
			{Title: "Fresh", Secret: "Fresh-Pass-33"},
			{Title: "", Secret: "no title"},
		},
	}
	result, err := manager.Import(ctx, accountID, doc, vault.ImportModeMerge)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Failed)

	page, err := manager.List(ctx, accountID, vault.ListFilter{Query: "Forum"})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	got, err := manager.Get(ctx, accountID, page.Entries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Old-Pass-111", got.Secret, "merge must not overwrite")
}

func TestVault_ImportReplaceDropsExisting(t *testing.T) {
	t.Parallel()
	manager, accountID := newTestVault(t)
	ctx := context.Background()

	_, err := manager.Create(ctx, accountID, vault.CreateEntryInput{
		Title: "Doomed", Secret: "Gone-Soon-12",
	})
	require.NoError(t, err)

	doc := vault.ExportDocument{
		Version: vault.ExportVersion,
		Entries: []vault.ExportEntry{{Title: "Survivor", Secret: "Still-Here-1"}},
	}
	result, err := manager.Import(ctx, accountID, doc, vault.ImportModeReplace)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)

	page, err := manager.List(ctx, accountID, vault.ListFilter{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "Survivor", page.Entries[0].Title)
}

func TestVault_ImportRejectsBadInput(t *testing.T) {
	t.Parallel()
	manager, accountID := newTestVault(t)
	ctx := context.Background()

	_, err := manager.Import(ctx, accountID, vault.ExportDocument{Version: 99}, vault.ImportModeMerge)
	assert.True(t, errors.IsValidation(err))

	_, err = manager.Import(ctx, accountID, vault.ExportDocument{Version: vault.ExportVersion}, "upsert")
	assert.True(t, errors.IsValidation(err))
}
