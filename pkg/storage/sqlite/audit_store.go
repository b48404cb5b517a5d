// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/stacklok/keyhive/pkg/storage"
)

// AuditStore implements storage.AuditStore using SQLite. The type has no
// update or delete methods; nothing in the schema or the store can mutate
// an event once written.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore creates a new SQLite-backed AuditStore.
func NewAuditStore(db *DB) *AuditStore {
	return &AuditStore{db: db.DB()}
}

var _ storage.AuditStore = (*AuditStore)(nil)

// Append stores one event.
func (s *AuditStore) Append(ctx context.Context, event storage.AuditEvent) error {
	metadata, err := encodeMetadata(event.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, account_id, action, entry_id, entry_title,
			ip, user_agent, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.AccountID, event.Action, event.EntryID, event.EntryTitle,
		event.IP, event.UserAgent, metadata, formatTime(event.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// List returns one page of the account's events, newest first, plus the
// total match count.
func (s *AuditStore) List(ctx context.Context, accountID string, filter storage.AuditFilter) ([]storage.AuditEvent, int, error) {
	conditions := []string{"account_id = ?"}
	args := []any{accountID}

	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "created_at < ?")
		args = append(args, formatTime(filter.To))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_events WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting audit events: %w", err)
	}

	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, action, entry_id, entry_title, ip, user_agent, metadata, created_at
		FROM audit_events WHERE `+where+`
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var events []storage.AuditEvent
	for rows.Next() {
		var (
			event     storage.AuditEvent
			metadata  []byte
			createdAt string
		)
		err := rows.Scan(
			&event.ID, &event.AccountID, &event.Action, &event.EntryID, &event.EntryTitle,
			&event.IP, &event.UserAgent, &metadata, &createdAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning audit event row: %w", err)
		}
		if event.Metadata, err = decodeMetadata(metadata); err != nil {
			return nil, 0, err
		}
		if event.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, 0, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating audit events: %w", err)
	}

	return events, total, nil
}

// Summary returns per-action counts for events created at or after the
// given time, ordered by descending count.
func (s *AuditStore) Summary(ctx context.Context, accountID string, since time.Time) ([]storage.ActionCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT action, COUNT(*) FROM audit_events
		WHERE account_id = ? AND created_at >= ?
		GROUP BY action ORDER BY COUNT(*) DESC, action`,
		accountID, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("querying audit summary: %w", err)
	}
	defer rows.Close()

	var counts []storage.ActionCount
	for rows.Next() {
		var count storage.ActionCount
		if err := rows.Scan(&count.Action, &count.Count); err != nil {
			return nil, fmt.Errorf("scanning audit summary row: %w", err)
		}
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit summary: %w", err)
	}
	return counts, nil
}
