// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sqlite implements the keyhive storage interfaces on SQLite using
// the pure-Go modernc.org driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Register the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection shared by all stores.
type DB struct {
	db *sql.DB
}

// Open opens (and creates if needed) the database at the given URL. The URL
// is either a plain file path or a file: DSN; ":memory:" yields a private
// in-memory database.
func Open(ctx context.Context, databaseURL string) (*DB, error) {
	db, err := sql.Open("sqlite", normalizeDSN(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite allows one writer at a time. Funnelling all access through a
	// single connection avoids SQLITE_BUSY under concurrent requests; the
	// busy_timeout pragma covers the rest.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &DB{db: db}, nil
}

// DB exposes the underlying connection for the stores.
func (d *DB) DB() *sql.DB {
	return d.db
}

// Ping checks the connection is still usable.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate applies all pending schema migrations.
func (d *DB) Migrate(ctx context.Context) error {
	return runMigrations(ctx, d.db)
}

// normalizeDSN turns a file path into a DSN and appends the pragmas every
// connection needs.
func normalizeDSN(databaseURL string) string {
	dsn := databaseURL
	if dsn == ":memory:" {
		dsn = "file::memory:"
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}
