// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sqlite provides the SQLite-backed ExecutionStore.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// DB wraps the SQLite connection handle. The pool is pinned to a single
// connection: modernc.org/sqlite serializes writers anyway, and one
// connection lets multi-statement reads rely on a stable view.
type DB struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and applies
// all pending migrations.
func Open(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

// DB exposes the underlying sql.DB.
func (d *DB) DB() *sql.DB { return d.db }

// Close closes the database connection.
func (d *DB) Close() error { return d.db.Close() }
