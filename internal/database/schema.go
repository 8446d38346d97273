// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// createTables creates the core tables. All columns are defined in the
// initial CREATE TABLE statements so the statements are the single source
// of truth for the schema.
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			portal_credential TEXT NOT NULL,
			last_synced_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		// Manually tracked attendance claims awaiting reconciliation.
		// kind is 'extra' (user-added, unverified) or 'correction'
		// (disputes an official absence).
		`CREATE TABLE IF NOT EXISTS tracked_entries (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			course_id INTEGER NOT NULL,
			course_name TEXT,
			date TEXT NOT NULL,
			session TEXT NOT NULL,
			attendance_code INTEGER NOT NULL,
			kind TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			topic TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}

	return nil
}

// createIndexes covers the frequent query patterns: per-user entry lookups
// and the oldest-synced-first batch selection.
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_entries_user ON tracked_entries(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_user_kind ON tracked_entries(user_id, kind)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_users_last_synced ON users(last_synced_at)`,
	}

	for _, query := range indexes {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}
