// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/devakesu/bunkr/internal/metrics"
	"github.com/devakesu/bunkr/internal/models"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrEmailConflict = errors.New("user with this email already exists")
)

// CreateUser inserts a new user. The portal credential must already be
// encrypted by the caller.
func (db *DB) CreateUser(ctx context.Context, user *models.User) (err error) {
	defer metrics.TrackDBQuery("insert", "users", time.Now(), &err)

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, portal_credential, last_synced_at)
		 VALUES (?, ?, ?, ?)`,
		user.ID, user.Email, user.PortalCredential, nullableTime(user.LastSyncedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrEmailConflict
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (db *DB) GetUser(ctx context.Context, id uuid.UUID) (_ *models.User, err error) {
	defer metrics.TrackDBQuery("select", "users", time.Now(), &err)

	row := db.conn.QueryRowContext(ctx,
		`SELECT id, email, portal_credential, last_synced_at
		 FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByEmail retrieves a user by email address.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (_ *models.User, err error) {
	defer metrics.TrackDBQuery("select", "users", time.Now(), &err)

	row := db.conn.QueryRowContext(ctx,
		`SELECT id, email, portal_credential, last_synced_at
		 FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// SelectSyncBatch returns up to limit users ordered oldest-synced first.
// Users that have never synced sort ahead of everyone else.
func (db *DB) SelectSyncBatch(ctx context.Context, limit int) (_ []models.User, err error) {
	defer metrics.TrackDBQuery("select", "users", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, email, portal_credential, last_synced_at
		 FROM users
		 ORDER BY last_synced_at ASC NULLS FIRST
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select sync batch: %w", err)
	}
	defer closeRows(rows)

	var users []models.User
	for rows.Next() {
		var (
			u      models.User
			synced sql.NullTime
		)
		if err = rows.Scan(&u.ID, &u.Email, &u.PortalCredential, &synced); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if synced.Valid {
			u.LastSyncedAt = synced.Time
		}
		users = append(users, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("sync batch row iteration failed: %w", err)
	}
	return users, nil
}

// TouchLastSynced records a successful pipeline completion for the user.
func (db *DB) TouchLastSynced(ctx context.Context, id uuid.UUID, at time.Time) (err error) {
	defer metrics.TrackDBQuery("update", "users", time.Now(), &err)

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET last_synced_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("failed to update last_synced_at: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateCredential replaces the stored (encrypted) portal credential.
func (db *DB) UpdateCredential(ctx context.Context, id uuid.UUID, encrypted string) (err error) {
	defer metrics.TrackDBQuery("update", "users", time.Now(), &err)

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET portal_credential = ? WHERE id = ?`, encrypted, id)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*models.User, error) {
	var (
		u      models.User
		synced sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PortalCredential, &synced); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	if synced.Valid {
		u.LastSyncedAt = synced.Time
	}
	return &u, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
