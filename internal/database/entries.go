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
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devakesu/bunkr/internal/metrics"
	"github.com/devakesu/bunkr/internal/models"
)

var ErrEntryNotFound = errors.New("tracked entry not found")

const entryColumns = `id, user_id, course_id, course_name, date, session, attendance_code, kind, created_at`

// InsertEntry stores a new tracked attendance entry.
func (db *DB) InsertEntry(ctx context.Context, entry *models.TrackedEntry) (err error) {
	defer metrics.TrackDBQuery("insert", "tracked_entries", time.Now(), &err)

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO tracked_entries (`+entryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, entry.CourseID, entry.CourseName,
		entry.Date, entry.Session, int(entry.AttendanceCode), string(entry.Kind),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert tracked entry: %w", err)
	}
	return nil
}

// TrackedEntries returns every tracked entry for a user, oldest first.
func (db *DB) TrackedEntries(ctx context.Context, userID uuid.UUID) (_ []models.TrackedEntry, err error) {
	defer metrics.TrackDBQuery("select", "tracked_entries", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM tracked_entries
		 WHERE user_id = ? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked entries: %w", err)
	}
	defer closeRows(rows)

	return scanEntries(rows)
}

// GetEntry retrieves a single tracked entry scoped to its owner.
func (db *DB) GetEntry(ctx context.Context, userID, entryID uuid.UUID) (_ *models.TrackedEntry, err error) {
	defer metrics.TrackDBQuery("select", "tracked_entries", time.Now(), &err)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM tracked_entries
		 WHERE id = ? AND user_id = ?`, entryID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked entry: %w", err)
	}
	defer closeRows(rows)

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrEntryNotFound
	}
	return &entries[0], nil
}

// DeleteEntry removes a single entry scoped to its owner.
func (db *DB) DeleteEntry(ctx context.Context, userID, entryID uuid.UUID) (err error) {
	defer metrics.TrackDBQuery("delete", "tracked_entries", time.Now(), &err)

	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM tracked_entries WHERE id = ? AND user_id = ?`, entryID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete tracked entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// DeleteEntries removes the given entries in one statement. A nil or empty
// id list is a no-op.
func (db *DB) DeleteEntries(ctx context.Context, ids []uuid.UUID) (err error) {
	if len(ids) == 0 {
		return nil
	}
	defer metrics.TrackDBQuery("delete", "tracked_entries", time.Now(), &err)

	placeholders, args := idList(ids)
	_, err = db.conn.ExecContext(ctx,
		`DELETE FROM tracked_entries WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to delete tracked entries: %w", err)
	}
	return nil
}

// MarkEntriesCorrection escalates the given extra entries to correction
// status. A nil or empty id list is a no-op.
func (db *DB) MarkEntriesCorrection(ctx context.Context, ids []uuid.UUID) (err error) {
	if len(ids) == 0 {
		return nil
	}
	defer metrics.TrackDBQuery("update", "tracked_entries", time.Now(), &err)

	placeholders, args := idList(ids)
	_, err = db.conn.ExecContext(ctx,
		`UPDATE tracked_entries SET kind = 'correction' WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to mark entries as corrections: %w", err)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]models.TrackedEntry, error) {
	var entries []models.TrackedEntry
	for rows.Next() {
		var (
			e    models.TrackedEntry
			code int
			kind string
			name sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.CourseID, &name,
			&e.Date, &e.Session, &code, &kind, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tracked entry: %w", err)
		}
		e.CourseName = name.String
		e.AttendanceCode = models.AttendanceCode(code)
		e.Kind = models.EntryKind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("entry row iteration failed: %w", err)
	}
	return entries, nil
}

func idList(ids []uuid.UUID) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "), args
}
