// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/devakesu/bunkr/internal/database/query"
	"github.com/devakesu/bunkr/internal/metrics"
	"github.com/devakesu/bunkr/internal/models"
)

// NotificationQuery narrows a notification listing. Zero values mean no
// filtering; Limit defaults to 50.
type NotificationQuery struct {
	Topic string
	Since time.Time
	Limit int
}

// InsertNotifications stores a batch of notifications. A nil or empty batch
// is a no-op.
func (db *DB) InsertNotifications(ctx context.Context, notifications []models.Notification) (err error) {
	if len(notifications) == 0 {
		return nil
	}
	defer metrics.TrackDBQuery("insert", "notifications", time.Now(), &err)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin notification transaction: %w", err)
	}
	defer rollbackQuietly(tx)

	for i := range notifications {
		n := &notifications[i]
		if n.ID == uuid.Nil {
			n.ID = uuid.New()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = time.Now()
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO notifications (id, user_id, title, description, topic, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			n.ID, n.UserID, n.Title, n.Description, n.Topic, n.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert notification: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit notifications: %w", err)
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first, narrowed
// by the optional topic and time filters.
func (db *DB) ListNotifications(ctx context.Context, userID uuid.UUID, q NotificationQuery) (_ []models.Notification, err error) {
	defer metrics.TrackDBQuery("select", "notifications", time.Now(), &err)

	if q.Limit <= 0 {
		q.Limit = 50
	}

	where, args := query.NewWhereBuilder().
		Equal("user_id", userID).
		EqualIfSet("topic", q.Topic).
		AfterIfSet("created_at", q.Since).
		Build()
	args = append(args, q.Limit)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, title, description, topic, created_at
		 FROM notifications`+where+`
		 ORDER BY created_at DESC
		 LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer closeRows(rows)

	var out []models.Notification
	for rows.Next() {
		var (
			n    models.Notification
			desc sql.NullString
		)
		if err = rows.Scan(&n.ID, &n.UserID, &n.Title, &desc, &n.Topic, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Description = desc.String
		out = append(out, n)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("notification row iteration failed: %w", err)
	}
	return out, nil
}

func rollbackQuietly(tx *sql.Tx) {
	// Rollback after commit returns sql.ErrTxDone, which is expected.
	_ = tx.Rollback()
}
