// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/devakesu/bunkr/internal/config"
	"github.com/devakesu/bunkr/internal/models"
)

// testDBSemaphore limits concurrent in-memory DuckDB instances. Each
// instance allocates its own buffer pool, so unbounded parallel test
// databases can exhaust memory on CI runners.
var testDBSemaphore = make(chan struct{}, 2)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() {
		<-testDBSemaphore
	})

	db, err := New(&config.DatabaseConfig{
		Path:      ":memory:",
		MaxMemory: "256MB",
		Threads:   2,
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})
	return db
}

func insertTestUser(t *testing.T, db *DB, email string) *models.User {
	t.Helper()
	user := &models.User{
		ID:               uuid.New(),
		Email:            email,
		PortalCredential: "encrypted-credential",
	}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("Failed to insert test user: %v", err)
	}
	return user
}

func userWithEmail(email string) *models.User {
	return &models.User{
		ID:               uuid.New(),
		Email:            email,
		PortalCredential: "encrypted-credential",
	}
}

func TestHealthCheck(t *testing.T) {
	db := setupTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.Health(ctx); err != nil {
		t.Errorf("Health check failed: %v", err)
	}
}

func TestSchemaIsIdempotent(t *testing.T) {
	db := setupTestDB(t)

	// Re-running initialization must not fail on existing tables.
	if err := db.initialize(); err != nil {
		t.Errorf("Second initialize failed: %v", err)
	}
}
