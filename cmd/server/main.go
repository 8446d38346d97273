// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

// Package main is the entry point for the Bunkr server.
//
// Bunkr reconciles user-tracked attendance claims against the official
// records of the EzyGo college portal. Users log classes the portal has not
// (yet) credited; each sync pass fetches the official ledger, removes claims
// the portal has since confirmed, escalates disputed absences, and notifies
// the user of every change.
//
// # Startup Order
//
//  1. Configuration: Koanf v2 layering defaults, config.yaml, environment
//  2. Logging: zerolog with HMAC-redacted user identifiers
//  3. Database: DuckDB storing users, tracked entries, and notifications
//  4. Portal client: rate-limited EzyGo client behind a circuit breaker
//  5. Sync manager: the periodic reconciliation scheduler
//  6. HTTP server: REST API plus Prometheus metrics
//
// The sync manager and HTTP server run under a Suture supervision tree; a
// crash in either is restarted without taking the other down.
//
// # Configuration
//
// Required environment (see config.Load for the full mapping):
//   - JWT_SECRET: 32+ character secret, also the credential encryption root
//   - CRON_SECRET: shared secret for the scheduler-facing sync endpoints
//   - PORTAL_BASE_URL: EzyGo API base URL
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests, the sync manager finishes or abandons its pass, and
// the database is closed last.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devakesu/bunkr/internal/api"
	"github.com/devakesu/bunkr/internal/auth"
	"github.com/devakesu/bunkr/internal/config"
	"github.com/devakesu/bunkr/internal/database"
	"github.com/devakesu/bunkr/internal/logging"
	"github.com/devakesu/bunkr/internal/notify"
	"github.com/devakesu/bunkr/internal/supervisor"
	syncengine "github.com/devakesu/bunkr/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	// User identifiers in logs are HMAC digests, not raw IDs.
	logging.SetRedactionKey(cfg.Security.JWTSecret)

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("portal_url", cfg.Portal.BaseURL).
		Bool("sync_enabled", cfg.Sync.Enabled).
		Msg("Starting Bunkr")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	encryptor, err := config.NewCredentialEncryptor(cfg.Security.JWTSecret)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize credential encryption")
	}

	// One breaker guards the portal for all users; a portal outage seen by
	// one pipeline is an outage for every pipeline.
	breaker := syncengine.NewBreaker("ezygo", cfg.Breaker)
	client := syncengine.NewEzygoClient(&cfg.Portal, breaker)
	mailer := notify.NewMailer(cfg.SMTP)
	manager := syncengine.NewManager(db, client, breaker, encryptor, mailer, cfg.Sync)

	jwtManager := auth.NewJWTManager(cfg.Security.JWTSecret, 0)
	handler := api.NewHandler(db, manager, breaker)
	router := api.NewRouter(handler, api.NewAuthMiddleware(jwtManager, cfg.Security.CronSecret), &cfg.Security)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: 10 * time.Second,
	})
	tree.AddWorker(manager)
	tree.AddAPI(supervisor.NewHTTPService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain until the supervisor closes the channel.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Bunkr stopped gracefully")
}
