// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

// Package sync orchestrates batch attendance reconciliation: selecting the
// stalest users, fetching their official records from the portal behind a
// shared circuit breaker, classifying their tracked entries, and applying
// the resulting mutations with per-user fault isolation.
package sync

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/devakesu/bunkr/internal/cache"
	"github.com/devakesu/bunkr/internal/config"
	"github.com/devakesu/bunkr/internal/logging"
	"github.com/devakesu/bunkr/internal/metrics"
	"github.com/devakesu/bunkr/internal/models"
	"github.com/devakesu/bunkr/internal/notify"
	"github.com/devakesu/bunkr/internal/reconcile"
)

// Store is the persistence surface the orchestrator needs. Implemented by
// *database.DB.
type Store interface {
	SelectSyncBatch(ctx context.Context, limit int) ([]models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	TrackedEntries(ctx context.Context, userID uuid.UUID) ([]models.TrackedEntry, error)
	DeleteEntries(ctx context.Context, ids []uuid.UUID) error
	MarkEntriesCorrection(ctx context.Context, ids []uuid.UUID) error
	InsertNotifications(ctx context.Context, notifications []models.Notification) error
	TouchLastSynced(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Decryptor opens stored portal credentials.
type Decryptor interface {
	Decrypt(ciphertext string) (string, error)
}

// Manager runs batch reconciliation. One instance serves both the periodic
// loop and on-demand API triggers; RunBatch is safe for concurrent use,
// though overlapping batches only waste portal quota.
type Manager struct {
	store     Store
	client    PortalClient
	breaker   *Breaker
	decryptor Decryptor
	mailer    notify.Mailer
	cfg       config.SyncConfig

	// summaries caches aggregated stats per user so repeated summary reads
	// inside the TTL cost one portal round trip.
	summaries *cache.Cache[*reconcile.Stats]
}

// summaryTTL bounds how stale a cached attendance summary may be.
const summaryTTL = 5 * time.Minute

// NewManager wires the orchestrator.
func NewManager(store Store, client PortalClient, breaker *Breaker, decryptor Decryptor, mailer notify.Mailer, cfg config.SyncConfig) *Manager {
	return &Manager{
		store:     store,
		client:    client,
		breaker:   breaker,
		decryptor: decryptor,
		mailer:    mailer,
		cfg:       cfg,
		summaries: cache.New[*reconcile.Stats](summaryTTL),
	}
}

// Breaker exposes the shared portal circuit breaker for inspection and
// manual reset.
func (m *Manager) Breaker() *Breaker {
	return m.breaker
}

// userOutcome is the fan-in result of one user pipeline.
type userOutcome struct {
	stats models.SyncStats
	err   error
}

// RunBatch processes one batch of the stalest users. Individual user
// failures never abort the batch; they are folded into the tri-state
// outcome. The returned error covers batch-level failures only (the user
// selection query).
func (m *Manager) RunBatch(ctx context.Context) (*models.BatchResult, error) {
	start := time.Now()
	defer func() {
		metrics.SyncBatchDuration.Observe(time.Since(start).Seconds())
	}()

	users, err := m.store.SelectSyncBatch(ctx, m.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to select sync batch: %w", err)
	}

	result := &models.BatchResult{Users: len(users)}
	if len(users) == 0 {
		result.Status = models.BatchSuccess
		metrics.SyncBatchOutcomes.WithLabelValues(string(result.Status)).Inc()
		logging.Debug().Msg("Sync batch empty, nothing to do")
		return result, nil
	}

	logging.Info().Int("users", len(users)).Msg("Starting sync batch")

	errored := 0
	for chunkStart := 0; chunkStart < len(users); chunkStart += m.cfg.ChunkSize {
		chunkEnd := chunkStart + m.cfg.ChunkSize
		if chunkEnd > len(users) {
			chunkEnd = len(users)
		}
		chunk := users[chunkStart:chunkEnd]

		for _, outcome := range m.runChunk(ctx, chunk) {
			if outcome.err != nil {
				errored++
				result.Stats.Errors++
				metrics.SyncUsersProcessed.WithLabelValues("error").Inc()
			} else {
				metrics.SyncUsersProcessed.WithLabelValues("success").Inc()
			}
			result.Stats.Add(outcome.stats)
		}

		// Pause between chunks to avoid hammering the portal, but not
		// after the final one.
		if chunkEnd < len(users) && m.cfg.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
				// Remaining users count as errored: they were selected
				// but never processed.
				errored += len(users) - chunkEnd
				result.Stats.Errors += len(users) - chunkEnd
				result.Status = models.DeriveBatchStatus(len(users), errored)
				metrics.SyncBatchOutcomes.WithLabelValues(string(result.Status)).Inc()
				return result, ctx.Err()
			case <-time.After(m.cfg.ChunkDelay):
			}
		}
	}

	result.Status = models.DeriveBatchStatus(len(users), errored)
	metrics.SyncBatchOutcomes.WithLabelValues(string(result.Status)).Inc()

	logging.Info().
		Str("status", string(result.Status)).
		Int("users", result.Users).
		Int("errors", errored).
		Int("deletions", result.Stats.Deletions).
		Int("conflicts", result.Stats.Conflicts).
		Dur("took", time.Since(start)).
		Msg("Sync batch finished")

	return result, nil
}

// RunUser reconciles a single explicitly targeted user. Unlike RunBatch,
// a pipeline failure is returned to the caller so it can be mapped onto a
// meaningful response for whoever asked.
func (m *Manager) RunUser(ctx context.Context, userID uuid.UUID) (*models.BatchResult, error) {
	start := time.Now()
	defer func() {
		metrics.SyncBatchDuration.Observe(time.Since(start).Seconds())
	}()

	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats, err := m.syncUser(ctx, *user)
	if err != nil {
		metrics.SyncUsersProcessed.WithLabelValues("error").Inc()
		metrics.SyncBatchOutcomes.WithLabelValues(string(models.BatchFailed)).Inc()
		logging.Warn().
			Str("user", logging.RedactUserID(userID.String())).
			Err(err).
			Msg("Targeted sync failed")
		return nil, err
	}

	metrics.SyncUsersProcessed.WithLabelValues("success").Inc()
	metrics.SyncBatchOutcomes.WithLabelValues(string(models.BatchSuccess)).Inc()

	return &models.BatchResult{
		Status: models.BatchSuccess,
		Users:  1,
		Stats:  stats,
	}, nil
}

// runChunk fans the chunk's users out to concurrent pipelines and collects
// their outcomes. A panic in one pipeline is converted to that user's error
// and never takes down the batch.
func (m *Manager) runChunk(ctx context.Context, chunk []models.User) []userOutcome {
	outcomes := make([]userOutcome, len(chunk))
	var wg sync.WaitGroup

	for i, user := range chunk {
		wg.Add(1)
		go func(i int, user models.User) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logging.Error().
						Str("user", logging.RedactUserID(user.ID.String())).
						Interface("panic", r).
						Str("stack", string(debug.Stack())).
						Msg("User pipeline panicked")
					outcomes[i] = userOutcome{err: fmt.Errorf("pipeline panic: %v", r)}
				}
			}()

			stats, err := m.syncUser(ctx, user)
			if err != nil {
				logging.Warn().
					Str("user", logging.RedactUserID(user.ID.String())).
					Err(err).
					Msg("User sync failed")
			}
			outcomes[i] = userOutcome{stats: stats, err: err}
		}(i, user)
	}

	wg.Wait()
	return outcomes
}

// syncUser runs the full reconciliation pipeline for one user.
func (m *Manager) syncUser(ctx context.Context, user models.User) (models.SyncStats, error) {
	var stats models.SyncStats

	token, err := m.decryptor.Decrypt(user.PortalCredential)
	if err != nil {
		return stats, fmt.Errorf("failed to decrypt portal credential: %w", err)
	}

	// The cheap courses call doubles as a credential probe before the
	// heavy attendance report.
	courses, err := m.client.Courses(ctx, token)
	if err != nil {
		return stats, fmt.Errorf("failed to fetch courses: %w", err)
	}
	logging.Debug().
		Str("user", logging.RedactUserID(user.ID.String())).
		Int("courses", len(courses)).
		Msg("Portal credential verified")

	detail, err := m.client.AttendanceDetail(ctx, token)
	if err != nil {
		return stats, fmt.Errorf("failed to fetch attendance detail: %w", err)
	}

	official, revisions, err := reconcile.BuildOfficialMap(detail)
	if err != nil {
		return stats, fmt.Errorf("failed to build official map: %w", err)
	}

	entries, err := m.store.TrackedEntries(ctx, user.ID)
	if err != nil {
		return stats, fmt.Errorf("failed to load tracked entries: %w", err)
	}

	classified, err := reconcile.Classify(entries, official, revisions)
	if err != nil {
		return stats, fmt.Errorf("classification failed: %w", err)
	}

	if err := m.apply(ctx, user, classified); err != nil {
		return stats, err
	}

	if err := m.store.TouchLastSynced(ctx, user.ID, time.Now()); err != nil {
		return stats, fmt.Errorf("failed to record sync time: %w", err)
	}
	// The pass may have changed the overlay; drop any cached summary.
	m.summaries.Delete(user.ID.String())

	stats.Processed = len(entries)
	stats.Deletions = len(classified.ToDelete)
	stats.Updates = len(classified.ToCorrection)
	stats.Conflicts = classified.Conflicts

	metrics.SyncEntriesDeleted.Add(float64(stats.Deletions))
	metrics.SyncConflicts.Add(float64(stats.Conflicts))

	return stats, nil
}

// apply performs the classifier's mutations. Store writes are mandatory;
// email dispatch is best effort and never fails the user.
func (m *Manager) apply(ctx context.Context, user models.User, classified *reconcile.Result) error {
	if err := m.store.DeleteEntries(ctx, classified.ToDelete); err != nil {
		return fmt.Errorf("failed to delete reconciled entries: %w", err)
	}
	if err := m.store.MarkEntriesCorrection(ctx, classified.ToCorrection); err != nil {
		return fmt.Errorf("failed to escalate conflicting entries: %w", err)
	}

	if err := m.store.InsertNotifications(ctx, classified.Notifications); err != nil {
		return fmt.Errorf("failed to store notifications: %w", err)
	}
	for range classified.Notifications {
		metrics.NotificationsDispatched.WithLabelValues("inapp", "success").Inc()
	}

	for _, email := range classified.Emails {
		email.To = user.Email
		if err := m.mailer.Send(ctx, email); err != nil {
			logging.Warn().
				Str("user", logging.RedactUserID(user.ID.String())).
				Err(err).
				Msg("Conflict email delivery failed")
		}
	}
	return nil
}

// Summary fetches the user's live portal record and aggregates attendance
// statistics, folding in their tracked entries. Results are cached briefly;
// a completed sync pass for the user invalidates the cached value.
func (m *Manager) Summary(ctx context.Context, userID uuid.UUID) (*reconcile.Stats, error) {
	if stats, ok := m.summaries.Get(userID.String()); ok {
		return stats, nil
	}

	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	token, err := m.decryptor.Decrypt(user.PortalCredential)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt portal credential: %w", err)
	}

	detail, err := m.client.AttendanceDetail(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attendance detail: %w", err)
	}

	official, revisions, err := reconcile.BuildOfficialMap(detail)
	if err != nil {
		return nil, fmt.Errorf("failed to build official map: %w", err)
	}

	entries, err := m.store.TrackedEntries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tracked entries: %w", err)
	}

	stats, err := reconcile.Aggregate(official, revisions, entries)
	if err != nil {
		return nil, err
	}
	m.summaries.Set(userID.String(), stats)
	return stats, nil
}

// Serve runs the periodic sync loop until the context is canceled. It
// implements suture.Service.
func (m *Manager) Serve(ctx context.Context) error {
	if !m.cfg.Enabled {
		logging.Info().Msg("Periodic sync disabled, loop idle")
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	logging.Info().Dur("interval", m.cfg.Interval).Msg("Periodic sync loop started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.RunBatch(ctx); err != nil {
				logging.Error().Err(err).Msg("Periodic sync batch failed")
			}
		}
	}
}

// String names the service in supervisor logs.
func (m *Manager) String() string {
	return "sync-manager"
}
