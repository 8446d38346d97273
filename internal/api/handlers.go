// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/devakesu/bunkr/internal/database"
	"github.com/devakesu/bunkr/internal/models"
	"github.com/devakesu/bunkr/internal/reconcile"
	"github.com/devakesu/bunkr/internal/slotkey"
	syncengine "github.com/devakesu/bunkr/internal/sync"
)

// defaultProjectionTarget is the attendance percentage used when the
// projection endpoint gets no explicit target.
const defaultProjectionTarget = 75.0

// EntryStore is the persistence surface the handlers need. Implemented by
// *database.DB.
type EntryStore interface {
	TrackedEntries(ctx context.Context, userID uuid.UUID) ([]models.TrackedEntry, error)
	InsertEntry(ctx context.Context, entry *models.TrackedEntry) error
	GetEntry(ctx context.Context, userID, entryID uuid.UUID) (*models.TrackedEntry, error)
	DeleteEntry(ctx context.Context, userID, entryID uuid.UUID) error
	ListNotifications(ctx context.Context, userID uuid.UUID, q database.NotificationQuery) ([]models.Notification, error)
	Health(ctx context.Context) error
}

// SyncRunner is the orchestration surface the handlers need. Implemented by
// *sync.Manager.
type SyncRunner interface {
	RunBatch(ctx context.Context) (*models.BatchResult, error)
	RunUser(ctx context.Context, userID uuid.UUID) (*models.BatchResult, error)
	Summary(ctx context.Context, userID uuid.UUID) (*reconcile.Stats, error)
}

// Handler holds the dependencies of all HTTP handlers.
type Handler struct {
	store    EntryStore
	runner   SyncRunner
	breaker  *syncengine.Breaker
	validate *validator.Validate
}

// NewHandler wires the handler set.
func NewHandler(store EntryStore, runner SyncRunner, breaker *syncengine.Breaker) *Handler {
	return &Handler{
		store:    store,
		runner:   runner,
		breaker:  breaker,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// HealthLive reports process liveness.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "alive"})
}

// HealthReady reports readiness, checking the record store.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if err := h.store.Health(r.Context()); err != nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Record store unavailable")
		return
	}
	rw.Success(map[string]string{"status": "ready"})
}

// SyncRun triggers a sync pass. The scheduler principal runs the oldest-first
// batch, or a single user when ?user=<id> is given. Session users may only
// trigger a sync of their own record. Batch outcomes map onto HTTP as
// success 200, partial 207, failed 502, with the result payload in all three.
func (h *Handler) SyncRun(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	target := r.URL.Query().Get("user")

	if IsCronPrincipal(r.Context()) {
		if target == "" {
			h.runBatch(rw, r)
			return
		}
		targetID, err := uuid.Parse(target)
		if err != nil {
			rw.Error(http.StatusBadRequest, ErrCodeBadRequest, "Invalid user id")
			return
		}
		h.runUser(rw, r, targetID)
		return
	}

	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		rw.Unauthorized("No authenticated user")
		return
	}
	if target != "" && target != userID.String() {
		rw.Forbidden("Cannot trigger a sync for another user")
		return
	}
	h.runUser(rw, r, userID)
}

func (h *Handler) runBatch(rw *ResponseWriter, r *http.Request) {
	result, err := h.runner.RunBatch(r.Context())
	if err != nil {
		var openErr *syncengine.OpenError
		if errors.As(err, &openErr) {
			rw.CircuitOpen(openErr.RetryAfter)
			return
		}
		rw.DatabaseError(err)
		return
	}

	switch result.Status {
	case models.BatchSuccess:
		rw.Success(result)
	case models.BatchPartial:
		rw.SuccessWithStatus(http.StatusMultiStatus, result)
	default:
		rw.ErrorWithDetails(http.StatusBadGateway, ErrCodeExternalServiceFail,
			"Every user in the batch failed to sync", result)
	}
}

func (h *Handler) runUser(rw *ResponseWriter, r *http.Request, userID uuid.UUID) {
	result, err := h.runner.RunUser(r.Context(), userID)
	if err != nil {
		h.writePortalError(rw, err)
		return
	}
	rw.Success(result)
}

// BreakerReset manually closes the portal circuit breaker.
func (h *Handler) BreakerReset(w http.ResponseWriter, r *http.Request) {
	h.breaker.Reset()
	NewResponseWriter(w, r).Success(map[string]string{"breaker": "closed"})
}

// AttendanceSummary returns live aggregated attendance statistics for the
// authenticated user.
func (h *Handler) AttendanceSummary(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		rw.Unauthorized("No authenticated user")
		return
	}

	stats, err := h.runner.Summary(r.Context(), userID)
	if err != nil {
		h.writePortalError(rw, err)
		return
	}
	rw.Success(stats)
}

// projection is the payload of the attendance projection endpoint.
type projection struct {
	Target     float64 `json:"target"`
	Present    int     `json:"present"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
	// MustAttend is the number of upcoming classes required to reach the
	// target; -1 means the target is unreachable.
	MustAttend int `json:"must_attend"`
	// CanSkip is the number of upcoming classes skippable while staying at
	// the target; -1 means unbounded.
	CanSkip int `json:"can_skip"`
}

// AttendanceProjection answers "how many classes must I attend (or can I
// skip) to stay at the target percentage".
func (h *Handler) AttendanceProjection(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		rw.Unauthorized("No authenticated user")
		return
	}

	target := defaultProjectionTarget
	if raw := r.URL.Query().Get("target"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 || parsed > 100 {
			rw.BadRequest("target must be a percentage in (0, 100]")
			return
		}
		target = parsed
	}

	stats, err := h.runner.Summary(r.Context(), userID)
	if err != nil {
		h.writePortalError(rw, err)
		return
	}

	rw.Success(projection{
		Target:     target,
		Present:    stats.FinalPresent,
		Total:      stats.FinalTotal,
		Percentage: stats.FinalPercent,
		MustAttend: reconcile.MustAttend(stats.FinalPresent, stats.FinalTotal, target),
		CanSkip:    reconcile.CanSkip(stats.FinalPresent, stats.FinalTotal, target),
	})
}

// createEntryRequest is the payload for tracking a new attendance claim.
type createEntryRequest struct {
	CourseID       int    `json:"course_id" validate:"required,gt=0"`
	CourseName     string `json:"course_name" validate:"max=200"`
	Date           string `json:"date" validate:"required"`
	Session        string `json:"session" validate:"required"`
	AttendanceCode int    `json:"attendance_code" validate:"required"`
	Kind           string `json:"kind" validate:"required,oneof=extra correction"`
}

// CreateEntry stores a new tracked entry for the authenticated user. The
// date and session must normalize to a valid slot key; unparseable input is
// rejected rather than stored and guessed at later.
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		rw.Unauthorized("No authenticated user")
		return
	}

	var req createEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("Invalid JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		rw.ValidationError("Invalid entry", err.Error())
		return
	}
	if !models.AttendanceCode(req.AttendanceCode).Valid() {
		rw.ValidationError("Invalid entry", "attendance_code is not a known status code")
		return
	}
	if _, err := slotkey.Key(req.CourseID, req.Date, req.Session); err != nil {
		rw.ValidationError("Invalid entry", err.Error())
		return
	}

	entry := &models.TrackedEntry{
		UserID:         userID,
		CourseID:       req.CourseID,
		CourseName:     req.CourseName,
		Date:           req.Date,
		Session:        req.Session,
		AttendanceCode: models.AttendanceCode(req.AttendanceCode),
		Kind:           models.EntryKind(req.Kind),
	}
	if err := h.store.InsertEntry(r.Context(), entry); err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Created(entry)
}

// ListEntries returns the authenticated user's tracked entries.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		rw.Unauthorized("No authenticated user")
		return
	}

	entries, err := h.store.TrackedEntries(r.Context(), userID)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if entries == nil {
		entries = []models.TrackedEntry{}
	}
	rw.Success(entries)
}

// GetEntry returns one tracked entry owned by the authenticated user.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		rw.Unauthorized("No authenticated user")
		return
	}
	entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		rw.BadRequest("Invalid entry ID")
		return
	}

	entry, err := h.store.GetEntry(r.Context(), userID, entryID)
	if err != nil {
		if errors.Is(err, database.ErrEntryNotFound) {
			rw.NotFound("Entry not found")
			return
		}
		rw.DatabaseError(err)
		return
	}
	rw.Success(entry)
}

// DeleteEntry removes one tracked entry owned by the authenticated user.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		rw.Unauthorized("No authenticated user")
		return
	}
	entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		rw.BadRequest("Invalid entry ID")
		return
	}

	if err := h.store.DeleteEntry(r.Context(), userID, entryID); err != nil {
		if errors.Is(err, database.ErrEntryNotFound) {
			rw.NotFound("Entry not found")
			return
		}
		rw.DatabaseError(err)
		return
	}
	rw.NoContent()
}

// ListNotifications returns the authenticated user's notifications.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		rw.Unauthorized("No authenticated user")
		return
	}

	q := database.NotificationQuery{Limit: 50, Topic: r.URL.Query().Get("topic")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			rw.BadRequest("limit must be in [1, 500]")
			return
		}
		q.Limit = parsed
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			rw.BadRequest("since must be an RFC 3339 timestamp")
			return
		}
		q.Since = since
	}

	notifications, err := h.store.ListNotifications(r.Context(), userID, q)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	rw.Success(notifications)
}

// writePortalError maps portal pipeline failures onto HTTP statuses.
func (h *Handler) writePortalError(rw *ResponseWriter, err error) {
	var openErr *syncengine.OpenError
	if errors.As(err, &openErr) {
		rw.CircuitOpen(openErr.RetryAfter)
		return
	}
	var clientErr *syncengine.ClientError
	if errors.As(err, &clientErr) {
		rw.Conflict("Attendance portal rejected the stored credential; re-link your account")
		return
	}
	if errors.Is(err, database.ErrUserNotFound) {
		rw.NotFound("User not found")
		return
	}
	rw.ExternalServiceError("attendance portal", err)
}
