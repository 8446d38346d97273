// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/devakesu/bunkr/internal/auth"
	"github.com/devakesu/bunkr/internal/config"
	"github.com/devakesu/bunkr/internal/database"
	"github.com/devakesu/bunkr/internal/models"
	"github.com/devakesu/bunkr/internal/reconcile"
	syncengine "github.com/devakesu/bunkr/internal/sync"
)

const (
	testJWTSecret  = "0123456789abcdef0123456789abcdef"
	testCronSecret = "automation-secret-0123456789"
)

type fakeStore struct {
	entries       map[uuid.UUID][]models.TrackedEntry
	notifications map[uuid.UUID][]models.Notification
	healthErr     error
	insertErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries:       make(map[uuid.UUID][]models.TrackedEntry),
		notifications: make(map[uuid.UUID][]models.Notification),
	}
}

func (s *fakeStore) TrackedEntries(_ context.Context, userID uuid.UUID) ([]models.TrackedEntry, error) {
	return s.entries[userID], nil
}

func (s *fakeStore) InsertEntry(_ context.Context, entry *models.TrackedEntry) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	s.entries[entry.UserID] = append(s.entries[entry.UserID], *entry)
	return nil
}

func (s *fakeStore) GetEntry(_ context.Context, userID, entryID uuid.UUID) (*models.TrackedEntry, error) {
	for _, entry := range s.entries[userID] {
		if entry.ID == entryID {
			found := entry
			return &found, nil
		}
	}
	return nil, database.ErrEntryNotFound
}

func (s *fakeStore) DeleteEntry(_ context.Context, userID, entryID uuid.UUID) error {
	for i, entry := range s.entries[userID] {
		if entry.ID == entryID {
			s.entries[userID] = append(s.entries[userID][:i], s.entries[userID][i+1:]...)
			return nil
		}
	}
	return database.ErrEntryNotFound
}

func (s *fakeStore) ListNotifications(_ context.Context, userID uuid.UUID, q database.NotificationQuery) ([]models.Notification, error) {
	var list []models.Notification
	for _, n := range s.notifications[userID] {
		if q.Topic != "" && n.Topic != q.Topic {
			continue
		}
		list = append(list, n)
	}
	if len(list) > q.Limit {
		list = list[:q.Limit]
	}
	return list, nil
}

func (s *fakeStore) Health(context.Context) error {
	return s.healthErr
}

type fakeRunner struct {
	result     *models.BatchResult
	runErr     error
	userResult *models.BatchResult
	userErr    error
	lastUser   uuid.UUID
	stats      *reconcile.Stats
	summaryErr error
}

func (r *fakeRunner) RunBatch(context.Context) (*models.BatchResult, error) {
	if r.runErr != nil {
		return nil, r.runErr
	}
	return r.result, nil
}

func (r *fakeRunner) RunUser(_ context.Context, userID uuid.UUID) (*models.BatchResult, error) {
	r.lastUser = userID
	if r.userErr != nil {
		return nil, r.userErr
	}
	return r.userResult, nil
}

func (r *fakeRunner) Summary(context.Context, uuid.UUID) (*reconcile.Stats, error) {
	if r.summaryErr != nil {
		return nil, r.summaryErr
	}
	return r.stats, nil
}

// envelope mirrors APIResponse for decoding in assertions.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestServer(t *testing.T, store *fakeStore, runner *fakeRunner) (*httptest.Server, *auth.JWTManager) {
	t.Helper()

	breaker := syncengine.NewBreaker("api-test-"+uuid.NewString(), config.BreakerConfig{
		FailureThreshold: 3,
		Cooldown:         time.Minute,
		HalfOpenProbes:   1,
	})
	jwtManager := auth.NewJWTManager(testJWTSecret, time.Hour)
	handler := NewHandler(store, runner, breaker)
	router := NewRouter(handler, NewAuthMiddleware(jwtManager, testCronSecret), &config.SecurityConfig{
		RateLimitReqs:   1000,
		RateLimitWindow: time.Minute,
		CORSOrigins:     []string{"*"},
	})

	server := httptest.NewServer(router.Setup())
	t.Cleanup(server.Close)
	return server, jwtManager
}

func doRequest(t *testing.T, method, url, token string, body []byte) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return env
}

func userToken(t *testing.T, jwtManager *auth.JWTManager, userID uuid.UUID) string {
	t.Helper()

	token, err := jwtManager.GenerateToken(userID, "student@example.com")
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}
	return token
}

func TestHealthEndpoints(t *testing.T) {
	store := newFakeStore()
	server, _ := newTestServer(t, store, &fakeRunner{})

	resp := doRequest(t, http.MethodGet, server.URL+"/api/v1/health/live", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("live status = %d, want 200", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, server.URL+"/api/v1/health/ready", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready status = %d, want 200", resp.StatusCode)
	}

	store.healthErr = context.DeadlineExceeded
	resp = doRequest(t, http.MethodGet, server.URL+"/api/v1/health/ready", "", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("ready status with down store = %d, want 503", resp.StatusCode)
	}
}

func TestSyncRunRequiresCredential(t *testing.T) {
	server, _ := newTestServer(t, newFakeStore(), &fakeRunner{})

	resp := doRequest(t, http.MethodGet, server.URL+"/api/v1/sync/run", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without credential = %d, want 401", resp.StatusCode)
	}

	// A token that is neither the cron secret nor a valid JWT.
	resp = doRequest(t, http.MethodGet, server.URL+"/api/v1/sync/run", "wrong-secret", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status with bad credential = %d, want 401", resp.StatusCode)
	}
}

func TestSyncRunOutcomeStatuses(t *testing.T) {
	tests := []struct {
		name       string
		status     models.BatchStatus
		wantStatus int
	}{
		{"all users synced", models.BatchSuccess, http.StatusOK},
		{"some users failed", models.BatchPartial, http.StatusMultiStatus},
		{"every user failed", models.BatchFailed, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{result: &models.BatchResult{Status: tt.status, Users: 3}}
			server, _ := newTestServer(t, newFakeStore(), runner)

			resp := doRequest(t, http.MethodGet, server.URL+"/api/v1/sync/run", testCronSecret, nil)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestSyncRunCircuitOpen(t *testing.T) {
	runner := &fakeRunner{runErr: &syncengine.OpenError{RetryAfter: 30 * time.Second}}
	server, _ := newTestServer(t, newFakeStore(), runner)

	resp := doRequest(t, http.MethodGet, server.URL+"/api/v1/sync/run", testCronSecret, nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if got := resp.Header.Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %q, want 30", got)
	}
	env := decodeEnvelope(t, resp)
	if env.Error == nil || env.Error.Code != ErrCodeCircuitOpen {
		t.Errorf("error envelope = %+v, want code %s", env.Error, ErrCodeCircuitOpen)
	}
}

func TestSyncRunTargetedUser(t *testing.T) {
	target := uuid.New()
	runner := &fakeRunner{userResult: &models.BatchResult{Status: models.BatchSuccess, Users: 1}}
	server, _ := newTestServer(t, newFakeStore(), runner)

	resp := doRequest(t, http.MethodGet, server.URL+"/api/v1/sync/run?user="+target.String(), testCronSecret, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if runner.lastUser != target {
		t.Errorf("synced user = %s, want %s", runner.lastUser, target)
	}

	resp = doRequest(t, http.MethodGet, server.URL+"/api/v1/sync/run?user=not-a-uuid", testCronSecret, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad user id status = %d, want 400", resp.StatusCode)
	}

	runner.userErr = database.ErrUserNotFound
	resp = doRequest(t, http.MethodGet, server.URL+"/api/v1/sync/run?user="+target.String(), testCronSecret, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown user status = %d, want 404", resp.StatusCode)
	}
}

func TestSyncRunSessionPrincipal(t *testing.T) {
	runner := &fakeRunner{userResult: &models.BatchResult{Status: models.BatchSuccess, Users: 1}}
	server, jwtManager := newTestServer(t, newFakeStore(), runner)
	userID := uuid.New()
	token := userToken(t, jwtManager, userID)

	resp := doRequest(t, http.MethodGet, server.URL+"/api/v1/sync/run", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if runner.lastUser != userID {
		t.Errorf("synced user = %s, want the session user %s", runner.lastUser, userID)
	}

	// A session user may name itself but nobody else.
	resp = doRequest(t, http.MethodGet, server.URL+"/api/v1/sync/run?user="+userID.String(), token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("self-targeted status = %d, want 200", resp.StatusCode)
	}
	resp = doRequest(t, http.MethodGet, server.URL+"/api/v1/sync/run?user="+uuid.NewString(), token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("cross-user status = %d, want 403", resp.StatusCode)
	}
}

func TestBreakerResetEndpoint(t *testing.T) {
	server, _ := newTestServer(t, newFakeStore(), &fakeRunner{})

	resp := doRequest(t, http.MethodPost, server.URL+"/api/v1/sync/breaker/reset", testCronSecret, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAttendanceSummary(t *testing.T) {
	runner := &fakeRunner{stats: &reconcile.Stats{FinalPresent: 30, FinalTotal: 40, FinalPercent: 75}}
	server, jwtManager := newTestServer(t, newFakeStore(), runner)

	resp := doRequest(t, http.MethodGet, server.URL+"/api/v1/attendance/summary", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", resp.StatusCode)
	}

	token := userToken(t, jwtManager, uuid.New())
	resp = doRequest(t, http.MethodGet, server.URL+"/api/v1/attendance/summary", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	env := decodeEnvelope(t, resp)
	var stats reconcile.Stats
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if stats.FinalPresent != 30 || stats.FinalTotal != 40 {
		t.Errorf("stats = %d/%d, want 30/40", stats.FinalPresent, stats.FinalTotal)
	}
}

func TestAttendanceSummaryCredentialRejected(t *testing.T) {
	runner := &fakeRunner{summaryErr: &syncengine.ClientError{StatusCode: http.StatusUnauthorized}}
	server, jwtManager := newTestServer(t, newFakeStore(), runner)

	token := userToken(t, jwtManager, uuid.New())
	resp := doRequest(t, http.MethodGet, server.URL+"/api/v1/attendance/summary", token, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestAttendanceProjection(t *testing.T) {
	runner := &fakeRunner{stats: &reconcile.Stats{FinalPresent: 30, FinalTotal: 40, FinalPercent: 75}}
	server, jwtManager := newTestServer(t, newFakeStore(), runner)
	token := userToken(t, jwtManager, uuid.New())

	resp := doRequest(t, http.MethodGet, server.URL+"/api/v1/attendance/projection?target=80", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	var proj projection
	if err := json.Unmarshal(env.Data, &proj); err != nil {
		t.Fatalf("decoding projection: %v", err)
	}
	if proj.MustAttend != 10 {
		t.Errorf("MustAttend = %d, want 10", proj.MustAttend)
	}
	if proj.CanSkip != 0 {
		t.Errorf("CanSkip = %d, want 0", proj.CanSkip)
	}

	for _, target := range []string{"0", "-5", "101", "abc"} {
		resp := doRequest(t, http.MethodGet, server.URL+"/api/v1/attendance/projection?target="+target, token, nil)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("target=%s status = %d, want 400", target, resp.StatusCode)
		}
	}
}

func TestCreateEntry(t *testing.T) {
	store := newFakeStore()
	server, jwtManager := newTestServer(t, store, &fakeRunner{})
	userID := uuid.New()
	token := userToken(t, jwtManager, userID)
	url := server.URL + "/api/v1/entries/"

	body, _ := json.Marshal(createEntryRequest{
		CourseID:       42,
		CourseName:     "Signals and Systems",
		Date:           "2026-08-14",
		Session:        "III",
		AttendanceCode: int(models.Present),
		Kind:           "extra",
	})
	resp := doRequest(t, http.MethodPost, url, token, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if len(store.entries[userID]) != 1 {
		t.Fatalf("stored entries = %d, want 1", len(store.entries[userID]))
	}
	if store.entries[userID][0].Kind != models.KindExtra {
		t.Errorf("kind = %s, want extra", store.entries[userID][0].Kind)
	}
}

func TestCreateEntryRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"course_id": `},
		{"missing course", `{"date":"2026-08-14","session":"III","attendance_code":110,"kind":"extra"}`},
		{"unknown kind", `{"course_id":42,"date":"2026-08-14","session":"III","attendance_code":110,"kind":"guess"}`},
		{"unknown code", `{"course_id":42,"date":"2026-08-14","session":"III","attendance_code":999,"kind":"extra"}`},
		{"bad date", `{"course_id":42,"date":"2026-13-01","session":"III","attendance_code":110,"kind":"extra"}`},
		{"empty session", `{"course_id":42,"date":"2026-08-14","session":"","attendance_code":110,"kind":"extra"}`},
	}

	server, jwtManager := newTestServer(t, newFakeStore(), &fakeRunner{})
	token := userToken(t, jwtManager, uuid.New())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodPost, server.URL+"/api/v1/entries/", token, []byte(tt.body))
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestEntryOwnershipAndLifecycle(t *testing.T) {
	store := newFakeStore()
	server, jwtManager := newTestServer(t, store, &fakeRunner{})
	userID := uuid.New()
	token := userToken(t, jwtManager, userID)

	entry := models.TrackedEntry{
		ID:             uuid.New(),
		UserID:         userID,
		CourseID:       7,
		Date:           "2026-08-10",
		Session:        "I",
		AttendanceCode: models.Absent,
		Kind:           models.KindExtra,
	}
	store.entries[userID] = []models.TrackedEntry{entry}

	resp := doRequest(t, http.MethodGet, server.URL+"/api/v1/entries/", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d, want 200", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, server.URL+"/api/v1/entries/"+entry.ID.String(), token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("get status = %d, want 200", resp.StatusCode)
	}

	// Another user's token must not see or delete the entry.
	otherToken := userToken(t, jwtManager, uuid.New())
	resp = doRequest(t, http.MethodGet, server.URL+"/api/v1/entries/"+entry.ID.String(), otherToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("cross-user get status = %d, want 404", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodDelete, server.URL+"/api/v1/entries/not-a-uuid", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id delete status = %d, want 400", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodDelete, server.URL+"/api/v1/entries/"+entry.ID.String(), token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", resp.StatusCode)
	}
	if len(store.entries[userID]) != 0 {
		t.Errorf("entries after delete = %d, want 0", len(store.entries[userID]))
	}
}

func TestListNotifications(t *testing.T) {
	store := newFakeStore()
	server, jwtManager := newTestServer(t, store, &fakeRunner{})
	userID := uuid.New()
	token := userToken(t, jwtManager, userID)

	store.notifications[userID] = []models.Notification{
		{ID: uuid.New(), UserID: userID, Title: "Attendance updated", Topic: models.TopicAttendanceUpdate},
		{ID: uuid.New(), UserID: userID, Title: "Absence disputed", Topic: models.TopicConflict},
	}

	resp := doRequest(t, http.MethodGet, server.URL+"/api/v1/notifications", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	var list []models.Notification
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decoding notifications: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("notifications = %d, want 2", len(list))
	}

	resp = doRequest(t, http.MethodGet, server.URL+"/api/v1/notifications?topic="+models.TopicConflict, token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("topic filter status = %d, want 200", resp.StatusCode)
	}
	env = decodeEnvelope(t, resp)
	list = nil
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decoding notifications: %v", err)
	}
	if len(list) != 1 || list[0].Topic != models.TopicConflict {
		t.Errorf("topic filter = %+v, want the conflict notification only", list)
	}

	resp = doRequest(t, http.MethodGet, server.URL+"/api/v1/notifications?limit=0", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want 400", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, server.URL+"/api/v1/notifications?since=yesterday", token, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad since status = %d, want 400", resp.StatusCode)
	}
}
