// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

package sync

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/devakesu/bunkr/internal/config"
	"github.com/devakesu/bunkr/internal/metrics"
	"github.com/devakesu/bunkr/internal/models/ezygo"
)

// maxErrorBodySize limits how much of an error response body is read for
// diagnostics.
const maxErrorBodySize = 64 * 1024

// PortalClient is the interface the orchestrator consumes. Implemented by
// EzygoClient in production and by mocks in tests.
//
// All methods are safe for concurrent use; the shared rate limiter and
// circuit breaker coordinate calls across user pipelines.
type PortalClient interface {
	Courses(ctx context.Context, token string) ([]ezygo.Course, error)
	AttendanceDetail(ctx context.Context, token string) (*ezygo.AttendanceDetail, error)
}

// EzygoClient talks to the external attendance portal. Every call passes
// through the shared circuit breaker; definitive 4xx rejections surface as
// *ClientError and do not trip it. 429 is the exception: load shedding is a
// portal-health signal and counts as a breaker failure.
type EzygoClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *Breaker
}

// NewEzygoClient builds a portal client sharing the given breaker.
func NewEzygoClient(cfg *config.PortalConfig, breaker *Breaker) *EzygoClient {
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &EzygoClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		breaker:    breaker,
	}
}

// Courses fetches the user's enrolled courses.
func (c *EzygoClient) Courses(ctx context.Context, token string) ([]ezygo.Course, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		var courses []ezygo.Course
		if err := c.do(ctx, http.MethodGet, "/institutionuser/courses/partially", token, nil, &courses); err != nil {
			return nil, err
		}
		return courses, nil
	})
	return castResult[[]ezygo.Course](result, err)
}

// AttendanceDetail fetches the full per-slot attendance report.
func (c *EzygoClient) AttendanceDetail(ctx context.Context, token string) (*ezygo.AttendanceDetail, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		detail := &ezygo.AttendanceDetail{}
		body := map[string]string{"year": ""}
		if err := c.do(ctx, http.MethodPost, "/attendancereports/student/detailed", token, body, detail); err != nil {
			return nil, err
		}
		return detail, nil
	})
	return castResult[*ezygo.AttendanceDetail](result, err)
}

// do executes one authenticated portal request and decodes the JSON response
// into out.
func (c *EzygoClient) do(ctx context.Context, method, path, token string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build portal request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ProviderRequestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("portal request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// 429 means the portal is shedding load; it counts as a breaker failure
	// like any 5xx rather than a definitive rejection.
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return &ClientError{
			StatusCode: resp.StatusCode,
			Body:       string(readBodyForError(resp.Body)),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("portal returned status %d: %s",
			resp.StatusCode, readBodyForError(resp.Body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode portal response: %w", err)
	}
	return nil
}

// readBodyForError reads a bounded prefix of an error response body.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	return body
}
