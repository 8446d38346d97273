// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devakesu/bunkr/internal/config"
)

// Router assembles the HTTP surface of the service.
type Router struct {
	handler *Handler
	auth    *AuthMiddleware
	cfg     *config.SecurityConfig
}

// NewRouter creates a router over the given handler set.
func NewRouter(handler *Handler, auth *AuthMiddleware, cfg *config.SecurityConfig) *Router {
	return &Router{handler: handler, auth: auth, cfg: cfg}
}

// Setup builds the chi mux. Health and metrics sit outside the rate limit
// so probes and scrapes never get throttled by API traffic.
func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(rt.cfg.CORSOrigins))
	r.Use(PrometheusMetrics)

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health/live", rt.handler.HealthLive)
		r.Get("/health/ready", rt.handler.HealthReady)

		// Sync trigger accepts either the scheduler secret or a user JWT.
		r.Group(func(r chi.Router) {
			r.Use(rt.auth.AuthenticateAny)
			r.Get("/sync/run", rt.handler.SyncRun)
		})

		// Breaker reset is scheduler-only.
		r.Group(func(r chi.Router) {
			r.Use(rt.auth.CronAuth)
			r.Post("/sync/breaker/reset", rt.handler.BreakerReset)
		})

		// User-facing endpoints, authenticated by JWT.
		r.Group(func(r chi.Router) {
			r.Use(RateLimit(rt.cfg.RateLimitReqs, rt.cfg.RateLimitWindow))
			r.Use(rt.auth.Authenticate)

			r.Get("/attendance/summary", rt.handler.AttendanceSummary)
			r.Get("/attendance/projection", rt.handler.AttendanceProjection)

			r.Route("/entries", func(r chi.Router) {
				r.Get("/", rt.handler.ListEntries)
				r.Post("/", rt.handler.CreateEntry)
				r.Get("/{entryID}", rt.handler.GetEntry)
				r.Delete("/{entryID}", rt.handler.DeleteEntry)
			})

			r.Get("/notifications", rt.handler.ListNotifications)
		})
	})

	return r
}
