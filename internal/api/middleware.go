// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/devakesu/bunkr/internal/auth"
	"github.com/devakesu/bunkr/internal/logging"
	"github.com/devakesu/bunkr/internal/metrics"
)

type authContextKey string

// userIDKey carries the authenticated user's ID through the request context.
const userIDKey authContextKey = "user_id"

// cronPrincipalKey marks requests authenticated with the automation secret.
const cronPrincipalKey authContextKey = "cron_principal"

// UserIDFromContext returns the authenticated user ID, if any.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

// IsCronPrincipal reports whether the request was authenticated with the
// automation secret rather than a user session.
func IsCronPrincipal(ctx context.Context) bool {
	is, ok := ctx.Value(cronPrincipalKey).(bool)
	return ok && is
}

// RequestIDWithLogging tags every request with an X-Request-ID header and
// puts the ID into the logging context.
func RequestIDWithLogging() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = logging.GenerateRequestID()
			}
			w.Header().Set("X-Request-ID", requestID)

			ctx := logging.ContextWithRequestID(r.Context(), requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrometheusMetrics records request counts and latency per route pattern.
func PrometheusMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		// The route pattern is only known after routing, so read it on
		// the way out. Patterns keep the label cardinality bounded where
		// raw paths would not.
		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		metrics.APIRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(ww.Status())).Inc()
		metrics.APIRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// AuthMiddleware validates session tokens and the automation secret.
type AuthMiddleware struct {
	jwt        *auth.JWTManager
	cronSecret string
}

// NewAuthMiddleware builds the auth middleware.
func NewAuthMiddleware(jwt *auth.JWTManager, cronSecret string) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt, cronSecret: cronSecret}
}

// Authenticate requires a valid session token and injects the user ID into
// the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			NewResponseWriter(w, r).Unauthorized("Missing bearer token")
			return
		}

		claims, err := m.jwt.ValidateToken(token)
		if err != nil {
			NewResponseWriter(w, r).Unauthorized("Invalid or expired session")
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			NewResponseWriter(w, r).Unauthorized("Invalid session subject")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CronAuth requires the shared automation secret. Used by the sync trigger
// endpoint, which is called by an external scheduler rather than end users.
func (m *AuthMiddleware) CronAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(m.cronSecret)) != 1 {
			NewResponseWriter(w, r).Unauthorized("Invalid automation secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AuthenticateAny accepts either principal: the automation secret marks the
// request as the cron principal, anything else must be a valid session
// token. Used by the sync trigger, which both the scheduler and end users
// may call.
func (m *AuthMiddleware) AuthenticateAny(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			NewResponseWriter(w, r).Unauthorized("Missing bearer token")
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(m.cronSecret)) == 1 {
			ctx := context.WithValue(r.Context(), cronPrincipalKey, true)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		claims, err := m.jwt.ValidateToken(token)
		if err != nil {
			NewResponseWriter(w, r).Unauthorized("Invalid or expired session")
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			NewResponseWriter(w, r).Unauthorized("Invalid session subject")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// CORS builds the CORS middleware from the configured origins.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
}

// RateLimit limits requests per client IP.
func RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			NewResponseWriter(w, r).Error(http.StatusTooManyRequests,
				ErrCodeTooManyRequests, "Rate limit exceeded")
		}),
	)
}
