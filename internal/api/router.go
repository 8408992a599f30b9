// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/burstguard/internal/archive"
	"github.com/tomtom215/burstguard/internal/audit"
	"github.com/tomtom215/burstguard/internal/auth"
	"github.com/tomtom215/burstguard/internal/detection"
	"github.com/tomtom215/burstguard/internal/incident"
	"github.com/tomtom215/burstguard/internal/middleware"
	"github.com/tomtom215/burstguard/internal/models"
)

// Engine is the subset of detection.Engine the API uses.
type Engine interface {
	ProcessMessage(ctx context.Context, msg *models.Message) error
	Stats() detection.EngineStats
	Enabled() bool
}

// ArchiveReader loads stored archives.
type ArchiveReader interface {
	Get(ctx context.Context, id string) (*archive.Archive, error)
}

// Pinger checks a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerState reports the platform circuit breaker state.
type BreakerState interface {
	State() string
}

// Dependencies are the components served by the router. Audit, Database and
// Platform may be nil.
type Dependencies struct {
	Engine    Engine
	Incidents incident.Store
	Archives  ArchiveReader
	Audit     audit.Store
	Database  Pinger
	Platform  BreakerState
	// Feed serves the live moderation websocket. Nil disables the route.
	Feed http.Handler
}

// Config holds router settings.
type Config struct {
	// Tokens verifies bearer tokens on /api/v1. Nil rejects every request
	// under /api/v1.
	Tokens *auth.TokenManager

	// IntakeRateLimit caps POST /api/v1/actions per client IP per minute.
	// Zero disables the limit.
	IntakeRateLimit int
}

// Handler holds the dependencies shared by all routes.
type Handler struct {
	deps Dependencies
}

// NewRouter builds the HTTP handler.
func NewRouter(deps Dependencies, cfg Config) http.Handler {
	h := &Handler{deps: deps}
	r := chi.NewRouter()

	r.Use(middleware.CorrelationID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)

	r.Get("/healthz", h.Live)
	r.Get("/readyz", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.With(chimiddleware.Compress(5, "text/plain", "application/json")).
		Get("/archives/{id}", h.GetArchive)

	// Archive links are unguessable, expiring ids handed to moderators, so
	// they stay outside the token check.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Require(cfg.Tokens, func(w http.ResponseWriter, r *http.Request, err error) {
			respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "Authentication required", nil)
		}))

		r.Get("/incidents", h.ListIncidents)
		r.Get("/incidents/{id}", h.GetIncident)

		r.Get("/audit/events", h.ListAuditEvents)
		r.Get("/audit/events/{id}", h.GetAuditEvent)

		r.Get("/engine/stats", h.EngineStats)

		if deps.Feed != nil {
			r.Handle("/feed", deps.Feed)
		}

		intake := r.With(chimiddleware.AllowContentType("application/json"))
		if cfg.IntakeRateLimit > 0 {
			intake = intake.With(httprate.Limit(
				cfg.IntakeRateLimit,
				time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					respondError(w, r, http.StatusTooManyRequests, ErrCodeTooManyRequests, "Rate limit exceeded", nil)
				}),
			))
		}
		intake.Post("/actions", h.PostAction)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Not found", nil)
	})
	return r
}
