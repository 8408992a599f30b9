// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package api

import (
	"context"
	"net/http"
	"time"
)

const readinessTimeout = 2 * time.Second

// HealthStatus is the readiness payload.
type HealthStatus struct {
	Status          string `json:"status"` // "healthy" or "degraded"
	DetectionActive bool   `json:"detection_active"`
	Database        string `json:"database"`         // "ok", "error" or "disabled"
	PlatformBreaker string `json:"platform_breaker"` // gobreaker state
}

// Live handles GET /healthz. It only proves the process is serving.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// Ready handles GET /readyz. An open platform breaker or an unreachable
// database reports 503 so orchestrators stop routing HTTP intake here.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := HealthStatus{
		Status:          "healthy",
		Database:        "disabled",
		PlatformBreaker: "unknown",
	}
	if h.deps.Engine != nil {
		status.DetectionActive = h.deps.Engine.Enabled()
	}
	if h.deps.Database != nil {
		status.Database = "ok"
		if err := h.deps.Database.Ping(ctx); err != nil {
			status.Database = "error"
			status.Status = "degraded"
		}
	}
	if h.deps.Platform != nil {
		status.PlatformBreaker = h.deps.Platform.State()
		if status.PlatformBreaker == "open" {
			status.Status = "degraded"
		}
	}

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	respondData(w, code, status, start)
}

// EngineStats handles GET /api/v1/engine/stats.
func (h *Handler) EngineStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.deps.Engine == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Detection engine not configured", nil)
		return
	}
	respondData(w, http.StatusOK, h.deps.Engine.Stats(), start)
}
