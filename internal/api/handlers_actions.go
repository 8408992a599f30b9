// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package api

import (
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/burstguard/internal/logging"
	"github.com/tomtom215/burstguard/internal/metrics"
	"github.com/tomtom215/burstguard/internal/models"
	"github.com/tomtom215/burstguard/internal/validation"
)

const (
	sourceHTTP      = "http"
	maxActionBodyKB = 64
)

// ActionAccepted is returned once a message has been queued for detection.
type ActionAccepted struct {
	ID      models.ActionID `json:"id"`
	ScopeID string          `json:"scope_id"`
}

// PostAction handles POST /api/v1/actions. It is the HTTP counterpart of the
// NATS intake for gateways that can't publish to the bus.
func (h *Handler) PostAction(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.deps.Engine == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Detection engine not configured", nil)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxActionBodyKB<<10))
	if err != nil {
		metrics.IntakeMessages.WithLabelValues(sourceHTTP, "parse_failed").Inc()
		respondError(w, r, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "Request body too large", nil)
		return
	}

	var msg models.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		metrics.IntakeMessages.WithLabelValues(sourceHTTP, "parse_failed").Inc()
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body", nil)
		return
	}
	if verr := validation.ValidateStruct(&msg); verr != nil {
		metrics.IntakeMessages.WithLabelValues(sourceHTTP, "invalid").Inc()
		respondValidationError(w, verr)
		return
	}

	ctx := logging.ContextWithScope(r.Context(), msg.ScopeID)
	if err := h.deps.Engine.ProcessMessage(ctx, &msg); err != nil {
		metrics.IntakeMessages.WithLabelValues(sourceHTTP, "failed").Inc()
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to process message", err)
		return
	}
	metrics.IntakeMessages.WithLabelValues(sourceHTTP, "processed").Inc()

	respondData(w, http.StatusAccepted, ActionAccepted{ID: msg.ID, ScopeID: msg.ScopeID}, start)
}
