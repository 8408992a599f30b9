// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/burstguard/internal/audit"
)

// AuditPage is the payload of GET /api/v1/audit/events.
type AuditPage struct {
	Events []audit.Event `json:"events"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ListAuditEvents handles GET /api/v1/audit/events.
func (h *Handler) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.deps.Audit == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Audit trail disabled", nil)
		return
	}

	limit, offset, err := parsePage(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	startTime, err := parseTimeParam(r, "start_time")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	endTime, err := parseTimeParam(r, "end_time")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}

	q := r.URL.Query()
	filter := audit.QueryFilter{
		ScopeID:       q.Get("scope_id"),
		TargetID:      q.Get("target_id"),
		CorrelationID: q.Get("correlation_id"),
		StartTime:     startTime,
		EndTime:       endTime,
		Limit:         limit,
		Offset:        offset,
	}
	for _, t := range q["type"] {
		filter.Types = append(filter.Types, audit.EventType(t))
	}
	for _, s := range q["severity"] {
		filter.Severities = append(filter.Severities, audit.Severity(s))
	}

	events, err := h.deps.Audit.Query(r.Context(), filter)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to query audit events", err)
		return
	}
	total, err := h.deps.Audit.Count(r.Context(), filter)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to count audit events", err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}

	respondData(w, http.StatusOK, AuditPage{Events: events, Total: total, Limit: limit, Offset: offset}, start)
}

// GetAuditEvent handles GET /api/v1/audit/events/{id}.
func (h *Handler) GetAuditEvent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.deps.Audit == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Audit trail disabled", nil)
		return
	}

	event, err := h.deps.Audit.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, audit.ErrEventNotFound) {
			respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Audit event not found", nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to load audit event", err)
		return
	}
	respondData(w, http.StatusOK, event, start)
}
