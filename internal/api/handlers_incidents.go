// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/burstguard/internal/detection"
	"github.com/tomtom215/burstguard/internal/incident"
)

// ListIncidents handles GET /api/v1/incidents.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	limit, offset, err := parsePage(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	since, err := parseTimeParam(r, "since")
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}

	q := r.URL.Query()
	filter := incident.Filter{
		ScopeID:      q.Get("scope_id"),
		TargetUserID: q.Get("target_user_id"),
		Since:        since,
		Limit:        limit,
		Offset:       offset,
	}
	for _, k := range q["kind"] {
		kind := detection.IncidentKind(k)
		if kind != detection.IncidentNote && kind != detection.IncidentMute {
			respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "kind must be note or mute", nil)
			return
		}
		filter.Kinds = append(filter.Kinds, kind)
	}

	incidents, err := h.deps.Incidents.List(r.Context(), filter)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to list incidents", err)
		return
	}
	if incidents == nil {
		incidents = []incident.Incident{}
	}
	respondData(w, http.StatusOK, incidents, start)
}

// GetIncident handles GET /api/v1/incidents/{id}.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Incident id must be a positive integer", nil)
		return
	}

	inc, err := h.deps.Incidents.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, incident.ErrIncidentNotFound) {
			respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Incident not found", nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to load incident", err)
		return
	}
	respondData(w, http.StatusOK, inc, start)
}
