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

	"github.com/tomtom215/burstguard/internal/archive"
)

// GetArchive handles GET /archives/{id}. Moderators follow these links from
// incident notes, so the default rendering is a plain-text transcript;
// ?format=json returns the stored archive.
func (h *Handler) GetArchive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.deps.Archives == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Archives not configured", nil)
		return
	}

	arc, err := h.deps.Archives.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Archive not found or expired", nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternalError, "Failed to load archive", err)
		return
	}

	if r.URL.Query().Get("format") == "json" {
		respondData(w, http.StatusOK, arc, start)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "private, no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(arc.Text()))
}
