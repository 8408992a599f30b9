// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tomtom215/burstguard/internal/logging"
)

// HeaderCorrelationID carries the correlation id in requests and responses.
const HeaderCorrelationID = "X-Correlation-ID"

// maxCorrelationIDLen bounds caller-supplied ids before they reach the logs.
const maxCorrelationIDLen = 128

// CorrelationID reuses a caller-supplied X-Correlation-ID (or X-Request-ID
// from an upstream proxy) or generates a new UUID, echoes it in the
// response, and stores it in the request context for logging.Ctx.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := sanitizeID(r.Header.Get(HeaderCorrelationID))
		if id == "" {
			id = sanitizeID(r.Header.Get("X-Request-ID"))
		}
		if id == "" {
			id = uuid.New().String()
		}

		w.Header().Set(HeaderCorrelationID, id)
		ctx := logging.ContextWithCorrelationID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sanitizeID drops ids that are too long or contain characters outside
// a conservative token alphabet.
func sanitizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxCorrelationIDLen {
		return ""
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return ""
		}
	}
	return id
}
