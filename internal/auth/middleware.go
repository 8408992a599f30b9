// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/tomtom215/burstguard/internal/logging"
)

// TokenCookie is read when no Authorization header is present, so browser
// websocket clients can authenticate the feed.
const TokenCookie = "burstguard_token"

type claimsKey struct{}

// ClaimsFromContext returns the claims stored by Require.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// DenyFunc writes the rejection response.
type DenyFunc func(w http.ResponseWriter, r *http.Request, err error)

// Require rejects requests without a valid bearer token. A nil manager
// rejects everything.
func Require(m *TokenManager, deny DenyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" || m == nil {
				reject(w, r, deny, ErrNoCredentials)
				return
			}
			claims, err := m.Validate(token)
			if err != nil {
				reject(w, r, deny, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, deny DenyFunc, err error) {
	logging.Ctx(r.Context()).Debug().Err(err).Str("path", r.URL.Path).Msg("Request rejected by auth")
	w.Header().Set("WWW-Authenticate", `Bearer realm="burstguard"`)
	deny(w, r, err)
}

func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value
	}
	return ""
}
