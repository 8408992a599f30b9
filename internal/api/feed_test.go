// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"

	"github.com/tomtom215/burstguard/internal/audit"
	"github.com/tomtom215/burstguard/internal/websocket"
)

func TestFeedRoute(t *testing.T) {
	env := newTestEnv(t)
	hub := websocket.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Serve(ctx) }()

	env.deps.Feed = websocket.Handler(hub)
	srv := httptest.NewServer(NewRouter(env.deps, Config{Tokens: env.tokens}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/feed"
	_, resp, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dial without token: err = %v, resp = %v, want 401", err, resp)
	}

	conn, resp, err := gorillaws.DefaultDialer.Dial(wsURL, http.Header{"Authorization": {"Bearer " + env.token}})
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial through router: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ev := &audit.Event{ID: "evt-1", Type: audit.EventTypeSpamDetected, ScopeID: "guild-1"}
	if err := hub.Forward(context.Background(), ev); err != nil {
		t.Fatal(err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg struct {
		Type string `json:"type"`
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != websocket.MessageTypeAuditEvent || msg.Data.ID != "evt-1" {
		t.Errorf("message = %+v", msg)
	}
}

func TestFeedRouteDisabled(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, Config{}, http.MethodGet, "/api/v1/feed", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
