// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewDiscordForwarder_DefaultRateLimit(t *testing.T) {
	f := NewDiscordForwarder(DiscordConfig{WebhookURL: "https://discord.test/hook", Enabled: true})
	if f.rateLimit != time.Second {
		t.Errorf("rateLimit = %v, want 1s", f.rateLimit)
	}
	if f.Name() != "discord" {
		t.Errorf("Name() = %q", f.Name())
	}
}

func TestDiscordForwarder_Enabled(t *testing.T) {
	tests := []struct {
		name     string
		config   DiscordConfig
		expected bool
	}{
		{"enabled with URL", DiscordConfig{WebhookURL: "https://discord.test/hook", Enabled: true}, true},
		{"disabled", DiscordConfig{WebhookURL: "https://discord.test/hook"}, false},
		{"enabled but no URL", DiscordConfig{Enabled: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewDiscordForwarder(tt.config).Enabled(); got != tt.expected {
				t.Errorf("Enabled() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestDiscordForwarder_Forward(t *testing.T) {
	var received discordWebhookPayload
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	f := NewDiscordForwarder(DiscordConfig{WebhookURL: server.URL, Enabled: true, RateLimitMs: 1})
	event, err := FromDetection(spamEvent())
	if err != nil {
		t.Fatal(err)
	}

	if err := f.Forward(context.Background(), event); err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("webhook called %d times, want 1", calls.Load())
	}
	if len(received.Embeds) != 1 {
		t.Fatalf("got %d embeds, want 1", len(received.Embeds))
	}

	embed := received.Embeds[0]
	if embed.Title != "Spam detected" {
		t.Errorf("Title = %q", embed.Title)
	}
	if embed.Color != 0xFFA500 {
		t.Errorf("Color = %#x, want warning orange", embed.Color)
	}
	fields := map[string]string{}
	for _, field := range embed.Fields {
		fields[field.Name] = field.Value
	}
	if fields["Channel"] != "<#c1>" {
		t.Errorf("Channel field = %q", fields["Channel"])
	}
	if fields["Count"] != "6 (over 5 in 10s)" {
		t.Errorf("Count field = %q", fields["Count"])
	}
	if fields["Incident"] != "#42" {
		t.Errorf("Incident field = %q", fields["Incident"])
	}
	if fields["Muted"] != "true" {
		t.Errorf("Muted field = %q", fields["Muted"])
	}
}

func TestDiscordForwarder_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	f := NewDiscordForwarder(DiscordConfig{WebhookURL: server.URL, Enabled: true, RateLimitMs: 1})
	if err := f.Forward(context.Background(), &Event{Type: EventTypeSpamDetected}); err == nil {
		t.Error("expected error for 429 response")
	}
}

func TestDiscordForwarder_DisabledIsNoop(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	f := NewDiscordForwarder(DiscordConfig{WebhookURL: server.URL})
	if err := f.Forward(context.Background(), &Event{}); err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if calls.Load() != 0 {
		t.Error("disabled forwarder should not call webhook")
	}
}

func TestDiscordForwarder_RateLimitHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	f := NewDiscordForwarder(DiscordConfig{WebhookURL: server.URL, Enabled: true, RateLimitMs: 60000})
	if err := f.Forward(context.Background(), &Event{}); err != nil {
		t.Fatalf("first Forward failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := f.Forward(ctx, &Event{}); err == nil {
		t.Error("second Forward should fail on context deadline while rate limited")
	}
}
