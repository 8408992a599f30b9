// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got '%s'", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("expected default format 'json', got '%s'", cfg.Format)
	}
	if !cfg.Timestamp {
		t.Error("expected default timestamp to be true")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
		{"invalid", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestValidLevel(t *testing.T) {
	t.Parallel()

	if !ValidLevel("Warn") {
		t.Error("expected Warn to be valid")
	}
	if ValidLevel("loud") {
		t.Error("expected loud to be invalid")
	}
}

func TestCtxAddsCorrelationAndScope(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := ContextWithLogger(context.Background(), NewTestLogger(&buf))
	ctx = ContextWithCorrelationID(ctx, "abc12345")
	ctx = ContextWithScope(ctx, "guild-1")

	Ctx(ctx).Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"correlation_id":"abc12345"`) {
		t.Errorf("missing correlation_id: %s", out)
	}
	if !strings.Contains(out, `"scope_id":"guild-1"`) {
		t.Errorf("missing scope_id: %s", out)
	}
}

func TestWithComponentTagsGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(DefaultConfig()) })

	WithComponent("scopequeue").Info().Msg("worker retired")
	NewWatermillAdapter().Error("subscribe failed", errors.New("nats down"), nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"component":"scopequeue"`) {
		t.Errorf("missing component field: %s", lines[0])
	}
	if !strings.Contains(lines[1], `"component":"watermill"`) || !strings.Contains(lines[1], `"error":"nats down"`) {
		t.Errorf("watermill adapter line = %s", lines[1])
	}
}

func TestSlogHandlerAttrsBeforeGroupStayTopLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	slog.New(NewSlogHandlerWithLogger(NewTestLogger(&buf))).
		With("supervisor", "burstguard").
		WithGroup("event").
		Warn("service failed", "service", "detection-engine")

	out := buf.String()
	if !strings.Contains(out, `"supervisor":"burstguard"`) {
		t.Errorf("pre-group attr was prefixed: %s", out)
	}
	if !strings.Contains(out, `"event.service":"detection-engine"`) {
		t.Errorf("missing grouped attr: %s", out)
	}
}

func TestSlogHandlerWritesThroughZerolog(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := NewSlogHandlerWithLogger(NewTestLogger(&buf))

	slog.New(h).With("service", "engine").Error("worker failed")
	slog.New(h).WithGroup("queue").Info("drained", "depth", 3)

	out := buf.String()
	if !strings.Contains(out, `"service":"engine"`) {
		t.Errorf("missing attr: %s", out)
	}
	if !strings.Contains(out, `"queue.depth":3`) {
		t.Errorf("missing grouped attr: %s", out)
	}
	if !strings.Contains(out, `"level":"error"`) || !strings.Contains(out, `"level":"info"`) {
		t.Errorf("wrong level: %s", out)
	}
}

func TestWatermillAdapter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	a := NewWatermillAdapterWithLogger(NewTestLogger(&buf)).With(watermill.LogFields{"topic": "actions"})

	a.Error("handler failed", errors.New("boom"), watermill.LogFields{"uuid": "m1"})

	out := buf.String()
	for _, want := range []string{`"topic":"actions"`, `"uuid":"m1"`, `"error":"boom"`, "handler failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}
