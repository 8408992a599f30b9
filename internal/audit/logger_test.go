// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/burstguard/internal/detection"
	"github.com/tomtom215/burstguard/internal/logging"
	"github.com/tomtom215/burstguard/internal/models"
)

func spamEvent() detection.AuditEvent {
	return detection.AuditEvent{
		Kind:               detection.AuditKindSpamDetected,
		ScopeID:            "g1",
		ActionType:         models.ActionMessage,
		Member:             models.Member{ID: "u1", Username: "spammer"},
		Channel:            models.Channel{ID: "c1", Name: "general"},
		Description:        "too many messages",
		Threshold:          5,
		IntervalSeconds:    10,
		ActionCount:        6,
		RestrictionApplied: true,
		IncidentID:         42,
		ArchiveURL:         "https://example.test/archives/abc",
		OccurredAt:         time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

type recordingForwarder struct {
	mu      sync.Mutex
	enabled bool
	events  []*Event
	err     error
}

func (f *recordingForwarder) Name() string  { return "recording" }
func (f *recordingForwarder) Enabled() bool { return f.enabled }

func (f *recordingForwarder) Forward(_ context.Context, event *Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return f.err
}

func (f *recordingForwarder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestFromDetection_SpamDetected(t *testing.T) {
	event, err := FromDetection(spamEvent())
	if err != nil {
		t.Fatalf("FromDetection failed: %v", err)
	}

	if event.Type != EventTypeSpamDetected {
		t.Errorf("Type = %q, want %q", event.Type, EventTypeSpamDetected)
	}
	if event.Severity != SeverityWarning || event.Outcome != OutcomeSuccess {
		t.Errorf("Severity/Outcome = %s/%s", event.Severity, event.Outcome)
	}
	if event.Target == nil || event.Target.ID != "u1" || event.Target.Type != "member" {
		t.Errorf("Target = %+v, want member u1", event.Target)
	}
	if event.Actor != SystemActor {
		t.Errorf("Actor = %+v, want system actor", event.Actor)
	}

	md := event.SpamMetadata()
	if md == nil {
		t.Fatal("expected spam metadata")
	}
	if md.Threshold != 5 || md.IntervalSeconds != 10 || md.ActionCount != 6 {
		t.Errorf("metadata counts = %+v", md)
	}
	if md.IncidentID != 42 || md.ArchiveURL == "" || !md.RestrictionApplied {
		t.Errorf("metadata mitigation = %+v", md)
	}
	if md.ChannelName != "general" {
		t.Errorf("ChannelName = %q, want general", md.ChannelName)
	}
}

func TestFromDetection_RemovalFailedTargetsChannel(t *testing.T) {
	ev := detection.AuditEvent{
		Kind:       detection.AuditKindRemovalFailed,
		ScopeID:    "g1",
		Channel:    models.Channel{ID: "c1", Name: "general"},
		Error:      "bulk delete: 500",
		OccurredAt: time.Now(),
	}

	event, err := FromDetection(ev)
	if err != nil {
		t.Fatalf("FromDetection failed: %v", err)
	}
	if event.Severity != SeverityError || event.Outcome != OutcomeFailure {
		t.Errorf("Severity/Outcome = %s/%s", event.Severity, event.Outcome)
	}
	if event.Target == nil || event.Target.Type != "channel" {
		t.Errorf("Target = %+v, want channel", event.Target)
	}
	if md := event.SpamMetadata(); md == nil || md.Error != "bulk delete: 500" {
		t.Errorf("metadata error not carried: %+v", md)
	}
}

func TestLogger_RecordStoresAndForwards(t *testing.T) {
	store := NewMemoryStore(100)
	fwd := &recordingForwarder{enabled: true}
	disabled := &recordingForwarder{enabled: false}
	logger := NewLogger(store, DefaultConfig(), fwd, disabled)

	ctx := logging.ContextWithCorrelationID(context.Background(), "corr-1")
	if err := logger.Record(ctx, spamEvent()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if store.Len() != 1 {
		t.Fatalf("store has %d events, want 1", store.Len())
	}
	events, _ := store.Query(context.Background(), QueryFilter{ScopeID: "g1"})
	if len(events) != 1 {
		t.Fatalf("query returned %d events, want 1", len(events))
	}
	if events[0].ID == "" {
		t.Error("event ID should be generated")
	}
	if events[0].CorrelationID != "corr-1" {
		t.Errorf("CorrelationID = %q, want corr-1", events[0].CorrelationID)
	}
	if fwd.count() != 1 {
		t.Errorf("forwarder received %d events, want 1", fwd.count())
	}
	if disabled.count() != 0 {
		t.Errorf("disabled forwarder received %d events, want 0", disabled.count())
	}
}

func TestLogger_ForwarderErrorDoesNotBlockStore(t *testing.T) {
	store := NewMemoryStore(100)
	fwd := &recordingForwarder{enabled: true, err: errors.New("webhook down")}
	logger := NewLogger(store, DefaultConfig(), fwd)

	if err := logger.Record(context.Background(), spamEvent()); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	_ = logger.Close()

	if store.Len() != 1 {
		t.Errorf("store has %d events, want 1", store.Len())
	}
}

func TestLogger_Disabled(t *testing.T) {
	store := NewMemoryStore(100)
	cfg := DefaultConfig()
	cfg.Enabled = false
	logger := NewLogger(store, cfg)

	if err := logger.Record(context.Background(), spamEvent()); err != nil {
		t.Fatalf("Record on disabled logger should not fail: %v", err)
	}
	_ = logger.Close()

	if store.Len() != 0 {
		t.Errorf("disabled logger stored %d events", store.Len())
	}
}

func TestLogger_SeverityFilter(t *testing.T) {
	store := NewMemoryStore(100)
	cfg := DefaultConfig()
	cfg.LogLevel = SeverityError
	logger := NewLogger(store, cfg)

	_ = logger.Record(context.Background(), spamEvent())
	_ = logger.Record(context.Background(), detection.AuditEvent{
		Kind:       detection.AuditKindRemovalFailed,
		ScopeID:    "g1",
		OccurredAt: time.Now(),
	})
	_ = logger.Close()

	if store.Len() != 1 {
		t.Fatalf("store has %d events, want only the error event", store.Len())
	}
	events, _ := store.Query(context.Background(), QueryFilter{})
	if events[0].Type != EventTypeRemovalFailed {
		t.Errorf("stored %q, want %q", events[0].Type, EventTypeRemovalFailed)
	}
}

func TestLogger_CloseIsIdempotent(t *testing.T) {
	logger := NewLogger(NewMemoryStore(10), nil)
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestLogger_Cleanup(t *testing.T) {
	store := NewMemoryStore(100)
	cfg := DefaultConfig()
	cfg.RetentionDays = 7
	logger := NewLogger(store, cfg)
	defer logger.Close()

	ctx := context.Background()
	_ = store.Save(ctx, &Event{ID: "old", Timestamp: time.Now().AddDate(0, 0, -30)})
	_ = store.Save(ctx, &Event{ID: "new", Timestamp: time.Now()})

	if deleted := logger.Cleanup(ctx); deleted != 1 {
		t.Errorf("Cleanup deleted %d, want 1", deleted)
	}
	if _, err := store.Get(ctx, "new"); err != nil {
		t.Errorf("recent event should remain: %v", err)
	}
}

func TestLogger_ServeStopsOnCancel(t *testing.T) {
	logger := NewLogger(NewMemoryStore(10), nil)
	defer logger.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- logger.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
