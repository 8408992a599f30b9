// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package detection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/burstguard/internal/models"
	"github.com/tomtom215/burstguard/internal/scopequeue"
)

func newTestEngine(t *testing.T, h *harness, rules ...Rule) *Engine {
	t.Helper()
	cfg := DefaultEngineConfig()
	cfg.Rules = rules
	cfg.Clock = fixedClock(5 * time.Second)
	cfg.Queue = scopequeue.Config{IdleTimeout: time.Second}
	cfg.Mitigator = MitigatorConfig{ModeratorID: "bot", CallTimeout: time.Second}
	cfg.ShutdownTimeout = time.Second

	e, err := NewEngine(cfg, h.collaborators())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = e.RunWithContext(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return e
}

func syncScope(t *testing.T, e *Engine, scope string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.Sync(ctx, scope); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := e.mitigator.WaitRemovals(ctx); err != nil {
		t.Fatalf("wait removals: %v", err)
	}
}

func TestEngine_OnActionTripsExactlyOnce(t *testing.T) {
	t.Parallel()

	h := newHarness()
	e := newTestEngine(t, h)
	cfg := SpamConfig{Count: 5, Interval: 10, Mute: true}
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		if err := e.OnAction(ctx, "g1", testAction(i+1, time.Duration(i)*time.Second), models.ActionMessage, cfg, 1, "too many messages"); err != nil {
			t.Fatalf("on action: %v", err)
		}
	}
	syncScope(t, e, "g1")

	if h.restrictor.count() != 1 {
		t.Errorf("expected 1 restriction, got %d", h.restrictor.count())
	}
	if h.incidents.createdCount() != 1 {
		t.Errorf("expected 1 incident, got %d", h.incidents.createdCount())
	}
	if h.remover.count() != 1 {
		t.Errorf("expected 1 removal, got %d", h.remover.count())
	}
	stats := e.Stats()
	if stats.Mitigations != 1 {
		t.Errorf("expected 1 mitigation, got %d", stats.Mitigations)
	}
	if stats.LastMitigationAt.IsZero() {
		t.Error("expected last mitigation time")
	}
}

func TestEngine_AtThresholdDoesNotMitigate(t *testing.T) {
	t.Parallel()

	h := newHarness()
	e := newTestEngine(t, h)
	cfg := SpamConfig{Count: 5, Interval: 10, Mute: true}

	for i := 0; i < 5; i++ {
		_ = e.OnAction(context.Background(), "g1", testAction(i+1, time.Duration(i)*time.Second), models.ActionMessage, cfg, 1, "too many messages")
	}
	syncScope(t, e, "g1")

	if e.Stats().Mitigations != 0 || h.restrictor.count() != 0 || h.incidents.createdCount() != 0 {
		t.Error("expected no mitigation at the threshold")
	}
	if e.Stats().Evaluations != 5 {
		t.Errorf("expected 5 evaluations, got %d", e.Stats().Evaluations)
	}
}

func TestEngine_HandledActionsAreSkipped(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.source.trailing = []models.Action{testAction(7, 5*time.Second), testAction(8, 5*time.Second)}
	e := newTestEngine(t, h)
	cfg := SpamConfig{Count: 5, Interval: 10}
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_ = e.OnAction(ctx, "g1", testAction(i+1, time.Duration(i)*time.Second), models.ActionMessage, cfg, 1, "too many messages")
	}
	syncScope(t, e, "g1")

	// The swept trailing actions arrive late and must not count again.
	_ = e.OnAction(ctx, "g1", testAction(7, 5*time.Second), models.ActionMessage, cfg, 1, "too many messages")
	_ = e.OnAction(ctx, "g1", testAction(8, 5*time.Second), models.ActionMessage, cfg, 1, "too many messages")
	syncScope(t, e, "g1")

	if got := e.Stats().ActionsSkipped; got != 2 {
		t.Errorf("expected 2 skipped actions, got %d", got)
	}
	if n, _ := h.ledger.CountSince(ctx, testKey(models.ActionMessage), testBase); n != 0 {
		t.Errorf("expected empty ledger, got %d", n)
	}

	// A newer action starts a fresh count.
	_ = e.OnAction(ctx, "g1", testAction(9, 5*time.Second), models.ActionMessage, cfg, 1, "too many messages")
	syncScope(t, e, "g1")
	if n, _ := h.ledger.CountSince(ctx, testKey(models.ActionMessage), testBase); n != 1 {
		t.Errorf("expected 1 fresh record, got %d", n)
	}
}

func TestEngine_ZeroCountHintIsNoop(t *testing.T) {
	t.Parallel()

	h := newHarness()
	e := newTestEngine(t, h)

	if err := e.OnAction(context.Background(), "g1", testAction(1, 0), models.ActionMention, SpamConfig{Count: 1, Interval: 10}, 0, "too many mentions"); err != nil {
		t.Fatalf("on action: %v", err)
	}
	syncScope(t, e, "g1")

	if h.ledger.Len() != 0 {
		t.Error("expected no ledger writes")
	}
	if e.Stats().ActionsObserved != 0 {
		t.Error("expected action not to be observed")
	}
}

func TestEngine_InvalidInput(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, newHarness())
	ctx := context.Background()

	if err := e.OnAction(ctx, "g1", testAction(1, 0), models.ActionMessage, SpamConfig{Count: 0, Interval: 10}, 1, ""); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if err := e.OnAction(ctx, "", testAction(1, 0), models.ActionMessage, SpamConfig{Count: 1, Interval: 10}, 1, ""); err == nil {
		t.Error("expected error for empty scope")
	}
}

func TestEngine_ConcurrentActionsNeverMitigateTwice(t *testing.T) {
	t.Parallel()

	h := newHarness()
	e := newTestEngine(t, h)
	cfg := SpamConfig{Count: 5, Interval: 10}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_ = e.OnAction(context.Background(), "g1", testAction(id, time.Duration(id%5)*time.Second), models.ActionMessage, cfg, 1, "too many messages")
		}(i + 1)
	}
	wg.Wait()
	syncScope(t, e, "g1")

	seen := make(map[models.ActionID]int)
	h.archiver.mu.Lock()
	defer h.archiver.mu.Unlock()
	if len(h.archiver.archives) == 0 {
		t.Fatal("expected at least one mitigation")
	}
	for i, archive := range h.archiver.archives {
		for _, a := range archive {
			if prev, ok := seen[a.ID]; ok {
				t.Errorf("action %d mitigated by passes %d and %d", a.ID, prev, i)
			}
			seen[a.ID] = i
		}
	}
}

func TestEngine_ScopesAreIndependent(t *testing.T) {
	t.Parallel()

	h := newHarness()
	e := newTestEngine(t, h)
	cfg := SpamConfig{Count: 2, Interval: 10}

	for i := 0; i < 3; i++ {
		a := testAction(i+1, time.Duration(i)*time.Second)
		a.ChannelID = "c-other"
		_ = e.OnAction(context.Background(), "g2", a, models.ActionMessage, cfg, 1, "too many messages")
		_ = e.OnAction(context.Background(), "g1", testAction(i+1, time.Duration(i)*time.Second), models.ActionMessage, cfg, 1, "too many messages")
	}
	syncScope(t, e, "g1")
	syncScope(t, e, "g2")

	if e.Stats().Mitigations != 2 {
		t.Errorf("expected one mitigation per scope, got %d", e.Stats().Mitigations)
	}
}

func TestEngine_ProcessMessageAppliesRules(t *testing.T) {
	t.Parallel()

	h := newHarness()
	e := newTestEngine(t, h,
		Rule{Type: models.ActionMention, Config: SpamConfig{Count: 5, Interval: 10}},
		Rule{Type: models.ActionMessage, Config: SpamConfig{Count: 50, Interval: 10}},
	)

	for i := 0; i < 2; i++ {
		msg := &models.Message{
			ID:           models.ActionID(i + 1),
			ScopeID:      "g1",
			ChannelID:    "c1",
			AuthorID:     "u1",
			Content:      "@a @b @c",
			MentionCount: 3,
			PostedAt:     testBase.Add(time.Duration(i) * time.Second),
		}
		if err := e.ProcessMessage(context.Background(), msg); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	syncScope(t, e, "g1")

	events := h.audit.byKind(AuditKindSpamDetected)
	if len(events) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(events))
	}
	if events[0].Description != "too many mentions" || events[0].ActionType != models.ActionMention {
		t.Errorf("unexpected event %+v", events[0])
	}
}

func TestEngine_ProcessMessageIgnoresBots(t *testing.T) {
	t.Parallel()

	h := newHarness()
	e := newTestEngine(t, h, Rule{Type: models.ActionMessage, Config: SpamConfig{Count: 1, Interval: 10}})

	msg := &models.Message{ID: 1, ScopeID: "g1", ChannelID: "c1", AuthorID: "bot", AuthorIsBot: true, PostedAt: testBase}
	_ = e.ProcessMessage(context.Background(), msg)
	syncScope(t, e, "g1")

	if e.Stats().ActionsObserved != 0 {
		t.Error("bot messages must be ignored")
	}
}

func TestEngine_Disabled(t *testing.T) {
	t.Parallel()

	h := newHarness()
	e := newTestEngine(t, h)
	e.SetEnabled(false)

	_ = e.OnAction(context.Background(), "g1", testAction(1, 0), models.ActionMessage, SpamConfig{Count: 1, Interval: 10}, 1, "")
	if e.Stats().ActionsObserved != 0 {
		t.Error("disabled engine must not observe actions")
	}
	if e.Enabled() {
		t.Error("expected disabled")
	}
}

func TestEngine_RemovalFailuresAreAudited(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.remover.err = errors.New("forbidden")
	e := newTestEngine(t, h)
	cfg := SpamConfig{Count: 1, Interval: 10}

	_ = e.OnAction(context.Background(), "g1", testAction(1, 0), models.ActionMessage, cfg, 1, "too many messages")
	_ = e.OnAction(context.Background(), "g1", testAction(2, time.Second), models.ActionMessage, cfg, 1, "too many messages")
	syncScope(t, e, "g1")

	deadline := time.Now().Add(2 * time.Second)
	for len(h.audit.byKind(AuditKindRemovalFailed)) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected removal failure audit event")
		}
		time.Sleep(5 * time.Millisecond)
	}
	ev := h.audit.byKind(AuditKindRemovalFailed)[0]
	if ev.Error != "forbidden" || ev.ActionCount != 2 {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestEngine_SetRulesValidation(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, newHarness())

	err := e.SetRules([]Rule{
		{Type: models.ActionLink, Config: SpamConfig{Count: 1, Interval: 1}},
		{Type: models.ActionLink, Config: SpamConfig{Count: 2, Interval: 1}},
	})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected duplicate rule error, got %v", err)
	}

	err = e.SetRules([]Rule{{Type: "reaction", Config: SpamConfig{Count: 1, Interval: 1}}})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected unknown type error, got %v", err)
	}

	if err := e.SetRules([]Rule{{Type: models.ActionEmoji, Config: SpamConfig{Count: 1, Interval: 1}}}); err != nil {
		t.Fatalf("set rules: %v", err)
	}
	if got := e.Rules()[0].Description; got != "too many emoji" {
		t.Errorf("expected default description, got %q", got)
	}
}

func TestEngine_RunWithContextStops(t *testing.T) {
	t.Parallel()

	cfg := DefaultEngineConfig()
	e, err := NewEngine(cfg, newHarness().collaborators())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.RunWithContext(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}

	if err := e.OnAction(context.Background(), "g1", testAction(1, 0), models.ActionMessage, SpamConfig{Count: 1, Interval: 1}, 1, ""); !errors.Is(err, scopequeue.ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed after stop, got %v", err)
	}
}

func TestEngine_WaitRemovalsWhileOtherScopesMitigate(t *testing.T) {
	t.Parallel()

	h := newHarness()
	e := newTestEngine(t, h)
	cfg := SpamConfig{Count: 1, Interval: 10}

	var wg sync.WaitGroup
	for s := 0; s < 4; s++ {
		scope, channel := fmt.Sprintf("g%d", s), fmt.Sprintf("c%d", s)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				a := testAction(i+1, time.Duration(i)*time.Second)
				a.ScopeID, a.ChannelID = scope, channel
				_ = e.OnAction(context.Background(), scope, a, models.ActionMessage, cfg, 1, "too many messages")
			}
		}()
	}
	for i := 0; i < 20; i++ {
		waitRemovals(t, e.mitigator)
	}
	wg.Wait()
	for s := 0; s < 4; s++ {
		syncScope(t, e, fmt.Sprintf("g%d", s))
	}
	if got := e.Stats().Mitigations; got < 4 {
		t.Errorf("mitigations = %d, want at least one per scope", got)
	}
}
