// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package detection

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/burstguard/internal/models"
)

// trippedDetection seeds ids into the harness ledger and returns a tripped detection.
func trippedDetection(t *testing.T, h *harness, ids ...int) *Detection {
	t.Helper()
	key := testKey(models.ActionMessage)
	var actions []models.Action
	for i, id := range ids {
		actions = append(actions, testAction(id, time.Duration(i)*time.Second))
	}
	seed(t, h.ledger, key, actions, 1)

	det, err := NewBurstDetector(h.ledger, fixedClock(5*time.Second)).Evaluate(context.Background(), key, SpamConfig{Count: 1, Interval: 60})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !det.Tripped {
		t.Fatal("expected tripped detection")
	}
	return det
}

func newTestMitigator(t *testing.T, h *harness) *Mitigator {
	t.Helper()
	m, err := NewMitigator(h.collaborators(), MitigatorConfig{ModeratorID: "bot", CallTimeout: time.Second})
	if err != nil {
		t.Fatalf("new mitigator: %v", err)
	}
	return m
}

func waitRemovals(t *testing.T, m *Mitigator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.WaitRemovals(ctx); err != nil {
		t.Fatalf("wait removals: %v", err)
	}
}

func TestMitigator_FullPipelineWithRestriction(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.restrictor.incidentID = 7
	h.source.trailing = []models.Action{testAction(3, 2*time.Second), testAction(4, 3*time.Second), testAction(5, 4*time.Second)}
	m := newTestMitigator(t, h)

	det := trippedDetection(t, h, 1, 2, 3)
	cfg := SpamConfig{Count: 2, Interval: 10, Mute: true}
	res := m.Mitigate(context.Background(), det, "too many messages", cfg)
	waitRemovals(t, m)

	// Restriction
	if !res.RestrictionApplied || h.restrictor.count() != 1 {
		t.Fatalf("expected one restriction, applied=%v calls=%d", res.RestrictionApplied, h.restrictor.count())
	}
	req := h.restrictor.requests[0]
	if req.Duration != DefaultMuteTime {
		t.Errorf("expected default mute time, got %v", req.Duration)
	}
	if req.ModeratorID != "bot" {
		t.Errorf("expected moderator bot, got %q", req.ModeratorID)
	}
	if !strings.Contains(req.Reason, "too many messages (over 2 in 10s)") {
		t.Errorf("unexpected reason %q", req.Reason)
	}

	// Sweep: union of detected and trailing, ascending and unique.
	want := []models.ActionID{1, 2, 3, 4, 5}
	if len(res.HandledIDs) != len(want) {
		t.Fatalf("handled %v, want %v", res.HandledIDs, want)
	}
	for i := range want {
		if res.HandledIDs[i] != want[i] {
			t.Fatalf("handled %v, want %v", res.HandledIDs, want)
		}
	}
	if h.source.calls[0] != 3 {
		t.Errorf("expected sweep after id 3, got %d", h.source.calls[0])
	}

	// Removal happened once and every id was suppressed first.
	if h.remover.count() != 1 {
		t.Fatalf("expected one removal call, got %d", h.remover.count())
	}
	if h.remover.unsuppressed != 0 {
		t.Errorf("%d ids were removed before being suppressed", h.remover.unsuppressed)
	}
	if kind := h.suppressor.ignored[5]; kind != DeletionKindMessageDelete {
		t.Errorf("expected message_delete suppression, got %q", kind)
	}

	// Dedup watermark and ledger clearing.
	if !h.dedup.ShouldSkip("u1", "c1", 5) {
		t.Error("expected id 5 to be skipped")
	}
	if h.dedup.ShouldSkip("u1", "c1", 6) {
		t.Error("expected id 6 not to be skipped")
	}
	if n, _ := h.ledger.CountSince(context.Background(), det.Key, testBase); n != 0 {
		t.Errorf("expected ledger cleared, got %d", n)
	}

	// Note appended to the restriction incident, no new incident.
	if h.incidents.createdCount() != 0 {
		t.Errorf("expected no new incident, got %d", h.incidents.createdCount())
	}
	notes := h.incidents.notes[7]
	if len(notes) != 1 || !strings.Contains(notes[0], "https://bg.example/archives/a1") {
		t.Errorf("expected archive url note on incident 7, got %v", notes)
	}
	if res.IncidentID != 7 {
		t.Errorf("expected incident 7, got %d", res.IncidentID)
	}

	// Archive contains every handled action.
	if len(h.archiver.archives) != 1 || len(h.archiver.archives[0]) != 5 {
		t.Errorf("expected one archive of 5 actions, got %v", h.archiver.archives)
	}

	// Audit event.
	events := h.audit.byKind(AuditKindSpamDetected)
	if len(events) != 1 {
		t.Fatalf("expected one audit event, got %d", len(events))
	}
	ev := events[0]
	if ev.Member.Username != "spammer" || ev.Channel.Name != "general" {
		t.Errorf("unexpected snapshots %+v %+v", ev.Member, ev.Channel)
	}
	if ev.Threshold != 2 || ev.IntervalSeconds != 10 || ev.ActionCount != 5 {
		t.Errorf("unexpected audit fields %+v", ev)
	}
	if len(res.Failures) != 0 {
		t.Errorf("expected no failures, got %v", res.Failures)
	}
}

func TestMitigator_CleanFalseSkipsRemoval(t *testing.T) {
	t.Parallel()

	h := newHarness()
	m := newTestMitigator(t, h)
	det := trippedDetection(t, h, 1, 2)

	res := m.Mitigate(context.Background(), det, "too many messages", SpamConfig{Count: 1, Interval: 10, Clean: boolPtr(false)})
	waitRemovals(t, m)

	if h.remover.count() != 0 || res.RemovalStarted {
		t.Error("expected no removal when clean is false")
	}
	if len(h.suppressor.ignored) != 0 {
		t.Error("expected no suppression when clean is false")
	}
	if h.incidents.createdCount() != 1 {
		t.Errorf("expected incident, got %d", h.incidents.createdCount())
	}
	if n, _ := h.ledger.CountSince(context.Background(), det.Key, testBase); n != 0 {
		t.Errorf("expected ledger cleared, got %d", n)
	}
	if !h.dedup.ShouldSkip("u1", "c1", 2) {
		t.Error("expected dedup watermark at 2")
	}
}

func TestMitigator_RestrictionNotApplicable(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.restrictor.err = ErrNotApplicable
	m := newTestMitigator(t, h)
	det := trippedDetection(t, h, 1, 2, 3)

	res := m.Mitigate(context.Background(), det, "too many messages", SpamConfig{Count: 2, Interval: 10, Mute: true})
	waitRemovals(t, m)

	if res.RestrictionApplied {
		t.Error("restriction must not be applied")
	}
	if len(res.Failures) != 0 {
		t.Errorf("not applicable is not a failure, got %v", res.Failures)
	}
	if h.remover.count() != 1 {
		t.Error("expected removal to proceed")
	}
	if !h.dedup.ShouldSkip("u1", "c1", 3) {
		t.Error("expected dedup update")
	}
	if h.incidents.createdCount() != 1 || h.incidents.created[0].Kind != IncidentNote {
		t.Errorf("expected a note incident, got %+v", h.incidents.created)
	}
}

func TestMitigator_UnresolvableMemberSkipsRestriction(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.directory.memberErr = ErrNotApplicable
	m := newTestMitigator(t, h)
	det := trippedDetection(t, h, 1, 2)

	res := m.Mitigate(context.Background(), det, "too many messages", SpamConfig{Count: 1, Interval: 10, Mute: true})
	waitRemovals(t, m)

	if h.restrictor.count() != 0 {
		t.Error("restrictor must not be called for an unresolvable member")
	}
	if len(res.Failures) != 0 {
		t.Errorf("expected no failures, got %v", res.Failures)
	}
	ev := h.audit.byKind(AuditKindSpamDetected)[0]
	if ev.Member.ID != "u1" || ev.Member.Username != "" {
		t.Errorf("expected id-only member snapshot, got %+v", ev.Member)
	}
}

func TestMitigator_MuteDisabled(t *testing.T) {
	t.Parallel()

	h := newHarness()
	m := newTestMitigator(t, h)
	det := trippedDetection(t, h, 1, 2)

	m.Mitigate(context.Background(), det, "too many messages", SpamConfig{Count: 1, Interval: 10})
	waitRemovals(t, m)

	if h.restrictor.count() != 0 {
		t.Error("restrictor must not be called when mute is off")
	}
}

func TestMitigator_StepFailuresAreIsolated(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.restrictor.err = errors.New("restrict down")
	h.source.err = errors.New("source down")
	h.archiver.err = errors.New("archive down")
	h.audit.err = errors.New("audit down")
	m := newTestMitigator(t, h)
	det := trippedDetection(t, h, 10, 11, 12)

	res := m.Mitigate(context.Background(), det, "too many messages", SpamConfig{Count: 2, Interval: 10, Mute: true})
	waitRemovals(t, m)

	for _, step := range []string{StepRestrict, StepSweep, StepArchive, StepAudit} {
		found := false
		for _, f := range res.Failures {
			if f == step {
				found = true
			}
		}
		if !found {
			t.Errorf("expected failure for step %s, got %v", step, res.Failures)
		}
	}

	if !h.dedup.ShouldSkip("u1", "c1", 12) {
		t.Error("dedup must be updated despite failures")
	}
	if n, _ := h.ledger.CountSince(context.Background(), det.Key, testBase); n != 0 {
		t.Error("ledger must be cleared despite failures")
	}
	if h.remover.count() != 1 {
		t.Error("removal must still run with the detected set")
	}
	if h.incidents.createdCount() != 1 {
		t.Fatal("incident must still be recorded without an archive")
	}
	if strings.Contains(h.incidents.created[0].Body, "http") {
		t.Errorf("incident body should not contain a url, got %q", h.incidents.created[0].Body)
	}
}

func TestMitigator_RemovalFailureDeliveredAsync(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.remover.err = errors.New("missing permissions")
	m := newTestMitigator(t, h)
	det := trippedDetection(t, h, 1, 2)

	res := m.Mitigate(context.Background(), det, "too many messages", SpamConfig{Count: 1, Interval: 10})
	if len(res.Failures) != 0 {
		t.Errorf("removal failure must not be reported synchronously, got %v", res.Failures)
	}

	select {
	case rerr := <-m.RemovalFailures():
		if rerr.ChannelID != "c1" || len(rerr.IDs) != 2 {
			t.Errorf("unexpected removal error %+v", rerr)
		}
		var target *RemovalError
		if !errors.As(error(rerr), &target) {
			t.Error("expected RemovalError")
		}
	case <-time.After(time.Second):
		t.Fatal("expected removal failure")
	}
}

func TestNewMitigator_MissingCollaborator(t *testing.T) {
	t.Parallel()

	c := newHarness().collaborators()
	c.Archiver = nil
	if _, err := NewMitigator(c, MitigatorConfig{}); !errors.Is(err, ErrMissingCollaborator) {
		t.Errorf("expected ErrMissingCollaborator, got %v", err)
	}
}

func TestCollaboratorCallTimeout(t *testing.T) {
	t.Parallel()

	err := callErr(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestTaskTracker_WaitBlocksUntilDone(t *testing.T) {
	t.Parallel()

	tr := newTaskTracker()
	if err := tr.wait(context.Background()); err != nil {
		t.Fatalf("idle tracker: %v", err)
	}

	tr.start()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tr.wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("wait with a task in flight = %v, want deadline exceeded", err)
	}

	released := make(chan error, 1)
	go func() { released <- tr.wait(context.Background()) }()
	tr.done()
	select {
	case err := <-released:
		if err != nil {
			t.Errorf("wait = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("wait did not return after done")
	}
}

func TestTaskTracker_StartRacesWithWait(t *testing.T) {
	t.Parallel()

	tr := newTaskTracker()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				tr.start()
				tr.done()
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				_ = tr.wait(ctx)
				cancel()
			}
		}()
	}
	wg.Wait()

	if err := tr.wait(context.Background()); err != nil {
		t.Errorf("tracker not idle after all tasks finished: %v", err)
	}
}
