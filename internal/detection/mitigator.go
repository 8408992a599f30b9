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
	"time"

	"github.com/tomtom215/burstguard/internal/logging"
	"github.com/tomtom215/burstguard/internal/metrics"
	"github.com/tomtom215/burstguard/internal/models"
)

// MitigatorConfig configures the mitigation pipeline.
type MitigatorConfig struct {
	// ModeratorID is recorded as the actor on restrictions and incidents.
	ModeratorID string

	// CallTimeout bounds each synchronous collaborator call.
	CallTimeout time.Duration

	// RemovalTimeout bounds the detached removal task.
	RemovalTimeout time.Duration

	// RemovalErrorBuffer sizes the channel of asynchronous removal failures.
	RemovalErrorBuffer int
}

// DefaultMitigatorConfig returns sensible defaults.
func DefaultMitigatorConfig() MitigatorConfig {
	return MitigatorConfig{
		CallTimeout:        DefaultCallTimeout,
		RemovalTimeout:     30 * time.Second,
		RemovalErrorBuffer: 100,
	}
}

// Mitigator executes the mitigation pipeline for a tripped burst.
type Mitigator struct {
	c   Collaborators
	cfg MitigatorConfig

	removals    *taskTracker
	removalErrs chan *RemovalError
}

// NewMitigator creates a mitigator.
func NewMitigator(c Collaborators, cfg MitigatorConfig) (*Mitigator, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	defaults := DefaultMitigatorConfig()
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaults.CallTimeout
	}
	if cfg.RemovalTimeout <= 0 {
		cfg.RemovalTimeout = defaults.RemovalTimeout
	}
	if cfg.RemovalErrorBuffer <= 0 {
		cfg.RemovalErrorBuffer = defaults.RemovalErrorBuffer
	}
	return &Mitigator{
		c:           c,
		cfg:         cfg,
		removals:    newTaskTracker(),
		removalErrs: make(chan *RemovalError, cfg.RemovalErrorBuffer),
	}, nil
}

// RemovalFailures delivers failures of detached removal tasks.
func (m *Mitigator) RemovalFailures() <-chan *RemovalError {
	return m.removalErrs
}

// WaitRemovals blocks until no detached removal is in flight or ctx is done.
// It may be called while mitigations are still running: it then returns at
// the first moment the count reaches zero, so removals started later are not
// covered. Callers that need every removal drain the scope queues first.
func (m *Mitigator) WaitRemovals(ctx context.Context) error {
	return m.removals.wait(ctx)
}

// Reason formats the human readable reason used for restrictions and notes.
func Reason(description string, cfg SpamConfig) string {
	return fmt.Sprintf("Automatic spam detection: %s (over %d in %ds)", description, cfg.Count, cfg.Interval)
}

// Mitigate applies every mitigation step for det. It must only be called for
// a tripped detection from inside the scope's serialized pass. Step failures
// are logged and listed in the result; dedup and ledger updates always run.
func (m *Mitigator) Mitigate(ctx context.Context, det *Detection, description string, cfg SpamConfig) *MitigationResult {
	key := det.Key
	log := logging.Ctx(ctx).With().
		Str("action_type", string(key.Type)).
		Str("user_id", key.UserID).
		Str("channel_id", key.ChannelID).
		Logger()

	res := &MitigationResult{}
	fail := func(step string, err error) {
		cerr := &CollaboratorError{Step: step, Err: err}
		res.Failures = append(res.Failures, step)
		metrics.RecordStepFailure(step)
		log.Error().Err(cerr).Str("step", step).Msg("Mitigation step failed")
	}

	reason := Reason(description, cfg)

	// 1. Restriction
	member, err := call(ctx, m.cfg.CallTimeout, "directory", func(ctx context.Context) (*models.Member, error) {
		return m.c.Directory.ResolveMember(ctx, key.ScopeID, key.UserID)
	})
	if err != nil && !errors.Is(err, ErrNotApplicable) {
		fail(StepResolve, err)
	}
	if cfg.Mute && member != nil {
		restriction, err := call(ctx, m.cfg.CallTimeout, "restrictor", func(ctx context.Context) (*RestrictionResult, error) {
			return m.c.Restrictor.Restrict(ctx, RestrictionRequest{
				ScopeID:     key.ScopeID,
				UserID:      key.UserID,
				ModeratorID: m.cfg.ModeratorID,
				Duration:    cfg.RestrictionDuration(),
				Reason:      reason,
			})
		})
		switch {
		case errors.Is(err, ErrNotApplicable):
			log.Debug().Msg("Restriction not applicable, skipping")
		case err != nil:
			fail(StepRestrict, err)
		case restriction != nil:
			res.RestrictionApplied = true
			res.RestrictedUntil = restriction.Until
			res.RestrictionIncidentID = restriction.IncidentID
		}
	}

	// 2. Trailing sweep
	detected := det.Actions()
	trailing, err := call(ctx, m.cfg.CallTimeout, "source", func(ctx context.Context) ([]models.Action, error) {
		return m.c.Source.FetchAfter(ctx, key.ChannelID, key.UserID, det.LastActionID())
	})
	if err != nil {
		fail(StepSweep, err)
		trailing = nil
	}
	handled := models.MergeActions(detected, trailing)
	res.HandledIDs = models.ActionIDs(handled)

	// 3. Bulk removal
	if cfg.ShouldClean() && len(handled) > 0 {
		for _, id := range res.HandledIDs {
			m.c.Suppressor.Ignore(DeletionKindMessageDelete, id)
		}
		m.removeDetached(key.ScopeID, key.ChannelID, res.HandledIDs)
		res.RemovalStarted = true
	}

	// 4. Dedup update
	lastID := det.LastActionID()
	if n := len(res.HandledIDs); n > 0 && res.HandledIDs[n-1] > lastID {
		lastID = res.HandledIDs[n-1]
	}
	m.c.Dedup.RecordHandled(key.UserID, key.ChannelID, lastID)

	// 5. Ledger clearing
	if err := m.c.Ledger.Clear(ctx, key); err != nil {
		fail(StepClear, err)
	}

	// 6. Incident recording
	url, err := call(ctx, m.cfg.CallTimeout, "archiver", func(ctx context.Context) (string, error) {
		return m.c.Archiver.Archive(ctx, key.ScopeID, handled)
	})
	if err != nil {
		fail(StepArchive, err)
	}
	res.ArchiveURL = url

	body := reason
	if url != "" {
		body += "\n" + url
	}
	if res.RestrictionIncidentID != 0 {
		err = callErr(ctx, m.cfg.CallTimeout, "incidents", func(ctx context.Context) error {
			return m.c.Incidents.AppendNote(ctx, res.RestrictionIncidentID, m.cfg.ModeratorID, body)
		})
		if err == nil {
			res.IncidentID = res.RestrictionIncidentID
		}
	} else {
		res.IncidentID, err = call(ctx, m.cfg.CallTimeout, "incidents", func(ctx context.Context) (int64, error) {
			return m.c.Incidents.CreateIncident(ctx, NewIncident{
				ScopeID:      key.ScopeID,
				Kind:         IncidentNote,
				TargetUserID: key.UserID,
				ModeratorID:  m.cfg.ModeratorID,
				Body:         body,
			})
		})
	}
	if err != nil {
		fail(StepIncident, err)
	}

	// 7. Structured log
	event := AuditEvent{
		Kind:               AuditKindSpamDetected,
		ScopeID:            key.ScopeID,
		ActionType:         key.Type,
		Member:             m.memberSnapshot(member, key.UserID),
		Channel:            m.channelSnapshot(ctx, key.ChannelID),
		Description:        description,
		Threshold:          cfg.Count,
		IntervalSeconds:    cfg.Interval,
		ActionCount:        len(handled),
		RestrictionApplied: res.RestrictionApplied,
		IncidentID:         res.IncidentID,
		ArchiveURL:         url,
		OccurredAt:         time.Now().UTC(),
	}
	if err := callErr(ctx, m.cfg.CallTimeout, "audit", func(ctx context.Context) error {
		return m.c.Audit.Record(ctx, event)
	}); err != nil {
		fail(StepAudit, err)
	}

	metrics.MitigationsTotal.WithLabelValues(string(key.Type)).Inc()
	log.Info().
		Int("count", det.Count).
		Int("handled", len(res.HandledIDs)).
		Bool("restricted", res.RestrictionApplied).
		Int64("incident_id", res.IncidentID).
		Str("archive_url", url).
		Msg("Spam burst mitigated")

	return res
}

func (m *Mitigator) memberSnapshot(member *models.Member, userID string) models.Member {
	if member != nil {
		return *member
	}
	return models.Member{ID: userID}
}

func (m *Mitigator) channelSnapshot(ctx context.Context, channelID string) models.Channel {
	ch, err := call(ctx, m.cfg.CallTimeout, "directory", func(ctx context.Context) (*models.Channel, error) {
		return m.c.Directory.ResolveChannel(ctx, channelID)
	})
	if err != nil || ch == nil {
		return models.Channel{ID: channelID}
	}
	return *ch
}

// removeDetached deletes ids in the background. Failures are delivered on
// RemovalFailures and never block the caller.
func (m *Mitigator) removeDetached(scopeID, channelID string, ids []models.ActionID) {
	m.removals.start()
	go func() {
		defer m.removals.done()

		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RemovalTimeout)
		defer cancel()

		start := time.Now()
		err := m.c.Remover.Remove(ctx, channelID, ids)
		metrics.ObserveCollaborator("remover", start)
		if err == nil {
			metrics.ActionsRemoved.Add(float64(len(ids)))
			return
		}

		metrics.RecordStepFailure(StepRemove)
		rerr := &RemovalError{ScopeID: scopeID, ChannelID: channelID, IDs: ids, Err: err}
		select {
		case m.removalErrs <- rerr:
		default:
			logging.Error().Err(rerr).Str("scope_id", scopeID).Msg("Removal failure dropped, error channel full")
		}
	}()
}

// taskTracker counts in-flight background tasks. Unlike sync.WaitGroup,
// start may race with wait.
type taskTracker struct {
	mu   sync.Mutex
	n    int
	idle chan struct{} // closed while n == 0
}

func newTaskTracker() *taskTracker {
	idle := make(chan struct{})
	close(idle)
	return &taskTracker{idle: idle}
}

func (t *taskTracker) start() {
	t.mu.Lock()
	if t.n == 0 {
		t.idle = make(chan struct{})
	}
	t.n++
	t.mu.Unlock()
}

func (t *taskTracker) done() {
	t.mu.Lock()
	t.n--
	if t.n == 0 {
		close(t.idle)
	}
	t.mu.Unlock()
}

func (t *taskTracker) wait(ctx context.Context) error {
	t.mu.Lock()
	idle := t.idle
	t.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
