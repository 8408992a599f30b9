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
	"sync/atomic"
	"time"

	"github.com/tomtom215/burstguard/internal/dedup"
	"github.com/tomtom215/burstguard/internal/ledger"
	"github.com/tomtom215/burstguard/internal/logging"
	"github.com/tomtom215/burstguard/internal/metrics"
	"github.com/tomtom215/burstguard/internal/models"
	"github.com/tomtom215/burstguard/internal/scopequeue"
)

// EngineConfig configures the detection engine.
type EngineConfig struct {
	// Enabled controls whether the engine processes actions.
	Enabled bool

	// IgnoreBots skips messages authored by bots in ProcessMessage.
	IgnoreBots bool

	// Rules are the per-type thresholds used by ProcessMessage.
	Rules []Rule

	Queue     scopequeue.Config
	Mitigator MitigatorConfig

	// ShutdownTimeout bounds the queue drain when the engine stops.
	ShutdownTimeout time.Duration

	// Clock overrides time.Now for the detector.
	Clock func() time.Time
}

// DefaultEngineConfig returns sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Enabled:         true,
		IgnoreBots:      true,
		Queue:           scopequeue.DefaultConfig(),
		Mitigator:       DefaultMitigatorConfig(),
		ShutdownTimeout: 10 * time.Second,
	}
}

// EngineStats is a point-in-time snapshot of engine counters.
type EngineStats struct {
	ActionsObserved  int64     `json:"actions_observed"`
	ActionsSkipped   int64     `json:"actions_skipped"`
	Evaluations      int64     `json:"evaluations"`
	Mitigations      int64     `json:"mitigations"`
	RemovalFailures  int64     `json:"removal_failures"`
	LastMitigationAt time.Time `json:"last_mitigation_at,omitempty"`
}

// Engine is the entry point for actions. It serializes work per scope and
// runs detection and mitigation for each action.
type Engine struct {
	cfg       EngineConfig
	ledger    ledger.Ledger
	dedup     dedup.Tracker
	audit     AuditSink
	detector  *BurstDetector
	mitigator *Mitigator
	queue     *scopequeue.Queue

	mu      sync.RWMutex
	enabled bool
	rules   []Rule

	actionsObserved  atomic.Int64
	actionsSkipped   atomic.Int64
	evaluations      atomic.Int64
	mitigations      atomic.Int64
	removalFailures  atomic.Int64
	lastMitigationAt atomic.Int64
}

// NewEngine creates an engine from its collaborators.
func NewEngine(cfg EngineConfig, c Collaborators) (*Engine, error) {
	m, err := NewMitigator(c, cfg.Mitigator)
	if err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultEngineConfig().ShutdownTimeout
	}

	e := &Engine{
		cfg:       cfg,
		ledger:    c.Ledger,
		dedup:     c.Dedup,
		audit:     c.Audit,
		detector:  NewBurstDetector(c.Ledger, cfg.Clock),
		mitigator: m,
		queue:     scopequeue.New(cfg.Queue),
		enabled:   cfg.Enabled,
	}
	if err := e.SetRules(cfg.Rules); err != nil {
		return nil, err
	}
	return e, nil
}

// SetRules replaces the rules used by ProcessMessage.
func (e *Engine) SetRules(rules []Rule) error {
	seen := make(map[models.ActionType]bool, len(rules))
	normalized := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.Type] {
			return fmt.Errorf("%w: duplicate rule for %s", ErrInvalidConfig, r.Type)
		}
		seen[r.Type] = true
		if r.Description == "" {
			r.Description = DefaultDescription(r.Type)
		}
		normalized = append(normalized, r)
	}

	e.mu.Lock()
	e.rules = normalized
	e.mu.Unlock()
	return nil
}

// Rules returns a copy of the active rules.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Enabled returns whether the engine processes actions.
func (e *Engine) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

// SetEnabled enables or disables the engine.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	e.enabled = enabled
	e.mu.Unlock()
}

// OnAction offers one action to the engine. It returns once the action is
// queued; detection and mitigation run on the scope's worker. A countHint of
// zero or less is a no-op. The returned error only reports enqueue failures.
func (e *Engine) OnAction(
	ctx context.Context,
	scopeID string,
	action models.Action,
	actionType models.ActionType,
	cfg SpamConfig,
	countHint int,
	description string,
) error {
	if !e.Enabled() || countHint <= 0 {
		return nil
	}

	key := ledger.Key{
		ScopeID:   scopeID,
		Type:      actionType,
		UserID:    action.UserID,
		ChannelID: action.ChannelID,
	}
	if err := key.Validate(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.actionsObserved.Add(1)

	// Best-effort fast path; the check is repeated inside the serialized pass.
	if e.dedup.ShouldSkip(action.UserID, action.ChannelID, action.ID) {
		e.actionsSkipped.Add(1)
		metrics.ActionsObserved.WithLabelValues(string(actionType), "skipped").Inc()
		return nil
	}

	correlationID := logging.CorrelationIDFromContext(ctx)
	err := e.queue.Enqueue(scopeID, func(qctx context.Context) error {
		if correlationID != "" {
			qctx = logging.ContextWithCorrelationID(qctx, correlationID)
		}
		return e.evaluate(qctx, key, action, cfg, countHint, description)
	})
	if err != nil {
		metrics.ActionsObserved.WithLabelValues(string(actionType), "rejected").Inc()
		return fmt.Errorf("enqueue action %s: %w", action.ID, err)
	}
	metrics.ActionsObserved.WithLabelValues(string(actionType), "enqueued").Inc()
	return nil
}

func (e *Engine) evaluate(
	ctx context.Context,
	key ledger.Key,
	action models.Action,
	cfg SpamConfig,
	weight int,
	description string,
) error {
	start := time.Now()
	defer func() { metrics.DetectionDuration.Observe(time.Since(start).Seconds()) }()

	// An earlier pass may have swept this action after it was queued.
	if e.dedup.ShouldSkip(key.UserID, key.ChannelID, action.ID) {
		e.actionsSkipped.Add(1)
		return nil
	}

	if err := e.ledger.Append(ctx, key, action, weight); err != nil {
		return fmt.Errorf("append to ledger: %w", err)
	}

	e.evaluations.Add(1)
	det, err := e.detector.Evaluate(ctx, key, cfg)
	if err != nil {
		return fmt.Errorf("evaluate burst: %w", err)
	}
	if !det.Tripped {
		return nil
	}

	logging.Ctx(ctx).Info().
		Str("action_type", string(key.Type)).
		Str("user_id", key.UserID).
		Str("channel_id", key.ChannelID).
		Int("count", det.Count).
		Int("threshold", cfg.Count).
		Int("interval", cfg.Interval).
		Msg("Spam burst detected")

	e.mitigator.Mitigate(ctx, det, description, cfg)
	e.mitigations.Add(1)
	e.lastMitigationAt.Store(time.Now().UnixNano())
	return nil
}

// ProcessMessage derives weighted actions from msg and offers each one to
// OnAction under the matching rule.
func (e *Engine) ProcessMessage(ctx context.Context, msg *models.Message) error {
	if e.cfg.IgnoreBots && msg.AuthorIsBot {
		return nil
	}

	counts := CountActions(msg)
	action := msg.Action()

	var errs []error
	for _, rule := range e.Rules() {
		n := counts[rule.Type]
		if n <= 0 {
			continue
		}
		if err := e.OnAction(ctx, msg.ScopeID, action, rule.Type, rule.Config, n, rule.Description); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sync waits until all work queued for scopeID so far has settled.
func (e *Engine) Sync(ctx context.Context, scopeID string) error {
	return e.queue.Sync(ctx, scopeID)
}

// Stats returns current engine counters.
func (e *Engine) Stats() EngineStats {
	s := EngineStats{
		ActionsObserved: e.actionsObserved.Load(),
		ActionsSkipped:  e.actionsSkipped.Load(),
		Evaluations:     e.evaluations.Load(),
		Mitigations:     e.mitigations.Load(),
		RemovalFailures: e.removalFailures.Load(),
	}
	if ns := e.lastMitigationAt.Load(); ns > 0 {
		s.LastMitigationAt = time.Unix(0, ns)
	}
	return s
}

// RunWithContext consumes asynchronous removal failures until ctx is
// canceled, then drains the scope queues and waits for detached removals.
func (e *Engine) RunWithContext(ctx context.Context) error {
	logging.Info().Int("rules", len(e.Rules())).Msg("Detection engine started")

	failures := e.mitigator.RemovalFailures()
	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return ctx.Err()
		case rerr := <-failures:
			e.recordRemovalFailure(rerr)
		}
	}
}

func (e *Engine) recordRemovalFailure(rerr *RemovalError) {
	e.removalFailures.Add(1)
	ctx := logging.ContextWithScope(context.Background(), rerr.ScopeID)
	logging.Ctx(ctx).Error().Err(rerr).Str("channel_id", rerr.ChannelID).Msg("Content removal failed")

	event := AuditEvent{
		Kind:        AuditKindRemovalFailed,
		ScopeID:     rerr.ScopeID,
		Channel:     models.Channel{ID: rerr.ChannelID},
		ActionCount: len(rerr.IDs),
		Error:       rerr.Err.Error(),
		OccurredAt:  time.Now().UTC(),
	}
	if err := callErr(ctx, e.mitigator.cfg.CallTimeout, "audit", func(ctx context.Context) error {
		return e.audit.Record(ctx, event)
	}); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to audit removal failure")
	}
}

func (e *Engine) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownTimeout)
	defer cancel()

	if err := e.queue.Shutdown(ctx); err != nil {
		logging.Warn().Err(err).Msg("Scope queues did not drain before shutdown deadline")
	}
	if err := e.mitigator.WaitRemovals(ctx); err != nil {
		logging.Warn().Err(err).Msg("Detached removals still running at shutdown deadline")
	}

	// Removals that failed during the drain still get recorded.
	for {
		select {
		case rerr := <-e.mitigator.RemovalFailures():
			e.recordRemovalFailure(rerr)
		default:
			logging.Info().Msg("Detection engine stopped")
			return
		}
	}
}
