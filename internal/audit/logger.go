// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/burstguard/internal/detection"
	"github.com/tomtom215/burstguard/internal/logging"
)

// ErrBufferFull is returned by Record when the async buffer cannot take the event.
var ErrBufferFull = errors.New("audit buffer full")

// Config holds configuration for the audit logger.
type Config struct {
	// Enabled controls whether audit logging is active.
	Enabled bool `koanf:"enabled" json:"enabled"`

	// LogLevel filters events by minimum severity.
	LogLevel Severity `koanf:"log_level" json:"log_level"`

	// RetentionDays is how long to keep audit events.
	RetentionDays int `koanf:"retention_days" json:"retention_days"`

	// CleanupInterval is how often to run retention cleanup.
	CleanupInterval time.Duration `koanf:"cleanup_interval" json:"cleanup_interval"`

	// BufferSize is the size of the async write buffer.
	BufferSize int `koanf:"buffer_size" json:"buffer_size"`

	// LogToStdout also writes events to the application log.
	LogToStdout bool `koanf:"log_to_stdout" json:"log_to_stdout"`

	// IncludeDebug includes debug-level events.
	IncludeDebug bool `koanf:"include_debug" json:"include_debug"`

	// ForwardTimeout bounds each forwarder call.
	ForwardTimeout time.Duration `koanf:"forward_timeout" json:"forward_timeout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		LogLevel:        SeverityInfo,
		RetentionDays:   90,
		CleanupInterval: 24 * time.Hour,
		BufferSize:      1000,
		LogToStdout:     false,
		IncludeDebug:    false,
		ForwardTimeout:  10 * time.Second,
	}
}

// Forwarder receives stored events for delivery to an external channel.
type Forwarder interface {
	Name() string
	Enabled() bool
	Forward(ctx context.Context, event *Event) error
}

// SystemActor is the actor recorded for automatic moderation.
var SystemActor = Actor{ID: "burstguard", Type: "system", Name: "burstguard"}

// Logger is the audit logging service. It implements detection.AuditSink.
type Logger struct {
	config     *Config
	store      Store
	forwarders []Forwarder
	eventChan  chan *Event
	mu         sync.RWMutex
	stopChan   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

var _ detection.AuditSink = (*Logger)(nil)

// NewLogger creates a new audit logger and starts its async writer.
func NewLogger(store Store, config *Config, forwarders ...Forwarder) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.ForwardTimeout <= 0 {
		config.ForwardTimeout = DefaultConfig().ForwardTimeout
	}

	l := &Logger{
		config:     config,
		store:      store,
		forwarders: forwarders,
		eventChan:  make(chan *Event, config.BufferSize),
		stopChan:   make(chan struct{}),
	}

	l.wg.Add(1)
	go l.asyncWriter()

	return l
}

// asyncWriter processes events from the buffer.
func (l *Logger) asyncWriter() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		case event := <-l.eventChan:
			l.writeEvent(event)
		}
	}
}

// writeEvent persists an event and hands it to the forwarders.
func (l *Logger) writeEvent(event *Event) {
	l.mu.RLock()
	config := l.config
	l.mu.RUnlock()

	if config.LogToStdout {
		l.logToStdout(event)
	}

	if l.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := l.store.Save(ctx, event); err != nil {
			logging.Error().Err(err).Str("event_id", event.ID).Msg("Failed to save audit event")
		}
		cancel()
	}

	for _, f := range l.forwarders {
		if !f.Enabled() {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), config.ForwardTimeout)
		if err := f.Forward(ctx, event); err != nil {
			logging.Warn().Err(err).
				Str("forwarder", f.Name()).
				Str("event_id", event.ID).
				Msg("Failed to forward audit event")
		}
		cancel()
	}
}

func (l *Logger) logToStdout(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal audit event")
		return
	}
	logging.Info().RawJSON("event", data).Msg("Audit event")
}

// Log queues an event for writing. It reports false when the event was
// filtered or dropped.
func (l *Logger) Log(event *Event) bool {
	l.mu.RLock()
	config := l.config
	l.mu.RUnlock()

	if !config.Enabled || !shouldLog(event.Severity, config) {
		return false
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case l.eventChan <- event:
		return true
	default:
		logging.Warn().Str("event_id", event.ID).Str("type", string(event.Type)).Msg("Audit event buffer full, dropping event")
		return false
	}
}

// Record converts a detection audit event and queues it.
func (l *Logger) Record(ctx context.Context, ev detection.AuditEvent) error {
	event, err := FromDetection(ev)
	if err != nil {
		return err
	}
	event.CorrelationID = logging.CorrelationIDFromContext(ctx)

	l.mu.RLock()
	config := l.config
	l.mu.RUnlock()
	if !config.Enabled || !shouldLog(event.Severity, config) {
		return nil
	}
	if !l.Log(event) {
		return ErrBufferFull
	}
	return nil
}

// FromDetection maps an engine audit event onto the audit trail schema.
func FromDetection(ev detection.AuditEvent) (*Event, error) {
	md := SpamMetadata{
		ActionType:         string(ev.ActionType),
		ChannelID:          ev.Channel.ID,
		ChannelName:        ev.Channel.Name,
		Threshold:          ev.Threshold,
		IntervalSeconds:    ev.IntervalSeconds,
		ActionCount:        ev.ActionCount,
		RestrictionApplied: ev.RestrictionApplied,
		IncidentID:         ev.IncidentID,
		ArchiveURL:         ev.ArchiveURL,
		Error:              ev.Error,
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("marshal audit metadata: %w", err)
	}

	event := &Event{
		Timestamp:   ev.OccurredAt,
		Type:        EventType(ev.Kind),
		ScopeID:     ev.ScopeID,
		Actor:       SystemActor,
		Description: ev.Description,
		Metadata:    raw,
	}

	switch ev.Kind {
	case detection.AuditKindSpamDetected:
		event.Severity = SeverityWarning
		event.Outcome = OutcomeSuccess
		event.Action = "mitigate"
	case detection.AuditKindRemovalFailed:
		event.Severity = SeverityError
		event.Outcome = OutcomeFailure
		event.Action = "remove"
	default:
		event.Severity = SeverityInfo
		event.Outcome = OutcomeSuccess
		event.Action = ev.Kind
	}

	if ev.Member.ID != "" {
		event.Target = &Target{ID: ev.Member.ID, Type: "member", Name: ev.Member.Label()}
	} else if ev.Channel.ID != "" {
		event.Target = &Target{ID: ev.Channel.ID, Type: "channel", Name: ev.Channel.Label()}
	}

	return event, nil
}

func shouldLog(severity Severity, config *Config) bool {
	if severity == SeverityDebug && !config.IncludeDebug {
		return false
	}
	return severityOrder[severity] >= severityOrder[config.LogLevel]
}

// Close stops the writer after draining buffered events.
func (l *Logger) Close() error {
	l.stopOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
	return nil
}

// Serve runs the retention sweep until ctx is cancelled.
func (l *Logger) Serve(ctx context.Context) error {
	l.mu.RLock()
	interval := l.config.CleanupInterval
	l.mu.RUnlock()
	if interval <= 0 || l.store == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Cleanup(ctx)
		}
	}
}

// Cleanup deletes events older than the retention window.
func (l *Logger) Cleanup(ctx context.Context) int64 {
	l.mu.RLock()
	retention := l.config.RetentionDays
	l.mu.RUnlock()
	if retention <= 0 || l.store == nil {
		return 0
	}

	cutoff := time.Now().AddDate(0, 0, -retention)
	count, err := l.store.Delete(ctx, cutoff)
	if err != nil {
		logging.Error().Err(err).Msg("Audit cleanup error")
		return 0
	}
	if count > 0 {
		logging.Info().Int64("count", count).Msg("Cleaned up old audit events")
	}
	return count
}

// String names the service for supervisor logs.
func (l *Logger) String() string {
	return "audit-retention"
}

// Query retrieves events matching the filter.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return l.store.Query(ctx, filter)
}

// Count returns the number of events matching the filter.
func (l *Logger) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return l.store.Count(ctx, filter)
}

// SetEnabled enables or disables audit logging.
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Enabled = enabled
}

// Enabled returns whether audit logging is enabled.
func (l *Logger) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.Enabled
}
