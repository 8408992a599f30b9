// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package audit

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// ErrEventNotFound is returned by Store.Get for unknown ids.
var ErrEventNotFound = errors.New("audit event not found")

// EventType categorizes audit events.
type EventType string

const (
	EventTypeSpamDetected  EventType = "spam.detected"
	EventTypeRemovalFailed EventType = "spam.removal_failed"
)

// Severity indicates the importance of an audit event.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

var severityOrder = map[Severity]int{
	SeverityDebug:    0,
	SeverityInfo:     1,
	SeverityWarning:  2,
	SeverityError:    3,
	SeverityCritical: 4,
}

// Outcome indicates the result of the audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Actor identifies who performed the action.
type Actor struct {
	ID   string `json:"id"`
	Type string `json:"type"` // "system", "moderator"
	Name string `json:"name,omitempty"`
}

// Target identifies the subject of the action.
type Target struct {
	ID   string `json:"id"`
	Type string `json:"type"` // "member", "channel"
	Name string `json:"name,omitempty"`
}

// Event is a single audit trail entry.
type Event struct {
	ID            string          `json:"id"`
	Timestamp     time.Time       `json:"timestamp"`
	Type          EventType       `json:"type"`
	Severity      Severity        `json:"severity"`
	Outcome       Outcome         `json:"outcome"`
	ScopeID       string          `json:"scope_id"`
	Actor         Actor           `json:"actor"`
	Target        *Target         `json:"target,omitempty"`
	Action        string          `json:"action"`
	Description   string          `json:"description"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// SpamMetadata is the Metadata payload of spam.* events.
type SpamMetadata struct {
	ActionType         string `json:"action_type"`
	ChannelID          string `json:"channel_id,omitempty"`
	ChannelName        string `json:"channel_name,omitempty"`
	Threshold          int    `json:"threshold"`
	IntervalSeconds    int    `json:"interval_seconds"`
	ActionCount        int    `json:"action_count"`
	RestrictionApplied bool   `json:"restriction_applied"`
	IncidentID         int64  `json:"incident_id,omitempty"`
	ArchiveURL         string `json:"archive_url,omitempty"`
	Error              string `json:"error,omitempty"`
}

// SpamMetadata decodes the event metadata. A nil result means the event
// carries none or it is not a spam payload.
func (e *Event) SpamMetadata() *SpamMetadata {
	if len(e.Metadata) == 0 {
		return nil
	}
	var md SpamMetadata
	if err := json.Unmarshal(e.Metadata, &md); err != nil {
		return nil
	}
	return &md
}

// Store persists audit events.
type Store interface {
	Save(ctx context.Context, event *Event) error
	Get(ctx context.Context, id string) (*Event, error)
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)
	Count(ctx context.Context, filter QueryFilter) (int64, error)
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}

// QueryFilter selects audit events. Zero-valued fields match everything.
type QueryFilter struct {
	Types         []EventType `json:"types,omitempty"`
	Severities    []Severity  `json:"severities,omitempty"`
	ScopeID       string      `json:"scope_id,omitempty"`
	TargetID      string      `json:"target_id,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	StartTime     *time.Time  `json:"start_time,omitempty"`
	EndTime       *time.Time  `json:"end_time,omitempty"`
	Limit         int         `json:"limit,omitempty"`
	Offset        int         `json:"offset,omitempty"`
}

// Matches reports whether event satisfies every criterion of the filter.
func (f *QueryFilter) Matches(event *Event) bool {
	if len(f.Types) > 0 && !contains(f.Types, event.Type) {
		return false
	}
	if len(f.Severities) > 0 && !contains(f.Severities, event.Severity) {
		return false
	}
	if f.ScopeID != "" && event.ScopeID != f.ScopeID {
		return false
	}
	if f.TargetID != "" && (event.Target == nil || event.Target.ID != f.TargetID) {
		return false
	}
	if f.CorrelationID != "" && event.CorrelationID != f.CorrelationID {
		return false
	}
	if f.StartTime != nil && event.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && event.Timestamp.After(*f.EndTime) {
		return false
	}
	return true
}

func contains[T comparable](values []T, v T) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
