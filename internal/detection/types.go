// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package detection

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/burstguard/internal/ledger"
	"github.com/tomtom215/burstguard/internal/models"
)

// DefaultMuteTime is the restriction length used when a rule sets none.
const DefaultMuteTime = 120 * time.Second

// SpamConfig is the threshold configuration for one action type.
type SpamConfig struct {
	// Count is the threshold. A burst trips when the windowed count is
	// strictly greater than Count.
	Count int `koanf:"count" json:"count"`

	// Interval is the window length in seconds.
	Interval int `koanf:"interval" json:"interval"`

	// Mute restricts the user when the burst trips.
	Mute bool `koanf:"mute" json:"mute"`

	// MuteTime is the restriction length. Zero means DefaultMuteTime.
	MuteTime time.Duration `koanf:"mute_time" json:"mute_time,omitempty"`

	// Clean removes the offending content. Nil means true.
	Clean *bool `koanf:"clean" json:"clean,omitempty"`
}

// Validate checks the config for usable values.
func (c SpamConfig) Validate() error {
	if c.Count <= 0 {
		return fmt.Errorf("%w: count must be positive, got %d", ErrInvalidConfig, c.Count)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive, got %d", ErrInvalidConfig, c.Interval)
	}
	if c.MuteTime < 0 {
		return fmt.Errorf("%w: mute_time must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Window returns the detection window.
func (c SpamConfig) Window() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// RestrictionDuration returns MuteTime or the default.
func (c SpamConfig) RestrictionDuration() time.Duration {
	if c.MuteTime > 0 {
		return c.MuteTime
	}
	return DefaultMuteTime
}

// ShouldClean reports whether content removal is enabled.
func (c SpamConfig) ShouldClean() bool {
	return c.Clean == nil || *c.Clean
}

// Detection is the outcome of one burst evaluation.
type Detection struct {
	Key         ledger.Key
	Tripped     bool
	Count       int
	Since       time.Time
	EvaluatedAt time.Time

	// Records is populated only when Tripped, ordered by action ID.
	Records []models.ActionRecord
}

// Actions returns the detected actions in ID order.
func (d *Detection) Actions() []models.Action {
	out := make([]models.Action, len(d.Records))
	for i := range d.Records {
		out[i] = d.Records[i].Action
	}
	return out
}

// LastActionID returns the highest detected action ID.
func (d *Detection) LastActionID() models.ActionID {
	var last models.ActionID
	for i := range d.Records {
		if d.Records[i].Action.ID > last {
			last = d.Records[i].Action.ID
		}
	}
	return last
}

// MitigationResult summarizes the effects applied for one burst.
type MitigationResult struct {
	RestrictionApplied bool
	RestrictedUntil    time.Time

	// RestrictionIncidentID is the incident created by the restriction, if any.
	RestrictionIncidentID int64

	// IncidentID is the incident that received the detection note.
	IncidentID int64

	// HandledIDs are the detected and swept action IDs, ascending and unique.
	HandledIDs []models.ActionID

	RemovalStarted bool
	ArchiveURL     string

	// Failures lists the steps that failed.
	Failures []string
}

// RestrictionRequest asks the platform to temporarily restrict a member.
type RestrictionRequest struct {
	ScopeID     string
	UserID      string
	ModeratorID string
	Duration    time.Duration
	Reason      string
}

// RestrictionResult describes an applied restriction.
type RestrictionResult struct {
	Until time.Time

	// IncidentID is the incident recorded for the restriction. Zero if none.
	IncidentID int64
}

// IncidentKind classifies incident records.
type IncidentKind string

const (
	IncidentNote IncidentKind = "note"
	IncidentMute IncidentKind = "mute"
)

// NewIncident describes an incident to create.
type NewIncident struct {
	ScopeID      string
	Kind         IncidentKind
	TargetUserID string
	ModeratorID  string
	Body         string
}

// DeletionKindMessageDelete marks removals that the deletion log should ignore.
const DeletionKindMessageDelete = "message_delete"

// Audit event kinds.
const (
	AuditKindSpamDetected  = "spam.detected"
	AuditKindRemovalFailed = "spam.removal_failed"
)

// AuditEvent is the structured record emitted for every mitigation and for
// asynchronous removal failures.
type AuditEvent struct {
	Kind               string
	ScopeID            string
	ActionType         models.ActionType
	Member             models.Member
	Channel            models.Channel
	Description        string
	Threshold          int
	IntervalSeconds    int
	ActionCount        int
	RestrictionApplied bool
	IncidentID         int64
	ArchiveURL         string
	Error              string
	OccurredAt         time.Time
}

// ContentSource lists actions a user posted after a given action.
type ContentSource interface {
	FetchAfter(ctx context.Context, channelID, userID string, after models.ActionID) ([]models.Action, error)
}

// Directory resolves members and channels to display snapshots.
// ResolveMember returns ErrNotApplicable when the user is not in the scope.
type Directory interface {
	ResolveMember(ctx context.Context, scopeID, userID string) (*models.Member, error)
	ResolveChannel(ctx context.Context, channelID string) (*models.Channel, error)
}

// Restrictor applies temporary restrictions.
type Restrictor interface {
	Restrict(ctx context.Context, req RestrictionRequest) (*RestrictionResult, error)
}

// ContentRemover deletes actions from a channel.
type ContentRemover interface {
	Remove(ctx context.Context, channelID string, ids []models.ActionID) error
}

// DeletionLogSuppressor marks removals so the deletion log does not report them.
type DeletionLogSuppressor interface {
	Ignore(kind string, id models.ActionID)
}

// IncidentStore records moderation incidents.
type IncidentStore interface {
	CreateIncident(ctx context.Context, inc NewIncident) (int64, error)
	AppendNote(ctx context.Context, incidentID int64, moderatorID, body string) error
}

// Archiver stores content and returns a URL to view it.
type Archiver interface {
	Archive(ctx context.Context, scopeID string, actions []models.Action) (string, error)
}

// AuditSink receives structured audit events.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}
