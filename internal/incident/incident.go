// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

// Package incident stores moderation incidents and their notes.
//
// Restrictions open "mute" incidents; detections either append a note to
// that incident or open a standalone "note" incident. Both stores implement
// detection.IncidentStore plus the read side used by the HTTP API.
package incident

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/burstguard/internal/detection"
)

// ErrIncidentNotFound is returned for unknown incident ids.
var ErrIncidentNotFound = errors.New("incident not found")

// Incident is a stored moderation record.
type Incident struct {
	ID           int64                  `json:"id"`
	ScopeID      string                 `json:"scope_id"`
	Kind         detection.IncidentKind `json:"kind"`
	TargetUserID string                 `json:"target_user_id"`
	ModeratorID  string                 `json:"moderator_id"`
	Body         string                 `json:"body"`
	CreatedAt    time.Time              `json:"created_at"`
	Notes        []Note                 `json:"notes,omitempty"`
}

// Note is an addendum attached to an incident.
type Note struct {
	ID          int64     `json:"id"`
	IncidentID  int64     `json:"incident_id"`
	ModeratorID string    `json:"moderator_id"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// Filter selects incidents for listing. Zero-valued fields match everything.
type Filter struct {
	ScopeID      string
	TargetUserID string
	Kinds        []detection.IncidentKind
	Since        *time.Time
	Limit        int
	Offset       int
}

func (f *Filter) matches(inc *Incident) bool {
	if f.ScopeID != "" && inc.ScopeID != f.ScopeID {
		return false
	}
	if f.TargetUserID != "" && inc.TargetUserID != f.TargetUserID {
		return false
	}
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if inc.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Since != nil && inc.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Store is the full incident store.
type Store interface {
	detection.IncidentStore
	Get(ctx context.Context, id int64) (*Incident, error)
	List(ctx context.Context, filter Filter) ([]Incident, error)
}

func validateNew(inc detection.NewIncident) error {
	switch {
	case inc.ScopeID == "":
		return fmt.Errorf("incident scope is required")
	case inc.Kind != detection.IncidentNote && inc.Kind != detection.IncidentMute:
		return fmt.Errorf("unknown incident kind %q", inc.Kind)
	case inc.TargetUserID == "":
		return fmt.Errorf("incident target is required")
	}
	return nil
}
