// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package incident

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/burstguard/internal/detection"
)

// MemoryStore keeps incidents in process memory. Data is lost on restart.
type MemoryStore struct {
	mu        sync.RWMutex
	incidents []Incident
	nextID    int64
	nextNote  int64
	now       func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// CreateIncident stores a new incident and returns its id.
func (s *MemoryStore) CreateIncident(ctx context.Context, inc detection.NewIncident) (int64, error) {
	if err := validateNew(inc); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.incidents = append(s.incidents, Incident{
		ID:           s.nextID,
		ScopeID:      inc.ScopeID,
		Kind:         inc.Kind,
		TargetUserID: inc.TargetUserID,
		ModeratorID:  inc.ModeratorID,
		Body:         inc.Body,
		CreatedAt:    s.now().UTC(),
	})
	return s.nextID, nil
}

// AppendNote attaches a note to an existing incident.
func (s *MemoryStore) AppendNote(ctx context.Context, incidentID int64, moderatorID, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.incidents {
		if s.incidents[i].ID != incidentID {
			continue
		}
		s.nextNote++
		s.incidents[i].Notes = append(s.incidents[i].Notes, Note{
			ID:          s.nextNote,
			IncidentID:  incidentID,
			ModeratorID: moderatorID,
			Body:        body,
			CreatedAt:   s.now().UTC(),
		})
		return nil
	}
	return fmt.Errorf("%w: %d", ErrIncidentNotFound, incidentID)
}

// Get returns an incident with its notes.
func (s *MemoryStore) Get(ctx context.Context, id int64) (*Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.incidents {
		if s.incidents[i].ID == id {
			inc := copyIncident(&s.incidents[i])
			return &inc, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrIncidentNotFound, id)
}

// List returns matching incidents, newest first. Notes are included.
func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Incident
	skipped := 0
	for i := len(s.incidents) - 1; i >= 0; i-- {
		if !filter.matches(&s.incidents[i]) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, copyIncident(&s.incidents[i]))
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func copyIncident(inc *Incident) Incident {
	c := *inc
	c.Notes = append([]Note(nil), inc.Notes...)
	return c
}
