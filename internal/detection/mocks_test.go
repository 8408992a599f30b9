// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package detection

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/burstguard/internal/dedup"
	"github.com/tomtom215/burstguard/internal/ledger"
	"github.com/tomtom215/burstguard/internal/models"
)

var testBase = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func fixedClock(offset time.Duration) func() time.Time {
	return func() time.Time { return testBase.Add(offset) }
}

func testAction(id int, offset time.Duration) models.Action {
	return models.Action{
		ID:        models.ActionID(id),
		ScopeID:   "g1",
		UserID:    "u1",
		ChannelID: "c1",
		PostedAt:  testBase.Add(offset),
		Content:   "spam",
	}
}

func testKey(t models.ActionType) ledger.Key {
	return ledger.Key{ScopeID: "g1", Type: t, UserID: "u1", ChannelID: "c1"}
}

func boolPtr(b bool) *bool { return &b }

type mockSource struct {
	mu       sync.Mutex
	trailing []models.Action
	err      error
	calls    []models.ActionID
}

func (m *mockSource) FetchAfter(_ context.Context, _, _ string, after models.ActionID) ([]models.Action, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, after)
	if m.err != nil {
		return nil, m.err
	}
	var out []models.Action
	for _, a := range m.trailing {
		if a.ID > after {
			out = append(out, a)
		}
	}
	return out, nil
}

type mockDirectory struct {
	memberErr error
	member    *models.Member
}

func (m *mockDirectory) ResolveMember(_ context.Context, _, userID string) (*models.Member, error) {
	if m.memberErr != nil {
		return nil, m.memberErr
	}
	if m.member != nil {
		return m.member, nil
	}
	return &models.Member{ID: userID, Username: "spammer"}, nil
}

func (m *mockDirectory) ResolveChannel(_ context.Context, channelID string) (*models.Channel, error) {
	return &models.Channel{ID: channelID, Name: "general"}, nil
}

type mockRestrictor struct {
	mu         sync.Mutex
	requests   []RestrictionRequest
	incidentID int64
	err        error
}

func (m *mockRestrictor) Restrict(_ context.Context, req RestrictionRequest) (*RestrictionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return &RestrictionResult{Until: testBase.Add(req.Duration), IncidentID: m.incidentID}, nil
}

func (m *mockRestrictor) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type mockSuppressor struct {
	mu      sync.Mutex
	ignored map[models.ActionID]string
}

func newMockSuppressor() *mockSuppressor {
	return &mockSuppressor{ignored: make(map[models.ActionID]string)}
}

func (m *mockSuppressor) Ignore(kind string, id models.ActionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ignored[id] = kind
}

func (m *mockSuppressor) has(id models.ActionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ignored[id]
	return ok
}

type mockRemover struct {
	mu         sync.Mutex
	suppressor *mockSuppressor
	calls      [][]models.ActionID
	// unsuppressed counts ids removed before being marked ignored.
	unsuppressed int
	err          error
}

func (m *mockRemover) Remove(_ context.Context, _ string, ids []models.ActionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if m.suppressor != nil && !m.suppressor.has(id) {
			m.unsuppressed++
		}
	}
	m.calls = append(m.calls, ids)
	return m.err
}

func (m *mockRemover) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockIncidents struct {
	mu        sync.Mutex
	created   []NewIncident
	notes     map[int64][]string
	nextID    int64
	createErr error
	appendErr error
}

func newMockIncidents() *mockIncidents {
	return &mockIncidents{notes: make(map[int64][]string), nextID: 100}
}

func (m *mockIncidents) CreateIncident(_ context.Context, inc NewIncident) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return 0, m.createErr
	}
	m.nextID++
	m.created = append(m.created, inc)
	return m.nextID, nil
}

func (m *mockIncidents) AppendNote(_ context.Context, id int64, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.notes[id] = append(m.notes[id], body)
	return nil
}

func (m *mockIncidents) createdCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created)
}

type mockArchiver struct {
	mu       sync.Mutex
	archives [][]models.Action
	err      error
}

func (m *mockArchiver) Archive(_ context.Context, _ string, actions []models.Action) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.archives = append(m.archives, actions)
	return "https://bg.example/archives/a1", nil
}

type mockAudit struct {
	mu     sync.Mutex
	events []AuditEvent
	err    error
}

func (m *mockAudit) Record(_ context.Context, event AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *mockAudit) byKind(kind string) []AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AuditEvent
	for _, e := range m.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// harness bundles an in-memory ledger and tracker with mock collaborators.
type harness struct {
	ledger     *ledger.MemoryLedger
	dedup      *dedup.MemoryTracker
	source     *mockSource
	directory  *mockDirectory
	restrictor *mockRestrictor
	remover    *mockRemover
	suppressor *mockSuppressor
	incidents  *mockIncidents
	archiver   *mockArchiver
	audit      *mockAudit
}

func newHarness() *harness {
	sup := newMockSuppressor()
	return &harness{
		ledger:     ledger.NewMemoryLedger(),
		dedup:      dedup.NewMemoryTracker(),
		source:     &mockSource{},
		directory:  &mockDirectory{},
		restrictor: &mockRestrictor{},
		remover:    &mockRemover{suppressor: sup},
		suppressor: sup,
		incidents:  newMockIncidents(),
		archiver:   &mockArchiver{},
		audit:      &mockAudit{},
	}
}

func (h *harness) collaborators() Collaborators {
	return Collaborators{
		Ledger:     h.ledger,
		Dedup:      h.dedup,
		Source:     h.source,
		Directory:  h.directory,
		Restrictor: h.restrictor,
		Remover:    h.remover,
		Suppressor: h.suppressor,
		Incidents:  h.incidents,
		Archiver:   h.archiver,
		Audit:      h.audit,
	}
}
