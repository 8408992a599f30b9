// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package incident

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/burstguard/internal/database"
	"github.com/tomtom215/burstguard/internal/database/query"
	"github.com/tomtom215/burstguard/internal/detection"
	"github.com/tomtom215/burstguard/internal/logging"
	"github.com/tomtom215/burstguard/internal/metrics"
)

// writeAttempts bounds retries of writes that hit a DuckDB transaction conflict.
const writeAttempts = 3

// DuckDBStore persists incidents in the incidents and incident_notes tables.
type DuckDBStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*DuckDBStore)(nil)

// NewDuckDBStore creates a DuckDB-backed store. Call CreateTables before first use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db, now: time.Now}
}

var incidentSchema = []string{
	`CREATE SEQUENCE IF NOT EXISTS incident_id_seq START 1`,
	`CREATE TABLE IF NOT EXISTS incidents (
		id BIGINT PRIMARY KEY DEFAULT nextval('incident_id_seq'),
		scope_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		target_user_id TEXT NOT NULL,
		moderator_id TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE SEQUENCE IF NOT EXISTS incident_note_id_seq START 1`,
	`CREATE TABLE IF NOT EXISTS incident_notes (
		id BIGINT PRIMARY KEY DEFAULT nextval('incident_note_id_seq'),
		incident_id BIGINT NOT NULL,
		moderator_id TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_incidents_scope ON incidents(scope_id)`,
	`CREATE INDEX IF NOT EXISTS idx_incidents_target ON incidents(target_user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_incident_notes_incident ON incident_notes(incident_id)`,
}

// CreateTables creates the incident tables if they don't exist.
func (s *DuckDBStore) CreateTables(ctx context.Context) error {
	for _, stmt := range incidentSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute incident schema statement: %w", err)
		}
	}
	logging.Debug().Msg("Incident tables created/verified")
	return nil
}

// CreateIncident inserts an incident and returns its id.
func (s *DuckDBStore) CreateIncident(ctx context.Context, inc detection.NewIncident) (int64, error) {
	if err := validateNew(inc); err != nil {
		return 0, err
	}

	start := time.Now()
	var id int64
	err := database.RetryOnConflict(ctx, writeAttempts, func() error {
		return s.db.QueryRowContext(ctx, `
			INSERT INTO incidents (scope_id, kind, target_user_id, moderator_id, body, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING id`,
			inc.ScopeID, string(inc.Kind), inc.TargetUserID, inc.ModeratorID, inc.Body, s.now().UTC(),
		).Scan(&id)
	})
	metrics.RecordDBQuery("insert", "incidents", time.Since(start), err)
	if err != nil {
		return 0, fmt.Errorf("failed to create incident: %w", err)
	}
	return id, nil
}

// AppendNote attaches a note to an existing incident.
func (s *DuckDBStore) AppendNote(ctx context.Context, incidentID int64, moderatorID, body string) error {
	start := time.Now()
	var affected int64
	err := database.RetryOnConflict(ctx, writeAttempts, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO incident_notes (incident_id, moderator_id, body, created_at)
			SELECT ?, ?, ?, ?
			WHERE EXISTS (SELECT 1 FROM incidents WHERE id = ?)`,
			incidentID, moderatorID, body, s.now().UTC(), incidentID,
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	metrics.RecordDBQuery("insert", "incident_notes", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to append incident note: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", ErrIncidentNotFound, incidentID)
	}
	return nil
}

const selectIncidents = `SELECT id, scope_id, kind, target_user_id, moderator_id, body, created_at FROM incidents`

// Get returns an incident with its notes.
func (s *DuckDBStore) Get(ctx context.Context, id int64) (*Incident, error) {
	row := s.db.QueryRowContext(ctx, selectIncidents+" WHERE id = ?", id)
	inc, err := scanIncident(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrIncidentNotFound, id)
		}
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}

	notes, err := s.notes(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	inc.Notes = notes[id]
	return inc, nil
}

// List returns matching incidents, newest first, with their notes.
func (s *DuckDBStore) List(ctx context.Context, filter Filter) ([]Incident, error) {
	start := time.Now()

	wb := query.NewWhereBuilder()
	wb.AddEquals("scope_id", filter.ScopeID)
	wb.AddEquals("target_user_id", filter.TargetUserID)
	wb.AddIn("kind", query.Strings(filter.Kinds))
	wb.AddTimeRange("created_at", filter.Since, nil)
	where, args := wb.BuildWithPrefix()

	q := query.Paginate(selectIncidents+where+" ORDER BY id DESC", filter.Limit, filter.Offset)
	rows, err := s.db.QueryContext(ctx, q, args...)
	metrics.RecordDBQuery("select", "incidents", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	var incidents []Incident
	var ids []int64
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		incidents = append(incidents, *inc)
		ids = append(ids, inc.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating incidents: %w", err)
	}

	notes, err := s.notes(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range incidents {
		incidents[i].Notes = notes[incidents[i].ID]
	}
	return incidents, nil
}

// notes loads the notes of the given incidents keyed by incident id.
func (s *DuckDBStore) notes(ctx context.Context, ids []int64) (map[int64][]Note, error) {
	out := make(map[int64][]Note, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	wb := query.NewWhereBuilder()
	wb.AddClause("incident_id IN ("+strings.Join(placeholders, ", ")+")", args...)
	where, whereArgs := wb.BuildWithPrefix()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, incident_id, moderator_id, body, created_at FROM incident_notes`+where+` ORDER BY id`, whereArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to load incident notes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.IncidentID, &n.ModeratorID, &n.Body, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan incident note: %w", err)
		}
		out[n.IncidentID] = append(out[n.IncidentID], n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating incident notes: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIncident(row rowScanner) (*Incident, error) {
	var inc Incident
	var kind string
	if err := row.Scan(&inc.ID, &inc.ScopeID, &kind, &inc.TargetUserID, &inc.ModeratorID, &inc.Body, &inc.CreatedAt); err != nil {
		return nil, err
	}
	inc.Kind = detection.IncidentKind(kind)
	return &inc, nil
}
