// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/burstguard/internal/database/query"
	"github.com/tomtom215/burstguard/internal/logging"
	"github.com/tomtom215/burstguard/internal/metrics"
)

// DuckDBStore implements Store on the audit_events table.
type DuckDBStore struct {
	db *sql.DB
}

// NewDuckDBStore creates a DuckDB-backed audit store. Call CreateTable
// before first use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

var auditSchema = []string{
	`CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		type TEXT NOT NULL,
		severity TEXT NOT NULL,
		outcome TEXT NOT NULL,
		scope_id TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		actor_type TEXT NOT NULL,
		actor_name TEXT,
		target_id TEXT,
		target_type TEXT,
		target_name TEXT,
		action TEXT NOT NULL,
		description TEXT NOT NULL,
		metadata TEXT,
		correlation_id TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_scope ON audit_events(scope_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_events(type)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_target_id ON audit_events(target_id)`,
}

// CreateTable creates the audit_events table if it doesn't exist.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	for _, stmt := range auditSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute audit schema statement: %w", err)
		}
	}
	logging.Debug().Msg("Audit events table created/verified")
	return nil
}

const insertAuditEvent = `
	INSERT INTO audit_events (
		id, timestamp, type, severity, outcome, scope_id,
		actor_id, actor_type, actor_name,
		target_id, target_type, target_name,
		action, description, metadata, correlation_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Save persists an audit event.
func (s *DuckDBStore) Save(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	start := time.Now()

	var targetID, targetType, targetName *string
	if event.Target != nil {
		targetID, targetType, targetName = &event.Target.ID, &event.Target.Type, &event.Target.Name
	}
	var metadata *string
	if len(event.Metadata) > 0 {
		m := string(event.Metadata)
		metadata = &m
	}

	_, err := s.db.ExecContext(ctx, insertAuditEvent,
		event.ID, event.Timestamp.UTC(), string(event.Type), string(event.Severity), string(event.Outcome), event.ScopeID,
		event.Actor.ID, event.Actor.Type, event.Actor.Name,
		targetID, targetType, targetName,
		event.Action, event.Description, metadata, event.CorrelationID,
	)
	metrics.RecordDBQuery("insert", "audit_events", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to save audit event: %w", err)
	}
	return nil
}

const selectAuditEvents = `
	SELECT
		id, timestamp, type, severity, outcome, scope_id,
		actor_id, actor_type, actor_name,
		target_id, target_type, target_name,
		action, description, metadata, correlation_id
	FROM audit_events`

// Get retrieves an event by ID.
func (s *DuckDBStore) Get(ctx context.Context, id string) (*Event, error) {
	row := s.db.QueryRowContext(ctx, selectAuditEvents+" WHERE id = ?", id)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
		}
		return nil, fmt.Errorf("failed to get audit event: %w", err)
	}
	return event, nil
}

// Query retrieves events matching the filter, most recent first.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	start := time.Now()
	where, args := buildFilterConditions(filter)
	q := query.Paginate(selectAuditEvents+where+" ORDER BY timestamp DESC", filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	metrics.RecordDBQuery("select", "audit_events", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			logging.Warn().Err(err).Msg("Failed to scan audit event row")
			continue
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return events, nil
}

// Count returns the number of events matching the filter.
func (s *DuckDBStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	where, args := buildFilterConditions(filter)
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events"+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}

// Delete removes events older than the given time.
func (s *DuckDBStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_events WHERE timestamp < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit events: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}
	return count, nil
}

// buildFilterConditions renders a WHERE clause (with leading space) and its args.
func buildFilterConditions(filter QueryFilter) (string, []interface{}) {
	wb := query.NewWhereBuilder()
	wb.AddIn("type", query.Strings(filter.Types))
	wb.AddIn("severity", query.Strings(filter.Severities))
	wb.AddEquals("scope_id", filter.ScopeID)
	wb.AddEquals("target_id", filter.TargetID)
	wb.AddEquals("correlation_id", filter.CorrelationID)
	wb.AddTimeRange("timestamp", filter.StartTime, filter.EndTime)
	return wb.BuildWithPrefix()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var (
		event                                   Event
		eventType, severity, outcome            string
		actorName, correlationID                sql.NullString
		targetID, targetType, targetName, mdRaw sql.NullString
	)
	if err := row.Scan(
		&event.ID, &event.Timestamp, &eventType, &severity, &outcome, &event.ScopeID,
		&event.Actor.ID, &event.Actor.Type, &actorName,
		&targetID, &targetType, &targetName,
		&event.Action, &event.Description, &mdRaw, &correlationID,
	); err != nil {
		return nil, err
	}

	event.Type = EventType(eventType)
	event.Severity = Severity(severity)
	event.Outcome = Outcome(outcome)
	event.Actor.Name = actorName.String
	event.CorrelationID = correlationID.String
	if targetID.Valid {
		event.Target = &Target{ID: targetID.String, Type: targetType.String, Name: targetName.String}
	}
	if mdRaw.Valid && mdRaw.String != "" {
		event.Metadata = json.RawMessage(mdRaw.String)
	}
	return &event, nil
}
