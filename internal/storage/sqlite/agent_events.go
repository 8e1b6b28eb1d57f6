package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/tapedesk/tape/internal/events"
)

// StoreAgentEvent stores a new agent event in the database
func (s *Store) StoreAgentEvent(ctx context.Context, event *events.AgentEvent) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	query := `
		INSERT INTO agent_events (
			id, type, timestamp, session_id, worker, severity, message, data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		event.ID,
		event.Type,
		event.Timestamp,
		event.SessionID,
		event.Worker,
		event.Severity,
		event.Message,
		string(dataJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to store agent event (type=%s, session=%s): %w", event.Type, event.SessionID, err)
	}

	return nil
}

// GetAgentEvents retrieves events matching the given filter
func (s *Store) GetAgentEvents(ctx context.Context, filter events.EventFilter) ([]*events.AgentEvent, error) {
	query := `
		SELECT id, type, timestamp, session_id, worker, severity, message, data
		FROM agent_events
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, filter.Type)
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, filter.Severity)
	}
	if !filter.AfterTime.IsZero() {
		query += " AND timestamp > ?"
		args = append(args, filter.AfterTime)
	}
	if !filter.BeforeTime.IsZero() {
		query += " AND timestamp < ?"
		args = append(args, filter.BeforeTime)
	}

	// Most recent first
	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetAgentEventsBySession retrieves all events for a specific session,
// oldest first so the feed reads as a timeline
func (s *Store) GetAgentEventsBySession(ctx context.Context, sessionID string) ([]*events.AgentEvent, error) {
	query := `
		SELECT id, type, timestamp, session_id, worker, severity, message, data
		FROM agent_events
		WHERE session_id = ?
		ORDER BY timestamp ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent events by session: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetRecentAgentEvents retrieves the most recent events up to the specified limit
func (s *Store) GetRecentAgentEvents(ctx context.Context, limit int) ([]*events.AgentEvent, error) {
	query := `
		SELECT id, type, timestamp, session_id, worker, severity, message, data
		FROM agent_events
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent agent events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// scanEvents scans rows into AgentEvent structs
func scanEvents(rows *sql.Rows) ([]*events.AgentEvent, error) {
	var result []*events.AgentEvent
	for rows.Next() {
		var (
			event    events.AgentEvent
			dataJSON string
		)
		err := rows.Scan(
			&event.ID,
			&event.Type,
			&event.Timestamp,
			&event.SessionID,
			&event.Worker,
			&event.Severity,
			&event.Message,
			&dataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent event: %w", err)
		}

		if err := json.Unmarshal([]byte(dataJSON), &event.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
		}

		result = append(result, &event)
	}
	return result, rows.Err()
}
