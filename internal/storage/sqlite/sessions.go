package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/mod/semver"

	"github.com/tapedesk/tape/internal/types"
)

// CreateSession inserts a new session row
func (s *Store) CreateSession(ctx context.Context, session *types.Session) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	var parentID interface{}
	if session.ParentID != "" {
		parentID = session.ParentID
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, title, state, model, parent_id, worker, depth,
			input_tokens, output_tokens, final_text, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		session.ID, session.Title, session.State, session.Model,
		parentID, session.Worker, session.Depth,
		session.Usage.InputTokens, session.Usage.OutputTokens,
		session.FinalText, session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID. A missing session returns (nil, nil).
func (s *Store) GetSession(ctx context.Context, id string) (*types.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, state, model, parent_id, worker, depth,
		       input_tokens, output_tokens, final_text, created_at, updated_at
		FROM sessions
		WHERE id = ?
	`, id)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// ListSessions returns sessions matching the filter, most recent first
func (s *Store) ListSessions(ctx context.Context, filter types.SessionFilter) ([]*types.Session, error) {
	query := `
		SELECT id, title, state, model, parent_id, worker, depth,
		       input_tokens, output_tokens, final_text, created_at, updated_at
		FROM sessions
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.State != nil {
		query += " AND state = ?"
		args = append(args, *filter.State)
	}
	if filter.RootsOnly {
		query += " AND parent_id IS NULL"
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*types.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// UpdateSessionState transitions a session's state, enforcing the state
// machine. The WHERE clause pins the expected current state so a concurrent
// writer cannot slip a transition in between the read and the write.
func (s *Store) UpdateSessionState(ctx context.Context, id string, newState types.SessionState) error {
	if !newState.IsValid() {
		return fmt.Errorf("invalid session state: %s", newState)
	}

	current, err := s.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get current session: %w", err)
	}
	if current == nil {
		return fmt.Errorf("session not found: %s", id)
	}

	if !current.State.CanTransitionTo(newState) {
		return fmt.Errorf("invalid state transition from %s to %s", current.State, newState)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET state = ?, updated_at = ?
		WHERE id = ? AND state = ?
	`, newState, time.Now(), id, current.State)
	if err != nil {
		return fmt.Errorf("failed to update session state: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("concurrent state modification detected for session %s", id)
	}
	return nil
}

// SaveCheckpoint atomically writes the session row and its checkpoint.
// This is the durability point of a step: either both the transcript and
// the session's state/usage land, or neither does.
func (s *Store) SaveCheckpoint(ctx context.Context, session *types.Session, cp *types.Checkpoint) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if cp.SchemaVersion == "" {
		cp.SchemaVersion = SchemaVersion
	}
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if cp.SessionID != session.ID {
		return fmt.Errorf("checkpoint session %s does not match session %s", cp.SessionID, session.ID)
	}

	transcriptJSON, err := json.Marshal(cp.Transcript)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}

	var pendingJSON interface{}
	if cp.Pending != nil {
		data, err := json.Marshal(cp.Pending)
		if err != nil {
			return fmt.Errorf("failed to marshal pending turn: %w", err)
		}
		pendingJSON = string(data)
	}

	now := time.Now()
	cp.UpdatedAt = now
	session.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE sessions
		SET title = ?, state = ?, model = ?, input_tokens = ?, output_tokens = ?,
		    final_text = ?, updated_at = ?
		WHERE id = ?
	`,
		session.Title, session.State, session.Model,
		session.Usage.InputTokens, session.Usage.OutputTokens,
		session.FinalText, now, session.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found: %s", session.ID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoints (session_id, schema_version, transcript, pending, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			transcript = excluded.transcript,
			pending = excluded.pending,
			updated_at = excluded.updated_at
	`, cp.SessionID, cp.SchemaVersion, string(transcriptJSON), pendingJSON, now)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return tx.Commit()
}

// GetCheckpoint retrieves the checkpoint for a session. A missing checkpoint
// returns (nil, nil). Checkpoints written under a different schema major are
// refused rather than misread.
func (s *Store) GetCheckpoint(ctx context.Context, sessionID string) (*types.Checkpoint, error) {
	var (
		cp             types.Checkpoint
		transcriptJSON string
		pendingJSON    sql.NullString
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, schema_version, transcript, pending, updated_at
		FROM checkpoints
		WHERE session_id = ?
	`, sessionID).Scan(&cp.SessionID, &cp.SchemaVersion, &transcriptJSON, &pendingJSON, &cp.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	if !semver.IsValid(cp.SchemaVersion) || semver.Major(cp.SchemaVersion) != semver.Major(SchemaVersion) {
		return nil, fmt.Errorf("checkpoint for session %s has incompatible schema %s (want %s); cannot resume",
			sessionID, cp.SchemaVersion, semver.Major(SchemaVersion))
	}

	if err := json.Unmarshal([]byte(transcriptJSON), &cp.Transcript); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
	}
	if pendingJSON.Valid && pendingJSON.String != "" {
		cp.Pending = &types.PendingTurn{}
		if err := json.Unmarshal([]byte(pendingJSON.String), cp.Pending); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pending turn: %w", err)
		}
	}

	return &cp, nil
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*types.Session, error) {
	var (
		session  types.Session
		parentID sql.NullString
	)
	err := row.Scan(
		&session.ID, &session.Title, &session.State, &session.Model,
		&parentID, &session.Worker, &session.Depth,
		&session.Usage.InputTokens, &session.Usage.OutputTokens,
		&session.FinalText, &session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		session.ParentID = parentID.String
	}
	return &session, nil
}
