package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tapedesk/tape/internal/types"
)

// CreateInterrupt inserts a new interrupt request. The unique index on
// (session_id, call_id) rejects a second gate for the same tool call.
func (s *Store) CreateInterrupt(ctx context.Context, req *types.InterruptRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}

	allowedJSON, err := json.Marshal(req.Allowed)
	if err != nil {
		return fmt.Errorf("failed to marshal allowed decisions: %w", err)
	}

	args := string(req.Call.Args)
	if args == "" {
		args = "{}"
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interrupts (
			id, session_id, call_id, tool, args, description, policy,
			allowed, state, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		req.ID, req.SessionID, req.Call.ID, req.Call.Name, args,
		req.Description, req.Policy, string(allowedJSON), req.State, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert interrupt: %w", err)
	}
	return nil
}

// GetInterrupt retrieves an interrupt by ID. A missing row returns (nil, nil).
func (s *Store) GetInterrupt(ctx context.Context, id string) (*types.InterruptRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, call_id, tool, args, description, policy,
		       allowed, state, decision, reason, created_at, decided_at, resumed_at
		FROM interrupts
		WHERE id = ?
	`, id)

	req, err := scanInterrupt(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get interrupt: %w", err)
	}
	return req, nil
}

// ListInterrupts returns interrupts matching the filter, oldest first so an
// approvals queue reads top to bottom.
func (s *Store) ListInterrupts(ctx context.Context, filter types.InterruptFilter) ([]*types.InterruptRequest, error) {
	query := `
		SELECT id, session_id, call_id, tool, args, description, policy,
		       allowed, state, decision, reason, created_at, decided_at, resumed_at
		FROM interrupts
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.SessionID != "" {
		query += " AND session_id = ?"
		args = append(args, filter.SessionID)
	}
	if filter.PendingOnly {
		query += " AND state = ?"
		args = append(args, types.InterruptStateAwaitingApproval)
	}

	query += " ORDER BY created_at ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list interrupts: %w", err)
	}
	defer rows.Close()

	var reqs []*types.InterruptRequest
	for rows.Next() {
		req, err := scanInterrupt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interrupt: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

// ResolveInterrupt records a human decision. The WHERE clause pins the
// awaiting_approval state so a second decision for the same interrupt
// fails instead of silently overwriting the first.
func (s *Store) ResolveInterrupt(ctx context.Context, id string, decision types.Decision, reason string) error {
	if !decision.IsValid() {
		return fmt.Errorf("invalid decision: %s", decision)
	}

	newState := types.InterruptStateApproved
	if decision == types.DecisionReject {
		newState = types.InterruptStateRejected
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE interrupts
		SET state = ?, decision = ?, reason = ?, decided_at = ?
		WHERE id = ? AND state = ?
	`, newState, decision, reason, time.Now(), id, types.InterruptStateAwaitingApproval)
	if err != nil {
		return fmt.Errorf("failed to resolve interrupt: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		existing, err := s.GetInterrupt(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to verify interrupt: %w", err)
		}
		if existing == nil {
			return fmt.Errorf("interrupt not found: %s", id)
		}
		return fmt.Errorf("interrupt %s already decided (state: %s)", id, existing.State)
	}
	return nil
}

// MarkInterruptResumed records that the decision was applied and the loop
// moved on. Only decided interrupts can be resumed.
func (s *Store) MarkInterruptResumed(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE interrupts
		SET state = ?, resumed_at = ?
		WHERE id = ? AND state IN (?, ?)
	`, types.InterruptStateResumed, time.Now(), id,
		types.InterruptStateApproved, types.InterruptStateRejected)
	if err != nil {
		return fmt.Errorf("failed to mark interrupt resumed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		existing, err := s.GetInterrupt(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to verify interrupt: %w", err)
		}
		if existing == nil {
			return fmt.Errorf("interrupt not found: %s", id)
		}
		return fmt.Errorf("interrupt %s is not decided (state: %s)", id, existing.State)
	}
	return nil
}

func scanInterrupt(row rowScanner) (*types.InterruptRequest, error) {
	var (
		req         types.InterruptRequest
		argsJSON    string
		allowedJSON string
		decision    sql.NullString
		reason      sql.NullString
		decidedAt   sql.NullTime
		resumedAt   sql.NullTime
	)

	err := row.Scan(
		&req.ID, &req.SessionID, &req.Call.ID, &req.Call.Name, &argsJSON,
		&req.Description, &req.Policy, &allowedJSON, &req.State,
		&decision, &reason, &req.CreatedAt, &decidedAt, &resumedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Call.Args = json.RawMessage(argsJSON)
	if err := json.Unmarshal([]byte(allowedJSON), &req.Allowed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal allowed decisions: %w", err)
	}
	if decision.Valid {
		req.Decision = types.Decision(decision.String)
	}
	if reason.Valid {
		req.Reason = reason.String
	}
	if decidedAt.Valid {
		req.DecidedAt = &decidedAt.Time
	}
	if resumedAt.Valid {
		req.ResumedAt = &resumedAt.Time
	}
	return &req, nil
}
