package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tapedesk/tape/internal/types"
)

// CreateSignal inserts a new trading signal
func (s *Store) CreateSignal(ctx context.Context, signal *types.TradingSignal) error {
	if err := signal.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	signal.CreatedAt = now
	signal.UpdatedAt = now

	targetsJSON, err := json.Marshal(signal.Targets)
	if err != nil {
		return fmt.Errorf("failed to marshal targets: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO signals (
			id, symbol, exchange, direction, entry, stop_loss, targets,
			size_pct, leverage, status, rationale, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		signal.ID, signal.Symbol, signal.Exchange, signal.Direction,
		signal.Entry, signal.StopLoss, string(targetsJSON),
		signal.SizePct, signal.Leverage, signal.Status, signal.Rationale,
		signal.CreatedAt, signal.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}
	return nil
}

// GetSignal retrieves a signal by ID. A missing signal returns (nil, nil).
func (s *Store) GetSignal(ctx context.Context, id string) (*types.TradingSignal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, exchange, direction, entry, stop_loss, targets,
		       size_pct, leverage, status, rationale, created_at, updated_at
		FROM signals
		WHERE id = ?
	`, id)

	signal, err := scanSignal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signal: %w", err)
	}
	return signal, nil
}

// Allowed fields for update to prevent SQL injection
var allowedSignalUpdateFields = map[string]bool{
	"entry":     true,
	"stop_loss": true,
	"targets":   true,
	"size_pct":  true,
	"leverage":  true,
	"status":    true,
	"rationale": true,
}

// UpdateSignal updates fields on a signal. Levels are range-checked here and
// again by the schema CHECK constraints; direction-aware consistency between
// entry and stop is the caller's job since a partial update cannot see both.
func (s *Store) UpdateSignal(ctx context.Context, id string, updates map[string]interface{}) error {
	existing, err := s.GetSignal(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("signal %s not found", id)
	}

	setClauses := []string{"updated_at = ?"}
	args := []interface{}{time.Now()}

	for key, value := range updates {
		if !allowedSignalUpdateFields[key] {
			return fmt.Errorf("invalid field for update: %s", key)
		}

		switch key {
		case "status":
			if status, ok := value.(string); ok {
				if !types.SignalStatus(status).IsValid() {
					return fmt.Errorf("invalid signal status: %s", status)
				}
			}
		case "entry", "stop_loss":
			if price, ok := value.(float64); ok {
				if price <= 0 {
					return fmt.Errorf("%s must be positive (got %g)", key, price)
				}
			}
		case "size_pct":
			if pct, ok := value.(float64); ok {
				if pct <= 0 || pct > 100 {
					return fmt.Errorf("size_pct must be in (0, 100] (got %g)", pct)
				}
			}
		case "leverage":
			if lev, ok := value.(float64); ok {
				if lev < 1 {
					return fmt.Errorf("leverage must be at least 1 (got %g)", lev)
				}
			}
		case "targets":
			// Stored as JSON text
			if targets, ok := value.([]float64); ok {
				data, err := json.Marshal(targets)
				if err != nil {
					return fmt.Errorf("failed to marshal targets: %w", err)
				}
				value = string(data)
			}
		}

		setClauses = append(setClauses, fmt.Sprintf("%s = ?", key))
		args = append(args, value)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE signals SET %s WHERE id = ?", strings.Join(setClauses, ", "))
	_, err = s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update signal: %w", err)
	}
	return nil
}

// ListSignals returns signals matching the filter, most recent first
func (s *Store) ListSignals(ctx context.Context, filter types.SignalFilter) ([]*types.TradingSignal, error) {
	query := `
		SELECT id, symbol, exchange, direction, entry, stop_loss, targets,
		       size_pct, leverage, status, rationale, created_at, updated_at
		FROM signals
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list signals: %w", err)
	}
	defer rows.Close()

	var signals []*types.TradingSignal
	for rows.Next() {
		signal, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, signal)
	}
	return signals, rows.Err()
}

func scanSignal(row rowScanner) (*types.TradingSignal, error) {
	var (
		signal      types.TradingSignal
		targetsJSON string
	)
	err := row.Scan(
		&signal.ID, &signal.Symbol, &signal.Exchange, &signal.Direction,
		&signal.Entry, &signal.StopLoss, &targetsJSON,
		&signal.SizePct, &signal.Leverage, &signal.Status, &signal.Rationale,
		&signal.CreatedAt, &signal.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(targetsJSON), &signal.Targets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal targets: %w", err)
	}
	return &signal, nil
}

// SaveMemory inserts a memory, or replaces its content and tags if the id
// already exists (update_memory is an upsert from the agent's point of view)
func (s *Store) SaveMemory(ctx context.Context, memory *types.Memory) error {
	if err := memory.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = now
	}
	memory.UpdatedAt = now

	tagsJSON, err := json.Marshal(memory.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO memories (id, content, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			content = excluded.content,
			tags = excluded.tags,
			updated_at = excluded.updated_at
	`, memory.ID, memory.Content, string(tagsJSON), memory.CreatedAt, memory.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save memory: %w", err)
	}
	return nil
}

// SearchMemories finds memories whose content or tags match the query
func (s *Store) SearchMemories(ctx context.Context, query string, limit int) ([]*types.Memory, error) {
	sqlQuery := `
		SELECT id, content, tags, created_at, updated_at
		FROM memories
		WHERE content LIKE ? OR tags LIKE ?
		ORDER BY updated_at DESC
	`
	pattern := "%" + query + "%"
	args := []interface{}{pattern, pattern}

	if limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search memories: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// ListMemories returns memories, most recently updated first
func (s *Store) ListMemories(ctx context.Context, limit int) ([]*types.Memory, error) {
	query := `
		SELECT id, content, tags, created_at, updated_at
		FROM memories
		ORDER BY updated_at DESC
	`
	args := []interface{}{}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()

	return scanMemories(rows)
}

// DeleteMemory removes a memory by ID
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete memory: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("memory not found: %s", id)
	}
	return nil
}

func scanMemories(rows *sql.Rows) ([]*types.Memory, error) {
	var memories []*types.Memory
	for rows.Next() {
		var (
			memory   types.Memory
			tagsJSON string
		)
		if err := rows.Scan(&memory.ID, &memory.Content, &tagsJSON, &memory.CreatedAt, &memory.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &memory.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
		memories = append(memories, &memory)
	}
	return memories, rows.Err()
}
