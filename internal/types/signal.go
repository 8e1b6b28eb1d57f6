package types

import (
	"fmt"
	"strings"
	"time"
)

// Direction is the side of a trading signal
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// IsValid checks if the direction value is valid
func (d Direction) IsValid() bool {
	return d == DirectionLong || d == DirectionShort
}

// SignalStatus represents the lifecycle of a trading signal
type SignalStatus string

const (
	SignalStatusActive      SignalStatus = "active"      // Published, entry not yet filled
	SignalStatusFilled      SignalStatus = "filled"      // Entry filled, position open
	SignalStatusClosed      SignalStatus = "closed"      // Position exited
	SignalStatusInvalidated SignalStatus = "invalidated" // Setup no longer valid, never filled
)

// IsValid checks if the signal status value is valid
func (s SignalStatus) IsValid() bool {
	switch s {
	case SignalStatusActive, SignalStatusFilled, SignalStatusClosed, SignalStatusInvalidated:
		return true
	}
	return false
}

// TradingSignal is a persisted trade plan: side, levels, sizing, and the
// reasoning behind it. Creating or updating one is a side-effecting action
// and sits behind the approval gate.
type TradingSignal struct {
	ID        string       `json:"id"`
	Symbol    string       `json:"symbol"`
	Exchange  string       `json:"exchange"`
	Direction Direction    `json:"direction"`
	Entry     float64      `json:"entry"`
	StopLoss  float64      `json:"stop_loss"`
	Targets   []float64    `json:"targets,omitempty"`
	SizePct   float64      `json:"size_pct"`  // % of account equity at risk
	Leverage  float64      `json:"leverage"`
	Status    SignalStatus `json:"status"`
	Rationale string       `json:"rationale,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Validate checks if the signal has valid field values
func (s *TradingSignal) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("signal id is required")
	}
	if strings.TrimSpace(s.Symbol) == "" {
		return fmt.Errorf("signal %s: symbol is required", s.ID)
	}
	if !s.Direction.IsValid() {
		return fmt.Errorf("signal %s: invalid direction %q", s.ID, s.Direction)
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("signal %s: invalid status %q", s.ID, s.Status)
	}
	if s.Entry <= 0 {
		return fmt.Errorf("signal %s: entry must be positive (got %g)", s.ID, s.Entry)
	}
	if s.StopLoss <= 0 {
		return fmt.Errorf("signal %s: stop_loss must be positive (got %g)", s.ID, s.StopLoss)
	}
	if s.Direction == DirectionLong && s.StopLoss >= s.Entry {
		return fmt.Errorf("signal %s: long stop_loss %g must be below entry %g", s.ID, s.StopLoss, s.Entry)
	}
	if s.Direction == DirectionShort && s.StopLoss <= s.Entry {
		return fmt.Errorf("signal %s: short stop_loss %g must be above entry %g", s.ID, s.StopLoss, s.Entry)
	}
	if s.SizePct <= 0 || s.SizePct > 100 {
		return fmt.Errorf("signal %s: size_pct must be in (0, 100] (got %g)", s.ID, s.SizePct)
	}
	if s.Leverage < 1 {
		return fmt.Errorf("signal %s: leverage must be at least 1 (got %g)", s.ID, s.Leverage)
	}
	for i, tgt := range s.Targets {
		if tgt <= 0 {
			return fmt.Errorf("signal %s: target %d must be positive (got %g)", s.ID, i, tgt)
		}
		if s.Direction == DirectionLong && tgt <= s.Entry {
			return fmt.Errorf("signal %s: long target %g must be above entry %g", s.ID, tgt, s.Entry)
		}
		if s.Direction == DirectionShort && tgt >= s.Entry {
			return fmt.Errorf("signal %s: short target %g must be below entry %g", s.ID, tgt, s.Entry)
		}
	}
	return nil
}

// SignalFilter selects trading signals for listing
type SignalFilter struct {
	Status *SignalStatus // filter by status (nil matches all)
	Symbol string        // filter by instrument (empty matches all)
	Limit  int           // cap result count (0 means no limit)
}

// Memory is a persisted note the agent saved for later recall
type Memory struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the memory has valid field values
func (m *Memory) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("memory id is required")
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("memory %s: content is required", m.ID)
	}
	return nil
}
