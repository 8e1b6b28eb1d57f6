package storage

import (
	"context"

	"github.com/tapedesk/tape/internal/events"
	"github.com/tapedesk/tape/internal/storage/sqlite"
	"github.com/tapedesk/tape/internal/types"
)

// Storage defines the interface for session storage backends
type Storage interface {
	// Sessions
	CreateSession(ctx context.Context, session *types.Session) error
	GetSession(ctx context.Context, id string) (*types.Session, error)
	ListSessions(ctx context.Context, filter types.SessionFilter) ([]*types.Session, error)
	UpdateSessionState(ctx context.Context, id string, state types.SessionState) error

	// Checkpoints - transcript plus mid-turn remainder, written after every
	// fully resolved step and read back on resume
	SaveCheckpoint(ctx context.Context, session *types.Session, cp *types.Checkpoint) error
	GetCheckpoint(ctx context.Context, sessionID string) (*types.Checkpoint, error)

	// Interrupts - gated tool calls awaiting (or carrying) a human decision
	CreateInterrupt(ctx context.Context, req *types.InterruptRequest) error
	GetInterrupt(ctx context.Context, id string) (*types.InterruptRequest, error)
	ListInterrupts(ctx context.Context, filter types.InterruptFilter) ([]*types.InterruptRequest, error)
	ResolveInterrupt(ctx context.Context, id string, decision types.Decision, reason string) error
	MarkInterruptResumed(ctx context.Context, id string) error

	// Trading signals
	CreateSignal(ctx context.Context, signal *types.TradingSignal) error
	GetSignal(ctx context.Context, id string) (*types.TradingSignal, error)
	UpdateSignal(ctx context.Context, id string, updates map[string]interface{}) error
	ListSignals(ctx context.Context, filter types.SignalFilter) ([]*types.TradingSignal, error)

	// Memories - agent-saved notes
	SaveMemory(ctx context.Context, memory *types.Memory) error
	SearchMemories(ctx context.Context, query string, limit int) ([]*types.Memory, error)
	ListMemories(ctx context.Context, limit int) ([]*types.Memory, error)
	DeleteMemory(ctx context.Context, id string) error

	// Agent Events - activity feed entries
	StoreAgentEvent(ctx context.Context, event *events.AgentEvent) error
	GetAgentEvents(ctx context.Context, filter events.EventFilter) ([]*events.AgentEvent, error)
	GetAgentEventsBySession(ctx context.Context, sessionID string) ([]*events.AgentEvent, error)
	GetRecentAgentEvents(ctx context.Context, limit int) ([]*events.AgentEvent, error)

	// Meta - small key-value store for workspace settings
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: ".tape/tape.db"
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: ".tape/tape.db",
	}
}

// NewStorage creates a new SQLite storage backend
// The ctx parameter is currently unused but kept for API consistency
// and future extension possibilities
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	// Default to standard path if not specified
	if cfg.Path == "" {
		cfg.Path = ".tape/tape.db"
	}

	return sqlite.New(cfg.Path)
}
