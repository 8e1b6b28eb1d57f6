package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tapedesk/tape/internal/session"
	"github.com/tapedesk/tape/internal/storage"
	"github.com/tapedesk/tape/internal/types"
)

// SaveMemoryTool persists a note for later recall. Passing an existing ID
// overwrites that memory, so "update" is the same tool.
type SaveMemoryTool struct {
	Store storage.Storage
}

func (t *SaveMemoryTool) Name() string { return "save_memory" }

func (t *SaveMemoryTool) Description() string {
	return "Saves a persistent memory: trading preferences, risk rules, " +
		"strategies, or lessons. Write concise, actionable rules in the " +
		"user's own words with specific numbers. Check list_memories first " +
		"and pass an existing ID to update rather than duplicating a topic."
}

func (t *SaveMemoryTool) InputSchema() *Schema {
	return ObjectSchema(map[string]interface{}{
		"content": Prop("string", "The memory content. Concise, actionable, specific."),
		"tags":    ArrayProp("string", "Topic tags for later search (e.g. 'risk', 'btc')."),
		"id":      Prop("string", "Existing memory ID to overwrite. Omit to create."),
	}, "content")
}

func (t *SaveMemoryTool) Execute(ctx context.Context, sc *session.Context, args json.RawMessage) (*Result, error) {
	var in struct {
		Content string   `json:"content"`
		Tags    []string `json:"tags"`
		ID      string   `json:"id"`
	}
	if err := DecodeArgs(t.Name(), args, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Content) == "" {
		return nil, types.NewValidationError(t.Name(), "content must not be empty")
	}

	created := in.ID == ""
	memory := &types.Memory{
		ID:      in.ID,
		Content: in.Content,
		Tags:    in.Tags,
	}
	if created {
		memory.ID = uuid.New().String()
	}
	if err := t.Store.SaveMemory(ctx, memory); err != nil {
		return nil, fmt.Errorf("saving memory: %w", err)
	}

	verb := "updated"
	if created {
		verb = "saved"
	}
	return Text("Memory %s (ID: %s).", verb, memory.ID), nil
}

// SearchMemoryTool finds memories by content or tag substring
type SearchMemoryTool struct {
	Store storage.Storage
}

func (t *SearchMemoryTool) Name() string { return "search_memory" }

func (t *SearchMemoryTool) Description() string {
	return "Searches saved memories by content or tag. Use before analysis " +
		"to recall the user's rules and preferences for the instrument at hand."
}

func (t *SearchMemoryTool) InputSchema() *Schema {
	return ObjectSchema(map[string]interface{}{
		"query": Prop("string", "Search text, matched against content and tags."),
		"limit": Prop("integer", "Maximum results. Default 10."),
	}, "query")
}

func (t *SearchMemoryTool) Execute(ctx context.Context, sc *session.Context, args json.RawMessage) (*Result, error) {
	var in struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := DecodeArgs(t.Name(), args, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Query) == "" {
		return nil, types.NewValidationError(t.Name(), "query must not be empty")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 10
	}

	memories, err := t.Store.SearchMemories(ctx, in.Query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching memories: %w", err)
	}
	if len(memories) == 0 {
		return Text("No memories matched %q.", in.Query), nil
	}
	return &Result{Content: formatMemories(memories)}, nil
}

// ListMemoriesTool returns all saved memories with their IDs
type ListMemoriesTool struct {
	Store storage.Storage
}

func (t *ListMemoriesTool) Name() string { return "list_memories" }

func (t *ListMemoriesTool) Description() string {
	return "Lists all saved memories with IDs. Call before save_memory to " +
		"avoid duplicating a topic, and before delete_memory to find the ID."
}

func (t *ListMemoriesTool) InputSchema() *Schema {
	return ObjectSchema(map[string]interface{}{
		"limit": Prop("integer", "Maximum results. Default 50."),
	})
}

func (t *ListMemoriesTool) Execute(ctx context.Context, sc *session.Context, args json.RawMessage) (*Result, error) {
	var in struct {
		Limit int `json:"limit"`
	}
	if err := DecodeArgs(t.Name(), args, &in); err != nil {
		return nil, err
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 50
	}

	memories, err := t.Store.ListMemories(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing memories: %w", err)
	}
	if len(memories) == 0 {
		return Text("No memories saved yet. Use save_memory to record trading preferences, risk rules, and strategies."), nil
	}
	return Text("Found %d memory/memories:\n\n%s", len(memories), formatMemories(memories)), nil
}

func formatMemories(memories []*types.Memory) string {
	var b strings.Builder
	for _, m := range memories {
		content := m.Content
		if len(content) > 200 {
			content = content[:200] + "..."
		}
		fmt.Fprintf(&b, "- ID: %s", m.ID)
		if len(m.Tags) > 0 {
			fmt.Fprintf(&b, " (tags: %s)", strings.Join(m.Tags, ", "))
		}
		fmt.Fprintf(&b, "\n  %s\n", content)
	}
	return b.String()
}

// DeleteMemoryTool removes a saved memory
type DeleteMemoryTool struct {
	Store storage.Storage
}

func (t *DeleteMemoryTool) Name() string { return "delete_memory" }

func (t *DeleteMemoryTool) Description() string {
	return "Deletes a saved memory by ID. Find the ID with list_memories first."
}

func (t *DeleteMemoryTool) InputSchema() *Schema {
	return ObjectSchema(map[string]interface{}{
		"id": Prop("string", "The memory ID to delete."),
	}, "id")
}

func (t *DeleteMemoryTool) Execute(ctx context.Context, sc *session.Context, args json.RawMessage) (*Result, error) {
	var in struct {
		ID string `json:"id"`
	}
	if err := DecodeArgs(t.Name(), args, &in); err != nil {
		return nil, err
	}
	if err := t.Store.DeleteMemory(ctx, in.ID); err != nil {
		return nil, fmt.Errorf("deleting memory: %w", err)
	}
	return Text("Memory %s deleted.", in.ID), nil
}
