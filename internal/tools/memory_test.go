package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapedesk/tape/internal/types"
)

func TestMemoryToolsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newToolStore(t)

	save := &SaveMemoryTool{Store: store}
	search := &SearchMemoryTool{Store: store}
	list := &ListMemoriesTool{Store: store}
	del := &DeleteMemoryTool{Store: store}

	res, err := save.Execute(ctx, nil, json.RawMessage(
		`{"content":"Never risk more than 2% per trade.","tags":["risk"]}`))
	require.NoError(t, err)
	assert.Contains(t, res.Content, "Memory saved (ID: ")

	_, err = save.Execute(ctx, nil, json.RawMessage(
		`{"content":"Prefer 4h charts for BTC swing entries.","tags":["btc","timeframe"]}`))
	require.NoError(t, err)

	res, err = list.Execute(ctx, nil, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Contains(t, res.Content, "Found 2 memory/memories:")
	assert.Contains(t, res.Content, "Never risk more than 2% per trade.")
	assert.Contains(t, res.Content, "(tags: btc, timeframe)")

	res, err = search.Execute(ctx, nil, json.RawMessage(`{"query":"swing"}`))
	require.NoError(t, err)
	assert.Contains(t, res.Content, "4h charts")
	assert.NotContains(t, res.Content, "2% per trade")

	// tag match counts too
	res, err = search.Execute(ctx, nil, json.RawMessage(`{"query":"risk"}`))
	require.NoError(t, err)
	assert.Contains(t, res.Content, "2% per trade")

	res, err = search.Execute(ctx, nil, json.RawMessage(`{"query":"no-such-topic"}`))
	require.NoError(t, err)
	assert.Equal(t, `No memories matched "no-such-topic".`, res.Content)

	memories, err := store.ListMemories(ctx, 0)
	require.NoError(t, err)
	require.Len(t, memories, 2)
	id := memories[0].ID

	res, err = del.Execute(ctx, nil, json.RawMessage(fmt.Sprintf(`{"id":%q}`, id)))
	require.NoError(t, err)
	assert.Contains(t, res.Content, "deleted")

	memories, err = store.ListMemories(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, memories, 1)
}

func TestSaveMemoryToolUpdate(t *testing.T) {
	ctx := context.Background()
	store := newToolStore(t)
	save := &SaveMemoryTool{Store: store}

	_, err := save.Execute(ctx, nil, json.RawMessage(`{"content":"Original rule."}`))
	require.NoError(t, err)
	memories, err := store.ListMemories(ctx, 0)
	require.NoError(t, err)
	require.Len(t, memories, 1)
	id := memories[0].ID

	res, err := save.Execute(ctx, nil, json.RawMessage(fmt.Sprintf(
		`{"id":%q,"content":"Revised rule."}`, id)))
	require.NoError(t, err)
	assert.Contains(t, res.Content, "Memory updated")

	memories, err = store.ListMemories(ctx, 0)
	require.NoError(t, err)
	require.Len(t, memories, 1, "updating must not create a second row")
	assert.Equal(t, "Revised rule.", memories[0].Content)
}

func TestSaveMemoryToolRejectsEmpty(t *testing.T) {
	save := &SaveMemoryTool{Store: newToolStore(t)}

	_, err := save.Execute(context.Background(), nil, json.RawMessage(`{"content":"   "}`))
	require.Error(t, err)
	assert.True(t, types.IsValidation(err))
}

func TestDeleteMemoryToolMissing(t *testing.T) {
	del := &DeleteMemoryTool{Store: newToolStore(t)}

	_, err := del.Execute(context.Background(), nil, json.RawMessage(`{"id":"nope"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestListMemoriesToolEmpty(t *testing.T) {
	list := &ListMemoriesTool{Store: newToolStore(t)}

	res, err := list.Execute(context.Background(), nil, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Content, "No memories saved yet."))
}

func TestFormatMemoriesTruncatesPreview(t *testing.T) {
	long := strings.Repeat("x", 400)
	out := formatMemories([]*types.Memory{{ID: "m1", Content: long}})
	assert.Contains(t, out, "...")
	assert.Less(t, len(out), 400)
}
