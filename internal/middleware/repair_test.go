package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapedesk/tape/internal/types"
)

func danglingTranscript() types.Transcript {
	return types.Transcript{
		types.NewUserMessage("size a BTC long for me"),
		{
			Role: types.RoleAssistant,
			ToolCalls: []types.ToolCall{
				{ID: "call-a", Name: "get_latest_candle"},
				{ID: "call-b", Name: "calculate_position_size"},
			},
		},
		types.NewToolMessage([]types.ToolResult{
			{CallID: "call-a", Name: "get_latest_candle", Content: "close 64000"},
		}),
	}
}

func TestRepairSynthesizesInterruptedResults(t *testing.T) {
	transcript := danglingTranscript()
	require.Error(t, transcript.Validate(), "fixture must start out dangling")

	repaired := Repair(&transcript, nil)
	require.Len(t, repaired, 1)
	assert.Equal(t, "call-b", repaired[0].CallID)
	require.NotNil(t, repaired[0].Failure)
	assert.Equal(t, types.KindInterrupted, repaired[0].Failure.Kind)
	assert.Contains(t, repaired[0].Failure.Message, "did not run")

	require.NoError(t, transcript.Validate(), "repair must restore the call/result join")
	assert.Equal(t, types.RoleTool, transcript[len(transcript)-1].Role)
}

func TestRepairIsIdempotent(t *testing.T) {
	transcript := danglingTranscript()

	first := Repair(&transcript, nil)
	require.Len(t, first, 1)
	length := len(transcript)

	second := Repair(&transcript, nil)
	assert.Nil(t, second)
	assert.Len(t, transcript, length, "repairing a repaired transcript is a no-op")
}

func TestRepairPreservesProposalOrder(t *testing.T) {
	transcript := types.Transcript{
		types.NewUserMessage("run the works"),
		{
			Role: types.RoleAssistant,
			ToolCalls: []types.ToolCall{
				{ID: "c1", Name: "get_latest_candle"},
				{ID: "c2", Name: "get_indicator"},
				{ID: "c3", Name: "generate_chart"},
			},
		},
	}

	repaired := Repair(&transcript, nil)
	require.Len(t, repaired, 3)
	assert.Equal(t, []string{"c1", "c2", "c3"},
		[]string{repaired[0].CallID, repaired[1].CallID, repaired[2].CallID})
}

func TestRepairLeavesPendingInterruptAlone(t *testing.T) {
	transcript := danglingTranscript()
	pending := &types.PendingTurn{
		Calls:      transcript[1].ToolCalls,
		Interrupts: map[string]string{"call-b": "int-1"},
	}

	repaired := Repair(&transcript, pending)
	assert.Nil(t, repaired, "a gated call awaiting a decision is not debris")
	assert.Len(t, transcript.UnresolvedCalls(), 1,
		"the dangling call stays for the resume flow")
}

func TestRepairLeavesStashedResultAlone(t *testing.T) {
	transcript := types.Transcript{
		types.NewUserMessage("hi"),
		{
			Role:      types.RoleAssistant,
			ToolCalls: []types.ToolCall{{ID: "call-x", Name: "get_indicator"}},
		},
	}
	pending := &types.PendingTurn{
		Calls:   transcript[1].ToolCalls,
		Results: []types.ToolResult{{CallID: "call-x", Content: "RSI 61.3"}},
	}

	repaired := Repair(&transcript, pending)
	assert.Nil(t, repaired, "the engine merges stashed results itself")
}

func TestRepairLeavesSuspendedChildAlone(t *testing.T) {
	transcript := types.Transcript{
		types.NewUserMessage("delegate"),
		{
			Role:      types.RoleAssistant,
			ToolCalls: []types.ToolCall{{ID: "call-d", Name: "delegate_task"}},
		},
	}
	pending := &types.PendingTurn{
		Calls:    transcript[1].ToolCalls,
		Children: map[string]string{"call-d": "sess-child"},
	}

	repaired := Repair(&transcript, pending)
	assert.Nil(t, repaired, "a suspended delegation resumes through its child session")
}

func TestRepairMixedPendingAndDebris(t *testing.T) {
	transcript := types.Transcript{
		types.NewUserMessage("hi"),
		{
			Role: types.RoleAssistant,
			ToolCalls: []types.ToolCall{
				{ID: "gated", Name: "create_trading_signal"},
				{ID: "debris", Name: "get_latest_candle"},
			},
		},
	}
	pending := &types.PendingTurn{
		Calls:      transcript[1].ToolCalls,
		Interrupts: map[string]string{"gated": "int-7"},
	}

	repaired := Repair(&transcript, pending)
	require.Len(t, repaired, 1)
	assert.Equal(t, "debris", repaired[0].CallID)
	assert.Len(t, transcript.UnresolvedCalls(), 1)
	assert.Equal(t, "gated", transcript.UnresolvedCalls()[0].ID)
}

func TestRepairStageRunsBeforeModelStep(t *testing.T) {
	transcript := danglingTranscript()
	p := New(NewContainment(), NewHistoryRepair())

	step := &Step{Phase: PhaseModel, Transcript: &transcript}
	err := p.Run(context.Background(), step, func(ctx context.Context, step *Step) error {
		// by the time the completion client would run, the transcript is whole
		return step.Transcript.Validate()
	})
	require.NoError(t, err)
	require.NoError(t, transcript.Validate())
}

func TestRepairStageIgnoresToolSteps(t *testing.T) {
	transcript := danglingTranscript()
	stage := NewHistoryRepair()

	step := toolStep("get_indicator")
	step.Transcript = &transcript
	verdict, err := stage.Before(context.Background(), step)
	require.NoError(t, err)
	assert.Equal(t, Continue, verdict)
	assert.Error(t, transcript.Validate(), "tool steps never touch history")
}
