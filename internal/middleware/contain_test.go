package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapedesk/tape/internal/types"
)

func TestContainmentConvertsToolError(t *testing.T) {
	p := New(NewContainment())

	step := toolStep("get_latest_candle")
	err := p.Run(context.Background(), step, func(ctx context.Context, step *Step) error {
		return errors.New("binance klines returned 500: upstream hiccup")
	})
	require.NoError(t, err, "contained failures surface as results, not errors")
	require.NotNil(t, step.Result)
	require.NotNil(t, step.Result.Failure)
	assert.Equal(t, "call-1", step.Result.CallID)
	assert.Equal(t, types.KindFatal, step.Result.Failure.Kind)
	assert.Contains(t, step.Result.Failure.Message, "upstream hiccup")
	assert.Nil(t, step.Err)
}

func TestContainmentKeepsValidationKind(t *testing.T) {
	p := New(NewContainment())

	step := toolStep("get_indicator")
	err := p.Run(context.Background(), step, func(ctx context.Context, step *Step) error {
		return types.NewValidationError("get_indicator", "unsupported indicator %q", "vibes")
	})
	require.NoError(t, err)
	require.NotNil(t, step.Result)
	assert.Equal(t, types.KindValidation, step.Result.Failure.Kind,
		"the model should learn this was its own malformed call")
}

func TestContainmentTerminalPassthrough(t *testing.T) {
	p := New(NewContainment())

	for _, terminal := range []error{
		types.DepthExceeded(3, 2),
		types.ErrTranscriptCorrupt,
		types.ErrTurnLimit,
	} {
		step := toolStep("delegate_task")
		err := p.Run(context.Background(), step, func(ctx context.Context, step *Step) error {
			return terminal
		})
		require.Error(t, err)
		assert.True(t, types.IsTerminal(err))
		assert.Nil(t, step.Result, "terminal failures must not become tool results")
	}
}

func TestContainmentModelPhasePassthrough(t *testing.T) {
	p := New(NewContainment())

	transcript := types.Transcript{types.NewUserMessage("hi")}
	step := &Step{Phase: PhaseModel, Transcript: &transcript}
	modelErr := errors.New("completion retries exhausted")
	err := p.Run(context.Background(), step, func(ctx context.Context, step *Step) error {
		return modelErr
	})
	require.ErrorIs(t, err, modelErr, "a failed model step has no result to carry it")
	assert.Nil(t, step.Result)
}

func TestContainmentContainsPanic(t *testing.T) {
	p := New(NewContainment())

	step := toolStep("generate_chart")
	err := p.Run(context.Background(), step, func(ctx context.Context, step *Step) error {
		panic("nil deref in renderer")
	})
	require.NoError(t, err)
	require.NotNil(t, step.Result)
	assert.Equal(t, types.KindFatal, step.Result.Failure.Kind)
	assert.Contains(t, step.Result.Failure.Message, "panic")
}

func TestContainmentLeavesCleanStepsAlone(t *testing.T) {
	p := New(NewContainment())

	step := toolStep("echo")
	err := p.Run(context.Background(), step, func(ctx context.Context, step *Step) error {
		step.Result = &types.ToolResult{CallID: step.Call.ID, Content: "fine"}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fine", step.Result.Content)
	assert.Nil(t, step.Result.Failure)
}
