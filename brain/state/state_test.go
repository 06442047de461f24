package state_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brainrun/brains/brain/event"
	"github.com/brainrun/brains/brain/patch"
	"github.com/brainrun/brains/brain/state"
)

func base(k event.Kind, seq int64) event.Base {
	return event.Base{K: k, RunID: "run-1", SeqNum: seq}
}

// TestReplay_LinearTwoStep checks that replaying a linear two-step brain's
// event log reduces to a complete, unpaused, unkilled, unerrored context
// with the final step index past the end.
func TestReplay_LinearTwoStep(t *testing.T) {
	events := []event.Event{
		&event.StartEvent{Base: base(event.KindStart, 0), InitialState: map[string]any{}},
		&event.StepStartEvent{Base: base(event.KindStepStart, 1), StepIndex: 0, Title: "first"},
		&event.StepCompleteEvent{Base: base(event.KindStepComplete, 2), StepIndex: 0, Title: "first", Patch: patch.Patch{}},
		&event.StepStartEvent{Base: base(event.KindStepStart, 3), StepIndex: 1, Title: "second"},
		&event.StepCompleteEvent{Base: base(event.KindStepComplete, 4), StepIndex: 1, Title: "second", Patch: patch.Patch{}},
		&event.CompleteEvent{Base: base(event.KindComplete, 5), FinalState: map[string]any{}},
	}

	ctx := state.Replay(events)
	require.True(t, ctx.IsComplete)
	require.False(t, ctx.IsKilled)
	require.False(t, ctx.IsPaused)
	require.False(t, ctx.IsErrored)
	require.Len(t, ctx.ExecutionStack, 1)
	require.Equal(t, 2, ctx.ExecutionStack[0].StepIndex)
}

func TestReduce_CancelledSetsKilled(t *testing.T) {
	ctx := state.New()
	ctx = state.Reduce(ctx, &event.StartEvent{Base: base(event.KindStart, 0)})
	ctx = state.Reduce(ctx, &event.CancelledEvent{Base: base(event.KindCancelled, 1)})
	require.True(t, ctx.IsKilled)
	require.False(t, ctx.IsComplete)
}

func TestReduce_PausedThenResumedClearsPaused(t *testing.T) {
	ctx := state.New()
	ctx = state.Reduce(ctx, &event.StartEvent{Base: base(event.KindStart, 0)})
	ctx = state.Reduce(ctx, &event.PausedEvent{Base: base(event.KindPaused, 1)})
	require.True(t, ctx.IsPaused)

	ctx = state.Reduce(ctx, &event.ResumedEvent{Base: base(event.KindResumed, 2)})
	require.False(t, ctx.IsPaused)
}

// TestReduce_AgentLifecycleTracksInFlightCalls exercises the agentContext
// bookkeeping used by the agent loop's iteration/limit events.
func TestReduce_AgentLifecycleTracksInFlightCalls(t *testing.T) {
	ctx := state.New()
	ctx = state.Reduce(ctx, &event.StartEvent{Base: base(event.KindStart, 0)})
	ctx = state.Reduce(ctx, &event.AgentStartEvent{Base: base(event.KindAgentStart, 1), StepIndex: 0})
	require.NotNil(t, ctx.AgentContext)

	ctx = state.Reduce(ctx, &event.AgentIterationEvent{Base: base(event.KindAgentIteration, 2), Iteration: 1, TotalTokens: 10})
	require.Equal(t, 1, ctx.AgentContext.Iteration)
	require.Equal(t, 10, ctx.AgentContext.TotalTokens)

	ctx = state.Reduce(ctx, &event.AgentToolCallEvent{Base: base(event.KindAgentToolCall, 3), ToolCallID: "tc-1", ToolName: "lookup"})
	require.Equal(t, []string{"tc-1"}, ctx.AgentContext.ToolCallsInFlight)

	ctx = state.Reduce(ctx, &event.AgentToolResultEvent{Base: base(event.KindAgentToolResult, 4), ToolCallID: "tc-1", ToolName: "lookup"})
	require.Empty(t, ctx.AgentContext.ToolCallsInFlight)

	ctx = state.Reduce(ctx, &event.AgentCompleteEvent{Base: base(event.KindAgentComplete, 5), TerminalToolName: "finish"})
	require.Nil(t, ctx.AgentContext)
}

// TestReduce_ImmutablePriorContext guards against a reducer that mutates its
// input in place, which would break replay's use in live + offline modes
// simultaneously sharing a snapshot.
func TestReduce_ImmutablePriorContext(t *testing.T) {
	before := state.New()
	before = state.Reduce(before, &event.StartEvent{Base: base(event.KindStart, 0)})
	snapshot := before

	after := state.Reduce(before, &event.StepCompleteEvent{Base: base(event.KindStepComplete, 1), StepIndex: 0, Patch: patch.Patch{}})
	require.Equal(t, 0, snapshot.ExecutionStack[0].StepIndex, "reducing from a snapshot must not mutate the snapshot's frame")
	require.Equal(t, 1, after.ExecutionStack[0].StepIndex)
}
