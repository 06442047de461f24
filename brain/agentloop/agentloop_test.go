package agentloop_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brainrun/brains/brain"
	"github.com/brainrun/brains/brain/agentloop"
	"github.com/brainrun/brains/brain/event"
	"github.com/brainrun/brains/brain/model"
	"github.com/brainrun/brains/brain/signal"
	"github.com/brainrun/brains/brain/signalstore/memory"
)

type scriptedGenerator struct {
	responses []model.GenerateTextResponse
	calls     int
}

func (g *scriptedGenerator) GenerateText(_ context.Context, _ model.GenerateTextRequest) (model.GenerateTextResponse, error) {
	r := g.responses[g.calls]
	g.calls++
	return r, nil
}

func (g *scriptedGenerator) GenerateObject(context.Context, model.GenerateObjectRequest) (model.GenerateObjectResponse, error) {
	return model.GenerateObjectResponse{}, nil
}

func (g *scriptedGenerator) StreamText(context.Context, model.GenerateTextRequest) (<-chan model.StreamChunk, error) {
	return nil, model.ErrStreamingUnsupported
}

func collectEvents() (func(event.Event), *[]event.Event) {
	var events []event.Event
	return func(e event.Event) { events = append(events, e) }, &events
}

func kindsOf(events []event.Event) []event.Kind {
	out := make([]event.Kind, len(events))
	for i, e := range events {
		out[i] = e.Kind()
	}
	return out
}

func TestRun_TerminalToolCompletes(t *testing.T) {
	gen := &scriptedGenerator{responses: []model.GenerateTextResponse{
		{ToolCalls: []model.ToolCall{{ToolCallID: "tc-1", ToolName: "finish", Args: json.RawMessage(`{"answer":"42"}`)}}},
	}}
	emit, events := collectEvents()

	res, err := agentloop.Run(context.Background(), agentloop.Params{
		Spec: brain.AgentSpec{
			Prompt: "answer the question",
			Tools: map[string]brain.ToolDef{
				"finish": {
					InputSchema: json.RawMessage(`{"type":"object","properties":{"answer":{"type":"string"}}}`),
					Terminal:    true,
				},
			},
			MaxIterations: 5,
		},
		Generator: gen,
		Signals:   memory.New(),
		Seq:       event.NewSequencer("run-1", nil),
		Emit:      emit,
		StepCtx:   brain.StepContext{},
	})

	require.NoError(t, err)
	require.Equal(t, agentloop.Completed, res.Outcome)
	decoded, _ := res.State.(map[string]any)
	require.Equal(t, "42", decoded["answer"])
	require.Contains(t, kindsOf(*events), event.KindAgentComplete)
}

func TestRun_NonTerminalToolThenTerminal(t *testing.T) {
	var executed bool
	gen := &scriptedGenerator{responses: []model.GenerateTextResponse{
		{ToolCalls: []model.ToolCall{{ToolCallID: "tc-1", ToolName: "lookup", Args: json.RawMessage(`{}`)}}},
		{ToolCalls: []model.ToolCall{{ToolCallID: "tc-2", ToolName: "finish", Args: json.RawMessage(`{"answer":"ok"}`)}}},
	}}
	emit, events := collectEvents()

	res, err := agentloop.Run(context.Background(), agentloop.Params{
		Spec: brain.AgentSpec{
			Tools: map[string]brain.ToolDef{
				"lookup": {
					InputSchema: json.RawMessage(`{"type":"object"}`),
					Execute: func(ctx brain.StepContext, input json.RawMessage) (brain.ToolExecuteResult, error) {
						executed = true
						return brain.ToolExecuteResult{Result: map[string]any{"found": true}}, nil
					},
				},
				"finish": {
					InputSchema: json.RawMessage(`{"type":"object","properties":{"answer":{"type":"string"}}}`),
					Terminal:    true,
				},
			},
			MaxIterations: 5,
		},
		Generator: gen,
		Signals:   memory.New(),
		Seq:       event.NewSequencer("run-2", nil),
		Emit:      emit,
		StepCtx:   brain.StepContext{},
	})

	require.NoError(t, err)
	require.True(t, executed)
	require.Equal(t, agentloop.Completed, res.Outcome)
	ks := kindsOf(*events)
	require.Contains(t, ks, event.KindAgentToolResult)
	require.Contains(t, ks, event.KindAgentComplete)
}

func TestRun_WebhookToolSuspends(t *testing.T) {
	gen := &scriptedGenerator{responses: []model.GenerateTextResponse{
		{ToolCalls: []model.ToolCall{{ToolCallID: "tc-1", ToolName: "wait", Args: json.RawMessage(`{}`)}}},
	}}
	emit, events := collectEvents()

	res, err := agentloop.Run(context.Background(), agentloop.Params{
		Spec: brain.AgentSpec{
			Tools: map[string]brain.ToolDef{
				"wait": {
					InputSchema: json.RawMessage(`{"type":"object"}`),
					Execute: func(ctx brain.StepContext, input json.RawMessage) (brain.ToolExecuteResult, error) {
						return brain.ToolExecuteResult{WaitFor: []brain.Webhook{{Slug: "approve", Identifier: "req-1"}}}, nil
					},
				},
			},
			MaxIterations: 5,
		},
		Generator: gen,
		Signals:   memory.New(),
		Seq:       event.NewSequencer("run-3", nil),
		Emit:      emit,
		StepCtx:   brain.StepContext{},
	})

	require.NoError(t, err)
	require.Equal(t, agentloop.WebhookSuspended, res.Outcome)
	require.Equal(t, "tc-1", res.Snapshot.PendingToolCallID)
	require.Contains(t, kindsOf(*events), event.KindAgentWebhook)
}

func TestRun_ResumeInjectsWebhookResultAndCompletes(t *testing.T) {
	gen := &scriptedGenerator{responses: []model.GenerateTextResponse{
		{ToolCalls: []model.ToolCall{{ToolCallID: "tc-2", ToolName: "finish", Args: json.RawMessage(`{"answer":"resumed"}`)}}},
	}}
	emit, events := collectEvents()

	res, err := agentloop.Run(context.Background(), agentloop.Params{
		Spec: brain.AgentSpec{
			Tools: map[string]brain.ToolDef{
				"finish": {
					InputSchema: json.RawMessage(`{"type":"object","properties":{"answer":{"type":"string"}}}`),
					Terminal:    true,
				},
			},
			MaxIterations: 5,
		},
		Generator: gen,
		Signals:   memory.New(),
		Seq:       event.NewSequencer("run-4", nil),
		Emit:      emit,
		StepCtx:   brain.StepContext{Response: json.RawMessage(`{"approved":true}`)},
		Resume: &agentloop.State{
			Iteration:         1,
			PendingToolCallID: "tc-1",
			Messages: []model.Message{
				{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: "please wait"}}},
			},
		},
	})

	require.NoError(t, err)
	require.Equal(t, agentloop.Completed, res.Outcome)
	ks := kindsOf(*events)
	require.Contains(t, ks, event.KindAgentToolResult)
	require.NotContains(t, ks, event.KindAgentStart)
}

func TestRun_KillSignalCancels(t *testing.T) {
	gen := &scriptedGenerator{responses: []model.GenerateTextResponse{
		{ToolCalls: []model.ToolCall{{ToolCallID: "tc-1", ToolName: "finish", Args: json.RawMessage(`{"answer":"ignored"}`)}}},
	}}
	signals := memory.New()
	signals.Queue(signal.Signal{Kind: signal.KindKill})
	emit, _ := collectEvents()

	res, err := agentloop.Run(context.Background(), agentloop.Params{
		Spec: brain.AgentSpec{
			Tools: map[string]brain.ToolDef{
				"finish": {
					InputSchema: json.RawMessage(`{"type":"object"}`),
					Terminal:    true,
				},
			},
			MaxIterations: 5,
		},
		Generator: gen,
		Signals:   signals,
		Seq:       event.NewSequencer("run-5", nil),
		Emit:      emit,
		StepCtx:   brain.StepContext{},
	})

	require.NoError(t, err)
	require.Equal(t, agentloop.Cancelled, res.Outcome)
	require.Equal(t, 0, gen.calls)
}

func TestRun_IterationLimitExceeded(t *testing.T) {
	gen := &scriptedGenerator{responses: []model.GenerateTextResponse{
		{Text: "thinking..."},
		{Text: "still thinking..."},
	}}
	emit, events := collectEvents()

	_, err := agentloop.Run(context.Background(), agentloop.Params{
		Spec: brain.AgentSpec{
			Tools:         map[string]brain.ToolDef{},
			MaxIterations: 1,
		},
		Generator: gen,
		Signals:   memory.New(),
		Seq:       event.NewSequencer("run-6", nil),
		Emit:      emit,
		StepCtx:   brain.StepContext{},
	})

	require.Error(t, err)
	var limitErr *agentloop.LimitError
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, "iteration", limitErr.Kind)
	require.Contains(t, kindsOf(*events), event.KindAgentIterationLimit)
}

func TestRun_ValidationFailureOnBadToolInput(t *testing.T) {
	gen := &scriptedGenerator{responses: []model.GenerateTextResponse{
		{ToolCalls: []model.ToolCall{{ToolCallID: "tc-1", ToolName: "finish", Args: json.RawMessage(`{"answer":123}`)}}},
	}}
	emit, _ := collectEvents()

	_, err := agentloop.Run(context.Background(), agentloop.Params{
		Spec: brain.AgentSpec{
			Tools: map[string]brain.ToolDef{
				"finish": {
					InputSchema: json.RawMessage(`{"type":"object","properties":{"answer":{"type":"string"}},"required":["answer"]}`),
					Terminal:    true,
				},
			},
			MaxIterations: 5,
		},
		Generator: gen,
		Signals:   memory.New(),
		Seq:       event.NewSequencer("run-7", nil),
		Emit:      emit,
		StepCtx:   brain.StepContext{},
	})

	require.Error(t, err)
	var valErr *agentloop.ValidationFailure
	require.ErrorAs(t, err, &valErr)
	require.Equal(t, "finish", valErr.ToolName)
}
