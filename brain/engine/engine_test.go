package engine_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brainrun/brains/brain"
	"github.com/brainrun/brains/brain/engine"
	"github.com/brainrun/brains/brain/event"
	"github.com/brainrun/brains/brain/model"
	"github.com/brainrun/brains/brain/runlog/inmem"
	"github.com/brainrun/brains/brain/signal"
	"github.com/brainrun/brains/brain/signalstore/memory"
	"github.com/brainrun/brains/brain/stream"
)

// fakeGenerator drives an agent step through a scripted sequence of
// GenerateText responses, one per call, grounded on the same
// canned-response idiom as cmd/braindemo's stubGenerator.
type fakeGenerator struct {
	responses []model.GenerateTextResponse
	calls     int
}

func (g *fakeGenerator) GenerateText(_ context.Context, _ model.GenerateTextRequest) (model.GenerateTextResponse, error) {
	if g.calls >= len(g.responses) {
		return model.GenerateTextResponse{}, nil
	}
	r := g.responses[g.calls]
	g.calls++
	return r, nil
}

func (g *fakeGenerator) GenerateObject(context.Context, model.GenerateObjectRequest) (model.GenerateObjectResponse, error) {
	return model.GenerateObjectResponse{}, nil
}

func (g *fakeGenerator) StreamText(context.Context, model.GenerateTextRequest) (<-chan model.StreamChunk, error) {
	return nil, model.ErrStreamingUnsupported
}

func drain(t *testing.T, ctx context.Context, strm *stream.Stream) []event.Event {
	t.Helper()
	events, err := strm.Drain(ctx)
	require.NoError(t, err)
	return events
}

func kinds(events []event.Event) []event.Kind {
	out := make([]event.Kind, len(events))
	for i, e := range events {
		out[i] = e.Kind()
	}
	return out
}

func TestRun_LinearTwoStepCompletes(t *testing.T) {
	def := brain.NewBrain("linear").
		Step("first", func(ctx brain.StepContext) (any, error) {
			return map[string]any{"a": 1}, nil
		}).
		Step("second", func(ctx brain.StepContext) (any, error) {
			state, _ := ctx.State.(map[string]any)
			state["b"] = 2
			return state, nil
		}).
		Build()

	eng := engine.NewEngine()
	strm, err := eng.Run(context.Background(), def, engine.RunParams{
		InitialState: map[string]any{},
	})
	require.NoError(t, err)

	events := drain(t, context.Background(), strm)
	last := events[len(events)-1]
	require.Equal(t, event.KindComplete, last.Kind())
	complete := last.(*event.CompleteEvent)
	finalState, _ := complete.FinalState.(map[string]any)
	require.InDelta(t, 2, finalState["b"], 0)
}

func TestRun_OptionsValidationFailureEmitsErrorBeforeStart(t *testing.T) {
	def := brain.NewBrain("validated").
		OptionsSchema(json.RawMessage(`{"type":"object","required":["x"]}`)).
		Step("noop", func(ctx brain.StepContext) (any, error) { return nil, nil }).
		Build()

	eng := engine.NewEngine()
	strm, err := eng.Run(context.Background(), def, engine.RunParams{Options: map[string]any{}})
	require.NoError(t, err)

	events, err := strm.Drain(context.Background())
	require.Error(t, err)
	require.Len(t, events, 1)
	require.Equal(t, event.KindError, events[0].Kind())
}

func TestRun_KillBetweenStepsCancels(t *testing.T) {
	signals := memory.New()
	signals.Queue(signal.Signal{Kind: signal.KindKill})

	def := brain.NewBrain("killable").
		Step("first", func(ctx brain.StepContext) (any, error) { return map[string]any{}, nil }).
		Step("second", func(ctx brain.StepContext) (any, error) { return map[string]any{}, nil }).
		Build()

	eng := engine.NewEngine()
	strm, err := eng.Run(context.Background(), def, engine.RunParams{SignalProvider: signals})
	require.NoError(t, err)

	events := drain(t, context.Background(), strm)
	last := events[len(events)-1]
	require.Equal(t, event.KindCancelled, last.Kind())
}

func TestRun_PauseThenResumeCompletes(t *testing.T) {
	signals := memory.New()
	signals.Queue(signal.Signal{Kind: signal.KindPause})
	store := inmem.New()

	var resumeCtx *engine.ResumeContext

	def := brain.NewBrain("pausable").
		Step("first", func(ctx brain.StepContext) (any, error) { return map[string]any{"n": 1}, nil }).
		Step("second", func(ctx brain.StepContext) (any, error) {
			state, _ := ctx.State.(map[string]any)
			state["n"] = 2
			return state, nil
		}).
		Build()

	eng := engine.NewEngine()
	runID := "run-pause-1"
	strm, err := eng.Run(context.Background(), def, engine.RunParams{
		InitialState: map[string]any{},
		SignalProvider: signals,
		BrainRunID:     runID,
		RunLog:         store,
		OnSuspend:      func(rc *engine.ResumeContext) { resumeCtx = rc },
	})
	require.NoError(t, err)

	events := drain(t, context.Background(), strm)
	last := events[len(events)-1]
	require.Equal(t, event.KindPaused, last.Kind())
	require.NotNil(t, resumeCtx)

	records, err := store.Load(context.Background(), runID)
	require.NoError(t, err)
	storedEvents := make([]event.Event, 0, len(records))
	for _, r := range records {
		e, err := event.Decode(r.Kind, r.Payload)
		require.NoError(t, err)
		storedEvents = append(storedEvents, e)
	}

	resumeStrm, err := eng.Resume(context.Background(), def, engine.ResumeParams{
		EventLog:       storedEvents,
		ResumeContext:  resumeCtx,
		SignalProvider: memory.New(),
		BrainRunID:     runID,
		RunLog:         store,
	})
	require.NoError(t, err)

	resumeEvents := drain(t, context.Background(), resumeStrm)
	require.Contains(t, kinds(resumeEvents), event.KindResumed)
	finalEvent := resumeEvents[len(resumeEvents)-1]
	require.Equal(t, event.KindComplete, finalEvent.Kind())
	finalState, _ := finalEvent.(*event.CompleteEvent).FinalState.(map[string]any)
	require.InDelta(t, 2, finalState["n"], 0)
}

func TestRun_AgentStepCompletesOnTerminalTool(t *testing.T) {
	gen := &fakeGenerator{
		responses: []model.GenerateTextResponse{
			{ToolCalls: []model.ToolCall{{ToolCallID: "call-1", ToolName: "finish", Args: json.RawMessage(`{"answer":"done"}`)}}},
		},
	}

	def := brain.NewBrain("agentic").
		Agent("decide", func(ctx brain.StepContext) (brain.AgentSpec, error) {
			return brain.AgentSpec{
				Prompt: "do the thing",
				Tools: map[string]brain.ToolDef{
					"finish": {
						Description: "Finish the task.",
						InputSchema: json.RawMessage(`{"type":"object","properties":{"answer":{"type":"string"}}}`),
						Terminal:    true,
					},
				},
				MaxIterations: 3,
			}, nil
		}).
		Build()

	eng := engine.NewEngine()
	strm, err := eng.Run(context.Background(), def, engine.RunParams{Client: gen})
	require.NoError(t, err)

	events := drain(t, context.Background(), strm)
	last := events[len(events)-1]
	require.Equal(t, event.KindComplete, last.Kind())
	require.Contains(t, kinds(events), event.KindAgentComplete)
}

func TestRun_PlainStepWebhookSuspendsAsPaused(t *testing.T) {
	def := brain.NewBrain("webhooked").
		Step("wait-for-approval", func(ctx brain.StepContext) (any, error) {
			return brain.PlainResult{
				State:    map[string]any{"status": "pending"},
				Webhooks: []brain.Webhook{{Slug: "approve", Identifier: "req-1"}},
			}, nil
		}).
		Step("after", func(ctx brain.StepContext) (any, error) {
			state, _ := ctx.State.(map[string]any)
			state["status"] = "approved"
			return state, nil
		}).
		Build()

	eng := engine.NewEngine()
	strm, err := eng.Run(context.Background(), def, engine.RunParams{InitialState: map[string]any{}})
	require.NoError(t, err)

	events := drain(t, context.Background(), strm)
	ks := kinds(events)
	require.Contains(t, ks, event.KindWebhook)
	require.Equal(t, event.KindPaused, events[len(events)-1].Kind())
}

func TestRun_ResumeWithWebhookResponseFeedsPlainStep(t *testing.T) {
	var resumeCtx *engine.ResumeContext
	store := inmem.New()
	runID := "run-webhook-response-1"

	def := brain.NewBrain("webhooked").
		Step("wait-for-approval", func(ctx brain.StepContext) (any, error) {
			return brain.PlainResult{
				State:    map[string]any{"status": "pending"},
				Webhooks: []brain.Webhook{{Slug: "approve", Identifier: "req-1"}},
			}, nil
		}).
		Step("apply-response", func(ctx brain.StepContext) (any, error) {
			state, _ := ctx.State.(map[string]any)
			var resp map[string]any
			_ = json.Unmarshal(ctx.Response, &resp)
			state["decision"] = resp["decision"]
			return state, nil
		}).
		Build()

	eng := engine.NewEngine()
	strm, err := eng.Run(context.Background(), def, engine.RunParams{
		InitialState: map[string]any{},
		BrainRunID:   runID,
		RunLog:       store,
		OnSuspend:    func(rc *engine.ResumeContext) { resumeCtx = rc },
	})
	require.NoError(t, err)

	events := drain(t, context.Background(), strm)
	require.Equal(t, event.KindPaused, events[len(events)-1].Kind())
	require.NotNil(t, resumeCtx)

	records, err := store.Load(context.Background(), runID)
	require.NoError(t, err)
	storedEvents := make([]event.Event, 0, len(records))
	for _, r := range records {
		e, err := event.Decode(r.Kind, r.Payload)
		require.NoError(t, err)
		storedEvents = append(storedEvents, e)
	}

	signals := memory.New()
	signals.Queue(signal.Signal{
		Kind: signal.KindWebhookResponse, Identifier: "req-1",
		Response: json.RawMessage(`{"decision":"approved"}`),
	})

	resumeStrm, err := eng.Resume(context.Background(), def, engine.ResumeParams{
		EventLog:       storedEvents,
		ResumeContext:  resumeCtx,
		SignalProvider: signals,
		BrainRunID:     runID,
		RunLog:         store,
	})
	require.NoError(t, err)

	resumeEvents := drain(t, context.Background(), resumeStrm)

	var complete *event.StepCompleteEvent
	for _, e := range resumeEvents {
		if sc, ok := e.(*event.StepCompleteEvent); ok && sc.Title == "apply-response" {
			complete = sc
		}
	}
	require.NotNil(t, complete)
	patchJSON, err := json.Marshal(complete.Patch)
	require.NoError(t, err)
	require.Contains(t, string(patchJSON), "approved")

	finalEvent := resumeEvents[len(resumeEvents)-1]
	require.Equal(t, event.KindComplete, finalEvent.Kind())
	finalState, _ := finalEvent.(*event.CompleteEvent).FinalState.(map[string]any)
	require.Equal(t, "approved", finalState["decision"])
}

func TestRun_PlainStepHaltSkipsRemainingSteps(t *testing.T) {
	var secondRan bool
	def := brain.NewBrain("halting").
		Step("first", func(ctx brain.StepContext) (any, error) {
			return brain.PlainResult{State: map[string]any{"done": true}, Halt: true}, nil
		}).
		Step("second", func(ctx brain.StepContext) (any, error) {
			secondRan = true
			return ctx.State, nil
		}).
		Build()

	eng := engine.NewEngine()
	strm, err := eng.Run(context.Background(), def, engine.RunParams{InitialState: map[string]any{}})
	require.NoError(t, err)

	events := drain(t, context.Background(), strm)
	require.False(t, secondRan)
	last := events[len(events)-1]
	require.Equal(t, event.KindComplete, last.Kind())
}
