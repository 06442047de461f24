// Package state implements the pure reducer that folds an event log into
// the execution-stack/agent-context/step-tree view the resume engine checks
// a ResumeContext against (the live scheduler keeps its own stack). The reducer
// has no side effects and no dependency on brain/engine so it can be used
// both live (fed one event at a time) and offline during replay.
package state

import (
	"github.com/brainrun/brains/brain/event"
)

// Frame is one level of the execution stack, outer to inner.
type Frame struct {
	BrainTitle string
	StepIndex  int
	State      any
}

// AgentContext mirrors the in-flight agent-loop state at the deepest
// execution level, present only while that level is inside an agent or
// batch-agent step.
type AgentContext struct {
	Iteration         int
	TotalTokens       int
	Messages          []any
	ToolCallsInFlight []string
}

// Context is the full reduced view of a run at a point in its event log.
type Context struct {
	ExecutionStack []Frame
	AgentContext   *AgentContext
	StepTree       []event.SerializedStep

	IsComplete bool
	IsKilled   bool
	IsPaused   bool
	IsErrored  bool
}

// New returns the zero Context a run starts from, before any event.
func New() Context {
	return Context{}
}

// Reduce folds one event into ctx, returning the updated context. Reduce
// never mutates its input; callers that replay a log call it once per
// stored event in order.
func Reduce(ctx Context, e event.Event) Context {
	switch ev := e.(type) {
	case *event.StartEvent:
		ctx.ExecutionStack = []Frame{{State: ev.InitialState}}
		ctx.StepTree = nil
		ctx.IsComplete, ctx.IsKilled, ctx.IsPaused, ctx.IsErrored = false, false, false, false

	case *event.StepStartEvent:
		ctx = withTopStatus(ctx, ev.StepIndex, event.StepRunning)

	case *event.StepCompleteEvent:
		ctx = withTop(ctx, func(f Frame) Frame {
			f.StepIndex = ev.StepIndex + 1
			return f
		})
		ctx = withTopStatus(ctx, ev.StepIndex, event.StepComplete)
		if ev.Halted {
			ctx.IsComplete = true
		}

	case *event.AgentStartEvent:
		ctx.AgentContext = &AgentContext{}

	case *event.AgentIterationEvent:
		if ctx.AgentContext != nil {
			ac := *ctx.AgentContext
			ac.Iteration = ev.Iteration
			ac.TotalTokens = ev.TotalTokens
			ctx.AgentContext = &ac
		}

	case *event.AgentToolCallEvent:
		if ctx.AgentContext != nil {
			ac := *ctx.AgentContext
			ac.ToolCallsInFlight = append(ac.ToolCallsInFlight[:len(ac.ToolCallsInFlight):len(ac.ToolCallsInFlight)], ev.ToolCallID)
			ctx.AgentContext = &ac
		}

	case *event.AgentToolResultEvent:
		if ctx.AgentContext != nil {
			ac := *ctx.AgentContext
			ac.ToolCallsInFlight = removeString(ac.ToolCallsInFlight, ev.ToolCallID)
			ctx.AgentContext = &ac
		}

	case *event.AgentCompleteEvent:
		ctx.AgentContext = nil

	case *event.AgentUserMessageEvent:
		if ctx.AgentContext != nil {
			ac := *ctx.AgentContext
			ac.Messages = append(ac.Messages[:len(ac.Messages):len(ac.Messages)], ev.Content)
			ctx.AgentContext = &ac
		}

	case *event.StepStatusEvent:
		ctx.StepTree = ev.Steps

	case *event.CompleteEvent:
		ctx.IsComplete = true

	case *event.CancelledEvent:
		ctx.IsKilled = true

	case *event.PausedEvent:
		ctx.IsPaused = true

	case *event.ResumedEvent:
		ctx.IsPaused = false

	case *event.ErrorEvent:
		ctx.IsErrored = true
	}
	return ctx
}

// Replay folds an entire event log from the zero Context, in order. It is
// O(|events|) and performs no allocation beyond what each Reduce call needs.
func Replay(events []event.Event) Context {
	ctx := New()
	for _, e := range events {
		ctx = Reduce(ctx, e)
	}
	return ctx
}

func withTop(ctx Context, fn func(Frame) Frame) Context {
	if len(ctx.ExecutionStack) == 0 {
		return ctx
	}
	top := len(ctx.ExecutionStack) - 1
	stack := make([]Frame, len(ctx.ExecutionStack))
	copy(stack, ctx.ExecutionStack)
	stack[top] = fn(stack[top])
	ctx.ExecutionStack = stack
	return ctx
}

func withTopStatus(ctx Context, stepIndex int, status event.StepStatus) Context {
	if stepIndex < 0 || stepIndex >= len(ctx.StepTree) {
		return ctx
	}
	tree := make([]event.SerializedStep, len(ctx.StepTree))
	copy(tree, ctx.StepTree)
	tree[stepIndex].Status = status
	ctx.StepTree = tree
	return ctx
}

func removeString(ss []string, v string) []string {
	out := ss[:0:0]
	for _, s := range ss {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
