// Package agentloop implements the per-iteration LLM tool-calling loop
// consumed by brain/engine for Agent and BatchAgent steps.
// It is intentionally engine-agnostic: Run takes an event.Sequencer and an
// emit callback rather than importing brain/engine, so brain/engine can
// import agentloop without a cycle.
package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/brainrun/brains/brain"
	"github.com/brainrun/brains/brain/event"
	"github.com/brainrun/brains/brain/jsonschema"
	"github.com/brainrun/brains/brain/model"
	"github.com/brainrun/brains/brain/signal"
)

// Outcome classifies how a Run call ended.
type Outcome int

const (
	// Completed means a terminal tool fired; Result.State carries its input.
	Completed Outcome = iota
	// WebhookSuspended means a non-terminal tool returned a webhook wait.
	WebhookSuspended
	// Cancelled means a KILL signal was observed at an iteration boundary
	// or mid-flight during a generateText call.
	Cancelled
	// Paused means a PAUSE signal was observed at an iteration boundary.
	Paused
)

// LimitError reports that the step's token or iteration budget was
// exhausted. Kind is "token" or "iteration".
type LimitError struct {
	Kind     string
	Limit    int
	Observed int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("agentloop: %s limit exceeded (%d >= %d)", e.Kind, e.Observed, e.Limit)
}

// ValidationFailure reports a tool call whose input failed InputSchema
// validation (surfaced by the caller as a step error).
type ValidationFailure struct {
	ToolName string
	Err      error
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("agentloop: tool %q input: %v", e.ToolName, e.Err)
}
func (e *ValidationFailure) Unwrap() error { return e.Err }

// State is the resumable snapshot of an in-flight loop: the conversation so
// far, iteration/token counters, and (when suspended on a tool's webhook
// wait) the tool call id the eventual response answers.
type State struct {
	Iteration         int             `json:"iteration"`
	TotalTokens       int             `json:"totalTokens"`
	Messages          []model.Message `json:"messages"`
	PendingToolCallID string          `json:"pendingToolCallId,omitempty"`
}

// Params configures one Run call.
type Params struct {
	StepIndex int
	Spec      brain.AgentSpec
	Generator model.ObjectGenerator
	Signals   signal.Provider
	Seq       *event.Sequencer
	Emit      func(event.Event)
	StepCtx   brain.StepContext
	// Resume, when non-nil, continues a previously suspended loop instead
	// of starting a fresh one. If Resume.PendingToolCallID is set,
	// StepCtx.Response is injected as that tool call's result before the
	// next iteration begins.
	Resume *State
}

// Result is the outcome of one Run call.
type Result struct {
	Outcome  Outcome
	State    any // terminal tool input, decoded, when Outcome == Completed
	WaitFor  []brain.Webhook
	Snapshot State // valid for WebhookSuspended, Cancelled, Paused
}

// Run drives the agent loop until a terminal tool fires, a limit is
// exceeded, a webhook wait suspends it, or KILL/PAUSE interrupts it.
func Run(ctx context.Context, p Params) (Result, error) {
	var messages []model.Message
	iter := 0
	totalTokens := 0

	if p.Resume != nil {
		iter = p.Resume.Iteration
		totalTokens = p.Resume.TotalTokens
		messages = append(messages, p.Resume.Messages...)
		if p.Resume.PendingToolCallID != "" {
			result := p.StepCtx.Response
			if result == nil {
				result = json.RawMessage("null")
			}
			messages = append(messages, model.Message{
				Role:  model.RoleTool,
				Parts: []model.Part{model.ToolResultPart{ToolCallID: p.Resume.PendingToolCallID, Result: result}},
			})
			p.Emit(&event.AgentToolResultEvent{
				Base:       p.Seq.Base(event.KindAgentToolResult),
				ToolCallID: p.Resume.PendingToolCallID,
				Result:     result,
			})
		}
	} else {
		p.Emit(&event.AgentStartEvent{Base: p.Seq.Base(event.KindAgentStart), StepIndex: p.StepIndex})
	}

	toolSpecs := buildToolSpecs(p.Spec.Tools)

	for {
		for {
			sig, ok := p.Signals.Take(signal.Of(signal.KindUserMessage), true)
			if !ok {
				break
			}
			messages = append(messages, model.Message{Role: model.RoleUser, Parts: []model.Part{model.TextPart{Text: sig.Content}}})
			p.Emit(&event.AgentUserMessageEvent{Base: p.Seq.Base(event.KindAgentUserMessage), Content: sig.Content})
		}

		if sig, ok := p.Signals.Take(signal.Of(signal.KindKill, signal.KindPause), true); ok {
			snap := State{Iteration: iter, TotalTokens: totalTokens, Messages: messages}
			if sig.Kind == signal.KindKill {
				return Result{Outcome: Cancelled, Snapshot: snap}, nil
			}
			return Result{Outcome: Paused, Snapshot: snap}, nil
		}

		iter++
		p.Emit(&event.AgentIterationEvent{Base: p.Seq.Base(event.KindAgentIteration), Iteration: iter, TotalTokens: totalTokens})

		watchCtx, cancel := watchKill(ctx, p.Signals)
		resp, err := p.Generator.GenerateText(watchCtx, model.GenerateTextRequest{
			System:   p.Spec.System,
			Messages: messages,
			Tools:    toolSpecs,
		})
		cancel()
		if err != nil {
			if errors.Is(watchCtx.Err(), context.Canceled) && ctx.Err() == nil {
				p.Signals.Take(signal.Of(signal.KindKill), true)
				return Result{Outcome: Cancelled, Snapshot: State{Iteration: iter, TotalTokens: totalTokens, Messages: messages}}, nil
			}
			return Result{}, err
		}
		totalTokens += resp.Usage.TotalTokens

		for _, raw := range resp.ResponseMessages {
			p.Emit(&event.AgentRawResponseMessageEvent{Base: p.Seq.Base(event.KindAgentRawResponseMessage), Raw: raw})
		}
		if resp.Text != "" {
			p.Emit(&event.AgentAssistantMessageEvent{Base: p.Seq.Base(event.KindAgentAssistantMessage), Text: resp.Text})
			messages = append(messages, model.Message{Role: model.RoleAssistant, Parts: []model.Part{model.TextPart{Text: resp.Text}}})
		}

		if len(resp.ToolCalls) > 0 {
			parts := make([]model.Part, 0, len(resp.ToolCalls))
			for _, tc := range resp.ToolCalls {
				parts = append(parts, model.ToolCallPart{ToolCallID: tc.ToolCallID, ToolName: tc.ToolName, Args: tc.Args})
			}
			messages = append(messages, model.Message{Role: model.RoleAssistant, Parts: parts})
		}

		for _, tc := range resp.ToolCalls {
			def, ok := p.Spec.Tools[tc.ToolName]
			if !ok {
				return Result{}, fmt.Errorf("agentloop: unknown tool %q", tc.ToolName)
			}

			hint := ""
			if def.Summarize != nil {
				hint = def.Summarize(tc.Args)
			}
			p.Emit(&event.AgentToolCallEvent{
				Base:        p.Seq.Base(event.KindAgentToolCall),
				ToolCallID:  tc.ToolCallID,
				ToolName:    tc.ToolName,
				Input:       tc.Args,
				DisplayHint: hint,
			})

			if err := jsonschema.Validate(def.InputSchema, tc.Args); err != nil {
				return Result{}, &ValidationFailure{ToolName: tc.ToolName, Err: err}
			}

			if def.Terminal {
				p.Emit(&event.AgentCompleteEvent{
					Base:             p.Seq.Base(event.KindAgentComplete),
					Result:           tc.Args,
					TerminalToolName: tc.ToolName,
				})
				var decoded any
				if err := json.Unmarshal(tc.Args, &decoded); err != nil {
					return Result{}, fmt.Errorf("agentloop: decode terminal tool input: %w", err)
				}
				return Result{Outcome: Completed, State: decoded}, nil
			}

			execResult, err := def.Execute(p.StepCtx, tc.Args)
			if err != nil {
				return Result{}, fmt.Errorf("agentloop: tool %q: %w", tc.ToolName, err)
			}
			if len(execResult.WaitFor) > 0 {
				p.Emit(&event.AgentWebhookEvent{
					Base:       p.Seq.Base(event.KindAgentWebhook),
					ToolCallID: tc.ToolCallID,
					WaitFor:    toEventWebhooks(execResult.WaitFor),
				})
				return Result{
					Outcome: WebhookSuspended,
					WaitFor: execResult.WaitFor,
					Snapshot: State{
						Iteration: iter, TotalTokens: totalTokens, Messages: messages,
						PendingToolCallID: tc.ToolCallID,
					},
				}, nil
			}

			resultJSON, err := json.Marshal(execResult.Result)
			if err != nil {
				return Result{}, fmt.Errorf("agentloop: marshal tool %q result: %w", tc.ToolName, err)
			}
			p.Emit(&event.AgentToolResultEvent{
				Base: p.Seq.Base(event.KindAgentToolResult), ToolCallID: tc.ToolCallID,
				ToolName: tc.ToolName, Result: resultJSON,
			})
			messages = append(messages, model.Message{
				Role:  model.RoleTool,
				Parts: []model.Part{model.ToolResultPart{ToolCallID: tc.ToolCallID, Result: resultJSON}},
			})
		}

		if p.Spec.MaxTokens > 0 && totalTokens >= p.Spec.MaxTokens {
			p.Emit(&event.AgentTokenLimitEvent{Base: p.Seq.Base(event.KindAgentTokenLimit), TotalTokens: totalTokens, MaxTokens: p.Spec.MaxTokens})
			return Result{}, &LimitError{Kind: "token", Limit: p.Spec.MaxTokens, Observed: totalTokens}
		}
		if p.Spec.MaxIterations > 0 && iter >= p.Spec.MaxIterations {
			p.Emit(&event.AgentIterationLimitEvent{Base: p.Seq.Base(event.KindAgentIterationLimit), Iteration: iter, MaxIterations: p.Spec.MaxIterations})
			return Result{}, &LimitError{Kind: "iteration", Limit: p.Spec.MaxIterations, Observed: iter}
		}
	}
}

// watchKill derives a context canceled the moment a KILL signal is queued,
// so an in-flight generateText call can be abandoned mid-flight. The
// signal itself is left queued (Peek, not Take) so the caller performs the
// real, once-only consumption and CANCELLED bookkeeping after the call
// unwinds.
func watchKill(parent context.Context, sig signal.Provider) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if s, ok := sig.Peek(); ok && s.Kind == signal.KindKill {
					cancel()
					return
				}
			}
		}
	}()
	return ctx, func() { close(done); cancel() }
}

func buildToolSpecs(tools map[string]brain.ToolDef) []model.ToolSpec {
	specs := make([]model.ToolSpec, 0, len(tools))
	for name, def := range tools {
		specs = append(specs, model.ToolSpec{Name: name, Description: def.Description, InputSchema: def.InputSchema})
	}
	return specs
}

func toEventWebhooks(ws []brain.Webhook) []event.Webhook {
	out := make([]event.Webhook, len(ws))
	for i, w := range ws {
		out[i] = event.Webhook{Slug: w.Slug, Identifier: w.Identifier, Schema: w.Schema}
	}
	return out
}
