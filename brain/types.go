// Package brain defines the immutable, typed description of a brain: an
// ordered sequence of steps mixing deterministic computation, LLM-driven
// agent loops, nested sub-brains, and batched agent work. A Definition is
// built once via Builder and is safe to reuse across many runs.
package brain

import "encoding/json"

// State is the JSON-shaped value owned by a single brain level. Step bodies
// receive it decoded (any, typically map[string]any) and return a new
// value; the engine computes the forward JSON-Patch between old and new.
type State = any

// Step is the closed tagged union of step shapes a brain can contain.
// Concrete implementations are PlainStep, AgentStep, NestedBrainStep, and
// BatchAgentStep. The marker method keeps the union closed to this package.
type Step interface {
	Title() string
	isStep()
}

type stepBase struct {
	title string
}

// Title returns the declared title for the step, used for display,
// resolution, and event correlation.
func (s stepBase) Title() string { return s.title }

// StepContext is passed to every step/tool/agent body. It carries no hidden
// state: everything a body can observe is an explicit field here.
type StepContext struct {
	// State is the current state at this brain level, decoded from the
	// engine's accumulated JSON state.
	State any
	// Options is the run-time options object, validated against
	// Definition.OptionsSchema (if set) before the run starts.
	Options any
	// Resources is a read-mostly keyed capability loader injected by the host.
	Resources Resources
	// Pages is an injected page-rendering capability, passed through unchanged.
	Pages any
	// Env is an injected environment/config capability, passed through unchanged.
	Env any
	// Memory is an optional injected memory provider.
	Memory any
	// Response carries the webhook reply payload for the first body invoked
	// on resume after a webhook wait: the step after a Plain step that
	// registered webhooks, or the Agent/BatchAgent step whose tool was
	// waiting. Nil otherwise.
	Response json.RawMessage
	// BrainRunID identifies the run that owns this step invocation.
	BrainRunID string
}

// Resources is a read-mostly keyed capability loader. Concurrent reads must
// be safe; the engine never mutates it.
type Resources interface {
	Load(ctx StepContext, key string) (any, error)
}

// PlainResult is the value a Plain step body may return alongside state
// when it also needs to register webhooks or short-circuit the remaining
// steps at its level.
type PlainResult struct {
	State    any
	Webhooks []Webhook
	// Halt terminates the enclosing brain level early: this step's state
	// becomes the level's final state and the remaining declared steps are
	// never dispatched (STEP_COMPLETE.halted=true).
	Halt bool
}

// Webhook is a registration describing an external callback the engine
// should suspend on. When a step or tool returns a Webhook set, the engine
// emits a WEBHOOK event and suspends until a matching WEBHOOK_RESPONSE
// signal arrives.
type Webhook struct {
	Slug       string
	Identifier string
	Schema     json.RawMessage
}

// PlainBody is a deterministic computation step. It returns either a bare
// new state or a PlainResult carrying webhook registrations.
type PlainBody func(ctx StepContext) (any, error)

// PlainStep is a deterministic computation step.
type PlainStep struct {
	stepBase
	Body PlainBody
}

func (PlainStep) isStep() {}

// NewPlainStep constructs a Plain step definition.
func NewPlainStep(title string, body PlainBody) PlainStep {
	return PlainStep{stepBase: stepBase{title: title}, Body: body}
}

// ToolExecuteResult is the outcome of a non-terminal tool execution. Exactly
// one of Result or WaitFor is meaningful: a non-nil WaitFor suspends the
// agent loop on a webhook wait.
type ToolExecuteResult struct {
	Result   any
	WaitFor  []Webhook
}

// ToolExecute runs a tool's side effect given its (already schema-validated)
// input, returning either a result value or a webhook wait.
type ToolExecute func(ctx StepContext, input json.RawMessage) (ToolExecuteResult, error)

// ToolDef describes a single tool exposed to the agent loop.
type ToolDef struct {
	// Description is shown to the model in the tool listing.
	Description string
	// InputSchema is a JSON-Schema document the tool's arguments must satisfy.
	InputSchema json.RawMessage
	// Execute runs the tool. May be nil for a Terminal tool whose input
	// alone supplies the step's result state.
	Execute ToolExecute
	// Terminal marks a tool whose invocation ends the agent loop; its input
	// becomes the step's result state.
	Terminal bool
	// Summarize optionally renders a short human-facing description of an
	// in-flight call, used to populate AGENT_TOOL_CALL.DisplayHint.
	Summarize func(input json.RawMessage) string
	// IdempotencyKey optionally derives a stable key from the tool input so
	// a host-side adapter can dedupe retried executions after a crash.
	IdempotencyKey func(input json.RawMessage) string
}

// AgentSpec is produced by an Agent step's body and fully describes one
// agent-loop invocation.
type AgentSpec struct {
	Prompt        string
	System        string
	Tools         map[string]ToolDef
	MaxIterations int
	MaxTokens     int
}

// AgentBody builds the AgentSpec for one agent step invocation.
type AgentBody func(ctx StepContext) (AgentSpec, error)

// AgentStep is a step whose body invokes an LLM loop with tools until a
// terminal tool fires, a limit is hit, or the run is interrupted.
type AgentStep struct {
	stepBase
	Body AgentBody
}

func (AgentStep) isStep() {}

// NewAgentStep constructs an Agent step definition.
func NewAgentStep(title string, body AgentBody) AgentStep {
	return AgentStep{stepBase: stepBase{title: title}, Body: body}
}

// AdaptState derives the child brain's initial state from the parent state.
type AdaptState func(parent any) (any, error)

// MergeState folds the child brain's final state back into the parent.
type MergeState func(parent, child any) (any, error)

// NestedBrainStep runs a full child Definition as a single step of the
// parent brain.
type NestedBrainStep struct {
	stepBase
	Child      *Definition
	AdaptState AdaptState
	MergeState MergeState
}

func (NestedBrainStep) isStep() {}

// NewNestedBrainStep constructs a NestedBrain step definition.
func NewNestedBrainStep(title string, child *Definition, adapt AdaptState, merge MergeState) NestedBrainStep {
	return NestedBrainStep{stepBase: stepBase{title: title}, Child: child, AdaptState: adapt, MergeState: merge}
}

// BatchItems enumerates the items to process, one agent-loop invocation per
// item, chunked by ChunkSize.
type BatchItems func(ctx StepContext) ([]any, error)

// BatchBody builds the AgentSpec for a single item within a batch.
type BatchBody func(item any, ctx StepContext) (AgentSpec, error)

// BatchAgentStep splits Items() into chunks of ChunkSize and runs the agent
// loop once per item (ordered within a chunk), emitting a
// BATCH_CHUNK_COMPLETE event after each chunk.
type BatchAgentStep struct {
	stepBase
	Items     BatchItems
	ChunkSize int
	Schema    json.RawMessage
	Body      BatchBody
}

func (BatchAgentStep) isStep() {}

// NewBatchAgentStep constructs a BatchAgent step definition.
func NewBatchAgentStep(title string, items BatchItems, chunkSize int, schema json.RawMessage, body BatchBody) BatchAgentStep {
	return BatchAgentStep{
		stepBase:  stepBase{title: title},
		Items:     items,
		ChunkSize: chunkSize,
		Schema:    schema,
		Body:      body,
	}
}

// Definition is an immutable, typed description of a brain's steps. Build
// one with Builder and reuse it across runs; the engine never mutates it.
type Definition struct {
	title         string
	description   string
	steps         []Step
	optionsSchema json.RawMessage
}

// Title returns the brain's declared title.
func (d *Definition) Title() string { return d.title }

// Description returns the brain's declared description, possibly empty.
func (d *Definition) Description() string { return d.description }

// Steps returns the ordered, declared step list. Callers must not mutate
// the returned slice.
func (d *Definition) Steps() []Step { return d.steps }

// OptionsSchema returns the JSON-Schema document validating the run-time
// options object, or nil if none was declared.
func (d *Definition) OptionsSchema() json.RawMessage { return d.optionsSchema }
