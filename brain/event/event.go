// Package event defines the tagged union of events the engine emits while
// driving a brain run, plus their canonical JSON wire form. Every event
// carries brainRunId and the run's options object.
package event

import (
	"encoding/json"
	"time"

	"github.com/brainrun/brains/brain/patch"
)

// Kind identifies the concrete shape of an Event.
type Kind string

const (
	KindStart    Kind = "START"
	KindComplete Kind = "COMPLETE"
	KindError    Kind = "ERROR"
	KindCancelled Kind = "CANCELLED"
	KindPaused   Kind = "PAUSED"
	KindResumed  Kind = "RESUMED"

	KindStepStatus   Kind = "STEP_STATUS"
	KindStepStart    Kind = "STEP_START"
	KindStepComplete Kind = "STEP_COMPLETE"

	KindAgentStart                Kind = "AGENT_START"
	KindAgentIteration            Kind = "AGENT_ITERATION"
	KindAgentToolCall             Kind = "AGENT_TOOL_CALL"
	KindAgentToolResult           Kind = "AGENT_TOOL_RESULT"
	KindAgentAssistantMessage     Kind = "AGENT_ASSISTANT_MESSAGE"
	KindAgentRawResponseMessage   Kind = "AGENT_RAW_RESPONSE_MESSAGE"
	KindAgentUserMessage          Kind = "AGENT_USER_MESSAGE"
	KindAgentComplete             Kind = "AGENT_COMPLETE"
	KindAgentTokenLimit           Kind = "AGENT_TOKEN_LIMIT"
	KindAgentIterationLimit       Kind = "AGENT_ITERATION_LIMIT"
	KindAgentWebhook              Kind = "AGENT_WEBHOOK"

	KindBatchChunkComplete Kind = "BATCH_CHUNK_COMPLETE"

	KindWebhook         Kind = "WEBHOOK"
	KindWebhookResponse Kind = "WEBHOOK_RESPONSE"

	// KindPhaseChanged is a supplemented, additive event
	// surfacing run.Phase transitions for richer streaming UIs. It is never
	// a required lifecycle event and hosts may ignore it.
	KindPhaseChanged Kind = "PHASE_CHANGED"
)

// Event is the interface every emitted event satisfies. Concrete types embed
// Base for the common accessors and add kind-specific fields.
type Event interface {
	Kind() Kind
	BrainRunID() string
	Seq() int64
	Timestamp() time.Time
	// MarshalCanonicalJSON renders the event's canonical wire form: a JSON
	// object with keys sorted, suitable for storage and the /watch stream.
	MarshalCanonicalJSON() ([]byte, error)
}

// Base carries the fields present on every event.
type Base struct {
	K          Kind            `json:"kind"`
	RunID      string          `json:"brainRunId"`
	Options    json.RawMessage `json:"options,omitempty"`
	SeqNum     int64           `json:"seq"`
	OccurredAt time.Time       `json:"timestamp"`
}

func (b Base) Kind() Kind             { return b.K }
func (b Base) BrainRunID() string     { return b.RunID }
func (b Base) Seq() int64             { return b.SeqNum }
func (b Base) Timestamp() time.Time   { return b.OccurredAt }

// canonicalMarshal renders v as JSON and re-decodes/re-encodes it through a
// map so object keys sort deterministically
func canonicalMarshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// StartEvent fires exactly once per run, before any step.
type StartEvent struct {
	Base
	InitialState any `json:"initialState"`
}

func (e *StartEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// CompleteEvent fires exactly once, when every top-level step has run (or a
// Halt short-circuited the remaining steps).
type CompleteEvent struct {
	Base
	FinalState any `json:"finalState"`
}

func (e *CompleteEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// SerializedError is the {name, message, stack} shape required for
// UserStepError and EngineInternal failures, enriched with optional
// provider error classification.
type SerializedError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`

	Provider   string `json:"provider,omitempty"`
	Operation  string `json:"operation,omitempty"`
	ErrorKind  string `json:"errorKind,omitempty"`
	Code       string `json:"code,omitempty"`
	HTTPStatus int    `json:"httpStatus,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`
}

// ErrorEvent is a terminal event carrying a serialized error.
type ErrorEvent struct {
	Base
	Error SerializedError `json:"error"`
}

func (e *ErrorEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// CancelledEvent is a terminal event produced by a KILL signal.
type CancelledEvent struct {
	Base
}

func (e *CancelledEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// PausedEvent is a terminal event produced by a PAUSE signal, carrying an
// opaque resume-context snapshot the host must persist before resuming.
type PausedEvent struct {
	Base
	ResumeContext json.RawMessage `json:"resumeContext"`
}

func (e *PausedEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// ResumedEvent fires once at the start of a resumed stream.
type ResumedEvent struct {
	Base
}

func (e *ResumedEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// StepStatus describes one entry of a STEP_STATUS snapshot.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepComplete  StepStatus = "complete"
	StepError     StepStatus = "error"
	StepCancelled StepStatus = "cancelled"
	StepPaused    StepStatus = "paused"
)

// SerializedStep is one entry in a STEP_STATUS snapshot.
type SerializedStep struct {
	Title       string           `json:"title"`
	Type        string           `json:"type"`
	Status      StepStatus       `json:"status"`
	InnerSteps  []SerializedStep `json:"innerSteps,omitempty"`
}

// StepStatusEvent carries the full current step tree of the currently
// executing brain level, in declared order.
type StepStatusEvent struct {
	Base
	Steps []SerializedStep `json:"steps"`
}

func (e *StepStatusEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// StepStartEvent fires immediately before a step's body runs.
type StepStartEvent struct {
	Base
	StepIndex int    `json:"stepIndex"`
	Title     string `json:"title"`
	Type      string `json:"type"`
}

func (e *StepStartEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// StepCompleteEvent carries the JSON-Patch produced by a step, using the
// patch engine's output exactly.
type StepCompleteEvent struct {
	Base
	StepIndex int         `json:"stepIndex"`
	Title     string      `json:"title"`
	Patch     patch.Patch `json:"patch"`
	Halted    bool        `json:"halted,omitempty"`
}

func (e *StepCompleteEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// AgentStartEvent fires once when an agent step's loop begins.
type AgentStartEvent struct {
	Base
	StepIndex int `json:"stepIndex"`
}

func (e *AgentStartEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// AgentIterationEvent fires at the start of every agent-loop iteration.
type AgentIterationEvent struct {
	Base
	Iteration   int `json:"iteration"`
	TotalTokens int `json:"totalTokens"`
}

func (e *AgentIterationEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// AgentToolCallEvent fires when the model requests a tool call.
type AgentToolCallEvent struct {
	Base
	ToolCallID  string          `json:"toolCallId"`
	ToolName    string          `json:"toolName"`
	Input       json.RawMessage `json:"input"`
	DisplayHint string          `json:"displayHint,omitempty"`
}

func (e *AgentToolCallEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// AgentToolResultEvent fires when a non-terminal tool finishes executing.
type AgentToolResultEvent struct {
	Base
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Result     json.RawMessage `json:"result"`
}

func (e *AgentToolResultEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// AgentAssistantMessageEvent carries plain assistant text.
type AgentAssistantMessageEvent struct {
	Base
	Text string `json:"text"`
}

func (e *AgentAssistantMessageEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// AgentRawResponseMessageEvent preserves provider-specific response
// metadata as an opaque blob.
type AgentRawResponseMessageEvent struct {
	Base
	Raw json.RawMessage `json:"raw"`
}

func (e *AgentRawResponseMessageEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// AgentUserMessageEvent fires once per USER_MESSAGE signal drained at an
// iteration boundary, before that iteration's AGENT_ITERATION event.
type AgentUserMessageEvent struct {
	Base
	Content string `json:"content"`
}

func (e *AgentUserMessageEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// AgentCompleteEvent fires exactly once per agent step, when a terminal
// tool call ends the loop.
type AgentCompleteEvent struct {
	Base
	Result           json.RawMessage `json:"result"`
	TerminalToolName string          `json:"terminalToolName"`
}

func (e *AgentCompleteEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// AgentTokenLimitEvent fires when totalTokens reaches the step's MaxTokens.
type AgentTokenLimitEvent struct {
	Base
	TotalTokens int `json:"totalTokens"`
	MaxTokens   int `json:"maxTokens"`
}

func (e *AgentTokenLimitEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// AgentIterationLimitEvent fires when iteration reaches the step's
// MaxIterations.
type AgentIterationLimitEvent struct {
	Base
	Iteration     int `json:"iteration"`
	MaxIterations int `json:"maxIterations"`
}

func (e *AgentIterationLimitEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// AgentWebhookEvent fires when a tool execution returns a webhook wait,
// suspending the agent loop mid-iteration.
type AgentWebhookEvent struct {
	Base
	ToolCallID string    `json:"toolCallId"`
	WaitFor    []Webhook `json:"waitFor"`
}

func (e *AgentWebhookEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// Webhook mirrors brain.Webhook for the wire form, avoiding an import cycle
// between brain and event.
type Webhook struct {
	Slug       string          `json:"slug"`
	Identifier string          `json:"identifier"`
	Schema     json.RawMessage `json:"schema,omitempty"`
}

// BatchChunkCompleteEvent fires after each processed batch chunk, carrying
// the accumulated results so far.
type BatchChunkCompleteEvent struct {
	Base
	StepIndex      int               `json:"stepIndex"`
	ProcessedCount int               `json:"processedCount"`
	Results        []json.RawMessage `json:"results"`
}

func (e *BatchChunkCompleteEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// WebhookEvent fires when a step or tool registers webhooks and the engine
// suspends.
type WebhookEvent struct {
	Base
	WaitFor []Webhook `json:"waitFor"`
}

func (e *WebhookEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// WebhookResponseEvent records a delivered WEBHOOK_RESPONSE signal landing
// in the event stream for audit purposes.
type WebhookResponseEvent struct {
	Base
	Identifier string          `json:"identifier"`
	Response   json.RawMessage `json:"response"`
}

func (e *WebhookResponseEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }

// PhaseChangedEvent is a supplemented, additive lifecycle-phase signal.
// It never substitutes for a required lifecycle event.
type PhaseChangedEvent struct {
	Base
	Phase string `json:"phase"`
}

func (e *PhaseChangedEvent) MarshalCanonicalJSON() ([]byte, error) { return canonicalMarshal(e) }
