package event

import (
	"encoding/json"
	"fmt"
)

// Decode reconstructs the concrete Event for kind from its canonical JSON
// payload, the inverse of MarshalCanonicalJSON. Used by the resume engine to
// replay a stored runlog.Record log and by runlog.Store
// implementations that need a typed Event rather than a raw payload.
func Decode(kind Kind, payload json.RawMessage) (Event, error) {
	var e Event
	switch kind {
	case KindStart:
		e = &StartEvent{}
	case KindComplete:
		e = &CompleteEvent{}
	case KindError:
		e = &ErrorEvent{}
	case KindCancelled:
		e = &CancelledEvent{}
	case KindPaused:
		e = &PausedEvent{}
	case KindResumed:
		e = &ResumedEvent{}
	case KindStepStatus:
		e = &StepStatusEvent{}
	case KindStepStart:
		e = &StepStartEvent{}
	case KindStepComplete:
		e = &StepCompleteEvent{}
	case KindAgentStart:
		e = &AgentStartEvent{}
	case KindAgentIteration:
		e = &AgentIterationEvent{}
	case KindAgentToolCall:
		e = &AgentToolCallEvent{}
	case KindAgentToolResult:
		e = &AgentToolResultEvent{}
	case KindAgentAssistantMessage:
		e = &AgentAssistantMessageEvent{}
	case KindAgentRawResponseMessage:
		e = &AgentRawResponseMessageEvent{}
	case KindAgentUserMessage:
		e = &AgentUserMessageEvent{}
	case KindAgentComplete:
		e = &AgentCompleteEvent{}
	case KindAgentTokenLimit:
		e = &AgentTokenLimitEvent{}
	case KindAgentIterationLimit:
		e = &AgentIterationLimitEvent{}
	case KindAgentWebhook:
		e = &AgentWebhookEvent{}
	case KindBatchChunkComplete:
		e = &BatchChunkCompleteEvent{}
	case KindWebhook:
		e = &WebhookEvent{}
	case KindWebhookResponse:
		e = &WebhookResponseEvent{}
	case KindPhaseChanged:
		e = &PhaseChangedEvent{}
	default:
		return nil, fmt.Errorf("event: unknown kind %q", kind)
	}
	if err := json.Unmarshal(payload, e); err != nil {
		return nil, fmt.Errorf("event: decode %s: %w", kind, err)
	}
	return e, nil
}
