package engine

import (
	"encoding/json"

	"github.com/brainrun/brains/brain/agentloop"
)

// ResumeContext is the opaque-to-hosts, JSON-shaped snapshot the engine
// produces on PAUSE and accepts on Resume. It mirrors the brain's nested
// level structure: stepIndex + state at each level, with exactly
// one of InnerResumeContext, AgentContext, WebhookResponse, or
// BatchProgress set at the deepest node identifying the interior
// suspension point.
type ResumeContext struct {
	StepIndex          int             `json:"stepIndex"`
	State              json.RawMessage `json:"state"`
	InnerResumeContext *ResumeContext  `json:"innerResumeContext,omitempty"`
	AgentContext       *AgentResumeCtx `json:"agentContext,omitempty"`
	WebhookResponse    json.RawMessage `json:"webhookResponse,omitempty"`
	BatchProgress      *BatchResumeCtx `json:"batchProgress,omitempty"`
}

// AgentResumeCtx is agentloop.State: the same snapshot shape the agent loop
// itself produces and consumes, reused here so resume never needs to
// translate between two parallel representations of "conversation so far".
type AgentResumeCtx = agentloop.State

// BatchResumeCtx captures a batch agent step's progress across chunks.
type BatchResumeCtx struct {
	ProcessedCount   int              `json:"processedCount"`
	Results          []json.RawMessage `json:"results"`
	ItemAgentContext *AgentResumeCtx  `json:"itemAgentContext,omitempty"`
}

// deepest walks InnerResumeContext links and returns the leaf node, which
// names the brain level the scheduler must resume at.
func (r *ResumeContext) deepest() *ResumeContext {
	cur := r
	for cur.InnerResumeContext != nil {
		cur = cur.InnerResumeContext
	}
	return cur
}
