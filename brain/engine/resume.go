package engine

import (
	"encoding/json"

	"github.com/brainrun/brains/brain"
	"github.com/brainrun/brains/brain/event"
	"github.com/brainrun/brains/brain/state"
)

// validateResumeLog checks that the log begins with
// START and contains no terminal event except PAUSED as its last
// entry.
func validateResumeLog(log []event.Event) error {
	if len(log) == 0 {
		return &EngineInternal{Reason: "resume: empty event log"}
	}
	if log[0].Kind() != event.KindStart {
		return &EngineInternal{Reason: "resume: event log does not begin with START"}
	}
	for i, e := range log {
		switch e.Kind() {
		case event.KindComplete, event.KindError, event.KindCancelled:
			return &EngineInternal{Reason: "resume: event log contains a terminal event before the end"}
		case event.KindPaused:
			if i != len(log)-1 {
				return &EngineInternal{Reason: "resume: PAUSED is not the last event in the log"}
			}
		}
	}
	if log[len(log)-1].Kind() != event.KindPaused {
		return &EngineInternal{Reason: "resume: event log does not end in PAUSED"}
	}
	return nil
}

// crossCheckResumeContext checks that the replayed
// reducer state and the caller-supplied ResumeContext agree on where
// the run suspended. Full multi-level state-hash verification is out of
// scope here (brain/state's reducer tracks only the flat outer-level
// cursor, not a nested per-level stack) and is left to hosts that want it,
// by diffing resumeContext against their own runlog-applied patches.
func crossCheckResumeContext(log []event.Event, rc *ResumeContext) error {
	ctx := state.Replay(log)
	if !ctx.IsPaused {
		return &EngineInternal{Reason: "resume: replayed event log is not paused"}
	}
	if len(ctx.ExecutionStack) == 0 {
		return &EngineInternal{Reason: "resume: replayed event log has no execution stack"}
	}
	deepest := rc.deepest()
	top := ctx.ExecutionStack[len(ctx.ExecutionStack)-1]
	if top.StepIndex != deepest.StepIndex {
		return &EngineInternal{Reason: "resume: resumeContext disagrees with replayed event log stepIndex"}
	}
	return nil
}

// extractOptionsFromLog recovers the run's original options payload from
// its START event, so a resumed run's events keep stamping the same
// options the original run validated.
func extractOptionsFromLog(log []event.Event) (json.RawMessage, *event.StartEvent, error) {
	for _, e := range log {
		if start, ok := e.(*event.StartEvent); ok {
			return start.Options, start, nil
		}
	}
	return nil, nil, &EngineInternal{Reason: "resume: event log has no START event"}
}

// buildResumeFrame reconstructs the live levelFrame chain from a
// ResumeContext tree and the matching Definition tree, descending through
// NestedBrainStep children in lockstep with InnerResumeContext links. The
// deepest frame (where InnerResumeContext is nil) is seeded with whichever
// of AgentContext, BatchProgress, or WebhookResponse the snapshot carries,
// identifying the interior suspension point.
func buildResumeFrame(rc *ResumeContext, def *brain.Definition) (*levelFrame, error) {
	var decodedState any
	if len(rc.State) > 0 {
		if err := json.Unmarshal(rc.State, &decodedState); err != nil {
			return nil, &EngineInternal{Reason: "resume: decode level state", Err: err}
		}
	}

	lvl := &levelFrame{
		title:     def.Title(),
		def:       def,
		state:     decodedState,
		stepIndex: rc.StepIndex,
		tree:      buildStepTreeResumed(def, rc.StepIndex),
	}

	if rc.InnerResumeContext == nil {
		lvl.seedAgentCtx = rc.AgentContext
		lvl.seedBatchCtx = rc.BatchProgress
		lvl.seedWebhookResponse = rc.WebhookResponse
		return lvl, nil
	}

	steps := def.Steps()
	if rc.StepIndex < 0 || rc.StepIndex >= len(steps) {
		return nil, &EngineInternal{Reason: "resume: resumeContext stepIndex out of range"}
	}
	nested, ok := steps[rc.StepIndex].(brain.NestedBrainStep)
	if !ok {
		return nil, &EngineInternal{Reason: "resume: innerResumeContext targets a non-nested step"}
	}
	child, err := buildResumeFrame(rc.InnerResumeContext, nested.Child)
	if err != nil {
		return nil, err
	}
	lvl.resumeChild = child
	lvl.resumeChildMerge = nested.MergeState
	return lvl, nil
}

// deepestResumeFrame walks a freshly built resume chain to the innermost
// frame, the one that was actually suspended and whose seed fields a
// drained resume-time signal should land on.
func deepestResumeFrame(lvl *levelFrame) *levelFrame {
	for lvl.resumeChild != nil {
		lvl = lvl.resumeChild
	}
	return lvl
}
