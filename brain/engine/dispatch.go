package engine

import (
	"encoding/json"
	"errors"

	"github.com/brainrun/brains/brain"
	"github.com/brainrun/brains/brain/agentloop"
	"github.com/brainrun/brains/brain/event"
	"github.com/brainrun/brains/brain/patch"
	"github.com/brainrun/brains/brain/signal"
)

// levelFrame is one level of the live execution stack: the brain
// definition active at this level, its current declared-state, step
// cursor, and step-status tree, plus whatever seed a resume supplied for
// re-entering this level's in-flight step.
type levelFrame struct {
	title string
	def   *brain.Definition
	state any
	tree  []event.SerializedStep

	stepIndex int

	// resumeChild and resumeChildMerge are set only while reconstructing an
	// ancestor level during Resume: the very first iteration of this
	// level's loop must re-enter the pre-built child frame directly instead
	// of re-running NestedBrainStep.AdaptState, since that step already
	// started before the run suspended.
	resumeChild      *levelFrame
	resumeChildMerge brain.MergeState

	// seedAgentCtx/seedBatchCtx seed the very next Agent/BatchAgent dispatch
	// at this level with a resumed snapshot; seedWebhookResponse is handed to
	// the very next Plain, Agent or BatchAgent dispatch. Cleared after the
	// first dispatch at stepIndex consumes them.
	seedAgentCtx        *agentloop.State
	seedBatchCtx        *BatchResumeCtx
	seedWebhookResponse json.RawMessage
}

// outcomeKind classifies what a single step dispatch produced.
type outcomeKind int

const (
	outcomeOk outcomeKind = iota
	outcomeWebhook
	outcomeCancelled
	outcomePaused
	outcomeError
)

// dispatchOutcome is the result of dispatching one step at one level.
type dispatchOutcome struct {
	kind    outcomeKind
	state   any
	waitFor []brain.Webhook
	err     error
	// halt is set only for a completed Plain step that requested early
	// level termination (brain.PlainResult.Halt).
	halt bool

	// alreadyEmitted marks that the dispatch already emitted its own
	// terminal event (and, for suspensions, called onSuspend) at a deeper
	// level — the ancestor runLevel must propagate the outcome without
	// emitting a second one.
	alreadyEmitted bool
}

// levelResultKind classifies how an entire level's run ended.
type levelResultKind int

const (
	lrCompleted levelResultKind = iota
	lrCancelled
	lrPaused
	lrErrored
)

// levelResult is what runLevel returns once a level is done (or
// suspended).
type levelResult struct {
	kind  levelResultKind
	state any
	err   error
}

// runLevel drives one brain level's declared steps in order. It is
// called once for the top-level run and recursively for
// every NestedBrainStep's child, and once per level reconstructed while
// resuming a paused run.
func (r *runner) runLevel(lvl *levelFrame) levelResult {
	r.stack = append(r.stack, lvl)
	defer func() { r.stack = r.stack[:len(r.stack)-1] }()

	r.emitStepStatus(lvl)

	for {
		steps := lvl.def.Steps()
		if lvl.stepIndex >= len(steps) {
			return levelResult{kind: lrCompleted, state: lvl.state}
		}

		if sig, ok := r.signals.Take(signal.Of(signal.KindKill, signal.KindPause), true); ok {
			return r.suspendLevel(lvl, sig)
		}

		step := steps[lvl.stepIndex]
		prevState := lvl.state

		var out dispatchOutcome
		if lvl.resumeChild != nil {
			child := lvl.resumeChild
			merge := lvl.resumeChildMerge
			lvl.resumeChild = nil
			lvl.resumeChildMerge = nil
			out = r.nestedResultToOutcome(r.runLevel(child), lvl.state, merge, step.Title())
		} else {
			lvl.setStatus(lvl.stepIndex, event.StepRunning)
			r.emit(&event.StepStartEvent{
				Base: r.seq.Base(event.KindStepStart), StepIndex: lvl.stepIndex,
				Title: step.Title(), Type: stepType(step),
			})
			r.emitStepStatus(lvl)
			out = r.dispatchStep(lvl, step)
		}

		switch out.kind {
		case outcomeOk:
			oldState := lvl.state
			newState := out.state
			p, err := patch.Diff(oldState, newState)
			if err != nil {
				err = &EngineInternal{Reason: "diff step state", Err: err}
				r.emitError(lvl, err)
				return levelResult{kind: lrErrored, err: err}
			}
			lvl.state = newState
			lvl.setStatus(lvl.stepIndex, event.StepComplete)
			halted := out.halt
			r.emit(&event.StepCompleteEvent{
				Base: r.seq.Base(event.KindStepComplete), StepIndex: lvl.stepIndex,
				Title: step.Title(), Patch: p, Halted: halted,
			})
			r.emitStepStatus(lvl)
			if halted {
				return levelResult{kind: lrCompleted, state: lvl.state}
			}
			lvl.stepIndex++

		case outcomeWebhook:
			// A Plain step that registers webhooks completes before the wait, so
			// the step after it receives the response on resume.
			if _, plain := step.(brain.PlainStep); plain {
				p, err := patch.Diff(prevState, lvl.state)
				if err != nil {
					err = &EngineInternal{Reason: "diff step state", Err: err}
					r.emitError(lvl, err)
					return levelResult{kind: lrErrored, err: err}
				}
				lvl.setStatus(lvl.stepIndex, event.StepComplete)
				r.emit(&event.StepCompleteEvent{Base: r.seq.Base(event.KindStepComplete), StepIndex: lvl.stepIndex, Title: step.Title(), Patch: p})
				lvl.stepIndex++
			}
			r.emit(&event.WebhookEvent{Base: r.seq.Base(event.KindWebhook), WaitFor: toEventWebhooks(out.waitFor)})
			return r.pauseLevel(lvl)

		case outcomeCancelled:
			if !out.alreadyEmitted {
				lvl.setStatus(lvl.stepIndex, event.StepCancelled)
				r.emit(&event.CancelledEvent{Base: r.seq.Base(event.KindCancelled)})
			}
			return levelResult{kind: lrCancelled}

		case outcomePaused:
			if !out.alreadyEmitted {
				return r.pauseLevel(lvl)
			}
			return levelResult{kind: lrPaused}

		case outcomeError:
			if !out.alreadyEmitted {
				lvl.setStatus(lvl.stepIndex, event.StepError)
				r.emitError(lvl, out.err)
			}
			return levelResult{kind: lrErrored, err: out.err}
		}
	}
}

// suspendLevel handles a KILL/PAUSE observed at a step boundary (between
// steps, not mid-dispatch).
func (r *runner) suspendLevel(lvl *levelFrame, sig signal.Signal) levelResult {
	if sig.Kind == signal.KindKill {
		lvl.setStatus(lvl.stepIndex, event.StepCancelled)
		r.emit(&event.CancelledEvent{Base: r.seq.Base(event.KindCancelled)})
		return levelResult{kind: lrCancelled}
	}
	return r.pauseLevel(lvl)
}

// pauseLevel emits PAUSED carrying the current stack's ResumeContext
// snapshot and notifies onSuspend. It implements the unified
// suspension path: both a PAUSE signal and a webhook wait end a level here,
// since the terminal-kind invariant has no separate "suspended"
// kind distinct from PAUSED.
func (r *runner) pauseLevel(lvl *levelFrame) levelResult {
	lvl.setStatus(lvl.stepIndex, event.StepPaused)
	rc := r.snapshotResumeContext()
	raw, err := json.Marshal(rc)
	if err != nil {
		err = &EngineInternal{Reason: "marshal resume context", Err: err}
		r.emitError(lvl, err)
		return levelResult{kind: lrErrored, err: err}
	}
	r.emit(&event.PausedEvent{Base: r.seq.Base(event.KindPaused), ResumeContext: raw})
	if r.onSuspend != nil {
		r.onSuspend(rc)
	}
	return levelResult{kind: lrPaused}
}

func (r *runner) emitError(lvl *levelFrame, err error) {
	r.emit(&event.ErrorEvent{Base: r.seq.Base(event.KindError), Error: serializeError(err)})
}

// snapshotResumeContext builds the nested ResumeContext tree from the live
// execution stack, outermost frame first.
func (r *runner) snapshotResumeContext() *ResumeContext {
	var build func(i int) *ResumeContext
	build = func(i int) *ResumeContext {
		lvl := r.stack[i]
		stateRaw, _ := json.Marshal(lvl.state)
		rc := &ResumeContext{StepIndex: lvl.stepIndex, State: stateRaw}
		if i+1 < len(r.stack) {
			rc.InnerResumeContext = build(i + 1)
			return rc
		}
		rc.AgentContext = lvl.seedAgentCtx
		rc.BatchProgress = lvl.seedBatchCtx
		rc.WebhookResponse = lvl.seedWebhookResponse
		return rc
	}
	return build(0)
}

// dispatchStep dispatches step at lvl according to its concrete type.
func (r *runner) dispatchStep(lvl *levelFrame, step brain.Step) dispatchOutcome {
	switch st := step.(type) {
	case brain.PlainStep:
		return r.dispatchPlain(lvl, st)
	case brain.AgentStep:
		return r.dispatchAgent(lvl, st)
	case brain.NestedBrainStep:
		return r.dispatchNested(lvl, st)
	case brain.BatchAgentStep:
		return r.dispatchBatch(lvl, st)
	default:
		return dispatchOutcome{kind: outcomeError, err: &EngineInternal{Reason: "unknown step type"}}
	}
}

func (r *runner) dispatchPlain(lvl *levelFrame, st brain.PlainStep) dispatchOutcome {
	ctx := r.stepContext(lvl, lvl.seedWebhookResponse)
	lvl.seedWebhookResponse = nil
	resAny, err := runRecovered(func() (any, error) { return st.Body(ctx) })
	if err != nil {
		return dispatchOutcome{kind: outcomeError, err: &UserStepError{StepTitle: st.Title(), Err: err}}
	}
	switch v := resAny.(type) {
	case brain.PlainResult:
		if len(v.Webhooks) > 0 {
			lvl.state = v.State
			return dispatchOutcome{kind: outcomeWebhook, waitFor: v.Webhooks}
		}
		return dispatchOutcome{kind: outcomeOk, state: v.State, halt: v.Halt}
	default:
		return dispatchOutcome{kind: outcomeOk, state: v}
	}
}

func (r *runner) dispatchAgent(lvl *levelFrame, st brain.AgentStep) dispatchOutcome {
	ctx := r.stepContext(lvl, lvl.seedWebhookResponse)
	specAny, err := runRecovered(func() (any, error) { return st.Body(ctx) })
	if err != nil {
		return dispatchOutcome{kind: outcomeError, err: &UserStepError{StepTitle: st.Title(), Err: err}}
	}
	spec := specAny.(brain.AgentSpec)

	resume := lvl.seedAgentCtx
	lvl.seedAgentCtx = nil
	lvl.seedWebhookResponse = nil

	res, err := agentloop.Run(r.ctx, agentloop.Params{
		StepIndex: lvl.stepIndex, Spec: spec, Generator: r.gen, Signals: r.signals,
		Seq: r.seq, Emit: r.emit, StepCtx: ctx, Resume: resume,
	})
	if err != nil {
		return agentDispatchError(st.Title(), err)
	}

	switch res.Outcome {
	case agentloop.Completed:
		return dispatchOutcome{kind: outcomeOk, state: res.State}
	case agentloop.WebhookSuspended:
		lvl.seedAgentCtx = &res.Snapshot
		return dispatchOutcome{kind: outcomeWebhook, waitFor: res.WaitFor}
	case agentloop.Cancelled:
		return dispatchOutcome{kind: outcomeCancelled}
	case agentloop.Paused:
		lvl.seedAgentCtx = &res.Snapshot
		return dispatchOutcome{kind: outcomePaused}
	default:
		return dispatchOutcome{kind: outcomeError, err: &EngineInternal{Reason: "unknown agentloop outcome"}}
	}
}

func agentDispatchError(title string, err error) dispatchOutcome {
	var limitErr *agentloop.LimitError
	if errors.As(err, &limitErr) {
		return dispatchOutcome{kind: outcomeError, err: &LimitExceeded{Kind: limitErr.Kind, StepTitle: title, Limit: limitErr.Limit, Observed: limitErr.Observed}}
	}
	var valErr *agentloop.ValidationFailure
	if errors.As(err, &valErr) {
		return dispatchOutcome{kind: outcomeError, err: &UserStepError{StepTitle: title, Err: &ValidationError{Context: "tool " + valErr.ToolName, Err: valErr.Err}}}
	}
	return dispatchOutcome{kind: outcomeError, err: &UserStepError{StepTitle: title, Err: err}}
}

func (r *runner) dispatchNested(lvl *levelFrame, st brain.NestedBrainStep) dispatchOutcome {
	childState, err := runRecovered(func() (any, error) { return st.AdaptState(lvl.state) })
	if err != nil {
		return dispatchOutcome{kind: outcomeError, err: &UserStepError{StepTitle: st.Title(), Err: err}}
	}
	child := &levelFrame{title: st.Child.Title(), def: st.Child, state: childState, tree: buildStepTree(st.Child)}
	return r.nestedResultToOutcome(r.runLevel(child), lvl.state, st.MergeState, st.Title())
}

// nestedResultToOutcome converts a child level's levelResult into the
// parent's dispatchOutcome, merging on completion and propagating
// suspension/error with alreadyEmitted set (the child already emitted its
// own terminal event).
func (r *runner) nestedResultToOutcome(res levelResult, parentState any, merge brain.MergeState, title string) dispatchOutcome {
	switch res.kind {
	case lrCompleted:
		merged, err := runRecovered(func() (any, error) { return merge(parentState, res.state) })
		if err != nil {
			return dispatchOutcome{kind: outcomeError, err: &UserStepError{StepTitle: title, Err: err}}
		}
		return dispatchOutcome{kind: outcomeOk, state: merged}
	case lrCancelled:
		return dispatchOutcome{kind: outcomeCancelled, alreadyEmitted: true}
	case lrPaused:
		return dispatchOutcome{kind: outcomePaused, alreadyEmitted: true}
	default:
		return dispatchOutcome{kind: outcomeError, err: res.err, alreadyEmitted: true}
	}
}

func (r *runner) dispatchBatch(lvl *levelFrame, st brain.BatchAgentStep) dispatchOutcome {
	ctx := r.stepContext(lvl, nil)
	items, err := runRecovered(func() (any, error) { return st.Items(ctx) })
	if err != nil {
		return dispatchOutcome{kind: outcomeError, err: &UserStepError{StepTitle: st.Title(), Err: err}}
	}
	itemList := items.([]any)

	chunkSize := st.ChunkSize
	if chunkSize <= 0 {
		chunkSize = len(itemList)
	}
	if chunkSize == 0 {
		chunkSize = 1
	}

	start := 0
	var results []json.RawMessage
	if lvl.seedBatchCtx != nil {
		start = lvl.seedBatchCtx.ProcessedCount
		results = append(results, lvl.seedBatchCtx.Results...)
	}

	for chunkStart := start; chunkStart < len(itemList); chunkStart += chunkSize {
		chunkEnd := chunkStart + chunkSize
		if chunkEnd > len(itemList) {
			chunkEnd = len(itemList)
		}
		for idx := chunkStart; idx < chunkEnd; idx++ {
			item := itemList[idx]
			specAny, err := runRecovered(func() (any, error) { return st.Body(item, ctx) })
			if err != nil {
				return dispatchOutcome{kind: outcomeError, err: &UserStepError{StepTitle: st.Title(), Err: err}}
			}
			spec := specAny.(brain.AgentSpec)

			var resume *agentloop.State
			var response json.RawMessage
			if lvl.seedBatchCtx != nil && idx == start && lvl.seedBatchCtx.ItemAgentContext != nil {
				resume = lvl.seedBatchCtx.ItemAgentContext
				response = lvl.seedWebhookResponse
			}
			lvl.seedBatchCtx = nil
			lvl.seedWebhookResponse = nil

			itemCtx := brain.StepContext{
				State: item, Options: r.options, Resources: r.resources,
				Pages: r.pages, Env: r.env, Memory: r.memory, Response: response, BrainRunID: r.runID,
			}
			res, err := agentloop.Run(r.ctx, agentloop.Params{
				StepIndex: lvl.stepIndex, Spec: spec, Generator: r.gen, Signals: r.signals,
				Seq: r.seq, Emit: r.emit, StepCtx: itemCtx, Resume: resume,
			})
			if err != nil {
				return agentDispatchError(st.Title(), err)
			}

			switch res.Outcome {
			case agentloop.Completed:
				resJSON, merr := json.Marshal(res.State)
				if merr != nil {
					return dispatchOutcome{kind: outcomeError, err: &EngineInternal{Reason: "marshal batch item result", Err: merr}}
				}
				results = append(results, resJSON)
			case agentloop.WebhookSuspended:
				lvl.seedBatchCtx = &BatchResumeCtx{ProcessedCount: idx, Results: results, ItemAgentContext: &res.Snapshot}
				return dispatchOutcome{kind: outcomeWebhook, waitFor: res.WaitFor}
			case agentloop.Cancelled:
				return dispatchOutcome{kind: outcomeCancelled}
			case agentloop.Paused:
				lvl.seedBatchCtx = &BatchResumeCtx{ProcessedCount: idx, Results: results, ItemAgentContext: &res.Snapshot}
				return dispatchOutcome{kind: outcomePaused}
			default:
				return dispatchOutcome{kind: outcomeError, err: &EngineInternal{Reason: "unknown agentloop outcome"}}
			}
		}
		resultsCopy := make([]json.RawMessage, len(results))
		copy(resultsCopy, results)
		r.emit(&event.BatchChunkCompleteEvent{
			Base: r.seq.Base(event.KindBatchChunkComplete), StepIndex: lvl.stepIndex,
			ProcessedCount: chunkEnd, Results: resultsCopy,
		})
	}

	decoded := make([]any, 0, len(results))
	for _, raw := range results {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return dispatchOutcome{kind: outcomeError, err: &EngineInternal{Reason: "decode batch result", Err: err}}
		}
		decoded = append(decoded, v)
	}
	return dispatchOutcome{kind: outcomeOk, state: decoded}
}

func (lvl *levelFrame) setStatus(i int, s event.StepStatus) {
	if i >= 0 && i < len(lvl.tree) {
		lvl.tree[i].Status = s
	}
}

func toEventWebhooks(ws []brain.Webhook) []event.Webhook {
	out := make([]event.Webhook, len(ws))
	for i, w := range ws {
		out[i] = event.Webhook{Slug: w.Slug, Identifier: w.Identifier, Schema: w.Schema}
	}
	return out
}
