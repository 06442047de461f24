package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/brainrun/brains/brain"
	"github.com/brainrun/brains/brain/adapter"
	"github.com/brainrun/brains/brain/event"
	"github.com/brainrun/brains/brain/jsonschema"
	"github.com/brainrun/brains/brain/model"
	"github.com/brainrun/brains/brain/runlog"
	"github.com/brainrun/brains/brain/signal"
	"github.com/brainrun/brains/brain/stream"
	"github.com/brainrun/brains/brain/telemetry"
)

type defaultEngine struct{}

// NewEngine returns the single-process Engine implementation.
func NewEngine() Engine { return defaultEngine{} }

// runnerConfig collects the ambient dependencies shared by Run and Resume,
// avoiding two near-identical long parameter lists.
type runnerConfig struct {
	gen        model.ObjectGenerator
	options    any
	optionsRaw json.RawMessage
	resources  brain.Resources
	pages      any
	env        any
	memory     any
	signals    signal.Provider
	runID      string
	adapters   []adapter.Adapter
	log        telemetry.Logger
	store      runlog.Store
	onSuspend  func(*ResumeContext)
}

// runner drives exactly one run. It owns ctx for the lifetime of the single
// goroutine Run/Resume spawn to execute the scheduler loop: a run is a
// single logical executor, so storing ctx here (rather than
// threading it through every call) does not introduce concurrent access.
type runner struct {
	ctx       context.Context
	def       *brain.Definition
	strm      *stream.Stream
	seq       *event.Sequencer
	signals   signal.Provider
	fanout    *adapter.FanOut
	gen       model.ObjectGenerator
	resources brain.Resources
	pages     any
	env       any
	memory    any
	options   any
	runID     string
	log       telemetry.Logger
	store     runlog.Store
	onSuspend func(*ResumeContext)

	// stack is the live execution stack, outer to inner, used to build a
	// ResumeContext snapshot at the moment a KILL/PAUSE/webhook-wait is
	// observed.
	stack []*levelFrame
}

func newRunner(ctx context.Context, def *brain.Definition, cfg runnerConfig) *runner {
	log := cfg.log
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	fanout := adapter.NewFanOut(log)
	for _, a := range cfg.adapters {
		fanout.Register(a)
	}
	signals := cfg.signals
	if signals == nil {
		signals = noopSignals{}
	}
	return &runner{
		ctx:       ctx,
		def:       def,
		strm:      stream.New(64),
		seq:       event.NewSequencer(cfg.runID, cfg.optionsRaw),
		signals:   signals,
		fanout:    fanout,
		gen:       cfg.gen,
		resources: cfg.resources,
		pages:     cfg.pages,
		env:       cfg.env,
		memory:    cfg.memory,
		options:   cfg.options,
		runID:     cfg.runID,
		log:       log,
		store:     cfg.store,
		onSuspend: cfg.onSuspend,
	}
}

// noopSignals is used when a host runs a brain without any interruption
// channel: every check finds nothing queued, so the run always proceeds to
// completion or a user-step error.
type noopSignals struct{}

func (noopSignals) Take(signal.Set, bool) (signal.Signal, bool) { return signal.Signal{}, false }
func (noopSignals) Peek() (signal.Signal, bool)                 { return signal.Signal{}, false }
func (noopSignals) Queue(signal.Signal)                         {}

func (r *runner) emit(e event.Event) {
	r.strm.Emit(e)
	if r.store != nil {
		payload, err := e.MarshalCanonicalJSON()
		if err != nil {
			r.log.Error(r.ctx, "runlog: marshal event failed", "kind", e.Kind(), "error", err)
		} else if err := r.store.Append(r.ctx, &runlog.Record{
			RunID: r.runID, Seq: e.Seq(), Kind: e.Kind(), Payload: payload, Timestamp: e.Timestamp(),
		}); err != nil {
			r.log.Error(r.ctx, "runlog: append failed", "kind", e.Kind(), "error", err)
		}
	}
	_ = r.fanout.Dispatch(r.ctx, e)
}

func (r *runner) emitStepStatus(lvl *levelFrame) {
	steps := make([]event.SerializedStep, len(lvl.tree))
	copy(steps, lvl.tree)
	r.emit(&event.StepStatusEvent{Base: r.seq.Base(event.KindStepStatus), Steps: steps})
}

func (r *runner) stepContext(lvl *levelFrame, response json.RawMessage) brain.StepContext {
	return brain.StepContext{
		State: lvl.state, Options: r.options, Resources: r.resources,
		Pages: r.pages, Env: r.env, Memory: r.memory, Response: response, BrainRunID: r.runID,
	}
}

// Run implements Engine.Run: validates options, emits START, and hands
// control to the scheduler at the top level.
func (defaultEngine) Run(ctx context.Context, def *brain.Definition, params RunParams) (*stream.Stream, error) {
	runID := params.BrainRunID
	if runID == "" {
		runID = uuid.NewString()
	}
	optsRaw, err := optionsRaw(params.Options)
	if err != nil {
		return nil, &EngineInternal{Reason: "marshal options", Err: err}
	}

	r := newRunner(ctx, def, runnerConfig{
		gen: params.Client, options: params.Options, optionsRaw: optsRaw,
		resources: params.Resources, pages: params.Pages, env: params.Env, memory: params.Memory,
		signals: params.SignalProvider, runID: runID, adapters: params.Adapters,
		log: params.Log, store: params.RunLog, onSuspend: params.OnSuspend,
	})
	strm := r.strm

	go func() {
		if schema := def.OptionsSchema(); len(schema) > 0 {
			if err := jsonschema.Validate(schema, optsRaw); err != nil {
				r.emit(&event.ErrorEvent{
					Base:  r.seq.Base(event.KindError),
					Error: serializeError(&UserStepError{StepTitle: "<options>", Err: &ValidationError{Context: "options", Err: err}}),
				})
				strm.Close(err)
				return
			}
		}

		r.emit(&event.StartEvent{Base: r.seq.Base(event.KindStart), InitialState: params.InitialState})
		root := &levelFrame{title: def.Title(), def: def, state: params.InitialState, tree: buildStepTree(def)}
		result := r.runLevel(root)
		finishRun(r, result)
	}()

	return strm, nil
}

// Resume implements Engine.Resume: validate the stored log, cross-check it
// against the supplied ResumeContext, reconstruct the live execution
// stack, and hand control back to the scheduler at the resumed level.
func (defaultEngine) Resume(ctx context.Context, def *brain.Definition, params ResumeParams) (*stream.Stream, error) {
	if err := validateResumeLog(params.EventLog); err != nil {
		return nil, err
	}
	if params.ResumeContext == nil {
		return nil, &EngineInternal{Reason: "resume requires a ResumeContext"}
	}
	if err := crossCheckResumeContext(params.EventLog, params.ResumeContext); err != nil {
		return nil, err
	}

	root, err := buildResumeFrame(params.ResumeContext, def)
	if err != nil {
		return nil, err
	}

	optsRaw, _, err := extractOptionsFromLog(params.EventLog)
	if err != nil {
		return nil, err
	}

	r := newRunner(ctx, def, runnerConfig{
		gen: params.Client, optionsRaw: optsRaw,
		resources: params.Resources, pages: params.Pages, env: params.Env, memory: params.Memory,
		signals: params.SignalProvider, runID: params.BrainRunID, adapters: params.Adapters,
		log: params.Log, store: params.RunLog, onSuspend: params.OnSuspend,
	})
	strm := r.strm

	go func() {
		for {
			if _, ok := r.signals.Take(signal.Of(signal.KindResume), true); !ok {
				break
			}
		}
		if sig, ok := r.signals.Take(signal.Of(signal.KindWebhookResponse), true); ok {
			deepestResumeFrame(root).seedWebhookResponse = sig.Response
		}
		r.emit(&event.ResumedEvent{Base: r.seq.Base(event.KindResumed)})

		result := r.runLevel(root)
		finishRun(r, result)
	}()

	return strm, nil
}

// finishRun emits the run's single terminal lifecycle event for the
// outcomes that have not already emitted their own (Cancelled/Paused/
// Errored are emitted from inside runLevel, including when propagated up
// from a nested level), and closes the stream.
func finishRun(r *runner, result levelResult) {
	if result.kind == lrCompleted {
		r.emit(&event.CompleteEvent{Base: r.seq.Base(event.KindComplete), FinalState: result.state})
	}
	strm := r.strm
	if result.kind == lrErrored {
		strm.Close(result.err)
		return
	}
	strm.Close(nil)
}

func serializeError(err error) event.SerializedError {
	se := event.SerializedError{Name: "Error", Message: err.Error()}
	switch {
	case errors.As(err, new(*UserStepError)):
		se.Name = "UserStepError"
	case errors.As(err, new(*LimitExceeded)):
		se.Name = "LimitExceeded"
	case errors.As(err, new(*ValidationError)):
		se.Name = "ValidationError"
	case errors.As(err, new(*EngineInternal)):
		se.Name = "EngineInternal"
	}
	if pe, ok := model.AsProviderError(err); ok {
		se.Provider = pe.Provider
		se.Operation = pe.Operation
		se.ErrorKind = string(pe.Kind)
		se.Code = pe.Code
		se.HTTPStatus = pe.HTTPStatus
		se.Retryable = pe.Retryable
	}
	return se
}

func stepType(s brain.Step) string {
	switch s.(type) {
	case brain.PlainStep:
		return string(brain.NodePlain)
	case brain.AgentStep:
		return string(brain.NodeAgent)
	case brain.NestedBrainStep:
		return string(brain.NodeNested)
	case brain.BatchAgentStep:
		return string(brain.NodeBatch)
	default:
		return "unknown"
	}
}

func buildStepTree(def *brain.Definition) []event.SerializedStep {
	steps := def.Steps()
	tree := make([]event.SerializedStep, len(steps))
	for i, s := range steps {
		tree[i] = event.SerializedStep{Title: s.Title(), Type: stepType(s), Status: event.StepPending}
	}
	return tree
}

func buildStepTreeResumed(def *brain.Definition, stepIndex int) []event.SerializedStep {
	tree := buildStepTree(def)
	for i := range tree {
		switch {
		case i < stepIndex:
			tree[i].Status = event.StepComplete
		case i == stepIndex:
			tree[i].Status = event.StepRunning
		}
	}
	return tree
}

// runRecovered calls fn, converting a panic into an error so a single
// misbehaving user step body cannot take down the run's goroutine.
func runRecovered(fn func() (any, error)) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}
