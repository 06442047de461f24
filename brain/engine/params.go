// Package engine implements the main step scheduler and resume engine: the
// single-process, single-goroutine executor that walks a brain.Definition,
// dispatches each step, and emits the resulting event.Event sequence onto a
// stream.Stream. It follows the common shape of splitting concerns across
// engine.go/dispatch.go/resume.go around a per-run loop struct holding
// shared dependencies, without any durable-workflow replay machinery: a
// single run is not horizontally distributed, so there is no
// workflow/activity split to maintain.
package engine

import (
	"context"
	"encoding/json"

	"github.com/brainrun/brains/brain"
	"github.com/brainrun/brains/brain/adapter"
	"github.com/brainrun/brains/brain/event"
	"github.com/brainrun/brains/brain/model"
	"github.com/brainrun/brains/brain/runlog"
	"github.com/brainrun/brains/brain/signal"
	"github.com/brainrun/brains/brain/stream"
	"github.com/brainrun/brains/brain/telemetry"
)

// Engine is the host-facing surface.
type Engine interface {
	Run(ctx context.Context, def *brain.Definition, params RunParams) (*stream.Stream, error)
	Resume(ctx context.Context, def *brain.Definition, params ResumeParams) (*stream.Stream, error)
}

// RunParams configures a fresh run: client, options, resources, pages,
// env, signal provider, initial state, and brain run ID are all optional
// except Client.
type RunParams struct {
	Client         model.ObjectGenerator
	Options        any
	Resources      brain.Resources
	Pages          any
	Env            any
	Memory         any
	SignalProvider signal.Provider
	InitialState   any
	BrainRunID     string

	// Adapters fan events out after every emission.
	Adapters []adapter.Adapter
	// Log is ambient structured logging; defaults to telemetry.NewNoopLogger().
	Log telemetry.Logger
	// RunLog, if set, durably appends every emitted event for later Resume.
	RunLog runlog.Store
	// OnSuspend, if set, is invoked exactly once with the resume snapshot
	// when the run ends in a Paused or webhook-suspended state. A Go
	// channel-only Stream has no side channel for this, so this callback
	// is the Go-idiomatic substitute.
	OnSuspend func(rc *ResumeContext)
}

// ResumeParams configures resuming a previously suspended run: the same
// fields as RunParams, minus Options and InitialState, plus EventLog and
// ResumeContext.
type ResumeParams struct {
	Client         model.ObjectGenerator
	Resources      brain.Resources
	Pages          any
	Env            any
	Memory         any
	SignalProvider signal.Provider
	BrainRunID     string

	// EventLog is the run's full, ordered stored log (e.g. from
	// runlog.Store.Load), used to validate and replay state up to the
	// suspension point.
	EventLog []event.Event
	// ResumeContext is the snapshot captured when the run last suspended,
	// as carried on the PAUSED event's ResumeContext field or delivered via
	// RunParams.OnSuspend.
	ResumeContext *ResumeContext

	Adapters  []adapter.Adapter
	Log       telemetry.Logger
	RunLog    runlog.Store
	OnSuspend func(rc *ResumeContext)
}

// optionsRaw round-trips an options value to JSON for jsonschema.Validate
// and for stamping every event's Base.Options field.
func optionsRaw(options any) (json.RawMessage, error) {
	if options == nil {
		return nil, nil
	}
	return json.Marshal(options)
}
