// Package adapter implements the engine's event fan-out, with swallow-and-log
// failure semantics rather than fail-fast: an adapter
// failure must never abort a run.
package adapter

import (
	"context"
	"sync"

	"github.com/brainrun/brains/brain/event"
	"github.com/brainrun/brains/brain/telemetry"
)

// Adapter receives every event emitted by a run, in order, exactly once.
type Adapter interface {
	Dispatch(ctx context.Context, e event.Event) error
}

// Func adapts a plain function to the Adapter interface.
type Func func(ctx context.Context, e event.Event) error

func (f Func) Dispatch(ctx context.Context, e event.Event) error { return f(ctx, e) }

// FanOut dispatches each event to every registered Adapter in registration
// order. An adapter's error is logged and swallowed so that one failing
// adapter never prevents delivery to the others or aborts the run.
type FanOut struct {
	mu       sync.RWMutex
	adapters []Adapter
	log      telemetry.Logger
}

// NewFanOut constructs an empty fan-out. A nil logger defaults to
// telemetry.NewNoopLogger().
func NewFanOut(log telemetry.Logger) *FanOut {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &FanOut{log: log}
}

// Register adds an adapter, delivered after every previously registered one.
func (f *FanOut) Register(a Adapter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adapters = append(f.adapters, a)
}

// Dispatch implements Adapter by fanning out to every registered adapter.
func (f *FanOut) Dispatch(ctx context.Context, e event.Event) error {
	f.mu.RLock()
	adapters := make([]Adapter, len(f.adapters))
	copy(adapters, f.adapters)
	f.mu.RUnlock()

	for _, a := range adapters {
		if err := a.Dispatch(ctx, e); err != nil {
			f.log.Error(ctx, "adapter dispatch failed", "kind", e.Kind(), "brainRunId", e.BrainRunID(), "error", err)
		}
	}
	return nil
}
