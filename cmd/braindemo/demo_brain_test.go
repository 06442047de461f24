package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brainrun/brains/brain/engine"
	"github.com/brainrun/brains/brain/event"
	"github.com/brainrun/brains/brain/signalstore/memory"
)

func TestDemoBrain_RunsEndToEndWithStubGenerator(t *testing.T) {
	def := newDemoBrain()

	strm, err := engine.NewEngine().Run(context.Background(), def, engine.RunParams{
		Client:         stubGenerator{},
		Options:        map[string]any{"subject": "printer is on fire"},
		SignalProvider: memory.New(),
		BrainRunID:     "test-run",
	})
	require.NoError(t, err)

	events, err := strm.Drain(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	require.Equal(t, event.KindComplete, last.Kind())

	complete, ok := last.(*event.CompleteEvent)
	require.True(t, ok)
	state, ok := complete.FinalState.(map[string]any)
	require.True(t, ok)
	require.Contains(t, state, "reply")
}
