package event

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// Sequencer assigns monotonically increasing Seq numbers and shared
// brainRunId/options to every Base an engine or agent loop constructs for a
// single run, keeping the "events in the order the scheduler decides"
// guarantee centralized in one place instead of threaded
// through every call site.
type Sequencer struct {
	runID   string
	options json.RawMessage
	seq     atomic.Int64
}

// NewSequencer constructs a Sequencer for one run. seq starts at -1 and is
// pre-incremented by Base, so the first event emitted carries Seq 0.
func NewSequencer(runID string, options json.RawMessage) *Sequencer {
	s := &Sequencer{runID: runID, options: options}
	s.seq.Store(-1)
	return s
}

// Base builds the next Base for kind, stamped with the current time.
func (s *Sequencer) Base(kind Kind) Base {
	return Base{
		K:          kind,
		RunID:      s.runID,
		Options:    s.options,
		SeqNum:     s.seq.Add(1),
		OccurredAt: time.Now().UTC(),
	}
}

// RunID returns the run identifier this sequencer stamps events with.
func (s *Sequencer) RunID() string { return s.runID }
