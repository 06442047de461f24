// Package stream provides the lazy, pull-based event sequence returned by
// Engine.Run and Engine.Resume. The
// engine is the producer and pushes into a Stream via Emit/Close from its
// own goroutine; hosts are consumers and pull with Next. This gives a
// pull interface a single-threaded consumer can range over without needing
// to implement a Sink of their own.
package stream

import (
	"context"

	"github.com/brainrun/brains/brain/event"
)

// Stream is a single-producer, single-consumer sequence of events.
type Stream struct {
	ch   chan event.Event
	done chan struct{}
	err  error
}

// New constructs an empty Stream with the given buffer size. Buffer 0 is a
// valid, fully synchronous rendezvous between producer and consumer.
func New(buffer int) *Stream {
	return &Stream{ch: make(chan event.Event, buffer), done: make(chan struct{})}
}

// Emit pushes e to the stream. It blocks if the buffer is full and the
// consumer is not pulling. Emit must not be called after Close.
func (s *Stream) Emit(e event.Event) {
	s.ch <- e
}

// Close signals that no further events will be emitted, optionally carrying
// a terminal error that Next (and so Drain) returns once the stream drains.
func (s *Stream) Close(err error) {
	s.err = err
	close(s.ch)
}

// Next blocks until an event is available, the stream closes, or ctx is
// done. ok is false once the stream is exhausted.
func (s *Stream) Next(ctx context.Context) (event.Event, bool, error) {
	select {
	case e, ok := <-s.ch:
		if !ok {
			return nil, false, s.err
		}
		return e, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Drain collects every remaining event until the stream closes or ctx is
// done. Intended for tests and small fixture runs; hosts driving a live
// engine should prefer Next so they can react to events as they arrive.
func (s *Stream) Drain(ctx context.Context) ([]event.Event, error) {
	var events []event.Event
	for {
		e, ok, err := s.Next(ctx)
		if err != nil {
			return events, err
		}
		if !ok {
			return events, nil
		}
		events = append(events, e)
	}
}
