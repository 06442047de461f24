// Package signal defines the host-to-engine control protocol: typed
// signals, their strict priority order, and the Provider contract the
// engine polls at step and agent-iteration boundaries.
//
// The engine never creates signals itself; a Provider is owned and driven
// by the host rather than having the engine generate signals internally.
package signal

import (
	"encoding/json"
)

// Kind identifies a signal's type.
type Kind string

const (
	KindKill            Kind = "KILL"
	KindPause           Kind = "PAUSE"
	KindResume          Kind = "RESUME"
	KindUserMessage     Kind = "USER_MESSAGE"
	KindWebhookResponse Kind = "WEBHOOK_RESPONSE"
)

// priority ranks kinds from highest (0) to lowest. KILL > PAUSE >
// WEBHOOK_RESPONSE > USER_MESSAGE > RESUME
var priority = map[Kind]int{
	KindKill:            0,
	KindPause:           1,
	KindWebhookResponse: 2,
	KindUserMessage:     3,
	KindResume:          4,
}

// Priority returns k's priority rank; lower is higher priority. Unknown
// kinds sort last.
func Priority(k Kind) int {
	if p, ok := priority[k]; ok {
		return p
	}
	return len(priority)
}

// Signal is a single host-originated control message.
type Signal struct {
	Kind Kind
	// Content is the USER_MESSAGE text payload.
	Content string
	// Response is the WEBHOOK_RESPONSE payload.
	Response json.RawMessage
	// Identifier correlates a WEBHOOK_RESPONSE with the webhook registration
	// it answers.
	Identifier string
}

// Set is a filter over signal kinds for Provider.Take.
type Set map[Kind]struct{}

// Of builds a filter Set from the given kinds.
func Of(kinds ...Kind) Set {
	s := make(Set, len(kinds))
	for _, k := range kinds {
		s[k] = struct{}{}
	}
	return s
}

func (s Set) has(k Kind) bool {
	_, ok := s[k]
	return ok
}

// Provider is the host-owned priority queue abstraction delivering typed
// control signals to the engine. The engine never constructs a Provider;
// it is injected via RunParams/ResumeParams.
type Provider interface {
	// Take returns and removes the highest-priority queued signal matching
	// filter. When nonBlocking is true and no signal matches, it returns
	// (Signal{}, false) immediately. When nonBlocking is false, an
	// implementation may block until a matching signal is available; Take
	// takes no context, so such a wait cannot be cancelled through it.
	Take(filter Set, nonBlocking bool) (Signal, bool)
	// Peek returns the highest-priority queued signal without removing it,
	// or (Signal{}, false) if the queue is empty.
	Peek() (Signal, bool)
	// Queue enqueues a signal for later delivery. Used by tests and hosting
	// code driving the engine.
	Queue(s Signal)
}
