package engine

import (
	"fmt"

	"github.com/brainrun/brains/brain/signal"
)

// UserStepError wraps a failure raised from a user-authored step body or
// tool Execute. It terminates the run with an ERROR event.
type UserStepError struct {
	StepTitle string
	Err       error
}

func (e *UserStepError) Error() string {
	return fmt.Sprintf("engine: step %q: %v", e.StepTitle, e.Err)
}
func (e *UserStepError) Unwrap() error { return e.Err }

// Public returns a user-safe summary suitable for a host's error UI.
func (e *UserStepError) Public() string {
	return fmt.Sprintf("step %q failed. Please retry.", e.StepTitle)
}

// LimitExceeded marks an agent step that hit its token or iteration
// budget. Kind is "token" or "iteration".
type LimitExceeded struct {
	Kind      string
	StepTitle string
	Limit     int
	Observed  int
}

func (e *LimitExceeded) Error() string {
	return fmt.Sprintf("engine: step %q: %s limit exceeded (%d >= %d)", e.StepTitle, e.Kind, e.Observed, e.Limit)
}

func (e *LimitExceeded) Public() string {
	return fmt.Sprintf("step %q exceeded its %s limit.", e.StepTitle, e.Kind)
}

// ValidationError marks an options-schema or tool-input-schema failure.
// It is always surfaced to the event stream as a
// UserStepError at the relevant step, never as its own ERROR class.
type ValidationError struct {
	Context string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("engine: validation failed for %s: %v", e.Context, e.Err)
}
func (e *ValidationError) Unwrap() error { return e.Err }

// SignalInvalid marks a signal requested in an illegal state, e.g. RESUME
// when the run is not paused. The core engine never
// constructs this itself — it trusts every signal it receives — but hosts
// rejecting a signal at their boundary can use it for a consistent shape.
type SignalInvalid struct {
	Kind   signal.Kind
	Reason string
}

func (e *SignalInvalid) Error() string {
	return fmt.Sprintf("engine: signal %s invalid: %s", e.Kind, e.Reason)
}

// EngineInternal marks a fatal, non-user-attributable failure: reducer
// disagreement on resume, an invalid patch, or a corrupt event log.
// Always terminates the run with name="EngineInternal".
type EngineInternal struct {
	Reason string
	Err    error
}

func (e *EngineInternal) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine: internal error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("engine: internal error: %s", e.Reason)
}
func (e *EngineInternal) Unwrap() error { return e.Err }

func (e *EngineInternal) Public() string {
	return "an internal error occurred. Please contact support."
}
