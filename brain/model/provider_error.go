package model

import (
	"errors"
	"fmt"
)

// ErrStreamingUnsupported is returned by StreamText implementations that do
// not support incremental streaming.
var ErrStreamingUnsupported = errors.New("model: streaming not supported by this provider")

// ErrorKind classifies provider failures into a small set of stable
// categories suitable for retry and UX decisions.
type ErrorKind string

const (
	ErrorKindAuth           ErrorKind = "auth"
	ErrorKindRateLimited    ErrorKind = "rate_limited"
	ErrorKindInvalidRequest ErrorKind = "invalid_request"
	ErrorKindOverloaded     ErrorKind = "overloaded"
	ErrorKindTimeout        ErrorKind = "timeout"
	ErrorKindUnknown        ErrorKind = "unknown"
)

// ProviderError wraps a failure surfaced by an ObjectGenerator
// implementation with enough structure for hosts to decide retry policy
// and to populate SerializedError.{Provider,Operation,ErrorKind,Code,
// HTTPStatus,Retryable} on the engine's ERROR event.
type ProviderError struct {
	Provider   string
	Operation  string
	Kind       ErrorKind
	Code       string
	HTTPStatus int
	Retryable  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("model: %s %s failed: %s (%s)", e.Provider, e.Operation, e.Cause, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// AsProviderError extracts a *ProviderError from err, if any.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
