// Package runlog provides a durable, append-only event log for brain runs.
// The resume engine (brain/engine) loads a run's full log via Load to
// replay it through the state reducer; hosts building introspection UIs
// can instead page through it with List.
package runlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/brainrun/brains/brain/event"
)

// Record is a single immutable stored event. Store implementations assign ID
// when persisting; IDs are opaque, monotonically ordered within a run, and
// suitable for cursor-based pagination.
type Record struct {
	ID        string
	RunID     string
	Seq       int64
	Kind      event.Kind
	Payload   json.RawMessage
	Timestamp time.Time
}

// Page is a forward page of run records, oldest first.
type Page struct {
	Records    []*Record
	NextCursor string
}

// Store is an append-only event log for run introspection and resume.
//
// Implementations must provide stable ordering within a run; cursor values
// are store-owned and opaque to callers.
type Store interface {
	// Append stores e in the run log, assigning its ID. The engine logs an
	// Append failure and continues the run; the stored log then lacks that
	// event.
	Append(ctx context.Context, e *Record) error
	// Load returns the complete, ordered record log for runID, for resume
	// replay.
	Load(ctx context.Context, runID string) ([]*Record, error)
	// List returns the next forward page of records for runID. Cursor is an
	// opaque value returned by a previous call to List, or empty to start
	// from the beginning. Limit must be greater than zero.
	List(ctx context.Context, runID string, cursor string, limit int) (Page, error)
}
