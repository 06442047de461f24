// Package inmem provides an in-memory runlog.Store. Intended for tests and
// local development; it is not durable.
package inmem

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/brainrun/brains/brain/runlog"
)

// Store implements runlog.Store in memory.
type Store struct {
	mu      sync.Mutex
	nextSeq map[string]int64
	records map[string][]*runlog.Record
}

// New returns an empty in-memory run log store.
func New() *Store {
	return &Store{
		nextSeq: make(map[string]int64),
		records: make(map[string][]*runlog.Record),
	}
}

// Append implements runlog.Store.
func (s *Store) Append(_ context.Context, r *runlog.Record) error {
	if r == nil {
		return fmt.Errorf("runlog: record is required")
	}
	if r.RunID == "" {
		return fmt.Errorf("runlog: run id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.nextSeq[r.RunID] + 1
	s.nextSeq[r.RunID] = seq

	r.ID = strconv.FormatInt(seq, 10)
	cp := *r
	s.records[r.RunID] = append(s.records[r.RunID], &cp)
	return nil
}

// Load implements runlog.Store.
func (s *Store) Load(_ context.Context, runID string) ([]*runlog.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*runlog.Record(nil), s.records[runID]...), nil
}

// List implements runlog.Store.
func (s *Store) List(_ context.Context, runID string, cursor string, limit int) (runlog.Page, error) {
	if runID == "" {
		return runlog.Page{}, fmt.Errorf("runlog: run id is required")
	}
	if limit <= 0 {
		return runlog.Page{}, fmt.Errorf("runlog: limit must be > 0")
	}

	var after int64
	if cursor != "" {
		id, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return runlog.Page{}, fmt.Errorf("runlog: invalid cursor %q: %w", cursor, err)
		}
		after = id
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.records[runID]
	if len(all) == 0 {
		return runlog.Page{}, nil
	}

	start := 0
	if after > 0 {
		start = int(after)
		if start >= len(all) {
			return runlog.Page{}, nil
		}
	}

	end := start + limit
	if end > len(all) {
		end = len(all)
	}

	records := append([]*runlog.Record(nil), all[start:end]...)
	var next string
	if end < len(all) {
		next = records[len(records)-1].ID
	}
	return runlog.Page{Records: records, NextCursor: next}, nil
}
