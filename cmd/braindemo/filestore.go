package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/brainrun/brains/brain/event"
	"github.com/brainrun/brains/brain/runlog"
)

func runlogKind(s string) event.Kind { return event.Kind(s) }

// wireRecord is runlog.Record's on-disk JSON line shape.
type wireRecord struct {
	ID        string          `json:"id"`
	RunID     string          `json:"runId"`
	Seq       int64           `json:"seq"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// fileStore implements runlog.Store by appending one JSON line per event
// to <dir>/<runID>.jsonl, so a `braindemo run` and a later `braindemo
// resume` invocation — separate processes — share a durable log the way
// runlog/inmem's in-process Store cannot.
type fileStore struct {
	mu  sync.Mutex
	dir string
}

func newFileStore(dir string) (*fileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("braindemo: create runlog dir: %w", err)
	}
	return &fileStore{dir: dir}, nil
}

func (s *fileStore) path(runID string) string {
	return filepath.Join(s.dir, runID+".jsonl")
}

func (s *fileStore) Append(_ context.Context, r *runlog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path(r.RunID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("braindemo: open runlog: %w", err)
	}
	defer f.Close()

	id := strconv.FormatInt(r.Seq, 10)
	line, err := json.Marshal(wireRecord{
		ID: id, RunID: r.RunID, Seq: r.Seq, Kind: string(r.Kind), Payload: r.Payload, Timestamp: r.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("braindemo: marshal runlog record: %w", err)
	}
	r.ID = id
	_, err = f.Write(append(line, '\n'))
	return err
}

func (s *fileStore) Load(_ context.Context, runID string) ([]*runlog.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll(runID)
}

func (s *fileStore) List(_ context.Context, runID string, cursor string, limit int) (runlog.Page, error) {
	if limit <= 0 {
		return runlog.Page{}, fmt.Errorf("braindemo: limit must be > 0")
	}
	s.mu.Lock()
	records, err := s.readAll(runID)
	s.mu.Unlock()
	if err != nil {
		return runlog.Page{}, err
	}

	start := 0
	if cursor != "" {
		after, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return runlog.Page{}, fmt.Errorf("braindemo: invalid cursor %q: %w", cursor, err)
		}
		for i, r := range records {
			if r.Seq > after {
				start = i
				break
			}
			start = i + 1
		}
	}
	end := start + limit
	if end > len(records) {
		end = len(records)
	}
	if start >= len(records) {
		return runlog.Page{}, nil
	}
	page := records[start:end]
	var next string
	if end < len(records) {
		next = page[len(page)-1].ID
	}
	return runlog.Page{Records: page, NextCursor: next}, nil
}

func (s *fileStore) readAll(runID string) ([]*runlog.Record, error) {
	f, err := os.Open(s.path(runID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("braindemo: open runlog: %w", err)
	}
	defer f.Close()

	var records []*runlog.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		var w wireRecord
		if err := json.Unmarshal(scanner.Bytes(), &w); err != nil {
			return nil, fmt.Errorf("braindemo: decode runlog line: %w", err)
		}
		records = append(records, &runlog.Record{
			ID: w.ID, RunID: w.RunID, Seq: w.Seq, Kind: runlogKind(w.Kind), Payload: w.Payload, Timestamp: w.Timestamp,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("braindemo: scan runlog: %w", err)
	}
	return records, nil
}
