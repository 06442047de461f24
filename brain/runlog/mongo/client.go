// Package mongo implements runlog.Store on top of MongoDB, built on
// mongo-driver/v2, with a full-log Load needed by the resume engine in
// addition to a cursor-paged List.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/brainrun/brains/brain/event"
	"github.com/brainrun/brains/brain/runlog"
)

const (
	defaultCollection = "brain_events"
	defaultTimeout    = 5 * time.Second
)

// Options configures a Mongo-backed runlog.Store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store implements runlog.Store against a brain_events collection indexed
// by (brainRunId, seq).
type Store struct {
	coll    *mongodriver.Collection
	client  *mongodriver.Client
	timeout time.Duration
}

type eventDocument struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	RunID     string        `bson:"run_id"`
	Seq       int64         `bson:"seq"`
	Kind      string        `bson:"kind"`
	Payload   []byte        `bson:"payload"`
	Timestamp time.Time     `bson:"timestamp"`
}

// NewStore builds a Mongo-backed run log store and ensures its index exists.
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("runlog/mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("runlog/mongo: database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	coll := opts.Client.Database(opts.Database).Collection(collection)
	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	index := mongodriver.IndexModel{
		Keys: bson.D{{Key: "run_id", Value: 1}, {Key: "seq", Value: 1}},
	}
	if _, err := coll.Indexes().CreateOne(ictx, index); err != nil {
		return nil, fmt.Errorf("runlog/mongo: ensure index: %w", err)
	}

	return &Store{coll: coll, client: opts.Client, timeout: timeout}, nil
}

// Ping reports whether the underlying Mongo deployment is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Append implements runlog.Store.
func (s *Store) Append(ctx context.Context, r *runlog.Record) error {
	if r == nil {
		return errors.New("runlog/mongo: record is required")
	}
	if r.RunID == "" {
		return errors.New("runlog/mongo: run id is required")
	}
	if r.Kind == "" {
		return errors.New("runlog/mongo: event kind is required")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	doc := eventDocument{
		RunID:     r.RunID,
		Seq:       r.Seq,
		Kind:      string(r.Kind),
		Payload:   append([]byte(nil), r.Payload...),
		Timestamp: r.Timestamp.UTC(),
	}
	res, err := s.coll.InsertOne(ctx, doc)
	if err != nil {
		return err
	}
	oid, ok := res.InsertedID.(bson.ObjectID)
	if !ok {
		return fmt.Errorf("runlog/mongo: unexpected inserted id type %T", res.InsertedID)
	}
	r.ID = oid.Hex()
	return nil
}

// Load implements runlog.Store, returning the complete log for runID
// ordered by seq, for resume replay.
func (s *Store) Load(ctx context.Context, runID string) ([]*runlog.Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cur, err := s.coll.Find(ctx, bson.D{{Key: "run_id", Value: runID}},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var records []*runlog.Record
	for cur.Next(ctx) {
		var doc eventDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		records = append(records, docToRecord(doc))
	}
	return records, cur.Err()
}

// List implements runlog.Store's cursor-paged introspection surface.
func (s *Store) List(ctx context.Context, runID string, cursor string, limit int) (runlog.Page, error) {
	if runID == "" {
		return runlog.Page{}, errors.New("runlog/mongo: run id is required")
	}
	if limit <= 0 {
		return runlog.Page{}, errors.New("runlog/mongo: limit must be > 0")
	}

	filter := bson.D{{Key: "run_id", Value: runID}}
	if cursor != "" {
		oid, err := bson.ObjectIDFromHex(cursor)
		if err != nil {
			return runlog.Page{}, fmt.Errorf("runlog/mongo: invalid cursor %q: %w", cursor, err)
		}
		filter = append(filter, bson.E{Key: "_id", Value: bson.D{{Key: "$gt", Value: oid}}})
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cur, err := s.coll.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetLimit(int64(limit+1)))
	if err != nil {
		return runlog.Page{}, err
	}
	defer cur.Close(ctx)

	var records []*runlog.Record
	for cur.Next(ctx) {
		var doc eventDocument
		if err := cur.Decode(&doc); err != nil {
			return runlog.Page{}, err
		}
		records = append(records, docToRecord(doc))
	}
	if err := cur.Err(); err != nil {
		return runlog.Page{}, err
	}

	var next string
	if len(records) > limit {
		next = records[limit-1].ID
		records = records[:limit]
	}
	return runlog.Page{Records: records, NextCursor: next}, nil
}

func docToRecord(doc eventDocument) *runlog.Record {
	return &runlog.Record{
		ID:        doc.ID.Hex(),
		RunID:     doc.RunID,
		Seq:       doc.Seq,
		Kind:      event.Kind(doc.Kind),
		Payload:   append([]byte(nil), doc.Payload...),
		Timestamp: doc.Timestamp,
	}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
