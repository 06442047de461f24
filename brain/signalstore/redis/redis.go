// Package redis implements signal.Provider on top of Redis, built on
// github.com/redis/go-redis/v9. Signals are stored in a per-run sorted set
// keyed by brainRunId, scored by priority (KILL > PAUSE > WEBHOOK_RESPONSE
// > USER_MESSAGE > RESUME) so ZPOPMIN always returns the highest-priority
// queued signal.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/brainrun/brains/brain/signal"
)

// wireSignal is the JSON form stored as a sorted-set member.
type wireSignal struct {
	Kind       signal.Kind     `json:"kind"`
	Content    string          `json:"content,omitempty"`
	Response   json.RawMessage `json:"response,omitempty"`
	Identifier string          `json:"identifier,omitempty"`
}

// Provider implements signal.Provider against a Redis sorted set. One
// Provider instance serves exactly one brain run.
type Provider struct {
	rdb   *redis.Client
	key   string
	runID string
}

// New constructs a Provider for runID, storing signals under a
// run-scoped Redis key.
func New(rdb *redis.Client, runID string) *Provider {
	return &Provider{rdb: rdb, key: fmt.Sprintf("brain:signals:%s", runID), runID: runID}
}

// Queue implements signal.Provider.Queue via ZADD, scored by priority so the
// member with the lowest score (highest priority) pops first. Each member is
// prefixed with a random UUID so equal-priority signals remain individually
// addressable members of the set; equal scores pop in the members' lexical
// order, not in queue order.
func (p *Provider) Queue(s signal.Signal) {
	ctx := context.Background()
	payload, _ := json.Marshal(wireSignal{Kind: s.Kind, Content: s.Content, Response: s.Response, Identifier: s.Identifier})
	score := float64(signal.Priority(s.Kind))
	member := fmt.Sprintf("%s:%s", uuid.NewString(), payload)
	p.rdb.ZAdd(ctx, p.key, redis.Z{Score: score, Member: member})
}

// Take implements signal.Provider.Take. nonBlocking=false blocks using
// BZPopMin until a matching signal arrives; the filter is applied
// client-side by popping non-matching members aside and re-queuing them
// when Take returns, since Redis sorted sets have no native "pop matching a
// predicate" op. While a blocking Take waits, the members it set aside are
// not visible to other callers.
func (p *Provider) Take(filter signal.Set, nonBlocking bool) (signal.Signal, bool) {
	ctx := context.Background()
	var skipped []redis.Z
	defer func() {
		if len(skipped) > 0 {
			p.rdb.ZAdd(ctx, p.key, skipped...)
		}
	}()
	for {
		var member string
		if nonBlocking {
			results, err := p.rdb.ZPopMin(ctx, p.key, 1).Result()
			if err != nil || len(results) == 0 {
				return signal.Signal{}, false
			}
			member = results[0].Member.(string)
		} else {
			result, err := p.rdb.BZPopMin(ctx, 0, p.key).Result()
			if err != nil {
				return signal.Signal{}, false
			}
			member = result.Member.(string)
		}

		s, ok := decodeMember(member)
		if !ok {
			continue
		}
		if filter != nil && len(filter) > 0 && !filterHas(filter, s.Kind) {
			// Not a match for this caller; hold it aside and keep looking.
			skipped = append(skipped, redis.Z{Score: float64(signal.Priority(s.Kind)), Member: member})
			continue
		}
		return s, true
	}
}

// Peek implements signal.Provider.Peek via a non-destructive ZRANGE.
func (p *Provider) Peek() (signal.Signal, bool) {
	ctx := context.Background()
	members, err := p.rdb.ZRange(ctx, p.key, 0, 0).Result()
	if err != nil || len(members) == 0 {
		return signal.Signal{}, false
	}
	return decodeMember(members[0])
}

func decodeMember(member string) (signal.Signal, bool) {
	idx := indexOfColon(member)
	if idx < 0 {
		return signal.Signal{}, false
	}
	var w wireSignal
	if err := json.Unmarshal([]byte(member[idx+1:]), &w); err != nil {
		return signal.Signal{}, false
	}
	return signal.Signal{Kind: w.Kind, Content: w.Content, Response: w.Response, Identifier: w.Identifier}, true
}

func indexOfColon(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

func filterHas(filter signal.Set, k signal.Kind) bool {
	_, ok := filter[k]
	return ok
}
