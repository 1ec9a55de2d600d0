package cache

import (
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/skmto/arktwim-sample/internal/registry"
	"github.com/skmto/arktwim-sample/internal/types"
)

// Directory resolves registered agents
type Directory interface {
	Lookup(id types.AgentID) (registry.Agent, bool)
}

// Option configures a TransformStore
type Option func(*TransformStore)

// WithStaleAfter excludes records not upserted within d. Zero disables expiry.
func WithStaleAfter(d time.Duration) Option {
	return func(s *TransformStore) {
		s.staleAfter = d
	}
}

// WithClock replaces the wall clock used for staleness and response timestamps
func WithClock(now func() time.Time) Option {
	return func(s *TransformStore) {
		s.now = now
	}
}

// TransformStore holds the latest pose of every agent that has reported one
type TransformStore struct {
	records    map[types.AgentID]*types.AgentRecord
	mu         sync.RWMutex
	dir        Directory
	staleAfter time.Duration
	now        func() time.Time
}

// NewTransformStore creates a store that only accepts agents known to dir
func NewTransformStore(dir Directory, opts ...Option) *TransformStore {
	s := &TransformStore{
		records: make(map[types.AgentID]*types.AgentRecord),
		dir:     dir,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store clock
func (s *TransformStore) Now() time.Time {
	return s.now()
}

// StaleAfter returns the configured TTL, zero when disabled
func (s *TransformStore) StaleAfter() time.Duration {
	return s.staleAfter
}

// Upsert replaces the pose and status of every listed agent. Unknown ids are
// rejected per entry; the rest of the batch is still applied. Results are
// ordered by agent id.
func (s *TransformStore) Upsert(ts types.Timestamp, updates map[types.AgentID]types.AgentUpdate) []types.UpsertResult {
	ids := make([]types.AgentID, 0, len(updates))
	for id := range updates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	results := make([]types.UpsertResult, 0, len(ids))
	for _, id := range ids {
		agent, ok := s.dir.Lookup(id)
		if !ok {
			results = append(results, types.UpsertResult{
				AgentID: id,
				Err:     fmt.Errorf("upsert %q: %w", id, types.ErrUnknownAgentID),
			})
			continue
		}

		update := updates[id]
		s.records[id] = &types.AgentRecord{
			AgentID:   id,
			Kind:      agent.Kind,
			Pose:      update.Transform.Normalized(),
			Timestamp: ts,
			UpdatedAt: now,
			Status:    maps.Clone(update.Status),
			Assets:    agent.Assets,
		}
		results = append(results, types.UpsertResult{AgentID: id})
	}
	return results
}

// Get returns a copy of the live record for id. Stale records are not returned.
func (s *TransformStore) Get(id types.AgentID) (types.AgentRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok || s.isStale(rec, s.now()) {
		return types.AgentRecord{}, false
	}
	return rec.Clone(), true
}

// Snapshot returns a point-in-time copy of every live record, ordered by id
func (s *TransformStore) Snapshot() []types.AgentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]types.AgentRecord, 0, len(s.records))
	for _, rec := range s.records {
		if s.isStale(rec, now) {
			continue
		}
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// AgentDeregistered drops the record of a removed agent
func (s *TransformStore) AgentDeregistered(id types.AgentID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
}

// RemoveExpired deletes records that have gone stale and returns how many were removed
func (s *TransformStore) RemoveExpired() int {
	if s.staleAfter <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, rec := range s.records {
		if s.isStale(rec, now) {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

// Count returns the number of stored records, stale ones included
func (s *TransformStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Clear removes every record and returns how many there were
func (s *TransformStore) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.records)
	s.records = make(map[types.AgentID]*types.AgentRecord)
	return n
}

// GetByKind returns live records of the given kind, ordered by id
func (s *TransformStore) GetByKind(kind types.AgentKind) []types.AgentRecord {
	all := s.Snapshot()
	out := make([]types.AgentRecord, 0, len(all))
	for _, rec := range all {
		if rec.Kind == kind {
			out = append(out, rec)
		}
	}
	return out
}

func (s *TransformStore) isStale(rec *types.AgentRecord, now time.Time) bool {
	return s.staleAfter > 0 && now.Sub(rec.UpdatedAt) > s.staleAfter
}
