// Package neighbor answers neighbor queries end to end. Service is the only
// entry point transports bind to; it owns the registry, transform store,
// spatial index and change tracker and keeps them consistent.
package neighbor

import (
	"errors"
	"fmt"
	"hash/maphash"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/skmto/arktwim-sample/internal/cache"
	"github.com/skmto/arktwim-sample/internal/metrics"
	"github.com/skmto/arktwim-sample/internal/registry"
	"github.com/skmto/arktwim-sample/internal/spatial"
	"github.com/skmto/arktwim-sample/internal/tracker"
	"github.com/skmto/arktwim-sample/internal/types"
)

// Config configures a Service
type Config struct {
	// StaleAfter expires transforms and idle tracking sessions. Zero disables expiry.
	StaleAfter time.Duration

	// Index defaults to a linear scan
	Index spatial.Index

	// Clock defaults to time.Now
	Clock func() time.Time
}

// Query is a neighbor query issued by a registered agent
type Query struct {
	Requester       types.AgentID
	Timestamp       types.Timestamp
	Limit           int
	Radius          *float64
	ChangeDetection bool
	Kinds           []types.AgentKind
}

// requesterStripes is the number of locks queries are serialized on
const requesterStripes = 64

// Service orchestrates registration, pose updates and neighbor queries
type Service struct {
	// Queries from one requester hold its stripe from snapshot to diff
	stripes [requesterStripes]sync.Mutex
	seed    maphash.Seed

	registry *registry.Registry
	store    *cache.TransformStore
	tracker  *tracker.Tracker
	index    spatial.Index
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// New wires a registry, transform store and change tracker together
func New(cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if cfg.Index == nil {
		cfg.Index = spatial.Linear{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	reg := registry.New(logger)
	store := cache.NewTransformStore(reg,
		cache.WithStaleAfter(cfg.StaleAfter),
		cache.WithClock(cfg.Clock),
	)
	trk := tracker.New(
		tracker.WithIdleAfter(cfg.StaleAfter),
		tracker.WithClock(cfg.Clock),
	)
	reg.Observe(store)
	reg.Observe(trk)

	return &Service{
		seed:     maphash.MakeSeed(),
		registry: reg,
		store:    store,
		tracker:  trk,
		index:    cfg.Index,
		metrics:  m,
		logger:   logger.With().Str("component", "neighbor").Logger(),
	}
}

// Register registers one agent
func (s *Service) Register(req types.RegisterRequest) types.AgentID {
	return s.RegisterBatch([]types.RegisterRequest{req})[0]
}

// RegisterBatch registers agents and returns their ids in request order
func (s *Service) RegisterBatch(reqs []types.RegisterRequest) []types.AgentID {
	ids := s.registry.RegisterBatch(reqs)
	s.metrics.RecordRegistrations(len(ids))
	s.logger.Info().Int("count", len(ids)).Msg("agents registered")
	return ids
}

// Lookup returns the registration of id
func (s *Service) Lookup(id types.AgentID) (registry.Agent, bool) {
	return s.registry.Lookup(id)
}

// Deregister removes an agent from the registry, the store and the tracker
func (s *Service) Deregister(id types.AgentID) error {
	if err := s.registry.Deregister(id); err != nil {
		return err
	}
	s.metrics.RecordDeregistration()
	s.metrics.SetTrackedAgents(s.store.Count())
	s.logger.Info().Str("agent_id", string(id)).Msg("agent deregistered")
	return nil
}

// Upsert stores poses; unknown ids are rejected per entry
func (s *Service) Upsert(ts types.Timestamp, updates map[types.AgentID]types.AgentUpdate) []types.UpsertResult {
	results := s.store.Upsert(ts, updates)

	rejected := 0
	for _, r := range results {
		if r.Err != nil {
			rejected++
			s.logger.Warn().Err(r.Err).Msg("upsert entry rejected")
		}
	}
	s.metrics.RecordUpsert(len(results)-rejected, rejected)
	s.metrics.SetTrackedAgents(s.store.Count())
	return results
}

// Get returns the live record of id
func (s *Service) Get(id types.AgentID) (types.AgentRecord, bool) {
	return s.store.Get(id)
}

// Snapshot returns every live record ordered by id
func (s *Service) Snapshot() []types.AgentRecord {
	return s.store.Snapshot()
}

// Now returns the store clock as a response timestamp
func (s *Service) Now() types.Timestamp {
	return types.TimestampFrom(s.store.Now())
}

// QueryNeighbors returns the requester's nearest neighbors ordered by
// distance. With change detection, neighbors that dropped out since the
// previous query follow as Removed entries carrying their last known pose.
func (s *Service) QueryNeighbors(q Query) (types.Timestamp, []types.NeighborResult, error) {
	start := time.Now()

	results, err := s.queryNeighbors(q)
	if err != nil {
		outcome := metrics.OutcomeInvalid
		if errors.Is(err, types.ErrUnknownRequester) {
			outcome = metrics.OutcomeUnknownRequester
		}
		s.metrics.RecordQuery(outcome, time.Since(start), nil)
		return types.Timestamp{}, nil, err
	}

	s.metrics.RecordQuery(metrics.OutcomeOK, time.Since(start), results)
	s.logger.Debug().
		Str("requester", string(q.Requester)).
		Int("limit", q.Limit).
		Bool("change_detection", q.ChangeDetection).
		Int("neighbors", len(results)).
		Dur("took", time.Since(start)).
		Msg("neighbor query")

	return s.Now(), results, nil
}

func (s *Service) queryNeighbors(q Query) ([]types.NeighborResult, error) {
	sq := spatial.Query{
		Exclude: q.Requester,
		Limit:   q.Limit,
		Radius:  q.Radius,
		Kinds:   q.Kinds,
	}
	if err := sq.Validate(); err != nil {
		return nil, err
	}

	unlock := s.lockRequester(q.Requester)
	defer unlock()

	snapshot := s.store.Snapshot()
	i := sort.Search(len(snapshot), func(i int) bool { return snapshot[i].AgentID >= q.Requester })
	if i == len(snapshot) || snapshot[i].AgentID != q.Requester {
		return nil, fmt.Errorf("query from %q: %w", q.Requester, types.ErrUnknownRequester)
	}
	origin := snapshot[i].Pose.Position
	sq.Origin = origin

	matches, err := s.index.Nearest(snapshot, sq)
	if err != nil {
		return nil, err
	}

	results := make([]types.NeighborResult, len(matches))
	for i, m := range matches {
		results[i] = types.NeighborResult{
			AgentID:  m.Record.AgentID,
			Kind:     m.Record.Kind,
			Pose:     m.Record.Pose,
			Status:   m.Record.Status,
			Assets:   m.Record.Assets,
			Distance: m.Distance,
			Change:   types.ChangeUpdated,
		}
	}

	if !q.ChangeDetection {
		s.tracker.Reset(q.Requester)
		return results, nil
	}

	diff := s.tracker.Diff(q.Requester, results)
	for i := range results {
		results[i].Change = diff.States[results[i].AgentID]
	}
	for _, gone := range diff.Removed {
		gone.Distance = spatial.Distance(origin, gone.Pose.Position)
		results = append(results, gone)
	}
	return results, nil
}

func (s *Service) lockRequester(id types.AgentID) func() {
	mu := &s.stripes[maphash.String(s.seed, string(id))%requesterStripes]
	mu.Lock()
	return mu.Unlock
}

// Sweep removes stale transforms and idle tracking sessions
func (s *Service) Sweep() (expired, pruned int) {
	expired = s.store.RemoveExpired()
	pruned = s.tracker.Prune()
	s.metrics.RecordSweep(expired, pruned)
	s.metrics.SetTrackedAgents(s.store.Count())
	return expired, pruned
}

// Reset clears every registration, transform and session
func (s *Service) Reset() (agents, sessions int) {
	sessions = s.tracker.Clear()
	agents = s.registry.Clear()
	s.store.Clear()
	s.metrics.SetTrackedAgents(0)
	s.logger.Info().Int("agents", agents).Int("sessions", sessions).Msg("service state reset")
	return agents, sessions
}

// Stats summarizes service state
type Stats struct {
	RegisteredAgents int `json:"registeredAgents"`
	StoredTransforms int `json:"storedTransforms"`
	TrackedSessions  int `json:"trackedSessions"`
}

// Stats returns current counts
func (s *Service) Stats() Stats {
	return Stats{
		RegisteredAgents: s.registry.Count(),
		StoredTransforms: s.store.Count(),
		TrackedSessions:  s.tracker.Count(),
	}
}
