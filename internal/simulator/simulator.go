package simulator

import (
	"context"
	"fmt"
	"maps"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/skmto/arktwim-sample/internal/types"
)

// EdgeClient is the part of the edge API the simulator drives
type EdgeClient interface {
	Register(ctx context.Context, reqs []types.RegisterRequest) ([]types.RegisteredAgent, error)
	PutTransforms(ctx context.Context, req types.UpsertRequest) (*types.UpsertResponse, error)
	QueryNeighbors(ctx context.Context, req types.NeighborQueryRequest) (*types.NeighborQueryResponse, error)
	Deregister(ctx context.Context, id types.AgentID) error
}

// Stats are cumulative counters of the current or last run
type Stats struct {
	Running         bool                      `json:"running"`
	Agents          int                       `json:"agents"`
	Ticks           int64                     `json:"ticks"`
	TransformsSent  int64                     `json:"transformsSent"`
	Rejected        int64                     `json:"rejected"`
	Queries         int64                     `json:"queries"`
	Errors          int64                     `json:"errors"`
	NeighborsByKind map[types.AgentKind]int   `json:"neighborsByKind"` // last tick
	Changes         map[types.ChangeState]int `json:"changes"`
}

// Simulator registers the scenario's fleets and drives them against the edge API
type Simulator struct {
	scenario Scenario
	client   EdgeClient
	rng      *rand.Rand
	logger   zerolog.Logger

	mu      sync.Mutex
	fleets  [][]*Agent
	simTime time.Duration
	stats   Stats
}

// NewSimulator creates a new simulator
func NewSimulator(sc Scenario, client EdgeClient, seed int64, logger zerolog.Logger) *Simulator {
	return &Simulator{
		scenario: sc,
		client:   client,
		rng:      rand.New(rand.NewSource(seed)),
		logger:   logger.With().Str("component", "simulator").Logger(),
	}
}

// Run registers every fleet, then updates and queries at the scenario rate
// until ctx is done. Registered agents are deregistered before returning.
func (s *Simulator) Run(ctx context.Context) error {
	if err := s.Setup(ctx); err != nil {
		s.teardown()
		return err
	}
	defer s.teardown()

	dt := time.Duration(float64(time.Second) / s.scenario.Rate)
	ticker := time.NewTicker(dt)
	defer ticker.Stop()

	s.logger.Info().
		Int("agents", s.scenario.AgentCount()).
		Float64("rate", s.scenario.Rate).
		Msg("simulation started")

	lastReport := time.Now()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("simulation stopped")
			return nil

		case <-ticker.C:
			s.Step(ctx, dt)

			if time.Since(lastReport) >= time.Second {
				lastReport = time.Now()
				st := s.Stats()
				s.logger.Info().
					Int64("ticks", st.Ticks).
					Interface("neighbors_by_kind", st.NeighborsByKind).
					Int64("errors", st.Errors).
					Msg("simulation status")
			}
		}
	}
}

// Setup builds fresh agents from the scenario and registers each fleet in
// one batch. Returned ids are assigned to agents by position.
func (s *Simulator) Setup(ctx context.Context) error {
	s.mu.Lock()
	s.fleets = make([][]*Agent, 0, len(s.scenario.Fleets))
	s.simTime = 0
	s.stats = Stats{
		Running:         true,
		NeighborsByKind: make(map[types.AgentKind]int),
		Changes:         make(map[types.ChangeState]int),
	}
	s.mu.Unlock()

	for _, fc := range s.scenario.Fleets {
		if len(fc.Agents) == 0 {
			continue
		}

		agents := make([]*Agent, len(fc.Agents))
		reqs := make([]types.RegisterRequest, len(fc.Agents))
		for i, ac := range fc.Agents {
			agents[i] = newAgent(fc.Kind, ac)
			reqs[i] = types.RegisterRequest{
				AgentIDPrefix: ac.Name,
				Kind:          fc.Kind,
				Status:        types.Status{},
				Assets:        types.Assets{},
			}
		}

		registered, err := s.client.Register(ctx, reqs)
		if err != nil {
			s.mu.Lock()
			s.stats.Running = false
			s.mu.Unlock()
			return fmt.Errorf("register %s fleet: %w", fc.Kind, err)
		}
		for i, r := range registered {
			agents[i].ID = r.AgentID
			s.logger.Debug().
				Str("name", agents[i].Name).
				Str("agent_id", string(r.AgentID)).
				Msg("agent registered")
		}

		s.mu.Lock()
		s.fleets = append(s.fleets, agents)
		s.stats.Agents += len(agents)
		s.mu.Unlock()
	}

	st := s.Stats()
	s.logger.Info().Int("agents", st.Agents).Int("fleets", len(s.scenario.Fleets)).Msg("fleets registered")
	return nil
}

// tick collects the results of one Step before they are merged into Stats
type tick struct {
	sent, rejected, queries, errors int64
	byKind                          map[types.AgentKind]int
	changes                         map[types.ChangeState]int
}

// Step advances every agent by dt, sends one transform batch per fleet and
// lets every agent query its neighbors. Requests run without holding the
// lock so Stats stays responsive during a tick.
func (s *Simulator) Step(ctx context.Context, dt time.Duration) {
	s.mu.Lock()
	s.simTime += dt
	ts := types.Timestamp{
		Seconds: int64(s.simTime / time.Second),
		Nanos:   int32(s.simTime % time.Second),
	}

	batches := make([]map[types.AgentID]types.AgentUpdate, 0, len(s.fleets))
	var requesters []types.AgentID
	for _, fleet := range s.fleets {
		updates := make(map[types.AgentID]types.AgentUpdate, len(fleet))
		for _, a := range fleet {
			a.Step(dt.Seconds(), s.rng)
			updates[a.ID] = types.AgentUpdate{Transform: a.Pose(), Status: types.Status{}}
			requesters = append(requesters, a.ID)
		}
		batches = append(batches, updates)
	}
	s.mu.Unlock()

	t := tick{
		byKind:  make(map[types.AgentKind]int),
		changes: make(map[types.ChangeState]int),
	}
	for _, updates := range batches {
		resp, err := s.client.PutTransforms(ctx, types.UpsertRequest{Timestamp: ts, Agents: updates})
		if err != nil {
			t.errors++
			s.logger.Error().Err(err).Msg("failed to send transforms")
			continue
		}
		t.sent += int64(resp.Applied)
		t.rejected += int64(len(resp.Rejected))
	}
	for _, id := range requesters {
		s.query(ctx, id, ts, &t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.TransformsSent += t.sent
	s.stats.Rejected += t.rejected
	s.stats.Queries += t.queries
	s.stats.Errors += t.errors
	s.stats.NeighborsByKind = t.byKind
	if s.stats.Changes == nil {
		s.stats.Changes = make(map[types.ChangeState]int)
	}
	for state, n := range t.changes {
		s.stats.Changes[state] += n
	}
	s.stats.Ticks++
}

func (s *Simulator) query(ctx context.Context, id types.AgentID, ts types.Timestamp, t *tick) {
	limit := s.scenario.Neighbors
	resp, err := s.client.QueryNeighbors(ctx, types.NeighborQueryRequest{
		RequesterAgentID: id,
		Timestamp:        ts,
		NeighborsNumber:  &limit,
		ChangeDetection:  s.scenario.ChangeDetection,
	})
	t.queries++
	if err != nil {
		t.errors++
		s.logger.Error().Err(err).Str("agent_id", string(id)).Msg("neighbor query failed")
		return
	}

	for _, n := range resp.Neighbors {
		t.changes[n.Change]++
		if n.Change != types.ChangeRemoved {
			t.byKind[n.Kind]++
		}
	}
}

// teardown deregisters every agent registered by Setup
func (s *Simulator) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.mu.Lock()
	fleets := s.fleets
	s.fleets = nil
	s.mu.Unlock()

	failed := 0
	for _, fleet := range fleets {
		for _, a := range fleet {
			if err := s.client.Deregister(ctx, a.ID); err != nil {
				failed++
				s.logger.Warn().Err(err).Str("agent_id", string(a.ID)).Msg("failed to deregister agent")
			}
		}
	}

	s.mu.Lock()
	s.stats.Running = false
	s.mu.Unlock()

	s.logger.Info().Int("failed", failed).Msg("agents deregistered")
}

// Stats returns a copy of the counters
func (s *Simulator) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stats
	st.NeighborsByKind = maps.Clone(s.stats.NeighborsByKind)
	st.Changes = maps.Clone(s.stats.Changes)
	return st
}

// Agents returns the simulated agents of the current run
func (s *Simulator) Agents() []*Agent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Agent
	for _, fleet := range s.fleets {
		out = append(out, fleet...)
	}
	return out
}
