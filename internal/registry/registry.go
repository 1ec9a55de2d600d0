// Package registry assigns agent identifiers and tracks which agents are
// registered. Removal is propagated to observers so downstream state is
// dropped together with the registration.
package registry

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/skmto/arktwim-sample/internal/types"
)

// suffixLen is the number of hex characters appended to a prefix
const suffixLen = 8

// Agent is a registry entry
type Agent struct {
	ID           types.AgentID
	Kind         types.AgentKind
	Status       types.Status
	Assets       types.Assets
	RegisteredAt time.Time
}

// Observer is notified after an agent has been removed from the registry
type Observer interface {
	AgentDeregistered(id types.AgentID)
}

// Registry owns the set of registered agents
type Registry struct {
	mu        sync.Mutex
	agents    map[types.AgentID]Agent
	observers []Observer
	newSuffix func() string
	logger    zerolog.Logger
}

// New creates an empty registry
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		agents:    make(map[types.AgentID]Agent),
		newSuffix: randomSuffix,
		logger:    logger.With().Str("component", "registry").Logger(),
	}
}

func randomSuffix() string {
	return uuid.New().String()[:suffixLen]
}

// Observe adds an observer for deregistrations
func (r *Registry) Observe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// Register adds a single agent and returns its generated id
func (r *Registry) Register(req types.RegisterRequest) types.AgentID {
	return r.RegisterBatch([]types.RegisterRequest{req})[0]
}

// RegisterBatch registers every request and returns the generated ids in
// request order. Prefixes may repeat freely.
func (r *Registry) RegisterBatch(reqs []types.RegisterRequest) []types.AgentID {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	ids := make([]types.AgentID, len(reqs))
	for i, req := range reqs {
		id := r.uniqueID(req.AgentIDPrefix)
		r.agents[id] = Agent{
			ID:           id,
			Kind:         req.Kind,
			Status:       maps.Clone(req.Status),
			Assets:       maps.Clone(req.Assets),
			RegisteredAt: now,
		}
		ids[i] = id

		r.logger.Debug().
			Str("agent_id", string(id)).
			Str("kind", string(req.Kind)).
			Msg("agent registered")
	}
	return ids
}

// uniqueID must be called with the lock held
func (r *Registry) uniqueID(prefix string) types.AgentID {
	for {
		id := types.AgentID(r.newSuffix())
		if prefix != "" {
			id = types.AgentID(prefix + "-" + string(id))
		}
		if _, taken := r.agents[id]; !taken {
			return id
		}
	}
}

// Deregister removes an agent and notifies observers
func (r *Registry) Deregister(id types.AgentID) error {
	r.mu.Lock()
	if _, ok := r.agents[id]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("deregister %q: %w", id, types.ErrUnknownAgentID)
	}
	delete(r.agents, id)
	observers := append([]Observer(nil), r.observers...)
	r.mu.Unlock()

	for _, o := range observers {
		o.AgentDeregistered(id)
	}

	r.logger.Debug().Str("agent_id", string(id)).Msg("agent deregistered")
	return nil
}

// Lookup returns the registry entry for id
func (r *Registry) Lookup(id types.AgentID) (Agent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return Agent{}, false
	}
	agent.Status = maps.Clone(agent.Status)
	agent.Assets = maps.Clone(agent.Assets)
	return agent, true
}

// Count returns the number of registered agents
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.agents)
}

// Clear deregisters every agent and returns how many were removed
func (r *Registry) Clear() int {
	r.mu.Lock()
	ids := make([]types.AgentID, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	r.agents = make(map[types.AgentID]Agent)
	observers := append([]Observer(nil), r.observers...)
	r.mu.Unlock()

	for _, id := range ids {
		for _, o := range observers {
			o.AgentDeregistered(id)
		}
	}
	return len(ids)
}
