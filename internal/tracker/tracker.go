// Package tracker remembers, per requesting agent, which neighbors were
// returned by the previous query so the next answer can be classified as
// New, Updated, Unchanged or Removed.
package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/skmto/arktwim-sample/internal/types"
)

// Option configures a Tracker
type Option func(*Tracker)

// WithIdleAfter discards sessions not queried within d. Zero keeps them forever.
func WithIdleAfter(d time.Duration) Option {
	return func(t *Tracker) {
		t.idleAfter = d
	}
}

// WithClock replaces the wall clock used for idle detection
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// Diff is the outcome of comparing a query result with the previous one
type Diff struct {
	States  map[types.AgentID]types.ChangeState
	Removed []types.NeighborResult // last known state, ordered by id
}

type session struct {
	seen     map[types.AgentID]types.NeighborResult
	lastSeen time.Time
}

// Tracker holds one tracked neighbor set per requester
type Tracker struct {
	mu        sync.Mutex
	sessions  map[types.AgentID]*session
	idleAfter time.Duration
	now       func() time.Time
}

// New creates an empty tracker
func New(opts ...Option) *Tracker {
	t := &Tracker{
		sessions: make(map[types.AgentID]*session),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Diff classifies current against the requester's previous result and then
// makes current the tracked set. Ids that dropped out are reported once as
// Removed with their last known pose and are no longer tracked afterwards.
func (t *Tracker) Diff(requester types.AgentID, current []types.NeighborResult) Diff {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.sessions[requester]
	next := &session{
		seen:     make(map[types.AgentID]types.NeighborResult, len(current)),
		lastSeen: t.now(),
	}

	diff := Diff{States: make(map[types.AgentID]types.ChangeState, len(current))}
	for _, n := range current {
		next.seen[n.AgentID] = n

		var old types.NeighborResult
		var ok bool
		if prev != nil {
			old, ok = prev.seen[n.AgentID]
		}
		switch {
		case !ok:
			diff.States[n.AgentID] = types.ChangeNew
		case old.Pose != n.Pose:
			diff.States[n.AgentID] = types.ChangeUpdated
		default:
			diff.States[n.AgentID] = types.ChangeUnchanged
		}
	}

	if prev != nil {
		for id, old := range prev.seen {
			if _, still := next.seen[id]; still {
				continue
			}
			old.Change = types.ChangeRemoved
			diff.Removed = append(diff.Removed, old)
			diff.States[id] = types.ChangeRemoved
		}
		sort.Slice(diff.Removed, func(i, j int) bool {
			return diff.Removed[i].AgentID < diff.Removed[j].AgentID
		})
	}

	t.sessions[requester] = next
	return diff
}

// Reset forgets the requester's tracked set; its next Diff reports everything as New
func (t *Tracker) Reset(requester types.AgentID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, requester)
}

// AgentDeregistered drops the session of a removed requester. Other
// requesters keep the id so they can report it as Removed.
func (t *Tracker) AgentDeregistered(id types.AgentID) {
	t.Reset(id)
}

// Prune discards sessions idle for longer than the configured period
func (t *Tracker) Prune() int {
	if t.idleAfter <= 0 {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	threshold := t.now().Add(-t.idleAfter)
	pruned := 0
	for id, s := range t.sessions {
		if s.lastSeen.Before(threshold) {
			delete(t.sessions, id)
			pruned++
		}
	}
	return pruned
}

// Count returns the number of tracked requesters
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Clear forgets every session
func (t *Tracker) Clear() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(t.sessions)
	t.sessions = make(map[types.AgentID]*session)
	return n
}
