package cache

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/skmto/arktwim-sample/internal/registry"
	"github.com/skmto/arktwim-sample/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type directory map[types.AgentID]registry.Agent

func (d directory) Lookup(id types.AgentID) (registry.Agent, bool) {
	a, ok := d[id]
	return a, ok
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newDirectory() directory {
	return directory{
		"alice": {ID: "alice", Kind: types.KindPedestrian, Assets: types.Assets{"model": "walker"}},
		"bob":   {ID: "bob", Kind: types.KindPedestrian},
		"car":   {ID: "car", Kind: types.KindVehicle},
	}
}

func at(x, y, z float64) types.AgentUpdate {
	return types.AgentUpdate{Transform: types.Pose{Position: types.Vec3{X: x, Y: y, Z: z}}}
}

func TestUpsertAndGet(t *testing.T) {
	s := NewTransformStore(newDirectory())

	results := s.Upsert(types.Timestamp{Seconds: 10}, map[types.AgentID]types.AgentUpdate{
		"alice": at(1, 2, 3),
	})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	rec, ok := s.Get("alice")
	require.True(t, ok)
	assert.Equal(t, types.Vec3{X: 1, Y: 2, Z: 3}, rec.Pose.Position)
	assert.Equal(t, types.UnitScale, rec.Pose.Scale)
	assert.Equal(t, types.KindPedestrian, rec.Kind)
	assert.Equal(t, "walker", rec.Assets["model"])
	assert.Equal(t, int64(10), rec.Timestamp.Seconds)
}

func TestUpsertOverwrites(t *testing.T) {
	s := NewTransformStore(newDirectory())

	s.Upsert(types.Timestamp{}, map[types.AgentID]types.AgentUpdate{"alice": at(1, 0, 0)})
	s.Upsert(types.Timestamp{}, map[types.AgentID]types.AgentUpdate{"alice": at(2, 0, 0)})

	rec, _ := s.Get("alice")
	assert.Equal(t, 2.0, rec.Pose.Position.X)
	assert.Equal(t, 1, s.Count())
}

func TestUpsertRejectsUnknownPerEntry(t *testing.T) {
	s := NewTransformStore(newDirectory())

	results := s.Upsert(types.Timestamp{}, map[types.AgentID]types.AgentUpdate{
		"alice":   at(1, 0, 0),
		"mallory": at(2, 0, 0),
	})

	require.Len(t, results, 2)
	assert.Equal(t, types.AgentID("alice"), results[0].AgentID)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, types.AgentID("mallory"), results[1].AgentID)
	assert.True(t, errors.Is(results[1].Err, types.ErrUnknownAgentID))

	_, ok := s.Get("alice")
	assert.True(t, ok)
	_, ok = s.Get("mallory")
	assert.False(t, ok)
}

func TestSnapshotOrderedAndIsolated(t *testing.T) {
	s := NewTransformStore(newDirectory())
	s.Upsert(types.Timestamp{}, map[types.AgentID]types.AgentUpdate{
		"car":   at(0, 0, 0),
		"alice": at(1, 0, 0),
		"bob":   at(2, 0, 0),
	})

	snap := s.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, types.AgentID("alice"), snap[0].AgentID)
	assert.Equal(t, types.AgentID("bob"), snap[1].AgentID)
	assert.Equal(t, types.AgentID("car"), snap[2].AgentID)

	snap[0].Assets["model"] = "changed"
	rec, _ := s.Get("alice")
	assert.Equal(t, "walker", rec.Assets["model"])
}

func TestStaleRecordsHidden(t *testing.T) {
	c := &clock{now: time.Unix(1000, 0)}
	s := NewTransformStore(newDirectory(), WithStaleAfter(5*time.Second), WithClock(c.Now))

	s.Upsert(types.Timestamp{}, map[types.AgentID]types.AgentUpdate{"alice": at(0, 0, 0)})
	c.Advance(3 * time.Second)
	s.Upsert(types.Timestamp{}, map[types.AgentID]types.AgentUpdate{"bob": at(0, 0, 0)})
	c.Advance(3 * time.Second)

	_, ok := s.Get("alice")
	assert.False(t, ok, "alice should be stale")
	_, ok = s.Get("bob")
	assert.True(t, ok)
	assert.Len(t, s.Snapshot(), 1)
	assert.Equal(t, 2, s.Count())

	assert.Equal(t, 1, s.RemoveExpired())
	assert.Equal(t, 1, s.Count())
}

func TestRemoveExpiredDisabled(t *testing.T) {
	c := &clock{now: time.Unix(1000, 0)}
	s := NewTransformStore(newDirectory(), WithClock(c.Now))

	s.Upsert(types.Timestamp{}, map[types.AgentID]types.AgentUpdate{"alice": at(0, 0, 0)})
	c.Advance(24 * time.Hour)

	assert.Equal(t, 0, s.RemoveExpired())
	_, ok := s.Get("alice")
	assert.True(t, ok)
}

func TestAgentDeregistered(t *testing.T) {
	s := NewTransformStore(newDirectory())
	s.Upsert(types.Timestamp{}, map[types.AgentID]types.AgentUpdate{"alice": at(0, 0, 0)})

	s.AgentDeregistered("alice")

	_, ok := s.Get("alice")
	assert.False(t, ok)
}

func TestGetByKind(t *testing.T) {
	s := NewTransformStore(newDirectory())
	s.Upsert(types.Timestamp{}, map[types.AgentID]types.AgentUpdate{
		"alice": at(0, 0, 0),
		"bob":   at(0, 0, 0),
		"car":   at(0, 0, 0),
	})

	assert.Len(t, s.GetByKind(types.KindPedestrian), 2)
	assert.Len(t, s.GetByKind(types.KindVehicle), 1)
	assert.Equal(t, 3, s.Clear())
	assert.Empty(t, s.Snapshot())
}

func TestConcurrentUpsertAndSnapshot(t *testing.T) {
	s := NewTransformStore(newDirectory())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Upsert(types.Timestamp{}, map[types.AgentID]types.AgentUpdate{"alice": at(float64(i), float64(j), 0)})
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Snapshot()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, s.Count())
}
