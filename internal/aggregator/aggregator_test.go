package aggregator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/skmto/arktwim-sample/internal/metrics"
	"github.com/skmto/arktwim-sample/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource []types.AgentRecord

func (s staticSource) Snapshot() []types.AgentRecord { return s }
func (s staticSource) Now() types.Timestamp          { return types.Timestamp{Seconds: 42} }

type recordingHub struct {
	mu      sync.Mutex
	clients int
	updates []*types.DataUpdate
}

func (h *recordingHub) Broadcast(u *types.DataUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, u)
}

func (h *recordingHub) ClientCount() int { return h.clients }

func (h *recordingHub) received() []*types.DataUpdate {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*types.DataUpdate(nil), h.updates...)
}

func records() staticSource {
	return staticSource{
		{AgentID: "vehicle-b", Kind: types.KindVehicle, Pose: types.Pose{Position: types.Vec3{X: 5, Z: 0.5}}},
		{AgentID: "pedestrian-a", Kind: types.KindPedestrian, Pose: types.Pose{
			Position: types.Vec3{X: -2, Y: 2},
			Velocity: types.Vec3{X: 1},
			Rotation: types.Rotation{EulerAngles: types.Vec3{Z: 90}},
		}},
		{AgentID: "vehicle-a", Kind: types.KindVehicle, Pose: types.Pose{Position: types.Vec3{Z: 0.5}}},
	}
}

func TestBuildGroupsByKind(t *testing.T) {
	update := Build(types.Timestamp{Seconds: 1}, records(), 3)

	assert.Equal(t, "data_update", update.Type)
	assert.Equal(t, 3, update.Stats.AgentCount)
	assert.Equal(t, int64(3), update.Stats.TotalUpdates)
	assert.Equal(t, 2, update.Stats.KindCounts[types.KindVehicle])

	vehicles := update.Agents[types.KindVehicle]
	require.Len(t, vehicles, 2)
	assert.Equal(t, types.AgentID("vehicle-a"), vehicles[0].ID)
	assert.Equal(t, 0.5, vehicles[0].Z)

	walker := update.Agents[types.KindPedestrian][0]
	assert.Equal(t, -2.0, walker.X)
	assert.Equal(t, 90.0, walker.Rotation.Z)
	assert.Equal(t, 1.0, walker.Speed.X)
}

func TestBuildEmpty(t *testing.T) {
	update := Build(types.Timestamp{}, nil, 0)

	assert.Empty(t, update.Agents)
	assert.Equal(t, 0, update.Stats.AgentCount)
}

func TestStartBroadcastsWhileClientsConnected(t *testing.T) {
	hub := &recordingHub{clients: 1}
	a := NewAggregator(records(), hub, 10*time.Millisecond, metrics.New(prometheus.NewRegistry()), zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		a.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("aggregator did not stop after context cancel")
	}

	updates := hub.received()
	require.NotEmpty(t, updates)
	assert.Equal(t, int64(42), updates[0].Timestamp.Seconds)
	assert.Equal(t, int64(1), updates[0].Stats.TotalUpdates)
	assert.Equal(t, int64(len(updates)), a.Current().Stats.TotalUpdates)
}

func TestStartSkipsWithoutClients(t *testing.T) {
	hub := &recordingHub{}
	a := NewAggregator(records(), hub, 5*time.Millisecond, metrics.New(prometheus.NewRegistry()), zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	a.Start(ctx)

	assert.Empty(t, hub.received())
}
