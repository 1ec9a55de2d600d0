package spatial

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/skmto/arktwim-sample/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id string, kind types.AgentKind, x, y, z float64) types.AgentRecord {
	return types.AgentRecord{
		AgentID: types.AgentID(id),
		Kind:    kind,
		Pose:    types.Pose{Position: types.Vec3{X: x, Y: y, Z: z}},
	}
}

func ids(matches []Match) []types.AgentID {
	out := make([]types.AgentID, len(matches))
	for i, m := range matches {
		out[i] = m.Record.AgentID
	}
	return out
}

func radius(r float64) *float64 { return &r }

var indexes = map[string]Index{
	KindLinear: Linear{},
	KindKDTree: KDTree{},
}

func TestNearestOrdersByDistance(t *testing.T) {
	records := []types.AgentRecord{
		record("origin", types.KindPedestrian, 0, 0, 0),
		record("far", types.KindPedestrian, 10, 0, 0),
		record("near", types.KindPedestrian, 1, 0, 0),
		record("mid", types.KindVehicle, 0, 3, 4),
	}

	for name, idx := range indexes {
		t.Run(name, func(t *testing.T) {
			matches, err := idx.Nearest(records, Query{Exclude: "origin", Limit: 10})
			require.NoError(t, err)
			assert.Equal(t, []types.AgentID{"near", "mid", "far"}, ids(matches))
			assert.InDelta(t, 5.0, matches[1].Distance, 1e-12)
		})
	}
}

func TestNearestLimit(t *testing.T) {
	records := []types.AgentRecord{
		record("a", types.KindPedestrian, 1, 0, 0),
		record("b", types.KindPedestrian, 2, 0, 0),
		record("c", types.KindPedestrian, 3, 0, 0),
	}

	for name, idx := range indexes {
		t.Run(name, func(t *testing.T) {
			matches, err := idx.Nearest(records, Query{Limit: 2})
			require.NoError(t, err)
			assert.Equal(t, []types.AgentID{"a", "b"}, ids(matches))

			matches, err = idx.Nearest(records, Query{Limit: 0})
			require.NoError(t, err)
			assert.NotNil(t, matches)
			assert.Empty(t, matches)
		})
	}
}

func TestNearestTiesBrokenByID(t *testing.T) {
	records := []types.AgentRecord{
		record("d", types.KindPedestrian, 0, -1, 0),
		record("b", types.KindPedestrian, 1, 0, 0),
		record("c", types.KindPedestrian, 0, 1, 0),
		record("a", types.KindPedestrian, -1, 0, 0),
	}

	for name, idx := range indexes {
		t.Run(name, func(t *testing.T) {
			matches, err := idx.Nearest(records, Query{Limit: 2})
			require.NoError(t, err)
			assert.Equal(t, []types.AgentID{"a", "b"}, ids(matches))
		})
	}
}

func TestNearestRadiusInclusive(t *testing.T) {
	records := []types.AgentRecord{
		record("inside", types.KindPedestrian, 1, 0, 0),
		record("edge", types.KindPedestrian, 0, 2, 0),
		record("outside", types.KindPedestrian, 0, 0, 2.5),
	}

	for name, idx := range indexes {
		t.Run(name, func(t *testing.T) {
			matches, err := idx.Nearest(records, Query{Limit: 10, Radius: radius(2)})
			require.NoError(t, err)
			assert.Equal(t, []types.AgentID{"inside", "edge"}, ids(matches))

			matches, err = idx.Nearest(records, Query{Limit: 10, Radius: radius(0)})
			require.NoError(t, err)
			assert.Empty(t, matches)
		})
	}
}

func TestNearestKindFilter(t *testing.T) {
	records := []types.AgentRecord{
		record("walker", types.KindPedestrian, 1, 0, 0),
		record("car", types.KindVehicle, 2, 0, 0),
	}

	for name, idx := range indexes {
		t.Run(name, func(t *testing.T) {
			matches, err := idx.Nearest(records, Query{Limit: 10, Kinds: []types.AgentKind{types.KindVehicle}})
			require.NoError(t, err)
			assert.Equal(t, []types.AgentID{"car"}, ids(matches))
		})
	}
}

func TestNearestEmpty(t *testing.T) {
	for name, idx := range indexes {
		t.Run(name, func(t *testing.T) {
			matches, err := idx.Nearest(nil, Query{Limit: 5})
			require.NoError(t, err)
			assert.Empty(t, matches)

			only := []types.AgentRecord{record("me", types.KindPedestrian, 0, 0, 0)}
			matches, err = idx.Nearest(only, Query{Exclude: "me", Limit: 5})
			require.NoError(t, err)
			assert.Empty(t, matches)
		})
	}
}

func TestNearestInvalidParameters(t *testing.T) {
	tests := []struct {
		name string
		q    Query
	}{
		{name: "negative limit", q: Query{Limit: -1}},
		{name: "negative radius", q: Query{Limit: 1, Radius: radius(-1)}},
		{name: "nan radius", q: Query{Limit: 1, Radius: radius(math.NaN())}},
	}

	for name, idx := range indexes {
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				_, err := idx.Nearest(nil, tt.q)
				assert.True(t, errors.Is(err, types.ErrInvalidQueryParameters))
			})
		}
	}
}

func TestKDTreeMatchesLinear(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	records := make([]types.AgentRecord, 500)
	for i := range records {
		kind := types.KindPedestrian
		if i%5 == 0 {
			kind = types.KindVehicle
		}
		// Coarse grid positions produce plenty of equal distances.
		records[i] = record(fmt.Sprintf("agent-%03d", i), kind,
			float64(rng.Intn(21)-10), float64(rng.Intn(21)-10), float64(rng.Intn(3)))
	}

	for trial := 0; trial < 50; trial++ {
		q := Query{
			Origin:  types.Vec3{X: rng.Float64()*20 - 10, Y: rng.Float64()*20 - 10},
			Exclude: records[rng.Intn(len(records))].AgentID,
			Limit:   1 + rng.Intn(40),
		}
		if trial%3 == 0 {
			q.Radius = radius(rng.Float64() * 8)
		}
		if trial%4 == 0 {
			q.Kinds = []types.AgentKind{types.KindVehicle}
		}

		want, err := Linear{}.Nearest(records, q)
		require.NoError(t, err)
		got, err := KDTree{}.Nearest(records, q)
		require.NoError(t, err)

		assert.Equal(t, ids(want), ids(got), "trial %d", trial)
	}
}

func TestDistance(t *testing.T) {
	a := types.Vec3{X: 1, Y: 2, Z: 3}
	b := types.Vec3{X: 4, Y: 6, Z: 15}

	assert.Equal(t, 13.0, Distance(a, b))
	assert.Equal(t, Distance(a, b), Distance(b, a))
	assert.Zero(t, Distance(a, a))
}

func TestNew(t *testing.T) {
	idx, err := New("")
	require.NoError(t, err)
	assert.IsType(t, Linear{}, idx)

	idx, err = New(KindKDTree)
	require.NoError(t, err)
	assert.IsType(t, KDTree{}, idx)

	_, err = New("octree")
	assert.Error(t, err)
}

func BenchmarkNearest(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	records := make([]types.AgentRecord, 1000)
	for i := range records {
		records[i] = record(fmt.Sprintf("agent-%04d", i), types.KindPedestrian,
			rng.Float64()*100, rng.Float64()*100, 0)
	}
	q := Query{Origin: types.Vec3{X: 50, Y: 50}, Limit: 50}

	for name, idx := range indexes {
		b.Run(name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				_, _ = idx.Nearest(records, q)
			}
		})
	}
}
