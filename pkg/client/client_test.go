package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/skmto/arktwim-sample/internal/api"
	"github.com/skmto/arktwim-sample/internal/metrics"
	"github.com/skmto/arktwim-sample/internal/neighbor"
	"github.com/skmto/arktwim-sample/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := neighbor.New(neighbor.Config{}, metrics.New(prometheus.NewRegistry()), zerolog.Nop())
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Route("/api/edge", api.NewEdgeHandler(svc, 50, zerolog.Nop()).Routes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewClient(newTestServer(t).URL + "/")

	require.NoError(t, c.Health(ctx))

	agents, err := c.Register(ctx, []types.RegisterRequest{
		{AgentIDPrefix: "vehicle-001", Kind: types.KindVehicle},
		{AgentIDPrefix: "pedestrian-001", Kind: types.KindPedestrian},
	})
	require.NoError(t, err)
	require.Len(t, agents, 2)
	car, walker := agents[0].AgentID, agents[1].AgentID

	resp, err := c.PutTransforms(ctx, types.UpsertRequest{
		Agents: map[types.AgentID]types.AgentUpdate{
			car:    {Transform: types.Pose{Position: types.Vec3{Z: 0.5}}},
			walker: {Transform: types.Pose{Position: types.Vec3{X: 2, Y: -2}}},
			"nope": {},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Applied)
	require.Len(t, resp.Rejected, 1)

	five := 5
	neighbors, err := c.QueryNeighbors(ctx, types.NeighborQueryRequest{
		RequesterAgentID: car,
		NeighborsNumber:  &five,
		ChangeDetection:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, []types.AgentID{walker}, neighbors.Order)
	assert.Equal(t, types.ChangeNew, neighbors.Neighbors[walker].Change)

	require.NoError(t, c.Deregister(ctx, walker))

	err = c.Deregister(ctx, walker)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
}

func TestClientDeregisterSlashPrefix(t *testing.T) {
	ctx := context.Background()
	c := NewClient(newTestServer(t).URL)

	agents, err := c.Register(ctx, []types.RegisterRequest{{AgentIDPrefix: "fleet/vehicle"}})
	require.NoError(t, err)

	require.NoError(t, c.Deregister(ctx, agents[0].AgentID))

	var se *StatusError
	err = c.Deregister(ctx, agents[0].AgentID)
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
}

func TestClientUnknownRequester(t *testing.T) {
	c := NewClient(newTestServer(t).URL)

	_, err := c.QueryNeighbors(context.Background(), types.NeighborQueryRequest{RequesterAgentID: "ghost"})

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
}
