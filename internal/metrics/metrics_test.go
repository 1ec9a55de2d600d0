package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/skmto/arktwim-sample/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRecordedValuesAreExposed(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordRegistrations(3)
	m.RecordDeregistration()
	m.RecordUpsert(5, 2)
	m.RecordQuery(OutcomeOK, time.Millisecond, []types.NeighborResult{
		{Change: types.ChangeNew},
		{Change: types.ChangeNew},
		{Change: types.ChangeRemoved},
	})
	m.RecordQuery(OutcomeUnknownRequester, time.Millisecond, nil)
	m.RecordSweep(4, 1)
	m.SetTrackedAgents(7)
	m.RecordWebSocketConnect()
	m.RecordWebSocketConnect()
	m.RecordWebSocketDisconnect()
	m.RecordBroadcast()

	out := scrape(t, m)

	for _, line := range []string{
		"arktwin_agent_registrations_total 3",
		"arktwin_agent_deregistrations_total 1",
		`arktwin_upsert_entries_total{result="applied"} 5`,
		`arktwin_upsert_entries_total{result="rejected"} 2`,
		`arktwin_neighbor_queries_total{outcome="ok"} 1`,
		`arktwin_neighbor_queries_total{outcome="unknown_requester"} 1`,
		`arktwin_neighbors_returned_total{change="New"} 2`,
		`arktwin_neighbors_returned_total{change="Removed"} 1`,
		"arktwin_neighbor_query_duration_seconds_count 2",
		"arktwin_expired_records_total 4",
		"arktwin_pruned_sessions_total 1",
		"arktwin_tracked_agents 7",
		"arktwin_websocket_active_connections 1",
		"arktwin_broadcasts_total 1",
	} {
		assert.Contains(t, out, line)
	}
}

func TestGetReturnsSingleton(t *testing.T) {
	a, b := Get(), Get()
	assert.Same(t, a, b)
	assert.Contains(t, scrape(t, a), "go_goroutines")
}
