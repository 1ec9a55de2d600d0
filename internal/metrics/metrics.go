package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skmto/arktwim-sample/internal/types"
)

// Query outcomes
const (
	OutcomeOK               = "ok"
	OutcomeUnknownRequester = "unknown_requester"
	OutcomeInvalid          = "invalid"
)

// Metrics holds all application metrics
type Metrics struct {
	registry *prometheus.Registry

	registrations     prometheus.Counter
	deregistrations   prometheus.Counter
	upsertEntries     *prometheus.CounterVec
	queries           *prometheus.CounterVec
	queryDuration     prometheus.Histogram
	neighborsReturned *prometheus.CounterVec
	expiredRecords    prometheus.Counter
	prunedSessions    prometheus.Counter
	trackedAgents     prometheus.Gauge
	wsClients         prometheus.Gauge
	broadcasts        prometheus.Counter
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the process-wide metrics instance
func Get() *Metrics {
	once.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		instance = New(reg)
	})
	return instance
}

// New registers the application metrics on reg
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		registrations: f.NewCounter(prometheus.CounterOpts{
			Name: "arktwin_agent_registrations_total",
			Help: "Agents registered",
		}),
		deregistrations: f.NewCounter(prometheus.CounterOpts{
			Name: "arktwin_agent_deregistrations_total",
			Help: "Agents deregistered",
		}),
		upsertEntries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arktwin_upsert_entries_total",
			Help: "Transform upsert entries by result",
		}, []string{"result"}),
		queries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arktwin_neighbor_queries_total",
			Help: "Neighbor queries by outcome",
		}, []string{"outcome"}),
		queryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "arktwin_neighbor_query_duration_seconds",
			Help:    "Time spent answering neighbor queries",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		neighborsReturned: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arktwin_neighbors_returned_total",
			Help: "Neighbors returned by change state",
		}, []string{"change"}),
		expiredRecords: f.NewCounter(prometheus.CounterOpts{
			Name: "arktwin_expired_records_total",
			Help: "Transform records removed after going stale",
		}),
		prunedSessions: f.NewCounter(prometheus.CounterOpts{
			Name: "arktwin_pruned_sessions_total",
			Help: "Change tracking sessions discarded after idling",
		}),
		trackedAgents: f.NewGauge(prometheus.GaugeOpts{
			Name: "arktwin_tracked_agents",
			Help: "Agents with a stored transform",
		}),
		wsClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "arktwin_websocket_active_connections",
			Help: "Connected visualization clients",
		}),
		broadcasts: f.NewCounter(prometheus.CounterOpts{
			Name: "arktwin_broadcasts_total",
			Help: "Data updates pushed to the websocket hub",
		}),
	}
}

// RecordRegistrations adds n registrations
func (m *Metrics) RecordRegistrations(n int) {
	m.registrations.Add(float64(n))
}

// RecordDeregistration increments the deregistration counter
func (m *Metrics) RecordDeregistration() {
	m.deregistrations.Inc()
}

// RecordUpsert records the outcome of a batched upsert
func (m *Metrics) RecordUpsert(applied, rejected int) {
	m.upsertEntries.WithLabelValues("applied").Add(float64(applied))
	m.upsertEntries.WithLabelValues("rejected").Add(float64(rejected))
}

// RecordQuery records a neighbor query and what it returned
func (m *Metrics) RecordQuery(outcome string, duration time.Duration, results []types.NeighborResult) {
	m.queries.WithLabelValues(outcome).Inc()
	m.queryDuration.Observe(duration.Seconds())
	for _, r := range results {
		m.neighborsReturned.WithLabelValues(string(r.Change)).Inc()
	}
}

// RecordSweep records records and sessions removed by the sweeper
func (m *Metrics) RecordSweep(expired, pruned int) {
	m.expiredRecords.Add(float64(expired))
	m.prunedSessions.Add(float64(pruned))
}

// SetTrackedAgents sets the stored transform gauge
func (m *Metrics) SetTrackedAgents(n int) {
	m.trackedAgents.Set(float64(n))
}

// RecordWebSocketConnect increments the active connection gauge
func (m *Metrics) RecordWebSocketConnect() {
	m.wsClients.Inc()
}

// RecordWebSocketDisconnect decrements the active connection gauge
func (m *Metrics) RecordWebSocketDisconnect() {
	m.wsClients.Dec()
}

// RecordBroadcast increments the broadcast counter
func (m *Metrics) RecordBroadcast() {
	m.broadcasts.Inc()
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
