package aggregator

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/skmto/arktwim-sample/internal/metrics"
	"github.com/skmto/arktwim-sample/internal/types"
)

// Source provides the records to publish
type Source interface {
	Snapshot() []types.AgentRecord
	Now() types.Timestamp
}

// Broadcaster delivers updates to connected clients
type Broadcaster interface {
	Broadcast(update *types.DataUpdate)
	ClientCount() int
}

// Aggregator periodically turns the transform store into data updates
type Aggregator struct {
	source   Source
	hub      Broadcaster
	interval time.Duration
	sent     atomic.Int64
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewAggregator creates a new aggregator
func NewAggregator(source Source, hub Broadcaster, interval time.Duration, m *metrics.Metrics, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		source:   source,
		hub:      hub,
		interval: interval,
		metrics:  m,
		logger:   logger.With().Str("component", "aggregator").Logger(),
	}
}

// Start broadcasts an update every interval until ctx is done
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info().Dur("interval", a.interval).Msg("aggregator started")

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("aggregator stopped")
			return

		case <-ticker.C:
			if a.hub.ClientCount() == 0 {
				continue
			}

			a.sent.Add(1)
			update := a.Current()
			a.hub.Broadcast(update)
			a.metrics.RecordBroadcast()

			a.logger.Debug().
				Int("agents", update.Stats.AgentCount).
				Int("clients", a.hub.ClientCount()).
				Msg("data update broadcasted")
		}
	}
}

// Current builds an update from the present store contents
func (a *Aggregator) Current() *types.DataUpdate {
	return Build(a.source.Now(), a.source.Snapshot(), a.sent.Load())
}

// Build groups records by kind. Agents within a kind are ordered by id.
func Build(ts types.Timestamp, records []types.AgentRecord, totalUpdates int64) *types.DataUpdate {
	update := &types.DataUpdate{
		Type:      "data_update",
		Timestamp: ts,
		Agents:    make(map[types.AgentKind][]types.AgentSnapshot),
		Stats: types.DataStats{
			TotalUpdates: totalUpdates,
			AgentCount:   len(records),
			KindCounts:   make(map[types.AgentKind]int),
		},
	}

	for _, rec := range records {
		update.Agents[rec.Kind] = append(update.Agents[rec.Kind], types.AgentSnapshot{
			ID:       rec.AgentID,
			Kind:     rec.Kind,
			X:        rec.Pose.Position.X,
			Y:        rec.Pose.Position.Y,
			Z:        rec.Pose.Position.Z,
			Rotation: rec.Pose.Rotation.EulerAngles,
			Speed:    rec.Pose.Velocity,
			Status:   rec.Status,
			Updated:  rec.Timestamp,
		})
		update.Stats.KindCounts[rec.Kind]++
	}

	for _, agents := range update.Agents {
		sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	}
	return update
}
