package ticker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper drops expired state and reports how much was removed
type Sweeper interface {
	Sweep() (expired, pruned int)
}

// Ticker periodically sweeps stale transforms and idle tracking sessions
type Ticker struct {
	sweeper  Sweeper
	interval time.Duration
	logger   zerolog.Logger
}

// NewTicker creates a new Ticker
func NewTicker(sweeper Sweeper, interval time.Duration, logger zerolog.Logger) *Ticker {
	return &Ticker{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger.With().Str("component", "sweeper").Logger(),
	}
}

// Start sweeps every interval until ctx is done
func (t *Ticker) Start(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info().Dur("interval", t.interval).Msg("sweeper started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info().Msg("sweeper stopped")
			return

		case <-ticker.C:
			expired, pruned := t.sweeper.Sweep()
			if expired == 0 && pruned == 0 {
				continue
			}
			t.logger.Info().
				Int("expired_records", expired).
				Int("pruned_sessions", pruned).
				Msg("swept stale state")
		}
	}
}
