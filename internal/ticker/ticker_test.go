package ticker

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type countingSweeper struct {
	calls atomic.Int32
}

func (s *countingSweeper) Sweep() (int, int) {
	if s.calls.Add(1) == 1 {
		return 2, 1
	}
	return 0, 0
}

func TestNewTicker(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	sweeper := &countingSweeper{}
	ticker := NewTicker(sweeper, 1*time.Second, logger)

	if ticker == nil {
		t.Fatal("expected ticker to be created")
	}

	if ticker.sweeper != sweeper {
		t.Error("ticker sweeper not set correctly")
	}

	if ticker.interval != 1*time.Second {
		t.Errorf("expected interval 1s, got %v", ticker.interval)
	}
}

func TestTickerStart(t *testing.T) {
	logger := zerolog.New(&bytes.Buffer{})
	ticker := NewTicker(&countingSweeper{}, 100*time.Millisecond, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan bool)
	go func() {
		ticker.Start(ctx)
		done <- true
	}()

	<-ctx.Done()

	select {
	case <-done:
		// Ticker stopped as expected
	case <-time.After(1 * time.Second):
		t.Error("ticker did not stop after context cancel")
	}
}

func TestTickerSweeps(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	sweeper := &countingSweeper{}
	ticker := NewTicker(sweeper, 20*time.Millisecond, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	ticker.Start(ctx)

	if sweeper.calls.Load() < 2 {
		t.Errorf("expected several sweeps, got %d", sweeper.calls.Load())
	}

	// Only the sweep that removed something is logged
	if n := strings.Count(buf.String(), "swept stale state"); n != 1 {
		t.Errorf("expected 1 sweep log line, got %d", n)
	}
}
