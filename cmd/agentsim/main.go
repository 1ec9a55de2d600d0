package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/skmto/arktwim-sample/internal/control"
	"github.com/skmto/arktwim-sample/internal/simulator"
	"github.com/skmto/arktwim-sample/internal/types"
	"github.com/skmto/arktwim-sample/pkg/client"
)

// generatedArea is the side length in meters of the square generated agents start in
const generatedArea = 200.0

type App struct {
	scenario   simulator.Scenario
	client     *client.Client
	seed       int64
	controlAPI *control.API
	logger     zerolog.Logger

	mu     sync.Mutex
	sim    *simulator.Simulator
	cancel context.CancelFunc
	done   chan struct{}
}

func main() {
	// CLI flags
	var (
		controlPort  = flag.String("control-port", "8081", "Control API port")
		edgeURL      = flag.String("edge-url", "http://localhost:2237", "Neighbor query server URL")
		scenarioPath = flag.String("scenario", "", "TOML scenario file (default: built-in sample layout)")
		rate         = flag.Float64("rate", 0, "Update cycles per second (overrides the scenario)")
		vehicles     = flag.Int("vehicles", 0, "Number of additional random vehicles")
		pedestrians  = flag.Int("pedestrians", 0, "Number of additional random pedestrians")
		seed         = flag.Int64("seed", time.Now().UnixNano(), "Random seed")
		autoStart    = flag.Bool("auto-start", false, "Automatically start simulation")
		logLevel     = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	// Setup logger
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Str("service", "agentsim").
		Logger()

	logger.Info().Msg("starting AgentSim service")

	sc := simulator.DefaultScenario()
	if *scenarioPath != "" {
		sc, err = simulator.LoadScenario(*scenarioPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load scenario")
		}
	}
	if *rate > 0 {
		sc.Rate = *rate
	}
	rng := rand.New(rand.NewSource(*seed))
	sc.Generate(rng, types.KindVehicle, *vehicles, generatedArea)
	sc.Generate(rng, types.KindPedestrian, *pedestrians, generatedArea)
	if err := sc.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid scenario")
	}
	logger.Info().
		Int("agents", sc.AgentCount()).
		Float64("rate", sc.Rate).
		Int64("seed", *seed).
		Msg("scenario loaded")

	app := &App{
		scenario: sc,
		client:   client.NewClient(*edgeURL),
		seed:     *seed,
		logger:   logger,
	}

	app.controlAPI = control.NewAPI(sc.AgentCount(), sc.Rate, logger)
	app.controlAPI.SetHandlers(
		app.startSimulation,
		app.stopSimulation,
		app.getStats,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start control API
	go func() {
		addr := fmt.Sprintf(":%s", *controlPort)
		if err := app.controlAPI.Start(ctx, addr); err != nil {
			logger.Error().Err(err).Msg("control API stopped")
		}
	}()

	if *autoStart {
		logger.Info().Msg("auto-starting simulation")
		if err := app.startSimulation(sc.Rate); err != nil {
			logger.Error().Err(err).Msg("failed to auto-start simulation")
		}
	}

	logger.Info().
		Str("control_api", fmt.Sprintf("http://localhost:%s", *controlPort)).
		Str("edge_url", *edgeURL).
		Msg("AgentSim ready")

	printUsage(*controlPort)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down AgentSim")
	if err := app.stopSimulation(); err != nil {
		logger.Error().Err(err).Msg("failed to stop simulation")
	}
}

func (app *App) startSimulation(rate float64) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.cancel != nil {
		return errors.New("simulation already running")
	}

	sc := app.scenario
	sc.Rate = rate
	sim := simulator.NewSimulator(sc, app.client, app.seed, app.logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	app.sim, app.cancel, app.done = sim, cancel, done

	go func() {
		defer close(done)
		if err := sim.Run(ctx); err != nil {
			app.logger.Error().Err(err).Msg("simulation failed")
		}

		app.mu.Lock()
		if app.done == done {
			app.cancel, app.done = nil, nil
			app.controlAPI.MarkStopped()
		}
		app.mu.Unlock()
		cancel()
	}()

	app.logger.Info().Float64("rate", rate).Msg("simulation starting")
	return nil
}

// stopSimulation cancels the running simulation and waits until its agents
// are deregistered
func (app *App) stopSimulation() error {
	app.mu.Lock()
	cancel, done := app.cancel, app.done
	app.cancel, app.done = nil, nil
	app.mu.Unlock()

	if cancel == nil {
		return nil
	}

	app.logger.Info().Msg("stopping simulation")
	cancel()

	select {
	case <-done:
		return nil
	case <-time.After(10 * time.Second):
		return errors.New("timed out waiting for simulation to stop")
	}
}

func (app *App) getStats() simulator.Stats {
	app.mu.Lock()
	sim := app.sim
	app.mu.Unlock()

	if sim == nil {
		return simulator.Stats{}
	}
	return sim.Stats()
}

func printUsage(port string) {
	fmt.Println()
	fmt.Println("╔════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                    AgentSim Control API                        ║")
	fmt.Println("╚════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Println("Available endpoints:")
	fmt.Printf("  GET  http://localhost:%s/health  - Health check\n", port)
	fmt.Printf("  GET  http://localhost:%s/status  - Simulation status\n", port)
	fmt.Printf("  POST http://localhost:%s/start   - Start simulation\n", port)
	fmt.Printf("  POST http://localhost:%s/stop    - Stop simulation\n", port)
	fmt.Printf("  GET  http://localhost:%s/stats   - Neighbor and change statistics\n", port)
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  curl http://localhost:%s/status\n", port)
	fmt.Printf("  curl -X POST http://localhost:%s/start -d '{\"rate\":20}'\n", port)
	fmt.Printf("  curl -X POST http://localhost:%s/stop\n", port)
	fmt.Println()
}
