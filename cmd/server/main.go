package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/skmto/arktwim-sample/internal/aggregator"
	"github.com/skmto/arktwim-sample/internal/api"
	"github.com/skmto/arktwim-sample/internal/config"
	"github.com/skmto/arktwim-sample/internal/metrics"
	"github.com/skmto/arktwim-sample/internal/neighbor"
	"github.com/skmto/arktwim-sample/internal/spatial"
	"github.com/skmto/arktwim-sample/internal/ticker"
	"github.com/skmto/arktwim-sample/internal/websocket"
	"github.com/skmto/arktwim-sample/pkg/middleware"
)

func main() {
	// Configure logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("log_level", cfg.LogLevel).
		Str("spatial_index", cfg.SpatialIndex).
		Dur("stale_after", cfg.StaleAfter).
		Msg("starting neighbor query server")

	index, err := spatial.New(cfg.SpatialIndex)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create spatial index")
	}

	m := metrics.Get()
	svc := neighbor.New(neighbor.Config{StaleAfter: cfg.StaleAfter, Index: index}, m, log.Logger)

	// Create WebSocket hub
	hub := websocket.NewHub(m, log.Logger)
	go hub.Run()

	// Create context for background services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agg := aggregator.NewAggregator(svc, hub, cfg.BroadcastInterval, m, log.Logger)
	go agg.Start(ctx)

	if cfg.StaleAfter > 0 {
		sweeper := ticker.NewTicker(svc, cfg.SweepInterval, log.Logger)
		go sweeper.Start(ctx)
	}

	r := newRouter(cfg, svc, hub, agg, m)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Msgf("server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Stop background services
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func newRouter(cfg *config.Config, svc *neighbor.Service, hub *websocket.Hub, agg *aggregator.Aggregator, m *metrics.Metrics) chi.Router {
	r := chi.NewRouter()

	// Add middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins, log.Logger))

	r.Get("/health", healthHandler)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/api/edge", api.NewEdgeHandler(svc, cfg.DefaultNeighbors, log.Logger).Routes)
	r.Get("/api/data", api.NewDataHandler(agg).GetData)
	r.Get("/ws", websocket.NewHandler(hub, cfg, log.Logger).ServeHTTP)

	admin := api.NewAdminHandler(cfg.AgentSimURL, svc, log.Logger)
	r.Route("/admin", func(r chi.Router) {
		r.Post("/reset", admin.ResetState)
		r.Get("/stats", admin.Stats)
		r.Get("/sim/status", admin.GetSimStatus)
		r.Post("/sim/start", admin.StartSim)
		r.Post("/sim/stop", admin.StopSim)
	})

	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ok","service":"arktwin-neighbors"}`)
}
