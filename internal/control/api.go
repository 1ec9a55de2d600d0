// Package control exposes the HTTP interface used to start and stop the simulator
package control

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/skmto/arktwim-sample/internal/simulator"
)

// Status is the simulation state reported by GET /status
type Status struct {
	Running   bool       `json:"running"`
	Agents    int        `json:"agents"`
	Rate      float64    `json:"rate"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

// API provides HTTP control interface for the simulation
type API struct {
	status    Status
	mu        sync.RWMutex
	logger    zerolog.Logger
	startFunc func(rate float64) error
	stopFunc  func() error
	statsFunc func() simulator.Stats
}

// NewAPI creates a new control API for a scenario of agents updated at rate
func NewAPI(agents int, rate float64, logger zerolog.Logger) *API {
	return &API{
		status: Status{Agents: agents, Rate: rate},
		logger: logger.With().Str("component", "control").Logger(),
	}
}

// SetHandlers sets the control functions
func (api *API) SetHandlers(start func(float64) error, stop func() error, stats func() simulator.Stats) {
	api.startFunc = start
	api.stopFunc = stop
	api.statsFunc = stats
}

// MarkStopped records that the simulation ended on its own
func (api *API) MarkStopped() {
	api.mu.Lock()
	defer api.mu.Unlock()
	api.status.Running = false
	api.status.StartedAt = nil
}

// SetupRoutes configures HTTP routes
func (api *API) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/health", api.healthHandler).Methods("GET")
	router.HandleFunc("/status", api.statusHandler).Methods("GET")
	router.HandleFunc("/start", api.startHandler).Methods("POST")
	router.HandleFunc("/stop", api.stopHandler).Methods("POST")
	router.HandleFunc("/stats", api.statsHandler).Methods("GET")
}

func (api *API) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (api *API) statusHandler(w http.ResponseWriter, r *http.Request) {
	api.mu.RLock()
	status := api.status
	api.mu.RUnlock()

	writeJSON(w, status)
}

// startHandler starts the simulation. The body is optional; a positive
// rate overrides the scenario rate.
func (api *API) startHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rate float64 `json:"rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Rate < 0 {
		http.Error(w, "rate must not be negative", http.StatusBadRequest)
		return
	}

	api.mu.Lock()
	if api.status.Running {
		api.mu.Unlock()
		http.Error(w, "simulation already running", http.StatusConflict)
		return
	}
	rate := api.status.Rate
	if req.Rate > 0 {
		rate = req.Rate
	}
	api.mu.Unlock()

	if err := api.startFunc(rate); err != nil {
		api.logger.Error().Err(err).Msg("failed to start simulation")
		http.Error(w, "failed to start simulation", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	api.mu.Lock()
	api.status.Running = true
	api.status.Rate = rate
	api.status.StartedAt = &now
	api.mu.Unlock()

	writeJSON(w, map[string]any{
		"message": "simulation started",
		"rate":    rate,
	})
}

func (api *API) stopHandler(w http.ResponseWriter, r *http.Request) {
	api.mu.RLock()
	running := api.status.Running
	api.mu.RUnlock()
	if !running {
		http.Error(w, "simulation not running", http.StatusConflict)
		return
	}

	if err := api.stopFunc(); err != nil {
		api.logger.Error().Err(err).Msg("failed to stop simulation")
		http.Error(w, "failed to stop simulation", http.StatusInternalServerError)
		return
	}
	api.MarkStopped()

	writeJSON(w, map[string]string{
		"message": "simulation stopped",
	})
}

func (api *API) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, api.statsFunc())
}

// Start starts the HTTP server
func (api *API) Start(ctx context.Context, addr string) error {
	router := mux.NewRouter()
	api.SetupRoutes(router)

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		api.logger.Info().Msg("shutting down control API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	api.logger.Info().Str("addr", addr).Msg("control API started")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
