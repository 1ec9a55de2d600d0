package api

import (
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/skmto/arktwim-sample/internal/neighbor"
)

// AdminHandler proxies simulator control requests and resets service state
type AdminHandler struct {
	simURL string
	svc    *neighbor.Service
	logger zerolog.Logger
	client *http.Client
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(simURL string, svc *neighbor.Service, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		simURL: simURL,
		svc:    svc,
		logger: logger.With().Str("component", "admin").Logger(),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// proxyToSim forwards a request to the simulator and copies the response back
func (h *AdminHandler) proxyToSim(w http.ResponseWriter, r *http.Request, method, path string) {
	url := h.simURL + path

	var body io.Reader
	if r.Body != nil && (method == http.MethodPost || method == http.MethodPut) {
		body = r.Body
	}

	req, err := http.NewRequestWithContext(r.Context(), method, url, body)
	if err != nil {
		h.logger.Error().Err(err).Str("path", path).Msg("failed to create proxy request")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Error().Err(err).Str("url", url).Msg("failed to reach agentsim")
		writeError(w, http.StatusBadGateway, "agentsim unavailable")
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// GetSimStatus proxies GET /status to the simulator
func (h *AdminHandler) GetSimStatus(w http.ResponseWriter, r *http.Request) {
	h.proxyToSim(w, r, http.MethodGet, "/status")
}

// StartSim proxies POST /start to the simulator
func (h *AdminHandler) StartSim(w http.ResponseWriter, r *http.Request) {
	h.proxyToSim(w, r, http.MethodPost, "/start")
}

// StopSim proxies POST /stop to the simulator
func (h *AdminHandler) StopSim(w http.ResponseWriter, r *http.Request) {
	h.proxyToSim(w, r, http.MethodPost, "/stop")
}

// ResetState clears every registration, transform and tracking session
func (h *AdminHandler) ResetState(w http.ResponseWriter, r *http.Request) {
	agents, sessions := h.svc.Reset()

	h.logger.Info().
		Int("agents", agents).
		Int("sessions", sessions).
		Msg("service state reset via admin")

	writeJSON(w, http.StatusOK, map[string]any{
		"message":         "state reset",
		"agentsCleared":   agents,
		"sessionsCleared": sessions,
	})
}

// Stats returns service counters
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats())
}
