package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/skmto/arktwim-sample/internal/neighbor"
	"github.com/skmto/arktwim-sample/internal/types"
)

// EdgeHandler exposes the neighbor service under /api/edge
type EdgeHandler struct {
	svc              *neighbor.Service
	defaultNeighbors int
	logger           zerolog.Logger
}

// NewEdgeHandler creates a new EdgeHandler. defaultNeighbors applies to
// queries that omit neighborsNumber.
func NewEdgeHandler(svc *neighbor.Service, defaultNeighbors int, logger zerolog.Logger) *EdgeHandler {
	return &EdgeHandler{
		svc:              svc,
		defaultNeighbors: defaultNeighbors,
		logger:           logger.With().Str("component", "edge_api").Logger(),
	}
}

// Routes mounts the edge endpoints on r
func (h *EdgeHandler) Routes(r chi.Router) {
	r.Post("/agents", h.RegisterAgents)
	r.Put("/agents", h.UpsertAgents)
	r.Get("/agents", h.ListAgents)
	r.Get("/agents/{agentId}", h.GetAgent)
	r.Delete("/agents/{agentId}", h.DeleteAgent)
	r.Post("/neighbors/_query", h.QueryNeighbors)
}

// RegisterAgents handles POST /api/edge/agents
func (h *EdgeHandler) RegisterAgents(w http.ResponseWriter, r *http.Request) {
	var reqs []types.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ids := h.svc.RegisterBatch(reqs)

	resp := make([]types.RegisteredAgent, len(ids))
	for i, id := range ids {
		resp[i] = types.RegisteredAgent{
			AgentID: id,
			Kind:    reqs[i].Kind,
			Status:  reqs[i].Status,
			Assets:  reqs[i].Assets,
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

// UpsertAgents handles PUT /api/edge/agents. Unknown ids are reported per
// entry with 207 while the rest of the batch is applied.
func (h *EdgeHandler) UpsertAgents(w http.ResponseWriter, r *http.Request) {
	var req types.UpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	var resp types.UpsertResponse
	for _, res := range h.svc.Upsert(req.Timestamp, req.Agents) {
		if res.Err != nil {
			resp.Rejected = append(resp.Rejected, types.EntryError{AgentID: res.AgentID, Error: res.Err.Error()})
			continue
		}
		resp.Applied++
	}

	status := http.StatusOK
	if len(resp.Rejected) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, resp)
}

// ListAgents handles GET /api/edge/agents
func (h *EdgeHandler) ListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Snapshot())
}

// GetAgent handles GET /api/edge/agents/{agentId}
func (h *EdgeHandler) GetAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := agentIDParam(w, r)
	if !ok {
		return
	}

	rec, ok := h.svc.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// DeleteAgent handles DELETE /api/edge/agents/{agentId}
func (h *EdgeHandler) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := agentIDParam(w, r)
	if !ok {
		return
	}

	if err := h.svc.Deregister(id); err != nil {
		if errors.Is(err, types.ErrUnknownAgentID) {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		h.logger.Error().Err(err).Str("agent_id", string(id)).Msg("deregistration failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// agentIDParam decodes {agentId}. chi matches on the escaped path when the
// request has one, so ids holding "/" arrive still percent-encoded.
func agentIDParam(w http.ResponseWriter, r *http.Request) (types.AgentID, bool) {
	raw := chi.URLParam(r, "agentId")
	if r.URL.RawPath == "" {
		return types.AgentID(raw), true
	}
	id, err := url.PathUnescape(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return "", false
	}
	return types.AgentID(id), true
}

// QueryNeighbors handles POST /api/edge/neighbors/_query
func (h *EdgeHandler) QueryNeighbors(w http.ResponseWriter, r *http.Request) {
	var req types.NeighborQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	limit := h.defaultNeighbors
	if req.NeighborsNumber != nil {
		limit = *req.NeighborsNumber
	}

	ts, results, err := h.svc.QueryNeighbors(neighbor.Query{
		Requester:       req.RequesterAgentID,
		Timestamp:       req.Timestamp,
		Limit:           limit,
		Radius:          req.Radius,
		ChangeDetection: req.ChangeDetection,
		Kinds:           req.Kinds,
	})
	switch {
	case errors.Is(err, types.ErrUnknownRequester):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, types.ErrInvalidQueryParameters):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error().Err(err).Msg("neighbor query failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := types.NeighborQueryResponse{
		Timestamp: ts,
		Neighbors: make(map[types.AgentID]types.NeighborView, len(results)),
		Order:     make([]types.AgentID, len(results)),
	}
	for i, n := range results {
		resp.Neighbors[n.AgentID] = types.ViewOf(n)
		resp.Order[i] = n.AgentID
	}
	writeJSON(w, http.StatusOK, resp)
}
