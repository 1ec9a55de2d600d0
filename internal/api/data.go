package api

import (
	"net/http"

	"github.com/skmto/arktwim-sample/internal/types"
)

// Publisher builds the current visualization payload
type Publisher interface {
	Current() *types.DataUpdate
}

// DataHandler serves the visualization payload over REST for clients that
// poll instead of holding a websocket open
type DataHandler struct {
	publisher Publisher
}

// NewDataHandler creates a new DataHandler
func NewDataHandler(p Publisher) *DataHandler {
	return &DataHandler{publisher: p}
}

// GetData handles GET /api/data
func (h *DataHandler) GetData(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.publisher.Current())
}
