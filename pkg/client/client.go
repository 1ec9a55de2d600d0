// Package client talks to the edge REST API of the neighbor query server
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/skmto/arktwim-sample/internal/types"
)

// Client provides interface to the edge API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new edge client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// StatusError is returned when the server answers with an unexpected status
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.Code, e.Body)
}

// Register registers agents and returns them in request order
func (c *Client) Register(ctx context.Context, reqs []types.RegisterRequest) ([]types.RegisteredAgent, error) {
	var agents []types.RegisteredAgent
	if err := c.do(ctx, http.MethodPost, "/api/edge/agents", reqs, &agents, http.StatusCreated); err != nil {
		return nil, err
	}
	if len(agents) != len(reqs) {
		return nil, fmt.Errorf("registered %d agents, requested %d", len(agents), len(reqs))
	}
	return agents, nil
}

// PutTransforms upserts poses. Entries rejected by the server are returned
// in the response without an error.
func (c *Client) PutTransforms(ctx context.Context, req types.UpsertRequest) (*types.UpsertResponse, error) {
	var resp types.UpsertResponse
	if err := c.do(ctx, http.MethodPut, "/api/edge/agents", req, &resp, http.StatusOK, http.StatusMultiStatus); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueryNeighbors runs a neighbor query
func (c *Client) QueryNeighbors(ctx context.Context, req types.NeighborQueryRequest) (*types.NeighborQueryResponse, error) {
	var resp types.NeighborQueryResponse
	if err := c.do(ctx, http.MethodPost, "/api/edge/neighbors/_query", req, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Deregister removes an agent
func (c *Client) Deregister(ctx context.Context, id types.AgentID) error {
	return c.do(ctx, http.MethodDelete, "/api/edge/agents/"+url.PathEscape(string(id)), nil, nil, http.StatusNoContent)
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, http.StatusOK)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, accept ...int) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	ok := false
	for _, code := range accept {
		ok = ok || resp.StatusCode == code
	}
	if !ok {
		b, _ := io.ReadAll(resp.Body)
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
