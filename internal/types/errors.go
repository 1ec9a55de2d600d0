package types

import "errors"

var (
	// ErrUnknownAgentID is returned when an operation references an id the registry does not hold
	ErrUnknownAgentID = errors.New("unknown agent id")

	// ErrUnknownRequester is returned when a neighbor query comes from an agent without a live pose
	ErrUnknownRequester = errors.New("unknown requester")

	// ErrInvalidQueryParameters is returned for negative limits or radii
	ErrInvalidQueryParameters = errors.New("invalid query parameters")
)

// UpsertResult reports the outcome of one entry of a batched upsert
type UpsertResult struct {
	AgentID AgentID
	Err     error
}
