package types

// RegisterRequest is one entry of POST /api/edge/agents
type RegisterRequest struct {
	AgentIDPrefix string    `json:"agentIdPrefix"`
	Kind          AgentKind `json:"kind"`
	Status        Status    `json:"status"`
	Assets        Assets    `json:"assets"`
}

// RegisteredAgent is one entry of the registration response, in request order
type RegisteredAgent struct {
	AgentID AgentID   `json:"agentId"`
	Kind    AgentKind `json:"kind"`
	Status  Status    `json:"status"`
	Assets  Assets    `json:"assets"`
}

// AgentUpdate is the per-agent payload of PUT /api/edge/agents
type AgentUpdate struct {
	Transform Pose   `json:"transform"`
	Status    Status `json:"status"`
}

// UpsertRequest is the body of PUT /api/edge/agents
type UpsertRequest struct {
	Timestamp Timestamp               `json:"timestamp"`
	Agents    map[AgentID]AgentUpdate `json:"agents"`
}

// EntryError reports a rejected entry of a batch
type EntryError struct {
	AgentID AgentID `json:"agentId"`
	Error   string  `json:"error"`
}

// UpsertResponse reports partial success of a batched upsert
type UpsertResponse struct {
	Applied  int          `json:"applied"`
	Rejected []EntryError `json:"rejected,omitempty"`
}

// NeighborQueryRequest is the body of POST /api/edge/neighbors/_query
type NeighborQueryRequest struct {
	RequesterAgentID AgentID     `json:"requesterAgentId"`
	Timestamp        Timestamp   `json:"timestamp"`
	NeighborsNumber  *int        `json:"neighborsNumber,omitempty"`
	ChangeDetection  bool        `json:"changeDetection"`
	Radius           *float64    `json:"radius,omitempty"`
	Kinds            []AgentKind `json:"kinds,omitempty"`
}

// NeighborView is one neighbor in the query response
type NeighborView struct {
	Transform       Pose        `json:"transform"`
	Kind            AgentKind   `json:"kind"`
	Status          Status      `json:"status"`
	Assets          Assets      `json:"assets"`
	NearestDistance float64     `json:"nearestDistance"`
	Change          ChangeState `json:"change"`
}

// NeighborQueryResponse is the body returned by POST /api/edge/neighbors/_query
type NeighborQueryResponse struct {
	Timestamp Timestamp                `json:"timestamp"`
	Neighbors map[AgentID]NeighborView `json:"neighbors"`
	// Order lists neighbor ids by ascending distance; Removed entries come last
	Order []AgentID `json:"order"`
}

// ViewOf converts a NeighborResult for the wire
func ViewOf(n NeighborResult) NeighborView {
	return NeighborView{
		Transform:       n.Pose,
		Kind:            n.Kind,
		Status:          n.Status,
		Assets:          n.Assets,
		NearestDistance: n.Distance,
		Change:          n.Change,
	}
}

// AgentSnapshot is an agent as pushed to visualization clients
type AgentSnapshot struct {
	ID       AgentID   `json:"id"`
	Kind     AgentKind `json:"kind"`
	X        float64   `json:"x"`
	Y        float64   `json:"y"`
	Z        float64   `json:"z"`
	Rotation Vec3      `json:"rotation"`
	Speed    Vec3      `json:"speed"`
	Status   Status    `json:"status"`
	Updated  Timestamp `json:"lastUpdate"`
}

// DataStats summarizes a DataUpdate
type DataStats struct {
	TotalUpdates int64             `json:"totalUpdates"`
	AgentCount   int               `json:"agentCount"`
	KindCounts   map[AgentKind]int `json:"kindCounts"`
}

// DataUpdate is the payload pushed to visualization clients every broadcast tick
type DataUpdate struct {
	Type      string                        `json:"type"` // always "data_update"
	Timestamp Timestamp                     `json:"timestamp"`
	Agents    map[AgentKind][]AgentSnapshot `json:"agents"`
	Stats     DataStats                     `json:"stats"`
}
