package types

import (
	"maps"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// AgentID is the platform-generated identifier of a registered agent
type AgentID string

// AgentKind tags an agent for caller-side filtering ("vehicle", "pedestrian", ...)
type AgentKind string

const (
	KindVehicle    AgentKind = "vehicle"
	KindPedestrian AgentKind = "pedestrian"
)

// Status is an opaque key/value payload carried alongside an agent
type Status map[string]string

// Assets is an opaque payload supplied at registration time
type Assets map[string]any

// Vec3 is a three component vector in meters, degrees, or meters/second
// depending on where it is used
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// R3 converts the vector for use with gonum's spatial routines
func (v Vec3) R3() r3.Vec {
	return r3.Vec{X: v.X, Y: v.Y, Z: v.Z}
}

// Rotation holds Euler angles in degrees, applied Z-Y-X
type Rotation struct {
	EulerAngles Vec3 `json:"EulerAngles"`
}

// Pose is an agent's position, rotation, velocity and scale in a single frame.
// The JSON shape matches the edge transform payload.
type Pose struct {
	ParentAgentID AgentID  `json:"parentAgentId,omitempty"`
	Scale         Vec3     `json:"globalScale"`
	Rotation      Rotation `json:"localRotation"`
	Position      Vec3     `json:"localTranslation"`
	Velocity      Vec3     `json:"localTranslationSpeed"`
}

// UnitScale is the scale applied when a pose omits one
var UnitScale = Vec3{X: 1, Y: 1, Z: 1}

// Normalized fills in the default scale
func (p Pose) Normalized() Pose {
	if p.Scale == (Vec3{}) {
		p.Scale = UnitScale
	}
	return p
}

// Timestamp is a seconds + nanoseconds instant
type Timestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int32 `json:"nanos"`
}

// TimestampFrom converts a time.Time
func TimestampFrom(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// Time converts back to a time.Time
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos))
}

// AgentRecord is the latest known state of a registered agent
type AgentRecord struct {
	AgentID   AgentID   `json:"agentId"`
	Kind      AgentKind `json:"kind"`
	Pose      Pose      `json:"transform"`
	Timestamp Timestamp `json:"timestamp"` // caller supplied
	UpdatedAt time.Time `json:"updatedAt"` // store clock
	Status    Status    `json:"status"`
	Assets    Assets    `json:"assets,omitempty"`
}

// Clone returns a copy that shares no maps with r
func (r AgentRecord) Clone() AgentRecord {
	r.Status = maps.Clone(r.Status)
	r.Assets = maps.Clone(r.Assets)
	return r
}

// ChangeState classifies a neighbor relative to the requester's previous query
type ChangeState string

const (
	ChangeNew       ChangeState = "New"
	ChangeUpdated   ChangeState = "Updated"
	ChangeUnchanged ChangeState = "Unchanged"
	ChangeRemoved   ChangeState = "Removed"
)

// AllChangeStates lists every change state
var AllChangeStates = []ChangeState{ChangeNew, ChangeUpdated, ChangeUnchanged, ChangeRemoved}

// NeighborResult is one entry of a neighbor query answer
type NeighborResult struct {
	AgentID  AgentID
	Kind     AgentKind
	Pose     Pose
	Status   Status
	Assets   Assets
	Distance float64
	Change   ChangeState
}
