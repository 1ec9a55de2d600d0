package simulator

import (
	"math"
	"math/rand"

	"github.com/skmto/arktwim-sample/internal/types"
)

// Agent is one simulated entity and its motion state
type Agent struct {
	Name string
	Kind types.AgentKind
	ID   types.AgentID

	pos     types.Vec3
	home    types.Vec3
	speed   float64
	heading float64 // radians
	target  *types.Vec3
	roam    float64
}

func newAgent(kind types.AgentKind, cfg AgentConfig) *Agent {
	pos := types.Vec3{X: cfg.Position[0], Y: cfg.Position[1], Z: cfg.Position[2]}
	a := &Agent{
		Name:    cfg.Name,
		Kind:    kind,
		pos:     pos,
		home:    pos,
		speed:   cfg.Speed,
		heading: cfg.Heading * math.Pi / 180,
		roam:    cfg.RoamRadius,
	}
	if cfg.Target != nil {
		a.target = &types.Vec3{X: cfg.Target[0], Y: cfg.Target[1], Z: cfg.Target[2]}
	}
	return a
}

// Position returns the current position
func (a *Agent) Position() types.Vec3 {
	return a.pos
}

// Moving reports whether the agent will change position on the next step
func (a *Agent) Moving() bool {
	if a.speed == 0 {
		return false
	}
	return a.target == nil || a.roam > 0 || *a.target != a.pos
}

// Step advances the agent by dt seconds. Walkers stop on their target
// unless they roam, in which case a new target is drawn around home.
func (a *Agent) Step(dt float64, rng *rand.Rand) {
	if !a.Moving() {
		return
	}

	travel := a.speed * dt
	if a.target == nil {
		a.pos.X += travel * math.Cos(a.heading)
		a.pos.Y += travel * math.Sin(a.heading)
		return
	}

	dx, dy, dz := a.target.X-a.pos.X, a.target.Y-a.pos.Y, a.target.Z-a.pos.Z
	dist := math.Sqrt(dx*dx + dy*dy + dz*dz)
	a.heading = math.Atan2(dy, dx)
	if dist <= travel {
		a.pos = *a.target
		if a.roam > 0 {
			angle := rng.Float64() * 2 * math.Pi
			r := a.roam * math.Sqrt(rng.Float64())
			a.target = &types.Vec3{
				X: a.home.X + r*math.Cos(angle),
				Y: a.home.Y + r*math.Sin(angle),
				Z: a.home.Z,
			}
		}
		return
	}

	scale := travel / dist
	a.pos.X += dx * scale
	a.pos.Y += dy * scale
	a.pos.Z += dz * scale
}

// Pose returns the transform reported to the edge API
func (a *Agent) Pose() types.Pose {
	p := types.Pose{
		Scale:    types.UnitScale,
		Rotation: types.Rotation{EulerAngles: types.Vec3{Z: a.heading * 180 / math.Pi}},
		Position: a.pos,
	}
	if a.Moving() {
		p.Velocity = types.Vec3{
			X: a.speed * math.Cos(a.heading),
			Y: a.speed * math.Sin(a.heading),
		}
	}
	return p
}
