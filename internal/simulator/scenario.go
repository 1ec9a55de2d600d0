package simulator

import (
	"fmt"
	"math/rand"

	"github.com/BurntSushi/toml"
	"github.com/skmto/arktwim-sample/internal/types"
)

// Scenario describes what the simulator registers and how it drives it
type Scenario struct {
	// Rate is the number of update cycles per second
	Rate float64 `toml:"rate"`

	// Neighbors is the neighborsNumber sent with every query
	Neighbors int `toml:"neighbors"`

	ChangeDetection bool `toml:"change_detection"`

	Fleets []FleetConfig `toml:"fleet"`
}

// FleetConfig is a group of agents of one kind registered in a single batch
type FleetConfig struct {
	Kind   types.AgentKind `toml:"kind"`
	Agents []AgentConfig   `toml:"agent"`
}

// AgentConfig is the initial state of one simulated agent
type AgentConfig struct {
	// Name is sent as the registration prefix
	Name     string     `toml:"name"`
	Position [3]float64 `toml:"position"`

	// Speed in m/s; zero keeps the agent parked
	Speed float64 `toml:"speed"`

	// Heading in degrees counter-clockwise from +x, used without a target
	Heading float64 `toml:"heading"`

	// Target makes the agent walk to a point instead of following Heading
	Target *[3]float64 `toml:"target"`

	// RoamRadius picks a fresh target around the start position on arrival
	RoamRadius float64 `toml:"roam_radius"`
}

// DefaultScenario reproduces the sample layout: three parked vehicles and
// four pedestrians standing next to them
func DefaultScenario() Scenario {
	return Scenario{
		Rate:            10,
		Neighbors:       50,
		ChangeDetection: true,
		Fleets: []FleetConfig{
			{
				Kind: types.KindVehicle,
				Agents: []AgentConfig{
					{Name: "vehicle-001", Position: [3]float64{0, 0, 0.5}},
					{Name: "vehicle-002", Position: [3]float64{5, 0, 0.5}},
					{Name: "vehicle-003", Position: [3]float64{0, 5, 0.5}},
				},
			},
			{
				Kind: types.KindPedestrian,
				Agents: []AgentConfig{
					{Name: "pedestrian-001", Position: [3]float64{0, 0, 0}, Target: &[3]float64{3, 3, 0}},
					{Name: "pedestrian-002", Position: [3]float64{-2, 2, 0}, Target: &[3]float64{-2, 2, 0}},
					{Name: "pedestrian-003", Position: [3]float64{2, -2, 0}, Target: &[3]float64{2, -2, 0}},
					{Name: "pedestrian-004", Position: [3]float64{7, 2, 0}, Target: &[3]float64{7, 2, 0}},
				},
			},
		},
	}
}

// LoadScenario decodes a TOML scenario file. Omitted rate and neighbors
// fall back to the defaults.
func LoadScenario(path string) (Scenario, error) {
	defaults := DefaultScenario()
	sc := Scenario{Rate: defaults.Rate, Neighbors: defaults.Neighbors, ChangeDetection: true}

	md, err := toml.DecodeFile(path, &sc)
	if err != nil {
		return Scenario{}, fmt.Errorf("decode scenario %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Scenario{}, fmt.Errorf("scenario %s: unknown keys %v", path, undecoded)
	}
	return sc, sc.Validate()
}

// Validate checks rate, neighbor count and fleet definitions
func (sc Scenario) Validate() error {
	if sc.Rate <= 0 {
		return fmt.Errorf("rate must be positive, got %v", sc.Rate)
	}
	if sc.Neighbors < 0 {
		return fmt.Errorf("neighbors must not be negative, got %d", sc.Neighbors)
	}
	for i, f := range sc.Fleets {
		if f.Kind == "" {
			return fmt.Errorf("fleet %d: kind is required", i)
		}
		for j, a := range f.Agents {
			if a.Speed < 0 {
				return fmt.Errorf("fleet %d agent %d: negative speed", i, j)
			}
			if a.RoamRadius < 0 {
				return fmt.Errorf("fleet %d agent %d: negative roam_radius", i, j)
			}
		}
	}
	return nil
}

// AgentCount returns the number of agents across all fleets
func (sc Scenario) AgentCount() int {
	n := 0
	for _, f := range sc.Fleets {
		n += len(f.Agents)
	}
	return n
}

// Generate appends count randomly placed moving agents of kind to sc. Agents
// start inside a square of side area centered on the origin and roam
// around their start position.
func (sc *Scenario) Generate(rng *rand.Rand, kind types.AgentKind, count int, area float64) {
	if count <= 0 {
		return
	}

	speed, z := 1.4, 0.0
	if kind == types.KindVehicle {
		speed, z = 8.0, 0.5
	}

	fleet := FleetConfig{Kind: kind, Agents: make([]AgentConfig, count)}
	for i := range fleet.Agents {
		fleet.Agents[i] = AgentConfig{
			Name:       fmt.Sprintf("%s-gen-%04d", kind, i+1),
			Position:   [3]float64{(rng.Float64() - 0.5) * area, (rng.Float64() - 0.5) * area, z},
			Speed:      speed * (0.5 + rng.Float64()),
			Heading:    rng.Float64() * 360,
			RoamRadius: area / 4,
		}
	}
	sc.Fleets = append(sc.Fleets, fleet)
}
