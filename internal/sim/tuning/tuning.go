package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz   int `yaml:"tick_rate_hz"`
	SpawnDelayMs int `yaml:"spawn_delay_ms"`

	Terrain   TerrainTuning   `yaml:"terrain"`
	Placement PlacementTuning `yaml:"placement"`
	Slasher   SlasherTuning   `yaml:"slasher"`
	Interact  InteractTuning  `yaml:"interact"`
	Session   SessionTuning   `yaml:"session"`
}

type TerrainTuning struct {
	GridW       int     `yaml:"grid_w"`
	GridH       int     `yaml:"grid_h"`
	Scale       float64 `yaml:"scale"`
	HeightScale float64 `yaml:"height_scale"`
	Octaves     int     `yaml:"octaves"`
	Frequency   float64 `yaml:"frequency"`
	SpawnMargin float64 `yaml:"spawn_margin"`
}

type PlacementTuning struct {
	Trees      SpacedPass `yaml:"trees"`
	Generators SpacedPass `yaml:"generators"`
	Ruins      SpacedPass `yaml:"ruins"`
	Keys       AroundPass `yaml:"keys"`
}

// SpacedPass is one greedy placement pass over the shared candidate list.
type SpacedPass struct {
	Category   string     `yaml:"category"`
	MaxCount   int        `yaml:"max_count"`
	MinSpacing float64    `yaml:"min_spacing"`
	ScaleRange [2]float64 `yaml:"scale_range"`
	Collider   [3]float64 `yaml:"collider"` // box half-extents; zero means no collider
}

// AroundPass places one object near each anchor produced by an earlier pass.
type AroundPass struct {
	Category        string  `yaml:"category"`
	MaxCount        int     `yaml:"max_count"`
	Spacing         float64 `yaml:"spacing"`
	ExclusionRadius float64 `yaml:"exclusion_radius"`
	MaxAttempts     int     `yaml:"max_attempts"`
}

type SlasherTuning struct {
	Spawn          [3]float64 `yaml:"spawn"`
	WanderInterval float64    `yaml:"wander_interval_s"`
	WanderSpeed    float64    `yaml:"wander_speed"`
	ChaseSpeed     float64    `yaml:"chase_speed"`
	AggroDistance  float64    `yaml:"aggro_distance"`
	Hysteresis     float64    `yaml:"hysteresis"`
	Gravity        float64    `yaml:"gravity"`
	ProbeHeight    float64    `yaml:"probe_height"`
	ProbeDistance  float64    `yaml:"probe_distance"`
}

type InteractTuning struct {
	Radius float64 `yaml:"radius"`
}

type SessionTuning struct {
	PlayerSpawn     [3]float64 `yaml:"player_spawn"`
	RecoverPos      [3]float64 `yaml:"recover_pos"`
	FallFloor       float64    `yaml:"fall_floor"`
	CaptureDistance float64    `yaml:"capture_distance"`
	EscapePos       [3]float64 `yaml:"escape_pos"`
	EscapeRadius    float64    `yaml:"escape_radius"`
	ViewFOVDeg      float64    `yaml:"view_fov_deg"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		TickRateHz:      30,
		SpawnDelayMs:    1500,
		Terrain: TerrainTuning{
			GridW:       50,
			GridH:       50,
			Scale:       8,
			HeightScale: 3,
			Octaves:     3,
			Frequency:   0.1,
			SpawnMargin: 10,
		},
		Placement: PlacementTuning{
			Trees: SpacedPass{
				Category:   "trees",
				MaxCount:   500,
				MinSpacing: 3,
				ScaleRange: [2]float64{0.5, 5},
			},
			Generators: SpacedPass{
				Category:   "generators",
				MaxCount:   3,
				MinSpacing: 5,
				ScaleRange: [2]float64{1, 1},
				Collider:   [3]float64{1, 1, 1},
			},
			Ruins: SpacedPass{
				Category:   "abandoned",
				MaxCount:   3,
				MinSpacing: 5,
				ScaleRange: [2]float64{0.8, 0.8},
				Collider:   [3]float64{3, 3, 3},
			},
			Keys: AroundPass{
				Category:        "keys",
				MaxCount:        3,
				Spacing:         9,
				ExclusionRadius: 8,
				MaxAttempts:     32,
			},
		},
		Slasher: SlasherTuning{
			Spawn:          [3]float64{200, 3, 300},
			WanderInterval: 10,
			WanderSpeed:    3,
			ChaseSpeed:     6,
			AggroDistance:  80,
			Hysteresis:     1.2,
			Gravity:        9.8,
			ProbeHeight:    100,
			ProbeDistance:  200,
		},
		Interact: InteractTuning{Radius: 2},
		Session: SessionTuning{
			PlayerSpawn:     [3]float64{10, 10, 10},
			RecoverPos:      [3]float64{10, 3, 10},
			FallFloor:       -50,
			CaptureDistance: 2,
			EscapePos:       [3]float64{5, 0, 5},
			EscapeRadius:    8,
			ViewFOVDeg:      140,
		},
	}
}

// Load reads a tuning file on top of Defaults, so a partial file only overrides
// the keys it names.
func Load(path string) (Tuning, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Defaults(), err
	}
	t, err := Parse(raw)
	if err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Parse overlays raw yaml onto Defaults and validates the result.
func Parse(raw []byte) (Tuning, error) {
	t := Defaults()
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, err
	}
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.TickRateHz <= 0 {
		errs = append(errs, fmt.Errorf("tick_rate_hz must be > 0 (got %d)", t.TickRateHz))
	}
	if t.SpawnDelayMs < 0 {
		errs = append(errs, fmt.Errorf("spawn_delay_ms must be >= 0"))
	}
	if t.Terrain.GridW < 2 || t.Terrain.GridH < 2 {
		errs = append(errs, fmt.Errorf("terrain grid must be at least 2x2 (got %dx%d)", t.Terrain.GridW, t.Terrain.GridH))
	}
	if t.Terrain.Scale <= 0 {
		errs = append(errs, fmt.Errorf("terrain.scale must be > 0"))
	}
	if t.Terrain.Octaves <= 0 {
		errs = append(errs, fmt.Errorf("terrain.octaves must be > 0"))
	}
	passes := []struct {
		name string
		p    SpacedPass
	}{
		{"trees", t.Placement.Trees},
		{"generators", t.Placement.Generators},
		{"ruins", t.Placement.Ruins},
	}
	for _, pp := range passes {
		if pp.p.MaxCount < 0 || pp.p.MinSpacing < 0 {
			errs = append(errs, fmt.Errorf("placement.%s: max_count and min_spacing must be >= 0", pp.name))
		}
		if pp.p.ScaleRange[0] > pp.p.ScaleRange[1] {
			errs = append(errs, fmt.Errorf("placement.%s: scale_range min > max", pp.name))
		}
	}
	if t.Placement.Keys.ExclusionRadius < 0 || t.Placement.Keys.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("placement.keys: exclusion_radius >= 0 and max_attempts > 0 required"))
	}
	s := t.Slasher
	if s.WanderInterval <= 0 || s.WanderSpeed <= 0 || s.ChaseSpeed <= 0 {
		errs = append(errs, fmt.Errorf("slasher: wander_interval_s, wander_speed and chase_speed must be > 0"))
	}
	if s.AggroDistance <= 0 {
		errs = append(errs, fmt.Errorf("slasher.aggro_distance must be > 0"))
	}
	if s.Hysteresis <= 1 {
		errs = append(errs, fmt.Errorf("slasher.hysteresis must be > 1 (got %v)", s.Hysteresis))
	}
	if s.ProbeDistance <= 0 {
		errs = append(errs, fmt.Errorf("slasher.probe_distance must be > 0"))
	}
	if t.Interact.Radius <= 0 {
		errs = append(errs, fmt.Errorf("interact.radius must be > 0"))
	}
	if t.Session.CaptureDistance <= 0 || t.Session.EscapeRadius <= 0 {
		errs = append(errs, fmt.Errorf("session: capture_distance and escape_radius must be > 0"))
	}
	if t.Session.ViewFOVDeg <= 0 || t.Session.ViewFOVDeg > 360 {
		errs = append(errs, fmt.Errorf("session.view_fov_deg must be in (0,360]"))
	}
	return errors.Join(errs...)
}

// SpawnDelayTicks converts the slasher spawn delay to whole ticks (rounded up).
func (t Tuning) SpawnDelayTicks() uint64 {
	if t.SpawnDelayMs <= 0 || t.TickRateHz <= 0 {
		return 0
	}
	ms := uint64(t.SpawnDelayMs) * uint64(t.TickRateHz)
	return (ms + 999) / 1000
}

// Digest is the sha256 of the canonical yaml encoding. Sessions report it so a
// replay can tell whether it is running with the same rules.
func (t Tuning) Digest() string {
	b, err := yaml.Marshal(t)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// YAML is the canonical encoding Digest hashes. Parse(t.YAML()) returns t.
func (t Tuning) YAML() []byte {
	b, _ := yaml.Marshal(t)
	return b
}
