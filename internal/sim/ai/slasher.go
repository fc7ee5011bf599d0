// Package ai implements the enemy's locomotion and its wander/chase state
// machine.
package ai

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"

	"nightgrove/internal/sim/scene"
)

type Mode int

const (
	Wandering Mode = iota
	Chasing
)

func (m Mode) String() string {
	switch m {
	case Wandering:
		return "WANDERING"
	case Chasing:
		return "CHASING"
	default:
		return "UNKNOWN"
	}
}

type EventType string

const (
	SightGained EventType = "SIGHT_GAINED"
	SightLost   EventType = "SIGHT_LOST"
)

type Event struct {
	Type     EventType
	Distance float64
}

// GroundProber is the physics collaborator. scene.Scene satisfies it.
type GroundProber interface {
	ProbeGround(origin, dir mgl64.Vec3, maxDist float64, ignore ...scene.EntityID) (scene.Hit, bool)
}

type Config struct {
	WanderInterval float64 // seconds between direction re-rolls
	WanderSpeed    float64
	ChaseSpeed     float64
	AggroDistance  float64
	Hysteresis     float64 // > 1
	Gravity        float64
	ProbeHeight    float64
	ProbeDistance  float64
}

func DefaultConfig() Config {
	return Config{
		WanderInterval: 10,
		WanderSpeed:    3,
		ChaseSpeed:     6,
		AggroDistance:  80,
		Hysteresis:     1.2,
		Gravity:        9.8,
		ProbeHeight:    100,
		ProbeDistance:  200,
	}
}

// State is the mutable part of a Slasher. It is plain data so sessions can
// snapshot and restore it.
type State struct {
	Pos         mgl64.Vec3
	Yaw         float64 // degrees
	Mode        Mode
	WanderDir   mgl64.Vec3
	WanderTimer float64
	VelocityY   float64
}

type Slasher struct {
	ID  scene.EntityID
	cfg Config
	State
}

// New returns a wandering agent whose timer has expired, so the first tick
// picks a direction.
func New(id scene.EntityID, cfg Config, pos mgl64.Vec3) *Slasher {
	return &Slasher{ID: id, cfg: cfg, State: State{Pos: pos, Mode: Wandering}}
}

func (s *Slasher) Config() Config { return s.cfg }

// Update advances the agent by dt seconds: ground it, evaluate the mode switch,
// then wander or chase. Events are returned only on mode edges.
func (s *Slasher) Update(dt float64, target mgl64.Vec3, probe GroundProber, rng *rand.Rand) []Event {
	s.ground(dt, probe)

	prev := s.Mode
	d := PlanarDistance(s.Pos, target)
	switch s.Mode {
	case Wandering:
		if d < s.cfg.AggroDistance {
			s.Mode = Chasing
		}
	case Chasing:
		if d > s.cfg.AggroDistance*s.cfg.Hysteresis {
			s.Mode = Wandering
		}
	}

	switch s.Mode {
	case Wandering:
		s.wander(dt, probe, rng)
	case Chasing:
		s.chase(dt, target)
	}

	if s.Mode == prev {
		return nil
	}
	ev := Event{Type: SightGained, Distance: d}
	if s.Mode == Wandering {
		ev.Type = SightLost
	}
	return []Event{ev}
}

func (s *Slasher) probeUnder(p mgl64.Vec3, probe GroundProber) (scene.Hit, bool) {
	if probe == nil {
		return scene.Hit{}, false
	}
	origin := mgl64.Vec3{p.X(), s.cfg.ProbeHeight, p.Z()}
	return probe.ProbeGround(origin, mgl64.Vec3{0, -1, 0}, s.cfg.ProbeDistance, s.ID)
}

func (s *Slasher) ground(dt float64, probe GroundProber) {
	if hit, ok := s.probeUnder(s.Pos, probe); ok {
		s.Pos[1] = hit.Point.Y()
		s.VelocityY = 0
		return
	}
	s.VelocityY -= s.cfg.Gravity * dt
	s.Pos[1] += s.VelocityY * dt
}

func (s *Slasher) wander(dt float64, probe GroundProber, rng *rand.Rand) {
	s.WanderTimer -= dt
	if s.WanderTimer <= 0 {
		a := rng.Float64() * 2 * math.Pi
		s.WanderDir = mgl64.Vec3{math.Sin(a), 0, math.Cos(a)}
		s.WanderTimer = s.cfg.WanderInterval
	}
	next := s.Pos.Add(s.WanderDir.Mul(s.cfg.WanderSpeed * dt))
	if _, ok := s.probeUnder(next, probe); !ok {
		// Would step off the world; re-plan next tick.
		s.WanderTimer = 0
		return
	}
	s.Pos = next
	s.Yaw = yawFor(s.WanderDir)
}

func (s *Slasher) chase(dt float64, target mgl64.Vec3) {
	dir := mgl64.Vec3{target.X() - s.Pos.X(), 0, target.Z() - s.Pos.Z()}
	if dir.Len() == 0 {
		return
	}
	dir = dir.Normalize()
	s.Pos = s.Pos.Add(dir.Mul(s.cfg.ChaseSpeed * dt))
	s.Yaw = yawFor(dir)
}

// yawFor faces the model along dir; the asset's forward axis is -Z.
func yawFor(dir mgl64.Vec3) float64 {
	return mgl64.RadToDeg(math.Atan2(dir.X(), dir.Z())) + 180
}

// PlanarDistance ignores height.
func PlanarDistance(a, b mgl64.Vec3) float64 {
	return math.Hypot(a.X()-b.X(), a.Z()-b.Z())
}
