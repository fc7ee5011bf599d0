package ai

import (
	"math"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"nightgrove/internal/sim/scene"
)

// flatProber reports ground at y=h everywhere inside [minX,maxX], nothing
// outside. It records the ignore lists it saw.
type flatProber struct {
	h          float64
	minX, maxX float64
	ignored    [][]scene.EntityID
}

func (f *flatProber) ProbeGround(origin, dir mgl64.Vec3, maxDist float64, ignore ...scene.EntityID) (scene.Hit, bool) {
	f.ignored = append(f.ignored, ignore)
	if origin.X() < f.minX || origin.X() > f.maxX {
		return scene.Hit{}, false
	}
	return scene.Hit{Point: mgl64.Vec3{origin.X(), f.h, origin.Z()}, Distance: origin.Y() - f.h, Entity: scene.TerrainID}, true
}

func everywhere(h float64) *flatProber {
	return &flatProber{h: h, minX: math.Inf(-1), maxX: math.Inf(1)}
}

const dt = 1.0 / 30

func TestUpdate_AggroThenLoseSight(t *testing.T) {
	s := New("slasher", DefaultConfig(), mgl64.Vec3{0, 0, 0})
	probe := everywhere(0)
	rng := rand.New(rand.NewSource(1))

	if ev := s.Update(dt, mgl64.Vec3{100, 0, 0}, probe, rng); len(ev) != 0 || s.Mode != Wandering {
		t.Fatalf("at 100: mode=%v events=%v", s.Mode, ev)
	}

	ev := s.Update(dt, mgl64.Vec3{50, 0, 0}, probe, rng)
	if s.Mode != Chasing {
		t.Fatalf("at 50: mode=%v want Chasing", s.Mode)
	}
	if len(ev) != 1 || ev[0].Type != SightGained {
		t.Fatalf("at 50: events=%v", ev)
	}

	ev = s.Update(dt, mgl64.Vec3{100, 0, 0}, probe, rng)
	if s.Mode != Wandering {
		t.Fatalf("back at 100: mode=%v want Wandering", s.Mode)
	}
	if len(ev) != 1 || ev[0].Type != SightLost {
		t.Fatalf("back at 100: events=%v", ev)
	}
}

func TestUpdate_HysteresisHoldsModeBetweenThresholds(t *testing.T) {
	cfg := DefaultConfig()
	offset := mgl64.Vec3{cfg.AggroDistance * 1.1, 0, 0}
	probe := everywhere(0)
	rng := rand.New(rand.NewSource(2))

	// Wandering stays wandering at 1.1x.
	w := New("w", cfg, mgl64.Vec3{})
	for i := 0; i < 60; i++ {
		if ev := w.Update(dt, w.Pos.Add(offset), probe, rng); len(ev) != 0 || w.Mode != Wandering {
			t.Fatalf("tick %d: mode=%v events=%v", i, w.Mode, ev)
		}
	}

	// Chasing stays chasing at 1.1x.
	c := New("c", cfg, mgl64.Vec3{})
	c.Update(dt, mgl64.Vec3{10, 0, 0}, probe, rng)
	if c.Mode != Chasing {
		t.Fatalf("setup: expected Chasing")
	}
	for i := 0; i < 60; i++ {
		if ev := c.Update(dt, c.Pos.Add(offset), probe, rng); len(ev) != 0 || c.Mode != Chasing {
			t.Fatalf("tick %d: mode=%v events=%v", i, c.Mode, ev)
		}
	}
}

func TestUpdate_WanderRefusesToLeaveGround(t *testing.T) {
	// Ground only at x <= 0; force a +x heading with time left on the timer.
	probe := &flatProber{h: 0, minX: -1000, maxX: 0}
	s := New("slasher", DefaultConfig(), mgl64.Vec3{0, 0, 0})
	s.WanderDir = mgl64.Vec3{1, 0, 0}
	s.WanderTimer = 5
	before := s.Pos

	s.Update(dt, mgl64.Vec3{500, 0, 0}, probe, rand.New(rand.NewSource(1)))
	if s.Pos != before {
		t.Fatalf("moved off ground: %v -> %v", before, s.Pos)
	}
	if s.WanderTimer > 0 {
		t.Fatalf("timer=%v, expected forced re-plan", s.WanderTimer)
	}
}

func TestUpdate_WanderMovesAndFaces(t *testing.T) {
	s := New("slasher", DefaultConfig(), mgl64.Vec3{0, 0, 0})
	s.WanderDir = mgl64.Vec3{0, 0, 1}
	s.WanderTimer = 5
	s.Update(dt, mgl64.Vec3{500, 0, 0}, everywhere(2), rand.New(rand.NewSource(1)))

	want := mgl64.Vec3{0, 2, 3 * dt}
	if !s.Pos.ApproxEqualThreshold(want, 1e-9) {
		t.Fatalf("pos=%v want %v", s.Pos, want)
	}
	if math.Abs(s.Yaw-180) > 1e-9 {
		t.Fatalf("yaw=%v want 180", s.Yaw)
	}
	if math.Abs(s.WanderTimer-(5-dt)) > 1e-9 {
		t.Fatalf("timer=%v", s.WanderTimer)
	}
}

func TestUpdate_ExpiredTimerPicksUnitDirection(t *testing.T) {
	s := New("slasher", DefaultConfig(), mgl64.Vec3{})
	s.Update(dt, mgl64.Vec3{500, 0, 0}, everywhere(0), rand.New(rand.NewSource(4)))
	if math.Abs(s.WanderDir.Len()-1) > 1e-9 || s.WanderDir.Y() != 0 {
		t.Fatalf("dir=%v", s.WanderDir)
	}
	if s.WanderTimer != s.Config().WanderInterval {
		t.Fatalf("timer=%v want %v", s.WanderTimer, s.Config().WanderInterval)
	}
}

func TestUpdate_FreeFallWithoutGround(t *testing.T) {
	cfg := DefaultConfig()
	s := New("slasher", cfg, mgl64.Vec3{0, 10, 0})
	empty := &flatProber{minX: 1, maxX: 0}
	rng := rand.New(rand.NewSource(1))

	s.Update(dt, mgl64.Vec3{500, 0, 0}, empty, rng)
	if math.Abs(s.VelocityY+cfg.Gravity*dt) > 1e-9 {
		t.Fatalf("vy=%v", s.VelocityY)
	}
	y1 := s.Pos.Y()
	s.Update(dt, mgl64.Vec3{500, 0, 0}, empty, rng)
	if !(s.Pos.Y() < y1 && y1 < 10) {
		t.Fatalf("expected accelerating fall: 10 -> %v -> %v", y1, s.Pos.Y())
	}

	// Landing resets vertical speed.
	s.Update(dt, mgl64.Vec3{500, 0, 0}, everywhere(0), rng)
	if s.Pos.Y() != 0 || s.VelocityY != 0 {
		t.Fatalf("after landing y=%v vy=%v", s.Pos.Y(), s.VelocityY)
	}
}

func TestUpdate_ChaseMovesHorizontallyAndIgnoresSelf(t *testing.T) {
	probe := everywhere(0)
	s := New("slasher", DefaultConfig(), mgl64.Vec3{0, 0, 0})
	s.Update(dt, mgl64.Vec3{30, 25, 40}, probe, rand.New(rand.NewSource(1)))
	if s.Mode != Chasing {
		t.Fatalf("mode=%v", s.Mode)
	}
	want := mgl64.Vec3{0.6, 0, 0.8}.Mul(6 * dt)
	if !s.Pos.ApproxEqualThreshold(want, 1e-9) {
		t.Fatalf("pos=%v want %v", s.Pos, want)
	}
	wantYaw := mgl64.RadToDeg(math.Atan2(0.6, 0.8)) + 180
	if math.Abs(s.Yaw-wantYaw) > 1e-9 {
		t.Fatalf("yaw=%v want %v", s.Yaw, wantYaw)
	}
	for _, ig := range probe.ignored {
		if len(ig) != 1 || ig[0] != "slasher" {
			t.Fatalf("probe should ignore the agent itself, got %v", ig)
		}
	}
}

func TestUpdate_ChaseCoincidentDoesNotMove(t *testing.T) {
	s := New("slasher", DefaultConfig(), mgl64.Vec3{5, 0, 5})
	s.Mode = Chasing
	s.Yaw = 42
	if ev := s.Update(dt, mgl64.Vec3{5, 9, 5}, everywhere(0), rand.New(rand.NewSource(1))); len(ev) != 0 {
		t.Fatalf("events=%v", ev)
	}
	if s.Pos != (mgl64.Vec3{5, 0, 5}) || s.Yaw != 42 {
		t.Fatalf("pos=%v yaw=%v", s.Pos, s.Yaw)
	}
}

func TestMode_String(t *testing.T) {
	if Wandering.String() != "WANDERING" || Chasing.String() != "CHASING" {
		t.Fatalf("mode names changed")
	}
}
