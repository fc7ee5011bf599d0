package scene

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"nightgrove/internal/sim/terrain"
)

func flatGround(t *testing.T, h float64) *terrain.HeightField {
	t.Helper()
	heights := make([]float64, 10*10)
	for i := range heights {
		heights[i] = h
	}
	hf, err := terrain.FromHeights(terrain.Params{GridW: 10, GridH: 10, Scale: 4}, heights)
	if err != nil {
		t.Fatal(err)
	}
	return hf
}

var down = mgl64.Vec3{0, -1, 0}

func TestProbeGround_VerticalHitsTerrain(t *testing.T) {
	hf := terrain.Generate(terrain.Params{Seed: 7, GridW: 20, GridH: 20, Scale: 8, HeightScale: 3})
	s := New(hf)
	for _, xz := range [][2]float64{{10, 10}, {33.3, 91.7}, {150, 4}} {
		hit, ok := s.ProbeGround(mgl64.Vec3{xz[0], 100, xz[1]}, down, 200)
		if !ok {
			t.Fatalf("probe at %v missed", xz)
		}
		want := hf.HeightAt(xz[0], xz[1])
		if math.Abs(hit.Point.Y()-want) > 1e-9 || hit.Entity != TerrainID {
			t.Fatalf("probe at %v: hit=%+v want y=%v", xz, hit, want)
		}
		if math.Abs(hit.Distance-(100-want)) > 1e-9 {
			t.Fatalf("distance=%v want %v", hit.Distance, 100-want)
		}
	}
}

func TestProbeGround_OffTerrainMisses(t *testing.T) {
	s := New(flatGround(t, 0))
	if _, ok := s.ProbeGround(mgl64.Vec3{-5, 100, 10}, down, 200); ok {
		t.Fatalf("expected miss off the footprint")
	}
	if _, ok := s.ProbeGround(mgl64.Vec3{10, 100, 10}, mgl64.Vec3{0, 1, 0}, 200); ok {
		t.Fatalf("upward ray should not hit the ground below")
	}
}

func TestProbeGround_MaxDistance(t *testing.T) {
	s := New(flatGround(t, 0))
	if _, ok := s.ProbeGround(mgl64.Vec3{10, 100, 10}, down, 50); ok {
		t.Fatalf("ground is 100 away, maxDist 50 should miss")
	}
	if _, ok := s.ProbeGround(mgl64.Vec3{10, 100, 10}, down, 0); ok {
		t.Fatalf("zero maxDist should miss")
	}
}

func TestProbeGround_BoxInFrontUnlessIgnored(t *testing.T) {
	s := New(flatGround(t, 1))
	s.AddBox(Box{ID: "ruin-0", Center: mgl64.Vec3{10, 5, 10}, Half: mgl64.Vec3{2, 2, 2}})
	s.AddBox(Box{ID: "slasher", Center: mgl64.Vec3{10, 20, 10}, Half: mgl64.Vec3{1, 1, 1}})

	hit, ok := s.ProbeGround(mgl64.Vec3{10, 100, 10}, down, 200, "slasher")
	if !ok || hit.Entity != "ruin-0" {
		t.Fatalf("expected ruin hit, got %+v ok=%v", hit, ok)
	}
	if math.Abs(hit.Point.Y()-7) > 1e-9 {
		t.Fatalf("hit y=%v want 7 (box top)", hit.Point.Y())
	}

	hit, ok = s.ProbeGround(mgl64.Vec3{10, 100, 10}, down, 200)
	if !ok || hit.Entity != "slasher" {
		t.Fatalf("without ignore the nearest box wins, got %+v", hit)
	}

	hit, ok = s.ProbeGround(mgl64.Vec3{10, 100, 10}, down, 200, "slasher", "ruin-0")
	if !ok || hit.Entity != TerrainID || math.Abs(hit.Point.Y()-1) > 1e-9 {
		t.Fatalf("expected terrain hit at y=1, got %+v", hit)
	}

	s.Remove("ruin-0")
	if got := len(s.Boxes()); got != 1 {
		t.Fatalf("boxes=%d want 1", got)
	}
}

func TestProbeGround_SlantedRayFindsSlope(t *testing.T) {
	// Heights rise with x: h = x/4.
	heights := make([]float64, 10*10)
	for j := 0; j < 10; j++ {
		for i := 0; i < 10; i++ {
			heights[i+j*10] = float64(i)
		}
	}
	hf, err := terrain.FromHeights(terrain.Params{GridW: 10, GridH: 10, Scale: 4}, heights)
	if err != nil {
		t.Fatal(err)
	}
	s := New(hf)
	hit, ok := s.ProbeGround(mgl64.Vec3{2, 20, 8}, mgl64.Vec3{1, -1, 0}, 100)
	if !ok {
		t.Fatalf("slanted ray missed")
	}
	if want := hf.HeightAt(hit.Point.X(), hit.Point.Z()); math.Abs(hit.Point.Y()-want) > 1e-6 {
		t.Fatalf("hit %v not on the surface (want y=%v)", hit.Point, want)
	}
}
