package terrain

import (
	"errors"
	"math"
	"testing"
)

func testParams() Params {
	return Params{Seed: 42, GridW: 50, GridH: 50, Scale: 8, HeightScale: 3, Octaves: 3, Frequency: 0.1}
}

func TestGenerate_DeterministicForSameParams(t *testing.T) {
	a := Generate(testParams())
	b := Generate(testParams())
	if a.Digest() != b.Digest() {
		t.Fatalf("same params should give the same field")
	}
	for _, pt := range [][2]float64{{0, 0}, {13.7, 201.2}, {391.9, 5}, {100, 100}} {
		if a.HeightAt(pt[0], pt[1]) != b.HeightAt(pt[0], pt[1]) {
			t.Fatalf("height mismatch at %v", pt)
		}
		if a.HeightAt(pt[0], pt[1]) != a.HeightAt(pt[0], pt[1]) {
			t.Fatalf("repeated query differs at %v", pt)
		}
	}

	p := testParams()
	p.Seed = 43
	if Generate(p).Digest() == a.Digest() {
		t.Fatalf("different seed should change the field")
	}
}

func TestHeightAt_OutsideFootprintIsZero(t *testing.T) {
	hf := Generate(testParams())
	_, _, maxX, maxZ := hf.Bounds()
	for _, pt := range [][2]float64{{-0.01, 10}, {10, -5}, {maxX + 0.1, 10}, {10, maxZ + 1}, {math.NaN(), 1}} {
		if h := hf.HeightAt(pt[0], pt[1]); h != 0 {
			t.Fatalf("HeightAt(%v)=%v want 0", pt, h)
		}
		if _, ok := hf.Probe(pt[0], pt[1]); ok {
			t.Fatalf("Probe(%v) should report no ground", pt)
		}
	}
	if _, ok := hf.Probe(maxX, maxZ); !ok {
		t.Fatalf("far corner is on the terrain")
	}
}

func TestProbe_InterpolatesOnMeshTriangles(t *testing.T) {
	// 2x2 grid, one cell: h00=0 h10=4 h01=8 h11=2.
	hf, err := FromHeights(Params{GridW: 2, GridH: 2, Scale: 2}, []float64{0, 4, 8, 2})
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		x, z, want float64
	}{
		{0, 0, 0},
		{2, 0, 4},
		{0, 2, 8},
		{2, 2, 2},
		{1, 0, 2},     // edge h00-h10
		{0.5, 0.5, 3}, // lower triangle: 0 + .25*4 + .25*8
		{1.5, 1.5, 4}, // upper triangle: 2 + .25*(8-2) + .25*(4-2)
		{1, 1, 6},     // shared diagonal: midpoint of h10 and h01
	}
	for _, c := range cases {
		got, ok := hf.Probe(c.x, c.z)
		if !ok {
			t.Fatalf("Probe(%v,%v) missed", c.x, c.z)
		}
		if math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("Probe(%v,%v)=%v want %v", c.x, c.z, got, c.want)
		}
	}
}

func TestProbe_VerticesMatchGrid(t *testing.T) {
	hf := Generate(testParams())
	for _, ij := range [][2]int{{0, 0}, {3, 7}, {49, 49}, {25, 10}} {
		v := hf.Vertex(ij[0], ij[1])
		got, ok := hf.Probe(v.X(), v.Z())
		if !ok || math.Abs(got-v.Y()) > 1e-9 {
			t.Fatalf("vertex %v: probe=%v ok=%v want %v", ij, got, ok, v.Y())
		}
	}
}

func TestValidPositions_RespectsMargin(t *testing.T) {
	hf := Generate(testParams())
	_, _, maxX, maxZ := hf.Bounds()
	pts := hf.ValidPositions(10)
	if len(pts) == 0 {
		t.Fatalf("expected interior vertices")
	}
	for _, p := range pts {
		if p.X() < 10 || p.X() > maxX-10 || p.Z() < 10 || p.Z() > maxZ-10 {
			t.Fatalf("vertex %v inside margin", p)
		}
	}
	// 8-unit grid over [0,392]: x in {16..376} is 46 columns.
	if want := 46 * 46; len(pts) != want {
		t.Fatalf("len=%d want %d", len(pts), want)
	}
}

func TestFromHeights_RejectsBadShape(t *testing.T) {
	_, err := FromHeights(Params{GridW: 3, GridH: 3, Scale: 1}, make([]float64, 8))
	if !errors.Is(err, ErrBadShape) {
		t.Fatalf("expected ErrBadShape, got %v", err)
	}
}
