package terrain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

var ErrBadShape = errors.New("terrain: height data does not match grid")

// Params fully determine a generated height field.
type Params struct {
	Seed        int64
	GridW       int
	GridH       int
	Scale       float64 // world units between neighbouring vertices
	HeightScale float64
	Octaves     int
	Frequency   float64 // noise units per grid step
}

// HeightField is an immutable grid of elevations. Vertex (i, j) sits at world
// (i*Scale, h, j*Scale); the surface between vertices is the same two-triangle
// split the client meshes, so server heights match what the client renders.
type HeightField struct {
	p       Params
	heights []float64 // row-major, index i + j*GridW
}

// FromHeights wraps precomputed heights, e.g. from a snapshot.
func FromHeights(p Params, heights []float64) (*HeightField, error) {
	if p.GridW < 2 || p.GridH < 2 || p.Scale <= 0 {
		return nil, fmt.Errorf("%w: grid %dx%d scale %v", ErrBadShape, p.GridW, p.GridH, p.Scale)
	}
	if len(heights) != p.GridW*p.GridH {
		return nil, fmt.Errorf("%w: got %d heights for %dx%d", ErrBadShape, len(heights), p.GridW, p.GridH)
	}
	return &HeightField{p: p, heights: append([]float64(nil), heights...)}, nil
}

func (hf *HeightField) Params() Params { return hf.p }

// Heights returns a copy of the raw grid.
func (hf *HeightField) Heights() []float64 { return append([]float64(nil), hf.heights...) }

// At returns the elevation of vertex (i, j). Indices are not bounds-checked.
func (hf *HeightField) At(i, j int) float64 { return hf.heights[i+j*hf.p.GridW] }

func (hf *HeightField) Vertex(i, j int) mgl64.Vec3 {
	return mgl64.Vec3{float64(i) * hf.p.Scale, hf.At(i, j), float64(j) * hf.p.Scale}
}

// Bounds returns the horizontal footprint (min corner is always the origin).
func (hf *HeightField) Bounds() (minX, minZ, maxX, maxZ float64) {
	return 0, 0, float64(hf.p.GridW-1) * hf.p.Scale, float64(hf.p.GridH-1) * hf.p.Scale
}

func (hf *HeightField) Contains(x, z float64) bool {
	minX, minZ, maxX, maxZ := hf.Bounds()
	return x >= minX && x <= maxX && z >= minZ && z <= maxZ
}

// Probe reports the surface elevation under (x, z), or false when the point is
// off the terrain.
func (hf *HeightField) Probe(x, z float64) (float64, bool) {
	if math.IsNaN(x) || math.IsNaN(z) || !hf.Contains(x, z) {
		return 0, false
	}
	fx := x / hf.p.Scale
	fz := z / hf.p.Scale
	i := int(math.Floor(fx))
	j := int(math.Floor(fz))
	// The far edges belong to the last cell.
	if i > hf.p.GridW-2 {
		i = hf.p.GridW - 2
	}
	if j > hf.p.GridH-2 {
		j = hf.p.GridH - 2
	}
	u := fx - float64(i)
	v := fz - float64(j)

	h00 := hf.At(i, j)
	h10 := hf.At(i+1, j)
	h01 := hf.At(i, j+1)
	if u+v <= 1 {
		return h00 + u*(h10-h00) + v*(h01-h00), true
	}
	h11 := hf.At(i+1, j+1)
	return h11 + (1-u)*(h01-h11) + (1-v)*(h10-h11), true
}

// HeightAt is Probe with the off-terrain fallback applied: 0.
func (hf *HeightField) HeightAt(x, z float64) float64 {
	h, _ := hf.Probe(x, z)
	return h
}

// ValidPositions returns every vertex at least margin inside the footprint, in
// row-major order.
func (hf *HeightField) ValidPositions(margin float64) []mgl64.Vec3 {
	minX, minZ, maxX, maxZ := hf.Bounds()
	out := make([]mgl64.Vec3, 0, len(hf.heights))
	for j := 0; j < hf.p.GridH; j++ {
		for i := 0; i < hf.p.GridW; i++ {
			v := hf.Vertex(i, j)
			if v.X() < minX+margin || v.X() > maxX-margin || v.Z() < minZ+margin || v.Z() > maxZ-margin {
				continue
			}
			out = append(out, v)
		}
	}
	return out
}

func (hf *HeightField) Digest() string {
	h := sha256.New()
	var tmp [8]byte
	put := func(u uint64) {
		binary.LittleEndian.PutUint64(tmp[:], u)
		h.Write(tmp[:])
	}
	put(uint64(hf.p.Seed))
	put(uint64(hf.p.GridW))
	put(uint64(hf.p.GridH))
	put(math.Float64bits(hf.p.Scale))
	for _, v := range hf.heights {
		put(math.Float64bits(v))
	}
	return hex.EncodeToString(h.Sum(nil))
}
