// Package scene answers physics ray queries against the terrain and the static
// box colliders placed on it.
package scene

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"nightgrove/internal/sim/terrain"
)

type EntityID string

// TerrainID identifies the height field in hits and ignore lists.
const TerrainID EntityID = "terrain"

type Hit struct {
	Point    mgl64.Vec3
	Distance float64
	Entity   EntityID
}

// Box is an axis-aligned collider.
type Box struct {
	ID     EntityID
	Center mgl64.Vec3
	Half   mgl64.Vec3
}

func (b Box) Min() mgl64.Vec3 { return b.Center.Sub(b.Half) }
func (b Box) Max() mgl64.Vec3 { return b.Center.Add(b.Half) }

type Scene struct {
	ground *terrain.HeightField
	boxes  map[EntityID]Box
}

func New(ground *terrain.HeightField) *Scene {
	return &Scene{ground: ground, boxes: map[EntityID]Box{}}
}

func (s *Scene) Ground() *terrain.HeightField { return s.ground }

// AddBox registers or replaces a collider.
func (s *Scene) AddBox(b Box) { s.boxes[b.ID] = b }

func (s *Scene) Remove(id EntityID) { delete(s.boxes, id) }

func (s *Scene) Boxes() []Box {
	out := make([]Box, 0, len(s.boxes))
	for _, b := range s.boxes {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ProbeGround casts a ray and returns the nearest surface within maxDist,
// skipping the ignored entities. dir need not be normalized.
func (s *Scene) ProbeGround(origin, dir mgl64.Vec3, maxDist float64, ignore ...EntityID) (Hit, bool) {
	if maxDist <= 0 || dir.Len() == 0 {
		return Hit{}, false
	}
	dir = dir.Normalize()

	skip := func(id EntityID) bool {
		for _, ig := range ignore {
			if ig == id {
				return true
			}
		}
		return false
	}

	best := Hit{Distance: math.Inf(1)}
	found := false

	if s.ground != nil && !skip(TerrainID) {
		if t, ok := s.rayTerrain(origin, dir, maxDist); ok {
			best = Hit{Point: origin.Add(dir.Mul(t)), Distance: t, Entity: TerrainID}
			found = true
		}
	}
	// Deterministic tie-break on equal distance: lowest id wins.
	for _, b := range s.Boxes() {
		if skip(b.ID) {
			continue
		}
		t, ok := rayBox(origin, dir, b)
		if !ok || t > maxDist || t >= best.Distance {
			continue
		}
		best = Hit{Point: origin.Add(dir.Mul(t)), Distance: t, Entity: b.ID}
		found = true
	}
	return best, found
}

func (s *Scene) rayTerrain(origin, dir mgl64.Vec3, maxDist float64) (float64, bool) {
	// Vertical rays are the common case (grounding); answer them exactly.
	if dir.X() == 0 && dir.Z() == 0 {
		h, ok := s.ground.Probe(origin.X(), origin.Z())
		if !ok {
			return 0, false
		}
		t := (h - origin.Y()) / dir.Y()
		if t < 0 || t > maxDist {
			return 0, false
		}
		return t, true
	}

	// General rays: march until the ray dips below the surface, then bisect.
	above := func(t float64) (bool, bool) {
		p := origin.Add(dir.Mul(t))
		h, ok := s.ground.Probe(p.X(), p.Z())
		if !ok {
			return false, false
		}
		return p.Y() > h, true
	}
	prevT := 0.0
	prevAbove, prevOK := above(0)
	if prevOK && !prevAbove {
		return 0, true
	}
	step := s.ground.Params().Scale / 4
	for t := step; ; t += step {
		if t > maxDist {
			t = maxDist
		}
		isAbove, ok := above(t)
		if ok && !isAbove {
			if !prevOK {
				// Entered the footprint below the surface.
				return t, true
			}
			lo, hi := prevT, t
			for i := 0; i < 32; i++ {
				mid := (lo + hi) / 2
				if a, _ := above(mid); a {
					lo = mid
				} else {
					hi = mid
				}
			}
			return hi, true
		}
		prevT, prevOK = t, ok
		if t >= maxDist {
			return 0, false
		}
	}
}

// rayBox is the slab test. It returns the entry distance, or 0 when the origin
// is inside the box.
func rayBox(origin, dir mgl64.Vec3, b Box) (float64, bool) {
	lo, hi := b.Min(), b.Max()
	tmin, tmax := math.Inf(-1), math.Inf(1)
	for axis := 0; axis < 3; axis++ {
		o, d := origin[axis], dir[axis]
		if d == 0 {
			if o < lo[axis] || o > hi[axis] {
				return 0, false
			}
			continue
		}
		t1 := (lo[axis] - o) / d
		t2 := (hi[axis] - o) / d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	if tmax < 0 {
		return 0, false
	}
	if tmin < 0 {
		return 0, true
	}
	return tmin, true
}
