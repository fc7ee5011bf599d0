// Package placement picks spawn positions for world objects.
//
// Two modes exist. SampleSpaced walks a shuffled candidate list and keeps
// points that are far enough from everything already kept. SampleAround drops
// one point near each of a set of anchors, outside an exclusion radius.
package placement

import (
	"errors"
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
)

// DefaultMaxAttempts bounds SampleAround's perturbation loop when the caller
// passes zero.
const DefaultMaxAttempts = 32

var ErrNoAvailableModels = errors.New("placement: no available models")

type Result struct {
	// Candidates is the shuffled candidate order. Later passes reuse it so the
	// whole build draws from one shuffle.
	Candidates []mgl64.Vec3
	Positions  []mgl64.Vec3
}

// SampleSpaced shuffles candidates and greedily accepts points whose distance
// to the anchor and to every accepted point is at least minSpacing. It stops
// after maxCount acceptances. The input slice is not modified.
func SampleSpaced(rng *rand.Rand, candidates []mgl64.Vec3, anchor mgl64.Vec3, maxCount int, minSpacing float64) Result {
	order := append([]mgl64.Vec3(nil), candidates...)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	res := Result{Candidates: order}
	if maxCount <= 0 {
		return res
	}
	taken := []mgl64.Vec3{anchor}
	for _, c := range order {
		if len(res.Positions) >= maxCount {
			break
		}
		if !farFromAll(c, taken, minSpacing) {
			continue
		}
		taken = append(taken, c)
		res.Positions = append(res.Positions, c)
	}
	return res
}

func farFromAll(p mgl64.Vec3, taken []mgl64.Vec3, minSpacing float64) bool {
	for _, q := range taken {
		if p.Sub(q).Len() < minSpacing {
			return false
		}
	}
	return true
}

// GroundFunc returns the terrain elevation under (x, z).
type GroundFunc func(x, z float64) float64

type AroundResult struct {
	Positions []mgl64.Vec3
	// FellBack[i] is true when anchor i exhausted its attempts and got the
	// fixed offset instead of a random one.
	FellBack []bool
}

// SampleAround places one point per anchor. Each try offsets the anchor by a
// uniform amount in [-spacing, spacing] on x and z and accepts the first point
// whose planar distance from the anchor is at least exclusionRadius. After
// maxAttempts misses the point is anchor + (exclusionRadius, 0, 0). Heights
// come from ground.
func SampleAround(rng *rand.Rand, anchors []mgl64.Vec3, ground GroundFunc, spacing, exclusionRadius float64, maxAttempts int) AroundResult {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	res := AroundResult{
		Positions: make([]mgl64.Vec3, 0, len(anchors)),
		FellBack:  make([]bool, 0, len(anchors)),
	}
	for _, a := range anchors {
		p, ok := perturb(rng, a, spacing, exclusionRadius, maxAttempts)
		if !ok {
			p = mgl64.Vec3{a.X() + exclusionRadius, 0, a.Z()}
		}
		if ground != nil {
			p[1] = ground(p.X(), p.Z())
		}
		res.Positions = append(res.Positions, p)
		res.FellBack = append(res.FellBack, !ok)
	}
	return res
}

func perturb(rng *rand.Rand, a mgl64.Vec3, spacing, exclusionRadius float64, maxAttempts int) (mgl64.Vec3, bool) {
	for i := 0; i < maxAttempts; i++ {
		dx := (rng.Float64()*2 - 1) * spacing
		dz := (rng.Float64()*2 - 1) * spacing
		if math.Hypot(dx, dz) >= exclusionRadius {
			return mgl64.Vec3{a.X() + dx, 0, a.Z() + dz}, true
		}
	}
	return mgl64.Vec3{}, false
}

// AssignModels picks a model uniformly at random for each of n placements.
func AssignModels(rng *rand.Rand, models []string, n int) ([]string, error) {
	if len(models) == 0 {
		return nil, ErrNoAvailableModels
	}
	out := make([]string, n)
	for i := range out {
		out[i] = models[rng.Intn(len(models))]
	}
	return out, nil
}

// Scales draws one uniform scale per placement from [lo, hi].
func Scales(rng *rand.Rand, lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if hi > lo {
			out[i] = lo + rng.Float64()*(hi-lo)
		} else {
			out[i] = lo
		}
	}
	return out
}
