package terrain

import (
	perlin "github.com/aquilax/go-perlin"
)

// Octave weighting for the summed noise; 2/2 gives the classic 1/f falloff.
const (
	noiseAlpha = 2.0
	noiseBeta  = 2.0
)

// Generate samples Perlin noise at every vertex. Same Params, same field.
func Generate(p Params) *HeightField {
	if p.Octaves <= 0 {
		p.Octaves = 3
	}
	if p.Frequency == 0 {
		p.Frequency = 0.1
	}
	if p.GridW < 2 {
		p.GridW = 2
	}
	if p.GridH < 2 {
		p.GridH = 2
	}
	if p.Scale <= 0 {
		p.Scale = 1
	}
	noise := perlin.NewPerlin(noiseAlpha, noiseBeta, int32(p.Octaves), p.Seed)

	heights := make([]float64, p.GridW*p.GridH)
	for j := 0; j < p.GridH; j++ {
		for i := 0; i < p.GridW; i++ {
			n := noise.Noise2D(float64(i)*p.Frequency, float64(j)*p.Frequency)
			heights[i+j*p.GridW] = n * p.HeightScale
		}
	}
	return &HeightField{p: p, heights: heights}
}
