// Package interact holds the objects the player picks up or switches on.
package interact

import (
	"github.com/go-gl/mathgl/mgl64"
)

// DefaultRadius is the pickup/activation reach.
const DefaultRadius = 2.0

type Indicator string

const (
	IndicatorRed   Indicator = "red"
	IndicatorGreen Indicator = "green"
)

type Key struct {
	ID     string
	Pos    mgl64.Vec3
	Model  string
	Radius float64
	Active bool
}

func NewKey(id string, pos mgl64.Vec3, model string, radius float64) *Key {
	if radius <= 0 {
		radius = DefaultRadius
	}
	return &Key{ID: id, Pos: pos, Model: model, Radius: radius, Active: true}
}

// TryCollect deactivates the key when the actor is in reach and interacting.
// It returns true at most once per key; the caller owns the counter.
func (k *Key) TryCollect(actor mgl64.Vec3, interact bool) bool {
	if !k.Active || !interact || actor.Sub(k.Pos).Len() >= k.Radius {
		return false
	}
	k.Active = false
	return true
}

type Generator struct {
	ID        string
	Pos       mgl64.Vec3
	Model     string
	Radius    float64
	Activated bool
}

func NewGenerator(id string, pos mgl64.Vec3, model string, radius float64) *Generator {
	if radius <= 0 {
		radius = DefaultRadius
	}
	return &Generator{ID: id, Pos: pos, Model: model, Radius: radius}
}

// TryActivate switches the generator on using one of the available keys. On
// success it returns (true, -1); otherwise (false, 0). Activation is one-shot.
func (g *Generator) TryActivate(actor mgl64.Vec3, interact bool, available int) (bool, int) {
	if g.Activated || available < 1 || !interact || actor.Sub(g.Pos).Len() >= g.Radius {
		return false, 0
	}
	g.Activated = true
	return true, -1
}

func (g *Generator) Indicator() Indicator {
	if g.Activated {
		return IndicatorGreen
	}
	return IndicatorRed
}

// AllActivated reports whether every generator is on. An empty set counts as
// done.
func AllActivated(gens []*Generator) bool {
	for _, g := range gens {
		if !g.Activated {
			return false
		}
	}
	return true
}
