package session

import (
	"fmt"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"

	"nightgrove/internal/sim/interact"
	"nightgrove/internal/sim/placement"
	"nightgrove/internal/sim/scene"
	"nightgrove/internal/sim/terrain"
	"nightgrove/internal/sim/tuning"
)

// Build generates the world for cfg.Seed: terrain, then trees, generators,
// ruins and finally keys around the ruins. All passes draw from one shuffled
// candidate list. A pass whose model category is empty is logged and skipped.
func Build(cfg Config) (*Session, error) {
	s, err := newSession(cfg)
	if err != nil {
		return nil, err
	}
	t := s.tune

	s.ground = terrain.Generate(terrainParams(cfg.Seed, t.Terrain))
	s.scene = scene.New(s.ground)

	rng := rand.New(rand.NewSource(cfg.Seed))
	candidates := s.ground.ValidPositions(t.Terrain.SpawnMargin)

	var trees []Prop
	trees, candidates = s.spacedPass(rng, "tree", t.Placement.Trees, candidates)
	for _, p := range trees {
		s.trees = append(s.trees, Decoration{Prop: p, Visible: true})
	}

	var gens []Prop
	gens, candidates = s.spacedPass(rng, "gen", t.Placement.Generators, candidates)
	for _, p := range gens {
		s.generators = append(s.generators, interact.NewGenerator(p.ID, p.Pos, p.Model, t.Interact.Radius))
		s.genScale[p.ID] = p.Scale
		s.addCollider(p, t.Placement.Generators.Collider)
	}

	s.ruins, _ = s.spacedPass(rng, "ruin", t.Placement.Ruins, candidates)
	for _, p := range s.ruins {
		s.addCollider(p, t.Placement.Ruins.Collider)
	}

	s.keys = s.keyPass(rng, t.Placement.Keys)

	s.draws = newCountingSource(aiSeed(cfg.Seed), 0)
	s.aiSrc = rand.New(s.draws)

	s.log.Printf("session %s built: seed=%d terrain=%s trees=%d generators=%d ruins=%d keys=%d",
		cfg.ID, cfg.Seed, s.ground.Digest()[:12], len(s.trees), len(s.generators), len(s.ruins), len(s.keys))
	return s, nil
}

// spacedPass returns the placed props and the candidate order for the next
// pass. An empty category leaves the candidates untouched.
func (s *Session) spacedPass(rng *rand.Rand, prefix string, pass tuning.SpacedPass, candidates []mgl64.Vec3) ([]Prop, []mgl64.Vec3) {
	models := s.cfg.Catalog.Models(pass.Category)
	if len(models) == 0 {
		s.log.Printf("placement %s: %v, skipped", pass.Category, placement.ErrNoAvailableModels)
		return nil, candidates
	}
	res := placement.SampleSpaced(rng, candidates, mgl64.Vec3(s.tune.Session.PlayerSpawn), pass.MaxCount, pass.MinSpacing)
	ids, err := placement.AssignModels(rng, models, len(res.Positions))
	if err != nil {
		s.log.Printf("placement %s: %v, skipped", pass.Category, err)
		return nil, res.Candidates
	}
	scales := placement.Scales(rng, pass.ScaleRange[0], pass.ScaleRange[1], len(res.Positions))

	out := make([]Prop, len(res.Positions))
	for i, pos := range res.Positions {
		out[i] = Prop{ID: fmt.Sprintf("%s-%d", prefix, i), Model: ids[i], Pos: pos, Scale: scales[i]}
	}
	return out, res.Candidates
}

func (s *Session) keyPass(rng *rand.Rand, pass tuning.AroundPass) []*interact.Key {
	models := s.cfg.Catalog.Models(pass.Category)
	if len(models) == 0 {
		s.log.Printf("placement %s: %v, skipped", pass.Category, placement.ErrNoAvailableModels)
		return nil
	}
	anchors := make([]mgl64.Vec3, 0, len(s.ruins))
	for _, r := range s.ruins {
		if len(anchors) == pass.MaxCount {
			break
		}
		anchors = append(anchors, r.Pos)
	}
	res := placement.SampleAround(rng, anchors, s.ground.HeightAt, pass.Spacing, pass.ExclusionRadius, pass.MaxAttempts)
	ids, err := placement.AssignModels(rng, models, len(res.Positions))
	if err != nil {
		s.log.Printf("placement %s: %v, skipped", pass.Category, err)
		return nil
	}
	keys := make([]*interact.Key, len(res.Positions))
	for i, pos := range res.Positions {
		if res.FellBack[i] {
			s.log.Printf("placement %s: anchor %d used fallback offset", pass.Category, i)
		}
		keys[i] = interact.NewKey(fmt.Sprintf("key-%d", i), pos, ids[i], s.tune.Interact.Radius)
	}
	return keys
}

// addCollider registers a box resting on the ground at p. half is scaled by
// the prop's scale; a zero box means no collider.
func (s *Session) addCollider(p Prop, half [3]float64) {
	h := mgl64.Vec3(half).Mul(p.Scale)
	if h.X() <= 0 || h.Y() <= 0 || h.Z() <= 0 {
		return
	}
	s.scene.AddBox(scene.Box{
		ID:     scene.EntityID(p.ID),
		Center: p.Pos.Add(mgl64.Vec3{0, h.Y(), 0}),
		Half:   h,
	})
}
