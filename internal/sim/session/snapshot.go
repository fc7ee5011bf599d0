package session

import (
	"fmt"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"

	"nightgrove/internal/persistence/snapshot"
	"nightgrove/internal/sim/ai"
	"nightgrove/internal/sim/interact"
	"nightgrove/internal/sim/scene"
	"nightgrove/internal/sim/terrain"
	"nightgrove/internal/sim/tuning"
)

func (s *Session) ExportSnapshot() snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header:        snapshot.Header{Version: snapshot.Version, SessionID: s.cfg.ID, Tick: s.tick},
		Seed:          s.cfg.Seed,
		TuningYAML:    s.tune.YAML(),
		TuningDigest:  s.tune.Digest(),
		TerrainDigest: s.ground.Digest(),
		ModelsDigest:  s.cfg.Catalog.Digest,
		Player:        [3]float64(s.player),
		Forward:       [3]float64(s.forward),
		AIDraws:       s.draws.draws,
		KeyCount:      s.keyCount,
		KeysCollected: s.keysCollected,
		EscapeEnabled: s.escapeEnabled,
		Outcome:       string(s.outcome),
	}
	if s.slasher != nil {
		st := s.slasher.State
		snap.Slasher = &snapshot.SlasherV1{
			Pos:         [3]float64(st.Pos),
			Yaw:         st.Yaw,
			Mode:        int(st.Mode),
			WanderDir:   [3]float64(st.WanderDir),
			WanderTimer: st.WanderTimer,
			VelocityY:   st.VelocityY,
		}
	}
	for _, d := range s.trees {
		snap.Trees = append(snap.Trees, snapshot.DecorationV1{PropV1: propV1(d.Prop), Visible: d.Visible})
	}
	for _, r := range s.ruins {
		snap.Ruins = append(snap.Ruins, propV1(r))
	}
	for _, g := range s.generators {
		p := Prop{ID: g.ID, Model: g.Model, Pos: g.Pos, Scale: s.genScale[g.ID]}
		snap.Generators = append(snap.Generators, snapshot.GeneratorV1{PropV1: propV1(p), Activated: g.Activated})
	}
	for _, k := range s.keys {
		snap.Keys = append(snap.Keys, snapshot.KeyV1{ID: k.ID, Model: k.Model, Pos: [3]float64(k.Pos), Active: k.Active})
	}
	return snap
}

func propV1(p Prop) snapshot.PropV1 {
	return snapshot.PropV1{ID: p.ID, Model: p.Model, Pos: [3]float64(p.Pos), Scale: p.Scale}
}

func propFromV1(p snapshot.PropV1) Prop {
	return Prop{ID: p.ID, Model: p.Model, Pos: mgl64.Vec3(p.Pos), Scale: p.Scale}
}

// ImportSnapshot restores a session. The tuning embedded in the snapshot wins
// over cfg.Tuning, and cfg.Seed is ignored. The regenerated terrain must match
// the recorded digest, and cfg.Catalog must match the recorded models digest
// when the snapshot carries one.
func ImportSnapshot(cfg Config, snap snapshot.SnapshotV1) (*Session, error) {
	if snap.Header.Version != snapshot.Version {
		return nil, fmt.Errorf("snapshot: unsupported version %d", snap.Header.Version)
	}
	tune, err := tuning.Parse(snap.TuningYAML)
	if err != nil {
		return nil, fmt.Errorf("snapshot tuning: %w", err)
	}
	if snap.TuningDigest != "" && tune.Digest() != snap.TuningDigest {
		return nil, fmt.Errorf("snapshot tuning digest mismatch")
	}
	cfg.Tuning = tune
	cfg.Seed = snap.Seed
	if cfg.ID == "" {
		cfg.ID = snap.Header.SessionID
	}

	s, err := newSession(cfg)
	if err != nil {
		return nil, err
	}
	if snap.ModelsDigest != "" && s.cfg.Catalog.Digest != snap.ModelsDigest {
		return nil, fmt.Errorf("snapshot models digest mismatch: got %s want %s", s.cfg.Catalog.Digest, snap.ModelsDigest)
	}
	s.ground = terrain.Generate(terrainParams(snap.Seed, tune.Terrain))
	if d := s.ground.Digest(); d != snap.TerrainDigest {
		return nil, fmt.Errorf("snapshot terrain digest mismatch: got %s want %s", d, snap.TerrainDigest)
	}
	s.scene = scene.New(s.ground)

	s.tick = snap.Header.Tick
	s.player = mgl64.Vec3(snap.Player)
	s.forward = mgl64.Vec3(snap.Forward)
	s.draws = newCountingSource(aiSeed(snap.Seed), snap.AIDraws)
	s.aiSrc = rand.New(s.draws)

	if sl := snap.Slasher; sl != nil {
		s.slasher = ai.New(SlasherID, s.aiConfig(), mgl64.Vec3(sl.Pos))
		s.slasher.State = ai.State{
			Pos:         mgl64.Vec3(sl.Pos),
			Yaw:         sl.Yaw,
			Mode:        ai.Mode(sl.Mode),
			WanderDir:   mgl64.Vec3(sl.WanderDir),
			WanderTimer: sl.WanderTimer,
			VelocityY:   sl.VelocityY,
		}
	}

	for _, d := range snap.Trees {
		s.trees = append(s.trees, Decoration{Prop: propFromV1(d.PropV1), Visible: d.Visible})
	}
	for _, r := range snap.Ruins {
		p := propFromV1(r)
		s.ruins = append(s.ruins, p)
		s.addCollider(p, tune.Placement.Ruins.Collider)
	}
	for _, g := range snap.Generators {
		p := propFromV1(g.PropV1)
		gen := interact.NewGenerator(p.ID, p.Pos, p.Model, tune.Interact.Radius)
		gen.Activated = g.Activated
		s.generators = append(s.generators, gen)
		s.genScale[p.ID] = p.Scale
		s.addCollider(p, tune.Placement.Generators.Collider)
	}
	for _, k := range snap.Keys {
		key := interact.NewKey(k.ID, mgl64.Vec3(k.Pos), k.Model, tune.Interact.Radius)
		key.Active = k.Active
		s.keys = append(s.keys, key)
	}

	s.keyCount = snap.KeyCount
	s.keysCollected = snap.KeysCollected
	s.escapeEnabled = snap.EscapeEnabled
	s.outcome = Outcome(snap.Outcome)
	if s.outcome == "" {
		s.outcome = Running
	}
	return s, nil
}
