package session

import (
	"nightgrove/internal/protocol"
)

func (s *Session) WorldParams() protocol.WorldParams {
	p := s.ground.Params()
	return protocol.WorldParams{
		TickRateHz:  s.tune.TickRateHz,
		Seed:        p.Seed,
		GridW:       p.GridW,
		GridH:       p.GridH,
		Scale:       p.Scale,
		HeightScale: p.HeightScale,
		Octaves:     p.Octaves,
		Frequency:   p.Frequency,
	}
}

// Placements lists every static object the client must instantiate.
func (s *Session) Placements() []protocol.Placement {
	out := make([]protocol.Placement, 0, len(s.trees)+len(s.generators)+len(s.ruins)+len(s.keys))
	for _, d := range s.trees {
		out = append(out, placementOf(protocol.KindTree, d.Prop))
	}
	for _, g := range s.generators {
		out = append(out, protocol.Placement{ID: g.ID, Kind: protocol.KindGenerator, Model: g.Model, Pos: [3]float64(g.Pos), Scale: s.genScale[g.ID]})
	}
	for _, r := range s.ruins {
		out = append(out, placementOf(protocol.KindRuin, r))
	}
	for _, k := range s.keys {
		out = append(out, protocol.Placement{ID: k.ID, Kind: protocol.KindKey, Model: k.Model, Pos: [3]float64(k.Pos), Scale: 1})
	}
	return out
}

func placementOf(kind string, p Prop) protocol.Placement {
	return protocol.Placement{ID: p.ID, Kind: kind, Model: p.Model, Pos: [3]float64(p.Pos), Scale: p.Scale}
}

func (s *Session) Welcome() protocol.WelcomeMsg {
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       s.cfg.ID,
		WorldParams:     s.WorldParams(),
		Digests: protocol.Digests{
			Terrain: s.ground.Digest(),
			Tuning:  s.tune.Digest(),
			Models:  s.cfg.Catalog.Digest,
		},
		Placements: s.Placements(),
	}
}

// State builds the STATE message for the last processed tick.
func (s *Session) State() protocol.StateMsg {
	msg := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            s.tick,
		Player:          [3]float64(s.player),
		KeyCount:        s.keyCount,
		Outcome:         string(s.outcome),
		Escape: protocol.EscapeState{
			Enabled: s.escapeEnabled,
			Pos:     s.tune.Session.EscapePos,
			Radius:  s.tune.Session.EscapeRadius,
		},
		Events:      append([]protocol.Event(nil), s.events...),
		StateDigest: s.lastDigest,
	}
	if msg.StateDigest == "" {
		msg.StateDigest = s.StateDigest()
	}
	if s.slasher != nil {
		msg.Slasher = &protocol.SlasherState{
			Pos:  [3]float64(s.slasher.Pos),
			Yaw:  s.slasher.Yaw,
			Mode: s.slasher.Mode.String(),
		}
	}
	msg.Keys = make([]protocol.KeyState, 0, len(s.keys))
	for _, k := range s.keys {
		msg.Keys = append(msg.Keys, protocol.KeyState{ID: k.ID, Pos: [3]float64(k.Pos)})
	}
	msg.Generators = make([]protocol.GeneratorState, 0, len(s.generators))
	for _, g := range s.generators {
		msg.Generators = append(msg.Generators, protocol.GeneratorState{ID: g.ID, Activated: g.Activated, Indicator: string(g.Indicator())})
	}
	for _, d := range s.trees {
		if d.Visible {
			msg.Visible = append(msg.Visible, d.ID)
		}
	}
	return msg
}
