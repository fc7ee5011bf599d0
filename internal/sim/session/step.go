package session

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"nightgrove/internal/protocol"
	"nightgrove/internal/sim/ai"
	"nightgrove/internal/sim/interact"
)

// StepOnce advances the session by a single tick using the same ordering
// semantics as Run. A nil input holds the player where the last one left it.
// It returns the tick that was processed and the digest after it.
func (s *Session) StepOnce(in *Input) (tick uint64, digest string, err error) {
	if s.Over() {
		return s.tick, "", ErrSessionOver
	}
	eff := Input{Pos: s.player, Forward: s.forward}
	if in != nil {
		eff = *in
	}
	tick = s.tick
	s.step(eff)
	digest = s.StateDigest()
	s.lastDigest = digest
	s.afterStep(tick, eff, digest)
	return tick, digest, nil
}

func (s *Session) step(in Input) {
	s.events = s.events[:0]
	now := s.tick
	s.tick++

	s.cull(in.Pos, in.Forward)
	s.advanceSlasher(now, in.Pos)

	s.player = in.Pos
	if in.Forward.Len() > 0 {
		s.forward = in.Forward
	}

	if !s.escapeEnabled && interact.AllActivated(s.generators) {
		s.escapeEnabled = true
		s.emit(now, protocol.Event{"type": EventEscapeEnabled})
		s.log.Printf("session %s tick %d: all generators active, escape enabled", s.cfg.ID, now)
	}
	escape := mgl64.Vec3(s.tune.Session.EscapePos)
	if s.escapeEnabled && s.player.Sub(escape).Len() < s.tune.Session.EscapeRadius {
		s.finish(now, Won, protocol.Event{"type": EventEscaped})
		return
	}

	if s.player.Y() < s.tune.Session.FallFloor {
		from := s.player
		s.player = mgl64.Vec3(s.tune.Session.RecoverPos)
		s.emit(now, protocol.Event{"type": EventPlayerRecovered, "from": from})
		s.log.Printf("session %s tick %d: player fell to y=%.1f, recovered", s.cfg.ID, now, from.Y())
	}
	if s.slasher != nil && ai.PlanarDistance(s.slasher.Pos, s.player) < s.tune.Session.CaptureDistance {
		s.finish(now, Lost, protocol.Event{"type": EventCaptured})
		return
	}

	kept := s.keys[:0]
	for _, k := range s.keys {
		if k.TryCollect(s.player, in.Interact) {
			s.keyCount++
			s.keysCollected++
			s.emit(now, protocol.Event{"type": EventKeyCollected, "id": k.ID, "key_count": s.keyCount})
			s.log.Printf("session %s tick %d: key %s collected (keys=%d)", s.cfg.ID, now, k.ID, s.keyCount)
		}
		if k.Active {
			kept = append(kept, k)
		}
	}
	for i := len(kept); i < len(s.keys); i++ {
		s.keys[i] = nil
	}
	s.keys = kept

	for _, g := range s.generators {
		ok, delta := g.TryActivate(s.player, in.Interact, s.keyCount)
		if !ok {
			continue
		}
		s.keyCount += delta
		s.emit(now, protocol.Event{"type": EventGeneratorActivated, "id": g.ID, "key_count": s.keyCount})
		s.log.Printf("session %s tick %d: generator %s activated (keys=%d)", s.cfg.ID, now, g.ID, s.keyCount)
	}
}

func (s *Session) advanceSlasher(now uint64, target mgl64.Vec3) {
	if s.slasher == nil {
		if now < s.spawnAt {
			return
		}
		s.slasher = ai.New(SlasherID, s.aiConfig(), mgl64.Vec3(s.tune.Slasher.Spawn))
		s.emit(now, protocol.Event{"type": EventSlasherSpawned, "pos": s.slasher.Pos})
		s.log.Printf("session %s tick %d: slasher spawned", s.cfg.ID, now)
	}
	for _, ev := range s.slasher.Update(s.dt, target, s.scene, s.aiSrc) {
		s.emit(now, protocol.Event{"type": string(ev.Type), "distance": ev.Distance})
		s.log.Printf("session %s tick %d: %s at %.1f", s.cfg.ID, now, ev.Type, ev.Distance)
	}
}

// cull marks each tree visible when it lies inside the view cone.
func (s *Session) cull(eye, forward mgl64.Vec3) {
	half := s.tune.Session.ViewFOVDeg / 2
	for i := range s.trees {
		s.trees[i].Visible = inView(eye, forward, s.trees[i].Pos, half)
	}
}

func inView(eye, forward, p mgl64.Vec3, halfDeg float64) bool {
	to := p.Sub(eye)
	if forward.Len() == 0 || to.Len() == 0 {
		return true
	}
	cos := forward.Normalize().Dot(to.Normalize())
	cos = math.Max(-1, math.Min(1, cos))
	return mgl64.RadToDeg(math.Acos(cos)) < halfDeg
}

func (s *Session) emit(now uint64, ev protocol.Event) {
	ev["t"] = now
	s.events = append(s.events, ev)
}

func (s *Session) finish(now uint64, o Outcome, ev protocol.Event) {
	s.outcome = o
	s.emit(now, ev)
	s.log.Printf("session %s tick %d: %s", s.cfg.ID, now, o)
}

func (s *Session) afterStep(tick uint64, in Input, digest string) {
	entry := TickLogEntry{
		SessionID: s.cfg.ID,
		Tick:      tick,
		Input:     RecordedInput{Pos: [3]float64(in.Pos), Forward: [3]float64(in.Forward), Interact: in.Interact},
		Events:    append([]protocol.Event(nil), s.events...),
		Digest:    digest,
	}
	if s.tickLogger != nil {
		_ = s.tickLogger.WriteTick(entry)
	}
	if s.index != nil {
		_ = s.index.WriteTick(entry)
		if s.Over() {
			s.index.RecordSessionEnd(s.record())
		}
	}
	if s.snapshotSink != nil && s.cfg.SnapshotEveryTicks > 0 && s.tick%s.cfg.SnapshotEveryTicks == 0 {
		select {
		case s.snapshotSink <- s.ExportSnapshot():
		default:
		}
	}
}

// Events returns the events of the last processed tick.
func (s *Session) Events() []protocol.Event { return s.events }
