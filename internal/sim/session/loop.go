package session

import (
	"context"
	"encoding/json"
	"time"
)

// Run ticks the session at TickRateHz until it is won or lost, stopped, or
// ctx is cancelled. Inputs received between ticks collapse to the latest one;
// interact presses are kept so a tap between ticks is not lost.
func (s *Session) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(s.tune.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if s.index != nil {
		s.index.RecordSessionStart(s.record())
	}

	var pending *Input
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case in := <-s.inputs:
			if pending != nil && pending.Interact {
				in.Interact = true
			}
			pending = &in
		case <-ticker.C:
			if _, _, err := s.StepOnce(pending); err != nil {
				return nil
			}
			pending = nil
			s.publish()
			if s.Over() {
				return nil
			}
		}
	}
}

func (s *Session) Stop() { s.stopOnce.Do(func() { close(s.stop) }) }

func (s *Session) publish() {
	if s.out == nil {
		return
	}
	b, err := json.Marshal(s.State())
	if err != nil {
		s.log.Printf("session %s: encode state: %v", s.cfg.ID, err)
		return
	}
	sendLatest(s.out, b)
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
