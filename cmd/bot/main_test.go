package main

import (
	"testing"

	"nightgrove/internal/protocol"
)

func TestBot_WalksKeysThenGenerators(t *testing.T) {
	w := protocol.WelcomeMsg{Placements: []protocol.Placement{
		{ID: "gen-0", Kind: protocol.KindGenerator, Pos: [3]float64{20, 0, 10}},
	}}
	b := newBot(w, 1)
	st := protocol.StateMsg{
		Player:     [3]float64{10, 0, 10},
		Keys:       []protocol.KeyState{{ID: "key-0", Pos: [3]float64{10, 0, 13}}},
		Generators: []protocol.GeneratorState{{ID: "gen-0"}},
	}

	in := b.next(st)
	if in.Pos != [3]float64{10, 0, 11} || in.Interact {
		t.Fatalf("first step=%+v", in)
	}
	b.next(st)
	in = b.next(st)
	if in.Pos != [3]float64{10, 0, 13} || !in.Interact {
		t.Fatalf("should reach the key and interact: %+v", in)
	}

	st.Keys = nil
	st.KeyCount = 1
	in = b.next(st)
	if in.Forward[0] <= 0 {
		t.Fatalf("should head to the generator, forward=%v", in.Forward)
	}

	st.KeyCount = 0
	st.Generators[0].Activated = true
	st.Escape = protocol.EscapeState{Enabled: true, Pos: [3]float64{5, 0, 5}}
	in = b.next(st)
	if in.Forward[0] >= 0 || in.Forward[2] >= 0 {
		t.Fatalf("should head to the escape, forward=%v", in.Forward)
	}
}
