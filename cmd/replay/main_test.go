package main

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"nightgrove/internal/sim/catalogs"
	"nightgrove/internal/sim/session"
	"nightgrove/internal/sim/tuning"
)

type memLog struct{ entries []session.TickLogEntry }

func (m *memLog) WriteTick(e session.TickLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func recordSession(t *testing.T, ticks int) (*session.Session, *memLog) {
	t.Helper()
	cats, err := catalogs.Load("../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	s, err := session.Build(session.Config{ID: "rec", Seed: 77, Tuning: tuning.Defaults(), Catalog: cats})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	l := &memLog{}
	s.SetTickLogger(l)
	for i := 0; i < ticks; i++ {
		a := float64(i) * 0.03
		in := &session.Input{
			Pos:     mgl64.Vec3{50 + 15*math.Cos(a), 1, 50 + 15*math.Sin(a)},
			Forward: mgl64.Vec3{math.Cos(a), 0, math.Sin(a)},
		}
		if i%4 == 0 {
			in = nil
		}
		if _, _, err := s.StepOnce(in); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	return s, l
}

func TestReplay_MatchesRecordedDigests(t *testing.T) {
	cats, err := catalogs.Load("../../configs")
	if err != nil {
		t.Fatal(err)
	}
	fresh, err := session.Build(session.Config{ID: "rec", Seed: 77, Tuning: tuning.Defaults(), Catalog: cats})
	if err != nil {
		t.Fatal(err)
	}
	start := fresh.ExportSnapshot()

	_, l := recordSession(t, 120)

	replayed, err := session.ImportSnapshot(session.Config{Catalog: cats}, start)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	checked, err := replay(replayed, l.entries, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if checked != 120 {
		t.Fatalf("checked=%d want 120", checked)
	}
}

func TestReplay_DetectsTamperedLog(t *testing.T) {
	cats, err := catalogs.Load("../../configs")
	if err != nil {
		t.Fatal(err)
	}
	fresh, err := session.Build(session.Config{ID: "rec", Seed: 77, Tuning: tuning.Defaults(), Catalog: cats})
	if err != nil {
		t.Fatal(err)
	}
	start := fresh.ExportSnapshot()

	_, l := recordSession(t, 30)
	l.entries[10].Input.Pos[0] += 5

	replayed, err := session.ImportSnapshot(session.Config{Catalog: cats}, start)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := replay(replayed, l.entries, 0); err == nil {
		t.Fatalf("expected a digest mismatch")
	}
}
