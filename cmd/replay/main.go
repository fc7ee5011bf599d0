package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	plog "nightgrove/internal/persistence/log"
	"nightgrove/internal/persistence/snapshot"
	"nightgrove/internal/sim/catalogs"
	"nightgrove/internal/sim/session"
)

func main() {
	var (
		sessionDir = flag.String("session", "", "session dir containing snapshots/ and events/")
		snapPath   = flag.String("snapshot", "", "path to .snap.zst (default: earliest snapshot under -session)")
		configDir  = flag.String("configs", "./configs", "config directory")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
	)
	flag.Parse()

	if *sessionDir == "" {
		fmt.Fprintln(os.Stderr, "missing -session")
		os.Exit(2)
	}
	sp := strings.TrimSpace(*snapPath)
	if sp == "" {
		sp = earliestSnapshot(*sessionDir)
	}
	if sp == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found under", *sessionDir)
		os.Exit(1)
	}

	snap, err := snapshot.ReadSnapshot(sp)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%d session=%s tick=%d seed=%d trees=%d generators=%d keys=%d outcome=%s\n",
		snap.Header.Version, snap.Header.SessionID, snap.Header.Tick, snap.Seed,
		len(snap.Trees), len(snap.Generators), len(snap.Keys), snap.Outcome)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	sess, err := session.ImportSnapshot(session.Config{Catalog: cats}, snap)
	if err != nil {
		fmt.Fprintln(os.Stderr, "import snapshot:", err)
		os.Exit(1)
	}

	entries, err := plog.ReadTickLog(*sessionDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read tick log:", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stderr, "no tick log entries under", *sessionDir)
		os.Exit(1)
	}

	checked, err := replay(sess, entries, *toTick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks (from snapshot tick=%d) outcome=%s\n", checked, snap.Header.Tick, sess.Outcome())
}

// replay re-steps sess with the recorded inputs and compares digests tick by
// tick. Entries before the session's current tick are skipped.
func replay(sess *session.Session, entries []session.TickLogEntry, toTick uint64) (uint64, error) {
	var checked uint64
	for _, e := range entries {
		if e.Tick < sess.CurrentTick() {
			continue
		}
		if toTick != 0 && e.Tick > toTick {
			break
		}
		if e.Tick != sess.CurrentTick() {
			return checked, fmt.Errorf("tick gap: want=%d got=%d", sess.CurrentTick(), e.Tick)
		}
		in := e.Input.Input()
		tick, digest, err := sess.StepOnce(&in)
		if errors.Is(err, session.ErrSessionOver) {
			return checked, fmt.Errorf("tick %d logged after the session ended", e.Tick)
		}
		if err != nil {
			return checked, err
		}
		if tick != e.Tick {
			return checked, fmt.Errorf("internal tick mismatch: stepped=%d entry=%d", tick, e.Tick)
		}
		checked++
		if digest != e.Digest {
			return checked, fmt.Errorf("digest mismatch at tick %d: got=%s want=%s", tick, digest, e.Digest)
		}
	}
	return checked, nil
}

func earliestSnapshot(sessionDir string) string {
	dir := filepath.Join(sessionDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick < bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}
