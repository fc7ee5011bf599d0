package ws

import (
	"fmt"
	"log"
	"path/filepath"

	plog "nightgrove/internal/persistence/log"
	"nightgrove/internal/persistence/snapshot"
	"nightgrove/internal/sim/session"
)

// SessionDir is where a session's tick log and snapshots live.
func SessionDir(dataDir, sessionID string) string {
	return filepath.Join(dataDir, "sessions", sessionID)
}

// SnapshotPath is where the snapshot of a session at a tick is written.
func SnapshotPath(sessionDir string, tick uint64) string {
	return filepath.Join(sessionDir, "snapshots", fmt.Sprintf("%d.snap.zst", tick))
}

// sessionSinks owns the per-session persistence attached to one session.
type sessionSinks struct {
	dir   string
	log   *log.Logger
	ticks *plog.TickLogger

	snaps    chan snapshot.SnapshotV1
	snapDone chan struct{}
}

// attachSinks wires the tick log, index and snapshot writer into sess and
// writes the tick 0 snapshot replays start from.
func (s *Server) attachSinks(sess *session.Session) (*sessionSinks, error) {
	k := &sessionSinks{log: s.log}

	if ix := s.lifecycleIndex(); ix != nil {
		sess.SetIndex(ix)
	}
	if s.cfg.DataDir == "" {
		return k, nil
	}

	k.dir = SessionDir(s.cfg.DataDir, sess.ID())
	if err := snapshot.WriteSnapshot(SnapshotPath(k.dir, 0), sess.ExportSnapshot()); err != nil {
		return nil, err
	}
	k.ticks = plog.NewTickLogger(k.dir)
	sess.SetTickLogger(k.ticks)

	if s.cfg.SnapshotEveryTicks > 0 {
		k.snaps = make(chan snapshot.SnapshotV1, 1)
		k.snapDone = make(chan struct{})
		sess.SetSnapshotSink(k.snaps)
		go k.writeSnapshots()
	}
	return k, nil
}

func (k *sessionSinks) writeSnapshots() {
	defer close(k.snapDone)
	for snap := range k.snaps {
		path := SnapshotPath(k.dir, snap.Header.Tick)
		if err := snapshot.WriteSnapshot(path, snap); err != nil {
			k.log.Printf("snapshot %s: %v", path, err)
		}
	}
}

// close must run after the session has stopped ticking.
func (k *sessionSinks) close() {
	if k == nil {
		return
	}
	if k.snaps != nil {
		close(k.snaps)
		<-k.snapDone
	}
	if k.ticks != nil {
		if err := k.ticks.Close(); err != nil {
			k.log.Printf("tick log %s: %v", k.dir, err)
		}
	}
}

func (s *Server) lifecycleIndex() session.Index {
	if s.cfg.Index == nil && s.outcomes == nil {
		return nil
	}
	return lifecycle{index: s.cfg.Index, outcomes: s.outcomes, log: s.log}
}

// lifecycle fans session records out to the configured index and the outcome
// log.
type lifecycle struct {
	index    session.Index
	outcomes *plog.OutcomeLogger
	log      *log.Logger
}

func (l lifecycle) WriteTick(e session.TickLogEntry) error {
	if l.index == nil {
		return nil
	}
	return l.index.WriteTick(e)
}

func (l lifecycle) RecordSessionStart(rec session.Record) {
	if l.index != nil {
		l.index.RecordSessionStart(rec)
	}
	l.writeOutcome("start", rec)
}

func (l lifecycle) RecordSessionEnd(rec session.Record) {
	if l.index != nil {
		l.index.RecordSessionEnd(rec)
	}
	l.writeOutcome("end", rec)
}

func (l lifecycle) writeOutcome(event string, rec session.Record) {
	if l.outcomes == nil {
		return
	}
	if err := l.outcomes.WriteRecord(event, rec); err != nil {
		l.log.Printf("outcome log: %v", err)
	}
}
