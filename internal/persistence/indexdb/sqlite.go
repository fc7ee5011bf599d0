package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"nightgrove/internal/sim/catalogs"
	"nightgrove/internal/sim/session"
	"nightgrove/internal/sim/tuning"
)

// SQLiteIndex is a queryable read-model of sessions and their events. Writes go
// through a single goroutine; the JSONL tick log remains the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick    atomic.Uint64
	dropSession atomic.Uint64
	writeErr    atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSessionStart
	reqSessionEnd
)

type req struct {
	kind reqKind

	tick session.TickLogEntry
	rec  session.Record
}

type Stats struct {
	DropTickTotal    uint64
	DropSessionTotal uint64
	WriteErrTotal    uint64
	QueueDepth       int
	QueueCapacity    int
}

// SessionRow is one row of the sessions table.
type SessionRow struct {
	ID                  string
	Seed                int64
	StartedAt           string
	EndedAt             string
	Outcome             string
	Ticks               uint64
	KeysCollected       int
	GeneratorsActivated int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			seed INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			outcome TEXT NOT NULL,
			ticks INTEGER NOT NULL DEFAULT 0,
			keys_collected INTEGER NOT NULL DEFAULT 0,
			generators_activated INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_outcome ON sessions(outcome);`,
		`CREATE TABLE IF NOT EXISTS events (
			session_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (session_id, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(type, session_id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropTickTotal:    s.dropTick.Load(),
		DropSessionTotal: s.dropSession.Load(),
		WriteErrTotal:    s.writeErr.Load(),
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
	}
}

// WriteTick queues the tick's events. Ticks without events only bump the
// session's tick counter.
func (s *SQLiteIndex) WriteTick(entry session.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSessionStart(rec session.Record) { s.enqueueSession(reqSessionStart, rec) }
func (s *SQLiteIndex) RecordSessionEnd(rec session.Record)   { s.enqueueSession(reqSessionEnd, rec) }

func (s *SQLiteIndex) enqueueSession(kind reqKind, rec session.Record) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: kind, rec: rec}:
	default:
		s.dropSession.Add(1)
	}
}

// UpsertCatalogs stores the model catalog and the tuning in effect, keyed by
// digest, so recorded sessions can be matched to their configuration.
func (s *SQLiteIndex) UpsertCatalogs(cat *catalogs.Catalog, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	models := map[string][]string{}
	for _, c := range cat.Categories() {
		models[c] = cat.Models(c)
	}
	modelsJSON, err := json.Marshal(models)
	if err != nil {
		return err
	}
	tuneJSON, err := json.Marshal(tune)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	if _, err := stmt.Exec("models", cat.Digest, string(modelsJSON), now); err != nil {
		return err
	}
	if _, err := stmt.Exec("tuning", tune.Digest(), string(tuneJSON), now); err != nil {
		return err
	}
	return tx.Commit()
}

// LookupSession reads one session row. Rows are written asynchronously, so a
// session recorded moments ago may not be visible yet.
func (s *SQLiteIndex) LookupSession(ctx context.Context, id string) (SessionRow, bool, error) {
	var (
		r       SessionRow
		endedAt sql.NullString
		ticks   int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id,seed,started_at,ended_at,outcome,ticks,keys_collected,generators_activated FROM sessions WHERE id=?`, id,
	).Scan(&r.ID, &r.Seed, &r.StartedAt, &endedAt, &r.Outcome, &ticks, &r.KeysCollected, &r.GeneratorsActivated)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRow{}, false, nil
	}
	if err != nil {
		return SessionRow{}, false, err
	}
	r.EndedAt = endedAt.String
	r.Ticks = uint64(ticks)
	return r, true, nil
}

// CountEvents returns the number of indexed events of the given type for a
// session; an empty type counts all.
func (s *SQLiteIndex) CountEvents(ctx context.Context, sessionID, typ string) (int, error) {
	var n int
	var err error
	if typ == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE session_id=?`, sessionID).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE session_id=? AND type=?`, sessionID, typ).Scan(&n)
	}
	return n, err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(session_id,tick,seq,type,raw_json) VALUES(?,?,?,?,?)`)
	updateTicks, _ := s.db.Prepare(`UPDATE sessions SET ticks=? WHERE id=? AND ticks<?`)
	insertSession, _ := s.db.Prepare(`INSERT OR REPLACE INTO sessions(id,seed,started_at,ended_at,outcome,ticks,keys_collected,generators_activated) VALUES(?,?,?,NULL,?,?,?,?)`)
	endSession, _ := s.db.Prepare(`UPDATE sessions SET ended_at=?,outcome=?,ticks=?,keys_collected=?,generators_activated=? WHERE id=?`)
	defer func() {
		for _, st := range []*sql.Stmt{insertEvent, updateTicks, insertSession, endSession} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.writeErr.Add(1)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErr.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		s.writeErr.Add(1)
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return true
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			e := r.tick
			if !exec(updateTicks, int64(e.Tick), e.SessionID, int64(e.Tick)) {
				continue
			}
			for i, ev := range e.Events {
				typ, _ := ev["type"].(string)
				raw, _ := json.Marshal(ev)
				if !exec(insertEvent, e.SessionID, int64(e.Tick), i, typ, string(raw)) {
					break
				}
			}

		case reqSessionStart:
			rec := r.rec
			if !exec(insertSession, rec.ID, rec.Seed, formatTime(rec.At), string(rec.Outcome),
				int64(rec.Tick), rec.KeysCollected, rec.GeneratorsActivated) {
				continue
			}
			// Session lifecycle rows are rare; make them visible promptly.
			commit()
			continue

		case reqSessionEnd:
			rec := r.rec
			if !exec(endSession, formatTime(rec.At), string(rec.Outcome), int64(rec.Tick),
				rec.KeysCollected, rec.GeneratorsActivated, rec.ID) {
				continue
			}
			commit()
			continue
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}
