package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	plog "nightgrove/internal/persistence/log"
	"nightgrove/internal/protocol"
	"nightgrove/internal/sim/catalogs"
	"nightgrove/internal/sim/session"
	"nightgrove/internal/sim/tuning"
)

type Config struct {
	Tuning  tuning.Tuning
	Catalog *catalogs.Catalog
	Logger  *log.Logger

	// Index receives session lifecycle and tick records. Optional.
	Index session.Index
	// DataDir holds per-session tick logs and snapshots. Empty disables both.
	DataDir            string
	SnapshotEveryTicks uint64

	// MaxSessions caps concurrent sessions; 0 means unlimited.
	MaxSessions int
	// SchemaDir enables strict validation of HELLO and INPUT against
	// hello.schema.json and input.schema.json.
	SchemaDir string

	// NewSeed picks a seed when HELLO omits one.
	NewSeed func() int64
}

type Server struct {
	cfg Config
	log *log.Logger

	mu   sync.RWMutex
	tune tuning.Tuning

	active atomic.Int64

	outcomes *plog.OutcomeLogger

	helloSchema *jsonschema.Schema
	inputSchema *jsonschema.Schema

	upgrader websocket.Upgrader
}

func NewServer(cfg Config) (*Server, error) {
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.NewSeed == nil {
		cfg.NewSeed = func() int64 { return time.Now().UnixNano() }
	}
	s := &Server{
		cfg:  cfg,
		log:  cfg.Logger,
		tune: cfg.Tuning,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	if cfg.DataDir != "" {
		s.outcomes = plog.NewOutcomeLogger(cfg.DataDir)
	}
	if cfg.SchemaDir != "" {
		var err error
		if s.helloSchema, err = jsonschema.Compile(filepath.Join(cfg.SchemaDir, "hello.schema.json")); err != nil {
			return nil, fmt.Errorf("hello schema: %w", err)
		}
		if s.inputSchema, err = jsonschema.Compile(filepath.Join(cfg.SchemaDir, "input.schema.json")); err != nil {
			return nil, fmt.Errorf("input schema: %w", err)
		}
	}
	return s, nil
}

// SetTuning replaces the tuning used for sessions created from now on.
// Running sessions keep the tuning they started with.
func (s *Server) SetTuning(t tuning.Tuning) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.tune = t
	s.mu.Unlock()
	return nil
}

func (s *Server) Tuning() tuning.Tuning {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tune
}

func (s *Server) ActiveSessions() int { return int(s.active.Load()) }

// Close flushes server-wide logs. Call it after the HTTP server has stopped.
func (s *Server) Close() error {
	if s.outcomes == nil {
		return nil
	}
	return s.outcomes.Close()
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		n := s.active.Add(1)
		defer s.active.Add(-1)
		if limit := s.cfg.MaxSessions; limit > 0 && n > int64(limit) {
			_ = writeJSON(conn, protocol.NewError(protocol.ErrSessionBusy, "server full"))
			return
		}

		sess, sinks := s.handshake(conn)
		if sess == nil {
			return
		}
		defer sinks.close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		out := make(chan []byte, 8)
		replies := make(chan []byte, 4)
		sess.SetOut(out)

		// Writer goroutine: the only one that writes to conn after the handshake.
		go func() {
			for {
				var b []byte
				select {
				case <-ctx.Done():
					return
				case b = <-out:
				case b = <-replies:
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}()

		runDone := make(chan struct{})
		go func() {
			defer close(runDone)
			if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Printf("session %s: run: %v", sess.ID(), err)
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			in, code, reason := s.decodeInput(msg)
			if code == "" {
				select {
				case <-runDone:
					code, reason = protocol.ErrSessionOver, "session is over"
				default:
				}
			}
			if code != "" {
				reply(replies, protocol.NewError(code, reason))
				continue
			}
			select {
			case sess.Inputs() <- in:
			default:
				// Run drains inputs every tick; a full buffer means the client
				// is sending far faster than the tick rate.
			}
		}

		<-runDone
		s.log.Printf("session %s closed at tick %d (%s)", sess.ID(), sess.CurrentTick(), sess.Outcome())
	}
}

func (s *Server) decodeInput(msg []byte) (session.Input, string, string) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return session.Input{}, protocol.ErrProtoBadRequest, "invalid json"
	}
	if base.Type != protocol.TypeInput {
		return session.Input{}, protocol.ErrProtoBadRequest, "expected INPUT"
	}
	if base.ProtocolVersion != protocol.Version {
		return session.Input{}, protocol.ErrProtoVersion, "bad protocol_version"
	}
	if err := validate(s.inputSchema, msg); err != nil {
		return session.Input{}, protocol.ErrProtoBadRequest, err.Error()
	}
	var m protocol.InputMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		return session.Input{}, protocol.ErrProtoBadRequest, "bad INPUT"
	}
	return session.InputFromMsg(m), "", ""
}

func (s *Server) handshake(conn *websocket.Conn) (*session.Session, *sessionSinks) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, nil
	}

	fail := func(code, reason string) (*session.Session, *sessionSinks) {
		_ = writeJSON(conn, protocol.NewError(code, reason))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
		return nil, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		return fail(protocol.ErrProtoBadRequest, "expected HELLO")
	}
	if base.ProtocolVersion != protocol.Version {
		return fail(protocol.ErrProtoVersion, "bad protocol_version")
	}
	if err := validate(s.helloSchema, msg); err != nil {
		return fail(protocol.ErrProtoBadRequest, err.Error())
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return fail(protocol.ErrProtoBadRequest, "bad HELLO")
	}
	name := strings.TrimSpace(hello.PlayerName)
	if name == "" {
		name = "player"
	}
	seed := s.cfg.NewSeed()
	if hello.Seed != nil {
		seed = *hello.Seed
	}

	id := "S_" + uuid.NewString()
	sess, err := session.Build(session.Config{
		ID:                 id,
		Seed:               seed,
		Tuning:             s.Tuning(),
		Catalog:            s.cfg.Catalog,
		Logger:             s.log,
		SnapshotEveryTicks: s.cfg.SnapshotEveryTicks,
	})
	if err != nil {
		s.log.Printf("session %s: build: %v", id, err)
		return fail(protocol.ErrInternal, "cannot build session")
	}
	sinks, err := s.attachSinks(sess)
	if err != nil {
		s.log.Printf("session %s: open logs: %v", id, err)
		return fail(protocol.ErrInternal, "cannot open session logs")
	}
	s.log.Printf("session %s: player=%q seed=%d", id, name, seed)

	if err := writeJSON(conn, sess.Welcome()); err != nil {
		sinks.close()
		return nil, nil
	}
	return sess, sinks
}

func validate(sch *jsonschema.Schema, msg []byte) error {
	if sch == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(msg, &v); err != nil {
		return err
	}
	return sch.Validate(v)
}

func reply(ch chan []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case ch <- b:
	default:
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
