package ws

import (
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"nightgrove/internal/protocol"
	"nightgrove/internal/sim/catalogs"
	"nightgrove/internal/sim/tuning"
)

func newTestServer(t *testing.T, cfg Config) (*Server, string) {
	t.Helper()
	if cfg.Catalog == nil {
		cat, err := catalogs.Load("../../../configs")
		if err != nil {
			t.Fatalf("load catalogs: %v", err)
		}
		cfg.Catalog = cat
	}
	cfg.Tuning = tuning.Defaults()
	cfg.Logger = log.New(io.Discard, "", 0)
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hs.Close()
		// Handlers outlive hs.Close once hijacked; wait for them to release
		// their session files.
		deadline := time.Now().Add(3 * time.Second)
		for srv.ActiveSessions() > 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		_ = srv.Close()
	})
	return srv, "ws" + strings.TrimPrefix(hs.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readType reads messages until one of the given type arrives.
func readType(t *testing.T, conn *websocket.Conn, typ string) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read %s: %v", typ, err)
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if base.Type == typ {
			return msg
		}
	}
}

func hello(seed int64) protocol.HelloMsg {
	return protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, PlayerName: "runner", Seed: &seed}
}

func TestServer_HelloWelcomeState(t *testing.T) {
	_, url := newTestServer(t, Config{})
	conn := dial(t, url)
	send(t, conn, hello(42))

	var w protocol.WelcomeMsg
	if err := json.Unmarshal(readType(t, conn, protocol.TypeWelcome), &w); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(w.SessionID, "S_") || w.WorldParams.Seed != 42 {
		t.Fatalf("welcome=%+v", w)
	}
	if len(w.Placements) == 0 || w.Digests.Terrain == "" || w.Digests.Tuning == "" {
		t.Fatalf("welcome missing world data")
	}

	send(t, conn, protocol.InputMsg{
		Type: protocol.TypeInput, ProtocolVersion: protocol.Version, Seq: 1,
		Pos: [3]float64{12, 3, 12}, Forward: [3]float64{0, 0, 1},
	})
	var st protocol.StateMsg
	if err := json.Unmarshal(readType(t, conn, protocol.TypeState), &st); err != nil {
		t.Fatal(err)
	}
	if st.Outcome != protocol.OutcomeRunning || st.StateDigest == "" {
		t.Fatalf("state=%+v", st)
	}
}

func TestServer_RejectsBadHello(t *testing.T) {
	_, url := newTestServer(t, Config{})
	conn := dial(t, url)
	send(t, conn, map[string]any{"type": protocol.TypeHello, "protocol_version": "0.9"})

	var e protocol.ErrorMsg
	if err := json.Unmarshal(readType(t, conn, protocol.TypeError), &e); err != nil {
		t.Fatal(err)
	}
	if e.Code != protocol.ErrProtoVersion {
		t.Fatalf("code=%s", e.Code)
	}
}

func TestServer_BadInputGetsError(t *testing.T) {
	_, url := newTestServer(t, Config{SchemaDir: "../../../schemas"})
	conn := dial(t, url)
	send(t, conn, hello(1))
	readType(t, conn, protocol.TypeWelcome)

	send(t, conn, map[string]any{
		"type": protocol.TypeInput, "protocol_version": protocol.Version, "seq": 1,
		"pos": []float64{1, 2, 3}, "forward": []float64{0, 0, 1}, "teleport": true,
	})
	var e protocol.ErrorMsg
	if err := json.Unmarshal(readType(t, conn, protocol.TypeError), &e); err != nil {
		t.Fatal(err)
	}
	if e.Code != protocol.ErrProtoBadRequest {
		t.Fatalf("code=%s", e.Code)
	}
}

func TestServer_BusyWhenFull(t *testing.T) {
	_, url := newTestServer(t, Config{MaxSessions: 1})
	first := dial(t, url)
	send(t, first, hello(1))
	readType(t, first, protocol.TypeWelcome)

	second := dial(t, url)
	var e protocol.ErrorMsg
	if err := json.Unmarshal(readType(t, second, protocol.TypeError), &e); err != nil {
		t.Fatal(err)
	}
	if e.Code != protocol.ErrSessionBusy {
		t.Fatalf("code=%s", e.Code)
	}
}

func TestServer_InputAfterWinIsRejected(t *testing.T) {
	// Without generators the escape opens on the first tick.
	cat := catalogs.New(map[string][]string{
		"trees":     {"trees/pine_01.glb"},
		"abandoned": {"abandoned/shed.glb"},
		"keys":      {"keys/iron_key.glb"},
	})
	_, url := newTestServer(t, Config{Catalog: cat})
	conn := dial(t, url)
	send(t, conn, hello(3))
	readType(t, conn, protocol.TypeWelcome)

	input := protocol.InputMsg{
		Type: protocol.TypeInput, ProtocolVersion: protocol.Version, Seq: 1,
		Pos: [3]float64{5, 0, 5}, Forward: [3]float64{0, 0, 1},
	}
	send(t, conn, input)
	for {
		var st protocol.StateMsg
		if err := json.Unmarshal(readType(t, conn, protocol.TypeState), &st); err != nil {
			t.Fatal(err)
		}
		if st.Outcome == protocol.OutcomeWon {
			break
		}
		if st.Outcome != protocol.OutcomeRunning {
			t.Fatalf("outcome=%s", st.Outcome)
		}
	}

	// The run loop exits right after publishing the final state.
	time.Sleep(100 * time.Millisecond)
	input.Seq = 2
	send(t, conn, input)
	var e protocol.ErrorMsg
	if err := json.Unmarshal(readType(t, conn, protocol.TypeError), &e); err != nil {
		t.Fatal(err)
	}
	if e.Code != protocol.ErrSessionOver {
		t.Fatalf("code=%s", e.Code)
	}
}

func TestServer_WritesInitialSnapshot(t *testing.T) {
	dir := t.TempDir()
	_, url := newTestServer(t, Config{DataDir: dir})
	conn := dial(t, url)
	send(t, conn, hello(5))

	var w protocol.WelcomeMsg
	if err := json.Unmarshal(readType(t, conn, protocol.TypeWelcome), &w); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(SnapshotPath(SessionDir(dir, w.SessionID), 0)); err != nil {
		t.Fatalf("initial snapshot: %v", err)
	}
}
