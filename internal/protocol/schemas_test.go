package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"nightgrove/internal/protocol"
)

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

func validateJSON(t *testing.T, s *jsonschema.Schema, raw []byte) {
	t.Helper()
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := s.Validate(v); err != nil {
		t.Fatalf("validate: %v\n%s", err, raw)
	}
}

func TestSchemas_ValidateSamples(t *testing.T) {
	validateJSON(t, compileSchema(t, "hello.schema.json"), []byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "player_name":"runner",
	  "seed":1337
	}`))

	validateJSON(t, compileSchema(t, "welcome.schema.json"), []byte(`{
	  "type":"WELCOME",
	  "protocol_version":"1.0",
	  "session_id":"S1",
	  "world_params":{"tick_rate_hz":30,"seed":1337,"grid_w":50,"grid_h":50,"scale":8,"height_scale":3,"octaves":3,"frequency":0.1},
	  "digests":{"terrain":"deadbeef","tuning":"deadbeef","models":"deadbeef"},
	  "placements":[{"id":"tree-0","kind":"TREE","model":"trees/pine_01.glb","pos":[16,0.4,24],"scale":2.5}]
	}`))

	validateJSON(t, compileSchema(t, "input.schema.json"), []byte(`{
	  "type":"INPUT",
	  "protocol_version":"1.0",
	  "seq":4,
	  "pos":[10,3,10],
	  "forward":[0,0,1],
	  "interact":true
	}`))

	validateJSON(t, compileSchema(t, "state.schema.json"), []byte(`{
	  "type":"STATE",
	  "protocol_version":"1.0",
	  "tick":12,
	  "player":[10,3,10],
	  "slasher":{"pos":[200,1.2,300],"yaw":180,"mode":"WANDERING"},
	  "keys":[{"id":"key-0","pos":[40,0.1,50]}],
	  "generators":[{"id":"gen-0","activated":false,"indicator":"red"}],
	  "escape":{"enabled":false,"pos":[5,0,5],"radius":8},
	  "key_count":0,
	  "outcome":"RUNNING",
	  "events":[{"t":12,"type":"KEY_COLLECTED","id":"key-1"}]
	}`))

	validateJSON(t, compileSchema(t, "error.schema.json"), []byte(`{
	  "type":"ERROR",
	  "protocol_version":"1.0",
	  "code":"E_SESSION_OVER",
	  "message":"session has ended"
	}`))
}

func TestSchemas_AcceptEncodedMessages(t *testing.T) {
	seed := int64(7)
	cases := []struct {
		schema string
		msg    any
	}{
		{"hello.schema.json", protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, PlayerName: "p", Seed: &seed}},
		{"welcome.schema.json", protocol.WelcomeMsg{
			Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version, SessionID: "S1",
			WorldParams: protocol.WorldParams{TickRateHz: 30, GridW: 2, GridH: 2, Scale: 1, Octaves: 3},
		}},
		{"input.schema.json", protocol.InputMsg{Type: protocol.TypeInput, ProtocolVersion: protocol.Version}},
		{"state.schema.json", protocol.StateMsg{
			Type: protocol.TypeState, ProtocolVersion: protocol.Version, Outcome: protocol.OutcomeRunning,
			Slasher: &protocol.SlasherState{Mode: "CHASING"},
			Events:  []protocol.Event{{"t": 1, "type": "SIGHT_GAINED"}},
		}},
		{"error.schema.json", protocol.NewError(protocol.ErrProtoBadRequest, "bad")},
	}
	for _, c := range cases {
		raw, err := json.Marshal(c.msg)
		if err != nil {
			t.Fatalf("marshal %T: %v", c.msg, err)
		}
		validateJSON(t, compileSchema(t, c.schema), raw)
	}
}

func TestSchemas_RejectUnknownInputField(t *testing.T) {
	s := compileSchema(t, "input.schema.json")
	var v any
	_ = json.Unmarshal([]byte(`{"type":"INPUT","protocol_version":"1.0","pos":[0,0,0],"forward":[0,0,1],"interact":false,"teleport":true}`), &v)
	if err := s.Validate(v); err == nil {
		t.Fatalf("expected unknown field rejected")
	}
}
