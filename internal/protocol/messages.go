package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerName      string `json:"player_name"`
	// Seed pins the world; omitted means the server picks one.
	Seed *int64 `json:"seed,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	WorldParams     WorldParams `json:"world_params"`
	Digests         Digests     `json:"digests"`
	Placements      []Placement `json:"placements"`
}

// WorldParams is enough for a client to rebuild the terrain mesh.
type WorldParams struct {
	TickRateHz  int     `json:"tick_rate_hz"`
	Seed        int64   `json:"seed"`
	GridW       int     `json:"grid_w"`
	GridH       int     `json:"grid_h"`
	Scale       float64 `json:"scale"`
	HeightScale float64 `json:"height_scale"`
	Octaves     int     `json:"octaves"`
	Frequency   float64 `json:"frequency"`
}

type Digests struct {
	Terrain string `json:"terrain"`
	Tuning  string `json:"tuning"`
	Models  string `json:"models"`
}

// Placement kinds.
const (
	KindTree      = "TREE"
	KindGenerator = "GENERATOR"
	KindRuin      = "RUIN"
	KindKey       = "KEY"
)

type Placement struct {
	ID    string     `json:"id"`
	Kind  string     `json:"kind"`
	Model string     `json:"model"`
	Pos   [3]float64 `json:"pos"`
	Scale float64    `json:"scale"`
}

// INPUT (client -> server), one per client frame.
type InputMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Seq             uint64     `json:"seq,omitempty"`
	Pos             [3]float64 `json:"pos"`
	Forward         [3]float64 `json:"forward"`
	Interact        bool       `json:"interact"`
}

// Outcomes.
const (
	OutcomeRunning = "RUNNING"
	OutcomeWon     = "WON"
	OutcomeLost    = "LOST"
)

// STATE (server -> client), one per tick.
type StateMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	Tick            uint64           `json:"tick"`
	Player          [3]float64       `json:"player"`
	Slasher         *SlasherState    `json:"slasher,omitempty"`
	Keys            []KeyState       `json:"keys"`
	Generators      []GeneratorState `json:"generators"`
	Escape          EscapeState      `json:"escape"`
	KeyCount        int              `json:"key_count"`
	Outcome         string           `json:"outcome"`
	Visible         []string         `json:"visible,omitempty"`
	Events          []Event          `json:"events,omitempty"`
	StateDigest     string           `json:"state_digest,omitempty"`
}

type SlasherState struct {
	Pos  [3]float64 `json:"pos"`
	Yaw  float64    `json:"yaw"`
	Mode string     `json:"mode"`
}

type KeyState struct {
	ID  string     `json:"id"`
	Pos [3]float64 `json:"pos"`
}

type GeneratorState struct {
	ID        string `json:"id"`
	Activated bool   `json:"activated"`
	Indicator string `json:"indicator"`
}

type EscapeState struct {
	Enabled bool       `json:"enabled"`
	Pos     [3]float64 `json:"pos"`
	Radius  float64    `json:"radius"`
}

// Event is a loosely typed session event; "t" and "type" are always set.
type Event map[string]interface{}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
