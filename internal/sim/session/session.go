package session

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"nightgrove/internal/persistence/snapshot"
	"nightgrove/internal/protocol"
	"nightgrove/internal/sim/ai"
	"nightgrove/internal/sim/catalogs"
	"nightgrove/internal/sim/interact"
	"nightgrove/internal/sim/scene"
	"nightgrove/internal/sim/terrain"
	"nightgrove/internal/sim/tuning"
)

var ErrSessionOver = errors.New("session: over")

const SlasherID scene.EntityID = "slasher"

type Outcome string

const (
	Running Outcome = protocol.OutcomeRunning
	Won     Outcome = protocol.OutcomeWon
	Lost    Outcome = protocol.OutcomeLost
)

// Event types emitted by the session (the AI adds SIGHT_GAINED/SIGHT_LOST).
const (
	EventSlasherSpawned     = "SLASHER_SPAWNED"
	EventKeyCollected       = "KEY_COLLECTED"
	EventGeneratorActivated = "GENERATOR_ACTIVATED"
	EventEscapeEnabled      = "ESCAPE_ENABLED"
	EventPlayerRecovered    = "PLAYER_RECOVERED"
	EventEscaped            = "ESCAPED"
	EventCaptured           = "CAPTURED"
)

type Config struct {
	ID      string
	Seed    int64
	Tuning  tuning.Tuning
	Catalog *catalogs.Catalog
	Logger  *log.Logger

	// SnapshotEveryTicks > 0 sends a snapshot to the sink every N ticks.
	SnapshotEveryTicks uint64
}

// Input is the player's state for one tick, as reported by the client.
type Input struct {
	Pos      mgl64.Vec3
	Forward  mgl64.Vec3
	Interact bool
}

func InputFromMsg(m protocol.InputMsg) Input {
	return Input{Pos: mgl64.Vec3(m.Pos), Forward: mgl64.Vec3(m.Forward), Interact: m.Interact}
}

// Prop is a static placed object.
type Prop struct {
	ID    string
	Model string
	Pos   mgl64.Vec3
	Scale float64
}

// Decoration is a prop the client hides when it is outside the view cone.
type Decoration struct {
	Prop
	Visible bool
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

// Index receives session lifecycle records. It also sees every tick.
type Index interface {
	TickLogger
	RecordSessionStart(rec Record)
	RecordSessionEnd(rec Record)
}

type TickLogEntry struct {
	SessionID string           `json:"session_id"`
	Tick      uint64           `json:"tick"`
	Input     RecordedInput    `json:"input"`
	Events    []protocol.Event `json:"events,omitempty"`
	Digest    string           `json:"digest"`
}

type RecordedInput struct {
	Pos      [3]float64 `json:"pos"`
	Forward  [3]float64 `json:"forward"`
	Interact bool       `json:"interact,omitempty"`
}

func (r RecordedInput) Input() Input {
	return Input{Pos: mgl64.Vec3(r.Pos), Forward: mgl64.Vec3(r.Forward), Interact: r.Interact}
}

type Record struct {
	ID                  string
	Seed                int64
	Tick                uint64
	Outcome             Outcome
	KeysCollected       int
	GeneratorsActivated int
	At                  time.Time
}

// Session is a single-threaded authoritative game.
// All state must be accessed only from the goroutine that steps it.
type Session struct {
	cfg  Config
	tune tuning.Tuning
	log  *log.Logger

	tick    uint64
	dt      float64
	spawnAt uint64

	ground *terrain.HeightField
	scene  *scene.Scene

	aiSrc *rand.Rand
	draws *countingSource

	player  mgl64.Vec3
	forward mgl64.Vec3

	slasher    *ai.Slasher
	trees      []Decoration
	ruins      []Prop
	generators []*interact.Generator
	genScale   map[string]float64
	keys       []*interact.Key

	keyCount      int
	keysCollected int
	escapeEnabled bool
	outcome       Outcome

	events     []protocol.Event
	lastDigest string

	tickLogger   TickLogger
	index        Index
	snapshotSink chan<- snapshot.SnapshotV1

	inputs   chan Input
	out      chan []byte
	stop     chan struct{}
	stopOnce sync.Once
}

func newSession(cfg Config) (*Session, error) {
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("session tuning: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Catalog == nil {
		cfg.Catalog = catalogs.New(nil)
	}
	t := cfg.Tuning
	return &Session{
		cfg:      cfg,
		tune:     t,
		log:      cfg.Logger,
		dt:       1 / float64(t.TickRateHz),
		spawnAt:  t.SpawnDelayTicks(),
		player:   mgl64.Vec3(t.Session.PlayerSpawn),
		forward:  mgl64.Vec3{0, 0, 1},
		genScale: map[string]float64{},
		outcome:  Running,
		inputs:   make(chan Input, 64),
		stop:     make(chan struct{}),
	}, nil
}

func terrainParams(seed int64, t tuning.TerrainTuning) terrain.Params {
	return terrain.Params{
		Seed:        seed,
		GridW:       t.GridW,
		GridH:       t.GridH,
		Scale:       t.Scale,
		HeightScale: t.HeightScale,
		Octaves:     t.Octaves,
		Frequency:   t.Frequency,
	}
}

func (s *Session) aiConfig() ai.Config {
	st := s.tune.Slasher
	return ai.Config{
		WanderInterval: st.WanderInterval,
		WanderSpeed:    st.WanderSpeed,
		ChaseSpeed:     st.ChaseSpeed,
		AggroDistance:  st.AggroDistance,
		Hysteresis:     st.Hysteresis,
		Gravity:        st.Gravity,
		ProbeHeight:    st.ProbeHeight,
		ProbeDistance:  st.ProbeDistance,
	}
}

func (s *Session) SetTickLogger(l TickLogger)                    { s.tickLogger = l }
func (s *Session) SetIndex(ix Index)                             { s.index = ix }
func (s *Session) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { s.snapshotSink = ch }

// SetOut sets the channel STATE messages are published to. Call before Run.
func (s *Session) SetOut(ch chan []byte) { s.out = ch }

func (s *Session) Inputs() chan<- Input { return s.inputs }

func (s *Session) ID() string                    { return s.cfg.ID }
func (s *Session) Seed() int64                   { return s.cfg.Seed }
func (s *Session) Tuning() tuning.Tuning         { return s.tune }
func (s *Session) CurrentTick() uint64           { return s.tick }
func (s *Session) Outcome() Outcome              { return s.outcome }
func (s *Session) Over() bool                    { return s.outcome != Running }
func (s *Session) Terrain() *terrain.HeightField { return s.ground }
func (s *Session) Scene() *scene.Scene           { return s.scene }
func (s *Session) Player() mgl64.Vec3            { return s.player }
func (s *Session) KeyCount() int                 { return s.keyCount }
func (s *Session) EscapeEnabled() bool           { return s.escapeEnabled }

// Slasher returns nil until the enemy has spawned.
func (s *Session) Slasher() *ai.Slasher { return s.slasher }

func (s *Session) Keys() []*interact.Key             { return s.keys }
func (s *Session) Generators() []*interact.Generator { return s.generators }
func (s *Session) Trees() []Decoration               { return s.trees }
func (s *Session) Ruins() []Prop                     { return s.ruins }

func (s *Session) record() Record {
	act := 0
	for _, g := range s.generators {
		if g.Activated {
			act++
		}
	}
	return Record{
		ID:                  s.cfg.ID,
		Seed:                s.cfg.Seed,
		Tick:                s.tick,
		Outcome:             s.outcome,
		KeysCollected:       s.keysCollected,
		GeneratorsActivated: act,
		At:                  time.Now().UTC(),
	}
}
