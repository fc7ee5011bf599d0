package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/websocket"

	"nightgrove/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "bot", "player name")
		seed  = flag.Int64("seed", 0, "world seed (0 = server picks)")
		speed = flag.Float64("speed", 0.25, "distance walked per STATE")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      *name,
	}
	if *seed != 0 {
		hello.Seed = seed
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	var b *bot
	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s tick_rate=%d seed=%d placements=%d", w.SessionID, w.WorldParams.TickRateHz, w.WorldParams.Seed, len(w.Placements))
			b = newBot(w, *speed)

		case protocol.TypeState:
			if b == nil {
				continue
			}
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			for _, ev := range st.Events {
				logger.Printf("tick=%d event=%v", st.Tick, ev["type"])
			}
			if st.Outcome != protocol.OutcomeRunning {
				logger.Printf("session over at tick %d: %s", st.Tick, st.Outcome)
				return
			}
			in := b.next(st)
			if err := conn.WriteJSON(in); err != nil {
				logger.Printf("send INPUT: %v", err)
				return
			}

		case protocol.TypeError:
			var e protocol.ErrorMsg
			_ = json.Unmarshal(msg, &e)
			logger.Printf("ERROR %s: %s", e.Code, e.Message)
		}
	}
}

// bot walks to every key, then every generator, then the escape zone. It
// floats over the terrain at the recorded prop heights; the server accepts
// reported positions as-is.
type bot struct {
	pos   mgl64.Vec3
	speed float64
	seq   uint64
	gens  map[string]mgl64.Vec3
}

func newBot(w protocol.WelcomeMsg, speed float64) *bot {
	b := &bot{speed: speed, gens: map[string]mgl64.Vec3{}}
	for _, p := range w.Placements {
		if p.Kind == protocol.KindGenerator {
			b.gens[p.ID] = mgl64.Vec3(p.Pos)
		}
	}
	return b
}

func (b *bot) target(st protocol.StateMsg) (mgl64.Vec3, bool) {
	best, found := mgl64.Vec3{}, false
	pick := func(p mgl64.Vec3) {
		if !found || p.Sub(b.pos).Len() < best.Sub(b.pos).Len() {
			best, found = p, true
		}
	}
	for _, k := range st.Keys {
		pick(mgl64.Vec3(k.Pos))
	}
	if found {
		return best, true
	}
	if st.KeyCount > 0 {
		for _, g := range st.Generators {
			if !g.Activated {
				pick(b.gens[g.ID])
			}
		}
		if found {
			return best, true
		}
	}
	if st.Escape.Enabled {
		return mgl64.Vec3(st.Escape.Pos), true
	}
	return mgl64.Vec3{}, false
}

func (b *bot) next(st protocol.StateMsg) protocol.InputMsg {
	if b.seq == 0 {
		b.pos = mgl64.Vec3(st.Player)
	}
	b.seq++
	forward := mgl64.Vec3{0, 0, 1}
	interact := false
	if tgt, ok := b.target(st); ok {
		d := tgt.Sub(b.pos)
		if dist := d.Len(); dist > 1e-9 {
			forward = d.Mul(1 / dist)
			if dist <= b.speed {
				b.pos = tgt
			} else {
				b.pos = b.pos.Add(forward.Mul(b.speed))
			}
		}
		interact = tgt.Sub(b.pos).Len() < 1.5
	}
	return protocol.InputMsg{
		Type:            protocol.TypeInput,
		ProtocolVersion: protocol.Version,
		Seq:             b.seq,
		Pos:             [3]float64(b.pos),
		Forward:         [3]float64(forward),
		Interact:        interact,
	}
}
