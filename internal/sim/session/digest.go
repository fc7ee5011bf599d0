package session

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

// StateDigest hashes every piece of mutable state. Two sessions with the same
// seed, tuning and inputs produce the same digest sequence.
func (s *Session) StateDigest() string {
	h := sha256.New()
	var tmp [8]byte

	digestWriteU64(h, &tmp, s.tick)
	digestWriteU64(h, &tmp, uint64(s.cfg.Seed))
	digestWriteU64(h, &tmp, s.draws.draws)
	digestVec(h, &tmp, s.player)
	digestVec(h, &tmp, s.forward)

	s.digestSlasher(h, &tmp)

	digestWriteU64(h, &tmp, uint64(len(s.keys)))
	for _, k := range s.keys {
		h.Write([]byte(k.ID))
		h.Write([]byte{boolByte(k.Active)})
		digestVec(h, &tmp, k.Pos)
	}
	digestWriteU64(h, &tmp, uint64(len(s.generators)))
	for _, g := range s.generators {
		h.Write([]byte(g.ID))
		h.Write([]byte{boolByte(g.Activated)})
	}
	for _, d := range s.trees {
		h.Write([]byte{boolByte(d.Visible)})
	}

	digestWriteU64(h, &tmp, uint64(s.keyCount))
	digestWriteU64(h, &tmp, uint64(s.keysCollected))
	h.Write([]byte{boolByte(s.escapeEnabled)})
	h.Write([]byte(s.outcome))

	return hex.EncodeToString(h.Sum(nil))
}

func (s *Session) digestSlasher(h hashWriter, tmp *[8]byte) {
	if s.slasher == nil {
		h.Write([]byte{0})
		return
	}
	h.Write([]byte{1})
	st := s.slasher.State
	digestVec(h, tmp, st.Pos)
	digestWriteF64(h, tmp, st.Yaw)
	digestWriteU64(h, tmp, uint64(st.Mode))
	digestVec(h, tmp, st.WanderDir)
	digestWriteF64(h, tmp, st.WanderTimer)
	digestWriteF64(h, tmp, st.VelocityY)
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteF64(h hashWriter, tmp *[8]byte, v float64) {
	digestWriteU64(h, tmp, math.Float64bits(v))
}

func digestVec(h hashWriter, tmp *[8]byte, v mgl64.Vec3) {
	for _, c := range v {
		digestWriteF64(h, tmp, c)
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
