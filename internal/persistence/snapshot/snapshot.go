package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version   int    `json:"version"`
	SessionID string `json:"session_id"`
	Tick      uint64 `json:"tick"`
}

// SnapshotV1 is a full session state. Terrain is not stored: it regenerates
// from Seed and the embedded tuning, and TerrainDigest guards the result.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed          int64  `json:"seed"`
	TuningYAML    []byte `json:"tuning_yaml"`
	TuningDigest  string `json:"tuning_digest"`
	TerrainDigest string `json:"terrain_digest"`
	ModelsDigest  string `json:"models_digest,omitempty"`

	Player  [3]float64 `json:"player"`
	Forward [3]float64 `json:"forward"`

	Slasher *SlasherV1 `json:"slasher,omitempty"`
	AIDraws uint64     `json:"ai_draws"`

	Trees      []DecorationV1 `json:"trees"`
	Ruins      []PropV1       `json:"ruins"`
	Generators []GeneratorV1  `json:"generators"`
	Keys       []KeyV1        `json:"keys"`

	KeyCount      int    `json:"key_count"`
	KeysCollected int    `json:"keys_collected"`
	EscapeEnabled bool   `json:"escape_enabled"`
	Outcome       string `json:"outcome"`
}

type PropV1 struct {
	ID    string     `json:"id"`
	Model string     `json:"model"`
	Pos   [3]float64 `json:"pos"`
	Scale float64    `json:"scale"`
}

type DecorationV1 struct {
	PropV1
	Visible bool `json:"visible"`
}

type GeneratorV1 struct {
	PropV1
	Activated bool `json:"activated"`
}

type KeyV1 struct {
	ID     string     `json:"id"`
	Model  string     `json:"model"`
	Pos    [3]float64 `json:"pos"`
	Active bool       `json:"active"`
}

type SlasherV1 struct {
	Pos         [3]float64 `json:"pos"`
	Yaw         float64    `json:"yaw"`
	Mode        int        `json:"mode"`
	WanderDir   [3]float64 `json:"wander_dir"`
	WanderTimer float64    `json:"wander_timer"`
	VelocityY   float64    `json:"velocity_y"`
}

// WriteSnapshot writes a JSON header line followed by the gob body, all inside
// one zstd stream.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := Encode(f, snap); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func Encode(w io.Writer, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	f, err := os.Open(path)
	if err != nil {
		return SnapshotV1{}, err
	}
	defer f.Close()
	return Decode(f)
}

func Decode(r io.Reader) (SnapshotV1, error) {
	var snap SnapshotV1
	dec, err := zstd.NewReader(r)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return snap, fmt.Errorf("decode header: %w", err)
	}
	if h.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", h.Version)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader reads only the header line, for listings.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	err = json.Unmarshal(line, &h)
	return h, err
}
