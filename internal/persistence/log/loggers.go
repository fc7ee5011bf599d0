package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"nightgrove/internal/sim/session"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst under baseDir.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// TickLogger writes one JSONL entry per tick (compressed).
type TickLogger struct{ w *JSONLZstdWriter }

func NewTickLogger(sessionDir string) *TickLogger {
	return &TickLogger{w: NewJSONLZstdWriter(filepath.Join(sessionDir, "events"), "events")}
}

func (l *TickLogger) WriteTick(e session.TickLogEntry) error { return l.w.Write(e) }
func (l *TickLogger) Close() error                          { return l.w.Close() }

// OutcomeEntry is one line of the outcome log.
type OutcomeEntry struct {
	Event               string `json:"event"`
	SessionID           string `json:"session_id"`
	Seed                int64  `json:"seed"`
	Tick                uint64 `json:"tick"`
	Outcome             string `json:"outcome"`
	KeysCollected       int    `json:"keys_collected"`
	GeneratorsActivated int    `json:"generators_activated"`
	At                  string `json:"at"`
}

// OutcomeLogger records session start and end lines (compressed).
type OutcomeLogger struct{ w *JSONLZstdWriter }

func NewOutcomeLogger(sessionDir string) *OutcomeLogger {
	return &OutcomeLogger{w: NewJSONLZstdWriter(filepath.Join(sessionDir, "outcomes"), "outcomes")}
}

func (l *OutcomeLogger) WriteRecord(event string, rec session.Record) error {
	return l.w.Write(OutcomeEntry{
		Event:               event,
		SessionID:           rec.ID,
		Seed:                rec.Seed,
		Tick:                rec.Tick,
		Outcome:             string(rec.Outcome),
		KeysCollected:       rec.KeysCollected,
		GeneratorsActivated: rec.GeneratorsActivated,
		At:                  rec.At.UTC().Format(time.RFC3339Nano),
	})
}

func (l *OutcomeLogger) Close() error { return l.w.Close() }

// ReadTickLog reads every events-*.jsonl.zst file under sessionDir/events in
// name order and returns the entries.
func ReadTickLog(sessionDir string) ([]session.TickLogEntry, error) {
	paths, err := filepath.Glob(filepath.Join(sessionDir, "events", "events-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	var out []session.TickLogEntry
	for _, p := range paths {
		if err := readJSONLZstd(p, func(line []byte) error {
			var e session.TickLogEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		}); err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
	}
	return out, nil
}

func readJSONLZstd(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 128*1024)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 1 {
			if ferr := fn(line); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
