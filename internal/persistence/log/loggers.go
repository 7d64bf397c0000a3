package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-<yyyy-mm-dd-hh>.jsonl.zst under baseDir.
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

// Write appends one line. Lines reach the file when Flush is called or the
// hour rotates.
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
	return w.w.WriteByte('\n')
}

// Flush pushes buffered lines through the encoder to the file.
func (w *JSONLZstdWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
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

// LifecycleRecord is one state-machine event.
type LifecycleRecord struct {
	RunID  string    `json:"run_id"`
	Stamp  uint64    `json:"stamp"`
	Type   string    `json:"type"`
	Coord  [3]int    `json:"coord"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	Task   string    `json:"task,omitempty"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// CycleRecord summarizes one streaming update.
type CycleRecord struct {
	RunID       string     `json:"run_id"`
	Cycle       uint64     `json:"cycle"`
	Viewpoint   [3]float32 `json:"viewpoint"`
	Center      [3]int     `json:"center"`
	Loaded      int        `json:"loaded"`
	Admitted    int        `json:"admitted"`
	Evicted     int        `json:"evicted"`
	Reaped      int        `json:"reaped"`
	Completions int        `json:"completions"`
	Dispatched  int        `json:"dispatched"`
	Deferred    int        `json:"deferred"`
	Failures    int        `json:"failures"`
	DurationUs  int64      `json:"duration_us"`
}

// LifecycleLogger writes lifecycle JSONL entries (compressed).
type LifecycleLogger struct{ w *JSONLZstdWriter }

func NewLifecycleLogger(dir string) *LifecycleLogger {
	return &LifecycleLogger{w: NewJSONLZstdWriter(filepath.Join(dir, "lifecycle"), "lifecycle")}
}

func (l *LifecycleLogger) WriteLifecycle(v LifecycleRecord) error { return l.w.Write(v) }
func (l *LifecycleLogger) Flush() error                           { return l.w.Flush() }
func (l *LifecycleLogger) Close() error                           { return l.w.Close() }

// CycleLogger writes one JSONL entry per update cycle (compressed).
type CycleLogger struct{ w *JSONLZstdWriter }

func NewCycleLogger(dir string) *CycleLogger {
	return &CycleLogger{w: NewJSONLZstdWriter(filepath.Join(dir, "cycles"), "cycles")}
}

func (l *CycleLogger) WriteCycle(v CycleRecord) error { return l.w.Write(v) }
func (l *CycleLogger) Flush() error                   { return l.w.Flush() }
func (l *CycleLogger) Close() error                   { return l.w.Close() }
