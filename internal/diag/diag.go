// Package diag routes the engine's structured logs to a sink that can be
// reconfigured while the process runs.
package diag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maauso/mediaforge/internal/metrics"
	"github.com/maauso/mediaforge/internal/storage"
)

// LevelTrace is more verbose than slog.LevelDebug.
const LevelTrace = slog.Level(-8)

// ErrUnknownLevel is returned by ParseLevel for unrecognised names.
var ErrUnknownLevel = errors.New("unknown log level")

// Format selects the record encoding.
type Format string

// Supported formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config is a complete sink configuration.
type Config struct {
	Level         slog.Level
	Format        Format
	WriteToStdout bool
	// WriteToFiles enables daily rolling files when set.
	WriteToFiles *storage.WriteToFiles
}

// DefaultConfig logs text at info level to stdout.
func DefaultConfig() Config {
	return Config{Level: slog.LevelInfo, Format: FormatText, WriteToStdout: true}
}

// Record is a log event produced outside of slog, for example by a host
// application forwarding its own logs.
type Record struct {
	Level   slog.Level
	Target  string
	File    string
	Line    uint32 // zero when unknown
	Message string
}

type state struct {
	cfg     Config
	handler slog.Handler
	files   *RollingWriter

	// Records in flight hold writing shared; retire takes it exclusively
	// before closing files, so no record reaches a closed writer.
	writing sync.RWMutex
	retired bool
}

// retire waits for records still writing through st, then closes its file writer.
func (st *state) retire() error {
	st.writing.Lock()
	defer st.writing.Unlock()
	st.retired = true
	if st.files == nil {
		return nil
	}
	return st.files.Close()
}

// Sink is a log destination whose configuration can be swapped atomically.
// The last Configure wins. Logging never waits on it; a reconfiguration waits
// only for records already writing through the previous state.
type Sink struct {
	stdout io.Writer

	mu  sync.Mutex // serialises reconfiguration
	cur atomic.Pointer[state]
}

// NewSink returns a sink using DefaultConfig. A nil stdout means os.Stdout.
func NewSink(stdout io.Writer) *Sink {
	if stdout == nil {
		stdout = os.Stdout
	}
	s := &Sink{stdout: stdout}
	s.cur.Store(s.build(DefaultConfig(), nil))
	return s
}

// Config returns the active configuration.
func (s *Sink) Config() Config {
	return s.cur.Load().cfg
}

// Configure replaces the whole configuration. The previous file writer is
// closed after the swap. On error the active configuration is unchanged.
func (s *Sink) Configure(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var files *RollingWriter
	if cfg.WriteToFiles != nil {
		sink := *cfg.WriteToFiles
		w, err := NewRollingWriter(sink)
		if err != nil {
			return fmt.Errorf("configure file writer: %w", err)
		}
		cfg.WriteToFiles = &sink
		files = w
	}
	s.swap(s.build(cfg, files))
	return nil
}

// ReloadFileWriter replaces only the file destination, keeping level, format
// and stdout settings.
func (s *Sink) ReloadFileWriter(sink storage.WriteToFiles) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := NewRollingWriter(sink)
	if err != nil {
		return fmt.Errorf("reload file writer: %w", err)
	}
	cfg := s.cur.Load().cfg
	cfg.WriteToFiles = &sink
	s.swap(s.build(cfg, files))
	return nil
}

// Close releases the active file writer. Later records still reach stdout.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cur.Load().cfg
	cfg.WriteToFiles = nil
	return s.cur.Swap(s.build(cfg, nil)).retire()
}

// Handler returns a handler that follows every later reconfiguration.
func (s *Sink) Handler() slog.Handler {
	return &handler{sink: s}
}

// Logger is shorthand for slog.New(s.Handler()).
func (s *Sink) Logger() *slog.Logger {
	return slog.New(s.Handler())
}

// Log ingests an external record.
func (s *Sink) Log(ctx context.Context, rec Record) {
	h := s.Handler()
	if !h.Enabled(ctx, rec.Level) {
		return
	}
	r := slog.NewRecord(time.Now(), rec.Level, rec.Message, 0)
	if rec.Target != "" {
		r.AddAttrs(slog.String("target", rec.Target))
	}
	if rec.File != "" {
		r.AddAttrs(slog.String("file", rec.File))
	}
	if rec.Line > 0 {
		r.AddAttrs(slog.Uint64("line", uint64(rec.Line)))
	}
	_ = h.Handle(ctx, r)
}

func (s *Sink) swap(next *state) {
	if err := s.cur.Swap(next).retire(); err != nil {
		fmt.Fprintf(os.Stderr, "diag: close previous log file: %v\n", err)
	}
}

func (s *Sink) build(cfg Config, files *RollingWriter) *state {
	var writers []io.Writer
	if cfg.WriteToStdout {
		writers = append(writers, s.stdout)
	}
	if files != nil {
		writers = append(writers, files)
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = io.Discard
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{Level: cfg.Level, ReplaceAttr: replaceLevel}
	var h slog.Handler
	if cfg.Format == FormatJSON {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}
	return &state{cfg: cfg, handler: h, files: files}
}

// handler resolves the active state per record. Attributes and groups
// collected through WithAttrs and WithGroup are replayed onto it.
type handler struct {
	sink *Sink
	ops  []func(slog.Handler) slog.Handler
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.sink.cur.Load().cfg.Level
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	for {
		st := h.sink.cur.Load()
		st.writing.RLock()
		if st.retired {
			// Swapped out after the load; its replacement is already active.
			st.writing.RUnlock()
			continue
		}
		err := h.handle(ctx, st, r)
		st.writing.RUnlock()
		return err
	}
}

func (h *handler) handle(ctx context.Context, st *state, r slog.Record) error {
	if r.Level < st.cfg.Level {
		return nil
	}
	metrics.LogRecordsTotal.WithLabelValues(LevelName(r.Level)).Inc()

	inner := st.handler
	for _, op := range h.ops {
		inner = op(inner)
	}
	return inner.Handle(ctx, r)
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.with(func(inner slog.Handler) slog.Handler { return inner.WithAttrs(attrs) })
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(func(inner slog.Handler) slog.Handler { return inner.WithGroup(name) })
}

func (h *handler) with(op func(slog.Handler) slog.Handler) *handler {
	ops := make([]func(slog.Handler) slog.Handler, len(h.ops), len(h.ops)+1)
	copy(ops, h.ops)
	return &handler{sink: h.sink, ops: append(ops, op)}
}

// ParseLevel converts trace, debug, info, warn or error to a level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrUnknownLevel, name)
	}
}

// LevelName is the lower-case name of a level, "trace" included.
func LevelName(l slog.Level) string {
	if l <= LevelTrace {
		return "trace"
	}
	return strings.ToLower(l.String())
}

func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.LevelKey {
		if l, ok := a.Value.Any().(slog.Level); ok && l <= LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}
