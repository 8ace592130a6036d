// Package missionlog implements the simulation kernel's structured
// diagnostic sink: every component logs through a narrow Sink interface
// rather than holding a concrete logger, the way
// internal/e2eclient.loggingRecorder decorated a narrow MetricsRecorder in
// the teacher repo.
package missionlog

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Severity classifies a log entry.
type Severity int

// Severity levels, ordered least to most severe.
const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Category groups log entries by simulation subsystem.
type Category string

// Categories used by the kernel's components.
const (
	CategoryKernel     Category = "kernel"
	CategoryResource   Category = "resource"
	CategoryScheduler  Category = "scheduler"
	CategoryChecklist  Category = "checklist"
	CategoryAutopilot  Category = "autopilot"
	CategoryRCS        Category = "rcs"
	CategoryOrbit      Category = "orbit"
	CategoryManual     Category = "manual"
	CategoryAudio      Category = "audio"
	CategoryScore      Category = "score"
	CategoryPanel      Category = "panel"
	CategoryMissionIO  Category = "missionio"
)

// Entry is one structured log record.
type Entry struct {
	GetSeconds float64
	Severity   Severity
	Category   Category
	Source     string
	Message    string
	Fields     map[string]any
}

// Sink receives log entries. The kernel and every subsystem depend on this
// interface, never on *zap.Logger directly, so tests can substitute a
// recording fake.
type Sink interface {
	Log(entry Entry)
}

// DefaultRingCapacity bounds the in-memory recent-entries buffer.
const DefaultRingCapacity = 2048

// Logger is the Mission Logger (C2): a zap-backed Sink that also retains a
// bounded, FIFO-trimmed ring of recent entries for on-demand inspection
// (e.g. a HUD "recent events" panel built by an external consumer).
type Logger struct {
	zl       *zap.Logger
	mu       sync.Mutex
	ring     []Entry
	capacity int
}

// NewLogger wraps zl (built the way cmd/apollosim builds it, mirroring the
// teacher's zap.NewProductionConfig + custom EncoderConfig) into a Logger.
// A nil zl is accepted and produces a Logger that only retains the ring,
// useful in tests.
func NewLogger(zl *zap.Logger, capacity int) *Logger {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}

	return &Logger{zl: zl, capacity: capacity}
}

// Log implements Sink.
func (l *Logger) Log(entry Entry) {
	if l.zl != nil {
		fields := make([]zap.Field, 0, len(entry.Fields)+3)
		fields = append(fields,
			zap.Float64("get", entry.GetSeconds),
			zap.String("category", string(entry.Category)),
			zap.String("source", entry.Source),
		)

		for k, v := range entry.Fields {
			fields = append(fields, zap.Any(k, v))
		}

		switch entry.Severity {
		case SeverityDebug:
			l.zl.Debug(entry.Message, fields...)
		case SeverityWarn:
			l.zl.Warn(entry.Message, fields...)
		case SeverityError:
			l.zl.Error(entry.Message, fields...)
		default:
			l.zl.Info(entry.Message, fields...)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.ring = append(l.ring, entry)
	if overflow := len(l.ring) - l.capacity; overflow > 0 {
		l.ring = l.ring[overflow:]
	}
}

// Recent returns a copy of the most recent log entries, oldest first.
func (l *Logger) Recent() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.ring))
	copy(out, l.ring)

	return out
}

// Sync flushes the underlying zap logger, mirroring the teacher's
// `defer logger.Sync()` in cmd/shaper/main.go.
func (l *Logger) Sync() error {
	if l.zl == nil {
		return nil
	}

	return l.zl.Sync()
}

// NewProductionLogger builds a *zap.Logger configured the way the teacher's
// newLogger(level) did: production config with renamed encoder keys.
func NewProductionLogger(level string) (*zap.Logger, error) {
	if level == "" {
		level = "info"
	}

	cfg := zap.NewProductionConfig()

	if err := cfg.Level.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.CallerKey = "caller"

	return cfg.Build()
}

// TransitionSink decorates a Sink so that repeated identical
// (category, source, message) entries at the same severity only log once
// until the message changes, mirroring loggingRecorder's
// "log only on state transitions" behavior from the teacher repo.
type TransitionSink struct {
	delegate Sink

	mu   sync.Mutex
	last map[string]string
}

// NewTransitionSink constructs a TransitionSink wrapping delegate.
func NewTransitionSink(delegate Sink) *TransitionSink {
	return &TransitionSink{delegate: delegate, last: make(map[string]string)}
}

// Log implements Sink.
func (t *TransitionSink) Log(entry Entry) {
	key := string(entry.Category) + "|" + entry.Source

	t.mu.Lock()
	previous, ok := t.last[key]
	changed := !ok || previous != entry.Message
	if changed {
		t.last[key] = entry.Message
	}
	t.mu.Unlock()

	if changed && t.delegate != nil {
		t.delegate.Log(entry)
	}
}
