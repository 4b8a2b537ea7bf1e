package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig selects where the structured log goes. The terminal belongs to
// the UI, so the log is always a file; an empty File disables it.
type LogConfig struct {
	File  string
	Level string // debug, info, warn, error
}

// NewLogger builds the zap logger behind the LogSink.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	if cfg.File == "" {
		return zap.NewNop(), nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{cfg.File}
	zc.ErrorOutputPaths = []string{cfg.File}
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// LogSink is the write side of the log pane. Producers send Loglets; the UI
// drains Loglets() each tick. Every entry is mirrored to the zap logger.
type LogSink struct {
	ch      chan Loglet
	logger  *zap.Logger
	now     func() time.Time
	dropped atomic.Int64
}

// NewLogSink creates a sink with a bounded queue of size buffer.
func NewLogSink(buffer int, logger *zap.Logger) *LogSink {
	if buffer <= 0 {
		buffer = 32
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{
		ch:     make(chan Loglet, buffer),
		logger: logger,
		now:    time.Now,
	}
}

// Logger returns the structured logger for debug tracing that should not
// reach the log pane.
func (s *LogSink) Logger() *zap.Logger { return s.logger }

// Loglets is the receive side, read by the UI.
func (s *LogSink) Loglets() <-chan Loglet { return s.ch }

// Dropped counts entries Post could not queue.
func (s *LogSink) Dropped() int64 { return s.dropped.Load() }

// Log queues an entry, waiting for room. Background tasks use it.
func (s *LogSink) Log(ctx context.Context, kind LogKind, format string, args ...any) error {
	l := s.make(kind, format, args...)
	select {
	case s.ch <- l:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post queues an entry without waiting. Callers on the UI goroutine use it,
// since that goroutine is also the reader. A full queue keeps the entry in
// the file log only.
func (s *LogSink) Post(kind LogKind, format string, args ...any) {
	l := s.make(kind, format, args...)
	select {
	case s.ch <- l:
	default:
		s.dropped.Add(1)
	}
}

func (s *LogSink) make(kind LogKind, format string, args ...any) Loglet {
	l := Loglet{Kind: kind, Message: fmt.Sprintf(format, args...), Time: s.now()}
	switch kind {
	case LogError:
		s.logger.Error(l.Message)
	case LogWarn:
		s.logger.Warn(l.Message)
	default:
		s.logger.Info(l.Message)
	}
	return l
}
