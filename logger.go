package meshlink

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with meshlink-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithRank adds the local rank to the logger.
func (l *Logger) WithRank(rank int) *Logger {
	return &Logger{
		Logger: l.Logger.With("rank", rank),
	}
}

// WithPair adds the current interface marker pair to the logger.
func (l *Logger) WithPair(donor, target string) *Logger {
	return &Logger{
		Logger: l.Logger.With("donor_marker", donor, "target_marker", target),
	}
}

// LogGather logs the donor collection for one marker pair.
func (l *Logger) LogGather(ctx context.Context, donors int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "donor gather failed",
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "donor gather completed",
			"donors", donors,
			"duration", duration,
		)
	}
}

// LogPair logs the completion of one marker-pair interpolation.
func (l *Logger) LogPair(ctx context.Context, k, vertices int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "interface interpolation failed",
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "interface interpolation completed",
			"k", k,
			"vertices", vertices,
			"duration", duration,
		)
	}
}

// LogSkip logs a marker pair with no target geometry anywhere in the
// group.
func (l *Logger) LogSkip(ctx context.Context) {
	l.DebugContext(ctx, "interface has no target marker on any rank, skipping")
}
