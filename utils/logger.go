package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	logger *slog.Logger
	logMu  sync.RWMutex
)

func init() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// LogOptions configures the process-wide logger.
type LogOptions struct {
	Debug  bool      // include debug records
	Quiet  bool      // errors only
	JSON   bool      // JSON handler instead of text
	Output io.Writer // default: stderr
}

// InitLogger replaces the process-wide logger.
func InitLogger(opts LogOptions) {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	if opts.Quiet {
		level = slog.LevelError
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	logMu.Lock()
	logger = slog.New(handler)
	logMu.Unlock()
}

func current() *slog.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

func Debug(msg string, args ...any) { current().Debug(msg, args...) }

func Info(msg string, args ...any) { current().Info(msg, args...) }

func Warn(msg string, args ...any) { current().Warn(msg, args...) }

func Error(msg string, args ...any) { current().Error(msg, args...) }

// Success logs a completed milestone at info level, tagged so it can be
// filtered apart from ordinary progress lines.
func Success(msg string, args ...any) {
	current().Info(msg, append([]any{"status", "ok"}, args...)...)
}

// Section marks the start of a run phase.
func Section(title string) {
	current().Info(fmt.Sprintf("══════════ %s ══════════", title))
}

// With returns a child logger carrying the given attributes.
func With(args ...any) *slog.Logger {
	return current().With(args...)
}
