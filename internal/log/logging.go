// Package log provides helpers for creating a configured slog.Logger.
//
// When a log file path is not provided, logs are written to stdout for
// non-error levels and to stderr for errors.
package log

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"golang.org/x/term"
)

// LevelTrace sits below Debug. The generator logs one line per collected
// type at this level.
const LevelTrace slog.Level = -8

// LevelMax is an upper bound above every real level.
const LevelMax slog.Level = math.MaxInt

// ParseLevel maps a --log.level value to a slog level. Unknown values fall
// back to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// levelName prints LevelTrace as TRACE instead of DEBUG-4.
func levelName(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if l, ok := a.Value.Any().(slog.Level); ok && l <= LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}

// MultiHandler fans out records to multiple handlers. Handler errors are
// joined instead of stopping the fan-out.
type MultiHandler []slog.Handler

// NewMultiHandler returns a handler writing every record to each of hs.
func NewMultiHandler(hs ...slog.Handler) MultiHandler {
	return MultiHandler(hs)
}

func (m MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (m MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return m.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (m MultiHandler) WithGroup(name string) slog.Handler {
	return m.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (m MultiHandler) each(fn func(slog.Handler) slog.Handler) MultiHandler {
	out := make(MultiHandler, len(m))
	for i, h := range m {
		out[i] = fn(h)
	}
	return out
}

// LevelBand passes records with Min <= level < Max to H.
type LevelBand struct {
	Min, Max slog.Level
	H        slog.Handler
}

func (b LevelBand) in(l slog.Level) bool { return l >= b.Min && l < b.Max }

func (b LevelBand) Enabled(ctx context.Context, level slog.Level) bool {
	return b.in(level) && b.H.Enabled(ctx, level)
}

func (b LevelBand) Handle(ctx context.Context, r slog.Record) error {
	if !b.in(r.Level) {
		return nil
	}
	return b.H.Handle(ctx, r)
}

func (b LevelBand) WithAttrs(attrs []slog.Attr) slog.Handler {
	return LevelBand{Min: b.Min, Max: b.Max, H: b.H.WithAttrs(attrs)}
}

func (b LevelBand) WithGroup(name string) slog.Handler {
	return LevelBand{Min: b.Min, Max: b.Max, H: b.H.WithGroup(name)}
}

// NewHandler returns a text or JSON handler for w. Format "auto" picks text
// when w is a terminal.
func NewHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: levelName}
	switch format {
	case "json":
		return slog.NewJSONHandler(w, opts)
	case "text":
		return slog.NewTextHandler(w, opts)
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// SetupLogger builds a slog.Logger with console and optional file handlers.
// The file always receives JSON.
func SetupLogger(logLevel, logFile, format string) (*slog.Logger, []io.Closer, error) {
	level := ParseLevel(logLevel)
	if logFile == "" {
		return slog.New(NewMultiHandler(
			LevelBand{Min: level, Max: slog.LevelError, H: NewHandler(os.Stdout, format, level)},
			LevelBand{Min: slog.LevelError, Max: LevelMax, H: NewHandler(os.Stderr, format, slog.LevelError)},
		)), nil, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(NewMultiHandler(
		NewHandler(os.Stderr, format, level),
		NewHandler(f, "json", level),
	))
	return logger, []io.Closer{f}, nil
}
