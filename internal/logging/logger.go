// Package logging builds the service slog logger from the [log] config section.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"alertdesk/internal/config"
)

const (
	ansiReset  = "\x1b[0m"
	ansiBlue   = "\x1b[34m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
	ansiGray   = "\x1b[90m"
)

// Redacted replaces values of secret-bearing attributes.
const Redacted = "[redacted]"

// secretKeys are attribute names whose values never reach a sink.
// Matching is case-insensitive on the last key segment.
var secretKeys = map[string]struct{}{
	"password":      {},
	"password_hash": {},
	"token":         {},
	"bot_token":     {},
	"authorization": {},
	"cookie":        {},
	"session":       {},
	"secret":        {},
}

// sink is one configured log destination.
type sink struct {
	name    string
	handler slog.Handler
	closer  io.Closer
}

// New builds a logger for configured sinks and returns a cleanup function.
// Params: cfg contains console/file sink settings.
// Returns: slog logger, cleanup callback, and setup error.
func New(cfg config.LogConfig) (*slog.Logger, func(), error) {
	return newWithConsole(cfg, os.Stdout)
}

func newWithConsole(cfg config.LogConfig, console io.Writer) (*slog.Logger, func(), error) {
	var sinks []sink
	closeAll := func() {
		for _, s := range sinks {
			if s.closer != nil {
				_ = s.closer.Close()
			}
		}
	}

	if cfg.Console.Enabled {
		s, err := openSink("console", cfg.Console, console)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.File.Enabled {
		s, err := openSink("file", cfg.File, nil)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 0 {
		return nil, nil, errors.New("no log sinks enabled")
	}

	if len(sinks) == 1 {
		return slog.New(sinks[0].handler), closeAll, nil
	}
	handlers := make(fanout, 0, len(sinks))
	for _, s := range sinks {
		handlers = append(handlers, s.handler)
	}
	return slog.New(handlers), closeAll, nil
}

// openSink builds one sink; a nil dst means the sink owns a file at settings.Path.
// Console sinks drop the time attribute and color line output by level.
func openSink(name string, settings config.LogSinkConfig, dst io.Writer) (sink, error) {
	level, err := parseLevel(settings.Level)
	if err != nil {
		return sink{}, fmt.Errorf("build %s handler: %w", name, err)
	}

	out := sink{name: name}
	console := dst != nil
	if !console {
		file, err := os.OpenFile(settings.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return sink{}, fmt.Errorf("build %s handler: open %q: %w", name, settings.Path, err)
		}
		dst = file
		out.closer = file
	}

	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: redact(console)}
	switch settings.Format {
	case "line":
		if console {
			dst = &colorLineWriter{dst: dst}
		}
		out.handler = slog.NewTextHandler(dst, opts)
	case "json":
		out.handler = slog.NewJSONHandler(dst, opts)
	default:
		if out.closer != nil {
			_ = out.closer.Close()
		}
		return sink{}, fmt.Errorf("build %s handler: unsupported format %q", name, settings.Format)
	}
	return out, nil
}

// redact masks secret attributes and, for console sinks, drops the timestamp.
func redact(dropTime bool) func([]string, slog.Attr) slog.Attr {
	return func(_ []string, attr slog.Attr) slog.Attr {
		if dropTime && attr.Key == slog.TimeKey {
			return slog.Attr{}
		}
		key := attr.Key
		if idx := strings.LastIndexAny(key, ".-"); idx >= 0 {
			key = key[idx+1:]
		}
		if _, secret := secretKeys[strings.ToLower(key)]; secret {
			return slog.String(attr.Key, Redacted)
		}
		return attr
	}
}

// Component returns a child logger tagged with a component name.
// Params: parent logger (nil yields a discard logger) and component label.
// Returns: logger with "component" attribute.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = Discard()
	}
	return logger.With("component", name)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

func parseLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unsupported level %q", value)
	}
	return level, nil
}

// fanout writes each record to every enabled handler.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range f {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle writes to all enabled handlers and joins their errors.
func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range f {
		if handler.Enabled(ctx, record.Level) {
			errs = append(errs, handler.Handle(ctx, record.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f fanout) WithGroup(name string) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f fanout) each(apply func(slog.Handler) slog.Handler) fanout {
	next := make(fanout, len(f))
	for i, handler := range f {
		next[i] = apply(handler)
	}
	return next
}

// colorLineWriter colors console lines by level marker.
type colorLineWriter struct {
	dst io.Writer
}

func (w *colorLineWriter) Write(payload []byte) (int, error) {
	tone := levelColor(string(payload))
	if tone == "" {
		return w.dst.Write(payload)
	}
	line := strings.TrimSuffix(string(payload), "\n")
	if _, err := io.WriteString(w.dst, tone+line+ansiReset+"\n"); err != nil {
		return 0, err
	}
	return len(payload), nil
}

var levelTones = []struct{ marker, tone string }{
	{"level=DEBUG", ansiGray},
	{"level=INFO", ansiBlue},
	{"level=WARN", ansiYellow},
	{"level=ERROR", ansiRed},
}

func levelColor(line string) string {
	for _, lt := range levelTones {
		if strings.Contains(line, lt.marker) {
			return lt.tone
		}
	}
	return ""
}
