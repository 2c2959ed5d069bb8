// Package logger is the process-wide structured logger. Records go to the
// console, a rotating file, or both. Attributes stored on a context with
// WithAttrs (request id, user) are added to every *Context call.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelAudit marks audit records (registrations, boss defeats, level-ups).
// It sits above Error so no level setting filters it out.
const LevelAudit = slog.Level(12)

var current atomic.Pointer[slog.Logger]

// Initialize installs a logger built from config.
func Initialize(config Config) error {
	level := parseLogLevel(config.Level)
	var sinks []slog.Handler

	if config.ConsoleEnabled {
		h, err := newHandler(os.Stdout, config.ConsoleFormat, level)
		if err != nil {
			return fmt.Errorf("console: %w", err)
		}
		sinks = append(sinks, h)
	}

	if config.FileEnabled {
		rotator := &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.FileMaxSizeMB,
			MaxBackups: config.FileMaxBackups,
			MaxAge:     config.FileMaxAgeDays,
		}
		h, err := newHandler(rotator, config.FileFormat, level)
		if err != nil {
			return fmt.Errorf("file: %w", err)
		}
		sinks = append(sinks, h)
	}

	var root slog.Handler
	switch len(sinks) {
	case 0:
		root, _ = newHandler(os.Stdout, "text", level)
	case 1:
		root = sinks[0]
	default:
		root = fanout(sinks)
	}
	current.Store(slog.New(contextHandler{root}))
	return nil
}

// InitializeWriter routes all logging to w. Used by tests and tools that
// capture output.
func InitializeWriter(w io.Writer, format, level string) error {
	h, err := newHandler(w, format, parseLogLevel(level))
	if err != nil {
		return err
	}
	current.Store(slog.New(contextHandler{h}))
	return nil
}

func newHandler(w io.Writer, format string, level slog.Level) (slog.Handler, error) {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelAudit {
					a.Value = slog.StringValue("AUDIT")
				}
			}
			return a
		},
	}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger returns the installed logger, or a discarding one before
// Initialize.
func Logger() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func log(ctx context.Context, level slog.Level, msg string, args []any) {
	if l := current.Load(); l != nil {
		l.Log(ctx, level, msg, args...)
	}
}

func Debug(msg string, args ...any)   { log(context.Background(), slog.LevelDebug, msg, args) }
func Info(msg string, args ...any)    { log(context.Background(), slog.LevelInfo, msg, args) }
func Warning(msg string, args ...any) { log(context.Background(), slog.LevelWarn, msg, args) }
func Error(msg string, args ...any)   { log(context.Background(), slog.LevelError, msg, args) }

// DebugContext and friends also attach the attributes stored on ctx.
func DebugContext(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelDebug, msg, args)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelInfo, msg, args)
}

func WarningContext(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelWarn, msg, args)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelError, msg, args)
}

// Audit records an event that must survive any level setting.
func Audit(ctx context.Context, msg string, args ...any) {
	log(ctx, LevelAudit, msg, args)
}

type attrsKey struct{}

// WithAttrs returns a context whose log records carry args (key/value pairs)
// in addition to any attributes already on ctx.
func WithAttrs(ctx context.Context, args ...any) context.Context {
	if len(args) == 0 {
		return ctx
	}
	prev, _ := ctx.Value(attrsKey{}).([]slog.Attr)
	r := slog.NewRecord(time.Time{}, 0, "", 0)
	r.Add(args...)
	attrs := make([]slog.Attr, 0, len(prev)+r.NumAttrs())
	attrs = append(attrs, prev...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	return context.WithValue(ctx, attrsKey{}, attrs)
}

// contextHandler adds the attributes stored by WithAttrs to each record.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs, ok := ctx.Value(attrsKey{}).([]slog.Attr); ok {
		r.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

// fanout sends each record to every sink enabled for its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
