// Package logger provides a context-aware structured logger built on log/slog.
package logger

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Level is the logging severity.
type Level = slog.Level

const (
	LevelDebug    Level = slog.LevelDebug
	LevelInfo     Level = slog.LevelInfo
	LevelWarn     Level = slog.LevelWarn
	LevelError    Level = slog.LevelError
	LevelCritical Level = slog.LevelError + 4
)

// ParseLevel maps a config string to a Level. Unknown values fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "critical", "crit":
		return LevelCritical
	default:
		return LevelInfo
	}
}

// LevelName renders a level, naming the critical level explicitly.
func LevelName(l Level) string {
	if l >= LevelCritical {
		return "CRITICAL"
	}
	return l.String()
}

// TraceIDFn extracts a trace ID from ctx. Returning "" omits the attribute.
type TraceIDFn func(ctx context.Context) string

// LoggerInterface is the logging contract shared by every component.
type LoggerInterface interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
	Critical(ctx context.Context, msg string, args ...any)
	Debugc(ctx context.Context, caller int, msg string, args ...any)
	Infoc(ctx context.Context, caller int, msg string, args ...any)
	Warnc(ctx context.Context, caller int, msg string, args ...any)
	Errorc(ctx context.Context, caller int, msg string, args ...any)
}

var _ LoggerInterface = (*Logger)(nil)

// Logger implements LoggerInterface over an slog.Handler.
type Logger struct {
	handler   slog.Handler
	traceIDFn TraceIDFn
}

// New creates a JSON logger writing to w.
func New(w io.Writer, level Level, serviceName string, traceIDFn TraceIDFn) *Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource:   true,
		Level:       level,
		ReplaceAttr: replaceLevel,
	})
	return NewWithHandler(h, serviceName, traceIDFn)
}

// NewWithHandler wraps an existing handler.
func NewWithHandler(h slog.Handler, serviceName string, traceIDFn TraceIDFn) *Logger {
	if serviceName != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("service", serviceName)})
	}
	if traceIDFn == nil {
		traceIDFn = SpanTraceID
	}
	return &Logger{handler: h, traceIDFn: traceIDFn}
}

// With returns a logger that adds args to every record.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}
	r := slog.NewRecord(time.Time{}, 0, "", 0)
	r.Add(args...)
	attrs := make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	return &Logger{handler: l.handler.WithAttrs(attrs), traceIDFn: l.traceIDFn}
}

// Handler exposes the underlying handler.
func (l *Logger) Handler() slog.Handler {
	return l.handler
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.write(ctx, LevelDebug, 3, msg, args...)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.write(ctx, LevelInfo, 3, msg, args...)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.write(ctx, LevelWarn, 3, msg, args...)
}

func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.write(ctx, LevelError, 3, msg, args...)
}

func (l *Logger) Critical(ctx context.Context, msg string, args ...any) {
	l.write(ctx, LevelCritical, 3, msg, args...)
}

func (l *Logger) Debugc(ctx context.Context, caller int, msg string, args ...any) {
	l.write(ctx, LevelDebug, 3+caller, msg, args...)
}

func (l *Logger) Infoc(ctx context.Context, caller int, msg string, args ...any) {
	l.write(ctx, LevelInfo, 3+caller, msg, args...)
}

func (l *Logger) Warnc(ctx context.Context, caller int, msg string, args ...any) {
	l.write(ctx, LevelWarn, 3+caller, msg, args...)
}

func (l *Logger) Errorc(ctx context.Context, caller int, msg string, args ...any) {
	l.write(ctx, LevelError, 3+caller, msg, args...)
}

func (l *Logger) write(ctx context.Context, level Level, skip int, msg string, args ...any) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.handler.Enabled(ctx, level) {
		return
	}

	var pcs [1]uintptr
	runtime.Callers(skip, pcs[:])

	r := slog.NewRecord(time.Now(), level, msg, pcs[0])
	r.Add(args...)
	if id := l.traceIDFn(ctx); id != "" {
		r.AddAttrs(slog.String("trace_id", id))
	}

	_ = l.handler.Handle(ctx, r)
}

// SpanTraceID returns the OTEL trace ID of the span carried by ctx, if any.
func SpanTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok {
		a.Value = slog.StringValue(LevelName(lvl))
	}
	return a
}
