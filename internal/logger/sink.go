package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Format selects the console rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// SinkConfig describes where log records go.
type SinkConfig struct {
	Level   Level
	Format  Format
	Console bool
	NoColor bool

	// FilePath enables size-rotated file output when non-empty.
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Sink owns the console and rotated-file destinations.
type Sink struct {
	console io.Writer
	file    *lumberjack.Logger
	handler slog.Handler
}

// NewSink builds the destinations described by cfg. Console output goes to
// stderr; the file always receives JSON.
func NewSink(cfg SinkConfig) (*Sink, error) {
	return newSink(cfg, os.Stderr)
}

func newSink(cfg SinkConfig, console io.Writer) (*Sink, error) {
	s := &Sink{}
	var handlers []slog.Handler

	if cfg.Console {
		s.console = console
		if cfg.Format == FormatJSON {
			handlers = append(handlers, slog.NewJSONHandler(console, &slog.HandlerOptions{
				Level:       cfg.Level,
				ReplaceAttr: replaceLevel,
			}))
		} else {
			handlers = append(handlers, tint.NewHandler(console, &tint.Options{
				Level:       cfg.Level,
				NoColor:     cfg.NoColor,
				ReplaceAttr: replaceLevel,
			}))
		}
	}

	if cfg.FilePath != "" {
		s.file = &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		handlers = append(handlers, slog.NewJSONHandler(s.file, &slog.HandlerOptions{
			AddSource:   true,
			Level:       cfg.Level,
			ReplaceAttr: replaceLevel,
		}))
	}

	if len(handlers) == 0 {
		return nil, errors.New("logger sink: neither console nor file output enabled")
	}

	s.handler = NewFanout(handlers...)
	return s, nil
}

// Handler returns the fan-out handler over every destination.
func (s *Sink) Handler() slog.Handler {
	return s.handler
}

// FileWriter returns the rotated file, or io.Discard when file output is off.
func (s *Sink) FileWriter() io.Writer {
	if s.file == nil {
		return io.Discard
	}
	return s.file
}

// Close flushes and closes the rotated file.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// Fanout dispatches each record to every handler that accepts its level.
type Fanout struct {
	handlers []slog.Handler
}

// NewFanout returns a handler writing to all of hs.
func NewFanout(hs ...slog.Handler) *Fanout {
	return &Fanout{handlers: hs}
}

func (f *Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *Fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &Fanout{handlers: hs}
}

func (f *Fanout) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &Fanout{handlers: hs}
}
