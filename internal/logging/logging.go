// Package logging configures the process-wide slog logger: a text or JSON
// handler on stderr plus an optional rotated JSON file.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger setup.
type Options struct {
	Level  string // debug|info|warn|error
	Format string // text|json
	File   string // optional rotated log file
}

// Setup builds a logger writing to stderr (and File, if set), installs it as
// slog.Default and returns it with a closer for the file sink.
func Setup(opts Options, stderr io.Writer) (*slog.Logger, io.Closer) {
	level := ParseLevel(opts.Level)
	handlerOpts := &slog.HandlerOptions{Level: level}

	var console slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		console = slog.NewJSONHandler(stderr, handlerOpts)
	} else {
		console = slog.NewTextHandler(stderr, handlerOpts)
	}

	handler := console
	var closer io.Closer = nopCloser{}
	if file := strings.TrimSpace(opts.File); file != "" {
		rotated := &lumberjack.Logger{Filename: file, MaxSize: 5, MaxBackups: 3, MaxAge: 28, Compress: true}
		handler = fanout(console, slog.NewJSONHandler(rotated, handlerOpts))
		closer = rotated
	}

	logger := slog.New(handler).With(slog.String("app", "seccin"))
	slog.SetDefault(logger)
	return logger, closer
}

// ParseLevel maps a level name to a slog level, defaulting to warn.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fanout sends each record to every handler that accepts its level.
func fanout(handlers ...slog.Handler) slog.Handler { return &multi{hs: handlers} }

type multi struct{ hs []slog.Handler }

func (m *multi) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.hs {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multi) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range m.hs {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *multi) WithAttrs(attrs []slog.Attr) slog.Handler {
	res := make([]slog.Handler, 0, len(m.hs))
	for _, h := range m.hs {
		res = append(res, h.WithAttrs(attrs))
	}
	return &multi{hs: res}
}

func (m *multi) WithGroup(name string) slog.Handler {
	res := make([]slog.Handler, 0, len(m.hs))
	for _, h := range m.hs {
		res = append(res, h.WithGroup(name))
	}
	return &multi{hs: res}
}
