// Package logger provides roar's structured logger: a small wrapper over
// log/slog that reports the caller's source location (not this package's),
// optionally fans out to a second writer via slog-multi, and is carried
// through a context.Context for the duration of a command.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	slogmulti "github.com/samber/slog-multi"
)

// Logger is roar's logging surface. All methods report the source location
// of their caller, however deep the call arrived through With/WithGroup.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger
}

type slogLogger struct {
	l *slog.Logger
}

type settings struct {
	debug  bool
	format string
	writer io.Writer
	quiet  bool
}

// Option configures NewLogger.
type Option func(*settings)

// WithDebug enables debug-level logging and source-location reporting.
func WithDebug() Option { return func(s *settings) { s.debug = true } }

// WithFormat selects "text" (default) or "json" output.
func WithFormat(format string) Option { return func(s *settings) { s.format = format } }

// WithWriter sets the primary sink. Defaults to os.Stderr.
func WithWriter(w io.Writer) Option { return func(s *settings) { s.writer = w } }

// WithQuiet suppresses the secondary stderr mirror NewLogger otherwise adds
// when the primary writer isn't already stderr.
func WithQuiet() Option { return func(s *settings) { s.quiet = true } }

// NewLogger builds a Logger per the given options.
func NewLogger(opts ...Option) Logger {
	cfg := settings{format: "text", writer: os.Stderr}
	for _, opt := range opts {
		opt(&cfg)
	}

	level := slog.LevelInfo
	if cfg.debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level, AddSource: cfg.debug}

	newHandler := func(w io.Writer) slog.Handler {
		if cfg.format == "json" {
			return slog.NewJSONHandler(w, handlerOpts)
		}
		return slog.NewTextHandler(w, handlerOpts)
	}

	handler := newHandler(cfg.writer)
	if !cfg.quiet && cfg.writer != os.Stderr {
		handler = slogmulti.Fanout(handler, newHandler(os.Stderr))
	}

	return &slogLogger{l: slog.New(handler)}
}

// implFiles are this package's own non-test source files: frames in these
// are skipped when computing the caller's source location.
var implFiles = map[string]bool{
	"logger.go":  true,
	"context.go": true,
}

func callerPC() uintptr {
	var pcs [32]uintptr
	n := runtime.Callers(2, pcs[:])
	if n == 0 {
		return 0
	}
	frames := runtime.CallersFrames(pcs[:n])
	var last uintptr
	for {
		frame, more := frames.Next()
		last = frame.PC
		if !implFiles[filepath.Base(frame.File)] {
			return frame.PC
		}
		if !more {
			return last
		}
	}
}

func (s *slogLogger) log(level slog.Level, msg string, args ...any) {
	ctx := context.Background()
	if !s.l.Enabled(ctx, level) {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, callerPC())
	r.Add(args...)
	_ = s.l.Handler().Handle(ctx, r)
}

func (s *slogLogger) Debug(msg string, args ...any) { s.log(slog.LevelDebug, msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.log(slog.LevelInfo, msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.log(slog.LevelWarn, msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.log(slog.LevelError, msg, args...) }

func (s *slogLogger) Debugf(format string, args ...any) { s.log(slog.LevelDebug, fmt.Sprintf(format, args...)) }
func (s *slogLogger) Infof(format string, args ...any)  { s.log(slog.LevelInfo, fmt.Sprintf(format, args...)) }
func (s *slogLogger) Warnf(format string, args ...any)  { s.log(slog.LevelWarn, fmt.Sprintf(format, args...)) }
func (s *slogLogger) Errorf(format string, args ...any) { s.log(slog.LevelError, fmt.Sprintf(format, args...)) }

func (s *slogLogger) With(args ...any) Logger {
	return &slogLogger{l: s.l.With(args...)}
}

func (s *slogLogger) WithGroup(name string) Logger {
	return &slogLogger{l: s.l.WithGroup(name)}
}
