package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

// newTestLogger builds a debug-level text logger writing to buf, with the
// secondary stderr mirror suppressed so tests only see the captured output.
func newTestLogger(buf *bytes.Buffer, opts ...Option) Logger {
	base := []Option{WithDebug(), WithFormat("text"), WithWriter(buf), WithQuiet()}
	return NewLogger(append(base, opts...)...)
}

func TestDirectCallsReportCallSite(t *testing.T) {
	cases := []struct {
		name string
		call func(Logger)
	}{
		{"info", func(l Logger) { l.Info("job recorded") }},
		{"debug", func(l Logger) { l.Debug("hashing artifact") }},
		{"warn", func(l Logger) { l.Warn("stale upstream dependency") }},
		{"error", func(l Logger) { l.Error("tracer exited non-zero") }},
		{"infof", func(l Logger) { l.Infof("recorded job %s", "a1b2c3") }},
		{"debugf", func(l Logger) { l.Debugf("resolved %d packages", 7) }},
		{"warnf", func(l Logger) { l.Warnf("replaying step %s", "@3") }},
		{"errorf", func(l Logger) { l.Errorf("glaas returned %d", 503) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			tc.call(newTestLogger(&buf))
			out := buf.String()
			if !strings.Contains(out, "logger_test.go:") {
				t.Fatalf("expected source location from this file, got: %s", out)
			}
			if strings.Contains(out, "internal/logger/logger.go") || strings.Contains(out, "slog-multi") {
				t.Fatalf("expected the caller's location, not the logger package's, got: %s", out)
			}
		})
	}
}

func TestContextHelpersReportCallSite(t *testing.T) {
	cases := []struct {
		name string
		call func(context.Context)
	}{
		{"info", func(ctx context.Context) { Info(ctx, "session created") }},
		{"debug", func(ctx context.Context) { Debug(ctx, "loaded sidecar log") }},
		{"warn", func(ctx context.Context) { Warn(ctx, "no active session") }},
		{"error", func(ctx context.Context) { Error(ctx, "config.toml missing") }},
		{"infof", func(ctx context.Context) { Infof(ctx, "exit=%d", 0) }},
		{"debugf", func(ctx context.Context) { Debugf(ctx, "algo=%s", "blake3") }},
		{"warnf", func(ctx context.Context) { Warnf(ctx, "dropped %d stale hashes", 2) }},
		{"errorf", func(ctx context.Context) { Errorf(ctx, "auth failed: %v", "no such key") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			ctx := WithLogger(context.Background(), newTestLogger(&buf))
			tc.call(ctx)
			out := buf.String()
			if !strings.Contains(out, "logger_test.go:") {
				t.Fatalf("expected source location from this file, got: %s", out)
			}
			for _, frame := range []string{"internal/logger/logger.go", "internal/logger/context.go", "slog-multi"} {
				if strings.Contains(out, frame) {
					t.Fatalf("expected the caller's location, not %q, got: %s", frame, out)
				}
			}
		})
	}
}

func TestSourceSurvivesIndirectionThroughHelpers(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)

	recordStep := func(l Logger) { l.Info("step recorded") }
	runPipeline := func(l Logger) { recordStep(l) }

	runPipeline(l)
	out := buf.String()

	if strings.Contains(out, "internal/logger/logger.go") {
		t.Fatalf("expected the helper's call site, not logger.go, got: %s", out)
	}
	if !strings.Contains(out, "logger_test.go") {
		t.Fatalf("expected this file's name in the log line, got: %s", out)
	}
}

func TestSourceSurvivesWithAndWithGroup(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)

	l.With("job_uid", "f00d").Info("attached fields")
	l.WithGroup("provenance").Info("grouped fields")

	out := buf.String()
	if strings.Contains(out, "internal/logger/logger.go") {
		t.Fatalf("With/WithGroup should not shift the reported source, got: %s", out)
	}
	if strings.Count(out, "logger_test.go") != 2 {
		t.Fatalf("expected both lines to report this file, got: %s", out)
	}
}

func TestProductionModeOmitsSource(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithFormat("text"), WithWriter(&buf), WithQuiet())

	l.Info("running without --debug")

	if strings.Contains(buf.String(), "source=") {
		t.Fatalf("production mode must not emit source=, got: %s", buf.String())
	}
}

func TestJSONFormatReportsCallerNotLoggerPackage(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, WithFormat("json"))

	l.Info("json output")

	out := buf.String()
	if strings.Contains(out, "internal/logger/logger.go") || strings.Contains(out, `internal\/logger\/logger.go`) {
		t.Fatalf("JSON output should not report the logger package as the source, got: %s", out)
	}
	if !strings.Contains(out, "logger_test.go") {
		t.Fatalf("expected this file's name in the JSON output, got: %s", out)
	}
}
