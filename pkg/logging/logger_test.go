package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestCompactHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	h := NewCompactHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	l := slog.New(h).With("component", "refs")

	l.Info("scan complete", "files", 12, "path", "a b.md", "durationMs", int64(4))

	line := buf.String()
	for _, want := range []string{"[INFO]", "scan complete", "| component=refs", "files=12", `path="a b.md"`, "duration=4ms"} {
		if !strings.Contains(line, want) {
			t.Errorf("output %q missing %q", line, want)
		}
	}
}

func TestCompactHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewCompactHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	l.Info("hidden")
	l.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "[WARN]") {
		t.Error("warn record should be written")
	}
}

func TestComponentLoggerFollowsLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, slog.LevelInfo)
	defer SetOutput(&bytes.Buffer{}, slog.LevelInfo)

	l := New("finder")
	l.Debug("not yet")
	SetLevel(slog.LevelDebug)
	l.Debug("now visible")

	out := buf.String()
	if strings.Contains(out, "not yet") {
		t.Error("debug record written before level was lowered")
	}
	if !strings.Contains(out, "now visible") || !strings.Contains(out, "component=finder") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestComponentLoggerRequestID(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, slog.LevelInfo)
	defer SetOutput(&bytes.Buffer{}, slog.LevelInfo)

	ctx := WithRequestID(context.Background(), "0123456789abcdef")
	New("web").InfoContext(ctx, "served")

	if !strings.Contains(buf.String(), "req=01234567") {
		t.Errorf("request id not shortened into output: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		count int
		want  slog.Level
	}{
		{"", 0, slog.LevelInfo},
		{"", 1, slog.LevelDebug},
		{"", 3, LevelTrace},
		{"warn", 2, slog.LevelWarn},
		{"ERROR", 0, slog.LevelError},
		{"trace", 0, LevelTrace},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.name, tt.count); got != tt.want {
			t.Errorf("ParseLevel(%q, %d) = %v, want %v", tt.name, tt.count, got, tt.want)
		}
	}
}

func TestCompactHandlerGroups(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewCompactHandler(&buf, nil)).WithGroup("scan").With("root", ".")
	l.Info("done", slog.Group("refs", "broken", 2), "err", errors.New("two failed"))

	line := buf.String()
	for _, want := range []string{"scan.root=.", "scan.refs.broken=2", `scan.err="two failed"`} {
		if !strings.Contains(line, want) {
			t.Errorf("output %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Errorf("non-terminal output is colored: %q", line)
	}
}
