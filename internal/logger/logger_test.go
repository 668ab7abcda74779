package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNew_WritesServiceField(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "sigengine", slog.LevelInfo)
	l.Debug("hidden")
	l.Info("scan complete", slog.Int("kept", 3))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line (debug filtered), got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if rec["service"] != "sigengine" || rec["msg"] != "scan complete" || rec["kept"] != float64(3) {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"loud":    slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	if tid := TraceID(ctx); tid != "" {
		t.Errorf("expected empty trace id, got %q", tid)
	}

	ctx = WithTraceID(ctx, "scan-42")
	if tid := TraceID(ctx); tid != "scan-42" {
		t.Errorf("expected 'scan-42', got %q", tid)
	}
}

func TestGenerateTraceID(t *testing.T) {
	ts := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.UTC)
	tid := GenerateTraceID("BTCUSDT", ts)

	if !strings.HasPrefix(tid, "BTCUSDT-") {
		t.Errorf("expected trace id to start with 'BTCUSDT-', got %s", tid)
	}
	if !strings.HasSuffix(tid, "123456789") {
		t.Errorf("expected trace id to end with the nanosecond timestamp, got %s", tid)
	}
}

func TestLogWithTrace(t *testing.T) {
	ctx := context.Background()
	if attrs := LogWithTrace(ctx); attrs != nil {
		t.Errorf("expected nil attrs without trace id, got %v", attrs)
	}

	ctx = WithTraceID(ctx, "abc-123")
	attrs := LogWithTrace(ctx)
	if len(attrs) != 1 {
		t.Fatalf("expected one attr, got %v", attrs)
	}
	if a, ok := attrs[0].(slog.Attr); !ok || a.Value.String() != "abc-123" {
		t.Errorf("unexpected attr %v", attrs[0])
	}
}
