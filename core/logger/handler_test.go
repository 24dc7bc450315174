package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
)

// logLine writes one event through a fresh handler and returns the line.
func logLine(t *testing.T, format logFormat, ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) string {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{writer: aw, format: format})
	LogEvent(ctx, slog.New(handler).With("component", component), level, event, attrs...)
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	return line
}

func requireInOrder(t *testing.T, line string, parts ...string) {
	t.Helper()
	pos := -1
	for _, p := range parts {
		idx := strings.Index(line, p)
		if idx <= pos {
			t.Fatalf("%s missing or out of order in %s", p, line)
		}
		pos = idx
	}
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	ctx := WithUpdateMeta(WithRID(context.Background(), "rid-123"), 42, 7, 9)
	line := logLine(t, formatKV, ctx, CompApp, slog.LevelInfo, "test.event",
		slog.String("cause", "unit"),
		slog.String("status", "ok"),
	)
	tokens := strings.Split(line, " ")
	want := []string{"ts=", "level=INFO", "component=app", "event=test.event", "status=ok", "rid=rid-123"}
	if len(tokens) < len(want) {
		t.Fatalf("unexpected token count: %s", line)
	}
	for i, prefix := range want {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
	requireInOrder(t, line, "update_id=42", "user_id=7", "chat_id=9", "cause=unit")
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	ctx := WithUpdateMeta(WithRID(context.Background(), "rid-json"), 11, 22, 33)
	line := logLine(t, formatJSON, ctx, "service.test", slog.LevelError, "service.failed",
		slog.String("err_code", "TEST_FAIL"),
		slog.String("err", "boom"),
		slog.String("status", "FAIL"),
	)
	if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}") {
		t.Fatalf("expected JSON object, got %s", line)
	}
	requireInOrder(t, line, `{"ts":`, `"level":"ERROR"`, `"component":"service.test"`,
		`"event":"service.failed"`, `"status":"fail"`, `"rid":"rid-json"`, `"err":"boom"`, `"err_code":"TEST_FAIL"`)
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	raw := "123:456:789"
	line := logLine(t, formatKV, WithRID(context.Background(), raw), CompApp, slog.LevelInfo, "rid.test")
	if !strings.Contains(line, "rid="+CompactRID(raw)) {
		t.Fatalf("expected compact rid, got %s", line)
	}
	if strings.Contains(line, "rid_full=") {
		t.Fatalf("rid_full should be omitted in KV output, got %s", line)
	}

	raw = "12:34:56"
	line = logLine(t, formatJSON, WithRID(context.Background(), raw), CompApp, slog.LevelInfo, "rid.test")
	for _, want := range []string{`"rid":"` + CompactRID(raw) + `"`, `"rid_full":"` + raw + `"`, `"ts_unix_nano":`} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %s in %s", want, line)
		}
	}
}

func TestStructuredHandlerQuotesKVValues(t *testing.T) {
	line := logLine(t, formatKV, context.Background(), CompNav, slog.LevelWarn, "nav.reply",
		slog.String("err", `chat "x" not found`),
		slog.Duration("duration", 1500*1000*1000),
	)
	for _, want := range []string{`err="chat \"x\" not found"`, "duration_ms=1500", "level=WARN"} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %s in %s", want, line)
		}
	}
}

func TestStructuredHandlerRenderFields(t *testing.T) {
	ctx := WithRender(WithUpdateMeta(context.Background(), 5, 7, 7), "sber-receipt", "r-1")
	line := logLine(t, formatKV, ctx, CompRenderer, slog.LevelInfo, "render.done", slog.String("status", "ok"))
	requireInOrder(t, line, "user_id=7", "flow_id=sber-receipt", "render_id=r-1")
}

func TestDurationKey(t *testing.T) {
	cases := map[string]string{
		"duration":        "duration_ms",
		"render_duration": "render_duration_ms",
		"elapsed":         "elapsed_ms",
		"backoff_ms":      "backoff_ms",
	}
	for in, want := range cases {
		if got := durationKey(in); got != want {
			t.Fatalf("durationKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHelpersWithoutInitDoNotPanic(t *testing.T) {
	ctx := WithUpdateMeta(context.Background(), 1, 2, 3)
	Info(ctx, CompRenderer, "render.finish", slog.String("status", "ok"))
	Error(ctx, CompNav, "nav.reply", slog.String("err", "boom"))
}
