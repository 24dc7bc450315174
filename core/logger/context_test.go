package logger

import (
	"context"
	"testing"
)

func TestContextAccessors(t *testing.T) {
	var ctx context.Context
	if RIDFrom(ctx) != "" || UserIDFrom(ctx) != 0 || HandlerFrom(ctx) != "" {
		t.Fatal("nil context must yield zero values")
	}

	ctx = WithRID(context.Background(), "1:2:3")
	ctx = WithUpdateMeta(ctx, 1, 3, 2)
	ctx = WithHandler(ctx, "")
	ctx = WithHandler(ctx, "start")
	ctx = WithRender(ctx, "sber-bill", "abc")

	if got := RIDFrom(ctx); got != "1:2:3" {
		t.Fatalf("rid = %q", got)
	}
	if UpdateIDFrom(ctx) != 1 || UserIDFrom(ctx) != 3 || ChatIDFrom(ctx) != 2 {
		t.Fatalf("update meta = %d/%d/%d", UpdateIDFrom(ctx), UserIDFrom(ctx), ChatIDFrom(ctx))
	}
	if got := HandlerFrom(ctx); got != "start" {
		t.Fatalf("handler = %q", got)
	}
	flowID, renderID := RenderFrom(ctx)
	if flowID != "sber-bill" || renderID != "abc" {
		t.Fatalf("render = %q/%q", flowID, renderID)
	}
	if FromContext(ctx) != L {
		t.Fatal("logger must fall back to the global one")
	}
}

func TestSanitizeLimit(t *testing.T) {
	in := "Ivan\x00 Petrov\u200b\tok\x7f"
	if got := Sanitize(in); got != "Ivan Petrov\tok" {
		t.Fatalf("sanitize = %q", got)
	}
	if got := SanitizeLimit("Сбербанк", 4); got != "Сбер" {
		t.Fatalf("limit = %q", got)
	}
	if SanitizeLimit("x", 0) != "" {
		t.Fatal("zero limit must yield empty string")
	}
}

func TestCompactRID(t *testing.T) {
	if got := CompactRID("35:36:1"); got != "z.10.1" {
		t.Fatalf("compact = %q", got)
	}
	for _, rid := range []string{"", "a:b:c", "1:2"} {
		if got := CompactRID(rid); got != rid {
			t.Fatalf("CompactRID(%q) = %q", rid, got)
		}
	}
}
