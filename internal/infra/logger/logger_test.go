package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestMaskIP(t *testing.T) {
	cases := map[string]string{
		"":                        "",
		"192.168.1.100":           "192.168.*.*",
		"2001:0db8:85a3:0000:0:1": "2001:0db8:85a3:0000:*:*:*:*",
		"localhost":               "***",
	}
	for in, want := range cases {
		if got := MaskIP(in); got != want {
			t.Fatalf("MaskIP(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskStringAndToken(t *testing.T) {
	if got := MaskString("secret123"); got != "se***23" {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := MaskString("abc"); got != "***" {
		t.Fatalf("short values must be fully masked, got %q", got)
	}
	if got := MaskToken("eyJhbGciOi.payload.sig"); got != "ey***Oi.***" {
		t.Fatalf("unexpected token mask %q", got)
	}
	if got := MaskToken("opaque"); got != "***" {
		t.Fatalf("unexpected opaque mask %q", got)
	}
}

func TestRequestIDFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), RequestIDKey{}, "req-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("unexpected request id %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
}

func TestWithContextAddsRequestID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := context.WithValue(context.Background(), RequestIDKey{}, "req-7")
	WithContext(ctx, base).Info("scoped")
	WithContext(context.Background(), base).Info("plain")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["request_id"]; got != "req-7" {
		t.Fatalf("expected request id on scoped entry, got %v", got)
	}
	if _, ok := entries[1].ContextMap()["request_id"]; ok {
		t.Fatalf("entry without request id must not carry the field")
	}

	if WithContext(ctx, nil) == nil {
		t.Fatalf("expected a usable logger for a nil base")
	}
}
