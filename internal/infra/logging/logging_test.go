package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestRedact(t *testing.T) {
	t.Run("dev mode passes through", func(t *testing.T) {
		if got := Redact("buyer@example.com", true); got != "buyer@example.com" {
			t.Errorf("Redact dev = %q", got)
		}
	})

	t.Run("short values fully masked", func(t *testing.T) {
		if got := Redact("a@b.c", false); got != "***" {
			t.Errorf("Redact short = %q", got)
		}
	})

	t.Run("long values keep a preview", func(t *testing.T) {
		got := Redact("buyer@example.com", false)
		if got != "buye...om" {
			t.Errorf("Redact long = %q", got)
		}
		if strings.Contains(got, "example") {
			t.Errorf("domain leaked: %q", got)
		}
	})
}

func TestWithContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithUserID(ctx, "u1")
	ctx = WithPaymentID(ctx, "pay-1")

	With(ctx, &base).Info().Msg("hello")

	out := buf.String()
	for _, want := range []string{`"trace_id":"trace-1"`, `"user_id":"u1"`, `"payment_id":"pay-1"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log line %q missing %s", out, want)
		}
	}
}
