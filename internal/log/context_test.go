package log

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSessionIDRoundTrip(t *testing.T) {
	ctx := ContextWithSessionID(context.Background(), "abc-123")
	if got := SessionIDFromContext(ctx); got != "abc-123" {
		t.Fatalf("expected abc-123, got %q", got)
	}
	if got := SessionIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty session id, got %q", got)
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := ContextWithSessionID(context.Background(), "sid-1")
	ctx = ContextWithItemName(ctx, "V1")

	enriched := WithContext(ctx, logger)
	enriched.Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"session_id":"sid-1"`) {
		t.Errorf("missing session_id field: %s", out)
	}
	if !strings.Contains(out, `"item_name":"V1"`) {
		t.Errorf("missing item_name field: %s", out)
	}
}

func TestWithContextNilSafe(t *testing.T) {
	logger := zerolog.Nop()
	_ = WithContext(nil, logger) //nolint:staticcheck
	if FromContext(nil) == nil {
		t.Fatal("FromContext(nil) must return a logger")
	}
}
