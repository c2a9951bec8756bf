package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// installTracer routes global spans into an in-memory exporter for the
// duration of the test.
func installTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs installs a text logger at level and returns its output buffer.
func captureLogs(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestWithSession_TagsSpansAndLogs(t *testing.T) {
	exp := installTracer(t)
	logs := captureLogs(t, slog.LevelInfo)

	ctx := WithSession(context.Background(), "sess-42")
	ctx, span := StartSpan(ctx, "router.Handle")
	Logger(ctx).Info("routed", "mode", "rag")
	span.End()

	out := logs.String()
	for _, want := range []string{"session_id=sess-42", "trace_id=" + CorrelationID(ctx), "span_id="} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	found := false
	for _, a := range spans[0].Attributes {
		if a.Key == SessionAttr && a.Value.AsString() == "sess-42" {
			found = true
		}
	}
	if !found {
		t.Errorf("span attributes = %v, want %s", spans[0].Attributes, SessionAttr)
	}
}

func TestWithSession_Empty(t *testing.T) {
	logs := captureLogs(t, slog.LevelInfo)

	ctx := WithSession(context.Background(), "")
	if SessionID(ctx) != "" {
		t.Errorf("SessionID = %q, want empty", SessionID(ctx))
	}
	if CorrelationID(ctx) != "" {
		t.Errorf("CorrelationID without span = %q, want empty", CorrelationID(ctx))
	}

	Logger(ctx).Info("plain chat")
	if out := logs.String(); strings.Contains(out, "session_id") || strings.Contains(out, "trace_id") {
		t.Errorf("unexpected context attributes: %s", out)
	}
}
