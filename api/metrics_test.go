package api

import (
	"context"
	"errors"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})
	return exporter
}

func spanAttributes(span tracetest.SpanStub) map[attribute.Key]attribute.Value {
	attrs := make(map[attribute.Key]attribute.Value, len(span.Attributes))
	for _, kv := range span.Attributes {
		attrs[kv.Key] = kv.Value
	}
	return attrs
}

func TestStatsRequestMetricsLog(t *testing.T) {
	exporter := setupTestTracer(t)
	logger, hook := logtest.NewNullLogger()

	m, _ := newStatsRequestMetrics(context.Background(), logger)
	m.ObserveAuth(2 * time.Millisecond)
	m.ObserveFetch(5 * time.Millisecond)
	m.ObserveNarrate(40 * time.Millisecond)
	m.SetTasksScanned(7)
	m.SetNarrated(true)
	m.Log(200, nil)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != statsEventName {
		t.Fatalf("unexpected span name %q", span.Name)
	}
	if span.Status.Code != codes.Ok {
		t.Fatalf("expected ok status, got %v", span.Status.Code)
	}
	attrs := spanAttributes(span)
	if attrs["http.status_code"].AsInt64() != 200 {
		t.Fatalf("unexpected status attribute: %v", attrs["http.status_code"])
	}
	if attrs["tasks.scanned"].AsInt64() != 7 {
		t.Fatalf("unexpected tasks attribute: %v", attrs["tasks.scanned"])
	}
	if !attrs["insights.narrated"].AsBool() {
		t.Fatalf("expected narrated attribute to be true")
	}

	if len(hook.Entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(hook.Entries))
	}
	entry := hook.LastEntry()
	if entry.Message != "observability.event" {
		t.Fatalf("unexpected message %q", entry.Message)
	}
	if entry.Data["event.name"] != statsEventName || entry.Data["event.domain"] != statsEventDomain {
		t.Fatalf("unexpected event fields: %#v", entry.Data)
	}
	if entry.Data["tasks_scanned"] != 7 || entry.Data["narrated"] != true {
		t.Fatalf("unexpected data fields: %#v", entry.Data)
	}
	if _, ok := entry.Data["narrate_ms"]; !ok {
		t.Fatalf("expected narrate_ms field: %#v", entry.Data)
	}
	if _, ok := entry.Data["error"]; ok {
		t.Fatalf("unexpected error field: %#v", entry.Data)
	}
}

func TestStatsRequestMetricsLogError(t *testing.T) {
	exporter := setupTestTracer(t)
	logger, hook := logtest.NewNullLogger()

	m, _ := newStatsRequestMetrics(context.Background(), logger)
	m.SetErrorStage("fetch")
	m.Log(500, errors.New("table offline"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	span := spans[0]
	if span.Status.Code != codes.Error {
		t.Fatalf("expected error status, got %v", span.Status.Code)
	}
	attrs := spanAttributes(span)
	if attrs["error.stage"].AsString() != "fetch" {
		t.Fatalf("unexpected error stage attribute: %v", attrs["error.stage"])
	}
	if len(span.Events) == 0 {
		t.Fatal("expected recorded error event")
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Data["error"] != "table offline" || entry.Data["error_stage"] != "fetch" {
		t.Fatalf("unexpected data fields: %#v", entry.Data)
	}
}

func TestStatsRequestMetricsNilReceiver(t *testing.T) {
	var m *statsRequestMetrics
	m.Log(200, nil)
}

func TestDurationToMillis(t *testing.T) {
	if got := durationToMillis(1500 * time.Microsecond); got != 1.5 {
		t.Fatalf("expected 1.5 got %v", got)
	}
	if got := durationToMillis(-time.Second); got != 0 {
		t.Fatalf("expected 0 for negative duration, got %v", got)
	}
	if got := durationToMillis(0); got != 0 {
		t.Fatalf("expected 0 got %v", got)
	}
}
