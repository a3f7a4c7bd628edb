package service

import (
	"context"
	"testing"

	"github.com/Sternrassler/rsvp-client/internal/testutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracing_ReadSpans(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()
	seedGuests(mock, 1)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	svc := newGuestService(t, mock, WithTracer(tp.Tracer("test")))
	ctx := context.Background()

	_, _ = svc.FetchAll(ctx, nil)
	_, _ = svc.FetchAll(ctx, nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}

	for i, wantHit := range []bool{false, true} {
		span := spans[i]
		if span.Name() != "service.fetchAll" {
			t.Errorf("span[%d] name = %q", i, span.Name())
		}
		if span.Status().Code != codes.Ok {
			t.Errorf("span[%d] status = %v, want Ok", i, span.Status().Code)
		}
		hit, ok := spanAttr(span, "rsvp.cache_hit")
		if !ok || hit.AsBool() != wantHit {
			t.Errorf("span[%d] rsvp.cache_hit = %v (present %v), want %v", i, hit.AsBool(), ok, wantHit)
		}
		endpoint, _ := spanAttr(span, "rsvp.endpoint")
		if endpoint.AsString() != "rsvps" {
			t.Errorf("span[%d] rsvp.endpoint = %q", i, endpoint.AsString())
		}
	}
}

func TestTracing_ErrorSpan(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	svc := newGuestService(t, mock, WithTracer(tp.Tracer("test")))

	_, _ = svc.FetchByID(context.Background(), "missing")

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "service.fetchById" {
		t.Errorf("name = %q", span.Name())
	}
	if span.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", span.Status().Code)
	}
	if len(span.Events()) == 0 {
		t.Error("expected recorded error event")
	}
	id, _ := spanAttr(span, "rsvp.id")
	if id.AsString() != "missing" {
		t.Errorf("rsvp.id = %q", id.AsString())
	}
}

func TestTracing_ExistsWrapsFetch(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	svc := newGuestService(t, mock, WithTracer(tp.Tracer("test")))

	exists, err := svc.Exists(context.Background(), "missing")
	if err != nil || exists {
		t.Fatalf("Exists() = %v, %v", exists, err)
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	child, parent := spans[0], spans[1]
	if parent.Name() != "service.exists" || child.Name() != "service.fetchById" {
		t.Errorf("names = %q, %q", parent.Name(), child.Name())
	}
	if child.Parent().SpanID() != parent.SpanContext().SpanID() {
		t.Error("fetchById span should be a child of exists span")
	}
	if parent.Status().Code != codes.Ok {
		t.Errorf("exists status = %v, want Ok", parent.Status().Code)
	}
}
