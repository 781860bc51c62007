package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return recorder
}

func TestTracing_SpanName(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/events/spring-fair", "GET /events/{slug}"},
		{http.MethodPost, "/events/spring-fair/participants", "POST /events/{slug}/participants"},
		{http.MethodGet, "/profiles/ada", "GET /profiles/{username}"},
		{http.MethodGet, "/nope/x/y", "GET other"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			recorder := newRecorder(t)
			handler := Tracing("commons-test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))

			spans := recorder.Ended()
			if len(spans) != 1 {
				t.Fatalf("got %d spans, want 1", len(spans))
			}
			if spans[0].Name() != tt.want {
				t.Errorf("span name = %q, want %q", spans[0].Name(), tt.want)
			}
		})
	}
}

func TestTracing_SkipsProbes(t *testing.T) {
	recorder := newRecorder(t)
	handler := Tracing("commons-test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	if n := len(recorder.Ended()); n != 0 {
		t.Errorf("got %d spans for /health, want 0", n)
	}
}

func TestTracing_ContinuesIncomingTrace(t *testing.T) {
	newRecorder(t)
	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	var gotTrace, gotSpan string
	handler := Tracing("commons-test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTrace = GetTraceID(r)
		gotSpan = GetSpanID(r)
	}))

	req := httptest.NewRequest(http.MethodGet, "/events/spring-fair", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotTrace != traceID {
		t.Errorf("trace id = %q, want %q", gotTrace, traceID)
	}
	if gotSpan == "" || gotSpan == "00f067aa0ba902b7" {
		t.Errorf("span id = %q, want a new child span", gotSpan)
	}
}

func TestGetTraceID_NoSpan(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := GetTraceID(req); got != "" {
		t.Errorf("GetTraceID() = %q, want empty", got)
	}
	if got := GetSpanID(req); got != "" {
		t.Errorf("GetSpanID() = %q, want empty", got)
	}
}
