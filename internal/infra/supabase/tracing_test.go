package supabase_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/infra/supabase"
	"github.com/boddenberg/mkt-demandas-bfa-go/internal/testutil/fakerest"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// spanTransport remembers the span carried by each outgoing request.
type spanTransport struct {
	base  http.RoundTripper
	mu    sync.Mutex
	spans []trace.SpanContext
}

func (s *spanTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	s.spans = append(s.spans, trace.SpanContextFromContext(req.Context()))
	s.mu.Unlock()
	return s.base.RoundTrip(req)
}

func TestWrite_RequestRunsInsideOperationSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	srv := fakerest.New()
	t.Cleanup(srv.Close)
	transport := &spanTransport{base: srv.Client().Transport}
	c := supabase.NewClient(&http.Client{Transport: transport}, srv.URL, "anon-key", "service-key",
		resilience.NewCircuitBreaker("tracing"),
		resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxConcurrency: 4},
		zap.NewNop())

	if _, err := c.CreateStatus(context.Background(), map[string]any{"name": "Backlog", "kind": "backlog", "order_index": 0}); err != nil {
		t.Fatal(err)
	}

	var op sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		if s.Name() == "Supabase.CreateStatus" {
			op = s
		}
	}
	if op == nil {
		t.Fatal("no Supabase.CreateStatus span recorded")
	}
	if len(transport.spans) == 0 {
		t.Fatal("no request went out")
	}
	for _, sc := range transport.spans {
		if sc.SpanID() != op.SpanContext().SpanID() {
			t.Errorf("request ran outside the operation span: got %s, want %s", sc.SpanID(), op.SpanContext().SpanID())
		}
	}
}
