package tracing_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/onnwee/bazaar/internal/middleware"
	"github.com/onnwee/bazaar/internal/tracing"
)

// TestExplainRequestTrace follows an explain request through the HTTP
// middleware into a scoring span and its catalog query.
func TestExplainRequestTrace(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
		_ = tp.Shutdown(context.Background())
	})

	handler := middleware.RequestID(middleware.Tracing("bazaar-api")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, endExplain := tracing.StartSpan(r.Context(), "scoring.explain",
			attribute.String("listing.id", "0b6e3c1e-5d7a-4a53-9a34-1f2d8c7e9b01"))
		_, endQuery := tracing.StartDBSpan(ctx, "listings", tracing.DBOperationQuery)
		endQuery(nil)
		endExplain(nil)
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/listings/0b6e3c1e-5d7a-4a53-9a34-1f2d8c7e9b01/score/explain", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	byName := make(map[string]sdktrace.ReadOnlySpan)
	for _, s := range recorder.Ended() {
		byName[s.Name()] = s
	}

	server, ok := byName["GET /listings/{id}/score/explain"]
	if !ok {
		t.Fatalf("server span missing, got %v", names(recorder.Ended()))
	}
	explain, ok := byName["scoring.explain"]
	if !ok {
		t.Fatal("scoring.explain span missing")
	}
	query, ok := byName["SELECT listings"]
	if !ok {
		t.Fatal("SELECT listings span missing")
	}

	if explain.Parent().SpanID() != server.SpanContext().SpanID() {
		t.Error("scoring.explain is not a child of the server span")
	}
	if query.Parent().SpanID() != explain.SpanContext().SpanID() {
		t.Error("SELECT listings is not a child of scoring.explain")
	}
	traceID := server.SpanContext().TraceID()
	for _, s := range []sdktrace.ReadOnlySpan{explain, query} {
		if s.SpanContext().TraceID() != traceID {
			t.Errorf("%s is on a different trace", s.Name())
		}
	}
}

func TestDisabledProviderHelpersAreNoops(t *testing.T) {
	p, err := tracing.NewProvider(context.Background(), tracing.Config{ServiceName: "bazaar-api"})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	if p.IsEnabled() {
		t.Fatal("zero Config should leave tracing off")
	}

	ctx, endSpan := tracing.StartSpan(context.Background(), "scoring.recompute_all")
	tracing.SetAttributes(ctx, attribute.Int("scoring.updated", 0))
	tracing.AddEvent(ctx, "scoring.page_committed")
	endSpan(nil)

	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func names(spans []sdktrace.ReadOnlySpan) []string {
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = s.Name()
	}
	return out
}
