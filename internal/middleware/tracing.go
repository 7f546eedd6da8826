package middleware

import (
	"context"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracing wraps next in an otelhttp server span. Inbound W3C traceparent
// headers are honored through the global propagator. Span names use the
// same route patterns as HTTPMetrics, e.g. "GET /listings/{id}/score/explain".
// Placed inside RequestID, the span also carries the request ID.
func Tracing(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		annotated := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := GetRequestID(r.Context()); id != "" {
				trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("http.request_id", id))
			}
			next.ServeHTTP(w, r)
		})
		return otelhttp.NewHandler(annotated, serviceName,
			otelhttp.WithSpanNameFormatter(routeSpanName))
	}
}

func routeSpanName(_ string, r *http.Request) string {
	return r.Method + " " + normalizePath(r.URL.Path)
}

// TraceContext returns the hex trace and span IDs active in ctx, or empty
// strings when there is no valid span.
func TraceContext(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
