package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// testLogEntry is one parsed "request completed" line.
type testLogEntry struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	LatencyMS *int64 `json:"latency_ms"`
	Size      int    `json:"size"`
	RequestID string `json:"request_id"`
	ErrorCode string `json:"error_code"`
	TraceID   string `json:"trace_id"`
	SpanID    string `json:"span_id"`
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func parseEntry(t *testing.T, buf *bytes.Buffer) testLogEntry {
	t.Helper()
	var entry testLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry: %v, log: %s", err, buf.String())
	}
	return entry
}

func TestLogging_LevelAndErrorCodeByStatus(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		path      string
		status    int
		code      string
		body      string
		wantLevel string
		wantCode  string
	}{
		{"ranked page", http.MethodGet, "/listings/ranked", http.StatusOK, "", `{"listings":[]}`, "INFO", ""},
		{"code ignored on success", http.MethodPost, "/listings/ab12/dirty", http.StatusAccepted, "listing_not_found", "", "INFO", ""},
		{"bad weights", http.MethodPut, "/admin/ranking/weights", http.StatusBadRequest, "invalid_weight", `{"error":{}}`, "WARN", "invalid_weight"},
		{"unknown listing", http.MethodGet, "/listings/ab12/score/explain", http.StatusNotFound, "listing_not_found", "", "WARN", "listing_not_found"},
		{"store down", http.MethodPost, "/admin/ranking/recompute", http.StatusInternalServerError, "internal_error", "", "ERROR", "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.code != "" {
					UpdateResponseContext(w, SetErrorCode(r.Context(), tt.code))
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))

			entry := parseEntry(t, buf)
			if entry.Msg != "request completed" {
				t.Errorf("msg = %q", entry.Msg)
			}
			if entry.Method != tt.method || entry.Path != tt.path || entry.Status != tt.status {
				t.Errorf("got %s %s %d, want %s %s %d", entry.Method, entry.Path, entry.Status, tt.method, tt.path, tt.status)
			}
			if entry.Level != tt.wantLevel {
				t.Errorf("level = %s, want %s", entry.Level, tt.wantLevel)
			}
			if entry.ErrorCode != tt.wantCode {
				t.Errorf("error_code = %q, want %q", entry.ErrorCode, tt.wantCode)
			}
			if entry.Size != len(tt.body) {
				t.Errorf("size = %d, want %d", entry.Size, len(tt.body))
			}
			if entry.LatencyMS == nil {
				t.Error("latency_ms missing")
			}
		})
	}
}

func TestLogging_ErrorCodeFromRequestContext(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*r = *r.WithContext(SetErrorCode(r.Context(), "validation_error"))
		w.WriteHeader(http.StatusBadRequest)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/admin/ranking/recompute?batch_size=0", nil))

	if entry := parseEntry(t, buf); entry.ErrorCode != "validation_error" {
		t.Errorf("error_code = %q, want validation_error", entry.ErrorCode)
	}
}

func TestLogging_CorrelationIDs(t *testing.T) {
	recordSpans(t)
	buf := &bytes.Buffer{}
	handler := RequestID(Tracing("bazaar-api")(Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))))

	req := httptest.NewRequest(http.MethodGet, "/listings/ranked", nil)
	req.Header.Set(RequestIDHeader, "req-ranked-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := parseEntry(t, buf)
	if entry.RequestID != "req-ranked-1" {
		t.Errorf("request_id = %q", entry.RequestID)
	}
	if len(entry.TraceID) != 32 || len(entry.SpanID) != 16 {
		t.Errorf("trace_id = %q span_id = %q, want hex IDs", entry.TraceID, entry.SpanID)
	}
}

func TestLogging_NoTraceFieldsWithoutSpan(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := Logging(newTestLogger(buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	entry := parseEntry(t, buf)
	if entry.TraceID != "" || entry.SpanID != "" || entry.RequestID != "" {
		t.Errorf("unexpected correlation fields: %+v", entry)
	}
	if entry.Status != http.StatusOK {
		t.Errorf("default status = %d, want 200", entry.Status)
	}
}

func TestUpdateResponseContext_UnwrappedWriter(t *testing.T) {
	// Must not panic on a writer that Logging did not wrap.
	UpdateResponseContext(httptest.NewRecorder(), SetErrorCode(context.Background(), "internal_error"))
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusInternalServerError)
	_, _ = rw.Write([]byte("queued"))

	if rw.statusCode != http.StatusAccepted || rec.Code != http.StatusAccepted {
		t.Errorf("status = %d/%d, want 202", rw.statusCode, rec.Code)
	}
	if rw.size != len("queued") {
		t.Errorf("size = %d", rw.size)
	}
}

func TestNewLogger(t *testing.T) {
	for _, env := range []string{"production", "development", ""} {
		if NewLogger(env) == nil {
			t.Errorf("NewLogger(%q) = nil", env)
		}
	}
}
