package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/runs", nil))
	if seen == "" {
		t.Fatal("request ID missing from context")
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("X-Request-ID = %q, want %q", got, seen)
	}

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, httptest.NewRequest("GET", "/runs", nil))
	if rec2.Header().Get("X-Request-ID") == seen {
		t.Errorf("request IDs not unique: %s", seen)
	}
}

func TestRequestIDMiddleware_ClientID(t *testing.T) {
	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"well formed", "cli-run_20250301.1", true},
		{"spaces", "not valid id", false},
		{"too long", strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.Header.Set("X-Request-ID", tt.header)
			rec := httptest.NewRecorder()
			RequestIDMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rec, req)

			if got := rec.Header().Get("X-Request-ID") == tt.header; got != tt.keep {
				t.Errorf("kept client ID = %v, want %v", got, tt.keep)
			}
		})
	}
}

func TestGetRequestID_NotSet(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("GetRequestID() = %q, want empty", id)
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	var hasDeadline bool
	handler := TimeoutMiddleware(30*time.Second, isTraceStream)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/runs/run_1", nil))
	if !hasDeadline {
		t.Error("GET /runs/run_1 has no deadline")
	}

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/runs/run_1/trace", nil))
	if hasDeadline {
		t.Error("trace stream should not have a deadline")
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := RequestIDMiddleware(LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddLogField(r.Context(), "run_id", "run_1")
		AddLogField(r.Context(), "empty_field", "")
		AddError(r.Context(), errors.New("trace unreadable"))
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("missing"))
	})))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/runs/run_1", nil))

	output := buf.String()
	for _, want := range []string{"request started", "request completed", "level=WARN", "/runs/run_1", "run_id=run_1", "trace unreadable", "status=404", "bytes=7"} {
		if !strings.Contains(output, want) {
			t.Errorf("log output missing %q: %s", want, output)
		}
	}
	if strings.Contains(output, "empty_field") {
		t.Errorf("empty field logged: %s", output)
	}
}

func TestAddLogField_NoMiddleware(t *testing.T) {
	AddLogField(context.Background(), "key", "value")
	AddError(context.Background(), nil)
}
