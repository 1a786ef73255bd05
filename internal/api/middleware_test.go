package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/GerrieStrongbow/hospital-stats-MVP-sub000/internal/remote"
)

// captureLogs routes the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(old) })
	return &buf
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	captureLogs(t)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + testAPIKey, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong token", "Bearer wrong-key", http.StatusUnauthorized},
		{"basic scheme", "Basic " + testAPIKey, http.StatusUnauthorized},
		{"lowercase scheme", "bearer " + testAPIKey, http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"whitespace token", "Bearer    ", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			h := AuthMiddleware(testAPIKey)(okHandler(&called))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/encounters", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if called != (tt.want == http.StatusOK) {
				t.Errorf("next handler called = %v", called)
			}
		})
	}
}

func TestAuthMiddleware_ProblemBodyHasNoKey(t *testing.T) {
	logs := captureLogs(t)
	h := AuthMiddleware(testAPIKey)(okHandler(new(bool)))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil)
	req.Header.Set("Authorization", "Bearer wrong-key")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Type != problemBaseURI+"unauthorized" || p.Code != remote.CodeUnauthorized || p.Instance != "/api/v1/profile" {
		t.Errorf("problem = %+v", p)
	}
	for _, out := range []string{w.Body.String(), logs.String()} {
		if strings.Contains(out, testAPIKey) {
			t.Errorf("output contains the API key: %s", out)
		}
	}
}

func TestOwnerMiddleware(t *testing.T) {
	tests := []struct {
		name  string
		owner string
		want  int
	}{
		{"present", "therapist-1", http.StatusOK},
		{"trimmed", "  therapist-1  ", http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"blank", "   ", http.StatusUnauthorized},
		{"too long", strings.Repeat("a", 65), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := OwnerMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = MustOwnerFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/encounters", nil)
			if tt.owner != "" {
				req.Header.Set(remote.OwnerHeader, tt.owner)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.want == http.StatusOK && got != "therapist-1" {
				t.Errorf("owner in context = %q", got)
			}
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":    "abc",
		"Bearer  abc  ": "abc",
		"Bearer":        "",
		"Token abc":     "",
		"":              "",
	}
	for header, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		if got := extractBearerToken(req); got != want {
			t.Errorf("extractBearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !constantTimeEqual("secret", "secret") {
		t.Error("equal strings compared unequal")
	}
	for _, other := range []string{"secreT", "secret1", ""} {
		if constantTimeEqual("secret", other) {
			t.Errorf("constantTimeEqual(secret, %q) = true", other)
		}
	}
}

func TestLogLevelForStatus(t *testing.T) {
	tests := map[int]slog.Level{
		200: slog.LevelInfo,
		204: slog.LevelInfo,
		304: slog.LevelInfo,
		404: slog.LevelWarn,
		409: slog.LevelWarn,
		500: slog.LevelError,
		503: slog.LevelError,
	}
	for status, want := range tests {
		if got := logLevelForStatus(status); got != want {
			t.Errorf("logLevelForStatus(%d) = %v, want %v", status, got, want)
		}
	}
}

func TestLoggingMiddleware(t *testing.T) {
	logs := captureLogs(t)

	h := middleware.RequestID(LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/encounters", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.RemoteAddr = "10.0.0.7:5555"
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := logs.String()
	for _, want := range []string{
		"request completed",
		"level=WARN",
		"status=409",
		"method=POST",
		"path=/api/v1/encounters",
		"request_id=",
		"remote_addr=10.0.0.7:5555",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
	if strings.Contains(out, testAPIKey) {
		t.Error("log output contains the API key")
	}
}

func TestGetRequestID(t *testing.T) {
	var id string
	h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = GetRequestID(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if id == "" {
		t.Error("expected a request id inside the RequestID chain")
	}
	if got := GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()); got != "" {
		t.Errorf("GetRequestID outside chain = %q, want empty", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logs := captureLogs(t)

	h := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("aggregation exploded")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/encounters", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), "aggregation exploded") {
		t.Error("panic value leaked to the client")
	}
	if !strings.Contains(logs.String(), "panic recovered") || !strings.Contains(logs.String(), "aggregation exploded") {
		t.Errorf("panic not logged: %s", logs.String())
	}
}

func TestRecoveryMiddleware_AbortHandlerRepanics(t *testing.T) {
	h := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if recover() != http.ErrAbortHandler {
			t.Error("expected http.ErrAbortHandler to propagate")
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
