package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_CapturesStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := Logger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chains/10/status", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel {
		t.Errorf("expected info level, got %s", entries[0].Level)
	}
	if status := entries[0].ContextMap()["status"]; status != int64(http.StatusNotFound) {
		t.Errorf("expected status 404, got %v", status)
	}
}

func TestLogger_HealthChecksAtDebug(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := Logger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/live", nil))

	if entries := logs.All(); len(entries) != 1 || entries[0].Level != zapcore.DebugLevel {
		t.Errorf("expected one debug entry, got %v", entries)
	}
}

func TestNormalizePath(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Get("/api/v1/chains/{chainId}/status", func(w http.ResponseWriter, req *http.Request) {
		got = normalizePath(req)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/chains/8453/status", nil))

	if got != "/api/v1/chains/{chainId}/status" {
		t.Errorf("expected route pattern, got %q", got)
	}
	if p := normalizePath(httptest.NewRequest(http.MethodGet, "/nowhere", nil)); p != "unmatched" {
		t.Errorf("expected unmatched, got %q", p)
	}
}

func TestRateLimiter(t *testing.T) {
	handler := RateLimiter(1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))

	if first.Code != http.StatusOK {
		t.Errorf("expected first request to pass, got %d", first.Code)
	}
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("expected second request to be limited, got %d", second.Code)
	}
}
