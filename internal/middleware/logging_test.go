package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/shipman/internal/logger"
)

func TestLoggingMiddleware_LogsRequestWithoutQueryString(t *testing.T) {
	var buf bytes.Buffer
	log := logger.Setup(&buf)

	mw := NewLoggingMiddleware(log, nil)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusFound)
	})

	// コールバックの認可コードがログに漏れないこと
	req := httptest.NewRequest(http.MethodGet, "/auth/mercado/callback?code=SECRET-CODE&state=s", nil)
	w := httptest.NewRecorder()
	mw(next).ServeHTTP(w, req)

	out := buf.String()
	if out == "" {
		t.Fatal("expected a log line")
	}
	if strings.Contains(out, "SECRET-CODE") {
		t.Error("log must not contain the query string")
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(out), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["path"] != "/auth/mercado/callback" {
		t.Errorf("path = %v, want /auth/mercado/callback", entry["path"])
	}
	if entry["status"] != float64(http.StatusFound) {
		t.Errorf("status = %v, want %d", entry["status"], http.StatusFound)
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("log should contain duration_ms")
	}
}

func TestLoggingMiddleware_IncludesUserIDWhenAuthenticated(t *testing.T) {
	var buf bytes.Buffer
	log := logger.Setup(&buf)

	mw := NewLoggingMiddleware(log, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/marketplace/accounts", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), "user-1"))
	w := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(w, req)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["user_id"] != "user-1" {
		t.Errorf("user_id = %v, want user-1", entry["user_id"])
	}
}

func TestLoggingMiddleware_DefaultsTo200WhenHeaderNotWritten(t *testing.T) {
	var buf bytes.Buffer
	log := logger.Setup(&buf)

	mw := NewLoggingMiddleware(log, nil)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok")) // WriteHeaderを呼ばない
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	mw(next).ServeHTTP(w, req)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["status"] != float64(http.StatusOK) {
		t.Errorf("status = %v, want 200", entry["status"])
	}
}

func TestRecoveryMiddleware_PanicReturns500(t *testing.T) {
	mw := NewRecoveryMiddleware()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/marketplace/accounts", nil)
	w := httptest.NewRecorder()
	mw(next).ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusInternalServerError)
	}
}
