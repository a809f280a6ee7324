package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soundcheck-live/soundcheck/pkg/analyzer"
	"github.com/soundcheck-live/soundcheck/pkg/config"
	"github.com/soundcheck-live/soundcheck/pkg/hub"
)

func newTestServer(t *testing.T, an analyzer.Analyzer) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Hub.Host = "127.0.0.1"
	cfg.Hub.Port = 0
	if an == nil {
		an = &analyzer.StaticAnalyzer{}
	}
	return NewServer(cfg, an)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
	}
	return body
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["timestamp"] == nil {
		t.Error("missing timestamp")
	}
}

func TestHandleSystemInfo(t *testing.T) {
	hub.ResetSingleton()
	defer hub.ResetSingleton()

	s := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	s.handleSystemInfo(rec, httptest.NewRequest(http.MethodGet, "/api/system/info", nil))

	body := decodeBody(t, rec)
	if body["go_version"] == nil || body["hostname"] == nil {
		t.Errorf("missing runtime fields: %v", body)
	}
	if body["hub_running"] != false {
		t.Errorf("hub_running = %v before any init", body["hub_running"])
	}
}

func TestHandleWebSocketInit(t *testing.T) {
	hub.ResetSingleton()
	defer hub.ResetSingleton()

	s := newTestServer(t, nil)

	// GET before any hub exists reports failure without starting one.
	rec := httptest.NewRecorder()
	s.handleWebSocketInit(rec, httptest.NewRequest(http.MethodGet, "/api/websocket/init", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("GET before init: status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != false {
		t.Errorf("success = %v", body["success"])
	}
	if hub.Registered() != nil {
		t.Fatal("GET must not start the hub")
	}

	// POST starts the hub and reports its port.
	rec = httptest.NewRecorder()
	s.handleWebSocketInit(rec, httptest.NewRequest(http.MethodPost, "/api/websocket/init", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("POST init: status = %d\n%s", rec.Code, rec.Body.String())
	}
	body = decodeBody(t, rec)
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	if port, ok := body["port"].(float64); !ok || port == 0 {
		t.Errorf("port = %v", body["port"])
	}

	// GET now sees the running hub.
	rec = httptest.NewRecorder()
	s.handleWebSocketInit(rec, httptest.NewRequest(http.MethodGet, "/api/websocket/init", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET after init: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.handleWebSocketInit(rec, httptest.NewRequest(http.MethodDelete, "/api/websocket/init", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE: status = %d", rec.Code)
	}
}

func TestCORSMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := corsMiddleware(inner)

	t.Run("echoes origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("allow-origin = %q", got)
		}
		if rec.Code != http.StatusTeapot {
			t.Errorf("inner handler not reached: %d", rec.Code)
		}
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/v1/chat/completions", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("preflight status = %d", rec.Code)
		}
	})
}

func TestAuthMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		apiKey     string
		path       string
		method     string
		authHeader string
		xAPIKey    string
		wantStatus int
	}{
		{name: "no key configured", apiKey: "", path: "/v1/chat/completions", method: http.MethodPost, wantStatus: http.StatusOK},
		{name: "missing token", apiKey: "secret", path: "/v1/chat/completions", method: http.MethodPost, wantStatus: http.StatusUnauthorized},
		{name: "wrong token", apiKey: "secret", path: "/v1/chat/completions", method: http.MethodPost, authHeader: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "bearer token", apiKey: "secret", path: "/v1/chat/completions", method: http.MethodPost, authHeader: "Bearer secret", wantStatus: http.StatusOK},
		{name: "x-api-key header", apiKey: "secret", path: "/v1/chat/completions", method: http.MethodPost, xAPIKey: "secret", wantStatus: http.StatusOK},
		{name: "health exempt", apiKey: "secret", path: "/api/health", method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "preflight exempt", apiKey: "secret", path: "/v1/chat/completions", method: http.MethodOptions, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := authMiddleware(tt.apiKey, inner)
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			if tt.xAPIKey != "" {
				req.Header.Set("X-API-Key", tt.xAPIKey)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
