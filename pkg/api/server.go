// Soundcheck — analysis trigger and hub lifecycle API.
// Serves the chat-completions trigger endpoint plus hub init/status routes.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/soundcheck-live/soundcheck/pkg/analyzer"
	"github.com/soundcheck-live/soundcheck/pkg/config"
	"github.com/soundcheck-live/soundcheck/pkg/hub"
	"github.com/soundcheck-live/soundcheck/pkg/logger"
)

// Server is the HTTP API server for the soundcheck relay.
type Server struct {
	config    *config.Config
	analyzer  analyzer.Analyzer
	startTime time.Time
	server    *http.Server
}

// NewServer creates a new API server instance.
func NewServer(cfg *config.Config, an analyzer.Analyzer) *Server {
	return &Server{
		config:    cfg,
		analyzer:  an,
		startTime: time.Now(),
	}
}

// Start begins listening on the configured host:port.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/system/info", s.handleSystemInfo)

	// Hub lifecycle: POST forces a start, GET reports without starting.
	mux.HandleFunc("/api/websocket/init", s.handleWebSocketInit)

	// Analysis trigger — streamed chat-completions response.
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)

	addr := s.config.GatewayAddr()
	s.server = &http.Server{
		Addr:        addr,
		Handler:     corsMiddleware(authMiddleware(s.config.Gateway.APIKey, mux)),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	logger.InfoCF("api", "API server starting", map[string]interface{}{
		"addr": addr,
	})

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("api", "Server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// acquireHub resolves the process-wide hub for the configured endpoint.
func (s *Server) acquireHub() (*hub.Hub, error) {
	return hub.Acquire(s.config.HubAddr())
}

// --- Middleware ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	hostname, _ := os.Hostname()

	hubPort := 0
	hubClients := 0
	hubRunning := false
	if h := hub.Registered(); h != nil {
		hubPort = h.Port()
		hubClients = h.ClientCount()
		hubRunning = h.Running()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"hostname":       hostname,
		"go_version":     runtime.Version(),
		"os":             runtime.GOOS,
		"arch":           runtime.GOARCH,
		"goroutines":     runtime.NumGoroutine(),
		"memory_mb":      float64(m.Alloc) / 1024 / 1024,
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"gateway_host":   s.config.Gateway.Host,
		"gateway_port":   s.config.Gateway.Port,
		"hub_running":    hubRunning,
		"hub_port":       hubPort,
		"hub_clients":    hubClients,
	})
}

func (s *Server) handleWebSocketInit(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h, err := s.acquireHub()
		if err != nil {
			// A startup conflict is non-fatal process-wide, but this caller
			// still learns the hub could not be initialized here.
			logger.WarnCF("api", "Hub initialization failed", map[string]interface{}{
				"error": err.Error(),
			})
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"success": false,
				"error":   "Failed to initialize WebSocket server",
				"message": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "WebSocket server initialized",
			"port":    h.Port(),
			"clients": h.ClientCount(),
		})

	case http.MethodGet:
		h := hub.Registered()
		if h == nil || !h.Running() {
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"success": false,
				"error":   "WebSocket server not initialized",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"status":  "WebSocket server is running",
			"port":    h.Port(),
			"clients": h.ClientCount(),
		})

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "GET or POST required"})
	}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
