// Package hub implements the process-wide broadcast service. The hub owns
// the set of live viewer connections and fans every published envelope out
// to all of them. It is created lazily on first use, survives repeated
// initialization attempts, and degrades gracefully when its endpoint is
// already bound by another owner in the same process.
package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soundcheck-live/soundcheck/pkg/events"
	"github.com/soundcheck-live/soundcheck/pkg/logger"
)

// ErrStartupConflict is returned when the hub endpoint is already bound and
// no singleton reference exists to fall back on. Callers must treat it as
// non-fatal: some other owner has the endpoint.
var ErrStartupConflict = errors.New("hub endpoint already bound by another owner")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Viewer connections are unauthenticated and may come from any page
	// origin; access control is out of scope for the relay.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type state int

const (
	stateUnstarted state = iota
	stateStarting
	stateRunning
	stateStartFailed
)

// Hub owns the connection set and the listening endpoint.
type Hub struct {
	addr string

	mu      sync.RWMutex
	state   state
	ln      net.Listener
	httpSrv *http.Server
	clients map[*client]bool
}

// New creates an unstarted hub that will bind addr on first use.
func New(addr string) *Hub {
	return &Hub{
		addr:    addr,
		clients: make(map[*client]bool),
	}
}

// EnsureStarted is idempotent: the first call binds the listening endpoint
// and installs the connection handler, later calls are no-ops. Concurrent
// first use performs exactly one bind attempt. A bind failure because the
// endpoint is already in use surfaces as ErrStartupConflict.
func (h *Hub) EnsureStarted() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case stateRunning:
		return nil
	case stateStartFailed:
		// A previous conflict does not pin the hub down forever; the
		// endpoint may have been released since.
	}

	h.state = stateStarting
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		h.state = stateStartFailed
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("%w: %s", ErrStartupConflict, h.addr)
		}
		return fmt.Errorf("hub listen %s: %w", h.addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWebSocket)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	h.ln = ln
	h.httpSrv = srv
	h.state = stateRunning

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("hub", "Hub server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	logger.InfoCF("hub", "Broadcast hub listening", map[string]interface{}{
		"addr": ln.Addr().String(),
	})
	return nil
}

// Running reports whether the hub's listener is up.
func (h *Hub) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state == stateRunning
}

// Port returns the bound port, or 0 when the hub has not started.
func (h *Hub) Port() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.ln == nil {
		return 0
	}
	if tcp, ok := h.ln.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// ClientCount returns the number of tracked connections. Diagnostics only —
// connections mid-close may still be counted.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast publishes one envelope to every currently-open connection.
// Broadcasting implies the hub exists, so EnsureStarted runs first. The
// envelope is serialized once and the identical bytes go to each client; a
// failure on one connection is logged and never aborts delivery to the rest.
// Broadcast never returns an error.
func (h *Hub) Broadcast(event events.Envelope) {
	if err := h.EnsureStarted(); err != nil {
		// Either the endpoint is owned elsewhere or binding failed outright;
		// neither aborts the caller — there is simply no one to deliver to.
		logger.WarnCF("hub", "Broadcast with hub not started", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		logger.ErrorCF("hub", "Envelope marshal failed", map[string]interface{}{
			"type":  event.Type,
			"error": err.Error(),
		})
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.open() {
			// Closing clients are skipped, not removed — removal happens
			// in their own close path.
			continue
		}
		if !c.trySend(data) {
			logger.WarnCF("hub", "Client send failed, skipping", map[string]interface{}{
				"client": c.id,
			})
		}
	}
}

// Shutdown closes the listener and every tracked connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	srv := h.httpSrv
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]bool)
	h.state = stateUnstarted
	h.httpSrv = nil
	h.ln = nil
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	if srv != nil {
		srv.Close()
	}
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.ErrorCF("hub", "WebSocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	c := newClient(h, conn)

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	logger.DebugCF("hub", "Client connected", map[string]interface{}{
		"client": c.id,
	})

	go c.writePump()
	go c.readPump()

	// Each new connection gets a single welcome envelope.
	welcome := events.New(events.TypeConnected, "WebSocket connection established")
	if data, err := json.Marshal(welcome); err == nil {
		c.trySend(data)
	}
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
	}
	h.mu.Unlock()
	logger.DebugCF("hub", "Client disconnected", map[string]interface{}{
		"client": c.id,
	})
}

// --- Process-wide singleton ---

// The running hub reference lives outside any per-request lifecycle so that
// repeated initialization attempts (re-entrant composition, tests, callers
// racing on first use) find the existing instance instead of binding twice.
var (
	singletonMu sync.Mutex
	singleton   *Hub
)

// Acquire returns the process-wide hub for addr, starting it on first use.
// If the endpoint is already bound and a singleton reference exists, that
// reference is reused; with no reference to fall back on the caller gets
// ErrStartupConflict and should log and continue.
func Acquire(addr string) (*Hub, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	if singleton != nil && singleton.Running() {
		return singleton, nil
	}

	h := singleton
	if h == nil {
		h = New(addr)
	}
	if err := h.EnsureStarted(); err != nil {
		if errors.Is(err, ErrStartupConflict) && singleton != nil {
			return singleton, nil
		}
		return nil, err
	}
	singleton = h
	return h, nil
}

// Registered returns the stored singleton without forcing a start. Nil when
// no hub has ever been initialized in this process.
func Registered() *Hub {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	return singleton
}

// ResetSingleton drops the stored reference after shutting the hub down.
// Intended for tests and full process teardown.
func ResetSingleton() {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singleton != nil {
		singleton.Shutdown()
		singleton = nil
	}
}

// --- Client ---

const clientSendBuffer = 256

// client is one hub-owned viewer connection. The hub is the sole owner for
// the connection's lifetime; it is removed from the set on close or error
// and never mutated elsewhere.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	stateMu sync.Mutex
	closing bool
}

func newClient(h *Hub, conn *websocket.Conn) *client {
	return &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		hub:  h,
	}
}

func (c *client) open() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return !c.closing
}

// trySend queues data without blocking. A full queue counts as a send
// failure: the frame is dropped for this client only.
func (c *client) trySend(data []byte) bool {
	if !c.open() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.stateMu.Lock()
	if c.closing {
		c.stateMu.Unlock()
		return
	}
	c.closing = true
	c.stateMu.Unlock()
	c.conn.Close()
}

// readPump drains inbound messages. Every parseable JSON message is answered
// with an echo envelope; malformed payloads are logged and dropped without
// closing the connection.
func (c *client) readPump() {
	defer func() {
		c.close()
		c.hub.removeClient(c)
	}()

	c.conn.SetReadLimit(64 * 1024)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg map[string]interface{}
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.WarnCF("hub", "Malformed inbound message dropped", map[string]interface{}{
				"client": c.id,
				"error":  err.Error(),
			})
			continue
		}

		content := "unknown"
		if v, ok := msg["content"].(string); ok && v != "" {
			content = v
		}

		echo := events.New(events.TypeEcho, fmt.Sprintf("Server received: %s", content))
		if reply, err := json.Marshal(echo); err == nil {
			c.trySend(reply)
		}
	}
}

// writePump owns all writes on the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
