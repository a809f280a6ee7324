// Package viewer implements the client-side counterpart to the broadcast
// hub: a connection manager that keeps a persistent link open, reconnects
// after a fixed delay when the link drops, and classifies incoming analysis
// events into display state (detections counter, confidence readout,
// transcript, transient alerts).
package viewer

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soundcheck-live/soundcheck/pkg/events"
	"github.com/soundcheck-live/soundcheck/pkg/logger"
)

// Status is the manager's connection state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
)

const (
	// DefaultEndpoint is the development fallback when no environment is
	// detectable.
	DefaultEndpoint = "ws://localhost:3001/ws"

	// DefaultReconnectDelay is fixed: no backoff growth and no attempt
	// limit. The viewer is a long-lived session and reconnects forever.
	DefaultReconnectDelay = 3 * time.Second

	// DefaultAlertDuration bounds how long a flagged-result alert stays up.
	DefaultAlertDuration = 5 * time.Second
)

// Options configures a Manager.
type Options struct {
	// URL is the hub endpoint. Empty falls back to SOUNDCHECK_WS_URL and
	// then DefaultEndpoint.
	URL string

	// ReconnectDelay overrides the fixed reconnect delay (tests).
	ReconnectDelay time.Duration

	// AlertDuration overrides how long an alert stays active (tests).
	AlertDuration time.Duration

	// OnConnect runs once after each successful connect — the hook for
	// dependent side effects like starting a capture session. A failure is
	// logged but never closes the connection.
	OnConnect func() error
}

// TranscriptEntry is one analysis outcome in the running log.
type TranscriptEntry struct {
	Time        time.Time
	UserMessage string
	Summary     string
	Flagged     bool
	Severity    events.Level
	Confidence  events.Level
}

// Alert is a transient user-facing notice for a flagged result.
type Alert struct {
	Message string
	Expires time.Time
}

// State is a point-in-time snapshot of the manager's display state.
type State struct {
	Status         Status
	Connected      bool
	Detections     int
	LastConfidence string
	Alert          *Alert
}

// Manager maintains the viewer's link to the hub.
type Manager struct {
	url            string
	reconnectDelay time.Duration
	alertDuration  time.Duration
	onConnect      func() error
	dispatcher     *Dispatcher

	mu             sync.Mutex
	conn           *websocket.Conn
	status         Status
	torn           bool
	reconnectTimer *time.Timer
	alertTimer     *time.Timer

	detections     int
	lastConfidence events.Level
	transcript     []TranscriptEntry
	alert          *Alert
}

// NewManager creates a manager in the idle state. Call Connect to start.
func NewManager(opts Options) *Manager {
	m := &Manager{
		url:            resolveEndpoint(opts.URL),
		reconnectDelay: opts.ReconnectDelay,
		alertDuration:  opts.AlertDuration,
		onConnect:      opts.OnConnect,
		dispatcher:     NewDispatcher(),
		status:         StatusIdle,
	}
	if m.reconnectDelay <= 0 {
		m.reconnectDelay = DefaultReconnectDelay
	}
	if m.alertDuration <= 0 {
		m.alertDuration = DefaultAlertDuration
	}

	m.dispatcher.On(events.TypeConnected, func(env events.Envelope) {
		logger.InfoCF("viewer", "Hub acknowledged connection", map[string]interface{}{
			"message": env.Message,
		})
	})
	m.dispatcher.On(events.TypeEcho, func(env events.Envelope) {
		logger.DebugCF("viewer", "Echo", map[string]interface{}{
			"message": env.Message,
		})
	})
	m.dispatcher.On(events.TypeAnalysisTriggered, m.handleAnalysis)

	return m
}

// resolveEndpoint derives the hub endpoint from the execution context:
// explicit URL, then environment, then the fixed development default.
func resolveEndpoint(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if fromEnv := os.Getenv("SOUNDCHECK_WS_URL"); fromEnv != "" {
		return fromEnv
	}
	return DefaultEndpoint
}

// On registers an additional handler for one envelope type.
func (m *Manager) On(eventType string, h Handler) {
	m.dispatcher.On(eventType, h)
}

// OnAll registers a handler for every envelope.
func (m *Manager) OnAll(h Handler) {
	m.dispatcher.OnAll(h)
}

// URL returns the resolved hub endpoint.
func (m *Manager) URL() string { return m.url }

// Connect starts the connection loop. It returns immediately; connection
// progress is observable through State.
func (m *Manager) Connect() {
	go m.connect()
}

func (m *Manager) connect() {
	m.mu.Lock()
	if m.torn || m.status == StatusConnecting || m.status == StatusOpen {
		m.mu.Unlock()
		return
	}
	m.status = StatusConnecting
	url := m.url
	m.mu.Unlock()

	logger.InfoCF("viewer", "Connecting to hub", map[string]interface{}{
		"url": url,
	})

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		logger.WarnCF("viewer", "Connection failed", map[string]interface{}{
			"url":   url,
			"error": err.Error(),
		})
		m.mu.Lock()
		m.status = StatusClosed
		m.mu.Unlock()
		m.scheduleReconnect()
		return
	}

	m.mu.Lock()
	if m.torn {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.status = StatusOpen
	// Reaching open cancels any pending reconnect so no duplicate dial can
	// fire later.
	m.cancelReconnectLocked()
	hook := m.onConnect
	m.mu.Unlock()

	logger.InfoC("viewer", "Connected to hub")

	if hook != nil {
		if err := hook(); err != nil {
			logger.ErrorCF("viewer", "Post-connect hook failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	go m.readLoop(conn)
}

func (m *Manager) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleDisconnect(conn)
			return
		}

		var env events.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.WarnCF("viewer", "Malformed frame dropped", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}

		if !m.dispatcher.Dispatch(env) {
			logger.DebugCF("viewer", "Unhandled event type ignored", map[string]interface{}{
				"type": env.Type,
			})
		}
	}
}

func (m *Manager) handleDisconnect(conn *websocket.Conn) {
	conn.Close()

	m.mu.Lock()
	if m.conn != conn {
		// A newer connection already replaced this one.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.status = StatusClosed
	torn := m.torn
	m.mu.Unlock()

	if torn {
		return
	}

	// Connectivity loss is a transient UI state, never an application error.
	logger.InfoC("viewer", "Disconnected from hub, will reconnect")
	m.scheduleReconnect()
}

// scheduleReconnect arms a single reconnect attempt after the fixed delay.
// An already-armed timer is left alone so attempts never stack.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.torn || m.reconnectTimer != nil {
		return
	}
	m.reconnectTimer = time.AfterFunc(m.reconnectDelay, func() {
		m.mu.Lock()
		m.reconnectTimer = nil
		m.mu.Unlock()
		m.connect()
	})
}

func (m *Manager) cancelReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// SendMessage serializes payload and sends it verbatim. When the link is not
// open this is a no-op with a logged warning.
func (m *Manager) SendMessage(payload interface{}) {
	m.mu.Lock()
	conn := m.conn
	open := m.status == StatusOpen
	m.mu.Unlock()

	if !open || conn == nil {
		logger.WarnC("viewer", "Not connected, message not sent")
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		logger.WarnCF("viewer", "Message marshal failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logger.WarnCF("viewer", "Message send failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// Close tears the manager down: cancels timers and closes the link. The
// manager does not reconnect after Close.
func (m *Manager) Close() {
	m.mu.Lock()
	m.torn = true
	m.cancelReconnectLocked()
	if m.alertTimer != nil {
		m.alertTimer.Stop()
		m.alertTimer = nil
	}
	conn := m.conn
	m.conn = nil
	m.status = StatusClosed
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// handleAnalysis classifies one analysis event into display state.
func (m *Manager) handleAnalysis(env events.Envelope) {
	entry := TranscriptEntry{
		Time:        time.Now(),
		UserMessage: env.UserMessage,
		Summary:     env.Summary,
	}

	flagged := false
	if env.Payload != nil {
		res := *env.Payload
		entry.Severity = res.Severity
		entry.Confidence = res.Confidence
		// Unknown levels never classify as flagged.
		flagged = res.Flagged()
		entry.Flagged = flagged

		m.mu.Lock()
		m.lastConfidence = res.Confidence
		m.mu.Unlock()
	}

	m.mu.Lock()
	m.transcript = append(m.transcript, entry)
	m.mu.Unlock()

	if flagged {
		m.raiseAlert(env)
	}

	logger.InfoCF("viewer", "Analysis event", map[string]interface{}{
		"flagged":       flagged,
		"summary":       env.Summary,
		"correlationId": env.CorrelationID,
	})
}

// raiseAlert increments the detection counter and shows a transient alert
// that clears itself after the alert duration.
func (m *Manager) raiseAlert(env events.Envelope) {
	message := env.Summary
	if message == "" {
		message = env.Message
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	alert := &Alert{
		Message: message,
		Expires: time.Now().Add(m.alertDuration),
	}
	m.detections++
	m.alert = alert

	if m.alertTimer != nil {
		m.alertTimer.Stop()
	}
	// Stop does not guarantee the old callback has not already fired; the
	// identity check keeps a stale expiry from clearing a newer alert.
	m.alertTimer = time.AfterFunc(m.alertDuration, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.alert == alert {
			m.alert = nil
		}
	})
}

// State returns a snapshot of the display state. LastConfidence renders as
// "--" until a result with a parseable confidence arrives.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	var alert *Alert
	if m.alert != nil && time.Now().Before(m.alert.Expires) {
		a := *m.alert
		alert = &a
	}

	return State{
		Status:         m.status,
		Connected:      m.status == StatusOpen,
		Detections:     m.detections,
		LastConfidence: m.lastConfidence.String(),
		Alert:          alert,
	}
}

// Transcript returns a copy of the running analysis log.
func (m *Manager) Transcript() []TranscriptEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TranscriptEntry, len(m.transcript))
	copy(out, m.transcript)
	return out
}

// String renders a one-line status summary for terminal display.
func (s State) String() string {
	conn := "disconnected"
	if s.Connected {
		conn = "connected"
	}
	return fmt.Sprintf("%s | detections: %d | confidence: %s", conn, s.Detections, s.LastConfidence)
}
