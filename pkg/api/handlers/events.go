package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/goclaw/reactor/pkg/eventbus"
	"github.com/goclaw/reactor/pkg/logger"
)

const (
	defaultWSMaxConnections = 100
	defaultPingInterval     = 30 * time.Second
	defaultPongTimeout      = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultSendBuffer       = 64
	defaultBusBuffer        = 1024
	dedupeWindow            = 4096
)

// EventsConfig configures the lifecycle event stream.
type EventsConfig struct {
	AllowedOrigins []string
	MaxConnections int
	PingInterval   time.Duration
	PongTimeout    time.Duration

	// BusBuffer is the size of the bus subscription feeding all clients.
	BusBuffer int
}

// clientMessage is sent by clients to narrow the stream. Subscriptions
// match on run ID or workflow name; a client with none receives everything.
type clientMessage struct {
	Type     string `json:"type"`
	RunID    string `json:"run_id,omitempty"`
	Workflow string `json:"workflow,omitempty"`
}

// ackMessage confirms a subscription change to the client.
type ackMessage struct {
	Type     string `json:"type"`
	Action   string `json:"action"`
	RunID    string `json:"run_id,omitempty"`
	Workflow string `json:"workflow,omitempty"`
}

type wsClient struct {
	conn      *websocket.Conn
	send      chan []byte
	runs      map[string]struct{}
	workflows map[string]struct{}
	mu        sync.RWMutex

	sendMu sync.Mutex
	closed bool
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn:      conn,
		send:      make(chan []byte, defaultSendBuffer),
		runs:      make(map[string]struct{}),
		workflows: make(map[string]struct{}),
	}
}

func (c *wsClient) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// trySend queues raw without blocking. It reports false when the client is
// closed or its buffer is full.
func (c *wsClient) trySend(raw []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- raw:
		return true
	default:
		return false
	}
}

func (c *wsClient) apply(msg clientMessage) {
	runID := strings.TrimSpace(msg.RunID)
	wf := strings.TrimSpace(msg.Workflow)

	c.mu.Lock()
	defer c.mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(msg.Type)) {
	case "subscribe":
		if runID != "" {
			c.runs[runID] = struct{}{}
		}
		if wf != "" {
			c.workflows[wf] = struct{}{}
		}
	case "unsubscribe":
		delete(c.runs, runID)
		delete(c.workflows, wf)
	}
}

func (c *wsClient) shouldReceive(env eventbus.Envelope) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.runs) == 0 && len(c.workflows) == 0 {
		return true
	}
	if _, ok := c.runs[env.RunID]; ok {
		return true
	}
	_, ok := c.workflows[env.Workflow]
	return ok
}

// ConnectionManager manages active websocket clients.
type ConnectionManager struct {
	mu             sync.RWMutex
	clients        map[*wsClient]struct{}
	maxConnections int
}

// NewConnectionManager creates a manager with max connection limit.
func NewConnectionManager(maxConnections int) *ConnectionManager {
	if maxConnections <= 0 {
		maxConnections = defaultWSMaxConnections
	}
	return &ConnectionManager{
		clients:        make(map[*wsClient]struct{}),
		maxConnections: maxConnections,
	}
}

// Register registers a websocket client.
func (m *ConnectionManager) Register(client *wsClient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.clients) >= m.maxConnections {
		return errors.New("websocket connection limit reached")
	}
	m.clients[client] = struct{}{}
	return nil
}

// Unregister removes and closes a websocket client.
func (m *ConnectionManager) Unregister(client *wsClient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[client]; !ok {
		return
	}
	delete(m.clients, client)
	client.close()
}

// Count returns active connection count.
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// CanAccept reports whether there is capacity for one more connection.
func (m *ConnectionManager) CanAccept() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients) < m.maxConnections
}

// Broadcast sends raw to every client subscribed to env. Clients that
// cannot keep up are disconnected.
func (m *ConnectionManager) Broadcast(env eventbus.Envelope, raw []byte) {
	m.mu.RLock()
	clients := make([]*wsClient, 0, len(m.clients))
	for client := range m.clients {
		clients = append(clients, client)
	}
	m.mu.RUnlock()

	for _, client := range clients {
		if !client.shouldReceive(env) {
			continue
		}
		if !client.trySend(raw) {
			m.Unregister(client)
		}
	}
}

// Close closes all active websocket connections.
func (m *ConnectionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for client := range m.clients {
		client.close()
		delete(m.clients, client)
	}
}

// EventsHandler streams lifecycle envelopes from the in-process bus to
// websocket clients on /events.
type EventsHandler struct {
	log          logger.Logger
	bus          *eventbus.MemoryBus
	consumer     *eventbus.EnvelopeConsumer
	manager      *ConnectionManager
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration
	busBuffer    int
}

// NewEventsHandler creates an events handler reading from bus. Call Run to
// start forwarding.
func NewEventsHandler(bus *eventbus.MemoryBus, log logger.Logger, cfg EventsConfig) *EventsHandler {
	if log == nil {
		log = logger.Global()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	if cfg.BusBuffer <= 0 {
		cfg.BusBuffer = defaultBusBuffer
	}

	h := &EventsHandler{
		log:          log,
		bus:          bus,
		consumer:     eventbus.NewEnvelopeConsumer(dedupeWindow),
		manager:      NewConnectionManager(cfg.MaxConnections),
		pingInterval: cfg.PingInterval,
		pongTimeout:  cfg.PongTimeout,
		writeTimeout: defaultWriteTimeout,
		busBuffer:    cfg.BusBuffer,
	}

	allowedOrigins := append([]string(nil), cfg.AllowedOrigins...)
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return isWebSocketOriginAllowed(r, allowedOrigins)
		},
	}
	return h
}

// Run forwards bus messages to clients until ctx is done or the bus closes.
func (h *EventsHandler) Run(ctx context.Context) error {
	sub, err := h.bus.Subscribe(eventbus.AllSubjects, h.busBuffer)
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			h.forward(msg)
		}
	}
}

func (h *EventsHandler) forward(msg eventbus.Message) {
	env, duplicate, err := h.consumer.DecodeAndValidate(msg.Payload)
	if err != nil {
		h.log.Warn("dropping invalid envelope", "subject", msg.Subject, "error", err)
		return
	}
	if duplicate {
		return
	}
	h.manager.Broadcast(env, msg.Payload)
}

// Clients returns the number of connected websocket clients.
func (h *EventsHandler) Clients() int {
	return h.manager.Count()
}

// ServeHTTP upgrades HTTP to websocket and starts client loops.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}
	if !h.manager.CanAccept() {
		http.Error(w, "websocket connection limit reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(conn)
	if err := h.manager.Register(client); err != nil {
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many websocket connections"),
			time.Now().Add(h.writeTimeout),
		)
		_ = conn.Close()
		return
	}

	go h.writePump(client)
	h.readPump(client)
}

func (h *EventsHandler) readPump(client *wsClient) {
	defer h.manager.Unregister(client)

	readDeadline := h.pingInterval + h.pongTimeout
	client.conn.SetReadLimit(1 << 16)
	_ = client.conn.SetReadDeadline(time.Now().Add(readDeadline))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read error", "error", err)
			}
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		client.apply(msg)
		if ack, err := json.Marshal(ackMessage{Type: "ack", Action: msg.Type, RunID: msg.RunID, Workflow: msg.Workflow}); err == nil {
			client.trySend(ack)
		}
	}
}

func (h *EventsHandler) writePump(client *wsClient) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		h.manager.Unregister(client)
	}()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				_ = client.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(h.writeTimeout),
				)
				return
			}
			_ = client.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client.
func (h *EventsHandler) Close() {
	h.manager.Close()
}

func isWebSocketOriginAllowed(r *http.Request, allowedOrigins []string) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}
