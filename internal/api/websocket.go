package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-settings/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// ChannelSettingChanged carries a ChangeEvent for every value change.
const ChannelSettingChanged = "setting.changed"

// wsChannels lists the channels clients may subscribe to.
var wsChannels = map[string]bool{ChannelSettingChanged: true}

const wsSendBuffer = 64

// ChangeEvent is the payload of ChannelSettingChanged events.
// Value is the effective value in text form, null when unset.
type ChangeEvent struct {
	ID     uint16  `json:"id"`
	Key    string  `json:"key"`
	Type   string  `json:"type"`
	Value  *string `json:"value"`
	Source string  `json:"source,omitempty"`
}

// WSMessage is the envelope of every message sent to a client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsRequest is a message received from a client.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WSSubscribePayload selects channels and, for setting.changed, the keys
// of the settings to follow. Without keys every setting is followed.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
	Keys     []string `json:"keys,omitempty"`
}

// Hub tracks WebSocket clients and fans events out to them.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}

	dropped atomic.Uint64
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}

// Register adds a client.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client and closes its send queue. Repeated calls
// are harmless.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	c.close()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// Broadcast queues payload for every client subscribed to channel whose key
// filter accepts key. A client whose queue is full misses the event; the
// miss is counted in Dropped.
func (h *Hub) Broadcast(channel, key string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal websocket event", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if c.wants(channel, key) && !c.enqueue(data) {
			h.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were not delivered to slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// WSClient is one WebSocket connection and its subscriptions.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn

	mu       sync.Mutex
	send     chan []byte
	closed   bool
	channels map[string]struct{}
	keys     map[string]struct{} // empty: every key
}

func newWSClient(hub *Hub, conn *websocket.Conn) *WSClient {
	return &WSClient{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBuffer),
		channels: make(map[string]struct{}),
		keys:     make(map[string]struct{}),
	}
}

// enqueue queues data without blocking. It reports false when the client
// is closed or its queue is full.
func (c *WSClient) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) wants(channel, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[channel]; !ok {
		return false
	}
	if key == "" || len(c.keys) == 0 {
		return true
	}
	_, ok := c.keys[key]
	return ok
}

// subscribe adds channels and keys. Unknown channels reject the whole request.
func (c *WSClient) subscribe(p WSSubscribePayload) error {
	for _, ch := range p.Channels {
		if !wsChannels[ch] {
			return fmt.Errorf("unknown channel: %s", ch)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range p.Channels {
		c.channels[ch] = struct{}{}
	}
	for _, k := range p.Keys {
		c.keys[k] = struct{}{}
	}
	return nil
}

// unsubscribe removes channels. Dropping the last channel also clears the
// key filter.
func (c *WSClient) unsubscribe(p WSSubscribePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range p.Channels {
		delete(c.channels, ch)
	}
	if len(c.channels) == 0 {
		clear(c.keys)
	}
}

// handleWebSocket upgrades the request. Authentication has already
// happened in authMiddleware. The query parameters subscribe and key
// pre-select a channel and keys, as a subscribe message would.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}

	q := r.URL.Query()
	initial := WSSubscribePayload{Keys: q["key"]}
	if ch := q.Get("subscribe"); ch != "" {
		initial.Channels = []string{ch}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newWSClient(s.hub, conn)
	if err := c.subscribe(initial); err != nil {
		c.reply("", WSTypeError, map[string]string{"message": err.Error()})
	}
	s.hub.Register(c)

	timing := newWSTiming(s.cfg.WebSocket)
	go c.writePump(timing)
	go c.readPump(timing)
}

// wsTiming holds the keepalive durations derived from config.
type wsTiming struct {
	readLimit int64
	ping      time.Duration
	pongWait  time.Duration
}

func newWSTiming(cfg config.WebSocketConfig) wsTiming {
	return wsTiming{
		readLimit: int64(cfg.MaxMessageSize),
		ping:      time.Duration(cfg.PingInterval) * time.Second,
		pongWait:  time.Duration(cfg.PongTimeout) * time.Second,
	}
}

// readDeadline allows one missed ping interval plus the pong timeout.
func (t wsTiming) readDeadline() time.Time {
	return time.Now().Add(t.ping + t.pongWait)
}

func (c *WSClient) readPump(t wsTiming) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(t.readLimit)
	c.conn.SetReadDeadline(t.readDeadline()) //nolint:errcheck // a failed read reports it
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(t.readDeadline())
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Application messages count as liveness too; some browsers never answer pings.
		c.conn.SetReadDeadline(t.readDeadline()) //nolint:errcheck // as above
		c.handleMessage(data)
	}
}

func (c *WSClient) writePump(t wsTiming) {
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(t.pongWait)) //nolint:errcheck // write reports it
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(t.pongWait)) //nolint:errcheck // write reports it
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch req.Type {
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var p WSSubscribePayload
		if len(req.Payload) == 0 || json.Unmarshal(req.Payload, &p) != nil {
			c.reply(req.ID, WSTypeError, map[string]string{"message": "invalid " + req.Type + " payload"})
			return
		}
		if req.Type == WSTypeUnsubscribe {
			c.unsubscribe(p)
			c.reply(req.ID, WSTypeResponse, map[string]any{"unsubscribed": p.Channels})
			return
		}
		if err := c.subscribe(p); err != nil {
			c.reply(req.ID, WSTypeError, map[string]string{"message": err.Error()})
			return
		}
		c.hub.logger.Debug("websocket client subscribed", "channels", p.Channels, "keys", p.Keys)
		c.reply(req.ID, WSTypeResponse, map[string]any{"subscribed": p.Channels, "keys": p.Keys})
	default:
		c.reply(req.ID, WSTypeError, map[string]string{"message": "unknown message type: " + req.Type})
	}
}

func (c *WSClient) reply(id, typ string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      typ,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}
