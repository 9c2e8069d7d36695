// Package ws bridges the Redis signal bus to WebSocket clients so dashboards
// can follow event lifecycle changes live.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veilcast/veilcast/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must stay under pongWait
	maxMessageSize = 4096
	sendBufferSize = 256
)

// ChannelPrefix namespaces the pub/sub channels carrying ledger
// notifications. One channel exists per notification type, e.g.
// "ch:event_created".
const ChannelPrefix = "ch:"

// ChannelFor returns the pub/sub channel for a notification type.
func ChannelFor(t domain.NotificationType) string {
	return ChannelPrefix + string(t)
}

// busChannels returns one concrete channel per notification type. The hub
// subscribes to each individually so forwarded frames carry their real
// channel and per-client filtering can match it.
func busChannels() []string {
	types := domain.NotificationTypes()
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, ChannelFor(t))
	}
	return out
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced by the CORS middleware in front of the mux.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans ledger notifications out to connected WebSocket clients. Each
// client starts subscribed to everything and can narrow its channel set with
// JSON control frames.
type Hub struct {
	bus    domain.SignalBus
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}

	forward    chan busFrame
	register   chan *client
	unregister chan *client

	mode      string
	events    func() uint64
	startedAt time.Time
}

// busFrame is one payload off the signal bus, tagged with its channel so the
// hub can match it against client subscriptions.
type busFrame struct {
	channel string
	data    []byte
}

// Config carries the metadata included in the status frame each client
// receives on connect. Events reports the live registry size and may be nil.
type Config struct {
	Mode      string
	Events    func() uint64
	StartedAt time.Time
}

// NewHub creates a hub over the given signal bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	return &Hub{
		bus:        bus,
		logger:     logger,
		clients:    make(map[*client]struct{}),
		forward:    make(chan busFrame, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		mode:       mode,
		events:     cfg.Events,
		startedAt:  startedAt,
	}
}

// Run drives the hub until ctx is cancelled: bus subscriptions feed the
// forward channel, and the loop routes frames to subscribed clients. Run it
// in its own goroutine.
func (h *Hub) Run(ctx context.Context) error {
	for _, ch := range busChannels() {
		go h.pumpBus(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client connected", slog.Int("clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client disconnected", slog.Int("clients", n))

		case frame := <-h.forward:
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(frame.channel) {
					continue
				}
				select {
				case c.send <- frame.data:
				default:
					// Slow client; drop rather than stall the hub.
					h.logger.Warn("ws dropping frame for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// pumpBus holds one bus subscription open and feeds its payloads into the
// routing loop.
func (h *Hub) pumpBus(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws bus subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("ws bus subscription closed", slog.String("channel", channel))
				return
			}
			h.forward <- busFrame{channel: channel, data: data}
		}
	}
}

// HandleWS upgrades the connection and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}

	// New clients start on the wildcard, receiving every type until they
	// narrow with a control frame.
	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: map[string]bool{ChannelPrefix + "*": true},
	}

	h.register <- c
	c.queueStatusFrame()

	go c.writePump()
	go c.readPump()
}

// client is one WebSocket connection with its channel subscriptions.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	subs map[string]bool
}

// controlFrame is the JSON message a client sends to adjust which channels
// it receives.
type controlFrame struct {
	Subscribe   []string `json:"subscribe"`
	Unsubscribe []string `json:"unsubscribe"`
}

// readPump consumes control frames until the connection drops, keeping the
// read deadline alive through pongs.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws unexpected close", slog.String("error", err.Error()))
			}
			return
		}

		var ctrl controlFrame
		if err := json.Unmarshal(message, &ctrl); err != nil {
			continue
		}
		c.applyControl(ctrl)
	}
}

func (c *client) applyControl(ctrl controlFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range ctrl.Subscribe {
		c.subs[ch] = true
	}
	for _, ch := range ctrl.Unsubscribe {
		delete(c.subs, ch)
	}
}

// wants reports whether the client's subscriptions cover channel, honouring
// a trailing-star wildcard ("ch:*" matches "ch:event_created").
func (c *client) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

// queueStatusFrame enqueues a status envelope so clients see a healthy
// connection before any ledger traffic arrives.
func (c *client) queueStatusFrame() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	var events uint64
	if c.hub.events != nil {
		events = c.hub.events()
	}

	msg, err := json.Marshal(map[string]any{
		"type": "ledger_status",
		"payload": map[string]any{
			"mode":           c.hub.mode,
			"ws_connected":   true,
			"uptime_seconds": uptime,
			"events":         events,
		},
	})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// writePump drains the send queue as JSON text frames and keeps the
// connection alive with periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
