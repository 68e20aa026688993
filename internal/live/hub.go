// Package live serves order lists over websockets. Each connection owns its
// own list view; intents from the browser change the view and every state
// transition is pushed back as a snapshot.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/orderdesk/internal/listview"
	"github.com/jogardn/orderdesk/pkg/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	maxMessage = 4096
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
	Source    string      `json:"source"`
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex

	fetcher listview.Fetcher
	source  string
	logger  *logrus.Logger
}

func NewHub(fetcher listview.Fetcher, source string, logger *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		fetcher:    fetcher,
		source:     source,
		logger:     logger,
	}
}

// Run owns client registration until ctx is done, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.WithField("client_count", count).Info("Client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			h.remove(client)
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.WithField("client_count", count).Info("Client disconnected")

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if !client.deliver(message) {
					h.remove(client)
				}
			}
			h.mutex.Unlock()

		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				h.remove(client)
			}
			h.mutex.Unlock()
			return
		}
	}
}

// remove must be called with h.mutex held.
func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.close()
}

func (h *Hub) Broadcast(messageType string, data interface{}) {
	message := h.message(messageType, data)
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("Broadcast channel full, dropping message")
	}
}

func (h *Hub) message(messageType string, data interface{}) Message {
	return Message{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Source:    h.source,
	}
}

// Invalidate refreshes every connected view and tells the browsers why.
func (h *Hub) Invalidate(ctx context.Context, inv models.Invalidation) {
	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mutex.RUnlock()

	for _, c := range clients {
		go c.run(func(ctx context.Context) error { return c.view.Refresh(ctx) })
	}
	h.Broadcast("invalidated", inv)
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade to WebSocket")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		conn:   conn,
		send:   make(chan Message, sendBuffer),
		hub:    h,
		ctx:    ctx,
		cancel: cancel,
		logger: h.logger,
	}
	client.view = listview.New(h.fetcher, client.onChange, h.logger)

	select {
	case h.register <- client:
	case <-h.done:
		cancel()
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
	go client.run(func(ctx context.Context) error { return client.view.Refresh(ctx) })
}

type Client struct {
	conn   *websocket.Conn
	hub    *Hub
	view   *listview.View
	ctx    context.Context
	cancel context.CancelFunc
	logger *logrus.Logger

	sendMutex sync.Mutex
	send      chan Message
	closed    bool
}

// deliver queues m without blocking and reports false when the client is
// gone or too slow.
func (c *Client) deliver(m Message) bool {
	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- m:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.cancel()
	c.view.Close()

	c.sendMutex.Lock()
	defer c.sendMutex.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) onChange(s listview.Snapshot) {
	if !c.deliver(c.hub.message("snapshot", s)) {
		c.logger.WithField("seq", s.Seq).Debug("Dropping snapshot for closed or slow client")
	}
}

func (c *Client) sendError(err error) {
	c.deliver(c.hub.message("error", map[string]string{"message": err.Error()}))
}

// run applies one intent. Superseded and post-close results are expected
// and not reported.
func (c *Client) run(intent func(ctx context.Context) error) {
	err := intent(c.ctx)
	if err == nil || errors.Is(err, listview.ErrStale) || errors.Is(err, listview.ErrClosed) {
		return
	}
	c.sendError(err)
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Error("WebSocket error")
			}
			break
		}

		var in Intent
		if err := json.Unmarshal(data, &in); err != nil {
			c.sendError(errors.New("malformed intent"))
			continue
		}
		apply, err := in.action(c.view)
		if err != nil {
			c.sendError(err)
			continue
		}
		go c.run(apply)
	}
}

func (c *Client) writePump() {
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
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.WithError(err).Debug("Failed to write WebSocket message")
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
