package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"forum-feed/internal/service"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 90 * time.Second
	pingPeriod = 25 * time.Second
)

// WSMessage is a single outbound websocket frame
type WSMessage map[string]interface{}

// inboundFrame is what clients send: an operation name plus its payload
type inboundFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   service.Payload `json:"payload"`
}

// Client represents a websocket connection
type Client struct {
	id   string
	conn *websocket.Conn
	send chan WSMessage
	done chan struct{}
}

// reply queues a frame for this client only, dropping it if the buffer is full
func (c *Client) reply(msg WSMessage) {
	select {
	case c.send <- msg:
	default:
		log.Printf("WebSocket: dropping reply to client %s, send buffer full", c.id)
	}
}

// Hub maintains active clients and fans out feed events
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client
	broadcast chan WSMessage
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[string]*Client),
		broadcast: make(chan WSMessage, 256),
	}
}

func (h *Hub) AddClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *Hub) RemoveClient(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

// ClientCount reports how many connections are registered
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues an event for every connected client. It never blocks;
// events are dropped when the hub is saturated.
func (h *Hub) Broadcast(event string, payload interface{}) {
	msg := WSMessage{"type": event, "payload": payload}
	select {
	case h.broadcast <- msg:
	default:
		log.Printf("WebSocket: broadcast buffer full, dropping %q", event)
	}
}

// Run dispatches queued events to clients until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.broadcast:
			// Capture clients under read lock, then send without holding lock to avoid blocking other ops
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for _, c := range h.clients {
				clients = append(clients, c)
			}
			h.mu.RUnlock()

			for _, c := range clients {
				select {
				case c.send <- msg:
				default:
					// drop if client's send buffer is full
				}
			}
		}
	}
}

// CloseAll disconnects every client, used on shutdown
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		c.conn.Close()
	}
}

func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(allowedOrigins, r.Header.Get("Origin"))
		},
	}
}

// originAllowed accepts everything when no origins are configured, as well
// as non-browser clients that send no Origin header
func originAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 || origin == "" {
		return true
	}
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// ServeWS upgrades the connection and serves the event protocol
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	client := &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan WSMessage, 32),
		done: make(chan struct{}),
	}

	// register first so no event after INIT is missed; broadcasts queue in
	// client.send until the writer starts
	h.hub.AddClient(client)

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	hello := WSMessage{"type": "init", "client_id": client.id, "events": service.Operations()}
	if err := conn.WriteJSON(hello); err != nil {
		h.hub.RemoveClient(client.id)
		conn.Close()
		return
	}
	log.Printf("WebSocket: client %s connected from %s", client.id, r.RemoteAddr)

	go h.writerLoop(client)
	h.readerLoop(client)
}

func (h *Handler) writerLoop(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
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

func (h *Handler) readerLoop(c *Client) {
	defer func() {
		// on disconnect
		h.hub.RemoveClient(c.id)
		close(c.done)
		log.Printf("WebSocket: client %s disconnected", c.id)
		c.conn.Close()
	}()

	// same bound as REST bodies; gorilla closes with 1009 when exceeded
	c.conn.SetReadLimit(maxBodyBytes)

	// Set up ping/pong handlers
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame inboundFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				log.Printf("WebSocket: client %s sent a frame over %d bytes", c.id, maxBodyBytes)
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket: read error from client %s: %v", c.id, err)
			}
			return
		}

		if frame.Type == "" {
			c.reply(WSMessage{"type": "error", "status": http.StatusBadRequest, "message": "Missing event type"})
			continue
		}

		c.reply(h.dispatch(c, frame))
	}
}

// dispatch runs the named operation and builds the sender's ack or error
// frame. Successful mutations reach every client through the hub.
func (h *Handler) dispatch(c *Client, frame inboundFrame) WSMessage {
	res, err := h.service.Execute(context.Background(), frame.Type, frame.Payload)
	if err != nil {
		status, message := statusFor(err)
		if status == http.StatusInternalServerError {
			log.Printf("WebSocket: %q from client %s failed: %v", frame.Type, c.id, err)
		}
		msg := WSMessage{"type": "error", "event": frame.Type, "status": status, "message": message}
		if frame.RequestID != "" {
			msg["request_id"] = frame.RequestID
		}
		return msg
	}

	msg := WSMessage{
		"type":    "ack",
		"event":   frame.Type,
		"status":  successStatus(res),
		"message": res.Message,
	}
	if res.Data != nil {
		msg["data"] = res.Data
	}
	if frame.RequestID != "" {
		msg["request_id"] = frame.RequestID
	}
	return msg
}
