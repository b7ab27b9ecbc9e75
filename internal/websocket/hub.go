package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Message types pushed to dashboard clients
const (
	TypeVitals       = "vitals"
	TypeAlert        = "alert"
	TypeWearableSync = "wearable_sync"
)

var errHubFull = errors.New("websocket broadcast queue full")

// Message represents a WebSocket message
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client represents a WebSocket client
type Client struct {
	ID   string
	Conn *websocket.Conn
	Hub  *Hub
	Send chan []byte
}

// Hub maintains active clients and broadcasts messages
type Hub struct {
	clients        map[*Client]bool
	broadcast      chan []byte
	register       chan *Client
	unregister     chan *Client
	mu             sync.RWMutex
	jwtSecret      string
	allowedOrigins []string
	log            *zap.Logger
	done           chan struct{}
}

// NewHub creates a new Hub
func NewHub(jwtSecret string, allowedOrigins []string, log *zap.Logger) *Hub {
	return &Hub{
		clients:        make(map[*Client]bool),
		broadcast:      make(chan []byte, 256),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		jwtSecret:      jwtSecret,
		allowedOrigins: allowedOrigins,
		log:            log.Named("websocket"),
		done:           make(chan struct{}),
	}
}

// Run starts the hub and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug("Client connected", zap.String("client", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.log.Debug("Client disconnected", zap.String("client", client.ID))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					h.log.Debug("Client too slow, dropping message", zap.String("client", client.ID))
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues a message for every connected client. It never blocks;
// when the queue is full the message is dropped.
func (h *Hub) Broadcast(msgType string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msgJSON, err := json.Marshal(Message{
		Type:    msgType,
		Payload: payloadJSON,
	})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- msgJSON:
		return nil
	default:
		return errHubFull
	}
}

// HandleWebSocket handles WebSocket connections
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	subject, err := h.authenticate(token)
	if err != nil {
		h.log.Info("Connection rejected", zap.String("remote", r.RemoteAddr), zap.Error(err))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	allowedOrigins := h.allowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"localhost:3000"}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(allowedOrigins),
	})
	if err != nil {
		h.log.Warn("Upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:   subject + "@" + r.RemoteAddr,
		Conn: conn,
		Hub:  h,
		Send: make(chan []byte, 256),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) authenticate(token string) (string, error) {
	if token == "" {
		return "", errors.New("missing token")
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(h.jwtSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", errors.New("invalid token")
	}
	return claims.Subject, nil
}

// originPatterns strips schemes; the websocket library matches host patterns
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimPrefix(strings.TrimPrefix(o, "https://"), "http://")
		patterns = append(patterns, strings.TrimRight(o, "/"))
	}
	return patterns
}

// readPump reads messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()
	for {
		_, message, err := c.Conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != websocket.StatusNoStatusRcvd {
				c.Hub.log.Debug("Unexpected read error", zap.String("client", c.ID), zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			c.Hub.log.Debug("Failed to parse message", zap.Error(err))
			continue
		}

		c.handleMessage(ctx, msg)
	}
}

// writePump writes messages to the WebSocket connection
func (c *Client) writePump() {
	ctx := context.Background()
	for message := range c.Send {
		if err := c.Conn.Write(ctx, websocket.MessageText, message); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != websocket.StatusNoStatusRcvd {
				c.Hub.log.Debug("Unexpected write error", zap.String("client", c.ID), zap.Error(err))
			}
			return
		}
	}
	c.Conn.Close(websocket.StatusGoingAway, "server shutting down")
}

func (c *Client) handleMessage(ctx context.Context, msg Message) {
	switch msg.Type {
	case "ping":
		response, _ := json.Marshal(Message{
			Type:    "pong",
			Payload: json.RawMessage(`{}`),
		})
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		c.Conn.Write(ctx, websocket.MessageText, response)
	default:
		c.Hub.log.Debug("Unknown message type", zap.String("type", msg.Type))
	}
}
