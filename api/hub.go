package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rustyeddy/ashare/eventstore"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Message is what a websocket client receives. The first message on a
// connection is MessageReady.
type Message struct {
	Type   string             `json:"type"`
	Events []eventstore.Event `json:"events,omitempty"`
}

const (
	MessageReady  = "ready"
	MessageEvents = "events"
)

type wsClient struct {
	conn *websocket.Conn
	conv string
	send chan []byte
}

// Hub fans appended events out to websocket clients. A client that
// passed ?conversation_id= only sees that conversation. A client whose
// buffer is full misses messages rather than blocking the publisher.
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	clients  map[*wsClient]struct{}
	closed   bool
	log      *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
		log:     log,
	}
}

// Serve upgrades the request and streams events until the peer goes away.
func (h *Hub) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	cl := &wsClient{conn: conn, conv: c.Query("conversation_id"), send: make(chan []byte, sendBuffer)}
	if !h.register(cl) {
		conn.Close()
		return
	}
	go h.writeLoop(cl)
	h.readLoop(cl)
}

func (h *Hub) register(cl *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	ready, _ := json.Marshal(Message{Type: MessageReady})
	cl.send <- ready
	h.clients[cl] = struct{}{}
	h.log.Debug("websocket client connected", "conversation_id", cl.conv, "clients", len(h.clients))
	return true
}

func (h *Hub) unregister(cl *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
}

// readLoop discards client frames and returns when the connection drops.
func (h *Hub) readLoop(cl *wsClient) {
	defer func() {
		h.unregister(cl)
		cl.conn.Close()
	}()
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(cl *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				cl.conn.Close()
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cl.conn.Close()
				return
			}
		}
	}
}

// Publish sends events to every interested client.
func (h *Hub) Publish(events ...eventstore.Event) {
	if len(events) == 0 {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	byConv := map[string][]byte{}
	encode := func(conv string, evs []eventstore.Event) []byte {
		if b, ok := byConv[conv]; ok {
			return b
		}
		b, err := json.Marshal(Message{Type: MessageEvents, Events: evs})
		if err != nil {
			h.log.Warn("encode websocket message", "err", err)
			return nil
		}
		byConv[conv] = b
		return b
	}

	for cl := range h.clients {
		evs := events
		if cl.conv != "" {
			evs = filterConv(events, cl.conv)
			if len(evs) == 0 {
				continue
			}
		}
		msg := encode(cl.conv, evs)
		if msg == nil {
			continue
		}
		select {
		case cl.send <- msg:
		default:
			h.log.Debug("websocket client lagging, message dropped", "conversation_id", cl.conv)
		}
	}
}

func filterConv(events []eventstore.Event, conv string) []eventstore.Event {
	var out []eventstore.Event
	for _, ev := range events {
		if ev.ConversationID == conv {
			out = append(out, ev)
		}
	}
	return out
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for cl := range h.clients {
		delete(h.clients, cl)
		close(cl.send)
	}
}
