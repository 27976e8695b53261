package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"PriceBand/internal/domain/models"
	apimetrics "PriceBand/internal/service/metrics"
	xlogger "PriceBand/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	defaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
	sendBuffer          = 16
)

// frame is the message pushed to band stream clients.
type frame struct {
	Type    string               `json:"type"`
	Summary *models.SummaryTable `json:"summary"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans every new latest summary out to connected websocket clients. A
// new client receives the current summary right after connecting.
type Hub struct {
	logger       *xlogger.Logger
	upgrader     websocket.Upgrader
	pingInterval time.Duration

	mu      sync.RWMutex
	clients map[*client]struct{}
	last    []byte
}

func NewHub(logger *xlogger.Logger, pingInterval time.Duration) *Hub {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	return &Hub{
		logger:       logger,
		pingInterval: pingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/bands", h.Serve)
}

// Broadcast queues t for every client. Slow clients miss frames rather than
// block the refresh.
func (h *Hub) Broadcast(t *models.SummaryTable) {
	b, err := json.Marshal(frame{Type: "summary", Summary: t})
	if err != nil {
		h.logger.Error("encode band frame", xlogger.Error(err))
		return
	}
	h.mu.Lock()
	h.last = b
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.logger.Warn("band stream client lagging, frame dropped")
		}
	}
	h.mu.Unlock()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	cl := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[cl] = struct{}{}
	if h.last != nil {
		cl.send <- h.last
	}
	h.mu.Unlock()
	apimetrics.WSClients.Inc()

	go h.writeLoop(cl)
	h.readLoop(cl)
	return nil
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
		apimetrics.WSClients.Dec()
	}
	h.mu.Unlock()
}

// readLoop discards inbound frames and returns when the peer goes away.
func (h *Hub) readLoop(cl *client) {
	defer func() {
		h.remove(cl)
		_ = cl.conn.Close()
	}()
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(cl *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()
	for {
		select {
		case b, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		delete(h.clients, cl)
		close(cl.send)
		apimetrics.WSClients.Dec()
	}
}
