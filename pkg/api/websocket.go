package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/pairbook/pairbook/pkg/clob"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS handled by the main server
		return true
	},
}

// Hub maintains active WebSocket connections and broadcasts fill feeds.
type Hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool

	broadcast chan []byte
	log       *zap.SugaredLogger
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan []byte, 256),
		log:       logger,
	}
}

// Run drains the broadcast channel and fans out to connected clients until
// ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.broadcast:
			h.mu.RLock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					h.log.Debugw("ws_write_failed", "err", err)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastFills publishes the fills of one match to all subscribers.
func (h *Hub) BroadcastFills(id clob.ID, fills []clob.Fill) {
	data, err := json.Marshal(map[string]any{
		"type":   "fills",
		"ledger": id.Hex(),
		"fills":  fills,
	})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Drop when the feed is backed up; fills remain queryable via REST.
	}
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Infow("ws_client_connected", "total", total)
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("ws_upgrade_failed", "err", err)
		return
	}
	s.hub.add(conn)

	// Reader loop only detects disconnects; the feed is one-way.
	go func() {
		defer s.hub.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
