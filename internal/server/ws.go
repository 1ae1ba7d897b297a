package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/shoplens/internal/logging"
	"github.com/ayusman/shoplens/internal/overlay"
	"github.com/ayusman/shoplens/internal/server/api"
	"github.com/ayusman/shoplens/internal/session"
)

const writeWait = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// overlayMessage is what every websocket client receives on a state change.
type overlayMessage struct {
	api.OverlayResponse
	Timestamp int64 `json:"timestamp"`
}

// OverlayHub pushes the rendered overlay to websocket clients after every
// session state change.
type OverlayHub struct {
	snapshot func() session.Snapshot
	template api.TemplateFunc
	logger   *zap.SugaredLogger

	// mu guards clients and serializes writes to them.
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewOverlayHub creates a new OverlayHub. snapshot supplies the state sent to
// newly connected clients.
func NewOverlayHub(snapshot func() session.Snapshot, template api.TemplateFunc, logger *zap.SugaredLogger) *OverlayHub {
	if template == nil {
		template = func() string { return overlay.DefaultSearchURL }
	}
	return &OverlayHub{
		snapshot: snapshot,
		template: template,
		logger:   logging.OrNop(logger),
		clients:  make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *OverlayHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	if h.snapshot != nil {
		if msg, err := h.encode(h.snapshot()); err == nil {
			h.write(conn, msg)
		}
	}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Publish sends the overlay for s to every connected client.
// It has the session.Listener signature.
func (h *OverlayHub) Publish(s session.Snapshot) {
	msg, err := h.encode(s)
	if err != nil {
		h.logger.Errorf("Failed to encode overlay: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		h.write(conn, msg)
	}
}

// Clients returns the number of connected clients.
func (h *OverlayHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *OverlayHub) encode(s session.Snapshot) ([]byte, error) {
	return json.Marshal(overlayMessage{
		OverlayResponse: api.NewOverlayResponse(s, h.template()),
		Timestamp:       time.Now().UnixMilli(),
	})
}

// write sends msg to conn and drops the client on failure. h.mu must be held.
func (h *OverlayHub) write(conn *websocket.Conn, msg []byte) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		h.logger.Debugf("Dropping overlay client: %v", err)
		delete(h.clients, conn)
		conn.Close()
	}
}
