package progress

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub is a live broadcast surface for progress snapshots and alerts,
// scoped per execution id. It is ambient real-time plumbing for the
// "tracks ... progress in real time" framing in §1 of the design — it is
// not, and does not replace, the out-of-scope REST API.
type Hub struct {
	upgrader websocket.Upgrader

	mu          sync.Mutex
	subscribers map[string]map[*websocket.Conn]struct{} // executionID -> conns
}

// NewHub constructs an empty broadcast hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subscribers: make(map[string]map[*websocket.Conn]struct{}),
	}
}

// Subscribe upgrades an HTTP request to a websocket connection and
// registers it to receive broadcasts for executionID until the connection
// closes or the request context is cancelled.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, executionID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	h.mu.Lock()
	if h.subscribers[executionID] == nil {
		h.subscribers[executionID] = make(map[*websocket.Conn]struct{})
	}
	h.subscribers[executionID][conn] = struct{}{}
	h.mu.Unlock()

	go func() {
		defer h.unsubscribe(executionID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return nil
}

func (h *Hub) unsubscribe(executionID string, conn *websocket.Conn) {
	h.mu.Lock()
	if conns, ok := h.subscribers[executionID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.subscribers, executionID)
		}
	}
	h.mu.Unlock()
	_ = conn.Close()
}

// Broadcast pushes a JSON-encoded event to every subscriber of executionID.
// A write failure drops that subscriber; it never blocks on a slow reader
// beyond the underlying connection's own write deadline.
func (h *Hub) Broadcast(executionID string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.subscribers[executionID]))
	for c := range h.subscribers[executionID] {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.unsubscribe(executionID, c)
		}
	}
}
