package transport

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Room is a minimal broadcast room for UI subscribers: every connected
// socket receives every event emitted on it. There is exactly one default
// room, matching the "default room" the socket events are emitted on.
type Room struct {
	log      *logrus.Entry
	upgrader websocket.Upgrader

	mu      sync.Mutex
	sockets map[*websocket.Conn]struct{}
}

// NewRoom builds an empty broadcast room.
func NewRoom(log *logrus.Entry) *Room {
	return &Room{
		log:     log,
		sockets: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and keeps it registered until it closes.
func (r *Room) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.log.WithError(err).Debug("transport: websocket upgrade failed")
		return
	}

	r.mu.Lock()
	r.sockets[conn] = struct{}{}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.sockets, conn)
		r.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Event is the {event, payload} envelope sent to every socket.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload"`
}

// Emit fans event out to every connected socket. It never blocks on slow
// readers beyond a per-write failure (each write has a 5-second deadline),
// which drops that socket.
func (r *Room) Emit(name string, payload any) {
	raw, err := json.Marshal(Event{Name: name, Payload: payload})
	if err != nil {
		r.log.WithError(err).Error("transport: marshal socket event failed")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for conn := range r.sockets {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			delete(r.sockets, conn)
			_ = conn.Close()
		}
	}
}
