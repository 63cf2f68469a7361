package bus

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type envelope struct {
	Room  string `json:"room"`
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// subscriber is one live websocket connection scoped to a single room.
// A spectator that watches several rooms holds one subscriber per room
// so membership tracking and write serialization stay simple.
type subscriber struct {
	conn  *websocket.Conn
	id    string
	outCh chan []byte
}

// Hub is a room-scoped websocket fan-out, adapted from a single global
// broadcast channel into per-room membership so spectators of one
// match never see another match's frames.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*subscriber

	shutdownOnce sync.Once
	done         chan struct{}
}

// NewHub constructs an empty Hub ready to accept subscribers.
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[string]*subscriber),
		done:  make(chan struct{}),
	}
}

// Subscribe upgrades the request to a websocket and joins it to room.
// The connection is read in a loop only to detect disconnects; this
// transport is send-only from the server's perspective.
func (h *Hub) Subscribe(c *gin.Context, room, subscriberID string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("bus: upgrade failed: %v", err)
		return
	}

	sub := &subscriber{conn: conn, id: subscriberID, outCh: make(chan []byte, 64)}
	h.addSubscriber(room, sub)

	go h.writePump(room, sub)
	h.readPump(room, sub)
}

func (h *Hub) addSubscriber(room string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*subscriber)
	}
	h.rooms[room][sub.id] = sub
}

func (h *Hub) removeSubscriber(room string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		if current, ok := members[sub.id]; ok && current == sub {
			delete(members, sub.id)
			close(sub.outCh)
		}
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) writePump(room string, sub *subscriber) {
	for msg := range sub.outCh {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
	sub.conn.Close()
}

func (h *Hub) readPump(room string, sub *subscriber) {
	defer func() {
		h.removeSubscriber(room, sub)
		sub.conn.Close()
	}()
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast publishes event/payload to every subscriber currently
// joined to room. A subscriber whose outbound buffer is full is
// dropped rather than allowed to stall the broadcaster.
func (h *Hub) Broadcast(room, event string, payload any) {
	body, err := json.Marshal(envelope{Room: room, Event: event, Data: payload})
	if err != nil {
		log.Printf("bus: marshal failed for room %s event %s: %v", room, event, err)
		return
	}

	h.mu.RLock()
	members := h.rooms[room]
	subs := make([]*subscriber, 0, len(members))
	for _, s := range members {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.outCh <- body:
		default:
			log.Printf("bus: dropping slow subscriber %s in room %s", s.id, room)
		}
	}
}

// Join records membership without an active websocket — used for
// reconnect-tolerant bookkeeping when a caller wants presence tracked
// before the socket handshake completes.
func (h *Hub) Join(room, subscriberID string) {
	h.addSubscriber(room, &subscriber{id: subscriberID, outCh: make(chan []byte, 1)})
}

func (h *Hub) Leave(room, subscriberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, subscriberID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Shutdown closes every live connection. Idempotent.
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		defer h.mu.Unlock()
		for room, members := range h.rooms {
			for _, s := range members {
				s.conn.Close()
			}
			delete(h.rooms, room)
		}
	})
}
