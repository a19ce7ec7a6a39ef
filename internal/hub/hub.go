package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/calderhq/parley/internal/config"
	"github.com/calderhq/parley/pkg/log"
)

// Hub owns room membership and is the only place an event fans out to
// more than one connection. Membership maps are guarded by the mutex;
// fan-out order is serialized through the broadcast channel consumed
// by Run, so two broadcasts enqueued in order are delivered in order.
type Hub struct {
	clients    map[string]*Client            // clientID -> client
	rooms      map[string]map[string]*Client // room -> clientID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *roomBroadcast
	mu         sync.RWMutex

	sweepInterval time.Duration
	done          chan struct{}
	config        config.WebSocketConfig
}

type roomBroadcast struct {
	Room    string
	Payload []byte
	Exclude string // client ID to skip, empty for none
}

func NewHub(cfg config.WebSocketConfig, sweepInterval time.Duration) *Hub {
	return &Hub{
		clients:       make(map[string]*Client),
		rooms:         make(map[string]map[string]*Client),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		broadcast:     make(chan *roomBroadcast, 256),
		sweepInterval: sweepInterval,
		done:          make(chan struct{}),
		config:        cfg,
	}
}

// Run drives registration, fan-out and the empty-room sweep. Call it
// in its own goroutine; it returns after Close.
func (h *Hub) Run() {
	ticker := time.NewTicker(h.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			logger := log.L()
			logger.Debug().Str("client_id", client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for _, members := range h.rooms {
					delete(members, client.ID)
				}
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()
			logger := log.L()
			logger.Debug().Str("client_id", client.ID).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			if members, ok := h.rooms[msg.Room]; ok {
				for clientID, client := range members {
					if clientID == msg.Exclude {
						continue
					}
					select {
					case client.Send <- msg.Payload:
					default:
						// Slow or closed consumer: drop it, never block fan-out.
						go h.removeClient(client)
					}
				}
			}
			h.mu.RUnlock()

		case <-ticker.C:
			h.sweepEmptyRooms()
		}
	}
}

// Close stops the Run loop.
func (h *Hub) Close() {
	close(h.done)
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// JoinRoom adds the client to the room, creating the room entry on
// first join. Re-adding an already-present client is a no-op. Returns
// the member count after the join.
func (h *Hub) JoinRoom(client *Client, room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[client.ID] = client

	logger := log.L()

	logger.Info().Str("client_id", client.ID).Str(log.FieldRoom, room).Msg("client joined room")
	return len(members)
}

// LeaveRoom removes the client from the room. The room entry is kept
// even when empty; the periodic sweep evicts it off the hot path.
func (h *Hub) LeaveRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, client.ID)
	}
	logger := log.L()
	logger.Info().Str("client_id", client.ID).Str(log.FieldRoom, room).Msg("client left room")
}

// Members returns a best-effort snapshot of the room's clients. The
// membership may change concurrently; callers must not treat the
// snapshot as a lock.
func (h *Hub) Members(room string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := h.rooms[room]
	out := make([]*Client, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

// MemberCount returns the current number of clients in the room.
func (h *Hub) MemberCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// BroadcastToRoom serializes the message once and fans it out to every
// member of the room except the excluded client ID. Delivery is
// best-effort at-most-once; unreachable members are silently dropped.
func (h *Hub) BroadcastToRoom(room string, message interface{}, exclude string) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.broadcast <- &roomBroadcast{
		Room:    room,
		Payload: data,
		Exclude: exclude,
	}
	return nil
}

// sweepEmptyRooms evicts rooms with no members so long-lived processes
// do not accumulate dead room entries.
func (h *Hub) sweepEmptyRooms() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room, members := range h.rooms {
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.unregister <- client
}
