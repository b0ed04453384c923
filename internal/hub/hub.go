package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/duykhanhyb1994/sayhi.io.vn/pkg/log"
)

// Bridge mirrors room broadcasts to other relay instances through an
// external pub/sub backend. Optional; a nil bridge keeps all fan-out
// in-process.
type Bridge interface {
	Publish(ctx context.Context, room string, data []byte) error
}

// Hub is the room registry and broadcast bus. It owns the transient
// room membership sets and decouples publishers from recipients: a
// publish is delivered to every member independently and a failing
// member never affects the others or the publisher.
type Hub struct {
	clients    map[string]*Client            // clientID -> client
	rooms      map[string]map[string]*Client // room name -> clientID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *roomMessage
	bridge     Bridge
	mu         sync.RWMutex
}

type roomMessage struct {
	room string
	data []byte
	// remote marks events injected by the bridge; they are never
	// mirrored back out.
	remote bool
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *roomMessage, 256),
	}
}

// SetBridge attaches a cross-instance bridge. Call before Run.
func (h *Hub) SetBridge(b Bridge) {
	h.bridge = b
}

// Run processes registrations and broadcasts until the hub is shut
// down. Per room, events are delivered in the order their publishes
// were enqueued.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			log.L().Debug().Str(log.FieldClientID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				h.removeFromRoomLocked(client)
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()
			log.L().Debug().Str(log.FieldClientID, client.ID).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.rooms[msg.room] {
				select {
				case client.Send <- msg.data:
				default:
					// Slow consumer; drop it without stalling the room.
					go h.Unregister(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a client to the hub's connection set.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client entirely: from its room, from the
// connection set, and closes its send channel. Safe to call more than
// once for the same client.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Join adds the client to a room's member set, creating the set if
// absent. A session belongs to at most one room, so any previous
// membership is dropped first.
func (h *Hub) Join(room string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromRoomLocked(client)

	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[string]*Client)
	}
	h.rooms[room][client.ID] = client
	client.Session.JoinRoom(room)

	log.L().Info().
		Str(log.FieldClientID, client.ID).
		Str(log.FieldRoom, room).
		Msg("client joined room")
}

// Leave removes the client from a room's member set. Removing an absent
// member is a no-op, so double-disconnect is harmless. An empty member
// set is dropped; the durable room row is unaffected.
func (h *Hub) Leave(room string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[room]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	client.Session.LeaveRoom()

	log.L().Info().
		Str(log.FieldClientID, client.ID).
		Str(log.FieldRoom, room).
		Msg("client left room")
}

// Publish marshals the event once and fans it out to every current
// member of the room. Delivery to each member is independent and
// best-effort; the call never reports a member failure. When a bridge
// is attached the event is also mirrored to other instances.
func (h *Hub) Publish(room string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.broadcast <- &roomMessage{room: room, data: data}

	if h.bridge != nil {
		go func() {
			if err := h.bridge.Publish(context.Background(), room, data); err != nil {
				log.L().Warn().Err(err).Str(log.FieldRoom, room).Msg("bridge publish failed")
			}
		}()
	}
	return nil
}

// DeliverRemote injects an event received from another relay instance
// into the local fan-out. It is never mirrored back to the bridge.
func (h *Hub) DeliverRemote(room string, data []byte) {
	h.broadcast <- &roomMessage{room: room, data: data, remote: true}
}

// RoomMemberCount reports the current member count of a room.
func (h *Hub) RoomMemberCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// removeFromRoomLocked drops the client from its current room, if any.
// Caller holds h.mu.
func (h *Hub) removeFromRoomLocked(client *Client) {
	room := client.Session.CurrentRoom()
	if room == "" {
		return
	}
	if members, ok := h.rooms[room]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	client.Session.LeaveRoom()
}
