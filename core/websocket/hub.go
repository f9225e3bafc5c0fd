// Package websocket implements the post-handshake side of a WebSocket
// connection: once core/dispatch has performed the upgrade handshake and
// handed off the raw connection, a Client wraps it in a frame codec (Conn)
// and registers with a Hub for fan-out broadcast and room membership.
//
// The handshake computation itself (SHA1 of key + magic GUID, base64
// encoded) stays in core/dispatch/websocket.go; this package only ever
// sees a connection past that point.
package websocket

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// MessageType numbers match gorilla/websocket's TextMessage/BinaryMessage
// (and RFC 6455's opcodes), so payloads interoperate with gorilla peers —
// the interop tests dial in with gorilla's client to prove it.
type MessageType int

const (
	TextMessage   MessageType = 1
	BinaryMessage MessageType = 2
)

// Client is one registered WebSocket peer: a framed Conn plus an outbound
// queue drained by writePump.
type Client struct {
	ID     string
	Conn   *Conn
	Send   chan outboundMessage
	closed atomic.Bool
}

type outboundMessage struct {
	typ     MessageType
	payload []byte
}

// NewClient wraps an already-upgraded connection. conn must be past the
// 101 response (dispatch.Context.UpgradeWebSocket writes it); a Conn
// performs no handshake of its own, it only takes over framing.
func NewClient(id string, conn *Conn) *Client {
	return &Client{
		ID:   id,
		Conn: conn,
		Send: make(chan outboundMessage, 256),
	}
}

func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	close(c.Send)
	c.Conn.Close()
}

func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

// Hub fans broadcast messages out to registered clients and owns the
// register/unregister lifecycle. Message payloads travel as a
// (MessageType, []byte) pair; framing is the Conn's concern.
type Hub struct {
	clients    sync.Map
	broadcast  chan *BroadcastMessage
	register   chan *Client
	unregister chan *Client
	rooms      sync.Map

	totalClients atomic.Int64
	messageCount atomic.Int64
	maxClients   int

	onMessage func(client *Client, typ MessageType, payload []byte)
}

type BroadcastMessage struct {
	Type    MessageType
	Payload []byte
	Room    string
}

func NewHub(maxClients int) *Hub {
	if maxClients <= 0 {
		maxClients = 10000
	}

	hub := &Hub{
		broadcast:  make(chan *BroadcastMessage, 1000),
		register:   make(chan *Client, 100),
		unregister: make(chan *Client, 100),
		maxClients: maxClients,
	}

	go hub.run()

	return hub
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.clients.Store(client.ID, client)
			h.totalClients.Add(1)

		case client := <-h.unregister:
			if _, ok := h.clients.Load(client.ID); ok {
				h.clients.Delete(client.ID)
				client.Close()
			}

		case msg := <-h.broadcast:
			h.messageCount.Add(1)

			if msg.Room == "" {
				h.clients.Range(func(key, value interface{}) bool {
					client := value.(*Client)
					select {
					case client.Send <- outboundMessage{typ: msg.Type, payload: msg.Payload}:
					default:
						h.unregister <- client
					}
					return true
				})
			} else if room, ok := h.GetRoom(msg.Room); ok {
				room.Broadcast(msg.Type, msg.Payload)
			}
		}
	}
}

// Register admits client, starting its read and write pumps. Returns an
// error when the hub is at capacity rather than silently dropping the
// client.
func (h *Hub) Register(client *Client) error {
	if h.ClientCount() >= h.maxClients {
		return fmt.Errorf("max clients reached (%d)", h.maxClients)
	}

	h.register <- client

	go h.readPump(client)
	go h.writePump(client)

	return nil
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) Broadcast(typ MessageType, payload []byte, room string) {
	h.broadcast <- &BroadcastMessage{Type: typ, Payload: payload, Room: room}
}

func (h *Hub) BroadcastText(text string, room string) {
	h.Broadcast(TextMessage, []byte(text), room)
}

func (h *Hub) BroadcastBinary(data []byte, room string) {
	h.Broadcast(BinaryMessage, data, room)
}

func (h *Hub) SendTo(clientID string, payload []byte) error {
	val, ok := h.clients.Load(clientID)
	if !ok {
		return fmt.Errorf("client not found: %s", clientID)
	}

	client := val.(*Client)

	select {
	case client.Send <- outboundMessage{typ: TextMessage, payload: payload}:
		return nil
	default:
		return fmt.Errorf("client channel full")
	}
}

func (h *Hub) GetClient(clientID string) (*Client, bool) {
	val, ok := h.clients.Load(clientID)
	if !ok {
		return nil, false
	}
	return val.(*Client), true
}

func (h *Hub) ClientCount() int {
	count := 0
	h.clients.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

func (h *Hub) Stats() map[string]interface{} {
	return map[string]interface{}{
		"total_clients":   h.totalClients.Load(),
		"current_clients": h.ClientCount(),
		"messages_sent":   h.messageCount.Load(),
		"rooms":           h.RoomCount(),
	}
}

// readPump drains client's incoming frames, handing each to onMessage
// (nil means "discard", used by hubs that only ever broadcast).
func (h *Hub) readPump(client *Client) {
	defer h.Unregister(client)

	for {
		typ, payload, err := client.Conn.ReadMessage()
		if err != nil {
			return
		}
		if h.onMessage != nil {
			h.onMessage(client, typ, payload)
		}
	}
}

func (h *Hub) writePump(client *Client) {
	defer h.Unregister(client)

	for msg := range client.Send {
		if err := client.Conn.WriteMessage(msg.typ, msg.payload); err != nil {
			return
		}
	}
}

// OnMessage registers the callback readPump invokes for every inbound
// frame. Must be set before the first client Registers.
func (h *Hub) OnMessage(fn func(client *Client, typ MessageType, payload []byte)) {
	h.onMessage = fn
}

type Room struct {
	Name    string
	clients sync.Map
	hub     *Hub
}

func (h *Hub) CreateRoom(name string) *Room {
	room := &Room{Name: name, hub: h}
	h.rooms.Store(name, room)
	return room
}

func (h *Hub) GetRoom(name string) (*Room, bool) {
	val, ok := h.rooms.Load(name)
	if !ok {
		return nil, false
	}
	return val.(*Room), true
}

func (h *Hub) DeleteRoom(name string) {
	if room, ok := h.GetRoom(name); ok {
		room.clients.Range(func(key, value interface{}) bool {
			room.Leave(key.(string))
			return true
		})
		h.rooms.Delete(name)
	}
}

func (h *Hub) RoomCount() int {
	count := 0
	h.rooms.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

func (r *Room) Join(clientID string) error {
	client, ok := r.hub.GetClient(clientID)
	if !ok {
		return fmt.Errorf("client not found: %s", clientID)
	}
	r.clients.Store(clientID, client)
	return nil
}

func (r *Room) Leave(clientID string) {
	r.clients.Delete(clientID)
}

func (r *Room) Broadcast(typ MessageType, payload []byte) {
	r.clients.Range(func(key, value interface{}) bool {
		client := value.(*Client)
		select {
		case client.Send <- outboundMessage{typ: typ, payload: payload}:
		default:
		}
		return true
	})
}

func (r *Room) BroadcastText(text string) {
	r.Broadcast(TextMessage, []byte(text))
}

func (r *Room) ClientCount() int {
	count := 0
	r.clients.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

func (r *Room) ClientIDs() []string {
	ids := make([]string, 0)
	r.clients.Range(func(key, value interface{}) bool {
		ids = append(ids, key.(string))
		return true
	})
	return ids
}
