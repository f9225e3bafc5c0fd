package websocket

import "net"

// Handler takes over an already-upgraded connection (dispatch has already
// written the 101 response) and registers it with a Hub. One Handler per
// Hub is typical; clientID is caller-assigned (e.g. a connection counter
// or a token from the request).
type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// HandleConnection wraps conn in a server-side frame codec and registers
// it with the hub. conn must already be past the HTTP upgrade handshake —
// see dispatch.Context.UpgradeWebSocket, which performs the handshake and
// hands the raw connection here.
func (h *Handler) HandleConnection(conn net.Conn, clientID string) error {
	wsConn := NewServerConn(conn)
	client := NewClient(clientID, wsConn)

	if err := h.hub.Register(client); err != nil {
		wsConn.Close()
		return err
	}

	return nil
}

// EventType labels a structured Event exchanged over a text frame as
// JSON. The sample handler in cmd/coroserve echoes raw payloads and does
// not use Event.
type EventType string

const (
	EventConnect    EventType = "connect"
	EventDisconnect EventType = "disconnect"
	EventMessage    EventType = "message"
	EventJoinRoom   EventType = "join"
	EventLeaveRoom  EventType = "leave"
	EventError      EventType = "error"
)

type Event struct {
	Type EventType              `json:"type"`
	Data map[string]interface{} `json:"data,omitempty"`
}
