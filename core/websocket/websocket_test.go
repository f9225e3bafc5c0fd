package websocket

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"net"
	"net/http"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
)

func TestHubBasic(t *testing.T) {
	hub := NewHub(100)
	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestHubRegisterOverCapacityRejected(t *testing.T) {
	hub := NewHub(1)
	a, b := pipeClients(t)
	defer a.Conn.Close()
	defer b.Conn.Close()

	if err := hub.Register(a); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if err := hub.Register(b); err == nil {
		t.Fatalf("expected second Register to fail over capacity")
	}
}

func TestHubBroadcastReachesClient(t *testing.T) {
	hub := NewHub(10)
	server, client := net.Pipe()

	c := NewClient("1", NewServerConn(server))
	if err := hub.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	clientConn := NewClientConn(client)

	hub.BroadcastText("hello", "")

	client.SetReadDeadline(time.Now().Add(time.Second))
	typ, payload, err := clientConn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if typ != TextMessage || string(payload) != "hello" {
		t.Fatalf("got (%d, %q), want (%d, %q)", typ, payload, TextMessage, "hello")
	}
}

func TestRoomMembershipScopesBroadcast(t *testing.T) {
	hub := NewHub(10)
	room := hub.CreateRoom("lobby")

	server, client := net.Pipe()
	c := NewClient("1", NewServerConn(server))
	if err := hub.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := room.Join("1"); err != nil {
		t.Fatalf("Join: %v", err)
	}

	clientConn := NewClientConn(client)
	room.BroadcastText("to-room")

	client.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := clientConn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if string(payload) != "to-room" {
		t.Fatalf("got %q, want %q", payload, "to-room")
	}
	if room.ClientCount() != 1 {
		t.Fatalf("expected 1 room member, got %d", room.ClientCount())
	}
}

func TestServerRejectsUnmaskedClientFrame(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	srv := NewServerConn(server)
	// A second server-side codec on the client end writes unmasked frames,
	// which the real server side must reject.
	rogue := NewServerConn(client)

	done := make(chan error, 1)
	go func() {
		_, _, err := srv.ReadMessage()
		done <- err
	}()
	if err := rogue.WriteMessage(TextMessage, []byte("naked")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	select {
	case err := <-done:
		if err != ErrUnmaskedClientFrame {
			t.Fatalf("err = %v, want ErrUnmaskedClientFrame", err)
		}
	case <-time.After(time.Second):
		t.Fatal("server did not reject the unmasked frame")
	}
}

func TestPingAnsweredTransparently(t *testing.T) {
	server, client := net.Pipe()
	srv := NewServerConn(server)
	cli := NewClientConn(client)

	go func() {
		// Blocks in ReadMessage, answering the ping internally, until the
		// data message arrives.
		typ, payload, err := srv.ReadMessage()
		if err == nil {
			srv.WriteMessage(typ, payload)
		}
	}()

	client.SetReadDeadline(time.Now().Add(time.Second))

	if err := cli.Ping([]byte("beat")); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	// The pipe is synchronous: drain the pong before sending the data
	// message, or both sides end up blocked writing.
	f, err := cli.readFrame()
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if f.op != OpPong || string(f.payload) != "beat" {
		t.Fatalf("first frame = (%#x, %q), want pong %q", byte(f.op), f.payload, "beat")
	}

	if err := cli.WriteMessage(TextMessage, []byte("after-ping")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	typ, payload, err := cli.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if typ != TextMessage || string(payload) != "after-ping" {
		t.Fatalf("got (%d, %q)", typ, payload)
	}
}

// TestGorillaClientInterop proves the frame codec against a peer this
// package doesn't control: gorilla/websocket's client dials over an
// in-memory pipe, the test answers its upgrade handshake by hand, and an
// echo over the server-side Conn must survive gorilla's masking and
// framing unchanged.
func TestGorillaClientInterop(t *testing.T) {
	server, client := net.Pipe()

	go answerHandshakeAndEcho(t, server)

	dialer := gorilla.Dialer{
		NetDial: func(network, addr string) (net.Conn, error) { return client, nil },
	}
	conn, _, err := dialer.Dial("ws://pipe.invalid/ws", nil)
	if err != nil {
		t.Fatalf("gorilla dial: %v", err)
	}
	defer conn.Close()

	want := "framed by gorilla, echoed by coroserve"
	if err := conn.WriteMessage(gorilla.TextMessage, []byte(want)); err != nil {
		t.Fatalf("gorilla write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	typ, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("gorilla read: %v", err)
	}
	if typ != gorilla.TextMessage || string(payload) != want {
		t.Fatalf("echo = (%d, %q), want (%d, %q)", typ, payload, gorilla.TextMessage, want)
	}
}

// answerHandshakeAndEcho plays the server: it reads gorilla's upgrade
// request off conn, answers with a 101 carrying the computed accept key,
// then echoes one message through a server-side Conn.
func answerHandshakeAndEcho(t *testing.T, conn net.Conn) {
	t.Helper()

	br := bufio.NewReader(conn)
	req, err := http.ReadRequest(br)
	if err != nil {
		t.Errorf("read upgrade request: %v", err)
		conn.Close()
		return
	}
	key := req.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		t.Error("upgrade request missing Sec-WebSocket-Key")
		conn.Close()
		return
	}

	h := sha1.New()
	h.Write([]byte(key + "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"))
	accept := base64.StdEncoding.EncodeToString(h.Sum(nil))

	response := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	if _, err := conn.Write([]byte(response)); err != nil {
		t.Errorf("write 101: %v", err)
		conn.Close()
		return
	}

	srv := NewServerConn(conn)
	typ, payload, err := srv.ReadMessage()
	if err != nil {
		t.Errorf("server read: %v", err)
		return
	}
	if err := srv.WriteMessage(typ, payload); err != nil {
		t.Errorf("server echo: %v", err)
	}
}

func pipeClients(t *testing.T) (*Client, *Client) {
	t.Helper()
	s1, _ := net.Pipe()
	s2, _ := net.Pipe()
	return NewClient("a", NewServerConn(s1)), NewClient("b", NewServerConn(s2))
}
