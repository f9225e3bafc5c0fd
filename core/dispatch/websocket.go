package dispatch

import (
	"crypto/sha1"
	"encoding/base64"
	"net"
	"os"
	"syscall"

	"golang.org/x/net/http/httpguts"
)

// websocketAcceptKey computes the Sec-WebSocket-Accept value for a given
// Sec-WebSocket-Key: SHA1(key + magic GUID), base64-encoded (RFC 6455
// §1.3). This stays hand-rolled rather than delegated to gorilla/websocket
// because it has to run before any full-duplex connection exists;
// core/websocket's post-handshake framing is hand-rolled as well.
func websocketAcceptKey(key string) string {
	const magicGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"
	h := sha1.New()
	h.Write([]byte(key + magicGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// writeWebSocketUpgrade writes the 101 Switching Protocols response that
// completes a WebSocket handshake. The caller is responsible for handing
// the raw connection off to core/websocket after this returns; no further
// HTTP framing happens on this connection.
func writeWebSocketUpgrade(w Writer, secWebSocketKey string) error {
	accept := websocketAcceptKey(secWebSocketKey)
	buf := make([]byte, 0, 128)
	buf = append(buf, "HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: "...)
	buf = append(buf, accept...)
	buf = append(buf, "\r\n\r\n"...)
	_, err := w.Write(buf)
	return err
}

// UpgradeWebSocket validates the upgrade preconditions (Connection:
// Upgrade, Upgrade: websocket, a valid base64 Sec-WebSocket-Key), writes
// the 101 response and hijacks the connection for the caller. On success
// the dispatcher stops treating this connection as HTTP/1.x: ServeConnection
// returns the hijacked net.Conn instead of looping for a pipelined next
// request, and the caller (typically core/websocket.Handler) takes over
// framing.
//
// Hijacking duplicates the underlying file descriptor rather than handing
// over the one the reactor's poller already owns, so the reactor can
// close its own copy during connection teardown bookkeeping without
// tearing down the socket the caller just took ownership of.
func (c *Context) UpgradeWebSocket() (net.Conn, bool) {
	connHeader, _ := c.Header("Connection")
	if !httpguts.HeaderValuesContainsToken([]string{connHeader}, "upgrade") {
		c.Error(400)
		return nil, false
	}
	upgradeHeader, _ := c.Header("Upgrade")
	if !httpguts.HeaderValuesContainsToken([]string{upgradeHeader}, "websocket") {
		c.Error(400)
		return nil, false
	}
	key, ok := c.Header("Sec-WebSocket-Key")
	if !ok || !validWebSocketKey(key) {
		c.Error(400)
		return nil, false
	}

	conn, ok := c.hijackConn()
	if !ok {
		c.Error(500)
		return nil, false
	}

	if err := writeWebSocketUpgrade(c.w, key); err != nil {
		conn.Close()
		c.Error(500)
		return nil, false
	}

	c.responded = true
	c.wroteCode = 101
	c.hijacked = true
	c.hijackedConn = conn
	return conn, true
}

// validWebSocketKey reports whether key decodes as base64 to exactly 16
// bytes, the only shape RFC 6455 permits for Sec-WebSocket-Key.
func validWebSocketKey(key string) bool {
	decoded, err := base64.StdEncoding.DecodeString(key)
	return err == nil && len(decoded) == 16
}

// hijackConn produces an independent net.Conn over the same socket
// c.connFD refers to, via dup(2), so the reactor's own close of connFD
// doesn't tear down the connection the caller is taking over. Falls back
// to asserting c.w as a net.Conn directly, the path tests take when
// there's no real file descriptor behind the Writer.
func (c *Context) hijackConn() (net.Conn, bool) {
	if c.connFD > 0 {
		dup, err := syscall.Dup(c.connFD)
		if err != nil {
			return nil, false
		}
		f := os.NewFile(uintptr(dup), "websocket")
		conn, err := net.FileConn(f)
		f.Close()
		if err != nil {
			return nil, false
		}
		return conn, true
	}
	if conn, ok := c.w.(net.Conn); ok {
		return conn, true
	}
	return nil, false
}
