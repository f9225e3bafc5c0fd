package dispatch

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/coroweb/httpcore/core/httpproto"
	"github.com/coroweb/httpcore/core/task"
)

func TestWebSocketAcceptKeyVector(t *testing.T) {
	// RFC 6455 §1.3's worked example.
	got := websocketAcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("accept key = %q, want %q", got, want)
	}
}

func TestValidWebSocketKey(t *testing.T) {
	if !validWebSocketKey("dGhlIHNhbXBsZSBub25jZQ==") {
		t.Fatalf("expected the sample nonce to be a valid key")
	}
	if validWebSocketKey("not base64!!") {
		t.Fatalf("expected malformed base64 to be rejected")
	}
	if validWebSocketKey("c2hvcnQ=") { // decodes to 5 bytes, not 16
		t.Fatalf("expected a non-16-byte key to be rejected")
	}
}

func upgradeContext(t *testing.T, w Writer, headers []httpproto.KV) *Context {
	t.Helper()
	req := &httpproto.Request{Method: httpproto.MethodGet, URL: "/ws"}
	req.Parser.Headers = headers
	tk := task.New(func(tk *task.Task, data any) int { return 0 }, nil)
	return &Context{Task: tk, Req: req, w: w}
}

func TestUpgradeWebSocketWrites101(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	ctx := upgradeContext(t, server, []httpproto.KV{
		{Key: "Connection", Value: "Upgrade"},
		{Key: "Upgrade", Value: "websocket"},
		{Key: "Sec-WebSocket-Key", Value: "dGhlIHNhbXBsZSBub25jZQ=="},
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, ok := ctx.UpgradeWebSocket()
		if !ok {
			t.Errorf("expected the upgrade to succeed")
			return
		}
		conn.Close()
	}()

	client.SetReadDeadline(time.Now().Add(time.Second))
	br := bufio.NewReader(client)
	status, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if !strings.HasPrefix(status, "HTTP/1.1 101") {
		t.Fatalf("status line = %q, want 101", status)
	}

	sawAccept := false
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("read headers: %v", err)
		}
		if line == "\r\n" {
			break
		}
		if strings.TrimSpace(line) == "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
			sawAccept = true
		}
	}
	if !sawAccept {
		t.Fatalf("response missing the computed Sec-WebSocket-Accept header")
	}
	<-done
}

func TestUpgradeWebSocketRejectsMissingUpgradeHeader(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	ctx := upgradeContext(t, server, []httpproto.KV{
		{Key: "Connection", Value: "Upgrade"},
		{Key: "Sec-WebSocket-Key", Value: "dGhlIHNhbXBsZSBub25jZQ=="},
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, ok := ctx.UpgradeWebSocket(); ok {
			t.Errorf("expected the upgrade to fail without Upgrade: websocket")
		}
	}()

	client.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 512)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if !strings.HasPrefix(string(buf[:n]), "HTTP/1.1 400") {
		t.Fatalf("response = %q, want 400", buf[:n])
	}
	<-done
}
