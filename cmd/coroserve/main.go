// Command coroserve is a minimal sample backend exercising every piece of
// the core serving engine: static-ish routes, a prefix route, a POST echo
// route declaring HasPostData, a WebSocket echo route, a basic-auth-gated
// stats route, and a rewrite-driven redirect exercising the dispatcher's
// rewrite loop.
package main

import (
	"cmp"
	"crypto/subtle"
	"encoding/base64"
	"log"
	"net"
	"os"
	"slices"

	"github.com/coroweb/httpcore/app"
	"github.com/coroweb/httpcore/config"
	"github.com/coroweb/httpcore/core/dispatch"
	"github.com/coroweb/httpcore/core/router"
	"github.com/coroweb/httpcore/core/websocket"
)

// fortune is the sample's comparable-list record, sorted with a genuine
// three-way comparison (a boolean less-than can't define the strict weak
// ordering a sort needs).
type fortune struct {
	ID   int
	Text string
}

func sortedFortunes() []fortune {
	data := []fortune{
		{3, "A computer program does what you tell it to do, not what you want it to do."},
		{1, "Any sufficiently advanced technology is indistinguishable from magic."},
		{2, "Premature optimization is the root of all evil."},
		{4, "There are only two hard things in Computer Science: cache invalidation and naming things."},
	}
	slices.SortFunc(data, func(a, b fortune) int {
		return cmp.Compare(a.Text, b.Text)
	})
	return data
}

// basicAuthorizer gates RequireAuth routes with HTTP Basic credentials.
// The password comes from COROSERVE_ADMIN_PASSWORD; with it unset every
// authorized route fails closed.
func basicAuthorizer() func(*dispatch.Context) bool {
	password := os.Getenv("COROSERVE_ADMIN_PASSWORD")
	want := []byte("admin:" + password)
	return func(ctx *dispatch.Context) bool {
		if password == "" {
			return false
		}
		auth, ok := ctx.Header("Authorization")
		const prefix = "Basic "
		if !ok || len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
			return false
		}
		decoded, err := base64.StdEncoding.DecodeString(auth[len(prefix):])
		if err != nil {
			return false
		}
		return subtle.ConstantTimeCompare(decoded, want) == 1
	}
}

func main() {
	cfg := config.New()
	application := app.New(cfg)
	application.SetAuthorizer(basicAuthorizer())

	hub := websocket.NewHub(10000)
	hub.OnMessage(func(client *websocket.Client, typ websocket.MessageType, payload []byte) {
		client.Conn.WriteMessage(typ, payload) // echo
	})
	wsHandler := websocket.NewHandler(hub)

	var connCounter int64
	application.OnWebSocketUpgrade(func(conn net.Conn) {
		connCounter++
		id := fortuneClientID(connCounter)
		if err := wsHandler.HandleConnection(conn, id); err != nil {
			log.Printf("coroserve: websocket handoff failed: %v", err)
		}
	})

	application.Handle("GET", "/hello", func(c any) {
		ctx := c.(*dispatch.Context)
		ctx.String(200, "hello from coroserve")
	}, 0)

	application.Handle("GET", "/fortunes", func(c any) {
		ctx := c.(*dispatch.Context)
		ctx.JSON(200, sortedFortunes())
	}, 0)

	application.Handle("POST", "/echo", func(c any) {
		ctx := c.(*dispatch.Context)
		contentType, _ := ctx.Header("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		ctx.Bytes(200, contentType, ctx.Body())
	}, router.HasPostData)

	application.Handle("GET", "/old-path", func(c any) {
		ctx := c.(*dispatch.Context)
		if !ctx.Rewrite("/hello") {
			ctx.Error(500)
		}
	}, router.AllowRewrite)

	application.Handle("GET", "/ws", func(c any) {
		ctx := c.(*dispatch.Context)
		if _, ok := ctx.UpgradeWebSocket(); !ok {
			return
		}
		// OnWebSocketUpgrade (wired above) takes it from here.
	}, 0)

	application.Handle("GET", "/admin/stats", func(c any) {
		ctx := c.(*dispatch.Context)
		ctx.JSON(200, hub.Stats())
	}, router.RequireAuth)

	application.Run()
}

func fortuneClientID(n int64) string {
	buf := make([]byte, 0, 20)
	buf = append(buf, "conn-"...)
	return string(appendDecimal(buf, n))
}

func appendDecimal(buf []byte, n int64) []byte {
	if n == 0 {
		return append(buf, '0')
	}
	start := len(buf)
	for n > 0 {
		buf = append(buf, byte('0'+n%10))
		n /= 10
	}
	for i, j := start, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf
}
