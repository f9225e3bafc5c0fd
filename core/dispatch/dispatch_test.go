package dispatch

import (
	"bytes"
	"strings"
	"testing"

	"github.com/coroweb/httpcore/core/router"
	"github.com/coroweb/httpcore/core/task"
)

type onceReader struct {
	data []byte
	sent bool
}

func (o *onceReader) Read(p []byte) (int, error) {
	if o.sent {
		return 0, nil
	}
	o.sent = true
	return copy(p, o.data), nil
}

func runConnection(t *testing.T, rawRequest string, rt *router.Router, opts Options) string {
	t.Helper()
	var out bytes.Buffer
	r := &onceReader{data: []byte(rawRequest)}

	tk := task.New(func(tk *task.Task, data any) int {
		ServeConnection(tk, r, &out, 0, rt, opts)
		return 0
	}, nil)
	ret := tk.Resume(nil)
	for ret != task.Abort && !tk.Finished() {
		ret = tk.Resume(nil)
	}
	return out.String()
}

func defaultOpts() Options {
	return Options{MaxHeadSize: 8192, MaxPostDataSize: 1 << 20, AllowPostTempFile: true}
}

func TestServeConnectionSimpleRoute(t *testing.T) {
	rt := router.New()
	rt.Handle("GET", "/hello", func(ctx any) {
		ctx.(*Context).String(200, "hi")
	}, 0)

	resp := runConnection(t, "GET /hello HTTP/1.1\r\nConnection: close\r\n\r\n", rt, defaultOpts())
	if !strings.HasPrefix(resp, "HTTP/1.1 200 OK") {
		t.Fatalf("response = %q", resp)
	}
	if !strings.Contains(resp, "hi") {
		t.Fatalf("expected body \"hi\" in %q", resp)
	}
}

func TestServeConnectionNotFound(t *testing.T) {
	rt := router.New()
	resp := runConnection(t, "GET /missing HTTP/1.1\r\nConnection: close\r\n\r\n", rt, defaultOpts())
	if !strings.HasPrefix(resp, "HTTP/1.1 404") {
		t.Fatalf("response = %q", resp)
	}
}

func TestServeConnectionPostWithoutHasPostDataIs405(t *testing.T) {
	rt := router.New()
	rt.Handle("POST", "/nopost", func(ctx any) {
		t.Fatalf("handler should not run for a route without HasPostData")
	}, 0)

	req := "POST /nopost HTTP/1.1\r\nConnection: close\r\nContent-Length: 5\r\n\r\nhello"
	resp := runConnection(t, req, rt, defaultOpts())
	if !strings.HasPrefix(resp, "HTTP/1.1 405") {
		t.Fatalf("response = %q", resp)
	}
}

func TestServeConnectionPostEcho(t *testing.T) {
	rt := router.New()
	rt.Handle("POST", "/echo", func(ctx any) {
		c := ctx.(*Context)
		c.Bytes(200, "text/plain", c.Body())
	}, router.HasPostData)

	req := "POST /echo HTTP/1.1\r\nConnection: close\r\nContent-Length: 5\r\n\r\nhello"
	resp := runConnection(t, req, rt, defaultOpts())
	if !strings.HasPrefix(resp, "HTTP/1.1 200") {
		t.Fatalf("response = %q", resp)
	}
	if !strings.HasSuffix(resp, "hello") {
		t.Fatalf("expected echoed body, got %q", resp)
	}
}

func TestServeConnectionRequireAuthDenied(t *testing.T) {
	rt := router.New()
	rt.Handle("GET", "/secret", func(ctx any) {
		t.Fatalf("handler should not run when unauthorized")
	}, router.RequireAuth)

	resp := runConnection(t, "GET /secret HTTP/1.1\r\nConnection: close\r\n\r\n", rt, defaultOpts())
	if !strings.HasPrefix(resp, "HTTP/1.1 401") {
		t.Fatalf("response = %q", resp)
	}
}

func TestServeConnectionRequireAuthGranted(t *testing.T) {
	rt := router.New()
	rt.Handle("GET", "/secret", func(ctx any) {
		ctx.(*Context).String(200, "ok")
	}, router.RequireAuth)

	opts := defaultOpts()
	opts.Authorize = func(c *Context) bool { return true }

	resp := runConnection(t, "GET /secret HTTP/1.1\r\nConnection: close\r\n\r\n", rt, opts)
	if !strings.HasPrefix(resp, "HTTP/1.1 200") {
		t.Fatalf("response = %q", resp)
	}
}

func TestServeConnectionRewrite(t *testing.T) {
	rt := router.New()
	rt.Handle("GET", "/old", func(ctx any) {
		if !ctx.(*Context).Rewrite("/new") {
			t.Fatalf("expected rewrite budget to be available")
		}
	}, router.AllowRewrite)
	rt.Handle("GET", "/new", func(ctx any) {
		ctx.(*Context).String(200, "new-place")
	}, 0)

	resp := runConnection(t, "GET /old HTTP/1.1\r\nConnection: close\r\n\r\n", rt, defaultOpts())
	if !strings.Contains(resp, "new-place") {
		t.Fatalf("response = %q", resp)
	}
}

func TestServeConnectionHandlerDidNotRespond(t *testing.T) {
	rt := router.New()
	rt.Handle("GET", "/silent", func(ctx any) {}, 0)

	resp := runConnection(t, "GET /silent HTTP/1.1\r\nConnection: close\r\n\r\n", rt, defaultOpts())
	if !strings.HasPrefix(resp, "HTTP/1.1 500") {
		t.Fatalf("response = %q", resp)
	}
}

func TestServeConnectionUnknownMethodKeepsPipelineAlive(t *testing.T) {
	rt := router.New()
	rt.Handle("GET", "/ping", func(ctx any) {
		ctx.(*Context).String(200, "pong")
	}, 0)

	req := "BREW / HTTP/1.1\r\n\r\nGET /ping HTTP/1.1\r\nConnection: close\r\n\r\n"
	resp := runConnection(t, req, rt, defaultOpts())
	if !strings.HasPrefix(resp, "HTTP/1.1 405") {
		t.Fatalf("expected a 405 for the unknown method first, got %q", resp)
	}
	if !strings.Contains(resp, "pong") {
		t.Fatalf("expected the pipelined follow-up to be served, got %q", resp)
	}
}

func TestServeConnectionHandlerPanicIs500(t *testing.T) {
	rt := router.New()
	rt.Handle("GET", "/boom", func(ctx any) {
		panic("handler exploded")
	}, 0)

	resp := runConnection(t, "GET /boom HTTP/1.1\r\nConnection: close\r\n\r\n", rt, defaultOpts())
	if !strings.HasPrefix(resp, "HTTP/1.1 500") {
		t.Fatalf("expected a 500 after a handler panic, got %q", resp)
	}
}

func TestServeConnectionKeepAlivePipelined(t *testing.T) {
	rt := router.New()
	count := 0
	rt.Handle("GET", "/ping", func(ctx any) {
		count++
		ctx.(*Context).String(200, "pong")
	}, 0)

	req := "GET /ping HTTP/1.1\r\n\r\nGET /ping HTTP/1.1\r\nConnection: close\r\n\r\n"
	resp := runConnection(t, req, rt, defaultOpts())
	if count != 2 {
		t.Fatalf("expected handler to run twice for pipelined requests, ran %d times", count)
	}
	if strings.Count(resp, "pong") != 2 {
		t.Fatalf("expected two responses, got %q", resp)
	}
}
