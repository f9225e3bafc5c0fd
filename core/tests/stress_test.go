// Package tests drives core/dispatch, core/httpproto and core/task
// together the way the reactor shards do in production, exercising
// pipelined keep-alive traffic and concurrent connections at once rather
// than one component in isolation.
package tests

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/coroweb/httpcore/core/dispatch"
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

func newTestRouter() *router.Router {
	rt := router.New()
	rt.Handle("GET", "/ping", func(ctx any) {
		ctx.(*dispatch.Context).String(200, "pong")
	}, 0)
	rt.Handle("POST", "/echo", func(ctx any) {
		c := ctx.(*dispatch.Context)
		c.Bytes(200, "text/plain", c.Body())
	}, router.HasPostData)
	return rt
}

func runOneConnection(rawRequest string, rt *router.Router) string {
	var out bytes.Buffer
	r := &onceReader{data: []byte(rawRequest)}
	opts := dispatch.Options{MaxHeadSize: 8192, MaxPostDataSize: 1 << 20}

	tk := task.New(func(tk *task.Task, data any) int {
		dispatch.ServeConnection(tk, r, &out, 0, rt, opts)
		return 0
	}, nil)
	ret := tk.Resume(nil)
	for ret != task.Abort && !tk.Finished() {
		ret = tk.Resume(nil)
	}
	return out.String()
}

// TestStressConcurrentPipelinedConnections runs many goroutines, each
// driving its own Task through a batch of pipelined keep-alive requests,
// to catch any state a Task or Request accidentally shares across
// connections (the router table and the task substrate must not).
func TestStressConcurrentPipelinedConnections(t *testing.T) {
	const connections = 200
	const requestsPerConn = 10

	rt := newTestRouter()

	var wg sync.WaitGroup
	errs := make(chan string, connections)

	for c := 0; c < connections; c++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			var req strings.Builder
			for i := 0; i < requestsPerConn; i++ {
				if i == requestsPerConn-1 {
					fmt.Fprintf(&req, "GET /ping HTTP/1.1\r\nConnection: close\r\n\r\n")
				} else {
					fmt.Fprintf(&req, "GET /ping HTTP/1.1\r\n\r\n")
				}
			}

			resp := runOneConnection(req.String(), rt)
			got := strings.Count(resp, "pong")
			if got != requestsPerConn {
				errs <- fmt.Sprintf("connection %d: got %d pongs, want %d", id, got, requestsPerConn)
			}
		}(c)
	}

	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

// TestStressConcurrentPostEcho exercises POST body ingestion (including
// the task-deferred body buffer path) under concurrent load.
func TestStressConcurrentPostEcho(t *testing.T) {
	const connections = 100

	rt := newTestRouter()

	var wg sync.WaitGroup
	errs := make(chan string, connections)

	for c := 0; c < connections; c++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			body := fmt.Sprintf("payload-%d", id)
			req := fmt.Sprintf("POST /echo HTTP/1.1\r\nConnection: close\r\nContent-Length: %d\r\n\r\n%s", len(body), body)

			resp := runOneConnection(req, rt)
			if !strings.HasSuffix(resp, body) {
				errs <- fmt.Sprintf("connection %d: response %q does not end with %q", id, resp, body)
			}
		}(c)
	}

	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}
