package dispatch

import (
	"log"
	"net"
	"strconv"
	"time"

	"github.com/coroweb/httpcore/core/httpproto"
	"github.com/coroweb/httpcore/core/middleware"
	"github.com/coroweb/httpcore/core/pump"
	"github.com/coroweb/httpcore/core/router"
	"github.com/coroweb/httpcore/core/task"
)

// Reader is the pump's source; satisfied by pump.RawReader in production
// and by an in-memory fake in tests.
type Reader interface {
	Read([]byte) (int, error)
}

// Options bounds the dispatcher's behavior per connection, sourced from
// config.Config.
type Options struct {
	AllowProxy        bool
	MaxHeadSize       int
	MaxPostDataSize   int
	AllowPostTempFile bool

	// KeepAliveTimeout doubles as the wall-clock budget for ingesting one
	// POST body: the body pump's deadline is set to now + KeepAliveTimeout
	// when ingestion starts. Zero disables the deadline.
	KeepAliveTimeout time.Duration

	// Authorize is consulted for routes flagged router.RequireAuth. A nil
	// Authorize treats every such route as unauthorized (fail closed).
	Authorize func(*Context) bool

	// Middleware, when set, wraps every route handler invocation. A nil
	// Middleware calls route.Handler directly.
	Middleware *middleware.Pipeline

	// AcquireHeadBuffer/ReleaseHeadBuffer let the caller hand out the
	// per-connection head buffer from a pool (core/reactor uses a
	// core/pools.BytePool) instead of a fresh make() per connection. Both nil
	// falls back to a plain allocation.
	AcquireHeadBuffer func(size int) []byte
	ReleaseHeadBuffer func([]byte)

	// OnWebSocketUpgrade, when set, receives the hijacked net.Conn after a
	// handler completes Context.UpgradeWebSocket. Either way ServeConnection
	// returns the hijacked conn; with a nil hook nothing closes it, and the
	// caller of ServeConnection owns it.
	OnWebSocketUpgrade func(net.Conn)

	// OnRequestComplete, when set, is invoked once per dispatched request
	// with the matched route pattern, the response status (0 if the handler
	// wrote its own response without going through Context's writers), and
	// the handler's wall-clock time. Wired to core/observability by app.
	OnRequestComplete func(pattern string, status int, d time.Duration)
}

func (o Options) maxHeadSize() int {
	if o.MaxHeadSize > 0 {
		return o.MaxHeadSize
	}
	return 8192
}

// ServeConnection runs the per-connection transaction loop over one
// accepted socket until the connection is no longer kept alive, the peer
// closes it, or a handler completes a WebSocket upgrade. It must run on
// the goroutine backing t; the caller is responsible for closing the
// underlying descriptor once this returns (unless a non-nil net.Conn is
// returned, in which case that connection has been hijacked and the
// caller owns its lifecycle instead — see Context.UpgradeWebSocket).
func ServeConnection(t *task.Task, r Reader, w Writer, connFD int, rt *router.Router, opts Options) net.Conn {
	headSize := opts.maxHeadSize()
	var headBuf []byte
	if opts.AcquireHeadBuffer != nil {
		headBuf = opts.AcquireHeadBuffer(headSize)
		if opts.ReleaseHeadBuffer != nil {
			defer opts.ReleaseHeadBuffer(headBuf)
		}
	} else {
		headBuf = make([]byte, headSize)
	}
	buf := &pump.Buffer{Data: headBuf}
	var carryOver []byte

	for {
		carryPresent := len(carryOver) > 0
		if carryPresent {
			buf.Len = copy(buf.Data, carryOver)
			carryOver = nil
		} else {
			buf.Reset()
		}

		result := pump.Pump(t, r, buf, httpproto.HeadFinalizer(len(buf.Data), opts.AllowProxy), carryPresent)
		switch result {
		case pump.PeerClosed:
			return nil
		case pump.Timeout:
			writeStatusOnly(w, 408, false)
			return nil
		case pump.TooLarge:
			writeStatusOnly(w, 413, false)
			return nil
		case pump.BadRequest:
			writeStatusOnly(w, 400, false)
			return nil
		}

		var req httpproto.Request
		outcome, err := httpproto.ParseRequest(&req, buf.Data[:buf.Len], opts.AllowProxy)
		if err != nil {
			// A parse failure abandons this request, but a pipelined
			// follow-up already located in the buffer survives it: the
			// connection stays open to serve that next request.
			if next := req.Parser.NextRequest; len(next) > 0 {
				writeStatusOnly(w, errorStatus(err), true)
				carryOver = append(carryOver[:0], next...)
				t.RunDeferredTo(0)
				continue
			}
			writeStatusOnly(w, errorStatus(err), false)
			return nil
		}

		keepAlive := outcome.KeepAlive
		keptAlive, wsConn := serveOneRequest(t, r, &req, w, connFD, rt, opts, keepAlive)
		if wsConn != nil {
			if opts.OnWebSocketUpgrade != nil {
				opts.OnWebSocketUpgrade(wsConn)
			}
			return wsConn
		}
		if !keptAlive {
			keepAlive = false
		}

		if !keepAlive {
			return nil
		}

		if len(req.Parser.NextRequest) > 0 {
			carryOver = append(carryOver[:0], req.Parser.NextRequest...)
		}
		t.RunDeferredTo(0)
	}
}

// serveOneRequest resolves a route (following up to httpproto.MaxRewrites
// handler-driven rewrites), enforces RequireAuth and POST ingestion, and
// invokes the handler. It returns keepAlive=false when the connection
// must be closed regardless of what the Connection header requested (a
// write error, an exhausted rewrite budget), and a non-nil net.Conn when
// the handler completed a WebSocket upgrade (see Context.UpgradeWebSocket)
// — in that case the caller must stop treating the connection as HTTP.
func serveOneRequest(t *task.Task, r Reader, req *httpproto.Request, w Writer, connFD int, rt *router.Router, opts Options, keepAlive bool) (bool, net.Conn) {
	url := req.URL

	for rewrites := 0; ; rewrites++ {
		if rewrites > httpproto.MaxRewrites {
			writeStatusOnly(w, 500, false)
			return false, nil
		}

		route, ok := rt.Find(req.Method.String(), url)
		if !ok {
			writeBody(w, 404, "text/plain; charset=utf-8", defaultErrorBody(404), keepAlive, nil)
			return true, nil
		}

		if route.Flags&router.RequireAuth != 0 {
			ctx := newContext(t, req, w, connFD, keepAlive, route)
			authorized := opts.Authorize != nil && opts.Authorize(ctx)
			if !authorized {
				writeStatusOnly(w, 401, keepAlive)
				return true, nil
			}
		}

		if req.Method == httpproto.MethodPost && route.Flags&router.HasPostData == 0 {
			// A POST aimed at a route that doesn't want a body must still
			// have that body read off the wire before the 405 goes out,
			// or the bytes land on the next pipelined request's parse.
			drainPostBody(t, r, req)
			writeBody(w, 405, "text/plain; charset=utf-8", defaultErrorBody(405), keepAlive, nil)
			return true, nil
		}

		if req.Method == httpproto.MethodPost && route.Flags&router.HasPostData != 0 {
			if !ingestPostBody(t, r, req, w, opts, keepAlive) {
				return false, nil
			}
		}

		prepareAcceptEncoding(req, route.Flags)

		ctx := newContext(t, req, w, connFD, keepAlive, route)
		started := time.Now()
		invokeHandler(ctx, route, opts)
		if opts.OnRequestComplete != nil {
			opts.OnRequestComplete(route.Pattern, ctx.wroteCode, time.Since(started))
		}

		if ctx.hijacked {
			return false, ctx.hijackedConn
		}

		if ctx.rewritten {
			if route.Flags&router.AllowRewrite == 0 {
				writeStatusOnly(w, 500, false)
				return false, nil
			}
			url = req.ApplyRewrite(ctx.rewriteTo)
			continue
		}

		if !ctx.responded {
			if ctx.aborted {
				writeStatusOnlyHeaders(w, ctx.resolveCode(200), keepAlive, ctx.extraHeaders())
			} else {
				writeBody(w, 500, "text/plain; charset=utf-8", defaultErrorBody(500), keepAlive, nil)
			}
		}
		return true, nil
	}
}

// invokeHandler runs the middleware chain and the route handler, turning a
// panic anywhere in either into a 500 instead of killing the connection's
// Task goroutine: the dispatcher never panics on behalf of a handler.
func invokeHandler(ctx *Context, route router.Route, opts Options) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("dispatch: handler panic on %s: %v", route.Pattern, r)
			if !ctx.responded {
				ctx.Error(500)
			}
		}
	}()

	if opts.Middleware != nil {
		opts.Middleware.Execute(ctx, func(c middleware.Context) { route.Handler(c) })
	} else {
		route.Handler(ctx)
	}
}

// errorStatus maps a parse-time error class to its response status:
// an unrecognized method is 405 (so a pipelined follow-up with a valid
// method still gets served), everything else is 400.
func errorStatus(err error) int {
	if err == httpproto.ErrMethodNotAllowed {
		return 405
	}
	return 400
}

// contentLength returns the request's parsed Content-Length, or -1 if the
// header is absent or unparseable.
func contentLength(req *httpproto.Request) int {
	raw := req.Parser.ContentLengthRaw
	if raw == "" {
		return -1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// drainPostBody reads and discards Content-Length bytes of a POST body the
// route didn't ask for, so the bytes don't corrupt a pipelined follow-up
// request.
func drainPostBody(t *task.Task, r Reader, req *httpproto.Request) {
	n := contentLength(req)
	if n <= 0 {
		return
	}
	have := len(req.Parser.NextRequest)
	if have >= n {
		req.Parser.NextRequest = req.Parser.NextRequest[n:]
		return
	}
	n -= have
	req.Parser.NextRequest = nil
	discard := make([]byte, 4096)
	buf := &pump.Buffer{}
	for n > 0 {
		want := len(discard)
		if n < want {
			want = n
		}
		buf.Data = discard[:want]
		buf.Reset()
		result := pump.Pump(t, r, buf, discardFinalizer(want), false)
		if result != pump.OK {
			return
		}
		n -= buf.Len
	}
}

// ingestPostBody reads a declared POST body off the wire: Content-Length is
// validated against opts.MaxPostDataSize; a body already fully present in
// the head buffer's carried-over bytes is used with no extra read
// (zero-copy); otherwise the body is read into either a task-deferred heap
// buffer (below httpproto.SmallBodyThreshold) or an unlinked mmap'd temp
// file (at or above it, only when opts.AllowPostTempFile). Returns false
// when the connection must close.
func ingestPostBody(t *task.Task, r Reader, req *httpproto.Request, w Writer, opts Options, keepAlive bool) bool {
	n := contentLength(req)
	if n < 0 {
		writeStatusOnly(w, 400, false)
		return false
	}
	if n > opts.MaxPostDataSize {
		writeStatusOnly(w, 413, false)
		return false
	}
	if n == 0 {
		req.Parser.Body = nil
		return true
	}

	carried := req.Parser.NextRequest
	if len(carried) >= n {
		req.Parser.Body = carried[:n]
		req.Parser.NextRequest = carried[n:]
		return true
	}

	var body []byte
	if n >= httpproto.SmallBodyThreshold && opts.AllowPostTempFile {
		data, cleanup, err := spillToTempFile(n)
		if err != nil {
			writeStatusOnly(w, 500, false)
			return false
		}
		t.Defer(func(args ...any) { cleanup() })
		body = data
	} else if n >= httpproto.SmallBodyThreshold {
		writeStatusOnly(w, 413, false)
		return false
	} else {
		body = make([]byte, n)
	}

	req.Parser.NextRequest = nil

	buf := &pump.Buffer{Data: body}
	buf.Len = copy(body, carried)

	var deadline time.Time
	if opts.KeepAliveTimeout > 0 {
		deadline = time.Now().Add(opts.KeepAliveTimeout)
	}
	req.Parser.ErrorWhenTime = deadline
	req.Parser.ErrorWhenNPackets = pump.PacketBudget(n)

	result := pump.Pump(t, r, buf, httpproto.BodyFinalizer(n, deadline), buf.Len > 0)
	switch result {
	case pump.OK:
	case pump.Timeout:
		writeStatusOnly(w, 408, false)
		return false
	default:
		writeStatusOnly(w, 400, false)
		return false
	}

	req.Parser.Body = body
	return true
}

func discardFinalizer(want int) pump.Finalizer {
	return func(buf []byte, packetCount int) pump.FinalizeResult {
		if len(buf) >= want {
			return pump.Done
		}
		return pump.TryAgain
	}
}
