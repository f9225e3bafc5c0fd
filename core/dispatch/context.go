package dispatch

import (
	"encoding/json"
	"io"
	"net"
	"os"

	"github.com/coroweb/httpcore/core/httpproto"
	"github.com/coroweb/httpcore/core/router"
	"github.com/coroweb/httpcore/core/sendfile"
	"github.com/coroweb/httpcore/core/task"
)

// Context is bound to one HTTP transaction for the lifetime of a handler
// call, giving it access to the parsed Request, the lazy accessors, and
// the response writer.
type Context struct {
	Task *task.Task
	Req  *httpproto.Request

	w         Writer
	connFD    int // 0 when the Writer isn't a real socket (tests, pipes)
	keepAlive bool
	tail      string

	rewritesLeft int
	rewriteTo    string
	rewritten    bool

	responded bool
	wroteCode int

	responseHeaders map[string]string
	statusCode      int
	aborted         bool

	hijacked     bool
	hijackedConn net.Conn
}

func newContext(t *task.Task, req *httpproto.Request, w Writer, connFD int, keepAlive bool, route router.Route) *Context {
	return &Context{
		Task:         t,
		Req:          req,
		w:            w,
		connFD:       connFD,
		keepAlive:    keepAlive,
		tail:         route.Tail,
		rewritesLeft: httpproto.MaxRewrites - req.Parser.URLsRewritten,
	}
}

// Method returns the request method.
func (c *Context) Method() httpproto.Method { return c.Req.Method }

// URL returns the (possibly already rewritten) request path.
func (c *Context) URL() string { return c.Req.URL }

// Tail returns the portion of the URL beyond the matched route prefix,
// e.g. for a route registered at "/static/" and a request for
// "/static/app.js", Tail is "app.js".
func (c *Context) Tail() string { return c.tail }

// Header returns a raw request header by canonical name.
func (c *Context) Header(name string) (string, bool) { return c.Req.Parser.Header(name) }

// Cookie looks up a single cookie by name.
func (c *Context) Cookie(name string) (string, bool) {
	return httpproto.Lookup(c.Req.Cookies(c.Task), name)
}

// Query looks up a single query-string parameter by name.
func (c *Context) Query(name string) (string, bool) {
	return httpproto.Lookup(c.Req.QueryParams(c.Task), name)
}

// PostForm looks up a single x-www-form-urlencoded body parameter by name.
// The body must already have been ingested (the dispatcher does this for
// any route declaring router.HasPostData before the handler runs).
func (c *Context) PostForm(name string) (string, bool) {
	return httpproto.Lookup(c.Req.PostParams(c.Task), name)
}

// Body returns the raw ingested POST body.
func (c *Context) Body() []byte { return c.Req.Parser.Body }

// Rewrite redirects handling to a new URL without a round trip to the
// client. It fails once MaxRewrites rewrites have
// already happened for this transaction, returning false; the dispatcher
// treats that as exhausted and serves a 500.
func (c *Context) Rewrite(url string) bool {
	if c.rewritesLeft <= 0 {
		return false
	}
	c.rewritesLeft--
	c.rewriteTo = url
	c.rewritten = true
	return true
}

// SetHeader queues an extra response header, sent with whichever of
// String/JSON/Bytes/Error/ServeFile writes the response. Middleware sets
// these before the handler runs; they survive to the eventual write.
func (c *Context) SetHeader(key, value string) {
	if c.responseHeaders == nil {
		c.responseHeaders = make(map[string]string, 4)
	}
	c.responseHeaders[key] = value
}

// Status records a status code a later call to String/JSON/Bytes should
// use when it's called with code 0, the convention middleware that wants
// to pre-empt the handler's own status choice relies on.
func (c *Context) Status(code int) { c.statusCode = code }

// Abort marks the transaction so the dispatcher's middleware chain stops
// calling further handlers; it does not itself write a response.
func (c *Context) Abort() { c.aborted = true }

// IsAborted reports whether Abort was called for this transaction.
func (c *Context) IsAborted() bool { return c.aborted }

func (c *Context) resolveCode(code int) int {
	if code == 0 && c.statusCode != 0 {
		return c.statusCode
	}
	return code
}

func (c *Context) extraHeaders() []string {
	if len(c.responseHeaders) == 0 {
		return nil
	}
	headers := make([]string, 0, len(c.responseHeaders))
	for k, v := range c.responseHeaders {
		headers = append(headers, k+": "+v)
	}
	return headers
}

// String writes a plain-text response.
func (c *Context) String(code int, s string) {
	c.responded = true
	c.wroteCode = c.resolveCode(code)
	writeBody(c.w, c.wroteCode, "text/plain; charset=utf-8", []byte(s), c.keepAlive, c.extraHeaders())
}

// JSON writes a JSON-encoded response.
func (c *Context) JSON(code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.String(500, "json marshal error")
		return
	}
	c.responded = true
	c.wroteCode = c.resolveCode(code)
	writeBody(c.w, c.wroteCode, "application/json; charset=utf-8", data, c.keepAlive, c.extraHeaders())
}

// Bytes writes a raw byte-slice response with an explicit content type.
func (c *Context) Bytes(code int, contentType string, data []byte) {
	c.responded = true
	c.wroteCode = c.resolveCode(code)
	writeBody(c.w, c.wroteCode, contentType, data, c.keepAlive, c.extraHeaders())
}

// Error writes one of the dispatcher's short default error bodies.
func (c *Context) Error(code int) {
	c.responded = true
	c.wroteCode = code
	writeBody(c.w, code, "text/plain; charset=utf-8", defaultErrorBody(code), c.keepAlive, c.extraHeaders())
}

// ServeFile serves filePath, using the zero-copy sendfile(2) path when the
// Context is bound to a real connection file descriptor and falling back
// to a buffered copy otherwise (tests, or platforms where the fd isn't
// available).
func (c *Context) ServeFile(filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		c.Error(404)
		return err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		c.Error(500)
		return err
	}
	size := stat.Size()

	header := make([]byte, 0, 128)
	header = append(header, "HTTP/1.1 200 OK\r\nContent-Type: "...)
	header = append(header, sendfile.GetContentType(filePath)...)
	header = append(header, "\r\nContent-Length: "...)
	header = appendInt(header, int(size))
	header = append(header, "\r\n"...)
	for _, h := range c.extraHeaders() {
		header = append(header, h...)
		header = append(header, "\r\n"...)
	}
	if !c.keepAlive {
		header = append(header, "Connection: close\r\n"...)
	}
	header = append(header, "\r\n"...)
	if _, err := c.w.Write(header); err != nil {
		return err
	}
	c.responded = true
	c.wroteCode = 200

	if c.connFD > 0 {
		_, err := sendfile.SendFile(c.Task, c.connFD, filePath, 0, int(size))
		return err
	}

	_, err = io.Copy(c.w, f)
	return err
}

// Responded reports whether a handler already wrote a response.
func (c *Context) Responded() bool { return c.responded }
