package middleware

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coroweb/httpcore/core/httpproto"
)

// Context is the narrow view of a transaction a middleware needs. It is
// satisfied by *dispatch.Context without this package importing dispatch
// (dispatch imports this package to run the pipeline, so the dependency
// only goes one way).
type Context interface {
	Method() httpproto.Method
	URL() string
	SetHeader(key, value string)
	Status(code int)
	Abort()
	IsAborted() bool
	JSON(code int, v any)
	String(code int, s string)
}

// HandlerFunc is the signature for middleware handlers.
type HandlerFunc func(Context)

// Pipeline is an ordered chain of middleware run before a route handler.
type Pipeline struct {
	handlers []HandlerFunc
	length   int
}

// NewPipeline creates a new middleware pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		handlers: make([]HandlerFunc, 0, 16),
	}
}

// Use adds a middleware to the pipeline.
func (p *Pipeline) Use(handler HandlerFunc) *Pipeline {
	p.handlers = append(p.handlers, handler)
	p.length = len(p.handlers)
	return p
}

// Execute runs the middleware chain in order, then finalHandler, unless a
// middleware aborted the transaction. A panic anywhere in the chain or the
// final handler is recovered into a 500 so it never kills the connection's
// goroutine.
func (p *Pipeline) Execute(ctx Context, finalHandler HandlerFunc) {
	defer func() {
		if err := recover(); err != nil {
			log.Printf("panic recovered: %v", err)
			ctx.Abort()
			ctx.JSON(500, map[string]interface{}{
				"error": "Internal Server Error",
			})
		}
	}()

	if p.length == 0 {
		finalHandler(ctx)
		return
	}

	for i := 0; i < p.length; i++ {
		p.handlers[i](ctx)
		if ctx.IsAborted() {
			return
		}
	}

	if !ctx.IsAborted() {
		finalHandler(ctx)
	}
}

// Compile freezes the pipeline's backing slice at its current length.
func (p *Pipeline) Compile() *Pipeline {
	if p.length <= 1 {
		return p
	}
	compiled := make([]HandlerFunc, p.length)
	copy(compiled, p.handlers)
	p.handlers = compiled
	return p
}

// AsyncPipeline runs a synchronous Pipeline plus a set of fire-and-forget
// middlewares (logging, metrics) on a worker pool so they never add to
// request latency.
type AsyncPipeline struct {
	sync     *Pipeline
	async    []AsyncHandlerFunc
	pool     *sync.Pool
	workerCh chan asyncTask
}

// AsyncHandlerFunc is a middleware that runs asynchronously.
type AsyncHandlerFunc func(Context)

type asyncTask struct {
	handler AsyncHandlerFunc
	ctx     Context
}

// NewAsyncPipeline creates a pipeline with async support backed by workers
// goroutines (4 if workers <= 0).
func NewAsyncPipeline(workers int) *AsyncPipeline {
	if workers <= 0 {
		workers = 4
	}

	p := &AsyncPipeline{
		sync:     NewPipeline(),
		async:    make([]AsyncHandlerFunc, 0, 8),
		workerCh: make(chan asyncTask, 256),
		pool: &sync.Pool{
			New: func() interface{} {
				return &asyncTask{}
			},
		},
	}

	for i := 0; i < workers; i++ {
		go p.worker()
	}

	return p
}

func (p *AsyncPipeline) worker() {
	for task := range p.workerCh {
		task.handler(task.ctx)
		p.pool.Put(&task)
	}
}

// UseSync adds a synchronous middleware.
func (p *AsyncPipeline) UseSync(handler HandlerFunc) *AsyncPipeline {
	p.sync.Use(handler)
	return p
}

// UseAsync adds an asynchronous middleware.
func (p *AsyncPipeline) UseAsync(handler AsyncHandlerFunc) *AsyncPipeline {
	p.async = append(p.async, handler)
	return p
}

// Execute runs the synchronous chain, then dispatches the asynchronous one
// to the worker pool (falling inline only when the queue is full).
func (p *AsyncPipeline) Execute(ctx Context, finalHandler HandlerFunc) {
	p.sync.Execute(ctx, finalHandler)

	if !ctx.IsAborted() {
		for _, handler := range p.async {
			task := p.pool.Get().(*asyncTask)
			task.handler = handler
			task.ctx = ctx

			select {
			case p.workerCh <- *task:
			default:
				handler(ctx)
				p.pool.Put(task)
			}
		}
	}
}

// Common middleware implementations.

// Logger logs the method and URL of every request.
func Logger() AsyncHandlerFunc {
	return func(ctx Context) {
		log.Printf("[%s] %s", ctx.Method(), ctx.URL())
	}
}

// CORS adds permissive CORS headers and answers preflight OPTIONS requests
// directly.
func CORS() HandlerFunc {
	return func(ctx Context) {
		ctx.SetHeader("Access-Control-Allow-Origin", "*")
		ctx.SetHeader("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		ctx.SetHeader("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if ctx.Method() == httpproto.MethodOptions {
			ctx.Abort()
			ctx.Status(204)
		}
	}
}

// RateLimiter implements a simple per-second token-bucket limiter shared
// across every connection the pipeline runs on.
func RateLimiter(requestsPerSecond int) HandlerFunc {
	var (
		tokens     int
		lastRefill time.Time
		mu         sync.Mutex
	)

	tokens = requestsPerSecond
	lastRefill = time.Now()

	return func(ctx Context) {
		mu.Lock()

		now := time.Now()
		elapsed := now.Sub(lastRefill)
		if elapsed > time.Second {
			tokens = requestsPerSecond
			lastRefill = now
		}

		if tokens > 0 {
			tokens--
			mu.Unlock()
			return
		}

		mu.Unlock()

		ctx.Abort()
		ctx.Status(429)
		ctx.JSON(429, map[string]interface{}{
			"error": "Too Many Requests",
		})
	}
}

// RequestID stamps every response with a monotonically increasing
// X-Request-ID header.
func RequestID() HandlerFunc {
	var counter uint64

	return func(ctx Context) {
		id := atomic.AddUint64(&counter, 1)
		ctx.SetHeader("X-Request-ID", fmt.Sprintf("%d", id))
	}
}

// Metrics is a no-op hook point for request metrics collection that runs
// off the request's own goroutine; latency and error counts are actually
// recorded by the dispatcher's OnRequestComplete hook feeding
// core/observability.
func Metrics() AsyncHandlerFunc {
	return func(ctx Context) {
		_ = ctx.Method()
		_ = ctx.URL()
	}
}
