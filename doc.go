/*
Package httpcore is a cooperative-task HTTP/1.x serving engine: a
goroutine-per-connection coroutine substrate (core/task) driving a
single-pass, allocation-averse request parser (core/httpproto) and
dispatcher (core/dispatch) over a sharded epoll/kqueue reactor
(core/reactor, core/poller).

# Quick Start

Basic usage example:

package main

import (

	"github.com/coroweb/httpcore/app"
	"github.com/coroweb/httpcore/config"
	"github.com/coroweb/httpcore/core/dispatch"

)

	func main() {
	    cfg := config.New()
	    application := app.New(cfg)

	    application.Handle("GET", "/hello", func(c any) {
	        ctx := c.(*dispatch.Context)
	        ctx.String(200, "Hello, World!")
	    }, 0)

	    application.Run()
	}

# Modules

The engine is organized into:

  - app: application lifecycle, config wiring, graceful shutdown
  - config: flag/env configuration and a hot-reloadable runtime Manager
  - core/task: the cooperative coroutine substrate connections run on
  - core/pump: read-buffer pumping with pluggable finalizers (EAGAIN/EINTR via task yields)
  - core/httpproto: the HTTP/1.x request-line/header parser and PROXY v1/v2 prefix handling
  - core/router: a longest-prefix trie router with per-route flags
  - core/dispatch: routing, auth gating, POST body ingestion, rewrites, WebSocket handshake
  - core/websocket: post-handshake frame codec and broadcast fan-out
  - core/reactor: sharded epoll/kqueue connection loop, one goroutine per shard
  - core/poller: the epoll/kqueue syscall layer
  - core/middleware: the handler middleware pipeline
  - core/pools: worker/buffer/connection pooling with GC tuning
  - core/sendfile: zero-copy file serving
  - core/optimize: platform-specific comparison/hashing fast paths
  - core/rpc: an admin/metrics RPC surface with JSON and protobuf codecs
  - core/observability: metrics and tracing hooks

# Non-goals

HTTP/2 and Server-Sent Events are out of scope: the engine targets
HTTP/1.x request/response and WebSocket upgrade only.

For more information, see the DESIGN.md grounding ledger at the
repository root.
*/
package httpcore
