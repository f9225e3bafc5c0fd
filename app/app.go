package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coroweb/httpcore/config"
	"github.com/coroweb/httpcore/core/dispatch"
	"github.com/coroweb/httpcore/core/middleware"
	"github.com/coroweb/httpcore/core/observability"
	"github.com/coroweb/httpcore/core/reactor"
	"github.com/coroweb/httpcore/core/router"
	rpcserver "github.com/coroweb/httpcore/core/rpc/server"
)

// App is the application instance wiring a config.Config to a
// core/reactor.Reactor: it owns the long-lived runtime config Manager
// (whose "maintenance" flag can be flipped at runtime through Manager.Set
// or the admin RPC), and the router handlers are registered on before Run
// starts the server.
type App struct {
	cfg     *config.Config
	manager *config.Manager
	router  *router.Router
	mw      *middleware.Pipeline
	reactor *reactor.Reactor

	obs      *observability.Observatory
	adminRPC *rpcserver.Server

	authorize          func(*dispatch.Context) bool
	onWebSocketUpgrade func(net.Conn)
}

// New creates an application instance from cfg. Routes are registered via
// GET/POST/etc. before Run is called.
func New(cfg *config.Config) *App {
	mgr := config.NewManager()
	mgr.Set("maintenance", false)

	a := &App{
		cfg:     cfg,
		manager: mgr,
		router:  router.New(),
		mw:      middleware.NewPipeline(),
		obs:     observability.NewObservatory(),
	}
	a.mw.Use(a.maintenanceGate())
	return a
}

// Manager exposes the hot-reloadable runtime config, e.g. for an admin
// route that flips "maintenance" via Manager.Set.
func (a *App) Manager() *config.Manager { return a.manager }

// Router exposes the underlying route table for registration.
func (a *App) Router() *router.Router { return a.router }

// Use appends a middleware to the chain every route runs through, ahead
// of the route's own handler.
func (a *App) Use(h middleware.HandlerFunc) { a.mw.Use(h) }

// Handle registers handler for method and path prefix with router flags.
func (a *App) Handle(method, path string, handler router.HandlerFunc, flags router.Flags) {
	a.router.Handle(method, path, handler, flags)
}

// Observatory exposes the app's metrics hub, e.g. for tests or for a
// caller that wants to hang extra collectors off its registry.
func (a *App) Observatory() *observability.Observatory { return a.obs }

// SetAuthorizer installs the function consulted for routes registered with
// router.RequireAuth. Without one, every such route fails closed with 401.
func (a *App) SetAuthorizer(fn func(*dispatch.Context) bool) { a.authorize = fn }

// OnWebSocketUpgrade registers the callback invoked with a connection's
// raw net.Conn after a handler completes Context.UpgradeWebSocket. Typically
// wraps a core/websocket.Handler.HandleConnection call.
func (a *App) OnWebSocketUpgrade(fn func(net.Conn)) {
	a.onWebSocketUpgrade = fn
}

// maintenanceGate aborts every request with 503 while the runtime
// "maintenance" flag is set, the one knob config.Manager exists to flip
// without a restart.
func (a *App) maintenanceGate() middleware.HandlerFunc {
	return func(ctx middleware.Context) {
		if down, _ := a.manager.Get("maintenance"); down == true {
			ctx.Abort()
			ctx.String(503, "503 Service Unavailable (maintenance)")
		}
	}
}

// Run starts the reactor and blocks until a termination signal triggers a
// graceful shutdown.
func (a *App) Run() {
	opts := dispatch.Options{
		MaxHeadSize:        8192,
		MaxPostDataSize:    a.cfg.MaxPostDataSize,
		AllowPostTempFile:  a.cfg.AllowPostTempFile,
		AllowProxy:         a.cfg.AllowProxyReqs,
		KeepAliveTimeout:   a.cfg.KeepAliveTimeout,
		Authorize:          a.authorize,
		Middleware:         a.mw,
		OnWebSocketUpgrade: a.onWebSocketUpgrade,
		OnRequestComplete: func(pattern string, status int, d time.Duration) {
			a.obs.Monitor.RecordRequest(pattern, d, status >= 500)
		},
	}
	a.reactor = reactor.New(a.router, opts, reactor.Config{
		Shards:      a.cfg.Shards,
		IdleTimeout: a.cfg.KeepAliveTimeout,
	})

	a.startAdmin(a.cfg.AdminAddr, a.cfg.MetricsAddr)

	go a.awaitSignal()

	addr := fmt.Sprintf(":%d", a.cfg.Port)
	log.Printf("coroserve starting on port %d [%s]", a.cfg.Port, a.cfg.Env)

	if err := a.reactor.ListenAndServe(addr); err != nil {
		log.Fatalf("reactor: listen failed: %v", err)
	}
}

// Shutdown stops accepting new connections and waits for every shard to
// drain. ctx's deadline bounds how long callers are willing to wait; the
// reactor itself doesn't honor it today (open question: forced connection
// eviction past a deadline isn't implemented), so Shutdown returns once
// draining completes or ctx is logged as exceeded, whichever it hits.
func (a *App) Shutdown(ctx context.Context) {
	if a.adminRPC != nil {
		a.adminRPC.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		a.reactor.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("app: shutdown deadline exceeded waiting for shards to drain")
	}
}

func (a *App) awaitSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("signal received: %v, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.Shutdown(ctx)
	os.Exit(0)
}
