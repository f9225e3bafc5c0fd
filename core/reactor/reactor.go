// Package reactor wires the task substrate, the read-buffer pump, the
// HTTP dispatcher and the platform poller into the serving loop: an
// accept loop hands each new socket to one of N shards, and each shard is
// a single goroutine that owns one poller and resumes exactly one Task at
// a time in response to readiness events. A shard hosts many Tasks;
// exactly one of them runs at any instant on that shard.
//
// Request-line and header parsing never happen here; they are delegated
// entirely to core/httpproto and core/dispatch. What's left is purely the
// reactor loop, sharded for multi-core scaling.
package reactor

import (
	"errors"
	"log"
	"net"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coroweb/httpcore/core/dispatch"
	"github.com/coroweb/httpcore/core/poller"
	"github.com/coroweb/httpcore/core/pools"
	"github.com/coroweb/httpcore/core/pump"
	"github.com/coroweb/httpcore/core/router"
	"github.com/coroweb/httpcore/core/task"
)

// Config bounds the reactor's own behavior; the per-request limits live on
// dispatch.Options.
type Config struct {
	// Shards is the number of poller goroutines connections are spread
	// across. 0 means runtime.GOMAXPROCS(0).
	Shards int

	// IdleTimeout closes a connection that has sat between requests
	// (StateReading, no bytes yet) longer than this.
	IdleTimeout time.Duration
}

func (c Config) shardCount() int {
	if c.Shards > 0 {
		return c.Shards
	}
	return runtime.GOMAXPROCS(0)
}

func (c Config) idleTimeout() time.Duration {
	if c.IdleTimeout > 0 {
		return c.IdleTimeout
	}
	return 60 * time.Second
}

// Reactor owns the listening socket and a fixed set of shards.
type Reactor struct {
	router *router.Router
	opts   dispatch.Options
	cfg    Config

	bytePool *pools.BytePool
	connPool *pools.ConnectionPool
	admit    *pools.WorkerPool

	shards []*shard
	next   atomic.Uint64

	lfd     int
	lnFile  *os.File // kept alive so its finalizer never closes lfd under us
	closing atomic.Bool
	wg      sync.WaitGroup
}

// pooledConn is the bookkeeping object core/pools.ConnectionPool recycles
// across accepted sockets: just enough state for idle-timeout sweeps, the
// rest (buffers, parsed request, Task) is owned by the Task's own call
// stack inside dispatch.ServeConnection.
type pooledConn struct {
	fd         int
	shardID    int
	lastActive int64 // unix nanos, written by the shard goroutine only
}

func (c *pooledConn) Reset()       { c.fd = -1 }
func (c *pooledConn) SetFD(fd int) { c.fd = fd }

// New creates a Reactor bound to rt and opts, ready for ListenAndServe.
func New(rt *router.Router, opts dispatch.Options, cfg Config) *Reactor {
	pools.OptimizeForHighThroughput()

	bytePool := pools.NewBytePool()
	rc := &Reactor{
		router:   rt,
		cfg:      cfg,
		bytePool: bytePool,
	}
	rc.opts = opts
	rc.opts.AcquireHeadBuffer = func(size int) []byte { return bytePool.Get(size) }
	rc.opts.ReleaseHeadBuffer = func(buf []byte) { bytePool.Put(buf) }

	rc.connPool = pools.NewConnectionPool(4096, func() any {
		return &pooledConn{fd: -1}
	})

	shardCount := cfg.shardCount()
	// admit is a work-stealing pool sized one-per-shard: finishing a new
	// connection's sockopts and handing it to its shard happens off the
	// accept loop, so a burst of accepts never blocks behind a slow shard.
	rc.admit = pools.NewWorkerPool(shardCount)

	rc.shards = make([]*shard, shardCount)
	for i := range rc.shards {
		rc.shards[i] = newShard(i, rc)
	}
	return rc
}

// ListenAndServe binds addr, starts every shard's event loop, and blocks
// accepting connections until Shutdown is called.
func (rc *Reactor) ListenAndServe(addr string) error {
	lfd, lnFile, err := bindListener(addr)
	if err != nil {
		return err
	}
	rc.lfd = lfd
	rc.lnFile = lnFile

	acceptPoller, err := poller.NewPoller()
	if err != nil {
		lnFile.Close()
		return err
	}
	if err := acceptPoller.Add(lfd); err != nil {
		acceptPoller.Close()
		lnFile.Close()
		return err
	}

	for _, s := range rc.shards {
		rc.wg.Add(1)
		go func(s *shard) {
			defer rc.wg.Done()
			s.run()
		}(s)
	}

	log.Printf("reactor: listening on %s across %d shards", addr, len(rc.shards))

	for !rc.closing.Load() {
		fds, err := acceptPoller.Wait(200)
		if err != nil {
			if rc.closing.Load() {
				break
			}
			log.Printf("reactor: accept poller wait error: %v", err)
			continue
		}
		for _, fd := range fds {
			if fd != lfd {
				continue
			}
			rc.acceptAll(lfd)
		}
	}

	acceptPoller.Close()
	lnFile.Close()
	return nil
}

// Shutdown stops the accept loop and every shard's event loop. Each shard
// then tears down every connection it still holds, idle or mid-request: a
// Task parked at a yield point is resumed with task.Shutdown so it unwinds
// through its deferred actions, and its descriptor is closed. In-flight
// transactions are not awaited.
func (rc *Reactor) Shutdown() {
	if rc.closing.Swap(true) {
		return
	}
	for _, s := range rc.shards {
		s.stop()
	}
	rc.admit.Close()
	rc.wg.Wait()
}

// bindListener leans on net.ListenTCP for address resolution and
// dual-stack binding, then hands the raw descriptor over to the poller;
// the net.Listener itself is discarded once its fd is duplicated out from
// under it.
func bindListener(addr string) (int, *os.File, error) {
	laddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return -1, nil, err
	}
	ln, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return -1, nil, err
	}
	defer ln.Close()

	lnFile, err := ln.File()
	if err != nil {
		return -1, nil, err
	}
	lfd := int(lnFile.Fd())
	if err := syscall.SetNonblock(lfd, true); err != nil {
		lnFile.Close()
		return -1, nil, err
	}
	return lfd, lnFile, nil
}

func (rc *Reactor) acceptAll(lfd int) {
	for {
		nfd, _, err := syscall.Accept(lfd)
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
				return
			}
			log.Printf("reactor: accept error: %v", err)
			return
		}
		if err := syscall.SetNonblock(nfd, true); err != nil {
			syscall.Close(nfd)
			continue
		}
		syscall.SetsockoptInt(nfd, syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1)
		syscall.SetsockoptInt(nfd, syscall.SOL_SOCKET, syscall.SO_KEEPALIVE, 1)

		idx := rc.next.Add(1) % uint64(len(rc.shards))
		target := rc.shards[idx]
		if !rc.admit.Submit(func() { target.admit(nfd) }) {
			// Submit refuses only once the pool is closed (a full pool runs
			// the task inline itself): admit inline rather than drop the socket.
			target.admit(nfd)
		}
	}
}

// shard is a single goroutine owning one poller and the Tasks for every
// connection currently assigned to it.
type shard struct {
	id     int
	rc     *Reactor
	poller poller.Poller
	tasks  map[int]*task.Task
	conns  map[int]*pooledConn
	mu     sync.Mutex

	incoming chan int
	stopCh   chan struct{}
}

func newShard(id int, rc *Reactor) *shard {
	return &shard{
		id:       id,
		rc:       rc,
		tasks:    make(map[int]*task.Task),
		conns:    make(map[int]*pooledConn),
		incoming: make(chan int, 256),
		stopCh:   make(chan struct{}),
	}
}

func (s *shard) stop() {
	close(s.stopCh)
}

// admit queues fd for this shard's event loop to pick up. Called from the
// Reactor's admit worker pool or inline on the accept loop, never from
// s.run's own goroutine.
func (s *shard) admit(fd int) {
	select {
	case s.incoming <- fd:
	case <-s.stopCh:
		syscall.Close(fd)
	}
}

func (s *shard) run() {
	p, err := poller.NewPoller()
	if err != nil {
		log.Printf("reactor: shard %d poller init failed: %v", s.id, err)
		return
	}
	s.poller = p
	defer p.Close()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			s.drain()
			return
		case fd := <-s.incoming:
			s.start(fd)
		case <-ticker.C:
			s.sweepIdle()
		default:
		}

		fds, err := s.poller.Wait(100)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			s.resume(fd)
		}
	}
}

func (s *shard) start(fd int) {
	t := task.New(connEntry, connEntryData{shard: s, fd: fd})

	c := s.rc.connPool.Get().(*pooledConn)
	c.SetFD(fd)
	c.shardID = s.id
	c.lastActive = time.Now().UnixNano()

	s.mu.Lock()
	s.tasks[fd] = t
	s.conns[fd] = c
	s.mu.Unlock()

	if err := s.poller.Add(fd); err != nil {
		s.close(fd)
		return
	}
	s.resume(fd)
}

type connEntryData struct {
	shard *shard
	fd    int
}

// connEntry is every Task's EntryFunc: it drives one connection's whole
// keep-alive lifetime (the pipelined-request loop lives inside
// dispatch.ServeConnection itself) and returns once the connection closes.
func connEntry(t *task.Task, data any) int {
	d := data.(connEntryData)
	r := pump.RawReader{FD: d.fd}
	w := &rawWriter{t: t, fd: d.fd}
	dispatch.ServeConnection(t, r, w, d.fd, d.shard.rc.router, d.shard.rc.opts)
	return 0
}

// resume hands control to fd's Task and acts on what it yields: toggling
// write-readiness on the poller, or tearing the connection down on Abort
// or natural completion.
func (s *shard) resume(fd int) {
	s.mu.Lock()
	t, ok := s.tasks[fd]
	if ok {
		c := s.conns[fd]
		c.lastActive = time.Now().UnixNano()
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	v := t.Resume(nil)
	switch v {
	case task.WantRead:
		s.poller.Writable(fd, false)
	case task.WantWrite:
		s.poller.Writable(fd, true)
	case task.WantReadWrite:
		s.poller.Writable(fd, true)
	case task.Yield:
		s.resume(fd)
	case task.SuspendTimer:
		// No per-connection timer wheel yet; the connection simply waits
		// for its next readiness event. Documented as an open question.
	case task.Abort:
		s.close(fd)
	default:
		if t.Finished() {
			s.close(fd)
		}
	}
}

func (s *shard) close(fd int) {
	s.mu.Lock()
	c, ok := s.conns[fd]
	t := s.tasks[fd]
	delete(s.tasks, fd)
	delete(s.conns, fd)
	s.mu.Unlock()

	if !ok {
		return
	}
	s.poller.Remove(fd)

	// Unwind the Task before the fd goes away: every yield point returns
	// an error on a Shutdown resume, so the goroutine runs its deferred
	// actions and finishes instead of staying parked forever (or worse,
	// touching a recycled descriptor). The bound only guards against a
	// handler that yields indefinitely; a well-behaved unwind takes a
	// handful of resumes.
	if t != nil {
		for i := 0; i < 128 && !t.Finished(); i++ {
			t.Resume(task.Shutdown)
		}
		t.Free()
	}

	syscall.Close(fd)
	s.rc.connPool.Put(c)
}

func (s *shard) sweepIdle() {
	cutoff := time.Now().Add(-s.rc.cfg.idleTimeout()).UnixNano()
	s.mu.Lock()
	var stale []int
	for fd, c := range s.conns {
		if c.lastActive < cutoff {
			stale = append(stale, fd)
		}
	}
	s.mu.Unlock()
	for _, fd := range stale {
		s.close(fd)
	}
}

func (s *shard) drain() {
	s.mu.Lock()
	fds := make([]int, 0, len(s.conns))
	for fd := range s.conns {
		fds = append(fds, fd)
	}
	s.mu.Unlock()
	for _, fd := range fds {
		s.close(fd)
	}
}

// errShutdown is what rawWriter returns when the shard tears the
// connection down while a write is parked on readiness.
var errShutdown = errors.New("reactor: connection shutting down")

// rawWriter adapts a non-blocking socket to dispatch.Writer, retrying
// EAGAIN/EINTR by yielding WantWrite back to the shard rather than
// blocking the goroutine, and looping over partial writes.
type rawWriter struct {
	t  *task.Task
	fd int
}

func (w *rawWriter) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := syscall.Write(w.fd, p[total:])
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) {
				if w.t.Yield(task.WantWrite) == task.Shutdown {
					return total, errShutdown
				}
				continue
			}
			if errors.Is(err, syscall.EINTR) {
				continue
			}
			return total, err
		}
		total += n
	}
	return total, nil
}
