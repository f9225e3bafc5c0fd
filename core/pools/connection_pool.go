package pools

import "sync/atomic"

// Poolable is what the reactor's per-connection bookkeeping objects
// implement so a recycled object never leaks the previous connection's
// descriptor into the next accept.
type Poolable interface {
	Reset()
	SetFD(fd int)
}

// ConnectionPool recycles connection bookkeeping objects across accepts.
// Unlike a bare sync.Pool it is explicitly bounded: the free list holds at
// most capacity objects, so a connection burst that has long since drained
// doesn't keep thousands of idle objects alive, and anything returned
// beyond the bound simply falls to the GC.
type ConnectionPool struct {
	free    chan any
	newFunc func() any

	gets   atomic.Uint64
	puts   atomic.Uint64
	misses atomic.Uint64
}

// NewConnectionPool creates a pool bounded at capacity idle objects.
// newFunc builds a fresh object when the free list is empty.
func NewConnectionPool(capacity int, newFunc func() any) *ConnectionPool {
	if capacity <= 0 {
		capacity = 1024
	}
	return &ConnectionPool{
		free:    make(chan any, capacity),
		newFunc: newFunc,
	}
}

// Get hands out a recycled object, or a fresh one when the free list is
// empty.
func (cp *ConnectionPool) Get() any {
	cp.gets.Add(1)
	select {
	case obj := <-cp.free:
		return obj
	default:
		cp.misses.Add(1)
		return cp.newFunc()
	}
}

// Put resets obj (clearing its descriptor) and returns it to the free
// list, dropping it when the list is already at capacity.
func (cp *ConnectionPool) Put(obj any) {
	if p, ok := obj.(Poolable); ok {
		p.Reset()
	}
	cp.puts.Add(1)
	select {
	case cp.free <- obj:
	default:
	}
}

// Stats reports lifetime gets, puts, and the fraction of gets served from
// the free list rather than a fresh allocation.
func (cp *ConnectionPool) Stats() (gets, puts uint64, hitRate float64) {
	g := cp.gets.Load()
	p := cp.puts.Load()
	if g > 0 {
		hitRate = float64(g-cp.misses.Load()) / float64(g)
	}
	return g, p, hitRate
}
