package pools

import "sync"

// Head buffers come in a handful of sizes: the reactor hands out one head
// buffer per connection (dispatch.Options.MaxHeadSize, 8 KiB by default)
// through dispatch.Options.AcquireHeadBuffer. The dispatcher's POST-drain
// scratch buffer is allocated by the dispatcher itself, not taken from
// here. One sync.Pool per size class keeps head-buffer allocations off the
// per-connection path without a single pool degenerating into a grab bag
// of mismatched capacities.
var headBufferClasses = [...]int{
	4 << 10,  // small head configurations
	8 << 10,  // default request head
	16 << 10, // oversized-head configurations
	64 << 10, // the largest head worth pooling
}

// BytePool hands out byte slices by size class. Slices above the largest
// class are allocated directly and dropped on Put; pooling one-off giants
// would only pin memory.
type BytePool struct {
	classes [len(headBufferClasses)]sync.Pool
}

// NewBytePool creates a pool over the engine's standard size classes.
func NewBytePool() *BytePool {
	bp := &BytePool{}
	for i, size := range headBufferClasses {
		sz := size
		bp.classes[i].New = func() any {
			buf := make([]byte, sz)
			return &buf
		}
	}
	return bp
}

// Get returns a slice of exactly size bytes, backed by the smallest class
// that fits it.
func (bp *BytePool) Get(size int) []byte {
	for i, class := range headBufferClasses {
		if size <= class {
			buf := *bp.classes[i].Get().(*[]byte)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put recycles a slice previously handed out by Get. The backing array is
// matched to its class by capacity; anything that didn't come from a
// class, or was regrown by the caller, is left to the GC.
func (bp *BytePool) Put(buf []byte) {
	c := cap(buf)
	for i, class := range headBufferClasses {
		if c == class {
			full := buf[:c]
			bp.classes[i].Put(&full)
			return
		}
	}
}
