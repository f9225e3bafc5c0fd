package pools

import (
	"runtime"
	"runtime/debug"
)

// The reactor's steady state is allocation-light by design (pooled head
// buffers, per-Task stack values), so the GC's
// default cadence mostly burns CPU re-scanning a heap that barely grew
// between cycles. OptimizeForHighThroughput trades some resident memory
// for fewer cycles, which on a saturated shard is a straight latency win.

// GCTuning is the knob set OptimizeForHighThroughput applies; exported so
// an embedding application can apply its own numbers instead.
type GCTuning struct {
	// Percent is handed to debug.SetGCPercent; <= 0 leaves the runtime
	// default in place.
	Percent int

	// SoftLimit is handed to debug.SetMemoryLimit; <= 0 leaves it
	// unset. The limit backstops the raised Percent so a pathological
	// workload still collects before the host OOMs.
	SoftLimit int64

	// Ballast, when > 0, establishes a heap baseline after an initial
	// collection so the first traffic burst doesn't trigger a storm of
	// early cycles while the heap finds its working size.
	Ballast int64
}

// ballast keeps the Ballast allocation reachable for the life of the
// process.
var ballast []byte

// Apply installs the tuning.
func (t GCTuning) Apply() {
	if t.Percent > 0 {
		debug.SetGCPercent(t.Percent)
	}
	if t.SoftLimit > 0 {
		debug.SetMemoryLimit(t.SoftLimit)
	}
	if t.Ballast > 0 {
		runtime.GC()
		ballast = make([]byte, t.Ballast)
	}
}

// OptimizeForHighThroughput applies the serving-engine defaults: collect a
// third as often as the runtime would, from a 100 MB baseline.
func OptimizeForHighThroughput() {
	GCTuning{
		Percent: 300,
		Ballast: 100 << 20,
	}.Apply()
}
