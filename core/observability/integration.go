package observability

import (
	"fmt"
	"runtime"
)

// Observatory is the central observability hub: one PerformanceMonitor plus
// a GetFullReport view combining it with live runtime memory stats.
type Observatory struct {
	Monitor *PerformanceMonitor
	enabled bool
}

// NewObservatory creates a new observatory.
func NewObservatory() *Observatory {
	return &Observatory{
		Monitor: NewPerformanceMonitor(),
		enabled: true,
	}
}

// TraceHandler wraps a handler call with request/latency/error recording.
func (o *Observatory) TraceHandler(name string, fn func() error) error {
	if !o.enabled {
		return fn()
	}

	startTime := o.Monitor.StartTrace()
	err := fn()
	o.Monitor.EndTrace(name, startTime, err != nil)
	return err
}

// GetFullReport generates a report combining detected bottlenecks with
// current runtime memory statistics.
func (o *Observatory) GetFullReport() string {
	report := "=== httpcore observatory ===\n\n"

	report += "Handler performance:\n"
	bottlenecks := o.Monitor.GetBottlenecks()
	if len(bottlenecks) == 0 {
		report += "  no bottlenecks detected\n"
	} else {
		report += fmt.Sprintf("  %d bottlenecks detected:\n", len(bottlenecks))
		for i, b := range bottlenecks {
			report += fmt.Sprintf("    %d. [%s] %s - %s (severity: %d/10)\n",
				i+1, b.Type, b.Location, b.Details, b.Severity)
		}
	}

	report += "\nSystem metrics:\n"
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	report += fmt.Sprintf("  heap alloc: %d MB\n", m.HeapAlloc/(1024*1024))
	report += fmt.Sprintf("  heap objects: %d\n", m.HeapObjects)
	report += fmt.Sprintf("  gc runs: %d\n", m.NumGC)
	report += fmt.Sprintf("  goroutines: %d\n", runtime.NumGoroutine())

	return report
}

// Enable turns observability back on.
func (o *Observatory) Enable() {
	o.enabled = true
}

// Disable makes TraceHandler call through without recording. Calls made
// directly on Monitor (such as RecordRequest) still record. Already
// registered Prometheus metrics stay registered.
func (o *Observatory) Disable() {
	o.enabled = false
}
