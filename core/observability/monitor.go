package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PerformanceMonitor records per-handler request counts, error counts, and
// latency distributions as Prometheus metrics, and periodically derives a
// small set of bottleneck observations from them.
type PerformanceMonitor struct {
	registry *prometheus.Registry

	requestsTotal *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	duration      *prometheus.HistogramVec

	bottlenecks  []Bottleneck
	bottleneckMu sync.RWMutex

	statsMu sync.Mutex
	stats   map[string]*handlerStats
}

// handlerStats is the local running aggregate used to detect bottlenecks;
// the counters themselves live in Prometheus and are not read back out of
// it on the hot path.
type handlerStats struct {
	count   uint64
	errors  uint64
	totalNs uint64
}

// Bottleneck is a performance issue surfaced by periodic analysis of the
// collected metrics.
type Bottleneck struct {
	Type       string
	Location   string
	Severity   int
	Impact     float64
	DetectedAt time.Time
	Details    string
}

// NewPerformanceMonitor creates a monitor with its own Prometheus registry
// (rather than the global default registry) so multiple reactor shards, or
// tests, can each run one without colliding on metric registration.
func NewPerformanceMonitor() *PerformanceMonitor {
	pm := &PerformanceMonitor{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "httpcore_requests_total",
			Help: "Total requests served, by handler.",
		}, []string{"handler"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "httpcore_request_errors_total",
			Help: "Total requests that completed with an error, by handler.",
		}, []string{"handler"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "httpcore_request_duration_seconds",
			Help:    "Request handling latency, by handler.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}, []string{"handler"}),
		stats: make(map[string]*handlerStats),
	}
	pm.registry.MustRegister(pm.requestsTotal, pm.errorsTotal, pm.duration)
	go pm.analyzeBottlenecks()
	return pm
}

// Handler returns the /metrics HTTP handler for this monitor's registry.
// Exposed on its own HTTP listener (Config.MetricsAddr, see app.startAdmin),
// separate from the RPC admin listener and never on the serving reactor's
// own ports.
func (pm *PerformanceMonitor) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{})
}

// RecordRequest records one completed request's outcome for handler.
func (pm *PerformanceMonitor) RecordRequest(handler string, duration time.Duration, isError bool) {
	pm.requestsTotal.WithLabelValues(handler).Inc()
	pm.duration.WithLabelValues(handler).Observe(duration.Seconds())
	if isError {
		pm.errorsTotal.WithLabelValues(handler).Inc()
	}

	pm.statsMu.Lock()
	s, ok := pm.stats[handler]
	if !ok {
		s = &handlerStats{}
		pm.stats[handler] = s
	}
	s.count++
	if isError {
		s.errors++
	}
	s.totalNs += uint64(duration.Nanoseconds())
	pm.statsMu.Unlock()
}

func (pm *PerformanceMonitor) analyzeBottlenecks() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		pm.bottleneckMu.Lock()
		pm.bottlenecks = pm.detectBottlenecks()
		pm.bottleneckMu.Unlock()
	}
}

func (pm *PerformanceMonitor) detectBottlenecks() []Bottleneck {
	bottlenecks := make([]Bottleneck, 0)

	pm.statsMu.Lock()
	defer pm.statsMu.Unlock()

	for name, s := range pm.stats {
		if s.count == 0 {
			continue
		}
		avgDuration := time.Duration(s.totalNs / s.count)

		if avgDuration > 100*time.Millisecond {
			bottlenecks = append(bottlenecks, Bottleneck{
				Type:       "latency",
				Location:   name,
				Severity:   8,
				Impact:     100.0,
				DetectedAt: time.Now(),
				Details:    "high average latency",
			})
		}

		if s.errors > 0 && float64(s.errors)/float64(s.count) > 0.05 {
			bottlenecks = append(bottlenecks, Bottleneck{
				Type:       "errors",
				Location:   name,
				Severity:   10,
				Impact:     float64(s.errors) / float64(s.count) * 100,
				DetectedAt: time.Now(),
				Details:    "elevated error rate",
			})
		}
	}

	return bottlenecks
}

// GetBottlenecks returns the most recently detected bottlenecks.
func (pm *PerformanceMonitor) GetBottlenecks() []Bottleneck {
	pm.bottleneckMu.RLock()
	defer pm.bottleneckMu.RUnlock()
	return append([]Bottleneck{}, pm.bottlenecks...)
}

// StartTrace returns a start timestamp for a later EndTrace call.
func (pm *PerformanceMonitor) StartTrace() int64 {
	return time.Now().UnixNano()
}

// EndTrace records the elapsed time since StartTrace as one request.
func (pm *PerformanceMonitor) EndTrace(handler string, startTime int64, isError bool) {
	if startTime == 0 {
		return
	}
	duration := time.Duration(time.Now().UnixNano() - startTime)
	pm.RecordRequest(handler, duration, isError)
}
