// Package metrics exposes Prometheus counters/gauges for permission
// resolutions, active upstream polls and pending-action throughput, plus a
// line-protocol encoder for shipping the same values to a metrics sink.
// Like internal/audit, this is purely additive: nothing here feeds back
// into resolver or registry decisions.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the broker's Prometheus metrics, plus a mutex-protected
// mirror of the same values so lineprotocol.go can encode a snapshot
// without walking the Prometheus registry. A nil *Collector is safe to
// call methods on; every method is a no-op in that case, so callers can
// wire metrics optionally without littering nil checks.
type Collector struct {
	resolutions    *prometheus.CounterVec
	pollsActive    prometheus.Gauge
	pendingActions *prometheus.CounterVec

	mu                 sync.Mutex
	resolutionCounts   map[string]int64
	pollsActiveCount   int64
	pendingActionCount map[string]int64
}

// New creates and registers a Collector against reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dsbroker_permission_resolutions_total",
			Help: "Permission resolutions performed, partitioned by resulting level.",
		}, []string{"level"}),
		pollsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dsbroker_upstream_polls_active",
			Help: "Number of upstream entries with a running poll.",
		}),
		pendingActions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dsbroker_pending_actions_total",
			Help: "Pending actions applied to upstream polls, partitioned by action kind.",
		}, []string{"action"}),
		resolutionCounts:   make(map[string]int64),
		pendingActionCount: make(map[string]int64),
	}
	reg.MustRegister(c.resolutions, c.pollsActive, c.pendingActions)
	return c
}

// ObserveResolution records one permission resolution's resulting level.
func (c *Collector) ObserveResolution(level string) {
	if c == nil {
		return
	}
	c.resolutions.WithLabelValues(level).Inc()
	c.mu.Lock()
	c.resolutionCounts[level]++
	c.mu.Unlock()
}

// SetPollsActive sets the current count of entries with a running poll.
func (c *Collector) SetPollsActive(n int) {
	if c == nil {
		return
	}
	c.pollsActive.Set(float64(n))
	c.mu.Lock()
	c.pollsActiveCount = int64(n)
	c.mu.Unlock()
}

// ObservePendingAction records one applied pending action.
func (c *Collector) ObservePendingAction(action string) {
	if c == nil {
		return
	}
	c.pendingActions.WithLabelValues(action).Inc()
	c.mu.Lock()
	c.pendingActionCount[action]++
	c.mu.Unlock()
}

// snapshot is a point-in-time copy of every counter, used by
// EncodeLineProtocol.
type snapshot struct {
	resolutionCounts   map[string]int64
	pollsActiveCount   int64
	pendingActionCount map[string]int64
}

func (c *Collector) snapshot() snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := snapshot{
		resolutionCounts:   make(map[string]int64, len(c.resolutionCounts)),
		pollsActiveCount:   c.pollsActiveCount,
		pendingActionCount: make(map[string]int64, len(c.pendingActionCount)),
	}
	for k, v := range c.resolutionCounts {
		s.resolutionCounts[k] = v
	}
	for k, v := range c.pendingActionCount {
		s.pendingActionCount[k] = v
	}
	return s
}
