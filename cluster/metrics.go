package cluster

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the observability addendum SPEC_FULL.md adds to the
// dispatcher, grounded on sa6mwa-lockd's Prometheus wiring.
type Metrics struct {
	Redirects       prometheus.Counter
	DispatchSeconds prometheus.Histogram
}

// NewMetrics builds the two dispatcher metrics and registers them if
// reg is non-nil. Passing a nil registry is valid — the returned
// Metrics still works, it just isn't exported anywhere.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Redirects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cluster_redirects_total",
			Help: "Count of MOVED/ASK redirects handled by the cluster dispatcher.",
		}),
		DispatchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "cluster_dispatch_seconds",
			Help: "Wall-clock time to dispatch and collect one cluster pipeline.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Redirects, m.DispatchSeconds)
	}
	return m
}
