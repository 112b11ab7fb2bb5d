package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/qvcloud/cmdgate"
)

// Metrics records dispatch counts and latencies in Prometheus.
type Metrics struct {
	dispatches *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics registers the dispatch collectors with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cmdgate_dispatches_total",
			Help: "Total number of dispatched commands by identifier and outcome.",
		}, []string{"identifier", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cmdgate_dispatch_duration_seconds",
			Help:    "Time spent dispatching a command, connect and teardown included.",
			Buckets: prometheus.DefBuckets,
		}, []string{"identifier"}),
	}

	for _, c := range []prometheus.Collector{m.dispatches, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Wrap returns a dispatcher that observes every call made through d.
func (m *Metrics) Wrap(d cmdgate.Dispatcher) cmdgate.Dispatcher {
	return cmdgate.DispatcherFunc(func(ctx context.Context, cmd cmdgate.Command, identifier string, headers cmdgate.Headers) error {
		start := time.Now()
		err := d.Dispatch(ctx, cmd, identifier, headers)

		m.duration.WithLabelValues(identifier).Observe(time.Since(start).Seconds())
		m.dispatches.WithLabelValues(identifier, cmdgate.Outcome(err)).Inc()
		return err
	})
}
