package gateway

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const outcomeSuccess = "success"

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(registerer prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "im_console",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Number of gateway requests partitioned by method and outcome.",
		}, []string{"method", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "im_console",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Duration of gateway requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	if registerer == nil {
		return m
	}
	m.requests = register(registerer, m.requests)
	m.duration = register(registerer, m.duration)
	return m
}

// register registers c and returns the collector which is registered, which is the existing one if
// another client registered before.
func register[C prometheus.Collector](registerer prometheus.Registerer, c C) C {
	err := registerer.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	panic(err)
}

func (m *metrics) observe(method string, start time.Time, err error) {
	outcome := outcomeSuccess
	if e, ok := AsError(err); ok {
		outcome = e.Kind.String()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}
