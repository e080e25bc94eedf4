package jsonrpc

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer is told about every finished call. code is 0 on success.
// Calls rejected before a handler ran report a zero duration.
type Observer interface {
	Observe(method string, kind Kind, code int, elapsed time.Duration)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(method string, kind Kind, code int, elapsed time.Duration)

func (f ObserverFunc) Observe(method string, kind Kind, code int, elapsed time.Duration) {
	f(method, kind, code, elapsed)
}

type nopObserver struct{}

func (nopObserver) Observe(string, Kind, int, time.Duration) {}

// PrometheusObserver records call counts and latencies. Unknown method
// names are folded into a single label value.
type PrometheusObserver struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusObserver creates the collectors under namespace and
// registers them with reg.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	o := &PrometheusObserver{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "jsonrpc",
				Name:      "calls_total",
				Help:      "Total number of JSON-RPC calls dispatched.",
			},
			[]string{"method", "kind", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "jsonrpc",
				Name:      "call_duration_seconds",
				Help:      "Duration of JSON-RPC handler execution.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
			},
			[]string{"method", "kind"},
		),
	}
	for _, c := range []prometheus.Collector{o.calls, o.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *PrometheusObserver) Observe(method string, kind Kind, code int, elapsed time.Duration) {
	k := kind.String()
	o.calls.WithLabelValues(method, k, strconv.Itoa(code)).Inc()
	if elapsed > 0 {
		o.duration.WithLabelValues(method, k).Observe(elapsed.Seconds())
	}
}
