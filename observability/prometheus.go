package observability

import (
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// AmountBuckets spans single units up to 10^30, wide enough for byte counts
// and 128-bit balances alike.
var AmountBuckets = prometheus.ExponentialBuckets(1, 10, 31)

// PrometheusFactory is a MetricFactory that registers client_golang
// collectors. Dotted metric names become underscore-separated.
type PrometheusFactory struct {
	reg     prometheus.Registerer
	buckets []float64
}

// NewPrometheusFactory creates a factory that registers with reg. A nil reg
// means prometheus.DefaultRegisterer.
func NewPrometheusFactory(reg prometheus.Registerer) *PrometheusFactory {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusFactory{reg: reg, buckets: AmountBuckets}
}

// WithBuckets overrides the histogram buckets.
func (f *PrometheusFactory) WithBuckets(buckets []float64) *PrometheusFactory {
	f.buckets = buckets
	return f
}

// Counter implements MetricFactory.
func (f *PrometheusFactory) Counter(name string) Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: metricName(name),
		Help: name,
	})
	return register(f.reg, c).(prometheus.Counter) //nolint:forcetypeassert // same collector kind
}

// Histogram implements MetricFactory.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    metricName(name),
		Help:    name,
		Buckets: f.buckets,
	})
	return register(f.reg, h).(prometheus.Histogram) //nolint:forcetypeassert // same collector kind
}

// register adds c to reg, reusing a collector already registered under the
// same name.
func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

func metricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}
