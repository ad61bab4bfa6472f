package observability

import (
	"fmt"

	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"

	"github.com/prometheus/client_golang/prometheus"
)

type provider struct {
	tracer  observability.Tracer
	logger  observability.Logger
	metrics observability.Metrics
}

type registeredMetrics struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
}

func (m *registeredMetrics) Counter(name observability.MetricKey) observability.Counter {
	if c, ok := m.counters[name]; ok && c != nil {
		return c
	}
	return observability.NopCounter()
}

func (m *registeredMetrics) Histogram(name observability.MetricKey) observability.Histogram {
	if h, ok := m.histograms[name]; ok && h != nil {
		return h
	}
	return observability.NopHistogram()
}

type counterSpec struct {
	key    observability.MetricKey
	help   string
	labels []string
}

type histogramSpec struct {
	key    observability.MetricKey
	help   string
	labels []string
}

var (
	counterSpecs = []counterSpec{
		{observability.MUsecaseRequests, "Total number of use case invocations.", []string{"use_case", "outcome"}},
		{observability.MHTTPRequests, "Total number of HTTP requests.", []string{"method", "route", "status"}},
		{observability.MExternalRequests, "Calls to external peers such as the event bus.", []string{"peer", "endpoint", "outcome"}},
		{observability.MNotificationFailures, "Persistent-channel notifications that exhausted their retries.", []string{"channel", "event"}},
		{observability.MEventPublishFailures, "Count of order-related event publish failures.", []string{"event"}},
	}
	histogramSpecs = []histogramSpec{
		{observability.MUsecaseDuration, "Duration of use case execution in seconds.", []string{"use_case"}},
		{observability.MHTTPRequestDuration, "Duration of HTTP requests in seconds.", []string{"method", "route", "status"}},
		{observability.MExternalRequestDuration, "Duration of calls to external peers in seconds.", []string{"peer", "endpoint"}},
	}
)

// RegisterMetrics declares every instrument the service records on r.
func RegisterMetrics(r *prometrics.Registry) (observability.Metrics, error) {
	m := &registeredMetrics{
		counters:   make(map[observability.MetricKey]observability.Counter, len(counterSpecs)),
		histograms: make(map[observability.MetricKey]observability.Histogram, len(histogramSpecs)),
	}
	for _, s := range counterSpecs {
		c, err := r.Counter(string(s.key), s.help, s.labels...)
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", s.key, err)
		}
		m.counters[s.key] = c
	}
	for _, s := range histogramSpecs {
		h, err := r.Histogram(string(s.key), s.help, prometheus.DefBuckets, s.labels...)
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", s.key, err)
		}
		m.histograms[s.key] = h
	}
	return m, nil
}

// New assembles the Observability handed to use cases. Nil ports become no-ops.
func New(
	tracer observability.Tracer,
	logger observability.Logger,
	metrics observability.Metrics,
) observability.Observability {
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	return &provider{
		tracer:  tracer,
		logger:  logger,
		metrics: metrics,
	}
}

func (p *provider) Tracer() observability.Tracer {
	return p.tracer
}

func (p *provider) Logger() observability.Logger {
	return p.logger
}

func (p *provider) Metrics() observability.Metrics {
	return p.metrics
}
