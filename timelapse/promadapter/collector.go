// Package promadapter exposes timelapse metrics through the Prometheus client library.
//
// Collector implements timelapse.MetricsCollector. Vectors are created on first use, with the label
// names of that first call: durations become histograms, counters become counters and values become gauges.
package promadapter

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector maps MetricsCollector calls onto lazily registered Prometheus vectors.
type Collector struct {
	registerer prometheus.Registerer
	buckets    []float64
	mu         sync.Mutex
	histograms map[string]vector[*prometheus.HistogramVec]
	counters   map[string]vector[*prometheus.CounterVec]
	gauges     map[string]vector[*prometheus.GaugeVec]
}

type vector[V any] struct {
	vec    V
	labels []string
}

// Option configures a Collector.
type Option func(*Collector)

// WithBuckets overrides the histogram buckets, in seconds.
func WithBuckets(buckets ...float64) Option {
	return func(c *Collector) {
		c.buckets = buckets
	}
}

// NewCollector creates a Collector registering its vectors with registerer.
func NewCollector(registerer prometheus.Registerer, options ...Option) *Collector {
	c := &Collector{
		registerer: registerer,
		buckets:    prometheus.ExponentialBuckets(0.001, 4, 10),
		histograms: make(map[string]vector[*prometheus.HistogramVec]),
		counters:   make(map[string]vector[*prometheus.CounterVec]),
		gauges:     make(map[string]vector[*prometheus.GaugeVec]),
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// RecordDuration observes duration in seconds on the histogram named metric.
func (c *Collector) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.histograms[metric]
	if !ok {
		names := labelNames(labels)
		v = vector[*prometheus.HistogramVec]{labels: names, vec: register(c.registerer, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: metric, Help: helpFor(metric), Buckets: c.buckets},
			names,
		))}
		c.histograms[metric] = v
	}

	v.vec.WithLabelValues(labelValues(v.labels, labels)...).Observe(duration.Seconds())
}

// IncrementCounter adds one to the counter named metric.
func (c *Collector) IncrementCounter(metric string, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.counters[metric]
	if !ok {
		names := labelNames(labels)
		v = vector[*prometheus.CounterVec]{labels: names, vec: register(c.registerer, prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: metric, Help: helpFor(metric)},
			names,
		))}
		c.counters[metric] = v
	}

	v.vec.WithLabelValues(labelValues(v.labels, labels)...).Inc()
}

// RecordValue sets the gauge named metric to value.
func (c *Collector) RecordValue(metric string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.gauges[metric]
	if !ok {
		names := labelNames(labels)
		v = vector[*prometheus.GaugeVec]{labels: names, vec: register(c.registerer, prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: metric, Help: helpFor(metric)},
			names,
		))}
		c.gauges[metric] = v
	}

	v.vec.WithLabelValues(labelValues(v.labels, labels)...).Set(value)
}

// register registers collector, reusing an identical collector that is already registered.
func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}

	return collector
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// labelValues orders values by names. Labels missing from the call are empty, unknown labels are dropped.
func labelValues(names []string, labels map[string]string) []string {
	values := make([]string, len(names))
	for i, name := range names {
		values[i] = labels[name]
	}

	return values
}

func helpFor(metric string) string {
	return "Timelapse metric " + metric + "."
}
