package helper

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
)

type metricKind int

const (
	durationMetric metricKind = iota
	counterMetric
	valueMetric
)

type metricRecord struct {
	kind   metricKind
	metric string
	value  float64
	labels map[string]string
}

// MetricsCollectorSpy records every metrics call for assertions.
type MetricsCollectorSpy struct {
	mu           sync.Mutex
	records      []metricRecord
	recordCalls  bool
	contextCalls int
}

// NewMetricsCollectorSpy creates a spy. With recordCalls false it accepts and drops every call.
func NewMetricsCollectorSpy(recordCalls bool) *MetricsCollectorSpy {
	return &MetricsCollectorSpy{recordCalls: recordCalls}
}

func (s *MetricsCollectorSpy) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	s.record(metricRecord{kind: durationMetric, metric: metric, value: duration.Seconds(), labels: labels})
}

func (s *MetricsCollectorSpy) IncrementCounter(metric string, labels map[string]string) {
	s.record(metricRecord{kind: counterMetric, metric: metric, value: 1, labels: labels})
}

func (s *MetricsCollectorSpy) RecordValue(metric string, value float64, labels map[string]string) {
	s.record(metricRecord{kind: valueMetric, metric: metric, value: value, labels: labels})
}

func (s *MetricsCollectorSpy) record(r metricRecord) {
	if !s.recordCalls {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r.labels = maps.Clone(r.labels)
	s.records = append(s.records, r)
}

func (s *MetricsCollectorSpy) matching(kind metricKind, metric string) []metricRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found []metricRecord

	for _, r := range s.records {
		if r.kind == kind && r.metric == metric {
			found = append(found, r)
		}
	}

	return found
}

// HasDurationRecordForMetric starts a fluent chain over the duration records of metric.
func (s *MetricsCollectorSpy) HasDurationRecordForMetric(metric string) *MetricRecordMatcher {
	return &MetricRecordMatcher{candidates: s.matching(durationMetric, metric), wanted: map[string]string{}}
}

// HasCounterRecordForMetric starts a fluent chain over the counter records of metric.
func (s *MetricsCollectorSpy) HasCounterRecordForMetric(metric string) *MetricRecordMatcher {
	return &MetricRecordMatcher{candidates: s.matching(counterMetric, metric), wanted: map[string]string{}}
}

// CountCounterRecordsForMetric counts the increments of metric.
func (s *MetricsCollectorSpy) CountCounterRecordsForMetric(metric string) int {
	return len(s.matching(counterMetric, metric))
}

// SumValueRecordsForMetric adds up all recorded values of metric.
func (s *MetricsCollectorSpy) SumValueRecordsForMetric(metric string) float64 {
	sum := 0.0
	for _, r := range s.matching(valueMetric, metric) {
		sum += r.value
	}

	return sum
}

// MetricRecordMatcher matches when at least one candidate record carries all wanted labels.
type MetricRecordMatcher struct {
	candidates []metricRecord
	wanted     map[string]string
}

func (m *MetricRecordMatcher) WithOperation(operation string) *MetricRecordMatcher {
	m.wanted[timelapse.LabelOperation] = operation
	return m
}

func (m *MetricRecordMatcher) WithStatus(status string) *MetricRecordMatcher {
	m.wanted[timelapse.LabelStatus] = status
	return m
}

// Assert reports whether a record satisfied the chain.
func (m *MetricRecordMatcher) Assert() bool {
	for _, r := range m.candidates {
		matched := true

		for key, value := range m.wanted {
			if got, ok := r.labels[key]; !ok || got != value {
				matched = false
				break
			}
		}

		if matched {
			return true
		}
	}

	return false
}

// ContextualMetricsCollectorSpy also implements ContextualMetricsCollector and counts the context-aware calls.
type ContextualMetricsCollectorSpy struct {
	*MetricsCollectorSpy
}

// NewContextualMetricsCollectorSpy creates a recording ContextualMetricsCollectorSpy.
func NewContextualMetricsCollectorSpy() *ContextualMetricsCollectorSpy {
	return &ContextualMetricsCollectorSpy{MetricsCollectorSpy: NewMetricsCollectorSpy(true)}
}

func (s *ContextualMetricsCollectorSpy) RecordDurationContext(
	_ context.Context,
	metric string,
	duration time.Duration,
	labels map[string]string,
) {
	s.countContextCall()
	s.RecordDuration(metric, duration, labels)
}

func (s *ContextualMetricsCollectorSpy) IncrementCounterContext(_ context.Context, metric string, labels map[string]string) {
	s.countContextCall()
	s.IncrementCounter(metric, labels)
}

func (s *ContextualMetricsCollectorSpy) RecordValueContext(
	_ context.Context,
	metric string,
	value float64,
	labels map[string]string,
) {
	s.countContextCall()
	s.RecordValue(metric, value, labels)
}

// GetContextCallCount returns how many context-aware calls were made.
func (s *ContextualMetricsCollectorSpy) GetContextCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.contextCalls
}

func (s *ContextualMetricsCollectorSpy) countContextCall() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contextCalls++
}
