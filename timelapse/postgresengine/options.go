package postgresengine

import (
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
)

// Option defines a functional option for configuring EventStore.
type Option func(*EventStore) error

// WithEventsTableName sets the name of the table holding the raw placements.
func WithEventsTableName(tableName string) Option {
	return func(es *EventStore) error {
		if tableName == "" {
			return ErrEmptyTableName
		}

		es.eventsTableName = tableName

		return nil
	}
}

// WithKeyframesTableName sets the name of the table holding the keyframes.
func WithKeyframesTableName(tableName string) Option {
	return func(es *EventStore) error {
		if tableName == "" {
			return ErrEmptyTableName
		}

		es.keyframesTableName = tableName

		return nil
	}
}

// WithCatalog sets the partition catalog used to resolve segment views.
func WithCatalog(catalog timelapse.PartitionCatalog) Option {
	return func(es *EventStore) error {
		if catalog.IsEmpty() {
			return timelapse.ErrInvalidCatalog
		}

		es.catalog = catalog

		return nil
	}
}

// WithGeometry sets the geometry timeline used to build the blank fallback keyframe.
func WithGeometry(geometry timelapse.GeometryTimeline) Option {
	return func(es *EventStore) error {
		if geometry.IsEmpty() {
			return timelapse.ErrInvalidGeometry
		}

		es.geometry = geometry

		return nil
	}
}

// WithDirectTableReads makes Stream read the events table restricted to the segment's range
// instead of the per-segment materialized view. Useful before CreateSegmentViews has run.
func WithDirectTableReads() Option {
	return func(es *EventStore) error {
		es.directTableReads = true
		return nil
	}
}

// WithImportBatchSize sets the number of rows per INSERT statement when the COPY protocol is not available.
func WithImportBatchSize(size int) Option {
	return func(es *EventStore) error {
		if size < 1 || size > maxImportBatchSize {
			return ErrInvalidBatchSize
		}

		es.importBatchSize = size

		return nil
	}
}

// WithLogger sets the logger for the EventStore.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL queries with execution timing (development use)
// Info level: Segment streams, keyframe loads, imports with row counts and durations (production-safe)
// Warn level: Non-critical issues like cleanup failures
// Error level: Critical failures that cause operation failures.
func WithLogger(logger timelapse.Logger) Option {
	return func(es *EventStore) error {
		if logger == nil {
			return timelapse.ErrNilLogger
		}

		es.logger = logger

		return nil
	}
}

// WithContextualLogger sets the contextual logger for the EventStore.
// When set, it takes precedence over the plain logger.
func WithContextualLogger(logger timelapse.ContextualLogger) Option {
	return func(es *EventStore) error {
		if logger == nil {
			return timelapse.ErrNilLogger
		}

		es.contextualLogger = logger

		return nil
	}
}

// WithMetrics sets the metrics collector for the EventStore.
// The collector receives segment query, keyframe load/save and import durations, imported row counts and errors.
// Collectors implementing timelapse.ContextualMetricsCollector receive the request context.
func WithMetrics(collector timelapse.MetricsCollector) Option {
	return func(es *EventStore) error {
		if collector == nil {
			return timelapse.ErrNilMetricsCollector
		}

		es.metricsCollector = collector

		return nil
	}
}
