package postgresengine

import (
	"context"
	"math"
	"time"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
)

// logQueryWithDuration logs SQL queries with execution time at debug level if a logger is configured.
func (es *EventStore) logQueryWithDuration(
	ctx context.Context,
	sqlQuery string,
	action string,
	duration time.Duration,
) {
	es.logDebug(ctx, logMsgSQLExecuted+action, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
}

func (es *EventStore) logDebug(ctx context.Context, msg string, args ...any) {
	switch {
	case es.contextualLogger != nil:
		es.contextualLogger.DebugContext(ctx, msg, args...)
	case es.logger != nil:
		es.logger.Debug(msg, args...)
	}
}

// logOperation logs operational information at info level if a logger is configured.
func (es *EventStore) logOperation(ctx context.Context, msg string, args ...any) {
	switch {
	case es.contextualLogger != nil:
		es.contextualLogger.InfoContext(ctx, msg, args...)
	case es.logger != nil:
		es.logger.Info(msg, args...)
	}
}

func (es *EventStore) logWarning(ctx context.Context, msg string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	switch {
	case es.contextualLogger != nil:
		es.contextualLogger.WarnContext(ctx, msg, allArgs...)
	case es.logger != nil:
		es.logger.Warn(msg, allArgs...)
	}
}

// logError logs error information at the error level if a logger is configured.
func (es *EventStore) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	switch {
	case es.contextualLogger != nil:
		es.contextualLogger.ErrorContext(ctx, msg, allArgs...)
	case es.logger != nil:
		es.logger.Error(msg, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// recordErrorMetrics records an error counter if a metrics collector is configured.
func (es *EventStore) recordErrorMetrics(ctx context.Context, operation string) {
	status := timelapse.StatusError
	if ctx.Err() != nil {
		status = timelapse.StatusCanceled
	}

	es.incrementCounter(ctx, timelapse.MetricErrors, map[string]string{
		timelapse.LabelOperation: operation,
		timelapse.LabelStatus:    status,
	})
}

// recordDurationMetrics records a duration with context if the collector supports it.
func (es *EventStore) recordDurationMetrics(
	ctx context.Context,
	metricName string,
	duration time.Duration,
	labels map[string]string,
) {
	if es.metricsCollector == nil {
		return
	}

	// Use context-aware method if available
	if contextualCollector, ok := es.metricsCollector.(timelapse.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metricName, duration, labels)
		return
	}

	es.metricsCollector.RecordDuration(metricName, duration, labels)
}

// recordValueMetrics records a value with context if the collector supports it.
func (es *EventStore) recordValueMetrics(
	ctx context.Context,
	metricName string,
	value float64,
	labels map[string]string,
) {
	if es.metricsCollector == nil {
		return
	}

	// Use context-aware method if available
	if contextualCollector, ok := es.metricsCollector.(timelapse.ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metricName, value, labels)
		return
	}

	es.metricsCollector.RecordValue(metricName, value, labels)
}

func (es *EventStore) incrementCounter(ctx context.Context, metricName string, labels map[string]string) {
	if es.metricsCollector == nil {
		return
	}

	// Use context-aware method if available
	if contextualCollector, ok := es.metricsCollector.(timelapse.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metricName, labels)
		return
	}

	es.metricsCollector.IncrementCounter(metricName, labels)
}

func operationLabels(operation, status string) map[string]string {
	return map[string]string{
		timelapse.LabelOperation: operation,
		timelapse.LabelStatus:    status,
	}
}
