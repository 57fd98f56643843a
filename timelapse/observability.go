package timelapse

import (
	"context"
	"time"
)

// Logger interface for query logging, replay progress, warnings, and error reporting.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ContextualLogger interface for context-aware logging.
// *slog.Logger satisfies both Logger and ContextualLogger. When both are configured, the contextual one wins.
type ContextualLogger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// MetricsCollector interface for collecting replay and storage performance metrics.
type MetricsCollector interface {
	RecordDuration(metric string, duration time.Duration, labels map[string]string)
	IncrementCounter(metric string, labels map[string]string)
	RecordValue(metric string, value float64, labels map[string]string)
}

// ContextualMetricsCollector extends MetricsCollector with context-aware methods.
// This interface is optional - components use the context-aware methods when available, falling back to
// the base MetricsCollector interface otherwise.
type ContextualMetricsCollector interface {
	MetricsCollector
	RecordDurationContext(ctx context.Context, metric string, duration time.Duration, labels map[string]string)
	IncrementCounterContext(ctx context.Context, metric string, labels map[string]string)
	RecordValueContext(ctx context.Context, metric string, value float64, labels map[string]string)
}

// Metric names shared by the core and the storage engines.
const (
	MetricFramesEmitted        = "timelapse_frames_emitted_total"
	MetricEventsApplied        = "timelapse_events_applied"
	MetricRenderDuration       = "timelapse_render_duration_seconds"
	MetricKeyframeLoadDuration = "timelapse_keyframe_load_duration_seconds"
	MetricKeyframeSaveDuration = "timelapse_keyframe_save_duration_seconds"
	MetricSegmentQueryDuration = "timelapse_segment_query_duration_seconds"
	MetricImportDuration       = "timelapse_import_duration_seconds"
	MetricPlacementsImported   = "timelapse_placements_imported"
	MetricClippedRectangles    = "timelapse_clipped_rectangles_total"
	MetricErrors               = "timelapse_errors_total"
)

// Metric label keys and values.
const (
	LabelOperation = "operation"
	LabelStatus    = "status"
	LabelSegment   = "segment"

	StatusSuccess  = "success"
	StatusError    = "error"
	StatusCanceled = "canceled"
)

// observer bundles the optional logging and metrics dependencies of a component.
// A zero observer is valid and does nothing.
type observer struct {
	logger           Logger
	contextualLogger ContextualLogger
	metrics          MetricsCollector
}

func (o observer) debug(ctx context.Context, msg string, args ...any) {
	if o.contextualLogger != nil {
		o.contextualLogger.DebugContext(ctx, msg, args...)
		return
	}

	if o.logger != nil {
		o.logger.Debug(msg, args...)
	}
}

func (o observer) info(ctx context.Context, msg string, args ...any) {
	if o.contextualLogger != nil {
		o.contextualLogger.InfoContext(ctx, msg, args...)
		return
	}

	if o.logger != nil {
		o.logger.Info(msg, args...)
	}
}

func (o observer) warn(ctx context.Context, msg string, args ...any) {
	if o.contextualLogger != nil {
		o.contextualLogger.WarnContext(ctx, msg, args...)
		return
	}

	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}

func (o observer) error(ctx context.Context, msg string, args ...any) {
	if o.contextualLogger != nil {
		o.contextualLogger.ErrorContext(ctx, msg, args...)
		return
	}

	if o.logger != nil {
		o.logger.Error(msg, args...)
	}
}

func (o observer) recordDuration(ctx context.Context, metric string, d time.Duration, labels map[string]string) {
	if o.metrics == nil {
		return
	}

	if c, ok := o.metrics.(ContextualMetricsCollector); ok {
		c.RecordDurationContext(ctx, metric, d, labels)
		return
	}

	o.metrics.RecordDuration(metric, d, labels)
}

func (o observer) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if o.metrics == nil {
		return
	}

	if c, ok := o.metrics.(ContextualMetricsCollector); ok {
		c.IncrementCounterContext(ctx, metric, labels)
		return
	}

	o.metrics.IncrementCounter(metric, labels)
}

func (o observer) recordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if o.metrics == nil {
		return
	}

	if c, ok := o.metrics.(ContextualMetricsCollector); ok {
		c.RecordValueContext(ctx, metric, value, labels)
		return
	}

	o.metrics.RecordValue(metric, value, labels)
}
