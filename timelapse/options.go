package timelapse

// Option defines a functional option for configuring a Replayer, a Reconstructor or a Schedule run.
// Options that do not concern the configured component are ignored by it.
type Option func(*settings) error

type settings struct {
	observer
	catalog        PartitionCatalog
	geometry       GeometryTimeline
	fixedFrameSize bool
	leadingFrame   bool
	runID          string
}

func newSettings(options []Option) (settings, error) {
	s := settings{}

	for _, option := range options {
		if err := option(&s); err != nil {
			return settings{}, err
		}
	}

	if s.catalog.IsEmpty() {
		s.catalog = DefaultPartitionCatalog()
	}

	if s.geometry.IsEmpty() {
		s.geometry = DefaultGeometryTimeline()
	}

	return s, nil
}

// WithCatalog replaces DefaultPartitionCatalog.
func WithCatalog(catalog PartitionCatalog) Option {
	return func(s *settings) error {
		if catalog.IsEmpty() {
			return ErrInvalidCatalog
		}

		s.catalog = catalog

		return nil
	}
}

// WithGeometry replaces DefaultGeometryTimeline.
func WithGeometry(geometry GeometryTimeline) Option {
	return func(s *settings) error {
		if geometry.IsEmpty() {
			return ErrInvalidGeometry
		}

		s.geometry = geometry

		return nil
	}
}

// WithLogger sets the logger.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: segment routing and keyframe selection
// Info level: completed replays with frame and event counts, durations
// Warn level: non-critical issues like clipped rectangles or failed session cleanup
// Error level: failures that abort a replay.
func WithLogger(logger Logger) Option {
	return func(s *settings) error {
		if logger == nil {
			return ErrNilLogger
		}

		s.logger = logger

		return nil
	}
}

// WithContextualLogger sets the contextual logger. It takes precedence over WithLogger.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(s *settings) error {
		if logger == nil {
			return ErrNilLogger
		}

		s.contextualLogger = logger

		return nil
	}
}

// WithMetrics sets the metrics collector.
// It receives frame and event counters, render and keyframe load durations, and error counters.
func WithMetrics(collector MetricsCollector) Option {
	return func(s *settings) error {
		if collector == nil {
			return ErrNilMetricsCollector
		}

		s.metrics = collector

		return nil
	}
}

// WithFixedFrameSize makes every frame of a replay use the canvas size valid at the window end,
// which video encoders need.
func WithFixedFrameSize() Option {
	return func(s *settings) error {
		s.fixedFrameSize = true
		return nil
	}
}

// WithLeadingFrame additionally emits a frame at the window start.
func WithLeadingFrame() Option {
	return func(s *settings) error {
		s.leadingFrame = true
		return nil
	}
}

// WithRunID attaches an identifier to every log line of a replay.
func WithRunID(runID string) Option {
	return func(s *settings) error {
		s.runID = runID
		return nil
	}
}
