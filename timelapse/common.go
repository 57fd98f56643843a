package timelapse

import (
	"errors"
)

var ErrInvalidRange = errors.New("range start must not be after range end")
var ErrInvalidInterval = errors.New("snapshot interval must be positive")
var ErrInvalidScale = errors.New("scale must be greater than 0")
var ErrInvalidCatalog = errors.New("partition catalog is not valid")
var ErrInvalidGeometry = errors.New("canvas geometry timeline is not valid")
var ErrInvalidColor = errors.New("color is not valid")

// ErrUpstreamReadFailed is joined into every error caused by the event source or the keyframe store.
var ErrUpstreamReadFailed = errors.New("reading from upstream storage failed")

var ErrEventsOutOfOrder = errors.New("events arrived out of timestamp order")
var ErrNilEventSource = errors.New("nil event source supplied")
var ErrNilKeyframeStore = errors.New("nil keyframe store supplied")
var ErrNilMetricsCollector = errors.New("metrics collector must not be nil")
var ErrNilLogger = errors.New("logger must not be nil")
