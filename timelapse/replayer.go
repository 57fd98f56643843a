package timelapse

import (
	"context"
	"errors"
	"iter"
	"time"
)

const (
	logMsgKeyframeSelected = "keyframe selected"
	logMsgSegmentsRouted   = "segments routed"
	logMsgReplayCompleted  = "replay completed"
	logMsgReplayFailed     = "replay failed"
	logMsgCloseReadFailed  = "failed to close read session"
	logAttrRunID           = "run_id"
	logAttrError           = "error"
	logAttrSegments        = "segments"
	logAttrWindow          = "window"
	logAttrFrames          = "frames"
	logAttrEvents          = "events"
	logAttrDurationMS      = "duration_ms"
	logActionFrames        = "frames"
	logActionFrameAt       = "frame_at"
)

// Replayer materializes canvas frames from an EventSource and a KeyframeStore.
// It holds no mutable state, so one Replayer may serve concurrent replays; each replay owns its Reconstructor.
type Replayer struct {
	settings
	source    EventSource
	keyframes KeyframeStore
	options   []Option
}

// NewReplayer creates a Replayer. Options are also handed to the Reconstructor of every replay.
func NewReplayer(source EventSource, keyframes KeyframeStore, options ...Option) (*Replayer, error) {
	if source == nil {
		return nil, ErrNilEventSource
	}

	if keyframes == nil {
		return nil, ErrNilKeyframeStore
	}

	s, err := newSettings(options)
	if err != nil {
		return nil, err
	}

	return &Replayer{settings: s, source: source, keyframes: keyframes, options: options}, nil
}

// Catalog returns the partition catalog replays are routed with.
func (r *Replayer) Catalog() PartitionCatalog {
	return r.catalog
}

// Geometry returns the canvas geometry timeline.
func (r *Replayer) Geometry() GeometryTimeline {
	return r.geometry
}

// Frames yields the snapshots of the window at the given cadence, see Schedule for the tick rules.
//
// The replay starts from the nearest keyframe strictly before the window start and streams
// only the segments that overlap [keyframe, window end]. The read session is released on every exit path,
// including when the caller stops iterating.
func (r *Replayer) Frames(ctx context.Context, window DateTimeRange, interval time.Duration) iter.Seq2[Snapshot, error] {
	return r.frames(ctx, window, interval, logActionFrames, r.leadingFrame)
}

// FrameAt returns the canvas as it was at the given instant, including placements timestamped exactly then.
func (r *Replayer) FrameAt(ctx context.Context, at time.Time) (Snapshot, error) {
	window, err := ClosedRange(at, at)
	if err != nil {
		return Snapshot{}, err
	}

	for snapshot, err := range r.frames(ctx, window, time.Nanosecond, logActionFrameAt, false) {
		return snapshot, err
	}

	return Snapshot{}, ctx.Err()
}

func (r *Replayer) frames(
	ctx context.Context,
	window DateTimeRange,
	interval time.Duration,
	action string,
	leadingFrame bool,
) iter.Seq2[Snapshot, error] {
	return func(yield func(Snapshot, error) bool) {
		started := time.Now()
		logArgs := []any{logAttrWindow, window.String()}

		if r.runID != "" {
			logArgs = append(logArgs, logAttrRunID, r.runID)
		}

		if interval <= 0 {
			yield(Snapshot{}, ErrInvalidInterval)
			return
		}

		fail := func(err error) {
			r.error(ctx, logMsgReplayFailed, append(logArgs, logAttrError, err.Error())...)
			r.incrementCounter(ctx, MetricErrors, map[string]string{LabelOperation: action, LabelStatus: errorStatus(err)})
			yield(Snapshot{}, err)
		}

		reconstructor, err := NewReconstructor(r.options...)
		if err != nil {
			fail(err)
			return
		}

		keyframeStarted := time.Now()

		keyframe, err := r.keyframes.NearestBefore(ctx, window.Start())
		if err != nil {
			if !errors.Is(err, ErrUpstreamReadFailed) {
				err = errors.Join(ErrUpstreamReadFailed, err)
			}

			fail(err)

			return
		}

		r.recordDuration(ctx, MetricKeyframeLoadDuration, time.Since(keyframeStarted), map[string]string{LabelOperation: action})
		r.debug(ctx, logMsgKeyframeSelected, append(logArgs, logAttrTimestamp, keyframe.Timestamp)...)

		reconstructor.LoadKeyframe(keyframe)

		// The stream range starts at the keyframe, so it can never be inverted.
		streamRange, _ := ClosedRange(keyframe.Timestamp, window.End())
		segments := r.catalog.SegmentsFor(streamRange)
		r.debug(ctx, logMsgSegmentsRouted, append(logArgs, logAttrSegments, segments)...)

		reader, err := r.source.BeginRead(ctx)
		if err != nil {
			if !errors.Is(err, ErrUpstreamReadFailed) {
				err = errors.Join(ErrUpstreamReadFailed, err)
			}

			fail(err)

			return
		}

		defer func() {
			if closeErr := reader.Close(); closeErr != nil {
				r.warn(ctx, logMsgCloseReadFailed, append(logArgs, logAttrError, closeErr.Error())...)
			}
		}()

		run := scheduleRun{settings: r.settings, reconstructor: reconstructor, window: window, interval: interval}
		run.leadingFrame = leadingFrame

		events := MergeSegments(ctx, reader, segments, streamRange.Start(), streamRange.End())

		failed := false

		run.execute(ctx, events, func(snapshot Snapshot, err error) bool {
			if err != nil {
				failed = true
				fail(err)

				return false
			}

			return yield(snapshot, nil)
		})

		if failed {
			return
		}

		r.recordDuration(ctx, MetricRenderDuration, time.Since(started), map[string]string{LabelOperation: action})
		r.info(
			ctx,
			logMsgReplayCompleted,
			append(logArgs,
				logAttrFrames, run.emitted,
				logAttrEvents, run.applied,
				logAttrDurationMS, time.Since(started).Milliseconds(),
			)...,
		)
	}
}

// MergeSegments concatenates the streams of the given segments, in order, into one sequence.
// Events outside [from, until] are dropped.
func MergeSegments(
	ctx context.Context,
	reader EventReader,
	segments []string,
	from, until time.Time,
) iter.Seq2[PlacementEvent, error] {
	return func(yield func(PlacementEvent, error) bool) {
		for _, segment := range segments {
			for event, err := range reader.Stream(ctx, segment, from, until) {
				if err != nil {
					yield(PlacementEvent{}, err)
					return
				}

				if event.Timestamp.Before(from) || event.Timestamp.After(until) {
					continue
				}

				if !yield(event, nil) {
					return
				}
			}
		}
	}
}
