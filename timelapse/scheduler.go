package timelapse

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"
)

// Schedule replays the events onto the reconstructor and yields a snapshot at every cadence tick of the window.
//
// Ticks lie at window start + k*interval (k >= 1) strictly before the window end, followed by exactly one
// snapshot at the window end. WithLeadingFrame adds a tick at the window start. An event timestamped exactly
// at a tick is applied before that tick is emitted. Idle stretches of the stream produce repeated,
// unchanged snapshots. Events after the window end are not consumed.
//
// Snapshots are produced lazily, one per pull. The sequence ends after the first error:
//   - ErrInvalidInterval when interval <= 0
//   - ErrEventsOutOfOrder when an event is older than the reconstructor cursor
//   - the event source error, joined with ErrUpstreamReadFailed
//   - ctx.Err() on cancellation, without a final snapshot
func Schedule(
	ctx context.Context,
	reconstructor *Reconstructor,
	events iter.Seq2[PlacementEvent, error],
	window DateTimeRange,
	interval time.Duration,
	options ...Option,
) iter.Seq2[Snapshot, error] {
	return func(yield func(Snapshot, error) bool) {
		s, err := newSettings(options)
		if err != nil {
			yield(Snapshot{}, err)
			return
		}

		run := scheduleRun{settings: s, reconstructor: reconstructor, window: window, interval: interval, countErrors: true}
		run.execute(ctx, events, yield)
	}
}

// Timestamps returns the instants Schedule emits snapshots at for the window and interval,
// without touching any storage. It yields nothing when interval <= 0.
func Timestamps(window DateTimeRange, interval time.Duration, options ...Option) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if interval <= 0 {
			return
		}

		s, err := newSettings(options)
		if err != nil {
			return
		}

		next := firstTick(window, interval, s.leadingFrame)

		for next.Before(window.End()) {
			if !yield(next) {
				return
			}

			next = next.Add(interval)
		}

		yield(window.End())
	}
}

// FrameCount returns how many snapshots Schedule emits for the window and interval.
func FrameCount(window DateTimeRange, interval time.Duration, options ...Option) int {
	count := 0

	for range Timestamps(window, interval, options...) {
		count++
	}

	return count
}

func firstTick(window DateTimeRange, interval time.Duration, leadingFrame bool) time.Time {
	if leadingFrame {
		return window.Start()
	}

	return window.Start().Add(interval)
}

type scheduleRun struct {
	settings
	reconstructor *Reconstructor
	window        DateTimeRange
	interval      time.Duration
	countErrors   bool

	next    time.Time
	emitted int
	applied int
}

func (run *scheduleRun) execute(
	ctx context.Context,
	events iter.Seq2[PlacementEvent, error],
	yield func(Snapshot, error) bool,
) {
	if run.interval <= 0 {
		yield(Snapshot{}, errors.Join(ErrInvalidInterval, fmt.Errorf("got %s", run.interval)))
		return
	}

	if run.fixedFrameSize {
		run.reconstructor.PinFrameSize(run.window.End())
	}

	end := run.window.End()
	run.next = firstTick(run.window, run.interval, run.leadingFrame)

	for event, err := range events {
		if err != nil {
			if !errors.Is(err, ErrUpstreamReadFailed) && ctx.Err() == nil {
				err = errors.Join(ErrUpstreamReadFailed, err)
			}

			run.fail(ctx, yield, err)
			return
		}

		if ctx.Err() != nil {
			run.fail(ctx, yield, ctx.Err())
			return
		}

		if event.Timestamp.After(end) {
			break
		}

		if event.Timestamp.Before(run.reconstructor.Cursor()) {
			run.fail(ctx, yield, errors.Join(
				ErrEventsOutOfOrder,
				fmt.Errorf("event at %s follows %s", event.Timestamp.Format(time.RFC3339Nano), run.reconstructor.Cursor().Format(time.RFC3339Nano)),
			))
			return
		}

		for run.next.Before(end) && event.Timestamp.After(run.next) {
			if !run.emit(ctx, yield, run.next) {
				return
			}

			run.next = run.next.Add(run.interval)
		}

		run.reconstructor.Apply(ctx, event)
		run.applied++
	}

	for run.next.Before(end) {
		if !run.emit(ctx, yield, run.next) {
			return
		}

		run.next = run.next.Add(run.interval)
	}

	if !run.emit(ctx, yield, end) {
		return
	}

	run.recordValue(ctx, MetricEventsApplied, float64(run.applied), nil)
}

// emit yields one snapshot and reports whether the run should continue.
func (run *scheduleRun) emit(ctx context.Context, yield func(Snapshot, error) bool, at time.Time) bool {
	if ctx.Err() != nil {
		run.fail(ctx, yield, ctx.Err())
		return false
	}

	run.emitted++
	run.incrementCounter(ctx, MetricFramesEmitted, nil)

	return yield(run.reconstructor.Snapshot(at), nil)
}

func (run *scheduleRun) fail(ctx context.Context, yield func(Snapshot, error) bool, err error) {
	if run.countErrors {
		run.incrementCounter(ctx, MetricErrors, map[string]string{LabelOperation: "schedule", LabelStatus: errorStatus(err)})
	}

	yield(Snapshot{}, err)
}

func errorStatus(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return StatusCanceled
	}

	return StatusError
}
