package timelapse_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/testutil/fakes"
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/testutil/helper"
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
)

func newReplayer(
	t *testing.T,
	source timelapse.EventSource,
	keyframes timelapse.KeyframeStore,
	options ...timelapse.Option,
) *timelapse.Replayer {
	t.Helper()

	options = append(options, timelapse.WithGeometry(smallGeometry(t)), timelapse.WithCatalog(smallCatalog(t)))

	replayer, err := timelapse.NewReplayer(source, keyframes, options...)
	require.NoError(t, err)

	return replayer
}

func Test_NewReplayer_RejectsNilCollaborators(t *testing.T) {
	// setup
	source := fakes.NewEventSource(smallCatalog(t))
	keyframes := fakes.NewKeyframeStore(smallGeometry(t))

	// act
	_, sourceErr := timelapse.NewReplayer(nil, keyframes)
	_, keyframesErr := timelapse.NewReplayer(source, nil)
	_, optionErr := timelapse.NewReplayer(source, keyframes, timelapse.WithLogger(nil))

	// assert
	assert.ErrorIs(t, sourceErr, timelapse.ErrNilEventSource)
	assert.ErrorIs(t, keyframesErr, timelapse.ErrNilKeyframeStore)
	assert.ErrorIs(t, optionErr, timelapse.ErrNilLogger)
}

func Test_Replayer_FramesAcrossSegments(t *testing.T) {
	// setup
	ctx := context.Background()
	source := fakes.NewEventSource(
		smallCatalog(t),
		pixel(t0.Add(-30*time.Minute), 0, 0, red),
		pixel(t0.Add(10*time.Minute), 1, 0, green),
		pixel(t0.Add(70*time.Minute), 5, 0, blue),
	)
	keyframes := fakes.NewKeyframeStore(smallGeometry(t))
	replayer := newReplayer(t, source, keyframes)
	window := mustRange(t, t0, t0.Add(80*time.Minute), true, false)

	// act
	snapshots, err := collect(t, replayer.Frames(ctx, window, 30*time.Minute))

	// assert
	require.NoError(t, err)
	assert.Equal(t,
		[]time.Time{t0.Add(30 * time.Minute), t0.Add(60 * time.Minute), t0.Add(80 * time.Minute)},
		timestampsOf(snapshots),
	)
	assert.Equal(t, red, snapshots[0].Frame.ColorAt(0, 0), "history before the window is replayed")
	assert.Equal(t, green, snapshots[0].Frame.ColorAt(1, 0))
	assert.Equal(t, 4, snapshots[0].Frame.Width())
	assert.Equal(t, 8, snapshots[2].Frame.Width(), "canvas grew at t0+1h")
	assert.Equal(t, blue, snapshots[2].Frame.ColorAt(5, 0))
	assert.Equal(t, []string{"seg1", "seg2", "seg3"}, source.StreamedSegments())
	assert.Equal(t, 0, source.OpenReaders())
	assert.Equal(t, []time.Time{t0}, keyframes.Lookups())
}

func Test_Replayer_StartsFromNearestKeyframe(t *testing.T) {
	// setup
	ctx := context.Background()
	keyframe, err := timelapse.BuildKeyframe(timelapse.BlankFrame(4, 4, green), t0.Add(20*time.Minute))
	require.NoError(t, err)

	source := fakes.NewEventSource(
		smallCatalog(t),
		pixel(t0.Add(-30*time.Minute), 0, 0, red),
		pixel(t0.Add(20*time.Minute), 1, 1, blue),
		pixel(t0.Add(45*time.Minute), 2, 2, red),
	)
	keyframes := fakes.NewKeyframeStore(smallGeometry(t), keyframe)
	replayer := newReplayer(t, source, keyframes)
	window := mustRange(t, t0.Add(30*time.Minute), t0.Add(50*time.Minute), true, false)

	// act
	snapshots, err := collect(t, replayer.Frames(ctx, window, 10*time.Minute))

	// assert
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, green, snapshots[0].Frame.ColorAt(0, 0), "events before the keyframe are not replayed")
	assert.Equal(t, blue, snapshots[0].Frame.ColorAt(1, 1), "events at the keyframe instant are replayed")
	assert.Equal(t, green, snapshots[0].Frame.ColorAt(2, 2))
	assert.Equal(t, red, snapshots[1].Frame.ColorAt(2, 2))
	assert.Equal(t, []string{"seg2"}, source.StreamedSegments(), "segments before the keyframe are pruned")
}

func Test_Replayer_FrameAt(t *testing.T) {
	// setup
	ctx := context.Background()
	source := fakes.NewEventSource(
		smallCatalog(t),
		pixel(t0, 0, 0, red),
		pixel(t0.Add(time.Minute), 0, 0, blue),
		pixel(t0.Add(2*time.Minute), 0, 0, green),
	)
	replayer := newReplayer(t, source, fakes.NewKeyframeStore(smallGeometry(t)))

	// act
	snapshot, err := replayer.FrameAt(ctx, t0.Add(time.Minute))

	// assert
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Minute), snapshot.Timestamp)
	assert.Equal(t, blue, snapshot.Frame.ColorAt(0, 0))
	assert.Equal(t, 0, source.OpenReaders())
}

func Test_Replayer_KeyframeLoadFailure(t *testing.T) {
	// setup
	ctx := context.Background()
	source := fakes.NewEventSource(smallCatalog(t))
	keyframes := fakes.NewKeyframeStore(smallGeometry(t))
	keyframes.FailLoad(errors.New("disk gone"))
	logger, logSpy := helper.NewSpyLogger()
	metricsSpy := helper.NewMetricsCollectorSpy(true)
	replayer := newReplayer(t, source, keyframes, timelapse.WithLogger(logger), timelapse.WithMetrics(metricsSpy))
	window := mustRange(t, t0, t0.Add(time.Minute), true, false)

	// act
	snapshots, err := collect(t, replayer.Frames(ctx, window, time.Second))

	// assert
	assert.ErrorIs(t, err, timelapse.ErrUpstreamReadFailed)
	assert.Empty(t, snapshots)
	assert.True(t, logSpy.HasErrorLogWithMessage("replay failed").WithAttr("error").Assert())
	assert.True(t, metricsSpy.HasCounterRecordForMetric(timelapse.MetricErrors).WithStatus(timelapse.StatusError).Assert())
	assert.Equal(t, 0, source.OpenReaders())
}

func Test_Replayer_BeginReadFailure(t *testing.T) {
	// setup
	ctx := context.Background()
	source := fakes.NewEventSource(smallCatalog(t))
	source.FailBeginRead(errors.New("too many connections"))
	replayer := newReplayer(t, source, fakes.NewKeyframeStore(smallGeometry(t)))
	window := mustRange(t, t0, t0.Add(time.Minute), true, false)

	// act
	_, err := collect(t, replayer.Frames(ctx, window, time.Second))

	// assert
	assert.ErrorIs(t, err, timelapse.ErrUpstreamReadFailed)
}

func Test_Replayer_SegmentFailureReleasesReader(t *testing.T) {
	// setup
	ctx := context.Background()
	storageErr := errors.New("connection reset")
	source := fakes.NewEventSource(
		smallCatalog(t),
		pixel(t0.Add(5*time.Minute), 0, 0, red),
		pixel(t0.Add(65*time.Minute), 0, 0, blue),
	)
	source.FailSegment("seg3", 1, storageErr)
	replayer := newReplayer(t, source, fakes.NewKeyframeStore(smallGeometry(t)))
	window := mustRange(t, t0, t0.Add(90*time.Minute), true, false)

	// act
	snapshots, err := collect(t, replayer.Frames(ctx, window, 30*time.Minute))

	// assert
	assert.ErrorIs(t, err, storageErr)
	assert.ErrorIs(t, err, timelapse.ErrUpstreamReadFailed)
	assert.Equal(t, []time.Time{t0.Add(30 * time.Minute), t0.Add(60 * time.Minute)}, timestampsOf(snapshots), "no frame after the failure point")
	assert.Equal(t, 0, source.OpenReaders())
}

func Test_Replayer_ConsumerStopReleasesReader(t *testing.T) {
	// setup
	ctx := context.Background()
	source := fakes.NewEventSource(smallCatalog(t), pixel(t0.Add(5*time.Minute), 0, 0, red))
	replayer := newReplayer(t, source, fakes.NewKeyframeStore(smallGeometry(t)))
	window := mustRange(t, t0, t0.Add(time.Hour), true, false)

	// act
	for _, err := range replayer.Frames(ctx, window, time.Minute) {
		require.NoError(t, err)
		break
	}

	// assert
	assert.Equal(t, 0, source.OpenReaders())
}

func Test_Replayer_CancellationReleasesReader(t *testing.T) {
	// setup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := fakes.NewEventSource(smallCatalog(t))
	replayer := newReplayer(t, source, fakes.NewKeyframeStore(smallGeometry(t)))
	window := mustRange(t, t0, t0.Add(time.Hour), true, false)
	frames := 0
	var gotErr error

	// act
	for _, err := range replayer.Frames(ctx, window, time.Minute) {
		if err != nil {
			gotErr = err
			continue
		}

		frames++
		cancel()
	}

	// assert
	assert.ErrorIs(t, gotErr, context.Canceled)
	assert.Equal(t, 1, frames)
	assert.Equal(t, 0, source.OpenReaders())
}

func Test_Replayer_FixedFrameSize(t *testing.T) {
	// setup
	ctx := context.Background()
	source := fakes.NewEventSource(smallCatalog(t))
	replayer := newReplayer(t, source, fakes.NewKeyframeStore(smallGeometry(t)), timelapse.WithFixedFrameSize())
	window := mustRange(t, t0, t0.Add(90*time.Minute), true, false)

	// act
	snapshots, err := collect(t, replayer.Frames(ctx, window, 30*time.Minute))

	// assert
	require.NoError(t, err)
	require.NotEmpty(t, snapshots)

	for _, s := range snapshots {
		assert.Equal(t, 8, s.Frame.Width())
		assert.Equal(t, 4, s.Frame.Height())
	}
}

func Test_Replayer_LogsCompletion(t *testing.T) {
	// setup
	ctx := context.Background()
	logger, logSpy := helper.NewSpyLogger()
	source := fakes.NewEventSource(smallCatalog(t), pixel(t0.Add(time.Minute), 0, 0, red))
	replayer := newReplayer(
		t, source, fakes.NewKeyframeStore(smallGeometry(t)),
		timelapse.WithContextualLogger(logger),
		timelapse.WithRunID("run-1"),
	)
	window := mustRange(t, t0, t0.Add(2*time.Minute), true, false)

	// act
	_, err := collect(t, replayer.Frames(ctx, window, time.Minute))

	// assert
	require.NoError(t, err)
	assert.True(t, logSpy.HasInfoLogWithMessage("replay completed").WithDurationMS().WithAttrValue("run_id", "run-1").Assert())
	assert.True(t, logSpy.HasDebugLogWithMessage("segments routed").WithAttr("segments").Assert())
}

func Test_Replayer_InvalidInterval(t *testing.T) {
	// setup
	ctx := context.Background()
	source := fakes.NewEventSource(smallCatalog(t))
	replayer := newReplayer(t, source, fakes.NewKeyframeStore(smallGeometry(t)))
	window := mustRange(t, t0, t0.Add(time.Minute), true, false)

	// act
	_, err := collect(t, replayer.Frames(ctx, window, 0))

	// assert
	assert.ErrorIs(t, err, timelapse.ErrInvalidInterval)
	assert.Equal(t, 0, source.OpenReaders())
}

func Test_Replayer_FailureCountedOnce(t *testing.T) {
	// setup
	ctx := context.Background()
	source := fakes.NewEventSource(smallCatalog(t), pixel(t0.Add(5*time.Minute), 0, 0, red))
	source.FailSegment("seg2", 1, errors.New("connection reset"))
	metricsSpy := helper.NewMetricsCollectorSpy(true)
	replayer := newReplayer(t, source, fakes.NewKeyframeStore(smallGeometry(t)), timelapse.WithMetrics(metricsSpy))
	window := mustRange(t, t0, t0.Add(30*time.Minute), true, false)

	// act
	_, err := collect(t, replayer.Frames(ctx, window, 10*time.Minute))

	// assert
	assert.ErrorIs(t, err, timelapse.ErrUpstreamReadFailed)
	assert.Equal(t, 1, metricsSpy.CountCounterRecordsForMetric(timelapse.MetricErrors))
	assert.True(t, metricsSpy.HasCounterRecordForMetric(timelapse.MetricErrors).WithOperation("frames").WithStatus(timelapse.StatusError).Assert())
	assert.False(t, metricsSpy.HasCounterRecordForMetric(timelapse.MetricErrors).WithOperation("schedule").Assert())
}

func Test_Replayer_UnsortedSegment(t *testing.T) {
	// setup
	ctx := context.Background()
	source := fakes.NewEventSource(smallCatalog(t))
	source.PutSegment("seg2",
		pixel(t0.Add(20*time.Minute), 0, 0, red),
		pixel(t0.Add(10*time.Minute), 1, 1, blue),
	)
	replayer := newReplayer(t, source, fakes.NewKeyframeStore(smallGeometry(t)))
	window := mustRange(t, t0, t0.Add(30*time.Minute), true, false)

	// act
	snapshots, err := collect(t, replayer.Frames(ctx, window, 5*time.Minute))

	// assert
	assert.ErrorIs(t, err, timelapse.ErrEventsOutOfOrder)
	assert.Equal(t,
		[]time.Time{t0.Add(5 * time.Minute), t0.Add(10 * time.Minute), t0.Add(15 * time.Minute)},
		timestampsOf(snapshots),
		"frames before the out of order placement are still emitted",
	)
	assert.Equal(t, 0, source.OpenReaders())
}
