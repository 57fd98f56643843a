package badgerengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/testutil/helper"
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse/badgerengine"
)

var t0 = time.Date(2022, time.April, 2, 10, 0, 0, 0, time.UTC)

func openStore(t *testing.T, options ...badgerengine.Option) *badgerengine.KeyframeStore {
	t.Helper()

	geometry, err := timelapse.NewGeometryTimeline(timelapse.GeometryEpoch{EffectiveFrom: t0.Add(-time.Hour), Width: 4, Height: 4})
	require.NoError(t, err)

	store, err := badgerengine.OpenInMemory(append([]badgerengine.Option{badgerengine.WithGeometry(geometry)}, options...)...)
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	return store
}

func keyframeAt(t *testing.T, at time.Time, c timelapse.Color) timelapse.Keyframe {
	t.Helper()

	keyframe, err := timelapse.BuildKeyframe(timelapse.BlankFrame(4, 4, c), at)
	require.NoError(t, err)

	return keyframe
}

func Test_KeyframeStore_NearestBeforeFallsBackToBlank(t *testing.T) {
	// setup
	store := openStore(t)

	// act
	keyframe, err := store.NearestBefore(context.Background(), t0)

	// assert
	require.NoError(t, err)
	assert.True(t, keyframe.Timestamp.Equal(t0.Add(-time.Hour)))
	assert.Equal(t, timelapse.White, keyframe.Frame.ColorAt(0, 0))
}

func Test_KeyframeStore_NearestBeforeIsStrict(t *testing.T) {
	// setup
	ctx := context.Background()
	store := openStore(t)
	red := timelapse.Color{R: 0xFF}
	blue := timelapse.Color{B: 0xFF}

	// arrange
	require.NoError(t, store.Put(ctx, keyframeAt(t, t0, red)))
	require.NoError(t, store.Put(ctx, keyframeAt(t, t0.Add(time.Hour), blue)))

	tests := []struct {
		name              string
		target            time.Time
		expectedTimestamp time.Time
		expectedColor     timelapse.Color
	}{
		{name: "at_first", target: t0, expectedTimestamp: t0.Add(-time.Hour), expectedColor: timelapse.White},
		{name: "after_first", target: t0.Add(time.Nanosecond), expectedTimestamp: t0, expectedColor: red},
		{name: "at_second", target: t0.Add(time.Hour), expectedTimestamp: t0, expectedColor: red},
		{name: "after_second", target: t0.Add(2 * time.Hour), expectedTimestamp: t0.Add(time.Hour), expectedColor: blue},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			keyframe, err := store.NearestBefore(ctx, tc.target)

			// assert
			require.NoError(t, err)
			assert.True(t, keyframe.Timestamp.Equal(tc.expectedTimestamp), "got %s", keyframe.Timestamp)
			assert.Equal(t, tc.expectedColor, keyframe.Frame.ColorAt(2, 2))
		})
	}
}

func Test_KeyframeStore_PutNeverOverwrites(t *testing.T) {
	// setup
	ctx := context.Background()
	store := openStore(t)
	require.NoError(t, store.Put(ctx, keyframeAt(t, t0, timelapse.Color{G: 0xFF})))

	// act
	err := store.Put(ctx, keyframeAt(t, t0, timelapse.Color{R: 0xFF}))
	keyframe, loadErr := store.NearestBefore(ctx, t0.Add(time.Second))

	// assert
	assert.ErrorIs(t, err, timelapse.ErrKeyframeAlreadyExists)
	require.NoError(t, loadErr)
	assert.Equal(t, timelapse.Color{G: 0xFF}, keyframe.Frame.ColorAt(0, 0))
}

func Test_KeyframeStore_PutRejectsInvalidKeyframe(t *testing.T) {
	// setup
	store := openStore(t)

	// act
	err := store.Put(context.Background(), timelapse.Keyframe{Timestamp: t0})

	// assert
	assert.ErrorIs(t, err, timelapse.ErrInvalidKeyframe)
}

func Test_KeyframeStore_TimestampsAscending(t *testing.T) {
	// setup
	ctx := context.Background()
	store := openStore(t)
	beforeEpoch := time.Date(1969, time.July, 20, 20, 17, 0, 0, time.UTC)

	// arrange
	for _, at := range []time.Time{t0.Add(time.Hour), beforeEpoch, t0} {
		require.NoError(t, store.Put(ctx, keyframeAt(t, at, timelapse.White)))
	}

	// act
	timestamps, err := store.Timestamps(ctx)

	// assert
	require.NoError(t, err)
	require.Len(t, timestamps, 3)
	assert.True(t, timestamps[0].Equal(beforeEpoch))
	assert.True(t, timestamps[1].Equal(t0))
	assert.True(t, timestamps[2].Equal(t0.Add(time.Hour)))
}

func Test_KeyframeStore_Observability(t *testing.T) {
	// setup
	ctx := context.Background()
	logger, logSpy := helper.NewSpyLogger()
	metricsSpy := helper.NewContextualMetricsCollectorSpy()
	store := openStore(t, badgerengine.WithContextualLogger(logger), badgerengine.WithMetrics(metricsSpy))

	// act
	require.NoError(t, store.Put(ctx, keyframeAt(t, t0, timelapse.White)))
	_, err := store.NearestBefore(ctx, t0.Add(time.Minute))

	// assert
	require.NoError(t, err)
	assert.True(t, logSpy.HasInfoLogWithMessage("keyframe saved").WithDurationMS().Assert())
	assert.True(t, logSpy.HasInfoLogWithMessage("keyframe loaded").WithAttr("timestamp").Assert())
	assert.True(t, metricsSpy.HasDurationRecordForMetric(timelapse.MetricKeyframeLoadDuration).WithOperation("load_keyframe").Assert())
	assert.Positive(t, metricsSpy.GetContextCallCount())
}

func Test_Open_RejectsInvalidOptions(t *testing.T) {
	// act
	_, err := badgerengine.OpenInMemory(badgerengine.WithLogger(nil))

	// assert
	assert.ErrorIs(t, err, timelapse.ErrNilLogger)
}
