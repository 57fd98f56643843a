package timelapse_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/testutil/helper"
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
)

func Test_Reconstructor_ApplyLastWriteWins(t *testing.T) {
	// setup
	ctx := context.Background()
	r := newReconstructor(t)

	// act
	r.Apply(ctx, pixel(t0, 1, 1, red))
	r.Apply(ctx, pixel(t0.Add(time.Second), 1, 1, blue))
	snapshot := r.Snapshot(t0.Add(time.Second))

	// assert
	assert.Equal(t, blue, snapshot.Frame.ColorAt(1, 1))
	assert.Equal(t, timelapse.White, snapshot.Frame.ColorAt(0, 0))
	assert.Equal(t, t0.Add(time.Second), r.Cursor())
}

func Test_Reconstructor_SnapshotFollowsGeometry(t *testing.T) {
	// setup
	r := newReconstructor(t)

	// act
	first := r.Snapshot(t0)
	second := r.Snapshot(t0.Add(time.Hour))
	third := r.Snapshot(t0.Add(3 * time.Hour))

	// assert
	assert.Equal(t, [2]int{4, 4}, [2]int{first.Frame.Width(), first.Frame.Height()})
	assert.Equal(t, [2]int{8, 4}, [2]int{second.Frame.Width(), second.Frame.Height()})
	assert.Equal(t, [2]int{8, 8}, [2]int{third.Frame.Width(), third.Frame.Height()})
	assert.Equal(t, t0.Add(time.Hour), second.Timestamp)
}

func Test_Reconstructor_PinFrameSize(t *testing.T) {
	// setup
	r := newReconstructor(t)

	// act
	r.PinFrameSize(t0.Add(3 * time.Hour))
	snapshot := r.Snapshot(t0)

	// assert
	assert.Equal(t, 8, snapshot.Frame.Width())
	assert.Equal(t, 8, snapshot.Frame.Height())
}

func Test_Reconstructor_SnapshotDoesNotAlias(t *testing.T) {
	// setup
	ctx := context.Background()
	r := newReconstructor(t)

	// arrange
	r.Apply(ctx, pixel(t0, 0, 0, red))
	before := r.Snapshot(t0)

	// act
	r.Apply(ctx, pixel(t0.Add(time.Second), 0, 0, green))

	// assert
	assert.Equal(t, red, before.Frame.ColorAt(0, 0))
}

func Test_Reconstructor_LoadKeyframe(t *testing.T) {
	// setup
	ctx := context.Background()
	r := newReconstructor(t)
	r.Apply(ctx, pixel(t0, 6, 6, red))

	// arrange
	keyframe, err := timelapse.BuildKeyframe(timelapse.BlankFrame(4, 4, green), t0.Add(time.Minute))
	require.NoError(t, err)

	// act
	r.LoadKeyframe(keyframe)
	snapshot := r.Snapshot(t0.Add(3 * time.Hour))

	// assert
	assert.Equal(t, keyframe.Timestamp, r.Cursor())
	assert.Equal(t, green, snapshot.Frame.ColorAt(3, 3))
	assert.Equal(t, timelapse.White, snapshot.Frame.ColorAt(4, 0), "cells outside the keyframe are background")
	assert.Equal(t, timelapse.White, snapshot.Frame.ColorAt(6, 6), "earlier writes are discarded")
}

func Test_Reconstructor_ClipsAndWarnsOnce(t *testing.T) {
	// setup
	ctx := context.Background()
	logger, logSpy := helper.NewSpyLogger()
	metricsSpy := helper.NewMetricsCollectorSpy(true)

	r, err := timelapse.NewReconstructor(
		timelapse.WithGeometry(smallGeometry(t)),
		timelapse.WithLogger(logger),
		timelapse.WithMetrics(metricsSpy),
	)
	require.NoError(t, err)

	// act
	r.Apply(ctx, timelapse.BuildRectanglePlacementEvent(t0, 6, 6, 5, 5, red, nil))
	r.Apply(ctx, pixel(t0, 100, 100, red))
	snapshot := r.Snapshot(t0.Add(3 * time.Hour))

	// assert
	assert.Equal(t, 2, r.ClippedCount())
	assert.Equal(t, 1, logSpy.CountLogsWithMessage(slog.LevelWarn, "placement rectangle clipped to canvas"))
	assert.Equal(t, 2, metricsSpy.CountCounterRecordsForMetric(timelapse.MetricClippedRectangles))
	assert.Equal(t, red, snapshot.Frame.ColorAt(7, 7))
}

func Test_Reconstructor_DeterministicAndRechunkable(t *testing.T) {
	// setup
	ctx := context.Background()
	events := []timelapse.PlacementEvent{
		pixel(t0, 0, 0, red),
		pixel(t0.Add(time.Second), 1, 0, green),
		timelapse.BuildRectanglePlacementEvent(t0.Add(2*time.Second), 0, 0, 2, 2, blue, nil),
		pixel(t0.Add(3*time.Second), 1, 1, red),
		pixel(t0.Add(4*time.Second), 3, 3, green),
	}

	replay := func(chunks ...[]timelapse.PlacementEvent) timelapse.Frame {
		r := newReconstructor(t)
		for _, chunk := range chunks {
			for _, e := range chunk {
				r.Apply(ctx, e)
			}
		}

		return r.Snapshot(t0.Add(time.Minute)).Frame
	}

	// act
	whole := replay(events)
	again := replay(events)
	split := replay(events[:2], events[2:])

	// assert
	assert.True(t, whole.Equal(again))
	assert.True(t, whole.Equal(split))
	assert.Equal(t, blue, whole.ColorAt(0, 1))
	assert.Equal(t, red, whole.ColorAt(1, 1))
}
