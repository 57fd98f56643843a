package timelapse_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
)

func Test_GeometryTimeline_At(t *testing.T) {
	geometry := timelapse.DefaultGeometryTimeline()

	tests := []struct {
		name           string
		at             time.Time
		expectedWidth  int
		expectedHeight int
	}{
		{name: "before_start", at: time.Date(2022, 4, 1, 12, 0, 0, 0, time.UTC), expectedWidth: 1000, expectedHeight: 1000},
		{name: "first_epoch", at: time.Date(2022, 4, 2, 0, 0, 0, 0, time.UTC), expectedWidth: 1000, expectedHeight: 1000},
		{name: "exactly_second_epoch", at: time.Date(2022, 4, 2, 16, 25, 0, 0, time.UTC), expectedWidth: 2000, expectedHeight: 1000},
		{name: "just_before_third_epoch", at: time.Date(2022, 4, 3, 19, 3, 59, 0, time.UTC), expectedWidth: 2000, expectedHeight: 1000},
		{name: "third_epoch", at: time.Date(2022, 4, 4, 0, 0, 0, 0, time.UTC), expectedWidth: 2000, expectedHeight: 2000},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			epoch := geometry.At(tc.at)

			// assert
			assert.Equal(t, tc.expectedWidth, epoch.Width)
			assert.Equal(t, tc.expectedHeight, epoch.Height)
		})
	}
}

func Test_GeometryTimeline_MaxSizeAndStart(t *testing.T) {
	// act
	geometry := timelapse.DefaultGeometryTimeline()
	width, height := geometry.MaxSize()

	// assert
	assert.Equal(t, 2000, width)
	assert.Equal(t, 2000, height)
	assert.Equal(t, time.Date(2022, 4, 1, 12, 40, 0, 0, time.UTC), geometry.Start())
}

func Test_NewGeometryTimeline_RejectsInvalidEpochs(t *testing.T) {
	tests := []struct {
		name   string
		epochs []timelapse.GeometryEpoch
	}{
		{name: "empty"},
		{name: "zero_size", epochs: []timelapse.GeometryEpoch{{EffectiveFrom: t0, Width: 0, Height: 10}}},
		{
			name: "not_ascending",
			epochs: []timelapse.GeometryEpoch{
				{EffectiveFrom: t0, Width: 10, Height: 10},
				{EffectiveFrom: t0, Width: 20, Height: 10},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			_, err := timelapse.NewGeometryTimeline(tc.epochs...)

			// assert
			assert.ErrorIs(t, err, timelapse.ErrInvalidGeometry)
		})
	}
}
