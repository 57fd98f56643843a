package timelapse_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
)

var (
	t0    = time.Date(2022, time.April, 2, 10, 0, 0, 0, time.UTC)
	red   = timelapse.Color{R: 0xFF}
	green = timelapse.Color{G: 0xFF}
	blue  = timelapse.Color{B: 0xFF}
)

// smallGeometry is a scaled down r/place: 4x4, grows to 8x4 at t0+1h and to 8x8 at t0+2h.
func smallGeometry(t *testing.T) timelapse.GeometryTimeline {
	t.Helper()

	g, err := timelapse.NewGeometryTimeline(
		timelapse.GeometryEpoch{EffectiveFrom: t0.Add(-time.Hour), Width: 4, Height: 4},
		timelapse.GeometryEpoch{EffectiveFrom: t0.Add(time.Hour), Width: 8, Height: 4},
		timelapse.GeometryEpoch{EffectiveFrom: t0.Add(2 * time.Hour), Width: 8, Height: 8},
	)
	require.NoError(t, err)

	return g
}

// smallCatalog has three 1h segments: seg1 [t0-1h, t0), seg2 [t0, t0+1h), seg3 [t0+1h, t0+2h).
func smallCatalog(t *testing.T) timelapse.PartitionCatalog {
	t.Helper()

	c, err := timelapse.BuildUniformPartitionCatalog(t0.Add(-time.Hour), time.Hour, 3, "seg")
	require.NoError(t, err)

	return c
}

func pixel(at time.Time, x, y int16, c timelapse.Color) timelapse.PlacementEvent {
	return timelapse.BuildPlacementEvent(at, x, y, c, []byte("actor"))
}

func newReconstructor(t *testing.T) *timelapse.Reconstructor {
	t.Helper()

	r, err := timelapse.NewReconstructor(timelapse.WithGeometry(smallGeometry(t)), timelapse.WithCatalog(smallCatalog(t)))
	require.NoError(t, err)

	return r
}

func eventsOf(events ...timelapse.PlacementEvent) func(func(timelapse.PlacementEvent, error) bool) {
	return func(yield func(timelapse.PlacementEvent, error) bool) {
		for _, e := range events {
			if !yield(e, nil) {
				return
			}
		}
	}
}
