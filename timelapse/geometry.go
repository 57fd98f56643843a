package timelapse

import (
	"errors"
	"fmt"
	"time"
)

// GeometryEpoch is the canvas size valid from EffectiveFrom until the next epoch begins.
type GeometryEpoch struct {
	EffectiveFrom time.Time
	Width         int
	Height        int
}

// GeometryTimeline is the fixed, chronological list of canvas sizes.
type GeometryTimeline struct {
	epochs    []GeometryEpoch
	maxWidth  int
	maxHeight int
}

// NewGeometryTimeline validates the epochs and builds a GeometryTimeline from them.
func NewGeometryTimeline(epochs ...GeometryEpoch) (GeometryTimeline, error) {
	if len(epochs) == 0 {
		return GeometryTimeline{}, errors.Join(ErrInvalidGeometry, errors.New("no geometry epochs supplied"))
	}

	timeline := GeometryTimeline{epochs: make([]GeometryEpoch, len(epochs))}
	copy(timeline.epochs, epochs)

	for i, e := range epochs {
		if e.Width <= 0 || e.Height <= 0 {
			return GeometryTimeline{}, errors.Join(
				ErrInvalidGeometry,
				fmt.Errorf("epoch %d has a non-positive size %dx%d", i, e.Width, e.Height),
			)
		}

		if i > 0 && !e.EffectiveFrom.After(epochs[i-1].EffectiveFrom) {
			return GeometryTimeline{}, errors.Join(
				ErrInvalidGeometry,
				fmt.Errorf("epoch %d does not start after epoch %d", i, i-1),
			)
		}

		timeline.maxWidth = max(timeline.maxWidth, e.Width)
		timeline.maxHeight = max(timeline.maxHeight, e.Height)
	}

	return timeline, nil
}

// DefaultGeometryTimeline returns the three canvas sizes of r/place 2022.
func DefaultGeometryTimeline() GeometryTimeline {
	timeline, err := NewGeometryTimeline(
		GeometryEpoch{EffectiveFrom: time.Date(2022, time.April, 1, 12, 40, 0, 0, time.UTC), Width: 1000, Height: 1000},
		GeometryEpoch{EffectiveFrom: time.Date(2022, time.April, 2, 16, 25, 0, 0, time.UTC), Width: 2000, Height: 1000},
		GeometryEpoch{EffectiveFrom: time.Date(2022, time.April, 3, 19, 4, 0, 0, time.UTC), Width: 2000, Height: 2000},
	)
	if err != nil {
		panic(err) // constant input
	}

	return timeline
}

// At returns the latest epoch with EffectiveFrom <= t. Instants before the first epoch map to the first epoch.
func (g GeometryTimeline) At(t time.Time) GeometryEpoch {
	if len(g.epochs) == 0 {
		return GeometryEpoch{}
	}

	current := g.epochs[0]

	for _, e := range g.epochs[1:] {
		if e.EffectiveFrom.After(t) {
			break
		}

		current = e
	}

	return current
}

// Start returns the instant the canvas came into existence.
func (g GeometryTimeline) Start() time.Time {
	if len(g.epochs) == 0 {
		return time.Time{}
	}

	return g.epochs[0].EffectiveFrom
}

// MaxSize returns the largest width and height over all epochs.
func (g GeometryTimeline) MaxSize() (int, int) {
	return g.maxWidth, g.maxHeight
}

// Epochs returns a copy of the timeline entries.
func (g GeometryTimeline) Epochs() []GeometryEpoch {
	epochs := make([]GeometryEpoch, len(g.epochs))
	copy(epochs, g.epochs)

	return epochs
}

// IsEmpty reports whether the timeline is the zero value.
func (g GeometryTimeline) IsEmpty() bool {
	return len(g.epochs) == 0
}
