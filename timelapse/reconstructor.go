package timelapse

import (
	"context"
	"time"
)

const (
	logMsgRectangleClipped = "placement rectangle clipped to canvas"
	logAttrTimestamp       = "timestamp"
	logAttrX               = "x"
	logAttrY               = "y"
	logAttrWidth           = "width"
	logAttrHeight          = "height"
)

// Reconstructor folds placements into a canvas buffer sized to the largest canvas geometry.
// It is a single timeline and not safe for concurrent use.
type Reconstructor struct {
	settings
	canvas   *Canvas
	cursor   time.Time
	pinned   bool
	pinnedTo GeometryEpoch
	clipped  int
}

// NewReconstructor creates a Reconstructor holding a blank canvas and a zero cursor.
func NewReconstructor(options ...Option) (*Reconstructor, error) {
	s, err := newSettings(options)
	if err != nil {
		return nil, err
	}

	width, height := s.geometry.MaxSize()

	return &Reconstructor{
		settings: s,
		canvas:   NewCanvas(width, height, White),
	}, nil
}

// LoadKeyframe resets the canvas to the keyframe and moves the cursor to its timestamp.
// Cells outside the keyframe are background colored.
func (r *Reconstructor) LoadKeyframe(keyframe Keyframe) {
	r.canvas.Fill(White)
	r.canvas.Draw(keyframe.Frame)
	r.cursor = keyframe.Timestamp
}

// Apply writes the placement into the canvas and advances the cursor to its timestamp.
// Parts of the rectangle outside the canvas are dropped; the first such placement is logged.
func (r *Reconstructor) Apply(ctx context.Context, event PlacementEvent) {
	if r.canvas.FillRect(int(event.X), int(event.Y), int(event.Width), int(event.Height), event.Color) {
		r.clipped++
		r.incrementCounter(ctx, MetricClippedRectangles, nil)

		if r.clipped == 1 {
			r.warn(
				ctx,
				logMsgRectangleClipped,
				logAttrTimestamp, event.Timestamp,
				logAttrX, event.X,
				logAttrY, event.Y,
				logAttrWidth, event.Width,
				logAttrHeight, event.Height,
			)
		}
	}

	if event.Timestamp.After(r.cursor) {
		r.cursor = event.Timestamp
	}
}

// Snapshot copies the part of the canvas that is valid at the given instant.
// The copy never aliases the canvas, so it may be held while reconstruction continues.
func (r *Reconstructor) Snapshot(at time.Time) Snapshot {
	epoch := r.geometry.At(at)
	if r.pinned {
		epoch = r.pinnedTo
	}

	return Snapshot{Frame: r.canvas.Frame(epoch.Width, epoch.Height), Timestamp: at}
}

// PinFrameSize makes all following snapshots use the canvas size valid at the given instant.
func (r *Reconstructor) PinFrameSize(at time.Time) {
	r.pinned = true
	r.pinnedTo = r.geometry.At(at)
}

// Cursor returns the timestamp of the latest applied placement or loaded keyframe.
func (r *Reconstructor) Cursor() time.Time {
	return r.cursor
}

// ClippedCount returns how many placements were partly or fully outside the canvas.
func (r *Reconstructor) ClippedCount() int {
	return r.clipped
}
