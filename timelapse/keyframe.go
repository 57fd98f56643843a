package timelapse

import (
	"errors"
	"time"
)

var (
	// ErrInvalidKeyframe is returned when a keyframe has no pixels or no timestamp.
	ErrInvalidKeyframe = errors.New("keyframe is not valid")

	// ErrKeyframeAlreadyExists is returned by KeyframeStore.Put when a keyframe with the same timestamp is stored.
	ErrKeyframeAlreadyExists = errors.New("keyframe already exists")

	// ErrSavingKeyframeFailed is returned when persisting a keyframe fails.
	ErrSavingKeyframeFailed = errors.New("saving keyframe failed")

	// ErrLoadingKeyframeFailed is returned when looking up a keyframe fails.
	ErrLoadingKeyframeFailed = errors.New("loading keyframe failed")
)

// Keyframe is a fully materialized canvas state at a known instant. It is never mutated once built.
type Keyframe struct {
	Frame     Frame
	Timestamp time.Time
}

// Snapshot is a frame emitted by a replay, paired with the instant it shows.
type Snapshot struct {
	Frame     Frame
	Timestamp time.Time
}

// Validate ensures the keyframe can be stored.
func (k Keyframe) Validate() error {
	if k.Frame.IsEmpty() {
		return errors.Join(ErrInvalidKeyframe, errors.New("frame has no pixels"))
	}

	if k.Timestamp.IsZero() {
		return errors.Join(ErrInvalidKeyframe, errors.New("timestamp is not set"))
	}

	return nil
}

// BuildKeyframe creates a new Keyframe with validation.
func BuildKeyframe(frame Frame, timestamp time.Time) (Keyframe, error) {
	keyframe := Keyframe{Frame: frame, Timestamp: timestamp.UTC()}

	if err := keyframe.Validate(); err != nil {
		return Keyframe{}, err
	}

	return keyframe, nil
}

// KeyframeFromSnapshot turns an emitted snapshot into a storable keyframe.
func KeyframeFromSnapshot(s Snapshot) (Keyframe, error) {
	return BuildKeyframe(s.Frame, s.Timestamp)
}

// BlankKeyframe is the keyframe used when no stored keyframe precedes target:
// a canvas of the largest size in background color, timestamped at the geometry start.
// When target is not after the geometry start, the timestamp is moved to just before target.
func BlankKeyframe(geometry GeometryTimeline, target time.Time) Keyframe {
	width, height := geometry.MaxSize()
	timestamp := geometry.Start()

	if !target.After(timestamp) {
		timestamp = target.Add(-time.Nanosecond)
	}

	return Keyframe{Frame: BlankFrame(width, height, White), Timestamp: timestamp}
}
