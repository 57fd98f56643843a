package timelapse

import (
	"context"
	"iter"
	"time"
)

// EventSource opens scoped, read-only sessions on the placement log.
type EventSource interface {
	BeginRead(ctx context.Context) (EventReader, error)
}

// EventReader is a read-only session. Close must be called on every exit path; it is safe to call it twice.
type EventReader interface {
	// Stream yields the placements of one segment with from <= timestamp <= until, in ascending timestamp order.
	// It stops at the first error, which is joined with ErrUpstreamReadFailed. Stopping the iteration
	// early releases the underlying cursor.
	Stream(ctx context.Context, segmentID string, from, until time.Time) iter.Seq2[PlacementEvent, error]
	Close() error
}

// KeyframeStore persists keyframes keyed by their timestamp.
type KeyframeStore interface {
	// NearestBefore returns the latest keyframe with a timestamp strictly before target,
	// or BlankKeyframe when none is stored.
	NearestBefore(ctx context.Context, target time.Time) (Keyframe, error)

	// Put stores a keyframe. It returns ErrKeyframeAlreadyExists if the timestamp is already taken.
	Put(ctx context.Context, keyframe Keyframe) error
}
