package timelapse

import (
	"errors"
	"fmt"
	"time"
)

const rangeTimeLayout = "2006-01-02T15:04:05"

// DateTimeRange is an interval between two instants with configurable inclusivity of each edge.
//
// It is a value type: the zero value is the degenerate, empty range [0001-01-01, 0001-01-01).
// It should only be constructed with the supplied factory methods:
//   - NewDateTimeRange
//   - HalfOpenRange
//   - ClosedRange
type DateTimeRange struct {
	start          time.Time
	end            time.Time
	startInclusive bool
	endInclusive   bool
}

// NewDateTimeRange is a factory method for DateTimeRange.
//
// Returns ErrInvalidRange if start is after end. Equal instants are allowed; such a range only
// contains its single instant when both edges are inclusive.
func NewDateTimeRange(start, end time.Time, startInclusive, endInclusive bool) (DateTimeRange, error) {
	if start.After(end) {
		return DateTimeRange{}, errors.Join(
			ErrInvalidRange,
			fmt.Errorf("start %s is after end %s", start.Format(time.RFC3339Nano), end.Format(time.RFC3339Nano)),
		)
	}

	return DateTimeRange{
		start:          start,
		end:            end,
		startInclusive: startInclusive,
		endInclusive:   endInclusive,
	}, nil
}

// HalfOpenRange builds the range [start, end).
func HalfOpenRange(start, end time.Time) (DateTimeRange, error) {
	return NewDateTimeRange(start, end, true, false)
}

// ClosedRange builds the range [start, end].
func ClosedRange(start, end time.Time) (DateTimeRange, error) {
	return NewDateTimeRange(start, end, true, true)
}

func (r DateTimeRange) Start() time.Time {
	return r.start
}

func (r DateTimeRange) End() time.Time {
	return r.end
}

// StartInclusive reports whether Start is contained in the range.
func (r DateTimeRange) StartInclusive() bool {
	return r.startInclusive
}

// EndInclusive reports whether End is contained in the range.
func (r DateTimeRange) EndInclusive() bool {
	return r.endInclusive
}

// Length returns End - Start.
func (r DateTimeRange) Length() time.Duration {
	return r.end.Sub(r.start)
}

// Contains reports whether the instant lies inside the range, honouring edge inclusivity.
func (r DateTimeRange) Contains(t time.Time) bool {
	if t.Before(r.start) || t.After(r.end) {
		return false
	}

	if !r.startInclusive && t.Equal(r.start) {
		return false
	}

	if !r.endInclusive && t.Equal(r.end) {
		return false
	}

	return true
}

// Overlaps reports whether both ranges share at least one instant.
//
// Two ranges that only touch at a boundary instant overlap iff both of them include that instant.
// Partition routing depends on this tie-break: [a, b) and [b, c) never overlap, [a, b] and [b, c) do.
func (r DateTimeRange) Overlaps(other DateTimeRange) bool {
	if other.start.After(r.end) || r.start.After(other.end) {
		return false
	}

	if other.start.Equal(r.end) && (!other.startInclusive || !r.endInclusive) {
		return false
	}

	if r.start.Equal(other.end) && (!r.startInclusive || !other.endInclusive) {
		return false
	}

	return true
}

// Extend returns a range that contains t, together with whether anything had to change.
//
// A t before Start moves Start outward (inclusive), a t after End moves End outward (inclusive),
// and a t on an excluded edge flips that edge to inclusive. The receiver is never modified.
func (r DateTimeRange) Extend(t time.Time) (DateTimeRange, bool) {
	if r.Contains(t) {
		return r, false
	}

	switch {
	case t.Before(r.start):
		r.start = t
		r.startInclusive = true
	case t.After(r.end):
		r.end = t
		r.endInclusive = true
	case t.Equal(r.start):
		r.startInclusive = true
	default:
		r.endInclusive = true
	}

	return r, true
}

func (r DateTimeRange) String() string {
	left, right := "(", ")"
	if r.startInclusive {
		left = "["
	}

	if r.endInclusive {
		right = "]"
	}

	return left + r.start.Format(rangeTimeLayout) + ", " + r.end.Format(rangeTimeLayout) + right
}
