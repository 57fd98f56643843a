// Package fakes provides in-memory implementations of the timelapse storage contracts for tests.
package fakes

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
)

// EventSource keeps placements in memory, routed to segments by a PartitionCatalog.
type EventSource struct {
	mu            sync.Mutex
	segments      map[string][]timelapse.PlacementEvent
	failSegment   string
	failErr       error
	failAfter     int
	openReaders   int
	beginErr      error
	streamedOrder []string
}

// NewEventSource routes every event into the segment of the catalog that contains its timestamp.
// Events no segment contains are dropped. Each segment is sorted by timestamp, keeping insertion order on ties.
func NewEventSource(catalog timelapse.PartitionCatalog, events ...timelapse.PlacementEvent) *EventSource {
	s := &EventSource{segments: make(map[string][]timelapse.PlacementEvent)}

	for _, event := range events {
		for _, m := range catalog.Mappings() {
			if m.Range.Contains(event.Timestamp) {
				s.segments[m.SegmentID] = append(s.segments[m.SegmentID], event)
				break
			}
		}
	}

	for id := range s.segments {
		slices.SortStableFunc(s.segments[id], func(a, b timelapse.PlacementEvent) int {
			return a.Timestamp.Compare(b.Timestamp)
		})
	}

	return s
}

// PutSegment replaces the content of a segment as given, without sorting.
func (s *EventSource) PutSegment(segmentID string, events ...timelapse.PlacementEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.segments[segmentID] = events
}

// FailSegment makes streaming the segment fail after the given number of yielded events.
func (s *EventSource) FailSegment(segmentID string, after int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failSegment, s.failAfter, s.failErr = segmentID, after, err
}

// FailBeginRead makes BeginRead fail.
func (s *EventSource) FailBeginRead(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.beginErr = err
}

// OpenReaders returns how many readers were opened and not closed yet.
func (s *EventSource) OpenReaders() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.openReaders
}

// StreamedSegments returns the segment ids in the order they were streamed.
func (s *EventSource) StreamedSegments() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.streamedOrder)
}

func (s *EventSource) BeginRead(ctx context.Context) (timelapse.EventReader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.beginErr != nil {
		return nil, errors.Join(timelapse.ErrUpstreamReadFailed, s.beginErr)
	}

	s.openReaders++

	return &eventReader{source: s}, nil
}

type eventReader struct {
	source *EventSource
	closed bool
}

func (r *eventReader) Stream(
	ctx context.Context,
	segmentID string,
	from, until time.Time,
) iter.Seq2[timelapse.PlacementEvent, error] {
	return func(yield func(timelapse.PlacementEvent, error) bool) {
		r.source.mu.Lock()
		events := slices.Clone(r.source.segments[segmentID])
		failAfter, failErr := -1, r.source.failErr
		if r.source.failSegment == segmentID && failErr != nil {
			failAfter = r.source.failAfter
		}
		r.source.streamedOrder = append(r.source.streamedOrder, segmentID)
		r.source.mu.Unlock()

		yielded := 0

		for _, event := range events {
			if err := ctx.Err(); err != nil {
				yield(timelapse.PlacementEvent{}, err)
				return
			}

			if yielded == failAfter {
				yield(timelapse.PlacementEvent{}, errors.Join(timelapse.ErrUpstreamReadFailed, failErr))
				return
			}

			if event.Timestamp.Before(from) || event.Timestamp.After(until) {
				continue
			}

			if !yield(event, nil) {
				return
			}

			yielded++
		}

		if yielded == failAfter {
			yield(timelapse.PlacementEvent{}, errors.Join(timelapse.ErrUpstreamReadFailed, failErr))
		}
	}
}

func (r *eventReader) Close() error {
	r.source.mu.Lock()
	defer r.source.mu.Unlock()

	if !r.closed {
		r.closed = true
		r.source.openReaders--
	}

	return nil
}

// KeyframeStore keeps keyframes in memory.
type KeyframeStore struct {
	mu        sync.Mutex
	geometry  timelapse.GeometryTimeline
	keyframes []timelapse.Keyframe
	loadErr   error
	lookups   []time.Time
}

// NewKeyframeStore creates a store holding the given keyframes.
func NewKeyframeStore(geometry timelapse.GeometryTimeline, keyframes ...timelapse.Keyframe) *KeyframeStore {
	s := &KeyframeStore{geometry: geometry}

	for _, k := range keyframes {
		_ = s.Put(context.Background(), k)
	}

	return s
}

// FailLoad makes NearestBefore fail.
func (s *KeyframeStore) FailLoad(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadErr = err
}

// Lookups returns the targets NearestBefore was called with.
func (s *KeyframeStore) Lookups() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.lookups)
}

// Len returns the number of stored keyframes.
func (s *KeyframeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.keyframes)
}

func (s *KeyframeStore) NearestBefore(ctx context.Context, target time.Time) (timelapse.Keyframe, error) {
	if err := ctx.Err(); err != nil {
		return timelapse.Keyframe{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lookups = append(s.lookups, target)

	if s.loadErr != nil {
		return timelapse.Keyframe{}, errors.Join(timelapse.ErrUpstreamReadFailed, timelapse.ErrLoadingKeyframeFailed, s.loadErr)
	}

	for i := len(s.keyframes) - 1; i >= 0; i-- {
		if s.keyframes[i].Timestamp.Before(target) {
			return s.keyframes[i], nil
		}
	}

	return timelapse.BlankKeyframe(s.geometry, target), nil
}

func (s *KeyframeStore) Put(ctx context.Context, keyframe timelapse.Keyframe) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := keyframe.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, found := slices.BinarySearchFunc(s.keyframes, keyframe.Timestamp, func(k timelapse.Keyframe, t time.Time) int {
		return k.Timestamp.Compare(t)
	})
	if found {
		return timelapse.ErrKeyframeAlreadyExists
	}

	s.keyframes = slices.Insert(s.keyframes, i, keyframe)

	return nil
}
