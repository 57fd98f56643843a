package helper

import (
	"iter"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
)

// GivenUniqueID returns a fresh UUIDv7 string.
func GivenUniqueID(t testing.TB) string {
	t.Helper()

	id, err := uuid.NewV7()
	require.NoError(t, err, "error in arranging test data")

	return id.String()
}

// SeqOf yields the given placements without errors.
func SeqOf(events ...timelapse.PlacementEvent) iter.Seq2[timelapse.PlacementEvent, error] {
	return FailingSeq(len(events)+1, nil, events...)
}

// FailingSeq yields the first n placements and then err.
func FailingSeq(n int, err error, events ...timelapse.PlacementEvent) iter.Seq2[timelapse.PlacementEvent, error] {
	return func(yield func(timelapse.PlacementEvent, error) bool) {
		for i, event := range events {
			if i == n {
				yield(timelapse.PlacementEvent{}, err)
				return
			}

			if !yield(event, nil) {
				return
			}
		}

		if n == len(events) {
			yield(timelapse.PlacementEvent{}, err)
		}
	}
}

// CollectEvents drains a placement sequence, stopping at the first error.
func CollectEvents(seq iter.Seq2[timelapse.PlacementEvent, error]) ([]timelapse.PlacementEvent, error) {
	events := make([]timelapse.PlacementEvent, 0)

	for event, err := range seq {
		if err != nil {
			return events, err
		}

		events = append(events, event)
	}

	return events, nil
}
