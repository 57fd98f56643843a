package timelapse

import (
	"errors"
	"fmt"
	"time"
)

// SegmentMapping assigns a time range of the placement log to the storage segment holding it.
type SegmentMapping struct {
	Range     DateTimeRange
	SegmentID string
}

// PartitionCatalog is an ordered, read-only list of SegmentMappings.
// Its ranges are chronological, contiguous and pairwise non-overlapping,
// so it is safe for concurrent use by independent replays.
type PartitionCatalog struct {
	mappings []SegmentMapping
}

// NewPartitionCatalog validates the mappings and builds a PartitionCatalog from them.
func NewPartitionCatalog(mappings ...SegmentMapping) (PartitionCatalog, error) {
	if len(mappings) == 0 {
		return PartitionCatalog{}, errors.Join(ErrInvalidCatalog, errors.New("no segment mappings supplied"))
	}

	seen := make(map[string]struct{}, len(mappings))

	for i, m := range mappings {
		if m.SegmentID == "" {
			return PartitionCatalog{}, errors.Join(ErrInvalidCatalog, fmt.Errorf("mapping %d has an empty segment id", i))
		}

		if _, ok := seen[m.SegmentID]; ok {
			return PartitionCatalog{}, errors.Join(ErrInvalidCatalog, fmt.Errorf("segment %q is mapped twice", m.SegmentID))
		}

		seen[m.SegmentID] = struct{}{}

		if i == 0 {
			continue
		}

		prev := mappings[i-1]

		if !prev.Range.End().Equal(m.Range.Start()) {
			return PartitionCatalog{}, errors.Join(
				ErrInvalidCatalog,
				fmt.Errorf("segment %q %s does not continue segment %q %s", m.SegmentID, m.Range, prev.SegmentID, prev.Range),
			)
		}

		if prev.Range.Overlaps(m.Range) {
			return PartitionCatalog{}, errors.Join(
				ErrInvalidCatalog,
				fmt.Errorf("segment %q %s overlaps segment %q %s", m.SegmentID, m.Range, prev.SegmentID, prev.Range),
			)
		}
	}

	owned := make([]SegmentMapping, len(mappings))
	copy(owned, mappings)

	return PartitionCatalog{mappings: owned}, nil
}

// BuildUniformPartitionCatalog builds count half-open segments of equal length, starting at start.
// Segment ids are prefix followed by a 1-based index.
func BuildUniformPartitionCatalog(start time.Time, length time.Duration, count int, prefix string) (PartitionCatalog, error) {
	if length <= 0 || count <= 0 {
		return PartitionCatalog{}, errors.Join(ErrInvalidCatalog, errors.New("segment length and count must be positive"))
	}

	mappings := make([]SegmentMapping, 0, count)

	for i := 0; i < count; i++ {
		r, err := HalfOpenRange(start.Add(time.Duration(i)*length), start.Add(time.Duration(i+1)*length))
		if err != nil {
			return PartitionCatalog{}, errors.Join(ErrInvalidCatalog, err)
		}

		mappings = append(mappings, SegmentMapping{Range: r, SegmentID: fmt.Sprintf("%s%d", prefix, i+1)})
	}

	return NewPartitionCatalog(mappings...)
}

// DefaultPartitionCatalog returns the 43 two-hour segments inputs_part1 .. inputs_part43
// covering 2022-04-01 12:00 UTC to 2022-04-05 02:00 UTC.
func DefaultPartitionCatalog() PartitionCatalog {
	catalog, err := BuildUniformPartitionCatalog(
		time.Date(2022, time.April, 1, 12, 0, 0, 0, time.UTC),
		2*time.Hour,
		43,
		"inputs_part",
	)
	if err != nil {
		panic(err) // constant input
	}

	return catalog
}

// SegmentsFor returns the ids of all segments whose range overlaps the query, in chronological order.
// An empty result means that no stored data can match the query.
func (c PartitionCatalog) SegmentsFor(query DateTimeRange) []string {
	segments := make([]string, 0)

	for _, m := range c.mappings {
		if m.Range.Overlaps(query) {
			segments = append(segments, m.SegmentID)
		}
	}

	return segments
}

// Mappings returns a copy of the catalog entries.
func (c PartitionCatalog) Mappings() []SegmentMapping {
	mappings := make([]SegmentMapping, len(c.mappings))
	copy(mappings, c.mappings)

	return mappings
}

// Span returns the range covered by the whole catalog.
func (c PartitionCatalog) Span() DateTimeRange {
	if len(c.mappings) == 0 {
		return DateTimeRange{}
	}

	first := c.mappings[0].Range
	last := c.mappings[len(c.mappings)-1].Range

	span, _ := NewDateTimeRange(first.Start(), last.End(), first.StartInclusive(), last.EndInclusive())

	return span
}

// IsEmpty reports whether the catalog is the zero value.
func (c PartitionCatalog) IsEmpty() bool {
	return len(c.mappings) == 0
}
