package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
)

// LastSegment is the number of the last dataset file.
const LastSegment = 78

var (
	ErrInvalidSegment       = errors.New("the dataset has no such segment")
	ErrOpeningSegmentFailed = errors.New("opening segment file failed")
)

// AllSegments returns the numbers 0 through LastSegment.
func AllSegments() []int {
	numbers := make([]int, 0, LastSegment+1)
	for n := 0; n <= LastSegment; n++ {
		numbers = append(numbers, n)
	}

	return numbers
}

// SegmentPath returns the path of dataset file n inside dir, for example inputs_07.csv.gzip.
func SegmentPath(dir string, n int) (string, error) {
	if n < 0 || n > LastSegment {
		return "", errors.Join(ErrInvalidSegment, fmt.Errorf("segment %d is outside 0..%d", n, LastSegment))
	}

	return filepath.Join(dir, fmt.Sprintf("inputs_%02d.csv.gzip", n)), nil
}

type segmentFile struct {
	*gzip.Reader
	file *os.File
}

func (s segmentFile) Close() error {
	return errors.Join(s.Reader.Close(), s.file.Close())
}

// OpenSegment opens the gzip compressed file at path for reading its decompressed CSV.
func OpenSegment(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrOpeningSegmentFailed, err)
	}

	decompressed, err := gzip.NewReader(file)
	if err != nil {
		_ = file.Close()
		return nil, errors.Join(ErrOpeningSegmentFailed, fmt.Errorf("%s: %w", path, err))
	}

	return segmentFile{Reader: decompressed, file: file}, nil
}

// ReadSegments yields the placements of the given dataset files in order, one file after the other.
func ReadSegments(ctx context.Context, dir string, numbers []int, options ...Option) iter.Seq2[timelapse.PlacementEvent, error] {
	return func(yield func(timelapse.PlacementEvent, error) bool) {
		for _, n := range numbers {
			path, err := SegmentPath(dir, n)
			if err != nil {
				yield(timelapse.PlacementEvent{}, err)
				return
			}

			if !readFile(ctx, path, options, yield) {
				return
			}
		}
	}
}

// readFile streams one file and reports whether the caller should continue with the next one.
func readFile(
	ctx context.Context,
	path string,
	options []Option,
	yield func(timelapse.PlacementEvent, error) bool,
) bool {

	segment, err := OpenSegment(path)
	if err != nil {
		yield(timelapse.PlacementEvent{}, err)
		return false
	}
	defer func() { _ = segment.Close() }()

	reader := NewReader(segment, append([]Option{WithSourceName(filepath.Base(path))}, options...)...)

	for event, err := range reader.Events(ctx) {
		if !yield(event, err) || err != nil {
			return false
		}
	}

	return true
}
