package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
)

const (
	logMsgSkippedRecord = "skipped malformed placement record"
	logAttrError        = "error"
	logAttrLine         = "line"
	logAttrSource       = "source"
)

// Reader parses placements from an uncompressed CSV stream with a header row.
type Reader struct {
	source        string
	r             io.Reader
	skipMalformed bool
	logger        timelapse.Logger
	skipped       int
}

// Option configures a Reader.
type Option func(*Reader)

// WithSkipMalformed logs and skips records that cannot be parsed instead of failing.
func WithSkipMalformed() Option {
	return func(r *Reader) {
		r.skipMalformed = true
	}
}

// WithLogger sets the logger receiving skipped record warnings.
func WithLogger(logger timelapse.Logger) Option {
	return func(r *Reader) {
		r.logger = logger
	}
}

// WithSourceName names the stream in errors and log lines, usually the file name.
func WithSourceName(name string) Option {
	return func(r *Reader) {
		r.source = name
	}
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader, options ...Option) *Reader {
	reader := &Reader{r: r, source: "input"}

	for _, option := range options {
		option(reader)
	}

	return reader
}

// Skipped returns the number of records skipped so far.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Events yields the placements of the stream in file order. The sequence can only be consumed once.
// It stops at the first error; errors of malformed records wrap ErrMalformedRecord and name the line.
func (r *Reader) Events(ctx context.Context) iter.Seq2[timelapse.PlacementEvent, error] {
	return func(yield func(timelapse.PlacementEvent, error) bool) {
		csvReader := csv.NewReader(r.r)
		csvReader.ReuseRecord = true
		csvReader.TrimLeadingSpace = true
		csvReader.FieldsPerRecord = -1

		header, err := csvReader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = errors.New("empty input")
			}

			yield(timelapse.PlacementEvent{}, fmt.Errorf("%s: reading header: %w", r.source, errors.Join(ErrMissingColumn, err)))

			return
		}

		cols, err := columnsFromHeader(header)
		if err != nil {
			yield(timelapse.PlacementEvent{}, fmt.Errorf("%s: %w", r.source, err))
			return
		}

		for {
			if ctxErr := ctx.Err(); ctxErr != nil {
				yield(timelapse.PlacementEvent{}, ctxErr)
				return
			}

			record, readErr := csvReader.Read()
			if errors.Is(readErr, io.EOF) {
				return
			}

			var (
				event    timelapse.PlacementEvent
				line     int
				parseErr *csv.ParseError
			)

			switch {
			case readErr == nil:
				line, _ = csvReader.FieldPos(0)
				event, readErr = cols.parse(record)
			case errors.As(readErr, &parseErr):
				line = parseErr.Line
			default:
				yield(timelapse.PlacementEvent{}, fmt.Errorf("%s: %w", r.source, readErr))
				return
			}

			if readErr != nil {
				malformed := fmt.Errorf("%s line %d: %w", r.source, line, errors.Join(ErrMalformedRecord, readErr))

				if !r.skipMalformed {
					yield(timelapse.PlacementEvent{}, malformed)
					return
				}

				r.skipped++
				if r.logger != nil {
					r.logger.Warn(logMsgSkippedRecord, logAttrSource, r.source, logAttrLine, line, logAttrError, readErr.Error())
				}

				continue
			}

			if !yield(event, nil) {
				return
			}
		}
	}
}
