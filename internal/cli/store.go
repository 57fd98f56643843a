package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/ingest"
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse/postgresengine"
)

type importJSON struct {
	Placements int64   `json:"placements"`
	Files      int     `json:"files"`
	DurationMS float64 `json:"duration_ms"`
}

type rangeJSON struct {
	First time.Time `json:"first"`
	Last  time.Time `json:"last"`
}

type countJSON struct {
	Placements int64 `json:"placements"`
}

type storeFunc func(ctx context.Context, s *session, store *postgresengine.EventStore) error

// withStore runs fn against the configured event store and releases everything afterwards.
func (c command) withStore(fn storeFunc) (err error) {
	s, err := c.newSession()
	if err != nil {
		return err
	}

	defer func() { err = errors.Join(err, s.close()) }()

	ctx, cancel := commandContext()
	defer cancel()

	store, err := s.openEventStore(ctx)
	if err != nil {
		return err
	}

	return fn(ctx, s, store)
}

// Execute implements the go-flags Commander interface for SchemaCommand.
func (c *SchemaCommand) Execute(_ []string) error {
	return c.withStore(func(ctx context.Context, s *session, store *postgresengine.EventStore) error {
		if err := store.CreateSchema(ctx); err != nil {
			return err
		}

		return s.print(map[string]bool{"created": true}, "schema created")
	})
}

// Execute implements the go-flags Commander interface for ViewsCommand.
func (c *ViewsCommand) Execute(_ []string) error {
	return c.withStore(func(ctx context.Context, s *session, store *postgresengine.EventStore) error {
		if err := store.CreateSegmentViews(ctx); err != nil {
			return err
		}

		segments := len(store.Catalog().Mappings())

		return s.print(map[string]int{"views": segments}, fmt.Sprintf("created %d segment views", segments))
	})
}

// Execute implements the go-flags Commander interface for ImportCommand.
func (c *ImportCommand) Execute(_ []string) error {
	return c.withStore(func(ctx context.Context, s *session, store *postgresengine.EventStore) error {
		dir := c.Dir
		if dir == "" {
			dir = s.cfg.Dataset.Dir
		}

		segments := c.Segments
		if len(segments) == 0 {
			segments = ingest.AllSegments()
		}

		options := []ingest.Option{ingest.WithLogger(s.logger)}
		if c.SkipMalformed || s.cfg.Dataset.SkipMalformed {
			options = append(options, ingest.WithSkipMalformed())
		}

		started := time.Now()

		imported, err := store.ImportPlacements(ctx, ingest.ReadSegments(ctx, dir, segments, options...))
		if err != nil {
			return err
		}

		if c.RefreshViews {
			if err := store.CreateSegmentViews(ctx); err != nil {
				return err
			}
		}

		result := importJSON{
			Placements: imported,
			Files:      len(segments),
			DurationMS: float64(time.Since(started).Microseconds()) / 1000.0,
		}

		return s.print(result, fmt.Sprintf("imported %d placements from %d files", imported, len(segments)))
	})
}

// Execute implements the go-flags Commander interface for RangeCommand.
func (c *RangeCommand) Execute(_ []string) error {
	return c.withStore(func(ctx context.Context, s *session, store *postgresengine.EventStore) error {
		stored, err := store.TimestampRange(ctx)
		if err != nil {
			return err
		}

		return s.print(
			rangeJSON{First: stored.Start(), Last: stored.End()},
			"first: "+stored.Start().Format(time.RFC3339Nano),
			"last:  "+stored.End().Format(time.RFC3339Nano),
		)
	})
}

// Execute implements the go-flags Commander interface for CountCommand.
func (c *CountCommand) Execute(_ []string) error {
	return c.withStore(func(ctx context.Context, s *session, store *postgresengine.EventStore) error {
		count, err := store.CountPlacements(ctx)
		if err != nil {
			return err
		}

		return s.print(countJSON{Placements: count}, fmt.Sprintf("%d placements", count))
	})
}
