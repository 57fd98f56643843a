package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/internal/framesink"
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse/postgresengine"
)

// ErrMissingWindow is returned when neither flags nor config name a window start and end.
var ErrMissingWindow = errors.New("window start and end are required")

type timestampsJSON struct {
	Count      int         `json:"count"`
	Timestamps []time.Time `json:"timestamps"`
}

type keyframesJSON struct {
	Stored  int `json:"stored"`
	Skipped int `json:"skipped"`
}

type renderJSON struct {
	Frames     int     `json:"frames"`
	OutputDir  string  `json:"output_dir"`
	DurationMS float64 `json:"duration_ms"`
}

type snapshotJSON struct {
	File      string    `json:"file"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
}

// Execute implements the go-flags Commander interface for TimestampsCommand.
func (c *TimestampsCommand) Execute(_ []string) error {
	s, err := c.newSession()
	if err != nil {
		return err
	}

	defer func() { _ = s.close() }()

	start, end, interval, err := c.resolve(s.cfg.Render, s.cfg.Render.Interval)
	if err != nil {
		return err
	}

	if start.IsZero() || end.IsZero() {
		return ErrMissingWindow
	}

	window, err := timelapse.ClosedRange(start, end)
	if err != nil {
		return err
	}

	var options []timelapse.Option
	if c.Leading || s.cfg.Render.LeadingFrame {
		options = append(options, timelapse.WithLeadingFrame())
	}

	result := timestampsJSON{Timestamps: make([]time.Time, 0, timelapse.FrameCount(window, interval, options...))}
	lines := make([]string, 0, cap(result.Timestamps))

	for at := range timelapse.Timestamps(window, interval, options...) {
		result.Timestamps = append(result.Timestamps, at)
		lines = append(lines, at.Format(time.RFC3339Nano))
	}

	result.Count = len(result.Timestamps)

	return s.print(result, lines...)
}

// Execute implements the go-flags Commander interface for KeyframesCommand.
func (c *KeyframesCommand) Execute(_ []string) error {
	return c.withStore(func(ctx context.Context, s *session, store *postgresengine.EventStore) error {
		window, interval, err := s.window(ctx, store, c.windowFlags, s.cfg.Keyframes.Interval)
		if err != nil {
			return err
		}

		keyframes, err := s.openKeyframeStore(store)
		if err != nil {
			return err
		}

		replayer, err := timelapse.NewReplayer(store, keyframes, s.replayerOptions(store)...)
		if err != nil {
			return err
		}

		result, err := storeKeyframes(ctx, replayer, keyframes, window, interval)
		if err != nil {
			return err
		}

		return s.print(result, fmt.Sprintf("stored %d keyframes, %d already present", result.Stored, result.Skipped))
	})
}

// storeKeyframes replays the window and puts every frame, skipping instants that already have a keyframe.
func storeKeyframes(
	ctx context.Context,
	replayer *timelapse.Replayer,
	keyframes timelapse.KeyframeStore,
	window timelapse.DateTimeRange,
	interval time.Duration,
) (keyframesJSON, error) {
	var result keyframesJSON

	for snapshot, err := range replayer.Frames(ctx, window, interval) {
		if err != nil {
			return result, err
		}

		keyframe, err := timelapse.KeyframeFromSnapshot(snapshot)
		if err != nil {
			return result, err
		}

		err = keyframes.Put(ctx, keyframe)

		switch {
		case errors.Is(err, timelapse.ErrKeyframeAlreadyExists):
			result.Skipped++
		case err != nil:
			return result, err
		default:
			result.Stored++
		}
	}

	return result, nil
}

// Execute implements the go-flags Commander interface for RenderCommand.
func (c *RenderCommand) Execute(_ []string) error {
	return c.withStore(func(ctx context.Context, s *session, store *postgresengine.EventStore) error {
		window, interval, err := s.window(ctx, store, c.windowFlags, s.cfg.Render.Interval)
		if err != nil {
			return err
		}

		keyframes, err := s.openKeyframeStore(store)
		if err != nil {
			return err
		}

		var extra []timelapse.Option
		if c.FixedSize || s.cfg.Render.FixedFrameSize {
			extra = append(extra, timelapse.WithFixedFrameSize())
		}

		if c.Leading || s.cfg.Render.LeadingFrame {
			extra = append(extra, timelapse.WithLeadingFrame())
		}

		replayer, err := timelapse.NewReplayer(store, keyframes, s.replayerOptions(store, extra...)...)
		if err != nil {
			return err
		}

		outputDir := c.Out
		if outputDir == "" {
			outputDir = s.cfg.Render.OutputDir
		}

		scale := c.Scale
		if scale == 0 {
			scale = s.cfg.Render.Scale
		}

		s.logger.Info("rendering timelapse",
			"window", window.String(),
			"interval", interval.String(),
			"frames", timelapse.FrameCount(window, interval, extra...),
			"output_dir", outputDir,
		)

		started := time.Now()

		frames, err := renderFrames(ctx, replayer, window, interval, outputDir, scale)
		if err != nil {
			return err
		}

		result := renderJSON{
			Frames:     frames,
			OutputDir:  outputDir,
			DurationMS: float64(time.Since(started).Microseconds()) / 1000.0,
		}

		return s.print(result, fmt.Sprintf("wrote %d frames to %s", frames, outputDir))
	})
}

// renderFrames writes every frame of the window into outputDir and returns how many were written.
func renderFrames(
	ctx context.Context,
	replayer *timelapse.Replayer,
	window timelapse.DateTimeRange,
	interval time.Duration,
	outputDir string,
	scale int,
) (frames int, err error) {
	sink, err := framesink.Open(outputDir, framesink.WithScale(scale))
	if err != nil {
		return 0, err
	}

	defer func() { err = errors.Join(err, sink.Close()) }()

	for snapshot, err := range replayer.Frames(ctx, window, interval) {
		if err != nil {
			return sink.Count(), err
		}

		if _, err := sink.Write(snapshot); err != nil {
			return sink.Count(), err
		}
	}

	return sink.Count(), nil
}

// Execute implements the go-flags Commander interface for SnapshotCommand.
func (c *SnapshotCommand) Execute(_ []string) error {
	return c.withStore(func(ctx context.Context, s *session, store *postgresengine.EventStore) error {
		at, err := parseInstant("at", c.At)
		if err != nil {
			return err
		}

		keyframes, err := s.openKeyframeStore(store)
		if err != nil {
			return err
		}

		replayer, err := timelapse.NewReplayer(store, keyframes, s.replayerOptions(store)...)
		if err != nil {
			return err
		}

		snapshot, err := replayer.FrameAt(ctx, at)
		if err != nil {
			return err
		}

		frame, err := snapshot.Frame.Scale(max(c.Scale, 1))
		if err != nil {
			return err
		}

		if err := framesink.WriteFile(c.Out, frame); err != nil {
			return err
		}

		result := snapshotJSON{
			File:      filepath.Clean(c.Out),
			Timestamp: snapshot.Timestamp,
			Width:     frame.Width(),
			Height:    frame.Height(),
		}

		return s.print(result, fmt.Sprintf("wrote %dx%d snapshot at %s to %s",
			frame.Width(), frame.Height(), snapshot.Timestamp.Format(time.RFC3339Nano), result.File))
	})
}
