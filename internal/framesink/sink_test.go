package framesink_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/internal/framesink"
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
)

var t0 = time.Date(2022, time.April, 2, 10, 0, 0, 0, time.UTC)

func Test_Sink_WritesFramesAndManifest(t *testing.T) {
	// setup
	dir := filepath.Join(t.TempDir(), "frames")
	sink, err := framesink.Open(dir, framesink.WithScale(2))
	require.NoError(t, err)

	red := timelapse.Color{R: 0xFF}

	// act
	first, firstErr := sink.Write(timelapse.Snapshot{Frame: timelapse.BlankFrame(3, 2, red), Timestamp: t0})
	second, secondErr := sink.Write(timelapse.Snapshot{Frame: timelapse.BlankFrame(3, 2, timelapse.White), Timestamp: t0.Add(time.Second)})
	require.NoError(t, sink.Close())

	// assert
	require.NoError(t, firstErr)
	require.NoError(t, secondErr)
	assert.Equal(t, "frame_000000.png", first.File)
	assert.Equal(t, 1, second.Index)
	assert.Equal(t, 6, first.Width)
	assert.Equal(t, 4, first.Height)
	assert.Equal(t, 2, sink.Count())

	data, err := os.ReadFile(filepath.Join(dir, first.File))
	require.NoError(t, err)
	frame, err := timelapse.DecodeFrameBytes(data)
	require.NoError(t, err)
	assert.Equal(t, 6, frame.Width())
	assert.Equal(t, red, frame.ColorAt(5, 3))

	manifest, err := os.Open(filepath.Join(dir, framesink.ManifestName))
	require.NoError(t, err)
	defer func() { _ = manifest.Close() }()

	entries, err := framesink.ReadManifest(manifest)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first.File, entries[0].File)
	assert.True(t, entries[1].Timestamp.Equal(t0.Add(time.Second)))
}

func Test_Open_RejectsInvalidScale(t *testing.T) {
	// act
	_, err := framesink.Open(t.TempDir(), framesink.WithScale(0))

	// assert
	assert.ErrorIs(t, err, timelapse.ErrInvalidScale)
}

func Test_ReadManifest_Malformed(t *testing.T) {
	// act
	_, err := framesink.ReadManifest(strings.NewReader(`{"index":0}` + "\n" + `{"index":`))

	// assert
	assert.ErrorIs(t, err, framesink.ErrReadingManifest)
}
