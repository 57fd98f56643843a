package cli

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/internal/framesink"
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/testutil/helper"
	testconfig "github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/testutil/postgresengine/config"
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
)

const datasetFixture = "timestamp,user_id,pixel_color,coordinate\n" +
	"2022-04-01 12:44:10.315 UTC,YWJj,#FF4500,\"0,0\"\n" +
	"2022-04-01 12:45:00 UTC,ZGVm,#2450A4,\"10,10\"\n" +
	"2022-04-01 12:47:30 UTC,YWJj,#000000,\"0,0,1,1\"\n"

func givenDataset(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	file, err := os.Create(filepath.Join(dir, "inputs_00.csv.gzip"))
	require.NoError(t, err)

	writer := gzip.NewWriter(file)
	_, err = writer.Write([]byte(datasetFixture))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	require.NoError(t, file.Close())

	return dir
}

func givenDatabaseConfig(t *testing.T, dsn, datasetDir string) string {
	t.Helper()

	suffix := strings.ReplaceAll(helper.GivenUniqueID(t), "-", "")
	eventsTable := "inputs_" + suffix
	keyframesTable := "keyframes_" + suffix

	t.Cleanup(func() {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return
		}

		defer func() { _ = db.Close() }()

		for _, table := range []string{eventsTable, keyframesTable} {
			_, _ = db.ExecContext(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table))
		}
	})

	return writeConfig(t, fmt.Sprintf(`database:
  dsn: %q
  events_table: %s
  keyframes_table: %s
  direct_table_reads: true
keyframes:
  backend: badger
  badger_path: %q
dataset:
  dir: %q
logging:
  level: warn
`, dsn, eventsTable, keyframesTable, filepath.Join(t.TempDir(), "badger"), datasetDir))
}

func runJSON(t *testing.T, configPath string, result any, args ...string) {
	t.Helper()

	var out bytes.Buffer

	require.NoError(t, run("dev", append([]string{"--json", "--config", configPath}, args...), &out))
	require.NoError(t, jsoniter.ConfigFastest.Unmarshal(out.Bytes(), result))
}

func Test_EndToEnd_ImportAndRender(t *testing.T) {
	// setup
	dsn, ok := testconfig.PostgresTestDSN()
	if !ok {
		t.Skipf("%s not set", testconfig.TestDSNEnv)
	}

	configPath := givenDatabaseConfig(t, dsn, givenDataset(t))
	outputDir := filepath.Join(t.TempDir(), "frames")
	snapshotPath := filepath.Join(t.TempDir(), "snapshot.png")

	// arrange
	var created map[string]bool
	runJSON(t, configPath, &created, "schema")

	var imported importJSON
	runJSON(t, configPath, &imported, "import", "--segment", "0")

	// act
	var count countJSON
	runJSON(t, configPath, &count, "count")

	var stored rangeJSON
	runJSON(t, configPath, &stored, "range")

	var keyframes keyframesJSON
	runJSON(t, configPath, &keyframes, "keyframes", "--interval", "1m")

	var rendered renderJSON
	runJSON(t, configPath, &rendered, "render", "--interval", "1m", "--out", outputDir)

	var snapshot snapshotJSON
	runJSON(t, configPath, &snapshot, "snapshot", "--at", "2022-04-01T12:46:00Z", "--out", snapshotPath)

	// assert
	assert.True(t, created["created"])
	assert.Equal(t, int64(3), imported.Placements)
	assert.Equal(t, int64(3), count.Placements)
	assert.Equal(t, "2022-04-01T12:44:10.315Z", stored.First.Format("2006-01-02T15:04:05.000Z07:00"))
	assert.Equal(t, 4, keyframes.Stored, "three cadence ticks plus the window end")
	assert.Equal(t, 4, rendered.Frames)

	manifest, err := os.Open(filepath.Join(outputDir, framesink.ManifestName))
	require.NoError(t, err)
	defer func() { _ = manifest.Close() }()

	entries, err := framesink.ReadManifest(manifest)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	last, err := os.ReadFile(filepath.Join(outputDir, entries[3].File))
	require.NoError(t, err)
	frame, err := timelapse.DecodeFrameBytes(last)
	require.NoError(t, err)
	assert.Equal(t, timelapse.Color{}, frame.ColorAt(1, 1), "black rectangle covers 0,0 to 1,1")
	assert.Equal(t, timelapse.Color{R: 0x24, G: 0x50, B: 0xA4}, frame.ColorAt(10, 10))

	data, err := os.ReadFile(snapshotPath)
	require.NoError(t, err)
	single, err := timelapse.DecodeFrameBytes(data)
	require.NoError(t, err)
	assert.Equal(t, timelapse.Color{R: 0xFF, G: 0x45}, single.ColorAt(0, 0))
	assert.Equal(t, 1000, snapshot.Width)
}
