package cli

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/internal/config"
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/testutil/fakes"
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse/postgresengine"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "timelapse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func Test_Run_Version(t *testing.T) {
	// setup
	var out bytes.Buffer

	// act
	err := run("1.2.3", []string{"--version"}, &out)

	// assert
	require.NoError(t, err)
	assert.Equal(t, "timelapse 1.2.3\n", out.String())
}

func Test_Run_UnknownCommand(t *testing.T) {
	// act
	err := run("dev", []string{"explode"}, &bytes.Buffer{})

	// assert
	assert.Error(t, err)
}

func Test_BuildParser_RegistersAllCommands(t *testing.T) {
	// act
	parser, _, cmds := buildParser("dev", &bytes.Buffer{})

	// assert
	for _, name := range []string{"schema", "views", "import", "range", "count", "timestamps", "keyframes", "render", "snapshot"} {
		assert.NotNil(t, parser.Find(name), name)
	}

	assert.NotNil(t, cmds.Render)
	assert.NotNil(t, cmds.Snapshot)
}

func Test_GlobalFlags_LoadConfig(t *testing.T) {
	t.Run("defaults_without_file", func(t *testing.T) {
		// act
		cfg, err := (&GlobalFlags{}).loadConfig()

		// assert
		require.NoError(t, err)
		assert.Equal(t, config.Default(), cfg)
	})

	t.Run("file_and_overrides", func(t *testing.T) {
		// setup
		path := writeConfig(t, "logging:\n  level: warn\n  format: json\nrender:\n  interval: 30s\n")
		globals := &GlobalFlags{Config: path, Verbose: true, MetricsAddr: "127.0.0.1:0"}

		// act
		cfg, err := globals.loadConfig()

		// assert
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "json", cfg.Logging.Format)
		assert.Equal(t, 30*time.Second, cfg.Render.Interval)
		assert.Equal(t, "127.0.0.1:0", cfg.Metrics.Addr)
	})

	t.Run("invalid_file", func(t *testing.T) {
		// setup
		path := writeConfig(t, "database:\n  adapter: mysql\n")

		// act
		_, err := (&GlobalFlags{Config: path}).loadConfig()

		// assert
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})
}

func Test_NewLogger_Level(t *testing.T) {
	tests := []struct {
		name         string
		level        string
		debugEnabled bool
		infoEnabled  bool
	}{
		{name: "debug", level: "debug", debugEnabled: true, infoEnabled: true},
		{name: "info", level: "info", infoEnabled: true},
		{name: "error", level: "error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			logger := newLogger(&bytes.Buffer{}, config.LoggingConfig{Level: tc.level, Format: "text"})

			// assert
			assert.Equal(t, tc.debugEnabled, logger.Enabled(context.Background(), slog.LevelDebug))
			assert.Equal(t, tc.infoEnabled, logger.Enabled(context.Background(), slog.LevelInfo))
		})
	}
}

func Test_NewLogger_JSONFormat(t *testing.T) {
	// setup
	var buf bytes.Buffer
	logger := newLogger(&buf, config.LoggingConfig{Level: "info", Format: "json"})

	// act
	logger.Info("frame written", "index", 3)

	// assert
	var line map[string]any
	require.NoError(t, jsoniter.ConfigFastest.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "frame written", line["msg"])
}

func Test_WindowFlags_Resolve(t *testing.T) {
	configStart := time.Date(2022, time.April, 1, 13, 0, 0, 0, time.UTC)
	render := config.RenderConfig{Start: configStart}

	tests := []struct {
		name             string
		flags            windowFlags
		expectedStart    time.Time
		expectedEnd      time.Time
		expectedInterval time.Duration
		wantErr          bool
	}{
		{
			name:             "config_values",
			expectedStart:    configStart,
			expectedInterval: time.Minute,
		},
		{
			name:             "flags_override",
			flags:            windowFlags{Start: "2022-04-02T00:00:00Z", End: "2022-04-02T01:00:00+01:00", Interval: "10s"},
			expectedStart:    time.Date(2022, time.April, 2, 0, 0, 0, 0, time.UTC),
			expectedEnd:      time.Date(2022, time.April, 2, 0, 0, 0, 0, time.UTC),
			expectedInterval: 10 * time.Second,
		},
		{name: "bad_start", flags: windowFlags{Start: "yesterday"}, wantErr: true},
		{name: "bad_interval", flags: windowFlags{Interval: "often"}, wantErr: true},
		{name: "non_positive_interval", flags: windowFlags{Interval: "0s"}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			start, end, interval, err := tc.flags.resolve(render, time.Minute)

			// assert
			if tc.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.True(t, tc.expectedStart.Equal(start))
			assert.True(t, tc.expectedEnd.Equal(end))
			assert.Equal(t, tc.expectedInterval, interval)
		})
	}
}

func Test_Timestamps_Text(t *testing.T) {
	// setup
	var out bytes.Buffer

	// act
	err := run("dev", []string{
		"timestamps",
		"--start", "2022-04-01T12:00:00Z",
		"--end", "2022-04-01T12:02:30Z",
		"--interval", "1m",
	}, &out)

	// assert
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"2022-04-01T12:01:00Z", "2022-04-01T12:02:00Z", "2022-04-01T12:02:30Z"},
		strings.Split(strings.TrimSpace(out.String()), "\n"),
	)
}

func Test_Timestamps_JSONWithLeadingFrame(t *testing.T) {
	// setup
	var out bytes.Buffer

	// act
	err := run("dev", []string{
		"--json",
		"timestamps",
		"--start", "2022-04-01T12:00:00Z",
		"--end", "2022-04-01T12:02:00Z",
		"--interval", "1m",
		"--leading",
	}, &out)

	// assert
	require.NoError(t, err)

	var result timestampsJSON
	require.NoError(t, jsoniter.ConfigFastest.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, 3, result.Count)
	assert.True(t, result.Timestamps[0].Equal(time.Date(2022, time.April, 1, 12, 0, 0, 0, time.UTC)))
}

func Test_Timestamps_MissingWindow(t *testing.T) {
	// act
	err := run("dev", []string{"timestamps", "--interval", "1m"}, &bytes.Buffer{})

	// assert
	assert.ErrorIs(t, err, ErrMissingWindow)
}

func Test_Timestamps_InvalidInterval(t *testing.T) {
	// act
	err := run("dev", []string{
		"timestamps",
		"--start", "2022-04-01T12:00:00Z",
		"--end", "2022-04-01T12:02:00Z",
		"--interval=-1m",
	}, &bytes.Buffer{})

	// assert
	assert.ErrorIs(t, err, timelapse.ErrInvalidInterval)
}

func Test_ReplayerOptions_RunIDLoggedOnce(t *testing.T) {
	// setup
	ctx := context.Background()
	var logs bytes.Buffer

	db, err := sql.Open("postgres", "postgres://localhost:1/unused?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := postgresengine.NewEventStoreFromSQLDB(db)
	require.NoError(t, err)

	s := &session{
		cfg:    config.Default(),
		logger: sessionLogger(&logs, config.LoggingConfig{Level: "info", Format: "text"}, "run-42"),
	}

	source := fakes.NewEventSource(timelapse.DefaultPartitionCatalog())
	keyframes := fakes.NewKeyframeStore(timelapse.DefaultGeometryTimeline())

	replayer, err := timelapse.NewReplayer(source, keyframes, s.replayerOptions(store)...)
	require.NoError(t, err)

	// act
	_, err = replayer.FrameAt(ctx, time.Date(2022, time.April, 1, 13, 0, 0, 0, time.UTC))

	// assert
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	require.NotEmpty(t, lines)

	for _, line := range lines {
		assert.Equal(t, 1, strings.Count(line, "run_id="), line)
	}

	assert.Contains(t, logs.String(), "run_id=run-42")
}
