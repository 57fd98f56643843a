package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/internal/config"
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse"
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse/badgerengine"
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse/postgresengine"
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse/promadapter"
)

const metricsShutdownTimeout = 5 * time.Second

// session is the runtime state of one command invocation.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics timelapse.MetricsCollector
	out     io.Writer
	json    bool

	closers []func() error
}

// loadConfig reads the config file named by --config over the defaults and applies the global overrides.
func (g *GlobalFlags) loadConfig() (*config.Config, error) {
	cfg := config.Default()

	if g.Config != "" {
		loaded, err := config.Load(g.Config)
		if err != nil {
			return nil, err
		}

		cfg = loaded
	}

	if g.Verbose {
		cfg.Logging.Level = "debug"
	}

	if g.MetricsAddr != "" {
		cfg.Metrics.Addr = g.MetricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newSession loads the configuration and sets up logging and metrics. Call close when done.
func (c command) newSession() (*session, error) {
	cfg, err := c.globals.loadConfig()
	if err != nil {
		return nil, err
	}

	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}

	s := &session{
		cfg:    cfg,
		logger: sessionLogger(os.Stderr, cfg.Logging, runID.String()),
		out:    c.out,
		json:   c.globals.JSON,
	}

	if cfg.Metrics.Addr != "" {
		s.serveMetrics(cfg.Metrics.Addr)
	}

	return s, nil
}

// newLogger builds a slog text or JSON handler at the configured level.
func newLogger(w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level

	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	options := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, options))
	}

	return slog.New(slog.NewTextHandler(w, options))
}

// sessionLogger tags every line of one command invocation with its run id.
func sessionLogger(w io.Writer, cfg config.LoggingConfig, runID string) *slog.Logger {
	return newLogger(w, cfg).With(slog.String("run_id", runID))
}

// serveMetrics exposes a fresh registry on addr until the session is closed.
func (s *session) serveMetrics(addr string) {
	registry := prometheus.NewRegistry()
	s.metrics = promadapter.NewCollector(registry)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", "error", err.Error(), "addr", addr)
		}
	}()

	s.logger.Info("serving metrics", "addr", addr)

	s.closers = append(s.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()

		return server.Shutdown(ctx)
	})
}

func (s *session) close() error {
	var errs []error

	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}

	return errors.Join(errs...)
}

// openEventStore connects to PostgreSQL through the configured adapter.
func (s *session) openEventStore(ctx context.Context) (*postgresengine.EventStore, error) {
	db := s.cfg.Database

	options := []postgresengine.Option{
		postgresengine.WithEventsTableName(db.EventsTable),
		postgresengine.WithKeyframesTableName(db.KeyframesTable),
		postgresengine.WithImportBatchSize(db.ImportBatchSize),
		postgresengine.WithContextualLogger(s.logger),
	}

	if db.DirectTableReads {
		options = append(options, postgresengine.WithDirectTableReads())
	}

	if s.metrics != nil {
		options = append(options, postgresengine.WithMetrics(s.metrics))
	}

	switch db.Adapter {
	case config.AdapterSQL:
		conn, err := sql.Open("postgres", db.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}

		s.closers = append(s.closers, conn.Close)

		return postgresengine.NewEventStoreFromSQLDB(conn, options...)

	case config.AdapterSQLX:
		conn, err := sqlx.Open("postgres", db.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}

		s.closers = append(s.closers, conn.Close)

		return postgresengine.NewEventStoreFromSQLX(conn, options...)

	default:
		pool, err := pgxpool.New(ctx, db.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}

		s.closers = append(s.closers, closeFunc(pool.Close))

		if db.ReplicaDSN == "" {
			return postgresengine.NewEventStoreFromPGXPool(pool, options...)
		}

		replica, err := pgxpool.New(ctx, db.ReplicaDSN)
		if err != nil {
			return nil, fmt.Errorf("open replica: %w", err)
		}

		s.closers = append(s.closers, closeFunc(replica.Close))

		return postgresengine.NewEventStoreFromPGXPoolAndReplica(pool, replica, options...)
	}
}

// openKeyframeStore returns the configured keyframe backend. The postgres backend is the event store itself.
func (s *session) openKeyframeStore(store *postgresengine.EventStore) (timelapse.KeyframeStore, error) {
	if s.cfg.Keyframes.Backend != config.BackendBadger {
		return store, nil
	}

	options := []badgerengine.Option{badgerengine.WithContextualLogger(s.logger)}
	if s.metrics != nil {
		options = append(options, badgerengine.WithMetrics(s.metrics))
	}

	keyframes, err := badgerengine.Open(s.cfg.Keyframes.BadgerPath, options...)
	if err != nil {
		return nil, err
	}

	s.closers = append(s.closers, keyframes.Close)

	return keyframes, nil
}

// replayerOptions returns the core options every replay of this session uses.
// The session logger already carries run_id, so WithRunID is not passed.
func (s *session) replayerOptions(store *postgresengine.EventStore, extra ...timelapse.Option) []timelapse.Option {
	options := []timelapse.Option{
		timelapse.WithCatalog(store.Catalog()),
		timelapse.WithContextualLogger(s.logger),
	}

	if s.metrics != nil {
		options = append(options, timelapse.WithMetrics(s.metrics))
	}

	return append(options, extra...)
}

// print writes v as JSON with --json, otherwise the text lines.
func (s *session) print(v any, lines ...string) error {
	if s.json {
		return jsoniter.ConfigFastest.NewEncoder(s.out).Encode(v)
	}

	_, err := fmt.Fprintln(s.out, strings.Join(lines, "\n"))

	return err
}

// commandContext is canceled on SIGINT and SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func closeFunc(f func()) func() error {
	return func() error {
		f()
		return nil
	}
}

// parseInstant parses an RFC 3339 timestamp; the empty string yields the zero time.
func parseInstant(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s: %w", name, err)
	}

	return t.UTC(), nil
}

// resolve merges the window flags over the config values. The interval falls back to fallbackInterval.
func (w windowFlags) resolve(render config.RenderConfig, fallbackInterval time.Duration) (start, end time.Time, interval time.Duration, err error) {
	start, end = render.Start, render.End
	interval = fallbackInterval

	if t, err := parseInstant("start", w.Start); err != nil {
		return start, end, interval, err
	} else if !t.IsZero() {
		start = t
	}

	if t, err := parseInstant("end", w.End); err != nil {
		return start, end, interval, err
	} else if !t.IsZero() {
		end = t
	}

	if w.Interval != "" {
		interval, err = time.ParseDuration(w.Interval)
		if err != nil {
			return start, end, interval, fmt.Errorf("invalid --interval: %w", err)
		}
	}

	if interval <= 0 {
		return start, end, interval, timelapse.ErrInvalidInterval
	}

	return start, end, interval, nil
}

// window resolves the replay window, reading the stored placement range for unset bounds.
func (s *session) window(
	ctx context.Context,
	store *postgresengine.EventStore,
	flags windowFlags,
	fallbackInterval time.Duration,
) (timelapse.DateTimeRange, time.Duration, error) {
	start, end, interval, err := flags.resolve(s.cfg.Render, fallbackInterval)
	if err != nil {
		return timelapse.DateTimeRange{}, 0, err
	}

	if start.IsZero() || end.IsZero() {
		stored, err := store.TimestampRange(ctx)
		if err != nil {
			return timelapse.DateTimeRange{}, 0, err
		}

		if start.IsZero() {
			start = stored.Start()
		}

		if end.IsZero() {
			end = stored.End()
		}
	}

	window, err := timelapse.ClosedRange(start, end)
	if err != nil {
		return timelapse.DateTimeRange{}, 0, err
	}

	return window, interval, nil
}
