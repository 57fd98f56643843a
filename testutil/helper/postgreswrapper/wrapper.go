// Package postgreswrapper creates PostgreSQL backed placement stores for integration tests.
//
// The adapter is chosen with the ADAPTER_TYPE environment variable (pgx.pool, sql.db, sqlx.db),
// the database with TIMELAPSE_TEST_DSN. Every wrapper works on its own uniquely named tables,
// which are dropped when the test finishes.
package postgreswrapper

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/testutil/postgresengine/config"
	"github.com/PerseverantDT/RPlace-2022-Timelapse-Maker/timelapse/postgresengine"
)

// Engine type constants
const (
	typePGXPool = "pgx.pool"
	typeSQLDB   = "sql.db"
	typeSQLXDB  = "sqlx.db"
)

// Wrapper interface to abstract over different engine types
type Wrapper interface {
	GetEventStore() *postgresengine.EventStore
	tableSuffix() string
	Close()
}

type base struct {
	es     *postgresengine.EventStore
	suffix string
}

func (b base) GetEventStore() *postgresengine.EventStore {
	return b.es
}

func (b base) tableSuffix() string {
	return b.suffix
}

func eventsTableName(suffix string) string {
	return "inputs_" + suffix
}

func keyframesTableName(suffix string) string {
	return "keyframes_" + suffix
}

// PGXPoolWrapper wraps pgxpool-based testing
type PGXPoolWrapper struct {
	base
	pool *pgxpool.Pool
}

func (e *PGXPoolWrapper) Close() {
	e.pool.Close()
}

// SQLDBWrapper wraps sql.DB-based testing
type SQLDBWrapper struct {
	base
	db *sql.DB
}

func (e *SQLDBWrapper) Close() {
	_ = e.db.Close() // ignore error
}

// SQLXWrapper wraps sqlx.DB-based testing
type SQLXWrapper struct {
	base
	db *sqlx.DB
}

func (e *SQLXWrapper) Close() {
	_ = e.db.Close() // ignore error
}

// OptionFor builds a store option from the wrapper's unique suffix, for example a catalog
// whose segment views do not collide with other tests.
type OptionFor func(suffix string) postgresengine.Option

// Static wraps an option that does not depend on the suffix.
func Static(option postgresengine.Option) OptionFor {
	return func(string) postgresengine.Option {
		return option
	}
}

// CreateWrapperWithTestConfig creates the appropriate wrapper based on the environment variables,
// creates the schema and registers the cleanup. It skips the test when no test DSN is configured.
func CreateWrapperWithTestConfig(t testing.TB, optionsFor ...OptionFor) Wrapper {
	t.Helper()

	dsn, ok := config.PostgresTestDSN()
	if !ok {
		t.Skipf("%s is not set", config.TestDSNEnv)
	}

	ctx := context.Background()
	id, err := uuid.NewV7()
	require.NoError(t, err, "error in arranging test data")

	b := base{suffix: strings.ReplaceAll(id.String(), "-", "")}
	options := []postgresengine.Option{
		postgresengine.WithEventsTableName(eventsTableName(b.suffix)),
		postgresengine.WithKeyframesTableName(keyframesTableName(b.suffix)),
	}

	for _, optionFor := range optionsFor {
		options = append(options, optionFor(b.suffix))
	}

	var wrapper Wrapper

	engineTypeFromEnv := strings.ToLower(os.Getenv("ADAPTER_TYPE"))

	switch engineTypeFromEnv {
	case typePGXPool, "":
		poolConfig, configErr := config.PostgresPGXPoolTestConfig(dsn)
		require.NoError(t, configErr, "error parsing the test DSN")

		pool, poolErr := pgxpool.NewWithConfig(ctx, poolConfig)
		require.NoError(t, poolErr, "error connecting to DB pool in test setup")

		b.es, err = postgresengine.NewEventStoreFromPGXPool(pool, options...)
		wrapper = &PGXPoolWrapper{base: b, pool: pool}

	case typeSQLDB:
		db, dbErr := config.PostgresSQLDBTestConfig(ctx, dsn)
		require.NoError(t, dbErr, "error connecting to DB in test setup")

		b.es, err = postgresengine.NewEventStoreFromSQLDB(db, options...)
		wrapper = &SQLDBWrapper{base: b, db: db}

	case typeSQLXDB:
		db, dbErr := config.PostgresSQLXTestConfig(ctx, dsn)
		require.NoError(t, dbErr, "error connecting to DB in test setup")

		b.es, err = postgresengine.NewEventStoreFromSQLX(db, options...)
		wrapper = &SQLXWrapper{base: b, db: db}

	default: // neither one of the known types nor empty
		t.Fatalf("unsupported wrapper type from env: %s", engineTypeFromEnv)
	}

	require.NoError(t, err, "error creating the event store")
	require.NoError(t, wrapper.GetEventStore().CreateSchema(ctx), "error creating the schema")

	t.Cleanup(func() {
		CleanUp(t, wrapper)
		wrapper.Close()
	})

	return wrapper
}

// CleanUp drops the tables of the given wrapper together with dependent segment views.
func CleanUp(t testing.TB, wrapper Wrapper) {
	suffix := wrapper.tableSuffix()
	for _, table := range []string{eventsTableName(suffix), keyframesTableName(suffix)} {
		require.NoError(t, Exec(wrapper, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)), "error cleaning up %s", table)
	}
}

// Exec executes raw SQL for the given wrapper.
func Exec(wrapper Wrapper, query string, args ...any) error {
	ctx := context.Background()

	switch e := wrapper.(type) {
	case *PGXPoolWrapper:
		_, err := e.pool.Exec(ctx, query, args...)
		return err

	case *SQLDBWrapper:
		_, err := e.db.ExecContext(ctx, query, args...)
		return err

	case *SQLXWrapper:
		_, err := e.db.ExecContext(ctx, query, args...)
		return err

	default:
		panic(fmt.Sprintf("unsupported wrapper type: %T", e))
	}
}
